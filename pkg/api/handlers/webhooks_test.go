package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zipcase/zipcase/pkg/zipcase"
)

func TestWebhookHandler_Get_Unregistered(t *testing.T) {
	env := setupEnv(t)
	handler := NewWebhookHandler(env.users)

	req := authedRequest(t, http.MethodGet, "/webhook-settings", nil)
	w := httptest.NewRecorder()
	handler.Get(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Get() status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}

	settings := decodeBody[zipcase.WebhookSettings](t, w)
	if settings.WebhookURL != "" || settings.SharedSecret != "" {
		t.Errorf("Get() = %+v, want empty settings", settings)
	}
}

func TestWebhookHandler_SaveThenGet(t *testing.T) {
	env := setupEnv(t)
	handler := NewWebhookHandler(env.users)

	saved := zipcase.WebhookSettings{WebhookURL: "https://example.com/hook", SharedSecret: "hook-secret"}
	req := authedRequest(t, http.MethodPost, "/webhook-settings", saved)
	w := httptest.NewRecorder()
	handler.Save(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Save() status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}

	getReq := authedRequest(t, http.MethodGet, "/webhook-settings", nil)
	getW := httptest.NewRecorder()
	handler.Get(getW, getReq)

	if getW.Code != http.StatusOK {
		t.Fatalf("Get() status = %d, want %d, body = %s", getW.Code, http.StatusOK, getW.Body.String())
	}

	settings := decodeBody[zipcase.WebhookSettings](t, getW)
	if settings != saved {
		t.Errorf("Get() = %+v, want %+v", settings, saved)
	}
}

func TestWebhookHandler_Save_InvalidURL(t *testing.T) {
	env := setupEnv(t)
	handler := NewWebhookHandler(env.users)

	tests := []struct {
		name string
		url  string
	}{
		{name: "relative", url: "/hook"},
		{name: "missing scheme", url: "example.com/hook"},
		{name: "non-http scheme", url: "ftp://example.com/hook"},
		{name: "scheme only", url: "https://"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := authedRequest(t, http.MethodPost, "/webhook-settings", zipcase.WebhookSettings{WebhookURL: tt.url})
			w := httptest.NewRecorder()
			handler.Save(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("Save(%q) status = %d, want %d", tt.url, w.Code, http.StatusBadRequest)
			}
			if !strings.Contains(w.Body.String(), "absolute http(s) URL") {
				t.Errorf("Save(%q) body = %s, want URL validation message", tt.url, w.Body.String())
			}
		})
	}
}

func TestWebhookHandler_Save_ClearsRegistration(t *testing.T) {
	env := setupEnv(t)
	handler := NewWebhookHandler(env.users)

	req := authedRequest(t, http.MethodPost, "/webhook-settings", zipcase.WebhookSettings{WebhookURL: "https://example.com/hook"})
	w := httptest.NewRecorder()
	handler.Save(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Save() status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}

	clearReq := authedRequest(t, http.MethodPost, "/webhook-settings", zipcase.WebhookSettings{})
	clearW := httptest.NewRecorder()
	handler.Save(clearW, clearReq)
	if clearW.Code != http.StatusOK {
		t.Fatalf("Save() clear status = %d, want %d, body = %s", clearW.Code, http.StatusOK, clearW.Body.String())
	}

	getReq := authedRequest(t, http.MethodGet, "/webhook-settings", nil)
	getW := httptest.NewRecorder()
	handler.Get(getW, getReq)

	settings := decodeBody[zipcase.WebhookSettings](t, getW)
	if settings.WebhookURL != "" {
		t.Errorf("Get() webhookUrl = %s, want empty after clear", settings.WebhookURL)
	}
}
