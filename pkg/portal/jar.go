package portal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Jar is a serializable cookie jar. The stdlib jar cannot round-trip
// through storage, and cached sessions are exactly that: a jar persisted
// between processes. Matching follows the browser rules the portal
// relies on (host and registrable-suffix domain match, path prefix
// match, secure-only over https) without the public-suffix machinery,
// which the portal's single-operator domains never need.
type Jar struct {
	mu      sync.Mutex
	cookies []jarCookie
}

type jarCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires"`
	Secure   bool      `json:"secure,omitempty"`
	HTTPOnly bool      `json:"httpOnly,omitempty"`
	HostOnly bool      `json:"hostOnly,omitempty"`
}

// jarDocument is the persisted form.
type jarDocument struct {
	Cookies []jarCookie `json:"cookies"`
}

// NewJar creates an empty jar.
func NewJar() *Jar {
	return &Jar{}
}

// RestoreJar rebuilds a jar from its serialized form.
func RestoreJar(serialized string) (*Jar, error) {
	var doc jarDocument
	if err := json.Unmarshal([]byte(serialized), &doc); err != nil {
		return nil, fmt.Errorf("failed to restore cookie jar: %w", err)
	}
	return &Jar{cookies: doc.Cookies}, nil
}

// Serialize renders the jar for storage.
func (j *Jar) Serialize() (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	doc, err := json.Marshal(jarDocument{Cookies: j.cookies})
	if err != nil {
		return "", fmt.Errorf("failed to serialize cookie jar: %w", err)
	}
	return string(doc), nil
}

// SetCookies implements http.CookieJar.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now()
	host := strings.ToLower(u.Hostname())

	for _, c := range cookies {
		if c.Name == "" {
			continue
		}

		stored := jarCookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		}
		if stored.Path == "" || !strings.HasPrefix(stored.Path, "/") {
			stored.Path = "/"
		}
		if domain := strings.ToLower(strings.TrimPrefix(c.Domain, ".")); domain != "" {
			stored.Domain = domain
		} else {
			stored.Domain = host
			stored.HostOnly = true
		}
		if c.MaxAge > 0 {
			stored.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}

		j.removeLocked(stored.Name, stored.Domain, stored.Path)

		// MaxAge < 0 and already-expired cookies are deletions.
		if c.MaxAge < 0 || (!stored.Expires.IsZero() && !stored.Expires.After(now)) {
			continue
		}
		j.cookies = append(j.cookies, stored)
	}
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now()
	host := strings.ToLower(u.Hostname())
	path := u.Path
	if path == "" {
		path = "/"
	}
	https := u.Scheme == "https"

	var out []*http.Cookie
	for _, c := range j.cookies {
		if !c.Expires.IsZero() && !c.Expires.After(now) {
			continue
		}
		if c.Secure && !https {
			continue
		}
		if !domainMatch(host, c.Domain, c.HostOnly) || !pathMatch(path, c.Path) {
			continue
		}
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}

// Get returns the first live cookie with the given name across all
// domains.
func (j *Jar) Get(name string) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now()
	for _, c := range j.cookies {
		if c.Name != name {
			continue
		}
		if !c.Expires.IsZero() && !c.Expires.After(now) {
			continue
		}
		return c.Value, true
	}
	return "", false
}

// Has reports whether every named cookie is present and live.
func (j *Jar) Has(names ...string) bool {
	for _, name := range names {
		if _, ok := j.Get(name); !ok {
			return false
		}
	}
	return true
}

// EarliestExpiry returns the soonest non-session cookie expiry in the
// jar, when one exists. Session cookies (no expiry) do not count.
func (j *Jar) EarliestExpiry() (time.Time, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var earliest time.Time
	for _, c := range j.cookies {
		if c.Expires.IsZero() {
			continue
		}
		if earliest.IsZero() || c.Expires.Before(earliest) {
			earliest = c.Expires
		}
	}
	return earliest, !earliest.IsZero()
}

func (j *Jar) removeLocked(name, domain, path string) {
	kept := j.cookies[:0]
	for _, c := range j.cookies {
		if c.Name == name && c.Domain == domain && c.Path == path {
			continue
		}
		kept = append(kept, c)
	}
	j.cookies = kept
}

func domainMatch(host, domain string, hostOnly bool) bool {
	if host == domain {
		return true
	}
	if hostOnly {
		return false
	}
	return strings.HasSuffix(host, "."+domain)
}

func pathMatch(reqPath, cookiePath string) bool {
	if reqPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(reqPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
}
