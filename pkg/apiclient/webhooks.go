package apiclient

import "github.com/zipcase/zipcase/pkg/zipcase"

// GetWebhookSettings returns the caller's webhook registration. A user
// who never registered gets empty settings, not an error.
func (c *Client) GetWebhookSettings() (*zipcase.WebhookSettings, error) {
	var settings zipcase.WebhookSettings
	if err := c.get("/webhook-settings", &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// SaveWebhookSettings registers a webhook URL. An empty URL clears the
// registration.
func (c *Client) SaveWebhookSettings(settings zipcase.WebhookSettings) (*zipcase.WebhookSettings, error) {
	var saved zipcase.WebhookSettings
	if err := c.post("/webhook-settings", settings, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}
