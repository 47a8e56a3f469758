package apiclient

// HealthStatus is the body of the health endpoints.
type HealthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Uptime  string `json:"uptime"`
	Store   string `json:"store,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Health checks server liveness.
func (c *Client) Health() (*HealthStatus, error) {
	var resp HealthStatus
	if err := c.get("/healthz", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ready checks whether the server can reach its case-state store.
func (c *Client) Ready() (*HealthStatus, error) {
	var resp HealthStatus
	if err := c.get("/healthz/ready", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
