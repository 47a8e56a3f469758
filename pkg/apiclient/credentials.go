package apiclient

// SaveCredentialsResponse is the body of POST /portal-credentials. The
// password is never echoed back.
type SaveCredentialsResponse struct {
	Username string `json:"username"`
	Verified bool   `json:"verified"`
}

// SaveCredentials verifies portal credentials with a live login and
// stores them on success. The call blocks while the server performs the
// login, which can include solving a bot challenge.
func (c *Client) SaveCredentials(username, password string) (*SaveCredentialsResponse, error) {
	body := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{Username: username, Password: password}

	var resp SaveCredentialsResponse
	if err := c.post("/portal-credentials", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
