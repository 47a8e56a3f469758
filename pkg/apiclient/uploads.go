package apiclient

// UploadURL is the body of POST /upload-url: a presigned PUT URL and
// the object key it authorizes.
type UploadURL struct {
	UploadURL string `json:"uploadUrl"`
	Key       string `json:"key"`
}

// CreateUploadURL requests a presigned URL for uploading a case
// document.
func (c *Client) CreateUploadURL(filename, contentType string, size int64) (*UploadURL, error) {
	body := struct {
		Filename    string `json:"filename"`
		ContentType string `json:"contentType,omitempty"`
		Size        int64  `json:"size"`
	}{Filename: filename, ContentType: contentType, Size: size}

	var resp UploadURL
	if err := c.post("/upload-url", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
