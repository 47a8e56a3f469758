package commands

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/zipcase/zipcase/cmd/zipcasectl/cmdutil"
)

var (
	uploadContentType string
	uploadURLOnly     bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a case document",
	Long: `Upload a case document to the server's document bucket.

The server hands out a presigned URL scoped to your user; the file is
then uploaded directly to storage, not through the API.

Examples:
  # Upload a document
  zipcasectl upload motion.pdf

  # Just get the presigned URL (for curl or another tool)
  zipcasectl upload motion.pdf --url-only`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVar(&uploadContentType, "content-type", "", "Content type (detected from the extension by default)")
	uploadCmd.Flags().BoolVar(&uploadURLOnly, "url-only", false, "Print the presigned URL instead of uploading")
}

// UploadResult is the upload output for JSON/YAML rendering.
type UploadResult struct {
	Key         string `json:"key" yaml:"key"`
	Size        int64  `json:"size" yaml:"size"`
	ContentType string `json:"content_type" yaml:"content_type"`
}

func runUpload(cmd *cobra.Command, args []string) error {
	path := args[0]

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot read file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	contentType := uploadContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
	}

	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	signed, err := client.CreateUploadURL(filepath.Base(path), contentType, info.Size())
	if err != nil {
		return fmt.Errorf("failed to create upload URL: %w", err)
	}

	if uploadURLOnly {
		return cmdutil.PrintResourceWithSuccess(os.Stdout, signed,
			fmt.Sprintf("Upload URL (key %s):\n%s", signed.Key, signed.UploadURL))
	}

	// The presigned URL goes straight to storage; no bearer token.
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	req, err := http.NewRequest(http.MethodPut, signed.UploadURL, file)
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", contentType)

	httpClient := &http.Client{Timeout: 10 * time.Minute}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upload failed: storage returned %s", resp.Status)
	}

	result := UploadResult{Key: signed.Key, Size: info.Size(), ContentType: contentType}
	return cmdutil.PrintResourceWithSuccess(os.Stdout, result,
		fmt.Sprintf("Uploaded %s (%d bytes) as %s", filepath.Base(path), info.Size(), signed.Key))
}
