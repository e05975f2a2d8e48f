// Package netx contains small HTTP helpers that do not belong to any API client.
package netx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// UploadToS3PresignedURL PUTs body to a presigned object-storage URL.
// contentType must match the one the URL was signed for.
func UploadToS3PresignedURL(ctx context.Context, client *http.Client, url string, contentType string, body []byte) error {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("upload failed: %s; body: %s", resp.Status, string(b))
	}
	return nil
}

// DetectContentType sniffs an avatar image type the same way the server
// signs it. Only image types are accepted.
func DetectContentType(body []byte) (string, error) {
	ct := http.DetectContentType(body)
	switch ct {
	case "image/png", "image/jpeg", "image/gif", "image/webp":
		return ct, nil
	default:
		return "", fmt.Errorf("unsupported image type %q", ct)
	}
}
