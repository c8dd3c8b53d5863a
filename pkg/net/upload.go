package net

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// FileField is the multipart form field carrying the uploaded file.
const FileField = "file"

// Upload posts content as a multipart file named filename and returns the
// response body. Any status other than 200 is an error.
func Upload(ctx context.Context, c *http.Client, url, filename string, content io.Reader) ([]byte, error) {
	if filename == "" {
		return nil, fmt.Errorf("filename required")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(FileField, filename)
	if err != nil {
		return nil, fmt.Errorf("error creating form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("error writing form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("error closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP Post request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("User-Agent", clientAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req) //nolint:gosec // G704: URL from command flags
	if err != nil {
		return nil, fmt.Errorf("error executing HTTP Post request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResp(url, resp); err != nil {
		return nil, err
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	return b, nil
}
