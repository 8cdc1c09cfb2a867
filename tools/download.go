package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Download fetches url fully into memory.
func Download(ctx context.Context, client *http.Client, url string) (data []byte, contentType string, err error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("failed to download %s, status code: %d", url, resp.StatusCode)
		return
	}
	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return
	}
	contentType = resp.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = DetectContentType(data)
	}
	return
}
