// Package blobstore stages user images in the managed blob store so the
// inference API can fetch them by public URL.
package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pixelift/pixelift/internal/logger"
)

type Client struct {
	baseURL string

	client *http.Client
	logger logger.Logger
}

func NewClient(baseURL string, l logger.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{},
		logger:  l,
	}
}

// Put uploads the file and returns its public URL
func (c *Client) Put(ctx context.Context, filename string, contentType string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/store/"+url.PathEscape(filename), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.logger.Warn("Failed to store blob", "status_code", resp.StatusCode, "filename", filename)
		return "", fmt.Errorf("unknown status code %d while storing %s", resp.StatusCode, filename)
	}

	var stored struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stored); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return stored.URL, nil
}
