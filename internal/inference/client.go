// Package inference is a thin client for the hosted background-removal
// API, the "Superior" model path charged in prepaid credits.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pixelift/pixelift/internal/logger"
)

const (
	CodeRetryAfter = "retry-after"
	CodeBadImage   = "bad-image"
	CodeUnknown    = "unknown"
)

type Error struct {
	Code string

	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %s, retry_after: %s, error: %v", e.Code, e.RetryAfter, e.Err)
}

func NewError(code string, retryAfter int, err error) *Error {
	return &Error{
		Code:       code,
		RetryAfter: time.Duration(retryAfter) * time.Second,
		Err:        err,
	}
}

type Removal struct {
	ResultURL string `json:"result_url"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

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

func (c *Client) RemoveBackground(ctx context.Context, imageURL string) (Removal, error) {
	var removal Removal

	// Model inference is slow, allow well over the usual request budget
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	body, err := json.Marshal(map[string]string{"image_url": imageURL})
	if err != nil {
		return removal, NewError(CodeUnknown, 0, fmt.Errorf("failed to encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/remove", bytes.NewReader(body))
	if err != nil {
		return removal, NewError(CodeUnknown, 0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return removal, NewError(CodeUnknown, 0, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close() // nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(&removal); err != nil {
			return removal, NewError(CodeUnknown, 0, fmt.Errorf("failed to decode response: %w", err))
		}
		c.logger.Debug("Background removed", "result_url", removal.ResultURL, "width", removal.Width, "height", removal.Height)
		return removal, nil
	case http.StatusUnprocessableEntity:
		return removal, NewError(CodeBadImage, 0, fmt.Errorf("image rejected by inference API"))
	case http.StatusTooManyRequests:
		return removal, c.processTooManyRequests(resp)
	default:
		c.logger.Warn("Failed to remove background", "status_code", resp.StatusCode)
		return removal, NewError(CodeUnknown, 0, fmt.Errorf("unknown status code %d", resp.StatusCode))
	}
}

func (c *Client) processTooManyRequests(resp *http.Response) error {
	header := resp.Header.Get("Retry-After")
	retryAfter, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil {
		retryAfter = 60 // default to 60 seconds if parsing fails
	}

	c.logger.Warn("Inference API throttled", "retry_after", retryAfter)
	return NewError(CodeRetryAfter, retryAfter, fmt.Errorf("retry after %d seconds", retryAfter))
}
