package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// FaceQuality contains face quality metrics.
type FaceQuality struct {
	Score     float64 `json:"score"`
	Blur      float64 `json:"blur"`
	IsFrontal bool    `json:"is_frontal"`
}

// EnrollResult contains face enrollment response.
type EnrollResult struct {
	VisitorID string       `json:"user_id"`
	Success   bool         `json:"success"`
	Quality   *FaceQuality `json:"quality"`
	Message   string       `json:"message"`
}

// VerifyResult contains 1:1 verification result.
type VerifyResult struct {
	VisitorID  string       `json:"user_id"`
	Verified   bool         `json:"verified"`
	Similarity float64      `json:"similarity"`
	Threshold  float64      `json:"threshold"`
	Quality    *FaceQuality `json:"quality"`
}

// Client calls the face recognition microservice. With Skip set every call
// succeeds without network access.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client with configurable timeout.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // face processing can take time
		},
	}
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}
	return nil
}

// Enroll registers a visitor's profile photo in the recognition gallery.
func (c *Client) Enroll(ctx context.Context, visitorID, imageURL, name string) (*EnrollResult, error) {
	if c.Skip {
		return &EnrollResult{VisitorID: visitorID, Success: true, Message: "face enrolled (mock)"}, nil
	}
	payload := map[string]string{"user_id": visitorID, "image_url": imageURL}
	if name != "" {
		payload["name"] = name
	}
	var out EnrollResult
	if err := c.post(ctx, "/enroll", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify matches a captured image against the visitor's enrolled face.
func (c *Client) Verify(ctx context.Context, visitorID, imageURL string) (*VerifyResult, error) {
	if c.Skip {
		return &VerifyResult{VisitorID: visitorID, Verified: true, Similarity: 0.92, Threshold: 0.45}, nil
	}
	if imageURL == "" {
		return nil, fmt.Errorf("image url required")
	}
	var out VerifyResult
	if err := c.post(ctx, "/verify", map[string]string{"user_id": visitorID, "image_url": imageURL}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
