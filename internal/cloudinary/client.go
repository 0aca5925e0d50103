package cloudinary

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAPIBase      = "https://api.cloudinary.com"
	defaultDeliveryBase = "https://res.cloudinary.com"
)

// Client uploads and fetches images through the Cloudinary REST API.
type Client struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string

	APIBase      string
	DeliveryBase string
	HTTP         *http.Client
	now          func() time.Time
}

// New creates a Cloudinary client.
func New(cloudName, apiKey, apiSecret, folder string) *Client {
	return &Client{
		CloudName:    cloudName,
		APIKey:       apiKey,
		APISecret:    apiSecret,
		Folder:       folder,
		APIBase:      defaultAPIBase,
		DeliveryBase: defaultDeliveryBase,
		HTTP:         &http.Client{Timeout: 30 * time.Second},
		now:          time.Now,
	}
}

// UploadResult holds the response from Cloudinary after a successful upload.
type UploadResult struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	Format    string `json:"format"`
	Bytes     int    `json:"bytes"`
}

// Upload sends raw image bytes. publicID is optional; Cloudinary assigns one
// when it is empty.
func (c *Client) Upload(ctx context.Context, data []byte, filename, publicID string) (*UploadResult, error) {
	params := map[string]string{
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
		"api_key":   c.APIKey,
	}
	if c.Folder != "" {
		params["folder"] = c.Folder
	}
	if publicID != "" {
		params["public_id"] = publicID
	}
	params["signature"] = c.sign(params)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range params {
		_ = w.WriteField(k, v)
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: create form file failed: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("cloudinary: write file failed: %w", err)
	}
	w.Close()

	endpoint := fmt.Sprintf("%s/v1_1/%s/image/upload", c.APIBase, c.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cloudinary: upload failed (%d): %s", resp.StatusCode, string(body))
	}

	var result UploadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("cloudinary: decode response failed: %w", err)
	}
	return &result, nil
}

// ErrNotFound is returned by Fetch when the asset does not exist.
var ErrNotFound = errors.New("cloudinary: asset not found")

// Fetch downloads a delivered image by public id and format.
func (c *Client) Fetch(ctx context.Context, publicID, format string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/%s/image/upload/%s", c.DeliveryBase, c.CloudName, publicID)
	if format != "" {
		endpoint += "." + format
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: create request failed: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cloudinary: fetch failed (%d)", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Destroy removes an uploaded image. A missing asset is not an error.
func (c *Client) Destroy(ctx context.Context, publicID string) error {
	params := map[string]string{
		"public_id": publicID,
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
	}
	params["signature"] = c.sign(params)
	params["api_key"] = c.APIKey

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	endpoint := fmt.Sprintf("%s/v1_1/%s/image/destroy", c.APIBase, c.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("cloudinary: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("cloudinary: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("cloudinary: destroy failed (%d): %s", resp.StatusCode, string(body))
	}
	var out struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("cloudinary: decode response failed: %w", err)
	}
	if out.Result != "ok" && out.Result != "not found" {
		return fmt.Errorf("cloudinary: destroy %s: %s", publicID, out.Result)
	}
	return nil
}

// sign computes the API signature over the sorted params. api_key, file and
// resource_type are not signed.
func (c *Client) sign(params map[string]string) string {
	excludeKeys := map[string]bool{"api_key": true, "file": true, "resource_type": true}

	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if !excludeKeys[k] && v != "" {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)

	h := sha1.New()
	h.Write([]byte(strings.Join(pairs, "&") + c.APISecret))
	return fmt.Sprintf("%x", h.Sum(nil))
}
