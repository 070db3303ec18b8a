// Package vault is a thin REST client for the remote storage provider.
// The provider accepts a complete file buffer plus metadata and returns a
// descriptor for the stored file.
package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/waifuvault/WaifuFiles/pkg/models"
)

type Client struct {
	endpoint    string
	bucketToken string
	client      *http.Client
}

// DefaultHTTPClient returns an HTTP client tuned for large uploads. No
// client-level timeout: per-call deadlines come from the caller's context.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// New creates a vault client. bucketToken is the default bucket every
// upload lands in unless the request overrides it.
func New(endpoint, bucketToken string, opts ...Option) *Client {
	c := &Client{
		endpoint:    strings.TrimRight(endpoint, "/"),
		bucketToken: bucketToken,
		client:      DefaultHTTPClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Error is a structured failure reported by the vault API.
type Error struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", e.Name, e.Message, e.Status)
}

// UploadFile sends one complete file buffer to the vault. Optional fields
// of opts are attached only when meaningfully set: empty strings and false
// flags are never sent as placeholders.
func (c *Client) UploadFile(ctx context.Context, data []byte, opts models.UploadOptions) (*models.StoredFile, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	token := c.bucketToken
	if strings.TrimSpace(opts.BucketToken) != "" {
		token = opts.BucketToken
	}

	q := url.Values{}
	if opts.Expires != "" {
		q.Set("expires", opts.Expires)
	}
	if opts.HideFilename {
		q.Set("hide_filename", "true")
	}
	if opts.OneTimeDownload {
		q.Set("one_time_download", "true")
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("file", opts.Filename)
	if err != nil {
		return nil, err
	}
	if _, err = fw.Write(data); err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.Password) != "" {
		if err = mw.WriteField("password", opts.Password); err != nil {
			return nil, err
		}
	}
	if err = mw.Close(); err != nil {
		return nil, err
	}

	u := c.endpoint + "/rest/" + token
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, decodeError(resp)
	}
	var stored models.StoredFile
	if err = json.NewDecoder(resp.Body).Decode(&stored); err != nil {
		return nil, fmt.Errorf("decoding vault response: %w", err)
	}
	return &stored, nil
}

// Restrictions fetches the provider's current upload policy.
func (c *Client) Restrictions(ctx context.Context) ([]models.Restriction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/rest/resources/restrictions", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, decodeError(resp)
	}
	var restrictions []models.Restriction
	if err = json.NewDecoder(resp.Body).Decode(&restrictions); err != nil {
		return nil, fmt.Errorf("decoding restrictions: %w", err)
	}
	return restrictions, nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)
	var ve Error
	if err := json.Unmarshal(raw, &ve); err == nil && ve.Name != "" && ve.Status != 0 {
		return &ve
	}
	return fmt.Errorf("vault request failed: %s %s", resp.Status, raw)
}
