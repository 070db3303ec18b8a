package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/waifuvault/WaifuFiles/pkg/models"
)

type finalizeRequest struct {
	UploadID string               `json:"uploadId"`
	Options  models.UploadOptions `json:"options"`
}

// finalize asks the server to reassemble the session and forward it to the
// vault. Assembly of a large file can take the server minutes, so each
// timed-out attempt retries with a longer window. A fired caller
// cancellation aborts immediately instead.
func (c *Client) finalize(ctx context.Context, uploadID string, opts models.UploadOptions) (*models.StoredFile, error) {
	payload, err := json.Marshal(finalizeRequest{UploadID: uploadID, Options: opts})
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= c.finalizeAttempts; attempt++ {
		timeout := c.finalizeTimeout * time.Duration(attempt)
		slog.Debug("finalization attempt",
			slog.String("upload_id", uploadID),
			slog.Int("attempt", attempt),
			slog.Duration("timeout", timeout))

		stored, err := c.finalizeOnce(ctx, payload, timeout)
		if err == nil {
			return stored, nil
		}
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		if errors.Is(err, context.DeadlineExceeded) {
			if attempt == c.finalizeAttempts {
				return nil, fmt.Errorf("upload finalization failed after %d attempts - file may be too large: %w",
					c.finalizeAttempts, ErrFinalizeExhausted)
			}
			slog.Warn("finalization attempt timed out, retrying",
				slog.String("upload_id", uploadID),
				slog.Int("attempt", attempt))
			continue
		}
		return nil, err
	}
	return nil, ErrFinalizeExhausted
}

func (c *Client) finalizeOnce(ctx context.Context, payload []byte, timeout time.Duration) (*models.StoredFile, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.endpoint+"/upload/finalize", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, &FinalizeError{Status: resp.StatusCode, Body: string(raw)}
	}
	var stored models.StoredFile
	if err = json.NewDecoder(resp.Body).Decode(&stored); err != nil {
		return nil, fmt.Errorf("decoding finalize response: %w", err)
	}
	return &stored, nil
}

// Cleanup asks the server to drop the session's temp chunks. Best-effort
// by contract: failures are logged and swallowed.
func (c *Client) Cleanup(ctx context.Context, uploadID string) {
	payload, _ := json.Marshal(map[string]string{"uploadId": uploadID})
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint+"/upload/cleanup", bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		slog.Debug("cleanup call failed",
			slog.String("upload_id", uploadID),
			slog.String("error", err.Error()))
		return
	}
	_ = resp.Body.Close()
}

// Restrictions fetches the server's current upload policy.
func (c *Client) Restrictions(ctx context.Context) ([]models.Restriction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/restrictions", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fetching restrictions: HTTP %d: %s", resp.StatusCode, raw)
	}
	var restrictions []models.Restriction
	if err = json.NewDecoder(resp.Body).Decode(&restrictions); err != nil {
		return nil, err
	}
	return restrictions, nil
}
