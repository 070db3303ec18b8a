package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

// uploadChunk sends one chunk within the per-attempt timeout. The server
// overwrites any prior file at the same index, so a retry is always safe.
func (c *Client) uploadChunk(ctx context.Context, chunk []byte, chunkIndex, totalChunks int, uploadID string) error {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("chunk", "blob")
	if err != nil {
		return err
	}
	if _, err = fw.Write(chunk); err != nil {
		return err
	}
	fields := map[string]string{
		"chunkIndex":  strconv.Itoa(chunkIndex),
		"totalChunks": strconv.Itoa(totalChunks),
		"uploadId":    uploadID,
	}
	for k, v := range fields {
		if err = mw.WriteField(k, v); err != nil {
			return err
		}
	}
	if err = mw.Close(); err != nil {
		return err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.chunkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.endpoint+"/upload/chunk", body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return &ChunkTimeoutError{ChunkIndex: chunkIndex}
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return &TransportError{
			ChunkIndex: chunkIndex,
			Status:     resp.StatusCode,
			Body:       string(raw),
		}
	}
	return nil
}

// uploadChunkWithRetry retries transport failures with a growing backoff.
// Cancellation is never retried.
func (c *Client) uploadChunkWithRetry(ctx context.Context, chunk []byte, chunkIndex, totalChunks int, uploadID string) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			slog.Warn("chunk failed, retrying",
				slog.Int("chunk_index", chunkIndex),
				slog.Int("attempt", attempt),
				slog.Int("max_retries", c.maxRetries))
			backoff := c.backoffBase * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ErrCancelled
			case <-time.After(backoff):
			}
		}
		lastErr = c.uploadChunk(ctx, chunk, chunkIndex, totalChunks, uploadID)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrCancelled) || ctx.Err() != nil {
			return ErrCancelled
		}
	}
	return fmt.Errorf("chunk %d failed after %d retries: %w", chunkIndex, c.maxRetries, lastErr)
}
