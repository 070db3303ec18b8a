// Package uploader is the client side of the chunked upload pipeline: it
// splits a file into fixed-size chunks, drives them through a bounded
// worker pool with retry, then asks the server to finalize.
package uploader

import (
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/waifuvault/WaifuFiles/pkg/models"
)

const (
	DefaultChunkSize     = 5 * 1024 * 1024
	DefaultChunkTimeout  = 60 * time.Second
	DefaultMaxRetries    = 3
	DefaultMaxConcurrent = 3

	defaultFinalizeAttempts = 3
	defaultFinalizeTimeout  = 5 * time.Minute
	defaultBackoffBase      = time.Second

	// Chunk transfer owns the first 90% of the progress bar; the finalize
	// phase is the headline for the rest.
	chunkProgressShare = 90
)

type Client struct {
	endpoint string
	client   *http.Client
	registry *Registry

	chunkSize        int64
	chunkTimeout     time.Duration
	maxRetries       int
	maxConcurrent    int
	finalizeAttempts int
	finalizeTimeout  time.Duration
	backoffBase      time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

func WithChunkSize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

func WithChunkTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.chunkTimeout = d
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

func WithMaxConcurrent(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxConcurrent = n
		}
	}
}

func WithFinalizeTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.finalizeTimeout = d
		}
	}
}

func WithBackoffBase(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.backoffBase = d
		}
	}
}

// New creates an upload client against the given server endpoint. registry
// may be shared between clients; pass nil for a private one.
func New(endpoint string, registry *Registry, opts ...Option) *Client {
	if registry == nil {
		registry = NewRegistry()
	}
	c := &Client{
		endpoint:         strings.TrimRight(endpoint, "/"),
		client:           &http.Client{},
		registry:         registry,
		chunkSize:        DefaultChunkSize,
		chunkTimeout:     DefaultChunkTimeout,
		maxRetries:       DefaultMaxRetries,
		maxConcurrent:    DefaultMaxConcurrent,
		finalizeAttempts: defaultFinalizeAttempts,
		finalizeTimeout:  defaultFinalizeTimeout,
		backoffBase:      defaultBackoffBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry exposes the session registry, for cancel-by-id from elsewhere.
func (c *Client) Registry() *Registry {
	return c.registry
}

// Hooks are the scheduler's calls back into the caller. OnProgress gets a
// 0-100 percentage; OnProcessing marks the hand-off from chunk transfer to
// server-side assembly.
type Hooks struct {
	OnProgress   func(progress int)
	OnProcessing func()
}

// UploadFile drives one file through the whole pipeline: chunking, the
// concurrent transfer, finalize, and cleanup on any failure. uploadID may
// be empty; a deterministic id is derived from the file and options then.
func (c *Client) UploadFile(ctx context.Context, path string, opts models.UploadOptions, hooks Hooks, uploadID string) (*models.StoredFile, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if opts.Filename == "" {
		opts.Filename = filepath.Base(path)
	}

	size := info.Size()
	totalChunks := int((size + c.chunkSize - 1) / c.chunkSize)
	if uploadID == "" {
		uploadID = DeriveUploadID(info.Name(), size, info.ModTime(), opts)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.registry.Register(uploadID, cancel)

	slog.Debug("starting chunked upload",
		slog.String("upload_id", uploadID),
		slog.Int64("size", size),
		slog.Int("total_chunks", totalChunks))

	stored, err := c.run(sessionCtx, file, size, totalChunks, uploadID, opts, hooks)
	c.registry.Unregister(uploadID)
	if err != nil {
		c.Cleanup(context.Background(), uploadID)
		if sessionCtx.Err() != nil {
			return nil, ErrCancelled
		}
		return nil, err
	}
	return stored, nil
}

func (c *Client) run(ctx context.Context, file *os.File, size int64, totalChunks int, uploadID string, opts models.UploadOptions, hooks Hooks) (*models.StoredFile, error) {
	if err := c.uploadChunksConcurrently(ctx, file, size, totalChunks, uploadID, hooks.OnProgress); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, ErrCancelled
	}
	if hooks.OnProcessing != nil {
		hooks.OnProcessing()
	}
	return c.finalize(ctx, uploadID, opts)
}

// uploadChunksConcurrently runs min(maxConcurrent, totalChunks) workers,
// each claiming the next unclaimed chunk index until none remain. Indices
// may complete out of order; the server re-imposes order at finalize.
func (c *Client) uploadChunksConcurrently(ctx context.Context, file *os.File, size int64, totalChunks int, uploadID string, onProgress func(int)) error {
	workers := c.maxConcurrent
	if totalChunks < workers {
		workers = totalChunks
	}

	var nextIndex atomic.Int64
	var completed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for range workers {
		g.Go(func() error {
			for {
				index := int(nextIndex.Add(1) - 1)
				if index >= totalChunks {
					return nil
				}
				if err := gctx.Err(); err != nil {
					return ErrCancelled
				}

				start := int64(index) * c.chunkSize
				end := start + c.chunkSize
				if end > size {
					end = size
				}
				chunk := make([]byte, end-start)
				if _, err := file.ReadAt(chunk, start); err != nil && err != io.EOF {
					return err
				}

				if err := c.uploadChunkWithRetry(gctx, chunk, index, totalChunks, uploadID); err != nil {
					return err
				}

				done := completed.Add(1)
				if onProgress != nil {
					onProgress(int(math.Round(float64(done) / float64(totalChunks) * chunkProgressShare)))
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ErrCancelled
	}
	return nil
}

// CancelUpload aborts an active session by id and fires a best-effort
// cleanup call for its temp chunks. Unknown ids are a silent no-op.
func (c *Client) CancelUpload(uploadID string) {
	if c.registry.Cancel(uploadID) {
		go c.Cleanup(context.Background(), uploadID)
	} else {
		slog.Debug("no active session for id", slog.String("upload_id", uploadID))
	}
}
