package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"

	"github.com/waifuvault/WaifuFiles/internal/chunkstore"
	"github.com/waifuvault/WaifuFiles/internal/errvalues"
	"github.com/waifuvault/WaifuFiles/pkg/models"
)

// Vault is the slice of the provider client the upload service needs.
type Vault interface {
	UploadFile(ctx context.Context, data []byte, opts models.UploadOptions) (*models.StoredFile, error)
}

type UploadService struct {
	store *chunkstore.Store
	vault Vault

	maxChunkSize    int64
	maxAssembleSize int64
	hasBucketToken  bool
}

type UploadServiceConfig struct {
	Store *chunkstore.Store
	Vault Vault
	// MaxChunkSize bounds one chunk request body; 0 means the 5 MiB default.
	MaxChunkSize int64
	// MaxAssembleSize bounds the in-memory assembled buffer; 0 disables the check.
	MaxAssembleSize int64
	// HasBucketToken reports whether a default bucket token is configured.
	HasBucketToken bool
}

const DefaultChunkSize = 5 * 1024 * 1024

func NewUploadService(cfg UploadServiceConfig) *UploadService {
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = DefaultChunkSize
	}
	return &UploadService{
		store:           cfg.Store,
		vault:           cfg.Vault,
		maxChunkSize:    cfg.MaxChunkSize,
		maxAssembleSize: cfg.MaxAssembleSize,
		hasBucketToken:  cfg.HasBucketToken,
	}
}

// SaveChunk persists one uploaded chunk. A chunk over the configured limit
// is rejected before touching disk; an I/O failure reaps the whole session
// so a broken upload never leaves orphaned chunks behind.
func (us *UploadService) SaveChunk(ctx context.Context, uploadID string, index int, size int64, r io.Reader) error {
	if size > us.maxChunkSize {
		return errvalues.ErrChunkTooLarge
	}
	err := us.store.WriteChunk(ctx, uploadID, index, r)
	if err != nil {
		slog.Error("chunk write failed, cleaning up session",
			slog.String("upload_id", uploadID),
			slog.Int("chunk_index", index),
			slog.String("error", err.Error()))
		us.cleanupQuietly(uploadID)
		return err
	}
	return nil
}

// Finalize reassembles a session's chunks in index order, forwards the
// complete buffer to the vault and cleans the session up on every exit
// path. Failures are classified for the HTTP edge.
func (us *UploadService) Finalize(ctx context.Context, uploadID string, opts models.UploadOptions) (*models.StoredFile, error) {
	if !us.hasBucketToken && opts.BucketToken == "" {
		return nil, errvalues.ErrNoBucketToken
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if !us.store.Exists(uploadID) {
		return nil, errvalues.ErrSessionExpired
	}

	defer us.cleanupQuietly(uploadID)

	names, err := us.store.List(ctx, uploadID)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errvalues.ErrSessionExpired
		}
		return nil, err
	}
	if len(names) == 0 {
		return nil, errvalues.ErrNoChunks
	}
	if us.maxAssembleSize > 0 {
		var total int64
		for _, name := range names {
			content, statErr := us.store.ReadChunk(ctx, uploadID, name)
			if statErr != nil {
				return nil, statErr
			}
			total += int64(len(content))
			if total > us.maxAssembleSize {
				return nil, errvalues.ErrOutOfMemory
			}
		}
	}

	buf, err := us.store.Assemble(ctx, uploadID)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errvalues.ErrSessionExpired
		}
		return nil, err
	}
	slog.Debug("chunks combined",
		slog.String("upload_id", uploadID),
		slog.Int("chunks", len(names)),
		slog.Int("total_bytes", len(buf)))

	stored, err := us.vault.UploadFile(ctx, buf, opts)
	if err != nil {
		return nil, classifyVaultError(ctx, err)
	}
	slog.Debug("vault upload completed",
		slog.String("upload_id", uploadID),
		slog.String("url", stored.URL))
	return stored, nil
}

// Upload forwards a whole file to the vault in one call, bypassing the
// chunk store. Used by the non-chunked upload endpoint for small files.
func (us *UploadService) Upload(ctx context.Context, data []byte, opts models.UploadOptions) (*models.StoredFile, error) {
	if !us.hasBucketToken && opts.BucketToken == "" {
		return nil, errvalues.ErrNoBucketToken
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	stored, err := us.vault.UploadFile(ctx, data, opts)
	if err != nil {
		return nil, classifyVaultError(ctx, err)
	}
	return stored, nil
}

// Cleanup removes a session's temp chunks. It reports success or failure
// but never produces an error for the caller.
func (us *UploadService) Cleanup(ctx context.Context, uploadID string) bool {
	if !us.store.Exists(uploadID) {
		return false
	}
	if err := us.store.Remove(ctx, uploadID); err != nil {
		slog.Error("cleanup failed",
			slog.String("upload_id", uploadID),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

func (us *UploadService) cleanupQuietly(uploadID string) {
	if err := us.store.Remove(context.Background(), uploadID); err != nil {
		slog.Error("session cleanup failed",
			slog.String("upload_id", uploadID),
			slog.String("error", err.Error()))
	}
}

func classifyVaultError(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return errvalues.ErrCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errvalues.ErrVaultTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errvalues.ErrVaultTimeout
	}
	return err
}
