package errvalues

import "errors"

var (
	ErrSessionExpired  = errors.New("upload chunks not found - upload may have expired")
	ErrNoChunks        = errors.New("no chunks found for upload")
	ErrChunkTooLarge   = errors.New("chunk too large")
	ErrCancelled       = errors.New("upload cancelled")
	ErrInvalidExpiry   = errors.New("invalid expires format, use format like '1h', '30m' or '2d'")
	ErrVaultTimeout    = errors.New("vault upload timed out")
	ErrOutOfMemory     = errors.New("server out of memory - file too large")
	ErrNoBucketToken   = errors.New("bucket token not configured")
	ErrFinalizeRetries = errors.New("finalization failed after all retry attempts")
)
