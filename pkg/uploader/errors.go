package uploader

import (
	"fmt"

	"github.com/waifuvault/WaifuFiles/internal/errvalues"
)

// ErrCancelled is returned when the session's cancellation signal fired,
// whether from the caller's context or an external cancel-by-id.
var ErrCancelled = errvalues.ErrCancelled

// ErrFinalizeExhausted is returned when every finalize attempt timed out.
var ErrFinalizeExhausted = errvalues.ErrFinalizeRetries

// TransportError is a non-2xx answer to a single chunk request.
type TransportError struct {
	ChunkIndex int
	Status     int
	Body       string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("chunk %d: HTTP %d: %s", e.ChunkIndex, e.Status, e.Body)
}

// ChunkTimeoutError means one chunk request exceeded its per-attempt
// deadline. Retried like any other transport failure.
type ChunkTimeoutError struct {
	ChunkIndex int
}

func (e *ChunkTimeoutError) Error() string {
	return fmt.Sprintf("chunk %d timed out", e.ChunkIndex)
}

// FinalizeError is a non-2xx answer to the finalize call. Not retried:
// only timeouts grow the window and try again.
type FinalizeError struct {
	Status int
	Body   string
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("finalize: HTTP %d: %s", e.Status, e.Body)
}
