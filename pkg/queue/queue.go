// Package queue coordinates many upload sessions: it tracks each file's
// journey through a small state machine and runs batches under a
// concurrency cap.
package queue

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/waifuvault/WaifuFiles/pkg/models"
	"github.com/waifuvault/WaifuFiles/pkg/uploader"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusQueued     Status = "queued"
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Item is one file's queue entry.
type Item struct {
	ID       string
	Path     string
	Options  models.UploadOptions
	Status   Status
	Progress int
	Result   *models.StoredFile
	Error    string
}

type Queue struct {
	client        *uploader.Client
	maxConcurrent int
	restrictions  Restrictions

	mu    sync.Mutex
	items []*Item
	// batch grows on every "start all" and on clear; callbacks from an
	// older batch compare against it and are discarded as stale.
	batch atomic.Int64
}

const DefaultMaxConcurrent = 3

type Option func(*Queue)

func WithMaxConcurrent(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxConcurrent = n
		}
	}
}

func WithRestrictions(r Restrictions) Option {
	return func(q *Queue) {
		q.restrictions = r
	}
}

func New(client *uploader.Client, opts ...Option) *Queue {
	q := &Queue{
		client:        client,
		maxConcurrent: DefaultMaxConcurrent,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Add enqueues a file as pending. A file violating the known restrictions
// enters the queue already in error state, like any other terminal
// failure, so the caller sees it alongside its siblings.
func (q *Queue) Add(path string, opts models.UploadOptions) (Item, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Item{}, err
	}
	item := &Item{
		ID:      uuid.New().String(),
		Path:    path,
		Options: opts,
		Status:  StatusPending,
	}
	if msg := q.restrictions.Check(path, info.Size()); msg != "" {
		item.Status = StatusError
		item.Error = msg
	}
	q.mu.Lock()
	q.items = append(q.items, item)
	snapshot := *item
	q.mu.Unlock()
	return snapshot, nil
}

// Items returns a snapshot of the queue.
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, 0, len(q.items))
	for _, item := range q.items {
		out = append(out, *item)
	}
	return out
}

func (q *Queue) find(id string) *Item {
	for _, item := range q.items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

// Start runs a single pending (or errored, when retrying) item to
// completion.
func (q *Queue) Start(ctx context.Context, id string) {
	batch := q.batch.Load()
	q.mu.Lock()
	item := q.find(id)
	if item == nil || (item.Status != StatusPending && item.Status != StatusError) {
		q.mu.Unlock()
		return
	}
	item.Status = StatusUploading
	item.Progress = 0
	item.Error = ""
	q.mu.Unlock()
	q.runItem(ctx, item, batch)
}

// StartAll marks every pending item queued and promotes them through a
// pool of maxConcurrent workers, each repeatedly pulling the next queued
// id. At most maxConcurrent items are ever uploading/processing at once.
func (q *Queue) StartAll(ctx context.Context) {
	batch := q.batch.Add(1)

	q.mu.Lock()
	count := 0
	for _, item := range q.items {
		if item.Status == StatusPending {
			item.Status = StatusQueued
			count++
		}
	}
	q.mu.Unlock()
	if count == 0 {
		return
	}

	workers := q.maxConcurrent
	if count < workers {
		workers = count
	}
	g, gctx := errgroup.WithContext(ctx)
	for range workers {
		g.Go(func() error {
			for {
				if gctx.Err() != nil || q.batch.Load() != batch {
					return nil
				}
				item := q.claimNext()
				if item == nil {
					return nil
				}
				q.runItem(gctx, item, batch)
			}
		})
	}
	_ = g.Wait()
}

// claimNext atomically promotes the next queued item to uploading.
func (q *Queue) claimNext() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.items {
		if item.Status == StatusQueued {
			item.Status = StatusUploading
			item.Progress = 0
			return item
		}
	}
	return nil
}

func (q *Queue) runItem(ctx context.Context, item *Item, batch int64) {
	hooks := uploader.Hooks{
		OnProgress: func(progress int) {
			q.update(item.ID, batch, func(it *Item) {
				it.Progress = progress
			})
		},
		OnProcessing: func() {
			q.update(item.ID, batch, func(it *Item) {
				it.Status = StatusProcessing
			})
		},
	}
	stored, err := q.client.UploadFile(ctx, item.Path, item.Options, hooks, "")
	if err != nil {
		q.update(item.ID, batch, func(it *Item) {
			it.Status = StatusError
			it.Error = err.Error()
		})
		return
	}
	q.update(item.ID, batch, func(it *Item) {
		it.Status = StatusCompleted
		it.Progress = 100
		it.Result = stored
	})
}

// update applies a mutation unless the callback comes from a superseded
// batch; stale completions and progress ticks are dropped.
func (q *Queue) update(id string, batch int64, fn func(*Item)) {
	if q.batch.Load() != batch {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if item := q.find(id); item != nil {
		fn(item)
	}
}

// Reset puts an errored item back to pending, its pre-flight editable
// state.
func (q *Queue) Reset(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if item := q.find(id); item != nil && item.Status == StatusError {
		item.Status = StatusPending
		item.Progress = 0
		item.Error = ""
		item.Result = nil
	}
}

// Remove drops an item from the queue.
func (q *Queue) Remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, item := range q.items {
		if item.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}

// Clear empties the queue and bumps the batch counter so every in-flight
// callback from the old batch lands on the floor.
func (q *Queue) Clear() {
	q.batch.Add(1)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}
