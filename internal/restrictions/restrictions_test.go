package restrictions_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/waifuvault/WaifuFiles/internal/restrictions"
	"github.com/waifuvault/WaifuFiles/pkg/models"
)

type fakeFetcher struct {
	restrictions []models.Restriction
	err          error
	calls        int
}

func (f *fakeFetcher) Restrictions(ctx context.Context) ([]models.Restriction, error) {
	f.calls++
	return f.restrictions, f.err
}

func TestGet(t *testing.T) {
	t.Run("serves fetched policy and caches it", func(t *testing.T) {
		fetcher := &fakeFetcher{restrictions: []models.Restriction{
			{Type: models.RestrictionMaxFileSize, Value: 42},
		}}
		svc := restrictions.New(fetcher)
		got := svc.Get(context.Background())
		assert.Equal(t, fetcher.restrictions, got)
		got = svc.Get(context.Background())
		assert.Equal(t, fetcher.restrictions, got)
		assert.Equal(t, 1, fetcher.calls, "second call should hit the cache")
	})
	t.Run("falls back to defaults on upstream failure", func(t *testing.T) {
		fetcher := &fakeFetcher{err: errors.New("upstream down")}
		svc := restrictions.New(fetcher)
		got := svc.Get(context.Background())
		assert.Equal(t, restrictions.Defaults(), got)
	})
}

func TestDefaults(t *testing.T) {
	defaults := restrictions.Defaults()
	assert.Len(t, defaults, 2)
	assert.Equal(t, models.RestrictionMaxFileSize, defaults[0].Type)
	assert.EqualValues(t, restrictions.DefaultMaxFileSize, defaults[0].Value)
	assert.Equal(t, models.RestrictionBannedMimeType, defaults[1].Type)
}
