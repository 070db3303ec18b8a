// Package restrictions proxies the vault's upload policy (max file size,
// banned MIME types) with a short-lived cache so the provider is not hit
// on every request.
package restrictions

import (
	"context"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/waifuvault/WaifuFiles/pkg/models"
)

const (
	cacheKey = "restrictions"
	// freshFor is how long a fetched policy is served without revalidation;
	// staleFor is how long an expired copy may still be served when the
	// upstream fetch fails. Mirrors s-maxage=3600, stale-while-revalidate=86400.
	freshFor = time.Hour
	staleFor = 24 * time.Hour
)

// DefaultMaxFileSize is served when the provider is unreachable and no
// cached policy survives.
const DefaultMaxFileSize = 1_048_576_000 // 1 GB

const defaultBannedMimeTypes = "application/x-dosexec,application/x-executable," +
	"application/x-hdf5,application/x-java-archive,application/vnd.rar"

type Fetcher interface {
	Restrictions(ctx context.Context) ([]models.Restriction, error)
}

type Service struct {
	vault Fetcher
	cache *gocache.Cache
}

type entry struct {
	restrictions []models.Restriction
	fetchedAt    time.Time
}

func New(vault Fetcher) *Service {
	return &Service{
		vault: vault,
		cache: gocache.New(staleFor, 10*time.Minute),
	}
}

// Get returns the current restriction policy: a fresh cached copy when one
// exists, otherwise a live fetch, falling back to a stale copy and finally
// to hardcoded defaults.
func (s *Service) Get(ctx context.Context) []models.Restriction {
	cached, ok := s.cache.Get(cacheKey)
	if ok {
		e := cached.(entry)
		if time.Since(e.fetchedAt) < freshFor {
			return e.restrictions
		}
	}

	fetched, err := s.vault.Restrictions(ctx)
	if err == nil {
		s.cache.Set(cacheKey, entry{restrictions: fetched, fetchedAt: time.Now()}, staleFor)
		return fetched
	}
	slog.Error("failed to fetch restrictions", slog.String("error", err.Error()))

	if ok {
		return cached.(entry).restrictions
	}
	return Defaults()
}

func Defaults() []models.Restriction {
	return []models.Restriction{
		{Type: models.RestrictionMaxFileSize, Value: DefaultMaxFileSize},
		{Type: models.RestrictionBannedMimeType, Value: defaultBannedMimeTypes},
	}
}
