package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/movie-ticket-reservation/internal/config"
	"github.com/iliyamo/movie-ticket-reservation/internal/logging"
	"github.com/iliyamo/movie-ticket-reservation/internal/metrics"
	"github.com/iliyamo/movie-ticket-reservation/internal/model"
)

// MovieStore is the persistent movie catalog.
type MovieStore interface {
	Create(ctx context.Context, m *model.Movie) error
	Update(ctx context.Context, m *model.Movie) error
	Delete(ctx context.Context, id uint64) error
	GetByID(ctx context.Context, id uint64) (*model.Movie, error)
	List(ctx context.Context, genre string) ([]model.Movie, error)
}

// MovieCatalog is a read-through Redis cache in front of a MovieStore.
// Entries live under movie:{id}, movies and movies:genre:{genre}; every
// write drops the affected entries.  With a nil client or caching disabled
// all calls go straight to the store.  Redis errors are logged and never
// fail a request.
type MovieCatalog struct {
	store MovieStore
	rdb   *redis.Client
	cfg   config.CacheConfig
}

// NewMovieCatalog wraps store.  rdb may be nil.
func NewMovieCatalog(store MovieStore, rdb *redis.Client, cfg config.CacheConfig) *MovieCatalog {
	if !cfg.Enabled {
		rdb = nil
	}
	return &MovieCatalog{store: store, rdb: rdb, cfg: cfg}
}

func (c *MovieCatalog) key(parts ...string) string {
	return c.cfg.Prefix + strings.Join(parts, ":")
}

func (c *MovieCatalog) movieKey(id uint64) string { return c.key("movie", strconv.FormatUint(id, 10)) }

func (c *MovieCatalog) listKey(genre string) string {
	if g := strings.ToLower(strings.TrimSpace(genre)); g != "" {
		return c.key("movies", "genre", g)
	}
	return c.key("movies")
}

// Get returns one movie.
func (c *MovieCatalog) Get(ctx context.Context, id uint64) (*model.Movie, error) {
	var m model.Movie
	if c.readCache(ctx, c.movieKey(id), &m) {
		return &m, nil
	}
	got, err := c.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.writeCache(ctx, c.movieKey(id), got)
	return got, nil
}

// List returns all movies, or those of genre.
func (c *MovieCatalog) List(ctx context.Context, genre string) ([]model.Movie, error) {
	key := c.listKey(genre)
	var movies []model.Movie
	if c.readCache(ctx, key, &movies) {
		return movies, nil
	}
	movies, err := c.store.List(ctx, genre)
	if err != nil {
		return nil, err
	}
	c.writeCache(ctx, key, movies)
	return movies, nil
}

// Create adds a movie and drops the cached lists.
func (c *MovieCatalog) Create(ctx context.Context, m *model.Movie) error {
	if err := c.store.Create(ctx, m); err != nil {
		return err
	}
	c.invalidate(ctx, 0)
	return nil
}

// Update changes a movie and drops its entry and the cached lists.
func (c *MovieCatalog) Update(ctx context.Context, m *model.Movie) error {
	if err := c.store.Update(ctx, m); err != nil {
		return err
	}
	c.invalidate(ctx, m.ID)
	return nil
}

// Delete removes a movie and drops its entry and the cached lists.
func (c *MovieCatalog) Delete(ctx context.Context, id uint64) error {
	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

func (c *MovieCatalog) readCache(ctx context.Context, key string, dst any) bool {
	if c.rdb == nil {
		return false
	}
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		metrics.CatalogCacheMisses.Inc()
		return false
	}
	if err := json.Unmarshal(b, dst); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache entry corrupt")
		metrics.CatalogCacheMisses.Inc()
		return false
	}
	metrics.CatalogCacheHits.Inc()
	return true
}

func (c *MovieCatalog) writeCache(ctx context.Context, key string, v any) {
	if c.rdb == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, b, c.cfg.TTL).Err(); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// invalidate drops movie:{id} (when id is non-zero) and every list entry.
func (c *MovieCatalog) invalidate(ctx context.Context, id uint64) {
	if c.rdb == nil {
		return
	}
	keys := []string{c.key("movies")}
	if id != 0 {
		keys = append(keys, c.movieKey(id))
	}
	iter := c.rdb.Scan(ctx, 0, c.key("movies", "genre", "*"), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("cache scan failed")
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Strs("keys", keys).Msg("cache invalidation failed")
	}
}
