package repository

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"reader/internal/apperr"
	"reader/internal/cache"
	"reader/internal/models"
	"reader/internal/sorting"
)

func sortShelf(shelf models.Shelf) models.Shelf {
	shelf = sorting.Apply(shelf)
	shelf.Normalize()
	return shelf
}

// ordered returns the shelves sorted by DisplayOrder, then key
func ordered(shelves map[string]models.Shelf) []models.Shelf {
	out := make([]models.Shelf, 0, len(shelves))
	for _, s := range shelves {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b models.Shelf) int {
		if c := cmp.Compare(a.DisplayOrder, b.DisplayOrder); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return out
}

// IsShelfStale reports whether shelf is due for a refresh. The repository
// never refreshes shelves on its own; callers decide when to.
func (r *Repository) IsShelfStale(shelf models.Shelf) bool {
	return shelf.IsStale(r.now(), r.shelfStaleAfter)
}

// GetShelves returns all configured shelves.
//
// Without forceRefresh a cache hit is returned as-is, even when stale; only a
// cache miss goes to the network. With forceRefresh the network is tried
// first and the cache is the fallback when it fails.
func (r *Repository) GetShelves(ctx context.Context, forceRefresh bool) ([]models.Shelf, error) {
	if !forceRefresh {
		cached, err := r.shelves.ReadAll(ctx)
		if err == nil {
			return r.presentCached(ctx, cached), nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.logger.Warn("Shelf cache unreadable, fetching from remote", zap.Error(err))
		}

		shelves, err := r.syncShelves(ctx)
		if err != nil {
			return nil, r.fail("get shelves", err)
		}
		return shelves, nil
	}

	shelves, err := r.syncShelves(ctx)
	if err == nil {
		return shelves, nil
	}

	cached, cacheErr := r.shelves.ReadAll(ctx)
	if cacheErr != nil {
		return nil, r.fail("refresh shelves", err)
	}
	r.logger.Warn("Shelf refresh failed, serving cached shelves",
		zap.Int("shelves", len(cached)),
		zap.Error(err))
	return r.presentCached(ctx, cached), nil
}

// GetVisibleShelves is GetShelves filtered to shelves the user has not hidden
func (r *Repository) GetVisibleShelves(ctx context.Context, forceRefresh bool) ([]models.Shelf, error) {
	shelves, err := r.GetShelves(ctx, forceRefresh)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(shelves, func(s models.Shelf) bool { return !s.IsVisible }), nil
}

// RefreshShelves forces a remote fetch of every configured shelf
func (r *Repository) RefreshShelves(ctx context.Context) ([]models.Shelf, error) {
	return r.GetShelves(ctx, true)
}

func (r *Repository) presentCached(ctx context.Context, cached map[string]models.Shelf) []models.Shelf {
	for key, shelf := range cached {
		cached[key] = r.applySortPrefs(ctx, shelf)
	}
	return ordered(cached)
}

// syncShelves fetches the configured shelves, merges local presentation
// state from the previous snapshot and persists the result. A failed cache
// write is logged; the fetched shelves are still returned.
func (r *Repository) syncShelves(ctx context.Context) ([]models.Shelf, error) {
	keys := r.ConfiguredShelfKeys(ctx)
	writes := r.writes.Load()
	fetched, err := r.remote.FetchShelves(ctx, keys)
	if err != nil {
		return nil, err
	}

	synced := r.now()
	var result map[string]models.Shelf
	err = r.shelves.Replace(ctx, func(current map[string]models.Shelf) map[string]models.Shelf {
		overtaken := r.writes.Load() != writes
		result = make(map[string]models.Shelf, len(fetched))
		for _, shelf := range fetched {
			cached, ok := current[shelf.Key]
			result[shelf.Key] = r.reconcile(ctx, shelf, cached, ok, overtaken, synced)
		}
		return result
	})
	if err != nil {
		r.logger.Error("Failed to cache fetched shelves", zap.Error(err))
	}

	r.logger.Info("Shelves synced", zap.Int("shelves", len(result)))
	return ordered(result), nil
}

// reconcile carries local-only fields over from the cached copy, applies
// the persisted sort preference and stamps the sync time. When overtaken, a
// move or remove finished after the fetch started, so the cached books
// (already patched) are newer than the fetched ones and are kept unstamped.
func (r *Repository) reconcile(ctx context.Context, fetched, cached models.Shelf, hadCache, overtaken bool, synced time.Time) models.Shelf {
	if hadCache {
		fetched.IsVisible = cached.IsVisible
		fetched.DisplayOrder = cached.DisplayOrder
		fetched.SortKey = cached.SortKey
		fetched.SortAscending = cached.SortAscending
		if overtaken {
			fetched.Books = cached.Books
			fetched.TotalCount = cached.TotalCount
			fetched.LastSynced = cached.LastSynced
			return r.applySortPrefs(ctx, fetched)
		}
	}
	fetched = r.applySortPrefs(ctx, fetched)
	fetched.LastSynced = &synced
	return fetched
}

// GetShelf returns one shelf with the same cache policy as GetShelves
func (r *Repository) GetShelf(ctx context.Context, key string, forceRefresh bool) (models.Shelf, error) {
	if key == "" {
		return models.Shelf{}, apperr.Validation("Shelf key must not be empty")
	}

	if !forceRefresh {
		cached, err := r.shelves.ReadOne(ctx, key)
		if err == nil {
			return r.applySortPrefs(ctx, cached), nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.logger.Warn("Shelf cache unreadable, fetching from remote", zap.String("shelf", key), zap.Error(err))
		}

		shelf, err := r.syncShelf(ctx, key)
		if err != nil {
			return models.Shelf{}, r.fail("get shelf", err)
		}
		return shelf, nil
	}

	shelf, err := r.syncShelf(ctx, key)
	if err == nil {
		return shelf, nil
	}

	cached, cacheErr := r.shelves.ReadOne(ctx, key)
	if cacheErr != nil {
		return models.Shelf{}, r.fail("refresh shelf", err)
	}
	r.logger.Warn("Shelf refresh failed, serving cached shelf", zap.String("shelf", key), zap.Error(err))
	return r.applySortPrefs(ctx, cached), nil
}

func (r *Repository) syncShelf(ctx context.Context, key string) (models.Shelf, error) {
	writes := r.writes.Load()
	fetched, err := r.remote.FetchSingleShelf(ctx, key)
	if err != nil {
		return models.Shelf{}, err
	}

	synced := r.now()
	var shelf models.Shelf
	err = r.shelves.Replace(ctx, func(current map[string]models.Shelf) map[string]models.Shelf {
		cached, ok := current[key]
		shelf = r.reconcile(ctx, fetched, cached, ok, r.writes.Load() != writes, synced)
		current[key] = shelf
		return current
	})
	if err != nil {
		r.logger.Error("Failed to cache fetched shelf", zap.String("shelf", key), zap.Error(err))
	}
	return shelf, nil
}

// FindCachedBook looks workID up in the cached shelves. It returns the book
// and the key of the first shelf (by display order) holding it. The network
// is never consulted.
func (r *Repository) FindCachedBook(ctx context.Context, workID string) (models.Book, string, bool) {
	cached, err := r.shelves.ReadAll(ctx)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.logger.Warn("Shelf cache unreadable", zap.Error(err))
		}
		return models.Book{}, "", false
	}
	for _, shelf := range ordered(cached) {
		for _, b := range shelf.Books {
			if b.WorkID == workID {
				return b, shelf.Key, true
			}
		}
	}
	return models.Book{}, "", false
}
