// Package repository implements the shelf sync policy: it decides per call
// whether to serve the local cache or the Open Library API, patches the cache
// after remote writes, and converts every collaborator error into an
// *apperr.Failure.
package repository

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"reader/internal/apperr"
	"reader/internal/cache"
	"reader/internal/models"
	"reader/internal/storage"
)

// Preference keys
const (
	prefSortOrderPrefix = "sortOrder_"
	prefShelfKeys       = "shelf_keys"
	prefSelectedList    = "selected_list_url"
)

func sortOrderKey(shelfKey string) string { return prefSortOrderPrefix + shelfKey }
func sortAscKey(shelfKey string) string   { return prefSortOrderPrefix + shelfKey + "_asc" }

// Remote is the Open Library capability the repository depends on
type Remote interface {
	FetchShelves(ctx context.Context, keys []string) ([]models.Shelf, error)
	FetchSingleShelf(ctx context.Context, key string) (models.Shelf, error)
	MoveBook(ctx context.Context, workID, editionID, targetKey string) error
	RemoveBook(ctx context.Context, workID string) error
	FetchBookLists(ctx context.Context) ([]models.BookList, error)
	FetchUserLoans(ctx context.Context) (map[string]models.Loan, error)
	FetchListSeeds(ctx context.Context, listURL string) ([]models.Seed, error)
	FetchBooksFromSeeds(ctx context.Context, seeds []models.Seed) ([]models.Book, error)
	FetchAuthorsFromSeeds(ctx context.Context, seeds []models.Seed) ([]models.Author, error)
}

// Options tunes staleness windows and the clock; zero values use the defaults
type Options struct {
	ShelfStaleAfter time.Duration
	ListStaleAfter  time.Duration
	LoanTTL         time.Duration
	Now             func() time.Time
}

// Repository is the single entry point front-ends use for shelves, lists and loans
type Repository struct {
	remote  Remote
	shelves *cache.ShelfStore
	lists   *cache.ListStore
	loans   *cache.LoanCache
	prefs   storage.Preferences
	logger  *zap.Logger

	now             func() time.Time
	shelfStaleAfter time.Duration
	listStaleAfter  time.Duration

	// writes counts completed remote moves and removes
	writes atomic.Uint64
}

// New creates a repository. The loan cache is created here and owned by
// the returned instance.
func New(remote Remote, shelves *cache.ShelfStore, lists *cache.ListStore, prefs storage.Preferences, logger *zap.Logger, opts Options) *Repository {
	if opts.ShelfStaleAfter <= 0 {
		opts.ShelfStaleAfter = models.DefaultStaleAfter
	}
	if opts.ListStaleAfter <= 0 {
		opts.ListStaleAfter = models.DefaultStaleAfter
	}
	if opts.LoanTTL <= 0 {
		opts.LoanTTL = models.DefaultLoanTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Repository{
		remote:          remote,
		shelves:         shelves,
		lists:           lists,
		loans:           cache.NewLoanCache(opts.LoanTTL, opts.Now),
		prefs:           prefs,
		logger:          logger,
		now:             opts.Now,
		shelfStaleAfter: opts.ShelfStaleAfter,
		listStaleAfter:  opts.ListStaleAfter,
	}
}

// fail converts err into a Failure and logs it
func (r *Repository) fail(op string, err error) error {
	f := apperr.Classify(err)
	r.logger.Warn("Repository operation failed",
		zap.String("op", op),
		zap.Stringer("kind", f.Kind),
		zap.Error(err))
	return f
}

// # Preferences

// ConfiguredShelfKeys returns the shelves the user syncs, defaulting to
// every reading-log shelf
func (r *Repository) ConfiguredShelfKeys(ctx context.Context) []string {
	keys, err := r.prefs.GetStringList(ctx, prefShelfKeys)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		r.logger.Warn("Failed to read configured shelves, using defaults", zap.Error(err))
	}
	if err != nil || len(keys) == 0 {
		return models.DefaultShelfKeys()
	}
	return keys
}

// SetConfiguredShelfKeys stores which shelves are synced, in order
func (r *Repository) SetConfiguredShelfKeys(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return apperr.Validation("At least one shelf must be selected")
	}
	seen := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, ok := models.LookupShelf(key); !ok {
			return apperr.Validation("Unknown shelf: " + key)
		}
		if !slices.Contains(seen, key) {
			seen = append(seen, key)
		}
	}

	if err := r.prefs.SetStringList(ctx, prefShelfKeys, seen); err != nil {
		return apperr.Cache("Failed to save shelf selection", err)
	}
	return nil
}

// applySortPrefs overrides the shelf's sort fields with the persisted
// preference, if any, and re-sorts its books
func (r *Repository) applySortPrefs(ctx context.Context, shelf models.Shelf) models.Shelf {
	order, err := r.prefs.GetString(ctx, sortOrderKey(shelf.Key))
	switch {
	case err == nil:
		if key, perr := models.ParseSortKey(order); perr == nil {
			shelf.SortKey = key
		} else {
			r.logger.Warn("Ignoring unknown persisted sort order",
				zap.String("shelf", shelf.Key), zap.String("order", order))
		}
	case !errors.Is(err, storage.ErrNotFound):
		r.logger.Warn("Failed to read sort order", zap.String("shelf", shelf.Key), zap.Error(err))
	}

	asc, err := r.prefs.GetBool(ctx, sortAscKey(shelf.Key))
	switch {
	case err == nil:
		shelf.SortAscending = asc
	case !errors.Is(err, storage.ErrNotFound):
		r.logger.Warn("Failed to read sort direction", zap.String("shelf", shelf.Key), zap.Error(err))
	}

	return sortShelf(shelf)
}

// # Cache lifecycle

// ClearCache drops every cached shelf, list and loan, e.g. on logout.
// Preferences are kept.
func (r *Repository) ClearCache(ctx context.Context) error {
	r.loans.Clear()

	var errs []error
	if err := r.shelves.Clear(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := r.lists.Clear(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		r.logger.Error("Failed to clear cache", zap.Error(err))
		return apperr.Cache("Failed to clear local cache", err)
	}

	r.logger.Info("Local cache cleared")
	return nil
}
