package repository

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"reader/internal/apperr"
	"reader/internal/cache"
	"reader/internal/models"
	"reader/internal/storage"
)

// GetBookLists returns the user's curated lists straight from the remote
func (r *Repository) GetBookLists(ctx context.Context) ([]models.BookList, error) {
	lists, err := r.remote.FetchBookLists(ctx)
	if err != nil {
		return nil, r.fail("get book lists", err)
	}
	return lists, nil
}

// GetListSeeds returns the resolved books and authors of a list.
//
// Unlike shelves, a stale cached snapshot is refetched inline. Books and
// authors are resolved concurrently; if either half fails nothing is cached
// and the call fails.
func (r *Repository) GetListSeeds(ctx context.Context, listURL string, forceRefresh bool) (models.ListSnapshot, error) {
	if listURL == "" {
		return models.ListSnapshot{}, apperr.Validation("List URL must not be empty")
	}

	if !forceRefresh {
		cached, err := r.lists.Read(ctx, listURL)
		switch {
		case err == nil && !cached.IsStale(r.now(), r.listStaleAfter):
			return cached, nil
		case err == nil:
			r.logger.Debug("Cached list is stale, refetching", zap.String("list", listURL))
		case !errors.Is(err, cache.ErrCacheMiss):
			r.logger.Warn("List cache unreadable, refetching", zap.String("list", listURL), zap.Error(err))
		}
	}

	seeds, err := r.remote.FetchListSeeds(ctx, listURL)
	if err != nil {
		return models.ListSnapshot{}, r.fail("get list seeds", err)
	}

	var bookSeeds, authorSeeds []models.Seed
	for _, seed := range seeds {
		switch {
		case seed.IsBookLike():
			bookSeeds = append(bookSeeds, seed)
		case seed.Type == models.SeedAuthor:
			authorSeeds = append(authorSeeds, seed)
		}
	}

	var (
		books   = []models.Book{}
		authors = []models.Author{}
	)
	g, gctx := errgroup.WithContext(ctx)
	if len(bookSeeds) > 0 {
		g.Go(func() error {
			resolved, err := r.remote.FetchBooksFromSeeds(gctx, bookSeeds)
			if err != nil {
				return err
			}
			books = resolved
			return nil
		})
	}
	if len(authorSeeds) > 0 {
		g.Go(func() error {
			resolved, err := r.remote.FetchAuthorsFromSeeds(gctx, authorSeeds)
			if err != nil {
				return err
			}
			authors = resolved
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.ListSnapshot{}, r.fail("resolve list seeds", err)
	}

	synced := r.now()
	snap := models.ListSnapshot{Books: books, Authors: authors, LastSynced: &synced}
	if err := r.lists.Write(ctx, listURL, snap); err != nil {
		r.logger.Error("Failed to cache list", zap.String("list", listURL), zap.Error(err))
	}
	return snap, nil
}

// GetUserLoans returns active loans keyed by IA identifier, served from memory
// for the loan TTL
func (r *Repository) GetUserLoans(ctx context.Context, forceRefresh bool) (map[string]models.Loan, error) {
	if !forceRefresh {
		if loans, ok := r.loans.Get(); ok {
			return loans, nil
		}
	}

	loans, err := r.remote.FetchUserLoans(ctx)
	if err != nil {
		return nil, r.fail("get loans", err)
	}
	r.loans.Set(loans)
	return loans, nil
}

// SelectedList returns the list URL the user last opened, or "" if none
func (r *Repository) SelectedList(ctx context.Context) (string, error) {
	url, err := r.prefs.GetString(ctx, prefSelectedList)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", apperr.Cache("Failed to read selected list", err)
	}
	return url, nil
}

// SelectList remembers listURL; an empty URL clears the selection
func (r *Repository) SelectList(ctx context.Context, listURL string) error {
	var err error
	if listURL == "" {
		err = r.prefs.Remove(ctx, prefSelectedList)
	} else {
		err = r.prefs.SetString(ctx, prefSelectedList, listURL)
	}
	if err != nil {
		return apperr.Cache("Failed to save selected list", err)
	}
	return nil
}
