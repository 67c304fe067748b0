package repository

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"reader/internal/apperr"
	"reader/internal/cache"
	"reader/internal/models"
)

// validateShelvable checks that book can be the subject of a shelf write
func validateShelvable(book models.Book) error {
	if book.WorkID != "" {
		return nil
	}
	if book.EditionID != "" {
		return apperr.Validation("This edition is not linked to a work, and only works can be placed on a shelf")
	}
	return apperr.Validation("Book has no work ID")
}

// removeWork drops every entry for workID and reports how many were dropped
func removeWork(books []models.Book, workID string) ([]models.Book, int) {
	kept := make([]models.Book, 0, len(books))
	for _, b := range books {
		if b.WorkID != workID {
			kept = append(kept, b)
		}
	}
	return kept, len(books) - len(kept)
}

// MoveBookToShelf puts book on targetKey.
//
// The remote write happens first and decides the result. The cache patch
// afterwards is best-effort: the book is removed from every cached shelf,
// each shelf's count drops by the entries actually removed, and the book is
// appended to the target exactly once. Patch failures are logged only.
func (r *Repository) MoveBookToShelf(ctx context.Context, book models.Book, targetKey string) error {
	if err := validateShelvable(book); err != nil {
		return err
	}
	if targetKey == "" {
		return apperr.Validation("Target shelf must not be empty")
	}
	if _, ok := models.LookupShelf(targetKey); !ok {
		return apperr.Validation("Unknown shelf: " + targetKey)
	}

	if err := r.remote.MoveBook(ctx, book.WorkID, book.EditionID, targetKey); err != nil {
		return r.fail("move book", err)
	}
	r.writes.Add(1)

	if err := r.patchMove(ctx, book, targetKey); err != nil {
		r.logger.Warn("Book moved remotely but local cache patch failed",
			zap.String("work", book.WorkID),
			zap.String("target", targetKey),
			zap.Error(err))
	}
	return nil
}

func (r *Repository) patchMove(ctx context.Context, book models.Book, targetKey string) error {
	err := r.shelves.Update(ctx, func(shelves map[string]models.Shelf) error {
		for key, shelf := range shelves {
			kept, removed := removeWork(shelf.Books, book.WorkID)
			if removed == 0 {
				continue
			}
			shelf.Books = kept
			shelf.TotalCount = max(shelf.TotalCount-removed, 0)
			shelves[key] = shelf
		}

		target, ok := shelves[targetKey]
		if !ok {
			r.logger.Debug("Target shelf not cached, skipping append", zap.String("target", targetKey))
			return nil
		}
		if book.AddedDate == nil {
			added := r.now()
			book.AddedDate = &added
		}
		target.Books = append(target.Books, book)
		target.TotalCount++
		shelves[targetKey] = sortShelf(target)
		return nil
	})
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	return err
}

// RemoveBookFromShelf takes book off shelfKey remotely, then removes it from
// that shelf's cached copy only. Patch failures are logged only.
func (r *Repository) RemoveBookFromShelf(ctx context.Context, book models.Book, shelfKey string) error {
	if err := validateShelvable(book); err != nil {
		return err
	}
	if shelfKey == "" {
		return apperr.Validation("Shelf key must not be empty")
	}

	if err := r.remote.RemoveBook(ctx, book.WorkID); err != nil {
		return r.fail("remove book", err)
	}
	r.writes.Add(1)

	err := r.shelves.Update(ctx, func(shelves map[string]models.Shelf) error {
		shelf, ok := shelves[shelfKey]
		if !ok {
			return nil
		}
		kept, removed := removeWork(shelf.Books, book.WorkID)
		shelf.Books = kept
		shelf.TotalCount = max(shelf.TotalCount-removed, 0)
		shelves[shelfKey] = shelf
		return nil
	})
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		r.logger.Warn("Book removed remotely but local cache patch failed",
			zap.String("work", book.WorkID),
			zap.String("shelf", shelfKey),
			zap.Error(err))
	}
	return nil
}

// UpdateShelfSort persists the sort preference and re-sorts the cached shelf.
// A shelf that was never cached is a CacheFailure.
func (r *Repository) UpdateShelfSort(ctx context.Context, key string, order models.SortKey, ascending bool) (models.Shelf, error) {
	if key == "" {
		return models.Shelf{}, apperr.Validation("Shelf key must not be empty")
	}
	if _, err := models.ParseSortKey(string(order)); err != nil {
		return models.Shelf{}, apperr.Validation(fmt.Sprintf("Unknown sort order: %s", order))
	}

	if err := r.prefs.SetString(ctx, sortOrderKey(key), string(order)); err != nil {
		return models.Shelf{}, apperr.Cache("Failed to save sort order", err)
	}
	if err := r.prefs.SetBool(ctx, sortAscKey(key), ascending); err != nil {
		return models.Shelf{}, apperr.Cache("Failed to save sort direction", err)
	}

	return r.updateCachedShelf(ctx, key, func(shelf models.Shelf) models.Shelf {
		shelf.SortKey = order
		shelf.SortAscending = ascending
		return sortShelf(shelf)
	})
}

// UpdateShelfVisibility shows or hides a cached shelf
func (r *Repository) UpdateShelfVisibility(ctx context.Context, key string, visible bool) (models.Shelf, error) {
	if key == "" {
		return models.Shelf{}, apperr.Validation("Shelf key must not be empty")
	}

	return r.updateCachedShelf(ctx, key, func(shelf models.Shelf) models.Shelf {
		shelf.IsVisible = visible
		return shelf
	})
}

func (r *Repository) updateCachedShelf(ctx context.Context, key string, mutate func(models.Shelf) models.Shelf) (models.Shelf, error) {
	var updated models.Shelf
	err := r.shelves.Update(ctx, func(shelves map[string]models.Shelf) error {
		shelf, ok := shelves[key]
		if !ok {
			return cache.ErrCacheMiss
		}
		updated = mutate(shelf)
		shelves[key] = updated
		return nil
	})
	if errors.Is(err, cache.ErrCacheMiss) {
		return models.Shelf{}, r.fail("update shelf", apperr.Cache(fmt.Sprintf("Shelf %s has not been loaded yet", key), err))
	}
	if err != nil {
		return models.Shelf{}, r.fail("update shelf", err)
	}
	return updated, nil
}
