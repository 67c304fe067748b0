package repository

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"reader/internal/cache"
	"reader/internal/models"
	"reader/internal/storage"
	"reader/internal/storage/stubs"

	"go.uber.org/zap"
)

var errOffline = &netErr{}

// netErr is a minimal net.Error so failures classify as NetworkFailure
type netErr struct{}

func (*netErr) Error() string   { return "dial tcp: network is unreachable" }
func (*netErr) Timeout() bool   { return false }
func (*netErr) Temporary() bool { return true }

// fakeRemote is an in-memory Remote with per-method failure injection
type fakeRemote struct {
	mu sync.Mutex

	shelves map[string]models.Shelf
	lists   []models.BookList
	seeds   map[string][]models.Seed
	books   []models.Book
	authors []models.Author
	loans   map[string]models.Loan

	fetchErr   error
	moveErr    error
	removeErr  error
	seedsErr   error
	booksErr   error
	authorsErr error
	loansErr   error

	// afterFetch runs once FetchShelves has its response, before returning
	afterFetch func()

	calls map[string]int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		shelves: make(map[string]models.Shelf),
		seeds:   make(map[string][]models.Seed),
		loans:   make(map[string]models.Loan),
		calls:   make(map[string]int),
	}
}

func (f *fakeRemote) called(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeRemote) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeRemote) FetchShelves(ctx context.Context, keys []string) ([]models.Shelf, error) {
	f.record("FetchShelves")
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]models.Shelf, 0, len(keys))
	for i, key := range keys {
		shelf, err := f.FetchSingleShelf(ctx, key)
		if err != nil {
			return nil, err
		}
		shelf.DisplayOrder = i + 1
		out = append(out, shelf)
	}
	if f.afterFetch != nil {
		f.afterFetch()
	}
	return out, nil
}

func (f *fakeRemote) FetchSingleShelf(ctx context.Context, key string) (models.Shelf, error) {
	f.record("FetchSingleShelf")
	if f.fetchErr != nil {
		return models.Shelf{}, f.fetchErr
	}
	if shelf, ok := f.shelves[key]; ok {
		shelf.Books = slices.Clone(shelf.Books)
		return shelf, nil
	}
	if _, ok := models.LookupShelf(key); !ok {
		return models.Shelf{}, errors.New("unknown shelf")
	}
	return shelfWith(key, 0), nil
}

func (f *fakeRemote) MoveBook(ctx context.Context, workID, editionID, targetKey string) error {
	f.record("MoveBook")
	return f.moveErr
}

func (f *fakeRemote) RemoveBook(ctx context.Context, workID string) error {
	f.record("RemoveBook")
	return f.removeErr
}

func (f *fakeRemote) FetchBookLists(ctx context.Context) ([]models.BookList, error) {
	f.record("FetchBookLists")
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.lists, nil
}

func (f *fakeRemote) FetchUserLoans(ctx context.Context) (map[string]models.Loan, error) {
	f.record("FetchUserLoans")
	if f.loansErr != nil {
		return nil, f.loansErr
	}
	return f.loans, nil
}

func (f *fakeRemote) FetchListSeeds(ctx context.Context, listURL string) ([]models.Seed, error) {
	f.record("FetchListSeeds")
	if f.seedsErr != nil {
		return nil, f.seedsErr
	}
	return f.seeds[listURL], nil
}

func (f *fakeRemote) FetchBooksFromSeeds(ctx context.Context, seeds []models.Seed) ([]models.Book, error) {
	f.record("FetchBooksFromSeeds")
	if f.booksErr != nil {
		return nil, f.booksErr
	}
	return f.books, nil
}

func (f *fakeRemote) FetchAuthorsFromSeeds(ctx context.Context, seeds []models.Seed) ([]models.Author, error) {
	f.record("FetchAuthorsFromSeeds")
	if f.authorsErr != nil {
		return nil, f.authorsErr
	}
	return f.authors, nil
}

// clock is a settable time source
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	repo   *Repository
	remote *fakeRemote
	blobs  *stubs.MockBlobStore
	store  *cache.ShelfStore
	lists  *cache.ListStore
	prefs  storage.Preferences
	clock  *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	f := &fixture{
		remote: newFakeRemote(),
		blobs:  stubs.NewMockBlobStore(),
		prefs:  stubs.NewMockPreferences(),
		clock:  &clock{now: time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)},
	}
	f.store = cache.NewShelfStore(f.blobs, logger)
	f.lists = cache.NewListStore(f.blobs, logger)
	f.repo = New(f.remote, f.store, f.lists, f.prefs, logger, Options{Now: f.clock.Now})
	return f
}

// seedCache writes shelves straight into the cache
func (f *fixture) seedCache(t *testing.T, shelves ...models.Shelf) {
	t.Helper()
	m := make(map[string]models.Shelf, len(shelves))
	for _, s := range shelves {
		m[s.Key] = s
	}
	if err := f.store.WriteAll(context.Background(), m); err != nil {
		t.Fatalf("Failed to seed cache: %v", err)
	}
}

func shelfWith(key string, total int, books ...models.Book) models.Shelf {
	def, _ := models.LookupShelf(key)
	order := 1
	for i, d := range models.DefaultShelves {
		if d.Key == key {
			order = i + 1
		}
	}
	s := models.NewShelf(def, order)
	s.Books = append([]models.Book{}, books...)
	s.TotalCount = total
	return s
}
