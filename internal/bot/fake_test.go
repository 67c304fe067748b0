package bot

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"reader/internal/models"
)

// recorder captures everything the bot sends
type recorder struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	requests []tgbotapi.Chattable
}

func (r *recorder) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		r.sent = append(r.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (r *recorder) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (r *recorder) last() tgbotapi.MessageConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return tgbotapi.MessageConfig{}
	}
	return r.sent[len(r.sent)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type moveCall struct {
	Book   models.Book
	Target string
}

type sortCall struct {
	Key       string
	Order     models.SortKey
	Ascending bool
}

// fakeLibrary is an in-memory Library with canned results and call records
type fakeLibrary struct {
	shelves  []models.Shelf
	lists    []models.BookList
	snapshot models.ListSnapshot
	loans    map[string]models.Loan
	cached   map[string]models.Book
	selected string
	err      error

	moves       []moveCall
	removes     []moveCall
	sorts       []sortCall
	listQueries []string
	refreshes   int
}

func (f *fakeLibrary) GetVisibleShelves(ctx context.Context, forceRefresh bool) ([]models.Shelf, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.shelves, nil
}

func (f *fakeLibrary) GetShelf(ctx context.Context, key string, forceRefresh bool) (models.Shelf, error) {
	if f.err != nil {
		return models.Shelf{}, f.err
	}
	for _, s := range f.shelves {
		if s.Key == key {
			return s, nil
		}
	}
	def, _ := models.LookupShelf(key)
	return models.NewShelf(def, 1), nil
}

func (f *fakeLibrary) RefreshShelves(ctx context.Context) ([]models.Shelf, error) {
	f.refreshes++
	return f.GetVisibleShelves(ctx, true)
}

func (f *fakeLibrary) IsShelfStale(shelf models.Shelf) bool {
	return shelf.LastSynced == nil
}

func (f *fakeLibrary) UpdateShelfSort(ctx context.Context, key string, order models.SortKey, ascending bool) (models.Shelf, error) {
	f.sorts = append(f.sorts, sortCall{Key: key, Order: order, Ascending: ascending})
	if f.err != nil {
		return models.Shelf{}, f.err
	}
	shelf, _ := f.GetShelf(ctx, key, false)
	shelf.SortKey = order
	shelf.SortAscending = ascending
	return shelf, nil
}

func (f *fakeLibrary) FindCachedBook(ctx context.Context, workID string) (models.Book, string, bool) {
	book, ok := f.cached[workID]
	if !ok {
		return models.Book{}, "", false
	}
	return book, "want-to-read", true
}

func (f *fakeLibrary) MoveBookToShelf(ctx context.Context, book models.Book, targetKey string) error {
	f.moves = append(f.moves, moveCall{Book: book, Target: targetKey})
	return f.err
}

func (f *fakeLibrary) RemoveBookFromShelf(ctx context.Context, book models.Book, shelfKey string) error {
	f.removes = append(f.removes, moveCall{Book: book, Target: shelfKey})
	return f.err
}

func (f *fakeLibrary) GetBookLists(ctx context.Context) ([]models.BookList, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.lists, nil
}

func (f *fakeLibrary) GetListSeeds(ctx context.Context, listURL string, forceRefresh bool) (models.ListSnapshot, error) {
	f.listQueries = append(f.listQueries, listURL)
	if f.err != nil {
		return models.ListSnapshot{}, f.err
	}
	return f.snapshot, nil
}

func (f *fakeLibrary) SelectedList(ctx context.Context) (string, error) {
	return f.selected, nil
}

func (f *fakeLibrary) SelectList(ctx context.Context, listURL string) error {
	f.selected = listURL
	return nil
}

func (f *fakeLibrary) GetUserLoans(ctx context.Context, forceRefresh bool) (map[string]models.Loan, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.loans, nil
}
