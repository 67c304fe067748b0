package bot

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"reader/internal/models"
)

// Library is the shelf, list and loan surface the bot drives.
// *repository.Repository satisfies it.
type Library interface {
	GetVisibleShelves(ctx context.Context, forceRefresh bool) ([]models.Shelf, error)
	GetShelf(ctx context.Context, key string, forceRefresh bool) (models.Shelf, error)
	RefreshShelves(ctx context.Context) ([]models.Shelf, error)
	IsShelfStale(shelf models.Shelf) bool
	UpdateShelfSort(ctx context.Context, key string, order models.SortKey, ascending bool) (models.Shelf, error)
	FindCachedBook(ctx context.Context, workID string) (models.Book, string, bool)
	MoveBookToShelf(ctx context.Context, book models.Book, targetKey string) error
	RemoveBookFromShelf(ctx context.Context, book models.Book, shelfKey string) error
	GetBookLists(ctx context.Context) ([]models.BookList, error)
	GetListSeeds(ctx context.Context, listURL string, forceRefresh bool) (models.ListSnapshot, error)
	SelectedList(ctx context.Context) (string, error)
	SelectList(ctx context.Context, listURL string) error
	GetUserLoans(ctx context.Context, forceRefresh bool) (map[string]models.Loan, error)
}

// messenger is the part of the Telegram API used to talk to chats
type messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot represents the Telegram bot wrapper
type Bot struct {
	api          *tgbotapi.BotAPI
	out          messenger
	library      Library
	allowedUsers map[int64]bool
	states       map[int64]*ConversationState
	statesMu     sync.Mutex
	logger       *zap.Logger
}

// ConversationState tracks the state of multi-step commands
type ConversationState struct {
	Command string
	Step    int
	Data    map[string]string
}
