package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"reader/internal/models"
)

// handleStart shows welcome message and available commands
func (b *Bot) handleStart(message *tgbotapi.Message) {
	text := `Welcome to the Open Library Reader! 📚

Available commands:
/shelves - Show your reading-log shelves
/shelf <key> - Show the books on a shelf
/refresh - Sync shelves with Open Library
/sort - Change how a shelf is sorted
/move <workId> <shelf> - Move a book to a shelf
/remove <workId> <shelf> - Take a book off a shelf
/lists - Show your lists
/list [url] - Show the selected list
/loans - Show your active loans`

	b.sendText(message.Chat.ID, text)
}

// handleShelves shows the visible shelves, served from cache when present
func (b *Bot) handleShelves(ctx context.Context, message *tgbotapi.Message) {
	shelves, err := b.library.GetVisibleShelves(ctx, false)
	if err != nil {
		b.sendFailure(message.Chat.ID, "shelves", err)
		return
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, formatShelves(shelves, b.library.IsShelfStale))
	if len(shelves) > 0 {
		var rows [][]tgbotapi.InlineKeyboardButton
		for _, s := range shelves {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(s.DisplayName, "shelf:"+s.Key),
			))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	b.sendMessage(msg)
}

// handleShelf shows one shelf; without a key it offers a shelf picker
func (b *Bot) handleShelf(ctx context.Context, message *tgbotapi.Message) {
	key := strings.TrimSpace(message.CommandArguments())
	if key == "" {
		msg := tgbotapi.NewMessage(message.Chat.ID, "Which shelf?")
		msg.ReplyMarkup = shelfKeyboard("shelf:")
		b.sendMessage(msg)
		return
	}
	b.showShelf(ctx, message.Chat.ID, key)
}

func (b *Bot) showShelf(ctx context.Context, chatID int64, key string) {
	shelf, err := b.library.GetShelf(ctx, key, false)
	if err != nil {
		b.sendFailure(chatID, "shelf", err)
		return
	}
	b.sendText(chatID, formatShelf(shelf))
}

// handleRefresh forces a sync of every configured shelf
func (b *Bot) handleRefresh(ctx context.Context, message *tgbotapi.Message) {
	shelves, err := b.library.RefreshShelves(ctx)
	if err != nil {
		b.sendFailure(message.Chat.ID, "refresh", err)
		return
	}
	b.sendText(message.Chat.ID, formatShelves(shelves, b.library.IsShelfStale))
}

// handleSortStart begins the shelf → order → direction picker
func (b *Bot) handleSortStart(message *tgbotapi.Message) {
	msg := tgbotapi.NewMessage(message.Chat.ID, "🔀 Which shelf do you want to sort?")
	msg.ReplyMarkup = shelfKeyboard("sort:")
	b.sendMessage(msg)
}

// handleRemove takes a book off a shelf. The shelf may be omitted when the
// book is already cached.
func (b *Bot) handleRemove(ctx context.Context, message *tgbotapi.Message) {
	args := strings.Fields(message.CommandArguments())
	if len(args) == 0 || len(args) > 2 {
		b.sendText(message.Chat.ID, "Usage: /remove <workId> <shelf>")
		return
	}

	book, shelfKey := b.resolveBook(ctx, args[0])
	if len(args) == 2 {
		shelfKey = args[1]
	}
	if shelfKey == "" {
		b.sendText(message.Chat.ID, "Book "+args[0]+" is not on a cached shelf. Usage: /remove <workId> <shelf>")
		return
	}

	if err := b.library.RemoveBookFromShelf(ctx, book, shelfKey); err != nil {
		b.sendFailure(message.Chat.ID, "remove", err)
		return
	}
	b.sendText(message.Chat.ID, fmt.Sprintf("🗑 Removed %s from %s", bookLabel(book), shelfName(shelfKey)))
}

// handleLists shows the user's lists as a picker
func (b *Bot) handleLists(ctx context.Context, message *tgbotapi.Message) {
	lists, err := b.library.GetBookLists(ctx)
	if err != nil {
		b.sendFailure(message.Chat.ID, "lists", err)
		return
	}
	if len(lists) == 0 {
		b.sendText(message.Chat.ID, "You have no lists yet.")
		return
	}

	// Callback data is limited to 64 bytes, so buttons carry an index into
	// the URLs remembered for this user
	state := &ConversationState{Command: "lists", Step: 1, Data: make(map[string]string)}
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, l := range lists {
		idx := strconv.Itoa(i)
		state.Data[idx] = l.URL
		label := fmt.Sprintf("%s (%d)", l.Name, l.SeedCount)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, "list:"+idx),
		))
	}
	b.setState(message.From.ID, state)

	msg := tgbotapi.NewMessage(message.Chat.ID, "📋 Your lists:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.sendMessage(msg)
}

// handleList shows the list given as argument, or the last selected one
func (b *Bot) handleList(ctx context.Context, message *tgbotapi.Message) {
	listURL := strings.TrimSpace(message.CommandArguments())
	if listURL == "" {
		selected, err := b.library.SelectedList(ctx)
		if err != nil {
			b.sendFailure(message.Chat.ID, "list", err)
			return
		}
		if selected == "" {
			b.sendText(message.Chat.ID, "No list selected. Use /lists to pick one.")
			return
		}
		listURL = selected
	}
	b.showList(ctx, message.Chat.ID, listURL)
}

func (b *Bot) showList(ctx context.Context, chatID int64, listURL string) {
	snap, err := b.library.GetListSeeds(ctx, listURL, false)
	if err != nil {
		b.sendFailure(chatID, "list", err)
		return
	}
	if err := b.library.SelectList(ctx, listURL); err != nil {
		b.logger.Warn("Failed to remember selected list", zap.String("list", listURL), zap.Error(err))
	}
	b.sendText(chatID, formatList(snap))
}

// handleLoans shows active Internet Archive loans
func (b *Bot) handleLoans(ctx context.Context, message *tgbotapi.Message) {
	loans, err := b.library.GetUserLoans(ctx, false)
	if err != nil {
		b.sendFailure(message.Chat.ID, "loans", err)
		return
	}
	b.sendText(message.Chat.ID, formatLoans(loans))
}

// resolveBook returns the cached book for workID and the shelf holding it.
// Unknown books are returned as a bare work reference.
func (b *Bot) resolveBook(ctx context.Context, workID string) (models.Book, string) {
	if book, shelfKey, ok := b.library.FindCachedBook(ctx, workID); ok {
		return book, shelfKey
	}
	return models.Book{WorkID: workID}, ""
}

func bookLabel(book models.Book) string {
	if book.Title != "" {
		return "\"" + book.Title + "\""
	}
	return book.WorkID
}

func shelfName(key string) string {
	if def, ok := models.LookupShelf(key); ok {
		return def.DisplayName
	}
	return key
}
