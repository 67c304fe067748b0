package bot

import (
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"reader/internal/apperr"
	"reader/internal/models"
)

// maxListed caps how many entries a single message shows
const maxListed = 30

// sendMessage sends msg, logging instead of failing
func (b *Bot) sendMessage(msg tgbotapi.MessageConfig) {
	if b.out == nil {
		return
	}
	if _, err := b.out.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", msg.ChatID),
		)
	}
}

func (b *Bot) sendText(chatID int64, text string) {
	b.sendMessage(tgbotapi.NewMessage(chatID, text))
}

// sendFailure renders err for the user and logs it
func (b *Bot) sendFailure(chatID int64, op string, err error) {
	b.logger.Warn("Command failed",
		zap.String("op", op),
		zap.Int64("chat_id", chatID),
		zap.Error(err),
	)
	b.sendText(chatID, failureText(err))
}

// failureText maps a failure kind to a user-facing message
func failureText(err error) string {
	f := apperr.Classify(err)
	if f == nil {
		return ""
	}
	switch f.Kind {
	case apperr.KindNetwork:
		return "📡 Can't reach Open Library right now. Check your connection and try again."
	case apperr.KindServer:
		return "⚠️ Open Library returned an error: " + f.Message
	case apperr.KindAuth:
		return "🔒 Your Open Library session is missing or expired. Please sign in again."
	case apperr.KindNotFound:
		return "🔍 " + f.Message
	case apperr.KindValidation:
		return "❗ " + f.Message
	case apperr.KindCache:
		return "💾 Local cache problem: " + f.Message
	default:
		return "An unexpected error occurred: " + f.Message
	}
}

func formatShelves(shelves []models.Shelf, stale func(models.Shelf) bool) string {
	if len(shelves) == 0 {
		return "No shelves to show."
	}

	var text strings.Builder
	text.WriteString("📚 Your shelves:\n\n")
	for i, s := range shelves {
		fmt.Fprintf(&text, "%d. %s (%d)", i+1, s.DisplayName, s.TotalCount)
		if stale(s) {
			text.WriteString(" ⏳")
		}
		text.WriteString("\n")
	}
	text.WriteString("\n/shelf <key> to open a shelf, /refresh to sync.")
	return text.String()
}

func formatShelf(shelf models.Shelf) string {
	dir := "↓"
	if shelf.SortAscending {
		dir = "↑"
	}

	var text strings.Builder
	fmt.Fprintf(&text, "%s: %d books (sorted by %s %s)\n\n", shelf.DisplayName, shelf.TotalCount, shelf.SortKey, dir)
	if len(shelf.Books) == 0 {
		text.WriteString("This shelf is empty.")
		return text.String()
	}
	for i, book := range shelf.Books {
		if i == maxListed {
			fmt.Fprintf(&text, "…and %d more", len(shelf.Books)-maxListed)
			break
		}
		fmt.Fprintf(&text, "%d. %s", i+1, book.Title)
		if author := book.FirstAuthor(); author != "" {
			fmt.Fprintf(&text, " by %s", author)
		}
		if book.WorkID != "" {
			fmt.Fprintf(&text, " [%s]", book.WorkID)
		}
		text.WriteString("\n")
	}
	return strings.TrimRight(text.String(), "\n")
}

func formatList(snap models.ListSnapshot) string {
	items := snap.Items()
	if len(items) == 0 {
		return "This list has no books or authors."
	}

	var text strings.Builder
	for i, item := range items {
		if i == maxListed {
			fmt.Fprintf(&text, "…and %d more", len(items)-maxListed)
			break
		}
		d := models.Project(item)
		fmt.Fprintf(&text, "%d. %s", i+1, d.PrimaryText)
		if d.SecondaryText != "" {
			fmt.Fprintf(&text, " - %s", d.SecondaryText)
		}
		text.WriteString("\n")
	}
	return strings.TrimRight(text.String(), "\n")
}

func formatLoans(loans map[string]models.Loan) string {
	if len(loans) == 0 {
		return "You have no active loans."
	}

	ids := make([]string, 0, len(loans))
	for id := range loans {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var text strings.Builder
	text.WriteString("📖 Active loans:\n\n")
	for _, id := range ids {
		loan := loans[id]
		text.WriteString("• " + id)
		if loan.EditionID != "" {
			text.WriteString(" (" + loan.EditionID + ")")
		}
		if loan.Expiry != nil {
			text.WriteString(" until " + loan.Expiry.Format("2006-01-02 15:04"))
		}
		text.WriteString("\n")
	}
	return strings.TrimRight(text.String(), "\n")
}

// shelfKeyboard builds one button per shelf with callback data prefix+key
func shelfKeyboard(prefix string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, def := range models.DefaultShelves {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(def.DisplayName, prefix+def.Key),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
