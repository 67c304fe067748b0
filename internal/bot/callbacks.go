package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"reader/internal/models"
)

var sortLabels = map[models.SortKey]string{
	models.SortByTitle:         "🔤 Title",
	models.SortByAuthor:        "👤 Author",
	models.SortByDateAdded:     "📅 Date added",
	models.SortByDatePublished: "🗓 Date published",
}

// handleShelfCallback opens the shelf picked from a keyboard
func (b *Bot) handleShelfCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	key := strings.TrimPrefix(query.Data, "shelf:")
	b.showShelf(ctx, query.Message.Chat.ID, key)
}

// handleSortShelfCallback offers the sort orders for the chosen shelf
func (b *Bot) handleSortShelfCallback(query *tgbotapi.CallbackQuery) {
	key := strings.TrimPrefix(query.Data, "sort:")
	if _, ok := models.LookupShelf(key); !ok {
		b.sendText(query.Message.Chat.ID, "❗ Unknown shelf: "+key)
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, order := range models.SortKeys {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(sortLabels[order], fmt.Sprintf("sortkey:%s:%s", key, order)),
		))
	}

	msg := tgbotapi.NewMessage(query.Message.Chat.ID, fmt.Sprintf("Sort %s by:", shelfName(key)))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.sendMessage(msg)
}

// handleSortKeyCallback offers the direction for the chosen order
func (b *Bot) handleSortKeyCallback(query *tgbotapi.CallbackQuery) {
	parts := strings.SplitN(strings.TrimPrefix(query.Data, "sortkey:"), ":", 2)
	if len(parts) != 2 {
		b.logger.Warn("Malformed sort callback", zap.String("data", query.Data))
		return
	}
	key, order := parts[0], parts[1]

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬆️ Ascending", fmt.Sprintf("sortdir:%s:%s:asc", key, order)),
			tgbotapi.NewInlineKeyboardButtonData("⬇️ Descending", fmt.Sprintf("sortdir:%s:%s:desc", key, order)),
		),
	)
	msg := tgbotapi.NewMessage(query.Message.Chat.ID, "Which direction?")
	msg.ReplyMarkup = keyboard
	b.sendMessage(msg)
}

// handleSortDirectionCallback applies the chosen sort and shows the shelf
func (b *Bot) handleSortDirectionCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	chatID := query.Message.Chat.ID
	parts := strings.SplitN(strings.TrimPrefix(query.Data, "sortdir:"), ":", 3)
	if len(parts) != 3 {
		b.logger.Warn("Malformed sort callback", zap.String("data", query.Data))
		return
	}

	order, err := models.ParseSortKey(parts[1])
	if err != nil {
		b.sendText(chatID, "❗ "+err.Error())
		return
	}

	shelf, err := b.library.UpdateShelfSort(ctx, parts[0], order, parts[2] == "asc")
	if err != nil {
		b.sendFailure(chatID, "sort", err)
		return
	}
	b.sendText(chatID, formatShelf(shelf))
}

// handleListCallback opens a list picked from /lists
func (b *Bot) handleListCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	chatID := query.Message.Chat.ID
	state, ok := b.getState(query.From.ID)
	if !ok || state.Command != "lists" {
		b.sendText(chatID, "That list menu has expired. Use /lists again.")
		return
	}

	listURL, ok := state.Data[strings.TrimPrefix(query.Data, "list:")]
	if !ok {
		b.sendText(chatID, "That list menu has expired. Use /lists again.")
		return
	}
	b.showList(ctx, chatID, listURL)
}

// handleMoveCallback completes a /move conversation with the chosen shelf
func (b *Bot) handleMoveCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	state, ok := b.getState(query.From.ID)
	if !ok || state.Command != "move" || state.Step != 2 {
		return
	}

	target := strings.TrimPrefix(query.Data, "move:")
	workID := state.Data["work"]
	state.Step = -1
	b.clearState(query.From.ID)

	b.moveBook(ctx, query.Message.Chat.ID, workID, target)
}
