package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func (b *Bot) getState(userID int64) (*ConversationState, bool) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	state, ok := b.states[userID]
	return state, ok
}

func (b *Bot) setState(userID int64, state *ConversationState) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	b.states[userID] = state
}

func (b *Bot) clearState(userID int64) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	delete(b.states, userID)
}

// handleMessage processes a single message
func (b *Bot) handleMessage(message *tgbotapi.Message) {
	// Recover from panics to prevent bot crashes
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleMessage", zap.Any("panic", r))
			b.sendText(message.Chat.ID, "An error occurred while processing your request. Please try again.")
		}
	}()

	userID := message.From.ID
	ctx := context.Background()

	// Check if user is in a conversation
	if state, ok := b.getState(userID); ok {
		if state.Step == -1 || message.IsCommand() {
			// Any command interrupts an ongoing conversation
			b.clearState(userID)
		} else {
			b.handleConversation(ctx, message, state)
			return
		}
	}

	if !message.IsCommand() {
		return
	}

	switch message.Command() {
	case "start", "help":
		b.handleStart(message)
	case "shelves":
		b.handleShelves(ctx, message)
	case "shelf":
		b.handleShelf(ctx, message)
	case "refresh":
		b.handleRefresh(ctx, message)
	case "sort":
		b.handleSortStart(message)
	case "move":
		b.handleMoveStart(ctx, message)
	case "remove":
		b.handleRemove(ctx, message)
	case "lists":
		b.handleLists(ctx, message)
	case "list":
		b.handleList(ctx, message)
	case "loans":
		b.handleLoans(ctx, message)
	default:
		b.sendText(message.Chat.ID, "Unknown command. Use /start to see available commands.")
	}
}

// handleCallbackQuery processes inline keyboard button clicks
func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleCallbackQuery", zap.Any("panic", r))
		}
	}()

	// Answer the callback query to remove loading state
	if b.out != nil {
		if _, err := b.out.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
			b.logger.Debug("Failed to answer callback", zap.Error(err))
		}
	}
	if query.Message == nil {
		return
	}

	ctx := context.Background()
	data := query.Data
	switch {
	case strings.HasPrefix(data, "shelf:"):
		b.handleShelfCallback(ctx, query)
	case strings.HasPrefix(data, "sort:"):
		b.handleSortShelfCallback(query)
	case strings.HasPrefix(data, "sortkey:"):
		b.handleSortKeyCallback(query)
	case strings.HasPrefix(data, "sortdir:"):
		b.handleSortDirectionCallback(ctx, query)
	case strings.HasPrefix(data, "list:"):
		b.handleListCallback(ctx, query)
	case strings.HasPrefix(data, "move:"):
		b.handleMoveCallback(ctx, query)
	}
}
