package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// handleConversation processes multi-step conversations
func (b *Bot) handleConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	switch state.Command {
	case "move":
		b.handleMoveConversation(ctx, message, state)
	}

	// Clean up completed conversations
	if state.Step == -1 {
		b.clearState(message.From.ID)
	}
}

// handleMoveStart handles /move with zero, one or two arguments.
// Missing arguments are collected step by step.
func (b *Bot) handleMoveStart(ctx context.Context, message *tgbotapi.Message) {
	args := strings.Fields(message.CommandArguments())
	switch len(args) {
	case 0:
		b.setState(message.From.ID, &ConversationState{
			Command: "move",
			Step:    1,
			Data:    make(map[string]string),
		})
		b.sendText(message.Chat.ID, "Send the work ID of the book to move (e.g. OL45883W):")
	case 1:
		b.askMoveTarget(message.Chat.ID, message.From.ID, args[0])
	case 2:
		b.moveBook(ctx, message.Chat.ID, args[0], args[1])
	default:
		b.sendText(message.Chat.ID, "Usage: /move <workId> <shelf>")
	}
}

// handleMoveConversation handles the move multi-step process
func (b *Bot) handleMoveConversation(ctx context.Context, message *tgbotapi.Message, state *ConversationState) {
	switch state.Step {
	case 1: // Waiting for work ID
		workID := strings.TrimSpace(message.Text)
		if workID == "" || strings.ContainsAny(workID, " \n") {
			b.sendText(message.Chat.ID, "Please send a single work ID, e.g. OL45883W")
			return
		}
		state.Data["work"] = workID
		state.Step = 2
		b.sendMoveTargets(message.Chat.ID, workID)
	case 2: // Waiting for shelf button
		b.sendText(message.Chat.ID, "Pick the target shelf with the buttons above, or send a new command to cancel.")
	}
}

func (b *Bot) askMoveTarget(chatID, userID int64, workID string) {
	b.setState(userID, &ConversationState{
		Command: "move",
		Step:    2,
		Data:    map[string]string{"work": workID},
	})
	b.sendMoveTargets(chatID, workID)
}

func (b *Bot) sendMoveTargets(chatID int64, workID string) {
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("📦 Move %s to which shelf?", workID))
	msg.ReplyMarkup = shelfKeyboard("move:")
	b.sendMessage(msg)
}

func (b *Bot) moveBook(ctx context.Context, chatID int64, workID, targetKey string) {
	book, _ := b.resolveBook(ctx, workID)
	if err := b.library.MoveBookToShelf(ctx, book, targetKey); err != nil {
		b.sendFailure(chatID, "move", err)
		return
	}
	b.sendText(chatID, fmt.Sprintf("✅ Moved %s to %s", bookLabel(book), shelfName(targetKey)))
}
