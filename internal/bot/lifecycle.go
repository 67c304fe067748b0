package bot

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// WebhookPath is where Telegram delivers updates in webhook mode
const WebhookPath = "/telegram-webhook"

// secretHeader carries the secret_token registered with setWebhook
const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

var errNoAPI = errors.New("bot has no Telegram API connection")

// Start long-polls Telegram for updates and blocks until Stop is called
func (b *Bot) Start() error {
	if b.api == nil {
		return errNoAPI
	}

	// A leftover webhook makes getUpdates fail
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		b.logger.Warn("Could not clear previous webhook", zap.Error(err))
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	cfg.AllowedUpdates = []string{"message", "callback_query"}

	b.logger.Info("Reader bot polling for updates", zap.String("bot", b.api.Self.UserName))
	for update := range b.api.GetUpdatesChan(cfg) {
		b.HandleUpdate(update)
	}
	return nil
}

// Stop stops polling for updates
func (b *Bot) Stop() {
	if b.api != nil {
		b.api.StopReceivingUpdates()
	}
}

// StartWebhook registers baseURL+WebhookPath with Telegram. Telegram echoes
// secret back on every delivery; WebhookHandler rejects updates without it.
func (b *Bot) StartWebhook(baseURL, secret string) error {
	if b.api == nil {
		return errNoAPI
	}
	if secret == "" {
		return errors.New("webhook secret is required")
	}

	params := tgbotapi.Params{"url": baseURL + WebhookPath}
	params.AddNonZero("max_connections", 40)
	params.AddNonEmpty("secret_token", secret)
	if err := params.AddInterface("allowed_updates", []string{"message", "callback_query"}); err != nil {
		return err
	}

	if _, err := b.api.MakeRequest("setWebhook", params); err != nil {
		b.logger.Error("Telegram rejected the webhook", zap.Error(err), zap.String("url", params["url"]))
		return err
	}

	info, err := b.api.GetWebhookInfo()
	if err != nil {
		b.logger.Warn("Could not read back webhook info", zap.Error(err))
		return nil
	}
	b.logger.Info("Reader bot receiving updates by webhook",
		zap.String("url", info.URL),
		zap.Int("pending_updates", info.PendingUpdateCount),
	)
	return nil
}

// WebhookHandler accepts Telegram deliveries that carry secret and handles
// them in the background so Telegram gets its 200 right away
func (b *Bot) WebhookHandler(secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		got := r.Header.Get(secretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			b.logger.Warn("Webhook delivery with a bad secret token", zap.String("remote_addr", r.RemoteAddr))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			b.logger.Warn("Undecodable webhook update", zap.Error(err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		go b.HandleUpdate(update)
		w.WriteHeader(http.StatusOK)
	}
}

// HandleUpdate routes one update from either delivery mode.
// Only allowed users reach the shelf commands.
func (b *Bot) HandleUpdate(update tgbotapi.Update) {
	switch {
	case update.Message != nil && update.Message.From != nil:
		msg := update.Message
		if !b.allowedUsers[msg.From.ID] {
			b.logger.Warn("Rejected message from unknown user",
				zap.Int64("user_id", msg.From.ID),
				zap.String("username", msg.From.UserName),
			)
			b.sendText(msg.Chat.ID, "Sorry, you are not authorized to use this bot.")
			return
		}
		b.handleMessage(msg)

	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		query := update.CallbackQuery
		if !b.allowedUsers[query.From.ID] {
			b.logger.Warn("Rejected button press from unknown user",
				zap.Int64("user_id", query.From.ID),
				zap.String("callback_data", query.Data),
			)
			return
		}
		b.handleCallbackQuery(query)
	}
}
