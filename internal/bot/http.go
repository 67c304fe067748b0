package bot

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"reader/internal/apperr"
	"reader/internal/models"
)

// initDataMaxAge is how long a Mini App initData signature stays valid
const initDataMaxAge = 24 * time.Hour

// HTTPServer exposes the library as JSON for the Telegram Mini App.
// Every route requires initData signed for an allowed user.
type HTTPServer struct {
	bot   *Bot
	token string
	now   func() time.Time
}

// NewHTTPServer creates a new HTTP server for the Mini App
func NewHTTPServer(bot *Bot) *HTTPServer {
	return &HTTPServer{
		bot:   bot,
		token: bot.Token(),
		now:   time.Now,
	}
}

// RegisterRoutes registers Mini App routes on the provided mux
func (hs *HTTPServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/shelves", hs.authMiddleware(hs.handleShelves))
	mux.HandleFunc("GET /api/shelves/{key}", hs.authMiddleware(hs.handleShelf))
	mux.HandleFunc("POST /api/shelves/{key}/books", hs.authMiddleware(hs.handleMove))
	mux.HandleFunc("GET /api/loans", hs.authMiddleware(hs.handleLoans))
}

// validateTelegramInitData validates the Telegram Mini App initData
func (hs *HTTPServer) validateTelegramInitData(initData string) (int64, error) {
	if initData == "" {
		return 0, fmt.Errorf("missing initData")
	}

	values, err := url.ParseQuery(initData)
	if err != nil {
		return 0, fmt.Errorf("invalid initData format: %w", err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return 0, fmt.Errorf("missing hash in initData")
	}
	values.Del("hash")

	// Create data-check-string
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var dataCheckString strings.Builder
	for i, k := range keys {
		if i > 0 {
			dataCheckString.WriteByte('\n')
		}
		dataCheckString.WriteString(k)
		dataCheckString.WriteByte('=')
		dataCheckString.WriteString(values.Get(k))
	}

	if !hmac.Equal([]byte(signInitData(hs.token, dataCheckString.String())), []byte(hash)) {
		return 0, fmt.Errorf("invalid hash")
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("missing or invalid auth_date")
	}
	if hs.now().Sub(time.Unix(authDate, 0)) > initDataMaxAge {
		return 0, fmt.Errorf("initData is too old")
	}

	userStr := values.Get("user")
	if userStr == "" {
		return 0, fmt.Errorf("missing user data")
	}
	var userData struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(userStr), &userData); err != nil {
		return 0, fmt.Errorf("invalid user data: %w", err)
	}

	if !hs.bot.allowedUsers[userData.ID] {
		return 0, fmt.Errorf("user not allowed")
	}
	return userData.ID, nil
}

// signInitData computes the Mini App hash of a data-check-string
func signInitData(token, dataCheckString string) string {
	secretKey := hmac.New(sha256.New, []byte("WebAppData"))
	secretKey.Write([]byte(token))

	h := hmac.New(sha256.New, secretKey.Sum(nil))
	h.Write([]byte(dataCheckString))
	return hex.EncodeToString(h.Sum(nil))
}

// authMiddleware validates Telegram Mini App authentication
func (hs *HTTPServer) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "tma ") {
			hs.bot.logger.Warn("Missing or invalid authorization header", zap.String("path", r.URL.Path))
			writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		userID, err := hs.validateTelegramInitData(strings.TrimPrefix(authHeader, "tma "))
		if err != nil {
			hs.bot.logger.Warn("Failed to validate initData",
				zap.Error(err),
				zap.String("remote_addr", r.RemoteAddr),
			)
			writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		hs.bot.logger.Debug("Authenticated request",
			zap.Int64("user_id", userID),
			zap.String("path", r.URL.Path),
		)
		next(w, r)
	}
}

func (hs *HTTPServer) handleShelves(w http.ResponseWriter, r *http.Request) {
	shelves, err := hs.bot.library.GetVisibleShelves(r.Context(), r.URL.Query().Get("refresh") == "true")
	if err != nil {
		hs.writeFailure(w, "shelves", err)
		return
	}
	writeJSON(w, http.StatusOK, shelves)
}

func (hs *HTTPServer) handleShelf(w http.ResponseWriter, r *http.Request) {
	shelf, err := hs.bot.library.GetShelf(r.Context(), r.PathValue("key"), r.URL.Query().Get("refresh") == "true")
	if err != nil {
		hs.writeFailure(w, "shelf", err)
		return
	}
	writeJSON(w, http.StatusOK, shelf)
}

// MoveRequest is the body of a move to shelf request
type MoveRequest struct {
	WorkID    string `json:"workId"`
	EditionID string `json:"editionId"`
}

func (hs *HTTPServer) handleMove(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	book, _, ok := hs.bot.library.FindCachedBook(r.Context(), req.WorkID)
	if !ok {
		book = models.Book{WorkID: req.WorkID, EditionID: req.EditionID}
	}

	target := r.PathValue("key")
	if err := hs.bot.library.MoveBookToShelf(r.Context(), book, target); err != nil {
		hs.writeFailure(w, "move", err)
		return
	}

	hs.bot.logger.Info("Book moved via Mini App",
		zap.String("work", req.WorkID),
		zap.String("target", target),
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (hs *HTTPServer) handleLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := hs.bot.library.GetUserLoans(r.Context(), r.URL.Query().Get("refresh") == "true")
	if err != nil {
		hs.writeFailure(w, "loans", err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (hs *HTTPServer) writeFailure(w http.ResponseWriter, op string, err error) {
	f := apperr.Classify(err)
	hs.bot.logger.Warn("Mini App request failed", zap.String("op", op), zap.Error(err))

	status := http.StatusInternalServerError
	switch f.Kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindNetwork, apperr.KindServer, apperr.KindAuth:
		status = http.StatusBadGateway
	}

	writeJSON(w, status, map[string]string{
		"error": f.Message,
		"kind":  f.Kind.String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
