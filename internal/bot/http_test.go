package bot

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reader/internal/apperr"
	"reader/internal/models"
)

const testToken = "123456:TEST-TOKEN"

var testNow = time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

func newTestHTTPServer(lib *fakeLibrary, now time.Time) (*HTTPServer, *http.ServeMux) {
	b, _ := newTestBot(lib)
	hs := &HTTPServer{bot: b, token: testToken, now: func() time.Time { return now }}
	mux := http.NewServeMux()
	hs.RegisterRoutes(mux)
	return hs, mux
}

// signedInitData builds initData the way Telegram signs it
func signedInitData(token string, userID int64, authDate time.Time) string {
	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	values.Set("query_id", "AAH")
	values.Set("user", `{"id":`+strconv.FormatInt(userID, 10)+`,"first_name":"Test"}`)

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	values.Set("hash", signInitData(token, strings.Join(lines, "\n")))
	return values.Encode()
}

// signedRequest builds a Mini App request authenticated as testUser at testNow
func signedRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Authorization", "tma "+signedInitData(testToken, testUser, testNow))
	return req
}

func TestValidateTelegramInitData(t *testing.T) {
	now := testNow
	hs, _ := newTestHTTPServer(&fakeLibrary{}, now)

	userID, err := hs.validateTelegramInitData(signedInitData(testToken, testUser, now.Add(-time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, testUser, userID)

	tests := []struct {
		name     string
		initData string
	}{
		{"empty", ""},
		{"no hash", "auth_date=1&user=%7B%7D"},
		{"wrong token", signedInitData("other-token", testUser, now)},
		{"too old", signedInitData(testToken, testUser, now.Add(-25*time.Hour))},
		{"user not allowed", signedInitData(testToken, 999, now)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := hs.validateTelegramInitData(tt.initData)
			assert.Error(t, err)
		})
	}
}

func TestHTTPServer_RequiresAuth(t *testing.T) {
	lib := &fakeLibrary{shelves: []models.Shelf{shelf("want-to-read")}}
	_, mux := newTestHTTPServer(lib, testNow)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/shelves", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, signedRequest(http.MethodGet, "/api/shelves", ""))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"key":"want-to-read"`)
}

func TestHTTPServer_UnsignedMoveIsRejected(t *testing.T) {
	lib := &fakeLibrary{}
	_, mux := newTestHTTPServer(lib, testNow)

	tests := []struct {
		name string
		auth string
	}{
		{"no header", ""},
		{"wrong scheme", "Bearer abc"},
		{"forged signature", "tma " + signedInitData("other-token", testUser, testNow)},
		{"unknown user", "tma " + signedInitData(testToken, 999, testNow)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/shelves/already-read/books", strings.NewReader(`{"workId":"OL1W"}`))
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Empty(t, lib.moves)
		})
	}
}

func TestHTTPServer_Move(t *testing.T) {
	lib := &fakeLibrary{}
	_, mux := newTestHTTPServer(lib, testNow)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, signedRequest(http.MethodPost, "/api/shelves/already-read/books", `{"workId":"OL1W","editionId":"OL1M"}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, lib.moves, 1)
	assert.Equal(t, models.Book{WorkID: "OL1W", EditionID: "OL1M"}, lib.moves[0].Book)
	assert.Equal(t, "already-read", lib.moves[0].Target)
}

func TestHTTPServer_FailureStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{apperr.Validation("Book has no work ID"), http.StatusBadRequest, "ValidationFailure"},
		{apperr.NotFound("Shelf", nil), http.StatusNotFound, "NotFoundFailure"},
		{apperr.Network("offline", nil), http.StatusBadGateway, "NetworkFailure"},
		{apperr.Cache("disk full", nil), http.StatusInternalServerError, "CacheFailure"},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			_, mux := newTestHTTPServer(&fakeLibrary{err: tt.err}, testNow)

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, signedRequest(http.MethodGet, "/api/loans", ""))

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"kind":"`+tt.kind+`"`)
		})
	}
}

func TestHTTPServer_BadMoveBody(t *testing.T) {
	lib := &fakeLibrary{}
	_, mux := newTestHTTPServer(lib, testNow)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, signedRequest(http.MethodPost, "/api/shelves/already-read/books", "{"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, lib.moves)
}

func TestWebhookHandler_Secret(t *testing.T) {
	lib := &fakeLibrary{}
	b, rec := newTestBot(lib)
	handler := b.WebhookHandler("s3cret")

	// Claims to come from an allowed user
	update := `{"update_id":1,"message":{"message_id":1,"from":{"id":` + strconv.FormatInt(testUser, 10) +
		`},"chat":{"id":1,"type":"private"},"text":"/move OL1W already-read","entities":[{"type":"bot_command","offset":0,"length":5}]}}`

	tests := []struct {
		name   string
		secret string
	}{
		{"missing", ""},
		{"wrong", "guess"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(update))
			if tt.secret != "" {
				req.Header.Set(secretHeader, tt.secret)
			}
			w := httptest.NewRecorder()
			handler(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, WebhookPath, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	// A valid delivery from an unknown user is handled in the background
	stranger := `{"update_id":2,"message":{"message_id":2,"from":{"id":999},"chat":{"id":999,"type":"private"},"text":"hi"}}`
	req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(stranger))
	req.Header.Set(secretHeader, "s3cret")
	w = httptest.NewRecorder()
	handler(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "Sorry, you are not authorized to use this bot.", rec.last().Text)
	assert.Empty(t, lib.moves)
}
