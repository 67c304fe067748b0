package openlibrary

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxLoggedBody caps how much of a body is written to the debug log
const maxLoggedBody = 2048

// LoggingTransport is an http.RoundTripper that logs requests and responses
// when the logger has debug enabled. Cookies are never logged.
type LoggingTransport struct {
	Base   http.RoundTripper
	Logger *zap.Logger
}

func (t *LoggingTransport) base() http.RoundTripper {
	if t.Base == nil {
		return http.DefaultTransport
	}
	return t.Base
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Logger == nil || !t.Logger.Core().Enabled(zap.DebugLevel) {
		return t.base().RoundTrip(req)
	}

	var reqBody []byte
	if req.Body != nil {
		reqBody, _ = io.ReadAll(req.Body)
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(reqBody))
	}

	t.Logger.Debug("Outbound request",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.String("body", truncate(reqBody)))

	start := time.Now()
	resp, err := t.base().RoundTrip(req)
	if err != nil {
		t.Logger.Debug("Outbound request failed",
			zap.String("url", req.URL.String()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return resp, err
	}

	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(respBody))

	t.Logger.Debug("Outbound response",
		zap.Int("status", resp.StatusCode),
		zap.String("url", req.URL.String()),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("body", truncate(respBody)))

	return resp, nil
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxLoggedBody {
		return s[:maxLoggedBody] + "..."
	}
	return s
}
