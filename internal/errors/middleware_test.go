package errors

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrichdash/internal/shared/testutil"
)

func TestErrorMiddleware_Handler(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		body       string
		wantStatus int
		wantLevel  slog.Level
	}{
		{
			name:       "successful request",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) },
			wantStatus: http.StatusOK,
			wantLevel:  slog.LevelInfo,
		},
		{
			name:       "implicit ok",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) },
			wantStatus: http.StatusOK,
			wantLevel:  slog.LevelInfo,
		},
		{
			name:       "client error",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadRequest) },
			body:       `{"name":"x","token":"secret-value"}`,
			wantStatus: http.StatusBadRequest,
			wantLevel:  slog.LevelWarn,
		},
		{
			name:       "panic",
			handler:    func(w http.ResponseWriter, r *http.Request) { panic("boom") },
			wantStatus: http.StatusInternalServerError,
			wantLevel:  slog.LevelError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, logs := testutil.NewTestLogger(t)
			m := NewErrorMiddleware(NewErrorHandler(logger, false), logger)

			req := httptest.NewRequest(http.MethodPost, "/api/jobs?limit=5", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			m.Handler(tt.handler).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)

			records := logs.FindByMessage("http request")
			require.Len(t, records, 1)
			assert.Equal(t, tt.wantLevel, records[0].Level)
			assert.Equal(t, "limit=5", records[0].Attrs["query"])

			if tt.body != "" {
				logged, _ := records[0].Attrs["request_body"].(string)
				assert.Contains(t, logged, "[REDACTED]")
				assert.NotContains(t, logged, "secret-value")
			}
		})
	}
}

func TestErrorMiddleware_BodyStillReadable(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	m := NewErrorMiddleware(NewErrorHandler(logger, false), logger)

	var seen string
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(strings.Builder)
		_, _ = io.Copy(buf, r.Body)
		seen = buf.String()
	}))
	handler.ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"companyIds":["c-1"]}`)))

	assert.Equal(t, `{"companyIds":["c-1"]}`, seen)
}

func TestSanitizeRequestBody(t *testing.T) {
	assert.Equal(t, "not json", sanitizeRequestBody("not json"))
	assert.Contains(t, sanitizeRequestBody(`{"password":"p","name":"n"}`), `"password":"[REDACTED]"`)
}
