package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  zapcore.Level
	}{
		{name: "ok", status: http.StatusOK, level: zapcore.InfoLevel},
		{name: "conflict", status: http.StatusConflict, level: zapcore.InfoLevel},
		{name: "server error", status: http.StatusInternalServerError, level: zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			logger := zap.New(core)

			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("hello"))
			})

			r := httptest.NewRequest(http.MethodGet, "/api/bookings/b-1", nil)
			r.Header.Set(RequestIDHeader, "req-1")
			w := httptest.NewRecorder()

			RequestID(Logger(logger)(next)).ServeHTTP(w, r)

			entries := logs.All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.level, entries[0].Level)

			fields := entries[0].ContextMap()
			assert.Equal(t, http.MethodGet, fields["method"])
			assert.Equal(t, "/api/bookings/b-1", fields["uri"])
			assert.Equal(t, int64(tt.status), fields["status"])
			assert.Equal(t, int64(5), fields["size"])
			assert.Equal(t, "req-1", fields["request_id"])
		})
	}
}
