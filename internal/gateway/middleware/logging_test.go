package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"othello-relay/pkg/logger"
)

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	handler := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTeapot)
	}
	out := buf.String()
	if !strings.Contains(out, `"status":418`) || !strings.Contains(out, `"ip":"127.0.0.1"`) {
		t.Errorf("log line missing fields: %s", out)
	}

	buf.Reset()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if buf.Len() != 0 {
		t.Errorf("health probe was logged: %s", buf.String())
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		remoteIP string
		want     string
	}{
		{"X-Forwarded-For chain", map[string]string{"X-Forwarded-For": "192.168.1.1, 10.0.0.2"}, "127.0.0.1:12345", "192.168.1.1"},
		{"X-Real-IP", map[string]string{"X-Real-IP": "10.0.0.1"}, "127.0.0.1:12345", "10.0.0.1"},
		{"RemoteAddr without port", nil, "127.0.0.1:12345", "127.0.0.1"},
		{"RemoteAddr unparsable", nil, "pipe", "pipe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteIP
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestResponseWriterHijackUnsupported(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	if _, _, err := rw.Hijack(); err != http.ErrNotSupported {
		t.Errorf("Hijack() error = %v, want ErrNotSupported", err)
	}
}
