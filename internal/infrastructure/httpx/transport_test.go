package httpx

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"context-injector/internal/application/port/output"
)

type entry struct {
	msg  string
	args []any
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []entry
}

func (l *recordingLogger) log(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry{msg, args})
}

func (l *recordingLogger) Debug(msg string, args ...any)               { l.log(msg, args...) }
func (l *recordingLogger) Info(msg string, args ...any)                { l.log(msg, args...) }
func (l *recordingLogger) Warn(msg string, args ...any)                { l.log(msg, args...) }
func (l *recordingLogger) Error(msg string, args ...any)               { l.log(msg, args...) }
func (l *recordingLogger) WithField(string, any) output.LoggerPort     { return l }
func (l *recordingLogger) WithFields(map[string]any) output.LoggerPort { return l }
func (l *recordingLogger) SetDebug(bool)                               {}
func (l *recordingLogger) Close() error                                { return nil }

func TestLoggingTransport_OmitsBodyValues(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = string(body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	log := &recordingLogger{}
	client := NewClient(log, time.Second)

	payload := `{"query":"my secret plans","user_id":"u-1","source":"chat"}`
	resp, err := client.Post(srv.URL, "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, payload, got, "body must still reach the server")

	require.NotEmpty(t, log.entries)
	req := log.entries[0]
	assert.Equal(t, "HTTP Request", req.msg)
	dump := fmt.Sprint(req.args...)
	assert.NotContains(t, dump, "my secret plans")
	assert.Contains(t, dump, "body_bytes")
	assert.Contains(t, fmt.Sprint(req.args), "[query source user_id]")
}
