// Package httpx holds HTTP plumbing shared by the outbound clients.
package httpx

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"time"

	"context-injector/internal/application/port/output"
)

// LoggingTransport logs each request and response status at debug level.
// Bodies carry user messages, so only their size and top-level keys are logged.
type LoggingTransport struct {
	Base   http.RoundTripper
	Logger output.LoggerPort
}

func NewClient(logger output.LoggerPort, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &LoggingTransport{Base: http.DefaultTransport, Logger: logger},
	}
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	if t.Logger != nil {
		var bodyBytes []byte
		if req.Body != nil {
			bodyBytes, _ = io.ReadAll(req.Body)
			req.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		}

		t.Logger.Debug("HTTP Request",
			"method", req.Method,
			"url", req.URL.String(),
			"body_bytes", len(bodyBytes),
			"body_keys", bodyKeys(bodyBytes),
		)
	}

	start := time.Now()
	resp, err := base.RoundTrip(req)

	if t.Logger != nil {
		if err != nil {
			t.Logger.Debug("HTTP Error", "url", req.URL.String(), "error", err, "elapsed", time.Since(start).String())
		} else {
			t.Logger.Debug("HTTP Response",
				"status", resp.Status,
				"statusCode", resp.StatusCode,
				"elapsed", time.Since(start).String(),
			)
		}
	}

	return resp, err
}

func bodyKeys(body []byte) []string {
	var fields map[string]json.RawMessage
	if len(body) == 0 || json.Unmarshal(body, &fields) != nil {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
