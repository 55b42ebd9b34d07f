package wdqs

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openenergytransition/qidmerge/pkg/pipeline/redact"
)

// HTTPError is a sanitized summary of a non-2xx query service response.
type HTTPError struct {
	Op         string
	StatusCode int
	Status     string
	// QueryTimeout is set when the service gave up evaluating the query.
	QueryTimeout bool
	RetryAfter   time.Duration

	// Snippet is a redacted, truncated hint of the response body.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "wdqs http error"
	}
	parts := []string{
		fmt.Sprintf("wdqs error: op=%s status=%s", strings.TrimSpace(e.Op), strings.TrimSpace(e.Status)),
	}
	if e.QueryTimeout {
		parts = append(parts, "queryTimeout=true")
	}
	if e.RetryAfter > 0 {
		parts = append(parts, "retryAfter="+e.RetryAfter.String())
	}
	if strings.TrimSpace(e.Snippet) != "" {
		parts = append(parts, "body="+strings.TrimSpace(e.Snippet))
	}
	return strings.Join(parts, " ")
}

// Retryable reports whether the status is worth another attempt.
func (e *HTTPError) Retryable() bool {
	if e == nil {
		return false
	}
	if e.QueryTimeout {
		return true
	}
	switch e.StatusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

var queryTimeoutMarker = []byte("TimeoutException")

func newHTTPError(op string, resp *http.Response, body []byte, now time.Time) *HTTPError {
	h := &HTTPError{Op: op}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.Status = resp.Status
		h.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), now)
	}
	h.QueryTimeout = bytes.Contains(body, queryTimeoutMarker)
	h.Snippet = redactAndTruncate(body)
	return h
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

const snippetLimit = 256

func redactAndTruncate(body []byte) string {
	s := redact.Secrets(string(body))
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	// Java stack traces from the service can be long; keep the head only.
	return redact.Truncate(s, snippetLimit)
}
