// Package wdqs queries the Wikidata Query Service for entities whose property values
// match dataset identifiers.
package wdqs

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/openenergytransition/qidmerge/internal/merge"
	"github.com/openenergytransition/qidmerge/pkg/pipeline/core"
)

const (
	DefaultEndpoint = "https://query.wikidata.org/sparql"

	sparqlResultsJSON = "application/sparql-results+json"
	// Timeouts get one extra attempt: a query the service gave up on once tends to
	// time out again.
	queryTimeoutExtraRetries = 1
)

// Config configures a Client.
type Config struct {
	Endpoint  string
	UserAgent string
	// CAPath is an optional PEM bundle used as the TLS trust store.
	CAPath  string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client sends SPARQL SELECT queries. It implements merge.Lookup.
type Client struct {
	endpoint  *url.URL
	userAgent string
	http      *http.Client
	logger    *zap.Logger
	now       func() time.Time
}

// NewClient validates cfg and builds a client.
func NewClient(cfg Config) (*Client, error) {
	raw := cfg.Endpoint
	if strings.TrimSpace(raw) == "" {
		raw = DefaultEndpoint
	}
	u, err := parseEndpoint(raw)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		return nil, errors.New("user agent is required by the query service policy")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	hc, err := newHTTPClient(cfg.CAPath, timeout)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint:  u,
		userAgent: strings.TrimSpace(cfg.UserAgent),
		http:      hc,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func parseEndpoint(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "parse endpoint")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Newf("endpoint scheme must be http or https (got %q)", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.Newf("endpoint must include a host (got %q)", raw)
	}
	u.Fragment = ""
	return u, nil
}

func newHTTPClient(caPath string, timeout time.Duration) (*http.Client, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if strings.TrimSpace(caPath) != "" {
		b, err := os.ReadFile(strings.TrimSpace(caPath))
		if err != nil {
			return nil, errors.Wrap(err, "read CA bundle")
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(b); !ok {
			return nil, errors.New("parse CA bundle: no certs found")
		}
		tr.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// Lookup runs one query and maps each matched value to its entities.
func (c *Client) Lookup(ctx context.Context, q merge.Query) (map[string][]merge.Entity, error) {
	sparql, err := BuildQuery(q)
	if err != nil {
		return nil, err
	}
	body, err := c.Select(ctx, sparql)
	if err != nil {
		return nil, err
	}
	hits, dropped, err := parseResults(body, q.Values)
	if err != nil {
		// A truncated or garbled body is worth another attempt.
		return nil, &core.TransientError{Err: err}
	}
	if dropped > 0 {
		c.logger.Debug("dropped bindings",
			zap.String("property", q.Property),
			zap.Int("dropped", dropped),
		)
	}
	return hits, nil
}

// Select POSTs a query and returns the raw JSON results. Errors are classified for
// the worker runner: transport failures and retryable statuses come back as
// core.TransientError, core.LimitedTransientError or core.RetryAfterError.
func (c *Client) Select(ctx context.Context, sparql string) ([]byte, error) {
	form := url.Values{}
	form.Set("query", sparql)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", sparqlResultsJSON)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &core.TransientError{Err: errors.Wrap(err, "wdqs request")}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &core.TransientError{Err: errors.Wrap(err, "read wdqs response")}
	}
	if resp.StatusCode/100 != 2 {
		return nil, classify(newHTTPError("select", resp, b, c.now()))
	}
	return b, nil
}

func classify(h *HTTPError) error {
	switch {
	case h.QueryTimeout:
		return &core.LimitedTransientError{Err: h, ExtraRetries: queryTimeoutExtraRetries}
	case !h.Retryable():
		return h
	case h.RetryAfter > 0:
		return &core.RetryAfterError{Err: h, After: h.RetryAfter}
	default:
		return &core.TransientError{Err: h}
	}
}
