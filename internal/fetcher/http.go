package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"pxwatch/internal/logging"
)

const maxBodyBytes = 8 << 20

// HTTPOptions parameterise the retrying getter.
type HTTPOptions struct {
	Timeout    time.Duration
	Attempts   int
	RetryDelay time.Duration
	UserAgent  string
}

// HTTPClient issues GET requests with a bounded retry budget.
type HTTPClient struct {
	opts   HTTPOptions
	client *http.Client
	logger zerolog.Logger
}

// NewHTTPClient constructs a retrying getter.
func NewHTTPClient(opts HTTPOptions, logger zerolog.Logger) *HTTPClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Attempts < 1 {
		opts.Attempts = 3
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}

	return &HTTPClient{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logging.Component(logger, "http_fetcher"),
	}
}

// Get returns the body of url or a *FetchError once every attempt failed.
// Attempts are spaced by a constant delay; a cancelled ctx ends the budget early.
func (c *HTTPClient) Get(ctx context.Context, url string) ([]byte, error) {
	ctx, span := otel.Tracer("pxwatch/fetcher").Start(ctx, "fetcher.get")
	defer span.End()
	span.SetAttributes(attribute.String("http.url", url))

	attempts := 0
	operation := func() ([]byte, error) {
		attempts++
		body, err := c.getOnce(ctx, url)
		if err != nil {
			c.logger.Warn().Err(err).Str("url", url).Int("attempt", attempts).Int("max_attempts", c.opts.Attempts).Msg("request failed")
		}
		return body, err
	}

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.opts.RetryDelay)),
		backoff.WithMaxTries(uint(c.opts.Attempts)),
		backoff.WithMaxElapsedTime(0),
	)
	span.SetAttributes(attribute.Int("fetch.attempts", attempts))
	if err == nil {
		return body, nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "fetch failed")
	return nil, &FetchError{URL: url, Attempts: attempts, Err: err}
}

// Download is Get under the name the monthly image path uses.
func (c *HTTPClient) Download(ctx context.Context, url string) ([]byte, error) {
	return c.Get(ctx, url)
}

// getOnce performs one request. Failures that a retry cannot fix are marked permanent.
func (c *HTTPClient) getOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	req.Header.Set("Accept", "text/html,application/json;q=0.9,*/*;q=0.8")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		statusErr := fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
		if permanentStatus(resp.StatusCode) {
			return nil, backoff.Permanent(statusErr)
		}
		return nil, statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// permanentStatus reports client errors other than timeouts and rate limiting.
func permanentStatus(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
}

var _ Downloader = (*HTTPClient)(nil)
