// Package document fetches notebook documents for discovery and execution.
package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/nbapi/internal/domain/notebook"
	"github.com/GriffinCanCode/nbapi/internal/infrastructure/config"
	"github.com/GriffinCanCode/nbapi/internal/infrastructure/logging"
	"github.com/GriffinCanCode/nbapi/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/nbapi/internal/infrastructure/tracing"
)

var (
	ErrTooLarge      = errors.New("document exceeds size limit")
	ErrFilesDisabled = errors.New("local file documents are disabled")
)

// StatusError is a non-2xx response from the document server.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.Status, http.StatusText(e.Status))
}

// Fetcher loads notebook documents over HTTP, or from disk when allowed.
// It is safe for concurrent use.
type Fetcher struct {
	resty      *resty.Client
	limiter    *rate.Limiter
	breaker    *resilience.Breaker
	maxBytes   int64
	allowFiles bool
	logger     *zap.Logger
}

// Option configures a Fetcher.
type Option func(*options)

type options struct {
	onBreakerChange func(name string, from, to resilience.State)
}

// WithBreakerListener reports circuit breaker transitions to fn.
func WithBreakerListener(fn func(name string, from, to resilience.State)) Option {
	return func(o *options) {
		o.onBreakerChange = fn
	}
}

// New creates a fetcher. Transport errors and 5xx responses are retried by the
// transport; the breaker opens after repeated upstream failures.
func New(cfg config.FetchConfig, logger *zap.Logger, opts ...Option) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = logging.NewLeveled(logger)

	client := resty.NewWithClient(retryClient.StandardClient()).
		SetTimeout(cfg.Timeout).
		SetLogger(logging.NewPrintf(logger)).
		SetHeader("Accept", "application/x-ipynb+json, application/json;q=0.9, */*;q=0.1")
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	breaker := resilience.New("document-fetch", resilience.Settings{
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 20 && counts.FailureRatio() > 0.7)
		},
		// A 4xx or an oversized body means the server is up; only transport
		// errors and 5xx count.
		IsSuccessful: func(err error) bool {
			if errors.Is(err, ErrTooLarge) {
				return true
			}
			var status *StatusError
			if errors.As(err, &status) {
				return status.Status < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
			if o.onBreakerChange != nil {
				o.onBreakerChange(name, from, to)
			}
		},
	})

	return &Fetcher{
		resty:      client,
		limiter:    limiter,
		breaker:    breaker,
		maxBytes:   cfg.MaxBytes,
		allowFiles: cfg.AllowFiles,
		logger:     logger,
	}
}

// Fetch loads and parses the document at rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*notebook.Document, error) {
	start := time.Now()

	var data []byte
	var err error
	if path, ok := localPath(rawURL); ok {
		data, err = f.readFile(path)
	} else {
		data, err = f.get(ctx, rawURL)
	}
	if err != nil {
		return nil, err
	}

	doc, err := notebook.Parse(data)
	if err != nil {
		return nil, err
	}

	f.logger.Debug("Fetched document",
		zap.String("url", rawURL),
		zap.Int("bytes", len(data)),
		zap.Int("cells", len(doc.Cells)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return doc, nil
}

// BreakerState returns the current circuit breaker state
func (f *Fetcher) BreakerState() resilience.State {
	return f.breaker.State()
}

// fetched is a response body read under the size limit.
type fetched struct {
	body        []byte
	contentType string
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	res, err := resilience.Execute(f.breaker, func() (fetched, error) {
		headers := map[string]string{}
		tracing.InjectTraceContext(ctx, headers)
		resp, err := f.resty.R().
			SetContext(ctx).
			SetHeaders(headers).
			SetDoNotParseResponse(true).
			Get(rawURL)
		if err != nil {
			return fetched{}, err
		}
		body := resp.RawBody()
		defer body.Close()
		if resp.IsError() {
			return fetched{}, &StatusError{URL: rawURL, Status: resp.StatusCode()}
		}
		data, err := readLimited(body, f.maxBytes)
		if err != nil {
			return fetched{}, err
		}
		return fetched{body: data, contentType: resp.Header().Get("Content-Type")}, nil
	})
	if err != nil {
		return nil, err
	}
	return toUTF8(res.body, res.contentType)
}

// readLimited reads r up to limit bytes, failing with ErrTooLarge as soon as the
// body runs past it. A limit of 0 reads everything.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return data, nil
}

func (f *Fetcher) readFile(path string) ([]byte, error) {
	if !f.allowFiles {
		return nil, fmt.Errorf("%w: %s", ErrFilesDisabled, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if f.maxBytes > 0 && info.Size() > f.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return toUTF8(data, "")
}

// localPath reports whether rawURL names a file: a file:// URL or a path
// without a scheme.
func localPath(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	switch {
	case u.Scheme == "file":
		return u.Path, true
	case u.Scheme == "" && !strings.HasPrefix(rawURL, "//"):
		return rawURL, true
	default:
		return "", false
	}
}
