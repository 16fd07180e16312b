// Package collyfetcher issues the harvester's outbound HTTP requests through
// gocolly: search API calls, repository file downloads and subscription URL
// fetches.
package collyfetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxBodySize caps response bodies in bytes. Zero keeps the colly default.
	MaxBodySize int
}

// Request describes one outbound call.
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
	// Timeout overrides Config.Timeout when positive.
	Timeout time.Duration
}

// Response captures the outcome of a request. Non-2xx statuses are returned
// as responses, not errors.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// OK reports whether the status is 2xx.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Fetcher executes requests using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.ParseHTTPErrorResponse = true
	if cfg.MaxBodySize > 0 {
		c.MaxBodySize = cfg.MaxBodySize
	}
	c.WithTransport(newHTTPTransport())
	// Clones share the HTTP client, so deadlines travel on the request context.
	c.SetRequestTimeout(0)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Do executes a single request.
func (f *Fetcher) Do(ctx context.Context, request Request) (Response, error) {
	var (
		result   Response
		fetchErr error
	)
	ctx, cancel := context.WithTimeout(ctx, f.timeout(request))
	defer cancel()

	start := time.Now()
	collector := f.buildCollector(ctx)
	f.configureCollectorHooks(collector, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, request, &fetchErr); err != nil {
		return Response{}, err
	}
	return result, nil
}

// FetchText GETs url and returns the body as text. Non-2xx statuses are errors.
func (f *Fetcher) FetchText(ctx context.Context, url string) (string, error) {
	resp, err := f.Do(ctx, Request{Method: http.MethodGet, URL: url})
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	return string(resp.Body), nil
}

func (f *Fetcher) buildCollector(ctx context.Context) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	return collector
}

func (f *Fetcher) timeout(request Request) time.Duration {
	if request.Timeout > 0 {
		return request.Timeout
	}
	if f.cfg.Timeout > 0 {
		return f.cfg.Timeout
	}
	return defaultTimeout
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *Response,
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		*result = Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, request Request, fetchErr *error) error {
	method := request.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(request.Body) > 0 {
		body = bytes.NewReader(request.Body)
	}
	headers := request.Headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}

	done := make(chan error, 1)
	go func() {
		done <- collector.Request(method, request.URL, body, nil, headers)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly request failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
