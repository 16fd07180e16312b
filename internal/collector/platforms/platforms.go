// Package platforms queries cyberspace search engines (Hunter, Quake) and a
// web search engine (DuckDuckGo) for URLs that may serve proxy subscriptions.
package platforms

import (
	"context"
	"time"

	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/proxyharvest/internal/fetcher/colly"
	"github.com/JakeFAU/proxyharvest/internal/harvest"
	"github.com/JakeFAU/proxyharvest/internal/logging"
	"github.com/JakeFAU/proxyharvest/internal/metrics"
)

// Doer executes HTTP requests.
type Doer interface {
	Do(ctx context.Context, request collyfetcher.Request) (collyfetcher.Response, error)
}

// Pacer spaces calls per key.
type Pacer interface {
	Wait(ctx context.Context, key string) error
}

// Config is shared by every platform searcher.
type Config struct {
	BaseURL string
	APIKey  string
	// PageSize is the result count requested from Hunter and Quake, and the
	// result cap for DuckDuckGo.
	PageSize int
	Timeout  time.Duration
}

func (c Config) pageSize(fallback int) int {
	if c.PageSize > 0 {
		return c.PageSize
	}
	return fallback
}

func wait(ctx context.Context, pacer Pacer, key string) error {
	if pacer == nil {
		return nil
	}
	return pacer.Wait(ctx, key)
}

// SearchAll runs every keyword through every searcher, in keyword order, and
// returns the distinct URLs in first-seen order. A failing searcher is logged
// and contributes nothing for that keyword.
func SearchAll(ctx context.Context, searchers []harvest.Searcher, keywords []string, logger *zap.Logger) []string {
	logger = logging.OrNop(logger)
	seen := make(map[string]struct{})
	var out []string
	for _, kw := range keywords {
		if ctx.Err() != nil {
			logger.Warn("search interrupted", zap.Error(ctx.Err()))
			break
		}
		for _, s := range searchers {
			urls, err := s.Search(ctx, kw)
			if err != nil {
				logger.Warn("search failed",
					zap.String("searcher", s.Name()),
					zap.String("keyword", kw),
					zap.Error(err),
				)
				continue
			}
			added := 0
			for _, u := range urls {
				if u == "" {
					continue
				}
				if _, dup := seen[u]; dup {
					continue
				}
				seen[u] = struct{}{}
				out = append(out, u)
				added++
			}
			logger.Debug("search finished",
				zap.String("searcher", s.Name()),
				zap.String("keyword", kw),
				zap.Int("results", len(urls)),
				zap.Int("new", added),
			)
		}
	}
	return out
}

func observe(source string, status string) {
	metrics.ObserveCollectorRequest(source, status)
}
