// Package persist implements the dedup and persistence stage: candidate links
// are hashed, checked against the store, probed for liveness and committed in
// a single transaction per batch.
package persist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/proxyharvest/internal/harvest"
	"github.com/JakeFAU/proxyharvest/internal/logging"
	"github.com/JakeFAU/proxyharvest/internal/metrics"
)

// Saver persists batches of candidate links.
type Saver struct {
	store     harvest.NodeStore
	validator harvest.Validator
	hasher    harvest.Hasher
	clock     harvest.Clock
	logger    *zap.Logger
}

// New constructs a Saver.
func New(
	store harvest.NodeStore,
	validator harvest.Validator,
	hasher harvest.Hasher,
	clock harvest.Clock,
	logger *zap.Logger,
) *Saver {
	return &Saver{
		store:     store,
		validator: validator,
		hasher:    hasher,
		clock:     clock,
		logger:    logging.OrNop(logger),
	}
}

// Save stores every new, live link from one source. The batch is all or
// nothing: on any store error the transaction is rolled back, Saved is zero
// and the error is returned.
func (s *Saver) Save(ctx context.Context, links []string, source string) (harvest.SaveSummary, error) {
	summary := harvest.SaveSummary{Source: source, Total: len(links)}
	if len(links) == 0 {
		return summary, nil
	}
	if s.store == nil || s.hasher == nil {
		return summary, errors.New("saver is not configured")
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		metrics.ObserveBatch("begin_failed")
		return summary, fmt.Errorf("begin batch: %w", err)
	}

	staged, err := s.stage(ctx, tx, links, source, &summary)
	if err == nil {
		err = tx.Commit(ctx)
		if err != nil {
			err = fmt.Errorf("commit batch: %w", err)
		}
	}
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.logger.Warn("rollback failed", zap.String("source", source), zap.Error(rbErr))
		}
		metrics.ObserveBatch("rolled_back")
		summary.Saved = 0
		return summary, err
	}

	summary.Saved = staged
	metrics.ObserveBatch("committed")
	kind := string(harvest.ClassifySource(source))
	metrics.ObserveLinks(kind, "saved", summary.Saved)
	metrics.ObserveLinks(kind, "skipped_existing", summary.SkippedExisting)
	metrics.ObserveLinks(kind, "skipped_invalid", summary.SkippedInvalid)

	s.logger.Info("batch saved",
		zap.String("source", summary.Source),
		zap.Int("total", summary.Total),
		zap.Int("saved", summary.Saved),
		zap.Int("skipped_existing", summary.SkippedExisting),
		zap.Int("skipped_invalid", summary.SkippedInvalid),
	)
	return summary, nil
}

func (s *Saver) stage(
	ctx context.Context,
	tx harvest.NodeTx,
	links []string,
	source string,
	summary *harvest.SaveSummary,
) (int, error) {
	seen := make(map[string]struct{}, len(links))
	staged := 0
	for _, link := range links {
		hash, err := s.hasher.Hash([]byte(link))
		if err != nil {
			return 0, fmt.Errorf("hash link: %w", err)
		}
		if _, dup := seen[hash]; dup {
			summary.SkippedExisting++
			continue
		}
		exists, err := tx.Exists(ctx, hash)
		if err != nil {
			return 0, fmt.Errorf("lookup %s: %w", hash, err)
		}
		if exists {
			seen[hash] = struct{}{}
			summary.SkippedExisting++
			continue
		}
		if !s.alive(ctx, link) {
			summary.SkippedInvalid++
			continue
		}
		node := &harvest.ProxyNode{
			Protocol:   harvest.ProtocolOf(strings.TrimSpace(link)),
			Link:       link,
			UniqueHash: hash,
			Source:     source,
			CreatedAt:  s.now(),
		}
		if err := tx.Insert(ctx, node); err != nil {
			return 0, fmt.Errorf("insert %s: %w", hash, err)
		}
		seen[hash] = struct{}{}
		staged++
	}
	return staged, nil
}

func (s *Saver) alive(ctx context.Context, link string) bool {
	if s.validator == nil {
		return true
	}
	return s.validator.IsAlive(ctx, link)
}

func (s *Saver) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now().UTC()
}
