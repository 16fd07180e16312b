// Package pipeline runs one end-to-end harvest: the GitHub phase, the platform
// phase and the export, in that order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/proxyharvest/internal/collector/platforms"
	"github.com/JakeFAU/proxyharvest/internal/dispatcher"
	"github.com/JakeFAU/proxyharvest/internal/export"
	"github.com/JakeFAU/proxyharvest/internal/harvest"
	"github.com/JakeFAU/proxyharvest/internal/keywords"
	"github.com/JakeFAU/proxyharvest/internal/logging"
	"github.com/JakeFAU/proxyharvest/internal/metrics"
)

// Phase names used in logs, metrics and the summary table.
const (
	PhaseGitHub    = "github"
	PhasePlatforms = "platforms"
	PhaseExport    = "export"
)

var tracer = otel.Tracer("github.com/JakeFAU/proxyharvest/internal/pipeline")

// Saver persists one batch of links under a provenance tag.
type Saver interface {
	Save(ctx context.Context, links []string, source string) (harvest.SaveSummary, error)
}

// Exporter writes the subscription artifacts.
type Exporter interface {
	Run(ctx context.Context) export.Report
}

// Deps are the collaborators a Runner drives. Phases whose sources are missing
// are skipped.
type Deps struct {
	GitHubSearcher    harvest.Searcher
	RepoFetcher       harvest.RepoFetcher
	PlatformSearchers []harvest.Searcher
	URLFetcher        harvest.URLFetcher
	Extractor         harvest.Extractor
	Saver             Saver
	Exporter          Exporter
	Dispatcher        *dispatcher.Dispatcher
	IDs               harvest.IDGenerator
}

// Config toggles phases and bounds the keyword sets.
type Config struct {
	RunGitHub           bool
	RunPlatforms        bool
	GitHubVocabulary    keywords.Vocabulary
	PlatformVocabulary  keywords.Vocabulary
	MaxGitHubKeywords   int
	MaxPlatformKeywords int
	// RunID labels the run. When empty one is drawn from Deps.IDs.
	RunID string
	// PushgatewayURL receives the run's metrics when set.
	PushgatewayURL string
}

// PhaseSummary reports one harvest phase.
type PhaseSummary struct {
	Name       string
	Enabled    bool
	Keywords   int
	Locations  int
	Productive int
	Saved      harvest.SaveSummary
	// SaveErrors counts batches whose transaction was rolled back.
	SaveErrors int
	Duration   time.Duration
}

// Summary reports a whole run.
type Summary struct {
	RunID    string
	Phases   []PhaseSummary
	Export   export.Report
	Duration time.Duration
}

// Saved returns the number of links persisted across every phase.
func (s Summary) Saved() int {
	total := 0
	for _, p := range s.Phases {
		total += p.Saved.Saved
	}
	return total
}

// Table renders the summary for terminal output.
func (s Summary) Table() string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle("run " + s.RunID)
	t.AppendHeader(table.Row{"Phase", "Keywords", "Locations", "Productive", "Links", "Saved", "Existing", "Invalid", "Duration"})
	for _, p := range s.Phases {
		if !p.Enabled {
			t.AppendRow(table.Row{p.Name, "-", "-", "-", "-", "-", "-", "-", "disabled"})
			continue
		}
		t.AppendRow(table.Row{
			p.Name,
			p.Keywords,
			p.Locations,
			p.Productive,
			p.Saved.Total,
			p.Saved.Saved,
			p.Saved.SkippedExisting,
			p.Saved.SkippedInvalid,
			p.Duration.Round(time.Millisecond).String(),
		})
	}
	t.AppendFooter(table.Row{
		"export", "", "", "", s.Export.Total,
		fmt.Sprintf("%d github", s.Export.GitHub),
		fmt.Sprintf("%d platform", s.Export.Platform),
		fmt.Sprintf("%d files", len(s.Export.Files)),
		s.Duration.Round(time.Millisecond).String(),
	})
	return t.Render()
}

// Runner executes runs.
type Runner struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs a Runner. A nil Dispatcher gets a single worker.
func New(deps Deps, cfg Config, logger *zap.Logger) *Runner {
	logger = logging.OrNop(logger)
	if deps.Dispatcher == nil {
		deps.Dispatcher = dispatcher.New(1, logger)
	}
	return &Runner{deps: deps, cfg: cfg, logger: logger}
}

// Run executes every enabled phase and the export. Persistence and source
// failures are logged and never abort the run; cancellation stops the harvest
// phases early but the export still runs.
func (r *Runner) Run(ctx context.Context) Summary {
	start := time.Now()
	summary := Summary{RunID: r.runID()}
	ctx, span := tracer.Start(ctx, "pipeline.run")
	span.SetAttributes(attribute.String("run_id", summary.RunID))
	defer span.End()

	logger := r.logger.With(zap.String("run_id", summary.RunID))
	logger.Info("run started",
		zap.Bool("github", r.cfg.RunGitHub),
		zap.Bool("platforms", r.cfg.RunPlatforms),
		zap.Int("workers", r.deps.Dispatcher.Workers()),
	)

	summary.Phases = append(summary.Phases,
		r.timed(ctx, PhaseGitHub, r.cfg.RunGitHub, logger, r.githubPhase),
		r.timed(ctx, PhasePlatforms, r.cfg.RunPlatforms, logger, r.platformPhase),
	)

	exportStart := time.Now()
	exportCtx, exportSpan := tracer.Start(context.WithoutCancel(ctx), "phase."+PhaseExport)
	if r.deps.Exporter != nil {
		summary.Export = r.deps.Exporter.Run(exportCtx)
	} else {
		logger.Warn("no exporter configured")
	}
	exportSpan.SetAttributes(attribute.Int("exported", summary.Export.Total))
	exportSpan.End()
	elapsed := time.Since(exportStart)
	metrics.ObservePhase(PhaseExport, elapsed)
	logger.Info(fmt.Sprintf("export phase took %s", elapsed.Round(time.Millisecond)))

	summary.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("saved", summary.Saved()))
	if ctx.Err() != nil {
		span.SetStatus(codes.Error, "run interrupted")
	}
	logger.Info("run finished",
		zap.Int("saved", summary.Saved()),
		zap.Int("exported", summary.Export.Total),
		zap.Duration("duration", summary.Duration),
	)
	r.push(ctx, summary.RunID, logger)
	return summary
}

type phaseFunc func(ctx context.Context, p *PhaseSummary, logger *zap.Logger)

func (r *Runner) timed(ctx context.Context, name string, enabled bool, logger *zap.Logger, body phaseFunc) PhaseSummary {
	p := PhaseSummary{Name: name, Enabled: enabled}
	if !enabled {
		logger.Info("phase disabled", zap.String("phase", name))
		return p
	}
	ctx, span := tracer.Start(ctx, "phase."+name)
	start := time.Now()
	body(ctx, &p, logger)
	p.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("locations", p.Locations),
		attribute.Int("saved", p.Saved.Saved),
		attribute.Int("save_errors", p.SaveErrors),
	)
	span.End()
	metrics.ObservePhase(name, p.Duration)
	logger.Info(fmt.Sprintf("%s phase took %s", name, p.Duration.Round(time.Millisecond)),
		zap.String("phase", name),
		zap.Int("locations", p.Locations),
		zap.Int("saved", p.Saved.Saved),
	)
	return p
}

func (r *Runner) githubPhase(ctx context.Context, p *PhaseSummary, logger *zap.Logger) {
	if r.deps.GitHubSearcher == nil || r.deps.RepoFetcher == nil {
		logger.Warn("github phase has no client configured")
		return
	}
	kws := keywords.Generate(r.cfg.GitHubVocabulary, r.cfg.MaxGitHubKeywords)
	p.Keywords = len(kws)
	repos := platforms.SearchAll(ctx, []harvest.Searcher{r.deps.GitHubSearcher}, kws, logger)
	p.Locations = len(repos)
	logger.Info("github repositories found", zap.Int("keywords", len(kws)), zap.Int("repos", len(repos)))

	r.harvest(ctx, p, repos, r.repoHandler, func(repo string) string { return repo }, logger)
}

func (r *Runner) platformPhase(ctx context.Context, p *PhaseSummary, logger *zap.Logger) {
	if len(r.deps.PlatformSearchers) == 0 || r.deps.URLFetcher == nil {
		logger.Warn("platform phase has no searchers configured")
		return
	}
	kws := keywords.Generate(r.cfg.PlatformVocabulary, r.cfg.MaxPlatformKeywords)
	p.Keywords = len(kws)
	urls := platforms.SearchAll(ctx, r.deps.PlatformSearchers, kws, logger)
	p.Locations = len(urls)
	logger.Info("platform urls found", zap.Int("keywords", len(kws)), zap.Int("urls", len(urls)))

	r.harvest(ctx, p, urls, r.urlHandler, harvest.PlatformSource, logger)
}

// harvest fans locations out over the pool and persists each productive
// result as it arrives. Saves run one at a time on this goroutine.
func (r *Runner) harvest(
	ctx context.Context,
	p *PhaseSummary,
	locations []string,
	handler harvest.Handler,
	source func(location string) string,
	logger *zap.Logger,
) {
	if len(locations) == 0 {
		return
	}
	failures := 0
	results := r.deps.Dispatcher.Run(ctx, p.Name, locations, handler)
	for res := range results {
		if !res.OK() {
			if res.Failure != harvest.FailureEmpty && res.Failure != harvest.FailureNone {
				failures++
			}
			continue
		}
		p.Productive++
		if r.deps.Saver == nil {
			continue
		}
		tag := source(res.Location)
		batch, err := r.deps.Saver.Save(ctx, res.Links, tag)
		if err != nil {
			p.SaveErrors++
			logger.Error("persist batch failed",
				zap.String("source", tag),
				zap.Int("links", len(res.Links)),
				zap.Error(err),
			)
		}
		p.Saved.Add(batch)
	}
	logger.Info("harvest fan-out finished",
		zap.String("phase", p.Name),
		zap.Int("locations", len(locations)),
		zap.Int("productive", p.Productive),
		zap.Int("failed", failures),
	)
}

func (r *Runner) repoHandler(ctx context.Context, repo string) harvest.Result {
	files, err := r.deps.RepoFetcher.FetchFiles(ctx, repo)
	if err != nil {
		return failed(ctx, repo, err)
	}
	return harvest.Succeeded(repo, r.extract(files...))
}

func (r *Runner) urlHandler(ctx context.Context, url string) harvest.Result {
	body, err := r.deps.URLFetcher.FetchText(ctx, url)
	if err != nil {
		return failed(ctx, url, err)
	}
	return harvest.Succeeded(url, r.extract(body))
}

// extract parses every text and returns the distinct links in first-seen order.
func (r *Runner) extract(texts ...string) []string {
	if r.deps.Extractor == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var links []string
	for _, text := range texts {
		for _, link := range r.deps.Extractor.Parse(text) {
			if strings.TrimSpace(link) == "" {
				continue
			}
			if _, dup := seen[link]; dup {
				continue
			}
			seen[link] = struct{}{}
			links = append(links, link)
		}
	}
	return links
}

func failed(ctx context.Context, location string, err error) harvest.Result {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return harvest.Failed(location, harvest.FailureCanceled, err)
	}
	return harvest.Failed(location, harvest.FailureFetch, err)
}

func (r *Runner) runID() string {
	if r.cfg.RunID != "" {
		return r.cfg.RunID
	}
	if r.deps.IDs == nil {
		return ""
	}
	id, err := r.deps.IDs.NewID()
	if err != nil {
		r.logger.Warn("generate run id", zap.Error(err))
		return ""
	}
	return id
}

func (r *Runner) push(ctx context.Context, runID string, logger *zap.Logger) {
	if r.cfg.PushgatewayURL == "" {
		return
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := metrics.Push(pushCtx, r.cfg.PushgatewayURL, runID); err != nil {
		logger.Warn("metrics push failed", zap.Error(err))
		return
	}
	logger.Debug("metrics pushed", zap.String("gateway", r.cfg.PushgatewayURL))
}
