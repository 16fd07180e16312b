// Package export renders persisted nodes into subscription files: a combined
// list, per-category lists, dated copies of each and a base64 encoding of the
// combined list.
package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/proxyharvest/internal/harvest"
	"github.com/JakeFAU/proxyharvest/internal/logging"
	"github.com/JakeFAU/proxyharvest/internal/metrics"
)

// File names of the per-category subscriptions.
const (
	GitHubFile   = "sub_github.txt"
	PlatformFile = "sub_platform.txt"

	contentType = "text/plain; charset=utf-8"
	dateLayout  = "2006/01/02"
)

// Config sets the output locations.
type Config struct {
	// Path is the combined latest subscription. Its directory is the export root.
	Path string
	// Base64Path receives the base64 form of the combined subscription.
	Base64Path string
	// Limit caps how many nodes are exported, newest first. Zero exports all.
	Limit int
	// RunID tags the completion notification.
	RunID string
}

// Report describes one export.
type Report struct {
	Total    int
	GitHub   int
	Platform int
	Files    []string
}

// Notification is the payload published after a successful export.
type Notification struct {
	RunID     string    `json:"run_id"`
	Exported  int       `json:"exported"`
	GitHub    int       `json:"github"`
	Platform  int       `json:"platform"`
	Files     []string  `json:"files"`
	Timestamp time.Time `json:"timestamp"`
}

// Option customizes an Exporter.
type Option func(*Exporter)

// WithMirror copies every written artifact into an additional blob store.
func WithMirror(mirror harvest.BlobStore) Option {
	return func(e *Exporter) {
		e.mirror = mirror
	}
}

// WithNotifier publishes a Notification to topic after each successful export.
func WithNotifier(publisher harvest.Publisher, topic string) Option {
	return func(e *Exporter) {
		e.publisher = publisher
		e.topic = topic
	}
}

// Exporter writes subscription artifacts.
type Exporter struct {
	cfg       Config
	store     harvest.NodeReader
	writer    harvest.BlobStore
	clock     harvest.Clock
	logger    *zap.Logger
	mirror    harvest.BlobStore
	publisher harvest.Publisher
	topic     string
}

// New constructs an Exporter.
func New(
	cfg Config,
	store harvest.NodeReader,
	writer harvest.BlobStore,
	clock harvest.Clock,
	logger *zap.Logger,
	opts ...Option,
) *Exporter {
	e := &Exporter{
		cfg:    cfg,
		store:  store,
		writer: writer,
		clock:  clock,
		logger: logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type artifact struct {
	path string
	data []byte
}

// Export reads the store and writes every artifact. A failed write does not
// stop the others; all write errors are joined into the returned error.
func (e *Exporter) Export(ctx context.Context) (Report, error) {
	if e.store == nil || e.writer == nil {
		return Report{}, errors.New("exporter is not configured")
	}
	nodes, err := e.store.ListNodes(ctx, e.cfg.Limit)
	if err != nil {
		return Report{}, fmt.Errorf("list nodes: %w", err)
	}
	github, platform := harvest.Partition(nodes)
	report := Report{Total: len(nodes), GitHub: len(github), Platform: len(platform)}

	var errs []error
	for _, a := range e.plan(Render(nodes), Render(github), Render(platform)) {
		uri, err := e.put(ctx, a)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		report.Files = append(report.Files, uri)
	}
	if err := errors.Join(errs...); err != nil {
		return report, err
	}

	e.notify(ctx, report)
	return report, nil
}

// Run exports and logs the outcome. It never fails the caller.
func (e *Exporter) Run(ctx context.Context) Report {
	report, err := e.Export(ctx)
	if err != nil {
		e.logger.Error("export failed",
			zap.Int("written", len(report.Files)),
			zap.Error(err),
		)
		return report
	}
	e.logger.Info("export complete",
		zap.Int("total", report.Total),
		zap.Int("github", report.GitHub),
		zap.Int("platform", report.Platform),
		zap.Int("files", len(report.Files)),
	)
	return report
}

// Paths returns the artifact paths an export at now would write, in order.
func (e *Exporter) Paths(now time.Time) []string {
	var out []string
	for _, a := range e.planAt(now, nil, nil, nil) {
		out = append(out, a.path)
	}
	return out
}

func (e *Exporter) plan(combined, github, platform []byte) []artifact {
	return e.planAt(e.now(), combined, github, platform)
}

func (e *Exporter) planAt(now time.Time, combined, github, platform []byte) []artifact {
	root := filepath.Dir(e.cfg.Path)
	dated := filepath.FromSlash(now.UTC().Format(dateLayout))

	var out []artifact
	if e.cfg.Path != "" {
		out = append(out,
			artifact{path: e.cfg.Path, data: combined},
			artifact{path: filepath.Join(root, dated, filepath.Base(e.cfg.Path)), data: combined},
		)
	}
	out = append(out, category(root, dated, string(harvest.SourceGitHub), GitHubFile, github)...)
	out = append(out, category(root, dated, string(harvest.SourcePlatform), PlatformFile, platform)...)
	if e.cfg.Base64Path != "" {
		encoded := make([]byte, base64.StdEncoding.EncodedLen(len(combined)))
		base64.StdEncoding.Encode(encoded, combined)
		out = append(out, artifact{path: e.cfg.Base64Path, data: encoded})
	}
	return out
}

func category(root, dated, dir, name string, data []byte) []artifact {
	return []artifact{
		{path: filepath.Join(root, name), data: data},
		{path: filepath.Join(root, dated, name), data: data},
		{path: filepath.Join(root, dir, dated, name), data: data},
	}
}

func (e *Exporter) put(ctx context.Context, a artifact) (string, error) {
	uri, err := e.writer.PutObject(ctx, a.path, contentType, bytes.NewReader(a.data))
	if err != nil {
		metrics.ObserveExportFile("local", "error")
		e.logger.Warn("export write failed", zap.String("path", a.path), zap.Error(err))
		return "", fmt.Errorf("write %s: %w", a.path, err)
	}
	metrics.ObserveExportFile("local", "ok")

	if e.mirror != nil {
		if mirrorURI, err := e.mirror.PutObject(ctx, a.path, contentType, bytes.NewReader(a.data)); err != nil {
			metrics.ObserveExportFile("mirror", "error")
			e.logger.Warn("export mirror failed", zap.String("path", a.path), zap.Error(err))
		} else {
			metrics.ObserveExportFile("mirror", "ok")
			e.logger.Debug("export mirrored", zap.String("uri", mirrorURI))
		}
	}
	return uri, nil
}

func (e *Exporter) notify(ctx context.Context, report Report) {
	if e.publisher == nil || e.topic == "" {
		return
	}
	msg := Notification{
		RunID:     e.cfg.RunID,
		Exported:  report.Total,
		GitHub:    report.GitHub,
		Platform:  report.Platform,
		Files:     report.Files,
		Timestamp: e.now(),
	}
	id, err := e.publisher.Publish(ctx, e.topic, msg)
	if err != nil {
		e.logger.Warn("export notification failed", zap.String("topic", e.topic), zap.Error(err))
		return
	}
	e.logger.Debug("export notification published", zap.String("message_id", id))
}

func (e *Exporter) now() time.Time {
	if e.clock == nil {
		return time.Now().UTC()
	}
	return e.clock.Now().UTC()
}

// Render writes one trimmed link per line, skipping blank links.
func Render(nodes []harvest.ProxyNode) []byte {
	var b bytes.Buffer
	for _, n := range nodes {
		link := strings.TrimSpace(n.Link)
		if link == "" {
			continue
		}
		b.WriteString(link)
		b.WriteByte('\n')
	}
	return b.Bytes()
}
