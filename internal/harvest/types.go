package harvest

import (
	"context"
	"errors"
	"strings"
	"time"
)

// PlatformSourcePrefix marks provenance tags produced by the platform phase.
const PlatformSourcePrefix = "platform:"

// ErrQueueClosed is returned by queues once they are closed and drained.
var ErrQueueClosed = errors.New("queue closed")

// ProxyNode is the only persisted entity. Rows are immutable once inserted.
type ProxyNode struct {
	ID         int64     `json:"id"`
	Protocol   string    `json:"protocol"`
	Link       string    `json:"link"`
	UniqueHash string    `json:"unique_hash"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

// SourceKind is the export category derived from a provenance tag.
type SourceKind string

// Export categories.
const (
	SourceGitHub   SourceKind = "github"
	SourcePlatform SourceKind = "platform"
)

// ClassifySource returns SourcePlatform when the tag carries the platform
// prefix and SourceGitHub for everything else.
func ClassifySource(source string) SourceKind {
	if strings.HasPrefix(source, PlatformSourcePrefix) {
		return SourcePlatform
	}
	return SourceGitHub
}

// PlatformSource builds the provenance tag for a URL found by a platform search.
func PlatformSource(url string) string {
	return PlatformSourcePrefix + url
}

// ProtocolOf returns the scheme token preceding the first "://". Links without
// a separator are returned unchanged.
func ProtocolOf(link string) string {
	proto, _, _ := strings.Cut(link, "://")
	return proto
}

// Partition splits nodes into github-origin and platform-origin sets,
// preserving input order within each set.
func Partition(nodes []ProxyNode) (github, platform []ProxyNode) {
	for _, n := range nodes {
		if ClassifySource(n.Source) == SourcePlatform {
			platform = append(platform, n)
			continue
		}
		github = append(github, n)
	}
	return github, platform
}

// Failure classifies why a harvest task contributed no links.
type Failure string

// Failure reasons attached to Result.
const (
	FailureNone         Failure = ""
	FailureFetch        Failure = "fetch"
	FailureEmpty        Failure = "empty"
	FailureHandlerPanic Failure = "panic"
	FailureCanceled     Failure = "canceled"
)

// Result is the outcome of one harvest task.
type Result struct {
	Location string
	Links    []string
	Failure  Failure
	Err      error
	Duration time.Duration
}

// OK reports whether the task produced at least one link.
func (r Result) OK() bool {
	return r.Failure == FailureNone && len(r.Links) > 0
}

// Succeeded builds a Result for a task that ran to completion. An empty link
// list is classified as FailureEmpty.
func Succeeded(location string, links []string) Result {
	if len(links) == 0 {
		return Result{Location: location, Failure: FailureEmpty}
	}
	return Result{Location: location, Links: links}
}

// Failed builds a Result for a task that could not fetch or parse its location.
func Failed(location string, reason Failure, err error) Result {
	return Result{Location: location, Failure: reason, Err: err}
}

// SaveSummary reports the outcome of persisting one batch.
type SaveSummary struct {
	Source          string `json:"source"`
	Total           int    `json:"total"`
	Saved           int    `json:"saved"`
	SkippedExisting int    `json:"skipped_existing"`
	SkippedInvalid  int    `json:"skipped_invalid"`
}

// Add accumulates another summary into s. Source is left untouched.
func (s *SaveSummary) Add(o SaveSummary) {
	s.Total += o.Total
	s.Saved += o.Saved
	s.SkippedExisting += o.SkippedExisting
	s.SkippedInvalid += o.SkippedInvalid
}

// Task is one unit of harvest work: a single location to fetch and parse.
type Task struct {
	Location string
	Seq      int
}

// Handler processes one location. Implementations perform only reads against
// external sources; persistence happens after the result is collected.
type Handler func(ctx context.Context, location string) Result
