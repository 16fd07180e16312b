// Package github searches GitHub for repositories that publish proxy
// subscriptions and downloads their candidate files.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/proxyharvest/internal/fetcher/colly"
	"github.com/JakeFAU/proxyharvest/internal/logging"
	"github.com/JakeFAU/proxyharvest/internal/metrics"
)

// Name is the source label used for pacing, logs and metrics.
const Name = "github"

var (
	defaultBranches = []string{"main", "master"}

	// commonFiles are always fetched when present, ahead of the fuzzy matches.
	commonFiles = []string{"subscribe/v2ray.txt", "v2ray.txt", "clash.yaml", "config.yaml", "sub.txt", "nodes.txt"}
	fileExts    = []string{".txt", ".yaml", ".yml", ".json", ".conf"}
	pathHints   = []string{"v2ray", "clash", "sub", "nodes", "proxy"}
)

// Doer executes HTTP requests.
type Doer interface {
	Do(ctx context.Context, request collyfetcher.Request) (collyfetcher.Response, error)
}

// Pacer spaces calls per key.
type Pacer interface {
	Wait(ctx context.Context, key string) error
}

// Config controls the GitHub client.
type Config struct {
	Token          string
	PerPage        int
	MaxFiles       int
	APIBaseURL     string
	RawBaseURL     string
	RequestTimeout time.Duration
	RawTimeout     time.Duration
	Branches       []string
}

// Client implements harvest.Searcher and harvest.RepoFetcher against the
// GitHub REST API.
type Client struct {
	cfg    Config
	http   Doer
	pacer  Pacer
	logger *zap.Logger
}

// New constructs a Client. pacer may be nil.
func New(cfg Config, doer Doer, pacer Pacer, logger *zap.Logger) *Client {
	if cfg.PerPage <= 0 {
		cfg.PerPage = 30
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 30
	}
	if len(cfg.Branches) == 0 {
		cfg.Branches = defaultBranches
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	cfg.RawBaseURL = strings.TrimRight(cfg.RawBaseURL, "/")
	return &Client{
		cfg:    cfg,
		http:   doer,
		pacer:  pacer,
		logger: logging.OrNop(logger),
	}
}

// Name implements harvest.Searcher.
func (c *Client) Name() string {
	return Name
}

type searchResponse struct {
	Items []struct {
		FullName string `json:"full_name"`
	} `json:"items"`
}

// Search returns repository full names (owner/repo) matching keyword, most
// recently updated first.
func (c *Client) Search(ctx context.Context, keyword string) ([]string, error) {
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx, Name); err != nil {
			return nil, err
		}
	}
	q := url.Values{}
	q.Set("q", keyword)
	q.Set("sort", "updated")
	q.Set("order", "desc")
	q.Set("per_page", strconv.Itoa(c.cfg.PerPage))

	resp, err := c.http.Do(ctx, collyfetcher.Request{
		Method:  http.MethodGet,
		URL:     c.cfg.APIBaseURL + "/search/repositories?" + q.Encode(),
		Headers: c.apiHeaders(),
		Timeout: c.cfg.RequestTimeout,
	})
	if err != nil {
		metrics.ObserveCollectorRequest(Name, "error")
		return nil, fmt.Errorf("search %q: %w", keyword, err)
	}
	metrics.ObserveCollectorRequest(Name, strconv.Itoa(resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search %q: unexpected status %d", keyword, resp.StatusCode)
	}

	var body searchResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	repos := make([]string, 0, len(body.Items))
	for _, item := range body.Items {
		if item.FullName != "" {
			repos = append(repos, item.FullName)
		}
	}
	return repos, nil
}

type treeResponse struct {
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"`
	} `json:"tree"`
}

// FetchFiles returns the text of every candidate subscription file on the
// repository's main and master branches. Missing branches and files are
// skipped; an error is returned only when no branch could be listed because
// of transport failures.
func (c *Client) FetchFiles(ctx context.Context, repo string) ([]string, error) {
	var (
		contents []string
		errs     []error
		listed   bool
	)
	for _, branch := range c.cfg.Branches {
		paths, ok, err := c.candidates(ctx, repo, branch)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		listed = true
		for _, p := range paths {
			text, ok := c.fetchRaw(ctx, repo, branch, p)
			if ok {
				contents = append(contents, text)
			}
		}
	}
	if !listed && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return contents, nil
}

func (c *Client) candidates(ctx context.Context, repo, branch string) ([]string, bool, error) {
	resp, err := c.http.Do(ctx, collyfetcher.Request{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("%s/repos/%s/git/trees/%s?recursive=1", c.cfg.APIBaseURL, repo, url.PathEscape(branch)),
		Headers: c.apiHeaders(),
		Timeout: c.cfg.RequestTimeout,
	})
	if err != nil {
		metrics.ObserveCollectorRequest(Name, "error")
		return nil, false, fmt.Errorf("list %s@%s: %w", repo, branch, err)
	}
	metrics.ObserveCollectorRequest(Name, strconv.Itoa(resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		return nil, false, nil
	}
	var tree treeResponse
	if err := json.Unmarshal(resp.Body, &tree); err != nil {
		return nil, false, fmt.Errorf("decode tree %s@%s: %w", repo, branch, err)
	}
	blobs := make([]string, 0, len(tree.Tree))
	for _, item := range tree.Tree {
		if item.Type == "blob" && item.Path != "" {
			blobs = append(blobs, item.Path)
		}
	}
	return SelectCandidates(blobs, c.cfg.MaxFiles), true, nil
}

func (c *Client) fetchRaw(ctx context.Context, repo, branch, filePath string) (string, bool) {
	resp, err := c.http.Do(ctx, collyfetcher.Request{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("%s/%s/%s/%s", c.cfg.RawBaseURL, repo, url.PathEscape(branch), escapePath(filePath)),
		Timeout: c.cfg.RawTimeout,
	})
	if err != nil {
		c.logger.Debug("raw fetch failed",
			zap.String("repo", repo),
			zap.String("path", filePath),
			zap.Error(err),
		)
		return "", false
	}
	if resp.StatusCode != http.StatusOK {
		return "", false
	}
	return string(resp.Body), true
}

func (c *Client) apiHeaders() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/vnd.github.v3+json")
	if c.cfg.Token != "" {
		h.Set("Authorization", "token "+c.cfg.Token)
	}
	return h
}

// SelectCandidates picks which blobs to download: exact common file names
// first, then files with a config-like extension whose lower-cased path
// mentions a subscription hint. At most limit paths are returned.
func SelectCandidates(blobs []string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) bool {
		if _, dup := seen[p]; dup {
			return len(out) < limit
		}
		seen[p] = struct{}{}
		out = append(out, p)
		return len(out) < limit
	}

	for _, p := range blobs {
		if isCommonFile(p) && !add(p) {
			return out
		}
	}
	for _, p := range blobs {
		lower := strings.ToLower(p)
		if !hasAny(path.Ext(lower), fileExts, strings.EqualFold) {
			continue
		}
		if !hasAny(lower, pathHints, strings.Contains) {
			continue
		}
		if !add(p) {
			return out
		}
	}
	return out
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func isCommonFile(p string) bool {
	for _, f := range commonFiles {
		if p == f {
			return true
		}
	}
	return false
}

func hasAny(s string, candidates []string, match func(string, string) bool) bool {
	for _, c := range candidates {
		if match(s, c) {
			return true
		}
	}
	return false
}
