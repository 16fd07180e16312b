package platforms

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	collyfetcher "github.com/JakeFAU/proxyharvest/internal/fetcher/colly"
)

// DDGName labels the DuckDuckGo searcher.
const DDGName = "ddg"

// DDG scrapes the DuckDuckGo HTML endpoint.
type DDG struct {
	cfg   Config
	http  Doer
	pacer Pacer
}

// NewDDG constructs a DuckDuckGo searcher. It needs no API key.
func NewDDG(cfg Config, doer Doer, pacer Pacer) *DDG {
	return &DDG{cfg: cfg, http: doer, pacer: pacer}
}

// Name implements harvest.Searcher.
func (d *DDG) Name() string { return DDGName }

// Search returns result links for keyword combined with the common proxy
// scheme names, up to the configured result cap.
func (d *DDG) Search(ctx context.Context, keyword string) ([]string, error) {
	if err := wait(ctx, d.pacer, DDGName); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("q", fmt.Sprintf("%q (vmess OR vless OR trojan OR ss)", keyword))

	resp, err := d.http.Do(ctx, collyfetcher.Request{
		Method:  http.MethodGet,
		URL:     d.cfg.BaseURL + "?" + q.Encode(),
		Timeout: d.cfg.Timeout,
	})
	if err != nil {
		observe(DDGName, "error")
		return nil, fmt.Errorf("ddg request: %w", err)
	}
	observe(DDGName, strconv.Itoa(resp.StatusCode))
	if !resp.OK() {
		return nil, fmt.Errorf("ddg request: unexpected status %d", resp.StatusCode)
	}
	return ParseDDGResults(resp.Body, d.cfg.pageSize(20))
}

// ParseDDGResults extracts result links from a DuckDuckGo HTML page,
// unwrapping redirect links.
func ParseDDGResults(page []byte, limit int) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse ddg html: %w", err)
	}
	var out []string
	doc.Find("a.result__a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		if link := unwrapRedirect(href); link != "" {
			out = append(out, link)
		}
		return limit <= 0 || len(out) < limit
	})
	return out, nil
}

func unwrapRedirect(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
