package platforms

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	collyfetcher "github.com/JakeFAU/proxyharvest/internal/fetcher/colly"
)

// HunterName labels the Hunter searcher.
const HunterName = "hunter"

// Hunter searches web bodies on hunter.qianxin.com.
type Hunter struct {
	cfg   Config
	http  Doer
	pacer Pacer
}

// NewHunter constructs a Hunter searcher.
func NewHunter(cfg Config, doer Doer, pacer Pacer) *Hunter {
	return &Hunter{cfg: cfg, http: doer, pacer: pacer}
}

// Name implements harvest.Searcher.
func (h *Hunter) Name() string { return HunterName }

type hunterResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Arr []struct {
			URL string `json:"url"`
		} `json:"arr"`
	} `json:"data"`
}

// Search returns URLs whose page body contains keyword. Without an API key
// it returns nothing.
func (h *Hunter) Search(ctx context.Context, keyword string) ([]string, error) {
	if h.cfg.APIKey == "" {
		return nil, nil
	}
	if err := wait(ctx, h.pacer, HunterName); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("web.body=%q", keyword)
	q := url.Values{}
	q.Set("api-key", h.cfg.APIKey)
	q.Set("search", base64.URLEncoding.EncodeToString([]byte(query)))
	q.Set("page", "1")
	q.Set("page_size", strconv.Itoa(h.cfg.pageSize(100)))
	q.Set("is_web", "3")

	resp, err := h.http.Do(ctx, collyfetcher.Request{
		Method:  http.MethodGet,
		URL:     h.cfg.BaseURL + "?" + q.Encode(),
		Timeout: h.cfg.Timeout,
	})
	if err != nil {
		observe(HunterName, "error")
		return nil, fmt.Errorf("hunter request: %w", err)
	}
	observe(HunterName, strconv.Itoa(resp.StatusCode))

	var body hunterResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("decode hunter response (status %d): %w", resp.StatusCode, err)
	}
	if body.Code != http.StatusOK {
		return nil, fmt.Errorf("hunter error %d: %s", body.Code, body.Message)
	}
	urls := make([]string, 0, len(body.Data.Arr))
	for _, item := range body.Data.Arr {
		if item.URL != "" {
			urls = append(urls, item.URL)
		}
	}
	return urls, nil
}
