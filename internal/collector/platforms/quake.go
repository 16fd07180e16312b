package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"

	collyfetcher "github.com/JakeFAU/proxyharvest/internal/fetcher/colly"
)

// QuakeName labels the Quake searcher.
const QuakeName = "quake"

// Quake searches service responses on quake.360.net.
type Quake struct {
	cfg   Config
	http  Doer
	pacer Pacer
}

// NewQuake constructs a Quake searcher.
func NewQuake(cfg Config, doer Doer, pacer Pacer) *Quake {
	return &Quake{cfg: cfg, http: doer, pacer: pacer}
}

// Name implements harvest.Searcher.
func (q *Quake) Name() string { return QuakeName }

type quakeRequest struct {
	Query string `json:"query"`
	Start int    `json:"start"`
	Size  int    `json:"size"`
}

type quakeResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    []struct {
		IP   string `json:"ip"`
		Port int    `json:"port"`
	} `json:"data"`
}

// Search returns http://ip:port for every service whose response contains
// keyword. Without an API key it returns nothing.
func (q *Quake) Search(ctx context.Context, keyword string) ([]string, error) {
	if q.cfg.APIKey == "" {
		return nil, nil
	}
	if err := wait(ctx, q.pacer, QuakeName); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(quakeRequest{
		Query: fmt.Sprintf("response:%q", keyword),
		Start: 0,
		Size:  q.cfg.pageSize(100),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal quake query: %w", err)
	}
	headers := http.Header{}
	headers.Set("X-QuakeToken", q.cfg.APIKey)
	headers.Set("Content-Type", "application/json")

	resp, err := q.http.Do(ctx, collyfetcher.Request{
		Method:  http.MethodPost,
		URL:     q.cfg.BaseURL,
		Headers: headers,
		Body:    payload,
		Timeout: q.cfg.Timeout,
	})
	if err != nil {
		observe(QuakeName, "error")
		return nil, fmt.Errorf("quake request: %w", err)
	}
	observe(QuakeName, strconv.Itoa(resp.StatusCode))

	var body quakeResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("decode quake response (status %d): %w", resp.StatusCode, err)
	}
	if body.Code != 0 {
		return nil, fmt.Errorf("quake error %d: %s", body.Code, body.Message)
	}
	urls := make([]string, 0, len(body.Data))
	for _, item := range body.Data {
		if item.IP == "" {
			continue
		}
		urls = append(urls, "http://"+net.JoinHostPort(item.IP, strconv.Itoa(item.Port)))
	}
	return urls, nil
}
