// Package extract pulls proxy share links out of arbitrary text: plain
// listings, YAML or JSON configs, HTML pages and base64-encoded subscriptions.
package extract

import (
	"encoding/base64"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Schemes are the link schemes the extractor recognizes.
var Schemes = []string{
	"vmess", "vless", "trojan", "ssr", "ss",
	"hysteria2", "hysteria", "hy2", "tuic", "wireguard", "socks5",
}

var (
	linkPattern = regexp.MustCompile(`(?i)\b(?:` + strings.Join(Schemes, "|") + `)://[^\s"'<>\x{FFFD}` + "`" + `]+`)
	b64Pattern  = regexp.MustCompile(`^[A-Za-z0-9+/_=-]+$`)
)

const (
	trailingJunk = `,;)]}'"\`
	minBase64Len = 16
	maxDepth     = 2
)

// Extractor implements harvest.Extractor.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Parse returns the distinct links in text in first-seen order.
func (e *Extractor) Parse(text string) []string {
	c := collector{seen: make(map[string]struct{})}
	c.scan(text, 0)
	return c.out
}

type collector struct {
	seen map[string]struct{}
	out  []string
}

func (c *collector) scan(text string, depth int) {
	if text == "" {
		return
	}
	// Pages in GBK or Latin-1 still carry ASCII links.
	text = strings.ToValidUTF8(text, "\uFFFD")
	for _, m := range linkPattern.FindAllString(text, -1) {
		c.add(strings.TrimRight(m, trailingJunk))
	}
	if depth >= maxDepth {
		return
	}
	if decoded, ok := decodeBase64(text); ok {
		c.scan(decoded, depth+1)
		return
	}
	for _, line := range strings.Split(text, "\n") {
		if decoded, ok := decodeBase64(line); ok {
			c.scan(decoded, depth+1)
		}
	}
}

func (c *collector) add(link string) {
	if !strings.Contains(link, "://") || strings.HasSuffix(link, "://") {
		return
	}
	if _, dup := c.seen[link]; dup {
		return
	}
	c.seen[link] = struct{}{}
	c.out = append(c.out, link)
}

// decodeBase64 reports the decoded text when s is a base64 blob whose
// contents look like share links.
func decodeBase64(s string) (string, bool) {
	compact := strings.Join(strings.Fields(s), "")
	if len(compact) < minBase64Len || !b64Pattern.MatchString(compact) {
		return "", false
	}
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		b, err := enc.DecodeString(compact)
		if err != nil {
			continue
		}
		if decoded := string(b); utf8.ValidString(decoded) && strings.Contains(decoded, "://") {
			return decoded, true
		}
	}
	return "", false
}
