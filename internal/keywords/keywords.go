// Package keywords builds the bounded search-term sets each source is queried
// with. Generation is pure: the same Vocabulary and cap always produce the same
// ordered sequence.
package keywords

import "strings"

// Vocabulary partitions the curated base terms into role classes.
type Vocabulary struct {
	// Protocols are scheme-like terms such as "vmess" or "trojan".
	Protocols []string
	// Nodes are context terms describing the artifact ("subscribe", "node list").
	Nodes []string
	// Meta terms only appear as the third element of a triple.
	Meta []string
	// Flags lead every combination ("free").
	Flags []string
	// Extras are hand-picked phrases emitted before anything generated.
	Extras []string
}

// DefaultPlatformVocabulary is the vocabulary used for recon platforms and web search.
func DefaultPlatformVocabulary() Vocabulary {
	return Vocabulary{
		Protocols: []string{"v2ray", "vmess", "vless", "trojan", "hy2", "clash", "ss"},
		Nodes:     []string{"subscribe", "nodes", "config", "proxy", "proxies", "node list", "proxy list"},
		Meta:      []string{"daily", "update"},
		Flags:     []string{"free"},
		Extras: []string{
			"v2ray", "vmess", "vless", "trojan", "hy2", "clash", "ss",
			"shadowsocks", "wireguard",
		},
	}
}

// DefaultGitHubVocabulary is the curated repository search vocabulary. It has
// no combinatorial roles, so the cap simply selects the first terms.
func DefaultGitHubVocabulary() Vocabulary {
	return Vocabulary{
		Extras: []string{
			"free v2ray",
			"free proxy",
			"free node",
			"免费 节点",
			"免费 代理",
		},
	}
}

// Generate returns at most limit distinct, non-empty search strings.
//
// Stages run in priority order and stop as soon as the cap is reached:
// extras, flag+protocol, flag+node, then flag+protocol+(node|meta).
func Generate(v Vocabulary, limit int) []string {
	if limit <= 0 {
		return []string{}
	}
	b := newBuilder(limit)

	for _, extra := range v.Extras {
		if !b.add(extra) {
			return b.out
		}
	}
	for _, flag := range v.Flags {
		for _, proto := range v.Protocols {
			if !b.add(join(flag, proto)) {
				return b.out
			}
		}
	}
	for _, flag := range v.Flags {
		for _, node := range v.Nodes {
			if !b.add(join(flag, node)) {
				return b.out
			}
		}
	}
	tails := make([]string, 0, len(v.Nodes)+len(v.Meta))
	tails = append(tails, v.Nodes...)
	tails = append(tails, v.Meta...)
	for _, flag := range v.Flags {
		for _, proto := range v.Protocols {
			for _, tail := range tails {
				if !b.add(join(flag, proto, tail)) {
					return b.out
				}
			}
		}
	}
	return b.out
}

type builder struct {
	limit int
	out   []string
	seen  map[string]struct{}
}

func newBuilder(limit int) *builder {
	return &builder{
		limit: limit,
		out:   make([]string, 0, limit),
		seen:  make(map[string]struct{}, limit),
	}
}

// add appends term when it is new and reports whether there is room for more.
func (b *builder) add(term string) bool {
	if len(b.out) >= b.limit {
		return false
	}
	term = strings.TrimSpace(term)
	if term == "" {
		return true
	}
	if _, dup := b.seen[term]; !dup {
		b.seen[term] = struct{}{}
		b.out = append(b.out, term)
	}
	return len(b.out) < b.limit
}

// join builds a combination. A blank part voids the whole combination.
func join(parts ...string) string {
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return ""
		}
		parts[i] = p
	}
	return strings.Join(parts, " ")
}
