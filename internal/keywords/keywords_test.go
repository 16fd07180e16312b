package keywords

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateStageOrder(t *testing.T) {
	t.Parallel()

	v := Vocabulary{
		Protocols: []string{"vmess", "ss"},
		Nodes:     []string{"nodes"},
		Meta:      []string{"daily"},
		Flags:     []string{"free"},
		Extras:    []string{"clash", "vmess"},
	}
	got := Generate(v, 100)
	want := []string{
		"clash",
		"vmess",
		"free vmess",
		"free ss",
		"free nodes",
		"free vmess nodes",
		"free vmess daily",
		"free ss nodes",
		"free ss daily",
	}
	require.Equal(t, want, got)
}

func TestGenerateDefaultPlatformCap(t *testing.T) {
	t.Parallel()

	got := Generate(DefaultPlatformVocabulary(), 25)
	require.Len(t, got, 25)
	assert.Equal(t, "v2ray", got[0])
	assert.Equal(t, "wireguard", got[8])
	assert.Equal(t, "free v2ray", got[9])
	assert.Equal(t, "free subscribe", got[16])
	assert.Equal(t, "free v2ray subscribe", got[23])
	assert.Equal(t, "free v2ray nodes", got[24])
}

func TestGenerateDeterministic(t *testing.T) {
	t.Parallel()

	v := DefaultPlatformVocabulary()
	for _, limit := range []int{1, 5, 17, 40, 500} {
		first := Generate(v, limit)
		second := Generate(v, limit)
		require.Equal(t, first, second, "limit %d", limit)
		assert.LessOrEqual(t, len(first), limit)
	}
}

func TestGenerateDistinctNonEmpty(t *testing.T) {
	t.Parallel()

	v := Vocabulary{
		Protocols: []string{"vmess", "", "vmess"},
		Nodes:     []string{"  ", "list"},
		Flags:     []string{"free", "free"},
		Extras:    []string{"", "free vmess", "free vmess"},
	}
	got := Generate(v, 100)
	seen := map[string]bool{}
	for _, kw := range got {
		assert.NotEmpty(t, kw)
		assert.False(t, seen[kw], "duplicate keyword %q", kw)
		seen[kw] = true
	}
	assert.Equal(t, []string{"free vmess", "free list", "free vmess list"}, got)
}

func TestGenerateExtrasFillCap(t *testing.T) {
	t.Parallel()

	v := DefaultPlatformVocabulary()
	got := Generate(v, 3)
	assert.Equal(t, []string{"v2ray", "vmess", "vless"}, got)
}

func TestGenerateGitHubTakesFirstTerms(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"free v2ray"}, Generate(DefaultGitHubVocabulary(), 1))
	assert.Len(t, Generate(DefaultGitHubVocabulary(), 50), 5)
}

func TestGenerateNonPositiveCap(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Generate(DefaultPlatformVocabulary(), 0))
	assert.Empty(t, Generate(DefaultPlatformVocabulary(), -3))
}
