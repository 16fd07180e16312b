package extract

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePlainText(t *testing.T) {
	t.Parallel()

	text := `
# nodes
vmess://eyJhZGQiOiIxLjIuMy40In0=
ss://YWVzLTI1Ni1nY206cGFzcw@5.6.7.8:8388#HK
https://example.com/not-a-proxy
vless://uuid@host:443?security=tls, trojan://pw@t.example.com:443)
vmess://eyJhZGQiOiIxLjIuMy40In0=
`
	assert.Equal(t, []string{
		"vmess://eyJhZGQiOiIxLjIuMy40In0=",
		"ss://YWVzLTI1Ni1nY206cGFzcw@5.6.7.8:8388#HK",
		"vless://uuid@host:443?security=tls",
		"trojan://pw@t.example.com:443",
	}, New().Parse(text))
}

func TestParseYAMLAndHTML(t *testing.T) {
	t.Parallel()

	text := `proxies:
  - "hy2://pass@h.example.com:8443"
<a href="tuic://id:pw@1.1.1.1:443">node</a>`
	assert.Equal(t, []string{
		"hy2://pass@h.example.com:8443",
		"tuic://id:pw@1.1.1.1:443",
	}, New().Parse(text))
}

func TestParseBase64Subscription(t *testing.T) {
	t.Parallel()

	plain := "trojan://pw@a.example.com:443\nss://abc@b.example.com:8388\n"
	for name, enc := range map[string]*base64.Encoding{
		"std":    base64.StdEncoding,
		"raw":    base64.RawStdEncoding,
		"url":    base64.URLEncoding,
		"rawurl": base64.RawURLEncoding,
	} {
		got := New().Parse(enc.EncodeToString([]byte(plain)))
		assert.Equal(t, []string{"trojan://pw@a.example.com:443", "ss://abc@b.example.com:8388"}, got, name)
	}
}

func TestParseBase64Lines(t *testing.T) {
	t.Parallel()

	line := base64.StdEncoding.EncodeToString([]byte("vless://id@c.example.com:443"))
	text := "header text\n" + line + "\nsocks5://u:p@d.example.com:1080"
	assert.Equal(t, []string{
		"socks5://u:p@d.example.com:1080",
		"vless://id@c.example.com:443",
	}, New().Parse(text))
}

func TestParseToleratesInvalidUTF8(t *testing.T) {
	t.Parallel()

	gbkComment := "# \xd6\xd0\xce\xc4 nodes\nvmess://abc\ntrojan://pw@h.example.com:443\n"
	assert.Equal(t, []string{"vmess://abc", "trojan://pw@h.example.com:443"}, New().Parse(gbkComment))

	latin1 := "caf\xe9 ss://YWVzOnB3@1.2.3.4:8388\xe9 done"
	assert.Equal(t, []string{"ss://YWVzOnB3@1.2.3.4:8388"}, New().Parse(latin1))
}

func TestParseGarbage(t *testing.T) {
	t.Parallel()

	e := New()
	assert.Empty(t, e.Parse(""))
	assert.Empty(t, e.Parse("\xff\xfe\x00garbage"))
	assert.Empty(t, e.Parse("vmess:// ss://"))
	assert.Empty(t, e.Parse(strings.Repeat("A", 4096)))
	assert.Empty(t, e.Parse("notvmess"))
}
