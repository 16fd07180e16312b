// Package validate probes proxy links for liveness with a plain TCP connect
// to the endpoint each link advertises.
package validate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/proxyharvest/internal/harvest"
	"github.com/JakeFAU/proxyharvest/internal/logging"
)

const defaultTimeout = 5 * time.Second

// ErrNoEndpoint is returned when a link carries no usable host and port.
var ErrNoEndpoint = errors.New("no endpoint in link")

// DialFunc opens a connection; it matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Validator implements harvest.Validator.
type Validator struct {
	timeout time.Duration
	dial    DialFunc
	logger  *zap.Logger
}

// Option customizes a Validator.
type Option func(*Validator)

// WithDialer replaces the TCP dialer.
func WithDialer(dial DialFunc) Option {
	return func(v *Validator) {
		v.dial = dial
	}
}

// New creates a Validator whose probes give up after timeout.
func New(timeout time.Duration, logger *zap.Logger, opts ...Option) *Validator {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	v := &Validator{
		timeout: timeout,
		logger:  logging.OrNop(logger),
	}
	v.dial = (&net.Dialer{}).DialContext
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// IsAlive reports whether the link's endpoint accepts a TCP connection.
// Unparseable links and dial failures are not alive.
func (v *Validator) IsAlive(ctx context.Context, link string) bool {
	addr, err := Endpoint(link)
	if err != nil {
		v.logger.Debug("link has no endpoint", zap.String("protocol", harvest.ProtocolOf(link)), zap.Error(err))
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	conn, err := v.dial(ctx, "tcp", addr)
	if err != nil {
		v.logger.Debug("endpoint unreachable", zap.String("addr", addr), zap.Error(err))
		return false
	}
	if err := conn.Close(); err != nil {
		v.logger.Debug("close probe connection", zap.String("addr", addr), zap.Error(err))
	}
	return true
}

// Endpoint derives the host:port a link connects to. Every failure wraps
// ErrNoEndpoint.
func Endpoint(link string) (string, error) {
	link = strings.TrimSpace(link)
	scheme, rest, ok := strings.Cut(link, "://")
	if !ok || rest == "" {
		return "", ErrNoEndpoint
	}
	var (
		addr string
		err  error
	)
	switch strings.ToLower(scheme) {
	case "vmess":
		addr, err = vmessEndpoint(rest)
	case "ss":
		addr, err = ssEndpoint(rest)
	case "ssr":
		addr, err = ssrEndpoint(rest)
	default:
		addr, err = urlEndpoint(link)
	}
	if err != nil && !errors.Is(err, ErrNoEndpoint) {
		err = fmt.Errorf("%w: %w", ErrNoEndpoint, err)
	}
	return addr, err
}

func vmessEndpoint(payload string) (string, error) {
	raw, ok := decode(stripFragment(payload))
	if !ok {
		return "", fmt.Errorf("vmess payload is not base64: %w", ErrNoEndpoint)
	}
	var cfg struct {
		Add  string          `json:"add"`
		Port json.RawMessage `json:"port"`
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return "", fmt.Errorf("vmess payload: %w", err)
	}
	port := strings.Trim(string(cfg.Port), `"`)
	return hostPort(cfg.Add, port)
}

func ssEndpoint(rest string) (string, error) {
	body := stripFragment(rest)
	if at := strings.LastIndex(body, "@"); at >= 0 {
		// SIP002: userinfo@host:port[/][?plugin=...]
		hp := body[at+1:]
		if i := strings.IndexAny(hp, "/?"); i >= 0 {
			hp = hp[:i]
		}
		return splitHostPort(hp)
	}
	raw, ok := decode(body)
	if !ok {
		return "", fmt.Errorf("ss payload is not base64: %w", ErrNoEndpoint)
	}
	// Legacy: base64(method:password@host:port)
	decoded := string(raw)
	at := strings.LastIndex(decoded, "@")
	if at < 0 {
		return "", ErrNoEndpoint
	}
	return splitHostPort(decoded[at+1:])
}

func ssrEndpoint(rest string) (string, error) {
	raw, ok := decode(stripFragment(rest))
	if !ok {
		return "", fmt.Errorf("ssr payload is not base64: %w", ErrNoEndpoint)
	}
	// host:port:protocol:method:obfs:password/?params
	parts := strings.Split(string(raw), ":")
	if len(parts) < 6 {
		return "", ErrNoEndpoint
	}
	host := strings.Join(parts[:len(parts)-5], ":")
	return hostPort(strings.Trim(host, "[]"), parts[len(parts)-5])
}

func urlEndpoint(link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse link: %w", err)
	}
	port := u.Port()
	if port == "" {
		port = "443"
	}
	return hostPort(u.Hostname(), port)
}

func splitHostPort(s string) (string, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return "", fmt.Errorf("split host port: %w", err)
	}
	return hostPort(host, port)
}

func hostPort(host, port string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", ErrNoEndpoint
	}
	n, err := strconv.Atoi(strings.TrimSpace(port))
	if err != nil || n <= 0 || n > 65535 {
		return "", fmt.Errorf("invalid port %q: %w", port, ErrNoEndpoint)
	}
	return net.JoinHostPort(host, strconv.Itoa(n)), nil
}

func stripFragment(s string) string {
	if i := strings.IndexByte(s, '#'); i >= 0 {
		return s[:i]
	}
	return s
}

func decode(s string) ([]byte, bool) {
	s = strings.TrimSpace(s)
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, true
		}
	}
	return nil, false
}
