// Package registry caches one HTTP client per (domain key, trust
// fingerprint) pair.
//
// Clients are built on first use from the trust configuration of the
// request and the settings shared by every client of the registry: the
// cookie jar, the redirect policy, the user agent, an optional throttle
// and, when diagnostics are enabled at build time, a logging transport.
//
// A different trust configuration for a domain that already has a client
// creates a second entry. Nothing is ever evicted, so callers that vary
// certificates per call grow the cache without bound.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"golang.org/x/sync/singleflight"

	"github.com/adamwoolhether/nativefetch/fetch/throttle"
	"github.com/adamwoolhether/nativefetch/fetch/trust"
)

// Client is a cached client together with the key it was built for.
type Client struct {
	DomainKey   string
	Fingerprint string
	HTTP        *http.Client
}

// Overrides are the request-scoped settings that never require a rebuild.
type Overrides struct {
	// Timeout bounds the whole exchange. Zero means no limit.
	Timeout time.Duration
	// FollowRedirects makes the client follow 3xx responses instead of
	// returning them to the caller.
	FollowRedirects bool
}

// Derive returns a shallow copy of the cached client with o applied. The
// copy shares the transport, and with it the connection pool and TLS
// configuration, as well as the cookie jar.
func (c *Client) Derive(o Overrides) *http.Client {
	hc := *c.HTTP
	hc.Timeout = o.Timeout
	if o.FollowRedirects {
		hc.CheckRedirect = nil
	}

	return &hc
}

// Registry builds and caches clients. Construct with [New].
type Registry struct {
	clients cmap.ConcurrentMap[string, *Client]
	group   singleflight.Group

	trust     trust.Config
	jar       http.CookieJar
	userAgent string
	throttle  *throttle.Config
	logger    *slog.Logger
}

// New constructs a Registry.
func New(optFns ...Option) (*Registry, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying registry option: %w", err)
		}
	}

	r := Registry{
		clients: cmap.New[*Client](),
		trust: trust.Config{
			Loader: opts.loader,
			Roots:  opts.roots,
		},
		jar:       opts.jar,
		userAgent: opts.userAgent,
		throttle:  opts.throttle,
		logger:    slog.Default(),
	}

	if opts.logger != nil {
		r.logger = opts.logger
	}

	return &r, nil
}

// Get returns the client for domainKey and the given trust configuration,
// building it on first use. Concurrent first use of one key results in a
// single build that every caller shares; other keys are not blocked.
// Trust configuration errors are returned before anything is cached.
func (r *Registry) Get(domainKey string, spec *trust.Spec, disable bool) (*Client, error) {
	fp, err := trust.Fingerprint(spec, disable)
	if err != nil {
		return nil, err
	}

	key := domainKey + "|" + fp
	if c, ok := r.clients.Get(key); ok {
		return c, nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		if c, ok := r.clients.Get(key); ok {
			return c, nil
		}

		c, err := r.build(domainKey, fp, spec, disable)
		if err != nil {
			return nil, err
		}
		r.clients.Set(key, c)

		return c, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Client), nil
}

// Len returns the number of cached clients.
func (r *Registry) Len() int {
	return r.clients.Count()
}

// CloseIdleConnections closes idle connections of every cached client.
func (r *Registry) CloseIdleConnections() {
	for _, c := range r.clients.Items() {
		c.HTTP.CloseIdleConnections()
	}
}

func (r *Registry) build(domainKey, fp string, spec *trust.Spec, disable bool) (*Client, error) {
	tlsCfg, err := trust.Configure(domainKey, spec, disable, r.trust)
	if err != nil {
		return nil, err
	}

	if disable {
		r.logger.Warn("transport security disabled", "domain", domainKey)
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	var transport http.RoundTripper = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialContext(dialer),
		TLSClientConfig:       tlsCfg,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if r.userAgent != "" {
		transport = userAgent{value: r.userAgent, base: transport}
	}
	if r.throttle != nil {
		rt, err := throttle.NewRoundTripper(domainKey, *r.throttle, func() *slog.Logger { return r.logger }, transport)
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		transport = rt
	}
	if Verbose() {
		transport = logging{domain: domainKey, logger: r.logger, next: transport}
	}

	hc := http.Client{
		Transport: transport,
		Jar:       r.jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	r.logger.Debug("client built", "domain", domainKey, "fingerprint", fp)

	return &Client{DomainKey: domainKey, Fingerprint: fp, HTTP: &hc}, nil
}

type ctxKey int

const connectTimeoutKey ctxKey = 1

// WithConnectTimeout bounds the time the dialer may spend establishing a
// connection for requests carrying the returned context.
func WithConnectTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, connectTimeoutKey, d)
}

// ConnectTimeout returns the connect timeout stored in ctx, if any.
func ConnectTimeout(ctx context.Context) (time.Duration, bool) {
	d, ok := ctx.Value(connectTimeoutKey).(time.Duration)
	return d, ok && d > 0
}

func dialContext(d *net.Dialer) func(context.Context, string, string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if timeout, ok := ConnectTimeout(ctx); ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		return d.DialContext(ctx, network, addr)
	}
}
