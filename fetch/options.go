package fetch

import (
	"crypto/x509"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/nativefetch/fetch/cookies"
	"github.com/adamwoolhether/nativefetch/fetch/dirs"
	"github.com/adamwoolhether/nativefetch/fetch/throttle"
	"github.com/adamwoolhether/nativefetch/fetch/trust"
)

// Option is a functional option for configuring an [Engine] via [New].
type Option func(*options) error
type options struct {
	logger        *slog.Logger
	store         cookies.Store
	syncCookies   bool
	resolver      dirs.Resolver
	loader        trust.Loader
	roots         *x509.CertPool
	tracer        trace.Tracer
	throttle      *throttle.Config
	userAgent     string
	maxConcurrent int
	opener        Opener
	tempDir       string
}

// WithLogger sets the logger used by the engine and its components.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		o.logger = logger
		return nil
	}
}

// WithCookieStore mirrors every cookie write into store.
func WithCookieStore(store cookies.Store) Option {
	return func(o *options) error {
		if store == nil {
			return errors.New("cookie store must not be nil")
		}
		o.store = store
		return nil
	}
}

// WithCookieSync pulls cookies the external store holds for the request URL
// into the jar before each fetch.
func WithCookieSync() Option {
	return func(o *options) error {
		o.syncCookies = true
		return nil
	}
}

// WithDirectoryResolver sets the resolver mapping FileSaveDirectory to a
// base directory. The default resolves onto the XDG base directories.
func WithDirectoryResolver(r dirs.Resolver) Option {
	return func(o *options) error {
		if r == nil {
			return errors.New("resolver must not be nil")
		}
		o.resolver = r
		return nil
	}
}

// WithCertLoader sets the loader resolving certificate identifiers in
// certificate pinning mode.
func WithCertLoader(l trust.Loader) Option {
	return func(o *options) error {
		if l == nil {
			return errors.New("loader must not be nil")
		}
		o.loader = l
		return nil
	}
}

// WithRootCAs sets the base trust store verified against in public-key
// pinning mode. The system roots are used otherwise.
func WithRootCAs(pool *x509.CertPool) Option {
	return func(o *options) error {
		if pool == nil {
			return errors.New("pool must not be nil")
		}
		o.roots = pool
		return nil
	}
}

// WithTracer sets the tracer spans are started from.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		o.tracer = tracer
		return nil
	}
}

// WithThrottle rate-limits each domain's client with its own token bucket.
func WithThrottle(rps, burst int) Option {
	return func(o *options) error {
		cfg := throttle.Config{RPS: rps, Burst: burst}
		if err := cfg.Validate(); err != nil {
			return err
		}
		o.throttle = &cfg
		return nil
	}
}

// WithUserAgent sets the User-Agent header of requests that don't set one.
func WithUserAgent(ua string) Option {
	return func(o *options) error {
		if ua == "" {
			return errors.New("user agent must not be empty")
		}
		o.userAgent = ua
		return nil
	}
}

// WithMaxConcurrent bounds the number of exchanges running at once.
// If n <= 0, concurrency is unlimited.
func WithMaxConcurrent(n int) Option {
	return func(o *options) error {
		o.maxConcurrent = n
		return nil
	}
}

// WithOpener sets how referenced files of multipart bodies are opened.
func WithOpener(op Opener) Option {
	return func(o *options) error {
		if op == nil {
			return errors.New("opener must not be nil")
		}
		o.opener = op
		return nil
	}
}

// WithTempDir sets the directory upload copies are staged in. The default
// is os.TempDir.
func WithTempDir(dir string) Option {
	return func(o *options) error {
		if dir == "" {
			return errors.New("temp dir must not be empty")
		}
		o.tempDir = dir
		return nil
	}
}
