package registry

import (
	"crypto/x509"
	"errors"
	"log/slog"
	"net/http"

	"github.com/adamwoolhether/nativefetch/fetch/throttle"
	"github.com/adamwoolhether/nativefetch/fetch/trust"
)

// Option is a functional option for configuring a [Registry] via [New].
type Option func(*options) error
type options struct {
	loader    trust.Loader
	roots     *x509.CertPool
	jar       http.CookieJar
	userAgent string
	throttle  *throttle.Config
	logger    *slog.Logger
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

// WithRootCAs sets the base trust store used in public-key pinning mode.
// The system roots are used otherwise.
func WithRootCAs(pool *x509.CertPool) Option {
	return func(o *options) error {
		o.roots = pool
		return nil
	}
}

// WithJar attaches jar to every client the registry builds.
func WithJar(jar http.CookieJar) Option {
	return func(o *options) error {
		if jar == nil {
			return errors.New("jar must not be nil")
		}
		o.jar = jar
		return nil
	}
}

// WithUserAgent sets the User-Agent header on every outgoing request that
// doesn't already carry one.
func WithUserAgent(ua string) Option {
	return func(o *options) error {
		if ua == "" {
			return errors.New("user agent must not be empty")
		}
		o.userAgent = ua
		return nil
	}
}

// WithThrottle rate-limits each client with its own token bucket.
func WithThrottle(cfg throttle.Config) Option {
	return func(o *options) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		o.throttle = &cfg
		return nil
	}
}

// WithLogger sets the logger used for build and diagnostic messages.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		o.logger = logger
		return nil
	}
}
