package registry

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

var verbose atomic.Bool

// SetVerbose toggles request/response logging for clients built from now
// on. Clients already cached keep the setting they were built with.
func SetVerbose(on bool) {
	verbose.Store(on)
}

// Verbose reports the current diagnostic setting.
func Verbose() bool {
	return verbose.Load()
}

type userAgent struct {
	value string
	base  http.RoundTripper
}

func (u userAgent) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get("User-Agent") != "" {
		return u.base.RoundTrip(r)
	}

	r = r.Clone(r.Context())
	r.Header.Set("User-Agent", u.value)

	return u.base.RoundTrip(r)
}

type logging struct {
	domain string
	logger *slog.Logger
	next   http.RoundTripper
}

func (l logging) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()

	l.logger.Info("request started", "domain", l.domain, "method", r.Method, "url", r.URL.Redacted())
	l.logger.Debug("request headers", "domain", l.domain, "headers", r.Header)

	resp, err := l.next.RoundTrip(r)
	if err != nil {
		l.logger.Info("request failed", "domain", l.domain, "method", r.Method, "url", r.URL.Redacted(), "since", time.Since(start).String(), "error", err)
		return nil, err
	}

	l.logger.Info("request completed", "domain", l.domain, "method", r.Method, "url", r.URL.Redacted(), "statusCode", resp.StatusCode, "since", time.Since(start).String())
	l.logger.Debug("response headers", "domain", l.domain, "headers", resp.Header)

	return resp, nil
}
