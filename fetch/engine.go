package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/adamwoolhether/nativefetch/fetch/cookies"
	"github.com/adamwoolhether/nativefetch/fetch/dirs"
	"github.com/adamwoolhether/nativefetch/fetch/domain"
	"github.com/adamwoolhether/nativefetch/fetch/registry"
	"github.com/adamwoolhether/nativefetch/fetch/tempfile"
	"github.com/adamwoolhether/nativefetch/fetch/worker"
)

// Engine issues fetches. Construct with [New]; an Engine is safe for
// concurrent use.
type Engine struct {
	registry *registry.Registry
	jar      *cookies.Jar
	tracker  *tempfile.Tracker
	queue    *worker.Queue
	dirs     dirs.Resolver
	opener   Opener
	tempDir  string
	tracer   trace.Tracer
	logger   *slog.Logger

	syncCookies bool
	closed      atomic.Bool
}

// New constructs an Engine.
func New(optFns ...Option) (*Engine, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying engine option: %w", err)
		}
	}

	e := Engine{
		dirs:        dirs.XDG{},
		opener:      OpenFile,
		tempDir:     os.TempDir(),
		tracer:      noop.NewTracerProvider().Tracer(""),
		logger:      slog.Default(),
		syncCookies: opts.syncCookies,
	}

	if opts.logger != nil {
		e.logger = opts.logger
	}
	if opts.resolver != nil {
		e.dirs = opts.resolver
	}
	if opts.opener != nil {
		e.opener = opts.opener
	}
	if opts.tempDir != "" {
		e.tempDir = opts.tempDir
	}
	if opts.tracer != nil {
		e.tracer = opts.tracer
	}

	e.jar = cookies.New(opts.store, e.logger)
	e.tracker = tempfile.New(e.logger)
	e.queue = worker.New(opts.maxConcurrent)

	regOpts := []registry.Option{
		registry.WithJar(e.jar),
		registry.WithLogger(e.logger),
		registry.WithRootCAs(opts.roots),
	}
	if opts.loader != nil {
		regOpts = append(regOpts, registry.WithCertLoader(opts.loader))
	}
	if opts.userAgent != "" {
		regOpts = append(regOpts, registry.WithUserAgent(opts.userAgent))
	}
	if opts.throttle != nil {
		regOpts = append(regOpts, registry.WithThrottle(*opts.throttle))
	}

	reg, err := registry.New(regOpts...)
	if err != nil {
		return nil, fmt.Errorf("building registry: %w", err)
	}
	e.registry = reg

	return &e, nil
}

// Call is an issued fetch.
type Call struct {
	// ID identifies the fetch in logs and spans.
	ID  string
	res *worker.Result[*Result]
}

// Done returns a channel that is closed once the fetch completed and its
// scratch files were removed.
func (c *Call) Done() <-chan struct{} { return c.res.Done() }

// Wait blocks until the fetch completed. A response outside the 2xx range
// returns both the Result and an [*HTTPStatusError].
func (c *Call) Wait() (*Result, error) {
	return c.res.Wait()
}

// Fetch validates o, obtains the client for its domain and trust
// configuration, and assembles the request, reporting any failure of
// these steps directly. The exchange itself runs on a worker; its outcome
// is delivered through the returned Call.
//
// ctx governs the whole exchange, including reading the response body.
func (e *Engine) Fetch(ctx context.Context, o Options) (*Call, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	if err := Validate(o); err != nil {
		return nil, err
	}

	key, err := domain.FromURL(o.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	client, err := e.registry.Get(key, o.Trust, o.DisableAllSecurity)
	if err != nil {
		return nil, err
	}

	if e.syncCookies {
		if u, err := url.Parse(o.URL); err == nil {
			if err := e.jar.Sync(ctx, u); err != nil {
				e.logger.Warn("syncing cookies from store", "domain", key, "error", err)
			}
		}
	}

	scope := e.tracker.Scope()

	req, err := e.newRequest(ctx, o, scope)
	if err != nil {
		scope.Release()
		return nil, err
	}

	hc := client.Derive(registry.Overrides{
		Timeout:         o.Timeout,
		FollowRedirects: o.FollowRedirects,
	})

	id := uuid.NewString()

	work := func(ctx context.Context) (*Result, error) {
		defer scope.Release()
		return e.exchange(ctx, id, key, hc, req, o, scope)
	}

	skipped := func(err error) {
		if req.Body != nil {
			req.Body.Close()
		}
		scope.Release()
		e.logger.Warn("fetch never started", "id", id, "domain", key, "error", err)
	}

	res := worker.Submit(ctx, e.queue, work, worker.OnSkip(skipped))

	return &Call{ID: id, res: res}, nil
}

func (e *Engine) exchange(ctx context.Context, id, key string, hc *http.Client, req *http.Request, o Options, scope *tempfile.Scope) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "fetch.exchange", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("fetch.id", id),
		attribute.String("fetch.domain", key),
		attribute.String("http.method", req.Method),
		attribute.String("fetch.response_type", string(o.ResponseType)),
	)

	if o.Timeout > 0 {
		ctx = registry.WithConnectTimeout(ctx, o.Timeout)
	}

	req = req.WithContext(ctx)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := hc.Do(req)
	if err != nil {
		err = networkErr(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Info("fetch failed", "id", id, "domain", key, "error", err)
		return nil, err
	}

	defer func() {
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			e.logger.Error("failed to discard unused body", "id", id, "error", err)
		}
		if err := resp.Body.Close(); err != nil {
			e.logger.Error("failed to close response body", "id", id, "error", err)
		}
	}()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	res, err := e.materialize(ctx, resp, o, scope)
	if err != nil {
		var statusErr *HTTPStatusError
		if !errors.As(err, &statusErr) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return res, err
	}

	return res, nil
}

// GetCookies returns the cookies held for d as a name to value map. d is a
// host or an absolute URL and is canonicalized first.
func (e *Engine) GetCookies(d string) map[string]string {
	return e.jar.CookiesForDomain(d)
}

// SyncCookies pulls the cookies the external store holds for rawURL into
// memory. Cookies already in memory win.
func (e *Engine) SyncCookies(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	return e.jar.Sync(ctx, u)
}

// RemoveCookieByName removes every cookie called name, across all domains.
func (e *Engine) RemoveCookieByName(name string) {
	e.jar.RemoveByName(name)
}

// ClearCookies drops every cookie, in memory and in the external store.
func (e *Engine) ClearCookies(ctx context.Context) error {
	return e.jar.Clear(ctx)
}

// SetVerboseLogging toggles request/response logging for clients built
// from now on, process wide.
func (e *Engine) SetVerboseLogging(on bool) {
	registry.SetVerbose(on)
}

// Clients returns the number of cached clients.
func (e *Engine) Clients() int {
	return e.registry.Len()
}

// Close rejects new fetches, waits for in-flight ones and removes every
// remaining scratch file.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	e.queue.Shutdown()
	e.queue.Wait()
	e.registry.CloseIdleConnections()

	return e.tracker.Close()
}
