package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/adamwoolhether/nativefetch"
	"github.com/adamwoolhether/nativefetch/fetch"
	"github.com/adamwoolhether/nativefetch/fetch/bridge"
	"github.com/adamwoolhether/nativefetch/fetch/cookies/sqlstore"
	"github.com/adamwoolhether/nativefetch/fetch/domain"
	"github.com/adamwoolhether/nativefetch/fetch/trust"
)

const maxLineSize = 64 << 20

var errUnknownCommand = errors.New("unknown command")

type app struct {
	engine *fetch.Engine
	store  *sqlstore.Store
	logger *slog.Logger
}

func newApp(ctx context.Context, cfg Config, logger *slog.Logger) (*app, error) {
	opts := []fetch.Option{
		fetch.WithLogger(logger),
		fetch.WithDirectoryResolver(cfg.resolver()),
		fetch.WithMaxConcurrent(cfg.MaxConcurrent),
	}

	a := app{logger: logger}

	if cfg.CookieDB != "" {
		store, err := sqlstore.Open(cfg.CookieDB, logger)
		if err != nil {
			return nil, err
		}
		a.store = store
		opts = append(opts, fetch.WithCookieStore(store))
	}
	if cfg.SyncCookies {
		opts = append(opts, fetch.WithCookieSync())
	}
	if cfg.CertDir != "" {
		opts = append(opts, fetch.WithCertLoader(trust.DirLoader{Dir: cfg.CertDir}))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, fetch.WithUserAgent(cfg.UserAgent))
	}
	if cfg.Throttle != nil {
		opts = append(opts, fetch.WithThrottle(cfg.Throttle.RPS, cfg.Throttle.Burst))
	}

	e, err := nativefetch.New(opts...)
	if err != nil {
		a.closeStore()
		return nil, err
	}
	e.SetVerboseLogging(cfg.Verbose)
	a.engine = e

	logger.DebugContext(ctx, "engine ready", "cookie_db", cfg.CookieDB, "cert_dir", cfg.CertDir)

	return &a, nil
}

// Close waits for in-flight fetches before closing the cookie store.
func (a *app) Close() error {
	err := a.engine.Close()
	return errors.Join(err, a.closeStore())
}

func (a *app) closeStore() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// dispatch runs one call and returns its JSON answer. ok is false when the
// answer describes a failure.
func (a *app) dispatch(ctx context.Context, cmd string, args []byte) ([]byte, bool) {
	out, err := a.call(ctx, cmd, args)
	if err == nil {
		return out, true
	}

	a.logger.InfoContext(ctx, "call failed", "call", cmd, "error", err)

	enc, eerr := bridge.EncodeError(err)
	if eerr != nil {
		a.logger.ErrorContext(ctx, "encoding error", "call", cmd, "error", eerr)
		return []byte(`{"error":{"code":"FETCH_FAILED"}}`), false
	}

	return enc, false
}

func (a *app) call(ctx context.Context, cmd string, args []byte) ([]byte, error) {
	switch cmd {
	case "fetch":
		o, err := bridge.DecodeFetch(args)
		if err != nil {
			return nil, err
		}

		c, err := a.engine.Fetch(ctx, o)
		if err != nil {
			return nil, err
		}

		res, err := c.Wait()
		if err != nil {
			return nil, err
		}

		return bridge.EncodeResult(res, nil)

	case "cookies":
		d, err := bridge.DecodeDomain(args)
		if err != nil {
			return nil, err
		}

		if key := domain.Of(d); a.store != nil && key != "" {
			if err := a.engine.SyncCookies(ctx, "https://"+key+"/"); err != nil {
				a.logger.WarnContext(ctx, "syncing cookies", "domain", d, "error", err)
			}
		}

		return bridge.EncodeCookies(a.engine.GetCookies(d))

	case "remove-cookie":
		name, err := bridge.DecodeCookieName(args)
		if err != nil {
			return nil, err
		}
		a.engine.RemoveCookieByName(name)

		return []byte(`{}`), nil

	case "clear-cookies":
		if err := a.engine.ClearCookies(ctx); err != nil {
			return nil, fmt.Errorf("%w: clearing cookies: %w", fetch.ErrFetch, err)
		}

		return []byte(`{}`), nil

	case "logging":
		on, err := bridge.DecodeLogging(args)
		if err != nil {
			return nil, err
		}
		a.engine.SetVerboseLogging(on)

		return []byte(`{}`), nil

	default:
		return nil, fmt.Errorf("%w: %w: %q", fetch.ErrInvalidOptions, errUnknownCommand, cmd)
	}
}

// session answers newline-delimited calls. Calls run concurrently and
// answers are written in completion order, tagged with the call's id.
func (a *app) session(ctx context.Context, in io.Reader, out io.Writer) error {
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	write := func(b []byte) {
		mu.Lock()
		defer mu.Unlock()

		if _, err := fmt.Fprintf(out, "%s\n", b); err != nil {
			a.logger.Error("writing answer", "error", err)
		}
	}

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineSize)

	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		doc := gjson.ParseBytes(line)
		id := doc.Get("id").Raw
		cmd := doc.Get("call").String()
		args := []byte(doc.Get("args").Raw)
		if len(args) == 0 {
			args = []byte(`{}`)
		}

		wg.Go(func() {
			answer, _ := a.dispatch(ctx, cmd, args)
			if id != "" {
				if tagged, err := sjson.SetRawBytes(answer, "id", []byte(id)); err == nil {
					answer = tagged
				}
			}
			write(answer)
		})
	}

	wg.Wait()

	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading calls: %w", err)
	}

	return nil
}
