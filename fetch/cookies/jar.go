// Package cookies provides the in-memory cookie jar shared by every client
// of an engine, mirrored into an external persistent [Store].
//
// Records are partitioned by canonical domain key, so "www.example.com"
// and "example.com" share cookies. Within a domain a record is unique by
// (name, path). The in-memory state is authoritative for the process;
// mirroring into the store is best effort.
package cookies

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/adamwoolhether/nativefetch/fetch/domain"
)

// Record is a cookie held by the jar.
type Record struct {
	Host    string
	Name    string
	Value   string
	Path    string
	Expires time.Time
	// Raw is the Set-Cookie string the record was last written from.
	Raw string
}

func (r Record) expired(now time.Time) bool {
	return !r.Expires.IsZero() && !r.Expires.After(now)
}

// Jar implements [http.CookieJar]. Every operation holds a single lock.
type Jar struct {
	mu      sync.Mutex
	records map[string][]Record
	store   Store
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// New returns an empty jar mirroring into store. A nil store disables
// mirroring and a nil logger falls back to slog.Default.
func New(store Store, logger *slog.Logger) *Jar {
	if store == nil {
		store = NopStore{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Jar{
		records: make(map[string][]Record),
		store:   store,
		timeout: 5 * time.Second,
		logger:  logger,
		now:     time.Now,
	}
}

// Cookies implements http.CookieJar. It returns every live record held for
// the domain of u.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	key := domain.Key(u.Host)
	now := j.now()

	j.mu.Lock()
	defer j.mu.Unlock()

	var cookies []*http.Cookie
	for _, r := range j.records[key] {
		if r.expired(now) {
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: r.Name, Value: r.Value})
	}

	return cookies
}

// SetCookies implements http.CookieJar. Each cookie replaces the record
// with the same (name, path) under the domain of u and is mirrored into
// the store. Cookies that are already expired delete the record.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}

	key := domain.Key(u.Host)
	now := j.now()

	j.mu.Lock()
	for _, c := range cookies {
		r := Record{
			Host:  key,
			Name:  c.Name,
			Value: c.Value,
			Path:  c.Path,
			Raw:   c.String(),
		}
		if r.Path == "" || !strings.HasPrefix(r.Path, "/") {
			r.Path = defaultPath(u.Path)
		}

		switch {
		case c.MaxAge < 0:
			r.Expires = now
		case c.MaxAge > 0:
			r.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		case !c.Expires.IsZero():
			r.Expires = c.Expires
		}

		j.upsert(r, now)
	}
	j.mu.Unlock()

	j.mirror(u, cookies)
}

// upsert must be called with the lock held.
func (j *Jar) upsert(r Record, now time.Time) {
	recs := slices.DeleteFunc(j.records[r.Host], func(e Record) bool {
		return e.Name == r.Name && e.Path == r.Path
	})

	if !r.expired(now) {
		recs = append(recs, r)
	}

	if len(recs) == 0 {
		delete(j.records, r.Host)
		return
	}
	j.records[r.Host] = recs
}

func (j *Jar) mirror(u *url.URL, cookies []*http.Cookie) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	for _, c := range cookies {
		if err := j.store.Set(ctx, u.String(), c.String()); err != nil {
			j.logger.Warn("mirroring cookie", "url", u.Redacted(), "name", c.Name, "error", err)
		}
	}

	if err := j.store.Flush(ctx); err != nil {
		j.logger.Warn("flushing cookie store", "error", err)
	}
}

// CookiesForDomain returns a flat name to value view of the live records of
// d. d is a host or an absolute URL and is canonicalized first; the result
// is empty, never nil, when nothing matches.
func (j *Jar) CookiesForDomain(d string) map[string]string {
	key := domain.Of(d)
	now := j.now()

	j.mu.Lock()
	defer j.mu.Unlock()

	out := make(map[string]string)
	for _, r := range j.records[key] {
		if !r.expired(now) {
			out[r.Name] = r.Value
		}
	}

	return out
}

// RemoveByName removes every record called name, across all domains and
// paths. Removing an unknown name is not an error.
func (j *Jar) RemoveByName(name string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for host, recs := range j.records {
		recs = slices.DeleteFunc(recs, func(r Record) bool { return r.Name == name })
		if len(recs) == 0 {
			delete(j.records, host)
			continue
		}
		j.records[host] = recs
	}
}

// Records returns a copy of the live records held for d, a host or an
// absolute URL.
func (j *Jar) Records(d string) []Record {
	key := domain.Of(d)
	now := j.now()

	j.mu.Lock()
	defer j.mu.Unlock()

	var out []Record
	for _, r := range j.records[key] {
		if !r.expired(now) {
			out = append(out, r)
		}
	}

	return out
}

// Sync pulls the cookies the store holds for u and adds the ones the jar
// doesn't know yet. Records already in memory win.
func (j *Jar) Sync(ctx context.Context, u *url.URL) error {
	header, err := j.store.Get(ctx, u.String())
	if err != nil {
		return err
	}
	if header == "" {
		return nil
	}

	parsed, err := http.ParseCookie(header)
	if err != nil {
		return err
	}

	key := domain.Key(u.Host)

	j.mu.Lock()
	defer j.mu.Unlock()

	for _, c := range parsed {
		known := slices.ContainsFunc(j.records[key], func(r Record) bool { return r.Name == c.Name })
		if known {
			continue
		}
		j.records[key] = append(j.records[key], Record{Host: key, Name: c.Name, Value: c.Value, Path: "/"})
	}

	return nil
}

// Clear drops every record and empties the store.
func (j *Jar) Clear(ctx context.Context) error {
	j.mu.Lock()
	clear(j.records)
	j.mu.Unlock()

	if err := j.store.RemoveAll(ctx); err != nil {
		return err
	}

	return j.store.Flush(ctx)
}

func defaultPath(p string) string {
	if p == "" || p[0] != '/' {
		return "/"
	}

	i := strings.LastIndex(p, "/")
	if i == 0 {
		return "/"
	}

	return p[:i]
}
