package cookies

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/adamwoolhether/nativefetch/fetch/domain"
)

// Store is the external, persistent cookie store the jar mirrors into.
// Cookies travel in their header form: Set stores a Set-Cookie string for
// a URL and Get returns the Cookie header value that applies to a URL.
type Store interface {
	Get(ctx context.Context, uri string) (string, error)
	Set(ctx context.Context, uri string, setCookie string) error
	RemoveAll(ctx context.Context) error
	Flush(ctx context.Context) error
}

// NopStore discards every write and never returns cookies.
type NopStore struct{}

func (NopStore) Get(context.Context, string) (string, error) { return "", nil }
func (NopStore) Set(context.Context, string, string) error   { return nil }
func (NopStore) RemoveAll(context.Context) error             { return nil }
func (NopStore) Flush(context.Context) error                 { return nil }

// MemoryStore is a Store kept in memory, keyed by domain key. It is safe
// for concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	cookies map[string][]*http.Cookie
	writes  int
	flushes int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cookies: make(map[string][]*http.Cookie)}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, uri string) (string, error) {
	key, err := domain.FromURL(uri)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pairs := make([]string, 0, len(m.cookies[key]))
	for _, c := range m.cookies[key] {
		pairs = append(pairs, c.Name+"="+c.Value)
	}

	return strings.Join(pairs, "; "), nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, uri string, setCookie string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return err
	}

	c, err := http.ParseSetCookie(setCookie)
	if err != nil {
		return err
	}

	key := domain.Key(u.Host)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes++

	kept := m.cookies[key][:0]
	for _, e := range m.cookies[key] {
		if e.Name != c.Name {
			kept = append(kept, e)
		}
	}
	if c.MaxAge >= 0 {
		kept = append(kept, c)
	}
	m.cookies[key] = kept

	return nil
}

// RemoveAll implements Store.
func (m *MemoryStore) RemoveAll(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clear(m.cookies)
	return nil
}

// Flush implements Store.
func (m *MemoryStore) Flush(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flushes++
	return nil
}

// Writes returns the number of Set calls received.
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.writes
}

// Flushes returns the number of Flush calls received.
func (m *MemoryStore) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.flushes
}
