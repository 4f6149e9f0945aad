// Package sqlstore is a persistent [cookies.Store] kept in a SQLite
// database through gorm.
package sqlstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/adamwoolhether/nativefetch/fetch/cookies"
	"github.com/adamwoolhether/nativefetch/fetch/domain"
)

var _ cookies.Store = (*Store)(nil)

// Cookie is the persisted row.
type Cookie struct {
	ID        uint   `gorm:"primaryKey"`
	Host      string `gorm:"uniqueIndex:idx_cookie;not null"`
	Name      string `gorm:"uniqueIndex:idx_cookie;not null"`
	Path      string `gorm:"uniqueIndex:idx_cookie;not null"`
	Value     string
	Raw       string
	Expires   *time.Time
	UpdatedAt time.Time
}

// Store implements cookies.Store. Expiry times are kept in UTC. Construct
// with [Open].
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open opens or creates the database at path and migrates the schema.
// ":memory:" keeps the database in memory.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: NewGormLogger(log).LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening cookie database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("retrieving sql db: %w", err)
	}
	// SQLite allows a single writer; in-memory databases are per connection.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Cookie{}); err != nil {
		return nil, fmt.Errorf("migrating cookie schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// Get returns the Cookie header value for uri: every unexpired cookie
// whose host matches and whose path prefixes the uri path.
func (s *Store) Get(ctx context.Context, uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parsing uri: %w", err)
	}

	reqPath := u.Path
	if reqPath == "" {
		reqPath = "/"
	}

	var rows []Cookie
	err = s.db.WithContext(ctx).
		Where("host = ?", domain.Key(u.Host)).
		Where("expires IS NULL OR expires > ?", s.now().UTC()).
		Order("length(path) DESC, id").
		Find(&rows).Error
	if err != nil {
		return "", fmt.Errorf("querying cookies: %w", err)
	}

	pairs := make([]string, 0, len(rows))
	for _, r := range rows {
		if pathMatch(reqPath, r.Path) {
			pairs = append(pairs, r.Name+"="+r.Value)
		}
	}

	return strings.Join(pairs, "; "), nil
}

// Set stores a Set-Cookie string received from uri. A cookie that is
// already expired deletes its row.
func (s *Store) Set(ctx context.Context, uri string, setCookie string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("parsing uri: %w", err)
	}

	c, err := http.ParseSetCookie(setCookie)
	if err != nil {
		return fmt.Errorf("parsing set-cookie: %w", err)
	}

	row := Cookie{
		Host:      domain.Key(u.Host),
		Name:      c.Name,
		Path:      c.Path,
		Value:     c.Value,
		Raw:       setCookie,
		UpdatedAt: s.now(),
	}
	if row.Path == "" {
		row.Path = "/"
	}

	now := s.now().UTC()
	switch {
	case c.MaxAge < 0:
		return s.delete(ctx, row)
	case c.MaxAge > 0:
		exp := now.Add(time.Duration(c.MaxAge) * time.Second)
		row.Expires = &exp
	case !c.Expires.IsZero():
		if !c.Expires.After(now) {
			return s.delete(ctx, row)
		}
		exp := c.Expires.UTC()
		row.Expires = &exp
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "host"}, {Name: "name"}, {Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "raw", "expires", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upserting cookie: %w", err)
	}

	return nil
}

func (s *Store) delete(ctx context.Context, row Cookie) error {
	err := s.db.WithContext(ctx).
		Where("host = ? AND name = ? AND path = ?", row.Host, row.Name, row.Path).
		Delete(&Cookie{}).Error
	if err != nil {
		return fmt.Errorf("deleting cookie: %w", err)
	}

	return nil
}

// RemoveAll deletes every cookie.
func (s *Store) RemoveAll(ctx context.Context) error {
	err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Cookie{}).Error
	if err != nil {
		return fmt.Errorf("removing cookies: %w", err)
	}

	return nil
}

// Flush checkpoints the write-ahead log when one is in use.
func (s *Store) Flush(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("PRAGMA wal_checkpoint(PASSIVE)").Error; err != nil {
		return fmt.Errorf("flushing cookie database: %w", err)
	}

	return nil
}

// Count returns the number of stored rows, expired ones included.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Cookie{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting cookies: %w", err)
	}

	return n, nil
}

func pathMatch(reqPath, cookiePath string) bool {
	if reqPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(reqPath, cookiePath) {
		return false
	}

	return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
}
