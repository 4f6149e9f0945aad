// Package dirs resolves named storage locations to writable base directories.
package dirs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

// Named storage locations understood by a [Resolver]. Lookups are
// case-insensitive and unknown names fall back to [Data].
const (
	Documents       = "DOCUMENTS"
	Cache           = "CACHE"
	Temporary       = "TEMPORARY"
	External        = "EXTERNAL"
	ExternalStorage = "EXTERNAL_STORAGE"
	ExternalCache   = "EXTERNAL_CACHE"
	Data            = "DATA"
)

// Resolver maps a named location to a base directory.
type Resolver interface {
	Resolve(key string) (string, error)
}

// Normalize upper-cases key and folds aliases and unknown names into the
// canonical set of location names.
func Normalize(key string) string {
	switch k := strings.ToUpper(strings.TrimSpace(key)); k {
	case Documents, External, ExternalStorage, ExternalCache:
		return k
	case Cache, Temporary:
		return Cache
	default:
		return Data
	}
}

// XDG resolves locations onto the XDG base directories of the current
// user, namespaced by App. Directories are created on first resolution.
type XDG struct {
	App string
}

// Resolve implements Resolver.
func (x XDG) Resolve(key string) (string, error) {
	app := x.App
	if app == "" {
		app = "nativefetch"
	}

	var dir string
	switch Normalize(key) {
	case Documents:
		dir = filepath.Join(xdg.UserDirs.Documents, app)
	case Cache:
		dir = filepath.Join(xdg.CacheHome, app)
	case External:
		dir = filepath.Join(xdg.DataHome, app, "external")
	case ExternalStorage:
		dir = xdg.Home
	case ExternalCache:
		dir = filepath.Join(xdg.CacheHome, app, "external")
	default:
		dir = filepath.Join(xdg.DataHome, app)
	}

	if dir == "" {
		return "", errors.New("no directory for location " + key)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating %s directory: %w", Normalize(key), err)
	}

	return dir, nil
}

// Static resolves locations from a fixed map keyed by canonical location
// name. Missing entries resolve to the Data entry.
type Static map[string]string

// Resolve implements Resolver.
func (s Static) Resolve(key string) (string, error) {
	k := Normalize(key)
	if dir, ok := s[k]; ok && dir != "" {
		return dir, nil
	}
	if dir, ok := s[Data]; ok && dir != "" {
		return dir, nil
	}

	return "", fmt.Errorf("no directory configured for %s", k)
}

// Overlay consults Primary first and falls back to Fallback for locations
// Primary does not know about.
type Overlay struct {
	Primary  Static
	Fallback Resolver
}

// Resolve implements Resolver.
func (o Overlay) Resolve(key string) (string, error) {
	if dir, ok := o.Primary[Normalize(key)]; ok && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", fmt.Errorf("creating %s directory: %w", Normalize(key), err)
		}
		return dir, nil
	}

	return o.Fallback.Resolve(key)
}
