package trust

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Loader resolves an opaque certificate identifier to certificate material.
type Loader interface {
	Load(id string) ([]byte, error)
}

// DirLoader reads certificates from Dir. An identifier without an extension
// is looked up as "<id>.cer".
type DirLoader struct {
	Dir string
}

// Load implements Loader.
func (d DirLoader) Load(id string) ([]byte, error) {
	if id == "" || strings.Contains(id, "..") || filepath.IsAbs(id) {
		return nil, fmt.Errorf("invalid certificate identifier %q", id)
	}

	name := id
	if filepath.Ext(name) == "" {
		name += ".cer"
	}

	return os.ReadFile(filepath.Join(d.Dir, name))
}

// MapLoader serves certificate material from memory.
type MapLoader map[string][]byte

// Load implements Loader.
func (m MapLoader) Load(id string) ([]byte, error) {
	b, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("unknown certificate %q", id)
	}

	return b, nil
}
