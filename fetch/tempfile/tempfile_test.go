package tempfile_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/adamwoolhether/nativefetch/fetch/tempfile"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()

	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
		t.Fatalf("writing %s: %v", p, err)
	}

	return p
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}

func TestTracker_RegisterOnlyExisting(t *testing.T) {
	dir := t.TempDir()
	tr := tempfile.New(nil)

	tr.Register(filepath.Join(dir, "missing"))
	tr.Register("")

	if n := tr.Len(); n != 0 {
		t.Fatalf("exp 0 tracked entries, got %d", n)
	}

	p := touch(t, dir, "a")
	tr.Register(p)
	tr.Register(p)

	if n := tr.Len(); n != 1 {
		t.Fatalf("exp 1 tracked entry after duplicate register, got %d", n)
	}
}

func TestTracker_Cleanup(t *testing.T) {
	dir := t.TempDir()
	tr := tempfile.New(nil)

	a := touch(t, dir, "a")
	b := touch(t, dir, "b")
	tr.Register(a)
	tr.Register(b)

	// Removing a file out from under the tracker is not an error.
	if err := os.Remove(b); err != nil {
		t.Fatal(err)
	}

	tr.Cleanup()

	if exists(a) {
		t.Error("exp a to be removed")
	}
	if n := tr.Len(); n != 0 {
		t.Errorf("exp tracked set cleared, got %d", n)
	}

	// Second cleanup is a no-op.
	tr.Cleanup()
}

func TestScope_ReleaseOnlyOwnFiles(t *testing.T) {
	dir := t.TempDir()
	tr := tempfile.New(nil)

	first := tr.Scope()
	second := tr.Scope()

	a := touch(t, dir, "a")
	b := touch(t, dir, "b")
	first.Register(a)
	second.Register(b)

	first.Release()

	if exists(a) {
		t.Error("exp first scope file removed")
	}
	if !exists(b) {
		t.Error("exp second scope file to survive first release")
	}
	if !tr.Tracked(b) {
		t.Error("exp second scope file still tracked")
	}

	second.Release()
	second.Release()

	if exists(b) {
		t.Error("exp second scope file removed")
	}
}

func TestScope_RegisterAfterRelease(t *testing.T) {
	dir := t.TempDir()
	tr := tempfile.New(nil)

	s := tr.Scope()
	s.Release()

	p := touch(t, dir, "late")
	s.Register(p)

	if exists(p) {
		t.Error("exp late registration to be removed immediately")
	}
	if tr.Len() != 0 {
		t.Error("exp tracker to be empty")
	}
}

func TestTracker_CloseRemovesEverything(t *testing.T) {
	dir := t.TempDir()
	tr := tempfile.New(nil)

	s := tr.Scope()
	p := touch(t, dir, "a")
	s.Register(p)

	if err := tr.Close(); err != nil {
		t.Fatalf("exp nil err, got %v", err)
	}
	if exists(p) {
		t.Error("exp file removed on close")
	}

	// The scope's later release must not fail on the already removed file.
	s.Release()
}
