package vfs_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/seantiz/anvil/internal/vfs"
)

func newFS(t *testing.T, ignores []string) (*vfs.FS, string) {
	t.Helper()
	root := t.TempDir()
	f, err := vfs.New(root, ignores)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f, root
}

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestNewRejectsMissingRoot(t *testing.T) {
	if _, err := vfs.New(filepath.Join(t.TempDir(), "nope"), nil); err == nil {
		t.Fatal("New with missing root succeeded")
	}
}

func TestNewRejectsBadPattern(t *testing.T) {
	if _, err := vfs.New(t.TempDir(), []string{"[unclosed"}); err == nil {
		t.Fatal("New with invalid pattern succeeded")
	}
}

func TestReadFile(t *testing.T) {
	f, root := newFS(t, nil)
	write(t, root, "src/lib.txt", "hello")

	content, err := f.ReadFile("src/lib.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(content) != "hello" {
		t.Errorf("ReadFile = %q, want %q", content, "hello")
	}
}

func TestIgnoredPathsReadAsMissing(t *testing.T) {
	f, root := newFS(t, []string{"**/*.pyc", ".git/**"})
	write(t, root, "mod/cached.pyc", "bytecode")

	if !f.Ignored("mod/cached.pyc") {
		t.Error("mod/cached.pyc not ignored")
	}
	if _, err := f.ReadFile("mod/cached.pyc"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ReadFile ignored = %v, want fs.ErrNotExist", err)
	}
}

func TestScandirFiltersIgnored(t *testing.T) {
	f, root := newFS(t, []string{"**/*.tmp"})
	write(t, root, "out/a.txt", "a")
	write(t, root, "out/b.tmp", "b")
	write(t, root, "out/c.txt", "c")

	ents, err := f.Scandir("out")
	if err != nil {
		t.Fatalf("Scandir: %v", err)
	}
	if len(ents) != 2 || ents[0].Name != "a.txt" || ents[1].Name != "c.txt" {
		t.Errorf("Scandir = %v, want [a.txt c.txt]", ents)
	}
}

func TestResolveRejectsEscape(t *testing.T) {
	f, _ := newFS(t, nil)
	if _, err := f.ReadFile("../outside"); err == nil {
		t.Fatal("ReadFile escaping the root succeeded")
	}
	if _, err := f.Stat("/etc/passwd"); err == nil {
		t.Fatal("Stat of absolute path succeeded")
	}
}
