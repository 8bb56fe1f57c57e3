package fsutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func writeTree(t *testing.T, root string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(root, "a", "b"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "a", "b", "f.txt"), []byte("data"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Symlink("b/f.txt", filepath.Join(root, "a", "link")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
}

func TestMoveDirRename(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src")
	writeTree(t, src)
	dst := filepath.Join(t.TempDir(), "dst")
	if err := MoveDir(src, dst); err != nil {
		t.Fatalf("move: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "a", "b", "f.txt")); err != nil {
		t.Fatalf("moved file missing: %v", err)
	}
	if err := MoveDir(dst, dst); err == nil {
		t.Fatalf("expected error for existing target")
	}
}

func TestMoveDirCrossDevice(t *testing.T) {
	orig := rename
	rename = func(string, string) error { return &os.LinkError{Op: "rename", Err: unix.EXDEV} }
	defer func() { rename = orig }()

	src := filepath.Join(t.TempDir(), "src")
	writeTree(t, src)
	dst := filepath.Join(t.TempDir(), "dst")
	if err := MoveDir(src, dst); err != nil {
		t.Fatalf("move: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dst, "a", "b", "f.txt"))
	if err != nil || string(data) != "data" {
		t.Fatalf("copied file: %q %v", data, err)
	}
	if st, _ := os.Stat(filepath.Join(dst, "a", "b", "f.txt")); st.Mode().Perm() != 0600 {
		t.Fatalf("mode not preserved: %v", st.Mode())
	}
	if link, err := os.Readlink(filepath.Join(dst, "a", "link")); err != nil || link != "b/f.txt" {
		t.Fatalf("symlink not preserved: %q %v", link, err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("source must be removed after copy")
	}
}

func TestMoveDirOtherErrorsPropagate(t *testing.T) {
	orig := rename
	rename = func(string, string) error { return &os.LinkError{Op: "rename", Err: unix.EACCES} }
	defer func() { rename = orig }()

	src := t.TempDir()
	if err := MoveDir(src, filepath.Join(t.TempDir(), "dst")); !errors.Is(err, unix.EACCES) {
		t.Fatalf("expected EACCES, got %v", err)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("source must stay in place: %v", err)
	}
}

func TestMoveInto(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	for _, name := range []string{"x.h", "y.h"} {
		if err := os.WriteFile(filepath.Join(src, name), []byte(name), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := MoveInto(src, dst); err != nil {
		t.Fatalf("move into: %v", err)
	}
	entries, _ := os.ReadDir(src)
	if len(entries) != 0 {
		t.Fatalf("source not emptied")
	}
	if got, _ := os.ReadFile(filepath.Join(dst, "y.h")); string(got) != "y.h" {
		t.Fatalf("unexpected content %q", got)
	}
	if err := os.WriteFile(filepath.Join(src, "x.h"), nil, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := MoveInto(src, dst); err == nil {
		t.Fatalf("expected error when the target already holds the name")
	}
}
