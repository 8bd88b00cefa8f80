package identity

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStatic(t *testing.T) {
	if got := Static("alice").ID(); got != "alice" {
		t.Errorf("ID = %q, want alice", got)
	}
}

func TestNewFileMintsAndPersists(t *testing.T) {
	dir := t.TempDir()

	p1, err := NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if p1.ID() == "" {
		t.Fatal("empty identifier")
	}

	// A second load returns the same identifier.
	p2, err := NewFile(dir)
	if err != nil {
		t.Fatalf("second NewFile: %v", err)
	}
	if p2.ID() != p1.ID() {
		t.Errorf("identifier changed across loads: %q -> %q", p1.ID(), p2.ID())
	}
}

func TestNewFileIgnoresBlankFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "client_id"), []byte("  \n"), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if p.ID() == "" {
		t.Error("blank id file should be replaced with a fresh identifier")
	}
}

func TestNewFileCreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	p, err := NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if p.ID() == "" {
		t.Error("empty identifier")
	}
}
