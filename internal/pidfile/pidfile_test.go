package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestWriteThenReadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vellum.pid")
	if err := Write(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pid, err := Read(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("expected pid %d, got %d", os.Getpid(), pid)
	}
}

func TestWriteClobbersStalePidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vellum.pid")
	// A pid that is extremely unlikely to be alive.
	if err := os.WriteFile(path, []byte(strconv.Itoa(1<<30)), 0644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := Write(path); err != nil {
		t.Fatalf("expected stale pidfile to be clobbered, got error: %v", err)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vellum.pid")
	if err := Remove(path); err != nil {
		t.Fatalf("expected removing a nonexistent pidfile to be a no-op, got %v", err)
	}
}
