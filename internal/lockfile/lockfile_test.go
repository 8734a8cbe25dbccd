package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLockAcquisition(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Release()

	content, err := os.ReadFile(filepath.Join(dir, LockFileName))
	if err != nil {
		t.Fatalf("Failed to read lock file: %v", err)
	}
	if want := fmt.Sprintf("pid=%d\n", os.Getpid()); string(content) != want {
		t.Errorf("Lock file content mismatch. Expected: %q, Got: %q", want, string(content))
	}
}

func TestLockConflict(t *testing.T) {
	dir := t.TempDir()

	lock1, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer lock1.Release()

	lock2, err := AcquireLock(dir)
	if err == nil {
		lock2.Release()
		t.Fatal("Expected second lock acquisition to fail")
	}
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("Expected *LockError, got %T", err)
	}
	if !strings.Contains(lockErr.Holder, "running") {
		t.Errorf("Expected holder description to report a running pid, got %q", lockErr.Holder)
	}
	if !strings.Contains(err.Error(), "rm "+filepath.Join(dir, LockFileName)) {
		t.Errorf("Error should explain how to remove a stale lock: %s", err)
	}
}

func TestLockReleaseAndReacquire(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("Second release should be a no-op, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, LockFileName)); !os.IsNotExist(err) {
		t.Errorf("Lock file should be removed after release")
	}

	again, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to reacquire lock: %v", err)
	}
	again.Release()
}

func TestLockCreatesStateDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("Failed to acquire lock in missing dir: %v", err)
	}
	lock.Release()
}

func TestParsePID(t *testing.T) {
	tests := map[string]int{
		"pid=1234\n":      1234,
		"host=x\npid=42":  42,
		"garbage":         0,
		"pid=abc":         0,
	}
	for in, want := range tests {
		if got := parsePID(in); got != want {
			t.Errorf("parsePID(%q) = %d, want %d", in, got, want)
		}
	}
}
