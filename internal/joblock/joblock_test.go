package joblock_test

import (
	"errors"
	"path/filepath"
	"testing"

	"mvdown/internal/joblock"
)

func TestAcquireIsExclusive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	first := joblock.New(dir)
	if err := first.Acquire(); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer first.Release()

	second := joblock.New(dir)
	if err := second.Acquire(); !errors.Is(err, joblock.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := second.Acquire(); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	if err := second.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if err := second.Release(); err != nil {
		t.Fatalf("Release without lock: %v", err)
	}
	if got := first.Path(); got != filepath.Join(dir, "mvdown.lock") {
		t.Fatalf("Path = %q", got)
	}
}

func TestRecordAndLastJob(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	id, err := joblock.LastJob(dir)
	if err != nil || id != "" {
		t.Fatalf("LastJob on empty dir = %q, %v", id, err)
	}
	if err := joblock.RecordJob(dir, " abc "); err != nil {
		t.Fatalf("RecordJob: %v", err)
	}
	if err := joblock.RecordJob(dir, ""); err != nil {
		t.Fatalf("RecordJob empty: %v", err)
	}
	id, err = joblock.LastJob(dir)
	if err != nil || id != "abc" {
		t.Fatalf("LastJob = %q, %v", id, err)
	}
}
