package bootstatus

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteThenTake(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bootstatus.json")
	record := Record{
		Identity:   "Smart Watchdog",
		TimeoutSec: 10,
		Cause:      "timeout expired",
		TrippedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := Write(path, record); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temporary file should not remain, stat err=%v", err)
	}

	got, ok, err := Take(path)
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if !ok {
		t.Fatalf("expected a record")
	}
	if got.Identity != record.Identity || got.TimeoutSec != record.TimeoutSec || got.Cause != record.Cause {
		t.Fatalf("record mismatch: %#v", got)
	}
	if !got.TrippedAt.Equal(record.TrippedAt) {
		t.Fatalf("tripped_at = %v, want %v", got.TrippedAt, record.TrippedAt)
	}

	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("take should remove the record, stat err=%v", err)
	}
}

func TestTake_Missing(t *testing.T) {
	t.Parallel()

	_, ok, err := Take(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("take missing: %v", err)
	}
	if ok {
		t.Fatalf("missing file should report no record")
	}
}

func TestRead_Corrupt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bootstatus.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("write corrupt: %v", err)
	}
	if _, _, err := Take(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestClear_Idempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bootstatus.json")
	if err := Clear(path); err != nil {
		t.Fatalf("clear missing: %v", err)
	}
	if err := Write(path, Record{Identity: "x"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := Clear(path); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := Clear(path); err != nil {
		t.Fatalf("clear again: %v", err)
	}
}
