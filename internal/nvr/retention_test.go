package nvr

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/camnvr/internal/timeutil"
)

func TestRetentionSweepRemovesExpiredMediaFiles(t *testing.T) {
	root := t.TempDir()
	dateDir := filepath.Join(root, "2026-01-01")
	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		t.Fatal(err)
	}

	oldFile := filepath.Join(dateDir, "old.mp4")
	newFile := filepath.Join(dateDir, "new.mp4")
	if err := os.WriteFile(oldFile, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(newFile, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	oldTime := now.AddDate(0, 0, -10)
	if err := os.Chtimes(oldFile, oldTime, oldTime); err != nil {
		t.Fatal(err)
	}

	retain := 7
	clock := timeutil.NewMockClock(now)
	r := NewRetention(root, &retain, clock, nopLogger())
	r.sweep()

	if _, err := os.Stat(oldFile); !os.IsNotExist(err) {
		t.Fatal("expected the expired file to be removed")
	}
	if _, err := os.Stat(newFile); err != nil {
		t.Fatal("expected the fresh file to survive the sweep")
	}
}

func TestRetentionSweepRemovesEmptyDateDirAfterCleanup(t *testing.T) {
	root := t.TempDir()
	dateDir := filepath.Join(root, "2026-01-01")
	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		t.Fatal(err)
	}
	oldFile := filepath.Join(dateDir, "old.mp4")
	if err := os.WriteFile(oldFile, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	oldTime := now.AddDate(0, 0, -10)
	if err := os.Chtimes(oldFile, oldTime, oldTime); err != nil {
		t.Fatal(err)
	}

	retain := 7
	clock := timeutil.NewMockClock(now)
	r := NewRetention(root, &retain, clock, nopLogger())
	r.sweep()

	if _, err := os.Stat(dateDir); !os.IsNotExist(err) {
		t.Fatal("expected the now-empty date directory to be removed")
	}
}

func TestRetentionSweepDefaultsWhenRetainDaysUnset(t *testing.T) {
	root := t.TempDir()
	clock := timeutil.NewMockClock(time.Now())
	r := NewRetention(root, nil, clock, nopLogger())
	if r.retainDays != DefaultRetainDays {
		t.Fatalf("retainDays = %d, want default %d", r.retainDays, DefaultRetainDays)
	}
	r.sweep() // should not panic with the default window on an empty root
}

func TestRetentionDurationUntilNextRunWrapsToNextDay(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, retentionHourUTC, 30, 0, 0, time.UTC))
	retain := 7
	r := NewRetention(t.TempDir(), &retain, clock, nopLogger())

	d := r.durationUntilNextRun()
	if d <= 0 || d > 24*time.Hour {
		t.Fatalf("durationUntilNextRun() = %v, want a positive duration within a day", d)
	}
}
