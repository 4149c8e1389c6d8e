package nvr

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/camnvr/internal/logging"
	"github.com/banshee-data/camnvr/internal/security"
	"github.com/banshee-data/camnvr/internal/timeutil"
)

// Retention runs the daily retention sweep: recordings older than
// retainDays are removed, and any date-shaped subdirectory left empty
// afterward is removed too.
type Retention struct {
	root        string
	retainDays  int
	retainIsSet bool

	clock timeutil.Clock
	log   *logging.Logger
}

// DefaultRetainDays is the retention window used when none is configured.
const DefaultRetainDays = 7

// NewRetention builds a Retention sweep over root. If retain is nil, the
// sweep falls back to DefaultRetainDays and logs an ERROR once per sweep,
// matching RecorderConfig.RetainDays' documented contract.
func NewRetention(root string, retain *int, clock timeutil.Clock, log *logging.Logger) *Retention {
	r := &Retention{root: root, clock: clock, log: log}
	if retain == nil {
		r.retainDays = DefaultRetainDays
		r.retainIsSet = false
	} else {
		r.retainDays = *retain
		r.retainIsSet = true
	}
	return r
}

// retentionHourUTC is the hour-of-day (UTC) the daily sweep runs at.
const retentionHourUTC = 1

// Run blocks until ctx is cancelled, running one sweep per day at
// 01:00 UTC.
func (r *Retention) Run(ctx context.Context) error {
	for {
		wait := r.durationUntilNextRun()
		timer := r.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C():
			r.sweep()
		}
	}
}

func (r *Retention) durationUntilNextRun() time.Duration {
	now := r.clock.Now().UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), retentionHourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// sweep runs one retention pass. Run calls it on the daily timer; the
// package's tests call it directly.
func (r *Retention) sweep() {
	if !r.retainIsSet {
		r.log.Errorf("retention.days_to_retain not configured. Defaulting to %d days", DefaultRetainDays)
	}

	cutoff := r.clock.Now().Add(-time.Duration(r.retainDays) * 24 * time.Hour)
	r.removeExpiredFiles(r.root, cutoff)
	r.removeEmptyDateDirs(r.root)
}

func (r *Retention) removeExpiredFiles(dir string, cutoff time.Time) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			r.log.Warnf("retention: read %s: %v", dir, err)
		}
		return
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			r.removeExpiredFiles(path, cutoff)
			continue
		}
		if !isRetainedMediaFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			r.log.Warnf("retention: stat %s: %v", path, err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := security.ValidatePathWithinDirectory(path, r.root); err != nil {
			r.log.Warnf("retention: skipping suspicious path %s: %v", path, err)
			continue
		}
		if err := os.Remove(path); err != nil {
			r.log.Warnf("retention: failed to remove %s: %v", path, err)
		}
	}
}

func isRetainedMediaFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".mp4" || ext == ".jpg"
}

// removeEmptyDateDirs removes empty subfolders under every date-shaped
// directory (name pattern "*-*-*"), then the date folder itself if it is
// left empty. The match is permissive: any name that splits on "-" into
// exactly three parts qualifies, not strictly YYYY-MM-DD, by design.
func (r *Retention) removeEmptyDateDirs(root string) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() || !looksLikeDateDir(e.Name()) {
			continue
		}
		dateDir := filepath.Join(root, e.Name())
		removeEmptySubfolders(dateDir, r.log)
		if dirIsEmpty(dateDir) {
			if err := os.Remove(dateDir); err != nil {
				r.log.Warnf("retention: failed to remove empty date dir %s: %v", dateDir, err)
			}
		}
	}
}

func looksLikeDateDir(name string) bool {
	return len(strings.Split(name, "-")) == 3
}

func removeEmptySubfolders(dir string, log *logging.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sub := filepath.Join(dir, e.Name())
		removeEmptySubfolders(sub, log)
		if dirIsEmpty(sub) {
			if err := os.Remove(sub); err != nil {
				log.Warnf("retention: failed to remove empty subfolder %s: %v", sub, err)
			}
		}
	}
}

func dirIsEmpty(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	return len(entries) == 0
}
