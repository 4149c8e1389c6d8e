package nvr

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/banshee-data/camnvr/internal/logging"
	"github.com/banshee-data/camnvr/internal/security"
	"github.com/banshee-data/camnvr/internal/timeutil"
)

// segmentTimestampLayout is the basename prefix format segment files use:
// YYYYMMDDHHMMSS before the first '.'.
const segmentTimestampLayout = "20060102150405"

// parseSegmentTimestamp extracts the start timestamp encoded in a segment
// file's basename. Unparsable names are reported via ok=false and are
// left untouched by the sweep.
func parseSegmentTimestamp(name string) (time.Time, bool) {
	base := name
	if i := indexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	t, err := time.Parse(segmentTimestampLayout, base)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// SegmentCleanup runs the segment TTL sweep: every
// segmentDuration it deletes any segment file older than
// lookback+3*segmentDuration. It supports pause/resume so an active mux
// (FileRecorder.Start reading the lookback ring) can suspend deletion
// without losing its schedule.
type SegmentCleanup struct {
	segmentsDir     string
	segmentDuration time.Duration
	lookback        time.Duration

	clock timeutil.Clock
	log   *logging.Logger

	mu     sync.Mutex
	paused bool
}

// NewSegmentCleanup builds a SegmentCleanup sweeping segmentsDir.
func NewSegmentCleanup(segmentsDir string, segmentDuration, lookback time.Duration, clock timeutil.Clock, log *logging.Logger) *SegmentCleanup {
	return &SegmentCleanup{
		segmentsDir:     segmentsDir,
		segmentDuration: segmentDuration,
		lookback:        lookback,
		clock:           clock,
		log:             log,
	}
}

// Pause suspends sweeps until Resume is called. Safe to call repeatedly.
func (c *SegmentCleanup) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

// Resume re-activates sweeps on the existing ticker schedule.
func (c *SegmentCleanup) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
}

func (c *SegmentCleanup) isPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Run ticks every segmentDuration until ctx is cancelled, sweeping
// expired segments on each tick unless paused.
func (c *SegmentCleanup) Run(ctx context.Context) error {
	if c.segmentDuration <= 0 {
		c.log.Warnf("segment cleanup: non-positive interval, not starting")
		return nil
	}
	ticker := c.clock.NewTicker(c.segmentDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			if c.isPaused() {
				continue
			}
			c.sweep()
		}
	}
}

func (c *SegmentCleanup) sweep() {
	ttl := c.lookback + 3*c.segmentDuration
	cutoff := c.clock.Now().Add(-ttl)

	entries, err := os.ReadDir(c.segmentsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.Warnf("segment cleanup: read %s: %v", c.segmentsDir, err)
		}
		return
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ts, ok := parseSegmentTimestamp(e.Name())
		if !ok {
			continue
		}
		if ts.Before(cutoff) {
			path := filepath.Join(c.segmentsDir, e.Name())
			if err := security.ValidatePathWithinDirectory(path, c.segmentsDir); err != nil {
				c.log.Warnf("segment cleanup: skipping suspicious path %s: %v", path, err)
				continue
			}
			if err := os.Remove(path); err != nil {
				c.log.Warnf("segment cleanup: failed to remove %s: %v", path, err)
			}
		}
	}
}

