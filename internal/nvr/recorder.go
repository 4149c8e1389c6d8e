package nvr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/camnvr/internal/fsutil"
	"github.com/banshee-data/camnvr/internal/logging"
	"github.com/banshee-data/camnvr/internal/security"
)

// Recorder is the driver contract the Supervisor depends on. Muxing a
// ring of pre-captured segments into an output file is the recorder
// domain's business, not this package's; FileRecorder below implements
// the contract's bookkeeping without doing that muxing.
type Recorder interface {
	Start(ctx context.Context, frame *Frame, objectsInFOV []DetectedObject, width, height int) error
	Stop() error
	IsRecording() bool
	LastRecordingStart() time.Time
	LastRecordingEnd() time.Time
}

// DetectionLock is a mutual-exclusion handle taken by FileRecorder.Start
// for the duration of its setup. ObjectDecoder does not take it, so it
// does not keep object detection and a recording start apart.
type DetectionLock struct {
	mu sync.Mutex
}

// Lock acquires the detection lock, blocking until available.
func (d *DetectionLock) Lock() { d.mu.Lock() }

// Unlock releases the detection lock.
func (d *DetectionLock) Unlock() { d.mu.Unlock() }

// FileRecorder implements Recorder by tracking each recording's ID,
// timestamps and output path under recordingFolder, counting the lookback
// segments on disk, and writing a JPEG thumbnail. It does not read the
// segments or write the output file itself.
type FileRecorder struct {
	cameraName      string
	segmentsFolder  string
	recordingFolder string
	lookback        time.Duration

	lock *DetectionLock
	fs   fsutil.FileSystem
	log  *logging.Logger

	mu           sync.Mutex
	recording    bool
	current      *Recording
	lastFinished Recording
	lastStart    time.Time
	lastEnd      time.Time
}

// NewFileRecorder builds a FileRecorder rooted at recordingFolder, pulling
// lookback segments from segmentsFolder/cameraName.
func NewFileRecorder(cameraName, segmentsFolder, recordingFolder string, lookback time.Duration, lock *DetectionLock, fs fsutil.FileSystem, log *logging.Logger) *FileRecorder {
	return &FileRecorder{
		cameraName:      cameraName,
		segmentsFolder:  segmentsFolder,
		recordingFolder: recordingFolder,
		lookback:        lookback,
		lock:            lock,
		fs:              fs,
		log:             log,
	}
}

// Start begins a new recording: it takes the detection lock, lists the
// lookback segments already on disk (logging their count), creates the
// dated output directory, writes the thumbnail there, and records the
// output file path without creating that file. The detection lock is held only for
// the duration of this setup, never across the whole recording.
func (r *FileRecorder) Start(ctx context.Context, frame *Frame, objectsInFOV []DetectedObject, width, height int) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return nil
	}

	now := frame.Timestamp
	id := fmt.Sprintf("%s-%s", r.cameraName, now.Format("20060102150405"))
	dateDir := now.Format("2006-01-02")
	outDir := filepath.Join(r.recordingFolder, dateDir)
	if err := security.ValidatePathWithinDirectory(outDir, r.recordingFolder); err != nil {
		return fmt.Errorf("recorder: refusing to start outside recording root: %w", err)
	}
	if err := r.fs.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("recorder: create output dir: %w", err)
	}

	outputFile := filepath.Join(outDir, id+".mp4")
	thumbnailPath := filepath.Join(outDir, id+".jpg")

	lookbackSegments, err := r.lookbackSegments(now)
	if err != nil {
		r.log.Warnf("failed to list lookback segments: %v", err)
	}
	r.log.Infof("starting recording %s with %d lookback segments", id, len(lookbackSegments))

	if err := r.fs.WriteFile(thumbnailPath, frame.Pixels, 0o644); err != nil {
		r.log.Warnf("failed to write thumbnail: %v", err)
	}

	r.current = &Recording{
		ID:                id,
		StartTS:           now,
		SegmentDir:        filepath.Join(r.segmentsFolder, r.cameraName),
		OutputFile:        outputFile,
		ThumbnailPath:     thumbnailPath,
		TriggeringObjects: objectsInFOV,
	}
	r.recording = true
	r.lastStart = now
	return nil
}

// Stop finalizes the in-progress recording.
func (r *FileRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return nil
	}
	r.current.EndTS = time.Now()
	r.lastEnd = r.current.EndTS
	r.log.Infof("stopped recording %s, output=%s", r.current.ID, r.current.OutputFile)
	r.lastFinished = *r.current
	r.recording = false
	r.current = nil
	return nil
}

// IsRecording reports whether a recording is in progress.
func (r *FileRecorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// LastRecordingStart returns the start time of the most recent recording.
func (r *FileRecorder) LastRecordingStart() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastStart
}

// LastRecordingEnd returns the end time of the most recently finished
// recording.
func (r *FileRecorder) LastRecordingEnd() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastEnd
}

// CurrentRecording returns a snapshot of the in-progress recording, for
// callers that persist recording metadata elsewhere.
func (r *FileRecorder) CurrentRecording() (Recording, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return Recording{}, false
	}
	return *r.current, true
}

// LastFinishedRecording returns a snapshot of the most recently completed
// recording (valid immediately after Stop returns).
func (r *FileRecorder) LastFinishedRecording() Recording {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastFinished
}

// lookbackSegments returns the segment filenames whose timestamp is after
// now-lookback (with no upper bound), oldest first.
func (r *FileRecorder) lookbackSegments(now time.Time) ([]string, error) {
	dir := filepath.Join(r.segmentsFolder, r.cameraName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	cutoff := now.Add(-r.lookback)
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ts, ok := parseSegmentTimestamp(e.Name())
		if !ok {
			continue
		}
		if ts.After(cutoff) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
