// Package config loads and validates per-camera configuration. The load
// path (extension/size guard, optional-pointer fields with Get*
// fallbacks) follows the pattern used elsewhere in this codebase for
// loading small operator-edited JSON documents.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultRetainDays is used when recorder.retain is unset.
const DefaultRetainDays = 7

// Point is a single vertex of a polygon in frame coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LoggingConfig names a minimum log level; an empty Level falls back to
// the enclosing camera's level (see internal/logging.Logger.Named).
type LoggingConfig struct {
	Level string `json:"level,omitempty"`
}

// DefaultSegmentDuration is used when recorder.segment_duration is unset.
const DefaultSegmentDuration = 60

// RecorderConfig configures the recorder driver and the two cleanup jobs.
type RecorderConfig struct {
	Folder          string `json:"folder"`                     // retention sweep root
	SegmentsFolder  string `json:"segments_folder"`             // per-camera segments parent
	Retain          *int   `json:"retain,omitempty"`            // days; nil -> DefaultRetainDays with a warning
	Lookback        int    `json:"lookback"`                    // seconds
	Timeout         int    `json:"timeout"`                     // seconds of post-event idle before stop
	SegmentDuration int    `json:"segment_duration,omitempty"` // seconds per segment file; 0 -> DefaultSegmentDuration
}

// SegmentDurationSeconds returns the configured segment duration, or
// DefaultSegmentDuration if unset. SegmentCleanup uses it both as its sweep
// interval and in its lookback + 3*segment_duration age threshold; it is
// unrelated to Timeout (post-event idle duration).
func (r RecorderConfig) SegmentDurationSeconds() int {
	if r.SegmentDuration <= 0 {
		return DefaultSegmentDuration
	}
	return r.SegmentDuration
}

// RetainDays returns the configured retention window, or DefaultRetainDays
// if unset. Unlike the rest of this package's Get* accessors this one is
// deliberately not silent: an unset retention window is operationally
// significant, so callers that care (the retention sweep) should check
// Retain == nil themselves and log an ERROR before calling this.
func (r RecorderConfig) RetainDays() int {
	if r.Retain == nil {
		return DefaultRetainDays
	}
	return *r.Retain
}

// ZoneConfig is a named polygonal sub-region with its own trigger rule.
type ZoneConfig struct {
	Name              string   `json:"name"`
	Points            []Point  `json:"points"`
	LabelsOfInterest  []string `json:"labels_of_interest"`
	TriggersRecording bool     `json:"triggers_recording"`
	PostProcessor     string   `json:"post_processor,omitempty"`
}

// CameraConfig names the camera and carries UI-facing identity fields.
type CameraConfig struct {
	Name         string        `json:"name"`
	MQTTName     string        `json:"mqtt_name"`
	NameSlug     string        `json:"name_slug"`
	Zones        []ZoneConfig  `json:"zones"`
	PublishImage bool          `json:"publish_image"`
	Logging      LoggingConfig `json:"logging"`
}

// ObjectLabelConfig is one entry of object_detection.labels[]. Exactly one
// filter exists per configured label. HeightMin/HeightMax/WidthMin/WidthMax
// are fractions of the frame's height/width (0 to 1), not pixel counts.
type ObjectLabelConfig struct {
	Label             string  `json:"label"`
	Confidence        float64 `json:"confidence"`
	HeightMin         float64 `json:"height_min"`
	HeightMax         float64 `json:"height_max"`
	WidthMin          float64 `json:"width_min"`
	WidthMax          float64 `json:"width_max"`
	TriggersRecording bool    `json:"triggers_recording"`
	PostProcessor     string  `json:"post_processor,omitempty"`
	RequireMotion     bool    `json:"require_motion,omitempty"`
}

// ObjectDetectionConfig configures the object path: filter table, gate
// interval, and logging.
type ObjectDetectionConfig struct {
	Labels        []ObjectLabelConfig `json:"labels"`
	Interval      float64             `json:"interval"`
	LogAllObjects bool                `json:"log_all_objects"`
	Logging       LoggingConfig       `json:"logging"`
}

// MotionDetectionConfig configures the motion path: debounce thresholds,
// gate interval, analyzer resolution, the FOV mask, and logging.
type MotionDetectionConfig struct {
	TriggerDetector bool          `json:"trigger_detector"`
	Timeout         bool          `json:"timeout"`
	MaxTimeout      float64       `json:"max_timeout"`
	Area            int           `json:"area"`
	Frames          int           `json:"frames"`
	Interval        float64       `json:"interval"`
	Width           int           `json:"width"`
	Height          int           `json:"height"`
	Mask            []Point       `json:"mask,omitempty"`
	Logging         LoggingConfig `json:"logging"`
}

// Config is the full per-camera configuration.
type Config struct {
	Recorder        RecorderConfig        `json:"recorder"`
	Camera          CameraConfig          `json:"camera"`
	ObjectDetection ObjectDetectionConfig `json:"object_detection"`
	MotionDetection MotionDetectionConfig `json:"motion_detection"`
}

// maxConfigFileSize guards against accidentally loading something that
// isn't a small camera config file.
const maxConfigFileSize = 1 * 1024 * 1024 // 1MB

// Load reads and validates a Config from a JSON file. The path must have a
// .json extension and be under maxConfigFileSize.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is complete enough to construct a
// supervisor. This is the only place configuration errors surface — the
// supervisor never starts on bad config, and nothing here ever panics
// mid-run.
func (c *Config) Validate() error {
	if c.Camera.Name == "" {
		return fmt.Errorf("camera.name is required")
	}
	if c.Recorder.Folder == "" {
		return fmt.Errorf("recorder.folder is required")
	}
	if c.Recorder.SegmentsFolder == "" {
		return fmt.Errorf("recorder.segments_folder is required")
	}
	if c.Recorder.Lookback < 0 {
		return fmt.Errorf("recorder.lookback must be non-negative, got %d", c.Recorder.Lookback)
	}
	if c.Recorder.Timeout <= 0 {
		return fmt.Errorf("recorder.timeout must be positive, got %d", c.Recorder.Timeout)
	}
	if c.Recorder.Retain != nil && *c.Recorder.Retain <= 0 {
		return fmt.Errorf("recorder.retain must be positive when set, got %d", *c.Recorder.Retain)
	}
	if c.Recorder.SegmentDuration < 0 {
		return fmt.Errorf("recorder.segment_duration must be non-negative, got %d", c.Recorder.SegmentDuration)
	}

	seen := map[string]bool{}
	for _, l := range c.ObjectDetection.Labels {
		if l.Label == "" {
			return fmt.Errorf("object_detection.labels[] entry missing label")
		}
		if seen[l.Label] {
			return fmt.Errorf("object_detection.labels[] has duplicate entry for label %q", l.Label)
		}
		seen[l.Label] = true
		if l.Confidence < 0 || l.Confidence > 1 {
			return fmt.Errorf("object_detection.labels[%s].confidence must be in [0,1], got %f", l.Label, l.Confidence)
		}
	}
	if c.ObjectDetection.Interval <= 0 {
		return fmt.Errorf("object_detection.interval must be positive, got %f", c.ObjectDetection.Interval)
	}

	if c.MotionDetection.Interval <= 0 {
		return fmt.Errorf("motion_detection.interval must be positive, got %f", c.MotionDetection.Interval)
	}
	if c.MotionDetection.Frames <= 0 {
		return fmt.Errorf("motion_detection.frames must be positive, got %d", c.MotionDetection.Frames)
	}
	if c.MotionDetection.Timeout && c.MotionDetection.MaxTimeout <= 0 {
		return fmt.Errorf("motion_detection.max_timeout must be positive when motion_detection.timeout is set")
	}

	for _, z := range c.Camera.Zones {
		if z.Name == "" {
			return fmt.Errorf("camera.zones[] entry missing name")
		}
		if len(z.Points) < 3 {
			return fmt.Errorf("camera.zones[%s] polygon needs at least 3 points, got %d", z.Name, len(z.Points))
		}
	}

	return nil
}
