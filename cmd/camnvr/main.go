// Command camnvr runs the per-camera capture/detect/record pipeline
// described by a directory of camera config files.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/camnvr/internal/admin"
	"github.com/banshee-data/camnvr/internal/config"
	"github.com/banshee-data/camnvr/internal/fsutil"
	"github.com/banshee-data/camnvr/internal/logging"
	"github.com/banshee-data/camnvr/internal/nvr"
	"github.com/banshee-data/camnvr/internal/storage/sqlite"
	"github.com/banshee-data/camnvr/internal/timeutil"
	"github.com/banshee-data/camnvr/internal/version"
)

var (
	configDir = flag.String("config-dir", "/etc/camnvr/cameras", "directory of per-camera .json config files")
	dbPath    = flag.String("db", "/var/lib/camnvr/recordings.db", "path to the recordings sqlite database")
	listen    = flag.String("listen", ":8080", "admin debug mux listen address")
)

func main() {
	flag.Parse()
	log.Printf("camnvr %s starting", version.Version)

	configs, err := loadCameraConfigs(*configDir)
	if err != nil {
		log.Fatalf("failed to load camera configs: %v", err)
	}
	if len(configs) == 0 {
		log.Fatalf("no camera configs found in %s", *configDir)
	}

	recordingsDB, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open recordings database: %v", err)
	}
	defer recordingsDB.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := timeutil.RealClock{}
	registry := newCameraRegistry()

	var wg sync.WaitGroup
	var recordingRoots []string
	for _, cfg := range configs {
		cam, err := newCamera(cfg, recordingsDB, clock)
		if err != nil {
			log.Fatalf("failed to build camera %q: %v", cfg.Camera.Name, err)
		}
		registry.add(cam)
		recordingRoots = append(recordingRoots, cfg.Recorder.Folder)

		wg.Add(1)
		go func() {
			defer wg.Done()
			cam.run(ctx)
		}()
	}

	mux, err := admin.Mux(recordingsDB, registry, recordingRoots, logging.New("admin", logging.Info))
	if err != nil {
		log.Fatalf("failed to build admin mux: %v", err)
	}
	server := &http.Server{Addr: *listen, Handler: mux}

	wg.Add(1)
	go func() {
		defer wg.Done()
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("admin server failed: %v", err)
			}
		}()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("admin server shutdown error: %v", err)
		}
	}()

	wg.Wait()
	log.Printf("camnvr shutdown complete")
}

func loadCameraConfigs(dir string) ([]*config.Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var configs []*config.Config
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		cfg, err := config.Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// cameraRegistry lets the admin mux report live status without the nvr
// package importing http.
type cameraRegistry struct {
	mu      sync.Mutex
	cameras []*camera
}

func newCameraRegistry() *cameraRegistry { return &cameraRegistry{} }

func (r *cameraRegistry) add(c *camera) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cameras = append(r.cameras, c)
}

func (r *cameraRegistry) CameraStatuses() []admin.CameraStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]admin.CameraStatus, 0, len(r.cameras))
	for _, c := range r.cameras {
		out = append(out, admin.CameraStatus{
			Name:      c.cfg.Camera.Name,
			Status:    string(c.supervisor.Status().State),
			Recording: c.recorder.IsRecording(),
		})
	}
	return out
}

// buildTransport constructs the live nvr.Transport for a configured
// camera. The transport's implementation is an external collaborator
// this core never defines. Nothing in this repository replaces this
// default, so as built here it returns an error for every camera; a
// package-main init() function can assign a real constructor to it.
var buildTransport = func(cfg *config.Config) (nvr.Transport, error) {
	return nil, &transportNotConfiguredError{cameraName: cfg.Camera.Name}
}

type transportNotConfiguredError struct{ cameraName string }

func (e *transportNotConfiguredError) Error() string {
	return "camera " + e.cameraName + ": no nvr.Transport constructor registered for this build"
}

// buildObjectAnalyzer and buildMotionAnalyzer construct this camera's
// analyzer side-channel clients — also external collaborators, with the
// same error-returning defaults as buildTransport.
var (
	buildObjectAnalyzer = func(cfg *config.Config) (nvr.ObjectAnalyzer, error) {
		return nil, &analyzerNotConfiguredError{cameraName: cfg.Camera.Name, kind: "object"}
	}
	buildMotionAnalyzer = func(cfg *config.Config) (nvr.MotionAnalyzer, error) {
		return nil, &analyzerNotConfiguredError{cameraName: cfg.Camera.Name, kind: "motion"}
	}
)

type analyzerNotConfiguredError struct {
	cameraName string
	kind       string
}

func (e *analyzerNotConfiguredError) Error() string {
	return "camera " + e.cameraName + ": no " + e.kind + " analyzer constructor registered for this build"
}

// camera bundles one configured camera's full pipeline: queues, gates,
// filter stages, recorder, and the supervisor tying them together.
type camera struct {
	cfg        *config.Config
	recorder   nvr.Recorder
	supervisor *nvr.Supervisor
	retention  *nvr.Retention
	segmentTTL *nvr.SegmentCleanup

	transport nvr.Transport
	capture   *nvr.Capture
	objDecode *nvr.ObjectDecoder
	motDecode *nvr.MotionDecoder
	dispatch  *nvr.WorkQueueDispatch
	log       *logging.Logger
}

// drainPostProcessorJobs consumes c.dispatch's job queue until ctx is
// cancelled. It stands in for the external post-processor pool: nothing
// in this build actually runs the named post-processor, but draining the
// queue here keeps WorkQueueDispatch's bounded buffer from filling up and
// dropping (with a warning) every job after the first 32.
func (c *camera) drainPostProcessorJobs(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job, ok := <-c.dispatch.Jobs():
			if !ok {
				return nil
			}
			c.log.Debugf("post-processor %q dispatched for %s", job.Name, job.Obj.Label)
		}
	}
}

func newCamera(cfg *config.Config, db *sqlite.DB, clock timeutil.Clock) (*camera, error) {
	transport, err := buildTransport(cfg)
	if err != nil {
		return nil, err
	}
	objectAnalyzer, err := buildObjectAnalyzer(cfg)
	if err != nil {
		return nil, err
	}
	motionAnalyzer, err := buildMotionAnalyzer(cfg)
	if err != nil {
		return nil, err
	}

	camLevel, _ := logging.ParseLevel(cfg.Camera.Logging.Level)
	camLog := logging.New(cfg.Camera.Name, camLevel)

	objDecodeQ, objReturnQ := nvr.NewFrameQueue(), nvr.NewFrameQueue()
	motDecodeQ, motReturnQ := nvr.NewFrameQueue(), nvr.NewFrameQueue()

	triggerDetector := cfg.MotionDetection.TriggerDetector
	objGate := nvr.NewScanGate(!triggerDetector)
	motionGate := nvr.NewScanGate(triggerDetector)
	ready := nvr.NewFrameReadySignal()

	capture := nvr.NewCapture(transport, objDecodeQ, motDecodeQ, objGate, motionGate, ready, camLog.Named("capture", ""))

	zones := make([]nvr.Zone, 0, len(cfg.Camera.Zones))
	for _, z := range cfg.Camera.Zones {
		points := make([]nvr.Point, 0, len(z.Points))
		for _, p := range z.Points {
			points = append(points, nvr.Point{X: p.X, Y: p.Y})
		}
		zones = append(zones, nvr.NewZone(z.Name, points, z.LabelsOfInterest, z.TriggersRecording, z.PostProcessor))
	}

	filters := make([]nvr.ObjectLabelFilter, 0, len(cfg.ObjectDetection.Labels))
	for _, l := range cfg.ObjectDetection.Labels {
		filters = append(filters, nvr.ObjectLabelFilter{
			Label:             l.Label,
			MinConfidence:     l.Confidence,
			MinSizeRel:        relativeAreaBound(l.WidthMin, l.HeightMin, 0),
			MaxSizeRel:        relativeAreaBound(l.WidthMax, l.HeightMax, 1),
			TriggersRecording: l.TriggersRecording,
			PostProcessor:     l.PostProcessor,
		})
	}

	publisher := nvr.NewPublisher(camLog.Named("publisher", ""))
	dispatch := nvr.NewWorkQueueDispatch(camLog.Named("postproc", ""))
	objectFilter := nvr.NewObjectFilter(filters, zones, dispatch, publisher, camLog.Named("objectfilter", cfg.ObjectDetection.Logging.Level))
	motionFilter := nvr.NewMotionFilter(float64(cfg.MotionDetection.Area), cfg.MotionDetection.Frames, camLog.Named("motionfilter", cfg.MotionDetection.Logging.Level))
	zoneEval := nvr.NewZoneEvaluator(zones, dispatch, publisher)

	lock := &nvr.DetectionLock{}
	fileRecorder := nvr.NewFileRecorder(cfg.Camera.Name, cfg.Recorder.SegmentsFolder, cfg.Recorder.Folder, time.Duration(cfg.Recorder.Lookback)*time.Second, lock, fsutil.OSFileSystem{}, camLog.Named("recorder", ""))
	var recorder nvr.Recorder = &persistingRecorder{
		FileRecorder: fileRecorder,
		db:           db,
		cameraName:   cfg.Camera.Name,
		log:          camLog.Named("recorder", ""),
	}

	fps := transport.FPS()
	if fps <= 0 {
		fps = defaultFPS
	}
	supervisorCfg := nvr.SupervisorConfig{
		FPS:                  fps,
		TriggerDetector:      triggerDetector,
		MotionTimeoutEnabled: cfg.MotionDetection.Timeout,
		MotionMaxTimeout:     cfg.MotionDetection.MaxTimeout,
		RecorderTimeout:      float64(cfg.Recorder.Timeout),
		PublishFrames:        cfg.Camera.PublishImage,
	}
	supervisor := nvr.NewSupervisor(supervisorCfg, objReturnQ, motReturnQ, objGate, motionGate, ready, objectFilter, motionFilter, zoneEval, recorder, publisher, camLog.Named("supervisor", ""))

	segmentsDir := filepath.Join(cfg.Recorder.SegmentsFolder, cfg.Camera.Name)
	segmentDuration := time.Duration(cfg.Recorder.SegmentDurationSeconds()) * time.Second
	lookback := time.Duration(cfg.Recorder.Lookback) * time.Second

	retention := nvr.NewRetention(cfg.Recorder.Folder, cfg.Recorder.Retain, clock, camLog.Named("retention", ""))
	segmentTTL := nvr.NewSegmentCleanup(segmentsDir, segmentDuration, lookback, clock, camLog.Named("segmentcleanup", ""))

	objDecode := nvr.NewObjectDecoder(objDecodeQ, objReturnQ, objectAnalyzer, time.Duration(cfg.ObjectDetection.Interval*float64(time.Second)), clock, camLog.Named("objectdecoder", ""))
	motDecode := nvr.NewMotionDecoder(motDecodeQ, motReturnQ, motionAnalyzer, time.Duration(cfg.MotionDetection.Interval*float64(time.Second)), clock, camLog.Named("motiondecoder", ""))

	return &camera{
		cfg:        cfg,
		recorder:   recorder,
		supervisor: supervisor,
		retention:  retention,
		segmentTTL: segmentTTL,
		transport:  transport,
		capture:    capture,
		objDecode:  objDecode,
		motDecode:  motDecode,
		dispatch:   dispatch,
		log:        camLog.Named("postproc", ""),
	}, nil
}

// defaultFPS is used only as a fallback when a Transport reports FPS() <= 0
// (not yet streaming, or a stub implementation that doesn't track rate).
const defaultFPS = 15.0

// relativeAreaBound turns a configured width/height fraction pair into the
// bbox-area-to-frame-area bound nvr.ObjectLabelFilter checks against. A
// zero pair (both fields left unset in the camera config) falls back to
// fallback, since a min of 0 or a max of 1 is a no-op bound either way.
func relativeAreaBound(widthFrac, heightFrac, fallback float64) float64 {
	if widthFrac <= 0 || heightFrac <= 0 {
		return fallback
	}
	return widthFrac * heightFrac
}

// persistingRecorder decorates a *nvr.FileRecorder so every recording's
// lifecycle is also mirrored into the recordings database, without the
// nvr package needing to know sqlite exists.
type persistingRecorder struct {
	*nvr.FileRecorder
	db         *sqlite.DB
	cameraName string
	log        *logging.Logger
}

func (p *persistingRecorder) Start(ctx context.Context, frame *nvr.Frame, objectsInFOV []nvr.DetectedObject, width, height int) error {
	if err := p.FileRecorder.Start(ctx, frame, objectsInFOV, width, height); err != nil {
		return err
	}
	if rec, ok := p.FileRecorder.CurrentRecording(); ok {
		if err := p.db.InsertRecording(rec, p.cameraName); err != nil {
			p.log.Errorf("failed to persist recording start: %v", err)
		}
	}
	return nil
}

func (p *persistingRecorder) Stop() error {
	if err := p.FileRecorder.Stop(); err != nil {
		return err
	}
	rec := p.FileRecorder.LastFinishedRecording()
	if err := p.db.InsertRecording(rec, p.cameraName); err != nil {
		p.log.Errorf("failed to persist recording end: %v", err)
	}
	return nil
}

func (c *camera) run(ctx context.Context) {
	defer c.transport.Release()

	var wg sync.WaitGroup
	stages := []func(context.Context) error{
		c.capture.Run,
		c.objDecode.Run,
		c.motDecode.Run,
		c.supervisor.Run,
		c.retention.Run,
		c.segmentTTL.Run,
		c.drainPostProcessorJobs,
	}
	for _, stage := range stages {
		wg.Add(1)
		go func(run func(context.Context) error) {
			defer wg.Done()
			if err := run(ctx); err != nil {
				log.Printf("camera %s: pipeline stage exited: %v", c.cfg.Camera.Name, err)
			}
		}(stage)
	}
	wg.Wait()
}
