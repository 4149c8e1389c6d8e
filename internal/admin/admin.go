// Package admin serves the camera pipeline's debug surface: a tsweb
// debug mux with the recordings database exposed for live SQL queries
// via tailsql, and a handful of JSON status endpoints. It is reachable
// only over localhost/Tailscale, never the public internet.
package admin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/camnvr/internal/logging"
	"github.com/banshee-data/camnvr/internal/security"
	"github.com/banshee-data/camnvr/internal/storage/sqlite"
)

// defaultStatsWindow is the lookback used by the recording-stats endpoint
// when the caller doesn't specify one.
const defaultStatsWindow = 24 * time.Hour

// CameraStatus is one camera's snapshot for the /debug/cameras endpoint.
type CameraStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Recording bool   `json:"recording"`
}

// StatusSource is implemented by whatever owns the live per-camera
// Supervisors, so the admin mux can report their current state without
// importing the nvr package's mutable runtime state directly.
type StatusSource interface {
	CameraStatuses() []CameraStatus
}

// Mux builds the admin debug ServeMux: tailsql over recordingsDB, the
// camera status JSON endpoint, and download endpoints for recorded clips
// and stats reports. recordingRoots lists every camera's configured
// recording folder; export requests are rejected unless the resolved
// file lives under one of them.
func Mux(recordingsDB *sqlite.DB, statuses StatusSource, recordingRoots []string, log *logging.Logger) (*http.ServeMux, error) {
	mux := http.NewServeMux()
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return nil, fmt.Errorf("admin: create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://recordings.db", recordingsDB.DB, &tailsql.DBOptions{
		Label: "Recordings DB",
	})
	debug.Handle("tailsql/", "SQL live debugging over the recordings database", tsql.NewMux())

	debug.Handle("cameras", "Current per-camera status", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(statuses.CameraStatuses()); err != nil {
			log.Errorf("admin: encode camera statuses: %v", err)
			http.Error(w, "failed to encode camera statuses", http.StatusInternalServerError)
		}
	}))

	debug.Handle("recording-stats", "Recording duration percentiles per camera", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		window := defaultStatsWindow
		if raw := r.URL.Query().Get("window"); raw != "" {
			parsed, err := time.ParseDuration(raw)
			if err != nil {
				http.Error(w, "invalid window duration", http.StatusBadRequest)
				return
			}
			window = parsed
		}

		cameraNames := []string{r.URL.Query().Get("camera")}
		if cameraNames[0] == "" {
			cameraNames = cameraNames[:0]
			for _, c := range statuses.CameraStatuses() {
				cameraNames = append(cameraNames, c.Name)
			}
		}

		reports := make(map[string]sqlite.DurationReport, len(cameraNames))
		for _, name := range cameraNames {
			report, err := recordingsDB.DurationReport(name, window)
			if err != nil {
				log.Errorf("admin: duration report for %s: %v", name, err)
				http.Error(w, "failed to compute recording stats", http.StatusInternalServerError)
				return
			}
			reports[name] = report
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(reports); err != nil {
			log.Errorf("admin: encode recording stats: %v", err)
			http.Error(w, "failed to encode recording stats", http.StatusInternalServerError)
		}
	}))

	debug.Handle("export", "Download a finished recording by ID", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "missing id parameter", http.StatusBadRequest)
			return
		}

		row, err := recordingsDB.FindRecording(id)
		if err != nil {
			http.Error(w, "recording not found", http.StatusNotFound)
			return
		}
		if err := security.ValidatePathWithinAllowedDirs(row.OutputFile, recordingRoots); err != nil {
			log.Errorf("admin: export %s rejected: %v", id, err)
			http.Error(w, "recording path rejected", http.StatusForbidden)
			return
		}

		downloadName := security.SanitizeFilename(filepath.Base(row.OutputFile))
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
		http.ServeFile(w, r, row.OutputFile)
	}))

	debug.Handle("recording-stats/export", "Download recording duration stats as CSV", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		window := defaultStatsWindow
		if raw := r.URL.Query().Get("window"); raw != "" {
			parsed, err := time.ParseDuration(raw)
			if err != nil {
				http.Error(w, "invalid window duration", http.StatusBadRequest)
				return
			}
			window = parsed
		}

		tmpFile, err := os.CreateTemp("", "recording-stats-*.csv")
		if err != nil {
			log.Errorf("admin: create stats export temp file: %v", err)
			http.Error(w, "failed to prepare export", http.StatusInternalServerError)
			return
		}
		tmpPath := tmpFile.Name()
		defer os.Remove(tmpPath)

		if err := security.ValidateExportPath(tmpPath); err != nil {
			tmpFile.Close()
			log.Errorf("admin: stats export path rejected: %v", err)
			http.Error(w, "failed to prepare export", http.StatusInternalServerError)
			return
		}

		fmt.Fprintln(tmpFile, "camera,count,p50_seconds,p85_seconds,p98_seconds,max_seconds")
		for _, c := range statuses.CameraStatuses() {
			report, err := recordingsDB.DurationReport(c.Name, window)
			if err != nil {
				tmpFile.Close()
				log.Errorf("admin: duration report for %s: %v", c.Name, err)
				http.Error(w, "failed to compute recording stats", http.StatusInternalServerError)
				return
			}
			fmt.Fprintf(tmpFile, "%s,%d,%.2f,%.2f,%.2f,%.2f\n",
				c.Name, report.Count, report.P50Seconds, report.P85Seconds, report.P98Seconds, report.MaxSeconds)
		}
		if err := tmpFile.Close(); err != nil {
			log.Errorf("admin: close stats export temp file: %v", err)
			http.Error(w, "failed to prepare export", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Disposition", `attachment; filename="recording-stats.csv"`)
		http.ServeFile(w, r, tmpPath)
	}))

	return mux, nil
}
