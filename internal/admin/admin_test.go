package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/camnvr/internal/logging"
	"github.com/banshee-data/camnvr/internal/nvr"
	"github.com/banshee-data/camnvr/internal/storage/sqlite"
)

type fakeStatusSource struct {
	statuses []CameraStatus
}

func (f fakeStatusSource) CameraStatuses() []CameraStatus { return f.statuses }

func openTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "recordings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMuxCamerasEndpointReportsStatuses(t *testing.T) {
	db := openTestDB(t)
	statuses := fakeStatusSource{statuses: []CameraStatus{
		{Name: "front-door", Status: "recording", Recording: true},
	}}

	mux, err := Mux(db, statuses, nil, logging.New("test", logging.Error+1))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/debug/cameras", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got []CameraStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, statuses.statuses, got)
}

func TestMuxRecordingStatsReportsPerCamera(t *testing.T) {
	db := openTestDB(t)
	start := time.Now().Add(-time.Hour)
	require.NoError(t, db.InsertRecording(nvr.Recording{
		ID:      "front-door-20260101120000",
		StartTS: start,
		EndTS:   start.Add(30 * time.Second),
	}, "front-door"))

	statuses := fakeStatusSource{statuses: []CameraStatus{{Name: "front-door"}}}
	mux, err := Mux(db, statuses, nil, logging.New("test", logging.Error+1))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/debug/recording-stats", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]sqlite.DurationReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 1, got["front-door"].Count)
	require.Equal(t, 30.0, got["front-door"].MaxSeconds)
}

func TestMuxRecordingStatsRejectsInvalidWindow(t *testing.T) {
	db := openTestDB(t)
	mux, err := Mux(db, fakeStatusSource{}, nil, logging.New("test", logging.Error+1))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/debug/recording-stats?window=not-a-duration", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMuxServesTailsqlRoute(t *testing.T) {
	db := openTestDB(t)
	mux, err := Mux(db, fakeStatusSource{}, nil, logging.New("test", logging.Error+1))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/debug/tailsql/", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.NotEqual(t, http.StatusNotFound, rec.Code)
}

func TestMuxExportServesRecordingWithinAllowedRoot(t *testing.T) {
	db := openTestDB(t)
	root := t.TempDir()
	outputFile := filepath.Join(root, "front-door-20260101120000.mp4")
	require.NoError(t, os.WriteFile(outputFile, []byte("clip-bytes"), 0o644))

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := nvr.Recording{ID: "front-door-20260101120000", StartTS: start, OutputFile: outputFile}
	require.NoError(t, db.InsertRecording(rec, "front-door"))

	mux, err := Mux(db, fakeStatusSource{}, []string{root}, logging.New("test", logging.Error+1))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/debug/export?id=front-door-20260101120000", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "clip-bytes", w.Body.String())
}

func TestMuxExportRejectsRecordingOutsideAllowedRoots(t *testing.T) {
	db := openTestDB(t)
	outsideFile := filepath.Join(t.TempDir(), "front-door-20260101120000.mp4")
	require.NoError(t, os.WriteFile(outsideFile, []byte("clip-bytes"), 0o644))

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := nvr.Recording{ID: "front-door-20260101120000", StartTS: start, OutputFile: outsideFile}
	require.NoError(t, db.InsertRecording(rec, "front-door"))

	mux, err := Mux(db, fakeStatusSource{}, []string{t.TempDir()}, logging.New("test", logging.Error+1))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/debug/export?id=front-door-20260101120000", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestMuxExportMissingIDIsBadRequest(t *testing.T) {
	db := openTestDB(t)
	mux, err := Mux(db, fakeStatusSource{}, nil, logging.New("test", logging.Error+1))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/debug/export", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMuxRecordingStatsExportWritesCSV(t *testing.T) {
	db := openTestDB(t)
	start := time.Now().Add(-time.Hour)
	require.NoError(t, db.InsertRecording(nvr.Recording{
		ID:      "front-door-20260101120000",
		StartTS: start,
		EndTS:   start.Add(30 * time.Second),
	}, "front-door"))

	statuses := fakeStatusSource{statuses: []CameraStatus{{Name: "front-door"}}}
	mux, err := Mux(db, statuses, nil, logging.New("test", logging.Error+1))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/debug/recording-stats/export", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "front-door,1,")
}
