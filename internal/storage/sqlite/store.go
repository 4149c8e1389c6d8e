// Package sqlite persists finished recordings to a sqlite database and
// reports duration percentiles over them.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/camnvr/internal/nvr"
)

// DB wraps a sqlite connection configured for this package's schema.
type DB struct {
	*sql.DB
}

// Open opens (creating if necessary) the sqlite database at path, applies
// the standard performance PRAGMAs, and runs pending migrations.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	if err := applyPragmas(conn); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn}
	if err := db.MigrateUp(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// applyPragmas sets WAL mode, a busy timeout, and NORMAL synchronous mode
// so concurrent readers (the admin debug mux) don't contend with the
// recorder's writes.
func applyPragmas(conn *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			return fmt.Errorf("sqlite: apply pragma %q: %w", p, err)
		}
	}
	return nil
}

// InsertRecording records a finished (or in-progress) Recording.
func (db *DB) InsertRecording(r nvr.Recording, cameraName string) error {
	labels := make([]string, 0, len(r.TriggeringObjects))
	for _, o := range r.TriggeringObjects {
		labels = append(labels, o.Label)
	}

	var endTS sql.NullInt64
	if !r.EndTS.IsZero() {
		endTS = sql.NullInt64{Int64: r.EndTS.Unix(), Valid: true}
	}

	_, err := db.Exec(`
		INSERT INTO recordings (id, camera_name, start_ts, end_ts, segment_dir, output_file, thumbnail_path, triggering_labels)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET end_ts = excluded.end_ts`,
		r.ID, cameraName, r.StartTS.Unix(), endTS, r.SegmentDir, r.OutputFile, r.ThumbnailPath, strings.Join(labels, ","),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert recording %s: %w", r.ID, err)
	}
	return nil
}

// RecordingRow is one persisted recording, as read back by ListRecent.
type RecordingRow struct {
	ID         string
	CameraName string
	StartTS    time.Time
	EndTS      time.Time
	OutputFile string
}

// FindRecording looks up a single recording by its ID, regardless of
// camera, for the admin export handler.
func (db *DB) FindRecording(id string) (RecordingRow, error) {
	var row RecordingRow
	var startUnix int64
	var endUnix sql.NullInt64
	err := db.QueryRow(`
		SELECT id, camera_name, start_ts, end_ts, output_file
		FROM recordings WHERE id = ?`, id,
	).Scan(&row.ID, &row.CameraName, &startUnix, &endUnix, &row.OutputFile)
	if err != nil {
		return RecordingRow{}, fmt.Errorf("sqlite: find recording %s: %w", id, err)
	}
	row.StartTS = time.Unix(startUnix, 0).UTC()
	if endUnix.Valid {
		row.EndTS = time.Unix(endUnix.Int64, 0).UTC()
	}
	return row, nil
}

// ListRecent returns the most recent recordings for a camera, newest
// first.
func (db *DB) ListRecent(cameraName string, limit int) ([]RecordingRow, error) {
	rows, err := db.Query(`
		SELECT id, camera_name, start_ts, end_ts, output_file
		FROM recordings WHERE camera_name = ? ORDER BY start_ts DESC LIMIT ?`,
		cameraName, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list recent for %s: %w", cameraName, err)
	}
	defer rows.Close()

	var out []RecordingRow
	for rows.Next() {
		var row RecordingRow
		var startUnix int64
		var endUnix sql.NullInt64
		if err := rows.Scan(&row.ID, &row.CameraName, &startUnix, &endUnix, &row.OutputFile); err != nil {
			return nil, err
		}
		row.StartTS = time.Unix(startUnix, 0).UTC()
		if endUnix.Valid {
			row.EndTS = time.Unix(endUnix.Int64, 0).UTC()
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
