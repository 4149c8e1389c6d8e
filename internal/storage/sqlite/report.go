package sqlite

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DurationReport summarizes recording durations for one camera over a
// lookback window, for the admin surface's at-a-glance health check.
type DurationReport struct {
	Count           int
	P50Seconds      float64
	P85Seconds      float64
	P98Seconds      float64
	MaxSeconds      float64
}

// DurationReport computes duration percentiles over finished recordings
// (end_ts set) for cameraName within the last window.
func (db *DB) DurationReport(cameraName string, window time.Duration) (DurationReport, error) {
	since := time.Now().Add(-window).Unix()
	rows, err := db.Query(`
		SELECT start_ts, end_ts FROM recordings
		WHERE camera_name = ? AND end_ts IS NOT NULL AND start_ts >= ?`,
		cameraName, since,
	)
	if err != nil {
		return DurationReport{}, fmt.Errorf("sqlite: duration report for %s: %w", cameraName, err)
	}
	defer rows.Close()

	var durations []float64
	for rows.Next() {
		var start, end int64
		if err := rows.Scan(&start, &end); err != nil {
			return DurationReport{}, err
		}
		durations = append(durations, float64(end-start))
	}
	if err := rows.Err(); err != nil {
		return DurationReport{}, err
	}
	if len(durations) == 0 {
		return DurationReport{}, nil
	}

	sort.Float64s(durations)
	report := DurationReport{
		Count:      len(durations),
		P50Seconds: stat.Quantile(0.5, stat.Empirical, durations, nil),
		P85Seconds: stat.Quantile(0.85, stat.Empirical, durations, nil),
		P98Seconds: stat.Quantile(0.98, stat.Empirical, durations, nil),
		MaxSeconds: durations[len(durations)-1],
	}
	return report, nil
}
