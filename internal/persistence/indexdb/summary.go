package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sort"
)

// Summary aggregates an index file.
type Summary struct {
	Flushes       int64
	FramesSent    int64
	BytesSent     int64
	FramesDropped int64
	DecodeDrops   map[string]int64
	Connects      int64
	Disconnects   int64
}

// Codes returns the decode drop codes in sorted order.
func (s Summary) Codes() []string {
	out := make([]string, 0, len(s.DecodeDrops))
	for c := range s.DecodeDrops {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// ReadSummary opens the index at path on its own connection and aggregates
// it. Close the writer first to see every row.
func ReadSummary(ctx context.Context, path string) (Summary, error) {
	sum := Summary{DecodeDrops: map[string]int64{}}
	if _, err := os.Stat(path); err != nil {
		return sum, err
	}
	db, err := openDB(path)
	if err != nil {
		return sum, err
	}
	defer db.Close()

	row := db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(sent),0), COALESCE(SUM(bytes),0), COALESCE(SUM(dropped),0) FROM flushes`)
	if err := row.Scan(&sum.Flushes, &sum.FramesSent, &sum.BytesSent, &sum.FramesDropped); err != nil {
		return sum, fmt.Errorf("flushes: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT code, COUNT(*) FROM decode_drops GROUP BY code`)
	if err != nil {
		return sum, fmt.Errorf("decode_drops: %w", err)
	}
	if err := scanCounts(rows, func(k string, n int64) { sum.DecodeDrops[k] = n }); err != nil {
		return sum, fmt.Errorf("decode_drops: %w", err)
	}

	rows, err = db.QueryContext(ctx, `SELECT event, COUNT(*) FROM sessions GROUP BY event`)
	if err != nil {
		return sum, fmt.Errorf("sessions: %w", err)
	}
	if err := scanCounts(rows, func(k string, n int64) {
		switch k {
		case "connected":
			sum.Connects = n
		case "disconnected":
			sum.Disconnects = n
		}
	}); err != nil {
		return sum, fmt.Errorf("sessions: %w", err)
	}
	return sum, nil
}

func scanCounts(rows *sql.Rows, fn func(string, int64)) error {
	defer rows.Close()
	for rows.Next() {
		var k string
		var n int64
		if err := rows.Scan(&k, &n); err != nil {
			return err
		}
		fn(k, n)
	}
	return rows.Err()
}
