package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"continuouscare/internal/models"
)

// ErrStorage tags persistence failures of the readings store. The fusion
// pipeline logs these per category and moves on.
var ErrStorage = errors.New("storage error")

// InsertReading persists one resolved category record of a user.
func (d *DB) InsertReading(ctx context.Context, username string, category models.Category, rec models.Record) error {
	ts := time.Now()
	if v, ok := rec[models.TimeField].(int64); ok {
		ts = time.Unix(v, 0)
	}

	query := `
        INSERT INTO readings (username, category, time, fields)
        VALUES ($1, $2, $3, $4)`
	_, err := d.Pool.Exec(ctx, query, username, category, ts, rec)
	if err != nil {
		return fmt.Errorf("%w: insert %s for %s: %v", ErrStorage, category, username, err)
	}
	return nil
}

// QueryReadings returns a user's records of one category between start and
// end (unix seconds; zero end means now).
func (d *DB) QueryReadings(ctx context.Context, username string, category models.Category, start, end int64) ([]models.Record, error) {
	if end == 0 {
		end = time.Now().Unix()
	}

	rows, err := d.Pool.Query(ctx, `
        SELECT fields
        FROM readings
        WHERE username = $1 AND category = $2 AND time >= $3 AND time <= $4
        ORDER BY time`,
		username, category, time.Unix(start, 0), time.Unix(end, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s readings of %s: %w", category, username, err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var rec models.Record
		if err := rows.Scan(&rec); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteReadings removes a user's records of one category at an exact
// timestamp. Used when a registered mood is withdrawn.
func (d *DB) DeleteReadings(ctx context.Context, username string, category models.Category, at int64) error {
	_, err := d.Pool.Exec(ctx, `
        DELETE FROM readings
        WHERE username = $1 AND category = $2 AND time = $3`,
		username, category, time.Unix(at, 0))
	if err != nil {
		return fmt.Errorf("failed to delete %s readings of %s: %w", category, username, err)
	}
	return nil
}
