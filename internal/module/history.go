package module

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// HistoryRepository defines the interface for the sensor history log.
//
// History entries are immutable: once recorded they are never updated or
// deleted by the application. Recording an entry also refreshes the owning
// module's last-observed value for that channel; the two writes share one
// transaction so the denormalised copy can never drift from the log.
type HistoryRepository interface {
	// Record appends one sensor reading and updates the module's
	// last-observed value and timestamp for that channel.
	// Returns ErrNotFound if the module does not exist and ErrInvalidKind
	// for an unknown channel.
	Record(ctx context.Context, moduleID string, kind Kind, value float64, at time.Time) error

	// RecordBatch appends several readings for one module in a single
	// transaction: a failure on any channel records none of them. An
	// empty batch is a no-op.
	RecordBatch(ctx context.Context, moduleID string, readings []Reading, at time.Time) error

	// QueryWindow returns all entries for a module recorded at or after
	// since, grouped by channel and ordered by time ascending.
	QueryWindow(ctx context.Context, moduleID string, since time.Time) (*Series, error)
}

// Reading is one channel sample within a batch.
type Reading struct {
	Kind  Kind
	Value float64
}

// SQLiteHistoryRepository implements HistoryRepository using SQLite.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a new SQLite-backed history repository.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// lastColumns maps a sensor channel to the module columns holding its
// denormalised last reading.
var lastColumns = map[Kind][2]string{
	KindTemperature: {"last_temperature", "last_temperature_at"},
	KindHumidity:    {"last_humidity", "last_humidity_at"},
	KindLight:       {"last_light", "last_light_at"},
}

// Record appends one sensor reading and updates the module's last-observed
// value in the same transaction.
func (r *SQLiteHistoryRepository) Record(ctx context.Context, moduleID string, kind Kind, value float64, at time.Time) error {
	return r.RecordBatch(ctx, moduleID, []Reading{{Kind: kind, Value: value}}, at)
}

// RecordBatch appends several readings for one module and refreshes the
// matching last-observed columns, all in one transaction.
func (r *SQLiteHistoryRepository) RecordBatch(ctx context.Context, moduleID string, readings []Reading, at time.Time) error {
	if len(readings) == 0 {
		return nil
	}
	for _, reading := range readings {
		if _, ok := lastColumns[reading.Kind]; !ok {
			return fmt.Errorf("%w: %q", ErrInvalidKind, reading.Kind)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	atStr := at.UTC().Format(time.RFC3339)
	now := time.Now().UTC().Format(time.RFC3339)

	for _, reading := range readings {
		cols := lastColumns[reading.Kind]

		// Column names come from lastColumns, never from input.
		update := fmt.Sprintf(
			"UPDATE modules SET %s = ?, %s = ?, updated_at = ? WHERE id = ?",
			cols[0], cols[1],
		)
		result, err := tx.ExecContext(ctx, update, reading.Value, atStr, now, moduleID)
		if err != nil {
			return fmt.Errorf("updating last observed value: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if rows == 0 {
			return ErrNotFound
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO sensor_history (module_id, kind, value, recorded_at) VALUES (?, ?, ?, ?)",
			moduleID, string(reading.Kind), reading.Value, atStr,
		); err != nil {
			return fmt.Errorf("inserting history entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing history record: %w", err)
	}
	return nil
}

// QueryWindow returns all entries recorded at or after since, grouped by
// channel and ordered by time ascending.
func (r *SQLiteHistoryRepository) QueryWindow(ctx context.Context, moduleID string, since time.Time) (*Series, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT kind, value, recorded_at
		FROM sensor_history
		WHERE module_id = ? AND recorded_at >= ?
		ORDER BY recorded_at ASC, id ASC`,
		moduleID, since.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("querying sensor history: %w", err)
	}
	defer rows.Close()

	series := &Series{
		Temperature: []Entry{},
		Humidity:    []Entry{},
		Light:       []Entry{},
	}
	for rows.Next() {
		var kind string
		var value float64
		var recordedAt string
		if err := rows.Scan(&kind, &value, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning history entry: %w", err)
		}

		t, err := time.Parse(time.RFC3339, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}

		entry := Entry{Kind: Kind(kind), Value: value, RecordedAt: t}
		switch entry.Kind {
		case KindTemperature:
			series.Temperature = append(series.Temperature, entry)
		case KindHumidity:
			series.Humidity = append(series.Humidity, entry)
		case KindLight:
			series.Light = append(series.Light, entry)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sensor history: %w", err)
	}
	return series, nil
}
