package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
)

var _ output.TelemetrySink = (*PostgresSink)(nil)

const createTable = `
	CREATE TABLE IF NOT EXISTS api_request_records (
		id                  BIGSERIAL PRIMARY KEY,
		timestamp           TIMESTAMPTZ NOT NULL,
		response_timestamp  TIMESTAMPTZ NOT NULL,
		network_duration_ms DOUBLE PRECISION NOT NULL,
		total_duration_ms   DOUBLE PRECISION NOT NULL,
		status              TEXT NOT NULL,
		attempt_id          BIGINT NOT NULL,
		trace_id            TEXT,
		backend             TEXT,
		error_kind          TEXT,
		http_status         INTEGER
	)
`

type PostgresSink struct {
	db *sql.DB
}

var openDB = sql.Open

func NewPostgresSink(ctx context.Context, conn string) (*PostgresSink, error) {
	db, err := openDB("pgx", conn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping telemetry db: %w", err)
	}
	if _, err := db.ExecContext(pingCtx, createTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create telemetry table: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

func (p *PostgresSink) Append(ctx context.Context, rec entity.APIRequestRecord) error {
	const query = `
		INSERT INTO api_request_records (
			timestamp,
			response_timestamp,
			network_duration_ms,
			total_duration_ms,
			status,
			attempt_id,
			trace_id,
			backend,
			error_kind,
			http_status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := p.db.ExecContext(
		ctx,
		query,
		rec.Timestamp,
		rec.ResponseTimestamp,
		millis(rec.NetworkDuration),
		millis(rec.TotalDuration),
		string(rec.Status),
		rec.AttemptID,
		nullString(rec.TraceID),
		nullString(rec.Backend),
		nullString(rec.ErrorKind),
		nullInt(rec.HTTPStatus),
	)
	if err != nil {
		return fmt.Errorf("insert telemetry record: %w", err)
	}
	return nil
}

func (p *PostgresSink) Close() error {
	return p.db.Close()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}
