// Package history persists conversion records in Postgres.
//
// History is optional: the server only builds a Recorder when DATABASE_URL
// is set. The table is created on startup with EnsureSchema.
package history

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/jangddae83-design/Legato-OCR-Exel-converter/internal/core"
)

// DefaultLimit is used when Recent is called with a non-positive limit.
const DefaultLimit = 50

// DB is the subset of *pgxpool.Pool the recorder uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Schema creates the conversions table and its index.
const Schema = `
CREATE TABLE IF NOT EXISTS conversions (
	id          UUID PRIMARY KEY,
	upload_id   UUID NOT NULL,
	kind        TEXT NOT NULL DEFAULT '',
	page_index  INTEGER NOT NULL DEFAULT 0,
	row_count   INTEGER NOT NULL DEFAULT 0,
	cell_count  INTEGER NOT NULL DEFAULT 0,
	provider    TEXT NOT NULL DEFAULT '',
	model       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	error_code  TEXT,
	cached      BOOLEAN NOT NULL DEFAULT FALSE,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	client_ip   INET,
	user_agent  TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS conversions_created_at_idx ON conversions (created_at DESC);
`

const insertConversion = `INSERT INTO conversions (
	id, upload_id, kind, page_index, row_count, cell_count, provider, model,
	status, error_code, cached, duration_ms, client_ip, user_agent, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

const selectRecent = `SELECT id, upload_id, kind, page_index, row_count, cell_count,
	provider, model, status, error_code, cached, duration_ms, client_ip, user_agent, created_at
	FROM conversions ORDER BY created_at DESC LIMIT $1`

// Recorder implements core.HistoryStore on Postgres.
type Recorder struct {
	db DB
}

// NewRecorder returns a recorder using db.
func NewRecorder(db DB) *Recorder {
	return &Recorder{db: db}
}

// EnsureSchema creates the table if it does not exist.
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create conversions table: %w", err)
	}
	return nil
}

// Record inserts one conversion.
func (r *Recorder) Record(ctx context.Context, rec core.ConversionRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.Exec(ctx, insertConversion,
		toPgUUID(rec.ID),
		toPgUUID(rec.UploadID),
		string(rec.Kind),
		rec.PageIndex,
		rec.RowCount,
		rec.CellCount,
		rec.Provider,
		rec.Model,
		rec.Status,
		toPgText(rec.ErrorCode),
		rec.Cached,
		rec.DurationMs,
		toAddr(rec.ClientIP),
		toPgText(rec.UserAgent),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert conversion %s: %w", rec.ID, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]core.ConversionRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := r.db.Query(ctx, selectRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversions: %w", err)
	}
	defer rows.Close()

	records := make([]core.ConversionRecord, 0)
	for rows.Next() {
		rec, err := scanConversion(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Purge deletes records created before cutoff and returns how many went.
func (r *Recorder) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, "DELETE FROM conversions WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge conversions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanConversion scans a single row from conversions.
func scanConversion(rows pgx.Rows) (core.ConversionRecord, error) {
	var (
		id         pgtype.UUID
		uploadID   pgtype.UUID
		kind       string
		pageIndex  int32
		rowCount   int32
		cellCount  int32
		provider   string
		model      string
		status     string
		errorCode  pgtype.Text
		cached     bool
		durationMs int64
		clientIP   *netip.Addr
		userAgent  pgtype.Text
		createdAt  pgtype.Timestamptz
	)

	err := rows.Scan(
		&id, &uploadID, &kind, &pageIndex, &rowCount, &cellCount,
		&provider, &model, &status, &errorCode, &cached, &durationMs,
		&clientIP, &userAgent, &createdAt,
	)
	if err != nil {
		return core.ConversionRecord{}, fmt.Errorf("scan conversion: %w", err)
	}

	rec := core.ConversionRecord{
		ID:         uuidToString(id),
		UploadID:   uuidToString(uploadID),
		Kind:       core.ContentKind(kind),
		PageIndex:  int(pageIndex),
		RowCount:   int(rowCount),
		CellCount:  int(cellCount),
		Provider:   provider,
		Model:      model,
		Status:     status,
		Cached:     cached,
		DurationMs: durationMs,
		CreatedAt:  createdAt.Time,
	}
	if errorCode.Valid {
		rec.ErrorCode = errorCode.String
	}
	if clientIP != nil {
		rec.ClientIP = clientIP.String()
	}
	if userAgent.Valid {
		rec.UserAgent = userAgent.String
	}
	return rec, nil
}
