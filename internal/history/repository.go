package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/uprightlabs/backend/internal/models"
)

// Repository is the PostgreSQL-backed Store, selected with STORE_DRIVER=postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a session history repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordColumns = `ended_at, session_id, session_seconds, total_frames, good_frames, bad_frames, good_percent, bad_percent, average_score, longest_bad_secs`

// Append inserts one finished-session row.
func (r *Repository) Append(ctx context.Context, rec models.SessionRecord) error {
	endedAt, err := time.Parse(time.RFC3339, rec.Timestamp)
	if err != nil {
		endedAt = time.Now().UTC()
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO posture_sessions (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		endedAt,
		rec.SessionID,
		models.Round2(rec.SessionSeconds),
		rec.TotalFrames,
		rec.GoodFrames,
		rec.BadFrames,
		models.Round2(rec.GoodPercent),
		models.Round2(rec.BadPercent),
		models.Round2(rec.AverageScore),
		models.Round2(rec.LongestBadSecs))
	if err != nil {
		return fmt.Errorf("insert session record: %w", err)
	}
	return nil
}

// List returns every stored record, oldest first.
func (r *Repository) List(ctx context.Context) ([]models.SessionRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM posture_sessions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Recent returns the last limit records, oldest first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]models.SessionRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM (
		   SELECT id, `+recordColumns+` FROM posture_sessions ORDER BY id DESC LIMIT $1
		 ) sub ORDER BY id`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Delete removes all rows for sessionID, reporting whether any existed.
func (r *Repository) Delete(ctx context.Context, sessionID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM posture_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Clear removes every stored record.
func (r *Repository) Clear(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `TRUNCATE posture_sessions`)
	return err
}

// Aggregate summarizes all stored records. Columns are typed, so the
// numeric-cell filtering the CSV store needs is inherent here.
func (r *Repository) Aggregate(ctx context.Context) (models.StoreAggregate, error) {
	const q = `SELECT COUNT(*),
	                  COALESCE(SUM(session_seconds), 0),
	                  COALESCE(AVG(good_percent), 0),
	                  COALESCE(AVG(bad_percent), 0),
	                  COALESCE(AVG(average_score), 0)
	           FROM posture_sessions`
	var agg models.StoreAggregate
	err := r.pool.QueryRow(ctx, q).Scan(
		&agg.TotalSessions,
		&agg.TotalDurationSeconds,
		&agg.AverageGoodPercent,
		&agg.AverageBadPercent,
		&agg.AverageScore)
	if err != nil {
		return models.StoreAggregate{}, err
	}
	agg.TotalDurationSeconds = models.Round2(agg.TotalDurationSeconds)
	agg.AverageGoodPercent = models.Round2(agg.AverageGoodPercent)
	agg.AverageBadPercent = models.Round2(agg.AverageBadPercent)
	agg.AverageScore = models.Round2(agg.AverageScore)
	return agg, nil
}

func scanRecords(rows pgx.Rows) ([]models.SessionRecord, error) {
	var list []models.SessionRecord
	for rows.Next() {
		var rec models.SessionRecord
		var endedAt time.Time
		if err := rows.Scan(
			&endedAt,
			&rec.SessionID,
			&rec.SessionSeconds,
			&rec.TotalFrames,
			&rec.GoodFrames,
			&rec.BadFrames,
			&rec.GoodPercent,
			&rec.BadPercent,
			&rec.AverageScore,
			&rec.LongestBadSecs); err != nil {
			return nil, err
		}
		rec.Timestamp = endedAt.UTC().Format(time.RFC3339)
		list = append(list, rec)
	}
	return list, rows.Err()
}
