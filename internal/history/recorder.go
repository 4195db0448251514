package history

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/uprightlabs/backend/internal/models"
	"github.com/uprightlabs/backend/pkg/queue"
)

// Recorder is the single hand-off point between a finished session and
// durable storage. Both the end-session endpoint and the stream close path
// go through it, so a session is written at most once.
type Recorder struct {
	store  Store
	queue  *queue.Queue
	logger *zap.Logger
}

// NewRecorder creates a recorder. q may be nil when report exports are
// disabled.
func NewRecorder(store Store, q *queue.Queue, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, queue: q, logger: logger}
}

// Record persists the final snapshot and queues a report export when
// exports are enabled. The returned flag reports whether the write
// succeeded; a store failure is not an error for the caller because the
// in-memory statistics remain valid.
func (r *Recorder) Record(ctx context.Context, stats models.SessionStats) bool {
	rec := RecordFromStats(stats)
	if err := r.store.Append(ctx, rec); err != nil {
		r.logger.Error("save session record", zap.String("session_id", stats.SessionID), zap.Error(err))
		return false
	}
	if r.queue != nil {
		if err := r.queue.EnqueueReportExport(ctx, rec); err != nil {
			r.logger.Warn("queue report export", zap.String("session_id", stats.SessionID), zap.Error(err))
		}
	}
	return true
}

// RecordFromStats converts a final session snapshot into its stored form.
func RecordFromStats(stats models.SessionStats) models.SessionRecord {
	ts := stats.EndTime
	if ts == "" {
		ts = time.Now().UTC().Format(time.RFC3339)
	}
	return models.SessionRecord{
		Timestamp:      ts,
		SessionID:      stats.SessionID,
		SessionSeconds: models.Round2(stats.DurationSeconds),
		TotalFrames:    stats.TotalFrames,
		GoodFrames:     stats.GoodFrames,
		BadFrames:      stats.BadFrames,
		GoodPercent:    models.Round2(stats.GoodPercent),
		BadPercent:     models.Round2(stats.BadPercent),
		AverageScore:   models.Round2(stats.AverageScore),
		LongestBadSecs: models.Round2(stats.LongestBadDuration),
	}
}
