package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uprightlabs/backend/internal/models"
	"github.com/uprightlabs/backend/pkg/queue"
	"github.com/uprightlabs/backend/pkg/storage"
)

// ReportProcessor processes report export jobs: render the finished-session
// record as a JSON report and upload it to S3.
type ReportProcessor struct {
	s3     *storage.S3
	queue  *queue.Queue
	logger *zap.Logger
}

// NewReportProcessor creates a report export processor.
func NewReportProcessor(s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *ReportProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportProcessor{s3: s3, queue: q, logger: logger}
}

// report is the exported JSON document for one finished session.
type report struct {
	GeneratedAt string               `json:"generated_at"`
	Session     models.SessionRecord `json:"session"`
}

// Process executes one report export job.
func (p *ReportProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeReportExport {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ReportExportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	rec := payload.Record

	doc, err := json.MarshalIndent(report{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Session:     rec,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	key := storage.ReportKey(rec.SessionID)
	if _, err := p.s3.UploadReport(ctx, key, bytes.NewReader(doc), int64(len(doc))); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	p.logger.Info("report export completed", zap.String("session_id", rec.SessionID), zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ReportProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("report worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
