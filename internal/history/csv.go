package history

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/uprightlabs/backend/internal/models"
)

// csvHeader is the fixed column order of the session history file.
var csvHeader = []string{
	"timestamp",
	"session_id",
	"session_seconds",
	"total_frames",
	"good_frames",
	"bad_frames",
	"good_percent",
	"bad_percent",
	"average_score",
	"longest_bad_secs",
}

// Column indices in csvHeader order.
const (
	colTimestamp = iota
	colSessionID
	colSessionSeconds
	colTotalFrames
	colGoodFrames
	colBadFrames
	colGoodPercent
	colBadPercent
	colAverageScore
	colLongestBad
)

// CSVStore persists session records as rows of a single CSV file. A mutex
// serializes all file access; Delete and Clear rewrite the whole file.
type CSVStore struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// NewCSVStore opens the history file at path, creating it with a header row
// when it does not exist yet.
func NewCSVStore(path string, logger *zap.Logger) (*CSVStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &CSVStore{path: path, logger: logger}
	if err := s.ensureFile(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *CSVStore) ensureFile() error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat history file: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create history dir: %w", err)
		}
	}
	return s.writeRows(nil)
}

// Append writes one finished-session record to the end of the file.
func (s *CSVStore) Append(ctx context.Context, rec models.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(recordRow(rec)); err != nil {
		f.Close()
		return fmt.Errorf("write history row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush history row: %w", err)
	}
	return f.Close()
}

// List returns every stored record, oldest first.
func (s *CSVStore) List(ctx context.Context) ([]models.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.readRows()
	if err != nil {
		return nil, err
	}
	out := make([]models.SessionRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowRecord(row))
	}
	return out, nil
}

// Recent returns the last limit records, oldest first.
func (s *CSVStore) Recent(ctx context.Context, limit int) ([]models.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.readRows()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	out := make([]models.SessionRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowRecord(row))
	}
	return out, nil
}

// Delete removes the record(s) for sessionID by rewriting the file without
// those rows. Reports whether any row matched.
func (s *CSVStore) Delete(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.readRows()
	if err != nil {
		return false, err
	}
	kept := make([][]string, 0, len(rows))
	found := false
	for _, row := range rows {
		if len(row) > colSessionID && row[colSessionID] == sessionID {
			found = true
			continue
		}
		kept = append(kept, row)
	}
	if !found {
		return false, nil
	}
	if err := s.writeRows(kept); err != nil {
		return false, err
	}
	s.logger.Info("session record deleted", zap.String("session_id", sessionID))
	return true, nil
}

// Clear truncates the history file back to just the header row.
func (s *CSVStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeRows(nil)
}

// Aggregate summarizes all rows, working on the raw string cells so a
// corrupt cell drops out of its own average without discarding the row.
func (s *CSVStore) Aggregate(ctx context.Context) (models.StoreAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.readRows()
	if err != nil {
		return models.StoreAggregate{}, err
	}

	agg := models.StoreAggregate{TotalSessions: len(rows)}
	var goodSum, badSum, scoreSum float64
	var goodN, badN, scoreN int
	for _, row := range rows {
		if v, ok := numericCell(row, colSessionSeconds); ok {
			agg.TotalDurationSeconds += v
		}
		if v, ok := numericCell(row, colGoodPercent); ok {
			goodSum += v
			goodN++
		}
		if v, ok := numericCell(row, colBadPercent); ok {
			badSum += v
			badN++
		}
		if v, ok := numericCell(row, colAverageScore); ok {
			scoreSum += v
			scoreN++
		}
	}
	agg.TotalDurationSeconds = models.Round2(agg.TotalDurationSeconds)
	if goodN > 0 {
		agg.AverageGoodPercent = models.Round2(goodSum / float64(goodN))
	}
	if badN > 0 {
		agg.AverageBadPercent = models.Round2(badSum / float64(badN))
	}
	if scoreN > 0 {
		agg.AverageScore = models.Round2(scoreSum / float64(scoreN))
	}
	return agg, nil
}

// readRows returns the data rows with the header stripped. Caller holds mu.
func (s *CSVStore) readRows() ([][]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	// Tolerate short or long rows instead of failing the whole read.
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read history file: %w", err)
	}
	if len(rows) > 0 {
		rows = rows[1:]
	}
	return rows, nil
}

// writeRows rewrites the file as header + rows. Caller holds mu.
func (s *CSVStore) writeRows(rows [][]string) error {
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("rewrite history file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return fmt.Errorf("write history header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write history rows: %w", err)
	}
	return f.Close()
}

func recordRow(rec models.SessionRecord) []string {
	return []string{
		rec.Timestamp,
		rec.SessionID,
		formatFloat(models.Round2(rec.SessionSeconds)),
		strconv.Itoa(rec.TotalFrames),
		strconv.Itoa(rec.GoodFrames),
		strconv.Itoa(rec.BadFrames),
		formatFloat(models.Round2(rec.GoodPercent)),
		formatFloat(models.Round2(rec.BadPercent)),
		formatFloat(models.Round2(rec.AverageScore)),
		formatFloat(models.Round2(rec.LongestBadSecs)),
	}
}

// rowRecord converts raw cells to a typed record. Unparsable numeric cells
// come back zero; Aggregate works on the raw cells instead so those rows
// still count there.
func rowRecord(row []string) models.SessionRecord {
	cell := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}
	f := func(i int) float64 {
		v, _ := strconv.ParseFloat(cell(i), 64)
		return v
	}
	n := func(i int) int {
		v, _ := strconv.Atoi(cell(i))
		return v
	}
	return models.SessionRecord{
		Timestamp:      cell(colTimestamp),
		SessionID:      cell(colSessionID),
		SessionSeconds: f(colSessionSeconds),
		TotalFrames:    n(colTotalFrames),
		GoodFrames:     n(colGoodFrames),
		BadFrames:      n(colBadFrames),
		GoodPercent:    f(colGoodPercent),
		BadPercent:     f(colBadPercent),
		AverageScore:   f(colAverageScore),
		LongestBadSecs: f(colLongestBad),
	}
}

func numericCell(row []string, i int) (float64, bool) {
	if i >= len(row) || row[i] == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(row[i], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
