package session

import (
	"errors"
	"sync"
	"time"

	"github.com/uprightlabs/backend/internal/models"
	"github.com/uprightlabs/backend/internal/posture"
)

// ErrSessionEnded is returned by operations that require an active session.
var ErrSessionEnded = errors.New("session already ended")

// Event is one entry in a session's posture log.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Status    posture.Status `json:"status"`
	Score     int            `json:"score"`
}

// Session accumulates per-frame classification results into running
// aggregates. A session is ACTIVE from creation until End, after which
// updates are rejected but snapshots remain readable. All methods are safe
// for concurrent use.
type Session struct {
	mu        sync.Mutex
	id        string
	startTime time.Time
	endTime   time.Time
	ended     bool

	totalFrames int
	goodFrames  int
	badFrames   int

	// badStart marks the wall-clock start of the current uninterrupted
	// bad-posture run; zero when the last frame was good.
	badStart   time.Time
	currentBad float64
	longestBad float64

	scores []int
	log    []Event

	now func() time.Time
}

// New creates an active session with the given id.
func New(id string) *Session {
	return &Session{
		id:        id,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// StartTime returns when the session was created.
func (s *Session) StartTime() time.Time { return s.startTime }

// Ended reports whether End has been called.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// TotalFrames returns the number of frames folded in so far.
func (s *Session) TotalFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalFrames
}

// Update folds one classified frame into the session. Bad-run durations are
// measured on the wall clock between updates, not per frame, so a sparse
// stream still times its runs correctly. Returns ErrSessionEnded once the
// session has ended.
func (s *Session) Update(res *posture.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrSessionEnded
	}

	now := s.now()
	s.totalFrames++
	if res.IsGood {
		s.goodFrames++
		if !s.badStart.IsZero() {
			if s.currentBad > s.longestBad {
				s.longestBad = s.currentBad
			}
			s.badStart = time.Time{}
			s.currentBad = 0
		}
	} else {
		s.badFrames++
		if s.badStart.IsZero() {
			s.badStart = now
		} else {
			s.currentBad = now.Sub(s.badStart).Seconds()
			if s.currentBad > s.longestBad {
				s.longestBad = s.currentBad
			}
		}
	}

	s.scores = append(s.scores, res.Score)
	s.log = append(s.log, Event{Timestamp: now, Status: res.Status, Score: res.Score})
	return nil
}

// Statistics returns a snapshot of the session's aggregates. For an active
// session the duration runs up to now; for an ended one it is frozen at the
// end timestamp.
func (s *Session) Statistics() models.SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// End transitions the session to ENDED and returns the final snapshot.
// Calling End again returns ErrSessionEnded; the transition is one-way.
func (s *Session) End() (models.SessionStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return models.SessionStats{}, ErrSessionEnded
	}
	s.ended = true
	s.endTime = s.now()
	return s.snapshotLocked(), nil
}

// Log returns a copy of the per-frame posture log.
func (s *Session) Log() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.log))
	copy(out, s.log)
	return out
}

func (s *Session) snapshotLocked() models.SessionStats {
	ref := s.now()
	if s.ended {
		ref = s.endTime
	}

	var goodPct, badPct float64
	if s.totalFrames > 0 {
		goodPct = float64(s.goodFrames) / float64(s.totalFrames) * 100
		badPct = float64(s.badFrames) / float64(s.totalFrames) * 100
	}
	var avg float64
	if len(s.scores) > 0 {
		sum := 0
		for _, v := range s.scores {
			sum += v
		}
		avg = float64(sum) / float64(len(s.scores))
	}

	stats := models.SessionStats{
		SessionID:          s.id,
		StartTime:          s.startTime.UTC().Format(time.RFC3339),
		DurationSeconds:    models.Round2(ref.Sub(s.startTime).Seconds()),
		TotalFrames:        s.totalFrames,
		GoodFrames:         s.goodFrames,
		BadFrames:          s.badFrames,
		GoodPercent:        models.Round2(goodPct),
		BadPercent:         models.Round2(badPct),
		AverageScore:       models.Round2(avg),
		LongestBadDuration: models.Round2(s.longestBad),
		CurrentBadDuration: models.Round2(s.currentBad),
	}
	if s.ended {
		stats.EndTime = s.endTime.UTC().Format(time.RFC3339)
	}
	return stats
}
