package models

import "math"

// SessionStats is a point-in-time snapshot of a live session's aggregates.
// Float fields are rounded to 2 decimals when the snapshot is built.
type SessionStats struct {
	SessionID          string  `json:"session_id"`
	StartTime          string  `json:"start_time"`
	EndTime            string  `json:"end_time,omitempty"`
	DurationSeconds    float64 `json:"duration_seconds"`
	TotalFrames        int     `json:"total_frames"`
	GoodFrames         int     `json:"good_frames"`
	BadFrames          int     `json:"bad_frames"`
	GoodPercent        float64 `json:"good_percent"`
	BadPercent         float64 `json:"bad_percent"`
	AverageScore       float64 `json:"average_score"`
	LongestBadDuration float64 `json:"longest_bad_duration"`
	CurrentBadDuration float64 `json:"current_bad_duration"`
}

// Round2 rounds v to two decimal places, the precision used for every
// percentage and duration that leaves the service.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
