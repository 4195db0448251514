package models

// SessionRecord is the immutable row written to durable storage when a
// session ends. Field order mirrors the store's fixed column order.
type SessionRecord struct {
	Timestamp      string  `json:"timestamp"` // end time, RFC3339
	SessionID      string  `json:"session_id"`
	SessionSeconds float64 `json:"session_seconds"`
	TotalFrames    int     `json:"total_frames"`
	GoodFrames     int     `json:"good_frames"`
	BadFrames      int     `json:"bad_frames"`
	GoodPercent    float64 `json:"good_percent"`
	BadPercent     float64 `json:"bad_percent"`
	AverageScore   float64 `json:"average_score"`
	LongestBadSecs float64 `json:"longest_bad_secs"`
}

// StoreAggregate holds aggregate statistics across all stored sessions.
// Averages cover only rows whose field held a numeric value; TotalSessions
// counts every row regardless.
type StoreAggregate struct {
	TotalSessions        int     `json:"total_sessions"`
	TotalDurationSeconds float64 `json:"total_duration_seconds"`
	AverageGoodPercent   float64 `json:"average_good_percent"`
	AverageBadPercent    float64 `json:"average_bad_percent"`
	AverageScore         float64 `json:"average_score"`
}
