package models

import "time"

// ContestStatus is derived from the wall clock and never stored.
type ContestStatus string

const (
	ContestStatusUpcoming ContestStatus = "UPCOMING"
	ContestStatusLive     ContestStatus = "LIVE"
	ContestStatusEnded    ContestStatus = "ENDED"
)

// Contest describes a timed contest window and its sections.
type Contest struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Title            string    `gorm:"size:255;not null" json:"title"`
	StartTime        time.Time `gorm:"not null;index" json:"start_time"`
	EndTime          time.Time `gorm:"not null" json:"end_time"`
	DurationMinutes  int       `gorm:"not null" json:"duration_minutes"`
	MCQEnabled       bool      `gorm:"default:false" json:"mcq_enabled"`
	MCQDuration      int       `gorm:"default:0" json:"mcq_duration"`
	MCQTotalMarks    float64   `gorm:"default:0" json:"mcq_total_marks"`
	CodingEnabled    bool      `gorm:"default:false" json:"coding_enabled"`
	CodingDuration   int       `gorm:"default:0" json:"coding_duration"`
	CodingTotalMarks float64   `gorm:"default:0" json:"coding_total_marks"`
	MaxParticipants  int       `gorm:"default:0" json:"max_participants"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// StatusAt reports the contest phase at the supplied instant.
func (c Contest) StatusAt(now time.Time) ContestStatus {
	switch {
	case now.Before(c.StartTime):
		return ContestStatusUpcoming
	case now.Before(c.EndTime):
		return ContestStatusLive
	default:
		return ContestStatusEnded
	}
}

// DurationSeconds returns the per-participant time allowance.
func (c Contest) DurationSeconds() int64 {
	if c.DurationMinutes <= 0 {
		return 0
	}
	return int64(c.DurationMinutes) * 60
}
