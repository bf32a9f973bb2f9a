package models

import (
	"time"
)

// AlertRecord is the last notification delivered for an aircraft.
type AlertRecord struct {
	Identifier string
	Category   string
	CycleID    string
	AlertedAt  time.Time
}

// CycleRun summarizes one completed polling cycle.
type CycleRun struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
	LiveCount  int           `json:"live_count"`
	MatchCount int           `json:"match_count"`
	AlertsSent int           `json:"alerts_sent"`
	Written    bool          `json:"written"`
}

// Sighting is a notification payload for one high-priority match.
type Sighting struct {
	Aircraft MatchedAircraft
	CycleID  string
	SeenAt   time.Time
}
