// Package alert decides which matched aircraft warrant a notification.
package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/rewired-gh/skywatch/internal/logger"
	"github.com/rewired-gh/skywatch/internal/models"
)

// Policy names accepted by NewPolicy.
const (
	PolicyEveryCycle      = "every_cycle"
	PolicyOncePerCategory = "once_per_category"
)

// DefaultHighPriority is the category set that triggers notifications.
var DefaultHighPriority = []string{"Dictator Alert", "Nuclear", "Putin's War"}

// Policy decides whether a high-priority match is notified again.
type Policy interface {
	Allow(m models.MatchedAircraft, now time.Time) (bool, error)
	// Record is called after a notification was delivered.
	Record(m models.MatchedAircraft, cycleID string, now time.Time) error
}

// EveryCycle notifies on every cycle an aircraft is seen. An aircraft present
// for N cycles produces N notifications.
type EveryCycle struct{}

func (EveryCycle) Allow(models.MatchedAircraft, time.Time) (bool, error) { return true, nil }

func (EveryCycle) Record(models.MatchedAircraft, string, time.Time) error { return nil }

// RecordStore persists the last alert per aircraft.
type RecordStore interface {
	GetAlertRecord(identifier string) (*models.AlertRecord, error)
	SaveAlertRecord(rec *models.AlertRecord) error
}

// OncePerCategory notifies an aircraft once per category. A record older than
// Cooldown allows a repeat; zero Cooldown never expires.
type OncePerCategory struct {
	Store    RecordStore
	Cooldown time.Duration
}

func (p OncePerCategory) Allow(m models.MatchedAircraft, now time.Time) (bool, error) {
	rec, err := p.Store.GetAlertRecord(m.Hex)
	if err != nil {
		return false, err
	}
	if rec == nil || rec.Category != m.Category {
		return true, nil
	}
	return p.Cooldown > 0 && now.Sub(rec.AlertedAt) >= p.Cooldown, nil
}

func (p OncePerCategory) Record(m models.MatchedAircraft, cycleID string, now time.Time) error {
	return p.Store.SaveAlertRecord(&models.AlertRecord{
		Identifier: m.Hex,
		Category:   m.Category,
		CycleID:    cycleID,
		AlertedAt:  now,
	})
}

// NewPolicy builds a policy by name. store is only used by once_per_category.
func NewPolicy(name string, store RecordStore, cooldown time.Duration) (Policy, error) {
	switch name {
	case "", PolicyEveryCycle:
		return EveryCycle{}, nil
	case PolicyOncePerCategory:
		if store == nil {
			return nil, fmt.Errorf("policy %s requires an alert state store", name)
		}
		return OncePerCategory{Store: store, Cooldown: cooldown}, nil
	default:
		return nil, fmt.Errorf("unknown alert policy %q", name)
	}
}

// Decider is the per-match, per-cycle alert policy.
type Decider struct {
	highPriority map[string]bool
	policy       Policy
}

// NewDecider creates a decider for the given high-priority categories.
func NewDecider(categories []string, policy Policy) *Decider {
	if len(categories) == 0 {
		categories = DefaultHighPriority
	}
	if policy == nil {
		policy = EveryCycle{}
	}
	hp := make(map[string]bool, len(categories))
	for _, c := range categories {
		hp[strings.TrimSpace(c)] = true
	}
	return &Decider{highPriority: hp, policy: policy}
}

// IsHighPriority reports whether category triggers notifications.
func (d *Decider) IsHighPriority(category string) bool {
	return d.highPriority[category]
}

// ShouldNotify reports whether m warrants a notification this cycle.
// A policy lookup failure errs on the side of notifying.
func (d *Decider) ShouldNotify(m models.MatchedAircraft, now time.Time) bool {
	if !d.IsHighPriority(m.Category) {
		return false
	}
	ok, err := d.policy.Allow(m, now)
	if err != nil {
		logger.Warn("Alert policy lookup failed for %s, notifying anyway: %v", m.Hex, err)
		return true
	}
	if !ok {
		logger.Debug("Suppressed repeat alert for %s (%s)", m.Hex, m.Category)
	}
	return ok
}

// Delivered records a successful notification with the policy.
func (d *Decider) Delivered(m models.MatchedAircraft, cycleID string, now time.Time) {
	if err := d.policy.Record(m, cycleID, now); err != nil {
		logger.Warn("Failed to record alert for %s: %v", m.Hex, err)
	}
}

// Select returns the matches that warrant a notification, in order.
func (d *Decider) Select(snap models.Snapshot, now time.Time) []models.MatchedAircraft {
	var out []models.MatchedAircraft
	for _, m := range snap {
		if d.ShouldNotify(m, now) {
			out = append(out, m)
		}
	}
	return out
}
