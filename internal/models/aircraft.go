// Package models defines the core domain entities: watchlist entries, live
// aircraft states, matched aircraft and their traces.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MaxTracePoints is the default number of positions retained per aircraft.
const MaxTracePoints = 50

// NormalizeIdentifier returns the join key used between the watchlist and the
// live feed: trimmed and lowercased.
func NormalizeIdentifier(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// WatchlistEntry is one flagged aircraft from the watchlist database.
type WatchlistEntry struct {
	Identifier string `json:"identifier"`
	Operator   string `json:"operator"`
	Category   string `json:"category"`
}

// LiveState is one aircraft row from the live-state feed.
// Numeric fields are nil when the feed reports null.
type LiveState struct {
	Identifier   string
	Callsign     string
	PositionTime *int64
	Longitude    *float64
	Latitude     *float64
	Altitude     *float64
	Velocity     *float64
	Heading      *float64
}

// HasPosition reports whether both coordinates are known.
func (s LiveState) HasPosition() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// TracePoint is a [latitude, longitude] pair.
type TracePoint [2]float64

// Lat returns the latitude component.
func (p TracePoint) Lat() float64 { return p[0] }

// Lon returns the longitude component.
func (p TracePoint) Lon() float64 { return p[1] }

// MatchedAircraft is a live aircraft found on the watchlist. It is the unit
// of output and of next-cycle history input.
type MatchedAircraft struct {
	Hex          string       `json:"hex"`
	Name         string       `json:"name"`
	Category     string       `json:"category"`
	Callsign     string       `json:"callsign"`
	Longitude    *float64     `json:"lon"`
	Latitude     *float64     `json:"lat"`
	Altitude     *float64     `json:"alt"`
	Velocity     *float64     `json:"velocity"`
	Heading      *float64     `json:"heading"`
	PositionTime *int64       `json:"position_time,omitempty"`
	Trace        []TracePoint `json:"trace"`
}

// MarshalJSON keeps trace an array even when empty so viewers never see null.
func (m MatchedAircraft) MarshalJSON() ([]byte, error) {
	type plain MatchedAircraft
	p := plain(m)
	if p.Trace == nil {
		p.Trace = []TracePoint{}
	}
	return json.Marshal(p)
}

// Validate checks matched aircraft field constraints.
func (m *MatchedAircraft) Validate() error {
	if m.Hex == "" {
		return errors.New("hex must not be empty")
	}
	if m.Hex != NormalizeIdentifier(m.Hex) {
		return fmt.Errorf("hex %q is not normalized", m.Hex)
	}
	if len(m.Trace) > MaxTracePoints {
		return fmt.Errorf("trace has %d points, limit is %d", len(m.Trace), MaxTracePoints)
	}
	return nil
}

// Snapshot is the full result of one polling cycle.
type Snapshot []MatchedAircraft

// History maps an identifier to the trace carried over from a prior Snapshot.
type History map[string][]TracePoint

// History indexes the snapshot's traces by identifier. Entries without a
// trace are left out, which reads back as an empty trace.
func (s Snapshot) History() History {
	h := make(History, len(s))
	for _, m := range s {
		if m.Trace == nil {
			continue
		}
		h[NormalizeIdentifier(m.Hex)] = m.Trace
	}
	return h
}

// Find returns the aircraft with the given identifier.
func (s Snapshot) Find(id string) (MatchedAircraft, bool) {
	id = NormalizeIdentifier(id)
	for _, m := range s {
		if m.Hex == id {
			return m, true
		}
	}
	return MatchedAircraft{}, false
}
