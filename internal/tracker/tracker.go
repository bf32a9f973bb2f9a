// Package tracker matches live aircraft against the watchlist and carries
// their position traces across cycles.
package tracker

import (
	"strings"

	"github.com/rewired-gh/skywatch/internal/models"
)

// Lookup resolves an identifier to its watchlist entry.
type Lookup interface {
	Lookup(id string) (models.WatchlistEntry, bool)
}

// MergeTrace returns prior extended with the state's position, keeping at most
// maxPoints of the newest points. maxPoints is capped at models.MaxTracePoints. The position is appended only when it is
// known and differs from the last point. prior is never modified.
func MergeTrace(prior []models.TracePoint, s models.LiveState, maxPoints int) []models.TracePoint {
	if maxPoints <= 0 || maxPoints > models.MaxTracePoints {
		maxPoints = models.MaxTracePoints
	}

	trace := make([]models.TracePoint, len(prior), len(prior)+1)
	copy(trace, prior)

	if s.HasPosition() {
		p := models.TracePoint{*s.Latitude, *s.Longitude}
		if len(trace) == 0 || trace[len(trace)-1] != p {
			trace = append(trace, p)
		}
	}

	if len(trace) > maxPoints {
		trace = trace[len(trace)-maxPoints:]
	}
	return trace
}

// Match returns the live states found in the watchlist, in feed order, each
// with its trace merged from history. history is updated with the new traces
// so a repeated identifier within one feed continues its own trace.
func Match(idx Lookup, states []models.LiveState, history models.History, maxPoints int) models.Snapshot {
	if history == nil {
		history = models.History{}
	}

	hits := models.Snapshot{}
	for _, s := range states {
		id := models.NormalizeIdentifier(s.Identifier)
		entry, ok := idx.Lookup(id)
		if !ok {
			continue
		}

		trace := MergeTrace(history[id], s, maxPoints)
		history[id] = trace

		hits = append(hits, models.MatchedAircraft{
			Hex:          id,
			Name:         entry.Operator,
			Category:     entry.Category,
			Callsign:     strings.TrimSpace(s.Callsign),
			Longitude:    s.Longitude,
			Latitude:     s.Latitude,
			Altitude:     s.Altitude,
			Velocity:     s.Velocity,
			Heading:      s.Heading,
			PositionTime: s.PositionTime,
			Trace:        trace,
		})
	}
	return hits
}
