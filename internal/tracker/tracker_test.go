package tracker

import (
	"fmt"
	"testing"

	"github.com/rewired-gh/skywatch/internal/models"
	"github.com/rewired-gh/skywatch/internal/watchlist"
)

func f64(v float64) *float64 { return &v }

func at(id string, lat, lon float64) models.LiveState {
	return models.LiveState{Identifier: id, Callsign: "TST1  ", Latitude: f64(lat), Longitude: f64(lon)}
}

func testIndex() *watchlist.Index {
	return watchlist.NewIndex([]models.WatchlistEntry{
		{Identifier: "abc123", Operator: "Acme Air", Category: "Nuclear"},
		{Identifier: "def456", Operator: "State Flight", Category: "Government"},
	})
}

func TestMergeTrace_AppendsNewPosition(t *testing.T) {
	prior := []models.TracePoint{{1, 1}}
	got := MergeTrace(prior, at("x", 2, 3), 50)
	want := []models.TracePoint{{1, 1}, {2, 3}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("trace = %v, want %v", got, want)
	}
	if len(prior) != 1 {
		t.Errorf("prior was modified: %v", prior)
	}
}

func TestMergeTrace_SkipsRepeatedPosition(t *testing.T) {
	trace := MergeTrace(nil, at("x", 20, 10), 50)
	trace = MergeTrace(trace, at("x", 20, 10), 50)
	if len(trace) != 1 {
		t.Errorf("repeated position grew the trace: %v", trace)
	}
}

func TestMergeTrace_OnlyComparesLastPoint(t *testing.T) {
	trace := []models.TracePoint{{20, 10}, {21, 11}}
	trace = MergeTrace(trace, at("x", 20, 10), 50)
	if len(trace) != 3 {
		t.Errorf("return to an earlier position should append: %v", trace)
	}
}

func TestMergeTrace_PartialChangeAppends(t *testing.T) {
	trace := MergeTrace([]models.TracePoint{{20, 10}}, at("x", 20, 10.0001), 50)
	if len(trace) != 2 {
		t.Errorf("longitude-only change should append: %v", trace)
	}
}

func TestMergeTrace_NoPosition(t *testing.T) {
	s := models.LiveState{Identifier: "x", Latitude: f64(1)}
	trace := MergeTrace([]models.TracePoint{{5, 5}}, s, 50)
	if len(trace) != 1 {
		t.Errorf("missing longitude should not append: %v", trace)
	}
	empty := MergeTrace(nil, models.LiveState{Identifier: "x"}, 50)
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil trace, got %v", empty)
	}
}

func TestMergeTrace_CapsLength(t *testing.T) {
	var trace []models.TracePoint
	for i := 0; i < 120; i++ {
		trace = MergeTrace(trace, at("x", float64(i), float64(i)), 50)
		if len(trace) > 50 {
			t.Fatalf("trace length %d exceeds cap at step %d", len(trace), i)
		}
	}
	if trace[0] != (models.TracePoint{70, 70}) || trace[49] != (models.TracePoint{119, 119}) {
		t.Errorf("window = %v .. %v", trace[0], trace[49])
	}
}

func TestMergeTrace_TruncatesOversizedPrior(t *testing.T) {
	prior := make([]models.TracePoint, 80)
	for i := range prior {
		prior[i] = models.TracePoint{float64(i), 0}
	}
	trace := MergeTrace(prior, models.LiveState{Identifier: "x"}, 50)
	if len(trace) != 50 || trace[0].Lat() != 30 {
		t.Errorf("oversized prior not truncated to newest 50: len=%d first=%v", len(trace), trace[0])
	}
}

func TestMergeTrace_LimitAboveWindowIsCapped(t *testing.T) {
	var trace []models.TracePoint
	for i := 0; i < 70; i++ {
		trace = MergeTrace(trace, at("x", float64(i), 0), 500)
	}
	if len(trace) != models.MaxTracePoints || trace[0].Lat() != 20 {
		t.Errorf("len=%d first=%v, want %d points starting at 20", len(trace), trace[0], models.MaxTracePoints)
	}
}

func TestMatch_FiltersToWatchlist(t *testing.T) {
	states := []models.LiveState{
		at("zzz999", 1, 1),
		at("DEF456", 2, 2),
		at(" abc123 ", 3, 3),
		at("yyy888", 4, 4),
	}

	hits := Match(testIndex(), states, nil, 50)
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].Hex != "def456" || hits[1].Hex != "abc123" {
		t.Errorf("feed order not preserved: %s, %s", hits[0].Hex, hits[1].Hex)
	}
	if hits[1].Name != "Acme Air" || hits[1].Category != "Nuclear" {
		t.Errorf("enrichment = %+v", hits[1])
	}
	if hits[1].Callsign != "TST1" {
		t.Errorf("callsign not trimmed: %q", hits[1].Callsign)
	}
	for _, h := range hits {
		if _, ok := testIndex().Lookup(h.Hex); !ok {
			t.Errorf("%s matched but is not watched", h.Hex)
		}
	}
}

func TestMatch_NoPositionStillMatched(t *testing.T) {
	states := []models.LiveState{{Identifier: "abc123", Callsign: "GHOST"}}
	history := models.History{"abc123": {{1, 2}}}

	hits := Match(testIndex(), states, history, 50)
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if len(hits[0].Trace) != 1 || hits[0].Trace[0] != (models.TracePoint{1, 2}) {
		t.Errorf("trace should carry over unchanged: %v", hits[0].Trace)
	}
	if hits[0].Latitude != nil {
		t.Error("latitude should stay unknown")
	}
}

func TestMatch_TraceContinuity(t *testing.T) {
	history := models.History{"abc123": {{1, 1}}}
	hits := Match(testIndex(), []models.LiveState{at("abc123", 2, 2)}, history, 50)
	want := []models.TracePoint{{1, 1}, {2, 2}}
	if fmt.Sprint(hits[0].Trace) != fmt.Sprint(want) {
		t.Errorf("trace = %v, want %v", hits[0].Trace, want)
	}
}

func TestMatch_RepeatedIdentifierContinuesTrace(t *testing.T) {
	states := []models.LiveState{at("abc123", 1, 1), at("abc123", 2, 2)}
	hits := Match(testIndex(), states, nil, 50)
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if len(hits[0].Trace) != 1 || len(hits[1].Trace) != 2 {
		t.Errorf("traces = %v / %v", hits[0].Trace, hits[1].Trace)
	}
}

func TestMatch_EmptyFeed(t *testing.T) {
	hits := Match(testIndex(), nil, models.History{"abc123": {{1, 1}}}, 50)
	if hits == nil || len(hits) != 0 {
		t.Errorf("expected empty non-nil snapshot, got %v", hits)
	}
}

func TestMatch_EndToEndScenario(t *testing.T) {
	idx := watchlist.NewIndex([]models.WatchlistEntry{{Identifier: "abc123", Operator: "Acme Air", Category: "Nuclear"}})
	states := []models.LiveState{{
		Identifier: "ABC123", Callsign: "TST1",
		Longitude: f64(10), Latitude: f64(20), Altitude: f64(5000),
		Velocity: f64(250), Heading: f64(90),
	}}

	hits := Match(idx, states, models.History{}, 50)
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if hits[0].Hex != "abc123" {
		t.Errorf("hex = %q", hits[0].Hex)
	}
	if len(hits[0].Trace) != 1 || hits[0].Trace[0] != (models.TracePoint{20, 10}) {
		t.Errorf("trace = %v, want [[20 10]]", hits[0].Trace)
	}
}
