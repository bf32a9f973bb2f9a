package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func f64(v float64) *float64 { return &v }

func TestNormalizeIdentifier(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"ABC123", "abc123"},
		{"  abc123\t", "abc123"},
		{" 3C6444 ", "3c6444"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeIdentifier(tt.input); got != tt.expected {
			t.Errorf("NormalizeIdentifier(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestMatchedAircraftValidate(t *testing.T) {
	tests := []struct {
		name    string
		m       MatchedAircraft
		wantErr bool
	}{
		{
			name: "valid aircraft",
			m:    MatchedAircraft{Hex: "abc123", Trace: []TracePoint{{20, 10}}},
		},
		{
			name:    "empty hex",
			m:       MatchedAircraft{},
			wantErr: true,
		},
		{
			name:    "uppercase hex",
			m:       MatchedAircraft{Hex: "ABC123"},
			wantErr: true,
		},
		{
			name:    "trace over limit",
			m:       MatchedAircraft{Hex: "abc123", Trace: make([]TracePoint, MaxTracePoints+1)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("MatchedAircraft.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMatchedAircraftJSON(t *testing.T) {
	m := MatchedAircraft{
		Hex:       "abc123",
		Name:      "Acme Air",
		Category:  "Nuclear",
		Callsign:  "TST1",
		Longitude: f64(10),
		Latitude:  f64(20),
	}
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, `"trace":[]`) {
		t.Errorf("nil trace should encode as empty array: %s", s)
	}
	if !strings.Contains(s, `"alt":null`) {
		t.Errorf("unknown altitude should encode as null: %s", s)
	}
	if strings.Contains(s, "position_time") {
		t.Errorf("position_time should be omitted when unknown: %s", s)
	}

	m.Trace = []TracePoint{{20, 10}}
	b, _ = json.Marshal(m)
	if !strings.Contains(string(b), `"trace":[[20,10]]`) {
		t.Errorf("trace should encode as nested arrays: %s", b)
	}
}

func TestSnapshotHistory(t *testing.T) {
	var snap Snapshot
	data := `[
		{"hex":"abc123","trace":[[1,2],[3,4]]},
		{"hex":"def456"},
		{"hex":"aaa111","trace":[]}
	]`
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	h := snap.History()
	if got := h["abc123"]; len(got) != 2 || got[1] != (TracePoint{3, 4}) {
		t.Errorf("abc123 trace = %v", got)
	}
	if _, ok := h["def456"]; ok {
		t.Error("aircraft without trace field should not appear in history")
	}
	if got, ok := h["aaa111"]; !ok || len(got) != 0 {
		t.Errorf("empty trace should be kept as empty, got %v (present=%v)", got, ok)
	}
}

func TestSnapshotFind(t *testing.T) {
	snap := Snapshot{{Hex: "abc123", Name: "Acme"}}
	if m, ok := snap.Find(" ABC123 "); !ok || m.Name != "Acme" {
		t.Errorf("Find did not normalize identifier: %v %v", m, ok)
	}
	if _, ok := snap.Find("zzz"); ok {
		t.Error("Find returned a missing aircraft")
	}
}
