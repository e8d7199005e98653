package govfeed

import (
	"encoding/json"
	"strings"
	"testing"

	"floodwatch/pkg/domain"
)

func TestParseFlood(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		reject   string
		title    string
		loc      domain.Location
		severity domain.Severity
		status   domain.FloodStatus
	}{
		{
			name:     "top-level coordinates",
			raw:      `{"title":" Kelaniya ","lat":6.9639,"lng":79.9018,"severity":"HIGH","status":"active"}`,
			title:    "Kelaniya",
			loc:      domain.Location{Lat: 6.9639, Lng: 79.9018},
			severity: domain.SeverityHigh,
			status:   domain.FloodActive,
		},
		{
			name:  "nested location",
			raw:   `{"title":"Kaduwela","location":{"lat":6.9319,"lng":79.973}}`,
			title: "Kaduwela",
			loc:   domain.Location{Lat: 6.9319, Lng: 79.973},
		},
		{
			name:  "zero coordinate is still a number",
			raw:   `{"title":"Null Island","lat":0,"lng":0}`,
			title: "Null Island",
		},
		{
			name:  "unknown severity is dropped",
			raw:   `{"title":"x","lat":1,"lng":2,"severity":"catastrophic"}`,
			title: "x",
			loc:   domain.Location{Lat: 1, Lng: 2},
		},
		{name: "missing title", raw: `{"lat":1,"lng":2}`, reject: "title is required"},
		{name: "blank title", raw: `{"title":"  ","lat":1,"lng":2}`, reject: "title is required"},
		{name: "numeric title", raw: `{"title":5,"lat":1,"lng":2}`, reject: "title must be a string"},
		{name: "missing lng", raw: `{"title":"x","lat":1}`, reject: "lng is required"},
		{name: "string lat", raw: `{"title":"x","lat":"6.9","lng":2}`, reject: "lat is required and must be a number"},
		{name: "not an object", raw: `[1]`, reject: "not an object"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := ParseFlood(json.RawMessage(tc.raw))
			if tc.reject != "" {
				if rec.Rejected == nil || rec.Valid != nil {
					t.Fatalf("expected rejection, got %+v", rec)
				}
				if !strings.Contains(rec.Rejected.Reason, tc.reject) {
					t.Fatalf("reason %q does not mention %q", rec.Rejected.Reason, tc.reject)
				}
				return
			}
			if rec.Valid == nil || rec.Rejected != nil {
				t.Fatalf("expected valid record, got rejection %+v", rec.Rejected)
			}
			got := *rec.Valid
			if got.Title != tc.title || got.Location != tc.loc || got.Severity != tc.severity || got.Status != tc.status {
				t.Fatalf("unexpected candidate: %+v", got)
			}
		})
	}
}

func TestParseShelter(t *testing.T) {
	rec := ParseShelter(json.RawMessage(`{"name":"Colombo Hall","lat":6.9271,"lng":79.8612,"capacity":300,"facilities":"Food","status":"available"}`))
	if rec.Valid == nil {
		t.Fatalf("expected valid shelter, got %+v", rec.Rejected)
	}
	if rec.Valid.Capacity == nil || *rec.Valid.Capacity != 300 || rec.Valid.Facilities != "Food" {
		t.Fatalf("unexpected candidate: %+v", rec.Valid)
	}

	rec = ParseShelter(json.RawMessage(`{"name":"No capacity","lat":1,"lng":2}`))
	if rec.Valid == nil || rec.Valid.Capacity != nil {
		t.Fatalf("absent capacity should stay nil: %+v", rec)
	}

	for raw, reason := range map[string]string{
		`{"lat":1,"lng":2}`:              "name is required",
		`{"name":7,"lat":1,"lng":2}`:     "name must be a string",
		`{"name":"x","lat":1,"lng":"2"}`: "lng is required",
	} {
		rec := ParseShelter(json.RawMessage(raw))
		if rec.Rejected == nil || !strings.Contains(rec.Rejected.Reason, reason) {
			t.Fatalf("%s: expected rejection %q, got %+v", raw, reason, rec)
		}
	}
}

func TestParseShelterTreatsBadCapacityAsAbsent(t *testing.T) {
	for _, capacity := range []string{`"50"`, `12.5`, `-1`, `true`} {
		rec := ParseShelter(json.RawMessage(`{"name":"Hall","lat":1,"lng":2,"capacity":` + capacity + `,"contact":{"phone":1}}`))
		if rec.Valid == nil {
			t.Fatalf("capacity %s: expected valid shelter, got %+v", capacity, rec.Rejected)
		}
		if rec.Valid.Capacity != nil {
			t.Fatalf("capacity %s: expected nil capacity, got %d", capacity, *rec.Valid.Capacity)
		}
		if strings.Join(rec.Ignored, ",") != "capacity,contact" {
			t.Fatalf("capacity %s: ignored = %v", capacity, rec.Ignored)
		}
	}
}

func TestParseFloodKeepsLongAndUnusableOptionals(t *testing.T) {
	long := strings.Repeat("d", 5001)
	rec := ParseFlood(json.RawMessage(`{"title":"` + strings.Repeat("t", 400) + `","lat":1,"lng":2,"description":"` + long + `","severity":3,"status":"flooding"}`))
	if rec.Valid == nil {
		t.Fatalf("expected valid flood, got %+v", rec.Rejected)
	}
	if rec.Valid.Description != long || len(rec.Valid.Title) != 400 {
		t.Fatalf("long text fields should be kept as-is")
	}
	if rec.Valid.Severity != "" || rec.Valid.Status != "" {
		t.Fatalf("unusable enums should be absent: %+v", rec.Valid)
	}
	if strings.Join(rec.Ignored, ",") != "severity,status" {
		t.Fatalf("ignored = %v", rec.Ignored)
	}

	rec = ParseFlood(json.RawMessage(`{"title":"x","lat":1,"lng":2,"description":["a"]}`))
	if rec.Valid == nil || rec.Valid.Description != "" {
		t.Fatalf("non-string description should be dropped: %+v", rec)
	}
}
