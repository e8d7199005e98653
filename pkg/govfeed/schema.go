package govfeed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"floodwatch/pkg/domain"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Rejection explains why a feed element was not accepted.
type Rejection struct {
	Reason string
}

// Record is the outcome of parsing one feed element: exactly one of Valid
// or Rejected is set. Ignored names optional fields whose values were
// unusable and treated as absent.
type Record[T any] struct {
	Valid    *T
	Rejected *Rejection
	Ignored  []string
}

func valid[T any](v T, ignored []string) Record[T] { return Record[T]{Valid: &v, Ignored: ignored} }

func rejected[T any](format string, args ...any) Record[T] {
	return Record[T]{Rejected: &Rejection{Reason: fmt.Sprintf(format, args...)}}
}

// FloodCandidate is a feed flood that passed the schema. Optional fields are
// empty when the feed did not supply a usable value.
type FloodCandidate struct {
	Title       string `validate:"required"`
	Location    domain.Location
	Description string
	Severity    domain.Severity    `validate:"omitempty,oneof=low medium high"`
	Status      domain.FloodStatus `validate:"omitempty,oneof=active resolved"`
}

// ShelterCandidate is a feed shelter that passed the schema.
type ShelterCandidate struct {
	Name       string `validate:"required"`
	Location   domain.Location
	Capacity   *int `validate:"omitempty,min=0"`
	Facilities string
	Contact    string
	Status     domain.ShelterStatus `validate:"omitempty,oneof=available full closed"`
}

type wireLocation struct {
	Lat json.RawMessage `json:"lat"`
	Lng json.RawMessage `json:"lng"`
}

type floodWire struct {
	Title       json.RawMessage `json:"title"`
	Description json.RawMessage `json:"description"`
	Severity    json.RawMessage `json:"severity"`
	Status      json.RawMessage `json:"status"`
	Lat         json.RawMessage `json:"lat"`
	Lng         json.RawMessage `json:"lng"`
	Location    *wireLocation   `json:"location"`
}

type shelterWire struct {
	Name       json.RawMessage `json:"name"`
	Capacity   json.RawMessage `json:"capacity"`
	Facilities json.RawMessage `json:"facilities"`
	Contact    json.RawMessage `json:"contact"`
	Status     json.RawMessage `json:"status"`
	Lat        json.RawMessage `json:"lat"`
	Lng        json.RawMessage `json:"lng"`
	Location   *wireLocation   `json:"location"`
}

// ParseFlood validates one raw flood element.
func ParseFlood(raw json.RawMessage) Record[FloodCandidate] {
	var w floodWire
	if err := decodeObject(raw, &w); err != nil {
		return rejected[FloodCandidate]("%v", err)
	}
	title, ok := optString(w.Title)
	if !ok {
		return rejected[FloodCandidate]("title must be a string")
	}
	loc, reason := parseLocation(w.Lat, w.Lng, w.Location)
	if reason != "" {
		return rejected[FloodCandidate]("%s", reason)
	}
	c := FloodCandidate{Title: strings.TrimSpace(title), Location: loc}
	var ig ignored
	c.Description = ig.str("description", w.Description)
	if s := ig.str("severity", w.Severity); s != "" {
		if sev, ok := domain.ParseSeverity(s); ok {
			c.Severity = sev
		} else {
			ig.add("severity")
		}
	}
	if s := ig.str("status", w.Status); s != "" {
		if st, ok := domain.ParseFloodStatus(s); ok {
			c.Status = st
		} else {
			ig.add("status")
		}
	}
	if err := validate.Struct(c); err != nil {
		return rejected[FloodCandidate]("%s", describe(err))
	}
	return valid(c, ig)
}

// ParseShelter validates one raw shelter element.
func ParseShelter(raw json.RawMessage) Record[ShelterCandidate] {
	var w shelterWire
	if err := decodeObject(raw, &w); err != nil {
		return rejected[ShelterCandidate]("%v", err)
	}
	name, ok := optString(w.Name)
	if !ok {
		return rejected[ShelterCandidate]("name must be a string")
	}
	loc, reason := parseLocation(w.Lat, w.Lng, w.Location)
	if reason != "" {
		return rejected[ShelterCandidate]("%s", reason)
	}
	c := ShelterCandidate{Name: strings.TrimSpace(name), Location: loc}
	var ig ignored
	if capacity, present, ok := optInt(w.Capacity); !ok || (present && capacity < 0) {
		ig.add("capacity")
	} else if present {
		c.Capacity = &capacity
	}
	c.Facilities = ig.str("facilities", w.Facilities)
	c.Contact = ig.str("contact", w.Contact)
	if s := ig.str("status", w.Status); s != "" {
		if st, ok := domain.ParseShelterStatus(s); ok {
			c.Status = st
		} else {
			ig.add("status")
		}
	}
	if err := validate.Struct(c); err != nil {
		return rejected[ShelterCandidate]("%s", describe(err))
	}
	return valid(c, ig)
}

// ignored collects optional fields that carried an unusable value.
type ignored []string

func (ig *ignored) add(field string) { *ig = append(*ig, field) }

func (ig *ignored) str(field string, raw json.RawMessage) string {
	s, ok := optString(raw)
	if !ok {
		ig.add(field)
	}
	return s
}

func decodeObject(raw json.RawMessage, out any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errors.New("element is not an object")
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("element does not match schema: %v", err)
	}
	return nil
}

// parseLocation prefers top-level lat/lng and falls back to location.lat/lng.
func parseLocation(lat, lng json.RawMessage, nested *wireLocation) (domain.Location, string) {
	if isAbsent(lat) && isAbsent(lng) && nested != nil {
		lat, lng = nested.Lat, nested.Lng
	}
	la, ok := number(lat)
	if !ok {
		return domain.Location{}, "lat is required and must be a number"
	}
	ln, ok := number(lng)
	if !ok {
		return domain.Location{}, "lng is required and must be a number"
	}
	return domain.Location{Lat: la, Lng: ln}, ""
}

func isAbsent(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func number(raw json.RawMessage) (float64, bool) {
	if isAbsent(raw) {
		return 0, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	f, err := n.Float64()
	if err != nil {
		return 0, false
	}
	return f, true
}

// optString returns the string value of raw; absent or null yields ("", true)
// and a non-string yields ("", false).
func optString(raw json.RawMessage) (string, bool) {
	if isAbsent(raw) {
		return "", true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return strings.TrimSpace(s), true
}

// optInt decodes an integral JSON number. ok is false for any other type.
func optInt(raw json.RawMessage) (v int, present bool, ok bool) {
	if isAbsent(raw) {
		return 0, false, true
	}
	f, isNum := number(raw)
	if !isNum || f != float64(int(f)) {
		return 0, false, false
	}
	return int(f), true, true
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
