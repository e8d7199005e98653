package domain

import (
	"strings"
	"time"
)

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Location is an opaque coordinate pair. No range or proximity semantics.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ParseSeverity normalizes s and reports whether it names a known level.
func ParseSeverity(s string) (Severity, bool) {
	switch v := Severity(strings.ToLower(strings.TrimSpace(s))); v {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return v, true
	}
	return "", false
}

type FloodStatus string

const (
	FloodActive   FloodStatus = "active"
	FloodResolved FloodStatus = "resolved"
)

func ParseFloodStatus(s string) (FloodStatus, bool) {
	switch v := FloodStatus(strings.ToLower(strings.TrimSpace(s))); v {
	case FloodActive, FloodResolved:
		return v, true
	}
	return "", false
}

type Flood struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Severity    Severity    `json:"severity"`
	Location    Location    `json:"location"`
	Status      FloodStatus `json:"status"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

type ShelterStatus string

const (
	ShelterAvailable ShelterStatus = "available"
	ShelterFull      ShelterStatus = "full"
	ShelterClosed    ShelterStatus = "closed"
)

func ParseShelterStatus(s string) (ShelterStatus, bool) {
	switch v := ShelterStatus(strings.ToLower(strings.TrimSpace(s))); v {
	case ShelterAvailable, ShelterFull, ShelterClosed:
		return v, true
	}
	return "", false
}

type Shelter struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Capacity         *int          `json:"capacity"`
	CurrentOccupancy int           `json:"currentOccupancy"`
	Facilities       string        `json:"facilities"`
	Contact          string        `json:"contact"`
	Location         Location      `json:"location"`
	Status           ShelterStatus `json:"status"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// KnownCapacity returns the capacity when it is set and positive.
func (s Shelter) KnownCapacity() (int, bool) {
	if s.Capacity == nil || *s.Capacity <= 0 {
		return 0, false
	}
	return *s.Capacity, true
}

// DeriveStatus enforces the occupancy invariant: reaching capacity marks the
// shelter full, and dropping below capacity while full makes it available again.
// Closed shelters and shelters with unknown capacity keep their status.
func (s *Shelter) DeriveStatus() {
	if s.Status == ShelterClosed {
		return
	}
	capacity, ok := s.KnownCapacity()
	if !ok {
		return
	}
	switch {
	case s.CurrentOccupancy >= capacity:
		s.Status = ShelterFull
	case s.Status == ShelterFull:
		s.Status = ShelterAvailable
	}
}

// ApplyOccupancy records a new head count and re-derives status.
func (s *Shelter) ApplyOccupancy(n int) {
	s.CurrentOccupancy = n
	s.DeriveStatus()
}

// AvailableSpaces is capacity minus occupancy, floored at zero.
func (s Shelter) AvailableSpaces() int {
	capacity, ok := s.KnownCapacity()
	if !ok || s.CurrentOccupancy >= capacity {
		return 0
	}
	return capacity - s.CurrentOccupancy
}

type MissingStatus string

const (
	MissingOpen  MissingStatus = "missing"
	MissingFound MissingStatus = "found"
)

type MissingPerson struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Age         *int          `json:"age,omitempty"`
	LastSeen    string        `json:"lastSeen"`
	Description string        `json:"description"`
	PhotoURL    string        `json:"photoUrl"`
	PhotoKey    string        `json:"-"`
	Contact     string        `json:"contact"`
	Status      MissingStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

type HelpStatus string

const (
	HelpPending    HelpStatus = "pending"
	HelpInProgress HelpStatus = "in-progress"
	HelpResolved   HelpStatus = "resolved"
)

func ParseHelpStatus(s string) (HelpStatus, bool) {
	switch v := HelpStatus(strings.ToLower(strings.TrimSpace(s))); v {
	case HelpPending, HelpInProgress, HelpResolved:
		return v, true
	}
	return "", false
}

type HelpRequest struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId,omitempty"`
	Name        string     `json:"name"`
	Phone       string     `json:"phone"`
	Type        string     `json:"type"`
	Description string     `json:"description"`
	Location    *Location  `json:"location,omitempty"`
	Status      HelpStatus `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Collection names a reconciled record set.
type Collection string

const (
	CollectionFloods   Collection = "floods"
	CollectionShelters Collection = "shelters"
)

// SyncRun is the audit trail of one reconciliation pass over a collection.
type SyncRun struct {
	ID         string         `json:"id"`
	Collection Collection     `json:"collection"`
	Source     string         `json:"source"`
	Trigger    string         `json:"trigger"`
	Success    bool           `json:"success"`
	Message    string         `json:"message"`
	Received   int            `json:"received"`
	Created    int            `json:"created"`
	Updated    int            `json:"updated"`
	Skipped    int            `json:"skipped"`
	Failed     int            `json:"failed"`
	Details    map[string]any `json:"details,omitempty"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
}
