package store

import (
	"context"
	"errors"
	"time"

	"floodwatch/internal/util"
	"floodwatch/pkg/domain"
)

// ErrDuplicateEmail is returned by SaveUser when another account owns the email.
var ErrDuplicateEmail = errors.New("email already registered")

// Store persists accounts, incident records and sync history.
// Lookups return (value, found, error); a missing row is not an error.
// Save methods upsert by ID and stamp the record in place: a blank ID is
// assigned, CreatedAt is set on first write and UpdatedAt on every write.
type Store interface {
	Ping(ctx context.Context) error
	Close() error

	// users
	SaveUser(ctx context.Context, u *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	GetUserByID(ctx context.Context, id string) (domain.User, bool, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UserCount(ctx context.Context) (int, error)

	// floods
	SaveFlood(ctx context.Context, f *domain.Flood) error
	GetFlood(ctx context.Context, id string) (domain.Flood, bool, error)
	FindFloodByKey(ctx context.Context, title string, loc domain.Location) (domain.Flood, bool, error)
	ListFloods(ctx context.Context, filter FloodFilter) ([]domain.Flood, error)
	CountFloods(ctx context.Context, filter FloodFilter) (int, error)
	DeleteFlood(ctx context.Context, id string) (bool, error)

	// shelters
	SaveShelter(ctx context.Context, s *domain.Shelter) error
	GetShelter(ctx context.Context, id string) (domain.Shelter, bool, error)
	FindShelterByKey(ctx context.Context, name string, loc domain.Location) (domain.Shelter, bool, error)
	ListShelters(ctx context.Context, filter ShelterFilter) ([]domain.Shelter, error)
	CountShelters(ctx context.Context, filter ShelterFilter) (int, error)
	ShelterTotals(ctx context.Context) (ShelterTotals, error)
	DeleteShelter(ctx context.Context, id string) (bool, error)

	// missing persons
	SaveMissingPerson(ctx context.Context, p *domain.MissingPerson) error
	GetMissingPerson(ctx context.Context, id string) (domain.MissingPerson, bool, error)
	ListMissingPersons(ctx context.Context, filter MissingFilter) ([]domain.MissingPerson, error)
	CountMissingPersons(ctx context.Context, filter MissingFilter) (int, error)
	DeleteMissingPerson(ctx context.Context, id string) (bool, error)

	// help requests
	SaveHelpRequest(ctx context.Context, h *domain.HelpRequest) error
	GetHelpRequest(ctx context.Context, id string) (domain.HelpRequest, bool, error)
	ListHelpRequests(ctx context.Context, filter HelpFilter) ([]domain.HelpRequest, error)
	CountHelpRequests(ctx context.Context, filter HelpFilter) (int, error)
	DeleteHelpRequest(ctx context.Context, id string) (bool, error)

	// aggregates
	GroupCounts(ctx context.Context, field GroupField) ([]GroupCount, error)
	HelpRequestsPerDay(ctx context.Context, since time.Time) ([]DayCount, error)

	// sync history
	AppendSyncRun(ctx context.Context, run *domain.SyncRun) error
	ListSyncRuns(ctx context.Context, limit int) ([]domain.SyncRun, error)
}

// FloodFilter narrows flood listings. Zero values match everything.
type FloodFilter struct {
	Status   domain.FloodStatus
	Severity domain.Severity
}

// ShelterFilter narrows shelter listings.
type ShelterFilter struct {
	Status domain.ShelterStatus
	// HasSpace keeps shelters whose occupancy is below a known capacity.
	HasSpace bool
}

// MissingFilter narrows missing-person listings.
type MissingFilter struct {
	// NameContains is a case-insensitive substring match.
	NameContains string
	Status       domain.MissingStatus
}

// HelpFilter narrows help-request listings.
type HelpFilter struct {
	Status domain.HelpStatus
	UserID string
}

// ShelterTotals sums capacity and occupancy across every shelter.
type ShelterTotals struct {
	Capacity  int
	Occupancy int
}

// GroupField names a whitelisted column for GroupCounts.
type GroupField string

const (
	FloodsBySeverity GroupField = "floods.severity"
	HelpByType       GroupField = "help.type"
	HelpByStatus     GroupField = "help.status"
	MissingByStatus  GroupField = "missing.status"
	SheltersByStatus GroupField = "shelters.status"
)

type GroupCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// DayCount is a per-calendar-day (UTC) bucket.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// AsMap folds group counts into a key->count map.
func AsMap(groups []GroupCount) map[string]int {
	out := make(map[string]int, len(groups))
	for _, g := range groups {
		out[g.Key] += g.Count
	}
	return out
}

func stamp(id *string, created, updated *time.Time, now time.Time) {
	if *id == "" {
		*id = util.NewID()
	}
	if created.IsZero() {
		*created = now
	}
	*updated = now
}
