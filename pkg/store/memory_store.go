package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"floodwatch/internal/util"
	"floodwatch/pkg/domain"
)

// table keeps records by ID plus insertion order so listings are stable.
type table[T any] struct {
	rows  map[string]T
	order []string
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[string]T)}
}

func (t *table[T]) put(id string, v T) {
	if _, exists := t.rows[id]; !exists {
		t.order = append(t.order, id)
	}
	t.rows[id] = v
}

func (t *table[T]) get(id string) (T, bool) {
	v, ok := t.rows[id]
	return v, ok
}

func (t *table[T]) remove(id string) bool {
	if _, ok := t.rows[id]; !ok {
		return false
	}
	delete(t.rows, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// newestFirst walks rows in reverse insertion order.
func (t *table[T]) newestFirst(keep func(T) bool) []T {
	res := make([]T, 0, len(t.order))
	for i := len(t.order) - 1; i >= 0; i-- {
		v := t.rows[t.order[i]]
		if keep == nil || keep(v) {
			res = append(res, v)
		}
	}
	return res
}

// MemoryStore is an in-process Store backing the app, server and sync engine
// tests. Runtime wiring always uses GormStore.
type MemoryStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	users    *table[domain.User]
	email    map[string]string // email -> user ID
	floods   *table[domain.Flood]
	shelters *table[domain.Shelter]
	missing  *table[domain.MissingPerson]
	help     *table[domain.HelpRequest]
	runs     []domain.SyncRun
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      func() time.Time { return time.Now().UTC() },
		users:    newTable[domain.User](),
		email:    make(map[string]string),
		floods:   newTable[domain.Flood](),
		shelters: newTable[domain.Shelter](),
		missing:  newTable[domain.MissingPerson](),
		help:     newTable[domain.HelpRequest](),
	}
}

// SetClock overrides the timestamp source.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }
func (m *MemoryStore) Close() error                   { return nil }

func (m *MemoryStore) SaveUser(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if owner, ok := m.email[u.Email]; ok && owner != u.ID {
		return fmt.Errorf("%w: %s", ErrDuplicateEmail, u.Email)
	}
	if prev, ok := m.users.get(u.ID); ok && u.ID != "" && prev.Email != u.Email {
		delete(m.email, prev.Email)
	}
	stamp(&u.ID, &u.CreatedAt, &u.UpdatedAt, m.now())
	m.users.put(u.ID, *u)
	m.email[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users.get(id)
	return u, ok, nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users.get(id)
	return u, ok, nil
}

// ListUsers returns users oldest first, matching GormStore.
func (m *MemoryStore) ListUsers(context.Context) ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.User, 0, len(m.users.order))
	for _, id := range m.users.order {
		res = append(res, m.users.rows[id])
	}
	return res, nil
}

func (m *MemoryStore) UserCount(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users.rows), nil
}

func (m *MemoryStore) SaveFlood(_ context.Context, f *domain.Flood) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stamp(&f.ID, &f.CreatedAt, &f.UpdatedAt, m.now())
	m.floods.put(f.ID, *f)
	return nil
}

func (m *MemoryStore) GetFlood(_ context.Context, id string) (domain.Flood, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.floods.get(id)
	return f, ok, nil
}

func (m *MemoryStore) FindFloodByKey(_ context.Context, title string, loc domain.Location) (domain.Flood, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.floods.order {
		f := m.floods.rows[id]
		if f.Title == title && f.Location == loc {
			return f, true, nil
		}
	}
	return domain.Flood{}, false, nil
}

func (f FloodFilter) match(v domain.Flood) bool {
	return (f.Status == "" || v.Status == f.Status) && (f.Severity == "" || v.Severity == f.Severity)
}

func (m *MemoryStore) ListFloods(_ context.Context, filter FloodFilter) ([]domain.Flood, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.floods.newestFirst(filter.match), nil
}

func (m *MemoryStore) CountFloods(ctx context.Context, filter FloodFilter) (int, error) {
	list, err := m.ListFloods(ctx, filter)
	return len(list), err
}

func (m *MemoryStore) DeleteFlood(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.floods.remove(id), nil
}

func (m *MemoryStore) SaveShelter(_ context.Context, s *domain.Shelter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stamp(&s.ID, &s.CreatedAt, &s.UpdatedAt, m.now())
	m.shelters.put(s.ID, *s)
	return nil
}

func (m *MemoryStore) GetShelter(_ context.Context, id string) (domain.Shelter, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.shelters.get(id)
	return s, ok, nil
}

func (m *MemoryStore) FindShelterByKey(_ context.Context, name string, loc domain.Location) (domain.Shelter, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.shelters.order {
		s := m.shelters.rows[id]
		if s.Name == name && s.Location == loc {
			return s, true, nil
		}
	}
	return domain.Shelter{}, false, nil
}

func (f ShelterFilter) match(v domain.Shelter) bool {
	if f.Status != "" && v.Status != f.Status {
		return false
	}
	if f.HasSpace {
		capacity, ok := v.KnownCapacity()
		return ok && v.CurrentOccupancy < capacity
	}
	return true
}

func (m *MemoryStore) ListShelters(_ context.Context, filter ShelterFilter) ([]domain.Shelter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.shelters.newestFirst(filter.match), nil
}

func (m *MemoryStore) CountShelters(ctx context.Context, filter ShelterFilter) (int, error) {
	list, err := m.ListShelters(ctx, filter)
	return len(list), err
}

func (m *MemoryStore) ShelterTotals(context.Context) (ShelterTotals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out ShelterTotals
	for _, s := range m.shelters.rows {
		if s.Capacity != nil {
			out.Capacity += *s.Capacity
		}
		out.Occupancy += s.CurrentOccupancy
	}
	return out, nil
}

func (m *MemoryStore) DeleteShelter(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shelters.remove(id), nil
}

func (m *MemoryStore) SaveMissingPerson(_ context.Context, p *domain.MissingPerson) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stamp(&p.ID, &p.CreatedAt, &p.UpdatedAt, m.now())
	m.missing.put(p.ID, *p)
	return nil
}

func (m *MemoryStore) GetMissingPerson(_ context.Context, id string) (domain.MissingPerson, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.missing.get(id)
	return p, ok, nil
}

func (f MissingFilter) match(v domain.MissingPerson) bool {
	if needle := strings.TrimSpace(f.NameContains); needle != "" &&
		!strings.Contains(strings.ToLower(v.Name), strings.ToLower(needle)) {
		return false
	}
	return f.Status == "" || v.Status == f.Status
}

func (m *MemoryStore) ListMissingPersons(_ context.Context, filter MissingFilter) ([]domain.MissingPerson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.missing.newestFirst(filter.match), nil
}

func (m *MemoryStore) CountMissingPersons(ctx context.Context, filter MissingFilter) (int, error) {
	list, err := m.ListMissingPersons(ctx, filter)
	return len(list), err
}

func (m *MemoryStore) DeleteMissingPerson(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.missing.remove(id), nil
}

func (m *MemoryStore) SaveHelpRequest(_ context.Context, h *domain.HelpRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stamp(&h.ID, &h.CreatedAt, &h.UpdatedAt, m.now())
	m.help.put(h.ID, *h)
	return nil
}

func (m *MemoryStore) GetHelpRequest(_ context.Context, id string) (domain.HelpRequest, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.help.get(id)
	return h, ok, nil
}

func (f HelpFilter) match(v domain.HelpRequest) bool {
	return (f.Status == "" || v.Status == f.Status) && (f.UserID == "" || v.UserID == f.UserID)
}

func (m *MemoryStore) ListHelpRequests(_ context.Context, filter HelpFilter) ([]domain.HelpRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.help.newestFirst(filter.match), nil
}

func (m *MemoryStore) CountHelpRequests(ctx context.Context, filter HelpFilter) (int, error) {
	list, err := m.ListHelpRequests(ctx, filter)
	return len(list), err
}

func (m *MemoryStore) DeleteHelpRequest(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.help.remove(id), nil
}

// GroupCounts mirrors the GROUP BY query of GormStore, sorted by key.
func (m *MemoryStore) GroupCounts(_ context.Context, field GroupField) ([]GroupCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	switch field {
	case FloodsBySeverity:
		for _, f := range m.floods.rows {
			counts[string(f.Severity)]++
		}
	case HelpByType:
		for _, h := range m.help.rows {
			counts[h.Type]++
		}
	case HelpByStatus:
		for _, h := range m.help.rows {
			counts[string(h.Status)]++
		}
	case MissingByStatus:
		for _, p := range m.missing.rows {
			counts[string(p.Status)]++
		}
	case SheltersByStatus:
		for _, s := range m.shelters.rows {
			counts[string(s.Status)]++
		}
	default:
		return nil, fmt.Errorf("unknown group field %q", field)
	}
	out := make([]GroupCount, 0, len(counts))
	for k, v := range counts {
		out = append(out, GroupCount{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) HelpRequestsPerDay(_ context.Context, since time.Time) ([]DayCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, h := range m.help.rows {
		if h.CreatedAt.Before(since) {
			continue
		}
		counts[h.CreatedAt.UTC().Format(time.DateOnly)]++
	}
	out := make([]DayCount, 0, len(counts))
	for day, n := range counts {
		out = append(out, DayCount{Date: day, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (m *MemoryStore) AppendSyncRun(_ context.Context, run *domain.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.ID == "" {
		run.ID = util.NewID()
	}
	m.runs = append(m.runs, *run)
	return nil
}

func (m *MemoryStore) ListSyncRuns(_ context.Context, limit int) ([]domain.SyncRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	res := make([]domain.SyncRun, 0, min(limit, len(m.runs)))
	for i := len(m.runs) - 1; i >= 0 && len(res) < limit; i-- {
		res = append(res, m.runs[i])
	}
	return res, nil
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*GormStore)(nil)
