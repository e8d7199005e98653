package app

import (
	"context"
	"strings"

	"floodwatch/pkg/domain"
	"floodwatch/pkg/store"
)

type ShelterInput struct {
	Name             string
	Capacity         *int
	CurrentOccupancy *int
	Facilities       string
	Contact          string
	Location         *domain.Location
}

// ShelterPatch holds the fields to change; nil means unchanged.
type ShelterPatch struct {
	Name             *string
	Capacity         *int
	CurrentOccupancy *int
	Facilities       *string
	Contact          *string
	Status           *string
	Location         *domain.Location
}

type ShelterStats struct {
	Total           int `json:"total"`
	Available       int `json:"available"`
	Full            int `json:"full"`
	Closed          int `json:"closed"`
	TotalCapacity   int `json:"totalCapacity"`
	TotalOccupancy  int `json:"totalOccupancy"`
	AvailableSpaces int `json:"availableSpaces"`
}

func (a *App) ListShelters(ctx context.Context) ([]domain.Shelter, error) {
	return a.listShelters(ctx, store.ShelterFilter{})
}

func (a *App) ListAvailableShelters(ctx context.Context) ([]domain.Shelter, error) {
	return a.listShelters(ctx, store.ShelterFilter{Status: domain.ShelterAvailable})
}

// ListSheltersWithSpace returns shelters whose occupancy is below capacity.
func (a *App) ListSheltersWithSpace(ctx context.Context) ([]domain.Shelter, error) {
	return a.listShelters(ctx, store.ShelterFilter{HasSpace: true})
}

func (a *App) listShelters(ctx context.Context, filter store.ShelterFilter) ([]domain.Shelter, error) {
	shelters, err := a.store.ListShelters(ctx, filter)
	if err != nil {
		return nil, storageErr("list shelters", err)
	}
	return shelters, nil
}

func (a *App) GetShelter(ctx context.Context, id string) (domain.Shelter, error) {
	s, ok, err := a.store.GetShelter(ctx, id)
	if err != nil {
		return domain.Shelter{}, storageErr("get shelter", err)
	}
	if !ok {
		return domain.Shelter{}, ErrNotFound
	}
	return s, nil
}

func (a *App) CreateShelter(ctx context.Context, in ShelterInput) (domain.Shelter, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Shelter{}, invalid("Shelter name required")
	}
	if in.Location == nil {
		return domain.Shelter{}, invalid("Location coordinates required")
	}
	if err := checkHeadcounts(in.Capacity, in.CurrentOccupancy); err != nil {
		return domain.Shelter{}, err
	}
	s := domain.Shelter{
		Name:       name,
		Capacity:   in.Capacity,
		Facilities: strings.TrimSpace(in.Facilities),
		Contact:    strings.TrimSpace(in.Contact),
		Location:   *in.Location,
		Status:     domain.ShelterAvailable,
	}
	if in.CurrentOccupancy != nil {
		s.CurrentOccupancy = *in.CurrentOccupancy
	}
	s.DeriveStatus()
	if err := a.store.SaveShelter(ctx, &s); err != nil {
		return domain.Shelter{}, storageErr("save shelter", err)
	}
	return s, nil
}

// UpdateShelter applies p and re-derives status from occupancy. A closed
// shelter stays closed until a patch sets another status.
func (a *App) UpdateShelter(ctx context.Context, id string, p ShelterPatch) (domain.Shelter, error) {
	s, err := a.GetShelter(ctx, id)
	if err != nil {
		return domain.Shelter{}, err
	}
	if err := checkHeadcounts(p.Capacity, p.CurrentOccupancy); err != nil {
		return domain.Shelter{}, err
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return domain.Shelter{}, invalid("Shelter name required")
		}
		s.Name = name
	}
	if p.Capacity != nil {
		c := *p.Capacity
		s.Capacity = &c
	}
	if p.CurrentOccupancy != nil {
		s.CurrentOccupancy = *p.CurrentOccupancy
	}
	if p.Facilities != nil {
		s.Facilities = strings.TrimSpace(*p.Facilities)
	}
	if p.Contact != nil {
		s.Contact = strings.TrimSpace(*p.Contact)
	}
	if p.Location != nil {
		s.Location = *p.Location
	}
	if p.Status != nil {
		st, ok := domain.ParseShelterStatus(*p.Status)
		if !ok {
			return domain.Shelter{}, invalid("Invalid status")
		}
		s.Status = st
	}
	s.DeriveStatus()
	return a.saveShelter(ctx, s)
}

// SetOccupancy records a head count and derives full/available from it.
func (a *App) SetOccupancy(ctx context.Context, id string, occupancy *int) (domain.Shelter, error) {
	if occupancy == nil || *occupancy < 0 {
		return domain.Shelter{}, invalid("Valid occupancy number required")
	}
	s, err := a.GetShelter(ctx, id)
	if err != nil {
		return domain.Shelter{}, err
	}
	s.ApplyOccupancy(*occupancy)
	return a.saveShelter(ctx, s)
}

func (a *App) CloseShelter(ctx context.Context, id string) (domain.Shelter, error) {
	return a.setShelterStatus(ctx, id, domain.ShelterClosed)
}

func (a *App) OpenShelter(ctx context.Context, id string) (domain.Shelter, error) {
	return a.setShelterStatus(ctx, id, domain.ShelterAvailable)
}

func (a *App) setShelterStatus(ctx context.Context, id string, status domain.ShelterStatus) (domain.Shelter, error) {
	s, err := a.GetShelter(ctx, id)
	if err != nil {
		return domain.Shelter{}, err
	}
	s.Status = status
	return a.saveShelter(ctx, s)
}

func (a *App) saveShelter(ctx context.Context, s domain.Shelter) (domain.Shelter, error) {
	if err := a.store.SaveShelter(ctx, &s); err != nil {
		return domain.Shelter{}, storageErr("save shelter", err)
	}
	return s, nil
}

func (a *App) DeleteShelter(ctx context.Context, id string) error {
	ok, err := a.store.DeleteShelter(ctx, id)
	if err != nil {
		return storageErr("delete shelter", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (a *App) ShelterStats(ctx context.Context) (ShelterStats, error) {
	var out ShelterStats
	counts := []struct {
		dst    *int
		filter store.ShelterFilter
	}{
		{&out.Total, store.ShelterFilter{}},
		{&out.Available, store.ShelterFilter{Status: domain.ShelterAvailable}},
		{&out.Full, store.ShelterFilter{Status: domain.ShelterFull}},
		{&out.Closed, store.ShelterFilter{Status: domain.ShelterClosed}},
	}
	for _, c := range counts {
		n, err := a.store.CountShelters(ctx, c.filter)
		if err != nil {
			return ShelterStats{}, storageErr("count shelters", err)
		}
		*c.dst = n
	}
	totals, err := a.store.ShelterTotals(ctx)
	if err != nil {
		return ShelterStats{}, storageErr("shelter totals", err)
	}
	out.TotalCapacity = totals.Capacity
	out.TotalOccupancy = totals.Occupancy
	out.AvailableSpaces = totals.Capacity - totals.Occupancy
	return out, nil
}

func checkHeadcounts(capacity, occupancy *int) error {
	if capacity != nil && *capacity < 0 {
		return invalid("Capacity must not be negative")
	}
	if occupancy != nil && *occupancy < 0 {
		return invalid("Valid occupancy number required")
	}
	return nil
}
