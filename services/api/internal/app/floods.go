package app

import (
	"context"
	"strings"

	"floodwatch/pkg/domain"
	"floodwatch/pkg/store"
)

type FloodInput struct {
	Title       string
	Description string
	Severity    string
	Location    *domain.Location
}

// FloodPatch holds the fields to change; nil means unchanged.
type FloodPatch struct {
	Title       *string
	Description *string
	Severity    *string
	Status      *string
	Location    *domain.Location
}

type FloodStats struct {
	Total      int            `json:"total"`
	Active     int            `json:"active"`
	Resolved   int            `json:"resolved"`
	BySeverity SeverityCounts `json:"bySeverity"`
}

type SeverityCounts struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

func (a *App) ListFloods(ctx context.Context) ([]domain.Flood, error) {
	return a.listFloods(ctx, store.FloodFilter{})
}

func (a *App) ListActiveFloods(ctx context.Context) ([]domain.Flood, error) {
	return a.listFloods(ctx, store.FloodFilter{Status: domain.FloodActive})
}

// ListFloodsBySeverity returns active floods at the given level.
func (a *App) ListFloodsBySeverity(ctx context.Context, level string) ([]domain.Flood, error) {
	sev, ok := domain.ParseSeverity(level)
	if !ok {
		return nil, invalid("Invalid severity level")
	}
	return a.listFloods(ctx, store.FloodFilter{Status: domain.FloodActive, Severity: sev})
}

func (a *App) listFloods(ctx context.Context, filter store.FloodFilter) ([]domain.Flood, error) {
	floods, err := a.store.ListFloods(ctx, filter)
	if err != nil {
		return nil, storageErr("list floods", err)
	}
	return floods, nil
}

func (a *App) GetFlood(ctx context.Context, id string) (domain.Flood, error) {
	f, ok, err := a.store.GetFlood(ctx, id)
	if err != nil {
		return domain.Flood{}, storageErr("get flood", err)
	}
	if !ok {
		return domain.Flood{}, ErrNotFound
	}
	return f, nil
}

func (a *App) CreateFlood(ctx context.Context, in FloodInput) (domain.Flood, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Flood{}, invalid("Title is required")
	}
	if in.Location == nil {
		return domain.Flood{}, invalid("Location coordinates required")
	}
	f := domain.Flood{
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Severity:    domain.SeverityLow,
		Location:    *in.Location,
		Status:      domain.FloodActive,
	}
	if in.Severity != "" {
		sev, ok := domain.ParseSeverity(in.Severity)
		if !ok {
			return domain.Flood{}, invalid("Invalid severity level")
		}
		f.Severity = sev
	}
	if err := a.store.SaveFlood(ctx, &f); err != nil {
		return domain.Flood{}, storageErr("save flood", err)
	}
	return f, nil
}

func (a *App) UpdateFlood(ctx context.Context, id string, p FloodPatch) (domain.Flood, error) {
	f, err := a.GetFlood(ctx, id)
	if err != nil {
		return domain.Flood{}, err
	}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return domain.Flood{}, invalid("Title is required")
		}
		f.Title = title
	}
	if p.Description != nil {
		f.Description = strings.TrimSpace(*p.Description)
	}
	if p.Severity != nil {
		sev, ok := domain.ParseSeverity(*p.Severity)
		if !ok {
			return domain.Flood{}, invalid("Invalid severity level")
		}
		f.Severity = sev
	}
	if p.Status != nil {
		st, ok := domain.ParseFloodStatus(*p.Status)
		if !ok {
			return domain.Flood{}, invalid("Invalid status")
		}
		f.Status = st
	}
	if p.Location != nil {
		f.Location = *p.Location
	}
	if err := a.store.SaveFlood(ctx, &f); err != nil {
		return domain.Flood{}, storageErr("save flood", err)
	}
	return f, nil
}

func (a *App) ResolveFlood(ctx context.Context, id string) (domain.Flood, error) {
	resolved := string(domain.FloodResolved)
	return a.UpdateFlood(ctx, id, FloodPatch{Status: &resolved})
}

func (a *App) DeleteFlood(ctx context.Context, id string) error {
	ok, err := a.store.DeleteFlood(ctx, id)
	if err != nil {
		return storageErr("delete flood", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// FloodStats counts floods by status; the severity breakdown covers active
// floods only.
func (a *App) FloodStats(ctx context.Context) (FloodStats, error) {
	var out FloodStats
	counts := []struct {
		dst    *int
		filter store.FloodFilter
	}{
		{&out.Total, store.FloodFilter{}},
		{&out.Active, store.FloodFilter{Status: domain.FloodActive}},
		{&out.Resolved, store.FloodFilter{Status: domain.FloodResolved}},
		{&out.BySeverity.High, store.FloodFilter{Status: domain.FloodActive, Severity: domain.SeverityHigh}},
		{&out.BySeverity.Medium, store.FloodFilter{Status: domain.FloodActive, Severity: domain.SeverityMedium}},
		{&out.BySeverity.Low, store.FloodFilter{Status: domain.FloodActive, Severity: domain.SeverityLow}},
	}
	for _, c := range counts {
		n, err := a.store.CountFloods(ctx, c.filter)
		if err != nil {
			return FloodStats{}, storageErr("count floods", err)
		}
		*c.dst = n
	}
	return out, nil
}
