package app

import (
	"context"
	"strconv"
	"time"

	"floodwatch/pkg/domain"
	"floodwatch/pkg/store"
)

const timelineDays = 7

type DashboardStats struct {
	TotalUsers       int `json:"totalUsers"`
	TotalRequests    int `json:"totalRequests"`
	PendingRequests  int `json:"pendingRequests"`
	ResolvedRequests int `json:"resolvedRequests"`
}

// HelpSummary is the admin help-request summary with grouped breakdowns.
type HelpSummary struct {
	HelpStats
	ByType   []store.GroupCount `json:"byType"`
	ByStatus []store.GroupCount `json:"byStatus"`
}

type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

type CapacitySummary struct {
	TotalCapacity   int    `json:"totalCapacity"`
	TotalOccupancy  int    `json:"totalOccupancy"`
	AvailableSpaces int    `json:"availableSpaces"`
	OccupancyRate   string `json:"occupancyRate"`
}

type Overview struct {
	Floods         ActiveTotal  `json:"floods"`
	Shelters       ShelterTotal `json:"shelters"`
	HelpRequests   PendingTotal `json:"helpRequests"`
	MissingPersons MissingTotal `json:"missingPersons"`
}

type ActiveTotal struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

type ShelterTotal struct {
	Total     int `json:"total"`
	Available int `json:"available"`
}

type PendingTotal struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
}

type MissingTotal struct {
	Total        int `json:"total"`
	StillMissing int `json:"stillMissing"`
}

func (a *App) DashboardStats(ctx context.Context) (DashboardStats, error) {
	users, err := a.store.UserCount(ctx)
	if err != nil {
		return DashboardStats{}, storageErr("count users", err)
	}
	help, err := a.HelpStats(ctx)
	if err != nil {
		return DashboardStats{}, err
	}
	return DashboardStats{
		TotalUsers:       users,
		TotalRequests:    help.Total,
		PendingRequests:  help.Pending,
		ResolvedRequests: help.Resolved,
	}, nil
}

func (a *App) HelpSummary(ctx context.Context) (HelpSummary, error) {
	stats, err := a.HelpStats(ctx)
	if err != nil {
		return HelpSummary{}, err
	}
	byType, err := a.groupCounts(ctx, store.HelpByType)
	if err != nil {
		return HelpSummary{}, err
	}
	byStatus, err := a.groupCounts(ctx, store.HelpByStatus)
	if err != nil {
		return HelpSummary{}, err
	}
	return HelpSummary{HelpStats: stats, ByType: byType, ByStatus: byStatus}, nil
}

// FloodSeverityCounts counts every flood (any status) per severity level.
func (a *App) FloodSeverityCounts(ctx context.Context) (SeverityCounts, error) {
	groups, err := a.groupCounts(ctx, store.FloodsBySeverity)
	if err != nil {
		return SeverityCounts{}, err
	}
	m := store.AsMap(groups)
	return SeverityCounts{
		High:   m[string(domain.SeverityHigh)],
		Medium: m[string(domain.SeverityMedium)],
		Low:    m[string(domain.SeverityLow)],
	}, nil
}

func (a *App) HelpByType(ctx context.Context) ([]TypeCount, error) {
	groups, err := a.groupCounts(ctx, store.HelpByType)
	if err != nil {
		return nil, err
	}
	out := make([]TypeCount, 0, len(groups))
	for _, g := range groups {
		out = append(out, TypeCount{Type: g.Key, Count: g.Count})
	}
	return out, nil
}

func (a *App) HelpByStatus(ctx context.Context) ([]StatusCount, error) {
	groups, err := a.groupCounts(ctx, store.HelpByStatus)
	if err != nil {
		return nil, err
	}
	out := make([]StatusCount, 0, len(groups))
	for _, g := range groups {
		out = append(out, StatusCount{Status: g.Key, Count: g.Count})
	}
	return out, nil
}

// ShelterCapacity sums capacity and occupancy; occupancyRate is a percentage
// with one decimal place.
func (a *App) ShelterCapacity(ctx context.Context) (CapacitySummary, error) {
	totals, err := a.store.ShelterTotals(ctx)
	if err != nil {
		return CapacitySummary{}, storageErr("shelter totals", err)
	}
	rate := "0.0"
	if totals.Capacity > 0 {
		rate = strconv.FormatFloat(float64(totals.Occupancy)/float64(totals.Capacity)*100, 'f', 1, 64)
	}
	return CapacitySummary{
		TotalCapacity:   totals.Capacity,
		TotalOccupancy:  totals.Occupancy,
		AvailableSpaces: totals.Capacity - totals.Occupancy,
		OccupancyRate:   rate,
	}, nil
}

func (a *App) MissingStatusCounts(ctx context.Context) (map[string]int, error) {
	groups, err := a.groupCounts(ctx, store.MissingByStatus)
	if err != nil {
		return nil, err
	}
	m := store.AsMap(groups)
	return map[string]int{
		string(domain.MissingOpen):  m[string(domain.MissingOpen)],
		string(domain.MissingFound): m[string(domain.MissingFound)],
	}, nil
}

func (a *App) Overview(ctx context.Context) (Overview, error) {
	floods, err := a.FloodStats(ctx)
	if err != nil {
		return Overview{}, err
	}
	shelters, err := a.ShelterStats(ctx)
	if err != nil {
		return Overview{}, err
	}
	help, err := a.HelpStats(ctx)
	if err != nil {
		return Overview{}, err
	}
	missing, err := a.MissingStats(ctx)
	if err != nil {
		return Overview{}, err
	}
	return Overview{
		Floods:         ActiveTotal{Total: floods.Total, Active: floods.Active},
		Shelters:       ShelterTotal{Total: shelters.Total, Available: shelters.Available},
		HelpRequests:   PendingTotal{Total: help.Total, Pending: help.Pending},
		MissingPersons: MissingTotal{Total: missing.Total, StillMissing: missing.Missing},
	}, nil
}

// Timeline counts help requests per UTC day over the last seven days.
func (a *App) Timeline(ctx context.Context) ([]store.DayCount, error) {
	since := a.now().Add(-timelineDays * 24 * time.Hour)
	days, err := a.store.HelpRequestsPerDay(ctx, since)
	if err != nil {
		return nil, storageErr("help timeline", err)
	}
	if days == nil {
		days = []store.DayCount{}
	}
	return days, nil
}

func (a *App) groupCounts(ctx context.Context, field store.GroupField) ([]store.GroupCount, error) {
	groups, err := a.store.GroupCounts(ctx, field)
	if err != nil {
		return nil, storageErr("group counts", err)
	}
	if groups == nil {
		groups = []store.GroupCount{}
	}
	return groups, nil
}
