package app

import (
	"context"
	"strings"

	"floodwatch/pkg/domain"
	"floodwatch/pkg/store"
)

type HelpInput struct {
	Name        string
	Phone       string
	Type        string
	Description string
	Location    *domain.Location
}

// HelpPatch holds the fields to change; nil means unchanged.
type HelpPatch struct {
	Name        *string
	Phone       *string
	Type        *string
	Description *string
	Status      *string
	Location    *domain.Location
}

type HelpStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
	Resolved   int `json:"resolved"`
}

// CreateHelp files a help request. A caller identity in ctx, if any, becomes
// the request owner.
func (a *App) CreateHelp(ctx context.Context, in HelpInput) (domain.HelpRequest, error) {
	h := domain.HelpRequest{
		Name:        strings.TrimSpace(in.Name),
		Phone:       strings.TrimSpace(in.Phone),
		Type:        strings.TrimSpace(in.Type),
		Description: strings.TrimSpace(in.Description),
		Location:    in.Location,
		Status:      domain.HelpPending,
	}
	if h.Type == "" && h.Description == "" {
		return domain.HelpRequest{}, invalid("Type or description required")
	}
	if id, ok := IdentityFromContext(ctx); ok {
		h.UserID = id.UserID
	}
	if err := a.store.SaveHelpRequest(ctx, &h); err != nil {
		return domain.HelpRequest{}, storageErr("save help request", err)
	}
	return h, nil
}

func (a *App) ListHelp(ctx context.Context) ([]domain.HelpRequest, error) {
	return a.listHelp(ctx, store.HelpFilter{})
}

func (a *App) ListHelpByStatus(ctx context.Context, status string) ([]domain.HelpRequest, error) {
	st, ok := domain.ParseHelpStatus(status)
	if !ok {
		return nil, invalid("Invalid status")
	}
	return a.listHelp(ctx, store.HelpFilter{Status: st})
}

func (a *App) listHelp(ctx context.Context, filter store.HelpFilter) ([]domain.HelpRequest, error) {
	reqs, err := a.store.ListHelpRequests(ctx, filter)
	if err != nil {
		return nil, storageErr("list help requests", err)
	}
	return reqs, nil
}

// GetHelp returns the request to its owner or to an admin.
func (a *App) GetHelp(ctx context.Context, id string) (domain.HelpRequest, error) {
	caller, ok := IdentityFromContext(ctx)
	if !ok {
		return domain.HelpRequest{}, ErrUnauthenticated
	}
	h, err := a.getHelp(ctx, id)
	if err != nil {
		return domain.HelpRequest{}, err
	}
	if caller.Role != domain.RoleAdmin && h.UserID != caller.UserID {
		return domain.HelpRequest{}, ErrForbidden
	}
	return h, nil
}

func (a *App) getHelp(ctx context.Context, id string) (domain.HelpRequest, error) {
	h, ok, err := a.store.GetHelpRequest(ctx, id)
	if err != nil {
		return domain.HelpRequest{}, storageErr("get help request", err)
	}
	if !ok {
		return domain.HelpRequest{}, ErrNotFound
	}
	return h, nil
}

func (a *App) UpdateHelp(ctx context.Context, id string, p HelpPatch) (domain.HelpRequest, error) {
	h, err := a.getHelp(ctx, id)
	if err != nil {
		return domain.HelpRequest{}, err
	}
	if p.Name != nil {
		h.Name = strings.TrimSpace(*p.Name)
	}
	if p.Phone != nil {
		h.Phone = strings.TrimSpace(*p.Phone)
	}
	if p.Type != nil {
		h.Type = strings.TrimSpace(*p.Type)
	}
	if p.Description != nil {
		h.Description = strings.TrimSpace(*p.Description)
	}
	if p.Location != nil {
		loc := *p.Location
		h.Location = &loc
	}
	if p.Status != nil {
		st, ok := domain.ParseHelpStatus(*p.Status)
		if !ok {
			return domain.HelpRequest{}, invalid("Invalid status")
		}
		h.Status = st
	}
	if err := a.store.SaveHelpRequest(ctx, &h); err != nil {
		return domain.HelpRequest{}, storageErr("save help request", err)
	}
	return h, nil
}

// SetHelpStatus moves a request to one of pending, in-progress or resolved.
func (a *App) SetHelpStatus(ctx context.Context, id, status string) (domain.HelpRequest, error) {
	if _, ok := domain.ParseHelpStatus(status); !ok {
		return domain.HelpRequest{}, invalid("Invalid status")
	}
	return a.UpdateHelp(ctx, id, HelpPatch{Status: &status})
}

func (a *App) ResolveHelp(ctx context.Context, id string) (domain.HelpRequest, error) {
	return a.SetHelpStatus(ctx, id, string(domain.HelpResolved))
}

func (a *App) DeleteHelp(ctx context.Context, id string) error {
	ok, err := a.store.DeleteHelpRequest(ctx, id)
	if err != nil {
		return storageErr("delete help request", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (a *App) HelpStats(ctx context.Context) (HelpStats, error) {
	var out HelpStats
	counts := []struct {
		dst    *int
		filter store.HelpFilter
	}{
		{&out.Total, store.HelpFilter{}},
		{&out.Pending, store.HelpFilter{Status: domain.HelpPending}},
		{&out.InProgress, store.HelpFilter{Status: domain.HelpInProgress}},
		{&out.Resolved, store.HelpFilter{Status: domain.HelpResolved}},
	}
	for _, c := range counts {
		n, err := a.store.CountHelpRequests(ctx, c.filter)
		if err != nil {
			return HelpStats{}, storageErr("count help requests", err)
		}
		*c.dst = n
	}
	return out, nil
}
