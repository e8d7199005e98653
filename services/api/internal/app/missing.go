package app

import (
	"context"
	"errors"
	"io"
	"strings"

	"floodwatch/internal/util"
	"floodwatch/pkg/domain"
	"floodwatch/pkg/storage"
	"floodwatch/pkg/store"
)

type MissingInput struct {
	Name        string
	Age         *int
	LastSeen    string
	Description string
	PhotoURL    string
	Contact     string
}

// MissingPatch holds the fields to change; nil means unchanged.
type MissingPatch struct {
	Name        *string
	Age         *int
	LastSeen    *string
	Description *string
	Contact     *string
	Status      *string
}

type MissingStats struct {
	Total   int `json:"total"`
	Missing int `json:"missing"`
	Found   int `json:"found"`
}

// ReportMissing files a public missing-person report.
func (a *App) ReportMissing(ctx context.Context, in MissingInput) (domain.MissingPerson, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.MissingPerson{}, invalid("Name is required")
	}
	if in.Age != nil && *in.Age < 0 {
		return domain.MissingPerson{}, invalid("Age must not be negative")
	}
	p := domain.MissingPerson{
		Name:        name,
		Age:         in.Age,
		LastSeen:    strings.TrimSpace(in.LastSeen),
		Description: strings.TrimSpace(in.Description),
		PhotoURL:    strings.TrimSpace(in.PhotoURL),
		Contact:     strings.TrimSpace(in.Contact),
		Status:      domain.MissingOpen,
	}
	if err := a.store.SaveMissingPerson(ctx, &p); err != nil {
		return domain.MissingPerson{}, storageErr("save missing person", err)
	}
	return p, nil
}

// ListMissing returns reports, optionally filtered by a case-insensitive
// name substring.
func (a *App) ListMissing(ctx context.Context, name string) ([]domain.MissingPerson, error) {
	people, err := a.store.ListMissingPersons(ctx, store.MissingFilter{NameContains: strings.TrimSpace(name)})
	if err != nil {
		return nil, storageErr("list missing persons", err)
	}
	for i := range people {
		a.resolvePhoto(ctx, &people[i])
	}
	return people, nil
}

func (a *App) GetMissing(ctx context.Context, id string) (domain.MissingPerson, error) {
	p, err := a.getMissing(ctx, id)
	if err != nil {
		return domain.MissingPerson{}, err
	}
	a.resolvePhoto(ctx, &p)
	return p, nil
}

func (a *App) getMissing(ctx context.Context, id string) (domain.MissingPerson, error) {
	p, ok, err := a.store.GetMissingPerson(ctx, id)
	if err != nil {
		return domain.MissingPerson{}, storageErr("get missing person", err)
	}
	if !ok {
		return domain.MissingPerson{}, ErrNotFound
	}
	return p, nil
}

func (a *App) MarkFound(ctx context.Context, id string) (domain.MissingPerson, error) {
	found := string(domain.MissingFound)
	return a.UpdateMissing(ctx, id, MissingPatch{Status: &found})
}

func (a *App) UpdateMissing(ctx context.Context, id string, patch MissingPatch) (domain.MissingPerson, error) {
	p, err := a.getMissing(ctx, id)
	if err != nil {
		return domain.MissingPerson{}, err
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return domain.MissingPerson{}, invalid("Name is required")
		}
		p.Name = name
	}
	if patch.Age != nil {
		if *patch.Age < 0 {
			return domain.MissingPerson{}, invalid("Age must not be negative")
		}
		age := *patch.Age
		p.Age = &age
	}
	if patch.LastSeen != nil {
		p.LastSeen = strings.TrimSpace(*patch.LastSeen)
	}
	if patch.Description != nil {
		p.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Contact != nil {
		p.Contact = strings.TrimSpace(*patch.Contact)
	}
	if patch.Status != nil {
		switch st := domain.MissingStatus(strings.ToLower(strings.TrimSpace(*patch.Status))); st {
		case domain.MissingOpen, domain.MissingFound:
			p.Status = st
		default:
			return domain.MissingPerson{}, invalid("Invalid status")
		}
	}
	if err := a.store.SaveMissingPerson(ctx, &p); err != nil {
		return domain.MissingPerson{}, storageErr("save missing person", err)
	}
	a.resolvePhoto(ctx, &p)
	return p, nil
}

// DeleteMissing removes the report and, best effort, its stored photo.
func (a *App) DeleteMissing(ctx context.Context, id string) error {
	p, err := a.getMissing(ctx, id)
	if err != nil {
		return err
	}
	if _, err := a.store.DeleteMissingPerson(ctx, id); err != nil {
		return storageErr("delete missing person", err)
	}
	if p.PhotoKey != "" && a.photos != nil {
		if err := a.photos.Delete(ctx, p.PhotoKey); err != nil {
			util.LoggerFromContext(ctx).Warn("photo delete failed", "missing_id", id, "err", err)
		}
	}
	return nil
}

// UploadPhoto stores an image for the report and returns it with a fresh
// presigned photo URL.
func (a *App) UploadPhoto(ctx context.Context, id string, r io.Reader, size int64, contentType string) (domain.MissingPerson, error) {
	if a.photos == nil {
		return domain.MissingPerson{}, ErrPhotosDisabled
	}
	if size <= 0 || size > storage.MaxPhotoBytes {
		return domain.MissingPerson{}, invalid("Photo must be between 1 byte and 5 MB")
	}
	p, err := a.getMissing(ctx, id)
	if err != nil {
		return domain.MissingPerson{}, err
	}
	key, err := storage.PhotoKey(p.ID, contentType)
	if errors.Is(err, storage.ErrUnsupportedImage) {
		return domain.MissingPerson{}, invalid("%s", err.Error())
	}
	if err != nil {
		return domain.MissingPerson{}, err
	}
	if err := a.photos.Put(ctx, key, r, size, contentType); err != nil {
		return domain.MissingPerson{}, storageErr("upload photo", err)
	}
	if p.PhotoKey != "" && p.PhotoKey != key {
		if err := a.photos.Delete(ctx, p.PhotoKey); err != nil {
			util.LoggerFromContext(ctx).Warn("old photo delete failed", "missing_id", id, "err", err)
		}
	}
	p.PhotoKey = key
	p.PhotoURL = ""
	if err := a.store.SaveMissingPerson(ctx, &p); err != nil {
		return domain.MissingPerson{}, storageErr("save missing person", err)
	}
	a.resolvePhoto(ctx, &p)
	return p, nil
}

func (a *App) resolvePhoto(ctx context.Context, p *domain.MissingPerson) {
	if p.PhotoKey == "" || a.photos == nil {
		return
	}
	u, err := a.photos.PresignGet(ctx, p.PhotoKey, a.photoURLTTL)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("presign photo failed", "missing_id", p.ID, "err", err)
		return
	}
	p.PhotoURL = u
}

func (a *App) MissingStats(ctx context.Context) (MissingStats, error) {
	var out MissingStats
	counts := []struct {
		dst    *int
		filter store.MissingFilter
	}{
		{&out.Total, store.MissingFilter{}},
		{&out.Missing, store.MissingFilter{Status: domain.MissingOpen}},
		{&out.Found, store.MissingFilter{Status: domain.MissingFound}},
	}
	for _, c := range counts {
		n, err := a.store.CountMissingPersons(ctx, c.filter)
		if err != nil {
			return MissingStats{}, storageErr("count missing persons", err)
		}
		*c.dst = n
	}
	return out, nil
}
