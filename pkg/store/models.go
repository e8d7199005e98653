package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"floodwatch/pkg/domain"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Name         string `gorm:"not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string
	Role         string    `gorm:"not null;default:user"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type FloodModel struct {
	ID          string `gorm:"primaryKey"`
	Title       string `gorm:"not null;index:idx_flood_natural_key,priority:1"`
	Description string
	Severity    string    `gorm:"not null;default:low;index"`
	Lat         float64   `gorm:"not null;index:idx_flood_natural_key,priority:2"`
	Lng         float64   `gorm:"not null;index:idx_flood_natural_key,priority:3"`
	Status      string    `gorm:"not null;default:active;index"`
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time `gorm:"not null"`
}

type ShelterModel struct {
	ID               string `gorm:"primaryKey"`
	Name             string `gorm:"not null;index:idx_shelter_natural_key,priority:1"`
	Capacity         *int
	CurrentOccupancy int `gorm:"not null;default:0"`
	Facilities       string
	Contact          string
	Lat              float64   `gorm:"not null;index:idx_shelter_natural_key,priority:2"`
	Lng              float64   `gorm:"not null;index:idx_shelter_natural_key,priority:3"`
	Status           string    `gorm:"not null;default:available;index"`
	CreatedAt        time.Time `gorm:"not null;index"`
	UpdatedAt        time.Time `gorm:"not null"`
}

type MissingPersonModel struct {
	ID          string `gorm:"primaryKey"`
	Name        string `gorm:"not null"`
	Age         *int
	LastSeen    string
	Description string `gorm:"type:text"`
	PhotoURL    string
	PhotoKey    string
	Contact     string
	Status      string    `gorm:"not null;default:missing;index"`
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time `gorm:"not null"`
}

type HelpRequestModel struct {
	ID          string `gorm:"primaryKey"`
	UserID      string `gorm:"index"`
	Name        string
	Phone       string
	Type        string `gorm:"index"`
	Description string `gorm:"type:text"`
	Lat         *float64
	Lng         *float64
	Status      string    `gorm:"not null;default:pending;index"`
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time `gorm:"not null"`
}

type SyncRunModel struct {
	ID         string `gorm:"primaryKey"`
	Collection string `gorm:"not null;index"`
	Source     string `gorm:"not null"`
	Trigger    string
	Success    bool
	Message    string
	Received   int
	Created    int
	Updated    int
	Skipped    int
	Failed     int
	Details    datatypes.JSON `gorm:"type:jsonb"`
	StartedAt  time.Time      `gorm:"not null;index"`
	FinishedAt time.Time
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Name:         m.Name,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func floodToModel(f domain.Flood) FloodModel {
	return FloodModel{
		ID:          f.ID,
		Title:       f.Title,
		Description: f.Description,
		Severity:    string(f.Severity),
		Lat:         f.Location.Lat,
		Lng:         f.Location.Lng,
		Status:      string(f.Status),
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

func floodFromModel(m FloodModel) domain.Flood {
	return domain.Flood{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		Severity:    domain.Severity(m.Severity),
		Location:    domain.Location{Lat: m.Lat, Lng: m.Lng},
		Status:      domain.FloodStatus(m.Status),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func shelterToModel(s domain.Shelter) ShelterModel {
	return ShelterModel{
		ID:               s.ID,
		Name:             s.Name,
		Capacity:         s.Capacity,
		CurrentOccupancy: s.CurrentOccupancy,
		Facilities:       s.Facilities,
		Contact:          s.Contact,
		Lat:              s.Location.Lat,
		Lng:              s.Location.Lng,
		Status:           string(s.Status),
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

func shelterFromModel(m ShelterModel) domain.Shelter {
	return domain.Shelter{
		ID:               m.ID,
		Name:             m.Name,
		Capacity:         m.Capacity,
		CurrentOccupancy: m.CurrentOccupancy,
		Facilities:       m.Facilities,
		Contact:          m.Contact,
		Location:         domain.Location{Lat: m.Lat, Lng: m.Lng},
		Status:           domain.ShelterStatus(m.Status),
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func missingToModel(p domain.MissingPerson) MissingPersonModel {
	return MissingPersonModel{
		ID:          p.ID,
		Name:        p.Name,
		Age:         p.Age,
		LastSeen:    p.LastSeen,
		Description: p.Description,
		PhotoURL:    p.PhotoURL,
		PhotoKey:    p.PhotoKey,
		Contact:     p.Contact,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func missingFromModel(m MissingPersonModel) domain.MissingPerson {
	return domain.MissingPerson{
		ID:          m.ID,
		Name:        m.Name,
		Age:         m.Age,
		LastSeen:    m.LastSeen,
		Description: m.Description,
		PhotoURL:    m.PhotoURL,
		PhotoKey:    m.PhotoKey,
		Contact:     m.Contact,
		Status:      domain.MissingStatus(m.Status),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func helpToModel(h domain.HelpRequest) HelpRequestModel {
	m := HelpRequestModel{
		ID:          h.ID,
		UserID:      h.UserID,
		Name:        h.Name,
		Phone:       h.Phone,
		Type:        h.Type,
		Description: h.Description,
		Status:      string(h.Status),
		CreatedAt:   h.CreatedAt,
		UpdatedAt:   h.UpdatedAt,
	}
	if h.Location != nil {
		lat, lng := h.Location.Lat, h.Location.Lng
		m.Lat, m.Lng = &lat, &lng
	}
	return m
}

func helpFromModel(m HelpRequestModel) domain.HelpRequest {
	h := domain.HelpRequest{
		ID:          m.ID,
		UserID:      m.UserID,
		Name:        m.Name,
		Phone:       m.Phone,
		Type:        m.Type,
		Description: m.Description,
		Status:      domain.HelpStatus(m.Status),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.Lat != nil && m.Lng != nil {
		h.Location = &domain.Location{Lat: *m.Lat, Lng: *m.Lng}
	}
	return h
}

func syncRunToModel(r domain.SyncRun) (SyncRunModel, error) {
	var details datatypes.JSON
	if len(r.Details) > 0 {
		raw, err := json.Marshal(r.Details)
		if err != nil {
			return SyncRunModel{}, err
		}
		details = datatypes.JSON(raw)
	}
	return SyncRunModel{
		ID:         r.ID,
		Collection: string(r.Collection),
		Source:     r.Source,
		Trigger:    r.Trigger,
		Success:    r.Success,
		Message:    r.Message,
		Received:   r.Received,
		Created:    r.Created,
		Updated:    r.Updated,
		Skipped:    r.Skipped,
		Failed:     r.Failed,
		Details:    details,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}, nil
}

func syncRunFromModel(m SyncRunModel) domain.SyncRun {
	r := domain.SyncRun{
		ID:         m.ID,
		Collection: domain.Collection(m.Collection),
		Source:     m.Source,
		Trigger:    m.Trigger,
		Success:    m.Success,
		Message:    m.Message,
		Received:   m.Received,
		Created:    m.Created,
		Updated:    m.Updated,
		Skipped:    m.Skipped,
		Failed:     m.Failed,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
	}
	if len(m.Details) > 0 {
		_ = json.Unmarshal(m.Details, &r.Details)
	}
	return r
}
