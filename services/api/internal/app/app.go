package app

import (
	"errors"
	"strings"
	"time"

	"floodwatch/pkg/reconcile"
	"floodwatch/pkg/storage"
	"floodwatch/pkg/store"
)

const defaultPhotoURLTTL = time.Hour

// Config holds runtime dependencies for the core application.
type Config struct {
	Store       store.Store
	Sessions    *store.JWTSessionStore
	Engine      *reconcile.Engine
	Photos      storage.ObjectStore
	Environment string
	PhotoURLTTL time.Duration
}

// App holds the account, record and sync use cases behind the HTTP API.
type App struct {
	store       store.Store
	sessions    *store.JWTSessionStore
	engine      *reconcile.Engine
	photos      storage.ObjectStore
	environment string
	photoURLTTL time.Duration
	now         func() time.Time
}

// New constructs the application. Photos may be nil.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.Engine == nil {
		return nil, errors.New("reconciliation engine is required")
	}
	if cfg.PhotoURLTTL <= 0 {
		cfg.PhotoURLTTL = defaultPhotoURLTTL
	}
	return &App{
		store:       cfg.Store,
		sessions:    cfg.Sessions,
		engine:      cfg.Engine,
		photos:      cfg.Photos,
		environment: strings.ToLower(strings.TrimSpace(cfg.Environment)),
		photoURLTTL: cfg.PhotoURLTTL,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// IsDevelopment reports whether development-only operations are enabled.
func (a *App) IsDevelopment() bool {
	return a.environment == "development"
}
