package app

import (
	"context"

	"floodwatch/pkg/domain"
	"floodwatch/pkg/reconcile"
)

const defaultSyncRunLimit = 50

// SyncGovData reconciles floods and shelters now, from the live feed or from
// the fixed mock dataset.
func (a *App) SyncGovData(ctx context.Context, useMock bool) reconcile.Summary {
	if useMock {
		return a.engine.SeedMockData(ctx)
	}
	return a.engine.SyncAll(ctx)
}

// SyncRuns returns recent reconciliation history, newest first.
func (a *App) SyncRuns(ctx context.Context, limit int) ([]domain.SyncRun, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultSyncRunLimit
	}
	runs, err := a.store.ListSyncRuns(ctx, limit)
	if err != nil {
		return nil, storageErr("list sync runs", err)
	}
	if runs == nil {
		runs = []domain.SyncRun{}
	}
	return runs, nil
}
