package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/myglasscase/glasscase/internal/app/model"
	"github.com/myglasscase/glasscase/internal/app/repository"
)

type mockShareLinkRepository struct {
	createFn      func(ctx context.Context, link *model.ShareLink) error
	getByIDFn     func(ctx context.Context, id uuid.UUID) (*model.ShareLink, error)
	getByShareFn  func(ctx context.Context, uniqueShareID string) (*model.ShareLink, error)
	listByOwnerFn func(ctx context.Context, ownerID uuid.UUID) ([]model.ShareLink, error)
	updateFn      func(ctx context.Context, link *model.ShareLink) error
	deleteFn      func(ctx context.Context, id, ownerID uuid.UUID) error
	eachFn        func(ctx context.Context, fn func(ids []string) error) error
}

func (m *mockShareLinkRepository) Create(ctx context.Context, link *model.ShareLink) error {
	if m.createFn != nil {
		return m.createFn(ctx, link)
	}
	return nil
}

func (m *mockShareLinkRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ShareLink, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrShareLinkNotFound
}

func (m *mockShareLinkRepository) GetByShareID(ctx context.Context, uniqueShareID string) (*model.ShareLink, error) {
	if m.getByShareFn != nil {
		return m.getByShareFn(ctx, uniqueShareID)
	}
	return nil, repository.ErrShareLinkNotFound
}

func (m *mockShareLinkRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.ShareLink, error) {
	if m.listByOwnerFn != nil {
		return m.listByOwnerFn(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockShareLinkRepository) Update(ctx context.Context, link *model.ShareLink) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, link)
	}
	return nil
}

func (m *mockShareLinkRepository) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id, ownerID)
	}
	return nil
}

func (m *mockShareLinkRepository) EachShareID(ctx context.Context, fn func(ids []string) error) error {
	if m.eachFn != nil {
		return m.eachFn(ctx, fn)
	}
	return nil
}

type mockInventoryItemRepository struct {
	listFn func(ctx context.Context, ownerID uuid.UUID) ([]model.InventoryItem, error)
	getFn  func(ctx context.Context, ownerID, itemID uuid.UUID) (*model.InventoryItem, error)
}

func (m *mockInventoryItemRepository) ListLiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.InventoryItem, error) {
	if m.listFn != nil {
		return m.listFn(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockInventoryItemRepository) GetLiveByOwner(ctx context.Context, ownerID, itemID uuid.UUID) (*model.InventoryItem, error) {
	if m.getFn != nil {
		return m.getFn(ctx, ownerID, itemID)
	}
	return nil, repository.ErrItemNotFound
}

type mockProfileRepository struct {
	displayNameFn func(ctx context.Context, userID uuid.UUID) (string, error)
}

func (m *mockProfileRepository) DisplayName(ctx context.Context, userID uuid.UUID) (string, error) {
	if m.displayNameFn != nil {
		return m.displayNameFn(ctx, userID)
	}
	return "", repository.ErrProfileNotFound
}

type mockEbayCredentialRepository struct {
	upsertFn       func(ctx context.Context, cred *model.EbayCredential) error
	getByUserFn    func(ctx context.Context, userID uuid.UUID) (*model.EbayCredential, error)
	updateTokensFn func(ctx context.Context, userID uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error
	deleteFn       func(ctx context.Context, userID uuid.UUID) error
	expiringFn     func(ctx context.Context, before, retryFailedBefore time.Time, limit int) ([]model.EbayCredential, error)
	markFailedFn   func(ctx context.Context, userID uuid.UUID, at time.Time) error
}

func (m *mockEbayCredentialRepository) Upsert(ctx context.Context, cred *model.EbayCredential) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, cred)
	}
	return nil
}

func (m *mockEbayCredentialRepository) GetByUser(ctx context.Context, userID uuid.UUID) (*model.EbayCredential, error) {
	if m.getByUserFn != nil {
		return m.getByUserFn(ctx, userID)
	}
	return nil, repository.ErrCredentialNotFound
}

func (m *mockEbayCredentialRepository) UpdateTokens(ctx context.Context, userID uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error {
	if m.updateTokensFn != nil {
		return m.updateTokensFn(ctx, userID, accessToken, refreshToken, expiresAt)
	}
	return nil
}

func (m *mockEbayCredentialRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID)
	}
	return nil
}

func (m *mockEbayCredentialRepository) ListExpiringBefore(ctx context.Context, before, retryFailedBefore time.Time, limit int) ([]model.EbayCredential, error) {
	if m.expiringFn != nil {
		return m.expiringFn(ctx, before, retryFailedBefore, limit)
	}
	return nil, nil
}

func (m *mockEbayCredentialRepository) MarkRefreshFailed(ctx context.Context, userID uuid.UUID, at time.Time) error {
	if m.markFailedFn != nil {
		return m.markFailedFn(ctx, userID, at)
	}
	return nil
}

type mockShareViewRepository struct {
	createFn func(ctx context.Context, event *model.ShareViewEvent) error
}

func (m *mockShareViewRepository) Create(ctx context.Context, event *model.ShareViewEvent) error {
	if m.createFn != nil {
		return m.createFn(ctx, event)
	}
	return nil
}

type mockViewPublisher struct {
	publishFn func(link *model.ShareLink, ip, userAgent string) error
}

func (m *mockViewPublisher) Publish(link *model.ShareLink, ip, userAgent string) error {
	if m.publishFn != nil {
		return m.publishFn(link, ip, userAgent)
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

func floatPtr(f float64) *float64 { return &f }
