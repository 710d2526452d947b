package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/myglasscase/glasscase/internal/app/model"
	"github.com/myglasscase/glasscase/internal/app/repository"
	"github.com/myglasscase/glasscase/internal/infra/cache"
	"github.com/myglasscase/glasscase/internal/infra/postgres"
	"github.com/myglasscase/glasscase/internal/infra/prometheus"
	"go.uber.org/zap"
)

var (
	ErrShareLinkDisabled = errors.New("share link has been disabled")
	ErrShareLinkExpired  = errors.New("share link has expired")
	ErrNotOwner          = errors.New("share link belongs to another user")
	ErrInvalidInput      = errors.New("invalid input")
)

const (
	shareIDBytes    = 24
	shareIDAttempts = 3
	defaultShareTTL = 30 * time.Second
)

// ShareLinkService defines owner and public operations on share links.
type ShareLinkService interface {
	CreateShareLink(ctx context.Context, ownerID uuid.UUID, input CreateShareLinkInput) (*model.ShareLink, error)
	ListShareLinks(ctx context.Context, ownerID uuid.UUID) ([]model.ShareLink, error)
	UpdateShareLink(ctx context.Context, id, ownerID uuid.UUID, input UpdateShareLinkInput) (*model.ShareLink, error)
	DeleteShareLink(ctx context.Context, id, ownerID uuid.UUID) error
	Resolve(ctx context.Context, uniqueShareID string) (*model.ShareLink, error)
	Validate(link *model.ShareLink, now time.Time) error
}

// CreateShareLinkInput captures data required to create a share link.
type CreateShareLinkInput struct {
	Settings  model.VisibilitySettings
	ExpiresAt *time.Time
}

// UpdateShareLinkInput captures fields that can be changed on an existing link.
// Settings are merged flag by flag; ClearExpiry removes any expiry.
type UpdateShareLinkInput struct {
	IsActive    *bool
	Settings    *model.VisibilitySettings
	ExpiresAt   *time.Time
	ClearExpiry bool
}

// ShareLinkServiceConfig tunes the resolution path.
type ShareLinkServiceConfig struct {
	CacheTTL time.Duration
}

type shareLinkService struct {
	repo   repository.ShareLinkRepository
	index  *ShareIndex
	cache  cache.Cacher
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
	newID  func() (string, error)
}

// NewShareLinkService returns a service backed by repo. index and c may be nil.
func NewShareLinkService(repo repository.ShareLinkRepository, index *ShareIndex, c cache.Cacher, cfg ShareLinkServiceConfig, logger *zap.Logger) ShareLinkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultShareTTL
	}
	return &shareLinkService{
		repo:   repo,
		index:  index,
		cache:  c,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		newID:  newShareID,
	}
}

// newShareID returns 32 url-safe characters drawn from crypto/rand.
func newShareID() (string, error) {
	buf := make([]byte, shareIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (s *shareLinkService) CreateShareLink(ctx context.Context, ownerID uuid.UUID, input CreateShareLinkInput) (*model.ShareLink, error) {
	if ownerID == uuid.Nil {
		return nil, fmt.Errorf("create share link: %w: owner is required", ErrInvalidInput)
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(s.now()) {
		return nil, fmt.Errorf("create share link: %w: expiry must be in the future", ErrInvalidInput)
	}

	var lastErr error
	for attempt := 0; attempt < shareIDAttempts; attempt++ {
		shareID, err := s.newID()
		if err != nil {
			return nil, fmt.Errorf("generate share id: %w", err)
		}

		link := &model.ShareLink{
			UserID:        ownerID,
			UniqueShareID: shareID,
			Settings:      input.Settings,
			IsActive:      true,
			ExpiresAt:     input.ExpiresAt,
		}

		err = s.repo.Create(ctx, link)
		if err == nil {
			if s.index != nil {
				s.index.Add(link.UniqueShareID)
			}
			s.logger.Info("share link created",
				zap.String("id", link.ID.String()),
				zap.String("owner_id", ownerID.String()),
			)
			return link, nil
		}
		if !postgres.IsUniqueViolation(err) {
			return nil, fmt.Errorf("create share link: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("create share link: %w", lastErr)
}

func (s *shareLinkService) ListShareLinks(ctx context.Context, ownerID uuid.UUID) ([]model.ShareLink, error) {
	links, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list share links: %w", err)
	}
	return links, nil
}

// loadOwned fetches the link and enforces that ownerID owns it.
func (s *shareLinkService) loadOwned(ctx context.Context, id, ownerID uuid.UUID) (*model.ShareLink, error) {
	link, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load share link: %w", err)
	}
	if link.UserID != ownerID {
		return nil, ErrNotOwner
	}
	return link, nil
}

func (s *shareLinkService) UpdateShareLink(ctx context.Context, id, ownerID uuid.UUID, input UpdateShareLinkInput) (*model.ShareLink, error) {
	link, err := s.loadOwned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	if input.IsActive != nil {
		link.IsActive = *input.IsActive
	}
	if input.Settings != nil {
		link.Settings = link.Settings.Merge(*input.Settings)
	}
	switch {
	case input.ClearExpiry:
		link.ExpiresAt = nil
	case input.ExpiresAt != nil:
		if !input.ExpiresAt.After(s.now()) {
			return nil, fmt.Errorf("update share link: %w: expiry must be in the future", ErrInvalidInput)
		}
		link.ExpiresAt = input.ExpiresAt
	}

	if err := s.repo.Update(ctx, link); err != nil {
		return nil, fmt.Errorf("update share link: %w", err)
	}
	s.evict(ctx, link.UniqueShareID)
	return link, nil
}

func (s *shareLinkService) DeleteShareLink(ctx context.Context, id, ownerID uuid.UUID) error {
	link, err := s.loadOwned(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id, ownerID); err != nil {
		return fmt.Errorf("delete share link: %w", err)
	}
	s.evict(ctx, link.UniqueShareID)
	return nil
}

func (s *shareLinkService) Resolve(ctx context.Context, uniqueShareID string) (*model.ShareLink, error) {
	uniqueShareID = strings.TrimSpace(uniqueShareID)
	if uniqueShareID == "" {
		return nil, fmt.Errorf("resolve share link: %w: share id is required", ErrInvalidInput)
	}

	if s.index != nil && !s.index.MightContain(uniqueShareID) {
		prometheus.ShareIndexRejections.Inc()
		return nil, fmt.Errorf("resolve share link: %w", repository.ErrShareLinkNotFound)
	}

	key := cache.KeyShareLink(uniqueShareID)
	if s.cache != nil {
		var cached model.ShareLink
		err := s.cache.Get(ctx, key, &cached)
		switch {
		case err == nil:
			prometheus.ShareCacheLookups.WithLabelValues("hit").Inc()
			return &cached, nil
		case errors.Is(err, cache.ErrMiss):
			prometheus.ShareCacheLookups.WithLabelValues("miss").Inc()
		default:
			prometheus.ShareCacheLookups.WithLabelValues("error").Inc()
			s.logger.Warn("share cache read failed", zap.Error(err))
		}
	}

	link, err := s.repo.GetByShareID(ctx, uniqueShareID)
	if err != nil {
		return nil, fmt.Errorf("resolve share link: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, link, s.ttl); err != nil {
			s.logger.Warn("share cache write failed", zap.Error(err))
		}
	}
	return link, nil
}

// Validate checks Disabled before Expired, so an inactive link is always reported as disabled.
func (s *shareLinkService) Validate(link *model.ShareLink, now time.Time) error {
	if !link.IsActive {
		return ErrShareLinkDisabled
	}
	if link.Expired(now) {
		return ErrShareLinkExpired
	}
	return nil
}

func (s *shareLinkService) evict(ctx context.Context, uniqueShareID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.KeyShareLink(uniqueShareID)); err != nil {
		s.logger.Warn("share cache evict failed", zap.String("share_id", uniqueShareID), zap.Error(err))
	}
}
