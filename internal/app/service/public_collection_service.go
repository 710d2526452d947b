package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/myglasscase/glasscase/internal/app/collection"
	"github.com/myglasscase/glasscase/internal/app/model"
	"github.com/myglasscase/glasscase/internal/app/repository"
	"go.uber.org/zap"
)

// ErrShareIDRequired is returned when a public request carries no share id.
var ErrShareIDRequired = errors.New("share id is required")

// ViewRequest describes one anonymous request for a shared collection.
type ViewRequest struct {
	ShareID   string
	IP        string
	UserAgent string
}

// SharedCollection is the redacted collection returned to an anonymous viewer.
type SharedCollection struct {
	OwnerName string
	Items     []model.PublicItem
	Stats     collection.Stats
	Settings  model.Visibility
	SharedAt  time.Time
}

// PublicCollectionService resolves share links for anonymous viewers.
type PublicCollectionService interface {
	GetSharedCollection(ctx context.Context, req ViewRequest) (*SharedCollection, error)
}

type publicCollectionService struct {
	links     ShareLinkService
	items     repository.InventoryItemRepository
	profiles  repository.ProfileRepository
	publisher ViewPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewPublicCollectionService wires the resolver. publisher may be nil.
func NewPublicCollectionService(
	links ShareLinkService,
	items repository.InventoryItemRepository,
	profiles repository.ProfileRepository,
	publisher ViewPublisher,
	logger *zap.Logger,
) PublicCollectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &publicCollectionService{
		links:     links,
		items:     items,
		profiles:  profiles,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// GetSharedCollection stops at the first failing step; filtering and aggregation cannot fail.
func (s *publicCollectionService) GetSharedCollection(ctx context.Context, req ViewRequest) (*SharedCollection, error) {
	shareID := strings.TrimSpace(req.ShareID)
	if shareID == "" {
		return nil, ErrShareIDRequired
	}

	link, err := s.links.Resolve(ctx, shareID)
	if err != nil {
		return nil, err
	}

	if err := s.links.Validate(link, s.now()); err != nil {
		return nil, err
	}

	ownerName := s.ownerName(ctx, link)

	items, err := s.items.ListLiveByOwner(ctx, link.UserID)
	if err != nil {
		return nil, fmt.Errorf("load shared items: %w", err)
	}

	public := collection.Filter(items, link.Settings)
	result := &SharedCollection{
		OwnerName: ownerName,
		Items:     public,
		Stats:     collection.Summarize(public),
		Settings:  link.Settings.Effective(),
		SharedAt:  link.CreatedAt,
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(link, req.IP, req.UserAgent); err != nil {
			s.logger.Warn("failed to publish share view event",
				zap.String("share_link_id", link.ID.String()),
				zap.Error(err))
		}
	}

	return result, nil
}

// ownerName never fails; a missing profile or blank name yields the anonymous label.
func (s *publicCollectionService) ownerName(ctx context.Context, link *model.ShareLink) string {
	name, err := s.profiles.DisplayName(ctx, link.UserID)
	if err != nil {
		if !errors.Is(err, repository.ErrProfileNotFound) {
			s.logger.Warn("owner profile lookup failed",
				zap.String("owner_id", link.UserID.String()),
				zap.Error(err))
		}
		return model.AnonymousCollector
	}
	if name = strings.TrimSpace(name); name == "" {
		return model.AnonymousCollector
	}
	return name
}
