package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/myglasscase/glasscase/internal/app/model"
	"github.com/myglasscase/glasscase/internal/app/repository"
	"github.com/myglasscase/glasscase/internal/app/service"
	"github.com/myglasscase/glasscase/internal/infra/prometheus"
	"go.uber.org/zap"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck checks one backing dependency.
type HealthCheck func(ctx context.Context) error

// PublicDeps groups dependencies required by the anonymous endpoints.
type PublicDeps struct {
	Logger      *zap.Logger
	Collections service.PublicCollectionService
	Checks      map[string]HealthCheck
}

// PublicHandler serves health and shared-collection requests.
type PublicHandler struct {
	logger      *zap.Logger
	collections service.PublicCollectionService
	checks      map[string]HealthCheck
}

// NewPublicHandler creates a public handler with the provided dependencies.
func NewPublicHandler(deps PublicDeps) *PublicHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublicHandler{
		logger:      logger,
		collections: deps.Collections,
		checks:      deps.Checks,
	}
}

// Register wires public routes. limit guards the shared-collection endpoint and may be nil.
func (h *PublicHandler) Register(router fiber.Router, limit fiber.Handler) {
	router.Get("/", h.Health)
	router.Get("/health", h.Health)

	handlers := []fiber.Handler{h.GetSharedCollection}
	if limit != nil {
		handlers = append([]fiber.Handler{limit}, handlers...)
	}
	router.Get("/share-collection", handlers...)
}

// Health reports liveness plus the state of each backing dependency.
func (h *PublicHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(userContext(c), healthCheckTimeout)
	defer cancel()

	status := "ok"
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			deps[name] = "unavailable"
			status = "degraded"
			continue
		}
		deps[name] = "ok"
	}

	code := fiber.StatusOK
	if status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"service":      "glasscase",
		"status":       status,
		"dependencies": deps,
		"time":         time.Now().UTC().Format(time.RFC3339),
	})
}

// OwnerBody attributes a shared collection.
type OwnerBody struct {
	Name string `json:"name"`
}

// StatsBody carries the optional aggregates of a shared collection.
type StatsBody struct {
	Categories    []string `json:"categories"`
	Manufacturers []string `json:"manufacturers"`
	OldestYear    *int     `json:"oldestYear"`
	NewestYear    *int     `json:"newestYear"`
}

// SettingsBody echoes the effective visibility flags.
type SettingsBody struct {
	HidePurchasePrice bool `json:"hidePurchasePrice"`
	HidePurchaseDate  bool `json:"hidePurchaseDate"`
	HideLocation      bool `json:"hideLocation"`
	HideDescription   bool `json:"hideDescription"`
}

// SharedCollectionBody is the collection payload of a successful public read.
type SharedCollectionBody struct {
	Owner      OwnerBody          `json:"owner"`
	Items      []model.PublicItem `json:"items"`
	TotalItems int                `json:"totalItems"`
	TotalValue float64            `json:"totalValue"`
	Stats      StatsBody          `json:"stats"`
	Settings   SettingsBody       `json:"settings"`
	SharedAt   time.Time          `json:"sharedAt"`
}

// SharedCollectionResponse is the 200 body of GET /share-collection.
type SharedCollectionResponse struct {
	Success    bool                 `json:"success"`
	Collection SharedCollectionBody `json:"collection"`
}

// GetSharedCollection handles GET /share-collection?shareId=
func (h *PublicHandler) GetSharedCollection(c *fiber.Ctx) error {
	shared, err := h.collections.GetSharedCollection(userContext(c), service.ViewRequest{
		ShareID:   c.Query("shareId"),
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	})
	if err != nil {
		status, msg, outcome := classifyResolveError(err)
		prometheus.ShareResolutions.WithLabelValues(outcome).Inc()
		if status == fiber.StatusInternalServerError {
			h.logger.Error("failed to resolve shared collection", zap.Error(err))
		}
		return errorJSON(c, status, msg)
	}
	prometheus.ShareResolutions.WithLabelValues("ok").Inc()

	items := shared.Items
	if items == nil {
		items = []model.PublicItem{}
	}

	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(SharedCollectionResponse{
		Success: true,
		Collection: SharedCollectionBody{
			Owner:      OwnerBody{Name: shared.OwnerName},
			Items:      items,
			TotalItems: shared.Stats.TotalItems,
			TotalValue: shared.Stats.TotalValue,
			Stats: StatsBody{
				Categories:    shared.Stats.Categories,
				Manufacturers: shared.Stats.Manufacturers,
				OldestYear:    shared.Stats.OldestYear,
				NewestYear:    shared.Stats.NewestYear,
			},
			Settings: SettingsBody{
				HidePurchasePrice: shared.Settings.HidePurchasePrice,
				HidePurchaseDate:  shared.Settings.HidePurchaseDate,
				HideLocation:      shared.Settings.HideLocation,
				HideDescription:   shared.Settings.HideDescription,
			},
			SharedAt: shared.SharedAt,
		},
	})
}

// classifyResolveError maps a resolver failure onto the public status, message and metric label.
func classifyResolveError(err error) (int, string, string) {
	switch {
	case errors.Is(err, service.ErrShareIDRequired), errors.Is(err, service.ErrInvalidInput):
		return fiber.StatusBadRequest, "Share ID is required", "bad_request"
	case errors.Is(err, repository.ErrShareLinkNotFound):
		return fiber.StatusNotFound, "Share link not found", "not_found"
	case errors.Is(err, service.ErrShareLinkDisabled):
		return fiber.StatusForbidden, "Share link has been disabled", "disabled"
	case errors.Is(err, service.ErrShareLinkExpired):
		return fiber.StatusGone, "Share link has expired", "expired"
	default:
		return fiber.StatusInternalServerError, "Failed to fetch shared collection", "error"
	}
}
