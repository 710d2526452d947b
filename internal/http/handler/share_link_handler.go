package handler

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/myglasscase/glasscase/internal/app/model"
	"github.com/myglasscase/glasscase/internal/app/repository"
	"github.com/myglasscase/glasscase/internal/app/service"
	"github.com/myglasscase/glasscase/internal/http/middleware"
	"go.uber.org/zap"
)

// ShareLinkDeps groups dependencies required by the share link API.
type ShareLinkDeps struct {
	Logger    *zap.Logger
	ShareLink service.ShareLinkService
	// PublicURL is the web app origin share URLs are built on.
	PublicURL string
}

// ShareLinkHandler implements the owner-facing share link endpoints.
type ShareLinkHandler struct {
	logger    *zap.Logger
	links     service.ShareLinkService
	publicURL string
}

// NewShareLinkHandler creates a share link handler with the provided dependencies.
func NewShareLinkHandler(deps ShareLinkDeps) *ShareLinkHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShareLinkHandler{
		logger:    logger,
		links:     deps.ShareLink,
		publicURL: strings.TrimRight(deps.PublicURL, "/"),
	}
}

// Register wires share link routes behind auth.
func (h *ShareLinkHandler) Register(router fiber.Router, auth fiber.Handler) {
	links := router.Group("/api/share-links", auth)
	{
		links.Get("/", h.ListShareLinks)
		links.Post("/", h.CreateShareLink)
		links.Patch("/:id", h.UpdateShareLink)
		links.Delete("/:id", h.DeleteShareLink)
	}
}

// CreateShareLinkRequest represents the request body for creating a share link.
type CreateShareLinkRequest struct {
	Settings      *model.VisibilitySettings `json:"settings,omitempty"`
	ExpiresAt     *time.Time                `json:"expires_at,omitempty"`
	ExpiresInDays *int                      `json:"expires_in_days,omitempty" validate:"omitnil,min=1,max=3650,excluded_with=ExpiresAt"`
}

// UpdateShareLinkRequest represents the request body for patching a share link.
type UpdateShareLinkRequest struct {
	IsActive    *bool                     `json:"is_active,omitempty"`
	Settings    *model.VisibilitySettings `json:"settings,omitempty"`
	ExpiresAt   *time.Time                `json:"expires_at,omitempty" validate:"excluded_with=ClearExpiry"`
	ClearExpiry bool                      `json:"clear_expiry,omitempty"`
}

// ShareLinkResponse is the owner's view of a share link; settings are fully resolved.
type ShareLinkResponse struct {
	ID            uuid.UUID                `json:"id"`
	UniqueShareID string                   `json:"unique_share_id"`
	ShareURL      string                   `json:"share_url"`
	Settings      model.VisibilitySettings `json:"settings"`
	IsActive      bool                     `json:"is_active"`
	ViewCount     int64                    `json:"view_count"`
	CreatedAt     time.Time                `json:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at"`
	ExpiresAt     *time.Time               `json:"expires_at"`
}

func (h *ShareLinkHandler) toResponse(link *model.ShareLink) ShareLinkResponse {
	return ShareLinkResponse{
		ID:            link.ID,
		UniqueShareID: link.UniqueShareID,
		ShareURL:      h.publicURL + "/share/" + link.UniqueShareID,
		Settings:      link.Settings.Effective().Explicit(),
		IsActive:      link.IsActive,
		ViewCount:     link.ViewCount,
		CreatedAt:     link.CreatedAt,
		UpdatedAt:     link.UpdatedAt,
		ExpiresAt:     link.ExpiresAt,
	}
}

// CreateShareLink handles POST /api/share-links
func (h *ShareLinkHandler) CreateShareLink(c *fiber.Ctx) error {
	owner, ok := middleware.UserID(c)
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	var req CreateShareLinkRequest
	if err := bindJSON(c, &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}

	input := service.CreateShareLinkInput{ExpiresAt: req.ExpiresAt}
	if req.Settings != nil {
		input.Settings = *req.Settings
	}
	if req.ExpiresInDays != nil {
		expires := time.Now().UTC().Add(time.Duration(*req.ExpiresInDays) * 24 * time.Hour)
		input.ExpiresAt = &expires
	}

	link, err := h.links.CreateShareLink(userContext(c), owner, input)
	if err != nil {
		return h.mutationError(c, "create", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":    true,
		"share_link": h.toResponse(link),
	})
}

// ListShareLinks handles GET /api/share-links
func (h *ShareLinkHandler) ListShareLinks(c *fiber.Ctx) error {
	owner, ok := middleware.UserID(c)
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	links, err := h.links.ListShareLinks(userContext(c), owner)
	if err != nil {
		h.logger.Error("failed to list share links", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}

	response := make([]ShareLinkResponse, len(links))
	for i := range links {
		response[i] = h.toResponse(&links[i])
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"share_links": response,
		"count":       len(response),
	})
}

// UpdateShareLink handles PATCH /api/share-links/:id
func (h *ShareLinkHandler) UpdateShareLink(c *fiber.Ctx) error {
	owner, ok := middleware.UserID(c)
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid share link id")
	}

	var req UpdateShareLinkRequest
	if err := bindJSON(c, &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}

	link, err := h.links.UpdateShareLink(userContext(c), id, owner, service.UpdateShareLinkInput{
		IsActive:    req.IsActive,
		Settings:    req.Settings,
		ExpiresAt:   req.ExpiresAt,
		ClearExpiry: req.ClearExpiry,
	})
	if err != nil {
		return h.mutationError(c, "update", err)
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"share_link": h.toResponse(link),
	})
}

// DeleteShareLink handles DELETE /api/share-links/:id
func (h *ShareLinkHandler) DeleteShareLink(c *fiber.Ctx) error {
	owner, ok := middleware.UserID(c)
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid share link id")
	}

	if err := h.links.DeleteShareLink(userContext(c), id, owner); err != nil {
		return h.mutationError(c, "delete", err)
	}

	return c.JSON(fiber.Map{"success": true})
}

// mutationError surfaces the underlying message; the caller owns the data.
func (h *ShareLinkHandler) mutationError(c *fiber.Ctx, op string, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		status = fiber.StatusBadRequest
	case errors.Is(err, repository.ErrShareLinkNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, service.ErrNotOwner):
		status = fiber.StatusForbidden
	default:
		h.logger.Error("share link mutation failed", zap.String("op", op), zap.Error(err))
	}
	return errorJSON(c, status, err.Error())
}
