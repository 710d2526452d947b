package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/myglasscase/glasscase/internal/app/model"
	"github.com/myglasscase/glasscase/internal/app/repository"
	"github.com/myglasscase/glasscase/internal/app/service"
	"github.com/myglasscase/glasscase/internal/http/middleware"
	"go.uber.org/zap"
)

// EbayListingDeps groups dependencies required by the eBay listing endpoints.
type EbayListingDeps struct {
	Logger   *zap.Logger
	Listings service.EbayListingService
}

// EbayListingHandler lists inventory items on eBay for their owner.
type EbayListingHandler struct {
	logger   *zap.Logger
	listings service.EbayListingService
}

// NewEbayListingHandler creates a listing handler with the provided dependencies.
func NewEbayListingHandler(deps EbayListingDeps) *EbayListingHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EbayListingHandler{logger: logger, listings: deps.Listings}
}

// Register mounts the listing routes behind auth.
func (h *EbayListingHandler) Register(router fiber.Router, auth fiber.Handler) {
	api := router.Group("/api/listings", auth)
	{
		api.Get("/", h.ListListings)
		api.Post("/", h.CreateListing)
	}
}

// CreateListingRequest is the body of POST /api/listings.
type CreateListingRequest struct {
	ItemID         string   `json:"item_id" validate:"required,uuid"`
	Title          string   `json:"title" validate:"required,max=80"`
	Description    string   `json:"description" validate:"required"`
	CategoryID     string   `json:"category_id" validate:"required,numeric"`
	StartPrice     float64  `json:"start_price" validate:"gt=0"`
	BuyItNowPrice  *float64 `json:"buy_it_now_price" validate:"omitnil,gt=0"`
	Duration       int      `json:"duration" validate:"omitempty,oneof=1 3 5 7 10"`
	Condition      string   `json:"condition"`
	ShippingCost   *float64 `json:"shipping_cost" validate:"omitnil,gte=0"`
	PaymentMethods []string `json:"payment_methods"`
	Photos         []string `json:"photos" validate:"max=12,dive,url"`
}

// EbayListingResponse is the JSON form of a stored listing.
type EbayListingResponse struct {
	ID              uuid.UUID `json:"id"`
	InventoryItemID uuid.UUID `json:"inventory_item_id"`
	ListingID       string    `json:"listing_id"`
	ListingURL      string    `json:"listing_url"`
	ListingType     string    `json:"listing_type"`
	Title           string    `json:"title"`
	StartPrice      float64   `json:"start_price"`
	BuyItNowPrice   *float64  `json:"buy_it_now_price,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// CreateListing handles POST /api/listings
func (h *EbayListingHandler) CreateListing(c *fiber.Ctx) error {
	owner, ok := middleware.UserID(c)
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	var req CreateListingRequest
	if err := bindJSON(c, &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	itemID, err := uuid.Parse(req.ItemID)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid item id")
	}

	listing, err := h.listings.CreateListing(userContext(c), owner, service.ListingInput{
		ItemID:         itemID,
		Title:          req.Title,
		Description:    req.Description,
		CategoryID:     req.CategoryID,
		StartPrice:     req.StartPrice,
		BuyItNowPrice:  req.BuyItNowPrice,
		DurationDays:   req.Duration,
		Condition:      req.Condition,
		ShippingCost:   req.ShippingCost,
		PaymentMethods: req.PaymentMethods,
		Photos:         req.Photos,
	})
	if err != nil {
		return h.listingError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"listing": toListingResponse(listing),
	})
}

// ListListings handles GET /api/listings
func (h *EbayListingHandler) ListListings(c *fiber.Ctx) error {
	owner, ok := middleware.UserID(c)
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	listings, err := h.listings.ListListings(userContext(c), owner)
	if err != nil {
		h.logger.Error("failed to list ebay listings", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to load eBay listings")
	}

	out := make([]EbayListingResponse, 0, len(listings))
	for i := range listings {
		out = append(out, toListingResponse(&listings[i]))
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"listings": out,
		"count":    len(out),
	})
}

func (h *EbayListingHandler) listingError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrItemNotFound):
		return errorJSON(c, fiber.StatusNotFound, "Inventory item not found")
	case errors.Is(err, service.ErrReauthRequired):
		return errorJSON(c, fiber.StatusUnauthorized, "eBay authentication required. Please reconnect your eBay account.")
	case errors.Is(err, service.ErrEbayNotConfigured):
		return errorJSON(c, fiber.StatusServiceUnavailable, "eBay API credentials not configured")
	case errors.Is(err, service.ErrListingRejected):
		return errorJSON(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrListingFailed):
		return errorJSON(c, fiber.StatusBadGateway, "Failed to create eBay listing")
	default:
		h.logger.Error("ebay listing failed", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to create eBay listing")
	}
}

func toListingResponse(l *model.EbayListing) EbayListingResponse {
	return EbayListingResponse{
		ID:              l.ID,
		InventoryItemID: l.InventoryItemID,
		ListingID:       l.EbayItemID,
		ListingURL:      l.ListingURL,
		ListingType:     l.ListingType,
		Title:           l.Title,
		StartPrice:      l.StartPrice,
		BuyItNowPrice:   l.BuyItNowPrice,
		Status:          l.Status,
		CreatedAt:       l.CreatedAt,
	}
}
