package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/myglasscase/glasscase/internal/app/repository"
	"github.com/myglasscase/glasscase/internal/app/service"
	"github.com/myglasscase/glasscase/internal/http/middleware"
	"github.com/myglasscase/glasscase/internal/http/view"
	"go.uber.org/zap"
)

// EbayDeps groups dependencies required by the eBay connection endpoints.
type EbayDeps struct {
	Logger *zap.Logger
	Ebay   service.EbayAuthService
	// AppURL is linked from the callback page.
	AppURL string
}

// EbayHandler implements the eBay OAuth endpoints.
type EbayHandler struct {
	logger *zap.Logger
	ebay   service.EbayAuthService
	appURL string
}

// NewEbayHandler creates an eBay handler with the provided dependencies.
func NewEbayHandler(deps EbayDeps) *EbayHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EbayHandler{
		logger: logger,
		ebay:   deps.Ebay,
		appURL: deps.AppURL,
	}
}

// Register wires the callback publicly and everything else behind auth.
func (h *EbayHandler) Register(router fiber.Router, auth fiber.Handler) {
	router.Get("/ebay/callback", h.Callback)

	api := router.Group("/api/ebay", auth)
	{
		api.Post("/auth-url", h.AuthURL)
		api.Get("/status", h.Status)
		api.Post("/refresh", h.Refresh)
		api.Delete("/connection", h.Disconnect)
		api.Get("/auth/wait", h.WaitForAuthorization)
		api.Delete("/auth/pending", h.CancelAuthorization)
	}
}

// AuthURL handles POST /api/ebay/auth-url
func (h *EbayHandler) AuthURL(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	req, err := h.ebay.AuthorizationURL(userContext(c), userID)
	if err != nil {
		return h.apiError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"auth_url": req.URL,
		"state":    req.State,
	})
}

// Status handles GET /api/ebay/status
func (h *EbayHandler) Status(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	status, err := h.ebay.Status(userContext(c), userID)
	if err != nil {
		return h.apiError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"connected":  status.Connected,
		"expires_at": status.ExpiresAt,
	})
}

// Refresh handles POST /api/ebay/refresh
func (h *EbayHandler) Refresh(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	refreshed, err := h.ebay.RefreshToken(userContext(c), userID)
	if err != nil {
		return h.apiError(c, err)
	}

	msg := "Token still valid"
	if refreshed {
		msg = "Token refreshed"
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"refreshed": refreshed,
		"message":   msg,
	})
}

// Disconnect handles DELETE /api/ebay/connection
func (h *EbayHandler) Disconnect(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	if err := h.ebay.Disconnect(userContext(c), userID); err != nil {
		return h.apiError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// WaitForAuthorization handles GET /api/ebay/auth/wait?state=&timeout=
// timeout is in seconds and capped server side.
func (h *EbayHandler) WaitForAuthorization(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	state := c.Query("state")
	if state == "" {
		return errorJSON(c, fiber.StatusBadRequest, "state is required")
	}

	var timeout time.Duration
	if raw := c.Query("timeout"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			return errorJSON(c, fiber.StatusBadRequest, "timeout must be a positive number of seconds")
		}
		timeout = time.Duration(secs) * time.Second
	}

	outcome, err := h.ebay.WaitForAuthorization(userContext(c), userID, state, timeout)
	if err != nil {
		return h.apiError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":    outcome.Status == service.AuthConnected,
		"status":     outcome.Status,
		"error":      outcome.Error,
		"expires_at": outcome.ExpiresAt,
	})
}

// CancelAuthorization handles DELETE /api/ebay/auth/pending?state=
func (h *EbayHandler) CancelAuthorization(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	state := c.Query("state")
	if state == "" {
		return errorJSON(c, fiber.StatusBadRequest, "state is required")
	}

	if err := h.ebay.CancelAuthorization(userContext(c), userID, state); err != nil {
		return h.apiError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// Callback handles GET /ebay/callback, the redirect target of the consent popup.
func (h *EbayHandler) Callback(c *fiber.Ctx) error {
	outcome, err := h.ebay.HandleCallback(userContext(c), service.CallbackInput{
		Code:             c.Query("code"),
		State:            c.Query("state"),
		Error:            c.Query("error"),
		ErrorDescription: c.Query("error_description"),
	})

	data := view.ConnectPageData{AppURL: h.appURL, Status: string(outcome.Status)}
	status := fiber.StatusOK
	switch {
	case err == nil:
		data.Connected = true
		data.Message = "Your eBay account is connected. You can close this window."
	case errors.Is(err, service.ErrEbayNotConfigured):
		status = fiber.StatusServiceUnavailable
		data.Message = "eBay API credentials not configured."
	case errors.Is(err, service.ErrInvalidState), errors.Is(err, service.ErrInvalidInput):
		status = fiber.StatusBadRequest
		data.Message = "This authorization link is invalid or has expired. Please try again."
	case errors.Is(err, service.ErrAuthorizationError):
		data.Message = "eBay authorization was declined."
	default:
		h.logger.Error("ebay callback failed", zap.Error(err))
		status = fiber.StatusBadGateway
		data.Message = "We could not complete the eBay connection. Please try again."
	}
	if data.Status == "" {
		data.Status = string(service.AuthFailed)
	}

	html, renderErr := view.RenderConnectPage(data)
	if renderErr != nil {
		h.logger.Error("failed to render connect page", zap.Error(renderErr))
		return c.Status(fiber.StatusInternalServerError).SendString("eBay connection result unavailable")
	}

	c.Type("html", "utf-8")
	return c.Status(status).SendString(html)
}

func (h *EbayHandler) apiError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrEbayNotConfigured):
		return errorJSON(c, fiber.StatusServiceUnavailable, "eBay API credentials not configured")
	case errors.Is(err, repository.ErrCredentialNotFound):
		return errorJSON(c, fiber.StatusNotFound, "No eBay credentials found")
	case errors.Is(err, service.ErrInvalidState):
		return errorJSON(c, fiber.StatusBadRequest, "invalid state")
	case errors.Is(err, service.ErrAuthWaitTimeout):
		return errorJSON(c, fiber.StatusRequestTimeout, "Authorization still pending")
	case errors.Is(err, service.ErrTokenRefresh):
		h.logger.Warn("ebay token refresh failed", zap.Error(err))
		return errorJSON(c, fiber.StatusBadGateway, err.Error())
	case errors.Is(err, context.Canceled):
		return errorJSON(c, fiber.StatusRequestTimeout, "request cancelled")
	default:
		h.logger.Error("ebay request failed", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
}
