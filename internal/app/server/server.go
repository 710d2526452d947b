package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/myglasscase/glasscase/internal/app/service"
	"github.com/myglasscase/glasscase/internal/http/handler"
	"github.com/myglasscase/glasscase/internal/http/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dependencies bundles the services and infrastructure the HTTP server routes to.
type Dependencies struct {
	Logger *zap.Logger
	// Redis backs the public rate limiter; nil limits per process.
	Redis *redis.Client

	ShareLinks  service.ShareLinkService
	Collections service.PublicCollectionService
	Ebay        service.EbayAuthService
	Listings    service.EbayListingService

	Auth      middleware.AuthConfig
	RateLimit middleware.RateLimitConfig
	Checks    map[string]handler.HealthCheck

	CORSOrigins string
	// PublicURL is the web app origin used for share URLs and the callback page.
	PublicURL string
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates the HTTP server with middleware and every route registered.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "glasscase",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(deps.Logger),
	})

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// App exposes the underlying fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerMiddleware() {
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Logger(s.deps.Logger))
	s.app.Use(middleware.CORS(s.deps.CORSOrigins))
}

func (s *Server) registerRoutes() {
	auth := middleware.Auth(s.deps.Auth, s.deps.Logger)
	limit := middleware.RateLimit(s.deps.Redis, s.deps.RateLimit, s.deps.Logger)

	handler.NewPublicHandler(handler.PublicDeps{
		Logger:      s.deps.Logger.Named("public"),
		Collections: s.deps.Collections,
		Checks:      s.deps.Checks,
	}).Register(s.app, limit)

	handler.NewShareLinkHandler(handler.ShareLinkDeps{
		Logger:    s.deps.Logger.Named("share_links"),
		ShareLink: s.deps.ShareLinks,
		PublicURL: s.deps.PublicURL,
	}).Register(s.app, auth)

	handler.NewEbayHandler(handler.EbayDeps{
		Logger: s.deps.Logger.Named("ebay"),
		Ebay:   s.deps.Ebay,
		AppURL: s.deps.PublicURL,
	}).Register(s.app, auth)

	handler.NewEbayListingHandler(handler.EbayListingDeps{
		Logger:   s.deps.Logger.Named("ebay_listings"),
		Listings: s.deps.Listings,
	}).Register(s.app, auth)
}

// errorHandler renders unhandled errors, including fiber routing errors, in the API error shape.
func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		msg := "Internal server error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			msg = fe.Message
		} else {
			logger.Error("unhandled request error",
				zap.String("path", c.Path()),
				zap.String("request_id", middleware.GetRequestID(c)),
				zap.Error(err))
		}

		return c.Status(code).JSON(fiber.Map{
			"success": false,
			"error":   msg,
		})
	}
}
