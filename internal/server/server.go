package server

import (
	"context"

	"data-explorer-be/internal/bootstrap"
	"data-explorer-be/internal/config"
	"data-explorer-be/internal/pkg/serverutils"
	"data-explorer-be/internal/service"
	"data-explorer-be/pkg/ai/agent"
	"data-explorer-be/pkg/store"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// ErrorMappings is the HTTP status of every domain error a handler can return.
var ErrorMappings = []serverutils.StatusMapping{
	{Err: store.ErrSessionNotFound, Code: fiber.StatusNotFound},
	{Err: store.ErrVersionConflict, Code: fiber.StatusConflict},
	{Err: agent.ErrUpstream, Code: fiber.StatusBadGateway},
	{Err: service.ErrUnsupportedFormat, Code: fiber.StatusBadRequest},
	{Err: service.ErrInvalidDataset, Code: fiber.StatusBadRequest},
}

type Server struct {
	app       *fiber.App
	cfg       *config.Config
	container *bootstrap.Container
}

func New(cfg *config.Config, container *bootstrap.Container) *Server {
	app := fiber.New(fiber.Config{
		BodyLimit:    cfg.App.MaxUploadBytes,
		ErrorHandler: serverutils.ErrorHandler(ErrorMappings...),
	})

	// Middleware
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.CorsAllowedOrigins,
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, DELETE, OPTIONS",
		ExposeHeaders:    "Content-Length, Content-Type, Content-Disposition",
	}))

	// OpenTelemetry tracing middleware (traces all HTTP requests)
	app.Use(otelfiber.Middleware())

	app.Use(serverutils.ErrorHandlerMiddleware(ErrorMappings...))

	if cfg.App.MetricsEnabled {
		app.Get("/metrics", container.Metrics.Handler())
	}
	app.Get("/healthz", func(ctx *fiber.Ctx) error {
		return ctx.JSON(serverutils.SuccessResponse[any]("ok", nil))
	})

	registerRoutes(app, cfg, container)

	return &Server{
		app:       app,
		cfg:       cfg,
		container: container,
	}
}

func (s *Server) GetApp() *fiber.App {
	return s.app
}

func (s *Server) Run() error {
	s.container.Logger.Info("Server", "Server is running", map[string]interface{}{
		"url": "http://localhost:" + s.cfg.App.Port,
	})
	return s.app.Listen(":" + s.cfg.App.Port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func registerRoutes(app *fiber.App, cfg *config.Config, c *bootstrap.Container) {
	api := app.Group("/api")
	auth := serverutils.JwtMiddleware(cfg.Keys.JWTSecret)

	c.DatasetController.RegisterRoutes(api, auth)
	c.QueryController.RegisterRoutes(api, auth)

	c.SessionStreamHandler.RegisterRoutes(app)
}
