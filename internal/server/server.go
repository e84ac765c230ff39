package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/urbancamo/wota-data/internal/config"
	"github.com/urbancamo/wota-data/internal/stream"
)

// Status is the operational snapshot served at /status.
type Status struct {
	Sessions     int  `json:"sessions"`
	CachedSpots  int  `json:"cached_spots"`
	LastSpotID   int  `json:"last_spot_id"`
	CacheReady   bool `json:"cache_ready"`
	TrackedSpots int  `json:"tracked_spots"`
}

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	Stream *stream.Hub
}

// NewServer wires the operational HTTP surface: health, status and the live
// spot websocket. The CRUD web API lives elsewhere.
func NewServer(cfg config.Config, hub *stream.Hub, status func() Status) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		Stream: hub,
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(status())
	})
	stream.RegisterRoutes(app.Group("/stream"), hub)

	return s
}
