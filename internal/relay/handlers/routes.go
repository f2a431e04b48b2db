package handlers

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/static"
)

// ============================================================
// Routes
// ============================================================

type Routes struct {
	Relay  *RelayHandler
	Health *HealthHandler
	// HubProxy - обработчик /api/hub/*; nil отключает прокси.
	HubProxy  fiber.Handler
	SpecPath  string
	UploadDir string
	// ClientDir - статический клиент; пусто - не раздаётся.
	ClientDir string
}

// Mount регистрирует все маршруты ретранслятора.
func (r Routes) Mount(app *fiber.App) {
	app.Get("/health", Health)
	app.Get("/health/live", r.Health.LivenessProbe)
	app.Get("/health/ready", r.Health.ReadinessProbe)
	app.Get("/health/startup", r.Health.StartupProbe)

	specPath := r.SpecPath
	if specPath == "" {
		specPath = SpecPath
	}
	app.Get("/docs", SwaggerUI)
	app.Get("/docs/openapi.yaml", SwaggerSpec(specPath))

	api := app.Group("/api")
	api.Get("/data", r.Relay.GetData)
	api.Post("/floorplan/upload", r.Relay.UploadFloorplan)
	api.Post("/config/save", r.Relay.SaveConfig)
	api.Post("/entities/command", r.Relay.Command)

	plans := api.Group("/floorplans")
	plans.Get("/", r.Relay.ListFloorplans)
	plans.Get("/:id", r.Relay.GetFloorplan)
	plans.Delete("/:id", r.Relay.DeleteFloorplan)
	plans.Put("/:id/positions", r.Relay.SavePositions)
	plans.Get("/:id/layout", r.Relay.GetLayout)

	if r.HubProxy != nil {
		api.All("/hub/*", r.HubProxy)
	}

	// websocket принимается и на корне, и на /ws
	app.Get("/", r.Relay.Websocket)
	app.Get("/ws", r.Relay.Websocket)

	if r.UploadDir != "" {
		app.Use("/uploads", static.New(r.UploadDir))
	}
	if r.ClientDir != "" {
		app.Use("/", static.New(r.ClientDir))
	}
}
