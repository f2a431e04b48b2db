package handlers

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v3"
)

// ============================================================
// Health Check Handlers
// ============================================================

type Pinger interface {
	Ping(ctx context.Context) error
}

// HubStatus сообщает о соединении с хабом.
type HubStatus interface {
	Connected() bool
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db      Pinger
	hub     HubStatus
	started atomic.Bool
}

func NewHealthHandler(db Pinger, hub HubStatus) *HealthHandler {
	return &HealthHandler{db: db, hub: hub}
}

// MarkStarted вызывается, когда миграции применены и сервер слушает порт.
func (h *HealthHandler) MarkStarted() {
	h.started.Store(true)
}

// Health - простой ответ для балансировщиков и старых клиентов.
func Health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// LivenessProbe проверяет, что приложение работает
func (h *HealthHandler) LivenessProbe(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "alive",
	})
}

// ReadinessProbe проверяет базу и соединение с хабом.
func (h *HealthHandler) ReadinessProbe(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	checks := fiber.Map{"database": "ok", "hub": "ok"}
	ready := true
	if err := h.db.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		ready = false
	}
	if !h.hub.Connected() {
		checks["hub"] = "disconnected"
		ready = false
	} else if err := h.hub.Ping(ctx); err != nil {
		checks["hub"] = err.Error()
		ready = false
	}

	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not ready",
			"checks": checks,
		})
	}
	return c.JSON(fiber.Map{
		"status": "ready",
		"checks": checks,
	})
}

// StartupProbe проверяет, что приложение успешно запустилось
func (h *HealthHandler) StartupProbe(c fiber.Ctx) error {
	if !h.started.Load() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "starting",
		})
	}
	return c.JSON(fiber.Map{
		"status": "started",
	})
}
