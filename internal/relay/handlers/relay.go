package handlers

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v3"

	"ha-floorplan/internal/common/apperr"
	"ha-floorplan/internal/relay/models"
	"ha-floorplan/internal/relay/repository"
	"ha-floorplan/internal/relay/service"
	"ha-floorplan/pkg/hub"
)

// ============================================================
// Relay Handler
// ============================================================

const requestTimeout = 15 * time.Second

// HubData - данные хаба, которые отдаёт ретранслятор.
type HubData interface {
	Tree(ctx context.Context) (hub.Tree, error)
	States(ctx context.Context) (hub.States, error)
	Execute(ctx context.Context, entityID, service string, data map[string]any) (service.CommandResult, error)
}

// Notifier - рассылка websocket-клиентам.
type Notifier interface {
	Register(conn service.ClientConn) string
	Unregister(id string)
	Send(id string, v any) error
	BroadcastUpdate(kind string, data any)
	BroadcastRefresh(data any, except string)
}

type RelayHandler struct {
	repo    *repository.Repository
	hub     HubData
	notify  Notifier
	storage *service.FileStorage
	log     *log.Logger
}

func NewRelayHandler(repo *repository.Repository, hubData HubData, notify Notifier, storage *service.FileStorage, logger *log.Logger) *RelayHandler {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &RelayHandler{
		repo:    repo,
		hub:     hubData,
		notify:  notify,
		storage: storage,
		log:     logger.WithPrefix("relay"),
	}
}

// Snapshot - полный срез данных для кадра refresh.
type Snapshot struct {
	Tree   hub.Tree         `json:"tree"`
	States hub.States       `json:"states"`
	Plans  models.Hierarchy `json:"plans"`
}

func (h *RelayHandler) snapshot(ctx context.Context) (Snapshot, error) {
	tree, err := h.hub.Tree(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	states, err := h.hub.States(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	plans, err := h.repo.Hierarchy(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Tree: tree, States: states, Plans: plans}, nil
}

// broadcastRefresh рассылает refresh всем, кроме except.
func (h *RelayHandler) broadcastRefresh(ctx context.Context, except string) {
	snap, err := h.snapshot(ctx)
	if err != nil {
		h.log.Warn("refresh broadcast skipped", "err", err)
		return
	}
	h.notify.BroadcastRefresh(snap, except)
}

// RefreshAll рассылает свежий снимок всем клиентам, например после
// переподключения к хабу.
func (h *RelayHandler) RefreshAll(ctx context.Context) {
	h.broadcastRefresh(ctx, "")
}

// floorplanRef описывает план для клиента.
func floorplanRef(f *models.Floorplan) models.FloorplanRef {
	return models.FloorplanRef{
		ID:            f.ID,
		Path:          models.AssetPath(f.Filename),
		Filename:      f.Filename,
		NaturalWidth:  f.NaturalWidth,
		NaturalHeight: f.NaturalHeight,
	}
}

// prune удаляет ассеты, на которые больше не ссылается ни один план.
func (h *RelayHandler) prune(ctx context.Context) {
	plans, err := h.repo.ListFloorplans(ctx)
	if err != nil {
		h.log.Warn("prune uploads", "err", err)
		return
	}
	keep := make(map[string]bool, len(plans))
	for _, p := range plans {
		keep[p.Filename] = true
	}
	removed, err := h.storage.Prune(keep)
	if err != nil {
		h.log.Warn("prune uploads", "err", err)
	}
	if len(removed) > 0 {
		h.log.Info("removed unreferenced uploads", "files", removed)
	}
}

// fail отвечает ошибкой в общем формате {success:false, error, code}.
func fail(c fiber.Ctx, err error) error {
	body := fiber.Map{"success": false, "error": apperr.UserMessage(err)}
	if code := apperr.GetCode(err); code != "" {
		body["code"] = code
	}
	return c.Status(apperr.StatusOf(err)).JSON(body)
}

func requestContext(c fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context(), requestTimeout)
}
