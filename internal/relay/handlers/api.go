package handlers

import (
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v3"

	"ha-floorplan/internal/common/apperr"
	"ha-floorplan/internal/common/planimage"
	"ha-floorplan/internal/relay/models"
)

// ============================================================
// Dashboard data
// ============================================================

// GetData отдаёт всё, что нужно клиенту при старте: дерево, состояния,
// иерархию планов и текущий план.
func (h *RelayHandler) GetData(c fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	snap, err := h.snapshot(ctx)
	if err != nil {
		h.log.Error("get data", "err", err)
		return fail(c, err)
	}

	var current *models.FloorplanRef
	latest, err := h.repo.Latest(ctx)
	if err != nil {
		return fail(c, err)
	}
	if latest != nil {
		ref := floorplanRef(latest)
		current = &ref
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"tree":      snap.Tree,
			"states":    snap.States,
			"config":    snap.Plans,
			"floorplan": current,
		},
	})
}

// ============================================================
// Upload
// ============================================================

// UploadFloorplan принимает multipart-поле floorplan (и необязательное
// name), сохраняет файл и создаёт или обновляет план с этим именем.
func (h *RelayHandler) UploadFloorplan(c fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	fileHeader, err := c.FormFile("floorplan")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "No file uploaded"})
	}
	file, err := fileHeader.Open()
	if err != nil {
		return fail(c, err)
	}
	data, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		return fail(c, err)
	}

	natural, format, err := planimage.DecodeSize(data)
	if err != nil {
		h.log.Warn("rejected upload", "file", fileHeader.Filename, "err", err)
		return fail(c, err)
	}

	filename, err := h.storage.SaveFile(fileHeader.Filename, data)
	if err != nil {
		return fail(c, err)
	}

	name := strings.TrimSpace(c.FormValue("name"))
	if name == "" {
		name = strings.TrimSuffix(filename, filepath.Ext(filename))
	}

	plan := models.Floorplan{ID: name, Filename: filename, NaturalWidth: natural.Width, NaturalHeight: natural.Height}
	err = h.repo.CreateFloorplan(ctx, plan)
	if apperr.Is(err, apperr.CodeAlreadyExists) {
		err = h.repo.UpdateFloorplanAsset(ctx, name, filename, natural)
	}
	if err != nil {
		return fail(c, err)
	}
	h.prune(ctx)

	ref := floorplanRef(&plan)
	h.log.Info("floorplan uploaded", "plan", name, "file", filename, "format", format, "size", natural)
	h.notify.BroadcastUpdate("floorplan", ref)

	return c.JSON(fiber.Map{"success": true, "data": ref})
}

// ============================================================
// Floorplans
// ============================================================

func (h *RelayHandler) ListFloorplans(c fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	plans, err := h.repo.ListFloorplans(ctx)
	if err != nil {
		return fail(c, err)
	}
	if plans == nil {
		plans = []models.Floorplan{}
	}
	return c.JSON(fiber.Map{"success": true, "data": plans})
}

func (h *RelayHandler) GetFloorplan(c fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	plan, err := h.repo.GetFloorplan(ctx, c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": plan})
}

// DeleteFloorplan удаляет план, его позиции и ставший ненужным файл.
func (h *RelayHandler) DeleteFloorplan(c fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	id := c.Params("id")
	if err := h.repo.DeleteFloorplan(ctx, id); err != nil {
		return fail(c, err)
	}
	h.prune(ctx)
	h.log.Info("floorplan deleted", "plan", id)
	h.broadcastRefresh(ctx, "")

	return c.JSON(fiber.Map{"success": true})
}

// SavePositions - PUT /api/floorplans/:id/positions.
func (h *RelayHandler) SavePositions(c fiber.Ctx) error {
	var req models.SavePositionsRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return fail(c, apperr.Wrap(apperr.CodeInvalidInput, err, "invalid json"))
	}
	return h.savePositions(c, c.Params("id"), req.Positions)
}

// SaveConfig - POST /api/config/save с {floorplanId, positions}.
func (h *RelayHandler) SaveConfig(c fiber.Ctx) error {
	var req models.SavePositionsRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return fail(c, apperr.Wrap(apperr.CodeInvalidInput, err, "invalid json"))
	}
	if req.FloorplanID == "" {
		return fail(c, apperr.New(apperr.CodeInvalidInput, "floorplanId is required"))
	}
	return h.savePositions(c, req.FloorplanID, req.Positions)
}

func (h *RelayHandler) savePositions(c fiber.Ctx, id string, positions []models.Position) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	saved, err := h.persistPositions(ctx, id, positions)
	if err != nil {
		return fail(c, err)
	}
	h.notify.BroadcastUpdate("config", models.SavePositionsRequest{FloorplanID: id, Positions: saved})
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"floorplanId": id, "positions": saved}})
}

// ============================================================
// Commands
// ============================================================

// Command выполняет сервис хаба для сущности.
func (h *RelayHandler) Command(c fiber.Ctx) error {
	var req models.CommandRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid json"})
	}
	if req.EntityID == "" || req.Service == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "entity_id and service are required"})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.hub.Execute(ctx, req.EntityID, req.Service, req.ServiceData)
	resp := models.CommandResponse{
		TraceID:  res.TraceID,
		Duration: res.Duration.Milliseconds(),
	}
	if err != nil {
		resp.Message = apperr.UserMessage(err)
		return c.Status(apperr.StatusOf(err)).JSON(resp)
	}

	resp.Success = true
	resp.Message = "Command executed"
	if len(res.Result) > 0 {
		resp.Result = res.Result
	}
	return c.JSON(resp)
}
