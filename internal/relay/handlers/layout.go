package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"

	"ha-floorplan/internal/common/apperr"
	"ha-floorplan/internal/relay/models"
	"ha-floorplan/pkg/layout"
)

// ============================================================
// Server-side layout
// ============================================================

// LayoutResponse - проекция сохранённых позиций в контейнер заданного
// размера.
type LayoutResponse struct {
	FloorplanID string             `json:"floorplanId"`
	Viewport    layout.Viewport    `json:"viewport"`
	Placements  []layout.Placement `json:"placements"`
}

// ProjectLayout вписывает план в контейнер и проецирует позиции.
// widget - размер виджетов; нулевой означает размер по умолчанию.
func ProjectLayout(plan *models.Floorplan, container, widget layout.Size) (LayoutResponse, error) {
	e := layout.NewEngine(layout.Options{})
	e.Resize(container)
	e.PlanLoaded(plan.Natural())
	e.Restore(models.ToLayout(plan.Positions))
	if !widget.Degenerate() {
		for _, obj := range e.Store().Objects() {
			e.Measure(obj.ID, widget)
		}
	}

	placements, err := e.Layout()
	if errors.Is(err, layout.ErrNoViewport) {
		return LayoutResponse{}, apperr.Wrap(apperr.CodeDegenerateViewport, err,
			"plan %q (%gx%g) does not fit container %gx%g", plan.ID, plan.NaturalWidth, plan.NaturalHeight, container.Width, container.Height)
	}
	if err != nil {
		return LayoutResponse{}, err
	}
	if placements == nil {
		placements = []layout.Placement{}
	}
	vp, _ := e.Viewport()
	return LayoutResponse{FloorplanID: plan.ID, Viewport: vp, Placements: placements}, nil
}

// GetLayout - GET /api/floorplans/:id/layout?width=&height=&widget=WxH.
func (h *RelayHandler) GetLayout(c fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	container, err := parseContainer(c.Query("width"), c.Query("height"))
	if err != nil {
		return fail(c, err)
	}
	var widget layout.Size
	if w := c.Query("widget"); w != "" {
		if widget, err = ParseSize(w); err != nil {
			return fail(c, err)
		}
	}

	plan, err := h.repo.GetFloorplan(ctx, c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	resp, err := ProjectLayout(plan, container, widget)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": resp})
}

func parseContainer(width, height string) (layout.Size, error) {
	w, errW := strconv.ParseFloat(width, 64)
	h, errH := strconv.ParseFloat(height, 64)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return layout.Size{}, apperr.New(apperr.CodeInvalidInput, "width and height must be positive numbers")
	}
	return layout.Size{Width: w, Height: h}, nil
}

// ParseSize разбирает размер вида "80x40".
func ParseSize(s string) (layout.Size, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return layout.Size{}, apperr.New(apperr.CodeInvalidInput, "size %q must look like WIDTHxHEIGHT", s)
	}
	return parseContainer(ws, hs)
}

// persistPositions сохраняет набор и возвращает его в сохранённом
// (прижатом) виде.
func (h *RelayHandler) persistPositions(ctx context.Context, id string, positions []models.Position) ([]models.Position, error) {
	if id == "" {
		return nil, apperr.New(apperr.CodeInvalidInput, "floorplanId is required")
	}
	if err := h.repo.SetPositions(ctx, id, positions); err != nil {
		return nil, err
	}
	plan, err := h.repo.GetFloorplan(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan.Positions == nil {
		return []models.Position{}, nil
	}
	return plan.Positions, nil
}
