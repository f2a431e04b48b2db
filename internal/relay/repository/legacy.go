package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"ha-floorplan/internal/common/apperr"
	"ha-floorplan/internal/relay/models"
	"ha-floorplan/pkg/layout"
)

// ============================================================
// Legacy import
// ============================================================

// LoadLegacyFile читает файл client-floorplans.json.
func LoadLegacyFile(path string) (models.LegacyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read legacy config: %w", err)
	}
	var file models.LegacyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, apperr.Wrap(apperr.CodeMalformedData, err, "decode %s", path)
	}
	return file, nil
}

// ConvertLegacy переводит позиции старого формата в нормализованные.
// Пиксельные координаты (версия 1) делятся на натуральный размер плана;
// без него запись отклоняется.
func ConvertLegacy(plan models.LegacyPlan) ([]models.Position, error) {
	out := make([]models.Position, 0, len(plan.Positions))
	if plan.FormatVersion == models.FormatNormalized {
		for _, p := range plan.Positions {
			pt := layout.Constrain(layout.Point{X: p.X, Y: p.Y})
			out = append(out, models.Position{EntityID: p.EntityID, X: pt.X, Y: pt.Y})
		}
		return out, nil
	}

	natural := layout.Size{Width: plan.NaturalWidth, Height: plan.NaturalHeight}
	if natural.Degenerate() {
		if len(plan.Positions) == 0 {
			return out, nil
		}
		return nil, apperr.New(apperr.CodeMalformedData, "pixel positions without natural plan size")
	}
	for _, p := range plan.Positions {
		rel, err := layout.ToRelative(layout.Point{X: p.X, Y: p.Y}, natural)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeMalformedData, err, "convert %s", p.EntityID)
		}
		out = append(out, models.Position{EntityID: p.EntityID, X: rel.X, Y: rel.Y})
	}
	return out, nil
}

// ImportLegacy создаёт или обновляет планы из старого файла. Ошибочные
// планы пропускаются и возвращаются вместе; остальные импортируются.
func (r *Repository) ImportLegacy(ctx context.Context, file models.LegacyFile) (int, error) {
	names := make([]string, 0, len(file))
	for name := range file {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		imported int
		errs     []error
	)
	for _, name := range names {
		plan := file[name]
		positions, err := ConvertLegacy(plan)
		if err != nil {
			errs = append(errs, fmt.Errorf("plan %q: %w", name, err))
			continue
		}
		if err := r.upsert(ctx, name, plan); err != nil {
			errs = append(errs, fmt.Errorf("plan %q: %w", name, err))
			continue
		}
		if err := r.SetPositions(ctx, name, positions); err != nil {
			errs = append(errs, fmt.Errorf("plan %q: %w", name, err))
			continue
		}
		imported++
	}
	return imported, errors.Join(errs...)
}

func (r *Repository) upsert(ctx context.Context, name string, plan models.LegacyPlan) error {
	natural := layout.Size{Width: plan.NaturalWidth, Height: plan.NaturalHeight}
	err := r.CreateFloorplan(ctx, models.Floorplan{
		ID:            name,
		Filename:      plan.Filename,
		NaturalWidth:  natural.Width,
		NaturalHeight: natural.Height,
	})
	if apperr.Is(err, apperr.CodeAlreadyExists) {
		return r.UpdateFloorplanAsset(ctx, name, plan.Filename, natural)
	}
	return err
}
