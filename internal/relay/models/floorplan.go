package models

import "ha-floorplan/pkg/layout"

// ============================================================
// Floorplan Model
// ============================================================

// Версии формата сохранённых позиций.
const (
	// FormatPixels - координаты в пикселях натурального размера плана.
	FormatPixels = 1
	// FormatNormalized - доли от размера плана в [0,1].
	FormatNormalized = 2
)

// UploadsPrefix - URL-префикс, под которым ретранслятор раздаёт ассеты.
const UploadsPrefix = "/uploads/"

// AssetPath - путь ассета плана относительно адреса ретранслятора.
func AssetPath(filename string) string {
	return UploadsPrefix + filename
}

// Floorplan - план этажа. Идентификатор совпадает с именем плана.
type Floorplan struct {
	ID            string     `json:"id"`
	Filename      string     `json:"filename"`
	NaturalWidth  float64    `json:"natural_width"`
	NaturalHeight float64    `json:"natural_height"`
	FormatVersion int        `json:"format_version"`
	CreatedAt     string     `json:"created_at"`
	UpdatedAt     string     `json:"updated_at"`
	Positions     []Position `json:"positions"`
}

// Natural - натуральный размер ассета; нулевой, если неизвестен.
func (f *Floorplan) Natural() layout.Size {
	return layout.Size{Width: f.NaturalWidth, Height: f.NaturalHeight}
}

// Position - сохранённая позиция сущности на плане.
type Position struct {
	EntityID string  `json:"entity_id"`
	Kind     string  `json:"kind,omitempty"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// ToLayout переводит позиции в тип движка раскладки.
func ToLayout(positions []Position) []layout.Position {
	out := make([]layout.Position, 0, len(positions))
	for _, p := range positions {
		// неизвестный тег превращается в generic sensor
		kind, _ := layout.ParseKind(p.Kind)
		if p.Kind == "" {
			kind = layout.KindFromEntityID(p.EntityID)
		}
		out = append(out, layout.Position{EntityID: p.EntityID, Kind: kind, X: p.X, Y: p.Y})
	}
	return out
}

// FromLayout - обратное преобразование для сохранения.
func FromLayout(positions []layout.Position) []Position {
	out := make([]Position, 0, len(positions))
	for _, p := range positions {
		out = append(out, Position{EntityID: p.EntityID, Kind: p.Kind.String(), X: p.X, Y: p.Y})
	}
	return out
}

// PlanEntry - элемент иерархии планов, как её видят клиенты:
// имя плана -> {filename, positions}.
type PlanEntry struct {
	Filename      string     `json:"filename"`
	NaturalWidth  float64    `json:"natural_width,omitempty"`
	NaturalHeight float64    `json:"natural_height,omitempty"`
	Positions     []Position `json:"positions"`
}

type Hierarchy map[string]PlanEntry

// ============================================================
// Legacy file
// ============================================================

// LegacyPosition - позиция файла client-floorplans.json (пиксели).
type LegacyPosition struct {
	EntityID string  `json:"entity_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

type LegacyPlan struct {
	Filename      string           `json:"filename"`
	NaturalWidth  float64          `json:"natural_width,omitempty"`
	NaturalHeight float64          `json:"natural_height,omitempty"`
	FormatVersion int              `json:"format_version,omitempty"`
	Positions     []LegacyPosition `json:"positions"`
}

type LegacyFile map[string]LegacyPlan
