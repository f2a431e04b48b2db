package layout

import "math"

// ============================================================
// Drag Session
// ============================================================

// DragPhase - состояние жеста перетаскивания.
type DragPhase int

const (
	DragIdle DragPhase = iota
	DragArmed
	DragDragging
)

func (p DragPhase) String() string {
	switch p {
	case DragIdle:
		return "idle"
	case DragArmed:
		return "armed"
	case DragDragging:
		return "dragging"
	}
	return "unknown"
}

// DropOutcome - чем закончился жест.
type DropOutcome int

const (
	DropNone DropOutcome = iota
	DropCancelled
	DropCommitted
	DropTrashed
)

func (o DropOutcome) String() string {
	switch o {
	case DropNone:
		return "none"
	case DropCancelled:
		return "cancelled"
	case DropCommitted:
		return "committed"
	case DropTrashed:
		return "trashed"
	}
	return "unknown"
}

// Drop - результат PointerUp/CancelDrag.
type Drop struct {
	ID       string
	Outcome  DropOutcome
	Position Point
}

// DefaultDragThreshold - сдвиг указателя в пикселях, после которого
// нажатие считается перетаскиванием.
const DefaultDragThreshold = 3.0

// dragSession живёт от pointer-down до pointer-up. Геометрия
// (вьюпорт и контейнер) снимается в момент нажатия.
type dragSession struct {
	id        string
	phase     DragPhase
	origin    Point
	grab      Point
	start     Point
	size      Size
	viewport  Viewport
	container Size
	rect      Rect
}

func newDragSession(obj Object, pointer Point, vp Viewport, container Size) *dragSession {
	size := obj.Size
	if size.Degenerate() {
		size = DefaultWidgetSize
	}
	rect := PlaceRect(obj.Position, size, vp)
	return &dragSession{
		id:        obj.ID,
		phase:     DragArmed,
		origin:    pointer,
		grab:      pointer.Sub(rect.TopLeft()),
		start:     obj.Position,
		size:      size,
		viewport:  vp,
		container: container,
		rect:      rect,
	}
}

// exceeds - указатель ушёл от точки нажатия дальше порога.
func (d *dragSession) exceeds(pointer Point, threshold float64) bool {
	delta := pointer.Sub(d.origin)
	return math.Hypot(delta.X, delta.Y) >= threshold
}

// track пересчитывает прямоугольник виджета по указателю и возвращает
// нормализованный центр. Левый верхний угол не выходит за контейнер.
func (d *dragSession) track(pointer Point) Point {
	topLeft := pointer.Sub(d.grab)
	topLeft.X = clampRange(topLeft.X, 0, d.container.Width-d.size.Width)
	topLeft.Y = clampRange(topLeft.Y, 0, d.container.Height-d.size.Height)

	d.rect = Rect{
		Left:   topLeft.X,
		Top:    topLeft.Y,
		Width:  d.size.Width,
		Height: d.size.Height,
	}

	center := topLeft.Add(CenterOffset(d.size)).Sub(d.viewport.Offset)
	rel, err := ToRelative(center, d.viewport.Displayed)
	if err != nil {
		return d.start
	}
	return Constrain(rel)
}

func clampRange(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	return math.Min(math.Max(v, lo), hi)
}
