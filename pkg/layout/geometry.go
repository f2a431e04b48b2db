package layout

import (
	"fmt"
	"math"
)

// ============================================================
// Geometry primitives
// ============================================================

// Point - координата: нормализованная (0..1) или в пикселях, по контексту.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Add(o Point) Point { return Point{X: p.X + o.X, Y: p.Y + o.Y} }
func (p Point) Sub(o Point) Point { return Point{X: p.X - o.X, Y: p.Y - o.Y} }

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Degenerate сообщает, что по размеру нельзя делить.
func (s Size) Degenerate() bool {
	return !(s.Width > 0) || !(s.Height > 0)
}

// Rect - прямоугольник в пикселях контейнера.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Right() float64  { return r.Left + r.Width }
func (r Rect) Bottom() float64 { return r.Top + r.Height }
func (r Rect) Empty() bool     { return r.Width <= 0 || r.Height <= 0 }

func (r Rect) TopLeft() Point { return Point{X: r.Left, Y: r.Top} }

// Overlaps - стандартная проверка пересечения AABB: прямоугольники
// пересекаются, если не разделены ни с одной из четырёх сторон.
func (r Rect) Overlaps(o Rect) bool {
	return !(r.Right() < o.Left ||
		r.Left > o.Right() ||
		r.Bottom() < o.Top ||
		r.Top > o.Bottom())
}

// ============================================================
// Coordinate Transform
// ============================================================

// DefaultWidgetSize применяется, пока реальный размер виджета не измерен.
var DefaultWidgetSize = Size{Width: 50, Height: 50}

// ToAbsolute переводит нормализованную точку в пиксели плана.
func ToAbsolute(p Point, plan Size) Point {
	mustFinite(p.X, p.Y, plan.Width, plan.Height)
	return Point{
		X: p.X * plan.Width,
		Y: p.Y * plan.Height,
	}
}

// ToRelative - обратное преобразование. Для вырожденного плана
// (изображение ещё не загружено) возвращает {0,0} и ErrDegeneratePlan.
func ToRelative(p Point, plan Size) (Point, error) {
	mustFinite(p.X, p.Y, plan.Width, plan.Height)
	if plan.Degenerate() {
		return Point{}, ErrDegeneratePlan
	}
	return Point{
		X: p.X / plan.Width,
		Y: p.Y / plan.Height,
	}, nil
}

// Constrain прижимает каждую ось к [0,1]. NaN превращается в 0.
func Constrain(p Point) Point {
	return Point{X: clamp01(p.X), Y: clamp01(p.Y)}
}

// CenterOffset - половина размера виджета. Нулевой размер заменяется
// на DefaultWidgetSize (первая отрисовка, виджет ещё не измерен).
func CenterOffset(widget Size) Point {
	if widget.Degenerate() {
		widget = DefaultWidgetSize
	}
	return Point{X: widget.Width / 2, Y: widget.Height / 2}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// mustFinite: нечисловой вход - ошибка вызывающего кода, не runtime-ошибка.
func mustFinite(vals ...float64) {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			panic(fmt.Sprintf("layout: non-finite coordinate %v", v))
		}
	}
}
