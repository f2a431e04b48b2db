package layout

// ============================================================
// Plan Viewport
// ============================================================

// Viewport - вписанный (letterbox) план внутри контейнера.
// Displayed сохраняет пропорции Natural, Offset центрирует план.
type Viewport struct {
	Natural   Size  `json:"natural"`
	Displayed Size  `json:"displayed"`
	Offset    Point `json:"offset"`
}

// Valid - вьюпорт рассчитан и пригоден для проекций.
func (v Viewport) Valid() bool {
	return !v.Natural.Degenerate() && !v.Displayed.Degenerate()
}

// Rect - видимая область плана в координатах контейнера. Слой
// объектов должен совпадать с ней.
func (v Viewport) Rect() Rect {
	return Rect{
		Left:   v.Offset.X,
		Top:    v.Offset.Y,
		Width:  v.Displayed.Width,
		Height: v.Displayed.Height,
	}
}

// Fit вписывает план natural в контейнер container без обрезки и
// искажений. Если план шире контейнера, ограничивается ширина,
// иначе высота.
func Fit(natural, container Size) (Viewport, error) {
	if natural.Degenerate() || container.Degenerate() {
		return Viewport{}, ErrDegeneratePlan
	}

	planRatio := natural.Width / natural.Height
	containerRatio := container.Width / container.Height

	var displayed Size
	if planRatio > containerRatio {
		displayed.Width = container.Width
		displayed.Height = container.Width * natural.Height / natural.Width
	} else {
		displayed.Height = container.Height
		displayed.Width = container.Height * natural.Width / natural.Height
	}

	return Viewport{
		Natural:   natural,
		Displayed: displayed,
		Offset: Point{
			X: (container.Width - displayed.Width) / 2,
			Y: (container.Height - displayed.Height) / 2,
		},
	}, nil
}

// ============================================================
// Viewport Sizer
// ============================================================

// Sizer хранит последние размеры контейнера и плана и пересчитывает
// вьюпорт при изменении любого из них. До загрузки плана вьюпорта нет.
type Sizer struct {
	natural   Size
	container Size
	viewport  Viewport
	valid     bool
}

func NewSizer() *Sizer {
	return &Sizer{}
}

// Resize вызывается на каждое уведомление о размере контейнера.
// Возвращает true, если вьюпорт изменился.
func (s *Sizer) Resize(container Size) bool {
	s.container = container
	return s.recompute()
}

// PlanLoaded фиксирует натуральный размер загруженного плана.
func (s *Sizer) PlanLoaded(natural Size) bool {
	s.natural = natural
	return s.recompute()
}

// Reset сбрасывает план (новый ассет в пути или ошибка загрузки).
// Размер контейнера сохраняется.
func (s *Sizer) Reset() bool {
	changed := s.valid
	s.natural = Size{}
	s.viewport = Viewport{}
	s.valid = false
	return changed
}

// Viewport возвращает текущий вьюпорт и признак его наличия.
func (s *Sizer) Viewport() (Viewport, bool) {
	return s.viewport, s.valid
}

func (s *Sizer) Container() Size { return s.container }

func (s *Sizer) recompute() bool {
	vp, err := Fit(s.natural, s.container)
	if err != nil {
		changed := s.valid
		s.viewport = Viewport{}
		s.valid = false
		return changed
	}
	changed := !s.valid || vp != s.viewport
	s.viewport = vp
	s.valid = true
	return changed
}
