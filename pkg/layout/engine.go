package layout

import "strings"

// ============================================================
// Engine
// ============================================================

// ResizePolicy - поведение активного перетаскивания при изменении
// размера контейнера или перезагрузке плана.
type ResizePolicy int

const (
	// FreezeDrag продолжает жест в геометрии, снятой при нажатии.
	FreezeDrag ResizePolicy = iota
	// CancelDrag возвращает объект на исходную позицию и завершает жест.
	CancelDrag
)

func (p ResizePolicy) String() string {
	if p == CancelDrag {
		return "cancel"
	}
	return "freeze"
}

// ParseResizePolicy: "cancel" или всё остальное (freeze).
func ParseResizePolicy(s string) ResizePolicy {
	if strings.EqualFold(s, "cancel") {
		return CancelDrag
	}
	return FreezeDrag
}

type Options struct {
	Policy        ResizePolicy
	DragThreshold float64
	// OnSave вызывается после каждой локальной правки, требующей сохранения.
	OnSave func()
}

// Engine связывает хранилище, вьюпорт, жест перетаскивания и
// применение удалённых обновлений. Однопоточный: все вызовы идут
// из одного цикла событий (Loop).
type Engine struct {
	store     *Store
	sizer     *Sizer
	policy    ResizePolicy
	threshold float64
	onSave    func()

	floorplanID string
	editing     bool
	trash       Rect
	drag        *dragSession
	deferred    map[string]Point
	edits       uint64
}

func NewEngine(opts Options) *Engine {
	threshold := opts.DragThreshold
	if threshold <= 0 {
		threshold = DefaultDragThreshold
	}
	return &Engine{
		store:     NewStore(),
		sizer:     NewSizer(),
		policy:    opts.Policy,
		threshold: threshold,
		onSave:    opts.OnSave,
		deferred:  make(map[string]Point),
	}
}

func (e *Engine) Store() *Store { return e.store }

// OnChange подписывает fn на изменения хранилища и вьюпорта.
func (e *Engine) OnChange(fn func(Change)) { e.store.OnChange(fn) }

func (e *Engine) Policy() ResizePolicy { return e.policy }

func (e *Engine) FloorplanID() string { return e.floorplanID }

// SetFloorplan задаёт план, к которому относятся сохраняемые позиции.
func (e *Engine) SetFloorplan(id string) { e.floorplanID = id }

// ============================================================
// Mode & trash
// ============================================================

// SetEditMode включает режим раскладки. Выход из него прерывает жест.
func (e *Engine) SetEditMode(on bool) {
	if !on && e.drag != nil {
		e.CancelDrag()
	}
	e.editing = on
}

func (e *Engine) Editing() bool { return e.editing }

// SetTrash задаёт прямоугольник корзины в координатах контейнера.
func (e *Engine) SetTrash(r Rect) { e.trash = r }

// ============================================================
// Viewport
// ============================================================

func (e *Engine) Resize(container Size) {
	if e.sizer.Resize(container) {
		e.viewportChanged()
	}
}

// PlanLoaded - ассет загружен, натуральный размер известен.
func (e *Engine) PlanLoaded(natural Size) {
	if e.sizer.PlanLoaded(natural) {
		e.viewportChanged()
	}
}

// PlanFailed - ассет не загрузился; вьюпорт остаётся пустым.
func (e *Engine) PlanFailed() {
	if e.sizer.Reset() {
		e.viewportChanged()
	}
}

// ReplacePlan сбрасывает вьюпорт до загрузки нового ассета.
// Объекты перепроецируются только после PlanLoaded.
func (e *Engine) ReplacePlan(floorplanID string) {
	if floorplanID != "" {
		e.floorplanID = floorplanID
	}
	changed := e.sizer.Reset()
	if e.drag != nil && e.policy == CancelDrag {
		e.CancelDrag()
	}
	if changed {
		e.store.emit(Change{Kind: ChangeViewport})
	}
}

func (e *Engine) Viewport() (Viewport, bool) { return e.sizer.Viewport() }

func (e *Engine) Container() Size { return e.sizer.Container() }

// Snapshot - текущая проекция всех объектов; пустая без вьюпорта.
func (e *Engine) Snapshot() []Placement {
	vp, ok := e.sizer.Viewport()
	if !ok {
		return nil
	}
	return e.store.Project(vp)
}

// Layout - проекция всех объектов или ErrNoViewport, пока план или
// контейнер не имеют размера.
func (e *Engine) Layout() ([]Placement, error) {
	vp, ok := e.sizer.Viewport()
	if !ok {
		return nil, ErrNoViewport
	}
	return e.store.Project(vp), nil
}

func (e *Engine) viewportChanged() {
	if e.drag != nil && e.policy == CancelDrag {
		e.CancelDrag()
	}
	e.store.emit(Change{Kind: ChangeViewport})
}

// ============================================================
// Local edits
// ============================================================

// Place размещает объект по действию пользователя.
func (e *Engine) Place(id string, kind Kind, p Point) error {
	if err := e.store.Add(Object{ID: id, Kind: kind, Position: p}); err != nil {
		return err
	}
	e.scheduleSave()
	return nil
}

// Delete удаляет объект по команде пользователя.
func (e *Engine) Delete(id string) bool {
	if e.drag != nil && e.drag.id == id {
		e.drag = nil
	}
	delete(e.deferred, id)
	if !e.store.Remove(id) {
		return false
	}
	e.scheduleSave()
	return true
}

// MoveTo - локальная запись позиции с последующим сохранением.
func (e *Engine) MoveTo(id string, p Point) bool {
	if !e.store.UpdatePosition(id, p) {
		return false
	}
	e.scheduleSave()
	return true
}

// Measure запоминает отрисованный размер виджета.
func (e *Engine) Measure(id string, size Size) bool {
	return e.store.SetSize(id, size)
}

// Restore загружает сохранённую раскладку без планирования записи.
// Неизвестные теги вида превращаются в generic sensor при разборе.
func (e *Engine) Restore(positions []Position) {
	for _, p := range positions {
		pt := Point{X: p.X, Y: p.Y}
		if !e.store.UpdatePosition(p.EntityID, pt) {
			_ = e.store.Add(Object{ID: p.EntityID, Kind: p.Kind, Position: pt})
		}
	}
}

func (e *Engine) Positions() []Position { return e.store.Positions() }

// Edits - счётчик локальных правок, каждая из которых планирует запись.
func (e *Engine) Edits() uint64 { return e.edits }

func (e *Engine) scheduleSave() {
	e.edits++
	if e.onSave != nil {
		e.onSave()
	}
}

// ============================================================
// Pointer input
// ============================================================

// PointerDown начинает жест. Игнорируется вне режима раскладки, при
// уже активном жесте, для неизвестного объекта и без вьюпорта.
func (e *Engine) PointerDown(id string, pointer Point) bool {
	if !e.editing || e.drag != nil {
		return false
	}
	obj, ok := e.store.Get(id)
	if !ok {
		return false
	}
	vp, ok := e.sizer.Viewport()
	if !ok {
		return false
	}
	e.drag = newDragSession(obj, pointer, vp, e.sizer.Container())
	return true
}

// PointerMove ведёт виджет за указателем. Позиция пишется в хранилище
// сразу, сохранение не планируется.
func (e *Engine) PointerMove(pointer Point) bool {
	d := e.drag
	if d == nil {
		return false
	}
	if d.phase == DragArmed {
		if !d.exceeds(pointer, e.threshold) {
			return false
		}
		d.phase = DragDragging
	}
	e.store.UpdatePosition(d.id, d.track(pointer))
	return true
}

// PointerUp завершает жест: удаление над корзиной, иначе фиксация.
// Отложенная удалённая позиция отбрасывается, локальная правка главнее.
func (e *Engine) PointerUp() Drop {
	d := e.drag
	if d == nil {
		return Drop{Outcome: DropNone}
	}
	e.drag = nil

	if d.phase == DragArmed {
		e.applyDeferred(d.id)
		obj, _ := e.store.Get(d.id)
		return Drop{ID: d.id, Outcome: DropCancelled, Position: obj.Position}
	}

	delete(e.deferred, d.id)
	if !e.trash.Empty() && d.rect.Overlaps(e.trash) {
		e.store.Remove(d.id)
		e.scheduleSave()
		return Drop{ID: d.id, Outcome: DropTrashed}
	}

	obj, ok := e.store.Get(d.id)
	if !ok {
		return Drop{ID: d.id, Outcome: DropCancelled}
	}
	e.scheduleSave()
	return Drop{ID: d.id, Outcome: DropCommitted, Position: obj.Position}
}

// CancelDrag возвращает объект на позицию до нажатия и применяет
// отложенное удалённое обновление, если оно пришло во время жеста.
func (e *Engine) CancelDrag() Drop {
	d := e.drag
	if d == nil {
		return Drop{Outcome: DropNone}
	}
	e.drag = nil
	e.store.UpdatePosition(d.id, d.start)
	e.applyDeferred(d.id)
	obj, _ := e.store.Get(d.id)
	return Drop{ID: d.id, Outcome: DropCancelled, Position: obj.Position}
}

// Drag возвращает id объекта под жестом и фазу.
func (e *Engine) Drag() (string, DragPhase) {
	if e.drag == nil {
		return "", DragIdle
	}
	return e.drag.id, e.drag.phase
}

// DragRect - прямоугольник виджета под указателем.
func (e *Engine) DragRect() (Rect, bool) {
	if e.drag == nil {
		return Rect{}, false
	}
	return e.drag.rect, true
}

func (e *Engine) dragging(id string) bool {
	return e.drag != nil && e.drag.id == id
}

func (e *Engine) applyDeferred(id string) {
	p, ok := e.deferred[id]
	if !ok {
		return
	}
	delete(e.deferred, id)
	e.store.UpdatePosition(id, p)
}

// ============================================================
// Live updates
// ============================================================

// ApplyState вливает push состояния. Позицию не трогает и безопасен
// во время жеста; неизвестный id молча пропускается.
func (e *Engine) ApplyState(id string, st State) bool {
	return e.store.UpdateState(id, st)
}

// ApplyPositions заменяет позиции всех id из push. Позиция объекта
// под жестом откладывается до его завершения. Новые id размещаются.
func (e *Engine) ApplyPositions(positions []Position) {
	for _, p := range positions {
		pt := Constrain(Point{X: p.X, Y: p.Y})
		if e.dragging(p.EntityID) {
			e.deferred[p.EntityID] = pt
			continue
		}
		if !e.store.UpdatePosition(p.EntityID, pt) {
			kind := p.Kind
			if kind == KindSensor {
				kind = KindFromEntityID(p.EntityID)
			}
			_ = e.store.Add(Object{ID: p.EntityID, Kind: kind, Position: pt})
		}
	}
}

// SyncPositions - полная замена набора: как ApplyPositions, плюс
// удаление объектов, отсутствующих в push (кроме объекта под жестом).
func (e *Engine) SyncPositions(positions []Position) {
	keep := make(map[string]struct{}, len(positions))
	for _, p := range positions {
		keep[p.EntityID] = struct{}{}
	}
	for _, obj := range e.store.Objects() {
		if _, ok := keep[obj.ID]; ok || e.dragging(obj.ID) {
			continue
		}
		e.store.Remove(obj.ID)
	}
	e.ApplyPositions(positions)
}

// KindFromEntityID - вид виджета по домену сущности, когда тег
// вида не передан.
func KindFromEntityID(entityID string) Kind {
	domain, _, _ := strings.Cut(entityID, ".")
	switch domain {
	case "light":
		if strings.Contains(entityID, "brightness") {
			return KindLightLevel
		}
		return KindLight
	case "cover":
		if strings.Contains(entityID, "vertical") {
			return KindCoverVertical
		}
		return KindCoverHorizontal
	case "climate":
		return KindThermostat
	}
	return KindSensor
}
