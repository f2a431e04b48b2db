package layout

import (
	"maps"
	"sort"
)

// ============================================================
// Placed Objects
// ============================================================

// State - непрозрачный снимок состояния сущности от хаба.
type State struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Position - запись о размещении в формате хранения (нормализованная).
type Position struct {
	EntityID string  `json:"entity_id"`
	Kind     Kind    `json:"kind"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// Object - размещённый на плане виджет.
type Object struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	Position Point  `json:"position"`
	// Size - измеренный размер виджета; нулевой означает "ещё не измерен".
	Size  Size   `json:"size"`
	State *State `json:"state,omitempty"`
}

// Placement - производная проекция объекта в пиксели контейнера.
type Placement struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	Rect Rect   `json:"rect"`
}

// ChangeKind описывает мутацию хранилища.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeRemoved
	ChangeMoved
	ChangeState
	ChangeResized
	ChangeViewport
)

func (c ChangeKind) String() string {
	switch c {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	case ChangeMoved:
		return "moved"
	case ChangeState:
		return "state"
	case ChangeResized:
		return "resized"
	case ChangeViewport:
		return "viewport"
	}
	return "unknown"
}

// Change - уведомление "layout changed".
type Change struct {
	Kind ChangeKind
	ID   string
}

// ============================================================
// Object Layout Store
// ============================================================

// Store - единственный источник правды о размещённых объектах.
// Не потокобезопасен: владелец один (см. Loop).
type Store struct {
	objects   map[string]*Object
	order     []string
	listeners []func(Change)
}

func NewStore() *Store {
	return &Store{
		objects: make(map[string]*Object),
	}
}

// OnChange подписывает fn на уведомления о каждой мутации.
func (s *Store) OnChange(fn func(Change)) {
	s.listeners = append(s.listeners, fn)
}

// Add размещает новый объект. Позиция прижимается к [0,1].
// Повторный id отклоняется с ErrDuplicateObject, хранилище не меняется.
func (s *Store) Add(obj Object) error {
	if _, exists := s.objects[obj.ID]; exists {
		return ErrDuplicateObject
	}
	obj.Position = Constrain(obj.Position)
	if obj.State != nil {
		st := cloneState(*obj.State)
		obj.State = &st
	}
	s.objects[obj.ID] = &obj
	s.order = append(s.order, obj.ID)
	s.emit(Change{Kind: ChangeAdded, ID: obj.ID})
	return nil
}

// Remove удаляет объект. Отсутствующий id - не ошибка.
func (s *Store) Remove(id string) bool {
	if _, ok := s.objects[id]; !ok {
		return false
	}
	delete(s.objects, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.emit(Change{Kind: ChangeRemoved, ID: id})
	return true
}

// UpdatePosition сохраняет Constrain(p). Неизвестный id - no-op.
func (s *Store) UpdatePosition(id string, p Point) bool {
	obj, ok := s.objects[id]
	if !ok {
		return false
	}
	p = Constrain(p)
	if obj.Position == p {
		return true
	}
	obj.Position = p
	s.emit(Change{Kind: ChangeMoved, ID: id})
	return true
}

// UpdateState сливает новое состояние, не трогая позицию. Обновление
// для ещё не размещённого объекта просто отбрасывается.
func (s *Store) UpdateState(id string, st State) bool {
	obj, ok := s.objects[id]
	if !ok {
		return false
	}
	merged := st
	if obj.State != nil {
		merged = mergeState(*obj.State, st)
	} else {
		merged = cloneState(st)
	}
	merged.EntityID = id
	obj.State = &merged
	s.emit(Change{Kind: ChangeState, ID: id})
	return true
}

// SetSize запоминает измеренный размер виджета.
func (s *Store) SetSize(id string, size Size) bool {
	obj, ok := s.objects[id]
	if !ok {
		return false
	}
	if obj.Size == size {
		return true
	}
	obj.Size = size
	s.emit(Change{Kind: ChangeResized, ID: id})
	return true
}

// Get возвращает копию объекта.
func (s *Store) Get(id string) (Object, bool) {
	obj, ok := s.objects[id]
	if !ok {
		return Object{}, false
	}
	return copyObject(obj), true
}

func (s *Store) Has(id string) bool {
	_, ok := s.objects[id]
	return ok
}

func (s *Store) Len() int { return len(s.objects) }

// Objects возвращает копии объектов в порядке размещения.
func (s *Store) Objects() []Object {
	out := make([]Object, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copyObject(s.objects[id]))
	}
	return out
}

// Positions - снимок для сохранения, отсортирован по entity_id.
func (s *Store) Positions() []Position {
	out := make([]Position, 0, len(s.objects))
	for _, obj := range s.objects {
		out = append(out, Position{
			EntityID: obj.ID,
			Kind:     obj.Kind,
			X:        obj.Position.X,
			Y:        obj.Position.Y,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// Project проецирует все объекты в пиксели контейнера. Чистая функция
// хранилища и вьюпорта; без вьюпорта результат пустой.
func (s *Store) Project(vp Viewport) []Placement {
	if !vp.Valid() {
		return nil
	}
	out := make([]Placement, 0, len(s.order))
	for _, id := range s.order {
		obj := s.objects[id]
		out = append(out, Placement{
			ID:   id,
			Kind: obj.Kind,
			Rect: PlaceRect(obj.Position, obj.Size, vp),
		})
	}
	return out
}

// PlaceRect - прямоугольник виджета с центром в нормализованной точке p.
func PlaceRect(p Point, widget Size, vp Viewport) Rect {
	if widget.Degenerate() {
		widget = DefaultWidgetSize
	}
	anchor := ToAbsolute(p, vp.Displayed).Add(vp.Offset)
	origin := anchor.Sub(CenterOffset(widget))
	return Rect{
		Left:   origin.X,
		Top:    origin.Y,
		Width:  widget.Width,
		Height: widget.Height,
	}
}

func (s *Store) emit(c Change) {
	for _, fn := range s.listeners {
		fn(c)
	}
}

func copyObject(obj *Object) Object {
	out := *obj
	if obj.State != nil {
		st := cloneState(*obj.State)
		out.State = &st
	}
	return out
}

func cloneState(st State) State {
	st.Attributes = maps.Clone(st.Attributes)
	return st
}

// mergeState: пустая строка состояния не затирает прежнюю,
// атрибуты сливаются поверх.
func mergeState(prev, next State) State {
	out := cloneState(prev)
	if next.State != "" {
		out.State = next.State
	}
	if len(next.Attributes) > 0 {
		if out.Attributes == nil {
			out.Attributes = make(map[string]any, len(next.Attributes))
		}
		maps.Copy(out.Attributes, next.Attributes)
	}
	return out
}
