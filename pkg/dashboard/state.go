package dashboard

import (
	"errors"
	"time"

	"ha-floorplan/pkg/layout"
)

// ============================================================
// Application state
// ============================================================

type Mode int

const (
	ModeNormal Mode = iota
	// ModeEdit - режим раскладки: виджеты перетаскиваются, видна корзина.
	ModeEdit
)

func (m Mode) String() string {
	if m == ModeEdit {
		return "edit"
	}
	return "normal"
}

var (
	// ErrNoFloorplan - из режима раскладки нельзя выйти без загруженного плана.
	ErrNoFloorplan = errors.New("dashboard: cannot leave edit mode without a floorplan")
	// ErrNotEditing - добавлять сущности можно только в режиме раскладки.
	ErrNotEditing = errors.New("dashboard: entities can only be added in edit mode")
)

// AppState - состояние приложения, из которого строится View.
type AppState struct {
	Mode         Mode
	HasFloorplan bool
	FirstUpload  bool
	FloorplanID  string
	PlanURL      string
	Saving       bool
	LastSave     time.Time
	LastRefresh  time.Time
	Notice       string
	// Container - размер области плана; от него считается корзина.
	Container layout.Size
}

func NewAppState() AppState {
	return AppState{Mode: ModeNormal, FirstUpload: true}
}

// EnterEdit всегда разрешён.
func (s *AppState) EnterEdit() {
	s.Mode = ModeEdit
}

func (s *AppState) ExitEdit() error {
	if !s.HasFloorplan {
		return ErrNoFloorplan
	}
	s.Mode = ModeNormal
	return nil
}

// CanAdd проверяет, можно ли сейчас размещать сущности.
func (s AppState) CanAdd() error {
	if s.Mode != ModeEdit {
		return ErrNotEditing
	}
	return nil
}

// PlanUploaded отмечает появление плана.
func (s *AppState) PlanUploaded(floorplanID, url string) {
	s.HasFloorplan = true
	s.FirstUpload = false
	s.FloorplanID = floorplanID
	s.PlanURL = url
}

func (s *AppState) SaveStarted() { s.Saving = true }

func (s *AppState) SaveFinished(at time.Time, err error) {
	s.Saving = false
	if err != nil {
		s.Notice = err.Error()
		return
	}
	s.LastSave = at
}
