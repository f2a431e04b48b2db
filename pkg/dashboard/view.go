package dashboard

import (
	"math"
	"time"

	"ha-floorplan/pkg/layout"
)

// ============================================================
// View
// ============================================================

// MenuItem - пункт меню; Action обрабатывает внешний UI.
type MenuItem struct {
	Action string `json:"action"`
	Label  string `json:"label"`
	Icon   string `json:"icon"`
}

// WidgetView - всё, что нужно UI для отрисовки одного виджета.
type WidgetView struct {
	ID        string      `json:"id"`
	Kind      layout.Kind `json:"kind"`
	Rect      layout.Rect `json:"rect"`
	Classes   []string    `json:"classes"`
	Label     string      `json:"label"`
	Controls  []string    `json:"controls,omitempty"`
	Draggable bool        `json:"draggable"`
}

// View - описание экрана, не зависящее от UI-тулкита.
type View struct {
	Mode         Mode         `json:"mode"`
	Title        string       `json:"title"`
	Menu         []MenuItem   `json:"menu"`
	TrashVisible bool         `json:"trash_visible"`
	Trash        layout.Rect  `json:"trash"`
	NoPlan       bool         `json:"no_plan"`
	Saving       bool         `json:"saving"`
	LastSave     time.Time    `json:"last_save"`
	Widgets      []WidgetView `json:"widgets"`
	Notice       string       `json:"notice,omitempty"`
}

// Renderer строит View из AppState и снимка раскладки.
type Renderer struct {
	Sensors *SensorRegistry
}

func NewRenderer(sensors *SensorRegistry) *Renderer {
	if sensors == nil {
		sensors = DefaultSensorRegistry()
	}
	return &Renderer{Sensors: sensors}
}

// Render - чистая функция состояния. objects и placements должны
// относиться к одному моменту (Engine.Store().Objects() и Engine.Snapshot()).
func (r *Renderer) Render(app AppState, objects []layout.Object, placements []layout.Placement) View {
	v := View{
		Mode:         app.Mode,
		TrashVisible: app.Mode == ModeEdit,
		NoPlan:       !app.HasFloorplan || placements == nil,
		Saving:       app.Saving,
		LastSave:     app.LastSave,
		Notice:       app.Notice,
	}
	if app.Mode == ModeEdit {
		v.Trash = TrashRect(app.Container)
		v.Title = "Layout mode"
		v.Menu = []MenuItem{
			{Action: "exit-edit", Label: "Leave layout mode", Icon: "times"},
			{Action: "upload", Label: "Upload a plan", Icon: "upload"},
			{Action: "add-entity", Label: "Available entities", Icon: "list"},
		}
	} else {
		v.Title = "Main menu"
		v.Menu = []MenuItem{
			{Action: "enter-edit", Label: "Layout mode", Icon: "cog"},
			{Action: "upload", Label: "Upload a plan", Icon: "upload"},
			{Action: "refresh", Label: "Refresh data", Icon: "sync"},
		}
	}

	rects := make(map[string]layout.Rect, len(placements))
	for _, p := range placements {
		rects[p.ID] = p.Rect
	}
	for _, obj := range objects {
		rect, ok := rects[obj.ID]
		if !ok {
			continue
		}
		w := r.Widget(obj)
		w.Rect = rect
		w.Draggable = app.Mode == ModeEdit
		v.Widgets = append(v.Widgets, w)
	}
	return v
}

// Корзина стоит в правом нижнем углу контейнера.
var (
	TrashSize   = layout.Size{Width: 60, Height: 60}
	trashMargin = 20.0
)

// TrashRect - прямоугольник корзины в координатах контейнера. Для
// контейнера без размера пустой.
func TrashRect(container layout.Size) layout.Rect {
	if container.Degenerate() {
		return layout.Rect{}
	}
	return layout.Rect{
		Left:   math.Max(0, container.Width-TrashSize.Width-trashMargin),
		Top:    math.Max(0, container.Height-TrashSize.Height-trashMargin),
		Width:  TrashSize.Width,
		Height: TrashSize.Height,
	}
}

// Widget описывает один объект без геометрии.
func (r *Renderer) Widget(obj layout.Object) WidgetView {
	w := WidgetView{ID: obj.ID, Kind: obj.Kind}
	st := obj.State
	on := st != nil && st.State == "on"

	switch obj.Kind {
	case layout.KindLight:
		w.Classes = []string{"light", pick(on, "on", "off")}
	case layout.KindLightLevel:
		w.Classes = []string{"light", "with-brightness", pick(on, "on", "off")}
		w.Controls = []string{"minus", "plus"}
		b, _ := numberAttr(st, "brightness")
		w.Label = formatNumber(b)
	case layout.KindCoverVertical:
		w.Classes = []string{"cover", "vertical"}
		w.Controls = []string{"up", "stop", "down"}
		w.Label = coverLabel(st)
	case layout.KindCoverHorizontal:
		w.Classes = []string{"cover", "horizontal"}
		w.Controls = []string{"left", "stop", "right"}
		w.Label = coverLabel(st)
	case layout.KindThermostat:
		w.Classes = []string{"thermostat"}
		w.Controls = []string{"minus", "plus"}
		t, ok := numberAttr(st, "temperature")
		if !ok {
			t = 20
		}
		w.Label = formatNumber(t) + "°C"
	case layout.KindSensor:
		w.Classes = []string{"sensor"}
		w.Label = "-"
		if st != nil {
			t := r.Sensors.Resolve(obj.ID, *st)
			w.Classes = append(w.Classes, t.Name)
			w.Label = t.Format(*st)
		}
	}
	return w
}

func coverLabel(st *layout.State) string {
	if st == nil {
		return "50%"
	}
	p, _ := numberAttr(st, "current_position")
	return formatNumber(p) + "%"
}

// WidgetSize - ожидаемый размер виджета до реального замера UI.
// Ширина сенсора растёт с длиной подписи (8px на символ).
func WidgetSize(w WidgetView) layout.Size {
	switch w.Kind {
	case layout.KindLight:
		return layout.Size{Width: 40, Height: 40}
	case layout.KindLightLevel:
		return layout.Size{Width: 40, Height: 70}
	case layout.KindCoverVertical:
		return layout.Size{Width: 60, Height: 90}
	case layout.KindCoverHorizontal:
		return layout.Size{Width: 90, Height: 60}
	case layout.KindThermostat:
		return layout.Size{Width: 110, Height: 40}
	case layout.KindSensor:
		n := float64(len([]rune(w.Label)))
		return layout.Size{Width: math.Max(20, n*8+2), Height: 24}
	}
	return layout.DefaultWidgetSize
}
