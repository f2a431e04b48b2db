package dashboard

import (
	"errors"
	"testing"

	"ha-floorplan/pkg/hub"
	"ha-floorplan/pkg/layout"
)

func TestModeTransitions(t *testing.T) {
	s := NewAppState()
	if err := s.CanAdd(); !errors.Is(err, ErrNotEditing) {
		t.Errorf("CanAdd in normal mode = %v", err)
	}

	s.EnterEdit()
	if s.Mode != ModeEdit {
		t.Fatalf("mode = %v", s.Mode)
	}
	if err := s.CanAdd(); err != nil {
		t.Errorf("CanAdd in edit mode = %v", err)
	}
	if err := s.ExitEdit(); !errors.Is(err, ErrNoFloorplan) {
		t.Fatalf("ExitEdit without plan = %v", err)
	}
	if s.Mode != ModeEdit {
		t.Errorf("failed exit changed mode to %v", s.Mode)
	}

	s.PlanUploaded("ground", "/uploads/ground.png")
	if s.FirstUpload || !s.HasFloorplan {
		t.Errorf("state after upload = %+v", s)
	}
	if err := s.ExitEdit(); err != nil {
		t.Fatalf("ExitEdit: %v", err)
	}
	if s.Mode != ModeNormal {
		t.Errorf("mode = %v", s.Mode)
	}
}

func TestKindFor(t *testing.T) {
	dimmable := &layout.State{State: "on", Attributes: map[string]any{"brightness": 120.0}}
	tests := []struct {
		id   string
		st   *layout.State
		want layout.Kind
	}{
		{"light.hall", nil, layout.KindLight},
		{"light.hall", dimmable, layout.KindLightLevel},
		{"light.desk_brightness", nil, layout.KindLightLevel},
		{"cover.bedroom_vertical", nil, layout.KindCoverVertical},
		{"cover.awning", nil, layout.KindCoverHorizontal},
		{"climate.living", nil, layout.KindThermostat},
		{"sensor.power", nil, layout.KindSensor},
	}
	for _, tt := range tests {
		if got := KindFor(tt.id, tt.st); got != tt.want {
			t.Errorf("KindFor(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func testTree() hub.Tree {
	return hub.BuildTree(
		[]hub.AreaEntry{{AreaID: "living", Name: "Living"}},
		[]hub.DeviceEntry{{ID: "d1", AreaID: "living", Name: "Multi"}},
		[]hub.Entity{
			{EntityID: "light.ceiling", DeviceID: "d1"},
			{EntityID: "sensor.temperature_living", DeviceID: "d1"},
			{EntityID: "sensor.date", DeviceID: "d1"},
			{EntityID: "sensor.fw_version", DeviceID: "d1", EntityCategory: "diagnostic"},
			{EntityID: "switch.led_config", DeviceID: "d1"},
			{EntityID: "sensor.hidden", DeviceID: "d1", HiddenBy: "user"},
			{EntityID: "cover.blind", DeviceID: "d1"},
		},
	)
}

func TestAvailable(t *testing.T) {
	states := hub.States{
		"light.ceiling": {EntityID: "light.ceiling", State: "on", Attributes: map[string]any{
			"brightness": 80.0, "friendly_name": "Ceiling light",
		}},
	}
	got := Available(testTree(), states, map[string]bool{"cover.blind": true})

	want := map[string]layout.Kind{
		"light.ceiling":             layout.KindLightLevel,
		"sensor.temperature_living": layout.KindSensor,
	}
	if len(got) != len(want) {
		t.Fatalf("Available = %+v", got)
	}
	for _, c := range got {
		kind, ok := want[c.EntityID]
		if !ok {
			t.Errorf("unexpected candidate %q", c.EntityID)
			continue
		}
		if c.Kind != kind {
			t.Errorf("%s kind = %v, want %v", c.EntityID, c.Kind, kind)
		}
		if c.Area != "Living" || c.Device != "Multi" {
			t.Errorf("%s path = %s/%s", c.EntityID, c.Area, c.Device)
		}
	}
	if got[0].Name != "Ceiling light" {
		t.Errorf("friendly name not used: %q", got[0].Name)
	}
}

func TestSensorRegistry(t *testing.T) {
	r := DefaultSensorRegistry()
	tests := []struct {
		id    string
		st    layout.State
		name  string
		label string
	}{
		{"sensor.temperature_out", layout.State{State: "21.5", Attributes: map[string]any{"unit_of_measurement": "°C"}}, "temperature", "21.5 °C"},
		{"sensor.bath", layout.State{State: "64", Attributes: map[string]any{"unit_of_measurement": "%"}}, "humidity", "64%"},
		{"binary_sensor.front", layout.State{State: "on", Attributes: map[string]any{"device_class": "door"}}, "binary", "open"},
		{"binary_sensor.hall", layout.State{State: "off", Attributes: map[string]any{"device_class": "motion"}}, "binary", "clear"},
		{"sensor.power", layout.State{State: "230", Attributes: map[string]any{"unit_of_measurement": "W"}}, "generic", "230 W"},
		{"sensor.empty", layout.State{}, "generic", "-"},
	}
	for _, tt := range tests {
		typ := r.Resolve(tt.id, tt.st)
		if typ.Name != tt.name {
			t.Errorf("Resolve(%q) = %s, want %s", tt.id, typ.Name, tt.name)
			continue
		}
		if got := typ.Format(tt.st); got != tt.label {
			t.Errorf("%s label = %q, want %q", tt.id, got, tt.label)
		}
	}

	names := r.Names()
	if names[0] != "temperature" || names[len(names)-1] != "generic" {
		t.Errorf("Names = %v", names)
	}
}

func TestSensorRegistryCustomType(t *testing.T) {
	r := NewSensorRegistry(
		SensorType{
			Name:      "power",
			Priority:  20,
			CanHandle: func(id string, _ layout.State) bool { return id == "sensor.power" },
			Format:    func(st layout.State) string { return st.State + "W" },
		},
	)
	if got := r.Resolve("sensor.power", layout.State{State: "5"}); got.Name != "power" {
		t.Errorf("Resolve = %s", got.Name)
	}
	if got := r.Resolve("sensor.other", layout.State{}); got.Name != "generic" {
		t.Errorf("fallback = %s", got.Name)
	}
}

func TestRender(t *testing.T) {
	r := NewRenderer(nil)
	objects := []layout.Object{
		{ID: "light.a", Kind: layout.KindLight, State: &layout.State{State: "on"}},
		{ID: "light.b", Kind: layout.KindLightLevel, State: &layout.State{State: "off", Attributes: map[string]any{"brightness": 0.0}}},
		{ID: "cover.c", Kind: layout.KindCoverVertical, State: &layout.State{Attributes: map[string]any{"current_position": 30.0}}},
		{ID: "cover.d", Kind: layout.KindCoverHorizontal},
		{ID: "climate.e", Kind: layout.KindThermostat, State: &layout.State{Attributes: map[string]any{"temperature": 19.5}}},
		{ID: "sensor.f", Kind: layout.KindSensor, State: &layout.State{State: "12", Attributes: map[string]any{"unit_of_measurement": "lx"}}},
		{ID: "sensor.unplaced", Kind: layout.KindSensor},
	}
	placements := make([]layout.Placement, 0, len(objects)-1)
	for _, o := range objects[:len(objects)-1] {
		placements = append(placements, layout.Placement{ID: o.ID, Kind: o.Kind, Rect: layout.Rect{Width: 50, Height: 50}})
	}

	app := NewAppState()
	app.PlanUploaded("ground", "/uploads/ground.png")
	v := r.Render(app, objects, placements)

	if v.TrashVisible || v.NoPlan || v.Title != "Main menu" {
		t.Errorf("normal view = %+v", v)
	}
	if len(v.Widgets) != 6 {
		t.Fatalf("widgets = %d", len(v.Widgets))
	}
	labels := map[string]string{
		"light.b":   "0",
		"cover.c":   "30%",
		"cover.d":   "50%",
		"climate.e": "19.5°C",
		"sensor.f":  "12 lx",
	}
	for _, w := range v.Widgets {
		if w.Draggable {
			t.Errorf("%s draggable in normal mode", w.ID)
		}
		if want, ok := labels[w.ID]; ok && w.Label != want {
			t.Errorf("%s label = %q, want %q", w.ID, w.Label, want)
		}
	}
	if v.Widgets[0].Classes[1] != "on" {
		t.Errorf("light classes = %v", v.Widgets[0].Classes)
	}

	if !v.Trash.Empty() {
		t.Errorf("trash in normal mode = %+v", v.Trash)
	}

	app.EnterEdit()
	app.Container = layout.Size{Width: 800, Height: 600}
	v = r.Render(app, objects, placements)
	if !v.TrashVisible || v.Title != "Layout mode" || !v.Widgets[0].Draggable {
		t.Errorf("edit view = %+v", v)
	}
	if v.Trash != (layout.Rect{Left: 720, Top: 520, Width: 60, Height: 60}) {
		t.Errorf("trash = %+v", v.Trash)
	}
	if v.Menu[0].Action != "exit-edit" {
		t.Errorf("edit menu = %+v", v.Menu)
	}

	if v := r.Render(app, objects, nil); !v.NoPlan || len(v.Widgets) != 0 {
		t.Errorf("view without viewport = %+v", v)
	}
}

func TestTrashRect(t *testing.T) {
	if got := TrashRect(layout.Size{}); !got.Empty() {
		t.Errorf("trash without container = %+v", got)
	}
	if got := TrashRect(layout.Size{Width: 50, Height: 40}); got.Left != 0 || got.Top != 0 || got.Width != 60 {
		t.Errorf("trash in a small container = %+v", got)
	}
}

func TestWidgetSize(t *testing.T) {
	if got := WidgetSize(WidgetView{Kind: layout.KindSensor, Label: "-"}); got.Width != 20 {
		t.Errorf("short sensor width = %v", got.Width)
	}
	if got := WidgetSize(WidgetView{Kind: layout.KindSensor, Label: "21.5 °C"}); got.Width != 58 {
		t.Errorf("sensor width = %v, want 58", got.Width)
	}
}
