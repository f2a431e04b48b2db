package hub

import (
	"encoding/json"
	"testing"
)

func TestBuildTree(t *testing.T) {
	areas := []AreaEntry{{AreaID: "living", Name: "Living room"}, {AreaID: "empty", Name: "Attic"}}
	devices := []DeviceEntry{
		{ID: "d1", AreaID: "living", Name: "Hue bulb", NameByUser: "Ceiling"},
		{ID: "d2", AreaID: "living", Name: "Thermo"},
		{ID: "d3", AreaID: "", Name: "Orphan"},
	}
	entities := []Entity{
		{EntityID: "light.ceiling", DeviceID: "d1"},
		{EntityID: "sensor.temp", DeviceID: "d2", Name: "Temperature"},
		{EntityID: "sensor.orphan", DeviceID: "d3"},
		{EntityID: "sun.sun"},
	}

	tree := BuildTree(areas, devices, entities)
	if len(tree) != 2 {
		t.Fatalf("areas = %d", len(tree))
	}
	living := tree[0]
	if len(living.Devices) != 2 {
		t.Fatalf("living devices = %d", len(living.Devices))
	}
	if living.Devices[0].Name != "Ceiling" {
		t.Errorf("device name = %q, want name_by_user", living.Devices[0].Name)
	}
	if got := living.Devices[0].Entities["light.ceiling"].Name; got != "Ceiling" {
		t.Errorf("entity name fallback = %q", got)
	}
	if got := living.Devices[1].Entities["sensor.temp"].Name; got != "Temperature" {
		t.Errorf("entity name = %q", got)
	}
	if len(tree[1].Devices) != 0 {
		t.Errorf("attic devices = %v", tree[1].Devices)
	}
	if tree.EntityCount() != 2 {
		t.Errorf("EntityCount = %d", tree.EntityCount())
	}
	ref, ok := tree.Find("sensor.temp")
	if !ok || ref.Area != "Living room" || ref.Device != "Thermo" {
		t.Errorf("Find = %+v, %v", ref, ok)
	}

	var seen []string
	tree.Walk(func(r EntityRef) { seen = append(seen, r.Entity.EntityID) })
	if len(seen) != 2 || seen[0] != "light.ceiling" {
		t.Errorf("Walk order = %v", seen)
	}
}

func TestDecodeStates(t *testing.T) {
	raw := json.RawMessage(`[
		{"entity_id":"light.a","state":"on","attributes":{"brightness":200},
		 "context":{"id":"x"},"last_changed":"t","last_updated":"t","last_reported":"t"},
		{"state":"orphan"}
	]`)
	states, err := DecodeStates(raw)
	if err != nil {
		t.Fatalf("DecodeStates: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("states = %v", states)
	}
	st := states["light.a"]
	if st.State != "on" || st.Attributes["brightness"] != float64(200) {
		t.Errorf("state = %+v", st)
	}
	if _, err := DecodeStates(json.RawMessage(`{}`)); err == nil {
		t.Error("object accepted as state list")
	}
}
