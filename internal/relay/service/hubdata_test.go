package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ha-floorplan/internal/common/apperr"
	"ha-floorplan/internal/relay/cache"
)

type fakeHubAPI struct {
	mu        sync.Mutex
	responses map[string]string
	calls     map[string]int
	handlers  map[string][]func(HubEvent)
	services  []string
	failWith  error
}

func newFakeHubAPI() *fakeHubAPI {
	return &fakeHubAPI{
		responses: map[string]string{
			"config/area_registry/list":   `[{"area_id":"kitchen","name":"Kitchen"}]`,
			"config/device_registry/list": `[{"id":"d1","area_id":"kitchen","name":"Hue","name_by_user":"Ceiling"}]`,
			"config/entity_registry/list": `[{"entity_id":"light.kitchen","device_id":"d1"},{"entity_id":"sensor.temp","device_id":"d1","name":"Temp"}]`,
			"get_states": `[{"entity_id":"light.kitchen","state":"on","attributes":{"brightness":200},"context":{"id":"x"}},
				{"entity_id":"sensor.temp","state":"21.5","attributes":{"unit_of_measurement":"°C"}}]`,
		},
		calls:    make(map[string]int),
		handlers: make(map[string][]func(HubEvent)),
	}
}

func (f *fakeHubAPI) Call(_ context.Context, msg map[string]any) (json.RawMessage, error) {
	typ := msg["type"].(string)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[typ]++
	if f.failWith != nil {
		return nil, f.failWith
	}
	return json.RawMessage(f.responses[typ]), nil
}

func (f *fakeHubAPI) Subscribe(_ context.Context, eventType string, fn func(HubEvent)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[eventType] = append(f.handlers[eventType], fn)
	return nil
}

func (f *fakeHubAPI) CallService(_ context.Context, entityID, service string, _ map[string]any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.services = append(f.services, entityID+" "+service)
	return json.RawMessage(`{"context":{}}`), nil
}

func (f *fakeHubAPI) count(typ string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[typ]
}

func (f *fakeHubAPI) emit(eventType, data string) {
	f.mu.Lock()
	fns := append([]func(HubEvent){}, f.handlers[eventType]...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(HubEvent{EventType: eventType, Data: json.RawMessage(data)})
	}
}

type recordedUpdate struct {
	kind string
	data any
}

type recordingBroadcaster struct {
	mu      sync.Mutex
	updates []recordedUpdate
}

func (b *recordingBroadcaster) BroadcastUpdate(kind string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, recordedUpdate{kind, data})
}

func (b *recordingBroadcaster) kinds() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.updates))
	for i, u := range b.updates {
		out[i] = u.kind
	}
	return out
}

func TestHubDataTreeCached(t *testing.T) {
	api := newFakeHubAPI()
	d := NewHubData(api, cache.NewMemoryCache(), nil, HubDataConfig{TTL: time.Minute})
	ctx := context.Background()

	tree, err := d.Tree(ctx)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if len(tree) != 1 || tree[0].Name != "Kitchen" {
		t.Fatalf("tree = %+v", tree)
	}
	dev := tree[0].Devices[0]
	if dev.Name != "Ceiling" {
		t.Errorf("device name = %q, want name_by_user", dev.Name)
	}
	if dev.Entities["light.kitchen"].Name != "Ceiling" {
		t.Errorf("unnamed entity should take device name, got %q", dev.Entities["light.kitchen"].Name)
	}

	if _, err := d.Tree(ctx); err != nil {
		t.Fatal(err)
	}
	if n := api.count("config/area_registry/list"); n != 1 {
		t.Errorf("area registry fetched %d times, want cached", n)
	}

	d.InvalidateTree(ctx)
	if _, err := d.Tree(ctx); err != nil {
		t.Fatal(err)
	}
	if n := api.count("config/area_registry/list"); n != 2 {
		t.Errorf("after invalidate fetched %d times", n)
	}
}

func TestHubDataTreeMalformed(t *testing.T) {
	api := newFakeHubAPI()
	api.responses["config/device_registry/list"] = `{"not":"a list"}`
	d := NewHubData(api, nil, nil, HubDataConfig{})

	if _, err := d.Tree(context.Background()); !apperr.Is(err, apperr.CodeMalformedData) {
		t.Errorf("err = %v, want MALFORMED_DATA", err)
	}
}

func TestHubDataStatesTTL(t *testing.T) {
	api := newFakeHubAPI()
	d := NewHubData(api, nil, nil, HubDataConfig{TTL: time.Minute})
	now := time.Unix(1000, 0)
	d.now = func() time.Time { return now }
	ctx := context.Background()

	states, err := d.States(ctx)
	if err != nil {
		t.Fatalf("States: %v", err)
	}
	if states["light.kitchen"].State != "on" || len(states) != 2 {
		t.Fatalf("states = %+v", states)
	}

	// копия не должна влиять на внутреннюю карту
	delete(states, "light.kitchen")
	if _, err := d.States(ctx); err != nil {
		t.Fatal(err)
	}
	if api.count("get_states") != 1 {
		t.Errorf("get_states = %d, want 1 within TTL", api.count("get_states"))
	}

	now = now.Add(2 * time.Minute)
	again, err := d.States(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if api.count("get_states") != 2 {
		t.Errorf("get_states = %d, want reload after TTL", api.count("get_states"))
	}
	if _, ok := again["light.kitchen"]; !ok {
		t.Error("internal map was mutated through the copy")
	}
}

func TestHubDataStateChanged(t *testing.T) {
	api := newFakeHubAPI()
	b := &recordingBroadcaster{}
	d := NewHubData(api, nil, b, HubDataConfig{})
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// до первой загрузки событие только рассылается
	api.emit("state_changed", `{"entity_id":"light.kitchen","new_state":{"entity_id":"light.kitchen","state":"off","attributes":{}}}`)
	if got := b.kinds(); len(got) != 1 || got[0] != "state" {
		t.Fatalf("broadcasts = %v", got)
	}

	if _, err := d.States(ctx); err != nil {
		t.Fatal(err)
	}
	api.emit("state_changed", `{"entity_id":"light.kitchen","new_state":{"entity_id":"light.kitchen","state":"off","attributes":{},"last_changed":"x"}}`)
	api.emit("state_changed", `{"entity_id":"sensor.temp","new_state":null}`)
	api.emit("state_changed", `not json`)

	states, _ := d.States(ctx)
	if states["light.kitchen"].State != "off" {
		t.Errorf("light state = %q", states["light.kitchen"].State)
	}
	if _, ok := states["sensor.temp"]; ok {
		t.Error("null new_state should remove the entity")
	}
	if got := b.kinds(); len(got) != 2 {
		t.Errorf("broadcasts = %v, want two state pushes", got)
	}
}

func TestHubDataRegistryChangeBroadcastsTree(t *testing.T) {
	api := newFakeHubAPI()
	b := &recordingBroadcaster{}
	d := NewHubData(api, cache.NewMemoryCache(), b, HubDataConfig{TTL: time.Minute})
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Tree(ctx); err != nil {
		t.Fatal(err)
	}

	api.emit("entity_registry_updated", `{"action":"update"}`)
	waitFor(t, func() bool {
		k := b.kinds()
		return len(k) == 1 && k[0] == "tree"
	})
	if n := api.count("config/entity_registry/list"); n != 2 {
		t.Errorf("entity registry fetched %d times, want rebuild", n)
	}
}

func TestHubDataExecute(t *testing.T) {
	api := newFakeHubAPI()
	d := NewHubData(api, nil, nil, HubDataConfig{})
	ctx := context.Background()

	res, err := d.Execute(ctx, "light.kitchen", "light.toggle", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.TraceID == "" || string(res.Result) != `{"context":{}}` {
		t.Errorf("result = %+v", res)
	}
	if len(api.services) != 1 || api.services[0] != "light.kitchen light.toggle" {
		t.Errorf("services = %v", api.services)
	}

	for _, tc := range []struct{ entity, service string }{{"", "light.toggle"}, {"light.kitchen", ""}} {
		if _, err := d.Execute(ctx, tc.entity, tc.service, nil); !apperr.Is(err, apperr.CodeInvalidInput) {
			t.Errorf("Execute(%q, %q) err = %v", tc.entity, tc.service, err)
		}
	}

	api.failWith = errors.New("boom")
	if err := d.SendCommand(ctx, "light.kitchen", "light.toggle", nil); err == nil {
		t.Error("hub failure not propagated")
	}
}

func TestHubDataDump(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "collections")
	d := NewHubData(newFakeHubAPI(), nil, nil, HubDataConfig{DumpDir: dir})
	if _, err := d.Tree(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := d.ReloadStates(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"area_registry", "device_registry", "entity_registry", "states"} {
		if _, err := os.Stat(filepath.Join(dir, name+".json")); err != nil {
			t.Errorf("dump %s: %v", name, err)
		}
	}
}
