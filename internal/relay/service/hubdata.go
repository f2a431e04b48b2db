package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ha-floorplan/internal/common/apperr"
	"ha-floorplan/internal/relay/cache"
	"ha-floorplan/pkg/hub"
	"ha-floorplan/pkg/layout"
)

// ============================================================
// Hub data service
// ============================================================

// HubAPI - запросы к хабу, нужные сервису данных.
type HubAPI interface {
	Call(ctx context.Context, msg map[string]any) (json.RawMessage, error)
	Subscribe(ctx context.Context, eventType string, fn func(HubEvent)) error
	CallService(ctx context.Context, entityID, service string, data map[string]any) (json.RawMessage, error)
}

// Broadcaster рассылает обновления клиентам.
type Broadcaster interface {
	BroadcastUpdate(kind string, data any)
}

const treeCacheKey = "hub:tree"

// События реестров, после которых дерево нужно пересобрать.
var registryEvents = []string{
	"area_registry_updated",
	"device_registry_updated",
	"entity_registry_updated",
}

type HubDataConfig struct {
	// TTL кэша дерева и периода перезагрузки состояний.
	TTL time.Duration
	// DumpDir - каталог для отладочного дампа коллекций; пусто - выключено.
	DumpDir string
	Logger  *log.Logger
}

// HubData собирает дерево зон/устройств/сущностей и держит актуальную
// карту состояний, обновляемую событиями state_changed.
type HubData struct {
	hub    HubAPI
	cache  cache.Cache
	notify Broadcaster
	cfg    HubDataConfig
	log    *log.Logger
	now    func() time.Time

	mu       sync.RWMutex
	states   hub.States
	statesAt time.Time
}

func NewHubData(api HubAPI, c cache.Cache, notify Broadcaster, cfg HubDataConfig) *HubData {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	return &HubData{
		hub:    api,
		cache:  c,
		notify: notify,
		cfg:    cfg,
		log:    logger.WithPrefix("hubdata"),
		now:    time.Now,
	}
}

// Start подписывается на state_changed и события реестров.
func (d *HubData) Start(ctx context.Context) error {
	if err := d.hub.Subscribe(ctx, "state_changed", d.onStateChanged); err != nil {
		return fmt.Errorf("subscribe state_changed: %w", err)
	}
	for _, ev := range registryEvents {
		if err := d.hub.Subscribe(ctx, ev, func(HubEvent) { go d.onRegistryChanged(ctx) }); err != nil {
			return fmt.Errorf("subscribe %s: %w", ev, err)
		}
	}
	return nil
}

// ============================================================
// Tree
// ============================================================

// Tree возвращает дерево из кэша или собирает его из трёх реестров,
// запрошенных параллельно.
func (d *HubData) Tree(ctx context.Context) (hub.Tree, error) {
	var tree hub.Tree
	if hit, err := cache.GetJSON(ctx, d.cache, treeCacheKey, &tree); err != nil {
		d.log.Warn("tree cache read", "err", err)
	} else if hit {
		return tree, nil
	}

	tree, err := d.fetchTree(ctx)
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, d.cache, treeCacheKey, tree, d.cfg.TTL); err != nil {
		d.log.Warn("tree cache write", "err", err)
	}
	return tree, nil
}

func (d *HubData) fetchTree(ctx context.Context) (hub.Tree, error) {
	var areasRaw, devicesRaw, entitiesRaw json.RawMessage

	g, gctx := errgroup.WithContext(ctx)
	fetch := func(kind string, dst *json.RawMessage) {
		g.Go(func() error {
			raw, err := d.hub.Call(gctx, map[string]any{"type": "config/" + kind + "/list"})
			if err != nil {
				return fmt.Errorf("%s: %w", kind, err)
			}
			*dst = raw
			d.dump(kind, raw)
			return nil
		})
	}
	fetch("area_registry", &areasRaw)
	fetch("device_registry", &devicesRaw)
	fetch("entity_registry", &entitiesRaw)
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		areas    []hub.AreaEntry
		devices  []hub.DeviceEntry
		entities []hub.Entity
	)
	if err := json.Unmarshal(areasRaw, &areas); err != nil {
		return nil, apperr.Wrap(apperr.CodeMalformedData, err, "decode areas")
	}
	if err := json.Unmarshal(devicesRaw, &devices); err != nil {
		return nil, apperr.Wrap(apperr.CodeMalformedData, err, "decode devices")
	}
	if err := json.Unmarshal(entitiesRaw, &entities); err != nil {
		return nil, apperr.Wrap(apperr.CodeMalformedData, err, "decode entities")
	}

	tree := hub.BuildTree(areas, devices, entities)
	d.log.Debug("tree built", "areas", len(tree), "entities", tree.EntityCount())
	return tree, nil
}

// InvalidateTree сбрасывает кэш дерева.
func (d *HubData) InvalidateTree(ctx context.Context) {
	if err := d.cache.Delete(ctx, treeCacheKey); err != nil {
		d.log.Warn("tree cache delete", "err", err)
	}
}

func (d *HubData) onRegistryChanged(ctx context.Context) {
	d.InvalidateTree(ctx)
	tree, err := d.Tree(ctx)
	if err != nil {
		d.log.Warn("rebuild tree", "err", err)
		return
	}
	if d.notify != nil {
		d.notify.BroadcastUpdate("tree", tree)
	}
}

// ============================================================
// States
// ============================================================

// States возвращает копию карты состояний, загружая её при первом
// обращении и по истечении TTL.
func (d *HubData) States(ctx context.Context) (hub.States, error) {
	d.mu.RLock()
	fresh := d.states != nil && (d.cfg.TTL <= 0 || d.now().Sub(d.statesAt) < d.cfg.TTL)
	if fresh {
		out := maps.Clone(d.states)
		d.mu.RUnlock()
		return out, nil
	}
	d.mu.RUnlock()

	if err := d.ReloadStates(ctx); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return maps.Clone(d.states), nil
}

// ReloadStates заново читает get_states.
func (d *HubData) ReloadStates(ctx context.Context) error {
	raw, err := d.hub.Call(ctx, map[string]any{"type": "get_states"})
	if err != nil {
		return fmt.Errorf("get_states: %w", err)
	}
	d.dump("states", raw)

	states, err := hub.DecodeStates(raw)
	if err != nil {
		return apperr.Wrap(apperr.CodeMalformedData, err, "decode states")
	}

	d.mu.Lock()
	d.states = states
	d.statesAt = d.now()
	d.mu.Unlock()
	d.log.Debug("states loaded", "count", len(states))
	return nil
}

type stateChanged struct {
	EntityID string          `json:"entity_id"`
	NewState json.RawMessage `json:"new_state"`
}

// onStateChanged патчит карту и рассылает state_updated. new_state
// null означает удаление сущности.
func (d *HubData) onStateChanged(ev HubEvent) {
	var data stateChanged
	if err := json.Unmarshal(ev.Data, &data); err != nil || data.EntityID == "" {
		d.log.Warn("malformed state_changed", "err", err)
		return
	}

	if len(data.NewState) == 0 || string(data.NewState) == "null" {
		d.mu.Lock()
		delete(d.states, data.EntityID)
		d.mu.Unlock()
		return
	}

	st, err := hub.DecodeState(data.NewState)
	if err != nil {
		d.log.Warn("decode new_state", "entity", data.EntityID, "err", err)
		return
	}
	if st.EntityID == "" {
		st.EntityID = data.EntityID
	}

	// до первой загрузки get_states карту не создаём: частичная карта
	// выглядела бы свежей
	d.mu.Lock()
	if d.states != nil {
		d.states[st.EntityID] = st
	}
	d.mu.Unlock()

	if d.notify != nil {
		d.notify.BroadcastUpdate("state", st)
	}
}

// ============================================================
// Commands
// ============================================================

// CommandResult - итог команды с идентификатором трассировки.
type CommandResult struct {
	TraceID  string
	Duration time.Duration
	Result   json.RawMessage
}

// Execute вызывает сервис хаба для сущности.
func (d *HubData) Execute(ctx context.Context, entityID, service string, data map[string]any) (CommandResult, error) {
	res := CommandResult{TraceID: uuid.NewString()}
	if entityID == "" || service == "" {
		return res, apperr.New(apperr.CodeInvalidInput, "entity_id and service are required")
	}

	start := d.now()
	d.log.Info("command", "trace", res.TraceID, "entity", entityID, "service", service)
	result, err := d.hub.CallService(ctx, entityID, service, data)
	res.Duration = d.now().Sub(start)
	if err != nil {
		d.log.Error("command failed", "trace", res.TraceID, "entity", entityID, "err", err)
		return res, err
	}
	res.Result = result
	return res, nil
}

// SendCommand - вариант Execute без результата (layout.CommandSender).
func (d *HubData) SendCommand(ctx context.Context, entityID, service string, data map[string]any) error {
	_, err := d.Execute(ctx, entityID, service, data)
	return err
}

var _ layout.CommandSender = (*HubData)(nil)

// ============================================================
// Debug dump
// ============================================================

func (d *HubData) dump(name string, raw json.RawMessage) {
	if d.cfg.DumpDir == "" {
		return
	}
	if err := os.MkdirAll(d.cfg.DumpDir, 0o755); err != nil {
		d.log.Warn("dump dir", "err", err)
		return
	}
	path := filepath.Join(d.cfg.DumpDir, name+".json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		d.log.Warn("dump collection", "name", name, "err", err)
	}
}
