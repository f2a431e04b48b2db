package hub

import (
	"sort"
	"strings"

	"ha-floorplan/pkg/layout"
)

// ============================================================
// Registry entries (config/*_registry/list)
// ============================================================

type AreaEntry struct {
	AreaID string `json:"area_id"`
	Name   string `json:"name"`
}

type DeviceEntry struct {
	ID         string `json:"id"`
	AreaID     string `json:"area_id"`
	Name       string `json:"name"`
	NameByUser string `json:"name_by_user"`
}

// DisplayName - имя, заданное пользователем, иначе заводское.
func (d DeviceEntry) DisplayName() string {
	if d.NameByUser != "" {
		return d.NameByUser
	}
	return d.Name
}

// Entity - запись реестра сущностей.
type Entity struct {
	EntityID       string `json:"entity_id"`
	Name           string `json:"name"`
	OriginalName   string `json:"original_name,omitempty"`
	DeviceID       string `json:"device_id,omitempty"`
	AreaID         string `json:"area_id,omitempty"`
	Platform       string `json:"platform,omitempty"`
	EntityCategory string `json:"entity_category,omitempty"`
	HiddenBy       string `json:"hidden_by,omitempty"`
	DisabledBy     string `json:"disabled_by,omitempty"`
}

// Domain - часть entity_id до точки.
func (e Entity) Domain() string {
	domain, _, _ := strings.Cut(e.EntityID, ".")
	return domain
}

// Visible - сущность не скрыта и не отключена.
func (e Entity) Visible() bool {
	return e.HiddenBy == "" && e.DisabledBy == ""
}

// ============================================================
// Tree: area -> device -> entity
// ============================================================

type Device struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Entities map[string]Entity `json:"entities"`
}

type Area struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Devices []Device `json:"devices"`
}

type Tree []Area

// States - последние состояния по entity_id.
type States map[string]layout.State

// BuildTree собирает дерево из трёх реестров. Сущность без имени
// получает имя устройства; устройства без зоны в дерево не попадают.
func BuildTree(areas []AreaEntry, devices []DeviceEntry, entities []Entity) Tree {
	byDevice := make(map[string][]Entity)
	for _, e := range entities {
		if e.DeviceID == "" {
			continue
		}
		byDevice[e.DeviceID] = append(byDevice[e.DeviceID], e)
	}
	byArea := make(map[string][]DeviceEntry)
	for _, d := range devices {
		byArea[d.AreaID] = append(byArea[d.AreaID], d)
	}

	tree := make(Tree, 0, len(areas))
	for _, a := range areas {
		area := Area{ID: a.AreaID, Name: a.Name, Devices: []Device{}}
		for _, d := range byArea[a.AreaID] {
			dev := Device{ID: d.ID, Name: d.DisplayName(), Entities: make(map[string]Entity)}
			for _, e := range byDevice[d.ID] {
				if e.Name == "" {
					e.Name = d.DisplayName()
				}
				dev.Entities[e.EntityID] = e
			}
			area.Devices = append(area.Devices, dev)
		}
		tree = append(tree, area)
	}
	return tree
}

// EntityRef - сущность с путём в дереве.
type EntityRef struct {
	Area   string
	Device string
	Entity Entity
}

// Walk обходит сущности в стабильном порядке (зоны и устройства как в
// дереве, сущности по entity_id).
func (t Tree) Walk(fn func(EntityRef)) {
	for _, area := range t {
		for _, dev := range area.Devices {
			ids := make([]string, 0, len(dev.Entities))
			for id := range dev.Entities {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				fn(EntityRef{Area: area.Name, Device: dev.Name, Entity: dev.Entities[id]})
			}
		}
	}
}

// Find ищет сущность по id.
func (t Tree) Find(entityID string) (EntityRef, bool) {
	for _, area := range t {
		for _, dev := range area.Devices {
			if e, ok := dev.Entities[entityID]; ok {
				return EntityRef{Area: area.Name, Device: dev.Name, Entity: e}, true
			}
		}
	}
	return EntityRef{}, false
}

// EntityCount - число сущностей в дереве.
func (t Tree) EntityCount() int {
	n := 0
	for _, area := range t {
		for _, dev := range area.Devices {
			n += len(dev.Entities)
		}
	}
	return n
}
