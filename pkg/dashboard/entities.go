package dashboard

import (
	"strings"

	"ha-floorplan/pkg/hub"
	"ha-floorplan/pkg/layout"
)

var (
	excludedCategories = map[string]bool{"config": true, "diagnostic": true, "system": true}
	excludedEntities   = map[string]bool{"sensor.date": true, "sensor.time": true}
)

// Candidate - сущность, которую можно разместить на плане.
type Candidate struct {
	Area     string
	Device   string
	EntityID string
	Name     string
	Kind     layout.Kind
}

// Displayable - сущность имеет смысл показывать на плане.
func Displayable(e hub.Entity) bool {
	if excludedCategories[e.EntityCategory] || excludedCategories[e.Domain()] {
		return false
	}
	if excludedEntities[e.EntityID] {
		return false
	}
	id := e.EntityID
	if strings.Contains(id, "_config") || strings.Contains(id, "_diagnostic") {
		return false
	}
	return e.Visible()
}

// Available перечисляет сущности дерева, ещё не размещённые на плане.
func Available(tree hub.Tree, states hub.States, placed map[string]bool) []Candidate {
	var out []Candidate
	tree.Walk(func(ref hub.EntityRef) {
		e := ref.Entity
		if placed[e.EntityID] || !Displayable(e) {
			return
		}
		st, hasState := states[e.EntityID]
		name := e.Name
		if hasState {
			if fn, ok := st.Attributes["friendly_name"].(string); ok && fn != "" {
				name = fn
			}
		}
		var sp *layout.State
		if hasState {
			sp = &st
		}
		out = append(out, Candidate{
			Area:     ref.Area,
			Device:   ref.Device,
			EntityID: e.EntityID,
			Name:     name,
			Kind:     KindFor(e.EntityID, sp),
		})
	})
	return out
}

// KindFor выбирает вид виджета по entity_id; свет с атрибутом
// brightness получает регулятор яркости.
func KindFor(entityID string, st *layout.State) layout.Kind {
	kind := layout.KindFromEntityID(entityID)
	if kind == layout.KindLight && st != nil {
		if _, ok := st.Attributes["brightness"]; ok {
			return layout.KindLightLevel
		}
	}
	return kind
}
