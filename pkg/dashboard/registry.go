package dashboard

import (
	"fmt"
	"sort"
	"strings"

	"ha-floorplan/pkg/layout"
)

// ============================================================
// Sensor registry
// ============================================================

// SensorType описывает один вид сенсора: когда он применим и как
// отображается его значение.
type SensorType struct {
	Name      string
	Priority  int
	CanHandle func(entityID string, st layout.State) bool
	Format    func(st layout.State) string
}

// SensorRegistry выбирает SensorType по убыванию приоритета.
// Строится явно при старте, глобального экземпляра нет.
type SensorRegistry struct {
	types    []SensorType
	fallback SensorType
}

// NewSensorRegistry регистрирует типы из списка. Тип с именем
// "generic" становится запасным.
func NewSensorRegistry(types ...SensorType) *SensorRegistry {
	r := &SensorRegistry{fallback: GenericSensor}
	for _, t := range types {
		r.Register(t)
	}
	return r
}

// DefaultSensorRegistry - реестр со встроенными типами.
func DefaultSensorRegistry() *SensorRegistry {
	return NewSensorRegistry(TemperatureSensor, HumiditySensor, BinarySensor, GenericSensor)
}

func (r *SensorRegistry) Register(t SensorType) {
	if t.Name == "" || t.Format == nil {
		return
	}
	if t.Name == GenericSensor.Name {
		r.fallback = t
	}
	for i, existing := range r.types {
		if existing.Name == t.Name {
			r.types[i] = t
			r.sort()
			return
		}
	}
	r.types = append(r.types, t)
	r.sort()
}

func (r *SensorRegistry) sort() {
	sort.SliceStable(r.types, func(i, j int) bool {
		return r.types[i].Priority > r.types[j].Priority
	})
}

// Resolve возвращает первый подходящий тип или generic.
func (r *SensorRegistry) Resolve(entityID string, st layout.State) SensorType {
	for _, t := range r.types {
		if t.CanHandle != nil && t.CanHandle(entityID, st) {
			return t
		}
	}
	return r.fallback
}

// Names - зарегистрированные типы в порядке приоритета.
func (r *SensorRegistry) Names() []string {
	out := make([]string, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t.Name)
	}
	return out
}

func unit(st layout.State) string {
	u, _ := st.Attributes["unit_of_measurement"].(string)
	return u
}

func valueWithUnit(st layout.State) string {
	if st.State == "" {
		return "-"
	}
	if u := unit(st); u != "" {
		return st.State + " " + u
	}
	return st.State
}

var TemperatureSensor = SensorType{
	Name:     "temperature",
	Priority: 10,
	CanHandle: func(id string, st layout.State) bool {
		u := unit(st)
		return strings.HasPrefix(id, "sensor.temperature") || u == "°C" || u == "°F"
	},
	Format: valueWithUnit,
}

var HumiditySensor = SensorType{
	Name:     "humidity",
	Priority: 5,
	CanHandle: func(id string, st layout.State) bool {
		return strings.HasPrefix(id, "sensor.humidity") || unit(st) == "%"
	},
	Format: func(st layout.State) string {
		if st.State == "" {
			return "-"
		}
		return st.State + "%"
	},
}

var BinarySensor = SensorType{
	Name:     "binary",
	Priority: 5,
	CanHandle: func(id string, _ layout.State) bool {
		return strings.HasPrefix(id, "binary_sensor.")
	},
	Format: func(st layout.State) string {
		on := st.State == "on"
		class, _ := st.Attributes["device_class"].(string)
		switch class {
		case "door", "window", "opening", "garage_door":
			return pick(on, "open", "closed")
		case "motion", "occupancy", "presence":
			return pick(on, "detected", "clear")
		}
		if st.State == "" {
			return "-"
		}
		return st.State
	},
}

var GenericSensor = SensorType{
	Name:      "generic",
	Priority:  0,
	CanHandle: func(string, layout.State) bool { return true },
	Format:    valueWithUnit,
}

func pick(cond bool, yes, no string) string {
	if cond {
		return yes
	}
	return no
}

// numberAttr читает числовой атрибут (JSON отдаёт float64).
func numberAttr(st *layout.State, key string) (float64, bool) {
	if st == nil {
		return 0, false
	}
	switch v := st.Attributes[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.1f", v)
}
