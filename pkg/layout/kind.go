package layout

import (
	"encoding/json"
	"fmt"
)

// ============================================================
// Object Kind
// ============================================================

// Kind - закрытый набор видов виджетов. Новый вид добавляется
// только вместе с веткой в каждом switch по Kind.
type Kind int

const (
	KindSensor Kind = iota
	KindLight
	KindLightLevel
	KindCoverVertical
	KindCoverHorizontal
	KindThermostat
)

// Kinds перечисляет все виды в порядке объявления.
var Kinds = []Kind{
	KindSensor,
	KindLight,
	KindLightLevel,
	KindCoverVertical,
	KindCoverHorizontal,
	KindThermostat,
}

// String возвращает тег вида в формате хранения.
func (k Kind) String() string {
	switch k {
	case KindSensor:
		return "sensor"
	case KindLight:
		return "light"
	case KindLightLevel:
		return "light-brightness"
	case KindCoverVertical:
		return "cover-vertical"
	case KindCoverHorizontal:
		return "cover-horizontal"
	case KindThermostat:
		return "thermostat"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind разбирает тег. Пустая строка означает generic sensor.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "sensor", "generic-sensor":
		return KindSensor, nil
	case "light":
		return KindLight, nil
	case "light-brightness", "light-with-level":
		return KindLightLevel, nil
	case "cover-vertical":
		return KindCoverVertical, nil
	case "cover-horizontal":
		return KindCoverHorizontal, nil
	case "thermostat":
		return KindThermostat, nil
	}
	return KindSensor, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
