package layout

import "context"

// ============================================================
// External collaborators
// ============================================================

// Persister сохраняет набор позиций плана (persist-position-set).
type Persister interface {
	PersistPositions(ctx context.Context, floorplanID string, positions []Position) error
}

// AssetLoader разрешает URL плана в натуральный размер изображения.
type AssetLoader interface {
	LoadAsset(ctx context.Context, url string) (Size, error)
}

// CommandSender отправляет команду устройству (send-device-command).
type CommandSender interface {
	SendCommand(ctx context.Context, entityID, service string, data map[string]any) error
}

// PushKind - вид асинхронного push от транспорта.
type PushKind int

const (
	PushState PushKind = iota
	PushPositions
	PushPlan
)

func (k PushKind) String() string {
	switch k {
	case PushState:
		return "state"
	case PushPositions:
		return "positions"
	case PushPlan:
		return "plan"
	}
	return "unknown"
}

// Push - одно асинхронное обновление от транспорта.
type Push struct {
	Kind PushKind

	// PushState
	EntityID string
	State    State

	// PushPositions
	FloorplanID string
	Positions   []Position
	// Full - набор полный: отсутствующие объекты удаляются.
	Full bool

	// PushPlan
	PlanURL string
	// Natural - размер, если его сообщил сервер; иначе грузится ассет.
	Natural Size
}
