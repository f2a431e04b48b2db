package models

import "encoding/json"

// ============================================================
// HTTP payloads
// ============================================================

// SavePositionsRequest - тело POST /api/config/save и PUT .../positions.
type SavePositionsRequest struct {
	FloorplanID string     `json:"floorplanId"`
	Positions   []Position `json:"positions"`
}

// CommandRequest - команда устройству через хаб.
type CommandRequest struct {
	EntityID    string         `json:"entity_id"`
	Service     string         `json:"service"`
	ServiceData map[string]any `json:"service_data,omitempty"`
}

type CommandResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	TraceID  string `json:"traceId"`
	Duration int64  `json:"duration"`
	Result   any    `json:"result,omitempty"`
}

// FloorplanRef - план для клиента с путём ассета на ретрансляторе.
type FloorplanRef struct {
	ID            string  `json:"id"`
	Path          string  `json:"path"`
	Filename      string  `json:"filename"`
	NaturalWidth  float64 `json:"natural_width,omitempty"`
	NaturalHeight float64 `json:"natural_height,omitempty"`
}

// ============================================================
// Websocket frames
// ============================================================

// WSRequest - запрос клиента {id, action, payload}.
type WSRequest struct {
	ID      string          `json:"id"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSError - ответ об ошибке {id, error, message}.
type WSError struct {
	ID      string `json:"id"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type DeleteFloorplanRequest struct {
	FloorplanID string `json:"floorplanId"`
}

// WSCommandResponse подтверждает выполненную команду.
type WSCommandResponse struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Push - кадр рассылки update:<type> и refresh.
type Push struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Data      any    `json:"data,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// StatePayload - payload кадра state_updated.
type StatePayload struct {
	EntityID string `json:"entity_id"`
	NewState any    `json:"new_state"`
}
