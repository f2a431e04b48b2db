package handlers

import (
	"context"
	"encoding/json"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"ha-floorplan/internal/common/apperr"
	"ha-floorplan/internal/relay/models"
)

// ============================================================
// Websocket endpoint
// ============================================================

// Коды ошибок в кадре {id, error, message}.
const (
	wsInvalidRequest       = "invalid_request"
	wsUnknownAction        = "unknown_action"
	wsParseError           = "parse_error"
	wsRefreshError         = "refresh_error"
	wsInvalidCommand       = "invalid_command"
	wsCommandError         = "command_error"
	wsInvalidPositions     = "invalid_positions"
	wsUpdatePositionsError = "update_positions_error"
	wsInvalidDelete        = "invalid_delete"
	wsDeleteFloorplanError = "delete_floorplan_error"
)

const wsMaxMessage = 1 << 20

var upgrader = websocket.FastHTTPUpgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*fasthttp.RequestCtx) bool { return true },
}

// Websocket переводит запрос в websocket и обслуживает клиента до
// разрыва соединения. Обычные запросы уходят дальше по цепочке.
func (h *RelayHandler) Websocket(c fiber.Ctx) error {
	if !websocket.FastHTTPIsWebSocketUpgrade(c.RequestCtx()) {
		return c.Next()
	}
	err := upgrader.Upgrade(c.RequestCtx(), func(conn *websocket.Conn) {
		h.serveWS(conn)
	})
	if err != nil {
		h.log.Warn("websocket upgrade", "err", err)
	}
	return nil
}

// wsSession - один подключённый клиент. Все записи идут через
// Notifier, чтобы кадры ответа и рассылки не перемешивались.
type wsSession struct {
	h  *RelayHandler
	id string
}

func (h *RelayHandler) serveWS(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &wsSession{h: h, id: h.notify.Register(conn)}
	defer h.notify.Unregister(s.id)
	h.log.Info("client connected", "client", s.id, "remote", conn.RemoteAddr())

	conn.SetReadLimit(wsMaxMessage)
	s.refresh(ctx, "initial_"+uuid.NewString())

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			h.log.Info("client disconnected", "client", s.id)
			return
		}
		s.handle(ctx, data)
	}
}

func (s *wsSession) handle(ctx context.Context, data []byte) {
	var req models.WSRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.fail("", wsParseError, "invalid JSON message")
		return
	}
	if req.ID == "" || req.Action == "" {
		s.fail(req.ID, wsInvalidRequest, "id and action are required")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	switch req.Action {
	case "refresh":
		s.refresh(ctx, req.ID)
	case "command":
		s.command(ctx, req)
	case "update_positions":
		s.updatePositions(ctx, req)
	case "delete_floorplan":
		s.deleteFloorplan(ctx, req)
	default:
		s.fail(req.ID, wsUnknownAction, "Unknown action: "+req.Action)
	}
}

func (s *wsSession) send(v any) {
	if err := s.h.notify.Send(s.id, v); err != nil {
		s.h.log.Warn("send to client", "client", s.id, "err", err)
	}
}

func (s *wsSession) fail(id, code, message string) {
	s.send(models.WSError{ID: id, Error: code, Message: message})
}

func (s *wsSession) refresh(ctx context.Context, id string) {
	snap, err := s.h.snapshot(ctx)
	if err != nil {
		s.h.log.Warn("refresh", "client", s.id, "err", err)
		s.fail(id, wsRefreshError, apperr.UserMessage(err))
		return
	}
	s.send(models.Push{Type: "refresh", ID: id, Data: snap})
}

func (s *wsSession) command(ctx context.Context, req models.WSRequest) {
	var cmd models.CommandRequest
	if err := json.Unmarshal(req.Payload, &cmd); err != nil || cmd.EntityID == "" || cmd.Service == "" {
		s.fail(req.ID, wsInvalidCommand, "entity_id and service are required")
		return
	}
	res, err := s.h.hub.Execute(ctx, cmd.EntityID, cmd.Service, cmd.ServiceData)
	if err != nil {
		s.fail(req.ID, wsCommandError, apperr.UserMessage(err))
		return
	}
	s.send(models.WSCommandResponse{
		Type:    "command_response",
		ID:      req.ID,
		Success: true,
		Message: "Command executed (trace " + res.TraceID + ")",
	})
}

// updatePositions сохраняет набор и рассылает refresh всем, кроме
// отправителя: у него эти позиции уже есть.
func (s *wsSession) updatePositions(ctx context.Context, req models.WSRequest) {
	var body models.SavePositionsRequest
	if err := json.Unmarshal(req.Payload, &body); err != nil || body.FloorplanID == "" || body.Positions == nil {
		s.fail(req.ID, wsInvalidPositions, "floorplanId and positions are required")
		return
	}
	if _, err := s.h.persistPositions(ctx, body.FloorplanID, body.Positions); err != nil {
		s.fail(req.ID, wsUpdatePositionsError, apperr.UserMessage(err))
		return
	}
	s.h.broadcastRefresh(ctx, s.id)
}

func (s *wsSession) deleteFloorplan(ctx context.Context, req models.WSRequest) {
	var body models.DeleteFloorplanRequest
	if err := json.Unmarshal(req.Payload, &body); err != nil || body.FloorplanID == "" {
		s.fail(req.ID, wsInvalidDelete, "floorplanId is required")
		return
	}
	if err := s.h.repo.DeleteFloorplan(ctx, body.FloorplanID); err != nil {
		s.fail(req.ID, wsDeleteFloorplanError, apperr.UserMessage(err))
		return
	}
	s.h.prune(ctx)
	s.h.log.Info("floorplan deleted", "plan", body.FloorplanID, "client", s.id)
	s.h.broadcastRefresh(ctx, "")
}
