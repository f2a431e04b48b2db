package service

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fasthttp/websocket"
	"github.com/google/uuid"

	"ha-floorplan/internal/relay/models"
	"ha-floorplan/pkg/layout"
)

// ============================================================
// Notifier
// ============================================================

const clientQueueSize = 64

// ClientConn - то, что нужно нотификатору от websocket-соединения.
type ClientConn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type wsClient struct {
	id   string
	conn ClientConn
	send chan []byte
}

// Notifier хранит подключённых клиентов и рассылает им push-кадры.
// У каждого клиента своя очередь и писатель; клиент с переполненной
// очередью отключается.
type Notifier struct {
	mu      sync.Mutex
	clients map[string]*wsClient
	log     *log.Logger
	now     func() time.Time
}

func NewNotifier(logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Notifier{
		clients: make(map[string]*wsClient),
		log:     logger.WithPrefix("notify"),
		now:     time.Now,
	}
}

// Register добавляет клиента и возвращает его id.
func (n *Notifier) Register(conn ClientConn) string {
	c := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, clientQueueSize),
	}

	n.mu.Lock()
	n.clients[c.id] = c
	total := len(n.clients)
	n.mu.Unlock()

	go n.writer(c)
	n.log.Debug("client connected", "id", c.id, "total", total)
	return c.id
}

// Unregister убирает клиента; повторный вызов ничего не делает.
func (n *Notifier) Unregister(id string) {
	n.mu.Lock()
	c, ok := n.clients[id]
	if ok {
		delete(n.clients, id)
		close(c.send)
	}
	total := len(n.clients)
	n.mu.Unlock()

	if ok {
		n.log.Debug("client disconnected", "id", id, "total", total)
	}
}

func (n *Notifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.clients)
}

func (n *Notifier) writer(c *wsClient) {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			n.log.Debug("write failed", "id", c.id, "err", err)
			n.Unregister(c.id)
			return
		}
	}
}

// Send ставит кадр в очередь одного клиента.
func (n *Notifier) Send(id string, v any) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if c, ok := n.clients[id]; ok {
		n.enqueue(c, msg)
	}
	return nil
}

// BroadcastUpdate рассылает обновление всем клиентам. Тип "state"
// уходит кадром state_updated, прочие - update:<type>.
func (n *Notifier) BroadcastUpdate(kind string, data any) {
	var push models.Push
	if kind == "state" {
		push = models.Push{Type: "state_updated", Payload: statePayload(data)}
	} else {
		push = models.Push{Type: "update:" + kind, Timestamp: n.now().UnixMilli(), Data: data}
	}
	n.broadcast(push, "")
}

// BroadcastState - push состояния одной сущности.
func (n *Notifier) BroadcastState(st layout.State) {
	n.BroadcastUpdate("state", st)
}

// BroadcastRefresh рассылает полный снимок всем, кроме except.
func (n *Notifier) BroadcastRefresh(data any, except string) {
	n.broadcast(models.Push{Type: "refresh", Data: data}, except)
}

func (n *Notifier) broadcast(push models.Push, except string) {
	msg, err := json.Marshal(push)
	if err != nil {
		n.log.Error("encode push", "type", push.Type, "err", err)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	sent := 0
	for id, c := range n.clients {
		if id == except {
			continue
		}
		if n.enqueue(c, msg) {
			sent++
		}
	}
	n.log.Debug("broadcast", "type", push.Type, "sent", sent, "clients", len(n.clients))
}

// enqueue вызывается под n.mu.
func (n *Notifier) enqueue(c *wsClient, msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		n.log.Warn("client too slow, dropping", "id", c.id)
		delete(n.clients, c.id)
		close(c.send)
		return false
	}
}

func statePayload(data any) models.StatePayload {
	if st, ok := data.(layout.State); ok {
		return models.StatePayload{EntityID: st.EntityID, NewState: st}
	}
	return models.StatePayload{NewState: data}
}
