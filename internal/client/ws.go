package client

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/fasthttp/websocket"

	"ha-floorplan/internal/common/apperr"
	"ha-floorplan/internal/relay/models"
	"ha-floorplan/pkg/hub"
	"ha-floorplan/pkg/layout"
)

// ============================================================
// Websocket
// ============================================================

// Frame - кадр, пришедший от ретранслятора.
type Frame struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// refreshData - содержимое кадра refresh.
type refreshData struct {
	Tree   hub.Tree         `json:"tree"`
	States hub.States       `json:"states"`
	Plans  models.Hierarchy `json:"plans"`
}

// WebsocketURL - адрес websocket ретранслятора.
func (c *Client) WebsocketURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

// Listen читает кадры ретранслятора и отдаёт их fn до разрыва
// соединения или отмены ctx. При отмене возвращает nil.
func (c *Client) Listen(ctx context.Context, fn func(Frame)) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.WebsocketURL(), http.Header{})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return apperr.Retryable(apperr.Wrap(apperr.CodeNetwork, err, "dial relay websocket"))
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
			conn.Close()
		}
	}()

	c.log.Info("relay websocket connected", "url", c.WebsocketURL())
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return apperr.Retryable(apperr.Wrap(apperr.CodeNetwork, err, "relay websocket"))
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn("malformed relay frame", "err", err)
			continue
		}
		fn(f)
	}
}

// Pushes переводит кадр в push-и движка раскладки. planID - план,
// который показывает клиент; позиции прочих планов из refresh не
// нужны. Неизвестные типы кадров дают nil.
func (c *Client) Pushes(f Frame, planID string) ([]layout.Push, error) {
	switch f.Type {
	case "state_updated":
		var p struct {
			EntityID string          `json:"entity_id"`
			NewState json.RawMessage `json:"new_state"`
		}
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return nil, apperr.Wrap(apperr.CodeMalformedData, err, "state_updated")
		}
		if len(p.NewState) == 0 || string(p.NewState) == "null" {
			return nil, nil
		}
		st, err := hub.DecodeState(p.NewState)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeMalformedData, err, "state_updated")
		}
		if st.EntityID == "" {
			st.EntityID = p.EntityID
		}
		return []layout.Push{{Kind: layout.PushState, EntityID: st.EntityID, State: st}}, nil

	case "update:config":
		var req models.SavePositionsRequest
		if err := json.Unmarshal(f.Data, &req); err != nil {
			return nil, apperr.Wrap(apperr.CodeMalformedData, err, "update:config")
		}
		return []layout.Push{{
			Kind:        layout.PushPositions,
			FloorplanID: req.FloorplanID,
			Positions:   models.ToLayout(req.Positions),
			Full:        true,
		}}, nil

	case "update:floorplan":
		var ref models.FloorplanRef
		if err := json.Unmarshal(f.Data, &ref); err != nil {
			return nil, apperr.Wrap(apperr.CodeMalformedData, err, "update:floorplan")
		}
		path := ref.Path
		if path == "" {
			path = models.AssetPath(ref.Filename)
		}
		return []layout.Push{{
			Kind:        layout.PushPlan,
			FloorplanID: ref.ID,
			PlanURL:     c.AssetURL(path),
			Natural:     layout.Size{Width: ref.NaturalWidth, Height: ref.NaturalHeight},
		}}, nil

	case "refresh":
		var data refreshData
		if err := json.Unmarshal(f.Data, &data); err != nil {
			return nil, apperr.Wrap(apperr.CodeMalformedData, err, "refresh")
		}
		var out []layout.Push
		if planID != "" {
			// план удалён: пустой полный набор очищает раскладку
			entry := data.Plans[planID]
			out = append(out, layout.Push{
				Kind:        layout.PushPositions,
				FloorplanID: planID,
				Positions:   models.ToLayout(entry.Positions),
				Full:        true,
			})
		}
		ids := make([]string, 0, len(data.States))
		for id := range data.States {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			out = append(out, layout.Push{Kind: layout.PushState, EntityID: id, State: data.States[id]})
		}
		return out, nil
	}
	return nil, nil
}
