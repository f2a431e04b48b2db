package handlers

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"

	"ha-floorplan/internal/common/apperr"
)

func startServer(t *testing.T, app *fiber.App) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		_ = app.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true})
	}()
	t.Cleanup(func() { _ = app.ShutdownWithTimeout(time.Second) })
	return "ws://" + ln.Addr().String()
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	var (
		conn *websocket.Conn
		err  error
	)
	// сервер поднимается в фоне
	for range 50 {
		conn, _, err = websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			t.Cleanup(func() { conn.Close() })
			return conn
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("dial %s: %v", url, err)
	return nil
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m map[string]any
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return m
}

func expectError(t *testing.T, conn *websocket.Conn, id, code string) {
	t.Helper()
	m := readFrame(t, conn)
	if m["error"] != code || m["id"] != id {
		t.Fatalf("frame = %v, want error %s for id %q", m, code, id)
	}
	if m["message"] == "" {
		t.Errorf("error %s without message", code)
	}
}

func planPositions(t *testing.T, refresh map[string]any, plan string) []any {
	t.Helper()
	plans := refresh["data"].(map[string]any)["plans"].(map[string]any)
	entry, ok := plans[plan].(map[string]any)
	if !ok {
		return nil
	}
	return entry["positions"].([]any)
}

func TestWebsocketSession(t *testing.T) {
	env := newTestEnv(t)
	env.seedPlan(t, "ground", 1000, 500)
	url := startServer(t, env.app)

	a := dial(t, url+"/ws")
	initial := readFrame(t, a)
	if initial["type"] != "refresh" || !strings.HasPrefix(initial["id"].(string), "initial_") {
		t.Fatalf("initial frame = %v", initial)
	}
	if positions := planPositions(t, initial, "ground"); positions == nil || len(positions) != 0 {
		t.Errorf("initial plans = %v", initial["data"])
	}

	b := dial(t, url)
	if m := readFrame(t, b); m["type"] != "refresh" {
		t.Fatalf("second client initial = %v", m)
	}

	t.Run("malformed requests", func(t *testing.T) {
		if err := a.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
			t.Fatal(err)
		}
		expectError(t, a, "", "parse_error")

		_ = a.WriteJSON(map[string]any{"action": "refresh"})
		expectError(t, a, "", "invalid_request")

		_ = a.WriteJSON(map[string]any{"id": "1", "action": "dance"})
		expectError(t, a, "1", "unknown_action")
	})

	t.Run("command", func(t *testing.T) {
		_ = a.WriteJSON(map[string]any{"id": "2", "action": "command", "payload": map[string]any{"entity_id": "light.kitchen", "service": "light.toggle"}})
		m := readFrame(t, a)
		if m["type"] != "command_response" || m["id"] != "2" || m["success"] != true {
			t.Errorf("command frame = %v", m)
		}

		_ = a.WriteJSON(map[string]any{"id": "3", "action": "command", "payload": map[string]any{"entity_id": "light.kitchen"}})
		expectError(t, a, "3", "invalid_command")
	})

	t.Run("update positions", func(t *testing.T) {
		_ = a.WriteJSON(map[string]any{"id": "4", "action": "update_positions", "payload": map[string]any{
			"floorplanId": "ground",
			"positions":   []map[string]any{{"entity_id": "light.kitchen", "x": 0.3, "y": 0.4}},
		}})

		m := readFrame(t, b)
		if m["type"] != "refresh" || len(planPositions(t, m, "ground")) != 1 {
			t.Errorf("other client frame = %v", m)
		}

		// отправитель ничего не получает: следующий кадр - ответ на refresh
		_ = a.WriteJSON(map[string]any{"id": "5", "action": "refresh"})
		if m := readFrame(t, a); m["type"] != "refresh" || m["id"] != "5" {
			t.Errorf("sender got %v", m)
		}

		_ = a.WriteJSON(map[string]any{"id": "6", "action": "update_positions", "payload": map[string]any{"floorplanId": "ground"}})
		expectError(t, a, "6", "invalid_positions")

		_ = a.WriteJSON(map[string]any{"id": "7", "action": "update_positions", "payload": map[string]any{"floorplanId": "attic", "positions": []any{}}})
		expectError(t, a, "7", "update_positions_error")
	})

	t.Run("delete floorplan", func(t *testing.T) {
		_ = a.WriteJSON(map[string]any{"id": "8", "action": "delete_floorplan", "payload": map[string]any{}})
		expectError(t, a, "8", "invalid_delete")

		_ = a.WriteJSON(map[string]any{"id": "9", "action": "delete_floorplan", "payload": map[string]any{"floorplanId": "attic"}})
		expectError(t, a, "9", "delete_floorplan_error")

		_ = a.WriteJSON(map[string]any{"id": "10", "action": "delete_floorplan", "payload": map[string]any{"floorplanId": "ground"}})
		for name, conn := range map[string]*websocket.Conn{"sender": a, "other": b} {
			m := readFrame(t, conn)
			if m["type"] != "refresh" || planPositions(t, m, "ground") != nil {
				t.Errorf("%s frame after delete = %v", name, m)
			}
		}
	})
}

func TestWebsocketRefreshErrorWhenHubDown(t *testing.T) {
	env := newTestEnv(t)
	env.hub.err = apperr.New(apperr.CodeHubUnavailable, "hub not connected")
	url := startServer(t, env.app)

	conn := dial(t, url+"/ws")
	m := readFrame(t, conn)
	if m["error"] != "refresh_error" || !strings.HasPrefix(m["id"].(string), "initial_") {
		t.Errorf("frame = %v", m)
	}
}
