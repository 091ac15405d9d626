package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"p2pio/config"
	"p2pio/contract"
	"p2pio/ledger"
)

func newManager(t *testing.T) *RoomManager {
	t.Helper()
	replica := ledger.NewReplica(contract.Programs())
	rm := NewRoomManager(replica, "room-1", config.RoomConfig{TicksPerSecond: 100, SyncEveryTicks: 1})
	t.Cleanup(rm.Stop)
	return rm
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want contract.Heading
		ok   bool
	}{
		{"up", contract.Up, true},
		{"DOWN", contract.Down, true},
		{" left ", contract.Left, true},
		{"right", contract.Right, true},
		{"stop", contract.Idle, true},
		{"idle", contract.Idle, true},
		{"jump", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseCommand(tt.in)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Fatalf("parseCommand(%q) = %s, %v", tt.in, got, ok)
		}
	}
}

func TestRoomContractIsStable(t *testing.T) {
	rm := newManager(t)
	ctx := context.Background()
	a, err := rm.GetOrCreateRoom(ctx, "arena")
	if err != nil {
		t.Fatalf("GetOrCreateRoom: %v", err)
	}
	b, err := rm.GetOrCreateRoom(ctx, "arena")
	if err != nil || a != b {
		t.Fatalf("second lookup returned a different room (err=%v)", err)
	}
	key, _ := roomKey("arena")
	if a.Contract != key.Address() || !rm.replica.HasContract(a.Contract) {
		t.Fatalf("room contract %s not deployed at derived address", a.Contract)
	}
	other, _ := rm.GetOrCreateRoom(ctx, "lobby")
	if other.Contract == a.Contract {
		t.Fatalf("rooms share a contract")
	}
}

func TestAdminHandlers(t *testing.T) {
	rm := newManager(t)
	if _, err := rm.GetOrCreateRoom(context.Background(), "room-1"); err != nil {
		t.Fatalf("GetOrCreateRoom: %v", err)
	}

	rec := httptest.NewRecorder()
	rm.HandleMetrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	var metrics map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &metrics); err != nil {
		t.Fatalf("metrics body: %v", err)
	}
	if metrics["room"] != "room-1" || metrics["ledger_height"].(float64) != 1 {
		t.Fatalf("metrics = %v", metrics)
	}

	rec = httptest.NewRecorder()
	rm.HandleMetrics(rec, httptest.NewRequest(http.MethodGet, "/metrics?room=nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown room status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	rm.HandleAdminConfig(rec, httptest.NewRequest(http.MethodPost, "/admin/config", strings.NewReader(`{"syncEveryTicks":4}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("config POST status = %d", rec.Code)
	}
	room, _ := rm.GetRoom("room-1")
	if room.syncEvery.Load() != 4 {
		t.Fatalf("syncEvery = %d, want 4", room.syncEvery.Load())
	}

	rec = httptest.NewRecorder()
	rm.HandleAdminConfig(rec, httptest.NewRequest(http.MethodPost, "/admin/config", strings.NewReader(`{"syncEveryTicks":0}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid config status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	rm.HandleAdminConfig(rec, httptest.NewRequest(http.MethodDelete, "/admin/config", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE status = %d", rec.Code)
	}
}

type wsMessage struct {
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Error  string         `json:"error"`
	Seq    int64          `json:"seq"`
	X      *int32         `json:"x"`
	Y      *int32         `json:"y"`
	Events []EventMessage `json:"events"`
}

func dial(t *testing.T, srv *httptest.Server, room string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?room=" + room
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, buf.Bytes()); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
}

// collect 读取消息直到 done 返回 true 或超时
func collect(t *testing.T, conn *websocket.Conn, done func([]wsMessage) bool) []wsMessage {
	t.Helper()
	var got []wsMessage
	deadline := time.Now().Add(5 * time.Second)
	for !done(got) {
		conn.SetReadDeadline(deadline)
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage after %d messages: %v", len(got), err)
		}
		var m wsMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			t.Fatalf("decode %s: %v", payload, err)
		}
		got = append(got, m)
	}
	return got
}

func spawnEvents(msgs []wsMessage, id string) (predicted, confirmed int) {
	for _, m := range msgs {
		for _, e := range m.Events {
			if e.Kind != "spawn" || e.ID != id {
				continue
			}
			switch e.Origin {
			case "predicted":
				predicted++
			case "confirmed":
				confirmed++
			}
		}
	}
	return predicted, confirmed
}

func TestWebSocketSpawnDeliveredTwice(t *testing.T) {
	rm := newManager(t)
	srv := httptest.NewServer(http.HandlerFunc(rm.HandleWS))
	defer srv.Close()

	alice := dial(t, srv, "room-1")
	send(t, alice, InputMessage{Type: "spawn", X: -3, Y: 4, Seq: 7})

	var id string
	msgs := collect(t, alice, func(msgs []wsMessage) bool {
		for _, m := range msgs {
			if m.Type == "spawned" {
				id = m.ID
			}
		}
		if id == "" {
			return false
		}
		p, c := spawnEvents(msgs, id)
		return p == 1 && c == 1
	})
	for _, m := range msgs {
		if m.Type == "spawned" && m.Seq != 7 {
			t.Fatalf("reply seq = %d, want 7", m.Seq)
		}
		if m.Type == "error" {
			t.Fatalf("unexpected error reply: %s", m.Error)
		}
	}

	// 另一个连接从历史开始同步，只看到确认事件
	bob := dial(t, srv, "room-1")
	collect(t, bob, func(msgs []wsMessage) bool {
		p, c := spawnEvents(msgs, id)
		if p != 0 {
			t.Fatalf("bob received alice's prediction")
		}
		return c == 1
	})

	send(t, alice, InputMessage{Type: "query", Seq: 8})
	got := collect(t, alice, func(msgs []wsMessage) bool {
		return len(msgs) > 0 && msgs[len(msgs)-1].Type == "player"
	})
	last := got[len(got)-1]
	if last.ID != id || *last.X != -3 || *last.Y != 4 {
		t.Fatalf("query reply = %+v", last)
	}

	send(t, alice, InputMessage{Type: "input", Command: "sideways", Seq: 9})
	got = collect(t, alice, func(msgs []wsMessage) bool {
		return len(msgs) > 0 && msgs[len(msgs)-1].Type == "error"
	})
	if got[len(got)-1].Seq != 9 {
		t.Fatalf("error reply seq = %d", got[len(got)-1].Seq)
	}
}

func TestWebSocketInputBeforeSpawn(t *testing.T) {
	rm := newManager(t)
	srv := httptest.NewServer(http.HandlerFunc(rm.HandleWS))
	defer srv.Close()

	conn := dial(t, srv, "room-1")
	send(t, conn, InputMessage{Type: "input", Command: "up"})
	got := collect(t, conn, func(msgs []wsMessage) bool {
		return len(msgs) > 0 && msgs[len(msgs)-1].Type == "error"
	})
	if !strings.Contains(got[len(got)-1].Error, "spawn") {
		t.Fatalf("error = %q", got[len(got)-1].Error)
	}
}
