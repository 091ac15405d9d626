package server

import (
	"encoding/json"
	"net/http"
)

func (rm *RoomManager) roomFromQuery(w http.ResponseWriter, r *http.Request) (*Room, bool) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		roomID = rm.defaultRoom
	}
	room, ok := rm.GetRoom(roomID)
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return nil, false
	}
	return room, true
}

// HandleAdminConfig 提供房间配置的读取与更新（热更新同步间隔）
// GET /admin/config?room=room-1  返回当前配置
// POST /admin/config?room=room-1 以 JSON 载荷更新部分字段
func (rm *RoomManager) HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	room, ok := rm.roomFromQuery(w, r)
	if !ok {
		return
	}

	type cfg struct {
		SyncEveryTicks *int `json:"syncEveryTicks,omitempty"`
	}

	switch r.Method {
	case http.MethodGet:
		syncEvery := int(room.syncEvery.Load())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"room":           room.ID,
			"contract":       room.Contract.String(),
			"ticksPerSecond": room.tickRate,
			"syncEveryTicks": syncEvery,
		})
		return
	case http.MethodPost:
		var body cfg
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if body.SyncEveryTicks != nil && !room.SetSyncEvery(*body.SyncEveryTicks) {
			http.Error(w, "syncEveryTicks must be positive", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
		Log.Infof("config updated: room=%s syncEveryTicks=%d", room.ID, room.syncEvery.Load())
		return
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
}

// HandleMetrics 输出指定房间的运行指标
// GET /metrics?room=room-1
func (rm *RoomManager) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	room, ok := rm.roomFromQuery(w, r)
	if !ok {
		return
	}
	payload := map[string]any{
		"room":          room.ID,
		"contract":      room.Contract.String(),
		"tick":          room.tickSeq.Load(),
		"members":       room.Members(),
		"ledger_height": rm.replica.Height(),
		"metrics":       room.metrics.Snapshot(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
