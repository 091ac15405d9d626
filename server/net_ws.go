package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// ClientConn 负责发送（写）数据到客户端的轻量包装
type ClientConn struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func NewClientConn(ws *websocket.Conn) *ClientConn {
	return &ClientConn{
		ws:   ws,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
	}
}

// Enqueue 将要发送的消息压入队列（非阻塞）；队列满或连接已关闭返回 false
func (c *ClientConn) Enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// Close 关闭底层连接并结束写协程，可重复调用
func (c *ClientConn) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定期 ping
func (c *ClientConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 读取渲染端请求，直接在本协程提交到账本并回复
func (c *ClientConn) readPump(room *Room, m *Member) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// 读泵退出时，通知房间在 Tick 线程中移除该成员
	defer room.RequestLeave(m)
	defer c.Close()
	c.ws.SetReadLimit(1 << 20) // 1MB
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { c.ws.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var im InputMessage
		if err := json.Unmarshal(payload, &im); err != nil {
			room.reply(m, ReplyMessage{Type: "error", Error: "invalid json"})
			continue
		}
		im.Type = strings.ToLower(im.Type)
		room.reply(m, room.HandleAction(ctx, m, im))
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 演示环境：允许所有来源（生产环境需严格限制）
		return true
	},
}

// HandleWS WebSocket 接入：?room=room-1
func (rm *RoomManager) HandleWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		roomID = rm.defaultRoom
	}
	room, err := rm.GetOrCreateRoom(r.Context(), roomID)
	if err != nil {
		Log.Errorw("room unavailable", "room", roomID, "err", err)
		http.Error(w, "room unavailable", http.StatusInternalServerError)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnf("upgrade error: %v", err)
		return
	}

	conn := NewClientConn(ws)
	m := room.NewMember(conn)
	room.JoinPlayer(m)

	go conn.writePump()
	go conn.readPump(room, m)
}
