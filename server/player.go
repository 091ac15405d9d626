package server

import (
	"p2pio/client"
	"p2pio/ledger"
)

// Member 房间内的一个渲染端连接，持有独立的玩家身份
type Member struct {
	Client *client.Client
	Conn   *ClientConn
}

// EventMessage 广播给渲染端的领域事件
type EventMessage struct {
	Kind      string `json:"kind"` // spawn | input
	ID        string `json:"id"`
	X         *int32 `json:"x,omitempty"`
	Y         *int32 `json:"y,omitempty"`
	Heading   string `json:"heading,omitempty"`
	Timestamp uint64 `json:"timestamp"`
	Origin    string `json:"origin"`
	Tx        string `json:"tx"`
}

// ReplyMessage 对单个请求的应答
type ReplyMessage struct {
	Type    string `json:"type"`
	Seq     int64  `json:"seq,omitempty"`
	ID      string `json:"id,omitempty"`
	X       *int32 `json:"x,omitempty"`
	Y       *int32 `json:"y,omitempty"`
	Heading string `json:"heading,omitempty"`
	Tick    *int64 `json:"tick,omitempty"`
	Error   string `json:"error,omitempty"`
}

func eventMessage(e client.Event) EventMessage {
	msg := EventMessage{
		ID:        e.Player().String(),
		Timestamp: e.Time(),
		Origin:    e.Source().String(),
		Tx:        e.Tx().String(),
	}
	switch ev := e.(type) {
	case client.Spawn:
		msg.Kind = "spawn"
		x, y := ev.X, ev.Y
		msg.X, msg.Y = &x, &y
	case client.Input:
		msg.Kind = "input"
		msg.Heading = ev.Heading.String()
	}
	return msg
}

func playerReply(seq int64, id ledger.Address, p client.PlayerData) ReplyMessage {
	x, y := p.X, p.Y
	return ReplyMessage{Type: "player", Seq: seq, ID: id.String(), X: &x, Y: &y, Heading: p.Heading.String()}
}
