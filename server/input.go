package server

import (
	"strings"

	"p2pio/contract"
)

// 入站消息的简单 JSON 结构（WebSocket 文本消息）
// 示例：{"type":"spawn","x":0,"y":0}
//
//	{"type":"input","command":"up"}
//	{"type":"query","player":"1234"}
type InputMessage struct {
	Type    string `json:"type"`
	Command string `json:"command,omitempty"`
	X       int32  `json:"x,omitempty"`
	Y       int32  `json:"y,omitempty"`
	Player  string `json:"player,omitempty"`
	Seq     int64  `json:"seq,omitempty"` // 客户端本地序列号，原样回显在应答中
}

// parseCommand 方向命令，"stop"/"none" 视为 idle
func parseCommand(cmd string) (contract.Heading, bool) {
	switch c := strings.ToLower(strings.TrimSpace(cmd)); c {
	case "stop", "none":
		return contract.Idle, true
	default:
		return contract.HeadingFromName(c)
	}
}
