package client

import (
	"p2pio/contract"
	"p2pio/ledger"
)

// Origin 事件来源：本地乐观预测或账本确认
type Origin uint8

const (
	Predicted Origin = iota + 1
	Confirmed
)

func (o Origin) String() string {
	switch o {
	case Predicted:
		return "predicted"
	case Confirmed:
		return "confirmed"
	}
	return "unknown"
}

// Event 领域事件（封闭的联合类型：Spawn 或 Input）。
// 取变体字段请用类型断言或 AsSpawn/AsInput，错误的变体得到 ok=false。
type Event interface {
	Player() ledger.Address
	Time() uint64
	Source() Origin
	Tx() ledger.Hash
	isEvent()
}

// Meta 所有事件共有的字段
type Meta struct {
	ID        ledger.Address
	Timestamp uint64
	Origin    Origin
	TxHash    ledger.Hash
}

func (m Meta) Player() ledger.Address { return m.ID }
func (m Meta) Time() uint64           { return m.Timestamp }
func (m Meta) Source() Origin         { return m.Origin }
func (m Meta) Tx() ledger.Hash        { return m.TxHash }

// Spawn 玩家出生（或重生）
type Spawn struct {
	Meta
	X, Y int32
}

// Input 玩家改变方向
type Input struct {
	Meta
	Heading contract.Heading
}

func (Spawn) isEvent() {}
func (Input) isEvent() {}

// AsSpawn 事件为 Spawn 时返回其字段
func AsSpawn(e Event) (Spawn, bool) {
	s, ok := e.(Spawn)
	return s, ok
}

// AsInput 事件为 Input 时返回其字段
func AsInput(e Event) (Input, bool) {
	in, ok := e.(Input)
	return in, ok
}
