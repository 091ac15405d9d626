// Package contract 实现游戏合约：玩家状态模型、游戏 Tick 与合约入口。
//
// 每个玩家只保存一条基线 (x, y, heading, tick)，任意后续时刻的位置由基线按方向外推得到，
// 因此存储与查询都是 O(1)，与移动持续时间无关。
package contract

import (
	"errors"

	"p2pio/fatal"
	"p2pio/ledger"
)

// ErrUnknownPlayer 该身份尚未 spawn
var ErrUnknownPlayer = errors.New("unknown player")

// PlayerState 玩家基线
type PlayerState struct {
	X       int64   `json:"x"`
	Y       int64   `json:"y"`
	Heading Heading `json:"heading"`
	Tick    int64   `json:"tick"`
}

// PositionAt 外推到 now 的位置；now 早于基线 tick 说明状态已损坏
func (p PlayerState) PositionAt(now int64) (x, y int64, err error) {
	delta := now - p.Tick
	if delta < 0 {
		return 0, 0, fatal.Errorf("player.position", "tick %d is before baseline tick %d", now, p.Tick)
	}
	x, y = p.X, p.Y
	switch p.Heading {
	case Up:
		y += delta
	case Down:
		y -= delta
	case Left:
		x -= delta
	case Right:
		x += delta
	}
	return x, y, nil
}

// Rebase 先按旧方向结算到 now，再切换方向
func (p PlayerState) Rebase(h Heading, now int64) (PlayerState, error) {
	x, y, err := p.PositionAt(now)
	if err != nil {
		return PlayerState{}, err
	}
	return PlayerState{X: x, Y: y, Heading: h, Tick: now}, nil
}

// Model 玩家状态模型，读写都经过显式的 Store
type Model struct {
	store Store
}

func NewModel(store Store) *Model {
	return &Model{store: store}
}

// Spawn 写入基线 {x, y, Idle, tick}，已存在则覆盖
func (m *Model) Spawn(id ledger.Address, x, y, tick int64) {
	m.store.Save(id, PlayerState{X: x, Y: y, Heading: Idle, Tick: tick})
}

// State 读取基线
func (m *Model) State(id ledger.Address) (PlayerState, error) {
	return m.store.Load(id)
}

// Position 玩家在 now 的位置
func (m *Model) Position(id ledger.Address, now int64) (x, y int64, err error) {
	p, err := m.store.Load(id)
	if err != nil {
		return 0, 0, err
	}
	return p.PositionAt(now)
}

// Heading 当前方向
func (m *Model) Heading(id ledger.Address) (Heading, error) {
	p, err := m.store.Load(id)
	if err != nil {
		return 0, err
	}
	return p.Heading, nil
}

// ApplyInput 在 now 重置基线并切换方向
func (m *Model) ApplyInput(id ledger.Address, h Heading, now int64) error {
	p, err := m.store.Load(id)
	if err != nil {
		return err
	}
	next, err := p.Rebase(h, now)
	if err != nil {
		return err
	}
	m.store.Save(id, next)
	return nil
}
