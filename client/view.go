package client

import (
	"errors"

	"p2pio/contract"
	"p2pio/ledger"
)

// View 渲染端的本地投影：按值覆盖地应用事件，并外推任意时刻的位置。
// 早于已知基线的事件被跳过；与基线同一 tick 的事件，若其交易已经应用过（预测后的确认回显）也跳过，
// 否则按到达顺序应用。
type View struct {
	clock contract.Clock
	store *contract.MemoryStore
	model *contract.Model
	// applied 每个玩家在当前基线 tick 上已应用的交易
	applied map[ledger.Address]map[ledger.Hash]struct{}
}

func NewView(clock contract.Clock) *View {
	store := contract.NewMemoryStore()
	return &View{
		clock:   clock,
		store:   store,
		model:   contract.NewModel(store),
		applied: make(map[ledger.Address]map[ledger.Hash]struct{}),
	}
}

// Apply 应用一条事件；返回 false 表示事件过期或玩家尚未出现
func (v *View) Apply(e Event) (bool, error) {
	tick, err := v.clock.TickAt(e.Time())
	if err != nil {
		return false, err
	}
	cur, err := v.store.Load(e.Player())
	known := err == nil
	if err != nil && !errors.Is(err, contract.ErrUnknownPlayer) {
		return false, err
	}
	if known && tick < cur.Tick {
		return false, nil
	}
	sameTick := known && tick == cur.Tick
	if _, seen := v.applied[e.Player()][e.Tx()]; sameTick && seen {
		return false, nil
	}

	switch ev := e.(type) {
	case Spawn:
		v.model.Spawn(ev.ID, int64(ev.X), int64(ev.Y), tick)
	case Input:
		if !known {
			return false, nil
		}
		if err := v.model.ApplyInput(ev.ID, ev.Heading, tick); err != nil {
			return false, err
		}
	default:
		return false, nil
	}
	v.markApplied(e.Player(), e.Tx(), sameTick)
	return true, nil
}

func (v *View) markApplied(id ledger.Address, tx ledger.Hash, sameTick bool) {
	set := v.applied[id]
	if !sameTick || set == nil {
		set = make(map[ledger.Hash]struct{}, 2)
		v.applied[id] = set
	}
	set[tx] = struct{}{}
}

// Position 预测玩家在 nowMs 的位置；nowMs 早于基线时返回基线位置
func (v *View) Position(id ledger.Address, nowMs uint64) (x, y int64, err error) {
	st, err := v.store.Load(id)
	if err != nil {
		return 0, 0, err
	}
	tick, err := v.clock.TickAt(nowMs)
	if err != nil {
		return 0, 0, err
	}
	if tick < st.Tick {
		tick = st.Tick
	}
	return st.PositionAt(tick)
}

// State 玩家基线
func (v *View) State(id ledger.Address) (contract.PlayerState, error) {
	return v.store.Load(id)
}

// Players 已知玩家数
func (v *View) Players() int { return v.store.Len() }
