package client

import (
	"errors"
	"testing"

	"p2pio/contract"
	"p2pio/ledger"
)

// meta tx 区分不同交易；同一 tx 的预测与确认事件共享哈希
func meta(id ledger.Address, ms uint64, o Origin, tx byte) Meta {
	return Meta{ID: id, Timestamp: ms, Origin: o, TxHash: ledger.Hash{tx}}
}

func TestViewPredictsMovement(t *testing.T) {
	v := NewView(contract.Clock{StartMs: 0})
	if ok, err := v.Apply(Spawn{Meta: meta(1, 0, Confirmed, 1), X: 0, Y: 0}); !ok || err != nil {
		t.Fatalf("Apply spawn = %v, %v", ok, err)
	}
	if ok, err := v.Apply(Input{Meta: meta(1, 0, Confirmed, 2), Heading: contract.Up}); !ok || err != nil {
		t.Fatalf("Apply up = %v, %v", ok, err)
	}
	// 10 ticks 向上，再 15 ticks 向右
	tenTicks := uint64(10 * 1000 / contract.TicksPerSecond)
	if ok, err := v.Apply(Input{Meta: meta(1, tenTicks+1, Confirmed, 3), Heading: contract.Right}); !ok || err != nil {
		t.Fatalf("Apply right = %v, %v", ok, err)
	}
	x, y, err := v.Position(1, 25*1000/contract.TicksPerSecond+1)
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if x != 15 || y != 10 {
		t.Fatalf("position = (%d,%d), want (15,10)", x, y)
	}
}

func TestViewSkipsStaleAndOrphanEvents(t *testing.T) {
	v := NewView(contract.Clock{StartMs: 0})
	if ok, _ := v.Apply(Input{Meta: meta(7, 100, Confirmed, 1), Heading: contract.Left}); ok {
		t.Fatalf("input for unknown player applied")
	}
	if _, _, err := v.Position(7, 100); !errors.Is(err, contract.ErrUnknownPlayer) {
		t.Fatalf("Position err = %v", err)
	}

	_, _ = v.Apply(Spawn{Meta: meta(7, 1000, Predicted, 2), X: 3, Y: 3})
	_, _ = v.Apply(Input{Meta: meta(7, 2000, Predicted, 3), Heading: contract.Right})
	// 确认的 spawn 晚到：早于当前基线，跳过
	if ok, err := v.Apply(Spawn{Meta: meta(7, 1000, Confirmed, 2), X: 3, Y: 3}); ok || err != nil {
		t.Fatalf("stale spawn = %v, %v", ok, err)
	}
	// 同一输入的确认事件已经反映在基线里
	if ok, err := v.Apply(Input{Meta: meta(7, 2000, Confirmed, 3), Heading: contract.Right}); ok || err != nil {
		t.Fatalf("echoed input = %v, %v", ok, err)
	}
	st, _ := v.State(7)
	if st != (contract.PlayerState{X: 3, Y: 3, Heading: contract.Right, Tick: 120}) {
		t.Fatalf("state = %+v", st)
	}
	// 渲染时钟落后于基线时返回基线位置
	if x, y, err := v.Position(7, 1500); err != nil || x != 3 || y != 3 {
		t.Fatalf("Position(behind) = (%d,%d), %v", x, y, err)
	}
}

func TestViewSameTickEchoKeepsLaterInput(t *testing.T) {
	v := NewView(contract.Clock{StartMs: 0})
	spawn := Spawn{Meta: meta(9, 1000, Predicted, 1), X: 2, Y: 2}
	input := Input{Meta: meta(9, 1000, Predicted, 2), Heading: contract.Down}
	for _, e := range []Event{spawn, input} {
		if ok, err := v.Apply(e); !ok || err != nil {
			t.Fatalf("Apply predicted = %v, %v", ok, err)
		}
	}

	// spawn 的确认回显与输入同一 tick 到达，不应把方向重置为 idle
	spawn.Origin = Confirmed
	if ok, err := v.Apply(spawn); ok || err != nil {
		t.Fatalf("Apply spawn echo = %v, %v", ok, err)
	}
	st, _ := v.State(9)
	if st.Heading != contract.Down {
		t.Fatalf("heading after echo = %s, want down", st.Heading)
	}
	input.Origin = Confirmed
	if ok, _ := v.Apply(input); ok {
		t.Fatalf("input echo applied twice")
	}

	// 同一 tick 的新交易照常应用
	if ok, err := v.Apply(Input{Meta: meta(9, 1000, Confirmed, 3), Heading: contract.Left}); !ok || err != nil {
		t.Fatalf("Apply new input = %v, %v", ok, err)
	}
	if x, y, _ := v.Position(9, 2000); x != -58 || y != 2 {
		t.Fatalf("position = (%d,%d), want (-58,2)", x, y)
	}
}
