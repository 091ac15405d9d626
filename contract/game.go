package contract

import (
	"fmt"
	"math"

	"p2pio/codec"
	"p2pio/fatal"
	"p2pio/ledger"
)

// ProgramName 游戏合约在副本上的注册名
const ProgramName = "p2pio/game"

// 合约函数名
const (
	FnSpawnPlayer        = "spawn_player"
	FnApplyInput         = "apply_input"
	FnGetPlayerX         = "get_player_x"
	FnGetPlayerY         = "get_player_y"
	FnGetPlayerHeading   = "get_player_heading"
	FnGetCurrentGameTick = "get_current_game_tick"
	FnGetStartTime       = "get_start_time"
)

// arity 每个函数固定的参数个数
var arity = map[string]int{
	FnSpawnPlayer:        2,
	FnApplyInput:         1,
	FnGetPlayerX:         1,
	FnGetPlayerY:         1,
	FnGetPlayerHeading:   1,
	FnGetCurrentGameTick: 0,
	FnGetStartTime:       0,
}

// Game 游戏合约程序。无状态：所有状态都在 Env 的存储槽里，
// 同一合约实例上的调用由账本串行执行，一次调用内的多次写入对读者原子可见。
type Game struct{}

// Programs 注册到副本的程序表
func Programs() map[string]ledger.Program {
	return map[string]ledger.Program{ProgramName: Game{}}
}

// Init 记录一次性的 start_time
func (Game) Init(env ledger.Env) error {
	env.Set(mappingMeta, metaStartTime, int64(env.Timestamp()))
	return nil
}

func (Game) Call(env ledger.Env, function string, args []ledger.Value) (*ledger.Value, error) {
	want, ok := arity[function]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ledger.ErrUnknownFunction, function)
	}
	if len(args) != want {
		return nil, fatal.Errorf("contract."+function, "got %d arguments, expected %d", len(args), want)
	}

	clock, err := clockOf(env)
	if err != nil {
		return nil, err
	}
	now, err := clock.TickAt(env.Timestamp())
	if err != nil {
		return nil, err
	}
	model := NewModel(slotStore{env: env})

	switch function {
	case FnSpawnPlayer:
		x, err := codec.Decode(uint64(args[0]))
		if err != nil {
			return nil, err
		}
		y, err := codec.Decode(uint64(args[1]))
		if err != nil {
			return nil, err
		}
		model.Spawn(env.Sender(), int64(x), int64(y), now)
		return nil, nil

	case FnApplyInput:
		h, err := ParseHeading(uint64(args[0]))
		if err != nil {
			return nil, err
		}
		return nil, model.ApplyInput(env.Sender(), h, now)

	case FnGetPlayerX, FnGetPlayerY:
		x, y, err := model.Position(ledger.Address(args[0]), now)
		if err != nil {
			return nil, err
		}
		v := x
		if function == FnGetPlayerY {
			v = y
		}
		if v < math.MinInt32 || v > math.MaxInt32 {
			return nil, fatal.Errorf("contract."+function, "coordinate %d exceeds the wire range", v)
		}
		return value(codec.Encode(int32(v))), nil

	case FnGetPlayerHeading:
		h, err := model.Heading(ledger.Address(args[0]))
		if err != nil {
			return nil, err
		}
		return value(uint64(h)), nil

	case FnGetCurrentGameTick:
		return value(uint64(now)), nil

	case FnGetStartTime:
		return value(clock.StartMs), nil
	}
	return nil, fmt.Errorf("%w: %q", ledger.ErrUnknownFunction, function)
}

func clockOf(env ledger.Env) (Clock, error) {
	start, ok := env.Get(mappingMeta, metaStartTime)
	if !ok {
		return Clock{}, fatal.Errorf("contract.clock", "start time not initialised")
	}
	return Clock{StartMs: uint64(start)}, nil
}

func value(v uint64) *ledger.Value {
	out := ledger.Value(v)
	return &out
}
