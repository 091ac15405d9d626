package ledger

// Program 部署在账本上的确定性合约程序
type Program interface {
	// Init 部署时执行一次
	Init(env Env) error
	// Call 执行一次合约函数；返回错误即中止执行，不产生交易
	Call(env Env, function string, args []Value) (*Value, error)
}

// Env 合约执行环境：调用方、交易时间戳与合约存储槽
type Env interface {
	Sender() Address
	Timestamp() uint64
	Get(mapping uint8, key uint64) (int64, bool)
	Set(mapping uint8, key uint64, v int64)
}

type slot struct {
	contract Address
	mapping  uint8
	key      uint64
}

// execEnv 写时复制：读取穿透到副本状态，写入只落在 overlay 并记录为 Updates
type execEnv struct {
	contract  Address
	sender    Address
	timestamp uint64
	base      map[slot]int64
	overlay   map[slot]int64
	updates   Updates
}

func (e *execEnv) Sender() Address   { return e.sender }
func (e *execEnv) Timestamp() uint64 { return e.timestamp }

func (e *execEnv) Get(mapping uint8, key uint64) (int64, bool) {
	s := slot{contract: e.contract, mapping: mapping, key: key}
	if v, ok := e.overlay[s]; ok {
		return v, true
	}
	v, ok := e.base[s]
	return v, ok
}

func (e *execEnv) Set(mapping uint8, key uint64, v int64) {
	s := slot{contract: e.contract, mapping: mapping, key: key}
	e.overlay[s] = v
	e.updates = append(e.updates, Update{Contract: e.contract, Mapping: mapping, Key: key, Value: v})
}
