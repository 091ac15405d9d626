package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Entry 一笔已确认交易及其写入集
type Entry struct {
	Tx      *Transaction `json:"tx"`
	Updates Updates      `json:"updates"`
}

// Journal 已确认交易的持久化接收方
type Journal interface {
	Append(tx *Transaction, updates Updates) error
}

// Option 副本可选配置
type Option func(*Replica)

// WithLogger 注入日志
func WithLogger(l *zap.Logger) Option {
	return func(r *Replica) {
		if l != nil {
			r.log = l
		}
	}
}

// WithClock 替换时间源（测试用）
func WithClock(now func() time.Time) Option {
	return func(r *Replica) { r.now = now }
}

// WithJournal 每次确认后追加到 journal
func WithJournal(j Journal) Option {
	return func(r *Replica) { r.journal = j }
}

// Replica 单个账本副本：确认顺序即提交顺序，同一副本上的合约调用串行执行
type Replica struct {
	mu sync.Mutex

	programs  map[string]Program
	contracts map[Address]Program
	state     map[slot]int64
	entries   []Entry
	index     map[Hash]int
	nonces    map[Address]uint64
	heads     map[Address]Hash // 每个发送方最后一笔已确认交易
	lastTs    uint64

	journal Journal
	now     func() time.Time
	log     *zap.Logger
}

// NewReplica 创建副本，programs 为可部署程序（按名称）
func NewReplica(programs map[string]Program, opts ...Option) *Replica {
	r := &Replica{
		programs:  make(map[string]Program, len(programs)),
		contracts: make(map[Address]Program),
		state:     make(map[slot]int64),
		index:     make(map[Hash]int),
		nonces:    make(map[Address]uint64),
		heads:     make(map[Address]Hash),
		now:       time.Now,
		log:       zap.NewNop(),
	}
	for name, p := range programs {
		r.programs[name] = p
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// timestampLocked 本地时间戳不回退，也不早于已确认的交易
func (r *Replica) timestampLocked() uint64 {
	ts := uint64(r.now().UnixMilli())
	if ts < r.lastTs {
		ts = r.lastTs
	}
	r.lastTs = ts
	return ts
}

func (r *Replica) nextNonceLocked(a Address) uint64 {
	n := r.nonces[a]
	r.nonces[a] = n + 1
	return n
}

func (r *Replica) newEnvLocked(contract, sender Address, ts uint64) *execEnv {
	return &execEnv{
		contract:  contract,
		sender:    sender,
		timestamp: ts,
		base:      r.state,
		overlay:   make(map[slot]int64),
	}
}

// Deploy 以 key 的地址为合约地址部署程序，返回待提交的部署交易
func (r *Replica) Deploy(ctx context.Context, key *KeyPair, program string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if key == nil {
		return Result{}, ErrNilKey
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	prog, ok := r.programs[program]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownProgram, program)
	}
	addr := key.Address()
	if _, exists := r.contracts[addr]; exists {
		return Result{}, fmt.Errorf("%w: %s", ErrContractExists, addr)
	}
	ts := r.timestampLocked()
	env := r.newEnvLocked(addr, addr, ts)
	if err := prog.Init(env); err != nil {
		return Result{}, fmt.Errorf("init %s: %w", program, err)
	}
	tx := &Transaction{
		Sender:    addr,
		PublicKey: key.Public,
		Timestamp: ts,
		Nonce:     r.nextNonceLocked(addr),
		Prev:      r.heads[addr],
		Deploy:    &Deploy{Program: program},
	}
	key.sign(tx)
	return Result{Tx: tx, Updates: env.updates}, nil
}

// ExecuteContract 在当前状态上执行合约函数；有写入时返回签名交易与写入集（尚未提交）。
// 交易记录执行时发送方的最后一笔已确认交易，之后该发送方若有别的交易先确认，本交易提交时被拒绝。
func (r *Replica) ExecuteContract(ctx context.Context, key *KeyPair, contract Address, function string, args []Value) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if key == nil {
		return Result{}, ErrNilKey
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	prog, ok := r.contracts[contract]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownContract, contract)
	}
	sender := key.Address()
	ts := r.timestampLocked()
	env := r.newEnvLocked(contract, sender, ts)
	val, err := prog.Call(env, function, args)
	if err != nil {
		return Result{}, fmt.Errorf("execute %s(%d args): %w", function, len(args), err)
	}
	res := Result{Value: val}
	if len(env.updates) == 0 {
		return res, nil
	}
	tx := &Transaction{
		Sender:    sender,
		PublicKey: key.Public,
		Timestamp: ts,
		Nonce:     r.nextNonceLocked(sender),
		Prev:      r.heads[sender],
		Call: &Call{
			Contract: contract,
			Function: function,
			Args:     append([]Value(nil), args...),
		},
	}
	key.sign(tx)
	res.Tx = tx
	res.Updates = env.updates
	return res, nil
}

// CommitTransaction 校验并确认交易；重复提交同一交易是无操作。
// 发送方的交易必须按执行顺序逐笔确认，否则返回 ErrStaleTransaction；
// 目标地址已有合约的部署返回 ErrContractExists。
func (r *Replica) CommitTransaction(ctx context.Context, tx *Transaction, updates Updates) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tx == nil {
		return fmt.Errorf("commit: nil transaction")
	}
	if err := VerifyTransaction(tx); err != nil {
		return fmt.Errorf("commit %s: %w", tx.Hash, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	committed, err := r.commitLocked(tx, updates)
	if err != nil || !committed {
		return err
	}
	if r.journal != nil {
		if err := r.journal.Append(tx, updates); err != nil {
			r.log.Warn("journal append failed", zap.Stringer("tx", tx.Hash), zap.Error(err))
		}
	}
	return nil
}

func (r *Replica) commitLocked(tx *Transaction, updates Updates) (bool, error) {
	if _, dup := r.index[tx.Hash]; dup {
		return false, nil
	}
	var (
		target Address
		deploy Program
	)
	switch {
	case tx.Deploy != nil:
		prog, ok := r.programs[tx.Deploy.Program]
		if !ok {
			return false, fmt.Errorf("commit %s: %w: %q", tx.Hash, ErrUnknownProgram, tx.Deploy.Program)
		}
		if _, exists := r.contracts[tx.Sender]; exists {
			return false, fmt.Errorf("commit %s: %w: %s", tx.Hash, ErrContractExists, tx.Sender)
		}
		target = tx.Sender
		deploy = prog
	case tx.Call != nil:
		if _, ok := r.contracts[tx.Call.Contract]; !ok {
			return false, fmt.Errorf("commit %s: %w: %s", tx.Hash, ErrUnknownContract, tx.Call.Contract)
		}
		target = tx.Call.Contract
	default:
		return false, fmt.Errorf("commit %s: transaction carries neither call nor deploy", tx.Hash)
	}
	if head := r.heads[tx.Sender]; tx.Prev != head {
		return false, fmt.Errorf("commit %s: %w: sender %s is at %s", tx.Hash, ErrStaleTransaction, tx.Sender, head)
	}
	for _, u := range updates {
		if u.Contract != target {
			return false, fmt.Errorf("commit %s: update targets contract %s, want %s", tx.Hash, u.Contract, target)
		}
	}
	if deploy != nil {
		r.contracts[target] = deploy
	}
	for _, u := range updates {
		r.state[slot{contract: u.Contract, mapping: u.Mapping, key: u.Key}] = u.Value
	}
	r.heads[tx.Sender] = tx.Hash
	r.index[tx.Hash] = len(r.entries)
	r.entries = append(r.entries, Entry{Tx: tx, Updates: append(Updates(nil), updates...)})
	if tx.Timestamp > r.lastTs {
		r.lastTs = tx.Timestamp
	}
	r.log.Debug("transaction confirmed",
		zap.Stringer("tx", tx.Hash),
		zap.Stringer("sender", tx.Sender),
		zap.Uint64("timestamp", tx.Timestamp),
		zap.Int("height", len(r.entries)),
	)
	return true, nil
}

// Restore 回放 journal 中的已确认交易，不再写回 journal
func (r *Replica) Restore(entries []Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range entries {
		if err := VerifyTransaction(e.Tx); err != nil {
			return fmt.Errorf("restore entry %d: %w", i, err)
		}
		if _, err := r.commitLocked(e.Tx, e.Updates); err != nil {
			return fmt.Errorf("restore entry %d: %w", i, err)
		}
	}
	r.log.Info("replica restored", zap.Int("entries", len(entries)), zap.Int("height", len(r.entries)))
	return nil
}

// Pull 按 other 的确认顺序提交本副本尚未见过的交易，返回新确认数量
func (r *Replica) Pull(ctx context.Context, other *Replica) (int, error) {
	n := 0
	for _, e := range other.EntriesSince(0) {
		if r.Has(e.Tx.Hash) {
			continue
		}
		if err := r.CommitTransaction(ctx, e.Tx, e.Updates); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Has 交易是否已在本副本确认
func (r *Replica) Has(h Hash) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.index[h]
	return ok
}

// Height 已确认交易数
func (r *Replica) Height() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// HasContract 合约是否已部署
func (r *Replica) HasContract(a Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.contracts[a]
	return ok
}

// EntriesSince 返回确认序号 from 之后的条目副本
func (r *Replica) EntriesSince(from int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if from >= len(r.entries) {
		return nil
	}
	if from < 0 {
		from = 0
	}
	return append([]Entry(nil), r.entries[from:]...)
}

// Cursor 订阅者在确认序列中的位置
type Cursor struct {
	mu   sync.Mutex
	r    *Replica
	next int
}

// Subscribe 从第一笔确认交易开始订阅
func (r *Replica) Subscribe() *Cursor {
	return &Cursor{r: r}
}

// Sync 对上次同步之后确认的每笔交易按序调用 fn，处理完当前可用的交易后返回。
// fn 返回错误时停止，出错的交易在下次同步时重新投递。
func (c *Cursor) Sync(ctx context.Context, fn func(*Transaction) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.r.EntriesSince(c.next) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e.Tx); err != nil {
			return err
		}
		c.next++
	}
	return nil
}
