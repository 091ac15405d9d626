package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"p2pio/codec"
	"p2pio/contract"
	"p2pio/ledger"
)

// Ledger 客户端使用的账本调用
type Ledger interface {
	ExecuteContract(ctx context.Context, key *ledger.KeyPair, contract ledger.Address, function string, args []ledger.Value) (ledger.Result, error)
	CommitTransaction(ctx context.Context, tx *ledger.Transaction, updates ledger.Updates) error
}

// Syncer 按确认顺序回放新交易，处理完当前可用交易后返回
type Syncer interface {
	Sync(ctx context.Context, fn func(*ledger.Transaction) error) error
}

// Observer 事件推导过程的观测钩子（指标）
type Observer interface {
	TransactionObserved(derived bool)
	EventDerived(e Event, echo bool)
	EventPredicted(e Event)
}

type nopObserver struct{}

func (nopObserver) TransactionObserved(bool)  {}
func (nopObserver) EventDerived(Event, bool) {}
func (nopObserver) EventPredicted(Event)     {}

var (
	ErrNoIdentity    = errors.New("no identity: spawn a player first")
	ErrNoTransaction = errors.New("contract execution produced no transaction")
	ErrNoValue       = errors.New("contract read returned no value")
)

// Option 客户端可选配置
type Option func(*Client)

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *Client) {
		if o != nil {
			c.obs = o
		}
	}
}

// WithKeySource 替换 spawn 时生成新身份的方式
func WithKeySource(f func() (*ledger.KeyPair, error)) Option {
	return func(c *Client) { c.newKey = f }
}

// PlayerData 从合约读取的玩家当前状态
type PlayerData struct {
	X       int32            `json:"x"`
	Y       int32            `json:"y"`
	Heading contract.Heading `json:"heading"`
}

// Client 单个玩家身份的游戏客户端。
// 身份与事件队列在同步协程和发起调用的协程之间共享，均有锁保护。
type Client struct {
	ledger Ledger
	syncer Syncer
	game   ledger.Address

	mu  sync.RWMutex
	key *ledger.KeyPair

	// txMu 串行化写调用与同步：同一身份按执行顺序确认，预测事件总在其确认事件之前入队
	txMu sync.Mutex

	events  *Queue
	tracker *Tracker

	clockMu sync.Mutex
	clock   *contract.Clock

	newKey func() (*ledger.KeyPair, error)
	obs    Observer
	log    *zap.Logger
}

// New 创建客户端；game 为游戏合约地址
func New(l Ledger, s Syncer, game ledger.Address, opts ...Option) *Client {
	c := &Client{
		ledger:  l,
		syncer:  s,
		game:    game,
		events:  NewQueue(),
		tracker: NewTracker(),
		newKey:  ledger.NewKeyPair,
		obs:     nopObserver{},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Contract 游戏合约地址
func (c *Client) Contract() ledger.Address { return c.game }

// Address 当前身份的账本地址
func (c *Client) Address() (ledger.Address, error) {
	k, err := c.identity()
	if err != nil {
		return 0, err
	}
	return k.Address(), nil
}

func (c *Client) identity() (*ledger.KeyPair, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.key == nil {
		return nil, ErrNoIdentity
	}
	return c.key, nil
}

// SpawnPlayer 生成新身份并在 (x, y) 出生；确认后才替换当前身份，并入队一条预测的 Spawn 事件
func (c *Client) SpawnPlayer(ctx context.Context, x, y int32) error {
	key, err := c.newKey()
	if err != nil {
		return fmt.Errorf("spawn_player: %w", err)
	}
	c.txMu.Lock()
	defer c.txMu.Unlock()
	tx, err := c.submit(ctx, key, contract.FnSpawnPlayer, []ledger.Value{ledger.Value(codec.Encode(x)), ledger.Value(codec.Encode(y))})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.key = key
	c.mu.Unlock()
	c.predict(Spawn{Meta: predictedMeta(tx), X: x, Y: y})
	return nil
}

// ApplyInput 改变方向；确认后入队一条预测的 Input 事件
func (c *Client) ApplyInput(ctx context.Context, h contract.Heading) error {
	c.txMu.Lock()
	defer c.txMu.Unlock()
	key, err := c.identity()
	if err != nil {
		return err
	}
	tx, err := c.submit(ctx, key, contract.FnApplyInput, []ledger.Value{ledger.Value(h)})
	if err != nil {
		return err
	}
	c.predict(Input{Meta: predictedMeta(tx), Heading: h})
	return nil
}

// submit 执行并提交一次写调用；账本错误原样上抛，不重试
func (c *Client) submit(ctx context.Context, key *ledger.KeyPair, fn string, args []ledger.Value) (*ledger.Transaction, error) {
	res, err := c.ledger.ExecuteContract(ctx, key, c.game, fn, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	if res.Tx == nil {
		return nil, fmt.Errorf("%s: %w", fn, ErrNoTransaction)
	}
	if err := c.ledger.CommitTransaction(ctx, res.Tx, res.Updates); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", fn, err)
	}
	return res.Tx, nil
}

func predictedMeta(tx *ledger.Transaction) Meta {
	return Meta{ID: tx.Sender, Timestamp: tx.Timestamp, Origin: Predicted, TxHash: tx.Hash}
}

func (c *Client) predict(e Event) {
	c.tracker.Predict(e)
	c.events.Push(e)
	c.obs.EventPredicted(e)
}

// Player 读取玩家在当前 Tick 的位置与方向
func (c *Client) Player(ctx context.Context, id ledger.Address) (PlayerData, error) {
	key, err := c.identity()
	if err != nil {
		return PlayerData{}, err
	}
	x, err := c.read(ctx, key, contract.FnGetPlayerX, ledger.Value(id))
	if err != nil {
		return PlayerData{}, err
	}
	y, err := c.read(ctx, key, contract.FnGetPlayerY, ledger.Value(id))
	if err != nil {
		return PlayerData{}, err
	}
	h, err := c.read(ctx, key, contract.FnGetPlayerHeading, ledger.Value(id))
	if err != nil {
		return PlayerData{}, err
	}
	var out PlayerData
	if out.X, err = codec.Decode(uint64(x)); err != nil {
		return PlayerData{}, err
	}
	if out.Y, err = codec.Decode(uint64(y)); err != nil {
		return PlayerData{}, err
	}
	if out.Heading, err = contract.ParseHeading(uint64(h)); err != nil {
		return PlayerData{}, err
	}
	return out, nil
}

// GameTick 合约当前 Tick
func (c *Client) GameTick(ctx context.Context) (int64, error) {
	key, err := c.identity()
	if err != nil {
		return 0, err
	}
	v, err := c.read(ctx, key, contract.FnGetCurrentGameTick)
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

// Clock 合约的 Tick 时钟（start_time 只读取一次）
func (c *Client) Clock(ctx context.Context) (contract.Clock, error) {
	c.clockMu.Lock()
	defer c.clockMu.Unlock()
	if c.clock != nil {
		return *c.clock, nil
	}
	key, err := c.identity()
	if err != nil {
		return contract.Clock{}, err
	}
	v, err := c.read(ctx, key, contract.FnGetStartTime)
	if err != nil {
		return contract.Clock{}, err
	}
	c.clock = &contract.Clock{StartMs: uint64(v)}
	return *c.clock, nil
}

func (c *Client) read(ctx context.Context, key *ledger.KeyPair, fn string, args ...ledger.Value) (ledger.Value, error) {
	res, err := c.ledger.ExecuteContract(ctx, key, c.game, fn, args)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", fn, err)
	}
	if res.Value == nil {
		return 0, fmt.Errorf("%s: %w", fn, ErrNoValue)
	}
	return *res.Value, nil
}

// SyncTips 消费当前可用的已确认交易并推导事件。
// 推导出的致命错误会中止同步并原样返回。
func (c *Client) SyncTips(ctx context.Context) error {
	c.txMu.Lock()
	defer c.txMu.Unlock()
	return c.syncer.Sync(ctx, func(tx *ledger.Transaction) error {
		e, err := Derive(c.game, tx)
		if err != nil {
			c.log.Error("event derivation aborted", zap.Stringer("tx", tx.Hash), zap.Stringer("sender", tx.Sender), zap.Error(err))
			return err
		}
		c.obs.TransactionObserved(e != nil)
		if e == nil {
			return nil
		}
		echo := c.tracker.Confirm(e.Tx())
		c.events.Push(e)
		c.obs.EventDerived(e, echo)
		return nil
	})
}

// Run 长驻同步任务：每个 interval 执行一次 SyncTips，直到 ctx 结束或同步出错。
// 错误直接返回给调用方，不自动重试。
func (c *Client) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := c.SyncTips(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// TakeEvents 非阻塞取走当前可用的全部事件
func (c *Client) TakeEvents() []Event {
	return c.events.Drain()
}

// Reconciliation 本地预测与确认的对账计数
func (c *Client) Reconciliation() TrackerStats {
	return c.tracker.Stats()
}
