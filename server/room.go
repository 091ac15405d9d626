package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"p2pio/client"
	"p2pio/config"
	"p2pio/fatal"
	"p2pio/ledger"
)

// Room 房间：对应账本上的一个游戏合约实例。
// 成员集合只在 Tick 协程中修改；玩家动作由各连接的读协程直接提交到账本。
type Room struct {
	ID       string
	Contract ledger.Address

	replica *ledger.Replica

	members   map[*Member]struct{}
	joinChan  chan *Member
	leaveChan chan *Member

	tickRate    int
	syncEvery   atomic.Int64
	tickSeq     atomic.Int64
	memberCount atomic.Int64
	metrics     *RoomMetrics

	tickerStarted bool
	stop          chan struct{}
	stopOnce      sync.Once
	done          chan struct{}
}

// NewRoom 创建房间，初始化数据结构
func NewRoom(id string, replica *ledger.Replica, contract ledger.Address, cfg config.RoomConfig) *Room {
	r := &Room{
		ID:        id,
		Contract:  contract,
		replica:   replica,
		members:   make(map[*Member]struct{}),
		joinChan:  make(chan *Member, 64),
		leaveChan: make(chan *Member, 64),
		tickRate:  cfg.TicksPerSecond,
		metrics:   &RoomMetrics{},
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	r.syncEvery.Store(int64(cfg.SyncEveryTicks))
	return r
}

// NewMember 为一个连接创建独立身份的游戏客户端，从合约第一笔交易开始同步
func (r *Room) NewMember(conn *ClientConn) *Member {
	c := client.New(r.replica, r.replica.Subscribe(), r.Contract,
		client.WithLogger(Logger().With(zap.String("room", r.ID))),
		client.WithObserver(r.metrics),
	)
	return &Member{Client: c, Conn: conn}
}

// JoinPlayer 请求在 Tick 线程中加入成员
func (r *Room) JoinPlayer(m *Member) {
	select {
	case r.joinChan <- m:
	case <-r.stop:
		m.Conn.Close()
	}
}

// RequestLeave 请求在 Tick 线程中移除成员，避免并发改动房间状态
func (r *Room) RequestLeave(m *Member) {
	select {
	case r.leaveChan <- m:
	case <-r.stop:
	}
}

// ProcessMembership 处理当前帧的加入/离开（非阻塞 drain）
func (r *Room) ProcessMembership() {
	for {
		select {
		case m := <-r.joinChan:
			r.members[m] = struct{}{}
		case m := <-r.leaveChan:
			r.removeMember(m)
		default:
			r.memberCount.Store(int64(len(r.members)))
			return
		}
	}
}

func (r *Room) removeMember(m *Member) {
	if _, ok := r.members[m]; !ok {
		return
	}
	m.Conn.Close()
	delete(r.members, m)
}

// SyncMembers 每个成员消费新确认的交易；推导出现致命错误时断开该成员
func (r *Room) SyncMembers(ctx context.Context) {
	for m := range r.members {
		err := m.Client.SyncTips(ctx)
		if err == nil {
			continue
		}
		r.metrics.IncSyncError()
		if fatal.Is(err) {
			Log.Errorw("sync aborted", "room", r.ID, "err", err)
			r.reply(m, ReplyMessage{Type: "error", Error: err.Error()})
			r.removeMember(m)
			continue
		}
		Log.Warnw("sync failed", "room", r.ID, "err", err)
	}
}

type eventBatch struct {
	Type   string         `json:"type"`
	Tick   int64          `json:"tick"`
	Events []EventMessage `json:"events"`
}

// BroadcastEvents 取走每个成员队列中的事件并发送；发送队列已满的连接被断开而不是静默丢事件
func (r *Room) BroadcastEvents() {
	seq := r.tickSeq.Load()
	for m := range r.members {
		events := m.Client.TakeEvents()
		if len(events) == 0 {
			continue
		}
		batch := eventBatch{Type: "events", Tick: seq, Events: make([]EventMessage, 0, len(events))}
		for _, e := range events {
			batch.Events = append(batch.Events, eventMessage(e))
		}
		b, err := json.Marshal(batch)
		if err != nil {
			Log.Errorw("marshal events", "room", r.ID, "err", err)
			continue
		}
		if !m.Conn.Enqueue(b) {
			r.metrics.IncSlowDropped()
			Log.Warnw("dropping slow connection", "room", r.ID, "pending", len(events))
			r.removeMember(m)
		}
	}
}

func (r *Room) reply(m *Member, msg ReplyMessage) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	m.Conn.Enqueue(b)
}

// HandleAction 执行一条渲染端请求并返回应答；账本错误原样回传，不重试
func (r *Room) HandleAction(ctx context.Context, m *Member, in InputMessage) ReplyMessage {
	out, err := r.handleAction(ctx, m, in)
	if err != nil {
		r.metrics.IncActionError()
		if fatal.Is(err) {
			Log.Errorw("action aborted", "room", r.ID, "type", in.Type, "err", err)
		} else {
			Log.Debugw("action failed", "room", r.ID, "type", in.Type, "err", err)
		}
		return ReplyMessage{Type: "error", Seq: in.Seq, Error: err.Error()}
	}
	out.Seq = in.Seq
	return out
}

var (
	errUnknownType    = errors.New("unknown message type")
	errUnknownCommand = errors.New("unknown heading command")
)

func (r *Room) handleAction(ctx context.Context, m *Member, in InputMessage) (ReplyMessage, error) {
	switch in.Type {
	case "spawn":
		if err := m.Client.SpawnPlayer(ctx, in.X, in.Y); err != nil {
			return ReplyMessage{}, err
		}
		r.metrics.IncAccepted()
		id, err := m.Client.Address()
		if err != nil {
			return ReplyMessage{}, err
		}
		return ReplyMessage{Type: "spawned", ID: id.String()}, nil

	case "input", "move":
		h, ok := parseCommand(in.Command)
		if !ok {
			return ReplyMessage{}, errUnknownCommand
		}
		if err := m.Client.ApplyInput(ctx, h); err != nil {
			return ReplyMessage{}, err
		}
		r.metrics.IncAccepted()
		return ReplyMessage{Type: "ack", Heading: h.String()}, nil

	case "query":
		id, err := m.Client.Address()
		if err != nil {
			return ReplyMessage{}, err
		}
		if in.Player != "" {
			if id, err = ledger.ParseAddress(in.Player); err != nil {
				return ReplyMessage{}, err
			}
		}
		p, err := m.Client.Player(ctx, id)
		if err != nil {
			return ReplyMessage{}, err
		}
		return playerReply(in.Seq, id, p), nil

	case "tick":
		t, err := m.Client.GameTick(ctx)
		if err != nil {
			return ReplyMessage{}, err
		}
		return ReplyMessage{Type: "tick", Tick: &t}, nil
	}
	return ReplyMessage{}, errUnknownType
}

// SetSyncEvery 热更新同步间隔（Tick 数）
func (r *Room) SetSyncEvery(n int) bool {
	if n <= 0 {
		return false
	}
	r.syncEvery.Store(int64(n))
	return true
}

// Members 当前成员数
func (r *Room) Members() int { return int(r.memberCount.Load()) }
