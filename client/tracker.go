package client

import (
	"sync"

	"p2pio/ledger"
)

// Tracker 本地动作的对账状态：Pending(已预测) -> Confirmed(同步流中出现同一交易) -> Done。
// 只做记录与标记，不抑制任何事件；冲突处理完全交给账本。
type Tracker struct {
	mu        sync.Mutex
	pending   map[ledger.Hash]Event
	predicted uint64
	confirmed uint64
}

func NewTracker() *Tracker {
	return &Tracker{pending: make(map[ledger.Hash]Event)}
}

// Predict 登记一条已发出、尚未在同步流中确认的本地事件
func (t *Tracker) Predict(e Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[e.Tx()] = e
	t.predicted++
}

// Confirm 同步流观察到交易 h；若它是本地预测过的动作则结束跟踪并返回 true
func (t *Tracker) Confirm(h ledger.Hash) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[h]; !ok {
		return false
	}
	delete(t.pending, h)
	t.confirmed++
	return true
}

// Pending 尚未确认的本地动作数
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// TrackerStats 累计计数
type TrackerStats struct {
	Predicted uint64 `json:"predicted"`
	Confirmed uint64 `json:"confirmed"`
	Pending   int    `json:"pending"`
}

func (t *Tracker) Stats() TrackerStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TrackerStats{Predicted: t.predicted, Confirmed: t.confirmed, Pending: len(t.pending)}
}
