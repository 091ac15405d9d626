package server

import (
	"sync/atomic"

	"p2pio/client"
)

// RoomMetrics 记录房间运行期的关键指标（用于监控与调试），同时作为 client.Observer
type RoomMetrics struct {
	TickCount        int64 // 统计的 Tick 次数
	TxObserved       int64 // 同步流中看到的已确认交易
	TxIgnored        int64 // 非本合约或无关函数，被过滤
	EventsDerived    int64 // 由已确认交易推导出的事件
	EventsEchoed     int64 // 其中属于本地已预测动作的重复投递
	EventsPredicted  int64 // 本地乐观预测事件
	ActionsAccepted  int64 // 成功提交的 spawn/input
	ActionErrors     int64 // 账本返回错误的动作
	SyncErrors       int64 // 同步失败（含致命错误）
	SlowConnsDropped int64 // 发送队列满被断开的连接
	TotalTickNs      int64 // Tick 累计耗时（纳秒）
}

var _ client.Observer = (*RoomMetrics)(nil)

func (m *RoomMetrics) TransactionObserved(derived bool) {
	atomic.AddInt64(&m.TxObserved, 1)
	if !derived {
		atomic.AddInt64(&m.TxIgnored, 1)
	}
}

func (m *RoomMetrics) EventDerived(_ client.Event, echo bool) {
	atomic.AddInt64(&m.EventsDerived, 1)
	if echo {
		atomic.AddInt64(&m.EventsEchoed, 1)
	}
}

func (m *RoomMetrics) EventPredicted(client.Event) { atomic.AddInt64(&m.EventsPredicted, 1) }

func (m *RoomMetrics) IncAccepted()    { atomic.AddInt64(&m.ActionsAccepted, 1) }
func (m *RoomMetrics) IncActionError() { atomic.AddInt64(&m.ActionErrors, 1) }
func (m *RoomMetrics) IncSyncError()   { atomic.AddInt64(&m.SyncErrors, 1) }
func (m *RoomMetrics) IncSlowDropped() { atomic.AddInt64(&m.SlowConnsDropped, 1) }
func (m *RoomMetrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *RoomMetrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":         tick,
		"tx_observed":        atomic.LoadInt64(&m.TxObserved),
		"tx_ignored":         atomic.LoadInt64(&m.TxIgnored),
		"events_derived":     atomic.LoadInt64(&m.EventsDerived),
		"events_echoed":      atomic.LoadInt64(&m.EventsEchoed),
		"events_predicted":   atomic.LoadInt64(&m.EventsPredicted),
		"actions_accepted":   atomic.LoadInt64(&m.ActionsAccepted),
		"action_errors":      atomic.LoadInt64(&m.ActionErrors),
		"sync_errors":        atomic.LoadInt64(&m.SyncErrors),
		"slow_conns_dropped": atomic.LoadInt64(&m.SlowConnsDropped),
		"avg_tick_ms":        avgMs,
	}
}
