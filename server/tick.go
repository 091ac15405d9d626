package server

import (
	"context"
	"time"
)

// StartTicker 启动房间的 Tick 循环（单线程推进：成员变更 → 同步账本 → 广播事件）
func (r *Room) StartTicker() {
	if r.tickerStarted {
		return
	}
	r.tickerStarted = true
	tickInterval := time.Second / time.Duration(r.tickRate)
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		for {
			select {
			case <-r.stop:
				for m := range r.members {
					r.removeMember(m)
				}
				return
			case <-ticker.C:
			}
			start := time.Now()
			seq := r.tickSeq.Add(1)
			r.ProcessMembership()
			if seq%r.syncEvery.Load() == 0 {
				r.SyncMembers(ctx)
			}
			r.BroadcastEvents()
			r.metrics.AddTick(time.Since(start).Nanoseconds())
		}
	}()
}

// Stop 停止 Tick 循环并断开所有成员
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	if r.tickerStarted {
		<-r.done
	}
}
