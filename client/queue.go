package client

import "sync"

// Queue 同步协程与消费方共享的事件队列。无界，不丢弃事件。
type Queue struct {
	mu     sync.Mutex
	events []Event
}

func NewQueue() *Queue {
	return &Queue{}
}

// Push 追加事件
func (q *Queue) Push(e Event) {
	q.mu.Lock()
	q.events = append(q.events, e)
	q.mu.Unlock()
}

// Drain 非阻塞取走当前全部事件（可能为空），保持入队顺序
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	return out
}

// Len 当前排队数量
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
