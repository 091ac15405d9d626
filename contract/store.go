package contract

import (
	"fmt"
	"sync"

	"p2pio/ledger"
)

// Store 合约实例持有的玩家存储：身份 -> 基线
type Store interface {
	// Load 返回 ErrUnknownPlayer 或致命错误（存储值损坏）
	Load(id ledger.Address) (PlayerState, error)
	Save(id ledger.Address, p PlayerState)
}

// MemoryStore 进程内存储，客户端预测与测试使用
type MemoryStore struct {
	mu      sync.RWMutex
	players map[ledger.Address]PlayerState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{players: make(map[ledger.Address]PlayerState)}
}

func (s *MemoryStore) Load(id ledger.Address) (PlayerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return PlayerState{}, fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}
	return p, nil
}

func (s *MemoryStore) Save(id ledger.Address, p PlayerState) {
	s.mu.Lock()
	s.players[id] = p
	s.mu.Unlock()
}

// Len 已知玩家数
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}

// 合约存储中的映射编号
const (
	mappingX uint8 = iota
	mappingY
	mappingHeading
	mappingTick
	mappingMeta
)

const metaStartTime uint64 = 0

// slotStore 把 PlayerState 拆成四个映射槽保存在账本合约存储里
type slotStore struct {
	env ledger.Env
}

func (s slotStore) Load(id ledger.Address) (PlayerState, error) {
	key := uint64(id)
	tick, ok := s.env.Get(mappingTick, key)
	if !ok {
		return PlayerState{}, fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}
	x, _ := s.env.Get(mappingX, key)
	y, _ := s.env.Get(mappingY, key)
	raw, _ := s.env.Get(mappingHeading, key)
	h, err := ParseHeading(uint64(raw))
	if err != nil {
		return PlayerState{}, err
	}
	return PlayerState{X: x, Y: y, Heading: h, Tick: tick}, nil
}

func (s slotStore) Save(id ledger.Address, p PlayerState) {
	key := uint64(id)
	s.env.Set(mappingX, key, p.X)
	s.env.Set(mappingY, key, p.Y)
	s.env.Set(mappingTick, key, p.Tick)
	s.env.Set(mappingHeading, key, int64(p.Heading))
}
