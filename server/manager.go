package server

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"p2pio/config"
	"p2pio/contract"
	"p2pio/ledger"
)

// RoomManager 管理多个房间的生命周期，房间之间共享同一个账本副本
type RoomManager struct {
	mu          sync.RWMutex
	rooms       map[string]*Room
	replica     *ledger.Replica
	cfg         config.RoomConfig
	defaultRoom string
}

// NewRoomManager defaultRoom 用于未指定 room 参数的请求
func NewRoomManager(replica *ledger.Replica, defaultRoom string, cfg config.RoomConfig) *RoomManager {
	return &RoomManager{
		rooms:       make(map[string]*Room),
		replica:     replica,
		cfg:         cfg,
		defaultRoom: defaultRoom,
	}
}

// roomKey 房间名确定性地派生合约身份，重启后同名房间落在同一合约地址
func roomKey(id string) (*ledger.KeyPair, error) {
	seed := sha256.Sum256([]byte("p2pio/room/" + id))
	return ledger.KeyPairFromSeed(seed[:])
}

// GetOrCreateRoom 获取或创建房间；合约尚未部署（或未从 journal 恢复）时先部署，并确保开始 Tick
func (m *RoomManager) GetOrCreateRoom(ctx context.Context, id string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[id]; ok {
		return r, nil
	}

	key, err := roomKey(id)
	if err != nil {
		return nil, err
	}
	addr := key.Address()
	if !m.replica.HasContract(addr) {
		res, err := m.replica.Deploy(ctx, key, contract.ProgramName)
		if err != nil {
			return nil, fmt.Errorf("deploy room %s: %w", id, err)
		}
		if err := m.replica.CommitTransaction(ctx, res.Tx, res.Updates); err != nil {
			return nil, fmt.Errorf("deploy room %s: %w", id, err)
		}
		Log.Infow("game contract deployed", "room", id, "contract", addr.String())
	}

	r := NewRoom(id, m.replica, addr, m.cfg)
	m.rooms[id] = r
	r.StartTicker()
	return r, nil
}

// GetRoom 只查询，不创建
func (m *RoomManager) GetRoom(id string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// Stop 停止全部房间
func (m *RoomManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rooms {
		r.Stop()
	}
}
