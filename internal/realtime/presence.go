package realtime

import (
	"context"
	"errors"
	log "log/slog"
	"sync"
)

var ErrConnIdentified = errors.New("connection already identified as another user")

const userLockStripes = 64

// PresenceStore 持久化在线状态
type PresenceStore interface {
	SetOnline(ctx context.Context, userID uint64, online bool) error
}

// Presence 连接与用户的绑定关系，驱动上下线广播
// mu 只保护两张表；同一用户的存储写入与广播由 userLocks 串行化
type Presence struct {
	mu          sync.Mutex
	userLocks   [userLockStripes]sync.Mutex
	store       PresenceStore
	broadcaster Broadcaster
	refCount    bool
	conns       map[string]uint64
	sessions    map[uint64]int
}

// NewPresence refCount 为 true 时同一用户多端在线，仅首个连接上线、最后一个连接下线时变更状态
func NewPresence(store PresenceStore, broadcaster Broadcaster, refCount bool) *Presence {
	return &Presence{
		store:       store,
		broadcaster: broadcaster,
		refCount:    refCount,
		conns:       make(map[string]uint64),
		sessions:    make(map[uint64]int),
	}
}

func (p *Presence) lockUser(userID uint64) *sync.Mutex {
	l := &p.userLocks[userID%userLockStripes]
	l.Lock()
	return l
}

// OnConnect 连接建立时尚不知道用户身份，不改变任何状态
func (p *Presence) OnConnect(connID string) {
	log.Debug("ws connected", "connID", connID)
}

// Identify 绑定连接与用户，写入在线状态后广播
// 存储失败时连接保持未绑定
func (p *Presence) Identify(ctx context.Context, connID string, userID uint64) error {
	defer p.lockUser(userID).Unlock()

	p.mu.Lock()
	if bound, ok := p.conns[connID]; ok {
		if bound != userID {
			p.mu.Unlock()
			return ErrConnIdentified
		}
		if p.refCount {
			p.mu.Unlock()
			return nil
		}
	}
	changed := !p.refCount || p.sessions[userID] == 0
	if !changed {
		p.bind(connID, userID)
	}
	p.mu.Unlock()

	if !changed {
		return nil
	}
	if err := p.store.SetOnline(ctx, userID, true); err != nil {
		return err
	}

	p.mu.Lock()
	p.bind(connID, userID)
	p.mu.Unlock()

	p.broadcaster.BroadcastGlobal(UserStatus{UserID: userID, IsOnline: true})
	return nil
}

// bind 调用方持有 mu
func (p *Presence) bind(connID string, userID uint64) {
	if _, ok := p.conns[connID]; !ok {
		p.conns[connID] = userID
		p.sessions[userID]++
	}
}

// OnDisconnect 未绑定用户的连接直接忽略
// 存储失败时仍然广播下线，错误返回给调用方
func (p *Presence) OnDisconnect(ctx context.Context, connID string) error {
	userID, ok := p.UserOf(connID)
	if !ok {
		return nil
	}
	defer p.lockUser(userID).Unlock()

	p.mu.Lock()
	if bound, ok := p.conns[connID]; !ok || bound != userID {
		p.mu.Unlock()
		return nil
	}
	delete(p.conns, connID)
	p.sessions[userID]--
	last := p.sessions[userID] <= 0
	if last {
		delete(p.sessions, userID)
	}
	p.mu.Unlock()

	if p.refCount && !last {
		return nil
	}

	err := p.store.SetOnline(ctx, userID, false)
	if err != nil {
		log.WarnContext(ctx, "offline status not persisted, broadcasting anyway", "userID", userID, "connID", connID, "err", err)
	}
	p.broadcaster.BroadcastGlobal(UserStatus{UserID: userID, IsOnline: false})
	return err
}

// UserOf 连接绑定的用户
func (p *Presence) UserOf(connID string) (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	userID, ok := p.conns[connID]
	return userID, ok
}

// Reset 进程退出时清空
func (p *Presence) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns = make(map[string]uint64)
	p.sessions = make(map[uint64]int)
}
