package realtime

import (
	"context"
	"hash/fnv"
	log "log/slog"
	"sync"
)

// Broadcaster 业务层使用的推送入口，调用方不等待投递结果
type Broadcaster interface {
	BroadcastToRoom(roomID string, evt Event)
	BroadcastGlobal(evt Event)
}

// Transport 编码后的帧的下游：本地 Hub 或 Redis 总线
type Transport interface {
	PublishRoom(ctx context.Context, roomID string, frame []byte) error
	PublishGlobal(ctx context.Context, frame []byte) error
}

type task struct {
	roomID string
	global bool
	evt    Event
}

// Dispatcher 异步推送工作池
// 每个 worker 独占一个队列，同一房间的事件总是落到同一个 worker，全局事件固定由第一个 worker 投递
type Dispatcher struct {
	transport Transport
	queues    []chan task
	mu        sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
}

// NewDispatcher 构造函数：启动 workers 个推送协程，queueSize 为单个协程的队列长度
func NewDispatcher(transport Transport, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	d := &Dispatcher{
		transport: transport,
		queues:    make([]chan task, workers),
	}
	d.wg.Add(workers)
	for i := range d.queues {
		d.queues[i] = make(chan task, queueSize)
		go d.worker(d.queues[i])
	}
	return d
}

func (d *Dispatcher) BroadcastToRoom(roomID string, evt Event) {
	d.submit(task{roomID: roomID, evt: evt})
}

func (d *Dispatcher) BroadcastGlobal(evt Event) {
	d.submit(task{global: true, evt: evt})
}

// shard 同一个 key 必须映射到同一个队列
func (d *Dispatcher) shard(t task) chan task {
	if t.global || len(d.queues) == 1 {
		return d.queues[0]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(t.roomID))
	return d.queues[h.Sum32()%uint32(len(d.queues))]
}

func (d *Dispatcher) submit(t task) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		log.Warn("dispatcher closed, event dropped", "event", t.evt.Kind())
		return
	}
	select {
	case d.shard(t) <- t:
	default:
		log.Warn("dispatch queue full, event dropped", "event", t.evt.Kind(), "room", t.roomID)
	}
}

func (d *Dispatcher) worker(queue <-chan task) {
	defer d.wg.Done()
	for t := range queue {
		d.deliver(t)
	}
}

func (d *Dispatcher) deliver(t task) {
	frame, err := Encode(t.evt)
	if err != nil {
		log.Error("encode event failed", "event", t.evt.Kind(), "err", err)
		return
	}

	ctx := context.Background()
	if t.global {
		err = d.transport.PublishGlobal(ctx, frame)
	} else {
		err = d.transport.PublishRoom(ctx, t.roomID, frame)
	}
	if err != nil {
		log.Error("broadcast failed", "event", t.evt.Kind(), "room", t.roomID, "err", err)
	}
}

// Close 停止接收新任务并等待队列中的任务投递完毕
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()

	d.wg.Wait()
	log.Info("Dispatcher shut down gracefully")
}
