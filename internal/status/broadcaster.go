package status

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultRepeatDelays 完成消息的补发间隔，保证稍后打开的界面也能收到
var DefaultRepeatDelays = []time.Duration{
	300 * time.Millisecond,
	800 * time.Millisecond,
	1500 * time.Millisecond,
}

const (
	subscriberBuffer = 16
	cacheTimeout     = 2 * time.Second
)

// Publisher 状态消息的接收方
type Publisher interface {
	Publish(e Event)
}

// Cache 持久化最近一条状态消息
type Cache interface {
	SaveStatus(ctx context.Context, status string) error
	Status(ctx context.Context) (string, error)
}

// Broadcaster 把状态消息分发给所有订阅者。
// 订阅者跟不上时直接丢弃消息，发送方永远不会阻塞。
type Broadcaster struct {
	RepeatDelays []time.Duration

	cache   Cache
	tracker *Tracker

	mu      sync.Mutex
	subs    map[int]chan Event
	nextID  int
	last    Event
	hasLast bool
	closed  bool

	// timers 尚未触发的补发，触发后自行移除
	timers    map[int]*time.Timer
	nextTimer int
}

// NewBroadcaster 创建广播器，cache 和 tracker 可以为 nil
func NewBroadcaster(cache Cache, tracker *Tracker) *Broadcaster {
	return &Broadcaster{
		RepeatDelays: DefaultRepeatDelays,
		cache:        cache,
		tracker:      tracker,
		subs:         make(map[int]chan Event),
	}
}

// Tracker 返回关联的状态机
func (b *Broadcaster) Tracker() *Tracker {
	return b.tracker
}

// Subscribe 订阅状态消息，返回的函数用于取消订阅
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish 广播一条状态消息
func (b *Broadcaster) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if b.tracker != nil && !b.tracker.Observe(e) {
		slog.Debug("状态已完成，忽略消息", "message", e.Message)
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.last = e
	b.hasLast = true
	b.mu.Unlock()

	b.saveCache(e)
	b.fanout(e)

	if e.Terminal() {
		b.scheduleRepeats(e)
	}
}

// Last 返回最近一条状态，内存中没有时读取缓存
func (b *Broadcaster) Last(ctx context.Context) (Event, bool) {
	b.mu.Lock()
	last, ok := b.last, b.hasLast
	b.mu.Unlock()
	if ok {
		return last, true
	}
	if b.cache == nil {
		return Event{}, false
	}

	msg, err := b.cache.Status(ctx)
	if err != nil {
		slog.Debug("读取状态缓存失败", "error", err)
		return Event{}, false
	}
	if msg == "" {
		return Event{}, false
	}
	return Event{Message: msg}, true
}

// Close 停止待发送的补发消息并关闭所有订阅
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, t := range b.timers {
		t.Stop()
	}
	b.timers = nil
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}

func (b *Broadcaster) fanout(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			// 订阅者缓冲已满
		}
	}
}

func (b *Broadcaster) scheduleRepeats(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if b.timers == nil {
		b.timers = make(map[int]*time.Timer)
	}
	for _, d := range b.RepeatDelays {
		id := b.nextTimer
		b.nextTimer++
		b.timers[id] = time.AfterFunc(d, func() {
			b.mu.Lock()
			delete(b.timers, id)
			b.mu.Unlock()
			b.fanout(e)
		})
	}
}

func (b *Broadcaster) pendingRepeats() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.timers)
}

func (b *Broadcaster) saveCache(e Event) {
	if b.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()
	if err := b.cache.SaveStatus(ctx, e.Message); err != nil {
		slog.Debug("保存状态缓存失败", "error", err)
	}
}

// Func 把函数适配为 Publisher
type Func func(e Event)

// Publish 调用函数本身
func (f Func) Publish(e Event) { f(e) }

// Discard 丢弃所有消息
var Discard Publisher = Func(func(Event) {})
