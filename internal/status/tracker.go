package status

import (
	"strings"
	"sync"
)

// State 处理状态
type State int

const (
	StateIdle State = iota
	StateProcessing
	StateCompleted
	StateError
)

func (s State) String() string {
	switch s {
	case StateProcessing:
		return "processing"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// Tracker 处理状态机：Idle -> Processing -> Completed | Error。
// Completed 状态下普通错误不覆盖显示，关键错误会覆盖并转为 Error。
type Tracker struct {
	mu    sync.Mutex
	state State
}

// NewTracker 创建处于 Idle 状态的状态机
func NewTracker() *Tracker {
	return &Tracker{}
}

// State 当前状态
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// CanStart 只有正在处理时不能开始新的任务
func (t *Tracker) CanStart() bool {
	return t.State() != StateProcessing
}

// Begin 进入 Processing，已在处理中时返回 false
func (t *Tracker) Begin() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateProcessing {
		return false
	}
	t.state = StateProcessing
	return true
}

// Fail 任务异常结束
func (t *Tracker) Fail() {
	t.mu.Lock()
	t.state = StateError
	t.mu.Unlock()
}

// Reset 回到 Idle
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.state = StateIdle
	t.mu.Unlock()
}

// Observe 根据消息推进状态，返回该消息是否应当显示
func (t *Tracker) Observe(e Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case e.Critical():
		t.state = StateError
		return true
	case e.Terminal():
		t.state = StateCompleted
		return true
	case t.state == StateCompleted && e.IsError():
		return false
	case e.IsError():
		if t.state == StateProcessing {
			t.state = StateError
		}
		return true
	case strings.HasPrefix(e.Message, MsgStart):
		t.state = StateProcessing
		return true
	default:
		return true
	}
}
