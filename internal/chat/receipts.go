package chat

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	apperrors "sudooom.im.chat/internal/errors"
)

// DefaultReadDebounce 已读回执的合并窗口
const DefaultReadDebounce = 500 * time.Millisecond

// ReceiptState 已读协调器状态
type ReceiptState int

const (
	ReceiptIdle ReceiptState = iota
	ReceiptScheduled
)

func (s ReceiptState) String() string {
	switch s {
	case ReceiptScheduled:
		return "scheduled"
	default:
		return "idle"
	}
}

// readCoordinator 防抖的批量已读确认（尾沿触发，不累积）
// 所有方法都只在事件循环中调用
type readCoordinator struct {
	clock  clockwork.Clock
	window time.Duration
	logger *slog.Logger

	// 回到事件循环执行
	post func(func())
	// 当前未读集合，在触发时重新计算
	unread func() []string
	// 远程确认，完成后 done 在事件循环中调用
	ack func(ids []string, done func(error))
	// 确认成功后更新本地状态
	applyRead func(ids []string)

	state    ReceiptState
	pending  []string
	timer    clockwork.Timer
	seq      uint64
	inFlight map[string]struct{}
	stopped  bool
}

func newReadCoordinator(c clockwork.Clock, window time.Duration, logger *slog.Logger) *readCoordinator {
	if window <= 0 {
		window = DefaultReadDebounce
	}
	return &readCoordinator{
		clock:    c,
		window:   window,
		logger:   logger,
		inFlight: make(map[string]struct{}),
	}
}

// Trigger 视图状态变化时调用；未读集合非空则重置定时器
func (r *readCoordinator) Trigger(unread []string) {
	if r.stopped {
		return
	}
	ids := r.withoutInFlight(unread)
	if len(ids) == 0 {
		return
	}

	if r.timer != nil {
		r.timer.Stop()
	}
	r.seq++
	seq := r.seq
	r.pending = ids
	r.state = ReceiptScheduled
	r.timer = r.clock.AfterFunc(r.window, func() {
		r.post(func() { r.fire(seq) })
	})
}

// fire 定时器到期，重新计算集合并发出一次确认
func (r *readCoordinator) fire(seq uint64) {
	if r.stopped || seq != r.seq || r.state != ReceiptScheduled {
		return
	}
	r.state = ReceiptIdle
	r.pending = nil
	r.timer = nil

	ids := r.withoutInFlight(r.unread())
	if len(ids) == 0 {
		return
	}
	for _, id := range ids {
		r.inFlight[id] = struct{}{}
	}

	r.logger.Debug("Acknowledging messages", "count", len(ids))
	r.ack(ids, func(err error) {
		for _, id := range ids {
			delete(r.inFlight, id)
		}
		if r.stopped {
			return
		}
		if err != nil {
			// 保持未读，下次状态变化时重试
			r.logger.Warn("Read acknowledgement failed",
				"count", len(ids),
				"error", apperrors.ErrReadAckFailed.Wrap(err))
			return
		}
		r.applyRead(ids)
	})
}

// Stop 清除定时器，之后的触发和回调都被忽略
func (r *readCoordinator) Stop() {
	r.stopped = true
	r.seq++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.state = ReceiptIdle
	r.pending = nil
}

// State 当前状态及待确认集合
func (r *readCoordinator) State() (ReceiptState, []string) {
	return r.state, append([]string(nil), r.pending...)
}

func (r *readCoordinator) withoutInFlight(ids []string) []string {
	if len(r.inFlight) == 0 {
		return ids
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := r.inFlight[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
