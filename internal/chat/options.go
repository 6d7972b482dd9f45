package chat

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Option 同步器配置项
type Option func(*Synchronizer)

// WithClock 替换时间源（测试使用 clockwork.NewFakeClockAt）
func WithClock(c clockwork.Clock) Option {
	return func(s *Synchronizer) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithDebounce 设置已读回执的合并窗口
func WithDebounce(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithLogger 设置日志
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver 每次视图变化后在事件循环中调用，回调内不能阻塞或调用同步器的阻塞方法
func WithObserver(fn func(View)) Option {
	return func(s *Synchronizer) {
		s.observer = fn
	}
}

// WithQueueSize 事件循环队列长度
func WithQueueSize(n int) Option {
	return func(s *Synchronizer) {
		if n > 0 {
			s.queueSize = n
		}
	}
}
