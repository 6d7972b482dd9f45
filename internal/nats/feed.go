package nats

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"sudooom.im.chat/internal/store"
)

var ErrFeedOverflow = errors.New("change feed buffer full")

// FeedConfig 订阅缓冲配置
type FeedConfig struct {
	BufferSize   int           // 单个订阅的消息缓冲区大小
	FlushTimeout time.Duration // 等待服务端确认订阅的超时
}

// Feed 会话变更订阅源，每个订阅一个有序的分发协程
type Feed struct {
	nc     *nats.Conn
	logger *slog.Logger
	config FeedConfig
}

// NewFeed 创建订阅源
func NewFeed(nc *nats.Conn, config FeedConfig) *Feed {
	if config.BufferSize <= 0 {
		config.BufferSize = 256
	}
	if config.FlushTimeout <= 0 {
		config.FlushTimeout = 5 * time.Second
	}
	return &Feed{
		nc:     nc,
		logger: slog.Default(),
		config: config,
	}
}

// Subscribe 订阅会话变更；返回前订阅已在服务端生效
func (f *Feed) Subscribe(ctx context.Context, conversationID string, handlers store.Handlers) (store.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &subscription{
		conversationID: conversationID,
		handlers:       handlers,
		msgChan:        make(chan *nats.Msg, f.config.BufferSize),
		done:           make(chan struct{}),
		logger:         f.logger,
	}

	subject := BuildChatSubject(conversationID)
	sub, err := f.nc.Subscribe(subject, s.enqueue)
	if err != nil {
		return nil, err
	}
	if err := f.nc.FlushTimeout(f.config.FlushTimeout); err != nil {
		_ = sub.Unsubscribe()
		return nil, err
	}
	s.sub = sub

	go s.dispatch()

	f.logger.Debug("Subscribed to chat feed", "subject", subject)
	return s, nil
}

type subscription struct {
	conversationID string
	handlers       store.Handlers
	sub            *nats.Subscription
	msgChan        chan *nats.Msg
	done           chan struct{}
	closeOnce      sync.Once
	overflowOnce   sync.Once
	logger         *slog.Logger
}

// enqueue NATS 回调，只入队不处理
func (s *subscription) enqueue(msg *nats.Msg) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.msgChan <- msg:
	default:
		// 溢出只上报一次
		s.overflowOnce.Do(func() {
			s.logger.Warn("Chat feed buffer full, dropping events",
				"conversationId", s.conversationID,
				"bufferSize", cap(s.msgChan))
			s.handlers.Fail(ErrFeedOverflow)
		})
	}
}

// dispatch 按到达顺序解码并分发
func (s *subscription) dispatch() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.msgChan:
			event, err := DecodeEvent(msg.Data)
			if err != nil {
				s.logger.Error("Failed to decode change event", "conversationId", s.conversationID, "error", err)
				s.handlers.Fail(err)
				continue
			}
			if event.ConversationID != s.conversationID {
				continue
			}
			select {
			case <-s.done:
				return
			default:
				s.handlers.Dispatch(event)
			}
		}
	}
}

// Close 取消订阅，之后不再分发
func (s *subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.sub != nil {
			err = s.sub.Unsubscribe()
		}
	})
	return err
}
