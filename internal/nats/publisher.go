package nats

import (
	"log/slog"

	"github.com/nats-io/nats.go"

	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/internal/store"
)

// Publisher 会话变更发布器
type Publisher struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewPublisher 创建变更发布器
func NewPublisher(nc *nats.Conn) *Publisher {
	return &Publisher{
		nc:     nc,
		logger: slog.Default(),
	}
}

// PublishInsert 发布新消息
func (p *Publisher) PublishInsert(m model.Message) error {
	return p.Publish(store.InsertEvent(m))
}

// PublishUpdate 发布消息字段变更
func (p *Publisher) PublishUpdate(conversationID string, patch model.MessagePatch) error {
	return p.Publish(store.UpdateEvent(conversationID, patch))
}

// Publish 发布到会话的变更流
func (p *Publisher) Publish(event store.ChangeEvent) error {
	data, err := EncodeEvent(event)
	if err != nil {
		p.logger.Error("Failed to marshal change event", "error", err)
		return err
	}

	subject := BuildChatSubject(event.ConversationID)
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Error("Failed to publish change event", "conversationId", event.ConversationID, "error", err)
		return err
	}

	p.logger.Debug("Published change event", "subject", subject, "type", event.Type)
	return nil
}
