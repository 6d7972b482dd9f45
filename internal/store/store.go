package store

import (
	"context"
	"errors"

	"sudooom.im.chat/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// ConversationStore 同步器依赖的数据访问接口
// 存储、鉴权和实时推送都由实现方负责
type ConversationStore interface {
	FindParticipantByID(ctx context.Context, id string) (model.Participant, error)
	// FindParticipantByHandle 无匹配时返回 ErrNotFound
	FindParticipantByHandle(ctx context.Context, handle string) (model.Participant, error)
	// FindConversation 按无序参与者对查找，无匹配时返回 ErrNotFound
	FindConversation(ctx context.Context, participantA, participantB string) (model.Conversation, error)
	// CreateConversation 并发重复创建时返回已存在的会话
	CreateConversation(ctx context.Context, participantA, participantB string) (model.Conversation, error)
	// ListMessages 按 created_at 升序返回全部消息
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	// SendMessage 同一 clientMsgID 重复提交时返回首次写入的消息，不再推送事件
	SendMessage(ctx context.Context, conversationID, senderID, clientMsgID, content string) (model.Message, error)
	MarkRead(ctx context.Context, messageIDs []string) error
	SoftDelete(ctx context.Context, messageID string) error
	Subscribe(ctx context.Context, conversationID string, handlers Handlers) (Subscription, error)
}

// ContactStore 单向联系人
type ContactStore interface {
	// AddContact 已添加过时返回 ErrConflict
	AddContact(ctx context.Context, ownerID, contactID string) error
	ListContacts(ctx context.Context, ownerID string) ([]model.Participant, error)
}

// Handlers 订阅回调，同一订阅的回调按接收顺序串行调用
type Handlers struct {
	OnInsert func(model.Message)
	OnUpdate func(model.MessagePatch)
	OnError  func(error)
}

// Dispatch 将变更事件分发给对应回调
func (h Handlers) Dispatch(event ChangeEvent) {
	switch event.Type {
	case EventInsert:
		if h.OnInsert != nil && event.Message != nil {
			h.OnInsert(*event.Message)
		}
	case EventUpdate:
		if h.OnUpdate != nil && event.Patch != nil {
			h.OnUpdate(*event.Patch)
		}
	}
}

// Fail 上报订阅错误
func (h Handlers) Fail(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

// Subscription 单个会话的变更订阅
type Subscription interface {
	Close() error
}

// EventType 变更类型
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
)

// ChangeEvent 会话消息变更事件
type ChangeEvent struct {
	Type           EventType           `json:"type"`
	ConversationID string              `json:"chatId"`
	Message        *model.Message      `json:"message,omitempty"`
	Patch          *model.MessagePatch `json:"patch,omitempty"`
}

// InsertEvent 构造插入事件
func InsertEvent(m model.Message) ChangeEvent {
	return ChangeEvent{Type: EventInsert, ConversationID: m.ConversationID, Message: &m}
}

// UpdateEvent 构造更新事件
func UpdateEvent(conversationID string, patch model.MessagePatch) ChangeEvent {
	return ChangeEvent{Type: EventUpdate, ConversationID: conversationID, Patch: &patch}
}
