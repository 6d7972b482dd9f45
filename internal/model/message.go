package model

import "time"

// DeletedPlaceholder 已删除消息的展示内容
const DeletedPlaceholder = "Message has been deleted"

// Message 消息实体
type Message struct {
	ID             string     `json:"id" db:"id"`
	ConversationID string     `json:"chatId" db:"chat_id"`
	SenderID       string     `json:"senderId" db:"sender_id"`
	Content        string     `json:"content" db:"content"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
	IsRead         bool       `json:"isRead" db:"is_read"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty" db:"deleted_at"`
}

// IsDeleted 是否已软删除
func (m Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// Before 规范展示顺序：created_at 升序，相同则按 id
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

// MessagePatch 更新事件携带的可变字段，nil 表示未携带
type MessagePatch struct {
	ID        string     `json:"id"`
	IsRead    *bool      `json:"isRead,omitempty"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// Apply 将补丁合并到消息上
// deleted_at 一旦设置不再清除，is_read 一旦为 true 不再回退
func (p MessagePatch) Apply(m Message) Message {
	if p.DeletedAt != nil && m.DeletedAt == nil {
		deletedAt := *p.DeletedAt
		m.DeletedAt = &deletedAt
	}
	if p.IsRead != nil && *p.IsRead {
		m.IsRead = true
	}
	return m
}

// ViewMessage 本地视图中的消息，IsSender 由本地参与者推导
type ViewMessage struct {
	Message
	IsSender bool `json:"isSender"`
}

// Body 渲染内容，已删除的消息只返回占位符
func (v ViewMessage) Body() string {
	if v.IsDeleted() {
		return DeletedPlaceholder
	}
	return v.Content
}

// NewViewMessages 按本地参与者计算 IsSender
func NewViewMessages(messages []Message, localID string) []ViewMessage {
	views := make([]ViewMessage, len(messages))
	for i, m := range messages {
		views[i] = ViewMessage{Message: m, IsSender: m.SenderID == localID}
	}
	return views
}
