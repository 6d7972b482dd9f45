package model

import "time"

// Conversation 两人会话，同一无序参与者对至多存在一条
type Conversation struct {
	ID        string    `json:"id" db:"id"`
	User1ID   string    `json:"user1Id" db:"user1_id"`
	User2ID   string    `json:"user2Id" db:"user2_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Has 判断参与者是否属于该会话
func (c Conversation) Has(participantID string) bool {
	return c.User1ID == participantID || c.User2ID == participantID
}

// PeerOf 返回对方 ID
func (c Conversation) PeerOf(participantID string) string {
	if c.User1ID == participantID {
		return c.User2ID
	}
	return c.User1ID
}

// PairKey 无序参与者对的规范键（小 ID 在前）
func PairKey(a, b string) (low, high string) {
	if a <= b {
		return a, b
	}
	return b, a
}

// ChatSummary 会话列表项
type ChatSummary struct {
	ConversationID string      `json:"conversationId"`
	Peer           Participant `json:"peer"`
	LastMessageID  string      `json:"lastMessageId"`
	LastPreview    string      `json:"lastPreview"`
	UnreadCount    int         `json:"unreadCount"`
	UpdatedAt      int64       `json:"updatedAt"` // 毫秒
}
