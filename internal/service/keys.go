package service

// Redis Key 定义
const (
	// InboxKeyPrefix 用户会话索引（ZSET，score 为最后活动时间毫秒）
	// 完整格式: im:chat:inbox:{user_id}
	InboxKeyPrefix = "im:chat:inbox:"

	// ConversationKeyPrefix 用户视角的会话摘要（HASH）
	// 完整格式: im:chat:conv:{user_id}:{conversation_id}
	ConversationKeyPrefix = "im:chat:conv:"

	// ProfileKeyPrefix 参与者资料缓存（JSON）
	// 完整格式: im:chat:profile:{participant_id}
	ProfileKeyPrefix = "im:chat:profile:"
)

// 会话摘要字段
const (
	fieldPeerID      = "peer_id"
	fieldLastMsgID   = "last_msg_id"
	fieldLastPreview = "last_preview"
	fieldUnreadCount = "unread_count"
	fieldUpdateAt    = "update_at"
)

// BuildInboxKey 构建用户会话索引 Key
func BuildInboxKey(userID string) string {
	return InboxKeyPrefix + userID
}

// BuildConversationKey 构建会话摘要 Key
func BuildConversationKey(userID, conversationID string) string {
	return ConversationKeyPrefix + userID + ":" + conversationID
}

// BuildProfileKey 构建资料缓存 Key
func BuildProfileKey(participantID string) string {
	return ProfileKeyPrefix + participantID
}
