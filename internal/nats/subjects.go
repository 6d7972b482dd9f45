package nats

// NATS Subject 常量定义
const (
	// SubjectChatPrefix 会话变更流前缀
	// 完整格式: im.chat.{conversation_id}.messages
	SubjectChatPrefix = "im.chat."
	SubjectChatSuffix = ".messages"

	// SubjectChatAll 所有会话的变更流
	SubjectChatAll = "im.chat.*.messages"
)

// BuildChatSubject 构建会话变更流 Subject
func BuildChatSubject(conversationID string) string {
	return SubjectChatPrefix + conversationID + SubjectChatSuffix
}
