package model

// Participant 会话参与者（外部资料，同步器只读）
type Participant struct {
	ID        string `json:"id" db:"id"`
	Name      string `json:"name" db:"name"`
	Username  string `json:"username" db:"username"` // 用于打开会话的 handle
	AvatarURL string `json:"avatarUrl" db:"avatar_url"`
}

// IsZero 是否为空资料
func (p Participant) IsZero() bool {
	return p.ID == ""
}
