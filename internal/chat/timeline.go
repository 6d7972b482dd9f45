package chat

import (
	"sort"

	"sudooom.im.chat/internal/model"
)

// Timeline 当前会话的有序消息列表
// 顺序为 created_at 升序、id 次序；条目只增不删，更新不改变位置
type Timeline struct {
	localID  string
	messages []model.Message
	ids      map[string]struct{}
}

// NewTimeline 由快照构建，快照中重复的 id 只保留第一条
func NewTimeline(localID string, snapshot []model.Message) *Timeline {
	t := &Timeline{
		localID:  localID,
		messages: make([]model.Message, 0, len(snapshot)),
		ids:      make(map[string]struct{}, len(snapshot)),
	}
	for _, m := range snapshot {
		if _, ok := t.ids[m.ID]; ok {
			continue
		}
		t.ids[m.ID] = struct{}{}
		t.messages = append(t.messages, m)
	}
	sort.SliceStable(t.messages, func(i, j int) bool {
		return t.messages[i].Before(t.messages[j])
	})
	return t
}

// Len 消息数量
func (t *Timeline) Len() int {
	return len(t.messages)
}

// Insert 按顺序插入，id 已存在时忽略并返回 false
func (t *Timeline) Insert(m model.Message) bool {
	if _, ok := t.ids[m.ID]; ok {
		return false
	}
	t.ids[m.ID] = struct{}{}

	// 找到第一个排在 m 之后的位置
	pos := sort.Search(len(t.messages), func(i int) bool {
		return m.Before(t.messages[i])
	})
	t.messages = append(t.messages, model.Message{})
	copy(t.messages[pos+1:], t.messages[pos:])
	t.messages[pos] = m
	return true
}

// Patch 合并更新事件，未知 id 忽略；返回是否有变化
func (t *Timeline) Patch(p model.MessagePatch) bool {
	i := t.find(p.ID)
	if i < 0 {
		return false
	}
	before := t.messages[i]
	after := p.Apply(before)
	if after.IsRead == before.IsRead && (after.DeletedAt == nil) == (before.DeletedAt == nil) {
		return false
	}
	t.messages[i] = after
	return true
}

// MarkRead 将给定消息置为已读，返回实际变化的数量
func (t *Timeline) MarkRead(ids []string) int {
	read := true
	changed := 0
	for _, id := range ids {
		if t.Patch(model.MessagePatch{ID: id, IsRead: &read}) {
			changed++
		}
	}
	return changed
}

// Unread 对方发送且未读的消息 id，按展示顺序
func (t *Timeline) Unread() []string {
	var ids []string
	for _, m := range t.messages {
		if !m.IsRead && m.SenderID != t.localID {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// Get 按 id 查找
func (t *Timeline) Get(id string) (model.Message, bool) {
	i := t.find(id)
	if i < 0 {
		return model.Message{}, false
	}
	return t.messages[i], true
}

// Views 带 IsSender 的副本
func (t *Timeline) Views() []model.ViewMessage {
	return model.NewViewMessages(t.messages, t.localID)
}

func (t *Timeline) find(id string) int {
	if _, ok := t.ids[id]; !ok {
		return -1
	}
	// 最近的消息最常被更新，从尾部查找
	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].ID == id {
			return i
		}
	}
	return -1
}
