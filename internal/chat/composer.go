package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Composer 输入框草稿
// Submit 先清空草稿再发送，发送失败时恢复原内容
// 每份草稿只分配一次 clientMsgID，恢复后原样重发复用同一 ID
type Composer struct {
	syncer *Synchronizer

	mu      sync.Mutex
	input   string
	sending bool

	draftID      string
	draftContent string
}

// NewComposer 创建绑定到同步器的草稿
func NewComposer(s *Synchronizer) *Composer {
	return &Composer{syncer: s}
}

// SetInput 更新草稿
func (c *Composer) SetInput(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = text
}

// Input 当前草稿
func (c *Composer) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// Sending 是否有发送进行中
func (c *Composer) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// Submit 发送当前草稿；空白草稿或已有发送进行中时不做任何事
func (c *Composer) Submit(ctx context.Context) error {
	c.mu.Lock()
	content := c.input
	if c.sending || strings.TrimSpace(content) == "" {
		c.mu.Unlock()
		return nil
	}
	if c.draftID == "" || c.draftContent != content {
		c.draftID = uuid.NewString()
		c.draftContent = content
	}
	draftID := c.draftID
	c.input = ""
	c.sending = true
	c.mu.Unlock()

	err := c.syncer.SendDraft(ctx, draftID, content)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sending = false
	if err == nil {
		c.draftID, c.draftContent = "", ""
		return nil
	}
	if c.input == "" {
		c.input = content
	}
	return err
}
