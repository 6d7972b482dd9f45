// Package memstore 内存版 ConversationStore，用于测试和离线演示
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/internal/store"
)

// Op 可注入故障的操作
type Op string

const (
	OpFindParticipant  Op = "find_participant"
	OpFindHandle       Op = "find_handle"
	OpFindConversation Op = "find_conversation"
	OpCreate           Op = "create_conversation"
	OpList             Op = "list_messages"
	OpSend             Op = "send_message"
	OpSendAck          Op = "send_ack" // 写入并推送后返回错误，模拟响应丢失
	OpMarkRead         Op = "mark_read"
	OpSoftDelete       Op = "soft_delete"
	OpSubscribe        Op = "subscribe"
	OpAddContact       Op = "add_contact"
	OpListContacts     Op = "list_contacts"
)

// ListHook 在 ListMessages 返回前调用，可用于模拟加载期间到达的事件或阻塞
type ListHook func(ctx context.Context, conversationID string) error

// Store 内存存储，变更事件同步分发给订阅者
type Store struct {
	clock clockwork.Clock

	mu            sync.Mutex
	participants  map[string]model.Participant
	conversations map[string]model.Conversation // pair key -> conversation
	messages      map[string]*model.Message
	order         map[string][]string // conversation id -> message ids
	clientIDs     map[string]string   // client message id -> message id
	contacts      map[string][]string // owner id -> contact ids, newest first
	subscribers   map[string]map[string]store.Handlers
	failures      map[Op]error
	markReadCalls [][]string
	listHook      ListHook
	seq           int

	publishMu sync.Mutex
}

// New 创建内存存储
func New(c clockwork.Clock) *Store {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	return &Store{
		clock:         c,
		participants:  make(map[string]model.Participant),
		conversations: make(map[string]model.Conversation),
		messages:      make(map[string]*model.Message),
		order:         make(map[string][]string),
		clientIDs:     make(map[string]string),
		contacts:      make(map[string][]string),
		subscribers:   make(map[string]map[string]store.Handlers),
		failures:      make(map[Op]error),
	}
}

// AddParticipant 写入参与者资料
func (s *Store) AddParticipant(p model.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[p.ID] = p
}

// Fail 使指定操作持续返回 err，传 nil 恢复
func (s *Store) Fail(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// SetListHook 设置 ListMessages 钩子
func (s *Store) SetListHook(hook ListHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listHook = hook
}

// MarkReadCalls 返回每次 MarkRead 调用的 id 集合
func (s *Store) MarkReadCalls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	calls := make([][]string, len(s.markReadCalls))
	for i, c := range s.markReadCalls {
		calls[i] = append([]string(nil), c...)
	}
	return calls
}

// SubscriberCount 返回会话当前订阅数
func (s *Store) SubscriberCount(conversationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers[conversationID])
}

// ConversationCount 返回会话总数
func (s *Store) ConversationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// Message 返回存储中的消息副本
func (s *Store) Message(id string) (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return model.Message{}, false
	}
	return *m, true
}

func (s *Store) failure(op Op) error {
	if err, ok := s.failures[op]; ok {
		return err
	}
	return nil
}

func pairKey(a, b string) string {
	low, high := model.PairKey(a, b)
	return low + "|" + high
}

// AddContact 添加单向联系人，重复添加返回 store.ErrConflict
func (s *Store) AddContact(_ context.Context, ownerID, contactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(OpAddContact); err != nil {
		return err
	}
	if _, ok := s.participants[contactID]; !ok {
		return store.ErrNotFound
	}
	for _, id := range s.contacts[ownerID] {
		if id == contactID {
			return store.ErrConflict
		}
	}
	s.contacts[ownerID] = append([]string{contactID}, s.contacts[ownerID]...)
	return nil
}

// ListContacts 联系人资料，最近添加的在前
func (s *Store) ListContacts(_ context.Context, ownerID string) ([]model.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(OpListContacts); err != nil {
		return nil, err
	}
	contacts := make([]model.Participant, 0, len(s.contacts[ownerID]))
	for _, id := range s.contacts[ownerID] {
		contacts = append(contacts, s.participants[id])
	}
	return contacts, nil
}

// FindParticipantByID 按 ID 查找资料
func (s *Store) FindParticipantByID(_ context.Context, id string) (model.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(OpFindParticipant); err != nil {
		return model.Participant{}, err
	}
	p, ok := s.participants[id]
	if !ok {
		return model.Participant{}, store.ErrNotFound
	}
	return p, nil
}

// FindParticipantByHandle 按用户名查找资料（不区分大小写）
func (s *Store) FindParticipantByHandle(_ context.Context, handle string) (model.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(OpFindHandle); err != nil {
		return model.Participant{}, err
	}
	for _, p := range s.participants {
		if strings.EqualFold(p.Username, handle) {
			return p, nil
		}
	}
	return model.Participant{}, store.ErrNotFound
}

// FindConversation 按无序参与者对查找
func (s *Store) FindConversation(_ context.Context, a, b string) (model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(OpFindConversation); err != nil {
		return model.Conversation{}, err
	}
	c, ok := s.conversations[pairKey(a, b)]
	if !ok {
		return model.Conversation{}, store.ErrNotFound
	}
	return c, nil
}

// CreateConversation 按无序参与者对唯一创建，已存在时返回已有会话
func (s *Store) CreateConversation(_ context.Context, a, b string) (model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(OpCreate); err != nil {
		return model.Conversation{}, err
	}
	key := pairKey(a, b)
	if c, ok := s.conversations[key]; ok {
		return c, nil
	}

	s.seq++
	c := model.Conversation{
		ID:        fmt.Sprintf("c%d", s.seq),
		User1ID:   a,
		User2ID:   b,
		CreatedAt: s.clock.Now(),
	}
	s.conversations[key] = c
	return c, nil
}

// ListMessages 按 created_at, id 升序返回
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	s.mu.Lock()
	hook := s.listHook
	err := s.failure(OpList)
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if hook != nil {
		if err := hook(ctx, conversationID); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.order[conversationID]
	messages := make([]model.Message, 0, len(ids))
	for _, id := range ids {
		messages = append(messages, *s.messages[id])
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Before(messages[j])
	})
	return messages, nil
}

// SendMessage 写入消息并推送插入事件，clientMsgID 重复时返回已有消息
func (s *Store) SendMessage(_ context.Context, conversationID, senderID, clientMsgID, content string) (model.Message, error) {
	s.mu.Lock()
	if err := s.failure(OpSend); err != nil {
		s.mu.Unlock()
		return model.Message{}, err
	}
	if id, ok := s.clientIDs[clientMsgID]; ok && clientMsgID != "" {
		m := *s.messages[id]
		s.mu.Unlock()
		return m, nil
	}
	s.seq++
	m := model.Message{
		ID:             fmt.Sprintf("m%d", s.seq),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      s.clock.Now(),
	}
	s.putLocked(m)
	if clientMsgID != "" {
		s.clientIDs[clientMsgID] = m.ID
	}
	ackErr := s.failure(OpSendAck)
	s.mu.Unlock()

	s.publish(store.InsertEvent(m))
	if ackErr != nil {
		return model.Message{}, ackErr
	}
	return m, nil
}

// Insert 直接写入一条指定内容的消息（模拟对方发送）并推送插入事件
func (s *Store) Insert(m model.Message) model.Message {
	s.mu.Lock()
	if m.ID == "" {
		s.seq++
		m.ID = fmt.Sprintf("m%d", s.seq)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.clock.Now()
	}
	s.putLocked(m)
	s.mu.Unlock()

	s.publish(store.InsertEvent(m))
	return m
}

// Seed 写入历史消息，不推送事件
func (s *Store) Seed(messages ...model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range messages {
		s.putLocked(m)
	}
}

// Publish 直接推送任意事件（模拟重复投递）
func (s *Store) Publish(event store.ChangeEvent) {
	s.publish(event)
}

func (s *Store) putLocked(m model.Message) {
	if _, exists := s.messages[m.ID]; !exists {
		s.order[m.ConversationID] = append(s.order[m.ConversationID], m.ID)
	}
	stored := m
	s.messages[m.ID] = &stored
}

// MarkRead 批量标记已读并推送更新事件
func (s *Store) MarkRead(_ context.Context, messageIDs []string) error {
	s.mu.Lock()
	s.markReadCalls = append(s.markReadCalls, append([]string(nil), messageIDs...))
	if err := s.failure(OpMarkRead); err != nil {
		s.mu.Unlock()
		return err
	}

	read := true
	var events []store.ChangeEvent
	for _, id := range messageIDs {
		m, ok := s.messages[id]
		if !ok || m.IsRead {
			continue
		}
		m.IsRead = true
		events = append(events, store.UpdateEvent(m.ConversationID, model.MessagePatch{ID: id, IsRead: &read}))
	}
	s.mu.Unlock()

	for _, e := range events {
		s.publish(e)
	}
	return nil
}

// SoftDelete 设置 deleted_at 并推送更新事件
func (s *Store) SoftDelete(_ context.Context, messageID string) error {
	s.mu.Lock()
	if err := s.failure(OpSoftDelete); err != nil {
		s.mu.Unlock()
		return err
	}
	m, ok := s.messages[messageID]
	if !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	if m.DeletedAt != nil {
		s.mu.Unlock()
		return nil
	}
	now := s.clock.Now()
	m.DeletedAt = &now
	event := store.UpdateEvent(m.ConversationID, model.MessagePatch{ID: messageID, DeletedAt: &now})
	s.mu.Unlock()

	s.publish(event)
	return nil
}

// Subscribe 订阅会话变更
func (s *Store) Subscribe(_ context.Context, conversationID string, handlers store.Handlers) (store.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(OpSubscribe); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	if s.subscribers[conversationID] == nil {
		s.subscribers[conversationID] = make(map[string]store.Handlers)
	}
	s.subscribers[conversationID][id] = handlers
	return &subscription{store: s, conversationID: conversationID, id: id}, nil
}

// FailSubscriptions 向会话的所有订阅者上报错误
func (s *Store) FailSubscriptions(conversationID string, err error) {
	for _, h := range s.handlersFor(conversationID) {
		h.Fail(err)
	}
}

func (s *Store) handlersFor(conversationID string) []store.Handlers {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.subscribers[conversationID]
	handlers := make([]store.Handlers, 0, len(subs))
	for _, h := range subs {
		handlers = append(handlers, h)
	}
	return handlers
}

func (s *Store) publish(event store.ChangeEvent) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	for _, h := range s.handlersFor(event.ConversationID) {
		h.Dispatch(event)
	}
}

type subscription struct {
	store          *Store
	conversationID string
	id             string
	once           sync.Once
}

func (sub *subscription) Close() error {
	sub.once.Do(func() {
		sub.store.mu.Lock()
		defer sub.store.mu.Unlock()
		delete(sub.store.subscribers[sub.conversationID], sub.id)
		if len(sub.store.subscribers[sub.conversationID]) == 0 {
			delete(sub.store.subscribers, sub.conversationID)
		}
	})
	return nil
}
