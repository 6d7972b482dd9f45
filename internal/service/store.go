package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"sudooom.im.chat/internal/model"
	chatnats "sudooom.im.chat/internal/nats"
	"sudooom.im.chat/internal/repository"
	"sudooom.im.chat/internal/snowflake"
	"sudooom.im.chat/internal/store"
)

// Store 自托管的 ConversationStore：Postgres 持久化，NATS 推送变更，Redis 维护会话列表
// 每次写入成功后发布对应的变更事件
type Store struct {
	participants  *repository.ParticipantRepository
	conversations *repository.ConversationRepository
	messages      *repository.MessageRepository
	contacts      *repository.ContactRepository
	publisher     *chatnats.Publisher
	feed          *chatnats.Feed
	inbox         *InboxService
	sfNode        *snowflake.Node
	logger        *slog.Logger
}

// NewStore 创建存储，inbox 可以为 nil
func NewStore(
	participants *repository.ParticipantRepository,
	conversations *repository.ConversationRepository,
	messages *repository.MessageRepository,
	contacts *repository.ContactRepository,
	publisher *chatnats.Publisher,
	feed *chatnats.Feed,
	inbox *InboxService,
	sfNode *snowflake.Node,
) *Store {
	return &Store{
		participants:  participants,
		conversations: conversations,
		messages:      messages,
		contacts:      contacts,
		publisher:     publisher,
		feed:          feed,
		inbox:         inbox,
		sfNode:        sfNode,
		logger:        slog.Default(),
	}
}

var (
	_ store.ConversationStore = (*Store)(nil)
	_ store.ContactStore      = (*Store)(nil)
)

// notFound 仓库的未找到错误统一为 store.ErrNotFound
func notFound(err error) error {
	switch {
	case errors.Is(err, repository.ErrParticipantNotFound),
		errors.Is(err, repository.ErrConversationNotFound),
		errors.Is(err, repository.ErrMessageNotFound):
		return store.ErrNotFound
	}
	return err
}

// AddContact 添加联系人
func (s *Store) AddContact(ctx context.Context, ownerID, contactID string) error {
	err := s.contacts.Create(ctx, ownerID, contactID)
	if errors.Is(err, repository.ErrContactExists) {
		return store.ErrConflict
	}
	if err != nil {
		s.logger.Error("Failed to add contact", "userId", ownerID, "contactId", contactID, "error", err)
	}
	return err
}

// ListContacts 联系人列表
func (s *Store) ListContacts(ctx context.Context, ownerID string) ([]model.Participant, error) {
	return s.contacts.ListByUser(ctx, ownerID)
}

// FindParticipantByID 按 ID 查找资料
func (s *Store) FindParticipantByID(ctx context.Context, id string) (model.Participant, error) {
	p, err := s.participants.GetByID(ctx, id)
	return p, notFound(err)
}

// FindParticipantByHandle 按用户名查找资料
func (s *Store) FindParticipantByHandle(ctx context.Context, handle string) (model.Participant, error) {
	p, err := s.participants.GetByUsername(ctx, handle)
	return p, notFound(err)
}

// FindConversation 按无序参与者对查找会话
func (s *Store) FindConversation(ctx context.Context, a, b string) (model.Conversation, error) {
	c, err := s.conversations.FindByPair(ctx, a, b)
	return c, notFound(err)
}

// CreateConversation 创建会话，参与者对已存在时返回已有会话
func (s *Store) CreateConversation(ctx context.Context, a, b string) (model.Conversation, error) {
	c, err := s.conversations.Create(ctx, s.sfNode.NextID(), a, b)
	if err != nil {
		s.logger.Error("Failed to create chat", "user1", a, "user2", b, "error", err)
		return model.Conversation{}, err
	}
	return c, nil
}

// ListMessages 会话全部消息
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	return s.messages.ListByConversation(ctx, conversationID)
}

// SendMessage 写入消息并发布插入事件，clientMsgID 为空时生成一个
func (s *Store) SendMessage(ctx context.Context, conversationID, senderID, clientMsgID, content string) (model.Message, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return model.Message{}, notFound(err)
	}
	if !conv.Has(senderID) {
		return model.Message{}, store.ErrNotFound
	}

	msg := model.Message{
		ID:             s.sfNode.NextID(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
	}
	if clientMsgID == "" {
		clientMsgID = uuid.NewString()
	}
	saved, created, err := s.messages.Create(ctx, msg, clientMsgID)
	if err != nil {
		s.logger.Error("Failed to save message", "conversationId", conversationID, "error", err)
		return model.Message{}, err
	}
	if !created {
		return saved, nil
	}

	// 消息已持久化，后续失败只记录日志
	if err := s.publisher.PublishInsert(saved); err != nil {
		s.logger.Warn("Message saved but not published", "messageId", saved.ID, "error", err)
	}
	if s.inbox != nil {
		if err := s.inbox.OnMessageSent(ctx, saved, conv.PeerOf(senderID)); err != nil {
			s.logger.Warn("Failed to update inbox", "conversationId", conversationID, "error", err)
		}
	}

	s.logger.Debug("Message stored", "conversationId", conversationID, "messageId", saved.ID)
	return saved, nil
}

// MarkRead 批量标记已读，只为真正变化的消息发布更新事件
func (s *Store) MarkRead(ctx context.Context, messageIDs []string) error {
	changed, err := s.messages.MarkRead(ctx, messageIDs)
	if err != nil {
		s.logger.Error("Failed to mark messages read", "count", len(messageIDs), "error", err)
		return err
	}

	read := true
	for _, m := range changed {
		if err := s.publisher.PublishUpdate(m.ConversationID, model.MessagePatch{ID: m.ID, IsRead: &read}); err != nil {
			s.logger.Warn("Read state saved but not published", "messageId", m.ID, "error", err)
		}
	}

	if s.inbox != nil {
		s.updateInboxRead(ctx, changed)
	}
	return nil
}

// updateInboxRead 按会话汇总已读数量；已删除的消息不计入未读
func (s *Store) updateInboxRead(ctx context.Context, changed []model.Message) {
	type readKey struct{ conversationID, readerID string }
	counts := make(map[readKey]int)
	convs := make(map[string]model.Conversation)

	for _, m := range changed {
		if m.IsDeleted() {
			continue
		}
		conv, ok := convs[m.ConversationID]
		if !ok {
			var err error
			conv, err = s.conversations.GetByID(ctx, m.ConversationID)
			if err != nil {
				s.logger.Warn("Failed to load chat for inbox", "conversationId", m.ConversationID, "error", err)
				continue
			}
			convs[m.ConversationID] = conv
		}
		counts[readKey{m.ConversationID, conv.PeerOf(m.SenderID)}]++
	}

	for k, n := range counts {
		if err := s.inbox.OnMessagesRead(ctx, k.readerID, k.conversationID, n); err != nil {
			s.logger.Warn("Failed to update inbox", "conversationId", k.conversationID, "error", err)
		}
	}
}

// SoftDelete 软删除并发布更新事件；重复删除不再发布
func (s *Store) SoftDelete(ctx context.Context, messageID string) error {
	msg, changed, err := s.messages.SoftDelete(ctx, messageID)
	if err != nil {
		return notFound(err)
	}
	if !changed {
		return nil
	}

	if err := s.publisher.PublishUpdate(msg.ConversationID, model.MessagePatch{ID: msg.ID, DeletedAt: msg.DeletedAt}); err != nil {
		s.logger.Warn("Delete saved but not published", "messageId", msg.ID, "error", err)
	}

	if s.inbox != nil {
		s.updateInboxDeleted(ctx, msg)
	}
	return nil
}

func (s *Store) updateInboxDeleted(ctx context.Context, msg model.Message) {
	conv, err := s.conversations.GetByID(ctx, msg.ConversationID)
	if err != nil {
		s.logger.Warn("Failed to load chat for inbox", "conversationId", msg.ConversationID, "error", err)
		return
	}

	var fallback *model.Message
	last, err := s.messages.LastVisibleByConversation(ctx, msg.ConversationID)
	switch {
	case err == nil:
		fallback = &last
	case !errors.Is(err, repository.ErrMessageNotFound):
		s.logger.Warn("Failed to load last message", "conversationId", msg.ConversationID, "error", err)
		return
	}

	if err := s.inbox.OnMessageDeleted(ctx, msg, conv.PeerOf(msg.SenderID), fallback); err != nil {
		s.logger.Warn("Failed to update inbox", "conversationId", msg.ConversationID, "error", err)
	}
}

// Subscribe 订阅会话变更流
func (s *Store) Subscribe(ctx context.Context, conversationID string, handlers store.Handlers) (store.Subscription, error) {
	return s.feed.Subscribe(ctx, conversationID, handlers)
}

// Inbox 用户会话列表，补全对方资料
func (s *Store) Inbox(ctx context.Context, userID string, offset, limit int64) ([]model.ChatSummary, error) {
	if s.inbox == nil {
		return nil, errors.New("inbox not configured")
	}
	summaries, err := s.inbox.ListSummaries(ctx, userID, offset, limit)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return summaries, nil
	}

	ids := make([]string, 0, len(summaries))
	for _, sum := range summaries {
		ids = append(ids, sum.Peer.ID)
	}
	peers, err := s.participants.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		if p, ok := peers[summaries[i].Peer.ID]; ok {
			summaries[i].Peer = p
		}
	}
	return summaries, nil
}

// RebuildInbox 从 Postgres 重新计算用户的会话列表
func (s *Store) RebuildInbox(ctx context.Context, userID string) error {
	if s.inbox == nil {
		return errors.New("inbox not configured")
	}
	convs, err := s.conversations.ListByParticipant(ctx, userID)
	if err != nil {
		return err
	}

	for _, conv := range convs {
		summary := model.ChatSummary{
			ConversationID: conv.ID,
			Peer:           model.Participant{ID: conv.PeerOf(userID)},
			UpdatedAt:      conv.CreatedAt.UnixMilli(),
		}

		last, err := s.messages.LastVisibleByConversation(ctx, conv.ID)
		switch {
		case err == nil:
			summary.LastMessageID = last.ID
			summary.LastPreview = last.Content
			summary.UpdatedAt = last.CreatedAt.UnixMilli()
		case !errors.Is(err, repository.ErrMessageNotFound):
			return err
		}

		unread, err := s.messages.CountUnread(ctx, conv.ID, userID)
		if err != nil {
			return err
		}
		summary.UnreadCount = int(unread)

		if err := s.inbox.Put(ctx, userID, summary); err != nil {
			return err
		}
	}

	s.logger.Info("Inbox rebuilt", "userId", userID, "chats", len(convs))
	return nil
}
