package chat

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	apperrors "sudooom.im.chat/internal/errors"
	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/internal/store"
)

// snapshot 一次完整加载的结果，只有全部成功才会发布到视图
type snapshot struct {
	local        model.Participant
	recipient    model.Participant
	conversation model.Conversation
	messages     []model.Message
	sub          store.Subscription
	subErr       error
}

// load 解析会话并加载历史
// 本地资料和对方资料并发查询，会话解析在其后；订阅先于历史查询建立，加载期间到达的事件进入缓冲
func (s *Synchronizer) load(ctx context.Context, localID, handle string, handlers store.Handlers) (*snapshot, error) {
	snap := &snapshot{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.store.FindParticipantByID(gctx, localID)
		if err != nil {
			return lookupError(err, apperrors.ErrAuthRequired)
		}
		snap.local = p
		return nil
	})
	g.Go(func() error {
		p, err := s.store.FindParticipantByHandle(gctx, handle)
		if err != nil {
			return lookupError(err, apperrors.ErrRecipientNotFound)
		}
		snap.recipient = p
		return nil
	})
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	conv, err := s.resolveConversation(ctx, snap.local.ID, snap.recipient.ID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	snap.conversation = conv

	sub, err := s.store.Subscribe(ctx, conv.ID, handlers)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// 历史消息仍然可用，只是没有实时更新
		snap.subErr = apperrors.ErrSubscriptionError.Wrap(err)
		s.logger.Warn("Failed to subscribe to chat", "conversationId", conv.ID, "error", err)
	}
	snap.sub = sub

	messages, err := s.store.ListMessages(ctx, conv.ID)
	if err != nil {
		snap.close(s)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.ErrMessageLoadFailed.Wrap(err)
	}
	if ctx.Err() != nil {
		snap.close(s)
		return nil, ctx.Err()
	}
	snap.messages = messages

	return snap, nil
}

// lookupError 只有确认不存在才映射为 missing，其余查询失败按加载失败处理
func lookupError(err error, missing *apperrors.AppError) error {
	if errors.Is(err, store.ErrNotFound) {
		return missing.Wrap(err)
	}
	return apperrors.ErrMessageLoadFailed.Wrap(err)
}

// resolveConversation 查找或创建会话
// 存储层对无序参与者对有唯一约束；创建失败时再查一次，以容忍并发创建
func (s *Synchronizer) resolveConversation(ctx context.Context, localID, recipientID string) (model.Conversation, error) {
	conv, err := s.store.FindConversation(ctx, localID, recipientID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.Conversation{}, apperrors.ErrConversationCreateFailed.Wrap(err)
	}

	conv, err = s.store.CreateConversation(ctx, localID, recipientID)
	if err != nil {
		existing, findErr := s.store.FindConversation(ctx, localID, recipientID)
		if findErr != nil {
			return model.Conversation{}, apperrors.ErrConversationCreateFailed.Wrap(err)
		}
		s.logger.Info("Chat created concurrently, using existing row", "conversationId", existing.ID)
		return existing, nil
	}

	s.logger.Info("Chat created", "conversationId", conv.ID, "localId", localID, "recipientId", recipientID)
	return conv, nil
}

func (snap *snapshot) close(s *Synchronizer) {
	if snap.sub == nil {
		return
	}
	if err := snap.sub.Close(); err != nil {
		s.logger.Warn("Failed to close subscription", "conversationId", snap.conversation.ID, "error", err)
	}
	snap.sub = nil
}
