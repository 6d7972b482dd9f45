// Package contact 联系人簿：按用户名添加联系人并列出
package contact

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	apperrors "sudooom.im.chat/internal/errors"
	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/internal/session"
	"sudooom.im.chat/internal/store"
)

// ErrSelf 不能添加自己
var ErrSelf = errors.New("cannot add yourself as contact")

// Store 联系人簿依赖的存储
type Store interface {
	store.ContactStore
	FindParticipantByHandle(ctx context.Context, handle string) (model.Participant, error)
}

// Book 当前登录用户的联系人簿
type Book struct {
	store   Store
	session *session.Session
	logger  *slog.Logger
}

// New 创建联系人簿
func New(st Store, sess *session.Session, logger *slog.Logger) *Book {
	if logger == nil {
		logger = slog.Default()
	}
	return &Book{store: st, session: sess, logger: logger}
}

// Add 按用户名添加联系人
func (b *Book) Add(ctx context.Context, handle string) (model.Participant, error) {
	me, err := b.session.Current()
	if err != nil {
		return model.Participant{}, err
	}
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return model.Participant{}, apperrors.ErrInvalidParams
	}

	p, err := b.store.FindParticipantByHandle(ctx, handle)
	if errors.Is(err, store.ErrNotFound) {
		return model.Participant{}, apperrors.ErrRecipientNotFound
	}
	if err != nil {
		return model.Participant{}, apperrors.ErrServerError.Wrap(err)
	}
	if p.ID == me.ID {
		return model.Participant{}, apperrors.ErrInvalidParams.Wrap(ErrSelf)
	}

	switch err := b.store.AddContact(ctx, me.ID, p.ID); {
	case errors.Is(err, store.ErrConflict):
		return model.Participant{}, apperrors.ErrContactExists
	case errors.Is(err, store.ErrNotFound):
		return model.Participant{}, apperrors.ErrRecipientNotFound
	case err != nil:
		b.logger.Error("Failed to add contact", "handle", handle, "error", err)
		return model.Participant{}, apperrors.ErrServerError.Wrap(err)
	}

	b.logger.Info("Contact added", "userId", me.ID, "contactId", p.ID)
	return p, nil
}

// List 联系人列表
func (b *Book) List(ctx context.Context) ([]model.Participant, error) {
	me, err := b.session.Current()
	if err != nil {
		return nil, err
	}
	contacts, err := b.store.ListContacts(ctx, me.ID)
	if err != nil {
		b.logger.Error("Failed to list contacts", "userId", me.ID, "error", err)
		return nil, apperrors.ErrServerError.Wrap(err)
	}
	return contacts, nil
}
