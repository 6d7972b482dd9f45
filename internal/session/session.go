package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	apperrors "sudooom.im.chat/internal/errors"
	"sudooom.im.chat/internal/jwt"
	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/internal/store"
)

// Session 显式传递的登录上下文，替代全局缓存的当前资料
// SignOut 之后 Current 返回 AuthRequired
type Session struct {
	mu          sync.RWMutex
	participant model.Participant
	active      bool
}

// New 使用已解析的参与者创建会话
func New(participant model.Participant) *Session {
	return &Session{participant: participant, active: !participant.IsZero()}
}

// Current 返回本地参与者
func (s *Session) Current() (model.Participant, error) {
	if s == nil {
		return model.Participant{}, apperrors.ErrAuthRequired
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.active {
		return model.Participant{}, apperrors.ErrAuthRequired
	}
	return s.participant, nil
}

// Active 会话是否有效
func (s *Session) Active() bool {
	_, err := s.Current()
	return err == nil
}

// invalidate 清除会话
func (s *Session) invalidate() model.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.participant
	s.participant = model.Participant{}
	s.active = false
	return p
}

// ProfileCache 资料缓存（可选）
type ProfileCache interface {
	Get(ctx context.Context, participantID string) (model.Participant, bool)
	Set(ctx context.Context, participant model.Participant) error
	Delete(ctx context.Context, participantID string) error
}

// ProfileLookup 按 ID 查询资料
type ProfileLookup interface {
	FindParticipantByID(ctx context.Context, id string) (model.Participant, error)
}

// Manager 登录/登出
type Manager struct {
	tokens   *jwt.Signer
	profiles ProfileLookup
	cache    ProfileCache
	logger   *slog.Logger
}

// NewManager 创建会话管理器，cache 可以为 nil
func NewManager(tokens *jwt.Signer, profiles ProfileLookup, cache ProfileCache) *Manager {
	return &Manager{
		tokens:   tokens,
		profiles: profiles,
		cache:    cache,
		logger:   slog.Default(),
	}
}

// SignIn 校验 Access Token 并解析本地参与者
func (m *Manager) SignIn(ctx context.Context, accessToken string) (*Session, error) {
	if accessToken == "" {
		return nil, apperrors.ErrAuthRequired
	}

	claims, err := m.tokens.Verify(accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired.Wrap(err)
		}
		return nil, apperrors.ErrTokenInvalid.Wrap(err)
	}

	participantID := claims.ParticipantID()
	if m.cache != nil {
		if p, ok := m.cache.Get(ctx, participantID); ok {
			return New(p), nil
		}
	}

	p, err := m.profiles.FindParticipantByID(ctx, participantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.ErrAuthRequired.Wrap(err)
		}
		return nil, apperrors.ErrServerError.Wrap(err)
	}

	if m.cache != nil {
		if err := m.cache.Set(ctx, p); err != nil {
			m.logger.Warn("Failed to cache profile", "participantId", p.ID, "error", err)
		}
	}

	m.logger.Info("Signed in", "participantId", p.ID, "username", p.Username)
	return New(p), nil
}

// SignOut 使会话失效并清除缓存的资料
func (m *Manager) SignOut(ctx context.Context, s *Session) {
	p := s.invalidate()
	if p.IsZero() {
		return
	}
	if m.cache != nil {
		if err := m.cache.Delete(ctx, p.ID); err != nil {
			m.logger.Warn("Failed to drop cached profile", "participantId", p.ID, "error", err)
		}
	}
	m.logger.Info("Signed out", "participantId", p.ID)
}
