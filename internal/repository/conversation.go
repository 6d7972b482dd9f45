package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sudooom.im.chat/internal/model"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository 一对一会话访问
type ConversationRepository struct {
	db *pgxpool.Pool
}

// NewConversationRepository 创建会话仓库
func NewConversationRepository(db *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// FindByPair 按无序参与者对查找
func (r *ConversationRepository) FindByPair(ctx context.Context, a, b string) (model.Conversation, error) {
	query := `
		SELECT id, user1_id, user2_id, created_at
		FROM chats
		WHERE LEAST(user1_id, user2_id) = $1 AND GREATEST(user1_id, user2_id) = $2
	`
	low, high := model.PairKey(a, b)
	return scanConversation(r.db.QueryRow(ctx, query, low, high))
}

// GetByID 通过 ID 获取会话
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (model.Conversation, error) {
	query := `SELECT id, user1_id, user2_id, created_at FROM chats WHERE id = $1`
	return scanConversation(r.db.QueryRow(ctx, query, id))
}

// Create 创建会话；参与者对已有会话时返回已有的行
func (r *ConversationRepository) Create(ctx context.Context, id, a, b string) (model.Conversation, error) {
	query := `
		INSERT INTO chats (id, user1_id, user2_id, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT DO NOTHING
		RETURNING id, user1_id, user2_id, created_at
	`
	conv, err := scanConversation(r.db.QueryRow(ctx, query, id, a, b))
	if errors.Is(err, ErrConversationNotFound) {
		// 唯一约束冲突，另一方已经创建
		return r.FindByPair(ctx, a, b)
	}
	return conv, err
}

// ListByParticipant 参与者的所有会话
func (r *ConversationRepository) ListByParticipant(ctx context.Context, participantID string) ([]model.Conversation, error) {
	query := `
		SELECT id, user1_id, user2_id, created_at
		FROM chats
		WHERE user1_id = $1 OR user2_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func scanConversation(row pgx.Row) (model.Conversation, error) {
	var c model.Conversation
	err := row.Scan(&c.ID, &c.User1ID, &c.User2ID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Conversation{}, ErrConversationNotFound
		}
		return model.Conversation{}, err
	}
	return c, nil
}
