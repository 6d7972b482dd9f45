package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sudooom.im.chat/internal/model"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, chat_id, sender_id, content, created_at, is_read, deleted_at`

// MessageRepository 消息仓库
type MessageRepository struct {
	db *pgxpool.Pool
}

// NewMessageRepository 创建消息仓库
func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create 写入消息；client_msg_id 重复时返回已有消息，created 为 false
func (r *MessageRepository) Create(ctx context.Context, msg model.Message, clientMsgID string) (saved model.Message, created bool, err error) {
	query := `
		INSERT INTO messages (id, client_msg_id, chat_id, sender_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (client_msg_id) DO NOTHING
		RETURNING ` + messageColumns

	saved, err = scanMessage(r.db.QueryRow(ctx, query,
		msg.ID,
		clientMsgID,
		msg.ConversationID,
		msg.SenderID,
		msg.Content,
	))
	if errors.Is(err, ErrMessageNotFound) {
		saved, err = r.GetByClientMsgID(ctx, clientMsgID)
		return saved, false, err
	}
	return saved, err == nil, err
}

// GetByID 根据 ID 查找消息
func (r *MessageRepository) GetByID(ctx context.Context, id string) (model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	return scanMessage(r.db.QueryRow(ctx, query, id))
}

// GetByClientMsgID 根据客户端消息 ID 查找
func (r *MessageRepository) GetByClientMsgID(ctx context.Context, clientMsgID string) (model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE client_msg_id = $1`
	return scanMessage(r.db.QueryRow(ctx, query, clientMsgID))
}

// ListByConversation 会话全部消息，created_at、id 升序，包含已删除的消息
func (r *MessageRepository) ListByConversation(ctx context.Context, chatID string) ([]model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE chat_id = $1 ORDER BY created_at ASC, id ASC`
	return r.queryMessages(ctx, query, chatID)
}

// LastVisibleByConversation 会话最新一条未删除的消息
func (r *MessageRepository) LastVisibleByConversation(ctx context.Context, chatID string) (model.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE chat_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	return scanMessage(r.db.QueryRow(ctx, query, chatID))
}

// CountUnread 接收方在会话中的未读数，不含已删除的消息
func (r *MessageRepository) CountUnread(ctx context.Context, chatID, receiverID string) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM messages
		WHERE chat_id = $1 AND sender_id <> $2 AND is_read = false AND deleted_at IS NULL
	`
	var n int64
	err := r.db.QueryRow(ctx, query, chatID, receiverID).Scan(&n)
	return n, err
}

// MarkRead 批量置为已读，只返回本次真正发生变化的行
func (r *MessageRepository) MarkRead(ctx context.Context, ids []string) ([]model.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `UPDATE messages SET is_read = true WHERE id = ANY($1) AND is_read = false RETURNING ` + messageColumns
	return r.queryMessages(ctx, query, ids)
}

// SoftDelete 设置 deleted_at；已删除时返回原消息，changed 为 false
func (r *MessageRepository) SoftDelete(ctx context.Context, id string) (msg model.Message, changed bool, err error) {
	query := `UPDATE messages SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL RETURNING ` + messageColumns
	msg, err = scanMessage(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, ErrMessageNotFound) {
		msg, err = r.GetByID(ctx, id)
		return msg, false, err
	}
	return msg, err == nil, err
}

func (r *MessageRepository) queryMessages(ctx context.Context, query string, args ...any) ([]model.Message, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func scanMessage(row pgx.Row) (model.Message, error) {
	var m model.Message
	err := row.Scan(
		&m.ID,
		&m.ConversationID,
		&m.SenderID,
		&m.Content,
		&m.CreatedAt,
		&m.IsRead,
		&m.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Message{}, ErrMessageNotFound
		}
		return model.Message{}, err
	}
	return m, nil
}
