package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"sudooom.im.chat/internal/model"
)

var (
	ErrContactExists = errors.New("contact already added")
	ErrContactSelf   = errors.New("cannot add yourself as contact")
)

// ContactRepository 联系人数据访问
type ContactRepository struct {
	db *pgxpool.Pool
}

// NewContactRepository 创建联系人仓库
func NewContactRepository(db *pgxpool.Pool) *ContactRepository {
	return &ContactRepository{db: db}
}

// Create 添加联系人；已存在时返回 ErrContactExists
func (r *ContactRepository) Create(ctx context.Context, userID, contactID string) error {
	if userID == contactID {
		return ErrContactSelf
	}
	query := `
		INSERT INTO contacts (user_id, contact_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, contact_id) DO NOTHING
	`
	result, err := r.db.Exec(ctx, query, userID, contactID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrContactExists
	}
	return nil
}

// Exists 检查是否已添加
func (r *ContactRepository) Exists(ctx context.Context, userID, contactID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM contacts WHERE user_id = $1 AND contact_id = $2)`
	err := r.db.QueryRow(ctx, query, userID, contactID).Scan(&exists)
	return exists, err
}

// ListByUser 联系人资料，按添加时间倒序
func (r *ContactRepository) ListByUser(ctx context.Context, userID string) ([]model.Participant, error) {
	query := `
		SELECT p.id, p.name, p.username, p.avatar_url
		FROM contacts c
		JOIN participants p ON c.contact_id = p.id
		WHERE c.user_id = $1
		ORDER BY c.created_at DESC, p.username
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, p)
	}
	return contacts, rows.Err()
}
