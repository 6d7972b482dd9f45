package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sudooom.im.chat/internal/model"
)

var ErrParticipantNotFound = errors.New("participant not found")

// ParticipantRepository 参与者资料访问
type ParticipantRepository struct {
	db *pgxpool.Pool
}

// NewParticipantRepository 创建参与者仓库
func NewParticipantRepository(db *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// Upsert 写入或更新资料
func (r *ParticipantRepository) Upsert(ctx context.Context, p model.Participant) error {
	query := `
		INSERT INTO participants (id, name, username, avatar_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, username = EXCLUDED.username, avatar_url = EXCLUDED.avatar_url
	`
	_, err := r.db.Exec(ctx, query, p.ID, p.Name, p.Username, p.AvatarURL)
	return err
}

// GetByID 通过 ID 获取资料
func (r *ParticipantRepository) GetByID(ctx context.Context, id string) (model.Participant, error) {
	query := `SELECT id, name, username, avatar_url FROM participants WHERE id = $1`
	return scanParticipant(r.db.QueryRow(ctx, query, id))
}

// GetByUsername 通过用户名获取资料（不区分大小写）
func (r *ParticipantRepository) GetByUsername(ctx context.Context, username string) (model.Participant, error) {
	query := `SELECT id, name, username, avatar_url FROM participants WHERE LOWER(username) = LOWER($1)`
	return scanParticipant(r.db.QueryRow(ctx, query, username))
}

// GetByIDs 批量获取资料
func (r *ParticipantRepository) GetByIDs(ctx context.Context, ids []string) (map[string]model.Participant, error) {
	query := `SELECT id, name, username, avatar_url FROM participants WHERE id = ANY($1)`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]model.Participant, len(ids))
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	return result, rows.Err()
}

func scanParticipant(row pgx.Row) (model.Participant, error) {
	var p model.Participant
	err := row.Scan(&p.ID, &p.Name, &p.Username, &p.AvatarURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Participant{}, ErrParticipantNotFound
		}
		return model.Participant{}, err
	}
	return p, nil
}
