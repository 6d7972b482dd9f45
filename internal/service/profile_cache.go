package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"sudooom.im.chat/internal/model"
)

// DefaultProfileTTL 资料缓存默认过期时间
const DefaultProfileTTL = 30 * time.Minute

// ProfileCache 基于 Redis 的资料缓存
type ProfileCache struct {
	redisClient *redis.Client
	ttl         time.Duration
	logger      *slog.Logger
}

// NewProfileCache 创建资料缓存
func NewProfileCache(redisClient *redis.Client, ttl time.Duration) *ProfileCache {
	if ttl <= 0 {
		ttl = DefaultProfileTTL
	}
	return &ProfileCache{
		redisClient: redisClient,
		ttl:         ttl,
		logger:      slog.Default(),
	}
}

// Get 读取缓存，未命中或损坏时返回 false
func (c *ProfileCache) Get(ctx context.Context, participantID string) (model.Participant, bool) {
	data, err := c.redisClient.Get(ctx, BuildProfileKey(participantID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Failed to read cached profile", "participantId", participantID, "error", err)
		}
		return model.Participant{}, false
	}

	var p model.Participant
	if err := json.Unmarshal(data, &p); err != nil || p.IsZero() {
		c.logger.Warn("Dropping corrupt cached profile", "participantId", participantID)
		_ = c.redisClient.Del(ctx, BuildProfileKey(participantID)).Err()
		return model.Participant{}, false
	}
	return p, true
}

// Set 写入缓存
func (c *ProfileCache) Set(ctx context.Context, p model.Participant) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.redisClient.Set(ctx, BuildProfileKey(p.ID), data, c.ttl).Err()
}

// Delete 删除缓存
func (c *ProfileCache) Delete(ctx context.Context, participantID string) error {
	return c.redisClient.Del(ctx, BuildProfileKey(participantID)).Err()
}
