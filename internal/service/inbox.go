package service

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"sudooom.im.chat/internal/model"
)

// decrUnread 减少未读数，不低于 0
var decrUnread = redis.NewScript(`
local v = redis.call('HINCRBY', KEYS[1], 'unread_count', -tonumber(ARGV[1]))
if v < 0 then
	redis.call('HSET', KEYS[1], 'unread_count', 0)
	v = 0
end
return v
`)

// replacePreview 最后一条消息仍是被删除的消息时替换预览
var replacePreview = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'last_msg_id') == ARGV[1] then
	redis.call('HSET', KEYS[1], 'last_msg_id', ARGV[2], 'last_preview', ARGV[3])
	return 1
end
return 0
`)

// InboxService 会话列表服务（基于 Redis）
// 已删除的消息对列表不可见：预览取最后一条未删除的消息，未读数只统计未删除的消息
type InboxService struct {
	redisClient *redis.Client
	clock       clockwork.Clock
	logger      *slog.Logger
}

// NewInboxService 创建会话列表服务
func NewInboxService(redisClient *redis.Client, c clockwork.Clock) *InboxService {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	return &InboxService{
		redisClient: redisClient,
		clock:       c,
		logger:      slog.Default(),
	}
}

// OnMessageSent 发送消息后更新双方的会话摘要
func (s *InboxService) OnMessageSent(ctx context.Context, m model.Message, receiverID string) error {
	now := s.clock.Now().UnixMilli()

	senderKey := BuildConversationKey(m.SenderID, m.ConversationID)
	receiverKey := BuildConversationKey(receiverID, m.ConversationID)

	pipe := s.redisClient.Pipeline()
	pipe.HSet(ctx, senderKey,
		fieldPeerID, receiverID,
		fieldLastMsgID, m.ID,
		fieldLastPreview, m.Content,
		fieldUpdateAt, now)
	pipe.ZAdd(ctx, BuildInboxKey(m.SenderID), redis.Z{Score: float64(now), Member: m.ConversationID})

	pipe.HSet(ctx, receiverKey,
		fieldPeerID, m.SenderID,
		fieldLastMsgID, m.ID,
		fieldLastPreview, m.Content,
		fieldUpdateAt, now)
	pipe.HIncrBy(ctx, receiverKey, fieldUnreadCount, 1)
	pipe.ZAdd(ctx, BuildInboxKey(receiverID), redis.Z{Score: float64(now), Member: m.ConversationID})
	_, err := pipe.Exec(ctx)

	return err
}

// OnMessagesRead 读者确认了 n 条未删除的消息
func (s *InboxService) OnMessagesRead(ctx context.Context, readerID, conversationID string, n int) error {
	if n <= 0 {
		return nil
	}
	key := BuildConversationKey(readerID, conversationID)
	return decrUnread.Run(ctx, s.redisClient, []string{key}, n).Err()
}

// OnMessageDeleted 消息被删除：未读时减少接收方未读数，预览回退到 fallback（可为 nil）
func (s *InboxService) OnMessageDeleted(ctx context.Context, m model.Message, receiverID string, fallback *model.Message) error {
	if !m.IsRead {
		if err := s.OnMessagesRead(ctx, receiverID, m.ConversationID, 1); err != nil {
			return err
		}
	}

	newID, newPreview := "", ""
	if fallback != nil {
		newID, newPreview = fallback.ID, fallback.Content
	}
	for _, userID := range []string{m.SenderID, receiverID} {
		key := BuildConversationKey(userID, m.ConversationID)
		if err := replacePreview.Run(ctx, s.redisClient, []string{key}, m.ID, newID, newPreview).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Put 直接写入一条会话摘要（重建时使用）
func (s *InboxService) Put(ctx context.Context, userID string, summary model.ChatSummary) error {
	key := BuildConversationKey(userID, summary.ConversationID)

	pipe := s.redisClient.Pipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		fieldPeerID, summary.Peer.ID,
		fieldLastMsgID, summary.LastMessageID,
		fieldLastPreview, summary.LastPreview,
		fieldUnreadCount, summary.UnreadCount,
		fieldUpdateAt, summary.UpdatedAt)
	pipe.ZAdd(ctx, BuildInboxKey(userID), redis.Z{Score: float64(summary.UpdatedAt), Member: summary.ConversationID})
	_, err := pipe.Exec(ctx)

	return err
}

// ListSummaries 按最后活动时间倒序分页获取会话摘要，Peer 只填充 ID
func (s *InboxService) ListSummaries(ctx context.Context, userID string, offset, limit int64) ([]model.ChatSummary, error) {
	members, err := s.redisClient.ZRevRange(ctx, BuildInboxKey(userID), offset, offset+limit-1).Result()
	if err != nil {
		return nil, err
	}

	if len(members) == 0 {
		return []model.ChatSummary{}, nil
	}

	// Pipeline 批量获取会话详情
	pipe := s.redisClient.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(members))
	for i, conversationID := range members {
		cmds[i] = pipe.HGetAll(ctx, BuildConversationKey(userID, conversationID))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	summaries := make([]model.ChatSummary, 0, len(members))
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		summaries = append(summaries, model.ChatSummary{
			ConversationID: members[i],
			Peer:           model.Participant{ID: data[fieldPeerID]},
			LastMessageID:  data[fieldLastMsgID],
			LastPreview:    data[fieldLastPreview],
			UnreadCount:    int(parseInt64(data[fieldUnreadCount])),
			UpdatedAt:      parseInt64(data[fieldUpdateAt]),
		})
	}

	return summaries, nil
}

// TotalUnread 用户总未读数
func (s *InboxService) TotalUnread(ctx context.Context, userID string) (int64, error) {
	members, err := s.redisClient.ZRange(ctx, BuildInboxKey(userID), 0, -1).Result()
	if err != nil {
		return 0, err
	}

	if len(members) == 0 {
		return 0, nil
	}

	pipe := s.redisClient.Pipeline()
	cmds := make([]*redis.StringCmd, len(members))
	for i, conversationID := range members {
		cmds[i] = pipe.HGet(ctx, BuildConversationKey(userID, conversationID), fieldUnreadCount)
	}

	// 缺失字段返回 redis.Nil，逐条处理
	_, _ = pipe.Exec(ctx)

	var total int64
	for _, cmd := range cmds {
		count, err := cmd.Int64()
		if err == nil {
			total += count
		}
	}

	return total, nil
}

func parseInt64(str string) int64 {
	v, _ := strconv.ParseInt(str, 10, 64)
	return v
}
