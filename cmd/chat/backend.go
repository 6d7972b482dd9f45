package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"sudooom.im.chat/internal/config"
	"sudooom.im.chat/internal/contact"
	"sudooom.im.chat/internal/health"
	"sudooom.im.chat/internal/jwt"
	"sudooom.im.chat/internal/model"
	chatnats "sudooom.im.chat/internal/nats"
	"sudooom.im.chat/internal/repository"
	"sudooom.im.chat/internal/service"
	"sudooom.im.chat/internal/session"
	"sudooom.im.chat/internal/snowflake"
	"sudooom.im.chat/internal/store"
	"sudooom.im.chat/internal/store/memstore"
)

type inboxFunc func(ctx context.Context, userID string, offset, limit int64) ([]model.ChatSummary, error)

// backend 同步器依赖的存储与登录会话
type backend struct {
	store    store.ConversationStore
	session  *session.Session
	contacts *contact.Book
	inbox    inboxFunc
	checks   []health.Option
	closers  []func()
}

func (b *backend) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func newBackend(ctx context.Context, cfg *config.Config, tokens *jwt.Signer, memory bool, token, as, with string) (*backend, error) {
	if memory {
		return newMemoryBackend(as, with), nil
	}
	return newRemoteBackend(ctx, cfg, tokens, token)
}

// newMemoryBackend 单进程演示：本地用户与对方都写入内存存储
func newMemoryBackend(as, with string) *backend {
	mem := memstore.New(clockwork.NewRealClock())
	me := model.Participant{ID: "u-" + strings.ToLower(as), Name: as, Username: as}
	mem.AddParticipant(me)
	if with != "" && !strings.EqualFold(with, as) {
		mem.AddParticipant(model.Participant{ID: "u-" + strings.ToLower(with), Name: with, Username: with})
	}
	slog.Info("Using in-memory store", "username", as)

	sess := session.New(me)
	return &backend{store: mem, session: sess, contacts: contact.New(mem, sess, nil)}
}

// newRemoteBackend 连接 Postgres、NATS、Redis 并用 token 登录
func newRemoteBackend(ctx context.Context, cfg *config.Config, tokens *jwt.Signer, token string) (*backend, error) {
	logger := slog.Default()
	b := &backend{}
	fail := func(err error) (*backend, error) {
		b.close()
		return nil, err
	}

	// 连接 NATS
	nc, err := chatnats.Connect(cfg.NATS)
	if err != nil {
		return fail(err)
	}
	b.closers = append(b.closers, func() { chatnats.Drain(nc) })
	logger.Info("Connected to NATS", "url", cfg.NATS.URL)

	// 连接 Redis
	redisClient := connectRedis(cfg.Redis)
	b.closers = append(b.closers, func() { _ = redisClient.Close() })
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fail(err)
	}
	logger.Info("Connected to Redis", "host", cfg.Redis.Host)

	// 连接数据库
	db, err := connectDatabase(ctx, cfg.Database)
	if err != nil {
		return fail(err)
	}
	b.closers = append(b.closers, db.Close)
	if err := repository.EnsureSchema(ctx, db); err != nil {
		return fail(err)
	}
	logger.Info("Connected to PostgreSQL", "host", cfg.Database.Host)

	sfNode, err := snowflake.NewNode(cfg.App.NodeID, clockwork.NewRealClock())
	if err != nil {
		return fail(err)
	}

	participants := repository.NewParticipantRepository(db)
	inbox := service.NewInboxService(redisClient, clockwork.NewRealClock())
	st := service.NewStore(
		participants,
		repository.NewConversationRepository(db),
		repository.NewMessageRepository(db),
		repository.NewContactRepository(db),
		chatnats.NewPublisher(nc),
		chatnats.NewFeed(nc, chatnats.FeedConfig{BufferSize: cfg.Chat.FeedBuffer}),
		inbox,
		sfNode,
	)

	manager := session.NewManager(tokens, st, service.NewProfileCache(redisClient, cfg.Chat.ProfileTTL))
	sess, err := manager.SignIn(ctx, token)
	if err != nil {
		return fail(err)
	}
	b.closers = append(b.closers, func() {
		signOutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		manager.SignOut(signOutCtx, sess)
	})

	me, _ := sess.Current()
	if err := st.RebuildInbox(ctx, me.ID); err != nil {
		logger.Warn("Failed to rebuild inbox", "participantId", me.ID, "error", err)
	}

	b.store = st
	b.session = sess
	b.contacts = contact.New(st, sess, logger)
	b.inbox = st.Inbox
	b.checks = []health.Option{
		health.WithNATS(nc),
		health.WithRedis(redisClient),
		health.WithDatabase(db),
	}
	return b, nil
}

// connectRedis 连接 Redis
func connectRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// connectDatabase 连接 PostgreSQL
func connectDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, errors.Join(errors.New("database ping failed"), err)
	}
	return db, nil
}
