package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

// CheckFunc 单项检查，返回 nil 表示正常
type CheckFunc func(ctx context.Context) error

type namedCheck struct {
	name  string
	check CheckFunc
}

// Checker 健康检查器
type Checker struct {
	checks  []namedCheck
	timeout time.Duration
}

// Option 检查项
type Option func(*Checker)

// WithNATS 检查 NATS 连接
func WithNATS(nc *nats.Conn) Option {
	return WithCheck("nats", func(context.Context) error {
		if nc == nil || !nc.IsConnected() {
			return errors.New("nats disconnected")
		}
		return nil
	})
}

// WithRedis 检查 Redis
func WithRedis(client *redis.Client) Option {
	return WithCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

// WithDatabase 检查 PostgreSQL
func WithDatabase(db *pgxpool.Pool) Option {
	return WithCheck("database", func(ctx context.Context) error {
		return db.Ping(ctx)
	})
}

// WithCheck 自定义检查项
func WithCheck(name string, check CheckFunc) Option {
	return func(c *Checker) {
		c.checks = append(c.checks, namedCheck{name: name, check: check})
	}
}

// NewChecker 创建健康检查器
func NewChecker(opts ...Option) *Checker {
	c := &Checker{timeout: 2 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check 并发执行所有检查
func (h *Checker) Check(ctx context.Context) map[string]string {
	status := make(map[string]string, len(h.checks))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, p := range h.checks {
		wg.Add(1)
		go func(p namedCheck) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			result := StatusConnected
			if err := p.check(checkCtx); err != nil {
				result = StatusDisconnected
			}
			mu.Lock()
			status[p.name] = result
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	return status
}

// IsHealthy 检查是否健康
func (h *Checker) IsHealthy(ctx context.Context) bool {
	return healthy(h.Check(ctx))
}

func healthy(status map[string]string) bool {
	for _, s := range status {
		if s != StatusConnected {
			return false
		}
	}
	return true
}

// ServeHTTP HTTP 健康检查端点
func (h *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if healthy(status) {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

// Handler /health 与 /ready 路由
func (h *Checker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/health", h)
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if h.IsHealthy(r.Context()) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("Not Ready"))
		}
	})
	return mux
}
