package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Chat     ChatConfig     `mapstructure:"chat"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Health   HealthConfig   `mapstructure:"health"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	NodeID   int64  `mapstructure:"node_id"`
	LogLevel string `mapstructure:"log_level"`
}

type ChatConfig struct {
	ReadDebounce  time.Duration `mapstructure:"read_debounce"`
	QueueSize     int           `mapstructure:"queue_size"`
	FeedBuffer    int           `mapstructure:"feed_buffer"`
	InboxPageSize int           `mapstructure:"inbox_page_size"`
	ProfileTTL    time.Duration `mapstructure:"profile_ttl"`
}

type JWTConfig struct {
	SecretKey string        `mapstructure:"secret_key"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN PostgreSQL 连接串
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Addr Redis 地址
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type HealthConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load 从指定路径加载配置，环境变量优先
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	return &cfg, nil
}

// Default 不读取文件，只使用默认值和环境变量
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// 默认值都是基本类型，解码不会失败
	_ = v.Unmarshal(&cfg)
	cfg.applyEnv()
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "im-chat")
	v.SetDefault("app.node_id", 1)
	v.SetDefault("app.log_level", "info")

	v.SetDefault("chat.read_debounce", 500*time.Millisecond)
	v.SetDefault("chat.queue_size", 1024)
	v.SetDefault("chat.feed_buffer", 256)
	v.SetDefault("chat.inbox_page_size", 20)
	v.SetDefault("chat.profile_ttl", 30*time.Minute)

	v.SetDefault("jwt.token_ttl", 24*time.Hour)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", 60)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "im_db")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("health.addr", ":8090")
}

// applyEnv 从环境变量覆盖配置
func (c *Config) applyEnv() {
	// App
	c.App.NodeID = int64(GetEnvInt("CHAT_NODE_ID", int(c.App.NodeID)))
	c.App.LogLevel = GetEnv("LOG_LEVEL", c.App.LogLevel)

	// Chat
	c.Chat.ReadDebounce = GetEnvDuration("CHAT_DEBOUNCE", c.Chat.ReadDebounce)
	c.Chat.FeedBuffer = GetEnvInt("CHAT_FEED_BUFFER", c.Chat.FeedBuffer)

	// JWT
	c.JWT.SecretKey = GetEnv("JWT_SECRET", c.JWT.SecretKey)
	c.JWT.TokenTTL = GetEnvDuration("JWT_TOKEN_TTL", c.JWT.TokenTTL)

	// NATS
	c.NATS.URL = GetEnv("NATS_URL", c.NATS.URL)

	// Database
	c.Database.Host = GetEnv("POSTGRES_HOST", c.Database.Host)
	c.Database.Port = GetEnvInt("POSTGRES_PORT", c.Database.Port)
	c.Database.User = GetEnv("POSTGRES_USER", c.Database.User)
	c.Database.Password = GetEnv("POSTGRES_PASSWORD", c.Database.Password)
	c.Database.Name = GetEnv("POSTGRES_DB", c.Database.Name)
	c.Database.MaxOpenConns = GetEnvInt("POSTGRES_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = GetEnvInt("POSTGRES_MAX_IDLE_CONNS", c.Database.MaxIdleConns)

	// Redis
	c.Redis.Host = GetEnv("REDIS_HOST", c.Redis.Host)
	c.Redis.Port = GetEnvInt("REDIS_PORT", c.Redis.Port)
	c.Redis.Password = GetEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = GetEnvInt("REDIS_DB", c.Redis.DB)
	c.Redis.PoolSize = GetEnvInt("REDIS_POOL_SIZE", c.Redis.PoolSize)

	// Health
	c.Health.Addr = GetEnv("HEALTH_ADDR", c.Health.Addr)
}
