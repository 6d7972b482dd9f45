package nats

import (
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"sudooom.im.chat/internal/config"
)

const clientName = "im-chat"

// Connect 按配置建立 NATS 连接，连接状态变化写入日志
func Connect(cfg config.NATSConfig) (*nats.Conn, error) {
	return nats.Connect(cfg.URL, connectOptions(cfg, slog.Default())...)
}

func connectOptions(cfg config.NATSConfig, logger *slog.Logger) []nats.Option {
	logger = logger.With("component", "nats")
	return []nats.Option{
		nats.Name(clientName),
		nats.Timeout(10 * time.Second),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		// 断线期间的发布先缓存，重连后补发
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("Disconnected, change feed paused", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected, change feed resumed", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("Connection closed")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			if sub != nil {
				logger.Error("Async error", "subject", sub.Subject, "error", err)
				return
			}
			logger.Error("Async error", "error", err)
		}),
	}
}

// Drain 排空订阅和待发布消息后关闭，失败时直接关闭
func Drain(nc *nats.Conn) {
	if nc == nil || nc.IsClosed() {
		return
	}
	if err := nc.Drain(); err != nil {
		slog.Warn("Failed to drain NATS connection", "error", err)
		nc.Close()
	}
}
