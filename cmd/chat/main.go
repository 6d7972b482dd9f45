package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"sudooom.im.chat/internal/chat"
	"sudooom.im.chat/internal/config"
	apperrors "sudooom.im.chat/internal/errors"
	"sudooom.im.chat/internal/health"
	"sudooom.im.chat/internal/jwt"
	"sudooom.im.chat/internal/model"
)

func main() {
	configPath := pflag.StringP("config", "c", "configs/config.yaml", "配置文件路径")
	token := pflag.StringP("token", "t", "", "Access Token")
	with := pflag.StringP("with", "w", "", "打开与该用户名的会话")
	memory := pflag.Bool("memory", false, "使用内存存储，不连接 Postgres/NATS/Redis")
	as := pflag.String("as", "me", "内存模式下的本地用户名")
	issue := pflag.String("issue", "", "为参与者 ID 签发 Token 后退出")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = config.Default()
	}

	// 初始化日志，标准输出留给会话视图
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.App.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	tokens := jwt.NewSigner(cfg.JWT.SecretKey, cfg.JWT.TokenTTL, nil)
	if *issue != "" {
		issued, err := tokens.Issue(*issue)
		if err != nil {
			logger.Error("Failed to issue token", "error", err)
			os.Exit(1)
		}
		fmt.Println(issued.Value)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	b, err := newBackend(ctx, cfg, tokens, *memory, *token, *as, *with)
	if err != nil {
		logger.Error("Failed to start backend", "error", err)
		os.Exit(1)
	}
	defer b.close()

	syncer := chat.New(b.store, b.session,
		chat.WithDebounce(cfg.Chat.ReadDebounce),
		chat.WithQueueSize(cfg.Chat.QueueSize),
		chat.WithObserver(render(os.Stdout)),
	)
	defer syncer.Close()

	checker := health.NewChecker(append(b.checks, health.WithCheck("session", func(context.Context) error {
		if !b.session.Active() {
			return errors.New("signed out")
		}
		return nil
	}))...)
	server := &http.Server{Addr: cfg.Health.Addr, Handler: checker.Handler()}
	go func() {
		logger.Info("Health check server started", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health check server failed", "error", err)
		}
	}()

	if *with != "" {
		if _, err := syncer.Open(ctx, *with); err != nil {
			logger.Error("Failed to open chat", "handle", *with, "error", err)
		}
	}

	logger.Info("Chat client started", "name", cfg.App.Name)
	repl(ctx, syncer, b, cfg.Chat.InboxPageSize, os.Stdin, os.Stdout)

	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	logger.Info("Chat client stopped")
}

// repl 读取标准输入：普通文本发送，/ 开头为命令
func repl(ctx context.Context, syncer *chat.Synchronizer, b *backend, pageSize int, in io.Reader, out io.Writer) {
	composer := chat.NewComposer(syncer)
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			line = l
		}

		cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
		arg = strings.TrimSpace(arg)
		var err error
		switch cmd {
		case "/quit":
			return
		case "/open":
			_, err = syncer.Open(ctx, arg)
		case "/delete":
			err = syncer.Delete(ctx, arg)
		case "/inbox":
			err = printInbox(ctx, b, pageSize, out)
		case "/add":
			var p model.Participant
			if p, err = b.contacts.Add(ctx, arg); err == nil {
				fmt.Fprintf(out, "+ @%s added to contacts\n", p.Username)
			}
		case "/contacts":
			err = printContacts(ctx, b, out)
		default:
			composer.SetInput(line)
			err = composer.Submit(ctx)
		}
		if err != nil {
			fmt.Fprintf(out, "! %s\n", describe(err))
		}
	}
}

func printInbox(ctx context.Context, b *backend, pageSize int, out io.Writer) error {
	if b.inbox == nil {
		return errors.New("inbox not available")
	}
	me, err := b.session.Current()
	if err != nil {
		return err
	}
	summaries, err := b.inbox(ctx, me.ID, 0, int64(pageSize))
	if err != nil {
		return err
	}
	for _, s := range summaries {
		fmt.Fprintf(out, "  @%-16s %3d  %s\n", s.Peer.Username, s.UnreadCount, s.LastPreview)
	}
	return nil
}

func printContacts(ctx context.Context, b *backend, out io.Writer) error {
	contacts, err := b.contacts.List(ctx)
	if err != nil {
		return err
	}
	if len(contacts) == 0 {
		fmt.Fprintln(out, "  (no contacts, /add <username>)")
	}
	for _, c := range contacts {
		fmt.Fprintf(out, "  @%-16s %s\n", c.Username, c.Name)
	}
	return nil
}

// render 打印当前视图
func render(out io.Writer) func(chat.View) {
	return func(v chat.View) {
		switch {
		case v.Loading:
			fmt.Fprintln(out, "-- loading...")
			return
		case v.Err != nil && apperrors.IsLoadError(v.Err):
			fmt.Fprintf(out, "! %s (/open to retry)\n", apperrors.GetMessage(v.Err))
			return
		case v.ConversationID == "":
			return
		}

		fmt.Fprintf(out, "-- @%s (%d unread)\n", v.Recipient.Username, v.UnreadCount())
		for _, m := range v.Messages {
			fmt.Fprintln(out, formatMessage(m, v.Recipient))
		}
		if v.Err != nil {
			fmt.Fprintf(out, "! %s\n", apperrors.GetMessage(v.Err))
		}
	}
}

func formatMessage(m model.ViewMessage, peer model.Participant) string {
	who, ticks := peer.Name, ""
	if m.IsSender {
		who, ticks = "me", " ✓"
		if m.IsRead {
			ticks = " ✓✓"
		}
	}
	return fmt.Sprintf("[%s] %s %s: %s%s", m.ID, m.CreatedAt.Format("15:04"), who, m.Body(), ticks)
}

// describe 应用错误只展示用户可见的消息
func describe(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
