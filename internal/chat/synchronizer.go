package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	apperrors "sudooom.im.chat/internal/errors"
	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/internal/session"
	"sudooom.im.chat/internal/store"
)

var (
	// ErrClosed 同步器已关闭
	ErrClosed = errors.New("chat: synchronizer closed")
	// ErrSuperseded 加载被更新的 Open 取代
	ErrSuperseded = errors.New("chat: load superseded")
)

// View 当前会话的只读视图
type View struct {
	Generation     uint64
	Profile        model.Participant
	Recipient      model.Participant
	ConversationID string
	Messages       []model.ViewMessage
	Loading        bool
	Live           bool  // 实时订阅是否可用
	Err            error // 最近一次错误
}

// Message 按 id 查找视图中的消息
func (v View) Message(id string) (model.ViewMessage, bool) {
	for _, m := range v.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return model.ViewMessage{}, false
}

// UnreadCount 对方发送的未读消息数
func (v View) UnreadCount() int {
	n := 0
	for _, m := range v.Messages {
		if !m.IsSender && !m.IsRead {
			n++
		}
	}
	return n
}

// bufferedEvent 快照完成前到达的事件
type bufferedEvent struct {
	insert *model.Message
	patch  *model.MessagePatch
}

// conversationState 单个会话的状态，只在事件循环中访问
type conversationState struct {
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc

	local        model.Participant
	recipient    model.Participant
	conversation model.Conversation
	timeline     *Timeline // 快照完成前为 nil
	pending      []bufferedEvent
	sub          store.Subscription
	receipts     *readCoordinator
	loading      bool
	live         bool
	err          error
}

// Synchronizer 会话同步器
// 单个事件循环协程拥有消息列表；网络调用在独立协程中执行，完成后带着代号回到循环，过期的结果直接丢弃
type Synchronizer struct {
	store     store.ConversationStore
	session   *session.Session
	clock     clockwork.Clock
	debounce  time.Duration
	logger    *slog.Logger
	observer  func(View)
	queueSize int

	ops       chan func()
	quit      chan struct{}
	baseCtx   context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup

	viewMu sync.RWMutex
	view   View

	// 以下字段只在事件循环中访问
	gen    uint64
	active *conversationState
}

// New 创建同步器并启动事件循环
func New(st store.ConversationStore, sess *session.Session, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store:     st,
		session:   sess,
		clock:     clockwork.NewRealClock(),
		debounce:  DefaultReadDebounce,
		logger:    slog.Default(),
		queueSize: 1024,
		quit:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ops = make(chan func(), s.queueSize)
	s.baseCtx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go s.loop()
	return s
}

func (s *Synchronizer) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.quit:
			return
		case fn := <-s.ops:
			fn()
		}
	}
}

// post 投递到事件循环，关闭后丢弃
func (s *Synchronizer) post(fn func()) {
	select {
	case s.ops <- fn:
	case <-s.quit:
	}
}

// call 在事件循环中执行并等待完成
func (s *Synchronizer) call(fn func()) error {
	done := make(chan struct{})
	s.post(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
		return nil
	case <-s.quit:
		return ErrClosed
	}
}

// postFor 仅当 gen 仍是当前会话时执行
func (s *Synchronizer) postFor(gen uint64, fn func(st *conversationState)) {
	s.post(func() {
		if st := s.active; st != nil && st.gen == gen {
			fn(st)
		}
	})
}

// Open 打开与 handle 的会话：取消进行中的加载并关闭旧订阅，然后加载新快照
func (s *Synchronizer) Open(ctx context.Context, handle string) (View, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return View{}, apperrors.ErrRecipientNotFound
	}

	local, authErr := s.session.Current()

	var st *conversationState
	if err := s.call(func() {
		s.teardown()
		s.gen++
		st = &conversationState{gen: s.gen, loading: authErr == nil}
		st.ctx, st.cancel = context.WithCancel(s.baseCtx)
		st.receipts = s.newReceipts(st)
		if authErr != nil {
			st.err = authErr
		}
		s.active = st
		s.publish()
	}); err != nil {
		return View{}, err
	}

	if authErr != nil {
		return s.View(), authErr
	}

	// 调用方取消也中止加载
	stopWatch := context.AfterFunc(ctx, st.cancel)
	defer stopWatch()

	gen := st.gen
	handlers := store.Handlers{
		OnInsert: func(m model.Message) {
			s.postFor(gen, func(st *conversationState) { s.handleInsert(st, m) })
		},
		OnUpdate: func(p model.MessagePatch) {
			s.postFor(gen, func(st *conversationState) { s.handleUpdate(st, p) })
		},
		OnError: func(err error) {
			s.postFor(gen, func(st *conversationState) { s.handleSubscriptionError(st, err) })
		},
	}

	snap, err := s.load(st.ctx, local.ID, handle, handlers)

	var view View
	superseded := false
	callErr := s.call(func() {
		if s.active != st {
			superseded = true
			return
		}
		if err != nil {
			st.loading = false
			// 调用方取消不是会话错误，视图保持无错误的空状态
			if ctx.Err() == nil {
				st.err = err
			}
			s.publish()
			return
		}
		s.commit(st, snap)
		view = s.currentView()
	})

	switch {
	case callErr != nil:
		if snap != nil {
			snap.close(s)
		}
		return View{}, callErr
	case superseded:
		if snap != nil {
			snap.close(s)
		}
		return View{}, ErrSuperseded
	case err != nil:
		if ctx.Err() != nil {
			return s.View(), ctx.Err()
		}
		s.logger.Warn("Failed to open chat", "handle", handle, "error", err)
		return s.View(), err
	}

	s.logger.Info("Chat opened",
		"conversationId", view.ConversationID,
		"recipient", view.Recipient.Username,
		"messages", len(view.Messages),
		"live", view.Live)
	return view, nil
}

// commit 一次性发布快照，再按到达顺序应用缓冲的事件
func (s *Synchronizer) commit(st *conversationState, snap *snapshot) {
	st.local = snap.local
	st.recipient = snap.recipient
	st.conversation = snap.conversation
	st.sub = snap.sub
	st.live = snap.sub != nil
	st.err = snap.subErr
	st.loading = false
	st.timeline = NewTimeline(snap.local.ID, snap.messages)

	for _, ev := range st.pending {
		s.apply(st, ev)
	}
	if n := len(st.pending); n > 0 {
		s.logger.Debug("Applied buffered events", "conversationId", st.conversation.ID, "count", n)
	}
	st.pending = nil

	s.changed(st)
}

func (s *Synchronizer) apply(st *conversationState, ev bufferedEvent) bool {
	switch {
	case ev.insert != nil:
		return st.timeline.Insert(*ev.insert)
	case ev.patch != nil:
		return st.timeline.Patch(*ev.patch)
	}
	return false
}

func (s *Synchronizer) handleInsert(st *conversationState, m model.Message) {
	if st.timeline == nil {
		st.pending = append(st.pending, bufferedEvent{insert: &m})
		return
	}
	if s.apply(st, bufferedEvent{insert: &m}) {
		s.changed(st)
	}
}

func (s *Synchronizer) handleUpdate(st *conversationState, p model.MessagePatch) {
	if st.timeline == nil {
		st.pending = append(st.pending, bufferedEvent{patch: &p})
		return
	}
	if s.apply(st, bufferedEvent{patch: &p}) {
		s.changed(st)
	}
}

func (s *Synchronizer) handleSubscriptionError(st *conversationState, err error) {
	st.live = false
	st.err = apperrors.ErrSubscriptionError.Wrap(err)
	s.logger.Warn("Live updates unavailable", "conversationId", st.conversation.ID, "error", err)
	s.publish()
}

// changed 视图状态变化：通知已读协调器并发布视图
func (s *Synchronizer) changed(st *conversationState) {
	if st.timeline != nil {
		st.receipts.Trigger(st.timeline.Unread())
	}
	s.publish()
}

func (s *Synchronizer) newReceipts(st *conversationState) *readCoordinator {
	rc := newReadCoordinator(s.clock, s.debounce, s.logger)
	gen := st.gen
	rc.post = func(fn func()) {
		s.postFor(gen, func(*conversationState) { fn() })
	}
	rc.unread = func() []string {
		if st.timeline == nil {
			return nil
		}
		return st.timeline.Unread()
	}
	rc.ack = func(ids []string, done func(error)) {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			err := s.store.MarkRead(st.ctx, ids)
			s.postFor(gen, func(*conversationState) { done(err) })
		}()
	}
	rc.applyRead = func(ids []string) {
		if st.timeline != nil && st.timeline.MarkRead(ids) > 0 {
			s.changed(st)
		}
	}
	return rc
}

// teardown 取消加载、关闭订阅、停止定时器
func (s *Synchronizer) teardown() {
	st := s.active
	if st == nil {
		return
	}
	st.cancel()
	st.receipts.Stop()
	if st.sub != nil {
		if err := st.sub.Close(); err != nil {
			s.logger.Warn("Failed to close subscription", "conversationId", st.conversation.ID, "error", err)
		}
		st.sub = nil
	}
	s.active = nil
}

// publish 重新计算视图并通知观察者
func (s *Synchronizer) publish() {
	v := s.currentView()
	s.viewMu.Lock()
	s.view = v
	s.viewMu.Unlock()

	if s.observer != nil {
		s.observer(v)
	}
}

func (s *Synchronizer) currentView() View {
	st := s.active
	if st == nil {
		return View{}
	}
	v := View{
		Generation:     st.gen,
		Profile:        st.local,
		Recipient:      st.recipient,
		ConversationID: st.conversation.ID,
		Loading:        st.loading,
		Live:           st.live,
		Err:            st.err,
	}
	if st.timeline != nil {
		v.Messages = st.timeline.Views()
	}
	return v
}

// View 最近发布的视图
func (s *Synchronizer) View() View {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.view
}

// ReceiptState 已读协调器当前状态（用于观测）
func (s *Synchronizer) ReceiptState() (ReceiptState, []string) {
	state, pending := ReceiptIdle, []string(nil)
	_ = s.call(func() {
		if s.active != nil {
			state, pending = s.active.receipts.State()
		}
	})
	return state, pending
}

type target struct {
	conversationID string
	localID        string
	message        model.Message
	found          bool
}

// loaded 读取当前已加载会话的标识
func (s *Synchronizer) loaded(messageID string) (target, error) {
	var t target
	var err error
	if callErr := s.call(func() {
		st := s.active
		if st == nil || st.timeline == nil {
			err = apperrors.ErrNoConversation
			return
		}
		t.conversationID = st.conversation.ID
		t.localID = st.local.ID
		if messageID != "" {
			t.message, t.found = st.timeline.Get(messageID)
		}
	}); callErr != nil {
		return t, callErr
	}
	return t, err
}

// Send 发送消息；不做乐观插入，由变更流确认后进入视图
func (s *Synchronizer) Send(ctx context.Context, content string) error {
	return s.SendDraft(ctx, uuid.NewString(), content)
}

// SendDraft 以调用方给定的 clientMsgID 发送，重试同一草稿时复用该 ID，存储端据此去重
func (s *Synchronizer) SendDraft(ctx context.Context, clientMsgID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if _, err := s.session.Current(); err != nil {
		return err
	}

	t, err := s.loaded("")
	if err != nil {
		return err
	}

	m, err := s.store.SendMessage(ctx, t.conversationID, t.localID, clientMsgID, content)
	if err != nil {
		sendErr := apperrors.ErrSendFailed.Wrap(err)
		s.recordError(t.conversationID, sendErr)
		s.logger.Error("Failed to send message", "conversationId", t.conversationID, "error", err)
		return sendErr
	}

	s.logger.Debug("Message sent", "conversationId", t.conversationID, "messageId", m.ID)
	return nil
}

// Delete 软删除自己发送的消息，已删除的消息重复删除视为成功
func (s *Synchronizer) Delete(ctx context.Context, messageID string) error {
	if _, err := s.session.Current(); err != nil {
		return err
	}

	t, err := s.loaded(messageID)
	if err != nil {
		return err
	}
	if !t.found {
		return apperrors.ErrInvalidParams
	}
	if t.message.SenderID != t.localID {
		return apperrors.ErrNotMessageOwner
	}
	if t.message.IsDeleted() {
		return nil
	}

	if err := s.store.SoftDelete(ctx, messageID); err != nil {
		deleteErr := apperrors.ErrDeleteFailed.Wrap(err)
		s.recordError(t.conversationID, deleteErr)
		s.logger.Error("Failed to delete message", "messageId", messageID, "error", err)
		return deleteErr
	}

	s.logger.Debug("Message deleted", "conversationId", t.conversationID, "messageId", messageID)
	return nil
}

// recordError 记录加载后的错误，不影响已加载的状态
func (s *Synchronizer) recordError(conversationID string, err error) {
	s.post(func() {
		if st := s.active; st != nil && st.conversation.ID == conversationID {
			st.err = err
			s.publish()
		}
	})
}

// Close 停止事件循环、定时器和订阅
func (s *Synchronizer) Close() error {
	s.closeOnce.Do(func() {
		_ = s.call(func() {
			s.teardown()
			s.publish()
		})
		s.cancel()
		close(s.quit)
		s.wg.Wait()
	})
	return nil
}
