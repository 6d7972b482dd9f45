package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
)

type ackRecorder struct {
	calls   [][]string
	pending []func(error)
	applied [][]string
}

// coordinatorHarness 定时器回调投递到 fired，由测试协程执行
type coordinatorHarness struct {
	clock *clockwork.FakeClock
	fired chan func()
	rec   *ackRecorder
	r     *readCoordinator
}

func newTestCoordinator(unread *[]string) *coordinatorHarness {
	h := &coordinatorHarness{
		clock: clockwork.NewFakeClockAt(base),
		fired: make(chan func(), 8),
		rec:   &ackRecorder{},
	}
	r := newReadCoordinator(h.clock, 500*time.Millisecond, discardLogger())
	r.post = func(fn func()) { h.fired <- fn }
	r.unread = func() []string { return *unread }
	r.ack = func(ids []string, done func(error)) {
		h.rec.calls = append(h.rec.calls, ids)
		h.rec.pending = append(h.rec.pending, done)
	}
	r.applyRead = func(ids []string) { h.rec.applied = append(h.rec.applied, ids) }
	h.r = r
	return h
}

// runFired 执行一次到期回调
func (h *coordinatorHarness) runFired(t *testing.T) {
	t.Helper()
	select {
	case fn := <-h.fired:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatal("Expected the debounce timer to fire")
	}
}

// timers 等待假时钟上恰好有 n 个定时器
func (h *coordinatorHarness) timers(t *testing.T, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.clock.BlockUntilContext(ctx, n); err != nil {
		t.Fatalf("Expected %d pending timers: %v", n, err)
	}
}

func TestReadCoordinator_TrailingEdge(t *testing.T) {
	unread := []string{"m1"}
	h := newTestCoordinator(&unread)

	h.r.Trigger(unread)
	h.clock.Advance(400 * time.Millisecond)
	unread = []string{"m1", "m2"}
	h.r.Trigger(unread)
	h.clock.Advance(400 * time.Millisecond)

	// 第二次触发重置了定时器
	h.timers(t, 1)
	if len(h.fired) != 0 {
		t.Fatalf("Expected timer to be reset by the second trigger, got %d callbacks", len(h.fired))
	}

	h.clock.Advance(100 * time.Millisecond)
	h.runFired(t)
	if len(h.rec.calls) != 1 {
		t.Fatalf("Expected 1 call, got %d", len(h.rec.calls))
	}
	if diff := cmp.Diff([]string{"m1", "m2"}, h.rec.calls[0]); diff != "" {
		t.Errorf("acknowledged ids mismatch (-want +got):\n%s", diff)
	}

	h.rec.pending[0](nil)
	if diff := cmp.Diff([][]string{{"m1", "m2"}}, h.rec.applied); diff != "" {
		t.Errorf("applied ids mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCoordinator_RecomputesOnFire(t *testing.T) {
	unread := []string{"m1", "m2"}
	h := newTestCoordinator(&unread)

	h.r.Trigger(unread)
	// m1 在等待期间已被其他途径标记为已读
	unread = []string{"m2"}
	h.clock.Advance(500 * time.Millisecond)
	h.runFired(t)

	if diff := cmp.Diff([][]string{{"m2"}}, h.rec.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCoordinator_SkipsInFlight(t *testing.T) {
	unread := []string{"m1"}
	h := newTestCoordinator(&unread)

	h.r.Trigger(unread)
	h.clock.Advance(500 * time.Millisecond)
	h.runFired(t)

	unread = []string{"m1", "m2"}
	h.r.Trigger(unread)
	state, pending := h.r.State()
	if state != ReceiptScheduled {
		t.Errorf("Expected %s, got %s", ReceiptScheduled, state)
	}
	if diff := cmp.Diff([]string{"m2"}, pending); diff != "" {
		t.Errorf("pending mismatch (-want +got):\n%s", diff)
	}

	// 第一次确认失败，m1 仍未读
	h.rec.pending[0](errors.New("timeout"))
	if len(h.rec.applied) != 0 {
		t.Errorf("Expected nothing applied after failure, got %v", h.rec.applied)
	}

	h.clock.Advance(500 * time.Millisecond)
	h.runFired(t)
	if len(h.rec.calls) != 2 {
		t.Fatalf("Expected 2 calls, got %d", len(h.rec.calls))
	}
	if diff := cmp.Diff([]string{"m1", "m2"}, h.rec.calls[1]); diff != "" {
		t.Errorf("retry ids mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCoordinator_StopClearsTimer(t *testing.T) {
	unread := []string{"m1"}
	h := newTestCoordinator(&unread)

	h.r.Trigger(unread)
	h.timers(t, 1)
	h.r.Stop()
	h.timers(t, 0)
	h.clock.Advance(time.Second)

	if len(h.fired) != 0 || len(h.rec.calls) != 0 {
		t.Errorf("Expected no calls after stop, got %d", len(h.rec.calls))
	}

	h.r.Trigger(unread)
	if state, _ := h.r.State(); state != ReceiptIdle {
		t.Errorf("Expected %s after stop, got %s", ReceiptIdle, state)
	}
}

func TestReadCoordinator_StaleFireIgnored(t *testing.T) {
	unread := []string{"m1"}
	h := newTestCoordinator(&unread)

	h.r.Trigger(unread)
	h.clock.Advance(500 * time.Millisecond)
	// 回调排队期间又一次触发，旧回调作废
	h.r.Trigger(unread)
	h.runFired(t)

	if len(h.rec.calls) != 0 {
		t.Errorf("Expected stale callback to be ignored, got %d calls", len(h.rec.calls))
	}
	if state, _ := h.r.State(); state != ReceiptScheduled {
		t.Errorf("Expected %s, got %s", ReceiptScheduled, state)
	}
}

func TestReadCoordinator_EmptySetDoesNotArm(t *testing.T) {
	var unread []string
	h := newTestCoordinator(&unread)

	h.r.Trigger(nil)
	h.timers(t, 0)
	if state, _ := h.r.State(); state != ReceiptIdle {
		t.Errorf("Expected %s, got %s", ReceiptIdle, state)
	}
}
