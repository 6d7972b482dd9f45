package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.chat/internal/chat"
	"sudooom.im.chat/internal/model"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFormatMessage(t *testing.T) {
	at := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)
	deletedAt := at.Add(time.Minute)
	bob := model.Participant{ID: "u2", Name: "Bob", Username: "bob"}

	tests := []struct {
		name string
		msg  model.ViewMessage
		want string
	}{
		{
			name: "own unread",
			msg:  model.ViewMessage{Message: model.Message{ID: "m1", Content: "hi", CreatedAt: at}, IsSender: true},
			want: "[m1] 09:30 me: hi ✓",
		},
		{
			name: "own read",
			msg:  model.ViewMessage{Message: model.Message{ID: "m1", Content: "hi", CreatedAt: at, IsRead: true}, IsSender: true},
			want: "[m1] 09:30 me: hi ✓✓",
		},
		{
			name: "peer deleted",
			msg:  model.ViewMessage{Message: model.Message{ID: "m2", Content: "oops", CreatedAt: at, DeletedAt: &deletedAt}},
			want: "[m2] 09:30 Bob: " + model.DeletedPlaceholder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatMessage(tt.msg, bob))
		})
	}
}

func TestRepl_MemoryBackend(t *testing.T) {
	b := newMemoryBackend("alice", "bob")
	defer b.close()

	out := &lockedBuffer{}
	syncer := chat.New(b.store, b.session, chat.WithObserver(render(out)))
	defer syncer.Close()

	in := strings.NewReader("/inbox\n/open bob\nhello bob\n/delete nope\n/quit\nignored\n")
	repl(context.Background(), syncer, b, 20, in, out)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "me: hello bob ✓")
	}, 2*time.Second, 10*time.Millisecond)

	text := out.String()
	assert.Contains(t, text, "! inbox not available")
	assert.Contains(t, text, "-- @bob (0 unread)")
	assert.NotContains(t, text, "ignored")

	msgs := syncer.View().Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello bob", msgs[0].Content)
}

func TestRepl_Contacts(t *testing.T) {
	b := newMemoryBackend("alice", "bob")
	defer b.close()

	out := &lockedBuffer{}
	syncer := chat.New(b.store, b.session)
	defer syncer.Close()

	in := strings.NewReader("/contacts\n/add bob\n/add bob\n/add alice\n/add nobody\n/contacts\n/quit\n")
	repl(context.Background(), syncer, b, 20, in, out)

	text := out.String()
	assert.Contains(t, text, "(no contacts, /add <username>)")
	assert.Contains(t, text, "+ @bob added to contacts")
	assert.Contains(t, text, "! You have already added this contact")
	assert.Contains(t, text, "! Invalid parameters")
	assert.Contains(t, text, "! Recipient not found")
	assert.Contains(t, text, "  @bob              bob")
}
