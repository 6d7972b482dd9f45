package contact

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "sudooom.im.chat/internal/errors"
	"sudooom.im.chat/internal/model"
	"sudooom.im.chat/internal/session"
	"sudooom.im.chat/internal/store/memstore"
)

var (
	alice = model.Participant{ID: "u1", Name: "Alice", Username: "alice"}
	bob   = model.Participant{ID: "u2", Name: "Bob", Username: "bob"}
	carol = model.Participant{ID: "u3", Name: "Carol", Username: "carol"}
)

func newTestBook(sess *session.Session) (*Book, *memstore.Store) {
	st := memstore.New(clockwork.NewFakeClockAt(time.Now()))
	st.AddParticipant(alice)
	st.AddParticipant(bob)
	st.AddParticipant(carol)
	return New(st, sess, slog.New(slog.NewTextHandler(io.Discard, nil))), st
}

func TestBook_AddAndList(t *testing.T) {
	book, _ := newTestBook(session.New(alice))
	ctx := context.Background()

	got, err := book.Add(ctx, "  Bob ")
	require.NoError(t, err)
	assert.Equal(t, bob, got)
	_, err = book.Add(ctx, "carol")
	require.NoError(t, err)

	contacts, err := book.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Participant{carol, bob}, contacts)
}

func TestBook_AddErrors(t *testing.T) {
	tests := []struct {
		name    string
		session *session.Session
		handle  string
		setup   func(b *Book, st *memstore.Store)
		want    *apperrors.AppError
	}{
		{
			name:    "no session",
			session: session.New(model.Participant{}),
			handle:  "bob",
			want:    apperrors.ErrAuthRequired,
		},
		{
			name:    "blank handle",
			session: session.New(alice),
			handle:  "  ",
			want:    apperrors.ErrInvalidParams,
		},
		{
			name:    "unknown handle",
			session: session.New(alice),
			handle:  "nobody",
			want:    apperrors.ErrRecipientNotFound,
		},
		{
			name:    "self",
			session: session.New(alice),
			handle:  "ALICE",
			want:    apperrors.ErrInvalidParams,
		},
		{
			name:    "duplicate",
			session: session.New(alice),
			handle:  "bob",
			setup: func(b *Book, _ *memstore.Store) {
				_, _ = b.Add(context.Background(), "bob")
			},
			want: apperrors.ErrContactExists,
		},
		{
			name:    "store failure",
			session: session.New(alice),
			handle:  "bob",
			setup: func(_ *Book, st *memstore.Store) {
				st.Fail(memstore.OpAddContact, errors.New("boom"))
			},
			want: apperrors.ErrServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book, st := newTestBook(tt.session)
			if tt.setup != nil {
				tt.setup(book, st)
			}
			_, err := book.Add(context.Background(), tt.handle)
			require.Error(t, err)
			if !apperrors.Is(err, tt.want) {
				t.Errorf("Expected code %d, got %v", tt.want.Code, err)
			}
		})
	}
}

func TestBook_SelfWrapsSentinel(t *testing.T) {
	book, st := newTestBook(session.New(alice))

	_, err := book.Add(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrSelf)

	contacts, err := st.ListContacts(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Empty(t, contacts)
}

func TestBook_ListFailure(t *testing.T) {
	book, st := newTestBook(session.New(alice))
	st.Fail(memstore.OpListContacts, errors.New("boom"))

	_, err := book.List(context.Background())
	assert.True(t, apperrors.Is(err, apperrors.ErrServerError), "got %v", err)
}
