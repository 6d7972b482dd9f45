package chat

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"sudooom.im.chat/internal/model"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func msg(id, sender string, offset time.Duration) model.Message {
	return model.Message{
		ID:             id,
		ConversationID: "c1",
		SenderID:       sender,
		Content:        "content " + id,
		CreatedAt:      base.Add(offset),
	}
}

func ids(tl *Timeline) []string {
	var out []string
	for _, v := range tl.Views() {
		out = append(out, v.ID)
	}
	return out
}

func TestNewTimeline_SortsAndDedupes(t *testing.T) {
	tl := NewTimeline("u1", []model.Message{
		msg("m3", "u2", 3*time.Second),
		msg("m1", "u1", time.Second),
		msg("m3", "u2", 3*time.Second),
		msg("m2", "u2", 2*time.Second),
	})

	if diff := cmp.Diff([]string{"m1", "m2", "m3"}, ids(tl)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestTimeline_InsertIsIdempotent(t *testing.T) {
	tl := NewTimeline("u1", []model.Message{msg("m5", "u2", 5*time.Second)})

	if tl.Insert(msg("m5", "u2", 5*time.Second)) {
		t.Error("Expected duplicate insert to be ignored")
	}
	if tl.Len() != 1 {
		t.Errorf("Expected 1 message, got %d", tl.Len())
	}
}

func TestTimeline_InsertKeepsOrderRegardlessOfArrival(t *testing.T) {
	tests := []struct {
		name    string
		arrival []model.Message
		want    []string
	}{
		{
			name:    "in order",
			arrival: []model.Message{msg("a", "u2", 1), msg("b", "u2", 2), msg("c", "u2", 3)},
			want:    []string{"a", "b", "c"},
		},
		{
			name:    "reversed",
			arrival: []model.Message{msg("c", "u2", 3), msg("b", "u2", 2), msg("a", "u2", 1)},
			want:    []string{"a", "b", "c"},
		},
		{
			name:    "same timestamp breaks ties by id",
			arrival: []model.Message{msg("m9", "u2", 0), msg("m10", "u2", 0), msg("m1", "u2", 0)},
			want:    []string{"m1", "m10", "m9"},
		},
		{
			name:    "late arrival lands in the middle",
			arrival: []model.Message{msg("a", "u2", 1), msg("c", "u2", 3), msg("b", "u2", 2)},
			want:    []string{"a", "b", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl := NewTimeline("u1", nil)
			for _, m := range tt.arrival {
				tl.Insert(m)
			}
			if diff := cmp.Diff(tt.want, ids(tl)); diff != "" {
				t.Errorf("order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTimeline_PatchUnknownIDIsNoop(t *testing.T) {
	tl := NewTimeline("u1", []model.Message{msg("m1", "u2", 0)})
	before := tl.Views()

	read := true
	if tl.Patch(model.MessagePatch{ID: "missing", IsRead: &read}) {
		t.Error("Expected patch for unknown id to report no change")
	}
	if diff := cmp.Diff(before, tl.Views()); diff != "" {
		t.Errorf("state changed (-want +got):\n%s", diff)
	}
}

func TestTimeline_PatchOnlyPresentFields(t *testing.T) {
	m := msg("m1", "u2", 0)
	m.IsRead = true
	tl := NewTimeline("u1", []model.Message{m, msg("m2", "u2", time.Second)})

	deletedAt := base.Add(time.Minute)
	if !tl.Patch(model.MessagePatch{ID: "m1", DeletedAt: &deletedAt}) {
		t.Fatal("Expected delete patch to change the message")
	}

	got, _ := tl.Get("m1")
	if !got.IsRead {
		t.Error("Expected IsRead to be preserved when the patch omits it")
	}
	if got.Content != m.Content {
		t.Errorf("Expected content %q, got %q", m.Content, got.Content)
	}
	if diff := cmp.Diff([]string{"m1", "m2"}, ids(tl)); diff != "" {
		t.Errorf("patch reordered messages (-want +got):\n%s", diff)
	}

	unread := false
	if tl.Patch(model.MessagePatch{ID: "m1", IsRead: &unread}) {
		t.Error("Expected stale unread patch to be ignored")
	}
}

func TestTimeline_SoftDeleteMasksContent(t *testing.T) {
	tl := NewTimeline("u1", []model.Message{msg("m1", "u1", 0)})

	deletedAt := base.Add(time.Minute)
	tl.Patch(model.MessagePatch{ID: "m1", DeletedAt: &deletedAt})

	views := tl.Views()
	if len(views) != 1 {
		t.Fatalf("Expected deleted message to stay in the list, got %d messages", len(views))
	}
	if views[0].Body() != model.DeletedPlaceholder {
		t.Errorf("Expected %q, got %q", model.DeletedPlaceholder, views[0].Body())
	}
	if !views[0].IsSender {
		t.Error("Expected IsSender for the local participant's message")
	}
}

func TestTimeline_UnreadExcludesOwnMessages(t *testing.T) {
	read := msg("m2", "u2", 2*time.Second)
	read.IsRead = true
	tl := NewTimeline("u1", []model.Message{
		msg("m1", "u2", time.Second),
		read,
		msg("m3", "u1", 3*time.Second),
		msg("m4", "u2", 4*time.Second),
	})

	if diff := cmp.Diff([]string{"m1", "m4"}, tl.Unread()); diff != "" {
		t.Errorf("unread mismatch (-want +got):\n%s", diff)
	}

	if n := tl.MarkRead([]string{"m1", "m4", "m2"}); n != 2 {
		t.Errorf("Expected 2 changed messages, got %d", n)
	}
	if got := tl.Unread(); len(got) != 0 {
		t.Errorf("Expected no unread messages, got %v", got)
	}
}
