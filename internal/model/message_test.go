package model

import (
	"testing"
	"time"
)

func TestMessagePatch_Apply(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Minute)
	yes, no := true, false

	tests := []struct {
		name        string
		msg         Message
		patch       MessagePatch
		wantRead    bool
		wantDeleted *time.Time
	}{
		{
			name:     "mark read",
			msg:      Message{ID: "m1"},
			patch:    MessagePatch{ID: "m1", IsRead: &yes},
			wantRead: true,
		},
		{
			name:     "read never reverts",
			msg:      Message{ID: "m1", IsRead: true},
			patch:    MessagePatch{ID: "m1", IsRead: &no},
			wantRead: true,
		},
		{
			name:        "soft delete",
			msg:         Message{ID: "m1"},
			patch:       MessagePatch{ID: "m1", DeletedAt: &now},
			wantDeleted: &now,
		},
		{
			name:        "deleted_at keeps first value",
			msg:         Message{ID: "m1", DeletedAt: &now},
			patch:       MessagePatch{ID: "m1", DeletedAt: &later},
			wantDeleted: &now,
		},
		{
			name:        "absent fields untouched",
			msg:         Message{ID: "m1", IsRead: true, DeletedAt: &now},
			patch:       MessagePatch{ID: "m1"},
			wantRead:    true,
			wantDeleted: &now,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.patch.Apply(tt.msg)
			if got.IsRead != tt.wantRead {
				t.Errorf("Expected IsRead %v, got %v", tt.wantRead, got.IsRead)
			}
			switch {
			case tt.wantDeleted == nil && got.DeletedAt != nil:
				t.Errorf("Expected DeletedAt nil, got %v", *got.DeletedAt)
			case tt.wantDeleted != nil && (got.DeletedAt == nil || !got.DeletedAt.Equal(*tt.wantDeleted)):
				t.Errorf("Expected DeletedAt %v, got %v", *tt.wantDeleted, got.DeletedAt)
			}
		})
	}
}

func TestMessage_Before(t *testing.T) {
	now := time.Now()
	a := Message{ID: "a", CreatedAt: now}
	b := Message{ID: "b", CreatedAt: now}
	c := Message{ID: "0", CreatedAt: now.Add(time.Second)}

	if !a.Before(b) || b.Before(a) {
		t.Error("Expected ties to be broken by id")
	}
	if !b.Before(c) {
		t.Error("Expected earlier created_at first")
	}
}

func TestViewMessage_Body(t *testing.T) {
	now := time.Now()
	v := ViewMessage{Message: Message{ID: "m1", Content: "secret"}}
	if v.Body() != "secret" {
		t.Errorf("Expected 'secret', got '%s'", v.Body())
	}
	v.DeletedAt = &now
	if v.Body() != DeletedPlaceholder {
		t.Errorf("Expected placeholder, got '%s'", v.Body())
	}
}

func TestPairKey(t *testing.T) {
	l1, h1 := PairKey("u2", "u1")
	l2, h2 := PairKey("u1", "u2")
	if l1 != l2 || h1 != h2 || l1 != "u1" {
		t.Errorf("Expected canonical pair (u1, u2), got (%s, %s) and (%s, %s)", l1, h1, l2, h2)
	}
}
