package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryKeyStringIsStable(t *testing.T) {
	a := MessagesKey("A", 20)
	b := NewQueryKey(ResourceMessages, "A", "20")
	assert.Equal(t, a.String(), b.String())
	assert.True(t, a.Equal(b))
	assert.NotEqual(t, MessagesKey("A", 20).String(), MessagesKey("A", 50).String())
}

func TestQueryKeyStringDoesNotCollide(t *testing.T) {
	// a naive "/" join would make these equal
	a := NewQueryKey(ResourceConversation, "a/b")
	b := NewQueryKey(ResourceConversation, "a", "b")
	assert.NotEqual(t, a.String(), b.String())
}

func TestQueryKeyHasPrefix(t *testing.T) {
	tests := []struct {
		name   string
		key    QueryKey
		prefix QueryKey
		want   bool
	}{
		{"same conversation", ParticipantsKey("A", 1, 20), ParticipantsPrefix("A"), true},
		{"other conversation", ParticipantsKey("B", 1, 20), ParticipantsPrefix("A"), false},
		{"other resource", MessagesKey("A", 20), ParticipantsPrefix("A"), false},
		{"resource only", ConversationsKey(2, 20), ConversationsPrefix(), true},
		{"exact", ConversationKey("A"), ConversationKey("A"), true},
		{"prefix longer than key", ConversationKey("A"), NewQueryKey(ResourceConversation, "A", "x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.HasPrefix(tt.prefix))
		})
	}
}

func TestConversationUsersKeyIgnoresOrder(t *testing.T) {
	a := ConversationUsersKey("A", []string{"u2", "u1", "u2"})
	b := ConversationUsersKey("A", []string{"u1", "u2"})
	assert.Equal(t, a.String(), b.String())
	assert.True(t, a.HasPrefix(ConversationUsersPrefix("A")))
}

func TestQueryKeyConversationID(t *testing.T) {
	assert.Equal(t, "A", MessagesKey("A", 20).ConversationID())
	assert.Equal(t, "A", ConversationKey("A").ConversationID())
	assert.Equal(t, "", ConversationsKey(1, 20).ConversationID())
}
