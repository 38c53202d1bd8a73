package domain

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"
)

const (
	ResourceConversations     = "conversations"
	ResourceConversation      = "conversation"
	ResourceMessages          = "messages"
	ResourceParticipants      = "participants"
	ResourceConversationUsers = "conversation-users"
)

// QueryKey identifies a cached query: a resource plus ordered parameters.
// Both the fetch path and the reconciler build keys through the helpers below.
type QueryKey struct {
	Resource string
	Params   []string
}

func NewQueryKey(resource string, params ...string) QueryKey {
	return QueryKey{Resource: resource, Params: params}
}

// String is a stable serialization, usable as a map key.
func (k QueryKey) String() string {
	parts := append([]string{k.Resource}, k.Params...)
	raw, _ := json.Marshal(parts)
	return string(raw)
}

// HasPrefix reports whether prefix names k or a group of keys containing k.
func (k QueryKey) HasPrefix(prefix QueryKey) bool {
	if k.Resource != prefix.Resource || len(prefix.Params) > len(k.Params) {
		return false
	}
	for i, p := range prefix.Params {
		if k.Params[i] != p {
			return false
		}
	}
	return true
}

func (k QueryKey) Equal(o QueryKey) bool {
	return k.Resource == o.Resource && slices.Equal(k.Params, o.Params)
}

func (k QueryKey) clone() QueryKey {
	return QueryKey{Resource: k.Resource, Params: slices.Clone(k.Params)}
}

// ConversationID returns the conversation a per-conversation key belongs to.
func (k QueryKey) ConversationID() string {
	if k.Resource == ResourceConversations || len(k.Params) == 0 {
		return ""
	}
	return k.Params[0]
}

func ConversationsKey(page, pageSize int) QueryKey {
	return NewQueryKey(ResourceConversations, strconv.Itoa(page), strconv.Itoa(pageSize))
}

func ConversationsPrefix() QueryKey {
	return NewQueryKey(ResourceConversations)
}

func ConversationKey(conversationID string) QueryKey {
	return NewQueryKey(ResourceConversation, conversationID)
}

func MessagesKey(conversationID string, limit int) QueryKey {
	return NewQueryKey(ResourceMessages, conversationID, strconv.Itoa(limit))
}

func MessagesPrefix(conversationID string) QueryKey {
	return NewQueryKey(ResourceMessages, conversationID)
}

func ParticipantsKey(conversationID string, page, pageSize int) QueryKey {
	return NewQueryKey(ResourceParticipants, conversationID, strconv.Itoa(page), strconv.Itoa(pageSize))
}

func ParticipantsPrefix(conversationID string) QueryKey {
	return NewQueryKey(ResourceParticipants, conversationID)
}

// ConversationUsersKey is order-insensitive in userIDs.
func ConversationUsersKey(conversationID string, userIDs []string) QueryKey {
	ids := slices.Clone(userIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	return NewQueryKey(ResourceConversationUsers, conversationID, strings.Join(ids, ","))
}

func ConversationUsersPrefix(conversationID string) QueryKey {
	return NewQueryKey(ResourceConversationUsers, conversationID)
}
