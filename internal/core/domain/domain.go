package domain

import "time"

// Record is a server read-model row kept as decoded JSON. Identity lives in "id".
type Record map[string]any

func (r Record) ID() string {
	return r.String("id")
}

func (r Record) String(field string) string {
	if s, ok := r[field].(string); ok {
		return s
	}
	return ""
}

// Merge shallow-merges fields into r.
func (r Record) Merge(fields Record) {
	for k, v := range fields {
		r[k] = v
	}
}

func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Record(t).Clone())
	case Record:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

// Message mirrors the server MessageDTO.
type Message struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Text           string    `json:"text,omitempty"`
	Type           string    `json:"type"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
}

// Conversation is the row shown in the conversation list.
type Conversation struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Avatar      string   `json:"avatar"`
	Type        string   `json:"type"`
	LastMessage *Message `json:"last_message"`
}

// ConversationFull is the single-conversation view.
type ConversationFull struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Avatar            string    `json:"avatar"`
	CreatedAt         time.Time `json:"created_at"`
	Type              string    `json:"type"`
	Joined            bool      `json:"joined"`
	ParticipantsCount int64     `json:"participants_count"`
	IsOwner           bool      `json:"is_owner"`
}

type User struct {
	ID     string `json:"id"`
	Avatar string `json:"avatar"`
	Name   string `json:"name"`
}

// MessagePage is one cursor page of a conversation timeline.
type MessagePage struct {
	Messages   []Record `json:"messages"`
	NextCursor string   `json:"next_cursor,omitempty"`
	HasMore    bool     `json:"has_more"`
}

// ConnState is the connectivity signal surfaced to consumers.
type ConnState int

const (
	StateClosed ConnState = iota
	StateConnecting
	StateOpen
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}
