package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// EventKind is the "type" discriminator of a push event.
type EventKind string

// Inbound kinds.
const (
	KindMessage             EventKind = "message"
	KindConversationUpdated EventKind = "conversation_updated"
	KindConversationDeleted EventKind = "conversation_deleted"
	KindParticipantJoined   EventKind = "participant_joined"
	KindParticipantLeft     EventKind = "participant_left"
	KindParticipantInvited  EventKind = "participant_invited"
	KindParticipantKicked   EventKind = "participant_kicked"
)

// Outbound kinds.
const (
	KindGroupMessage      EventKind = "group_message"
	KindDirectMessage     EventKind = "direct_message"
	KindJoinConversation  EventKind = "join_conversation"
	KindLeaveConversation EventKind = "leave_conversation"
)

// PushEvent is one decoded server notification.
type PushEvent struct {
	Kind EventKind       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Frame is the inbound wire shape: either a single event or a batch.
type Frame struct {
	Type   EventKind       `json:"type,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	UserID string          `json:"user_id,omitempty"`
	Events []PushEvent     `json:"events,omitempty"`
}

// Envelope is the outbound wire shape.
type Envelope struct {
	Type EventKind `json:"type"`
	Data any       `json:"data"`
}

// InboundFrame is a raw frame read from one connection. Ctx is cancelled
// when that connection is torn down or the client disconnects.
type InboundFrame struct {
	Ctx    context.Context
	ConnID string
	Data   []byte
}

// ChatMessagePayload is the data of group_message and direct_message.
type ChatMessagePayload struct {
	Content        string `json:"content"`
	ConversationID string `json:"conversation_id"`
	ClientMsgID    string `json:"client_msg_id,omitempty"`
}

// ConversationRef is the data of conversation_deleted and join/leave commands.
type ConversationRef struct {
	ConversationID string `json:"conversation_id"`
}

// ParticipantChange is the data of the participant_* events.
type ParticipantChange struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id,omitempty"`
}

// DecodeFrame turns one raw frame into its events, preserving batch order.
func DecodeFrame(raw []byte) ([]PushEvent, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	// an empty array still marks a batch
	if f.Events != nil {
		return f.Events, nil
	}
	if f.Type == "" {
		return nil, ErrMissingKind
	}
	return []PushEvent{{Kind: f.Type, Data: f.Data}}, nil
}

// Record decodes the event data as a generic record.
func (e PushEvent) Record() (Record, error) {
	var r Record
	if len(bytes.TrimSpace(e.Data)) == 0 {
		return nil, fmt.Errorf("%w: %s has no data", ErrMalformedFrame, e.Kind)
	}
	if err := json.Unmarshal(e.Data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if r == nil {
		return nil, fmt.Errorf("%w: %s data is null", ErrMalformedFrame, e.Kind)
	}
	return r, nil
}

// ConversationID extracts the conversation the event is about.
func (e PushEvent) ConversationID() (string, error) {
	r, err := e.Record()
	if err != nil {
		return "", err
	}
	var id string
	switch e.Kind {
	case KindConversationUpdated:
		id = r.ID()
	default:
		id = r.String("conversation_id")
	}
	if id == "" {
		return "", ErrMissingConversationID
	}
	return id, nil
}

// IsParticipantChange groups the membership kinds.
func (k EventKind) IsParticipantChange() bool {
	switch k {
	case KindParticipantJoined, KindParticipantLeft, KindParticipantInvited, KindParticipantKicked:
		return true
	}
	return false
}
