package domain

import "errors"

var (
	ErrMalformedFrame        = errors.New("malformed frame")
	ErrMissingKind           = errors.New("frame has no event type")
	ErrMissingConversationID = errors.New("event has no conversation id")
	ErrMissingRecordID       = errors.New("record has no id")
	ErrNotOpen               = errors.New("connection is not open")
	ErrSendBufferFull        = errors.New("send buffer full")
	ErrReconnectExhausted    = errors.New("reconnect attempts exhausted")
	ErrTokenExpired          = errors.New("session token expired")
	ErrInvalidToken          = errors.New("invalid session token")
	ErrEntryNotFound         = errors.New("cache entry not found")
)
