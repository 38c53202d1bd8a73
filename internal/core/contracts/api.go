package contracts

import (
	"context"

	"chatsync/internal/core/domain"
)

// ChatAPI is the request/response side of the chat service. The query layer
// reads through it; commands go straight to the server and come back as push
// events.
type ChatAPI interface {
	GetConversations(ctx context.Context, page, pageSize int) ([]domain.Record, error)
	GetConversation(ctx context.Context, conversationID string) (domain.Record, error)
	// GetMessages returns one timeline page; an empty cursor asks for the newest.
	GetMessages(ctx context.Context, conversationID, cursor string, limit int) (domain.MessagePage, error)
	GetParticipants(ctx context.Context, conversationID string, page, pageSize int) ([]domain.Record, error)
	GetUser(ctx context.Context) (domain.User, error)

	CreateConversation(ctx context.Context, name string) (string, error)
	RenameConversation(ctx context.Context, conversationID, name string) error
	DeleteConversation(ctx context.Context, conversationID string) error
	JoinConversation(ctx context.Context, conversationID string) error
	LeaveConversation(ctx context.Context, conversationID string) error
	InviteUser(ctx context.Context, conversationID, userID string) error
	KickUser(ctx context.Context, conversationID, userID string) error
}
