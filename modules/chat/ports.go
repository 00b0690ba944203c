package chat

import (
	"context"
	"time"

	domain "github.com/example/company-chat/domain/chat"
	"github.com/example/company-chat/modules/attachments"
	"github.com/example/company-chat/modules/broadcast"
	"github.com/example/company-chat/modules/directory"
)

// RoomDirectory is the authoritative room registry.
type RoomDirectory interface {
	CreateRoom(ctx context.Context, creator domain.Principal, name string, memberIDs []string) (*domain.Room, error)
	GetRoom(ctx context.Context, roomID string) (*domain.Room, error)
	IsMember(ctx context.Context, roomID string, principal domain.Principal) (bool, error)
	RoomsFor(ctx context.Context, principalID string) ([]*domain.Room, error)
	RemoveMember(ctx context.Context, roomID, principalID string) (bool, error)
	DeleteRoom(ctx context.Context, roomID, requesterID string) (directory.CascadeResult, error)
}

// MessageStore persists room messages.
type MessageStore interface {
	Insert(ctx context.Context, msg *domain.Message) error
	Get(ctx context.Context, id string) (*domain.Message, error)
	UpdateBody(ctx context.Context, id, body string, editedAt time.Time) error
	Delete(ctx context.Context, id string) error
	ListByRoom(ctx context.Context, roomID string, query domain.HistoryQuery) ([]*domain.Message, error)
}

// Publisher owns transport groups and delivers frames to connections.
type Publisher interface {
	JoinGroup(clientID, group string) bool
	LeaveGroup(clientID, group string) bool
	JoinPrincipalToGroup(principalID, group string) []string
	RemovePrincipalFromGroup(principalID, group string) []string
	DropGroup(group string) []string
	InGroup(clientID, group string) bool
	Emit(clientID, event string, data any)
	EmitToPrincipal(principalID, event string, shape broadcast.Shaper) int
	EmitToGroup(group, event string, shape broadcast.Shaper)
	Broadcast(group, event string, data any)
}

// AttachmentStore holds attachment bytes.
type AttachmentStore interface {
	Upload(ctx context.Context, kind domain.AttachmentKind, roomID, name, mime string, data []byte) (*domain.Attachment, error)
	Download(ctx context.Context, att *domain.Attachment) ([]byte, error)
	Delete(ctx context.Context, att *domain.Attachment) error
}

// RoomNotifier announces room lifecycle changes outside the request path.
type RoomNotifier interface {
	RoomCreated(room *domain.Room, invitees []string) error
	RoomDeleted(roomID, tenantID, deletedBy string, result directory.CascadeResult) error
}

// Compile-time interface checks.
var (
	_ RoomDirectory   = (*directory.Directory)(nil)
	_ MessageStore    = (*directory.MessageStore)(nil)
	_ Publisher       = (*broadcast.Hub)(nil)
	_ AttachmentStore = (*attachments.Service)(nil)
)
