package events

import (
	"time"

	domain "github.com/example/company-chat/domain/chat"
	"github.com/go-monolith/mono/pkg/helper"
)

// RoomCreatedEvent is emitted after an explicit room is persisted.
// Invitees are the members other than the creator.
type RoomCreatedEvent struct {
	Room      domain.Room `json:"room"`
	Invitees  []string    `json:"invitees"`
	Timestamp time.Time   `json:"timestamp"`
}

// RoomDeletedEvent is emitted after a room teardown, with the counts the
// cascade actually achieved.
type RoomDeletedEvent struct {
	RoomID          string    `json:"roomId"`
	TenantID        string    `json:"tenantId"`
	DeletedBy       string    `json:"deletedBy"`
	DeletedFiles    int64     `json:"deletedFiles"`
	DeletedVoices   int64     `json:"deletedVoices"`
	DeletedMessages int64     `json:"deletedMessages"`
	Timestamp       time.Time `json:"timestamp"`
}

// Event definitions for the chat domain.
var (
	RoomCreatedV1 = helper.EventDefinition[RoomCreatedEvent](
		"chat",
		"RoomCreated",
		"v1",
	)

	RoomDeletedV1 = helper.EventDefinition[RoomDeletedEvent](
		"chat",
		"RoomDeleted",
		"v1",
	)
)
