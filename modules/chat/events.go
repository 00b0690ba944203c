package chat

import (
	domain "github.com/example/company-chat/domain/chat"
	"github.com/example/company-chat/modules/broadcast"
	"github.com/example/company-chat/modules/presence"
)

// Client to server events.
const (
	EventCreateRoom    = "createRoom"
	EventJoinRoom      = "joinRoom"
	EventLeaveRoom     = "leaveRoom"
	EventSendMessage   = "sendMessage"
	EventEditMessage   = "editMessage"
	EventDeleteMessage = "deleteMessage"
	EventTyping        = "typing"
	EventStopTyping    = "stopTyping"
	EventDeleteRoom    = "deleteRoom"
)

// Server to client events.
const (
	EventRoomCreated       = broadcast.EventRoomCreated
	EventNewMessage        = "newMessage"
	EventMessageUpdated    = "messageUpdated"
	EventMessageDeleted    = "messageDeleted"
	EventRoomLeft          = "roomLeft"
	EventUserLeftRoom      = "userLeftRoom"
	EventUserJoined        = "userJoined"
	EventOnlineUsersUpdate = "onlineUsersUpdate"
	EventUserTyping        = "userTyping"
	EventUserStoppedTyping = "userStoppedTyping"
	EventRoomDeleted       = "roomDeleted"
	EventFilesDeleted      = "filesDeleted"
	EventVoicesDeleted     = "voicesDeleted"
	EventErrorMessage      = "errorMessage"
)

// RoomRef identifies a room in events that carry nothing else.
type RoomRef struct {
	RoomID string `json:"roomId"`
}

// MemberEvent reports a principal entering, leaving or typing in a room.
// Identity fields are empty for viewers that may not see identities.
type MemberEvent struct {
	RoomID      string `json:"roomId"`
	UserID      string `json:"userId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// MessageDeleted is the messageDeleted payload.
type MessageDeleted struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
}

// DeletedCount is the filesDeleted and voicesDeleted payload.
type DeletedCount struct {
	RoomID string `json:"roomId"`
	Count  int    `json:"count"`
}

// RoomListing is one entry of a principal's room list.
type RoomListing struct {
	domain.RoomView
	Online      int  `json:"online"`
	CompanyRoom bool `json:"companyRoom"`
}

func roomShaper(room *domain.Room) broadcast.Shaper {
	return func(viewer domain.Principal) (any, bool) {
		return domain.NewRoomView(viewer, room), true
	}
}

func messageShaper(msg *domain.Message) broadcast.Shaper {
	return func(viewer domain.Principal) (any, bool) {
		return domain.NewMessageView(viewer, msg), true
	}
}

func staticShaper(payload any) broadcast.Shaper {
	return func(domain.Principal) (any, bool) {
		return payload, true
	}
}

// memberShaper hides the subject's identity from viewers without identity
// visibility. The subject itself is skipped.
func memberShaper(roomID string, subject domain.Principal) broadcast.Shaper {
	return func(viewer domain.Principal) (any, bool) {
		if viewer.ID == subject.ID {
			return nil, false
		}
		if !domain.PolicyFor(viewer.Role).SeesIdentities {
			return MemberEvent{RoomID: roomID}, true
		}
		return MemberEvent{RoomID: roomID, UserID: subject.ID, DisplayName: subject.DisplayName}, true
	}
}

// typingShaper reaches only other principals allowed to see typing.
func typingShaper(roomID string, subject domain.Principal) broadcast.Shaper {
	return func(viewer domain.Principal) (any, bool) {
		if viewer.ID == subject.ID || !domain.PolicyFor(viewer.Role).SeesTyping {
			return nil, false
		}
		return MemberEvent{RoomID: roomID, UserID: subject.ID, DisplayName: subject.DisplayName}, true
	}
}

func presenceShaper(roomID string, snapshot []domain.PresenceEntry) broadcast.Shaper {
	return func(viewer domain.Principal) (any, bool) {
		return presence.Shape(viewer.Role, roomID, snapshot), true
	}
}
