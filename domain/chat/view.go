package chat

import (
	"slices"
	"time"
)

// RoomView is a room as delivered to one viewer. Viewers without identity
// visibility only learn the member count, unless they created the room.
type RoomView struct {
	ID          string    `json:"roomId"`
	Name        string    `json:"roomName"`
	Creator     string    `json:"creator,omitempty"`
	Users       []string  `json:"users,omitempty"`
	MemberCount int       `json:"memberCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewRoomView shapes r for viewer.
func NewRoomView(viewer Principal, r *Room) RoomView {
	v := RoomView{
		ID:          r.ID,
		Name:        r.Name,
		MemberCount: len(r.Members),
		CreatedAt:   r.CreatedAt,
	}
	if PolicyFor(viewer.Role).SeesIdentities || viewer.ID == r.CreatorID {
		v.Creator = r.CreatorID
		v.Users = slices.Clone(r.Members)
	}
	return v
}

// MessageView is a message as delivered to one viewer. AuthorID is withheld
// from viewers that see the tenant-branded shape.
type MessageView struct {
	ID         string      `json:"id"`
	RoomID     string      `json:"roomId"`
	AuthorID   string      `json:"authorId,omitempty"`
	AuthorName string      `json:"authorName"`
	Body       string      `json:"body"`
	CreatedAt  time.Time   `json:"createdAt"`
	EditedAt   *time.Time  `json:"editedAt,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
	System     bool        `json:"system,omitempty"`
}

// NewMessageView shapes msg for viewer.
func NewMessageView(viewer Principal, msg *Message) MessageView {
	v := MessageView{
		ID:         msg.ID,
		RoomID:     msg.RoomID,
		AuthorName: ViewName(viewer, msg),
		Body:       msg.Body,
		CreatedAt:  msg.CreatedAt,
		EditedAt:   msg.EditedAt,
		Attachment: msg.Attachment,
		System:     msg.System,
	}
	if viewer.ID == msg.AuthorID || PolicyFor(viewer.Role).SeesIdentities {
		v.AuthorID = msg.AuthorID
	}
	return v
}
