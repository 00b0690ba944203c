package chat

import (
	"slices"
	"time"
)

// Principal is an authenticated actor resolved for a single connection or request.
type Principal struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	TenantName  string `json:"tenantName"`
	Role        Role   `json:"role"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// Room is an explicit, persisted room. The implicit tenant room has no Room value.
type Room struct {
	ID        string    `json:"roomId"`
	Name      string    `json:"roomName"`
	TenantID  string    `json:"tenantId"`
	CreatorID string    `json:"creator"`
	Members   []string  `json:"users"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasMember reports whether principalID is in the room roster.
func (r *Room) HasMember(principalID string) bool {
	return slices.Contains(r.Members, principalID)
}

// Clone returns a copy that does not share the member slice.
func (r *Room) Clone() *Room {
	c := *r
	c.Members = slices.Clone(r.Members)
	return &c
}

// AttachmentKind tags the attachment variant of a message.
type AttachmentKind string

const (
	AttachmentFile  AttachmentKind = "file"
	AttachmentVoice AttachmentKind = "voice"
)

// Valid reports whether k is a known attachment namespace.
func (k AttachmentKind) Valid() bool {
	return k == AttachmentFile || k == AttachmentVoice
}

// Attachment references an object held by the attachment store.
type Attachment struct {
	Kind AttachmentKind `json:"kind"`
	Key  string         `json:"key"`
	Name string         `json:"name"`
	MIME string         `json:"mime"`
	Size int64          `json:"size"`
}

// Message is a persisted room message. A nil Attachment is a plain text message.
type Message struct {
	ID                string      `json:"id"`
	RoomID            string      `json:"roomId"`
	TenantID          string      `json:"tenantId"`
	AuthorID          string      `json:"authorId"`
	AuthorDisplayName string      `json:"authorDisplayName"`
	AuthorTenantName  string      `json:"authorTenantName"`
	Body              string      `json:"body"`
	CreatedAt         time.Time   `json:"createdAt"`
	EditedAt          *time.Time  `json:"editedAt,omitempty"`
	Attachment        *Attachment `json:"attachment,omitempty"`
	System            bool        `json:"system,omitempty"`
}

// HistoryQuery selects one page of a room's history. BeforeID, when set, is
// the id of the oldest message already seen and takes precedence over Before.
type HistoryQuery struct {
	Limit    int
	Before   time.Time
	BeforeID string
}

// PresenceEntry is one principal currently online in a room.
type PresenceEntry struct {
	PrincipalID string `json:"userId"`
	DisplayName string `json:"displayName"`
}
