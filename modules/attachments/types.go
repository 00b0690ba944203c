package attachments

import domain "github.com/example/company-chat/domain/chat"

// ServicePurgeRoomAttachments is the request-reply service used by room teardown.
const ServicePurgeRoomAttachments = "purge-room-attachments"

// PurgeRequest asks for every object of a room in one namespace to be deleted.
type PurgeRequest struct {
	RoomID string                `json:"room_id"`
	Kind   domain.AttachmentKind `json:"kind"`
}

// PurgeResponse reports how many objects were deleted, and an error if not all were.
type PurgeResponse struct {
	Deleted int    `json:"deleted"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}
