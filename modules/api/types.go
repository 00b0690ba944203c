package api

import (
	"encoding/json"
	"strings"

	domain "github.com/example/company-chat/domain/chat"
	"github.com/example/company-chat/modules/chat"
	"github.com/example/company-chat/modules/directory"
)

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}

// PrincipalListResponse lists the principals of the caller's tenant.
type PrincipalListResponse struct {
	Principals []domain.Principal `json:"principals"`
}

// RoomListResponse is the caller's room list, company room first.
type RoomListResponse struct {
	Rooms []chat.RoomListing `json:"rooms"`
}

// HistoryResponse is a page of room messages, oldest first.
type HistoryResponse struct {
	RoomID   string               `json:"roomId"`
	Messages []domain.MessageView `json:"messages"`
}

// DeleteRoomResponse reports what a room teardown removed.
type DeleteRoomResponse struct {
	RoomID string `json:"roomId"`
	directory.CascadeResult
}

// AttachmentResponse wraps the message created for or removed with an attachment.
type AttachmentResponse struct {
	Message domain.MessageView `json:"message"`
}

// inboundFrame is one client to server socket frame.
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type createRoomRequest struct {
	RoomName string   `json:"roomName"`
	UserIDs  []string `json:"userIds"`
}

type roomRequest struct {
	RoomID string `json:"roomId"`
}

// UnmarshalJSON accepts either a bare room id string or {"roomId": "..."}.
func (r *roomRequest) UnmarshalJSON(b []byte) error {
	if trimmed := strings.TrimSpace(string(b)); strings.HasPrefix(trimmed, `"`) {
		return json.Unmarshal(b, &r.RoomID)
	}
	type plain roomRequest
	return json.Unmarshal(b, (*plain)(r))
}

type sendMessageRequest struct {
	RoomID string `json:"roomId"`
	Body   string `json:"body"`
}

type editMessageRequest struct {
	RoomID     string `json:"roomId"`
	MessageID  string `json:"messageId"`
	NewMessage string `json:"newMessage"`
}

type deleteMessageRequest struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
}
