package chat

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Validation limits
const (
	MaxRoomNameLength   = 100
	MaxMessageLength    = 5000
	MaxRoomMembers      = 500
	MaxAttachmentName   = 255
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// ValidateRoomName validates a room name.
func ValidateRoomName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: room name cannot be empty", ErrValidation)
	}
	if utf8.RuneCountInString(name) > MaxRoomNameLength {
		return fmt.Errorf("%w: room name exceeds %d characters", ErrValidation, MaxRoomNameLength)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: room name contains invalid characters", ErrValidation)
	}
	return nil
}

// ValidateMembers validates the invitee list of a new room.
func ValidateMembers(ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: at least one member is required", ErrValidation)
	}
	if len(ids) > MaxRoomMembers {
		return fmt.Errorf("%w: a room holds at most %d members", ErrValidation, MaxRoomMembers)
	}
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: member id cannot be empty", ErrValidation)
		}
	}
	return nil
}

// ValidateMessage validates message body content.
func ValidateMessage(body string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("%w: message cannot be empty", ErrValidation)
	}
	if utf8.RuneCountInString(body) > MaxMessageLength {
		return fmt.Errorf("%w: message exceeds %d characters", ErrValidation, MaxMessageLength)
	}
	if !utf8.ValidString(body) {
		return fmt.Errorf("%w: message contains invalid characters", ErrValidation)
	}
	return nil
}

// ValidateMessageID checks that id is a well-formed message id.
func ValidateMessageID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: invalid message id", ErrValidation)
	}
	return nil
}

// ValidateRoomID checks that roomID names either a tenant room or an explicit room.
func ValidateRoomID(roomID string) error {
	if roomID == "" {
		return fmt.Errorf("%w: room id is required", ErrValidation)
	}
	if !IsTenantRoom(roomID) && !IsExplicitRoom(roomID) {
		return fmt.Errorf("%w: invalid room id", ErrValidation)
	}
	return nil
}
