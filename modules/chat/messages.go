package chat

import (
	"context"
	"fmt"

	domain "github.com/example/company-chat/domain/chat"
	"github.com/example/company-chat/modules/broadcast"
)

// SendMessage persists a text message and fans it out to the room, shaped
// per recipient. The sender always gets its own copy.
func (s *Service) SendMessage(ctx context.Context, connID, roomID, body string) (*domain.Message, error) {
	sess, err := s.session(connID)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	if err := domain.ValidateMessage(body); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(roomID)
	defer unlock()

	if err := s.authorize(ctx, roomID, sess.Principal); err != nil {
		return nil, err
	}
	msg := s.newMessage(sess.Principal, roomID, body)
	if err := s.messages.Insert(ctx, msg); err != nil {
		return nil, err
	}
	s.fanOut(roomID, sess, EventNewMessage, messageShaper(msg))
	return msg, nil
}

// SendAttachment stores an uploaded file or voice clip and relays it as a
// message. The object is removed again if the message cannot be saved.
func (s *Service) SendAttachment(ctx context.Context, principal domain.Principal, roomID string, kind domain.AttachmentKind, name, mime string, data []byte) (*domain.Message, error) {
	if err := domain.ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown attachment kind %q", domain.ErrValidation, kind)
	}
	if s.attachments == nil {
		return nil, fmt.Errorf("%w: attachment storage is not configured", domain.ErrDependency)
	}
	if err := s.authorize(ctx, roomID, principal); err != nil {
		return nil, err
	}

	att, err := s.attachments.Upload(ctx, kind, roomID, name, mime, data)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(roomID)
	defer unlock()

	msg := s.newMessage(principal, roomID, att.Name)
	msg.Attachment = att
	if err := s.messages.Insert(ctx, msg); err != nil {
		if derr := s.attachments.Delete(ctx, att); derr != nil {
			s.logger.Warn("Failed to remove orphaned attachment", "key", att.Key, "error", derr)
		}
		return nil, err
	}
	s.fanOut(roomID, nil, EventNewMessage, messageShaper(msg))
	s.logger.Info("Attachment sent", "roomID", roomID, "kind", string(kind), "size", att.Size)
	return msg, nil
}

// EditMessage replaces the body of one of the author's own messages.
func (s *Service) EditMessage(ctx context.Context, connID, roomID, messageID, body string) (*domain.Message, error) {
	sess, err := s.session(connID)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	if err := domain.ValidateMessageID(messageID); err != nil {
		return nil, err
	}
	if err := domain.ValidateMessage(body); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(roomID)
	defer unlock()

	msg, err := s.ownMessage(ctx, sess.Principal, roomID, messageID)
	if err != nil {
		return nil, err
	}
	editedAt := s.now()
	if err := s.messages.UpdateBody(ctx, messageID, body, editedAt); err != nil {
		return nil, err
	}
	msg.Body = body
	msg.EditedAt = &editedAt

	s.fanOut(roomID, sess, EventMessageUpdated, messageShaper(msg))
	return msg, nil
}

// DeleteMessage removes one of the author's own messages, and its
// attachment object if any.
func (s *Service) DeleteMessage(ctx context.Context, connID, roomID, messageID string) error {
	sess, err := s.session(connID)
	if err != nil {
		return err
	}
	_, err = s.deleteMessage(ctx, sess.Principal, sess, roomID, messageID, false)
	return err
}

// DeleteAttachment removes an attachment message by id on behalf of its author.
func (s *Service) DeleteAttachment(ctx context.Context, principal domain.Principal, messageID string) (*domain.Message, error) {
	if err := domain.ValidateMessageID(messageID); err != nil {
		return nil, err
	}
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return s.deleteMessage(ctx, principal, nil, msg.RoomID, messageID, true)
}

func (s *Service) deleteMessage(ctx context.Context, principal domain.Principal, sess *Session, roomID, messageID string, attachmentOnly bool) (*domain.Message, error) {
	if err := domain.ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	if err := domain.ValidateMessageID(messageID); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(roomID)
	defer unlock()

	msg, err := s.ownMessage(ctx, principal, roomID, messageID)
	if err != nil {
		return nil, err
	}
	if attachmentOnly && msg.Attachment == nil {
		return nil, fmt.Errorf("%w: attachment", domain.ErrNotFound)
	}
	if err := s.messages.Delete(ctx, messageID); err != nil {
		return nil, err
	}
	if msg.Attachment != nil && s.attachments != nil {
		if err := s.attachments.Delete(ctx, msg.Attachment); err != nil {
			s.logger.Warn("Failed to delete attachment object", "messageID", messageID, "key", msg.Attachment.Key, "error", err)
		}
	}

	s.fanOut(roomID, sess, EventMessageDeleted, staticShaper(MessageDeleted{RoomID: roomID, MessageID: messageID}))
	return msg, nil
}

// ownMessage loads a message of roomID that principal authored and may still act on.
func (s *Service) ownMessage(ctx context.Context, principal domain.Principal, roomID, messageID string) (*domain.Message, error) {
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.RoomID != roomID {
		return nil, fmt.Errorf("%w: message", domain.ErrNotFound)
	}
	if msg.System {
		return nil, fmt.Errorf("%w: system messages cannot be changed", domain.ErrForbidden)
	}
	if msg.AuthorID != principal.ID {
		return nil, fmt.Errorf("%w: only the author can change this message", domain.ErrForbidden)
	}
	if err := s.authorize(ctx, roomID, principal); err != nil {
		return nil, err
	}
	return msg, nil
}

// Typing tells other staff members of the room that the principal is typing.
func (s *Service) Typing(ctx context.Context, connID, roomID string) error {
	return s.typing(ctx, connID, roomID, EventUserTyping)
}

// StopTyping clears the typing indicator.
func (s *Service) StopTyping(ctx context.Context, connID, roomID string) error {
	return s.typing(ctx, connID, roomID, EventUserStoppedTyping)
}

func (s *Service) typing(ctx context.Context, connID, roomID, event string) error {
	sess, err := s.session(connID)
	if err != nil {
		return err
	}
	if err := domain.ValidateRoomID(roomID); err != nil {
		return err
	}
	if err := s.authorize(ctx, roomID, sess.Principal); err != nil {
		return err
	}
	s.pub.EmitToGroup(roomID, event, typingShaper(roomID, sess.Principal))
	return nil
}

// History returns one page of roomID's messages older than the query cursor,
// oldest first, shaped for principal.
func (s *Service) History(ctx context.Context, principal domain.Principal, roomID string, query domain.HistoryQuery) ([]domain.MessageView, error) {
	if err := domain.ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, roomID, principal); err != nil {
		return nil, err
	}
	switch {
	case query.Limit <= 0:
		query.Limit = domain.DefaultHistoryLimit
	case query.Limit > domain.MaxHistoryLimit:
		query.Limit = domain.MaxHistoryLimit
	}
	if query.BeforeID != "" {
		if err := domain.ValidateMessageID(query.BeforeID); err != nil {
			return nil, err
		}
	}

	msgs, err := s.messages.ListByRoom(ctx, roomID, query)
	if err != nil {
		return nil, err
	}
	out := make([]domain.MessageView, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, domain.NewMessageView(principal, msg))
	}
	return out, nil
}

// Download returns an attachment and its bytes for a room member.
func (s *Service) Download(ctx context.Context, principal domain.Principal, messageID string) (*domain.Attachment, []byte, error) {
	if err := domain.ValidateMessageID(messageID); err != nil {
		return nil, nil, err
	}
	if s.attachments == nil {
		return nil, nil, fmt.Errorf("%w: attachment storage is not configured", domain.ErrDependency)
	}
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.authorize(ctx, msg.RoomID, principal); err != nil {
		return nil, nil, err
	}
	if msg.Attachment == nil {
		return nil, nil, fmt.Errorf("%w: attachment", domain.ErrNotFound)
	}
	data, err := s.attachments.Download(ctx, msg.Attachment)
	if err != nil {
		return nil, nil, err
	}
	return msg.Attachment, data, nil
}

func (s *Service) newMessage(author domain.Principal, roomID, body string) *domain.Message {
	return &domain.Message{
		ID:                s.newID(),
		RoomID:            roomID,
		TenantID:          author.TenantID,
		AuthorID:          author.ID,
		AuthorDisplayName: author.DisplayName,
		AuthorTenantName:  author.TenantName,
		Body:              body,
		CreatedAt:         s.now(),
	}
}

// fanOut emits to the room's group and echoes to the originating connection
// when it is not part of the group.
func (s *Service) fanOut(roomID string, origin *Session, event string, shape broadcast.Shaper) {
	s.pub.EmitToGroup(roomID, event, shape)
	if origin == nil || s.pub.InGroup(origin.ID, roomID) {
		return
	}
	if payload, ok := shape(origin.Principal); ok {
		s.pub.Emit(origin.ID, event, payload)
	}
}
