package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/example/company-chat/domain/chat"
	"github.com/example/company-chat/modules/directory"
)

// CreateRoom creates an explicit room on behalf of the connection's principal.
// Every live connection of every member joins the room before the system
// message is posted; invitees are then notified on their personal channel.
func (s *Service) CreateRoom(ctx context.Context, connID, name string, memberIDs []string) (*domain.Room, error) {
	sess, err := s.session(connID)
	if err != nil {
		return nil, err
	}
	creator := sess.Principal

	room, err := s.dir.CreateRoom(ctx, creator, name, memberIDs)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(room.ID)
	defer unlock()

	// The creator learns about the room before any room traffic reaches it.
	s.pub.EmitToPrincipal(creator.ID, EventRoomCreated, roomShaper(room))

	for _, memberID := range room.Members {
		for _, clientID := range s.pub.JoinPrincipalToGroup(memberID, room.ID) {
			s.attachClient(clientID, room.ID)
		}
	}
	s.broadcastPresence(room.ID)

	s.postSystemMessage(ctx, room, creator, fmt.Sprintf("Room %q was created", room.Name))

	invitees := make([]string, 0, len(room.Members))
	for _, id := range room.Members {
		if id != creator.ID {
			invitees = append(invitees, id)
		}
	}
	s.notifyInvitees(room, invitees)

	return room, nil
}

// attachClient adds a connection that was proactively grouped into a room to
// presence. Connections without a live session are taken out of the group.
func (s *Service) attachClient(clientID, roomID string) {
	sess, ok := s.Session(clientID)
	if !ok {
		s.pub.LeaveGroup(clientID, roomID)
		return
	}
	if _, live := s.attach(sess, roomID); !live {
		s.pub.LeaveGroup(clientID, roomID)
	}
}

func (s *Service) postSystemMessage(ctx context.Context, room *domain.Room, author domain.Principal, body string) {
	msg := &domain.Message{
		ID:                s.newID(),
		RoomID:            room.ID,
		TenantID:          room.TenantID,
		AuthorID:          author.ID,
		AuthorDisplayName: author.DisplayName,
		AuthorTenantName:  author.TenantName,
		Body:              body,
		CreatedAt:         s.now(),
		System:            true,
	}
	if err := s.messages.Insert(ctx, msg); err != nil {
		s.logger.Warn("Failed to save system message", "roomID", room.ID, "error", err)
		return
	}
	s.pub.EmitToGroup(room.ID, EventNewMessage, messageShaper(msg))
}

func (s *Service) notifyInvitees(room *domain.Room, invitees []string) {
	if len(invitees) == 0 {
		return
	}
	if s.notifier != nil {
		err := s.notifier.RoomCreated(room, invitees)
		if err == nil {
			return
		}
		s.logger.Warn("Failed to publish room notification, delivering directly", "roomID", room.ID, "error", err)
	}
	shape := roomShaper(room)
	for _, id := range invitees {
		s.pub.EmitToPrincipal(id, EventRoomCreated, shape)
	}
}

// JoinRoom joins the connection to a room its principal belongs to.
func (s *Service) JoinRoom(ctx context.Context, connID, roomID string) error {
	sess, err := s.session(connID)
	if err != nil {
		return err
	}
	if err := domain.ValidateRoomID(roomID); err != nil {
		return err
	}

	unlock := s.locks.lock(roomID)
	defer unlock()

	if err := s.authorize(ctx, roomID, sess.Principal); err != nil {
		return err
	}
	first, live := s.attach(sess, roomID)
	if !live {
		return fmt.Errorf("%w: connection is closed", domain.ErrUnauthorized)
	}
	if first {
		s.pub.EmitToGroup(roomID, EventUserJoined, memberShaper(roomID, sess.Principal))
	}
	s.broadcastPresence(roomID)
	return nil
}

// LeaveRoom removes the connection's principal from an explicit room. The
// creator may not leave. All of the principal's connections leave the room.
func (s *Service) LeaveRoom(ctx context.Context, connID, roomID string) error {
	sess, err := s.session(connID)
	if err != nil {
		return err
	}
	if err := domain.ValidateRoomID(roomID); err != nil {
		return err
	}
	if domain.IsTenantRoom(roomID) {
		return fmt.Errorf("%w: the company room cannot be left", domain.ErrValidation)
	}
	principal := sess.Principal

	unlock := s.locks.lock(roomID)
	defer unlock()

	room, err := s.dir.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.TenantID != principal.TenantID || !room.HasMember(principal.ID) {
		return fmt.Errorf("%w: you are not a member of this room", domain.ErrForbidden)
	}
	if room.CreatorID == principal.ID {
		return fmt.Errorf("%w: the room creator cannot leave the room, delete it instead", domain.ErrForbidden)
	}

	reaped, err := s.dir.RemoveMember(ctx, roomID, principal.ID)
	if err != nil && !errors.Is(err, directory.ErrReapIncomplete) {
		return err
	}

	// The roster change is committed even when the teardown was not.
	clients := s.pub.RemovePrincipalFromGroup(principal.ID, roomID)
	s.presence.LeavePrincipal(roomID, principal.ID)
	s.pub.EmitToPrincipal(principal.ID, EventRoomLeft, staticShaper(RoomRef{RoomID: roomID}))
	if err != nil {
		s.logger.Warn("Member left but the empty room remains", "roomID", roomID, "principalID", principal.ID, "error", err)
		return err
	}

	if reaped {
		s.presence.DropRoom(roomID)
		s.pub.DropGroup(roomID)
		s.logger.Info("Last member left, room removed", "roomID", roomID, "principalID", principal.ID)
		return nil
	}

	s.pub.EmitToGroup(roomID, EventUserLeftRoom, memberShaper(roomID, principal))
	s.broadcastPresence(roomID)
	s.logger.Info("Member left room", "roomID", roomID, "principalID", principal.ID, "connections", len(clients))
	return nil
}

// DeleteRoom tears down a room on behalf of its creator and reports what the
// cascade removed. When the room record itself could not be deleted no
// roomDeleted event is sent and the error wraps ErrDependency.
func (s *Service) DeleteRoom(ctx context.Context, principal domain.Principal, roomID string) (directory.CascadeResult, error) {
	if err := domain.ValidateRoomID(roomID); err != nil {
		return directory.CascadeResult{}, err
	}

	unlock := s.locks.lock(roomID)
	defer unlock()

	result, err := s.dir.DeleteRoom(ctx, roomID, principal.ID)
	if err != nil {
		return result, err
	}

	if result.Files > 0 {
		s.pub.Broadcast(roomID, EventFilesDeleted, DeletedCount{RoomID: roomID, Count: result.Files})
	}
	if result.Voices > 0 {
		s.pub.Broadcast(roomID, EventVoicesDeleted, DeletedCount{RoomID: roomID, Count: result.Voices})
	}
	if result.Rooms == 0 {
		return result, fmt.Errorf("%w: room deletion incomplete: %s", domain.ErrDependency, strings.Join(result.Errors, "; "))
	}

	s.pub.Broadcast(roomID, EventRoomDeleted, RoomRef{RoomID: roomID})
	s.pub.DropGroup(roomID)
	s.presence.DropRoom(roomID)

	if s.notifier != nil {
		if err := s.notifier.RoomDeleted(roomID, principal.TenantID, principal.ID, result); err != nil {
			s.logger.Warn("Failed to publish room deletion", "roomID", roomID, "error", err)
		}
	}
	return result, nil
}

// DeleteRoomFor deletes a room on behalf of a connection's principal.
func (s *Service) DeleteRoomFor(ctx context.Context, connID, roomID string) (directory.CascadeResult, error) {
	sess, err := s.session(connID)
	if err != nil {
		return directory.CascadeResult{}, err
	}
	return s.DeleteRoom(ctx, sess.Principal, roomID)
}

// RoomsFor lists the tenant room and every explicit room of principal with
// live presence counts.
func (s *Service) RoomsFor(ctx context.Context, principal domain.Principal) ([]RoomListing, error) {
	rooms, err := s.dir.RoomsFor(ctx, principal.ID)
	if err != nil {
		return nil, err
	}

	tenantRoom := domain.TenantRoomID(principal.TenantID)
	out := make([]RoomListing, 0, len(rooms)+1)
	out = append(out, RoomListing{
		RoomView:    domain.RoomView{ID: tenantRoom, Name: domain.TenantBrand(principal.TenantName)},
		Online:      s.presence.Count(tenantRoom),
		CompanyRoom: true,
	})
	for _, room := range rooms {
		if room.TenantID != principal.TenantID {
			continue
		}
		out = append(out, RoomListing{
			RoomView: domain.NewRoomView(principal, room),
			Online:   s.presence.Count(room.ID),
		})
	}
	return out, nil
}
