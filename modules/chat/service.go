package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "github.com/example/company-chat/domain/chat"
	"github.com/example/company-chat/modules/presence"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"
)

const autoJoinTimeout = 15 * time.Second

// Session is one authenticated connection bound to a principal for its lifetime.
type Session struct {
	ID          string
	Principal   domain.Principal
	ConnectedAt time.Time

	mu     sync.Mutex
	closed bool
}

// Dependencies are the collaborators of the chat service.
type Dependencies struct {
	Directory   RoomDirectory
	Messages    MessageStore
	Presence    *presence.Tracker
	Publisher   Publisher
	Attachments AttachmentStore
}

// Service is the session gateway, room lifecycle manager and message relay.
// Mutations of one room are serialized by a per-room lock; persistence
// always happens before fan-out.
type Service struct {
	dir         RoomDirectory
	messages    MessageStore
	presence    *presence.Tracker
	pub         Publisher
	attachments AttachmentStore
	notifier    RoomNotifier
	logger      types.Logger
	locks       *roomLocks
	now         func() time.Time
	newID       func() string

	mu       sync.RWMutex
	sessions map[string]*Session

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a chat service.
func NewService(deps Dependencies, logger types.Logger) (*Service, error) {
	switch {
	case deps.Directory == nil:
		return nil, errors.New("room directory is required")
	case deps.Messages == nil:
		return nil, errors.New("message store is required")
	case deps.Presence == nil:
		return nil, errors.New("presence tracker is required")
	case deps.Publisher == nil:
		return nil, errors.New("publisher is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		dir:         deps.Directory,
		messages:    deps.Messages,
		presence:    deps.Presence,
		pub:         deps.Publisher,
		attachments: deps.Attachments,
		logger:      logger,
		locks:       newRoomLocks(),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
		sessions:    make(map[string]*Session),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// SetNotifier sets where room lifecycle announcements are published.
func (s *Service) SetNotifier(n RoomNotifier) {
	s.notifier = n
}

// Close stops background room joins and waits for them to finish.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// Connect binds connID to principal, joins it to the tenant room and then,
// in the background, to every explicit room the principal belongs to. The
// connection must already be registered with the publisher.
func (s *Service) Connect(_ context.Context, connID string, principal domain.Principal) (*Session, error) {
	if connID == "" || principal.ID == "" || principal.TenantID == "" {
		return nil, fmt.Errorf("%w: incomplete session identity", domain.ErrUnauthorized)
	}
	sess := &Session{ID: connID, Principal: principal, ConnectedAt: s.now()}

	s.mu.Lock()
	if _, exists := s.sessions[connID]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: connection %s is already bound", domain.ErrValidation, connID)
	}
	s.sessions[connID] = sess
	s.mu.Unlock()

	tenantRoom := domain.TenantRoomID(principal.TenantID)
	unlock := s.locks.lock(tenantRoom)
	if _, ok := s.attach(sess, tenantRoom); ok {
		s.broadcastPresence(tenantRoom)
	}
	unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.joinExistingRooms(sess)
	}()

	s.logger.Info("Session connected", "connID", connID, "principalID", principal.ID, "tenantID", principal.TenantID, "role", principal.Role.String())
	return sess, nil
}

// Disconnect evicts connID from presence and sends one presence update per
// room the principal is no longer present in. It is safe to call twice.
func (s *Service) Disconnect(connID string) {
	s.mu.Lock()
	sess, ok := s.sessions[connID]
	delete(s.sessions, connID)
	s.mu.Unlock()
	if !ok {
		return
	}

	sess.mu.Lock()
	sess.closed = true
	ended := s.presence.DropConnection(connID)
	sess.mu.Unlock()

	for _, roomID := range ended {
		unlock := s.locks.lock(roomID)
		s.broadcastPresence(roomID)
		unlock()
	}
	s.logger.Info("Session disconnected", "connID", connID, "principalID", sess.Principal.ID, "rooms", len(ended))
}

// Session returns the live session bound to connID.
func (s *Service) Session(connID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[connID]
	return sess, ok
}

// SessionCount returns the number of live sessions.
func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Service) session(connID string) (*Session, error) {
	sess, ok := s.Session(connID)
	if !ok {
		return nil, fmt.Errorf("%w: connection is not authenticated", domain.ErrUnauthorized)
	}
	return sess, nil
}

// joinExistingRooms announces each explicit room to this connection only,
// then joins the connection to it.
func (s *Service) joinExistingRooms(sess *Session) {
	ctx, cancel := context.WithTimeout(s.ctx, autoJoinTimeout)
	defer cancel()

	rooms, err := s.dir.RoomsFor(ctx, sess.Principal.ID)
	if err != nil {
		s.logger.Warn("Failed to load rooms for session", "connID", sess.ID, "principalID", sess.Principal.ID, "error", err)
		s.pub.Emit(sess.ID, EventErrorMessage, domain.PublicMessage(err))
		return
	}

	joined := 0
	for _, room := range rooms {
		if ctx.Err() != nil {
			return
		}
		unlock := s.locks.lock(room.ID)
		if _, live := s.Session(sess.ID); !live {
			unlock()
			return
		}
		// The list may be stale by the time the lock is held.
		if member, err := s.dir.IsMember(ctx, room.ID, sess.Principal); err != nil || !member {
			unlock()
			continue
		}
		s.pub.Emit(sess.ID, EventRoomCreated, domain.NewRoomView(sess.Principal, room))
		if _, ok := s.attach(sess, room.ID); ok {
			s.broadcastPresence(room.ID)
			joined++
		}
		unlock()
	}
	s.logger.Debug("Joined existing rooms", "connID", sess.ID, "rooms", joined)
}

// attach joins the connection to a room's transport group and presence. It
// reports whether the principal became present and whether the session was
// still live. Callers hold the room lock.
func (s *Service) attach(sess *Session, roomID string) (first, ok bool) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return false, false
	}
	s.pub.JoinGroup(sess.ID, roomID)
	first = s.presence.Join(roomID, sess.ID, domain.PresenceEntry{
		PrincipalID: sess.Principal.ID,
		DisplayName: sess.Principal.DisplayName,
	})
	return first, true
}

// broadcastPresence sends the role-shaped presence snapshot to the room.
func (s *Service) broadcastPresence(roomID string) {
	s.pub.EmitToGroup(roomID, EventOnlineUsersUpdate, presenceShaper(roomID, s.presence.Snapshot(roomID)))
}

// authorize fails with ErrForbidden unless principal belongs to roomID.
func (s *Service) authorize(ctx context.Context, roomID string, principal domain.Principal) error {
	ok, err := s.dir.IsMember(ctx, roomID, principal)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: you are not a member of this room", domain.ErrForbidden)
	}
	return nil
}
