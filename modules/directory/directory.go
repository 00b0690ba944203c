package directory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	domain "github.com/example/company-chat/domain/chat"
	"github.com/go-monolith/mono/pkg/types"
	nanoid "github.com/jaevor/go-nanoid"
	"golang.org/x/sync/singleflight"
)

const roomSuffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// PrincipalLookup resolves invitees when a room is created.
type PrincipalLookup interface {
	FindPrincipals(ctx context.Context, principalIDs []string) ([]domain.Principal, error)
}

// AttachmentPurger removes every stored attachment object of a room in one namespace.
type AttachmentPurger interface {
	PurgeRoomAttachments(ctx context.Context, roomID string, kind domain.AttachmentKind) (int, error)
}

// CascadeResult reports what a room teardown actually removed.
type CascadeResult struct {
	Files    int      `json:"deletedFiles"`
	Voices   int      `json:"deletedVoices"`
	Messages int64    `json:"deletedMessages"`
	Rooms    int      `json:"deletedRooms"`
	Errors   []string `json:"errors,omitempty"`
}

// Complete reports whether every cascade step succeeded.
func (r CascadeResult) Complete() bool {
	return len(r.Errors) == 0
}

// Directory is the registry of explicit rooms. Persisted storage is authoritative;
// rooms are mirrored into an in-memory cache the first time they are touched.
// Every mutation writes storage first, then the cache.
type Directory struct {
	rooms    *RoomRepository
	messages *MessageStore
	lookup   PrincipalLookup
	purger   AttachmentPurger
	logger   types.Logger
	newID    func() string
	now      func() time.Time

	mu    sync.RWMutex
	cache map[string]*domain.Room
	loads singleflight.Group
}

// NewDirectory creates a room directory.
func NewDirectory(rooms *RoomRepository, messages *MessageStore, lookup PrincipalLookup, purger AttachmentPurger, logger types.Logger) (*Directory, error) {
	gen, err := nanoid.CustomASCII(roomSuffixAlphabet, 9)
	if err != nil {
		return nil, fmt.Errorf("failed to create room id generator: %w", err)
	}
	return &Directory{
		rooms:    rooms,
		messages: messages,
		lookup:   lookup,
		purger:   purger,
		logger:   logger,
		newID:    gen,
		now:      time.Now,
		cache:    make(map[string]*domain.Room),
	}, nil
}

// Messages returns the message store backing this directory.
func (d *Directory) Messages() *MessageStore {
	return d.messages
}

// CreateRoom creates an explicit room owned by creator. Every invitee must be a
// principal of the creator's tenant; the creator is always a member.
func (d *Directory) CreateRoom(ctx context.Context, creator domain.Principal, name string, memberIDs []string) (*domain.Room, error) {
	if err := domain.ValidateRoomName(name); err != nil {
		return nil, err
	}
	if err := domain.ValidateMembers(memberIDs); err != nil {
		return nil, err
	}

	members := []string{creator.ID}
	for _, id := range memberIDs {
		if !slices.Contains(members, id) {
			members = append(members, id)
		}
	}

	if invitees := members[1:]; len(invitees) > 0 {
		found, err := d.lookup.FindPrincipals(ctx, invitees)
		if err != nil {
			return nil, err
		}
		sameTenant := make(map[string]bool, len(found))
		for _, p := range found {
			if p.TenantID == creator.TenantID {
				sameTenant[p.ID] = true
			}
		}
		for _, id := range invitees {
			// Unknown and foreign principals get the same answer so tenants cannot enumerate each other.
			if !sameTenant[id] {
				return nil, fmt.Errorf("%w: user %s is not part of your company", domain.ErrValidation, id)
			}
		}
	}

	now := d.now()
	room := &domain.Room{
		ID:        domain.ExplicitRoomID(now, d.newID()),
		Name:      name,
		TenantID:  creator.TenantID,
		CreatorID: creator.ID,
		Members:   members,
		CreatedAt: now,
	}
	if err := d.rooms.Create(ctx, room); err != nil {
		return nil, err
	}

	d.put(room)
	d.logger.Info("Room created", "roomID", room.ID, "tenantID", room.TenantID, "members", len(members))
	return room.Clone(), nil
}

// GetRoom returns an explicit room, reading through the cache.
func (d *Directory) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	if room, ok := d.cached(roomID); ok {
		return room, nil
	}
	if !domain.IsExplicitRoom(roomID) {
		return nil, ErrNotFound
	}
	// Concurrent misses for the same room share one storage read.
	val, err, _ := d.loads.Do(roomID, func() (any, error) {
		room, err := d.rooms.FindByID(ctx, roomID)
		if err != nil {
			return nil, err
		}
		d.put(room)
		return room, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*domain.Room).Clone(), nil
}

// IsMember reports whether principal belongs to roomID. Every principal is a
// member of its own tenant room.
func (d *Directory) IsMember(ctx context.Context, roomID string, principal domain.Principal) (bool, error) {
	if tenant, ok := domain.TenantOfRoom(roomID); ok {
		return tenant == principal.TenantID, nil
	}
	room, err := d.GetRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	return room.TenantID == principal.TenantID && room.HasMember(principal.ID), nil
}

// RoomsFor returns every explicit room principalID belongs to and caches them.
func (d *Directory) RoomsFor(ctx context.Context, principalID string) ([]*domain.Room, error) {
	rooms, err := d.rooms.FindByMember(ctx, principalID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Room, 0, len(rooms))
	for _, room := range rooms {
		d.put(room)
		out = append(out, room.Clone())
	}
	return out, nil
}

// RemoveMember pulls principalID from the roster. When nobody is left the room
// is torn down and reaped reports true. A teardown that leaves the room record
// behind fails with ErrReapIncomplete after the roster change is committed.
func (d *Directory) RemoveMember(ctx context.Context, roomID, principalID string) (reaped bool, err error) {
	remaining, err := d.rooms.RemoveMember(ctx, roomID, principalID)
	if err != nil {
		return false, err
	}

	d.mu.Lock()
	if room, ok := d.cache[roomID]; ok {
		room.Members = slices.DeleteFunc(room.Members, func(id string) bool { return id == principalID })
	}
	d.mu.Unlock()

	if remaining > 0 {
		return false, nil
	}

	result := d.cascade(ctx, roomID)
	if result.Rooms == 0 && len(result.Errors) > 0 {
		d.logger.Warn("Abandoned room could not be reaped", "roomID", roomID, "errors", result.Errors)
		return false, fmt.Errorf("%w: %s", ErrReapIncomplete, strings.Join(result.Errors, "; "))
	}
	d.logger.Info("Abandoned room reaped", "roomID", roomID, "messages", result.Messages, "errors", len(result.Errors))
	return true, nil
}

// DeleteRoom tears down a room on behalf of its creator. Cascade steps are
// independent: each is attempted even if an earlier one failed, and the result
// reports what was actually removed.
func (d *Directory) DeleteRoom(ctx context.Context, roomID, requesterID string) (CascadeResult, error) {
	if domain.IsTenantRoom(roomID) {
		return CascadeResult{}, fmt.Errorf("%w: the company room cannot be deleted", domain.ErrForbidden)
	}
	room, err := d.GetRoom(ctx, roomID)
	if err != nil {
		return CascadeResult{}, err
	}
	if room.CreatorID != requesterID {
		return CascadeResult{}, fmt.Errorf("%w: only the room creator can delete this room", domain.ErrForbidden)
	}

	result := d.cascade(ctx, roomID)
	d.logger.Info("Room deleted",
		"roomID", roomID,
		"files", result.Files,
		"voices", result.Voices,
		"messages", result.Messages,
		"rooms", result.Rooms,
		"errors", len(result.Errors))
	return result, nil
}

func (d *Directory) cascade(ctx context.Context, roomID string) CascadeResult {
	var result CascadeResult

	if d.purger != nil {
		for _, kind := range []domain.AttachmentKind{domain.AttachmentFile, domain.AttachmentVoice} {
			n, err := d.purger.PurgeRoomAttachments(ctx, roomID, kind)
			if kind == domain.AttachmentFile {
				result.Files = n
			} else {
				result.Voices = n
			}
			if err != nil {
				d.logger.Warn("Attachment purge failed", "roomID", roomID, "kind", kind, "error", err)
				result.Errors = append(result.Errors, fmt.Sprintf("%s purge: %v", kind, err))
			}
		}
	}

	n, err := d.messages.DeleteByRoom(ctx, roomID)
	result.Messages = n
	if err != nil {
		d.logger.Warn("Message purge failed", "roomID", roomID, "error", err)
		result.Errors = append(result.Errors, fmt.Sprintf("message purge: %v", err))
	}

	deleted, err := d.rooms.Delete(ctx, roomID)
	if err != nil {
		d.logger.Warn("Room record deletion failed", "roomID", roomID, "error", err)
		result.Errors = append(result.Errors, fmt.Sprintf("room deletion: %v", err))
	}
	if deleted {
		result.Rooms = 1
	}
	if err == nil {
		d.Evict(roomID)
	}
	return result
}

// Evict drops a room from the cache. The next access reloads it from storage.
func (d *Directory) Evict(roomID string) {
	d.mu.Lock()
	delete(d.cache, roomID)
	d.mu.Unlock()
}

// CachedRooms returns the number of rooms currently mirrored in memory.
func (d *Directory) CachedRooms() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.cache)
}

func (d *Directory) cached(roomID string) (*domain.Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	room, ok := d.cache[roomID]
	if !ok {
		return nil, false
	}
	return room.Clone(), true
}

func (d *Directory) put(room *domain.Room) {
	d.mu.Lock()
	d.cache[room.ID] = room.Clone()
	d.mu.Unlock()
}
