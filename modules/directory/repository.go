package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/example/company-chat/domain/chat"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a room is not found.
	ErrNotFound = fmt.Errorf("%w: room", domain.ErrNotFound)
	// ErrReapIncomplete is returned when an abandoned room's record survives its teardown.
	ErrReapIncomplete = fmt.Errorf("%w: room teardown incomplete", domain.ErrDependency)

	errNotMember = errors.New("not a member")
)

// RoomRepository persists rooms and their rosters.
type RoomRepository struct {
	db *gorm.DB
}

// NewRoomRepository creates a new room repository.
func NewRoomRepository(db *gorm.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// Create saves a room and its roster in one transaction.
func (r *RoomRepository) Create(ctx context.Context, room *domain.Room) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := &RoomRecord{
			ID:        room.ID,
			Name:      room.Name,
			TenantID:  room.TenantID,
			CreatorID: room.CreatorID,
			CreatedAt: room.CreatedAt,
		}
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		members := make([]RoomMemberRecord, 0, len(room.Members))
		for _, id := range room.Members {
			members = append(members, RoomMemberRecord{RoomID: room.ID, PrincipalID: id, JoinedAt: room.CreatedAt})
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		return fmt.Errorf("%w: failed to create room: %v", domain.ErrDependency, err)
	}
	return nil
}

// FindByID loads a room and its roster.
func (r *RoomRepository) FindByID(ctx context.Context, roomID string) (*domain.Room, error) {
	var rec RoomRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: failed to find room: %v", domain.ErrDependency, err)
	}
	members, err := r.members(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return toDomainRoom(&rec, members), nil
}

// FindByMember returns every room whose roster contains principalID, oldest first.
func (r *RoomRepository) FindByMember(ctx context.Context, principalID string) ([]*domain.Room, error) {
	var recs []RoomRecord
	err := r.db.WithContext(ctx).
		Joins("JOIN room_members ON room_members.room_id = rooms.id").
		Where("room_members.principal_id = ?", principalID).
		Order("rooms.created_at").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list rooms: %v", domain.ErrDependency, err)
	}

	rooms := make([]*domain.Room, 0, len(recs))
	for i := range recs {
		members, err := r.members(ctx, recs[i].ID)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, toDomainRoom(&recs[i], members))
	}
	return rooms, nil
}

// RemoveMember pulls principalID from the roster and returns how many members remain.
func (r *RoomRepository) RemoveMember(ctx context.Context, roomID, principalID string) (int64, error) {
	var remaining int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&RoomMemberRecord{}, "room_id = ? AND principal_id = ?", roomID, principalID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errNotMember
		}
		return tx.Model(&RoomMemberRecord{}).Where("room_id = ?", roomID).Count(&remaining).Error
	})
	if errors.Is(err, errNotMember) {
		return 0, fmt.Errorf("%w: %s is not a member of %s", domain.ErrNotFound, principalID, roomID)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: failed to remove member: %v", domain.ErrDependency, err)
	}
	return remaining, nil
}

// Delete removes the room record and its roster. It reports whether a room was deleted.
func (r *RoomRepository) Delete(ctx context.Context, roomID string) (bool, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&RoomMemberRecord{}, "room_id = ?", roomID).Error; err != nil {
			return err
		}
		result := tx.Delete(&RoomRecord{}, "id = ?", roomID)
		deleted = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return false, fmt.Errorf("%w: failed to delete room: %v", domain.ErrDependency, err)
	}
	return deleted > 0, nil
}

func (r *RoomRepository) members(ctx context.Context, roomID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&RoomMemberRecord{}).
		Where("room_id = ?", roomID).
		Order("joined_at, principal_id").
		Pluck("principal_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load members: %v", domain.ErrDependency, err)
	}
	return ids, nil
}

// MessageStore persists room messages.
type MessageStore struct {
	db *gorm.DB
}

// NewMessageStore creates a new message store.
func NewMessageStore(db *gorm.DB) *MessageStore {
	return &MessageStore{db: db}
}

// Insert saves a new message as the next entry of its room's sequence.
func (s *MessageStore) Insert(ctx context.Context, msg *domain.Message) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last int64
		if err := tx.Model(&MessageRecord{}).
			Where("room_id = ?", msg.RoomID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&last).Error; err != nil {
			return err
		}
		rec := toMessageRecord(msg)
		rec.Seq = last + 1
		return tx.Create(rec).Error
	})
	if err != nil {
		return fmt.Errorf("%w: failed to save message: %v", domain.ErrDependency, err)
	}
	return nil
}

// Get loads a message by id.
func (s *MessageStore) Get(ctx context.Context, id string) (*domain.Message, error) {
	var rec MessageRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: message", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: failed to find message: %v", domain.ErrDependency, err)
	}
	return rec.toDomain(), nil
}

// UpdateBody replaces a message body and stamps the edit time.
func (s *MessageStore) UpdateBody(ctx context.Context, id, body string, editedAt time.Time) error {
	result := s.db.WithContext(ctx).Model(&MessageRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{"body": body, "edited_at": editedAt})
	if result.Error != nil {
		return fmt.Errorf("%w: failed to update message: %v", domain.ErrDependency, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: message", domain.ErrNotFound)
	}
	return nil
}

// Delete removes a message by id.
func (s *MessageStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&MessageRecord{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("%w: failed to delete message: %v", domain.ErrDependency, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: message", domain.ErrNotFound)
	}
	return nil
}

// ListByRoom returns the newest page of a room's messages older than the
// query cursor, in insertion order.
func (s *MessageStore) ListByRoom(ctx context.Context, roomID string, query domain.HistoryQuery) ([]*domain.Message, error) {
	limit := query.Limit
	if limit <= 0 || limit > domain.MaxHistoryLimit {
		limit = domain.DefaultHistoryLimit
	}

	q := s.db.WithContext(ctx).Where("room_id = ?", roomID)
	switch {
	case query.BeforeID != "":
		var cursor MessageRecord
		err := s.db.WithContext(ctx).Select("seq").
			Where("id = ? AND room_id = ?", query.BeforeID, roomID).
			First(&cursor).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: message %s is not in this room", domain.ErrNotFound, query.BeforeID)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to find history cursor: %v", domain.ErrDependency, err)
		}
		q = q.Where("seq < ?", cursor.Seq)
	case !query.Before.IsZero():
		q = q.Where("created_at < ?", query.Before)
	}

	var recs []MessageRecord
	if err := q.Order("seq DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("%w: failed to list messages: %v", domain.ErrDependency, err)
	}

	out := make([]*domain.Message, len(recs))
	for i := range recs {
		out[len(recs)-1-i] = recs[i].toDomain()
	}
	return out, nil
}

// DeleteByRoom removes every message of a room and returns how many were deleted.
func (s *MessageStore) DeleteByRoom(ctx context.Context, roomID string) (int64, error) {
	result := s.db.WithContext(ctx).Delete(&MessageRecord{}, "room_id = ?", roomID)
	if result.Error != nil {
		return 0, fmt.Errorf("%w: failed to delete room messages: %v", domain.ErrDependency, result.Error)
	}
	return result.RowsAffected, nil
}
