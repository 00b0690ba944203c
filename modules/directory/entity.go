package directory

import (
	"time"

	domain "github.com/example/company-chat/domain/chat"
)

// RoomRecord is the persisted form of an explicit room.
type RoomRecord struct {
	ID        string `gorm:"primaryKey;type:varchar(64)"`
	Name      string `gorm:"type:varchar(255);not null"`
	TenantID  string `gorm:"type:varchar(64);not null;index"`
	CreatorID string `gorm:"type:varchar(64);not null"`
	CreatedAt time.Time
}

// TableName overrides the default table name.
func (RoomRecord) TableName() string { return "rooms" }

// RoomMemberRecord is one entry of a room roster. The composite key keeps each principal at most once per room.
type RoomMemberRecord struct {
	RoomID      string `gorm:"primaryKey;type:varchar(64)"`
	PrincipalID string `gorm:"primaryKey;type:varchar(64);index"`
	JoinedAt    time.Time
}

// TableName overrides the default table name.
func (RoomMemberRecord) TableName() string { return "room_members" }

// MessageRecord is the persisted form of a room message.
type MessageRecord struct {
	ID                string `gorm:"primaryKey;type:varchar(36)"`
	RoomID            string `gorm:"type:varchar(64);not null;index:idx_messages_room_created,priority:1;uniqueIndex:idx_messages_room_seq,priority:1"`
	Seq               int64  `gorm:"not null;uniqueIndex:idx_messages_room_seq,priority:2"`
	TenantID          string `gorm:"type:varchar(64);not null"`
	AuthorID          string `gorm:"type:varchar(64);not null"`
	AuthorDisplayName string `gorm:"type:varchar(255)"`
	AuthorTenantName  string `gorm:"type:varchar(255)"`
	Body              string `gorm:"type:text"`
	System            bool
	AttachmentKind    string `gorm:"type:varchar(16)"`
	AttachmentKey     string `gorm:"type:varchar(512)"`
	AttachmentName    string `gorm:"type:varchar(255)"`
	AttachmentMIME    string `gorm:"type:varchar(255)"`
	AttachmentSize    int64
	CreatedAt         time.Time `gorm:"index:idx_messages_room_created,priority:2"`
	EditedAt          *time.Time
}

// TableName overrides the default table name.
func (MessageRecord) TableName() string { return "messages" }

// Models lists the tables owned by this package for AutoMigrate.
func Models() []any {
	return []any{&RoomRecord{}, &RoomMemberRecord{}, &MessageRecord{}}
}

func toDomainRoom(r *RoomRecord, members []string) *domain.Room {
	return &domain.Room{
		ID:        r.ID,
		Name:      r.Name,
		TenantID:  r.TenantID,
		CreatorID: r.CreatorID,
		Members:   members,
		CreatedAt: r.CreatedAt,
	}
}

func toMessageRecord(m *domain.Message) *MessageRecord {
	rec := &MessageRecord{
		ID:                m.ID,
		RoomID:            m.RoomID,
		TenantID:          m.TenantID,
		AuthorID:          m.AuthorID,
		AuthorDisplayName: m.AuthorDisplayName,
		AuthorTenantName:  m.AuthorTenantName,
		Body:              m.Body,
		System:            m.System,
		CreatedAt:         m.CreatedAt,
		EditedAt:          m.EditedAt,
	}
	if a := m.Attachment; a != nil {
		rec.AttachmentKind = string(a.Kind)
		rec.AttachmentKey = a.Key
		rec.AttachmentName = a.Name
		rec.AttachmentMIME = a.MIME
		rec.AttachmentSize = a.Size
	}
	return rec
}

func (r *MessageRecord) toDomain() *domain.Message {
	m := &domain.Message{
		ID:                r.ID,
		RoomID:            r.RoomID,
		TenantID:          r.TenantID,
		AuthorID:          r.AuthorID,
		AuthorDisplayName: r.AuthorDisplayName,
		AuthorTenantName:  r.AuthorTenantName,
		Body:              r.Body,
		System:            r.System,
		CreatedAt:         r.CreatedAt,
		EditedAt:          r.EditedAt,
	}
	if r.AttachmentKind != "" {
		m.Attachment = &domain.Attachment{
			Kind: domain.AttachmentKind(r.AttachmentKind),
			Key:  r.AttachmentKey,
			Name: r.AttachmentName,
			MIME: r.AttachmentMIME,
			Size: r.AttachmentSize,
		}
	}
	return m
}
