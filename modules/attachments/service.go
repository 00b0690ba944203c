package attachments

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	domain "github.com/example/company-chat/domain/chat"
	"github.com/google/uuid"
)

// Service stores attachment bytes, one object store per namespace.
// Keys have the form <roomID>/<uuid>/<file name>.
type Service struct {
	stores   map[domain.AttachmentKind]ObjectStore
	maxBytes int64
}

// NewService creates a new attachment service.
func NewService(files, voices ObjectStore, maxBytes int64) *Service {
	return &Service{
		stores: map[domain.AttachmentKind]ObjectStore{
			domain.AttachmentFile:  files,
			domain.AttachmentVoice: voices,
		},
		maxBytes: maxBytes,
	}
}

// MaxBytes returns the upload size limit; zero means unlimited.
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

func (s *Service) bind(files, voices ObjectStore) {
	s.stores[domain.AttachmentFile] = files
	s.stores[domain.AttachmentVoice] = voices
}

// Upload stores data for roomID and returns the attachment reference to embed in a message.
func (s *Service) Upload(ctx context.Context, kind domain.AttachmentKind, roomID, name, mime string, data []byte) (*domain.Attachment, error) {
	store, err := s.store(kind)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", domain.ErrValidation)
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", domain.ErrValidation, s.maxBytes)
	}
	if mime == "" {
		mime = "application/octet-stream"
	}
	if kind == domain.AttachmentVoice && !isAudio(mime) {
		return nil, fmt.Errorf("%w: voice messages must be audio", domain.ErrValidation)
	}

	name = sanitizeName(name)
	key := roomPrefix(roomID) + uuid.New().String() + "/" + name
	info, err := store.Put(ctx, key, data, mime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDependency, err)
	}

	return &domain.Attachment{
		Kind: kind,
		Key:  key,
		Name: name,
		MIME: mime,
		Size: int64(info.Size),
	}, nil
}

// Download returns the bytes of an attachment.
func (s *Service) Download(ctx context.Context, att *domain.Attachment) ([]byte, error) {
	store, err := s.store(att.Kind)
	if err != nil {
		return nil, err
	}
	data, _, err := store.Get(ctx, att.Key)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: attachment", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrDependency, err)
	}
	return data, nil
}

// Delete removes the object of an attachment. A missing object is not an error.
func (s *Service) Delete(ctx context.Context, att *domain.Attachment) error {
	store, err := s.store(att.Kind)
	if err != nil {
		return err
	}
	if err := store.Delete(ctx, att.Key); err != nil && !errors.Is(err, ErrObjectNotFound) {
		return fmt.Errorf("%w: %v", domain.ErrDependency, err)
	}
	return nil
}

// PurgeRoomAttachments deletes every object of roomID in one namespace and
// returns how many were removed. It keeps going after individual failures.
func (s *Service) PurgeRoomAttachments(ctx context.Context, roomID string, kind domain.AttachmentKind) (int, error) {
	store, err := s.store(kind)
	if err != nil {
		return 0, err
	}
	if roomID == "" {
		return 0, fmt.Errorf("%w: room id is required", domain.ErrValidation)
	}

	objects, err := store.List(ctx, roomPrefix(roomID))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrDependency, err)
	}

	deleted := 0
	var errs []error
	for _, obj := range objects {
		if err := store.Delete(ctx, obj.Name); err != nil && !errors.Is(err, ErrObjectNotFound) {
			errs = append(errs, err)
			continue
		}
		deleted++
	}
	if len(errs) > 0 {
		return deleted, fmt.Errorf("%w: %d of %d objects not deleted: %v", domain.ErrDependency, len(errs), len(objects), errors.Join(errs...))
	}
	return deleted, nil
}

func (s *Service) store(kind domain.AttachmentKind) (ObjectStore, error) {
	store, ok := s.stores[kind]
	if !ok || store == nil {
		return nil, fmt.Errorf("%w: unknown attachment kind %q", domain.ErrValidation, kind)
	}
	return store, nil
}

func roomPrefix(roomID string) string {
	return roomID + "/"
}

func isAudio(mime string) bool {
	mime = strings.ToLower(mime)
	return strings.HasPrefix(mime, "audio/") || strings.HasPrefix(mime, "video/webm")
}

// sanitizeName keeps the base name and strips characters that break object keys.
func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" {
		name = "attachment"
	}
	if len(name) > domain.MaxAttachmentName {
		// Keep the tail so the extension survives, starting on a rune boundary.
		cut := len(name) - domain.MaxAttachmentName
		for cut < len(name) && !utf8.RuneStart(name[cut]) {
			cut++
		}
		name = name[cut:]
	}
	return name
}
