package attachments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// ObjectStore is the byte store behind one attachment namespace.
type ObjectStore interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (*ObjectInfo, error)
	Get(ctx context.Context, name string) ([]byte, *ObjectInfo, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context, prefix string) ([]*ObjectInfo, error)
}

// ObjectInfo represents metadata about a stored object.
type ObjectInfo struct {
	Name        string
	Size        uint64
	ContentType string
	ModTime     time.Time
}

// ErrObjectNotFound is returned when an object key does not exist.
var ErrObjectNotFound = errors.New("object not found")

func contentType(headers nats.Header) string {
	if headers != nil {
		if ct := headers.Get("Content-Type"); ct != "" {
			return ct
		}
	}
	return "application/octet-stream"
}

// JetStreamObjectStore implements ObjectStore on a NATS JetStream object store bucket.
type JetStreamObjectStore struct {
	js     jetstream.JetStream
	store  jetstream.ObjectStore
	bucket string
}

// NewJetStreamObjectStore opens (or creates) bucket on an existing JetStream context.
func NewJetStreamObjectStore(ctx context.Context, js jetstream.JetStream, bucket, description string) (*JetStreamObjectStore, error) {
	store, err := js.ObjectStore(ctx, bucket)
	if err != nil {
		store, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
			Bucket:      bucket,
			Description: description,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create object store bucket %s: %w", bucket, err)
		}
	}
	return &JetStreamObjectStore{js: js, store: store, bucket: bucket}, nil
}

// Put stores an object.
func (s *JetStreamObjectStore) Put(ctx context.Context, name string, data []byte, ct string) (*ObjectInfo, error) {
	meta := jetstream.ObjectMeta{
		Name: name,
		Headers: nats.Header{
			"Content-Type": []string{ct},
		},
	}

	info, err := s.store.Put(ctx, meta, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to store object: %w", err)
	}
	return &ObjectInfo{Name: info.Name, Size: info.Size, ContentType: ct, ModTime: info.ModTime}, nil
}

// Get retrieves an object and its metadata.
func (s *JetStreamObjectStore) Get(ctx context.Context, name string) ([]byte, *ObjectInfo, error) {
	result, err := s.store.Get(ctx, name)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, nil, ErrObjectNotFound
		}
		return nil, nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer result.Close()

	data, err := io.ReadAll(result)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read object data: %w", err)
	}
	info, err := result.Info()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get object info: %w", err)
	}
	return data, &ObjectInfo{
		Name:        info.Name,
		Size:        info.Size,
		ContentType: contentType(info.Headers),
		ModTime:     info.ModTime,
	}, nil
}

// Delete removes an object.
func (s *JetStreamObjectStore) Delete(ctx context.Context, name string) error {
	if err := s.store.Delete(ctx, name); err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// List returns the objects whose names start with prefix.
func (s *JetStreamObjectStore) List(ctx context.Context, prefix string) ([]*ObjectInfo, error) {
	infos, err := s.store.List(ctx)
	if err != nil {
		// An empty bucket is not an error here.
		if errors.Is(err, jetstream.ErrNoObjectsFound) {
			return []*ObjectInfo{}, nil
		}
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	objects := make([]*ObjectInfo, 0, len(infos))
	for _, info := range infos {
		if !strings.HasPrefix(info.Name, prefix) {
			continue
		}
		objects = append(objects, &ObjectInfo{
			Name:        info.Name,
			Size:        info.Size,
			ContentType: contentType(info.Headers),
			ModTime:     info.ModTime,
		})
	}
	return objects, nil
}

// Connection owns the NATS connection shared by the attachment buckets.
type Connection struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// Connect dials NATS and creates a JetStream context.
func Connect(url string) (*Connection, error) {
	conn, err := nats.Connect(url, nats.Name("company-chat-attachments"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return &Connection{conn: conn, js: js}, nil
}

// JetStream returns the JetStream context.
func (c *Connection) JetStream() jetstream.JetStream {
	return c.js
}

// IsConnected returns whether the NATS connection is active.
func (c *Connection) IsConnected() bool {
	return c != nil && c.conn != nil && c.conn.IsConnected()
}

// Close closes the NATS connection.
func (c *Connection) Close() {
	if c != nil && c.conn != nil {
		c.conn.Close()
	}
}
