package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/example/company-chat/domain/chat"
	"github.com/example/company-chat/modules/broadcast"
	"github.com/example/company-chat/modules/directory"
	"github.com/example/company-chat/modules/presence"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any) {}
func (m *mockLogger) Info(_ string, _ ...any)  {}
func (m *mockLogger) Warn(_ string, _ ...any)  {}
func (m *mockLogger) Error(_ string, _ ...any) {}
func (m *mockLogger) With(_ ...any) types.Logger {
	return m
}
func (m *mockLogger) WithModule(_ string) types.Logger {
	return m
}
func (m *mockLogger) WithError(_ error) types.Logger {
	return m
}

var (
	alice = domain.Principal{ID: "alice", TenantID: "t1", TenantName: "Acme Corp", Role: domain.RoleMember, DisplayName: "Alice"}
	bob   = domain.Principal{ID: "bob", TenantID: "t1", TenantName: "Acme Corp", Role: domain.RoleAdmin, DisplayName: "Bob"}
	carol = domain.Principal{ID: "carol", TenantID: "t1", TenantName: "Acme Corp", Role: domain.RoleClient, DisplayName: "Carol"}
	eve   = domain.Principal{ID: "eve", TenantID: "t2", TenantName: "Globex", Role: domain.RoleMember, DisplayName: "Eve"}
)

type fakeLookup struct {
	principals map[string]domain.Principal
}

func (f *fakeLookup) FindPrincipals(_ context.Context, ids []string) ([]domain.Principal, error) {
	var out []domain.Principal
	for _, id := range ids {
		if p, ok := f.principals[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// fakeAttachments is an in-memory attachment store that can also purge rooms.
type fakeAttachments struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeAttachments() *fakeAttachments {
	return &fakeAttachments{objects: make(map[string][]byte)}
}

func (f *fakeAttachments) Upload(_ context.Context, kind domain.AttachmentKind, roomID, name, mime string, data []byte) (*domain.Attachment, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", domain.ErrValidation)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := string(kind) + ":" + roomID + "/" + uuid.NewString() + "/" + name
	f.objects[key] = data
	return &domain.Attachment{Kind: kind, Key: key, Name: name, MIME: mime, Size: int64(len(data))}, nil
}

func (f *fakeAttachments) Download(_ context.Context, att *domain.Attachment) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[att.Key]
	if !ok {
		return nil, fmt.Errorf("%w: attachment", domain.ErrNotFound)
	}
	return data, nil
}

func (f *fakeAttachments) Delete(_ context.Context, att *domain.Attachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, att.Key)
	return nil
}

func (f *fakeAttachments) PurgeRoomAttachments(_ context.Context, roomID string, kind domain.AttachmentKind) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := string(kind) + ":" + roomID + "/"
	n := 0
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			delete(f.objects, key)
			n++
		}
	}
	return n, nil
}

func (f *fakeAttachments) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// failingMessages fails inserts on demand.
type failingMessages struct {
	MessageStore
	fail bool
}

func (f *failingMessages) Insert(ctx context.Context, msg *domain.Message) error {
	if f.fail {
		return fmt.Errorf("%w: disk full", domain.ErrDependency)
	}
	return f.MessageStore.Insert(ctx, msg)
}

type recordedFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type fakeConn struct {
	mu     sync.Mutex
	frames []recordedFrame
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	var f recordedFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	c.mu.Lock()
	c.frames = append(c.frames, f)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error { return nil }

// payloads returns the data of every frame of the given event, in order.
func (c *fakeConn) payloads(event string) []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []json.RawMessage
	for _, f := range c.frames {
		if f.Event == event {
			out = append(out, f.Data)
		}
	}
	return out
}

func (c *fakeConn) all() []recordedFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]recordedFrame(nil), c.frames...)
}

type harness struct {
	svc     *Service
	hub     *broadcast.Hub
	dir     *directory.Directory
	tracker *presence.Tracker
	files   *fakeAttachments
	conns   map[string]*fakeConn
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(directory.Models()...))

	lookup := &fakeLookup{principals: map[string]domain.Principal{
		"alice": alice, "bob": bob, "carol": carol, "eve": eve,
	}}
	files := newFakeAttachments()
	dir, err := directory.NewDirectory(directory.NewRoomRepository(db), directory.NewMessageStore(db), lookup, files, &mockLogger{})
	require.NoError(t, err)

	hub := broadcast.NewHub(&mockLogger{})
	tracker := presence.NewTracker()
	svc, err := NewService(Dependencies{
		Directory:   dir,
		Messages:    dir.Messages(),
		Presence:    tracker,
		Publisher:   hub,
		Attachments: files,
	}, &mockLogger{})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	return &harness{svc: svc, hub: hub, dir: dir, tracker: tracker, files: files, conns: make(map[string]*fakeConn)}
}

// connect registers a transport for p and waits for its background room joins.
func (h *harness) connect(t *testing.T, connID string, p domain.Principal) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	h.hub.Register(broadcast.NewClient(connID, p, conn))
	_, err := h.svc.Connect(context.Background(), connID, p)
	require.NoError(t, err)
	h.svc.wg.Wait()
	h.conns[connID] = conn
	return conn
}

func (h *harness) disconnect(connID string) {
	h.svc.Disconnect(connID)
	h.hub.Unregister(connID)
}

// flush waits until every frame queued so far for the connections has been written.
func (h *harness) flush(t *testing.T, connIDs ...string) {
	t.Helper()
	for _, id := range connIDs {
		token := uuid.NewString()
		h.hub.Emit(id, "flush", token)
		conn := h.conns[id]
		require.Eventually(t, func() bool {
			for _, raw := range conn.payloads("flush") {
				if strings.Contains(string(raw), token) {
					return true
				}
			}
			return false
		}, time.Second, 5*time.Millisecond, "connection %s not flushed", id)
	}
}

// requirePresenceWithinMembership checks that everyone present in roomID is a member.
func (h *harness) requirePresenceWithinMembership(t *testing.T, roomID string, principals ...domain.Principal) {
	t.Helper()
	byID := make(map[string]domain.Principal)
	for _, p := range principals {
		byID[p.ID] = p
	}
	for _, entry := range h.tracker.Snapshot(roomID) {
		p, ok := byID[entry.PrincipalID]
		require.True(t, ok, "unexpected principal %s present", entry.PrincipalID)
		member, err := h.dir.IsMember(context.Background(), roomID, p)
		require.NoError(t, err)
		require.True(t, member, "%s present in %s without membership", p.ID, roomID)
	}
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func last(t *testing.T, raws []json.RawMessage) json.RawMessage {
	t.Helper()
	require.NotEmpty(t, raws)
	return raws[len(raws)-1]
}
