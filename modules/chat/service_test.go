package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/example/company-chat/domain/chat"
	"github.com/example/company-chat/modules/directory"
	"github.com/example/company-chat/modules/presence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_JoinsTenantRoom(t *testing.T) {
	h := newHarness(t)
	aConn := h.connect(t, "a1", alice)
	h.connect(t, "b1", bob)
	h.flush(t, "a1")

	tenantRoom := domain.TenantRoomID("t1")
	assert.True(t, h.hub.InGroup("a1", tenantRoom))
	assert.True(t, h.tracker.IsPresent(tenantRoom, "alice"))
	assert.Equal(t, 2, h.tracker.Count(tenantRoom))

	update := decode[presence.OnlineUsersUpdate](t, last(t, aConn.payloads(EventOnlineUsersUpdate)))
	assert.Equal(t, tenantRoom, update.RoomID)
	assert.Equal(t, 2, update.Count)
	assert.Len(t, update.Users, 2)
}

func TestConnect_Rejections(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "a1", alice)

	_, err := h.svc.Connect(context.Background(), "a1", alice)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.svc.Connect(context.Background(), "x1", domain.Principal{ID: "ghost"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	assert.ErrorIs(t, h.svc.JoinRoom(context.Background(), "unknown", "tenant_t1"), domain.ErrUnauthorized)
}

func TestConnect_AutoJoinsExistingRooms(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.connect(t, "b1", bob)

	room, err := h.svc.CreateRoom(ctx, "b1", "Ops", []string{"alice"})
	require.NoError(t, err)

	aConn := h.connect(t, "a1", alice)
	h.flush(t, "a1")

	created := decode[domain.RoomView](t, last(t, aConn.payloads(EventRoomCreated)))
	assert.Equal(t, room.ID, created.ID)
	assert.True(t, h.hub.InGroup("a1", room.ID))
	assert.True(t, h.tracker.IsPresent(room.ID, "alice"))
	h.requirePresenceWithinMembership(t, room.ID, alice, bob)
}

func TestScenario_CreateSendAndCrossTenantJoin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.connect(t, "a1", alice)
	bConn := h.connect(t, "b1", bob)
	eConn := h.connect(t, "e1", eve)

	room, err := h.svc.CreateRoom(ctx, "a1", "Launch", []string{"bob"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, room.Members)
	assert.True(t, h.hub.InGroup("b1", room.ID), "online invitee joins the room group")
	assert.True(t, h.tracker.IsPresent(room.ID, "bob"))

	_, err = h.svc.SendMessage(ctx, "a1", room.ID, "hello")
	require.NoError(t, err)
	h.flush(t, "a1", "b1", "e1")

	msgs := bConn.payloads(EventNewMessage)
	require.Len(t, msgs, 2)
	system := decode[domain.MessageView](t, msgs[0])
	assert.True(t, system.System)
	hello := decode[domain.MessageView](t, msgs[1])
	assert.Equal(t, "alice", hello.AuthorID)
	assert.Equal(t, "hello", hello.Body)
	assert.Equal(t, "Alice", hello.AuthorName)
	assert.NotEmpty(t, bConn.payloads(EventRoomCreated))

	err = h.svc.JoinRoom(ctx, "e1", room.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.False(t, h.tracker.IsPresent(room.ID, "eve"))
	assert.False(t, h.hub.InGroup("e1", room.ID))
	assert.Empty(t, eConn.payloads(EventNewMessage))
	assert.Empty(t, eConn.payloads(EventRoomCreated))

	_, err = h.svc.SendMessage(ctx, "e1", room.ID, "sneaky")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	h.requirePresenceWithinMembership(t, room.ID, alice, bob, eve)
}

func TestJoinRoom_AnnouncesNewPresence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.connect(t, "b1", bob)
	room, err := h.svc.CreateRoom(ctx, "b1", "Ops", []string{"alice", "carol"})
	require.NoError(t, err)

	h.connect(t, "a1", alice)
	cConn := h.connect(t, "c1", carol)
	// A fresh connection of alice that has not joined yet.
	h.connect(t, "a2", alice)
	h.hub.LeaveGroup("a2", room.ID)
	h.tracker.Leave(room.ID, "a2")

	require.NoError(t, h.svc.JoinRoom(ctx, "a2", room.ID))
	assert.True(t, h.hub.InGroup("a2", room.ID))

	assert.ErrorIs(t, h.svc.JoinRoom(ctx, "a1", "room_1_nothere1"), domain.ErrNotFound)
	assert.ErrorIs(t, h.svc.JoinRoom(ctx, "a1", ""), domain.ErrValidation)
	require.NoError(t, h.svc.JoinRoom(ctx, "a1", domain.TenantRoomID("t1")))

	h.flush(t, "c1")
	for _, raw := range cConn.payloads(EventUserJoined) {
		assert.NotContains(t, string(raw), "alice")
	}
}

func TestLeaveRoom_KeepsRoomForRemainingMembers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	aConn := h.connect(t, "a1", alice)
	bConn := h.connect(t, "b1", bob)

	room, err := h.svc.CreateRoom(ctx, "b1", "Ops", []string{"alice"})
	require.NoError(t, err)

	require.NoError(t, h.svc.LeaveRoom(ctx, "a1", room.ID))
	h.flush(t, "a1", "b1")

	got, err := h.dir.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, got.Members)

	assert.Len(t, aConn.payloads(EventRoomLeft), 1)
	left := decode[MemberEvent](t, last(t, bConn.payloads(EventUserLeftRoom)))
	assert.Equal(t, "alice", left.UserID)
	assert.Empty(t, aConn.payloads(EventUserLeftRoom))

	assert.False(t, h.hub.InGroup("a1", room.ID))
	assert.False(t, h.tracker.IsPresent(room.ID, "alice"))
	h.requirePresenceWithinMembership(t, room.ID, alice, bob)
}

func TestLeaveRoom_LastMemberReapsRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.connect(t, "a1", alice)
	h.connect(t, "b1", bob)

	room, err := h.svc.CreateRoom(ctx, "b1", "Ops", []string{"alice"})
	require.NoError(t, err)
	// The creator is no longer on the roster, leaving alice as the only member.
	_, err = h.dir.RemoveMember(ctx, room.ID, "bob")
	require.NoError(t, err)

	require.NoError(t, h.svc.LeaveRoom(ctx, "a1", room.ID))

	_, err = h.dir.GetRoom(ctx, room.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 0, h.tracker.Count(room.ID))
	assert.Empty(t, h.hub.GroupClients(room.ID))
}

// reapFailingDirectory commits roster removals but reports a failed teardown.
type reapFailingDirectory struct {
	RoomDirectory
}

func (d *reapFailingDirectory) RemoveMember(ctx context.Context, roomID, principalID string) (bool, error) {
	if _, err := d.RoomDirectory.RemoveMember(ctx, roomID, principalID); err != nil {
		return false, err
	}
	return false, fmt.Errorf("%w: room deletion: disk full", directory.ErrReapIncomplete)
}

func TestLeaveRoom_FailedTeardownIsReported(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.connect(t, "a1", alice)
	bConn := h.connect(t, "b1", bob)

	room, err := h.svc.CreateRoom(ctx, "a1", "Ops", []string{"bob"})
	require.NoError(t, err)
	h.svc.dir = &reapFailingDirectory{RoomDirectory: h.dir}

	err = h.svc.LeaveRoom(ctx, "b1", room.ID)
	assert.ErrorIs(t, err, domain.ErrDependency)
	h.flush(t, "b1")

	assert.False(t, h.tracker.IsPresent(room.ID, "bob"), "presence follows the committed roster")
	assert.False(t, h.hub.InGroup("b1", room.ID))
	assert.Len(t, bConn.payloads(EventRoomLeft), 1)
	h.requirePresenceWithinMembership(t, room.ID, alice, bob)
}

func TestLeaveRoom_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.connect(t, "a1", alice)
	h.connect(t, "b1", bob)
	h.connect(t, "e1", eve)

	room, err := h.svc.CreateRoom(ctx, "b1", "Ops", []string{"alice"})
	require.NoError(t, err)

	assert.ErrorIs(t, h.svc.LeaveRoom(ctx, "b1", room.ID), domain.ErrForbidden, "creator cannot leave")
	assert.ErrorIs(t, h.svc.LeaveRoom(ctx, "e1", room.ID), domain.ErrForbidden)
	assert.ErrorIs(t, h.svc.LeaveRoom(ctx, "a1", domain.TenantRoomID("t1")), domain.ErrValidation)

	got, err := h.dir.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "alice"}, got.Members)
}

func TestPresence_MultipleConnections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.connect(t, "a1", alice)
	h.connect(t, "a2", alice)
	bConn := h.connect(t, "b1", bob)

	room, err := h.svc.CreateRoom(ctx, "b1", "Ops", []string{"alice"})
	require.NoError(t, err)
	assert.True(t, h.hub.InGroup("a1", room.ID))
	assert.True(t, h.hub.InGroup("a2", room.ID))

	h.disconnect("a1")
	assert.True(t, h.tracker.IsPresent(room.ID, "alice"), "a2 is still joined")

	h.disconnect("a2")
	assert.False(t, h.tracker.IsPresent(room.ID, "alice"))

	h.flush(t, "b1")
	var update presence.OnlineUsersUpdate
	for _, raw := range bConn.payloads(EventOnlineUsersUpdate) {
		if u := decode[presence.OnlineUsersUpdate](t, raw); u.RoomID == room.ID {
			update = u
		}
	}
	assert.Equal(t, 1, update.Count)
	require.Len(t, update.Users, 1)
	assert.Equal(t, "bob", update.Users[0].PrincipalID)

	h.disconnect("a2")
}

func TestClientNeverSeesOtherIdentities(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.connect(t, "a1", alice)
	bConn := h.connect(t, "b1", bob)
	cConn := h.connect(t, "c1", carol)

	room, err := h.svc.CreateRoom(ctx, "a1", "Support", []string{"bob", "carol"})
	require.NoError(t, err)

	require.NoError(t, h.svc.Typing(ctx, "a1", room.ID))
	require.NoError(t, h.svc.StopTyping(ctx, "a1", room.ID))
	_, err = h.svc.SendMessage(ctx, "a1", room.ID, "how can we help?")
	require.NoError(t, err)
	_, err = h.svc.SendMessage(ctx, "c1", room.ID, "my invoice")
	require.NoError(t, err)
	h.flush(t, "a1", "b1", "c1")

	assert.Len(t, bConn.payloads(EventUserTyping), 1)
	assert.Len(t, bConn.payloads(EventUserStoppedTyping), 1)
	assert.Empty(t, cConn.payloads(EventUserTyping))
	assert.Empty(t, cConn.payloads(EventUserStoppedTyping))
	assert.Empty(t, h.conns["a1"].payloads(EventUserTyping), "typing is not echoed")

	for _, f := range cConn.all() {
		if f.Event == EventNewMessage {
			view := decode[domain.MessageView](t, f.Data)
			if view.AuthorName == "Carol" {
				assert.Equal(t, "carol", view.AuthorID, "own messages carry the real identity")
				continue
			}
		}
		assert.NotContains(t, string(f.Data), `"alice"`, "event %s leaks an identity", f.Event)
		assert.NotContains(t, string(f.Data), "Alice", "event %s leaks a name", f.Event)
		assert.NotContains(t, string(f.Data), "Bob", "event %s leaks a name", f.Event)
	}

	msgs := cConn.payloads(EventNewMessage)
	fromAlice := decode[domain.MessageView](t, msgs[1])
	assert.Equal(t, "Acme Corp", fromAlice.AuthorName)
	assert.Empty(t, fromAlice.AuthorID)

	update := last(t, cConn.payloads(EventOnlineUsersUpdate))
	assert.NotContains(t, string(update), "users")
	assert.Contains(t, string(update), `"count":3`)

	fromCarol := decode[domain.MessageView](t, last(t, bConn.payloads(EventNewMessage)))
	assert.Equal(t, "Carol", fromCarol.AuthorName)
	assert.Equal(t, "carol", fromCarol.AuthorID)
}

func TestEditMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.connect(t, "a1", alice)
	bConn := h.connect(t, "b1", bob)

	room, err := h.svc.CreateRoom(ctx, "a1", "Launch", []string{"bob"})
	require.NoError(t, err)
	msg, err := h.svc.SendMessage(ctx, "a1", room.ID, "first")
	require.NoError(t, err)

	history, err := h.svc.History(ctx, alice, room.ID, domain.HistoryQuery{})
	require.NoError(t, err)
	require.Equal(t, "first", history[len(history)-1].Body)

	_, err = h.svc.EditMessage(ctx, "a1", room.ID, msg.ID, "second")
	require.NoError(t, err)

	history, err = h.svc.History(ctx, bob, room.ID, domain.HistoryQuery{})
	require.NoError(t, err)
	got := history[len(history)-1]
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, "second", got.Body)
	require.NotNil(t, got.EditedAt)
	assert.WithinDuration(t, msg.CreatedAt, got.CreatedAt, time.Millisecond)
	assert.Equal(t, "alice", got.AuthorID)

	h.flush(t, "b1")
	updated := decode[domain.MessageView](t, last(t, bConn.payloads(EventMessageUpdated)))
	assert.Equal(t, "second", updated.Body)

	tests := []struct {
		name    string
		connID  string
		roomID  string
		msgID   string
		body    string
		wantErr error
	}{
		{"not the author", "b1", room.ID, msg.ID, "hijack", domain.ErrForbidden},
		{"other room", "a1", domain.TenantRoomID("t1"), msg.ID, "moved", domain.ErrNotFound},
		{"malformed id", "a1", room.ID, "not-a-uuid", "x", domain.ErrValidation},
		{"empty body", "a1", room.ID, msg.ID, "   ", domain.ErrValidation},
		{"unknown message", "a1", room.ID, "6f1c1f4e-4a5e-4d7e-9a55-0b2f4c1d2e3f", "x", domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.EditMessage(ctx, tt.connID, tt.roomID, tt.msgID, tt.body)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDeleteMessage_RemovesAttachment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.connect(t, "a1", alice)
	bConn := h.connect(t, "b1", bob)

	room, err := h.svc.CreateRoom(ctx, "a1", "Launch", []string{"bob"})
	require.NoError(t, err)
	msg, err := h.svc.SendAttachment(ctx, alice, room.ID, domain.AttachmentFile, "plan.pdf", "application/pdf", []byte("%PDF"))
	require.NoError(t, err)
	require.Equal(t, 1, h.files.count())

	att, data, err := h.svc.Download(ctx, bob, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "plan.pdf", att.Name)
	assert.Equal(t, []byte("%PDF"), data)

	_, _, err = h.svc.Download(ctx, eve, msg.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	assert.ErrorIs(t, h.svc.DeleteMessage(ctx, "b1", room.ID, msg.ID), domain.ErrForbidden)
	require.NoError(t, h.svc.DeleteMessage(ctx, "a1", room.ID, msg.ID))
	assert.Equal(t, 0, h.files.count())

	h.flush(t, "b1")
	deleted := decode[MessageDeleted](t, last(t, bConn.payloads(EventMessageDeleted)))
	assert.Equal(t, msg.ID, deleted.MessageID)

	_, err = h.dir.Messages().Get(ctx, msg.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteAttachment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.connect(t, "a1", alice)

	room, err := h.svc.CreateRoom(ctx, "a1", "Launch", []string{"bob"})
	require.NoError(t, err)
	text, err := h.svc.SendMessage(ctx, "a1", room.ID, "plain")
	require.NoError(t, err)
	voice, err := h.svc.SendAttachment(ctx, alice, room.ID, domain.AttachmentVoice, "memo.webm", "audio/webm", []byte{1, 2, 3})
	require.NoError(t, err)

	_, err = h.svc.DeleteAttachment(ctx, alice, text.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.svc.DeleteAttachment(ctx, bob, voice.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	removed, err := h.svc.DeleteAttachment(ctx, alice, voice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AttachmentVoice, removed.Attachment.Kind)
	assert.Equal(t, 0, h.files.count())
}

func TestSendAttachment_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.connect(t, "a1", alice)
	room, err := h.svc.CreateRoom(ctx, "a1", "Launch", []string{"bob"})
	require.NoError(t, err)

	_, err = h.svc.SendAttachment(ctx, alice, room.ID, "video", "x", "video/mp4", []byte{1})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.svc.SendAttachment(ctx, eve, room.ID, domain.AttachmentFile, "x", "text/plain", []byte{1})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	h.svc.messages = &failingMessages{MessageStore: h.svc.messages, fail: true}
	_, err = h.svc.SendAttachment(ctx, alice, room.ID, domain.AttachmentFile, "x.txt", "text/plain", []byte{1})
	assert.ErrorIs(t, err, domain.ErrDependency)
	assert.Equal(t, 0, h.files.count(), "orphaned object is removed")
}

func TestSendMessage_PersistenceFailureIsNotBroadcast(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.connect(t, "a1", alice)
	bConn := h.connect(t, "b1", bob)

	room, err := h.svc.CreateRoom(ctx, "a1", "Launch", []string{"bob"})
	require.NoError(t, err)
	h.flush(t, "b1")
	before := len(bConn.payloads(EventNewMessage))

	h.svc.messages = &failingMessages{MessageStore: h.svc.messages, fail: true}
	_, err = h.svc.SendMessage(ctx, "a1", room.ID, "lost")
	assert.ErrorIs(t, err, domain.ErrDependency)

	h.flush(t, "b1")
	assert.Len(t, bConn.payloads(EventNewMessage), before)
}

func TestSendMessage_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.connect(t, "a1", alice)

	_, err := h.svc.SendMessage(ctx, "a1", domain.TenantRoomID("t1"), "")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.svc.SendMessage(ctx, "a1", "", "hi")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.svc.SendMessage(ctx, "a1", domain.TenantRoomID("t2"), "hi")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = h.svc.SendMessage(ctx, "a1", strings.Repeat("x", 10), "hi")
	assert.Error(t, err)
}

func TestSendMessage_EchoesToSenderOutsideGroup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	aConn := h.connect(t, "a1", alice)
	h.connect(t, "b1", bob)

	room, err := h.svc.CreateRoom(ctx, "b1", "Ops", []string{"alice"})
	require.NoError(t, err)
	h.hub.LeaveGroup("a1", room.ID)

	_, err = h.svc.SendMessage(ctx, "a1", room.ID, "still here")
	require.NoError(t, err)
	h.flush(t, "a1")

	echo := decode[domain.MessageView](t, last(t, aConn.payloads(EventNewMessage)))
	assert.Equal(t, "still here", echo.Body)
	assert.Equal(t, "Alice", echo.AuthorName)
}

func TestTenantRoomIsOpenToTenant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.connect(t, "a1", alice)
	bConn := h.connect(t, "b1", bob)
	eConn := h.connect(t, "e1", eve)

	tenantRoom := domain.TenantRoomID("t1")
	_, err := h.svc.SendMessage(ctx, "a1", tenantRoom, "all hands")
	require.NoError(t, err)
	h.flush(t, "b1", "e1")

	assert.Len(t, bConn.payloads(EventNewMessage), 1)
	assert.Empty(t, eConn.payloads(EventNewMessage))

	_, err = h.dir.DeleteRoom(ctx, tenantRoom, "alice")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestDeleteRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	aConn := h.connect(t, "a1", alice)
	bConn := h.connect(t, "b1", bob)

	room, err := h.svc.CreateRoom(ctx, "a1", "Launch", []string{"bob"})
	require.NoError(t, err)
	_, err = h.svc.SendMessage(ctx, "b1", room.ID, "hello")
	require.NoError(t, err)
	_, err = h.svc.SendAttachment(ctx, alice, room.ID, domain.AttachmentFile, "a.txt", "text/plain", []byte("a"))
	require.NoError(t, err)
	_, err = h.svc.SendAttachment(ctx, bob, room.ID, domain.AttachmentVoice, "v.ogg", "audio/ogg", []byte("v"))
	require.NoError(t, err)

	t.Run("non creator is forbidden and nothing changes", func(t *testing.T) {
		_, err := h.svc.DeleteRoom(ctx, bob, room.ID)
		assert.ErrorIs(t, err, domain.ErrForbidden)
		_, err = h.svc.DeleteRoom(ctx, eve, room.ID)
		assert.ErrorIs(t, err, domain.ErrForbidden)

		_, err = h.dir.GetRoom(ctx, room.ID)
		assert.NoError(t, err)
		history, err := h.svc.History(ctx, alice, room.ID, domain.HistoryQuery{})
		require.NoError(t, err)
		assert.Len(t, history, 4)
		assert.Equal(t, 2, h.files.count())
	})

	t.Run("creator removes everything", func(t *testing.T) {
		result, err := h.svc.DeleteRoomFor(ctx, "a1", room.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Files)
		assert.Equal(t, 1, result.Voices)
		assert.EqualValues(t, 4, result.Messages)
		assert.Equal(t, 1, result.Rooms)
		assert.True(t, result.Complete())

		_, err = h.dir.GetRoom(ctx, room.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		msgs, err := h.dir.Messages().ListByRoom(ctx, room.ID, domain.HistoryQuery{})
		require.NoError(t, err)
		assert.Empty(t, msgs)
		assert.Equal(t, 0, h.files.count())
		assert.Empty(t, h.hub.GroupClients(room.ID))
		assert.Equal(t, 0, h.tracker.Count(room.ID))

		h.flush(t, "a1", "b1")
		assert.Len(t, aConn.payloads(EventRoomDeleted), 1)
		assert.Len(t, bConn.payloads(EventRoomDeleted), 1)
		assert.Len(t, bConn.payloads(EventFilesDeleted), 1)
		assert.Len(t, bConn.payloads(EventVoicesDeleted), 1)
	})

	t.Run("second delete is not found", func(t *testing.T) {
		_, err := h.svc.DeleteRoom(ctx, alice, room.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestRoomsFor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.connect(t, "a1", alice)
	h.connect(t, "c1", carol)

	room, err := h.svc.CreateRoom(ctx, "a1", "Support", []string{"carol"})
	require.NoError(t, err)

	rooms, err := h.svc.RoomsFor(ctx, carol)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.True(t, rooms[0].CompanyRoom)
	assert.Equal(t, "Acme Corp", rooms[0].Name)
	assert.Equal(t, 2, rooms[0].Online)
	assert.Equal(t, room.ID, rooms[1].ID)
	assert.Equal(t, 2, rooms[1].Online)
	assert.Nil(t, rooms[1].Users, "clients only see counts")
	assert.Equal(t, 2, rooms[1].MemberCount)
}

func TestHistory_Pagination(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.connect(t, "a1", alice)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	h.svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	tenantRoom := domain.TenantRoomID("t1")
	for i := 0; i < 5; i++ {
		_, err := h.svc.SendMessage(ctx, "a1", tenantRoom, fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	page, err := h.svc.History(ctx, alice, tenantRoom, domain.HistoryQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "m3", page[0].Body)
	assert.Equal(t, "m4", page[1].Body)

	older, err := h.svc.History(ctx, alice, tenantRoom, domain.HistoryQuery{Limit: 10, Before: page[0].CreatedAt})
	require.NoError(t, err)
	require.Len(t, older, 3)
	assert.Equal(t, "m0", older[0].Body)

	_, err = h.svc.History(ctx, eve, tenantRoom, domain.HistoryQuery{Limit: 10})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestHistory_SameTimestampPagesByCursor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.connect(t, "a1", alice)

	frozen := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h.svc.now = func() time.Time { return frozen }

	tenantRoom := domain.TenantRoomID("t1")
	for i := 0; i < 6; i++ {
		_, err := h.svc.SendMessage(ctx, "a1", tenantRoom, fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	var bodies []string
	query := domain.HistoryQuery{Limit: 4}
	for {
		page, err := h.svc.History(ctx, alice, tenantRoom, query)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		chunk := make([]string, 0, len(page))
		for _, v := range page {
			chunk = append(chunk, v.Body)
		}
		bodies = append(chunk, bodies...)
		query.BeforeID = page[0].ID
	}
	assert.Equal(t, []string{"m0", "m1", "m2", "m3", "m4", "m5"}, bodies)

	_, err := h.svc.History(ctx, alice, tenantRoom, domain.HistoryQuery{BeforeID: "not-a-uuid"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestClientSeesBrandWhenTenantHasNoName(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	unbranded := alice
	unbranded.TenantName = ""
	h.connect(t, "a1", unbranded)
	cConn := h.connect(t, "c1", carol)
	tenantRoom := domain.TenantRoomID("t1")

	msg, err := h.svc.SendMessage(ctx, "a1", tenantRoom, "hello")
	require.NoError(t, err)
	_, err = h.svc.EditMessage(ctx, "a1", tenantRoom, msg.ID, "hello again")
	require.NoError(t, err)
	h.flush(t, "c1")

	created := decode[domain.MessageView](t, last(t, cConn.payloads(EventNewMessage)))
	assert.Equal(t, domain.FallbackTenantBrand, created.AuthorName)
	assert.Empty(t, created.AuthorID)
	updated := decode[domain.MessageView](t, last(t, cConn.payloads(EventMessageUpdated)))
	assert.Equal(t, domain.FallbackTenantBrand, updated.AuthorName)

	history, err := h.svc.History(ctx, carol, tenantRoom, domain.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.FallbackTenantBrand, history[0].AuthorName)

	for _, f := range cConn.all() {
		assert.NotContains(t, string(f.Data), "Alice", "event %s leaks a name", f.Event)
	}
}

func TestConcurrentSendsKeepInsertionOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.connect(t, "a1", alice)
	bConn := h.connect(t, "b1", bob)
	tenantRoom := domain.TenantRoomID("t1")

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var tick atomic.Int64
	h.svc.now = func() time.Time {
		return base.Add(time.Duration(tick.Add(1)) * time.Millisecond)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.svc.SendMessage(ctx, "a1", tenantRoom, fmt.Sprintf("m%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	h.flush(t, "b1")

	history, err := h.svc.History(ctx, bob, tenantRoom, domain.HistoryQuery{Limit: 50})
	require.NoError(t, err)
	require.Len(t, history, 20)

	received := bConn.payloads(EventNewMessage)
	require.Len(t, received, 20)
	for i, raw := range received {
		view := decode[domain.MessageView](t, raw)
		assert.Equal(t, history[i].ID, view.ID, "broadcast order matches persistence order")
	}
	assert.Equal(t, 0, h.svc.locks.size())
}
