package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/example/company-chat/domain/chat"
	"github.com/example/company-chat/modules/broadcast"
	"github.com/example/company-chat/modules/chat"
	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

const socketOpTimeout = 10 * time.Second

var errRateLimited = errors.New("rate limited")

// handleWebSocket serves one authenticated connection at /ws. The principal
// was resolved by upgradeGuard and is fixed for the connection's lifetime.
func (m *APIModule) handleWebSocket(c *websocket.Conn) {
	principal, ok := c.Locals(PrincipalContextKey).(domain.Principal)
	if !ok {
		_ = c.Close()
		return
	}

	connID := uuid.NewString()
	client := broadcast.NewClient(connID, principal, c)
	m.hub.Register(client)
	socketConnections.Inc()

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		m.chat.Disconnect(connID)
		m.hub.Unregister(connID)
		m.limiter.Forget(connID)
		socketConnections.Dec()
		m.logger.Info("WebSocket client disconnected", "connID", connID, "principalID", principal.ID)
	}()

	if _, err := m.chat.Connect(ctx, connID, principal); err != nil {
		m.logger.Warn("Session refused", "connID", connID, "principalID", principal.ID, "error", err)
		m.hub.Emit(connID, chat.EventErrorMessage, domain.PublicMessage(err))
		return
	}
	recordSocketEvent("connect", "ok")
	m.logger.Info("WebSocket client connected", "connID", connID, "principalID", principal.ID, "role", principal.Role.String())

	// Message loop
	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Debug("Client closed connection", "connID", connID)
			} else {
				m.logger.Debug("Read error", "connID", connID, "error", err)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
			recordSocketEvent("invalid", "error")
			m.hub.Emit(connID, chat.EventErrorMessage, "Invalid message format")
			continue
		}

		err = m.handleFrame(ctx, connID, frame)
		switch {
		case err == nil:
			recordSocketEvent(frame.Event, "ok")
		case errors.Is(err, errRateLimited):
			recordSocketEvent(frame.Event, "rate_limited")
			m.hub.Emit(connID, chat.EventErrorMessage, "You are sending too fast, please slow down")
		default:
			recordSocketEvent(frame.Event, "error")
			m.logger.Debug("Socket operation failed", "connID", connID, "event", frame.Event, "error", err)
			m.hub.Emit(connID, chat.EventErrorMessage, domain.PublicMessage(err))
		}
	}
}

// handleFrame rate limits and dispatches one client frame.
func (m *APIModule) handleFrame(ctx context.Context, connID string, frame inboundFrame) error {
	allowed, err := m.limiter.Allow(ctx, connID)
	if err != nil {
		m.logger.Warn("Rate limit check failed", "connID", connID, "error", err)
	} else if !allowed {
		return errRateLimited
	}

	opCtx, cancel := context.WithTimeout(ctx, socketOpTimeout)
	defer cancel()
	return m.dispatch(opCtx, connID, frame)
}

// dispatch routes a client event to the chat service. Results reach clients
// as server events emitted by the service itself.
func (m *APIModule) dispatch(ctx context.Context, connID string, frame inboundFrame) error {
	switch frame.Event {
	case chat.EventCreateRoom:
		var req createRoomRequest
		if err := decodeData(frame.Data, &req); err != nil {
			return err
		}
		_, err := m.chat.CreateRoom(ctx, connID, req.RoomName, req.UserIDs)
		return err

	case chat.EventJoinRoom:
		var req roomRequest
		if err := decodeData(frame.Data, &req); err != nil {
			return err
		}
		return m.chat.JoinRoom(ctx, connID, req.RoomID)

	case chat.EventLeaveRoom:
		var req roomRequest
		if err := decodeData(frame.Data, &req); err != nil {
			return err
		}
		return m.chat.LeaveRoom(ctx, connID, req.RoomID)

	case chat.EventSendMessage:
		var req sendMessageRequest
		if err := decodeData(frame.Data, &req); err != nil {
			return err
		}
		_, err := m.chat.SendMessage(ctx, connID, req.RoomID, req.Body)
		return err

	case chat.EventEditMessage:
		var req editMessageRequest
		if err := decodeData(frame.Data, &req); err != nil {
			return err
		}
		_, err := m.chat.EditMessage(ctx, connID, req.RoomID, req.MessageID, req.NewMessage)
		return err

	case chat.EventDeleteMessage:
		var req deleteMessageRequest
		if err := decodeData(frame.Data, &req); err != nil {
			return err
		}
		return m.chat.DeleteMessage(ctx, connID, req.RoomID, req.MessageID)

	case chat.EventTyping:
		var req roomRequest
		if err := decodeData(frame.Data, &req); err != nil {
			return err
		}
		return m.chat.Typing(ctx, connID, req.RoomID)

	case chat.EventStopTyping:
		var req roomRequest
		if err := decodeData(frame.Data, &req); err != nil {
			return err
		}
		return m.chat.StopTyping(ctx, connID, req.RoomID)

	case chat.EventDeleteRoom:
		var req roomRequest
		if err := decodeData(frame.Data, &req); err != nil {
			return err
		}
		_, err := m.chat.DeleteRoomFor(ctx, connID, req.RoomID)
		return err

	default:
		return fmt.Errorf("%w: unknown event %q", domain.ErrValidation, frame.Event)
	}
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: event data is required", domain.ErrValidation)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: malformed event data", domain.ErrValidation)
	}
	return nil
}
