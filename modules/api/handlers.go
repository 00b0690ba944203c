package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"strconv"
	"time"

	domain "github.com/example/company-chat/domain/chat"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthCheckTimeout = 3 * time.Second

// setupRoutes configures all HTTP routes.
func (m *APIModule) setupRoutes(app *fiber.App) {
	// Health check and metrics
	app.Get("/health", m.healthHandler)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// WebSocket endpoint. The credential is resolved before the upgrade so a
	// rejected connection never reaches the socket handler.
	app.Use("/ws", m.upgradeGuard)
	app.Get("/ws", websocket.New(m.handleWebSocket))

	// REST API v1
	api := app.Group("/api/v1", AuthMiddleware(m.identity))

	api.Get("/me", m.getMe)
	api.Get("/principals", m.listPrincipals)

	api.Get("/rooms", m.listRooms)
	api.Get("/rooms/:id/messages", m.getHistory)
	api.Delete("/rooms/:id", m.deleteRoom)
	api.Post("/rooms/:id/files", m.uploadAttachment(domain.AttachmentFile))
	api.Post("/rooms/:id/voices", m.uploadAttachment(domain.AttachmentVoice))

	api.Get("/attachments/:messageId", m.downloadAttachment)
	api.Delete("/attachments/:messageId", m.deleteAttachment)
}

// upgradeGuard refuses non-upgrade requests and unauthenticated sockets.
func (m *APIModule) upgradeGuard(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	token, problem := bearerToken(c)
	if problem != "" {
		recordSocketEvent("connect", "unauthorized")
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error:   domain.CodeUnauthorized,
			Message: problem,
		})
	}
	principal, err := m.identity.Resolve(c.UserContext(), token)
	if err != nil {
		recordSocketEvent("connect", "unauthorized")
		m.logger.Debug("WebSocket credential rejected", "error", err)
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error:   domain.CodeUnauthorized,
			Message: "Invalid or expired token",
		})
	}
	c.Locals(PrincipalContextKey, principal)
	return c.Next()
}

// healthHandler handles GET /health, aggregating module health.
func (m *APIModule) healthHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthCheckTimeout)
	defer cancel()

	healthy := true
	details := map[string]any{
		"connected_clients": m.hub.ClientCount(),
		"sessions":          m.chat.SessionCount(),
	}
	for _, check := range m.checks {
		status := check.Health(ctx)
		if !status.Healthy {
			healthy = false
		}
		details[check.Name()] = status
	}

	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{
			Status:  "degraded",
			Details: details,
		})
	}
	return c.JSON(HealthResponse{
		Status:  "healthy",
		Details: details,
	})
}

// getMe handles GET /api/v1/me.
func (m *APIModule) getMe(c *fiber.Ctx) error {
	principal, ok := principalFrom(c)
	if !ok {
		return writeError(c, domain.ErrUnauthorized)
	}
	return c.JSON(principal)
}

// listPrincipals handles GET /api/v1/principals. Clients may not enumerate
// the company's staff.
func (m *APIModule) listPrincipals(c *fiber.Ctx) error {
	principal, ok := principalFrom(c)
	if !ok {
		return writeError(c, domain.ErrUnauthorized)
	}
	if !domain.PolicyFor(principal.Role).SeesIdentities {
		return writeError(c, fmt.Errorf("%w: your role cannot list company users", domain.ErrForbidden))
	}

	principals, err := m.identity.ListPrincipals(c.UserContext(), principal.TenantID)
	if err != nil {
		m.logger.Error("Failed to list principals", "tenantID", principal.TenantID, "error", err)
		return writeError(c, err)
	}
	if principals == nil {
		principals = []domain.Principal{}
	}
	return c.JSON(PrincipalListResponse{Principals: principals})
}

// listRooms handles GET /api/v1/rooms.
func (m *APIModule) listRooms(c *fiber.Ctx) error {
	principal, ok := principalFrom(c)
	if !ok {
		return writeError(c, domain.ErrUnauthorized)
	}
	rooms, err := m.chat.RoomsFor(c.UserContext(), principal)
	if err != nil {
		m.logger.Error("Failed to list rooms", "principalID", principal.ID, "error", err)
		return writeError(c, err)
	}
	return c.JSON(RoomListResponse{Rooms: rooms})
}

// getHistory handles GET /api/v1/rooms/:id/messages.
func (m *APIModule) getHistory(c *fiber.Ctx) error {
	principal, ok := principalFrom(c)
	if !ok {
		return writeError(c, domain.ErrUnauthorized)
	}
	roomID := roomParam(c)

	query := domain.HistoryQuery{BeforeID: c.Query("beforeId")}
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 0 {
			return writeError(c, fmt.Errorf("%w: limit must be a non-negative integer", domain.ErrValidation))
		}
		query.Limit = parsed
	}
	if b := c.Query("before"); b != "" {
		parsed, err := time.Parse(time.RFC3339Nano, b)
		if err != nil {
			return writeError(c, fmt.Errorf("%w: before must be an RFC 3339 timestamp", domain.ErrValidation))
		}
		query.Before = parsed
	}

	messages, err := m.chat.History(c.UserContext(), principal, roomID, query)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(HistoryResponse{RoomID: roomID, Messages: messages})
}

// deleteRoom handles DELETE /api/v1/rooms/:id.
func (m *APIModule) deleteRoom(c *fiber.Ctx) error {
	principal, ok := principalFrom(c)
	if !ok {
		return writeError(c, domain.ErrUnauthorized)
	}
	roomID := roomParam(c)

	result, err := m.chat.DeleteRoom(c.UserContext(), principal, roomID)
	if err != nil {
		m.logger.Warn("Room deletion refused", "roomID", roomID, "principalID", principal.ID, "error", err)
		return writeError(c, err)
	}
	return c.JSON(DeleteRoomResponse{RoomID: roomID, CascadeResult: result})
}

// uploadAttachment handles POST /api/v1/rooms/:id/files and /voices.
func (m *APIModule) uploadAttachment(kind domain.AttachmentKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := principalFrom(c)
		if !ok {
			return writeError(c, domain.ErrUnauthorized)
		}
		roomID := roomParam(c)

		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fmt.Errorf("%w: multipart field \"file\" is required", domain.ErrValidation))
		}
		if m.maxUpload > 0 && fh.Size > m.maxUpload {
			return writeError(c, fmt.Errorf("%w: attachment exceeds %d bytes", domain.ErrValidation, m.maxUpload))
		}
		data, err := readFormFile(fh)
		if err != nil {
			m.logger.Error("Failed to read upload", "roomID", roomID, "error", err)
			return writeError(c, fmt.Errorf("%w: could not read upload", domain.ErrValidation))
		}

		msg, err := m.chat.SendAttachment(c.UserContext(), principal, roomID, kind, fh.Filename, fh.Header.Get("Content-Type"), data)
		if err != nil {
			return writeError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(AttachmentResponse{
			Message: domain.NewMessageView(principal, msg),
		})
	}
}

// downloadAttachment handles GET /api/v1/attachments/:messageId.
func (m *APIModule) downloadAttachment(c *fiber.Ctx) error {
	principal, ok := principalFrom(c)
	if !ok {
		return writeError(c, domain.ErrUnauthorized)
	}
	att, data, err := m.chat.Download(c.UserContext(), principal, c.Params("messageId"))
	if err != nil {
		return writeError(c, err)
	}

	if att.MIME != "" {
		c.Set(fiber.HeaderContentType, att.MIME)
	} else {
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	}
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", att.Name))
	return c.Send(data)
}

// deleteAttachment handles DELETE /api/v1/attachments/:messageId.
func (m *APIModule) deleteAttachment(c *fiber.Ctx) error {
	principal, ok := principalFrom(c)
	if !ok {
		return writeError(c, domain.ErrUnauthorized)
	}
	msg, err := m.chat.DeleteAttachment(c.UserContext(), principal, c.Params("messageId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(AttachmentResponse{Message: domain.NewMessageView(principal, msg)})
}

// roomParam returns the unescaped :id route parameter.
func roomParam(c *fiber.Ctx) string {
	raw := c.Params("id")
	if id, err := url.PathUnescape(raw); err == nil {
		return id
	}
	return raw
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
