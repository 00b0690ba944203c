package api

import (
	"strings"

	domain "github.com/example/company-chat/domain/chat"
	"github.com/example/company-chat/modules/identity"
	"github.com/gofiber/fiber/v2"
)

const (
	// PrincipalContextKey is the key used to store the resolved principal in the Fiber context.
	PrincipalContextKey = "principal"
)

// bearerToken extracts the credential from the Authorization header, or from
// the token query parameter that browser WebSocket clients must use. A
// non-empty problem describes why no token could be extracted.
func bearerToken(c *fiber.Ctx) (token, problem string) {
	if authHeader := c.Get("Authorization"); authHeader != "" {
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return "", "Invalid authorization header format. Use: Bearer <token>"
		}
		token = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			return "", "Token is required"
		}
		return token, ""
	}
	if token = c.Query("token"); token != "" {
		return token, ""
	}
	return "", "Authorization header is required"
}

// AuthMiddleware resolves the caller's principal and refuses the request when
// the credential is missing, malformed or rejected.
func AuthMiddleware(identityPort identity.IdentityPort) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, problem := bearerToken(c)
		if problem != "" {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error:   domain.CodeUnauthorized,
				Message: problem,
			})
		}

		principal, err := identityPort.Resolve(c.UserContext(), token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error:   domain.CodeUnauthorized,
				Message: "Invalid or expired token",
			})
		}

		c.Locals(PrincipalContextKey, principal)
		return c.Next()
	}
}

// principalFrom returns the principal stored by AuthMiddleware.
func principalFrom(c *fiber.Ctx) (domain.Principal, bool) {
	principal, ok := c.Locals(PrincipalContextKey).(domain.Principal)
	return principal, ok
}

// statusFor maps the error taxonomy to an HTTP status.
func statusFor(err error) int {
	switch domain.Code(err) {
	case domain.CodeUnauthorized:
		return fiber.StatusUnauthorized
	case domain.CodeForbidden:
		return fiber.StatusForbidden
	case domain.CodeNotFound:
		return fiber.StatusNotFound
	case domain.CodeValidation:
		return fiber.StatusBadRequest
	case domain.CodeDependency:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// writeError reports err to the caller with its public message.
func writeError(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(ErrorResponse{
		Error:   domain.Code(err),
		Message: domain.PublicMessage(err),
	})
}
