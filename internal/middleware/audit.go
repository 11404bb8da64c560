package middleware

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/joseairosa/codesalvage-sub000/internal/domain"
)

// AuditWriter defines how audit records are persisted.
type AuditWriter interface {
	WriteAudit(userID, action, resource, resourceID, details, ip, userAgent string) error
}

// AuditMiddleware records every request against the transfer API. Writes
// happen off the request path; a failed write is logged and dropped.
func AuditMiddleware(writer AuditWriter) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		// Capture request data before handler execution: Fiber reuses
		// context objects.
		method := c.Method()
		path := c.Path()
		ip := c.IP()
		userAgent := c.Get("User-Agent")

		err := c.Next()

		// Route params and the matched route are only bound after Next.
		saleID := c.Params("id")
		action := auditAction(method, c.Route().Path)

		userID := "anonymous"
		if uc := GetUserContext(c); uc != nil {
			userID = uc.UserID
		}

		statusCode := c.Response().StatusCode()
		details := map[string]any{
			"method":      method,
			"path":        path,
			"status":      statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
		}
		detailsJSON, _ := json.Marshal(details)

		go func() {
			if writeErr := writer.WriteAudit(
				userID,
				action,
				"sale",
				saleID,
				string(detailsJSON),
				ip,
				userAgent,
			); writeErr != nil {
				slog.Error("failed to write audit log", "error", writeErr)
			}
		}()

		return err
	}
}

// auditAction maps a matched route onto its lifecycle action. Anything
// outside the transfer flow is recorded as a plain HTTP request.
func auditAction(method, routePath string) string {
	switch {
	case method == fiber.MethodPost && strings.HasSuffix(routePath, "/sales/:id/transfer"):
		return domain.AuditActionTransferInitiate
	case method == fiber.MethodPut && strings.HasSuffix(routePath, "/transfer/github-username"):
		return domain.AuditActionUsernameSubmit
	case method == fiber.MethodPost && strings.HasSuffix(routePath, "/transfer/confirm"):
		return domain.AuditActionTransferConfirm
	case method == fiber.MethodPost && strings.HasSuffix(routePath, "/transfer/now"):
		return domain.AuditActionOwnershipTransfer
	default:
		return domain.AuditActionHTTPRequest
	}
}
