package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/joseairosa/codesalvage-sub000/internal/adapter/store"
	"github.com/joseairosa/codesalvage-sub000/internal/middleware"
)

// NotificationHandler lists the notices produced by the transfer engine.
type NotificationHandler struct {
	store *store.PostgresStore
}

// NewNotificationHandler creates a new notification handler.
func NewNotificationHandler(store *store.PostgresStore) *NotificationHandler {
	return &NotificationHandler{store: store}
}

// Register sets up notification routes.
func (h *NotificationHandler) Register(api fiber.Router) {
	api.Get("/notifications", h.List)
}

// List returns the newest notifications for the current user.
func (h *NotificationHandler) List(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	notices, err := h.store.ListNotifications(c.Context(), uc.UserID, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"notifications": notices, "count": len(notices)})
}
