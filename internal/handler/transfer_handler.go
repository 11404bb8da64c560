package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/joseairosa/codesalvage-sub000/internal/middleware"
	"github.com/joseairosa/codesalvage-sub000/internal/port"
	"github.com/joseairosa/codesalvage-sub000/internal/service"
)

// TransferHandler exposes the transfer lifecycle engine over HTTP.
type TransferHandler struct {
	svc *service.TransferService
}

// NewTransferHandler creates a new transfer handler.
func NewTransferHandler(svc *service.TransferService) *TransferHandler {
	return &TransferHandler{svc: svc}
}

// Register sets up transfer routes on a protected group.
func (h *TransferHandler) Register(api fiber.Router) {
	sales := api.Group("/sales")
	sales.Post("/:id/transfer", h.Initiate)
	sales.Put("/:id/transfer/github-username", h.SetBuyerUsername)
	sales.Post("/:id/transfer/confirm", h.Confirm)
	sales.Post("/:id/transfer/now", h.TransferNow)
	sales.Get("/:id/timeline", h.Timeline)
}

// Initiate starts the handover for a sale. Seller only.
func (h *TransferHandler) Initiate(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	rec, err := h.svc.InitiateTransfer(c.Context(), uc.UserID, c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(rec)
}

// SetBuyerUsername records the buyer's GitHub username and invites them as a
// collaborator. Buyer only.
func (h *TransferHandler) SetBuyerUsername(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var body struct {
		Username string `json:"username"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	rec, err := h.svc.SetBuyerUsername(c.Context(), uc.UserID, c.Params("id"), body.Username)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(rec)
}

// Confirm records the buyer's acknowledgment of the handover.
func (h *TransferHandler) Confirm(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	rec, err := h.svc.ConfirmTransfer(c.Context(), uc.UserID, c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(rec)
}

// TransferNow performs the ownership transfer ahead of the review-window
// timer. Seller only. Skips come back as performed:false with a reason.
func (h *TransferHandler) TransferNow(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	res, err := h.svc.TransferOwnership(c.Context(), c.Params("id"), uc.UserID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

// Timeline returns the derived handover timeline for the requesting buyer or
// seller.
func (h *TransferHandler) Timeline(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	stages, err := h.svc.GetTimeline(c.Context(), uc.UserID, c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"stages": stages, "count": len(stages)})
}

// writeError maps engine errors onto HTTP statuses.
func writeError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, port.ErrSaleNotFound), errors.Is(err, port.ErrTransferNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, port.ErrPermissionDenied):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case port.IsValidation(err):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
