package domain

import "time"

// Notification is a user-facing notice produced by the transfer engine.
// Delivery is best effort; the engine never blocks on it.
type Notification struct {
	ID        string    `json:"id"         db:"id"`
	UserID    string    `json:"user_id"    db:"user_id"`
	Kind      string    `json:"kind"       db:"kind"`
	Title     string    `json:"title"      db:"title"`
	Message   string    `json:"message"    db:"message"`
	ActionURL string    `json:"action_url" db:"action_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Notification kind constants.
const (
	NotificationTransferInitiated = "transfer_initiated"
	NotificationBuyerConnected    = "buyer_connected"
	NotificationTransferConfirmed = "transfer_confirmed"
	NotificationOwnershipMoved    = "ownership_transferred"
	NotificationEscrowReleased    = "escrow_released"
)
