package port

import (
	"context"
	"time"

	"github.com/joseairosa/codesalvage-sub000/internal/domain"
)

// SaleStore persists sale records and owns the atomic processing claim.
type SaleStore interface {
	// FindByID returns the sale or ErrSaleNotFound.
	FindByID(ctx context.Context, id string) (*domain.Sale, error)

	// ReleaseEscrow marks escrow released and stamps released_at.
	ReleaseEscrow(ctx context.Context, id string, at time.Time) error

	// UpdateEscrowStatus sets the escrow status unconditionally.
	UpdateEscrowStatus(ctx context.Context, id, status string) error

	// FindSalesEligibleForAutoTransfer returns repository-linked sales with
	// escrow held and a review window ending at or before asOf.
	FindSalesEligibleForAutoTransfer(ctx context.Context, asOf time.Time) ([]domain.Sale, error)

	// ClaimForProcessing atomically marks the sale as being processed and
	// returns the number of rows affected. Exactly one of any set of
	// concurrent callers observes 1; the rest observe 0.
	ClaimForProcessing(ctx context.Context, id string) (int64, error)
}

// TransferStatusUpdate carries the optional fields written alongside a
// transfer status change. Nil pointers leave the stored value untouched.
type TransferStatusUpdate struct {
	InvitationSentAt    *time.Time
	AcceptedAt          *time.Time
	TransferInitiatedAt *time.Time
	CompletedAt         *time.Time
	FailedAt            *time.Time
	LastError           *string
}

// TransferStore persists transfer records. Records are never deleted; they
// are the audit trail of the handover.
type TransferStore interface {
	// FindBySaleID returns the sale's transfer record or ErrTransferNotFound.
	FindBySaleID(ctx context.Context, saleID string) (*domain.TransferRecord, error)

	// Create inserts a new transfer record and returns the stored row.
	Create(ctx context.Context, rec *domain.TransferRecord) (*domain.TransferRecord, error)

	// UpdateStatus transitions the record to status and applies extra fields.
	UpdateStatus(ctx context.Context, id, status string, extra TransferStatusUpdate) error

	// SetBuyerUsername durably saves the buyer's hosting-platform username.
	SetBuyerUsername(ctx context.Context, id, username string) error

	// IncrementRetryCount bumps the retry counter by exactly one.
	IncrementRetryCount(ctx context.Context, id string) error
}
