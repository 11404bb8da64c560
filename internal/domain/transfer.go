package domain

import "time"

// TransferRecord tracks the repository-handover workflow for exactly one
// sale. It is the audit trail of the handover and is never deleted.
type TransferRecord struct {
	ID           string `json:"id"             db:"id"`
	SaleID       string `json:"sale_id"        db:"sale_id"`
	RepoFullName string `json:"repo_full_name" db:"repo_full_name"` // owner/name
	Method       string `json:"method"         db:"method"`
	Status       string `json:"status"         db:"status"`

	SellerGithubUsername string `json:"seller_github_username" db:"seller_github_username"`
	BuyerGithubUsername  string `json:"buyer_github_username"  db:"buyer_github_username"`

	InitiatedAt         time.Time  `json:"initiated_at"          db:"initiated_at"`
	InvitationSentAt    *time.Time `json:"invitation_sent_at"    db:"invitation_sent_at"`
	AcceptedAt          *time.Time `json:"accepted_at"           db:"accepted_at"`
	TransferInitiatedAt *time.Time `json:"transfer_initiated_at" db:"transfer_initiated_at"`
	CompletedAt         *time.Time `json:"completed_at"          db:"completed_at"`
	FailedAt            *time.Time `json:"failed_at"             db:"failed_at"`

	LastError  string `json:"last_error,omitempty" db:"last_error"`
	RetryCount int    `json:"retry_count"          db:"retry_count"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// The only supported handover method: grant the buyer collaborator access
// first, transfer full ownership after the review window.
const TransferMethodCollaborator = "collaborator_then_ownership"

// Transfer status constants.
const (
	TransferStatusPending           = "pending"            // record exists, invitation not yet sent
	TransferStatusInvitationSent    = "invitation_sent"    // buyer invited as collaborator
	TransferStatusTransferInitiated = "transfer_initiated" // ownership transfer issued to the platform
	TransferStatusCompleted         = "completed"          // buyer acknowledged the handover
	TransferStatusFailed            = "failed"             // last ownership-transfer attempt failed
)
