package domain

import "time"

// Sale represents one marketplace purchase of a code project.
type Sale struct {
	ID              string     `json:"id"                db:"id"`
	BuyerID         string     `json:"buyer_id"          db:"buyer_id"`
	SellerID        string     `json:"seller_id"         db:"seller_id"`
	AmountCents     int64      `json:"amount_cents"      db:"amount_cents"`
	PaymentStatus   string     `json:"payment_status"    db:"payment_status"`
	EscrowStatus    string     `json:"escrow_status"     db:"escrow_status"`
	EscrowReleaseAt *time.Time `json:"escrow_release_at" db:"escrow_release_at"` // end of the buyer review window
	ReleasedAt      *time.Time `json:"released_at"       db:"released_at"`       // when funds actually moved

	// Repository handover fields. An empty RepositoryURL means the sale has
	// no repository attached and no transfer applies.
	RepositoryURL        string `json:"repository_url"         db:"repository_url"`
	SellerGithubToken    string `json:"-"                      db:"seller_github_token"` // sealed at rest, never serialized
	SellerGithubUsername string `json:"seller_github_username" db:"seller_github_username"`
	BuyerGithubUsername  string `json:"buyer_github_username"  db:"buyer_github_username"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Payment status constants.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
)

// Escrow status constants. "processing" is a transient claim state used to
// serialize concurrent ownership-transfer attempts; every code path that
// claims a sale either releases escrow or puts it back to "held".
const (
	EscrowStatusHeld       = "held"
	EscrowStatusProcessing = "processing"
	EscrowStatusReleased   = "released"
	EscrowStatusRefunded   = "refunded"
	EscrowStatusDisputed   = "disputed"
)
