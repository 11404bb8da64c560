package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/joseairosa/codesalvage-sub000/internal/domain"
	"github.com/joseairosa/codesalvage-sub000/internal/port"
)

const transferColumns = `id, sale_id, repo_full_name, method, status,
	seller_github_username, buyer_github_username,
	initiated_at, invitation_sent_at, accepted_at, transfer_initiated_at,
	completed_at, failed_at, last_error, retry_count, created_at, updated_at`

// FindBySaleID returns the sale's transfer record or port.ErrTransferNotFound.
func (s *PostgresStore) FindBySaleID(ctx context.Context, saleID string) (*domain.TransferRecord, error) {
	query := `SELECT ` + transferColumns + ` FROM repo_transfers WHERE sale_id = $1`

	rec, err := scanTransfer(s.db.QueryRowContext(ctx, query, saleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrTransferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find transfer: %w", err)
	}
	return rec, nil
}

// Create inserts a new transfer record and returns the stored row.
func (s *PostgresStore) Create(ctx context.Context, rec *domain.TransferRecord) (*domain.TransferRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	query := `INSERT INTO repo_transfers
	          (id, sale_id, repo_full_name, method, status,
	           seller_github_username, buyer_github_username,
	           initiated_at, invitation_sent_at, retry_count)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	          RETURNING ` + transferColumns

	row := s.db.QueryRowContext(ctx, query,
		rec.ID, rec.SaleID, rec.RepoFullName, rec.Method, rec.Status,
		rec.SellerGithubUsername, rec.BuyerGithubUsername,
		rec.InitiatedAt, rec.InvitationSentAt, rec.RetryCount,
	)
	created, err := scanTransfer(row)
	if err != nil {
		return nil, fmt.Errorf("create transfer: %w", err)
	}
	return created, nil
}

// UpdateStatus transitions the record and applies the optional event fields.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id, status string, extra port.TransferStatusUpdate) error {
	query := `UPDATE repo_transfers SET
	            status = $2,
	            invitation_sent_at = COALESCE($3, invitation_sent_at),
	            accepted_at = COALESCE($4, accepted_at),
	            transfer_initiated_at = COALESCE($5, transfer_initiated_at),
	            completed_at = COALESCE($6, completed_at),
	            failed_at = COALESCE($7, failed_at),
	            last_error = COALESCE($8, last_error),
	            updated_at = NOW()
	          WHERE id = $1`

	_, err := s.db.ExecContext(ctx, query, id, status,
		extra.InvitationSentAt, extra.AcceptedAt, extra.TransferInitiatedAt,
		extra.CompletedAt, extra.FailedAt, extra.LastError,
	)
	if err != nil {
		return fmt.Errorf("update transfer status: %w", err)
	}
	return nil
}

// SetBuyerUsername durably saves the buyer's hosting-platform username on
// both the transfer record and the owning sale.
func (s *PostgresStore) SetBuyerUsername(ctx context.Context, id, username string) error {
	query := `UPDATE repo_transfers SET buyer_github_username = $2, updated_at = NOW()
	          WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id, username); err != nil {
		return fmt.Errorf("set buyer username: %w", err)
	}

	sync := `UPDATE sales SET buyer_github_username = $2, updated_at = NOW()
	         WHERE id = (SELECT sale_id FROM repo_transfers WHERE id = $1)`
	if _, err := s.db.ExecContext(ctx, sync, id, username); err != nil {
		return fmt.Errorf("sync buyer username to sale: %w", err)
	}
	return nil
}

// IncrementRetryCount bumps the retry counter by exactly one.
func (s *PostgresStore) IncrementRetryCount(ctx context.Context, id string) error {
	query := `UPDATE repo_transfers SET retry_count = retry_count + 1, updated_at = NOW()
	          WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("increment retry count: %w", err)
	}
	return nil
}

func scanTransfer(row rowScanner) (*domain.TransferRecord, error) {
	var rec domain.TransferRecord
	err := row.Scan(
		&rec.ID, &rec.SaleID, &rec.RepoFullName, &rec.Method, &rec.Status,
		&rec.SellerGithubUsername, &rec.BuyerGithubUsername,
		&rec.InitiatedAt, &rec.InvitationSentAt, &rec.AcceptedAt,
		&rec.TransferInitiatedAt, &rec.CompletedAt, &rec.FailedAt,
		&rec.LastError, &rec.RetryCount, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
