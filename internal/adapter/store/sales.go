package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/joseairosa/codesalvage-sub000/internal/domain"
	"github.com/joseairosa/codesalvage-sub000/internal/port"
)

const saleColumns = `id, buyer_id, seller_id, amount_cents, payment_status, escrow_status,
	escrow_release_at, released_at, repository_url, seller_github_token,
	seller_github_username, buyer_github_username, created_at, updated_at`

// FindByID returns the sale or port.ErrSaleNotFound.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (*domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE id = $1`

	sale, err := scanSale(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrSaleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find sale: %w", err)
	}
	return sale, nil
}

// ReleaseEscrow marks escrow released and records when funds moved.
func (s *PostgresStore) ReleaseEscrow(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE sales SET escrow_status = $2, released_at = $3, updated_at = NOW()
	          WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id, domain.EscrowStatusReleased, at); err != nil {
		return fmt.Errorf("release escrow: %w", err)
	}
	return nil
}

// UpdateEscrowStatus sets the escrow status unconditionally.
func (s *PostgresStore) UpdateEscrowStatus(ctx context.Context, id, status string) error {
	query := `UPDATE sales SET escrow_status = $2, updated_at = NOW() WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id, status); err != nil {
		return fmt.Errorf("update escrow status: %w", err)
	}
	return nil
}

// FindSalesEligibleForAutoTransfer returns settled, repository-linked sales
// with escrow held and a review window ending at or before asOf.
func (s *PostgresStore) FindSalesEligibleForAutoTransfer(ctx context.Context, asOf time.Time) ([]domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales
	          WHERE escrow_status = $1
	            AND payment_status = $2
	            AND repository_url <> ''
	            AND escrow_release_at IS NOT NULL
	            AND escrow_release_at <= $3
	          ORDER BY escrow_release_at`

	rows, err := s.db.QueryContext(ctx, query, domain.EscrowStatusHeld, domain.PaymentStatusSucceeded, asOf)
	if err != nil {
		return nil, fmt.Errorf("find eligible sales: %w", err)
	}
	defer rows.Close()

	var out []domain.Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		out = append(out, *sale)
	}
	return out, rows.Err()
}

// ClaimForProcessing atomically flips escrow from held to processing. The
// conditional WHERE makes it a compare-and-set: exactly one concurrent
// caller sees rows affected = 1.
func (s *PostgresStore) ClaimForProcessing(ctx context.Context, id string) (int64, error) {
	query := `UPDATE sales SET escrow_status = $2, updated_at = NOW()
	          WHERE id = $1 AND escrow_status = $3`
	res, err := s.db.ExecContext(ctx, query, id, domain.EscrowStatusProcessing, domain.EscrowStatusHeld)
	if err != nil {
		return 0, fmt.Errorf("claim sale for processing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("claim rows affected: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (*domain.Sale, error) {
	var sale domain.Sale
	err := row.Scan(
		&sale.ID, &sale.BuyerID, &sale.SellerID, &sale.AmountCents,
		&sale.PaymentStatus, &sale.EscrowStatus,
		&sale.EscrowReleaseAt, &sale.ReleasedAt,
		&sale.RepositoryURL, &sale.SellerGithubToken,
		&sale.SellerGithubUsername, &sale.BuyerGithubUsername,
		&sale.CreatedAt, &sale.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sale, nil
}
