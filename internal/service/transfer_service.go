package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseairosa/codesalvage-sub000/internal/domain"
	"github.com/joseairosa/codesalvage-sub000/internal/port"
	"github.com/joseairosa/codesalvage-sub000/internal/secret"
)

// SkipReason explains why an ownership-transfer invocation was not performed.
// Skips are legitimate outcomes, not errors; the batch sweep relies on them
// to keep moving.
type SkipReason string

const (
	SkipNoTransferRecord   SkipReason = "no_transfer_record"
	SkipAwaitingBuyer      SkipReason = "awaiting_buyer_username"
	SkipMissingUsername    SkipReason = "missing_buyer_username"
	SkipPaymentNotSettled  SkipReason = "payment_not_settled"
	SkipRetriesExhausted   SkipReason = "retries_exhausted"
	SkipMissingRepository  SkipReason = "missing_repository"
	SkipMissingCredential  SkipReason = "missing_credential"
	SkipAlreadyProcessing  SkipReason = "already_being_processed"
	SkipAlreadyTransferred SkipReason = "already_transferred"
)

// OwnershipResult is the structured outcome of TransferOwnership. Exactly one
// of three shapes: performed, skipped (SkipReason set), or failed (Failed set
// with the classified message recorded on the transfer record).
type OwnershipResult struct {
	Performed  bool                   `json:"performed"`
	SkipReason SkipReason             `json:"skip_reason,omitempty"`
	Failed     bool                   `json:"failed,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Transfer   *domain.TransferRecord `json:"transfer,omitempty"`
}

// TransferService orchestrates the repository-handover lifecycle between a
// sale's seller and buyer. It holds no mutable state between invocations and
// re-reads both records from their stores at the start of every operation.
type TransferService struct {
	sales     port.SaleStore
	transfers port.TransferStore
	provider  port.RepoAccessProvider
	notifier  port.Notifier
	cipher    *secret.Cipher

	frontendURL string
	maxRetries  int
	fallbackAge time.Duration
}

// NewTransferService creates the lifecycle engine.
func NewTransferService(
	sales port.SaleStore,
	transfers port.TransferStore,
	provider port.RepoAccessProvider,
	notifier port.Notifier,
	cipher *secret.Cipher,
	frontendURL string,
	maxRetries int,
	fallbackAge time.Duration,
) *TransferService {
	return &TransferService{
		sales:       sales,
		transfers:   transfers,
		provider:    provider,
		notifier:    notifier,
		cipher:      cipher,
		frontendURL: frontendURL,
		maxRetries:  maxRetries,
		fallbackAge: fallbackAge,
	}
}

// InitiateTransfer starts the handover for a sale at the seller's request.
// When the buyer's hosting-platform username is already known the buyer is
// invited as a collaborator immediately.
func (s *TransferService) InitiateTransfer(ctx context.Context, sellerID, saleID string) (*domain.TransferRecord, error) {
	sale, err := s.sales.FindByID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.SellerID != sellerID {
		return nil, port.ErrPermissionDenied
	}
	if sale.PaymentStatus != domain.PaymentStatusSucceeded {
		return nil, port.Validationf("payment is not settled")
	}
	if sale.RepositoryURL == "" {
		return nil, port.Validationf("sale has no linked repository")
	}

	if _, err := s.transfers.FindBySaleID(ctx, saleID); err == nil {
		return nil, port.Validationf("transfer already initiated for this sale")
	} else if err != port.ErrTransferNotFound {
		return nil, fmt.Errorf("check existing transfer: %w", err)
	}

	if sale.SellerGithubToken == "" {
		return nil, port.Validationf("seller has no connected hosting credential")
	}

	token, err := s.cipher.Open(sale.SellerGithubToken)
	if err != nil {
		return nil, fmt.Errorf("unseal seller credential: %w", err)
	}
	owner, name, err := parseRepoFullName(sale.RepositoryURL)
	if err != nil {
		return nil, port.Validationf("repository URL is not valid: %v", err)
	}

	now := time.Now()
	rec := &domain.TransferRecord{
		SaleID:               saleID,
		RepoFullName:         owner + "/" + name,
		Method:               domain.TransferMethodCollaborator,
		Status:               domain.TransferStatusPending,
		SellerGithubUsername: sale.SellerGithubUsername,
		BuyerGithubUsername:  sale.BuyerGithubUsername,
		InitiatedAt:          now,
	}

	if sale.BuyerGithubUsername != "" {
		if _, err := s.provider.GrantCollaborator(ctx, owner, name, sale.BuyerGithubUsername, token); err != nil {
			return nil, fmt.Errorf("grant collaborator: %w", err)
		}
		rec.Status = domain.TransferStatusInvitationSent
		rec.InvitationSentAt = &now
	}

	created, err := s.transfers.Create(ctx, rec)
	if err != nil {
		return nil, err
	}

	s.notifyAsync(sale.BuyerID, domain.NotificationTransferInitiated,
		"Repository transfer started",
		"The seller has started handing over the repository for your purchase.",
		s.saleURL(saleID))

	slog.Info("transfer initiated", "sale_id", saleID, "status", created.Status)
	return created, nil
}

// SetBuyerUsername records the buyer's hosting-platform username and invites
// them as a collaborator. This is the primary entry point of the flow:
// sellers no longer initiate manually, so a missing transfer record is
// created lazily here. The username is always persisted before any remote
// call so a retry never asks the buyer to re-enter it.
func (s *TransferService) SetBuyerUsername(ctx context.Context, buyerID, saleID, username string) (*domain.TransferRecord, error) {
	sale, err := s.sales.FindByID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.BuyerID != buyerID {
		return nil, port.ErrPermissionDenied
	}
	if sale.PaymentStatus != domain.PaymentStatusSucceeded {
		return nil, port.Validationf("payment is not settled")
	}
	if sale.RepositoryURL == "" {
		return nil, port.Validationf("sale has no linked repository")
	}
	if sale.SellerGithubToken == "" {
		return nil, port.Validationf("seller has no connected hosting credential")
	}

	username = strings.TrimSpace(username)
	if username == "" {
		return nil, port.Validationf("username must not be empty")
	}

	owner, name, err := parseRepoFullName(sale.RepositoryURL)
	if err != nil {
		return nil, port.Validationf("repository URL is not valid: %v", err)
	}

	rec, err := s.transfers.FindBySaleID(ctx, saleID)
	switch {
	case err == port.ErrTransferNotFound:
		now := time.Now()
		rec, err = s.transfers.Create(ctx, &domain.TransferRecord{
			SaleID:               saleID,
			RepoFullName:         owner + "/" + name,
			Method:               domain.TransferMethodCollaborator,
			Status:               domain.TransferStatusPending,
			SellerGithubUsername: sale.SellerGithubUsername,
			BuyerGithubUsername:  username,
			InitiatedAt:          now,
		})
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("find transfer: %w", err)
	}

	// Durable first: the username survives even if the grant below fails.
	if err := s.transfers.SetBuyerUsername(ctx, rec.ID, username); err != nil {
		return nil, err
	}
	rec.BuyerGithubUsername = username

	// Past invitation_sent the grant already happened; re-submitting the
	// username is a no-op.
	if rec.Status != domain.TransferStatusPending && rec.Status != domain.TransferStatusFailed {
		return rec, nil
	}

	token, err := s.cipher.Open(sale.SellerGithubToken)
	if err != nil {
		return nil, fmt.Errorf("unseal seller credential: %w", err)
	}

	if _, err := s.provider.GrantCollaborator(ctx, owner, name, username, token); err != nil {
		// Username is already saved; the caller can retry the grant alone.
		return nil, fmt.Errorf("grant collaborator: %w", err)
	}

	now := time.Now()
	if err := s.transfers.UpdateStatus(ctx, rec.ID, domain.TransferStatusInvitationSent,
		port.TransferStatusUpdate{InvitationSentAt: &now}); err != nil {
		return nil, err
	}
	rec.Status = domain.TransferStatusInvitationSent
	rec.InvitationSentAt = &now

	s.notifyAsync(sale.SellerID, domain.NotificationBuyerConnected,
		"Buyer connected their account",
		fmt.Sprintf("The buyer connected GitHub account %q and was invited as a collaborator.", username),
		s.saleURL(saleID))

	slog.Info("buyer username set", "sale_id", saleID, "status", rec.Status)
	return rec, nil
}

// ConfirmTransfer records the buyer's acknowledgment of the handover. It is
// advisory: the irreversible ownership transfer runs on the review-window
// timer or an explicit early-transfer action regardless of confirmation.
func (s *TransferService) ConfirmTransfer(ctx context.Context, buyerID, saleID string) (*domain.TransferRecord, error) {
	sale, err := s.sales.FindByID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.BuyerID != buyerID {
		return nil, port.ErrPermissionDenied
	}

	rec, err := s.transfers.FindBySaleID(ctx, saleID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.transfers.UpdateStatus(ctx, rec.ID, domain.TransferStatusCompleted,
		port.TransferStatusUpdate{CompletedAt: &now}); err != nil {
		return nil, err
	}
	rec.Status = domain.TransferStatusCompleted
	rec.CompletedAt = &now

	s.notifyAsync(sale.SellerID, domain.NotificationTransferConfirmed,
		"Buyer confirmed the transfer",
		"The buyer confirmed they received access to the repository.",
		s.saleURL(saleID))

	slog.Info("transfer confirmed by buyer", "sale_id", saleID)
	return rec, nil
}

// TransferOwnership performs the irreversible ownership handover for a sale.
// actorID is empty when the batch sweep calls it; an interactive caller must
// be the sale's seller. Every unmet precondition except a missing sale or a
// foreign caller is a structured skip, not an error. Provider failures are
// recorded on the transfer record and returned as a failed result; they
// never propagate as errors.
func (s *TransferService) TransferOwnership(ctx context.Context, saleID, actorID string) (*OwnershipResult, error) {
	sale, err := s.sales.FindByID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if actorID != "" && actorID != sale.SellerID {
		return nil, port.ErrPermissionDenied
	}

	if sale.PaymentStatus != domain.PaymentStatusSucceeded {
		return skip(SkipPaymentNotSettled, nil), nil
	}

	rec, err := s.transfers.FindBySaleID(ctx, saleID)
	if err == port.ErrTransferNotFound {
		return skip(SkipNoTransferRecord, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("find transfer: %w", err)
	}

	// Terminal success: the remote call is not idempotent, so once the
	// handover has gone through it must never be re-issued. An early
	// transfer leaves escrow held until the review window closes; when it
	// has closed by now, release escrow here without touching the provider.
	if rec.TransferInitiatedAt != nil {
		now := time.Now()
		if sale.EscrowStatus == domain.EscrowStatusHeld &&
			sale.EscrowReleaseAt != nil && !sale.EscrowReleaseAt.After(now) {
			if err := s.sales.ReleaseEscrow(ctx, saleID, now); err != nil {
				return nil, fmt.Errorf("release escrow: %w", err)
			}
			s.notifyAsync(sale.SellerID, domain.NotificationEscrowReleased,
				"Funds released",
				"Repository ownership was transferred and your escrowed funds were released.",
				s.saleURL(saleID))
		}
		return skip(SkipAlreadyTransferred, rec), nil
	}

	if rec.Status == domain.TransferStatusPending {
		return skip(SkipAwaitingBuyer, rec), nil
	}
	if rec.BuyerGithubUsername == "" {
		return skip(SkipMissingUsername, rec), nil
	}
	if rec.RetryCount > s.maxRetries {
		return skip(SkipRetriesExhausted, rec), nil
	}
	if sale.RepositoryURL == "" {
		return skip(SkipMissingRepository, rec), nil
	}
	if sale.SellerGithubToken == "" {
		return skip(SkipMissingCredential, rec), nil
	}

	token, err := s.cipher.Open(sale.SellerGithubToken)
	if err != nil {
		return nil, fmt.Errorf("unseal seller credential: %w", err)
	}
	owner, name, err := splitFullName(rec.RepoFullName)
	if err != nil {
		return nil, fmt.Errorf("transfer record repo name: %w", err)
	}

	// Claim before the remote call. The claim is the only mutual exclusion:
	// the provider call is not idempotent, so exactly one concurrent caller
	// may pass this point.
	rows, err := s.sales.ClaimForProcessing(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("claim sale: %w", err)
	}
	if rows == 0 {
		return skip(SkipAlreadyProcessing, rec), nil
	}

	if err := s.provider.TransferOwnership(ctx, owner, name, rec.BuyerGithubUsername, token); err != nil {
		return s.recordTransferFailure(ctx, sale, rec, err), nil
	}

	now := time.Now()
	if err := s.transfers.UpdateStatus(ctx, rec.ID, domain.TransferStatusTransferInitiated,
		port.TransferStatusUpdate{TransferInitiatedAt: &now}); err != nil {
		// The escrow write below is still attempted; escrow is always the
		// last write of this operation.
		slog.Error("transfer status update failed after successful handover",
			"sale_id", saleID, "error", err)
	}
	rec.Status = domain.TransferStatusTransferInitiated
	rec.TransferInitiatedAt = &now

	if sale.EscrowReleaseAt != nil && !sale.EscrowReleaseAt.After(now) {
		if err := s.sales.ReleaseEscrow(ctx, saleID, now); err != nil {
			// Undo the claim so a later sweep can still finish the release;
			// the record already marks the handover as done.
			if resetErr := s.sales.UpdateEscrowStatus(ctx, saleID, domain.EscrowStatusHeld); resetErr != nil {
				slog.Error("restore escrow status failed", "sale_id", saleID, "error", resetErr)
			}
			return nil, fmt.Errorf("release escrow: %w", err)
		}
		s.notifyAsync(sale.SellerID, domain.NotificationEscrowReleased,
			"Funds released",
			"Repository ownership was transferred and your escrowed funds were released.",
			s.saleURL(saleID))
	} else {
		// Review window still open: undo the claim so later checks see a
		// correctly-held escrow.
		if err := s.sales.UpdateEscrowStatus(ctx, saleID, domain.EscrowStatusHeld); err != nil {
			return nil, fmt.Errorf("restore escrow status: %w", err)
		}
	}

	s.notifyAsync(sale.BuyerID, domain.NotificationOwnershipMoved,
		"Repository ownership transferred",
		"Full ownership of the repository has been transferred to your account.",
		s.saleURL(saleID))

	slog.Info("ownership transfer performed", "sale_id", saleID, "repo", rec.RepoFullName)
	return &OwnershipResult{Performed: true, Transfer: rec}, nil
}

// recordTransferFailure classifies a provider failure, persists it on the
// transfer record and puts escrow back to held. Expired credentials are
// non-retryable: the counter stays untouched and the failure is flagged for
// an operator instead.
func (s *TransferService) recordTransferFailure(ctx context.Context, sale *domain.Sale, rec *domain.TransferRecord, cause error) *OwnershipResult {
	msg := classifyFailureMessage(cause)

	if port.IsProviderUnauthorized(cause) {
		slog.Error("ownership transfer blocked: seller credential expired, admin action required",
			"sale_id", sale.ID, "repo", rec.RepoFullName)
	} else {
		if err := s.transfers.IncrementRetryCount(ctx, rec.ID); err != nil {
			slog.Error("increment retry count failed", "sale_id", sale.ID, "error", err)
		} else {
			rec.RetryCount++
		}
	}

	now := time.Now()
	if err := s.transfers.UpdateStatus(ctx, rec.ID, domain.TransferStatusFailed,
		port.TransferStatusUpdate{FailedAt: &now, LastError: &msg}); err != nil {
		slog.Error("record transfer failure failed", "sale_id", sale.ID, "error", err)
	}
	rec.Status = domain.TransferStatusFailed
	rec.FailedAt = &now
	rec.LastError = msg

	if err := s.sales.UpdateEscrowStatus(ctx, sale.ID, domain.EscrowStatusHeld); err != nil {
		slog.Error("restore escrow status failed", "sale_id", sale.ID, "error", err)
	}

	slog.Warn("ownership transfer failed", "sale_id", sale.ID,
		"class", port.ProviderClassOf(cause), "retry_count", rec.RetryCount)
	return &OwnershipResult{Failed: true, Message: msg, Transfer: rec}
}

// GetTimeline derives the handover timeline for the requesting buyer or
// seller. Pure read: safe to call at any frequency.
func (s *TransferService) GetTimeline(ctx context.Context, requesterID, saleID string) ([]domain.TimelineStage, error) {
	sale, err := s.sales.FindByID(ctx, saleID)
	if err != nil {
		return nil, err
	}

	var role string
	switch requesterID {
	case sale.BuyerID:
		role = domain.RoleBuyer
	case sale.SellerID:
		role = domain.RoleSeller
	default:
		return nil, port.ErrPermissionDenied
	}

	rec, err := s.transfers.FindBySaleID(ctx, saleID)
	if err == port.ErrTransferNotFound {
		rec = nil
	} else if err != nil {
		return nil, fmt.Errorf("find transfer: %w", err)
	}

	return BuildTimeline(sale, rec, role, time.Now(), s.frontendURL), nil
}

// notifyAsync delivers a notice on a detached goroutine; failures are logged
// and discarded.
func (s *TransferService) notifyAsync(userID, kind, title, message, actionURL string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.notifier.Notify(ctx, userID, kind, title, message, actionURL); err != nil {
			slog.Warn("notification delivery failed", "user_id", userID, "kind", kind, "error", err)
		}
	}()
}

func (s *TransferService) saleURL(saleID string) string {
	return s.frontendURL + "/sales/" + saleID
}

func skip(reason SkipReason, rec *domain.TransferRecord) *OwnershipResult {
	return &OwnershipResult{SkipReason: reason, Transfer: rec}
}

// classifyFailureMessage converts a provider failure into the message stored
// on the transfer record and shown on the timeline. Raw provider payloads
// are never exposed.
func classifyFailureMessage(err error) string {
	switch port.ProviderClassOf(err) {
	case port.ProviderUnauthorized:
		return "hosting credential expired or revoked; the seller must reconnect their account"
	case port.ProviderNotFound:
		return "repository or user not found on the hosting platform"
	case port.ProviderForbidden:
		return "the hosting platform refused the transfer for this credential"
	case port.ProviderConflict:
		return "a conflicting transfer already exists on the hosting platform"
	case port.ProviderValidationFailed:
		return "the hosting platform rejected the transfer request"
	default:
		return "ownership transfer failed; it will be retried"
	}
}

// parseRepoFullName extracts owner and name from a repository URL such as
// https://github.com/owner/name or git@github.com:owner/name.git.
func parseRepoFullName(repoURL string) (owner, name string, err error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(repoURL), ".git")
	trimmed = strings.TrimSuffix(trimmed, "/")

	if i := strings.LastIndex(trimmed, ":"); i >= 0 && strings.Contains(trimmed[:i], "@") {
		trimmed = trimmed[i+1:]
	}

	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("cannot parse owner/name from %q", repoURL)
	}
	owner, name = parts[len(parts)-2], parts[len(parts)-1]
	if owner == "" || name == "" || strings.Contains(owner, ".") && len(parts) == 2 {
		return "", "", fmt.Errorf("cannot parse owner/name from %q", repoURL)
	}
	return owner, name, nil
}

func splitFullName(fullName string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("malformed full name %q", fullName)
	}
	return owner, name, nil
}
