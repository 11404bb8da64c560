package service

import (
	"time"

	"github.com/joseairosa/codesalvage-sub000/internal/domain"
)

// timelineInput is the immutable snapshot a stage builder derives from.
// Transfer may be nil — handover not started.
type timelineInput struct {
	Sale        *domain.Sale
	Transfer    *domain.TransferRecord
	Role        string
	Now         time.Time
	FrontendURL string
}

type stageBuilder struct {
	key   string
	title string
	build func(in timelineInput) domain.TimelineStage
}

// timelineStages is the ordered stage set. The set has changed before and is
// expected to change again; edit this slice, not the derivation plumbing.
var timelineStages = []stageBuilder{
	{key: "agreement", title: "Offer & Agreement", build: buildAgreementStage},
	{key: "payment", title: "Payment", build: buildPaymentStage},
	{key: "collaborator_access", title: "Collaborator Access", build: buildCollaboratorStage},
	{key: "project_review", title: "Project Review", build: buildProjectReviewStage},
	{key: "trade_review", title: "Trade Review", build: buildTradeReviewStage},
	{key: "ownership_transfer", title: "Ownership Transfer", build: buildOwnershipStage},
}

// BuildTimeline derives the handover timeline from current record state. It
// is a pure function: no writes, no hidden inputs beyond its arguments.
func BuildTimeline(sale *domain.Sale, transfer *domain.TransferRecord, role string, now time.Time, frontendURL string) []domain.TimelineStage {
	in := timelineInput{Sale: sale, Transfer: transfer, Role: role, Now: now, FrontendURL: frontendURL}

	stages := make([]domain.TimelineStage, 0, len(timelineStages))
	for _, b := range timelineStages {
		stage := b.build(in)
		stage.Key = b.key
		stage.Title = b.title
		stages = append(stages, stage)
	}
	return stages
}

func buildAgreementStage(in timelineInput) domain.TimelineStage {
	at := in.Sale.CreatedAt
	return domain.TimelineStage{
		Status:      domain.StageStatusCompleted,
		Description: "Buyer and seller agreed on the sale.",
		CompletedAt: &at,
	}
}

func buildPaymentStage(in timelineInput) domain.TimelineStage {
	switch in.Sale.PaymentStatus {
	case domain.PaymentStatusSucceeded:
		return domain.TimelineStage{
			Status:      domain.StageStatusCompleted,
			Description: "Payment captured and held in escrow.",
		}
	case domain.PaymentStatusFailed:
		return domain.TimelineStage{
			Status:      domain.StageStatusFailed,
			Description: "Payment failed.",
		}
	default:
		return domain.TimelineStage{
			Status:      domain.StageStatusActive,
			Description: "Waiting for payment to settle.",
		}
	}
}

func buildCollaboratorStage(in timelineInput) domain.TimelineStage {
	if in.Sale.RepositoryURL == "" {
		return domain.TimelineStage{
			Status:      domain.StageStatusSkipped,
			Description: "This sale has no repository to hand over.",
		}
	}
	if in.Sale.PaymentStatus != domain.PaymentStatusSucceeded {
		return domain.TimelineStage{
			Status:      domain.StageStatusUpcoming,
			Description: "The buyer will receive collaborator access once payment settles.",
		}
	}

	t := in.Transfer
	if t != nil && t.InvitationSentAt != nil {
		return domain.TimelineStage{
			Status:      domain.StageStatusCompleted,
			Description: "The buyer was invited as a repository collaborator.",
			CompletedAt: t.InvitationSentAt,
		}
	}

	stage := domain.TimelineStage{
		Status:      domain.StageStatusActive,
		Description: "Waiting for the buyer to connect their GitHub account.",
	}
	if in.Role == domain.RoleBuyer {
		stage.Actions = []domain.StageAction{{
			Label: "Connect GitHub Account",
			URL:   in.FrontendURL + "/sales/" + in.Sale.ID + "/github",
		}}
	}
	return stage
}

func buildProjectReviewStage(in timelineInput) domain.TimelineStage {
	if in.Sale.RepositoryURL == "" {
		return domain.TimelineStage{
			Status:      domain.StageStatusSkipped,
			Description: "No repository to review.",
		}
	}

	t := in.Transfer
	if t == nil || t.InvitationSentAt == nil {
		return domain.TimelineStage{
			Status:      domain.StageStatusUpcoming,
			Description: "The review period starts once the buyer has collaborator access.",
		}
	}

	windowOver := in.Sale.EscrowReleaseAt != nil && !in.Sale.EscrowReleaseAt.After(in.Now)
	if windowOver || t.TransferInitiatedAt != nil {
		return domain.TimelineStage{
			Status:      domain.StageStatusCompleted,
			Description: "The buyer's review period has ended.",
			CompletedAt: in.Sale.EscrowReleaseAt,
		}
	}
	return domain.TimelineStage{
		Status:      domain.StageStatusActive,
		Description: "The buyer is reviewing the project before final handover.",
	}
}

func buildTradeReviewStage(in timelineInput) domain.TimelineStage {
	if in.Sale.RepositoryURL == "" {
		return domain.TimelineStage{
			Status:      domain.StageStatusSkipped,
			Description: "No handover to confirm.",
		}
	}

	t := in.Transfer
	if t != nil && t.CompletedAt != nil {
		return domain.TimelineStage{
			Status:      domain.StageStatusCompleted,
			Description: "The buyer confirmed the handover.",
			CompletedAt: t.CompletedAt,
		}
	}
	if t == nil || t.InvitationSentAt == nil {
		return domain.TimelineStage{
			Status:      domain.StageStatusUpcoming,
			Description: "The buyer can confirm the trade once they have access.",
		}
	}

	stage := domain.TimelineStage{
		Status:      domain.StageStatusActive,
		Description: "Waiting for the buyer to confirm the trade.",
	}
	if in.Role == domain.RoleBuyer {
		stage.Actions = []domain.StageAction{{
			Label: "Confirm Transfer",
			URL:   in.FrontendURL + "/sales/" + in.Sale.ID + "/confirm",
		}}
	}
	return stage
}

func buildOwnershipStage(in timelineInput) domain.TimelineStage {
	if in.Sale.RepositoryURL == "" {
		return domain.TimelineStage{
			Status:      domain.StageStatusSkipped,
			Description: "No repository ownership to transfer.",
		}
	}

	t := in.Transfer
	if t != nil && t.TransferInitiatedAt != nil {
		return domain.TimelineStage{
			Status:      domain.StageStatusCompleted,
			Description: "Full repository ownership was transferred to the buyer.",
			CompletedAt: t.TransferInitiatedAt,
		}
	}
	if t != nil && t.Status == domain.TransferStatusFailed {
		return domain.TimelineStage{
			Status:      domain.StageStatusFailed,
			Description: "Ownership transfer failed: " + t.LastError,
		}
	}

	windowOver := in.Sale.EscrowReleaseAt != nil && !in.Sale.EscrowReleaseAt.After(in.Now)
	if t == nil || t.InvitationSentAt == nil || !windowOver {
		return domain.TimelineStage{
			Status:      domain.StageStatusUpcoming,
			Description: "Ownership transfers automatically after the review period.",
		}
	}

	stage := domain.TimelineStage{
		Status:      domain.StageStatusActive,
		Description: "The review period ended; ownership transfer is due.",
	}
	if in.Role == domain.RoleSeller {
		stage.Actions = []domain.StageAction{{
			Label: "Transfer Now",
			URL:   in.FrontendURL + "/sales/" + in.Sale.ID + "/transfer",
		}}
	}
	return stage
}
