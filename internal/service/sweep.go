package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseairosa/codesalvage-sub000/internal/domain"
	"github.com/joseairosa/codesalvage-sub000/internal/port"
)

// SweepReport summarizes one auto-transfer sweep.
type SweepReport struct {
	Eligible         int `json:"eligible"`
	Processed        int `json:"processed"`
	Skipped          int `json:"skipped"`
	Failed           int `json:"failed"`
	FallbackReleased int `json:"fallback_released"`
}

// ProcessAutoTransfers scans sales whose review window has ended and pushes
// each through the ownership transfer. A failure on one sale never aborts
// the sweep of the rest.
func (s *TransferService) ProcessAutoTransfers(ctx context.Context, asOf time.Time) (*SweepReport, error) {
	sales, err := s.sales.FindSalesEligibleForAutoTransfer(ctx, asOf)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{Eligible: len(sales)}
	for i := range sales {
		s.sweepOne(ctx, &sales[i], asOf, report)
	}

	slog.Info("auto-transfer sweep finished",
		"eligible", report.Eligible, "processed", report.Processed,
		"skipped", report.Skipped, "failed", report.Failed,
		"fallback_released", report.FallbackReleased)
	return report, nil
}

func (s *TransferService) sweepOne(ctx context.Context, sale *domain.Sale, asOf time.Time, report *SweepReport) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sweep panic", "sale_id", sale.ID, "panic", r)
			report.Failed++
		}
	}()

	rec, err := s.transfers.FindBySaleID(ctx, sale.ID)
	if err != nil && err != port.ErrTransferNotFound {
		slog.Error("sweep: find transfer failed", "sale_id", sale.ID, "error", err)
		report.Failed++
		return
	}

	if rec != nil {
		// Buyer never submitted a username: nothing to do, no retry charge.
		if rec.Status == domain.TransferStatusPending {
			report.Skipped++
			return
		}

		// Retries exhausted: prolonged transfer failure is not the buyer's
		// problem. Past the absolute age bound the escrow is released with
		// no further transfer attempt.
		if rec.RetryCount > s.maxRetries {
			if asOf.Sub(sale.CreatedAt) >= s.fallbackAge {
				if err := s.sales.ReleaseEscrow(ctx, sale.ID, asOf); err != nil {
					slog.Error("sweep: fallback release failed", "sale_id", sale.ID, "error", err)
					report.Failed++
					return
				}
				slog.Warn("escrow released by age fallback without ownership transfer",
					"sale_id", sale.ID, "retry_count", rec.RetryCount)
				s.notifyAsync(sale.SellerID, domain.NotificationEscrowReleased,
					"Funds released",
					"Your escrowed funds were released after the transfer window elapsed.",
					s.saleURL(sale.ID))
				report.Processed++
				report.FallbackReleased++
			} else {
				report.Skipped++
			}
			return
		}
	}

	res, err := s.TransferOwnership(ctx, sale.ID, "")
	if err != nil {
		slog.Error("sweep: transfer ownership failed", "sale_id", sale.ID, "error", err)
		report.Failed++
		return
	}
	switch {
	case res.Performed:
		report.Processed++
	case res.Failed:
		report.Failed++
	default:
		report.Skipped++
	}
}

// SweepDriver runs the auto-transfer sweep on a fixed interval.
type SweepDriver struct {
	svc      *TransferService
	interval time.Duration
}

// NewSweepDriver creates a driver that sweeps every interval.
func NewSweepDriver(svc *TransferService, interval time.Duration) *SweepDriver {
	return &SweepDriver{svc: svc, interval: interval}
}

// Run blocks until ctx is canceled, sweeping once per interval.
func (d *SweepDriver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	slog.Info("sweep driver started", "interval", d.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("sweep driver stopped")
			return
		case now := <-ticker.C:
			if _, err := d.svc.ProcessAutoTransfers(ctx, now); err != nil {
				slog.Error("auto-transfer sweep failed", "error", err)
			}
		}
	}
}
