package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseairosa/codesalvage-sub000/internal/domain"
	"github.com/joseairosa/codesalvage-sub000/internal/port"
)

func eligibleSale(env *testEnv, id string, mutate ...func(*domain.Sale)) *domain.Sale {
	sale := saleFixture(env.cipher, func(s *domain.Sale) {
		s.ID = id
		s.EscrowReleaseAt = pastWindow()
	})
	for _, m := range mutate {
		m(sale)
	}
	env.sales.mu.Lock()
	env.sales.sales[id] = sale
	env.sales.mu.Unlock()
	return sale
}

func TestProcessAutoTransfers_PerformsDueTransfers(t *testing.T) {
	env := newTestEnv(newFakeSaleStore(), newFakeTransferStore())
	eligibleSale(env, "sale-1")
	env.transfers.records["sale-1"] = invitedRecord("sale-1")

	report, err := env.svc.ProcessAutoTransfers(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Eligible)
	assert.Equal(t, 1, report.Processed)
	assert.Zero(t, report.Failed)

	assert.Equal(t, domain.EscrowStatusReleased, env.sales.get("sale-1").EscrowStatus)
	_, transfers := env.provider.counts()
	assert.Equal(t, 1, transfers)
}

// Scenario: a sale whose transfer record is still pending shows up in the
// eligible set. It is skipped silently with no retry increment.
func TestProcessAutoTransfers_PendingRecordSkippedSilently(t *testing.T) {
	env := newTestEnv(newFakeSaleStore(), newFakeTransferStore())
	eligibleSale(env, "sale-3")
	env.transfers.records["sale-3"] = &domain.TransferRecord{
		ID: "t-3", SaleID: "sale-3", Status: domain.TransferStatusPending,
		InitiatedAt: time.Now().Add(-time.Hour),
	}

	report, err := env.svc.ProcessAutoTransfers(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Processed)
	assert.Zero(t, env.transfers.bySale("sale-3").RetryCount)

	_, transfers := env.provider.counts()
	assert.Zero(t, transfers)
}

// Retries exhausted + sale at least 14 days old: escrow released without a
// provider call.
func TestProcessAutoTransfers_FallbackReleasesOldSales(t *testing.T) {
	env := newTestEnv(newFakeSaleStore(), newFakeTransferStore())
	eligibleSale(env, "sale-old", func(s *domain.Sale) {
		s.CreatedAt = time.Now().Add(-15 * 24 * time.Hour)
	})
	rec := invitedRecord("sale-old")
	rec.RetryCount = 4
	env.transfers.records["sale-old"] = rec

	report, err := env.svc.ProcessAutoTransfers(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.FallbackReleased)
	assert.Equal(t, domain.EscrowStatusReleased, env.sales.get("sale-old").EscrowStatus)

	_, transfers := env.provider.counts()
	assert.Zero(t, transfers)
}

// The same exhausted sale younger than 14 days is left alone.
func TestProcessAutoTransfers_FallbackLeavesYoungSales(t *testing.T) {
	env := newTestEnv(newFakeSaleStore(), newFakeTransferStore())
	eligibleSale(env, "sale-young", func(s *domain.Sale) {
		s.CreatedAt = time.Now().Add(-5 * 24 * time.Hour)
	})
	rec := invitedRecord("sale-young")
	rec.RetryCount = 4
	env.transfers.records["sale-young"] = rec

	report, err := env.svc.ProcessAutoTransfers(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Zero(t, report.Processed)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, domain.EscrowStatusHeld, env.sales.get("sale-young").EscrowStatus)
	assert.Equal(t, 4, env.transfers.bySale("sale-young").RetryCount)
}

// A sale transferred early inside its review window stays in the eligible
// set until escrow is released. The sweep must release it without another
// remote transfer.
func TestProcessAutoTransfers_EarlyTransferredSaleOnlyReleasesEscrow(t *testing.T) {
	env := newTestEnv(newFakeSaleStore(), newFakeTransferStore())
	eligibleSale(env, "sale-early", func(s *domain.Sale) { s.EscrowReleaseAt = futureWindow() })
	env.transfers.records["sale-early"] = invitedRecord("sale-early")

	res, err := env.svc.TransferOwnership(context.Background(), "sale-early", "seller-1")
	require.NoError(t, err)
	require.True(t, res.Performed)

	env.sales.get("sale-early").EscrowReleaseAt = pastWindow()

	report, err := env.svc.ProcessAutoTransfers(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Eligible)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Failed)
	assert.Equal(t, domain.EscrowStatusReleased, env.sales.get("sale-early").EscrowStatus)
	assert.Equal(t, domain.TransferStatusTransferInitiated, env.transfers.bySale("sale-early").Status)
	assert.Zero(t, env.transfers.bySale("sale-early").RetryCount)

	_, transfers := env.provider.counts()
	assert.Equal(t, 1, transfers)
}

// A provider failure on one sale must not stop the sweep from processing the
// rest.
func TestProcessAutoTransfers_FailureDoesNotAbortSweep(t *testing.T) {
	env := newTestEnv(newFakeSaleStore(), newFakeTransferStore())
	eligibleSale(env, "sale-a")
	eligibleSale(env, "sale-b")
	env.transfers.records["sale-a"] = invitedRecord("sale-a")
	env.transfers.records["sale-b"] = invitedRecord("sale-b")

	// Every transfer call fails; both sales must still be attempted.
	env.provider.transferErr = &port.ProviderError{Class: port.ProviderConflict, Op: "transfer_ownership", Message: "conflict"}

	report, err := env.svc.ProcessAutoTransfers(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Eligible)
	assert.Equal(t, 2, report.Failed)

	_, transfers := env.provider.counts()
	assert.Equal(t, 2, transfers)
}

func TestProcessAutoTransfers_NoTransferRecordCountsAsSkip(t *testing.T) {
	env := newTestEnv(newFakeSaleStore(), newFakeTransferStore())
	eligibleSale(env, "sale-bare")

	report, err := env.svc.ProcessAutoTransfers(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Processed)
}
