package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joseairosa/codesalvage-sub000/internal/domain"
	"github.com/joseairosa/codesalvage-sub000/internal/port"
	"github.com/joseairosa/codesalvage-sub000/internal/secret"
)

// testCredentialKey is 32 bytes hex for the test cipher.
const testCredentialKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestCipher() *secret.Cipher {
	c, err := secret.NewCipher(testCredentialKey)
	if err != nil {
		panic(err)
	}
	return c
}

func sealToken(c *secret.Cipher, token string) string {
	sealed, err := c.Seal(token)
	if err != nil {
		panic(err)
	}
	return sealed
}

// --- fake sale store ---

type fakeSaleStore struct {
	mu    sync.Mutex
	sales map[string]*domain.Sale

	// claimOnce makes every claim after the first observe zero rows,
	// regardless of escrow state.
	claimOnce bool
	claims    int

	// releaseErr fails the next ReleaseEscrow call, then clears itself.
	releaseErr error
}

func newFakeSaleStore(sales ...*domain.Sale) *fakeSaleStore {
	s := &fakeSaleStore{sales: make(map[string]*domain.Sale)}
	for _, sale := range sales {
		s.sales[sale.ID] = sale
	}
	return s
}

func (s *fakeSaleStore) FindByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sale, ok := s.sales[id]
	if !ok {
		return nil, port.ErrSaleNotFound
	}
	cp := *sale
	return &cp, nil
}

func (s *fakeSaleStore) ReleaseEscrow(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.releaseErr != nil {
		err := s.releaseErr
		s.releaseErr = nil
		return err
	}
	sale, ok := s.sales[id]
	if !ok {
		return port.ErrSaleNotFound
	}
	sale.EscrowStatus = domain.EscrowStatusReleased
	t := at
	sale.ReleasedAt = &t
	return nil
}

func (s *fakeSaleStore) UpdateEscrowStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sale, ok := s.sales[id]
	if !ok {
		return port.ErrSaleNotFound
	}
	sale.EscrowStatus = status
	return nil
}

func (s *fakeSaleStore) FindSalesEligibleForAutoTransfer(_ context.Context, asOf time.Time) ([]domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Sale
	for _, sale := range s.sales {
		if sale.EscrowStatus == domain.EscrowStatusHeld &&
			sale.PaymentStatus == domain.PaymentStatusSucceeded &&
			sale.RepositoryURL != "" &&
			sale.EscrowReleaseAt != nil && !sale.EscrowReleaseAt.After(asOf) {
			out = append(out, *sale)
		}
	}
	return out, nil
}

func (s *fakeSaleStore) ClaimForProcessing(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims++
	if s.claimOnce && s.claims > 1 {
		return 0, nil
	}
	sale, ok := s.sales[id]
	if !ok || sale.EscrowStatus != domain.EscrowStatusHeld {
		return 0, nil
	}
	sale.EscrowStatus = domain.EscrowStatusProcessing
	return 1, nil
}

func (s *fakeSaleStore) get(id string) *domain.Sale {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sales[id]
}

// --- fake transfer store ---

type fakeTransferStore struct {
	mu      sync.Mutex
	records map[string]*domain.TransferRecord // keyed by sale ID

	usernameWrites int
}

func newFakeTransferStore(records ...*domain.TransferRecord) *fakeTransferStore {
	s := &fakeTransferStore{records: make(map[string]*domain.TransferRecord)}
	for _, rec := range records {
		s.records[rec.SaleID] = rec
	}
	return s
}

func (s *fakeTransferStore) FindBySaleID(_ context.Context, saleID string) (*domain.TransferRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[saleID]
	if !ok {
		return nil, port.ErrTransferNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeTransferStore) Create(_ context.Context, rec *domain.TransferRecord) (*domain.TransferRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	cp := *rec
	s.records[rec.SaleID] = &cp
	out := cp
	return &out, nil
}

func (s *fakeTransferStore) UpdateStatus(_ context.Context, id, status string, extra port.TransferStatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.byID(id)
	if rec == nil {
		return port.ErrTransferNotFound
	}
	rec.Status = status
	if extra.InvitationSentAt != nil {
		rec.InvitationSentAt = extra.InvitationSentAt
	}
	if extra.AcceptedAt != nil {
		rec.AcceptedAt = extra.AcceptedAt
	}
	if extra.TransferInitiatedAt != nil {
		rec.TransferInitiatedAt = extra.TransferInitiatedAt
	}
	if extra.CompletedAt != nil {
		rec.CompletedAt = extra.CompletedAt
	}
	if extra.FailedAt != nil {
		rec.FailedAt = extra.FailedAt
	}
	if extra.LastError != nil {
		rec.LastError = *extra.LastError
	}
	return nil
}

func (s *fakeTransferStore) SetBuyerUsername(_ context.Context, id, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.byID(id)
	if rec == nil {
		return port.ErrTransferNotFound
	}
	rec.BuyerGithubUsername = username
	s.usernameWrites++
	return nil
}

func (s *fakeTransferStore) IncrementRetryCount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.byID(id)
	if rec == nil {
		return port.ErrTransferNotFound
	}
	rec.RetryCount++
	return nil
}

func (s *fakeTransferStore) byID(id string) *domain.TransferRecord {
	for _, rec := range s.records {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

func (s *fakeTransferStore) bySale(saleID string) *domain.TransferRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[saleID]
}

// --- fake provider ---

type fakeProvider struct {
	mu sync.Mutex

	grantCalls    int
	transferCalls int
	revokeCalls   int
	checkCalls    int

	grantErr    error
	transferErr error
}

func (p *fakeProvider) GrantCollaborator(_ context.Context, _, _, _, _ string) (*port.GrantResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.grantCalls++
	if p.grantErr != nil {
		return nil, p.grantErr
	}
	return &port.GrantResult{InvitationID: 1}, nil
}

func (p *fakeProvider) CheckCollaboratorAccess(_ context.Context, _, _, _, _ string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkCalls++
	return true, nil
}

func (p *fakeProvider) RevokeCollaborator(_ context.Context, _, _, _, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revokeCalls++
	return nil
}

func (p *fakeProvider) TransferOwnership(_ context.Context, _, _, _, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transferCalls++
	return p.transferErr
}

func (p *fakeProvider) counts() (grants, transfers int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.grantCalls, p.transferCalls
}

// --- fake notifier ---

type fakeNotifier struct {
	mu    sync.Mutex
	sent  int
	kinds []string
}

func (n *fakeNotifier) Notify(_ context.Context, _, kind, _, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent++
	n.kinds = append(n.kinds, kind)
	return nil
}

// --- wiring helper ---

type testEnv struct {
	svc       *TransferService
	sales     *fakeSaleStore
	transfers *fakeTransferStore
	provider  *fakeProvider
	notifier  *fakeNotifier
	cipher    *secret.Cipher
}

func newTestEnv(sales *fakeSaleStore, transfers *fakeTransferStore) *testEnv {
	provider := &fakeProvider{}
	notifier := &fakeNotifier{}
	cipher := newTestCipher()
	svc := NewTransferService(sales, transfers, provider, notifier, cipher,
		"http://localhost:3000", 3, 14*24*time.Hour)
	return &testEnv{
		svc: svc, sales: sales, transfers: transfers,
		provider: provider, notifier: notifier, cipher: cipher,
	}
}

// saleFixture builds a settled, repository-linked sale with escrow held.
func saleFixture(cipher *secret.Cipher, mutate ...func(*domain.Sale)) *domain.Sale {
	sale := &domain.Sale{
		ID:                   "sale-1",
		BuyerID:              "buyer-1",
		SellerID:             "seller-1",
		AmountCents:          250_00,
		PaymentStatus:        domain.PaymentStatusSucceeded,
		EscrowStatus:         domain.EscrowStatusHeld,
		RepositoryURL:        "https://github.com/acme/widget",
		SellerGithubToken:    sealToken(cipher, "gho_seller_token"),
		SellerGithubUsername: "acme",
		CreatedAt:            time.Now().Add(-48 * time.Hour),
	}
	for _, m := range mutate {
		m(sale)
	}
	return sale
}
