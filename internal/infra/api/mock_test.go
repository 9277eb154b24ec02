//go:build !integration

package api_test

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"telegram-vpn-subscription/internal/domain"
	"telegram-vpn-subscription/internal/domain/model"
	"telegram-vpn-subscription/internal/domain/ports/repository"
	"telegram-vpn-subscription/internal/infra/worker"
	"telegram-vpn-subscription/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

type mockReconcile struct {
	mu          sync.Mutex
	Completions []usecase.Completion

	Confirmed   []string

	ReconcileFunc   func(ctx context.Context, c usecase.Completion) (*usecase.ReconcileResult, error)
	CheckStatusFunc func(ctx context.Context, id string) (*usecase.ReconcileResult, error)
	ConfirmFunc     func(ctx context.Context, rail model.Rail, lookupKey string) (*usecase.ReconcileResult, error)
	Payments        map[string]*model.Payment
}

func (m *mockReconcile) Reconcile(ctx context.Context, c usecase.Completion) (*usecase.ReconcileResult, error) {
	m.mu.Lock()
	m.Completions = append(m.Completions, c)
	m.mu.Unlock()
	if m.ReconcileFunc != nil {
		return m.ReconcileFunc(ctx, c)
	}
	p := &model.Payment{ID: "p-" + c.LookupKey, UserID: 42, Rail: c.Rail, Amount: c.Amount, Currency: c.Currency}
	return &usecase.ReconcileResult{Outcome: usecase.OutcomeProvisioned, Payment: p}, nil
}

func (m *mockReconcile) Precheck(ctx context.Context, rail model.Rail, lookupKey string, amount int64) error {
	return nil
}

func (m *mockReconcile) CheckStatus(ctx context.Context, id string) (*usecase.ReconcileResult, error) {
	if m.CheckStatusFunc != nil {
		return m.CheckStatusFunc(ctx, id)
	}
	return nil, domain.ErrPaymentNotFound
}

func (m *mockReconcile) Confirm(ctx context.Context, rail model.Rail, lookupKey string) (*usecase.ReconcileResult, error) {
	m.mu.Lock()
	m.Confirmed = append(m.Confirmed, lookupKey)
	m.mu.Unlock()
	if m.ConfirmFunc != nil {
		return m.ConfirmFunc(ctx, rail, lookupKey)
	}
	p := &model.Payment{ID: "p-" + lookupKey, UserID: 42, Rail: rail}
	return &usecase.ReconcileResult{Outcome: usecase.OutcomePending, Payment: p}, nil
}

func (m *mockReconcile) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	if p, ok := m.Payments[id]; ok {
		return p, nil
	}
	return nil, domain.ErrPaymentNotFound
}

type mockPromos struct {
	saved []*model.PromoCode
}

func (m *mockPromos) Create(ctx context.Context, req usecase.CreatePromoRequest) (*model.PromoCode, error) {
	p, err := model.NewPromoCode(req.Code, req.DiscountPercent, req.BonusDays, req.MaxUses, req.ExpiresAt)
	if err != nil {
		return nil, err
	}
	for _, s := range m.saved {
		if s.Code == p.Code {
			return nil, domain.ErrAlreadyExists
		}
	}
	m.saved = append(m.saved, p)
	return p, nil
}

func (m *mockPromos) List(ctx context.Context) ([]*model.PromoCode, error) { return m.saved, nil }

type mockReferrals struct {
	Credit *usecase.ReferralCredit
	Err    error
	Calls  []int64
}

func (m *mockReferrals) Attribute(ctx context.Context, referredID, referrerID int64) (bool, error) {
	return false, nil
}

func (m *mockReferrals) CreditIfEligible(ctx context.Context, referredID int64) (*usecase.ReferralCredit, error) {
	m.Calls = append(m.Calls, referredID)
	return m.Credit, m.Err
}

func (m *mockReferrals) Stats(ctx context.Context, referrerID int64) (int, int, error) {
	return 0, 0, nil
}

type mockNotifier struct {
	mu             sync.Mutex
	SettledResults []*usecase.ReconcileResult
}

func (m *mockNotifier) PaymentResult(ctx context.Context, userID int64, res *usecase.ReconcileResult) error {
	return nil
}
func (m *mockNotifier) ReferralBonus(ctx context.Context, credit *usecase.ReferralCredit) error {
	return nil
}
func (m *mockNotifier) OperatorPurchase(ctx context.Context, res *usecase.ReconcileResult) error {
	return nil
}

func (m *mockNotifier) Settled(ctx context.Context, res *usecase.ReconcileResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SettledResults = append(m.SettledResults, res)
	return nil
}

// inlineQueue runs tasks synchronously so assertions can follow the request.
type inlineQueue struct{}

func (inlineQueue) Submit(task worker.Task) error { return task(context.Background()) }

type memEvents struct {
	mu      sync.Mutex
	seen    map[string]bool
	results map[string]string
}

func newMemEvents() *memEvents {
	return &memEvents{seen: map[string]bool{}, results: map[string]string{}}
}

func (m *memEvents) Record(ctx context.Context, tx repository.Tx, e *model.WebhookEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := e.Processor + "|" + e.Event + "|" + e.ObjectID
	if m.seen[k] {
		return false, nil
	}
	m.seen[k] = true
	m.results[e.ID] = e.Result
	return true, nil
}

func (m *memEvents) SetResult(ctx context.Context, tx repository.Tx, id, result string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[id] = result
	return nil
}

func (m *memEvents) resultsList() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.results))
	for _, r := range m.results {
		out = append(out, r)
	}
	return out
}
