//go:build !integration

package telegram

import (
	"context"
	"io"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-vpn-subscription/internal/domain"
	"telegram-vpn-subscription/internal/domain/model"
	"telegram-vpn-subscription/internal/domain/ports/repository"
	"telegram-vpn-subscription/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// --- Telegram API ---

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	updates  chan tgbotapi.Update
	stopped  bool
}

func newFakeAPI() *fakeAPI { return &fakeAPI{updates: make(chan tgbotapi.Update, 10)} }

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

// messages returns the text messages sent so far.
func (f *fakeAPI) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeAPI) last() tgbotapi.MessageConfig {
	msgs := f.messages()
	if len(msgs) == 0 {
		return tgbotapi.MessageConfig{}
	}
	return msgs[len(msgs)-1]
}

func (f *fakeAPI) precheckAnswers() []tgbotapi.PreCheckoutConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.PreCheckoutConfig
	for _, c := range f.requests {
		if p, ok := c.(tgbotapi.PreCheckoutConfig); ok {
			out = append(out, p)
		}
	}
	return out
}

// callbackData flattens an inline keyboard into callback data (or URLs) in display order.
func callbackData(m tgbotapi.MessageConfig) []string {
	kb, ok := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		return nil
	}
	var out []string
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			switch {
			case btn.CallbackData != nil:
				out = append(out, *btn.CallbackData)
			case btn.URL != nil:
				out = append(out, *btn.URL)
			}
		}
	}
	return out
}

// --- use cases ---

type mockAccounts struct {
	registered []int64
	status     *usecase.AccountStatus
	statusErr  error
}

func (m *mockAccounts) Register(ctx context.Context, userID int64, username string) (*model.Account, error) {
	m.registered = append(m.registered, userID)
	return model.NewAccount(userID, username)
}

func (m *mockAccounts) Status(ctx context.Context, userID int64) (*usecase.AccountStatus, error) {
	return m.status, m.statusErr
}

type mockInvoices struct {
	rails    []model.Rail
	prices   map[model.Rail]model.PriceTable
	quoteErr error
	issueErr error
	issued   []usecase.IssueRequest
	qr       []byte
}

func (m *mockInvoices) currency(rail model.Rail) string {
	if rail == model.RailInPlatform {
		return "XTR"
	}
	return "RUB"
}

func (m *mockInvoices) Quote(ctx context.Context, rail model.Rail, months int, promoCode string) (*usecase.Quote, error) {
	if m.quoteErr != nil && promoCode != "" {
		return nil, m.quoteErr
	}
	amount, err := m.prices[rail].Price(months)
	if err != nil {
		return nil, err
	}
	return &usecase.Quote{Months: months, Amount: amount, Currency: m.currency(rail), Days: months * model.DaysPerMonth}, nil
}

func (m *mockInvoices) Issue(ctx context.Context, req usecase.IssueRequest) (*usecase.Invoice, error) {
	m.issued = append(m.issued, req)
	if m.issueErr != nil {
		return nil, m.issueErr
	}
	q, err := m.Quote(ctx, req.Rail, req.Months, req.PromoCode)
	if err != nil {
		return nil, err
	}
	p, err := model.NewPendingPayment(req.UserID, req.Rail, q.Amount, q.Currency, req.Months, q.Days, nil)
	if err != nil {
		return nil, err
	}
	return &usecase.Invoice{Payment: p, PayURL: "https://pay.example/" + p.ID, QRCode: m.qr}, nil
}

func (m *mockInvoices) Rails() []model.Rail { return m.rails }

func (m *mockInvoices) Prices(rail model.Rail) model.PriceTable { return m.prices[rail] }

type mockReconcile struct {
	completions []usecase.Completion
	result      *usecase.ReconcileResult
	err         error
	precheckErr error
	prechecked  int
	payments    map[string]*model.Payment
	checked     []string
}

func (m *mockReconcile) Reconcile(ctx context.Context, c usecase.Completion) (*usecase.ReconcileResult, error) {
	m.completions = append(m.completions, c)
	return m.result, m.err
}

func (m *mockReconcile) Precheck(ctx context.Context, rail model.Rail, lookupKey string, amount int64) error {
	m.prechecked++
	return m.precheckErr
}

func (m *mockReconcile) CheckStatus(ctx context.Context, id string) (*usecase.ReconcileResult, error) {
	m.checked = append(m.checked, id)
	return m.result, m.err
}

func (m *mockReconcile) Confirm(ctx context.Context, rail model.Rail, lookupKey string) (*usecase.ReconcileResult, error) {
	return m.result, m.err
}

func (m *mockReconcile) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	if p, ok := m.payments[id]; ok {
		return p, nil
	}
	return nil, domain.ErrPaymentNotFound
}

type mockTrial struct {
	res *usecase.ProvisionResult
	err error
}

func (m *mockTrial) Activate(ctx context.Context, userID int64) (*usecase.ProvisionResult, error) {
	return m.res, m.err
}

type mockReferrals struct {
	attributed [][2]int64
}

func (m *mockReferrals) Attribute(ctx context.Context, referredID, referrerID int64) (bool, error) {
	m.attributed = append(m.attributed, [2]int64{referredID, referrerID})
	return referredID != referrerID, nil
}

func (m *mockReferrals) CreditIfEligible(ctx context.Context, referredID int64) (*usecase.ReferralCredit, error) {
	return nil, nil
}

func (m *mockReferrals) Stats(ctx context.Context, referrerID int64) (int, int, error) {
	return 0, 0, nil
}

type mockNotifier struct {
	usecase.NotificationUseCase
	settled []*usecase.ReconcileResult
}

func (m *mockNotifier) Settled(ctx context.Context, res *usecase.ReconcileResult) error {
	m.settled = append(m.settled, res)
	return nil
}

type memStates struct {
	mu     sync.Mutex
	states map[int64]*repository.ConversationState
}

func newMemStates() *memStates {
	return &memStates{states: map[int64]*repository.ConversationState{}}
}

func (m *memStates) SetState(ctx context.Context, tgID int64, state *repository.ConversationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[tgID] = state
	return nil
}

func (m *memStates) GetState(ctx context.Context, tgID int64) (*repository.ConversationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[tgID], nil
}

func (m *memStates) ClearState(ctx context.Context, tgID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, tgID)
	return nil
}

// denyLimiter rejects every request once allowance runs out.
type denyLimiter struct {
	allowance int
}

func (l *denyLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if l.allowance <= 0 {
		return false, nil
	}
	l.allowance--
	return true, nil
}
