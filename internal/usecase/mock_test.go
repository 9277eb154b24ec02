//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-vpn-subscription/internal/domain"
	"telegram-vpn-subscription/internal/domain/model"
	"telegram-vpn-subscription/internal/domain/ports/adapter"
	"telegram-vpn-subscription/internal/domain/ports/repository"
	"telegram-vpn-subscription/internal/infra/i18n"
)

// =============================
// Repositories
// =============================

// ---- In-memory PaymentRepository ----

type MockPaymentRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Payment

	SaveFunc              func(ctx context.Context, tx repository.Tx, p *model.Payment) error
	CompleteIfPendingFunc func(ctx context.Context, tx repository.Tx, id, accountID string, externalRef *string, at time.Time) (bool, error)

	Completions int
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{byID: map[string]*model.Payment{}}
}

func clonePayment(p *model.Payment) *model.Payment {
	cp := *p
	return &cp
}

func (m *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.byID[p.ID] = clonePayment(p)
	return nil
}

func (m *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePayment(p), nil
}

func (m *MockPaymentRepo) FindByLookupKey(ctx context.Context, tx repository.Tx, rail model.Rail, key string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.Rail == rail && p.LookupKey == key && key != "" {
			return clonePayment(p), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPaymentRepo) SetLookupKey(ctx context.Context, tx repository.Tx, id, key string, externalRef *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok || !p.IsPending() {
		return domain.ErrNotFound
	}
	p.LookupKey, p.ExternalReference = key, externalRef
	return nil
}

func (m *MockPaymentRepo) CompleteIfPending(ctx context.Context, tx repository.Tx, id, accountID string, externalRef *string, at time.Time) (bool, error) {
	if m.CompleteIfPendingFunc != nil {
		return m.CompleteIfPendingFunc(ctx, tx, id, accountID, externalRef, at)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok || !p.IsPending() {
		return false, nil
	}
	p.Status, p.ProvisionedAccountID, p.CompletedAt = model.PaymentStatusCompleted, &accountID, &at
	if externalRef != nil {
		p.ExternalReference = externalRef
	}
	m.Completions++
	return true, nil
}

func (m *MockPaymentRepo) FailIfPending(ctx context.Context, tx repository.Tx, id, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok || !p.IsPending() {
		return false, nil
	}
	p.Status, p.FailureReason = model.PaymentStatusFailed, &reason
	return true, nil
}

func (m *MockPaymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, rail model.Rail, olderThan time.Time, limit int) ([]*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Payment
	for _, p := range m.byID {
		if p.Rail == rail && p.IsPending() && p.CreatedAt.Before(olderThan) {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Get is a test helper that bypasses locking semantics.
func (m *MockPaymentRepo) Get(id string) *model.Payment {
	p, _ := m.FindByID(context.Background(), nil, id)
	return p
}

// ---- In-memory AccountRepository ----

type MockAccountRepo struct {
	mu    sync.Mutex
	users  map[int64]*model.Account
	grants map[string]*model.ProvisionGrant

	SetProvisionedFunc func(ctx context.Context, tx repository.Tx, userID int64, accountID string, shortID *string, expiry time.Time, grantID string) error
}

var _ repository.AccountRepository = (*MockAccountRepo)(nil)

func NewMockAccountRepo() *MockAccountRepo {
	return &MockAccountRepo{users: map[int64]*model.Account{}, grants: map[string]*model.ProvisionGrant{}}
}

func cloneAccount(a *model.Account) *model.Account {
	cp := *a
	return &cp
}

func (m *MockAccountRepo) Ensure(ctx context.Context, tx repository.Tx, a *model.Account) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.users[a.UserID]; ok {
		if a.Username != "" {
			cur.Username = a.Username
		}
		return cloneAccount(cur), nil
	}
	m.users[a.UserID] = cloneAccount(a)
	return cloneAccount(a), nil
}

func (m *MockAccountRepo) FindByUserID(ctx context.Context, tx repository.Tx, userID int64) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneAccount(a), nil
}

func (m *MockAccountRepo) SetProvisioned(ctx context.Context, tx repository.Tx, userID int64, accountID string, shortID *string, expiry time.Time, grantID string) error {
	if m.SetProvisionedFunc != nil {
		return m.SetProvisionedFunc(ctx, tx, userID, accountID, shortID, expiry, grantID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	a.ProvisionedAccountID, a.ShortID, a.EntitlementExpiry = &accountID, shortID, &expiry
	if _, seen := m.grants[grantID]; grantID != "" && !seen {
		m.grants[grantID] = &model.ProvisionGrant{GrantID: grantID, UserID: userID, AccountID: accountID, Expiry: expiry, CreatedAt: time.Now()}
	}
	return nil
}

func (m *MockAccountRepo) FindGrant(ctx context.Context, tx repository.Tx, grantID string) (*model.ProvisionGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[grantID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *MockAccountRepo) UpdateExpiry(ctx context.Context, tx repository.Tx, userID int64, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	a.EntitlementExpiry = &expiry
	return nil
}

func (m *MockAccountRepo) SetReferrerIfEmpty(ctx context.Context, tx repository.Tx, userID, referrerID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.users[userID]
	if !ok || a.ReferrerID != nil || userID == referrerID {
		return false, nil
	}
	a.ReferrerID = &referrerID
	return true, nil
}

func (m *MockAccountRepo) MarkTrialUsed(ctx context.Context, tx repository.Tx, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.users[userID]
	if !ok || a.TrialUsed {
		return false, nil
	}
	a.TrialUsed = true
	return true, nil
}

func (m *MockAccountRepo) ListExpiringBetween(ctx context.Context, tx repository.Tx, from, to time.Time, limit int) ([]*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Account
	for _, a := range m.users {
		if a.EntitlementExpiry != nil && a.EntitlementExpiry.After(from) && !a.EntitlementExpiry.After(to) {
			out = append(out, cloneAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Put seeds an account directly.
func (m *MockAccountRepo) Put(a *model.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[a.UserID] = cloneAccount(a)
}

// ---- In-memory ReferralRepository ----

type MockReferralRepo struct {
	mu   sync.Mutex
	rows map[int64]*model.Referral
}

var _ repository.ReferralRepository = (*MockReferralRepo)(nil)

func NewMockReferralRepo() *MockReferralRepo {
	return &MockReferralRepo{rows: map[int64]*model.Referral{}}
}

func (m *MockReferralRepo) Create(ctx context.Context, tx repository.Tx, r *model.Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[r.ReferredID]; !ok {
		cp := *r
		m.rows[r.ReferredID] = &cp
	}
	return nil
}

func (m *MockReferralRepo) FindByReferred(ctx context.Context, tx repository.Tx, referredID int64) (*model.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[referredID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MockReferralRepo) MarkGranted(ctx context.Context, tx repository.Tx, referredID int64, bonusDays int, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[referredID]
	if !ok || r.BonusGranted {
		return false, nil
	}
	r.BonusGranted, r.BonusDays, r.GrantedAt = true, bonusDays, &at
	return true, nil
}

func (m *MockReferralRepo) CountByReferrer(ctx context.Context, tx repository.Tx, referrerID int64) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total, granted := 0, 0
	for _, r := range m.rows {
		if r.ReferrerID == referrerID {
			total++
			if r.BonusGranted {
				granted++
			}
		}
	}
	return total, granted, nil
}

// ---- In-memory PromoCodeRepository ----

type MockPromoRepo struct {
	mu       sync.Mutex
	codes    map[string]*model.PromoCode
	redeemed map[string]bool // payment id
}

var _ repository.PromoCodeRepository = (*MockPromoRepo)(nil)

func NewMockPromoRepo() *MockPromoRepo {
	return &MockPromoRepo{codes: map[string]*model.PromoCode{}, redeemed: map[string]bool{}}
}

func (m *MockPromoRepo) Save(ctx context.Context, tx repository.Tx, p *model.PromoCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.codes[p.Code] = &cp
	return nil
}

func (m *MockPromoRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.PromoCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.codes[model.NormalizePromoCode(code)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPromoRepo) Reserve(ctx context.Context, tx repository.Tx, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.codes[model.NormalizePromoCode(code)]
	if !ok || !p.Active || (p.MaxUses > 0 && p.UsesCount >= p.MaxUses) {
		return false, nil
	}
	p.UsesCount++
	return true, nil
}

func (m *MockPromoRepo) Release(ctx context.Context, tx repository.Tx, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.codes[model.NormalizePromoCode(code)]; ok && p.UsesCount > 0 {
		p.UsesCount--
	}
	return nil
}

func (m *MockPromoRepo) Consume(ctx context.Context, tx repository.Tx, code string, userID int64, paymentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redeemed[paymentID] {
		return false, nil
	}
	if _, ok := m.codes[model.NormalizePromoCode(code)]; !ok {
		return false, nil
	}
	m.redeemed[paymentID] = true
	return true, nil
}

func (m *MockPromoRepo) Redemptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redeemed)
}

func (m *MockPromoRepo) Uses(code string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.codes[model.NormalizePromoCode(code)]; ok {
		return p.UsesCount
	}
	return -1
}

func (m *MockPromoRepo) List(ctx context.Context, tx repository.Tx) ([]*model.PromoCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PromoCode
	for _, p := range m.codes {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// ---- In-memory NotificationLogRepository ----

type MockNotificationLogRepo struct {
	mu   sync.Mutex
	seen map[string]bool
}

var _ repository.NotificationLogRepository = (*MockNotificationLogRepo)(nil)

func NewMockNotificationLogRepo() *MockNotificationLogRepo {
	return &MockNotificationLogRepo{seen: map[string]bool{}}
}

func notifKey(userID int64, expiresAt time.Time, d int) string {
	return fmt.Sprintf("%d|%d|%d", userID, expiresAt.Unix(), d)
}

func (m *MockNotificationLogRepo) Save(ctx context.Context, tx repository.Tx, userID int64, expiresAt time.Time, thresholdDays int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[notifKey(userID, expiresAt, thresholdDays)] = true
	return nil
}

func (m *MockNotificationLogRepo) Exists(ctx context.Context, tx repository.Tx, userID int64, expiresAt time.Time, thresholdDays int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[notifKey(userID, expiresAt, thresholdDays)], nil
}

// ---- TxManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// SerialTxManager serializes transactions, standing in for the payment row lock.
type SerialTxManager struct{ mu sync.Mutex }

func (m *SerialTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, repository.NoTX)
}

// =============================
// Adapters
// =============================

// ---- In-memory AccountPanel ----

type MockPanel struct {
	mu       sync.Mutex
	accounts map[string]*adapter.PanelAccount
	names    map[string]bool

	// TakenNames are rejected with ErrConflict as if another user owned them.
	TakenNames map[string]bool

	CreateAccountFunc func(ctx context.Context, req adapter.CreateAccountRequest) (*adapter.PanelAccount, error)
	UpdateExpiryFunc  func(ctx context.Context, accountID string, expireAt time.Time) (*adapter.PanelAccount, error)
	AccessURLErr      error

	Calls struct {
		Create  []string
		Update  []string
		Get     int
		FindExt int
	}
}

var _ adapter.AccountPanel = (*MockPanel)(nil)

func NewMockPanel() *MockPanel {
	return &MockPanel{
		accounts:   map[string]*adapter.PanelAccount{},
		names:      map[string]bool{},
		TakenNames: map[string]bool{},
	}
}

func (m *MockPanel) CreateAccount(ctx context.Context, req adapter.CreateAccountRequest) (*adapter.PanelAccount, error) {
	m.mu.Lock()
	m.Calls.Create = append(m.Calls.Create, req.Username)
	m.mu.Unlock()
	if m.CreateAccountFunc != nil {
		return m.CreateAccountFunc(ctx, req)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TakenNames[req.Username] || m.names[req.Username] {
		return nil, fmt.Errorf("username %s: %w", req.Username, domain.ErrConflict)
	}
	id := uuid.NewString()
	a := &adapter.PanelAccount{
		ID:             id,
		ShortID:        id[:8],
		Username:       req.Username,
		ExternalUserID: req.ExternalUserID,
		ExpireAt:       req.ExpireAt,
		Status:         "ACTIVE",
	}
	m.accounts[id] = a
	m.names[req.Username] = true
	cp := *a
	return &cp, nil
}

func (m *MockPanel) UpdateExpiry(ctx context.Context, accountID string, expireAt time.Time) (*adapter.PanelAccount, error) {
	m.mu.Lock()
	m.Calls.Update = append(m.Calls.Update, accountID)
	m.mu.Unlock()
	if m.UpdateExpiryFunc != nil {
		return m.UpdateExpiryFunc(ctx, accountID, expireAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	a.ExpireAt = expireAt
	cp := *a
	return &cp, nil
}

func (m *MockPanel) GetAccount(ctx context.Context, accountID string) (*adapter.PanelAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls.Get++
	a, ok := m.accounts[accountID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MockPanel) FindByExternalUserID(ctx context.Context, userID int64) (*adapter.PanelAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls.FindExt++
	for _, a := range m.accounts {
		if a.ExternalUserID == userID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPanel) GetAccessURL(ctx context.Context, shortID string) (string, error) {
	if m.AccessURLErr != nil {
		return "", m.AccessURLErr
	}
	return "https://panel.test/sub/" + shortID, nil
}

// Seed stores an account as if it already existed on the panel.
func (m *MockPanel) Seed(a adapter.PanelAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := a
	m.accounts[a.ID] = &cp
	m.names[a.Username] = true
}

func (m *MockPanel) Account(id string) *adapter.PanelAccount {
	a, _ := m.GetAccount(context.Background(), id)
	return a
}

func (m *MockPanel) CreateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls.Create)
}

// ---- PaymentRail ----

type MockRail struct {
	RailName    model.Rail
	Cur         string
	CreateFunc  func(ctx context.Context, p *model.Payment, title, description string) (*adapter.Intent, error)
	LastTitle   string
	IntentCalls int
}

var _ adapter.PaymentRail = (*MockRail)(nil)

func (r *MockRail) Name() model.Rail { return r.RailName }
func (r *MockRail) Currency() string { return r.Cur }

func (r *MockRail) CreateIntent(ctx context.Context, p *model.Payment, title, description string) (*adapter.Intent, error) {
	r.IntentCalls++
	r.LastTitle = title
	if r.CreateFunc != nil {
		return r.CreateFunc(ctx, p, title, description)
	}
	return &adapter.Intent{LookupKey: "key-" + p.ID, PayURL: "https://pay.test/" + p.ID}, nil
}

// ---- PaymentStatusSource ----

type MockStatusSource struct {
	Payments map[string]*adapter.RemotePayment
	Err      error
}

var _ adapter.PaymentStatusSource = (*MockStatusSource)(nil)

func (s *MockStatusSource) FetchPayment(ctx context.Context, id string) (*adapter.RemotePayment, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	p, ok := s.Payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

// ---- TelegramBotAdapter ----

type SentMessage struct {
	ChatID int64
	Text   string
}

type MockTelegramBot struct {
	mu   sync.Mutex
	Sent []SentMessage

	SendMessageFunc func(ctx context.Context, chatID int64, text string) error
}

var _ adapter.TelegramBotAdapter = (*MockTelegramBot)(nil)

func (m *MockTelegramBot) SendMessage(ctx context.Context, chatID int64, text string) error {
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, chatID, text)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentMessage{ChatID: chatID, Text: text})
	return nil
}

func (m *MockTelegramBot) SendButtons(ctx context.Context, chatID int64, text string, rows [][]adapter.InlineButton) error {
	return m.SendMessage(ctx, chatID, text)
}

// ---- RateLimiter ----

type MockLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	Err    error
}

var _ adapter.RateLimiter = (*MockLimiter)(nil)

func (l *MockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if l.Err != nil {
		return false, l.Err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts == nil {
		l.counts = map[string]int{}
	}
	l.counts[key]++
	return l.counts[key] <= limit, nil
}

// ---- In-memory Locker ----

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	ErrOn map[string]error
	Waits []time.Duration
}

var _ adapter.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}, ErrOn: map[string]error{}}
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, bad := l.ErrOn[key]; bad {
		return "", err
	}
	if tok, ok := l.held[key]; ok && tok != "" {
		return "", domain.ErrLockNotAcquired
	}
	tok := uuid.NewString()
	l.held[key] = tok
	return tok, nil
}

// Lock does not wait: a held key fails at once.
func (l *MockLocker) Lock(ctx context.Context, key string, ttl, wait time.Duration) (string, error) {
	l.mu.Lock()
	l.Waits = append(l.Waits, wait)
	l.mu.Unlock()
	return l.TryLock(ctx, key, ttl)
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		return nil
	}
	return errors.New("unlock token mismatch")
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func newTestTranslator() *i18n.Translator {
	testFS := fstest.MapFS{
		"locales/en.yaml": {Data: []byte(`
payment_success: "active until %s"
payment_access_url: "url %s"
payment_already: "already until %s"
payment_failed: "failed: %s"
payment_pending: "pending"
referral_bonus: "bonus %d until %s"
reminder_expiring: "expires in %d days on %s"
operator_purchase: "buy %d %s %d %s %d %s"
rail_in_platform: "stars"
`)},
	}
	translator, err := i18n.NewTranslator(testFS, "en")
	if err != nil {
		panic(err)
	}
	return translator
}
