package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telegram-vpn-subscription/internal/domain"
	"telegram-vpn-subscription/internal/domain/model"
	"telegram-vpn-subscription/internal/domain/ports/adapter"
	"telegram-vpn-subscription/internal/domain/ports/repository"
	"telegram-vpn-subscription/internal/infra/logging"
	"telegram-vpn-subscription/internal/infra/metrics"
)

// Compile-time check
var _ ProvisionUseCase = (*provisionUC)(nil)

const (
	maxCreateAttempts = 3
	// worst case: lost-account lookup, three find/create rounds, expiry update, access url
	maxPanelCalls       = 1 + 2*maxCreateAttempts + 2
	defaultPanelTimeout = 10 * time.Second
	provisionLockSlack  = 5 * time.Second
)

// ProvisionResult is what the panel holds for the user after a create or extend.
type ProvisionResult struct {
	AccountID string
	ShortID   string
	Expiry    time.Time
	AccessURL string
	Created   bool
}

// ProvisionUseCase creates or extends the panel account behind a Telegram user.
type ProvisionUseCase interface {
	// Provision grants days of access. A running entitlement is extended, a lapsed one restarts from now.
	// A non-empty grantID that was already applied returns the recorded result without touching the panel.
	Provision(ctx context.Context, userID int64, days int, grantID string) (*ProvisionResult, error)
	// AddBonusDays adds days to the current panel expiry even when it has lapsed.
	// It returns domain.ErrNotFound when the user has no provisioned account.
	AddBonusDays(ctx context.Context, userID int64, days int, grantID string) (*ProvisionResult, error)
}

type provisionUC struct {
	accounts    repository.AccountRepository
	panel       adapter.AccountPanel
	locker      adapter.Locker
	description string
	lockTTL     time.Duration
	log         *zerolog.Logger
	now         func() time.Time
}

// NewProvisionUseCase sizes the per-user lock from panelTimeout so a holder
// cannot lose the lock while its panel calls are still in flight.
func NewProvisionUseCase(accounts repository.AccountRepository, panel adapter.AccountPanel, locker adapter.Locker, description string, panelTimeout time.Duration, logger *zerolog.Logger) *provisionUC {
	if panelTimeout <= 0 {
		panelTimeout = defaultPanelTimeout
	}
	return &provisionUC{
		accounts:    accounts,
		panel:       panel,
		locker:      locker,
		description: description,
		lockTTL:     panelTimeout*maxPanelCalls + provisionLockSlack,
		log:         logger,
		now:         time.Now,
	}
}

func provisionLockKey(userID int64) string { return fmt.Sprintf("lock:provision:%d", userID) }

func (u *provisionUC) withUserLock(ctx context.Context, userID int64, fn func() error) error {
	key := provisionLockKey(userID)
	// Waiting a full TTL means a live holder either finishes or its lock expires.
	token, err := u.locker.Lock(ctx, key, u.lockTTL, u.lockTTL)
	if err != nil {
		if !errors.Is(err, domain.ErrLockNotAcquired) {
			err = fmt.Errorf("%w: %v", domain.ErrLockNotAcquired, err)
		}
		return fmt.Errorf("provision lock for user %d: %w", userID, err)
	}
	defer func() {
		if err := u.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			u.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to release provision lock")
		}
	}()
	return fn()
}

func (u *provisionUC) loadAccount(ctx context.Context, userID int64) (*model.Account, error) {
	acct, err := u.accounts.FindByUserID(ctx, repository.NoTX, userID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	fresh, err := model.NewAccount(userID, "")
	if err != nil {
		return nil, err
	}
	return u.accounts.Ensure(ctx, repository.NoTX, fresh)
}

// replay returns the result of an already applied grant, or nil when there is none.
func (u *provisionUC) replay(ctx context.Context, userID int64, grantID string) (*ProvisionResult, error) {
	if grantID == "" {
		return nil, nil
	}
	g, err := u.accounts.FindGrant(ctx, repository.NoTX, grantID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load grant %s: %w", grantID, err)
	}
	if g.UserID != userID {
		return nil, fmt.Errorf("%w: grant %s belongs to user %d", domain.ErrInvalidArgument, grantID, g.UserID)
	}
	u.log.Info().Str("grant_id", grantID).Str("account_id", g.AccountID).Msg("grant already applied, reusing it")

	res := &ProvisionResult{AccountID: g.AccountID, Expiry: g.Expiry}
	if acct, err := u.accounts.FindByUserID(ctx, repository.NoTX, userID); err == nil && acct.ShortID != nil {
		res.ShortID = *acct.ShortID
		if url, err := u.panel.GetAccessURL(ctx, res.ShortID); err == nil {
			res.AccessURL = url
		}
	}
	return res, nil
}

func (u *provisionUC) Provision(ctx context.Context, userID int64, days int, grantID string) (*ProvisionResult, error) {
	defer logging.TraceDuration(u.log, "ProvisionUC.Provision")()
	if days <= 0 {
		return nil, fmt.Errorf("%w: days must be positive", domain.ErrInvalidArgument)
	}

	var res *ProvisionResult
	err := u.withUserLock(ctx, userID, func() error {
		var err error
		if res, err = u.replay(ctx, userID, grantID); res != nil || err != nil {
			return err
		}
		acct, err := u.loadAccount(ctx, userID)
		if err != nil {
			return err
		}
		if acct.IsProvisioned() {
			res, err = u.extend(ctx, acct, days, grantID)
			if err == nil || !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			u.log.Warn().Int64("user_id", userID).Str("account_id", *acct.ProvisionedAccountID).
				Msg("mapped account is gone from the panel; creating a new one")
		}
		res, err = u.create(ctx, acct, days, grantID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// extend returns an error wrapping domain.ErrNotFound when the panel lost the account.
func (u *provisionUC) extend(ctx context.Context, acct *model.Account, days int, grantID string) (*ProvisionResult, error) {
	remote, err := u.panel.GetAccount(ctx, *acct.ProvisionedAccountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		metrics.IncProvisioning("extend", "error")
		return nil, fmt.Errorf("%w: fetch account: %v", domain.ErrProvisioningFailed, err)
	}
	return u.applyExpiry(ctx, acct.UserID, remote, model.ExtendExpiry(expiryOf(remote), u.now(), days), grantID)
}

func (u *provisionUC) create(ctx context.Context, acct *model.Account, days int, grantID string) (*ProvisionResult, error) {
	base := acct.BaseUsername()
	now := u.now()

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		// A previous attempt may have created the account without us recording it.
		existing, err := u.panel.FindByExternalUserID(ctx, acct.UserID)
		switch {
		case err == nil:
			u.log.Info().Int64("user_id", acct.UserID).Str("account_id", existing.ID).Msg("adopting existing panel account")
			return u.applyExpiry(ctx, acct.UserID, existing, model.ExtendExpiry(expiryOf(existing), now, days), grantID)
		case !errors.Is(err, domain.ErrNotFound):
			metrics.IncProvisioning("create", "error")
			return nil, fmt.Errorf("%w: lookup by telegram id: %v", domain.ErrProvisioningFailed, err)
		}

		username := model.UsernameCandidate(base, attempt)
		created, err := u.panel.CreateAccount(ctx, adapter.CreateAccountRequest{
			Username:       username,
			ExternalUserID: acct.UserID,
			ExpireAt:       model.ExtendExpiry(nil, now, days),
			Description:    u.description,
		})
		if err == nil {
			metrics.IncAccountsCreated()
			res, err := u.record(ctx, acct.UserID, created, model.ExtendExpiry(nil, now, days), grantID)
			if res != nil {
				res.Created = true
			}
			return res, err
		}
		if !errors.Is(err, domain.ErrConflict) {
			metrics.IncProvisioning("create", "error")
			return nil, fmt.Errorf("%w: create %q: %v", domain.ErrProvisioningFailed, username, err)
		}
		u.log.Info().Str("username", username).Int("attempt", attempt+1).Msg("panel username taken, retrying")
	}

	metrics.IncProvisioning("create", "conflict")
	return nil, fmt.Errorf("%w: username %q still taken after %d attempts", domain.ErrProvisioningFailed, base, maxCreateAttempts)
}

func (u *provisionUC) applyExpiry(ctx context.Context, userID int64, remote *adapter.PanelAccount, expiry time.Time, grantID string) (*ProvisionResult, error) {
	updated, err := u.panel.UpdateExpiry(ctx, remote.ID, expiry)
	if err != nil {
		metrics.IncProvisioning("extend", "error")
		return nil, fmt.Errorf("%w: update expiry: %v", domain.ErrProvisioningFailed, err)
	}
	if updated == nil {
		updated = remote
	}
	return u.record(ctx, userID, updated, expiry, grantID)
}

// record persists the user -> account mapping and the grant before anything else can observe the result.
func (u *provisionUC) record(ctx context.Context, userID int64, remote *adapter.PanelAccount, expiry time.Time, grantID string) (*ProvisionResult, error) {
	var shortID *string
	if remote.ShortID != "" {
		shortID = &remote.ShortID
	}
	if err := u.accounts.SetProvisioned(ctx, repository.NoTX, userID, remote.ID, shortID, expiry, grantID); err != nil {
		return nil, fmt.Errorf("store account mapping: %w", err)
	}
	metrics.IncProvisioning("save", "ok")

	res := &ProvisionResult{AccountID: remote.ID, ShortID: remote.ShortID, Expiry: expiry}
	if remote.ShortID != "" {
		url, err := u.panel.GetAccessURL(ctx, remote.ShortID)
		if err != nil {
			u.log.Warn().Err(err).Str("account_id", remote.ID).Msg("could not resolve access url")
		} else {
			res.AccessURL = url
		}
	}
	return res, nil
}

func (u *provisionUC) AddBonusDays(ctx context.Context, userID int64, days int, grantID string) (*ProvisionResult, error) {
	defer logging.TraceDuration(u.log, "ProvisionUC.AddBonusDays")()

	var res *ProvisionResult
	err := u.withUserLock(ctx, userID, func() error {
		var err error
		if res, err = u.replay(ctx, userID, grantID); res != nil || err != nil {
			return err
		}
		acct, err := u.accounts.FindByUserID(ctx, repository.NoTX, userID)
		if err != nil {
			return err
		}
		if !acct.IsProvisioned() {
			return fmt.Errorf("user %d has no panel account: %w", userID, domain.ErrNotFound)
		}
		remote, err := u.panel.GetAccount(ctx, *acct.ProvisionedAccountID)
		if err != nil {
			return err
		}
		base := remote.ExpireAt
		if base.IsZero() {
			base = u.now()
		}
		res, err = u.applyExpiry(ctx, userID, remote, model.AddDays(base, days), grantID)
		return err
	})
	return res, err
}

func expiryOf(a *adapter.PanelAccount) *time.Time {
	if a == nil || a.ExpireAt.IsZero() {
		return nil
	}
	t := a.ExpireAt
	return &t
}
