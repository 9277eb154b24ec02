package model

import (
	"fmt"
	"strings"
	"time"

	"telegram-vpn-subscription/internal/domain"
)

// Account is the local mirror of a bot user and their provisioned VPN account.
// The panel stays the source of truth for the expiry; EntitlementExpiry is a cached copy.
type Account struct {
	UserID               int64 // Telegram user id
	Username             string
	ProvisionedAccountID *string
	ShortID              *string
	ReferrerID           *int64
	TrialUsed            bool
	EntitlementExpiry    *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func NewAccount(userID int64, username string) (*Account, error) {
	if userID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	return &Account{
		UserID:    userID,
		Username:  strings.TrimPrefix(strings.TrimSpace(username), "@"),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (a *Account) IsProvisioned() bool {
	return a != nil && a.ProvisionedAccountID != nil && *a.ProvisionedAccountID != ""
}

// BaseUsername is the first candidate name offered to the account panel.
func (a *Account) BaseUsername() string {
	name := sanitizeUsername(a.Username)
	if len(name) < 3 {
		return fmt.Sprintf("user_%d", a.UserID)
	}
	return name
}

// UsernameCandidate returns base, base_1, base_2 ... for attempt 0, 1, 2 ...
func UsernameCandidate(base string, attempt int) string {
	if attempt <= 0 {
		return base
	}
	return fmt.Sprintf("%s_%d", base, attempt)
}

// panel usernames accept [A-Za-z0-9_-], 3..36 chars
func sanitizeUsername(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > 30 {
		out = out[:30]
	}
	return out
}

// ExtendExpiry applies the entitlement rule: extend from the current expiry when it lies in the future,
// otherwise start from now. Results are truncated to whole seconds.
func ExtendExpiry(current *time.Time, now time.Time, days int) time.Time {
	base := now
	if current != nil && current.After(now) {
		base = *current
	}
	return base.Add(time.Duration(days) * 24 * time.Hour).UTC().Truncate(time.Second)
}

// AddDays extends unconditionally from the given expiry.
func AddDays(current time.Time, days int) time.Time {
	return current.Add(time.Duration(days) * 24 * time.Hour).UTC().Truncate(time.Second)
}

// ProvisionGrant records that one payment, trial or referral bonus was applied to the panel.
// GrantID is the idempotency key, e.g. the payment id.
type ProvisionGrant struct {
	GrantID   string
	UserID    int64
	AccountID string
	Expiry    time.Time
	CreatedAt time.Time
}
