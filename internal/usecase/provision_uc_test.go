//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"telegram-vpn-subscription/internal/domain"
	"telegram-vpn-subscription/internal/domain/model"
	"telegram-vpn-subscription/internal/domain/ports/adapter"
	"telegram-vpn-subscription/internal/usecase"
)

type provisionDeps struct {
	accounts *MockAccountRepo
	panel    *MockPanel
	locker   *MockLocker
	uc       usecase.ProvisionUseCase
}

func newProvisionDeps() *provisionDeps {
	d := &provisionDeps{
		accounts: NewMockAccountRepo(),
		panel:    NewMockPanel(),
		locker:   NewMockLocker(),
	}
	d.uc = usecase.NewProvisionUseCase(d.accounts, d.panel, d.locker, "vpn bot", 5*time.Second, newTestLogger())
	return d
}

// seedProvisioned creates a local account mapped to a panel account with the given expiry.
func (d *provisionDeps) seedProvisioned(userID int64, username string, expiry time.Time) string {
	id := fmt.Sprintf("acct-%d", userID)
	d.panel.Seed(adapter.PanelAccount{ID: id, ShortID: "s" + id, Username: username, ExternalUserID: userID, ExpireAt: expiry})
	a, _ := model.NewAccount(userID, username)
	a.ProvisionedAccountID = &id
	a.EntitlementExpiry = &expiry
	d.accounts.Put(a)
	return id
}

func assertAround(t *testing.T, got, want time.Time, slack time.Duration) {
	t.Helper()
	if diff := got.Sub(want); diff < -slack || diff > slack {
		t.Fatalf("expected ~%s, got %s (diff %s)", want, got, diff)
	}
}

func TestProvisionUseCase_Provision(t *testing.T) {
	ctx := context.Background()

	t.Run("should extend a running entitlement from its current expiry", func(t *testing.T) {
		// --- Arrange ---
		d := newProvisionDeps()
		current := time.Now().Add(10 * 24 * time.Hour).UTC().Truncate(time.Second)
		id := d.seedProvisioned(1, "alice", current)

		// --- Act ---
		res, err := d.uc.Provision(ctx, 1, 30, "")

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		want := current.Add(30 * 24 * time.Hour)
		if !res.Expiry.Equal(want) {
			t.Errorf("expected expiry %s, got %s", want, res.Expiry)
		}
		if res.AccountID != id || res.Created {
			t.Errorf("expected the existing account to be extended, got %+v", res)
		}
		if !d.panel.Account(id).ExpireAt.Equal(want) {
			t.Errorf("panel expiry not updated")
		}
		if d.panel.CreateCalls() != 0 {
			t.Errorf("expected no create call, got %d", d.panel.CreateCalls())
		}
		acct, _ := d.accounts.FindByUserID(ctx, nil, 1)
		if !acct.EntitlementExpiry.Equal(want) {
			t.Errorf("local mirror not updated: %v", acct.EntitlementExpiry)
		}
	})

	t.Run("should restart a lapsed entitlement from now", func(t *testing.T) {
		d := newProvisionDeps()
		d.seedProvisioned(2, "bob", time.Now().Add(-5*24*time.Hour))

		res, err := d.uc.Provision(ctx, 2, 30, "")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		assertAround(t, res.Expiry, time.Now().Add(30*24*time.Hour), 2*time.Second)
	})

	t.Run("should create an account for a new user and record the mapping", func(t *testing.T) {
		d := newProvisionDeps()
		a, _ := model.NewAccount(3, "@carol")
		d.accounts.Put(a)

		res, err := d.uc.Provision(ctx, 3, 90, "")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !res.Created || res.AccessURL == "" {
			t.Errorf("expected a created account with an access url, got %+v", res)
		}
		if got := d.panel.Calls.Create; len(got) != 1 || got[0] != "carol" {
			t.Errorf("expected one create for 'carol', got %v", got)
		}
		assertAround(t, res.Expiry, time.Now().Add(90*24*time.Hour), 2*time.Second)

		acct, _ := d.accounts.FindByUserID(ctx, nil, 3)
		if !acct.IsProvisioned() || *acct.ProvisionedAccountID != res.AccountID {
			t.Fatalf("mapping not stored: %+v", acct)
		}

		// A second purchase reuses the mapping.
		if _, err := d.uc.Provision(ctx, 3, 30, ""); err != nil {
			t.Fatalf("second provision failed: %v", err)
		}
		if d.panel.CreateCalls() != 1 {
			t.Errorf("expected the account to be reused, got %d creates", d.panel.CreateCalls())
		}
	})

	t.Run("should fall back to a synthesized username", func(t *testing.T) {
		d := newProvisionDeps()
		res, err := d.uc.Provision(ctx, 77, 3, "")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := d.panel.Calls.Create; len(got) != 1 || got[0] != "user_77" {
			t.Errorf("expected username user_77, got %v", got)
		}
		if res.AccountID == "" {
			t.Error("expected an account id")
		}
	})

	t.Run("should retry name collisions with numeric suffixes", func(t *testing.T) {
		d := newProvisionDeps()
		a, _ := model.NewAccount(4, "dave")
		d.accounts.Put(a)
		d.panel.TakenNames["dave"] = true
		d.panel.TakenNames["dave_1"] = true

		res, err := d.uc.Provision(ctx, 4, 30, "")
		if err != nil {
			t.Fatalf("expected success on the third attempt, got %v", err)
		}
		want := []string{"dave", "dave_1", "dave_2"}
		if fmt.Sprint(d.panel.Calls.Create) != fmt.Sprint(want) {
			t.Errorf("expected attempts %v, got %v", want, d.panel.Calls.Create)
		}
		if d.panel.Account(res.AccountID).Username != "dave_2" {
			t.Errorf("expected dave_2 to be created")
		}
	})

	t.Run("should fail after exactly three colliding attempts", func(t *testing.T) {
		d := newProvisionDeps()
		a, _ := model.NewAccount(5, "eve")
		d.accounts.Put(a)
		for _, n := range []string{"eve", "eve_1", "eve_2", "eve_3"} {
			d.panel.TakenNames[n] = true
		}

		_, err := d.uc.Provision(ctx, 5, 30, "")
		if !errors.Is(err, domain.ErrProvisioningFailed) {
			t.Fatalf("expected ErrProvisioningFailed, got %v", err)
		}
		if d.panel.CreateCalls() != 3 {
			t.Errorf("expected exactly 3 attempts, got %d", d.panel.CreateCalls())
		}
		acct, _ := d.accounts.FindByUserID(ctx, nil, 5)
		if acct.IsProvisioned() {
			t.Error("no mapping should be stored on failure")
		}
	})

	t.Run("should adopt an account the panel already holds for the user", func(t *testing.T) {
		d := newProvisionDeps()
		a, _ := model.NewAccount(6, "frank")
		d.accounts.Put(a)
		current := time.Now().Add(3 * 24 * time.Hour).UTC().Truncate(time.Second)
		d.panel.Seed(adapter.PanelAccount{ID: "orphan", ShortID: "orph", Username: "frank", ExternalUserID: 6, ExpireAt: current})

		res, err := d.uc.Provision(ctx, 6, 30, "")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.AccountID != "orphan" || d.panel.CreateCalls() != 0 {
			t.Fatalf("expected orphan adoption without create, got %+v (%d creates)", res, d.panel.CreateCalls())
		}
		if !res.Expiry.Equal(current.Add(30 * 24 * time.Hour)) {
			t.Errorf("expected adoption to extend the running expiry, got %s", res.Expiry)
		}
	})

	t.Run("should recreate when the mapped account vanished from the panel", func(t *testing.T) {
		d := newProvisionDeps()
		gone := "deleted-on-panel"
		a, _ := model.NewAccount(7, "gina")
		a.ProvisionedAccountID = &gone
		d.accounts.Put(a)

		res, err := d.uc.Provision(ctx, 7, 30, "")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.AccountID == gone || !res.Created {
			t.Fatalf("expected a fresh account, got %+v", res)
		}
	})

	t.Run("should surface panel outages as provisioning failures", func(t *testing.T) {
		d := newProvisionDeps()
		d.panel.CreateAccountFunc = func(ctx context.Context, req adapter.CreateAccountRequest) (*adapter.PanelAccount, error) {
			return nil, fmt.Errorf("502: %w", domain.ErrUnavailable)
		}
		_, err := d.uc.Provision(ctx, 8, 30, "")
		if !errors.Is(err, domain.ErrProvisioningFailed) {
			t.Fatalf("expected ErrProvisioningFailed, got %v", err)
		}
		if d.panel.CreateCalls() != 1 {
			t.Errorf("outages must not be retried as collisions, got %d calls", d.panel.CreateCalls())
		}
	})

	t.Run("should treat a missing access url as non-fatal", func(t *testing.T) {
		d := newProvisionDeps()
		d.panel.AccessURLErr = domain.ErrUnavailable
		res, err := d.uc.Provision(ctx, 9, 30, "")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.AccessURL != "" || res.AccountID == "" {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("should refuse while another provisioning holds the user lock", func(t *testing.T) {
		d := newProvisionDeps()
		if _, err := d.locker.TryLock(ctx, "lock:provision:10", time.Minute); err != nil {
			t.Fatal(err)
		}
		_, err := d.uc.Provision(ctx, 10, 30, "")
		if !errors.Is(err, domain.ErrLockNotAcquired) {
			t.Fatalf("expected ErrLockNotAcquired, got %v", err)
		}
		if d.panel.CreateCalls() != 0 {
			t.Error("panel must not be called without the lock")
		}
	})

	t.Run("should wait for the user lock at least as long as a holder may keep it", func(t *testing.T) {
		d := newProvisionDeps()
		if _, err := d.uc.Provision(ctx, 13, 30, ""); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(d.locker.Waits) != 1 {
			t.Fatalf("expected one lock wait, got %v", d.locker.Waits)
		}
		// 5s panel timeout across every panel call of the slowest path
		if floor := 9 * 5 * time.Second; d.locker.Waits[0] < floor {
			t.Errorf("expected a wait of at least %s, got %s", floor, d.locker.Waits[0])
		}
	})

	t.Run("should reuse an applied grant instead of extending twice", func(t *testing.T) {
		// --- Arrange ---
		d := newProvisionDeps()
		current := time.Now().Add(10 * 24 * time.Hour).UTC().Truncate(time.Second)
		id := d.seedProvisioned(14, "jack", current)

		// --- Act ---
		first, err := d.uc.Provision(ctx, 14, 30, "pay-14")
		if err != nil {
			t.Fatalf("first grant: %v", err)
		}
		again, err := d.uc.Provision(ctx, 14, 30, "pay-14")

		// --- Assert ---
		if err != nil {
			t.Fatalf("replayed grant: %v", err)
		}
		want := current.Add(30 * 24 * time.Hour)
		if !first.Expiry.Equal(want) || !again.Expiry.Equal(want) || again.AccountID != id {
			t.Fatalf("expected both results at %s on %s, got %+v and %+v", want, id, first, again)
		}
		if got := d.panel.Account(id).ExpireAt; !got.Equal(want) {
			t.Errorf("panel expiry moved to %s", got)
		}
		if len(d.panel.Calls.Update) != 1 {
			t.Errorf("expected one panel update, got %d", len(d.panel.Calls.Update))
		}
	})

	t.Run("should not replay a grant recorded for another user", func(t *testing.T) {
		d := newProvisionDeps()
		d.seedProvisioned(15, "kate", time.Now().Add(24*time.Hour))
		d.seedProvisioned(16, "liam", time.Now().Add(24*time.Hour))
		if _, err := d.uc.Provision(ctx, 15, 30, "pay-shared"); err != nil {
			t.Fatal(err)
		}
		if _, err := d.uc.Provision(ctx, 16, 30, "pay-shared"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestProvisionUseCase_AddBonusDays(t *testing.T) {
	ctx := context.Background()

	t.Run("should add days to a lapsed expiry without resetting to now", func(t *testing.T) {
		d := newProvisionDeps()
		lapsed := time.Now().Add(-20 * 24 * time.Hour).UTC().Truncate(time.Second)
		d.seedProvisioned(11, "hank", lapsed)

		res, err := d.uc.AddBonusDays(ctx, 11, 7, "")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if want := lapsed.Add(7 * 24 * time.Hour); !res.Expiry.Equal(want) {
			t.Errorf("expected %s, got %s", want, res.Expiry)
		}
	})

	t.Run("should report users without an account", func(t *testing.T) {
		d := newProvisionDeps()
		a, _ := model.NewAccount(12, "ivy")
		d.accounts.Put(a)
		if _, err := d.uc.AddBonusDays(ctx, 12, 7, ""); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should grant a referral bonus once per grant id", func(t *testing.T) {
		d := newProvisionDeps()
		base := time.Now().Add(5 * 24 * time.Hour).UTC().Truncate(time.Second)
		id := d.seedProvisioned(17, "mia", base)

		for i := 0; i < 2; i++ {
			if _, err := d.uc.AddBonusDays(ctx, 17, 7, "referral:99"); err != nil {
				t.Fatalf("call %d: %v", i, err)
			}
		}
		if want := base.Add(7 * 24 * time.Hour); !d.panel.Account(id).ExpireAt.Equal(want) {
			t.Errorf("expected %s, got %s", want, d.panel.Account(id).ExpireAt)
		}
	})
}
