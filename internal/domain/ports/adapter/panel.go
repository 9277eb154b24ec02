package adapter

import (
	"context"
	"time"
)

// PanelAccount is a VPN account as the account panel reports it.
type PanelAccount struct {
	ID             string // panel uuid
	ShortID        string
	Username       string
	ExternalUserID int64 // Telegram id stored on the panel
	ExpireAt       time.Time
	Status         string
}

type CreateAccountRequest struct {
	Username       string
	ExternalUserID int64
	ExpireAt       time.Time
	Description    string
}

// AccountPanel is the port for the external VPN account API.
// Errors wrap domain.ErrNotFound, domain.ErrConflict (username taken) or domain.ErrUnavailable.
type AccountPanel interface {
	CreateAccount(ctx context.Context, req CreateAccountRequest) (*PanelAccount, error)
	UpdateExpiry(ctx context.Context, accountID string, expireAt time.Time) (*PanelAccount, error)
	GetAccount(ctx context.Context, accountID string) (*PanelAccount, error)
	// FindByExternalUserID returns domain.ErrNotFound when the user has no account yet.
	FindByExternalUserID(ctx context.Context, userID int64) (*PanelAccount, error)
	GetAccessURL(ctx context.Context, shortID string) (string, error)
}
