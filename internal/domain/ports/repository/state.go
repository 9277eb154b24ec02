package repository

import (
	"context"
)

// ConversationState holds the user's progress in any multi-step conversation.
type ConversationState struct {
	Step string            `json:"step"` // e.g. "awaiting_promo_code"
	Data map[string]string `json:"data"` // collected values such as months
}

// StateRepository is the port for per-user conversational state. Entries expire on their own.
type StateRepository interface {
	SetState(ctx context.Context, tgID int64, state *ConversationState) error
	// GetState returns nil, nil when nothing is stored.
	GetState(ctx context.Context, tgID int64) (*ConversationState, error)
	ClearState(ctx context.Context, tgID int64) error
}
