package model

import "time"

// WebhookEvent is the audit record of one processor delivery.
type WebhookEvent struct {
	ID         string // UUID
	Processor  string
	Event      string
	ObjectID   string
	Result     string
	ReceivedAt time.Time
}

// ExpiryNotice records that a user was reminded about an upcoming expiry.
type ExpiryNotice struct {
	UserID        int64
	ExpiresAt     time.Time
	ThresholdDays int
	SentAt        time.Time
}
