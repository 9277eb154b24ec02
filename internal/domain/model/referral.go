package model

import "time"

// Referral links a referred user to the user who invited them.
// BonusGranted flips to true once and never back.
type Referral struct {
	ReferrerID   int64
	ReferredID   int64
	BonusGranted bool
	BonusDays    int
	CreatedAt    time.Time
	GrantedAt    *time.Time
}
