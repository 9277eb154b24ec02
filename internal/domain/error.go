package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrLockNotAcquired    = errors.New("lock not acquired")

	// Payment and entitlement errors
	ErrInvalidDuration     = errors.New("invalid subscription duration")
	ErrPromoInvalid        = errors.New("promo code is not usable")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrAmountMismatch      = errors.New("paid amount does not match invoice")
	ErrProvisioningFailed  = errors.New("account provisioning failed")
	ErrSignatureInvalid    = errors.New("webhook signature invalid")
	ErrPaymentFailed       = errors.New("payment is in failed state")
	ErrTrialUnavailable    = errors.New("trial is not available")
	ErrRateLimited         = errors.New("too many requests")

	// Account panel errors
	ErrConflict    = errors.New("resource conflict")
	ErrUnavailable = errors.New("service unavailable")
)

// PromoError explains why a promo code was refused. It matches ErrPromoInvalid.
type PromoError struct {
	Code   string
	Reason string
}

func (e *PromoError) Error() string {
	return fmt.Sprintf("promo %q: %s", e.Code, e.Reason)
}

func (e *PromoError) Unwrap() error { return ErrPromoInvalid }
