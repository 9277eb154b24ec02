package model

import (
	"fmt"

	"telegram-vpn-subscription/internal/domain"
)

// SupportedDurations lists the purchasable subscription lengths in months.
var SupportedDurations = []int{1, 3, 6, 12}

// PriceTable maps a duration in months to a base price in the rail's minor units.
type PriceTable map[int]int64

func (t PriceTable) Price(months int) (int64, error) {
	p, ok := t[months]
	if !ok || p <= 0 {
		return 0, fmt.Errorf("%w: %d months", domain.ErrInvalidDuration, months)
	}
	return p, nil
}

// DefaultStarsPrices are the in-platform prices used when none are configured.
func DefaultStarsPrices() PriceTable {
	return PriceTable{1: 100, 3: 250, 6: 450, 12: 800}
}
