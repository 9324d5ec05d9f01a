package payments

import "errors"

// ErrUnknownPriceTier rejects payment amounts outside the fixed table.
// Unknown amounts are logged and refused, never mapped to a guessed value.
var ErrUnknownPriceTier = errors.New("unknown price tier")

// priceTable maps a charge amount in cents to the credits it purchases.
// Small and fixed; there is no configurable pricing engine.
var priceTable = map[int]int{
	499:  10,
	999:  25,
	2499: 75,
}

// CreditsForAmount resolves a payment amount to its credit grant.
func CreditsForAmount(amountCents int) (int, error) {
	credits, ok := priceTable[amountCents]
	if !ok {
		return 0, ErrUnknownPriceTier
	}
	return credits, nil
}

// KnownAmounts lists the supported charge amounts, for validation surfaces.
func KnownAmounts() []int {
	amounts := make([]int, 0, len(priceTable))
	for cents := range priceTable {
		amounts = append(amounts, cents)
	}
	return amounts
}
