package service

import "github.com/reelhub/review-api/internal/models"

const bpsDenominator = 10000

// TaxPolicy holds withholding rates in basis points (1/100 of a percent).
type TaxPolicy struct {
	IncomeBps int64
	LocalBps  int64
}

// DefaultTaxPolicy is 3% income tax plus 0.3% local tax.
var DefaultTaxPolicy = TaxPolicy{IncomeBps: 300, LocalBps: 30}

// Calculate rounds each component half-up on its own before summing, so the
// total may differ by one unit from rounding the combined rate.
func (p TaxPolicy) Calculate(gross int64) models.TaxBreakdown {
	income := roundBps(gross, p.IncomeBps)
	local := roundBps(gross, p.LocalBps)
	total := income + local
	return models.TaxBreakdown{
		Gross:     gross,
		IncomeTax: income,
		LocalTax:  local,
		TotalTax:  total,
		NetAmount: gross - total,
	}
}

// roundBps computes round(amount*bps/10000) with halves rounded up, in integers.
func roundBps(amount, bps int64) int64 {
	return floorDiv(2*amount*bps+bpsDenominator, 2*bpsDenominator)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
