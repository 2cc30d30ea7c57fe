package payment

import "github.com/shopspring/decimal"

type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

var (
	highAmount     = decimal.NewFromInt(1_000_000)
	veryHighAmount = decimal.NewFromInt(10_000_000)
)

// History summarizes the payer's recent activity for scoring.
type History struct {
	PaymentsLast24h int
	FailedPayments  int
}

// Assess scores a payment between 0 and 1.5 and buckets it into a level.
func Assess(amount decimal.Decimal, h History) (float64, RiskLevel) {
	// Points are hundredths of the score so thresholds compare exactly.
	points := 0
	if amount.GreaterThan(highAmount) {
		points += 30
	}
	if amount.GreaterThan(veryHighAmount) {
		points += 50
	}
	if h.PaymentsLast24h > 10 {
		points += 40
	}
	if h.FailedPayments > 5 {
		points += 30
	}
	return float64(points) / 100, levelFor(points)
}

func levelFor(points int) RiskLevel {
	switch {
	case points >= 80:
		return RiskCritical
	case points >= 60:
		return RiskHigh
	case points >= 30:
		return RiskMedium
	default:
		return RiskLow
	}
}
