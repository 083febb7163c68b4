package ledger

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dkoutsos/agency/internal/config"
	"github.com/dkoutsos/agency/internal/domain"
)

// rapidSuccessionWindow is the lookback for the burst rule.
const rapidSuccessionWindow = 5 * time.Minute

var roundAmountFloor = decimal.NewFromInt(1000)

// FraudScreen scores a candidate transaction against the configured rules.
// The screen only reads activity history; it never mutates anything, so a
// flagged transaction can be re-screened after review without side effects.
type FraudScreen struct {
	cfg  *config.Config
	txns *TransactionRepository
	log  zerolog.Logger
}

// NewFraudScreen creates a new fraud screen.
func NewFraudScreen(cfg *config.Config, txns *TransactionRepository, log zerolog.Logger) *FraudScreen {
	return &FraudScreen{
		cfg:  cfg,
		txns: txns,
		log:  log.With().Str("component", "fraud").Logger(),
	}
}

// Assess scores one transaction. Risk factors are additive:
//
//	large_amount        +30  amount above the single-transaction cap
//	high_daily_total    +25  account's validated total for the day would exceed the daily cap
//	rapid_succession    +20  more than the allowed validated postings in the last 5 minutes
//	round_amount        +5   amounts of 1000 or more that are exact multiples of 100
//	unusual_time        +10  weekend, or outside 06:00-22:00 UTC
//
// A score of 50 or more is high risk, 25 or more is medium, otherwise low.
func (f *FraudScreen) Assess(txn *domain.Transaction) (domain.RiskAssessment, error) {
	score := 0
	var factors []string

	if txn.Amount.GreaterThan(f.cfg.MaxSingleTxn) {
		score += 30
		factors = append(factors, "large_amount")
	}

	dailyTotal, err := f.txns.DailyValidatedTotal(txn.AccountID, txn.TransactionAt)
	if err != nil {
		return domain.RiskAssessment{}, err
	}
	if dailyTotal.Add(txn.Amount).GreaterThan(f.cfg.MaxDailyTxn) {
		score += 25
		factors = append(factors, "high_daily_total")
	}

	recent, err := f.txns.CountRecent(txn.AccountID, rapidSuccessionWindow, txn.TransactionAt)
	if err != nil {
		return domain.RiskAssessment{}, err
	}
	if recent > f.cfg.RapidSuccessionMax {
		score += 20
		factors = append(factors, "rapid_succession")
	}

	if isRoundAmount(txn.Amount) {
		score += 5
		factors = append(factors, "round_amount")
	}

	if isUnusualTime(txn.TransactionAt) {
		score += 10
		factors = append(factors, "unusual_time")
	}

	assessment := domain.RiskAssessment{
		Level:   riskLevel(score),
		Score:   score,
		Factors: factors,
	}

	if assessment.Level != domain.RiskLow {
		f.log.Warn().
			Str("transaction_id", txn.ID).
			Str("account_id", txn.AccountID).
			Int("score", score).
			Strs("factors", factors).
			Str("level", string(assessment.Level)).
			Msg("Transaction flagged by fraud screen")
	}

	return assessment, nil
}

func riskLevel(score int) domain.RiskLevel {
	switch {
	case score >= 50:
		return domain.RiskHigh
	case score >= 25:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// isRoundAmount reports whether the amount is 1000 or more and an exact
// multiple of 100. Structuring tends to produce suspiciously round figures.
func isRoundAmount(amount decimal.Decimal) bool {
	if amount.LessThan(roundAmountFloor) {
		return false
	}
	return amount.Mod(decimal.NewFromInt(100)).IsZero()
}

// isUnusualTime reports whether the transaction falls on a weekend or
// outside normal operating hours (06:00-22:00 UTC).
func isUnusualTime(at time.Time) bool {
	at = at.UTC()
	if at.Weekday() == time.Saturday || at.Weekday() == time.Sunday {
		return true
	}
	hour := at.Hour()
	return hour < 6 || hour > 22
}
