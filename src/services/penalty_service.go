package services

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mlandesman/sams-billing-core/src/fiscal"
	"github.com/mlandesman/sams-billing-core/src/models"
	"github.com/mlandesman/sams-billing-core/src/money"
)

// PenaltyService recomputes compounding penalties on overdue bills,
// reconstituting penaltyAmount from the stored base owed rather than
// trusting any cached total (spec §4.7). It holds no storage or clock
// dependency: Recalculate is a pure function of its inputs, grounded
// on the teacher's InterestService.CalculateInterest shape but
// replacing the Average-Daily-Balance formula with the spec's
// month-by-month compounding rule.
type PenaltyService struct {
	log zerolog.Logger
}

// NewPenaltyService constructs a PenaltyService.
func NewPenaltyService(log zerolog.Logger) *PenaltyService {
	return &PenaltyService{log: log.With().Str("service", "penalty").Logger()}
}

// RecalculateResult is the outcome of a Recalculate call (spec §4.7).
type RecalculateResult struct {
	UpdatedBills        []models.Bill
	TotalPenaltiesAdded money.Centavos
	BillsUpdated        int
}

// Recalculate computes penalties on every bill in bills as of asOfDate,
// using the per-module penalty rate and grace days in config. Paid
// bills and bills still within their grace period are returned
// unchanged; their stored penaltyAmount already reflects whatever
// penalty accrued before they were satisfied.
func (s *PenaltyService) Recalculate(bills []models.Bill, asOfDate time.Time, hoa models.HOAConfig, water models.WaterConfig) RecalculateResult {
	result := RecalculateResult{UpdatedBills: make([]models.Bill, len(bills))}

	for i, bill := range bills {
		updated := bill
		rate, graceDays := s.policyFor(bill.ModuleType, hoa, water)

		graceEnd := bill.DueDate.AddDate(0, 0, graceDays)
		baseOwed := bill.BaseOwed()

		if baseOwed <= 0 || !asOfDate.After(graceEnd) {
			result.UpdatedBills[i] = updated
			continue
		}

		months := fiscal.MonthsElapsed(graceEnd, asOfDate)
		if months <= 0 {
			result.UpdatedBills[i] = updated
			continue
		}

		newPenalty := compoundPenalty(baseOwed, rate, months)
		if newPenalty != bill.PenaltyAmt {
			delta := money.Sub(newPenalty, bill.PenaltyAmt)
			if delta > 0 {
				result.TotalPenaltiesAdded = money.Add(result.TotalPenaltiesAdded, delta)
			}
			updated.PenaltyAmt = newPenalty
			result.BillsUpdated++
		}
		result.UpdatedBills[i] = updated
	}

	s.log.Debug().Int("billsUpdated", result.BillsUpdated).
		Int64("totalPenaltiesAdded", int64(result.TotalPenaltiesAdded)).Msg("penalties recalculated")
	return result
}

// compoundPenalty accrues round(principal * rate) for each of m
// elapsed months, compounding onto the outstanding principal at each
// step, and returns the accumulated penalty total (spec §4.7).
func compoundPenalty(baseOwed money.Centavos, rate decimal.Decimal, m int) money.Centavos {
	principal := baseOwed
	var penaltyTotal money.Centavos
	for i := 0; i < m; i++ {
		accrued := money.MulRate(principal, rate)
		penaltyTotal = money.Add(penaltyTotal, accrued)
		principal = money.Add(principal, accrued)
	}
	return penaltyTotal
}

func (s *PenaltyService) policyFor(mod models.ModuleType, hoa models.HOAConfig, water models.WaterConfig) (decimal.Decimal, int) {
	if mod == models.ModuleWater {
		return water.PenaltyRate, water.PenaltyDays
	}
	return hoa.PenaltyRate, hoa.PenaltyDays
}
