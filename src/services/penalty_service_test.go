package services

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mlandesman/sams-billing-core/src/models"
	"github.com/mlandesman/sams-billing-core/src/money"
)

func TestPenaltyRecalculateWithinGracePeriodUntouched(t *testing.T) {
	svc := NewPenaltyService(zerolog.Nop())
	due := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bill := models.Bill{
		ModuleType: models.ModuleHOA,
		BaseCharge: 100000,
		DueDate:    due,
	}
	hoa := models.HOAConfig{PenaltyRate: decimal.NewFromFloat(0.05), PenaltyDays: 10}
	water := models.WaterConfig{}

	asOf := due.AddDate(0, 0, 5)
	result := svc.Recalculate([]models.Bill{bill}, asOf, hoa, water)
	if result.UpdatedBills[0].PenaltyAmt != 0 {
		t.Errorf("penaltyAmt = %d, want 0 within grace period", result.UpdatedBills[0].PenaltyAmt)
	}
	if result.BillsUpdated != 0 {
		t.Errorf("billsUpdated = %d, want 0", result.BillsUpdated)
	}
}

func TestPenaltyRecalculateCompoundsMonthly(t *testing.T) {
	svc := NewPenaltyService(zerolog.Nop())
	due := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bill := models.Bill{
		ModuleType: models.ModuleHOA,
		BaseCharge: 100000,
		DueDate:    due,
	}
	hoa := models.HOAConfig{PenaltyRate: decimal.NewFromFloat(0.05), PenaltyDays: 10}
	water := models.WaterConfig{}

	// grace ends 2026-01-11; 2 whole months elapsed by 2026-03-11.
	asOf := due.AddDate(0, 2, 10)
	result := svc.Recalculate([]models.Bill{bill}, asOf, hoa, water)

	month1 := money.MulRate(100000, hoa.PenaltyRate)
	month2 := money.MulRate(money.Add(100000, month1), hoa.PenaltyRate)
	want := money.Add(month1, month2)

	got := result.UpdatedBills[0].PenaltyAmt
	if got != want {
		t.Errorf("penaltyAmt = %d, want %d", got, want)
	}
	if result.BillsUpdated != 1 {
		t.Errorf("billsUpdated = %d, want 1", result.BillsUpdated)
	}
}

func TestPenaltyRecalculatePaidBillUntouched(t *testing.T) {
	svc := NewPenaltyService(zerolog.Nop())
	due := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bill := models.Bill{
		ModuleType:  models.ModuleHOA,
		BaseCharge:  100000,
		BasePaid:    100000,
		PenaltyAmt:  500,
		PenaltyPaid: 500,
		DueDate:     due,
	}
	hoa := models.HOAConfig{PenaltyRate: decimal.NewFromFloat(0.05), PenaltyDays: 10}
	water := models.WaterConfig{}

	asOf := due.AddDate(1, 0, 0)
	result := svc.Recalculate([]models.Bill{bill}, asOf, hoa, water)
	if result.UpdatedBills[0].PenaltyAmt != 500 {
		t.Errorf("penaltyAmt = %d, want unchanged 500", result.UpdatedBills[0].PenaltyAmt)
	}
}

func TestPenaltyRecalculateIsDeterministic(t *testing.T) {
	svc := NewPenaltyService(zerolog.Nop())
	due := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bill := models.Bill{ModuleType: models.ModuleWater, BaseCharge: 50000, DueDate: due}
	hoa := models.HOAConfig{}
	water := models.WaterConfig{PenaltyRate: decimal.NewFromFloat(0.1), PenaltyDays: 5}

	asOf := due.AddDate(0, 3, 0)
	r1 := svc.Recalculate([]models.Bill{bill}, asOf, hoa, water)
	r2 := svc.Recalculate([]models.Bill{bill}, asOf, hoa, water)
	if r1.UpdatedBills[0].PenaltyAmt != r2.UpdatedBills[0].PenaltyAmt {
		t.Errorf("recalculation not deterministic: %d vs %d", r1.UpdatedBills[0].PenaltyAmt, r2.UpdatedBills[0].PenaltyAmt)
	}
}
