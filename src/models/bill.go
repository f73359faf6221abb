package models

import (
	"time"

	"github.com/mlandesman/sams-billing-core/src/money"
)

// ModuleType distinguishes the two billing streams a Bill can come from.
type ModuleType string

const (
	ModuleHOA   ModuleType = "hoa"
	ModuleWater ModuleType = "water"
)

// BillStatus is derived, never stored authoritatively independent of
// the underlying paid/charged amounts (spec §3.2 invariant).
type BillStatus string

const (
	BillStatusUnpaid  BillStatus = "unpaid"
	BillStatusPartial BillStatus = "partial"
	BillStatusPaid    BillStatus = "paid"
)

// BillPayment is one historical payment record applied to a Bill.
type BillPayment struct {
	TransactionID string
	Timestamp     time.Time
	BasePaid      money.Centavos
	PenaltyPaid   money.Centavos
	Method        string
}

// Bill represents one billable period for one unit, materialized from
// either the Dues Adapter or the Water Adapter (spec §3.2).
type Bill struct {
	BillID      string
	Period      string // "YYYY-MM", "YYYY-QN", or "YYYY-NN"
	UnitID      string
	ModuleType  ModuleType
	BaseCharge  money.Centavos
	BasePaid    money.Centavos
	PenaltyAmt  money.Centavos
	PenaltyPaid money.Centavos
	DueDate     time.Time
	Payments    []BillPayment

	// Tagging used during engine aggregation (spec §4.6.2); zero values
	// outside that context.
	MonthIndex   int // fiscal-month index for HOA monthly bills
	QuarterIndex int // 1..4 for HOA quarterly bills
}

// BaseOwed returns baseCharge - basePaid.
func (b Bill) BaseOwed() money.Centavos { return money.Sub(b.BaseCharge, b.BasePaid) }

// PenaltyOwed returns penaltyAmount - penaltyPaid.
func (b Bill) PenaltyOwed() money.Centavos { return money.Sub(b.PenaltyAmt, b.PenaltyPaid) }

// TotalOwed returns BaseOwed() + PenaltyOwed().
func (b Bill) TotalOwed() money.Centavos { return money.Add(b.BaseOwed(), b.PenaltyOwed()) }

// Status derives the bill's status per spec §3.2: paid iff fully
// satisfied on both base and penalty; partial iff any positive payment
// exists; unpaid otherwise.
func (b Bill) Status() BillStatus {
	if b.BasePaid >= b.BaseCharge && b.PenaltyPaid >= b.PenaltyAmt {
		return BillStatusPaid
	}
	if b.BasePaid > 0 || b.PenaltyPaid > 0 {
		return BillStatusPartial
	}
	return BillStatusUnpaid
}
