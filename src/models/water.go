package models

import (
	"time"

	"github.com/mlandesman/sams-billing-core/src/money"
)

// WaterUnitBill is one unit's entry in a WaterBillDocument's
// bills.units[unitId] mapping (spec §3.4). Its fields mirror the
// common Bill shape (spec §3.2).
type WaterUnitBill struct {
	UnitID      string
	BaseCharge  money.Centavos
	BasePaid    money.Centavos
	PenaltyAmt  money.Centavos
	PenaltyPaid money.Centavos
	DueDate     time.Time
	Payments    []BillPayment
	ConsumptionM3 float64
}

// WaterBillDocument is one document per (client, fiscal-period) for the
// metered-water stream (spec §3.4).
type WaterBillDocument struct {
	ClientID string
	Period   string // "YYYY-NN" water fiscal-month
	Units    map[string]*WaterUnitBill
}
