package models

import (
	"time"

	"github.com/mlandesman/sams-billing-core/src/money"
)

// PaymentNote is a single structured note entry on a dues payment slot
// (spec §4.4, design note "Notes as structured sequences"). Legacy
// string notes are promoted into a single-entry slice of these on read.
type PaymentNote struct {
	TransactionID string
	Timestamp     time.Time
	Text          string
	Amount        money.Centavos
	BasePaid      money.Centavos
	PenaltyPaid   money.Centavos
}

// DuesPaymentSlot is one of the 12 per-fiscal-month accumulated payment
// summaries on a DuesDocument (spec §3.3).
type DuesPaymentSlot struct {
	Amount      money.Centavos
	BasePaid    money.Centavos
	PenaltyPaid money.Centavos
	Status      BillStatus
	LastDate    time.Time
	Notes       []PaymentNote
}

// PenaltyHistoryEntry is an imported, pre-engine penalty charge on a
// DuesDocument (spec §3.3, "penalties.entries[] (optional)").
type PenaltyHistoryEntry struct {
	MonthIndex int
	Amount     money.Centavos
	Date       time.Time
	Note       string
}

// DuesDocument is the per-(client, unit, fiscal year) document for the
// dues stream (spec §3.3). ScheduledAmount, Payments, PenaltyEntries and
// TotalPaid persist; materialized bills are a read-time view (Dues
// Adapter, spec §4.4).
type DuesDocument struct {
	ClientID        string
	UnitID          string
	FiscalYear      int
	ScheduledAmount money.Centavos
	Payments        [12]DuesPaymentSlot
	PenaltyEntries  []PenaltyHistoryEntry
	TotalPaid       money.Centavos

	// Legacy mirrored fields (spec §9 "Legacy mirrored fields"). Present
	// only so the adapter can detect and delete them on write; never read.
	LegacyCreditBalance        *money.Centavos
	LegacyCreditBalanceHistory []map[string]interface{}
}
