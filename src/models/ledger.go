package models

import (
	"time"

	"github.com/mlandesman/sams-billing-core/src/money"
)

// CreditEntryType classifies a credit ledger entry (spec §3.5).
type CreditEntryType string

const (
	CreditEntryStartingBalance CreditEntryType = "starting_balance"
	CreditEntryAdded           CreditEntryType = "credit_added"
	CreditEntryUsed            CreditEntryType = "credit_used"
	CreditEntryManualAdjust    CreditEntryType = "manual_adjustment"
)

// CreditEntrySource records what subsystem produced a credit entry.
type CreditEntrySource string

const (
	CreditSourcePayment        CreditEntrySource = "payment"
	CreditSourceUnifiedPayment CreditEntrySource = "unifiedPayment"
	CreditSourceImport         CreditEntrySource = "import"
	CreditSourceManual         CreditEntrySource = "manual"
)

// CreditLedgerEntry is one append-only entry in a unit's credit history
// (spec §3.5). Entries are never mutated or deleted; reversals are new
// entries with opposite sign and a back-reference.
type CreditLedgerEntry struct {
	ID            string
	Timestamp     time.Time
	Amount        money.Centavos // signed: positive = credit added, negative = credit used
	Type          CreditEntryType
	Source        CreditEntrySource
	TransactionID string
	Note          string
}
