package models

import (
	"time"

	"github.com/mlandesman/sams-billing-core/src/money"
)

// TransactionType classifies a Transaction (spec §3.6).
type TransactionType string

const (
	TransactionIncome   TransactionType = "income"
	TransactionExpense  TransactionType = "expense"
	TransactionTransfer TransactionType = "transfer"
)

// SplitCategoryID is the sentinel categoryId a Transaction carries once
// it has more than one allocation.
const SplitCategoryID = "-split-"

// AllocationType is the discriminated tag on an Allocation (spec §9,
// design note "Pervasive dynamic typing -> tagged variants"). Modeling
// allocations this way eliminates the source's categoryId.includes(...)
// substring checks.
type AllocationType string

const (
	AllocHOABase      AllocationType = "hoa_month"
	AllocHOAPenalty   AllocationType = "hoa_penalty"
	AllocWaterBase    AllocationType = "water_consumption"
	AllocWaterPenalty AllocationType = "water_penalty"
	AllocCreditAdded  AllocationType = "credit_added"
	AllocCreditUsed   AllocationType = "credit_used"
)

// IsCreditAllocation reports whether a is one of the two credit variants.
func (a AllocationType) IsCreditAllocation() bool {
	return a == AllocCreditAdded || a == AllocCreditUsed
}

// IsPenaltyAllocation reports whether a is a penalty-line allocation.
func (a AllocationType) IsPenaltyAllocation() bool {
	return a == AllocHOAPenalty || a == AllocWaterPenalty
}

// Allocation is one split line of a Transaction (spec §3.6).
type Allocation struct {
	Type       AllocationType
	TargetID   string // bill ID, or the unit's credit-ledger path for credit allocations
	TargetName string
	Amount     money.Centavos // credit allocations may be negative
	CategoryID string
	Data       map[string]interface{}
}

// Transaction is an immutable record of money received or applied,
// with a split-allocation structure (spec §3.6).
type Transaction struct {
	ID          string
	ClientID    string
	UnitID      string
	Date        time.Time
	Amount      money.Centavos
	Type        TransactionType
	CategoryID  string
	Allocations []Allocation
	Method      string
	Reference   string
	Notes       string
	AccountID   string
	AccountType string
	UserID      string
}

// AllocatedTotal sums the allocation amounts (spec §4.6.6
// "allocationSummary.totalAllocated").
func (t Transaction) AllocatedTotal() money.Centavos {
	var total money.Centavos
	for _, a := range t.Allocations {
		total = money.Add(total, a.Amount)
	}
	return total
}

// PenaltyAllocated sums the penalty-line allocations (spec §4.6.6
// allocation-summary breakdown).
func (t Transaction) PenaltyAllocated() money.Centavos {
	var total money.Centavos
	for _, a := range t.Allocations {
		if a.Type.IsPenaltyAllocation() {
			total = money.Add(total, a.Amount)
		}
	}
	return total
}

// CreditAllocated sums the credit-line allocations (spec §4.6.6
// allocation-summary breakdown); negative when the payment net-used
// credit, positive when it net-added credit.
func (t Transaction) CreditAllocated() money.Centavos {
	var total money.Centavos
	for _, a := range t.Allocations {
		if a.Type.IsCreditAllocation() {
			total = money.Add(total, a.Amount)
		}
	}
	return total
}
