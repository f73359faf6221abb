package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mlandesman/sams-billing-core/src/billingerr"
	"github.com/mlandesman/sams-billing-core/src/clock"
	"github.com/mlandesman/sams-billing-core/src/fiscal"
	"github.com/mlandesman/sams-billing-core/src/models"
	"github.com/mlandesman/sams-billing-core/src/money"
	"github.com/mlandesman/sams-billing-core/src/storage"
)

// recordCommitTimeout is the overall budget a Record call has to
// complete its atomic commit (spec §5.2); exceeding it abandons the
// commit rather than risk a partially applied one.
const recordCommitTimeout = 30 * time.Second

// priorityTier is the engine's 1..5 (plus excluded 99) bill ordering
// during distribution (spec §4.6.3).
type priorityTier int

const (
	tierHOAPastDue   priorityTier = 1
	tierWaterPastDue priorityTier = 2
	tierHOACurrent   priorityTier = 3
	tierWaterCurrent priorityTier = 4
	tierHOAFuture    priorityTier = 5
	tierWaterFuture  priorityTier = 99
)

// taggedBill carries a Bill plus the tier it was assigned, for sorting
// and for recovering its source adapter at commit time.
type taggedBill struct {
	bill models.Bill
	tier priorityTier
}

// BillAllocationResult is one bill's outcome after distribution (spec
// §6.2 preview response shape).
type BillAllocationResult struct {
	BillID       string
	Period       string
	MonthIndex   int
	QuarterIndex int
	BasePaid     money.Centavos
	PenaltyPaid  money.Centavos
	Status       models.BillStatus

	tier priorityTier
}

// ModuleDistribution is one module's (hoa or water) slice of a
// Distribution.
type ModuleDistribution struct {
	BillsPaid []BillAllocationResult
	TotalPaid money.Centavos
}

// CreditSummary reports the credit movement of one distribution.
type CreditSummary struct {
	Used  money.Centavos // positive magnitude consumed, 0 if none
	Added money.Centavos // positive magnitude added, 0 if none
	Final money.Centavos
}

// DistributionSummary is the crosscheck block of a Distribution (spec
// §4.6.6).
type DistributionSummary struct {
	TotalBills      int
	TotalAllocated  money.Centavos
	AllocationCount int
}

// Distribution is the result of Preview, and the input Record
// re-validates against before committing (spec §4.6.1).
type Distribution struct {
	ClientID             string
	UnitID               string
	PaymentDate          time.Time
	TotalAmount          money.Centavos
	CurrentCreditBalance money.Centavos
	NewCreditBalance     money.Centavos
	HOA                  ModuleDistribution
	Water                ModuleDistribution
	Credit               CreditSummary
	Summary              DistributionSummary

	netCreditAdded money.Centavos
	hoaDeltas      []DuesPaymentDelta
	waterDeltas    []WaterPaymentDelta
}

// RecordInput carries the caller-supplied metadata that accompanies a
// Record call (spec §6.2).
type RecordInput struct {
	PaymentMethod string
	Reference     string
	Notes         string
	AccountID     string
	AccountType   string
	UserID        string
}

// UnifiedPaymentService is the engine's hard core (spec §4.6):
// aggregates unpaid bills from both streams, prioritizes them,
// distributes a payment plus available credit across them, and
// atomically commits the result.
type UnifiedPaymentService struct {
	store  storage.Store
	clk    clock.Clock
	dues   *DuesAdapterService
	water  *WaterAdapterService
	credit *CreditLedgerService
	log    zerolog.Logger
}

// NewUnifiedPaymentService constructs a UnifiedPaymentService.
func NewUnifiedPaymentService(store storage.Store, clk clock.Clock, dues *DuesAdapterService, water *WaterAdapterService, credit *CreditLedgerService, log zerolog.Logger) *UnifiedPaymentService {
	return &UnifiedPaymentService{
		store: store, clk: clk, dues: dues, water: water, credit: credit,
		log: log.With().Str("service", "unified_payment").Logger(),
	}
}

func periodBounds(date time.Time, startMonth int, quarterly bool) (start, end time.Time) {
	if quarterly {
		year, q := fiscal.FiscalQuarterOf(date, startMonth)
		start = fiscal.DueDateOfFiscalQuarter(year, q, startMonth)
		nq, ny := q+1, year
		if nq > 4 {
			nq, ny = 1, year+1
		}
		end = fiscal.DueDateOfFiscalQuarter(ny, nq, startMonth)
		return start, end
	}
	year, idx := fiscal.FiscalMonthIndexOf(date, startMonth)
	start = fiscal.DueDateOfFiscalMonth(year, idx, startMonth)
	ni, ny := idx+1, year
	if ni > 11 {
		ni, ny = 0, year+1
	}
	end = fiscal.DueDateOfFiscalMonth(ny, ni, startMonth)
	return start, end
}

func withinBounds(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

// aggregateBills loads bills from both adapters for the fiscal year
// containing paymentDate (spec §4.6.2) and assigns each a priority
// tier (spec §4.6.3).
func (s *UnifiedPaymentService) aggregateBills(ctx context.Context, clientID, unitID string, cfg models.ClientConfig, paymentDate time.Time) ([]taggedBill, error) {
	fiscalYear := fiscal.FiscalYearOf(paymentDate, cfg.FiscalYearStartMonth)

	hoaBills, err := s.dues.AggregateWithRollback(ctx, clientID, unitID, fiscalYear, cfg, paymentDate)
	if err != nil {
		return nil, fmt.Errorf("unified_payment: aggregate hoa bills: %w", err)
	}

	periods, err := s.listWaterPeriods(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("unified_payment: list water periods: %w", err)
	}
	waterBills, err := s.water.SelectUnpaid(ctx, clientID, unitID, periods, cfg, paymentDate)
	if err != nil {
		return nil, fmt.Errorf("unified_payment: aggregate water bills: %w", err)
	}

	hoaStart, hoaEnd := periodBounds(paymentDate, cfg.FiscalYearStartMonth, cfg.DuesFrequency == models.DuesFrequencyQuarterly)
	waterStart, waterEnd := periodBounds(paymentDate, cfg.FiscalYearStartMonth, true)

	var tagged []taggedBill
	for _, b := range hoaBills {
		switch {
		case b.DueDate.Before(paymentDate):
			tagged = append(tagged, taggedBill{b, tierHOAPastDue})
		case withinBounds(b.DueDate, hoaStart, hoaEnd):
			tagged = append(tagged, taggedBill{b, tierHOACurrent})
		default:
			tagged = append(tagged, taggedBill{b, tierHOAFuture})
		}
	}
	for _, b := range waterBills {
		switch {
		case b.DueDate.Before(paymentDate):
			tagged = append(tagged, taggedBill{b, tierWaterPastDue})
		case withinBounds(b.DueDate, waterStart, waterEnd):
			tagged = append(tagged, taggedBill{b, tierWaterCurrent})
		default:
			tagged = append(tagged, taggedBill{b, tierWaterFuture})
		}
	}

	filtered := tagged[:0]
	for _, t := range tagged {
		if t.tier == tierWaterFuture {
			continue
		}
		filtered = append(filtered, t)
	}
	return filtered, nil
}

func (s *UnifiedPaymentService) listWaterPeriods(ctx context.Context, clientID string) ([]string, error) {
	collection := fmt.Sprintf("clients/%s/projects/waterBills/bills", clientID)
	docs, err := s.store.ListDocs(ctx, collection, nil)
	if err != nil {
		return nil, err
	}
	periods := make([]string, 0, len(docs))
	for path := range docs {
		parts := strings.Split(path, "/")
		periods = append(periods, parts[len(parts)-1])
	}
	sort.Strings(periods)
	return periods, nil
}

// sortedByTier groups bills by tier 1..5 in order, each group sorted
// by ascending due date, ties broken by (moduleType, period) (spec
// §4.6.3).
func sortedByTier(bills []taggedBill) map[priorityTier][]models.Bill {
	groups := make(map[priorityTier][]models.Bill)
	for _, t := range bills {
		groups[t.tier] = append(groups[t.tier], t.bill)
	}
	for _, tier := range []priorityTier{tierHOAPastDue, tierWaterPastDue, tierHOACurrent, tierWaterCurrent, tierHOAFuture} {
		group := groups[tier]
		sort.SliceStable(group, func(i, j int) bool {
			if !group[i].DueDate.Equal(group[j].DueDate) {
				return group[i].DueDate.Before(group[j].DueDate)
			}
			if group[i].ModuleType != group[j].ModuleType {
				return group[i].ModuleType < group[j].ModuleType
			}
			return group[i].Period < group[j].Period
		})
		groups[tier] = group
	}
	return groups
}

type billDelta struct {
	bill        models.Bill
	tier        priorityTier
	basePaid    money.Centavos
	penaltyPaid money.Centavos
}

// distributeTier consumes funds penalty-first then base, fully paying
// each bill before moving to the next, per bill in tier order (spec
// §4.6.4 step 2).
func distributeTier(tier priorityTier, bills []models.Bill, remaining money.Centavos) ([]billDelta, money.Centavos) {
	deltas := make([]billDelta, 0, len(bills))
	for _, b := range bills {
		if remaining <= 0 {
			deltas = append(deltas, billDelta{bill: b, tier: tier})
			continue
		}
		penaltyPay := money.Min(remaining, b.PenaltyOwed())
		remaining = money.Sub(remaining, penaltyPay)
		basePay := money.Min(remaining, b.BaseOwed())
		remaining = money.Sub(remaining, basePay)
		deltas = append(deltas, billDelta{bill: b, tier: tier, basePaid: basePay, penaltyPaid: penaltyPay})
	}
	return deltas, remaining
}

// Preview computes, with respect to persisted state, the distribution
// of paymentAmount plus available credit across a unit's unpaid bills
// (spec §4.6.1). It performs no writes.
func (s *UnifiedPaymentService) Preview(ctx context.Context, clientID, unitID string, cfg models.ClientConfig, paymentAmount money.Centavos, paymentDate time.Time) (*Distribution, error) {
	if paymentDate.IsZero() {
		paymentDate = s.clk.Now()
	}

	currentCredit, err := s.credit.Balance(ctx, clientID, unitID)
	if err != nil {
		return nil, fmt.Errorf("unified_payment: load credit balance: %w", err)
	}

	zeroAmountRequest := paymentAmount == 0
	pool := paymentAmount
	if zeroAmountRequest {
		pool = currentCredit
	}

	tagged, err := s.aggregateBills(ctx, clientID, unitID, cfg, paymentDate)
	if err != nil {
		return nil, err
	}
	groups := sortedByTier(tagged)

	remaining := money.Add(pool, currentCredit)
	var allDeltas []billDelta
	for _, tier := range []priorityTier{tierHOAPastDue, tierWaterPastDue, tierHOACurrent, tierWaterCurrent, tierHOAFuture} {
		var tierDeltas []billDelta
		tierDeltas, remaining = distributeTier(tier, groups[tier], remaining)
		allDeltas = append(allDeltas, tierDeltas...)
	}

	dist := &Distribution{
		ClientID:             clientID,
		UnitID:               unitID,
		PaymentDate:          paymentDate,
		TotalAmount:          paymentAmount,
		CurrentCreditBalance: currentCredit,
		NewCreditBalance:     remaining,
		netCreditAdded:       money.Sub(remaining, currentCredit),
	}

	var allocated money.Centavos
	var allocationCount int
	for _, d := range allDeltas {
		if d.basePaid == 0 && d.penaltyPaid == 0 {
			continue
		}
		status := billWithPayment(d).Status()
		result := BillAllocationResult{
			BillID:       d.bill.BillID,
			Period:       d.bill.Period,
			MonthIndex:   d.bill.MonthIndex,
			QuarterIndex: d.bill.QuarterIndex,
			BasePaid:     d.basePaid,
			PenaltyPaid:  d.penaltyPaid,
			Status:       status,
			tier:         d.tier,
		}
		if d.bill.ModuleType == models.ModuleHOA {
			dist.HOA.BillsPaid = append(dist.HOA.BillsPaid, result)
			dist.HOA.TotalPaid = money.Add(dist.HOA.TotalPaid, money.Add(d.basePaid, d.penaltyPaid))
			dist.hoaDeltas = append(dist.hoaDeltas, duesDeltaFromBill(d))
		} else {
			dist.Water.BillsPaid = append(dist.Water.BillsPaid, result)
			dist.Water.TotalPaid = money.Add(dist.Water.TotalPaid, money.Add(d.basePaid, d.penaltyPaid))
			dist.waterDeltas = append(dist.waterDeltas, waterDeltaFromBill(d, unitID))
		}
		if d.basePaid > 0 {
			allocationCount++
		}
		if d.penaltyPaid > 0 {
			allocationCount++
		}
		allocated = money.Add(allocated, money.Add(d.basePaid, d.penaltyPaid))
	}

	if dist.netCreditAdded < 0 {
		dist.Credit.Used = -dist.netCreditAdded
	} else if dist.netCreditAdded > 0 {
		dist.Credit.Added = dist.netCreditAdded
	}
	dist.Credit.Final = remaining

	dist.Summary = DistributionSummary{
		TotalBills:      len(allDeltas),
		TotalAllocated:  allocated,
		AllocationCount: allocationCount,
	}

	if zeroAmountRequest {
		sanitizeZeroAmountResponse(dist)
	}

	return dist, nil
}

func billWithPayment(d billDelta) models.Bill {
	b := d.bill
	b.BasePaid = money.Add(b.BasePaid, d.basePaid)
	b.PenaltyPaid = money.Add(b.PenaltyPaid, d.penaltyPaid)
	return b
}

func duesDeltaFromBill(d billDelta) DuesPaymentDelta {
	year, _ := strconv.Atoi(d.bill.Period[:4])
	return DuesPaymentDelta{
		FiscalYear:   year,
		MonthIndex:   d.bill.MonthIndex,
		QuarterIndex: d.bill.QuarterIndex,
		BasePaid:     d.basePaid,
		PenaltyPaid:  d.penaltyPaid,
	}
}

func waterDeltaFromBill(d billDelta, unitID string) WaterPaymentDelta {
	return WaterPaymentDelta{
		Period:      d.bill.Period,
		UnitID:      unitID,
		BasePaid:    d.basePaid,
		PenaltyPaid: d.penaltyPaid,
	}
}

// sanitizeZeroAmountResponse implements spec §4.6.5: a zero-amount
// preview (run against available credit only, to answer "what would
// this credit cover") must not expose credit movement or
// future-prepayment entries in its response.
func sanitizeZeroAmountResponse(dist *Distribution) {
	dist.Credit = CreditSummary{}
	dist.NewCreditBalance = dist.CurrentCreditBalance
	dist.netCreditAdded = 0

	var kept []BillAllocationResult
	var total money.Centavos
	for _, b := range dist.HOA.BillsPaid {
		if b.tier == tierHOAFuture {
			continue
		}
		kept = append(kept, b)
		total = money.Add(total, money.Add(b.BasePaid, b.PenaltyPaid))
	}
	dist.HOA.BillsPaid = kept
	dist.HOA.TotalPaid = total
}

// Record validates that the currently persisted state still matches
// preview (totalAllocated within 1 centavo, and the same bills receiving
// payment, in the same order), then performs a single atomic
// batch write of the transaction, bill updates, and credit-ledger
// entry (spec §4.6.1, §5.3).
func (s *UnifiedPaymentService) Record(ctx context.Context, cfg models.ClientConfig, preview *Distribution, input RecordInput) (string, error) {
	if preview.TotalAmount == 0 {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, recordCommitTimeout)
	defer cancel()

	fresh, err := s.Preview(ctx, preview.ClientID, preview.UnitID, cfg, preview.TotalAmount, preview.PaymentDate)
	if err != nil {
		return "", err
	}
	diff := money.Sub(fresh.Summary.TotalAllocated, preview.Summary.TotalAllocated)
	stale := diff > 1 || diff < -1 ||
		len(fresh.HOA.BillsPaid) != len(preview.HOA.BillsPaid) ||
		len(fresh.Water.BillsPaid) != len(preview.Water.BillsPaid)
	for i := 0; !stale && i < len(preview.HOA.BillsPaid); i++ {
		stale = fresh.HOA.BillsPaid[i].BillID != preview.HOA.BillsPaid[i].BillID
	}
	for i := 0; !stale && i < len(preview.Water.BillsPaid); i++ {
		stale = fresh.Water.BillsPaid[i].BillID != preview.Water.BillsPaid[i].BillID
	}
	if stale {
		return "", billingerr.New(billingerr.StaleState,
			fmt.Sprintf("preview no longer matches stored state: totalAllocated preview=%d fresh=%d", preview.Summary.TotalAllocated, fresh.Summary.TotalAllocated))
	}

	txn := buildTransaction(preview, input)
	if txn.AllocatedTotal() != txn.Amount {
		return "", billingerr.New(billingerr.AllocationMismatch,
			fmt.Sprintf("allocations sum to %d, amount is %d", txn.AllocatedTotal(), txn.Amount))
	}
	s.log.Debug().Str("transactionId", txn.ID).
		Int64("penaltyAllocated", int64(txn.PenaltyAllocated())).
		Int64("creditAllocated", int64(txn.CreditAllocated())).
		Msg("transaction allocation summary")

	batch := s.store.Batch()
	batch.Set(fmt.Sprintf("clients/%s/transactions/%s", txn.ClientID, txn.ID), transactionToDoc(txn))

	if len(preview.hoaDeltas) > 0 {
		duesDocs, err := s.dues.PrepareApplyPayment(ctx, preview.ClientID, preview.UnitID, withTxnMeta(preview.hoaDeltas, txn))
		if err != nil {
			return "", err
		}
		for path, doc := range duesDocs {
			batch.Set(path, doc)
		}
	}

	if len(preview.waterDeltas) > 0 {
		waterDocs, err := s.water.PrepareApplyPayment(ctx, preview.ClientID, withWaterTxnMeta(preview.waterDeltas, txn, input.PaymentMethod))
		if err != nil {
			return "", err
		}
		for path, doc := range waterDocs {
			batch.Set(path, doc)
		}
	}

	if preview.netCreditAdded != 0 {
		entryType := models.CreditEntryAdded
		if preview.netCreditAdded < 0 {
			entryType = models.CreditEntryUsed
		}
		path, doc, err := s.credit.PrepareAppend(ctx, preview.ClientID, preview.UnitID, creditEntryForTxn(preview.netCreditAdded, entryType, txn))
		if err != nil {
			return "", err
		}
		batch.Update(path, doc)
	}

	if err := batch.Commit(ctx); err != nil {
		return "", fmt.Errorf("unified_payment: commit: %w", err)
	}

	s.log.Info().Str("clientId", preview.ClientID).Str("unitId", preview.UnitID).
		Str("transactionId", txn.ID).Int64("amount", int64(txn.Amount)).Msg("payment recorded")
	return txn.ID, nil
}

func withTxnMeta(deltas []DuesPaymentDelta, txn models.Transaction) []DuesPaymentDelta {
	out := make([]DuesPaymentDelta, len(deltas))
	for i, d := range deltas {
		d.TransactionID = txn.ID
		d.Timestamp = txn.Date
		d.NoteText = fmt.Sprintf("Payment %s", txn.ID)
		out[i] = d
	}
	return out
}

func withWaterTxnMeta(deltas []WaterPaymentDelta, txn models.Transaction, method string) []WaterPaymentDelta {
	out := make([]WaterPaymentDelta, len(deltas))
	for i, d := range deltas {
		d.TransactionID = txn.ID
		d.Timestamp = txn.Date
		d.Method = method
		out[i] = d
	}
	return out
}

func creditEntryForTxn(netCreditAdded money.Centavos, entryType models.CreditEntryType, txn models.Transaction) models.CreditLedgerEntry {
	return models.CreditLedgerEntry{
		Timestamp:     txn.Date,
		Amount:        netCreditAdded,
		Type:          entryType,
		Source:        models.CreditSourceUnifiedPayment,
		TransactionID: txn.ID,
		Note:          fmt.Sprintf("Net credit change from payment %s", txn.ID),
	}
}

func buildTransaction(dist *Distribution, input RecordInput) models.Transaction {
	txn := models.Transaction{
		ID:          uuid.NewString(),
		ClientID:    dist.ClientID,
		UnitID:      dist.UnitID,
		Date:        dist.PaymentDate,
		Amount:      dist.TotalAmount,
		Type:        models.TransactionIncome,
		CategoryID:  models.SplitCategoryID,
		Method:      input.PaymentMethod,
		Reference:   input.Reference,
		Notes:       input.Notes,
		AccountID:   input.AccountID,
		AccountType: input.AccountType,
		UserID:      input.UserID,
	}

	for _, b := range dist.HOA.BillsPaid {
		if b.BasePaid > 0 {
			txn.Allocations = append(txn.Allocations, models.Allocation{
				Type: models.AllocHOABase, TargetID: b.BillID, TargetName: b.Period, Amount: b.BasePaid,
			})
		}
		if b.PenaltyPaid > 0 {
			txn.Allocations = append(txn.Allocations, models.Allocation{
				Type: models.AllocHOAPenalty, TargetID: b.BillID, TargetName: b.Period, Amount: b.PenaltyPaid,
			})
		}
	}
	for _, b := range dist.Water.BillsPaid {
		if b.BasePaid > 0 {
			txn.Allocations = append(txn.Allocations, models.Allocation{
				Type: models.AllocWaterBase, TargetID: b.BillID, TargetName: b.Period, Amount: b.BasePaid,
			})
		}
		if b.PenaltyPaid > 0 {
			txn.Allocations = append(txn.Allocations, models.Allocation{
				Type: models.AllocWaterPenalty, TargetID: b.BillID, TargetName: b.Period, Amount: b.PenaltyPaid,
			})
		}
	}

	if dist.netCreditAdded < 0 {
		txn.Allocations = append(txn.Allocations, models.Allocation{
			Type: models.AllocCreditUsed, TargetID: dist.UnitID, Amount: dist.netCreditAdded,
		})
	} else if dist.netCreditAdded > 0 {
		txn.Allocations = append(txn.Allocations, models.Allocation{
			Type: models.AllocCreditAdded, TargetID: dist.UnitID, Amount: dist.netCreditAdded,
		})
	}

	return txn
}

func transactionToDoc(txn models.Transaction) storage.Doc {
	allocs := make([]interface{}, 0, len(txn.Allocations))
	for _, a := range txn.Allocations {
		allocs = append(allocs, storage.Doc{
			"type":       string(a.Type),
			"targetId":   a.TargetID,
			"targetName": a.TargetName,
			"amount":     int64(a.Amount),
			"categoryId": a.CategoryID,
		})
	}
	return storage.Doc{
		"id":          txn.ID,
		"unitId":      txn.UnitID,
		"date":        txn.Date.Format(time.RFC3339),
		"amount":      int64(txn.Amount),
		"type":        string(txn.Type),
		"categoryId":  txn.CategoryID,
		"allocations": allocs,
		"method":      txn.Method,
		"reference":   txn.Reference,
		"notes":       txn.Notes,
		"accountId":   txn.AccountID,
		"accountType": txn.AccountType,
		"userId":      txn.UserID,
	}
}
