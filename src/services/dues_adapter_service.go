package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/mlandesman/sams-billing-core/src/billingerr"
	"github.com/mlandesman/sams-billing-core/src/fiscal"
	"github.com/mlandesman/sams-billing-core/src/models"
	"github.com/mlandesman/sams-billing-core/src/money"
	"github.com/mlandesman/sams-billing-core/src/storage"
)

func duesDocPath(clientID, unitID string, fiscalYear int) string {
	return fmt.Sprintf("clients/%s/units/%s/dues/%d", clientID, unitID, fiscalYear)
}

// DuesAdapterService translates a stored DuesDocument into materialized
// Bill views and folds a payment's effect back onto the per-slot
// payment summaries (spec §4.4).
type DuesAdapterService struct {
	store   storage.Store
	penalty *PenaltyService
	log     zerolog.Logger
}

// NewDuesAdapterService constructs a DuesAdapterService.
func NewDuesAdapterService(store storage.Store, penalty *PenaltyService, log zerolog.Logger) *DuesAdapterService {
	return &DuesAdapterService{store: store, penalty: penalty, log: log.With().Str("service", "dues_adapter").Logger()}
}

// LoadDuesDocument reads the stored dues document for (clientID, unitID,
// fiscalYear), returning ok=false if it does not exist.
func (a *DuesAdapterService) LoadDuesDocument(ctx context.Context, clientID, unitID string, fiscalYear int) (models.DuesDocument, bool, error) {
	doc, ok, err := a.store.GetDoc(ctx, duesDocPath(clientID, unitID, fiscalYear))
	if err != nil || !ok {
		return models.DuesDocument{}, ok, err
	}
	d, err := docToDuesDocument(doc, clientID, unitID, fiscalYear)
	return d, true, err
}

func docToDuesDocument(doc storage.Doc, clientID, unitID string, fiscalYear int) (models.DuesDocument, error) {
	d := models.DuesDocument{ClientID: clientID, UnitID: unitID, FiscalYear: fiscalYear}
	if amt, ok := doc["scheduledAmount"].(int64); ok {
		d.ScheduledAmount = money.Centavos(amt)
	}
	if amt, ok := doc["totalPaid"].(int64); ok {
		d.TotalPaid = money.Centavos(amt)
	}

	rawPayments, _ := doc["payments"].([]interface{})
	for i := 0; i < 12 && i < len(rawPayments); i++ {
		slotDoc, ok := asDoc(rawPayments[i])
		if !ok {
			continue
		}
		d.Payments[i] = docToSlot(slotDoc)
	}

	rawEntries, _ := doc["penaltyEntries"].([]interface{})
	for _, re := range rawEntries {
		ed, ok := asDoc(re)
		if !ok {
			continue
		}
		d.PenaltyEntries = append(d.PenaltyEntries, docToPenaltyHistoryEntry(ed))
	}

	if _, ok := doc["creditBalance"]; ok {
		zero := money.Zero
		d.LegacyCreditBalance = &zero
	}
	if _, ok := doc["creditBalanceHistory"]; ok {
		d.LegacyCreditBalanceHistory = []map[string]interface{}{}
	}

	return d, nil
}

func docToPenaltyHistoryEntry(d storage.Doc) models.PenaltyHistoryEntry {
	var e models.PenaltyHistoryEntry
	if v, ok := d["monthIndex"].(int64); ok {
		e.MonthIndex = int(v)
	}
	if v, ok := d["amount"].(int64); ok {
		e.Amount = money.Centavos(v)
	}
	if v, ok := d["date"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			e.Date = t
		}
	}
	e.Note, _ = d["note"].(string)
	return e
}

func asDoc(v interface{}) (storage.Doc, bool) {
	if d, ok := v.(storage.Doc); ok {
		return d, true
	}
	if m, ok := v.(map[string]interface{}); ok {
		return storage.Doc(m), true
	}
	return nil, false
}

func docToSlot(d storage.Doc) models.DuesPaymentSlot {
	var slot models.DuesPaymentSlot
	if v, ok := d["amount"].(int64); ok {
		slot.Amount = money.Centavos(v)
	}
	if v, ok := d["basePaid"].(int64); ok {
		slot.BasePaid = money.Centavos(v)
	}
	if v, ok := d["penaltyPaid"].(int64); ok {
		slot.PenaltyPaid = money.Centavos(v)
	}
	if v, ok := d["status"].(string); ok {
		slot.Status = models.BillStatus(v)
	}
	if v, ok := d["lastDate"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			slot.LastDate = t
		}
	}
	rawNotes, _ := d["notes"].([]interface{})
	for _, rn := range rawNotes {
		nd, ok := asDoc(rn)
		if !ok {
			continue
		}
		slot.Notes = append(slot.Notes, docToNote(nd))
	}
	if legacy, ok := d["notes"].(string); ok && legacy != "" {
		slot.Notes = []models.PaymentNote{{Text: legacy}}
	}
	return slot
}

func docToNote(d storage.Doc) models.PaymentNote {
	var n models.PaymentNote
	n.TransactionID, _ = d["transactionId"].(string)
	n.Text, _ = d["text"].(string)
	if v, ok := d["amount"].(int64); ok {
		n.Amount = money.Centavos(v)
	}
	if v, ok := d["basePaid"].(int64); ok {
		n.BasePaid = money.Centavos(v)
	}
	if v, ok := d["penaltyPaid"].(int64); ok {
		n.PenaltyPaid = money.Centavos(v)
	}
	if v, ok := d["timestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			n.Timestamp = t
		}
	}
	return n
}

func noteToDoc(n models.PaymentNote) storage.Doc {
	return storage.Doc{
		"transactionId": n.TransactionID,
		"timestamp":     n.Timestamp.Format(time.RFC3339),
		"text":          n.Text,
		"amount":        int64(n.Amount),
		"basePaid":      int64(n.BasePaid),
		"penaltyPaid":   int64(n.PenaltyPaid),
	}
}

func slotToDoc(s models.DuesPaymentSlot) storage.Doc {
	notes := make([]interface{}, 0, len(s.Notes))
	for _, n := range s.Notes {
		notes = append(notes, noteToDoc(n))
	}
	d := storage.Doc{
		"amount":      int64(s.Amount),
		"basePaid":    int64(s.BasePaid),
		"penaltyPaid": int64(s.PenaltyPaid),
		"status":      string(s.Status),
		"notes":       notes,
	}
	if !s.LastDate.IsZero() {
		d["lastDate"] = s.LastDate.Format(time.RFC3339)
	}
	return d
}

// duesDocToStorageDoc rewrites the full document, omitting the legacy
// mirrored credit fields on every write (spec §9 "Legacy mirrored
// fields"): the credit ledger is the single source of truth.
func duesDocToStorageDoc(d models.DuesDocument) storage.Doc {
	payments := make([]interface{}, 12)
	var totalPaid money.Centavos
	for i := 0; i < 12; i++ {
		payments[i] = slotToDoc(d.Payments[i])
		totalPaid = money.Add(totalPaid, d.Payments[i].Amount)
	}
	entries := make([]interface{}, 0, len(d.PenaltyEntries))
	for _, e := range d.PenaltyEntries {
		entries = append(entries, storage.Doc{
			"monthIndex": int64(e.MonthIndex),
			"amount":     int64(e.Amount),
			"date":       e.Date.Format(time.RFC3339),
			"note":       e.Note,
		})
	}
	return storage.Doc{
		"scheduledAmount": int64(d.ScheduledAmount),
		"payments":        payments,
		"penaltyEntries":  entries,
		"totalPaid":       int64(totalPaid),
	}
}

func slotToBill(d models.DuesDocument, index int, startMonth int) models.Bill {
	slot := d.Payments[index]
	return models.Bill{
		BillID:      fmt.Sprintf("hoa:%d-%02d", d.FiscalYear, index),
		Period:      fmt.Sprintf("%d-%02d", d.FiscalYear, index),
		UnitID:      d.UnitID,
		ModuleType:  models.ModuleHOA,
		BaseCharge:  d.ScheduledAmount,
		BasePaid:    slot.BasePaid,
		PenaltyAmt:  0,
		PenaltyPaid: slot.PenaltyPaid,
		DueDate:     fiscal.DueDateOfFiscalMonth(d.FiscalYear, index, startMonth),
		Payments:    notesToBillPayments(slot.Notes),
		MonthIndex:  index,
	}
}

// notesToBillPayments exposes a slot's structured payment notes as the
// materialized bill's payment records.
func notesToBillPayments(notes []models.PaymentNote) []models.BillPayment {
	out := make([]models.BillPayment, 0, len(notes))
	for _, n := range notes {
		out = append(out, models.BillPayment{TransactionID: n.TransactionID, Timestamp: n.Timestamp, BasePaid: n.BasePaid, PenaltyPaid: n.PenaltyPaid})
	}
	return out
}

func quarterToBill(d models.DuesDocument, quarter int, startMonth int) models.Bill {
	first := 3 * (quarter - 1)
	var basePaid, penaltyPaid money.Centavos
	var payments []models.BillPayment
	for i := first; i < first+3; i++ {
		basePaid = money.Add(basePaid, d.Payments[i].BasePaid)
		penaltyPaid = money.Add(penaltyPaid, d.Payments[i].PenaltyPaid)
		payments = append(payments, notesToBillPayments(d.Payments[i].Notes)...)
	}
	return models.Bill{
		BillID:       fmt.Sprintf("hoa:%d-Q%d", d.FiscalYear, quarter),
		Period:       fmt.Sprintf("%d-Q%d", d.FiscalYear, quarter),
		UnitID:       d.UnitID,
		ModuleType:   models.ModuleHOA,
		BaseCharge:   money.Centavos(3) * d.ScheduledAmount,
		BasePaid:     basePaid,
		PenaltyAmt:   0,
		PenaltyPaid:  penaltyPaid,
		DueDate:      fiscal.DueDateOfFiscalQuarter(d.FiscalYear, quarter, startMonth),
		Payments:     payments,
		QuarterIndex: quarter,
	}
}

// MaterializeBills converts a stored DuesDocument into 12 monthly or 4
// quarterly bills per the client's duesFrequency (spec §4.4), with
// penalties recalculated as of asOfDate.
func (a *DuesAdapterService) MaterializeBills(d models.DuesDocument, cfg models.ClientConfig, asOfDate time.Time) []models.Bill {
	var bills []models.Bill
	if cfg.DuesFrequency == models.DuesFrequencyQuarterly {
		for q := 1; q <= 4; q++ {
			bills = append(bills, quarterToBill(d, q, cfg.FiscalYearStartMonth))
		}
	} else {
		for i := 0; i < 12; i++ {
			bills = append(bills, slotToBill(d, i, cfg.FiscalYearStartMonth))
		}
	}

	result := a.penalty.Recalculate(bills, asOfDate, cfg.HOA, cfg.Water)
	return result.UpdatedBills
}

// AggregateWithRollback materializes the given fiscal year's bills and,
// if the first bill is unpaid, prepends prior-year monthly carry-over
// bills scanned backward from fiscal-month index 11, stopping at the
// first fully paid slot (spec §4.4 "Prior-year rollback").
func (a *DuesAdapterService) AggregateWithRollback(ctx context.Context, clientID, unitID string, fiscalYear int, cfg models.ClientConfig, asOfDate time.Time) ([]models.Bill, error) {
	doc, ok, err := a.LoadDuesDocument(ctx, clientID, unitID, fiscalYear)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	bills := a.MaterializeBills(doc, cfg, asOfDate)
	if len(bills) == 0 || bills[0].Status() == models.BillStatusPaid {
		return bills, nil
	}

	prevDoc, ok, err := a.LoadDuesDocument(ctx, clientID, unitID, fiscalYear-1)
	if err != nil {
		return nil, err
	}
	if !ok {
		return bills, nil
	}

	var carryOver []models.Bill
	for i := 11; i >= 0; i-- {
		bill := slotToBill(prevDoc, i, cfg.FiscalYearStartMonth)
		if bill.Status() == models.BillStatusPaid {
			break
		}
		carryOver = append(carryOver, bill)
	}
	sort.Slice(carryOver, func(i, j int) bool { return carryOver[i].MonthIndex < carryOver[j].MonthIndex })

	recalced := a.penalty.Recalculate(carryOver, asOfDate, cfg.HOA, cfg.Water).UpdatedBills
	return append(recalced, bills...), nil
}

// DuesPaymentDelta is one bill's share of a distributed payment, keyed
// back to the fiscal year and slot(s) it was materialized from.
type DuesPaymentDelta struct {
	FiscalYear    int
	MonthIndex    int // valid for monthly bills
	QuarterIndex  int // 1..4, valid for quarterly bills (0 = monthly)
	BasePaid      money.Centavos
	PenaltyPaid   money.Centavos
	TransactionID string
	Timestamp     time.Time
	NoteText      string
}

// PrepareApplyPayment loads the affected fiscal year's dues document,
// folds each delta onto its slot(s), and returns the document path and
// full replacement doc ready to be folded into an in-flight
// storage.Batch — so a dues write commits only as part of the
// payment's atomic batch (spec §5.3).
func (a *DuesAdapterService) PrepareApplyPayment(ctx context.Context, clientID, unitID string, deltas []DuesPaymentDelta) (map[string]storage.Doc, error) {
	byYear := make(map[int][]DuesPaymentDelta)
	for _, delta := range deltas {
		byYear[delta.FiscalYear] = append(byYear[delta.FiscalYear], delta)
	}

	out := make(map[string]storage.Doc)
	for year, yearDeltas := range byYear {
		doc, ok, err := a.LoadDuesDocument(ctx, clientID, unitID, year)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, billingerr.New(billingerr.BillNotFound,
				fmt.Sprintf("dues document missing for unit %s fiscal year %d", unitID, year))
		}

		for _, delta := range yearDeltas {
			applyDuesDelta(&doc, delta)
		}

		out[duesDocPath(clientID, unitID, year)] = duesDocToStorageDoc(doc)
	}
	return out, nil
}

func applyDuesDelta(doc *models.DuesDocument, delta DuesPaymentDelta) {
	if delta.QuarterIndex > 0 {
		applyQuarterlyDelta(doc, delta)
		return
	}
	applyMonthlyDelta(doc, delta.MonthIndex, delta.BasePaid, delta.PenaltyPaid, delta)
}

func applyMonthlyDelta(doc *models.DuesDocument, index int, basePaid, penaltyPaid money.Centavos, delta DuesPaymentDelta) {
	slot := &doc.Payments[index]
	slot.Amount = money.Add(slot.Amount, money.Add(basePaid, penaltyPaid))
	slot.BasePaid = money.Add(slot.BasePaid, basePaid)
	slot.PenaltyPaid = money.Add(slot.PenaltyPaid, penaltyPaid)
	slot.LastDate = delta.Timestamp
	slot.Notes = append(slot.Notes, models.PaymentNote{
		TransactionID: delta.TransactionID,
		Timestamp:     delta.Timestamp,
		Text:          delta.NoteText,
		Amount:        money.Add(basePaid, penaltyPaid),
		BasePaid:      basePaid,
		PenaltyPaid:   penaltyPaid,
	})
	slot.Status = deriveSlotStatus(*slot, doc.ScheduledAmount)
}

// applyQuarterlyDelta splits basePaid equally across the quarter's
// three monthly slots (remainder to the first slot for centavo
// exactness) and lands the entire penalty on the first slot only
// (spec §4.4, §9 open question — behavior preserved as observed).
func applyQuarterlyDelta(doc *models.DuesDocument, delta DuesPaymentDelta) {
	first := 3 * (delta.QuarterIndex - 1)
	share := delta.BasePaid / 3
	remainder := delta.BasePaid - share*3

	for offset := 0; offset < 3; offset++ {
		index := first + offset
		base := share
		if offset == 0 {
			base = money.Add(base, remainder)
		}
		penalty := money.Zero
		if offset == 0 {
			penalty = delta.PenaltyPaid
		}
		applyMonthlyDelta(doc, index, base, penalty, delta)
	}
}

// deriveSlotStatus derives a slot's stored status field from its own
// base obligation. Penalty owed is not tracked per slot (it is
// recomputed fresh on every read by PenaltyService against the
// materialized Bill), so a slot's penalty contribution is always
// treated as satisfied and the status depends on basePaid alone.
func deriveSlotStatus(slot models.DuesPaymentSlot, scheduledAmount money.Centavos) models.BillStatus {
	bill := models.Bill{BaseCharge: scheduledAmount, BasePaid: slot.BasePaid, PenaltyAmt: slot.PenaltyPaid, PenaltyPaid: slot.PenaltyPaid}
	return bill.Status()
}
