package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mlandesman/sams-billing-core/src/billingerr"
	"github.com/mlandesman/sams-billing-core/src/models"
	"github.com/mlandesman/sams-billing-core/src/money"
	"github.com/mlandesman/sams-billing-core/src/storage"
)

// creditLedgerDocPath is the per-(client, unit) document holding one
// unit's append-only credit history (spec §3.5, §6.3).
func creditLedgerDocPath(clientID, unitID string) string {
	return fmt.Sprintf("clients/%s/units/creditBalances/%s", clientID, unitID)
}

// CreditLedgerService is the append-only per-unit credit history
// described in spec §3.5 and §4.3. It never reads a cached balance
// field: Balance and BalanceAsOf always sum the stored history.
type CreditLedgerService struct {
	store storage.Store
	log   zerolog.Logger
}

// NewCreditLedgerService constructs a CreditLedgerService.
func NewCreditLedgerService(store storage.Store, log zerolog.Logger) *CreditLedgerService {
	return &CreditLedgerService{store: store, log: log.With().Str("service", "credit_ledger").Logger()}
}

func entryToDoc(e models.CreditLedgerEntry) storage.Doc {
	return storage.Doc{
		"id":            e.ID,
		"timestamp":     e.Timestamp.Format(time.RFC3339),
		"amount":        int64(e.Amount),
		"type":          string(e.Type),
		"source":        string(e.Source),
		"transactionId": e.TransactionID,
		"note":          e.Note,
	}
}

func docToEntry(d storage.Doc) (models.CreditLedgerEntry, error) {
	var e models.CreditLedgerEntry
	id, _ := d["id"].(string)
	e.ID = id

	ts, _ := d["timestamp"].(string)
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return e, fmt.Errorf("credit_ledger: invalid timestamp %q: %w", ts, err)
	}
	e.Timestamp = t

	amt, _ := d["amount"].(int64)
	e.Amount = money.Centavos(amt)
	e.Type = models.CreditEntryType(fmt.Sprint(d["type"]))
	e.Source = models.CreditEntrySource(fmt.Sprint(d["source"]))
	e.TransactionID, _ = d["transactionId"].(string)
	e.Note, _ = d["note"].(string)
	return e, nil
}

// loadHistory reads the ordered history slice for one unit.
func (s *CreditLedgerService) loadHistory(ctx context.Context, clientID, unitID string) ([]models.CreditLedgerEntry, error) {
	doc, ok, err := s.store.GetDoc(ctx, creditLedgerDocPath(clientID, unitID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	rawHistory, _ := doc["history"].([]interface{})
	history := make([]models.CreditLedgerEntry, 0, len(rawHistory))
	for _, raw := range rawHistory {
		rawDoc, ok := raw.(storage.Doc)
		if !ok {
			m, _ := raw.(map[string]interface{})
			rawDoc = storage.Doc(m)
		}
		e, err := docToEntry(rawDoc)
		if err != nil {
			return nil, err
		}
		history = append(history, e)
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.Before(history[j].Timestamp)
	})
	return history, nil
}

func historyToDocs(history []models.CreditLedgerEntry) []interface{} {
	out := make([]interface{}, 0, len(history))
	for _, e := range history {
		out = append(out, entryToDoc(e))
	}
	return out
}

// Balance returns the current credit balance for (clientID, unitID):
// the sum of every history entry, never a cached field (spec §3.5).
func (s *CreditLedgerService) Balance(ctx context.Context, clientID, unitID string) (money.Centavos, error) {
	history, err := s.loadHistory(ctx, clientID, unitID)
	if err != nil {
		return 0, err
	}
	var total money.Centavos
	for _, e := range history {
		total = money.Add(total, e.Amount)
	}
	return total, nil
}

// BalanceAsOf returns the balance summing only entries with
// timestamp <= asOf (spec §3.5).
func (s *CreditLedgerService) BalanceAsOf(ctx context.Context, clientID, unitID string, asOf time.Time) (money.Centavos, error) {
	history, err := s.loadHistory(ctx, clientID, unitID)
	if err != nil {
		return 0, err
	}
	var total money.Centavos
	for _, e := range history {
		if !e.Timestamp.After(asOf) {
			total = money.Add(total, e.Amount)
		}
	}
	return total, nil
}

// History returns the ordered history for a unit, optionally filtered
// to [from, to] inclusive (zero values mean unbounded).
func (s *CreditLedgerService) History(ctx context.Context, clientID, unitID string, from, to time.Time) ([]models.CreditLedgerEntry, error) {
	history, err := s.loadHistory(ctx, clientID, unitID)
	if err != nil {
		return nil, err
	}
	if from.IsZero() && to.IsZero() {
		return history, nil
	}
	out := make([]models.CreditLedgerEntry, 0, len(history))
	for _, e := range history {
		if !from.IsZero() && e.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && e.Timestamp.After(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Append pushes a new entry onto a unit's history in its own
// read-modify-write, failing with NegativeBalance if the resulting
// balance would go below zero. The Unified Payment Engine instead
// folds its credit entry into the payment's atomic batch via
// PrepareAppend, so a credit write never commits independent of the
// bills it pays for.
func (s *CreditLedgerService) Append(ctx context.Context, clientID, unitID string, entry models.CreditLedgerEntry) error {
	history, err := s.loadHistory(ctx, clientID, unitID)
	if err != nil {
		return err
	}
	var current money.Centavos
	for _, e := range history {
		current = money.Add(current, e.Amount)
	}
	if money.Add(current, entry.Amount) < 0 {
		return billingerr.New(billingerr.NegativeBalance,
			fmt.Sprintf("unit %s: balance %d + entry %d would go negative", unitID, current, entry.Amount))
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	newHistory := append(history, entry)

	err = s.store.UpdateDoc(ctx, creditLedgerDocPath(clientID, unitID), storage.Doc{
		"history":    historyToDocs(newHistory),
		"lastChange": entry.Timestamp.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("credit_ledger: append: %w", err)
	}
	s.log.Info().Str("clientId", clientID).Str("unitId", unitID).
		Int64("amount", int64(entry.Amount)).Str("type", string(entry.Type)).Msg("credit entry appended")
	return nil
}

// PrepareAppend validates a prospective credit entry against the
// current balance and, if acceptable, returns the document path and
// the full post-append history doc slice, ready for the caller to
// fold into an in-flight storage.Batch via Update(path, doc). This is
// how the Unified Payment Engine keeps a credit write inside the same
// atomic commit as the bills it pays for (spec §5.3).
func (s *CreditLedgerService) PrepareAppend(ctx context.Context, clientID, unitID string, entry models.CreditLedgerEntry) (path string, doc storage.Doc, err error) {
	history, err := s.loadHistory(ctx, clientID, unitID)
	if err != nil {
		return "", nil, err
	}
	var current money.Centavos
	for _, e := range history {
		current = money.Add(current, e.Amount)
	}
	if money.Add(current, entry.Amount) < 0 {
		return "", nil, billingerr.New(billingerr.NegativeBalance,
			fmt.Sprintf("unit %s: balance %d + entry %d would go negative", unitID, current, entry.Amount))
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	newHistory := append(history, entry)
	doc = storage.Doc{
		"history":    historyToDocs(newHistory),
		"lastChange": entry.Timestamp.Format(time.RFC3339),
	}
	return creditLedgerDocPath(clientID, unitID), doc, nil
}
