package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mlandesman/sams-billing-core/src/fiscal"
	"github.com/mlandesman/sams-billing-core/src/models"
	"github.com/mlandesman/sams-billing-core/src/money"
	"github.com/mlandesman/sams-billing-core/src/storage"
)

// statementPreviewWindow is how far before a bill's due date it may
// still appear on a statement generated ahead of time (spec §4.8 step
// 5, "preview window").
const statementPreviewWindow = 15 * 24 * time.Hour

// reconciliationTolerance is the acceptable drift, in centavos,
// between the composer's own running balance and the credit ledger's
// authoritative balance (spec §4.8 "reconciliation tick-and-tie").
const reconciliationTolerance = money.Centavos(1)

// lineType orders same-day events: charges before payments, penalties
// after charges (spec §4.8 step 3).
type lineType int

const (
	lineCharge lineType = iota
	linePenalty
	linePayment
	lineCredit
)

// StatementLine is one row of a composed statement.
type StatementLine struct {
	Date          time.Time
	Description   string
	Type          lineType
	Category      models.ModuleType
	Charge        money.Centavos
	Payment       money.Centavos
	Balance       money.Centavos
	TransactionID string
}

// Statement is the composed output for one unit, one fiscal year (spec
// §4.8, §6.2 "Statement").
type Statement struct {
	ClientID            string
	UnitID              string
	FiscalYear          int
	OpeningBalance      money.Centavos
	ClosingBalance      money.Centavos
	Lines               []StatementLine
	CreditFinalBalance  money.Centavos
	ReconciliationWarn  bool
	ReconciliationNote  string
	AllocationsByModule map[models.ModuleType]money.Centavos
}

// StatementService composes a unit's chronological transaction history
// with a running balance (spec §4.8).
type StatementService struct {
	store  storage.Store
	dues   *DuesAdapterService
	water  *WaterAdapterService
	credit *CreditLedgerService
	log    zerolog.Logger
}

// NewStatementService constructs a StatementService.
func NewStatementService(store storage.Store, dues *DuesAdapterService, water *WaterAdapterService, credit *CreditLedgerService, log zerolog.Logger) *StatementService {
	return &StatementService{store: store, dues: dues, water: water, credit: credit, log: log.With().Str("service", "statement").Logger()}
}

// Compose builds a Statement for (clientID, unitID, fiscalYear) as of
// asOfDate. When excludeFutureBills is true, HOA charges due more than
// statementPreviewWindow after asOfDate are omitted; payments and
// manual credit entries are never filtered.
func (s *StatementService) Compose(ctx context.Context, clientID, unitID string, fiscalYear int, cfg models.ClientConfig, asOfDate time.Time, excludeFutureBills bool) (*Statement, error) {
	fyStart, fyEnd := fiscal.FiscalYearBounds(fiscalYear, cfg.FiscalYearStartMonth)

	openingCredit, err := s.credit.BalanceAsOf(ctx, clientID, unitID, fyStart)
	if err != nil {
		return nil, fmt.Errorf("statement: opening credit balance: %w", err)
	}
	opening := money.Neg(openingCredit)

	hoaBills, err := s.dues.AggregateWithRollback(ctx, clientID, unitID, fiscalYear, cfg, asOfDate)
	if err != nil {
		return nil, fmt.Errorf("statement: load hoa bills: %w", err)
	}

	duesDoc, ok, err := s.dues.LoadDuesDocument(ctx, clientID, unitID, fiscalYear)
	if err != nil {
		return nil, fmt.Errorf("statement: load dues document: %w", err)
	}

	var lines []StatementLine
	for _, b := range hoaBills {
		if !withinBounds(b.DueDate, fyStart, fyEnd) {
			continue
		}
		if excludeFutureBills && b.DueDate.After(asOfDate.Add(statementPreviewWindow)) {
			continue
		}
		lines = append(lines, chargeLine(b)...)
	}
	if ok {
		lines = append(lines, importedPenaltyLines(duesDoc)...)
	}

	waterPeriods, err := s.listWaterPeriodsInRange(ctx, clientID, fyStart, fyEnd)
	if err != nil {
		return nil, fmt.Errorf("statement: list water periods: %w", err)
	}
	waterBills, err := s.water.SelectUnpaid(ctx, clientID, unitID, waterPeriods, cfg, asOfDate)
	if err != nil {
		return nil, fmt.Errorf("statement: load water bills: %w", err)
	}
	for _, b := range waterBills {
		lines = append(lines, chargeLine(b)...)
	}

	creditHistory, err := s.credit.History(ctx, clientID, unitID, fyStart, fyEnd)
	if err != nil {
		return nil, fmt.Errorf("statement: load credit history: %w", err)
	}
	for _, e := range creditHistory {
		if e.Source != models.CreditSourceManual {
			continue
		}
		lines = append(lines, StatementLine{
			Date: e.Timestamp, Description: e.Note, Type: lineCredit,
			Charge: clampPositive(money.Neg(e.Amount)), Payment: clampPositive(e.Amount),
			TransactionID: e.TransactionID,
		})
	}

	sort.SliceStable(lines, func(i, j int) bool {
		if !lines[i].Date.Equal(lines[j].Date) {
			return lines[i].Date.Before(lines[j].Date)
		}
		return lines[i].Type < lines[j].Type
	})

	balance := opening
	allocations := make(map[models.ModuleType]money.Centavos)
	for i := range lines {
		signed := money.Sub(lines[i].Charge, lines[i].Payment)
		balance = money.Add(balance, signed)
		lines[i].Balance = balance
		allocations[lines[i].Category] = money.Add(allocations[lines[i].Category], lines[i].Charge)
	}

	stmt := &Statement{
		ClientID: clientID, UnitID: unitID, FiscalYear: fiscalYear,
		OpeningBalance: opening, ClosingBalance: balance, Lines: lines,
		AllocationsByModule: allocations,
	}

	currentCredit, err := s.credit.Balance(ctx, clientID, unitID)
	if err != nil {
		return nil, fmt.Errorf("statement: current credit balance: %w", err)
	}
	stmt.CreditFinalBalance = currentCredit

	hasUnpaid := false
	for _, b := range hoaBills {
		if b.Status() != models.BillStatusPaid {
			hasUnpaid = true
			break
		}
	}
	for _, b := range waterBills {
		if b.Status() != models.BillStatusPaid {
			hasUnpaid = true
			break
		}
	}
	if !hasUnpaid {
		diff := money.Sub(stmt.ClosingBalance, money.Neg(currentCredit))
		if diff < -reconciliationTolerance || diff > reconciliationTolerance {
			stmt.ReconciliationWarn = true
			stmt.ReconciliationNote = fmt.Sprintf("closing balance %d diverges from credit ledger's %d by more than 1 centavo", stmt.ClosingBalance, money.Neg(currentCredit))
			s.log.Warn().Str("clientId", clientID).Str("unitId", unitID).Int64("diff", int64(diff)).Msg("statement reconciliation drift")
		} else if diff != 0 {
			stmt.ClosingBalance = money.Neg(currentCredit)
		}
	}

	return stmt, nil
}

// listWaterPeriodsInRange discovers every stored water-bill period for
// clientID; the caller (SelectUnpaid) already filters by unit and
// status, so no date filtering happens here beyond period naming.
func (s *StatementService) listWaterPeriodsInRange(ctx context.Context, clientID string, start, end time.Time) ([]string, error) {
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

func clampPositive(c money.Centavos) money.Centavos {
	if c < 0 {
		return 0
	}
	return c
}

// importedPenaltyLines surfaces a dues document's imported,
// pre-engine penalty history (spec §3.3 "penalties.entries[]") as
// statement lines, alongside the freshly recalculated penalty lines
// chargeLine already emits for unpaid bills (spec §4.8 step 2).
func importedPenaltyLines(d models.DuesDocument) []StatementLine {
	lines := make([]StatementLine, 0, len(d.PenaltyEntries))
	for _, e := range d.PenaltyEntries {
		if e.Amount <= 0 {
			continue
		}
		desc := fmt.Sprintf("Imported penalty hoa %d-%02d", d.FiscalYear, e.MonthIndex)
		if e.Note != "" {
			desc = fmt.Sprintf("%s (%s)", desc, e.Note)
		}
		lines = append(lines, StatementLine{
			Date: e.Date, Description: desc, Type: linePenalty,
			Category: models.ModuleHOA, Charge: e.Amount,
		})
	}
	return lines
}

func chargeLine(b models.Bill) []StatementLine {
	var lines []StatementLine
	desc := fmt.Sprintf("%s %s", b.ModuleType, b.Period)
	if b.BaseCharge > 0 {
		lines = append(lines, StatementLine{
			Date: b.DueDate, Description: desc, Type: lineCharge, Category: b.ModuleType,
			Charge: b.BaseCharge,
		})
	}
	for _, p := range b.Payments {
		if p.BasePaid > 0 {
			lines = append(lines, StatementLine{
				Date: p.Timestamp, Description: fmt.Sprintf("Payment %s", desc), Type: linePayment,
				Category: b.ModuleType, Payment: p.BasePaid, TransactionID: p.TransactionID,
			})
		}
		if p.PenaltyPaid > 0 {
			lines = append(lines, StatementLine{
				Date: p.Timestamp, Description: fmt.Sprintf("Penalty payment %s", desc), Type: linePayment,
				Category: b.ModuleType, Payment: p.PenaltyPaid, TransactionID: p.TransactionID,
			})
		}
	}
	if b.PenaltyAmt > 0 {
		lines = append(lines, StatementLine{
			Date: b.DueDate, Description: fmt.Sprintf("Penalty %s", desc), Type: linePenalty,
			Category: b.ModuleType, Charge: b.PenaltyAmt,
		})
	}
	return lines
}
