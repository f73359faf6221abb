package services

import (
	"context"
	"testing"
	"time"

	"github.com/mlandesman/sams-billing-core/src/models"
)

func TestAutoPayOpportunityReportFindsUnitWithCoveringCredit(t *testing.T) {
	ctx := context.Background()
	engine, store, cfg := newUnifiedFixture(t)

	doc := models.DuesDocument{ClientID: "client1", UnitID: "unit1", FiscalYear: 2027, ScheduledAmount: 150000}
	if err := store.SetDoc(ctx, duesDocPath("client1", "unit1", 2027), duesDocToStorageDoc(doc)); err != nil {
		t.Fatalf("seed dues unit1: %v", err)
	}
	doc2 := models.DuesDocument{ClientID: "client1", UnitID: "unit2", FiscalYear: 2027, ScheduledAmount: 150000}
	if err := store.SetDoc(ctx, duesDocPath("client1", "unit2", 2027), duesDocToStorageDoc(doc2)); err != nil {
		t.Fatalf("seed dues unit2: %v", err)
	}

	entry := models.CreditLedgerEntry{Amount: 150000, Type: models.CreditEntryAdded, Source: models.CreditSourceManual, Timestamp: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)}
	if err := engine.credit.Append(ctx, "client1", "unit1", entry); err != nil {
		t.Fatalf("seed credit: %v", err)
	}

	asOf := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)
	report, err := engine.AutoPayOpportunityReport(ctx, "client1", []string{"unit1", "unit2"}, cfg, asOf)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(report) != 2 {
		t.Fatalf("report entries = %d, want 2", len(report))
	}

	byUnit := make(map[string]AutoPayOpportunity)
	for _, o := range report {
		byUnit[o.UnitID] = o
	}

	if byUnit["unit1"].WouldClearBills == 0 {
		t.Error("unit1 has covering credit, expected at least one bill that would clear")
	}
	if byUnit["unit2"].WouldClearBills != 0 {
		t.Errorf("unit2 has no credit, expected 0 bills that would clear, got %d", byUnit["unit2"].WouldClearBills)
	}
}
