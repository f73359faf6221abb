package services

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mlandesman/sams-billing-core/src/models"
	"github.com/mlandesman/sams-billing-core/src/storage/memory"
)

func testClientConfig() models.ClientConfig {
	return models.ClientConfig{
		ClientID:             "client1",
		FiscalYearStartMonth: 7,
		DuesFrequency:        models.DuesFrequencyMonthly,
		HOA:                  models.HOAConfig{PenaltyRate: decimal.NewFromFloat(0.05), PenaltyDays: 10},
		Water:                models.WaterConfig{PenaltyRate: decimal.NewFromFloat(0.05), PenaltyDays: 10, RatePerM3: 4500},
	}
}

func TestDuesAdapterMaterializeMonthly(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	penalty := NewPenaltyService(zerolog.Nop())
	adapter := NewDuesAdapterService(store, penalty, zerolog.Nop())

	doc := models.DuesDocument{ClientID: "client1", UnitID: "unit1", FiscalYear: 2026, ScheduledAmount: 150000}
	if err := store.SetDoc(ctx, duesDocPath("client1", "unit1", 2026), duesDocToStorageDoc(doc)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	loaded, ok, err := adapter.LoadDuesDocument(ctx, "client1", "unit1", 2026)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}

	bills := adapter.MaterializeBills(loaded, testClientConfig(), time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC))
	if len(bills) != 12 {
		t.Fatalf("bills = %d, want 12", len(bills))
	}
	if bills[0].BaseCharge != 150000 {
		t.Errorf("baseCharge = %d, want 150000", bills[0].BaseCharge)
	}
}

func TestDuesAdapterMaterializeQuarterly(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	penalty := NewPenaltyService(zerolog.Nop())
	adapter := NewDuesAdapterService(store, penalty, zerolog.Nop())

	doc := models.DuesDocument{ClientID: "client1", UnitID: "unit1", FiscalYear: 2026, ScheduledAmount: 150000}
	cfg := testClientConfig()
	cfg.DuesFrequency = models.DuesFrequencyQuarterly

	bills := adapter.MaterializeBills(doc, cfg, time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC))
	if len(bills) != 4 {
		t.Fatalf("bills = %d, want 4", len(bills))
	}
	if bills[0].BaseCharge != 450000 {
		t.Errorf("baseCharge = %d, want 450000", bills[0].BaseCharge)
	}
}

func TestDuesAdapterApplyQuarterlyPaymentSplitsEquallyPenaltyFirst(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	penalty := NewPenaltyService(zerolog.Nop())
	adapter := NewDuesAdapterService(store, penalty, zerolog.Nop())

	doc := models.DuesDocument{ClientID: "client1", UnitID: "unit1", FiscalYear: 2026, ScheduledAmount: 150000}
	if err := store.SetDoc(ctx, duesDocPath("client1", "unit1", 2026), duesDocToStorageDoc(doc)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	docs, err := adapter.PrepareApplyPayment(ctx, "client1", "unit1", []DuesPaymentDelta{
		{FiscalYear: 2026, QuarterIndex: 1, BasePaid: 450000, PenaltyPaid: 900, TransactionID: "txn1", Timestamp: now, NoteText: "Q1 payment"},
	})
	if err != nil {
		t.Fatalf("prepareApplyPayment: %v", err)
	}

	path := duesDocPath("client1", "unit1", 2026)
	storedDoc, ok := docs[path]
	if !ok {
		t.Fatalf("expected doc at %s", path)
	}
	if err := store.SetDoc(ctx, path, storedDoc); err != nil {
		t.Fatalf("commit: %v", err)
	}

	reloaded, ok, err := adapter.LoadDuesDocument(ctx, "client1", "unit1", 2026)
	if err != nil || !ok {
		t.Fatalf("reload: ok=%v err=%v", ok, err)
	}

	for i := 0; i < 3; i++ {
		if reloaded.Payments[i].BasePaid != 150000 {
			t.Errorf("slot %d basePaid = %d, want 150000", i, reloaded.Payments[i].BasePaid)
		}
	}
	if reloaded.Payments[0].PenaltyPaid != 900 {
		t.Errorf("slot 0 penaltyPaid = %d, want 900", reloaded.Payments[0].PenaltyPaid)
	}
	for i := 1; i < 3; i++ {
		if reloaded.Payments[i].PenaltyPaid != 0 {
			t.Errorf("slot %d penaltyPaid = %d, want 0", i, reloaded.Payments[i].PenaltyPaid)
		}
	}
}

func TestDuesAdapterApplyPaymentPreservesImportedPenaltyHistory(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	penalty := NewPenaltyService(zerolog.Nop())
	adapter := NewDuesAdapterService(store, penalty, zerolog.Nop())

	doc := models.DuesDocument{
		ClientID: "client1", UnitID: "unit1", FiscalYear: 2026, ScheduledAmount: 150000,
		PenaltyEntries: []models.PenaltyHistoryEntry{
			{MonthIndex: 2, Amount: 5000, Date: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), Note: "imported arrears"},
		},
	}
	if err := store.SetDoc(ctx, duesDocPath("client1", "unit1", 2026), duesDocToStorageDoc(doc)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	docs, err := adapter.PrepareApplyPayment(ctx, "client1", "unit1", []DuesPaymentDelta{
		{FiscalYear: 2026, MonthIndex: 0, BasePaid: 150000, Timestamp: now, NoteText: "month 0 payment"},
	})
	if err != nil {
		t.Fatalf("prepareApplyPayment: %v", err)
	}
	path := duesDocPath("client1", "unit1", 2026)
	if err := store.SetDoc(ctx, path, docs[path]); err != nil {
		t.Fatalf("commit: %v", err)
	}

	reloaded, ok, err := adapter.LoadDuesDocument(ctx, "client1", "unit1", 2026)
	if err != nil || !ok {
		t.Fatalf("reload: ok=%v err=%v", ok, err)
	}
	if len(reloaded.PenaltyEntries) != 1 {
		t.Fatalf("penaltyEntries = %d, want 1 (imported history must survive a payment round trip)", len(reloaded.PenaltyEntries))
	}
	entry := reloaded.PenaltyEntries[0]
	if entry.MonthIndex != 2 || entry.Amount != 5000 || entry.Note != "imported arrears" {
		t.Errorf("penaltyEntry = %+v, want MonthIndex=2 Amount=5000 Note=\"imported arrears\"", entry)
	}

	wantTotalPaid := reloaded.Payments[0].BasePaid
	if reloaded.TotalPaid != wantTotalPaid {
		t.Errorf("totalPaid = %d, want %d (sum over slots)", reloaded.TotalPaid, wantTotalPaid)
	}
}

func TestDuesAdapterPrepareApplyPaymentMissingDocFails(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	penalty := NewPenaltyService(zerolog.Nop())
	adapter := NewDuesAdapterService(store, penalty, zerolog.Nop())

	_, err := adapter.PrepareApplyPayment(ctx, "client1", "unit1", []DuesPaymentDelta{
		{FiscalYear: 2099, MonthIndex: 0, BasePaid: 100},
	})
	if err == nil {
		t.Fatal("expected BillNotFound error, got nil")
	}
}

func TestDuesAdapterAggregateWithRollback(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	penalty := NewPenaltyService(zerolog.Nop())
	adapter := NewDuesAdapterService(store, penalty, zerolog.Nop())
	cfg := testClientConfig()

	prevDoc := models.DuesDocument{ClientID: "client1", UnitID: "unit1", FiscalYear: 2025, ScheduledAmount: 150000}
	prevDoc.Payments[9] = models.DuesPaymentSlot{BasePaid: 150000}
	if err := store.SetDoc(ctx, duesDocPath("client1", "unit1", 2025), duesDocToStorageDoc(prevDoc)); err != nil {
		t.Fatalf("seed prev: %v", err)
	}

	curDoc := models.DuesDocument{ClientID: "client1", UnitID: "unit1", FiscalYear: 2026, ScheduledAmount: 150000}
	if err := store.SetDoc(ctx, duesDocPath("client1", "unit1", 2026), duesDocToStorageDoc(curDoc)); err != nil {
		t.Fatalf("seed cur: %v", err)
	}

	bills, err := adapter.AggregateWithRollback(ctx, "client1", "unit1", 2026, cfg, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	var prevYearBills []string
	for _, b := range bills {
		if b.Period[:4] == "2025" {
			prevYearBills = append(prevYearBills, b.Period)
		}
	}
	if len(prevYearBills) != 2 {
		t.Fatalf("prevYearBills = %v, want 2 entries (2025-10, 2025-11)", prevYearBills)
	}
	if prevYearBills[0] != "2025-10" || prevYearBills[1] != "2025-11" {
		t.Errorf("prevYearBills = %v, want [2025-10 2025-11]", prevYearBills)
	}
}
