package services

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mlandesman/sams-billing-core/src/models"
	"github.com/mlandesman/sams-billing-core/src/storage"
	"github.com/mlandesman/sams-billing-core/src/storage/memory"
)

func seedWaterBill(t *testing.T, ctx context.Context, store *memory.Store, clientID, period, unitID string, bill models.WaterUnitBill) {
	t.Helper()
	doc := storage.Doc{"units": map[string]interface{}{unitID: waterUnitBillToDoc(bill)}}
	if err := store.SetDoc(ctx, waterBillDocPath(clientID, period), doc); err != nil {
		t.Fatalf("seed water bill: %v", err)
	}
}

func TestWaterAdapterSelectUnpaidExcludesPaid(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	penalty := NewPenaltyService(zerolog.Nop())
	adapter := NewWaterAdapterService(store, penalty, zerolog.Nop())

	seedWaterBill(t, ctx, store, "client1", "2026-01", "unit1", models.WaterUnitBill{
		BaseCharge: 20000, BasePaid: 20000, DueDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	seedWaterBill(t, ctx, store, "client1", "2026-02", "unit1", models.WaterUnitBill{
		BaseCharge: 18000, DueDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	})

	cfg := testClientConfig()
	bills, err := adapter.SelectUnpaid(ctx, "client1", "unit1", []string{"2026-01", "2026-02"}, cfg, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("selectUnpaid: %v", err)
	}
	if len(bills) != 1 {
		t.Fatalf("bills = %d, want 1", len(bills))
	}
	if bills[0].Period != "2026-02" {
		t.Errorf("period = %s, want 2026-02", bills[0].Period)
	}
}

func TestWaterAdapterApplyPaymentUpdatesUnitAndAppendsPayment(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	penalty := NewPenaltyService(zerolog.Nop())
	adapter := NewWaterAdapterService(store, penalty, zerolog.Nop())

	seedWaterBill(t, ctx, store, "client1", "2026-02", "unit1", models.WaterUnitBill{
		BaseCharge: 18000, DueDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	})

	now := time.Now()
	docs, err := adapter.PrepareApplyPayment(ctx, "client1", []WaterPaymentDelta{
		{Period: "2026-02", UnitID: "unit1", BasePaid: 18000, TransactionID: "txn1", Timestamp: now, Method: "transfer"},
	})
	if err != nil {
		t.Fatalf("prepareApplyPayment: %v", err)
	}

	path := waterBillDocPath("client1", "2026-02")
	if err := store.SetDoc(ctx, path, docs[path]); err != nil {
		t.Fatalf("commit: %v", err)
	}

	doc, ok, err := adapter.LoadWaterBillDocument(ctx, "client1", "2026-02")
	if err != nil || !ok {
		t.Fatalf("reload: ok=%v err=%v", ok, err)
	}
	unit := doc.Units["unit1"]
	if unit.BasePaid != 18000 {
		t.Errorf("basePaid = %d, want 18000", unit.BasePaid)
	}
	if len(unit.Payments) != 1 {
		t.Fatalf("payments = %d, want 1", len(unit.Payments))
	}
	if unit.Payments[0].TransactionID != "txn1" {
		t.Errorf("payment transactionId = %s, want txn1", unit.Payments[0].TransactionID)
	}
}
