package services

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mlandesman/sams-billing-core/src/storage"
	"github.com/mlandesman/sams-billing-core/src/storage/memory"
)

func seedClientConfigDocs(t *testing.T, store *memory.Store, clientID string, fiscalYearStartMonth int64, duesFrequency string) {
	t.Helper()
	hoaDoc := storage.Doc{
		"fiscalYearStartMonth": fiscalYearStartMonth,
		"duesFrequency":        duesFrequency,
		"penaltyRate":          "0.05",
		"penaltyDays":          int64(10),
	}
	if err := store.SetDoc(context.Background(), hoaDuesConfigPath(clientID), hoaDoc); err != nil {
		t.Fatalf("seed hoaDues config: %v", err)
	}
	waterDoc := storage.Doc{
		"penaltyRate":   "0.05",
		"penaltyDays":   int64(10),
		"ratePerM3":     int64(4500),
		"minimumCharge": int64(0),
	}
	if err := store.SetDoc(context.Background(), waterBillsConfigPath(clientID), waterDoc); err != nil {
		t.Fatalf("seed waterBills config: %v", err)
	}
}

func TestClientConfigServiceLoadsAndValidates(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedClientConfigDocs(t, store, "client1", 7, "monthly")

	svc := NewClientConfigService(store, zerolog.Nop())
	cfg, err := svc.Get(ctx, "client1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cfg.FiscalYearStartMonth != 7 {
		t.Errorf("fiscalYearStartMonth = %d, want 7", cfg.FiscalYearStartMonth)
	}
	if cfg.Water.RatePerM3 != 4500 {
		t.Errorf("water ratePerM3 = %d, want 4500", cfg.Water.RatePerM3)
	}
}

func TestClientConfigServiceMissingDocumentErrors(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	svc := NewClientConfigService(store, zerolog.Nop())
	if _, err := svc.Get(ctx, "ghost"); err == nil {
		t.Fatal("expected an error for a client with no hoaDues config document")
	}
}

func TestClientConfigServiceToleratesMissingWaterConfig(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	if err := store.SetDoc(ctx, hoaDuesConfigPath("client1"), storage.Doc{
		"fiscalYearStartMonth": int64(7),
		"duesFrequency":        "monthly",
	}); err != nil {
		t.Fatalf("seed hoaDues config: %v", err)
	}

	svc := NewClientConfigService(store, zerolog.Nop())
	cfg, err := svc.Get(ctx, "client1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cfg.Water.RatePerM3 != 0 {
		t.Errorf("water ratePerM3 = %d, want 0 (no waterBills config document for this client)", cfg.Water.RatePerM3)
	}
}

func TestClientConfigServiceServesCachedValueAfterDocumentChanges(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedClientConfigDocs(t, store, "client1", 7, "monthly")

	svc := NewClientConfigService(store, zerolog.Nop())
	if _, err := svc.Get(ctx, "client1"); err != nil {
		t.Fatalf("get: %v", err)
	}

	seedClientConfigDocs(t, store, "client1", 1, "quarterly")

	cached, err := svc.Get(ctx, "client1")
	if err != nil {
		t.Fatalf("get (cached): %v", err)
	}
	if cached.FiscalYearStartMonth != 7 {
		t.Errorf("fiscalYearStartMonth = %d, want 7 (stale cache within TTL)", cached.FiscalYearStartMonth)
	}

	svc.Invalidate("client1")
	fresh, err := svc.Get(ctx, "client1")
	if err != nil {
		t.Fatalf("get (after invalidate): %v", err)
	}
	if fresh.FiscalYearStartMonth != 1 {
		t.Errorf("fiscalYearStartMonth = %d, want 1 (reloaded after invalidate)", fresh.FiscalYearStartMonth)
	}
}
