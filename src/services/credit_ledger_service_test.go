package services

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mlandesman/sams-billing-core/src/models"
	"github.com/mlandesman/sams-billing-core/src/storage/memory"
)

func TestCreditLedgerBalanceSumsHistory(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewCreditLedgerService(store, zerolog.Nop())

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []models.CreditLedgerEntry{
		{Amount: 10000, Type: models.CreditEntryStartingBalance, Source: models.CreditSourceManual, Timestamp: base},
		{Amount: 5000, Type: models.CreditEntryAdded, Source: models.CreditSourceManual, Timestamp: base.Add(24 * time.Hour)},
		{Amount: -3000, Type: models.CreditEntryUsed, Source: models.CreditSourceManual, Timestamp: base.Add(48 * time.Hour)},
	}
	for _, e := range entries {
		if err := svc.Append(ctx, "client1", "unit1", e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := svc.Balance(ctx, "client1", "unit1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if want := int64(12000); int64(got) != want {
		t.Errorf("balance = %d, want %d", got, want)
	}

	asOf, err := svc.BalanceAsOf(ctx, "client1", "unit1", base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("balanceAsOf: %v", err)
	}
	if want := int64(15000); int64(asOf) != want {
		t.Errorf("balanceAsOf = %d, want %d", asOf, want)
	}
}

func TestCreditLedgerAppendRejectsNegativeBalance(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewCreditLedgerService(store, zerolog.Nop())

	err := svc.Append(ctx, "client1", "unit1", models.CreditLedgerEntry{
		Amount:    -100,
		Type:      models.CreditEntryUsed,
		Source:    models.CreditSourceManual,
		Timestamp: time.Now(),
	})
	if err == nil {
		t.Fatal("expected NegativeBalance error, got nil")
	}
}

func TestCreditLedgerHistoryIsNeverMutated(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewCreditLedgerService(store, zerolog.Nop())

	now := time.Now()
	if err := svc.Append(ctx, "client1", "unit1", models.CreditLedgerEntry{
		Amount: 1000, Type: models.CreditEntryAdded, Source: models.CreditSourceManual, Timestamp: now,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	hist, err := svc.History(ctx, "client1", "unit1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("history length = %d, want 1", len(hist))
	}

	if err := svc.Append(ctx, "client1", "unit1", models.CreditLedgerEntry{
		Amount: -400, Type: models.CreditEntryUsed, Source: models.CreditSourceManual, Timestamp: now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("second append: %v", err)
	}
	after, err := svc.History(ctx, "client1", "unit1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("history after second append: %v", err)
	}
	if len(after) != 2 {
		t.Fatalf("history length = %d, want 2", len(after))
	}
	if after[0].ID != hist[0].ID || after[0].Amount != 1000 {
		t.Errorf("first entry = %+v, want unchanged %+v", after[0], hist[0])
	}
}
