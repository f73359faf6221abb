package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mlandesman/sams-billing-core/src/models"
	"github.com/mlandesman/sams-billing-core/src/money"
	"github.com/mlandesman/sams-billing-core/src/services"
	"github.com/mlandesman/sams-billing-core/src/storage"
	"github.com/mlandesman/sams-billing-core/src/storage/postgres"
)

// This example demonstrates that penalty amounts are never written back to
// storage: the same unpaid dues bill is aggregated at three different
// asOfDates, each time recomputing PenaltyAmt from scratch against the
// persisted scheduledAmount and the fiscal-calendar due date. Nothing in between the three checks
// touches the documents table.

func main() {
	store, err := postgres.Open(mustEnv("DATABASE_URL", "postgres://localhost/sams_billing?sslmode=disable"))
	if err != nil {
		stdlog.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		stdlog.Fatal(err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	penalty := services.NewPenaltyService(logger)
	dues := services.NewDuesAdapterService(store, penalty, logger)

	cfg := models.ClientConfig{
		ClientID:             "democlient",
		FiscalYearStartMonth: 7,
		DuesFrequency:        models.DuesFrequencyMonthly,
		HOA: models.HOAConfig{
			PenaltyDays: 10,
			PenaltyRate: decimal.NewFromFloat(0.05),
		},
	}

	unitID := "unit-202"
	fiscalYear := 2027

	if err := seedDuesDocument(ctx, store, cfg.ClientID, unitID, fiscalYear, 250000); err != nil {
		logger.Fatal().Err(err).Msg("seed dues")
	}
	fmt.Printf("seeded dues fiscal year %d at $%s/mo, no payments recorded\n", fiscalYear, money.FormatPesos(250000))

	checkDates := []time.Time{
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),  // past the grace window, no whole penalty month yet
		time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), // one penalty cycle past due
		time.Date(2026, 9, 25, 0, 0, 0, 0, time.UTC), // two penalty cycles past due
	}

	fmt.Println("\n=== SAMS Billing Core - Penalty Refresh Example ===")
	for _, asOf := range checkDates {
		bills, err := dues.AggregateWithRollback(ctx, cfg.ClientID, unitID, fiscalYear, cfg, asOf)
		if err != nil {
			logger.Fatal().Err(err).Msg("aggregate")
		}

		var owedBase, owedPenalty money.Centavos
		for _, b := range bills {
			owedBase = money.Add(owedBase, b.BaseOwed())
			owedPenalty = money.Add(owedPenalty, money.Sub(b.PenaltyAmt, b.PenaltyPaid))
		}
		fmt.Printf("as of %s: base owed=$%s penalty owed=$%s (recomputed, not persisted)\n",
			asOf.Format("2006-01-02"), money.FormatPesos(owedBase), money.FormatPesos(owedPenalty))
	}

	reloaded, ok, err := dues.LoadDuesDocument(ctx, cfg.ClientID, unitID, fiscalYear)
	if err != nil || !ok {
		logger.Fatal().Err(err).Msg("reload")
	}
	for i, slot := range reloaded.Payments {
		if slot.PenaltyPaid != 0 || slot.BasePaid != 0 {
			fmt.Printf("unexpected persisted payment at slot %d\n", i)
		}
	}
	fmt.Println("confirmed: the stored document carries no penalty field; every run above recomputed it fresh")
}

func seedDuesDocument(ctx context.Context, store storage.Store, clientID, unitID string, fiscalYear int, scheduledAmount int64) error {
	payments := make([]interface{}, 12)
	for i := range payments {
		payments[i] = storage.Doc{}
	}
	doc := storage.Doc{
		"scheduledAmount": scheduledAmount,
		"payments":        payments,
	}
	return store.SetDoc(ctx, fmt.Sprintf("clients/%s/units/%s/dues/%d", clientID, unitID, fiscalYear), doc)
}

func mustEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
