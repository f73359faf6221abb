package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/mlandesman/sams-billing-core/src/clock"
	"github.com/mlandesman/sams-billing-core/src/models"
	"github.com/mlandesman/sams-billing-core/src/money"
	"github.com/mlandesman/sams-billing-core/src/services"
	"github.com/mlandesman/sams-billing-core/src/storage"
	"github.com/mlandesman/sams-billing-core/src/storage/postgres"
)

// This example demonstrates a complete flow through the billing engine:
// 1. Seed a dues document and a water bill document for one unit
// 2. Preview a payment that spans both streams
// 3. Record the payment atomically
// 4. Compose a statement and print the running balance

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

	clk, err := clock.NewReal(mustEnv("TIMEZONE", "America/Cancun"))
	if err != nil {
		stdlog.Fatal(err)
	}

	penalty := services.NewPenaltyService(logger)
	dues := services.NewDuesAdapterService(store, penalty, logger)
	water := services.NewWaterAdapterService(store, penalty, logger)
	credit := services.NewCreditLedgerService(store, logger)
	engine := services.NewUnifiedPaymentService(store, clk, dues, water, credit, logger)
	statement := services.NewStatementService(store, dues, water, credit, logger)

	cfg := models.ClientConfig{
		ClientID:             "democlient",
		FiscalYearStartMonth: 7,
		DuesFrequency:        models.DuesFrequencyMonthly,
		HOA:                  models.HOAConfig{PenaltyDays: 10},
		Water:                models.WaterConfig{PenaltyDays: 10, RatePerM3: 4500},
	}

	unitID := "unit-101"
	fiscalYear := 2027

	fmt.Println("=== SAMS Billing Core - Complete Flow Example ===")

	fmt.Println("\nStep 1: Seeding dues and water documents")
	fmt.Println("-----------------------------------------")
	if err := seedDuesDocument(ctx, store, "democlient", unitID, fiscalYear, 250000); err != nil {
		logger.Fatal().Err(err).Msg("seed dues")
	}
	if err := seedWaterBill(ctx, store, "democlient", "2027-00", unitID, 18500); err != nil {
		logger.Fatal().Err(err).Msg("seed water")
	}
	fmt.Printf("  seeded dues fiscal year %d at $%s/mo, water period 2027-00 at $%s\n",
		fiscalYear, money.FormatPesos(250000), money.FormatPesos(18500))

	paymentDate := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	fmt.Println("\nStep 2: Previewing a payment")
	fmt.Println("-----------------------------")
	dist, err := engine.Preview(ctx, "democlient", unitID, cfg, 300000, paymentDate)
	if err != nil {
		logger.Fatal().Err(err).Msg("preview")
	}
	fmt.Printf("  hoa bills covered:   %d ($%s)\n", len(dist.HOA.BillsPaid), money.FormatPesos(dist.HOA.TotalPaid))
	fmt.Printf("  water bills covered: %d ($%s)\n", len(dist.Water.BillsPaid), money.FormatPesos(dist.Water.TotalPaid))
	fmt.Printf("  credit added:        $%s\n", money.FormatPesos(dist.Credit.Added))
	fmt.Printf("  new credit balance:  $%s\n", money.FormatPesos(dist.NewCreditBalance))

	fmt.Println("\nStep 3: Recording the payment")
	fmt.Println("------------------------------")
	txnID, err := engine.Record(ctx, cfg, dist, services.RecordInput{
		PaymentMethod: "bank_transfer",
		Reference:     "demo-seed-payment",
		UserID:        "demo-script",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("record")
	}
	fmt.Printf("  transaction recorded: %s\n", txnID)

	fmt.Println("\nStep 4: Composing a statement")
	fmt.Println("------------------------------")
	stmt, err := statement.Compose(ctx, "democlient", unitID, fiscalYear, cfg, paymentDate.AddDate(0, 1, 0), false)
	if err != nil {
		logger.Fatal().Err(err).Msg("compose")
	}
	fmt.Printf("  opening balance: $%s\n", money.FormatPesos(stmt.OpeningBalance))
	fmt.Printf("  closing balance: $%s\n", money.FormatPesos(stmt.ClosingBalance))
	for _, l := range stmt.Lines {
		fmt.Printf("    %s  %-28s charge=$%-10s payment=$%-10s balance=$%s\n",
			l.Date.Format("2006-01-02"), l.Description, money.FormatPesos(l.Charge), money.FormatPesos(l.Payment), money.FormatPesos(l.Balance))
	}

	fmt.Println("\n=== Example Complete ===")
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

func seedWaterBill(ctx context.Context, store storage.Store, clientID, period, unitID string, baseCharge int64) error {
	doc := storage.Doc{
		"units": map[string]interface{}{
			unitID: storage.Doc{"baseCharge": baseCharge, "dueDate": time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)},
		},
	}
	return store.SetDoc(ctx, fmt.Sprintf("clients/%s/projects/waterBills/bills/%s", clientID, period), doc)
}

func mustEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
