package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mlandesman/sams-billing-core/src/billingerr"
	"github.com/mlandesman/sams-billing-core/src/models"
	"github.com/mlandesman/sams-billing-core/src/money"
	"github.com/mlandesman/sams-billing-core/src/storage"
)

func waterBillDocPath(clientID, period string) string {
	return fmt.Sprintf("clients/%s/projects/waterBills/bills/%s", clientID, period)
}

// WaterAdapterService selects unpaid water bills for a unit, refreshes
// their penalty fields as-of a chosen date, and applies payments (spec
// §4.5). Unlike dues, a water bill document already stores the bill
// shape directly (one document per fiscal period, keyed by unit);
// there is no separate materialization step.
type WaterAdapterService struct {
	store   storage.Store
	penalty *PenaltyService
	log     zerolog.Logger
}

// NewWaterAdapterService constructs a WaterAdapterService.
func NewWaterAdapterService(store storage.Store, penalty *PenaltyService, log zerolog.Logger) *WaterAdapterService {
	return &WaterAdapterService{store: store, penalty: penalty, log: log.With().Str("service", "water_adapter").Logger()}
}

func docToBillPayment(d storage.Doc) models.BillPayment {
	var p models.BillPayment
	p.TransactionID, _ = d["transactionId"].(string)
	p.Method, _ = d["method"].(string)
	if v, ok := d["basePaid"].(int64); ok {
		p.BasePaid = money.Centavos(v)
	}
	if v, ok := d["penaltyPaid"].(int64); ok {
		p.PenaltyPaid = money.Centavos(v)
	}
	if v, ok := d["timestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			p.Timestamp = t
		}
	}
	return p
}

func billPaymentToDoc(p models.BillPayment) storage.Doc {
	return storage.Doc{
		"transactionId": p.TransactionID,
		"timestamp":     p.Timestamp.Format(time.RFC3339),
		"basePaid":      int64(p.BasePaid),
		"penaltyPaid":   int64(p.PenaltyPaid),
		"method":        p.Method,
	}
}

func waterUnitBillToDoc(b models.WaterUnitBill) storage.Doc {
	payments := make([]interface{}, 0, len(b.Payments))
	for _, p := range b.Payments {
		payments = append(payments, billPaymentToDoc(p))
	}
	d := storage.Doc{
		"baseCharge":    int64(b.BaseCharge),
		"basePaid":      int64(b.BasePaid),
		"penaltyAmount": int64(b.PenaltyAmt),
		"penaltyPaid":   int64(b.PenaltyPaid),
		"consumptionM3": b.ConsumptionM3,
		"payments":      payments,
	}
	if !b.DueDate.IsZero() {
		d["dueDate"] = b.DueDate.Format(time.RFC3339)
	}
	return d
}

// LoadWaterBillDocument reads the stored water bill document for one
// fiscal period.
func (a *WaterAdapterService) LoadWaterBillDocument(ctx context.Context, clientID, period string) (models.WaterBillDocument, bool, error) {
	doc, ok, err := a.store.GetDoc(ctx, waterBillDocPath(clientID, period))
	if err != nil || !ok {
		return models.WaterBillDocument{}, ok, err
	}

	result := models.WaterBillDocument{ClientID: clientID, Period: period, Units: make(map[string]*models.WaterUnitBill)}
	rawUnits, _ := doc["units"].(map[string]interface{})
	for unitID, raw := range rawUnits {
		ud, ok := asDoc(raw)
		if !ok {
			continue
		}
		b := docToWaterUnitBillValue(ud, unitID)
		result.Units[unitID] = &b
	}
	return result, true, nil
}

func docToWaterUnitBillValue(d storage.Doc, unitID string) models.WaterUnitBill {
	var b models.WaterUnitBill
	b.UnitID = unitID
	if v, ok := d["baseCharge"].(int64); ok {
		b.BaseCharge = money.Centavos(v)
	}
	if v, ok := d["basePaid"].(int64); ok {
		b.BasePaid = money.Centavos(v)
	}
	if v, ok := d["penaltyAmount"].(int64); ok {
		b.PenaltyAmt = money.Centavos(v)
	}
	if v, ok := d["penaltyPaid"].(int64); ok {
		b.PenaltyPaid = money.Centavos(v)
	}
	if v, ok := d["consumptionM3"].(float64); ok {
		b.ConsumptionM3 = v
	}
	if v, ok := d["dueDate"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			b.DueDate = t
		}
	}
	rawPayments, _ := d["payments"].([]interface{})
	for _, rp := range rawPayments {
		pd, ok := asDoc(rp)
		if !ok {
			continue
		}
		b.Payments = append(b.Payments, docToBillPayment(pd))
	}
	return b
}

func waterUnitBillAsBill(b models.WaterUnitBill, period string) models.Bill {
	return models.Bill{
		BillID:      fmt.Sprintf("water:%s", period),
		Period:      period,
		UnitID:      b.UnitID,
		ModuleType:  models.ModuleWater,
		BaseCharge:  b.BaseCharge,
		BasePaid:    b.BasePaid,
		PenaltyAmt:  b.PenaltyAmt,
		PenaltyPaid: b.PenaltyPaid,
		DueDate:     b.DueDate,
		Payments:    b.Payments,
	}
}

// SelectUnpaid returns every bill across periods for a unit whose
// status is not paid (spec §4.5). Water future bills (due strictly
// after asOfDate) are included here; the Unified Payment Engine
// excludes them at the priority-tier stage since water is postpaid.
func (a *WaterAdapterService) SelectUnpaid(ctx context.Context, clientID, unitID string, periods []string, cfg models.ClientConfig, asOfDate time.Time) ([]models.Bill, error) {
	var bills []models.Bill
	for _, period := range periods {
		doc, ok, err := a.LoadWaterBillDocument(ctx, clientID, period)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		unitBill, ok := doc.Units[unitID]
		if !ok {
			continue
		}
		bill := waterUnitBillAsBill(*unitBill, period)
		if bill.Status() == models.BillStatusPaid {
			continue
		}
		bills = append(bills, bill)
	}

	result := a.penalty.Recalculate(bills, asOfDate, cfg.HOA, cfg.Water)
	return result.UpdatedBills, nil
}

// WaterPaymentDelta is one water bill's share of a distributed
// payment.
type WaterPaymentDelta struct {
	Period        string
	UnitID        string
	BasePaid      money.Centavos
	PenaltyPaid   money.Centavos
	TransactionID string
	Timestamp     time.Time
	Method        string
}

// PrepareApplyPayment loads each affected period's water bill document,
// applies the delta to the unit's entry, and returns the document path
// and full replacement doc ready to be folded into an in-flight
// storage.Batch (spec §5.3).
func (a *WaterAdapterService) PrepareApplyPayment(ctx context.Context, clientID string, deltas []WaterPaymentDelta) (map[string]storage.Doc, error) {
	byPeriod := make(map[string][]WaterPaymentDelta)
	for _, d := range deltas {
		byPeriod[d.Period] = append(byPeriod[d.Period], d)
	}

	out := make(map[string]storage.Doc)
	for period, periodDeltas := range byPeriod {
		rawDoc, ok, err := a.store.GetDoc(ctx, waterBillDocPath(clientID, period))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, billingerr.New(billingerr.BillNotFound,
				fmt.Sprintf("water bill document missing for period %s", period))
		}

		units, _ := rawDoc["units"].(map[string]interface{})
		if units == nil {
			units = make(map[string]interface{})
		}

		for _, delta := range periodDeltas {
			raw, ok := units[delta.UnitID]
			var unitBill models.WaterUnitBill
			if ok {
				ud, _ := asDoc(raw)
				unitBill = docToWaterUnitBillValue(ud, delta.UnitID)
			} else {
				unitBill.UnitID = delta.UnitID
			}

			unitBill.BasePaid = money.Add(unitBill.BasePaid, delta.BasePaid)
			unitBill.PenaltyPaid = money.Add(unitBill.PenaltyPaid, delta.PenaltyPaid)
			unitBill.Payments = append(unitBill.Payments, models.BillPayment{
				TransactionID: delta.TransactionID,
				Timestamp:     delta.Timestamp,
				BasePaid:      delta.BasePaid,
				PenaltyPaid:   delta.PenaltyPaid,
				Method:        delta.Method,
			})
			units[delta.UnitID] = waterUnitBillToDoc(unitBill)
		}

		rawDoc["units"] = units
		out[waterBillDocPath(clientID, period)] = rawDoc
	}
	return out, nil
}
