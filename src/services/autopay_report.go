package services

import (
	"context"
	"fmt"
	"time"

	"github.com/mlandesman/sams-billing-core/src/models"
	"github.com/mlandesman/sams-billing-core/src/money"
)

// AutoPayOpportunity is one unit's answer to "what would the credit
// already on file clear, right now, without a new payment" (spec
// §4.6.5's zero-amount-preview use case).
type AutoPayOpportunity struct {
	UnitID           string
	CurrentCredit    money.Centavos
	WouldClearBills  int
	WouldClearAmount money.Centavos
}

// AutoPayOpportunityReport batches a sanitized zero-amount Preview
// across unitIDs and reports, per unit, how many current or past-due
// bills that preview pays into (a partly covered bill counts too) and
// the amount applied to them. It performs no writes; it is a read-only
// convenience over UnifiedPaymentService.
func (s *UnifiedPaymentService) AutoPayOpportunityReport(ctx context.Context, clientID string, unitIDs []string, cfg models.ClientConfig, asOf time.Time) ([]AutoPayOpportunity, error) {
	report := make([]AutoPayOpportunity, 0, len(unitIDs))
	for _, unitID := range unitIDs {
		dist, err := s.Preview(ctx, clientID, unitID, cfg, 0, asOf)
		if err != nil {
			return nil, fmt.Errorf("autopay_report: unit %s: %w", unitID, err)
		}

		opp := AutoPayOpportunity{
			UnitID:        unitID,
			CurrentCredit: dist.CurrentCreditBalance,
		}
		opp.WouldClearBills = len(dist.HOA.BillsPaid) + len(dist.Water.BillsPaid)
		opp.WouldClearAmount = money.Add(dist.HOA.TotalPaid, dist.Water.TotalPaid)
		report = append(report, opp)
	}
	return report, nil
}
