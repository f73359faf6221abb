package models

import (
	"github.com/mlandesman/sams-billing-core/src/billingerr"
	"github.com/shopspring/decimal"
)

func errConfigMissing(msg string) error {
	return billingerr.New(billingerr.ConfigMissing, msg)
}

// DuesFrequency is the recurring-dues billing cadence.
type DuesFrequency string

const (
	DuesFrequencyMonthly   DuesFrequency = "monthly"
	DuesFrequencyQuarterly DuesFrequency = "quarterly"
)

// HOAConfig holds the penalty policy for the dues (HOA) stream.
type HOAConfig struct {
	PenaltyRate decimal.Decimal // e.g. 0.05 = 5%/month
	PenaltyDays int             // grace-period days
}

// WaterConfig holds the penalty policy and billing rates for the
// metered-water stream.
type WaterConfig struct {
	PenaltyRate   decimal.Decimal
	PenaltyDays   int
	RatePerM3     int64 // centavos per cubic meter
	MinimumCharge int64 // centavos
}

// ClientConfig is the per-client, process-wide-immutable-during-a-request
// configuration described in spec §3.1.
type ClientConfig struct {
	ClientID             string
	FiscalYearStartMonth int // 1..12
	DuesFrequency        DuesFrequency
	HOA                  HOAConfig
	Water                WaterConfig
}

// Validate checks the fiscal-calendar fields (start month and dues
// frequency) and returns a ConfigMissing error when either is absent or
// out of range. Penalty rates and grace days are not checked.
func (c ClientConfig) Validate() error {
	if c.FiscalYearStartMonth < 1 || c.FiscalYearStartMonth > 12 {
		return errConfigMissing("fiscalYearStartMonth out of range")
	}
	if c.DuesFrequency != DuesFrequencyMonthly && c.DuesFrequency != DuesFrequencyQuarterly {
		return errConfigMissing("duesFrequency must be monthly or quarterly")
	}
	return nil
}
