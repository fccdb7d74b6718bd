package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GSTTreatment is the tax treatment assigned to a transaction.
type GSTTreatment string

const (
	TreatmentTaxableSupply GSTTreatment = "TAXABLE_SUPPLY"
	TreatmentGSTFree       GSTTreatment = "GST_FREE"
	TreatmentInputTaxed    GSTTreatment = "INPUT_TAXED"
	TreatmentOutOfScope    GSTTreatment = "OUT_OF_SCOPE"
)

// ValidGSTTreatment reports whether v names a known treatment.
func ValidGSTTreatment(v GSTTreatment) bool {
	switch v {
	case TreatmentTaxableSupply, TreatmentGSTFree, TreatmentInputTaxed, TreatmentOutOfScope:
		return true
	}
	return false
}

// GSTTolerance is the permitted rounding drift between the supplied GST
// component and the computed one.
var GSTTolerance = decimal.NewFromFloat(0.01)

// GSTTransactionDetail records the tax classification and validation outcome
// for one transaction. Created once; only ReportedInBAS flips afterwards.
type GSTTransactionDetail struct {
	ID               uuid.UUID       `json:"id"`
	TransactionID    uuid.UUID       `json:"transaction_id"`
	BaseAmount       decimal.Decimal `json:"base_amount"`
	GSTAmount        decimal.Decimal `json:"gst_amount"`
	Treatment        GSTTreatment    `json:"treatment"`
	Validated        bool            `json:"validated"`
	ValidationErrors []string        `json:"validation_errors,omitempty"`
	ReportedInBAS    bool            `json:"reported_in_bas"`
	ClassifiedAt     time.Time       `json:"classified_at"`
	CreatedAt        time.Time       `json:"created_at"`
}

// ExpectedGST computes round(base * rate, 2).
func ExpectedGST(base, rate decimal.Decimal) decimal.Decimal {
	return base.Mul(rate).Round(2)
}

// ValidateGST checks the supplied GST component against the treatment rules
// and returns the human-readable validation errors, empty when valid.
// TAXABLE_SUPPLY must match the expected component within one cent; every
// other treatment must carry a zero GST component.
func ValidateGST(treatment GSTTreatment, base, gst, rate decimal.Decimal) []string {
	var errs []string
	switch treatment {
	case TreatmentTaxableSupply:
		expected := ExpectedGST(base, rate)
		if gst.Sub(expected).Abs().GreaterThan(GSTTolerance) {
			errs = append(errs, fmt.Sprintf(
				"GST amount %s does not match expected %s for taxable supply of %s",
				gst.StringFixed(2), expected.StringFixed(2), base.StringFixed(2)))
		}
	case TreatmentGSTFree, TreatmentInputTaxed, TreatmentOutOfScope:
		if !gst.IsZero() {
			errs = append(errs, fmt.Sprintf(
				"GST amount must be zero for %s treatment, got %s",
				treatment, gst.StringFixed(2)))
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown GST treatment %q", treatment))
	}
	return errs
}

// GSTStats is the GST section input for one period.
type GSTStats struct {
	Total            int64            `json:"total"`
	ByTreatment      map[string]int64 `json:"by_treatment"`
	ValidationErrors int64            `json:"validation_errors"`
	ReportedInBAS    int64            `json:"reported_in_bas"`
	TotalGST         decimal.Decimal  `json:"total_gst"`
}
