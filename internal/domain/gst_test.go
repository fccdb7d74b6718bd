package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var gstRate = decimal.RequireFromString("0.10")

func TestExpectedGSTRounds(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"100.00", "10"},
		{"33.33", "3.33"},
		{"0.05", "0.01"},
		{"0.04", "0"},
	}
	for _, tc := range tests {
		got := ExpectedGST(decimal.RequireFromString(tc.base), gstRate)
		assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "base %s: got %s", tc.base, got)
	}
}

func TestValidateGSTTaxableSupply(t *testing.T) {
	base := decimal.RequireFromString("100.00")

	assert.Empty(t, ValidateGST(TreatmentTaxableSupply, base, decimal.RequireFromString("10.00"), gstRate))

	// Drift of exactly one cent is still within tolerance.
	assert.Empty(t, ValidateGST(TreatmentTaxableSupply, base, decimal.RequireFromString("10.01"), gstRate))
	assert.Empty(t, ValidateGST(TreatmentTaxableSupply, base, decimal.RequireFromString("9.99"), gstRate))

	errs := ValidateGST(TreatmentTaxableSupply, base, decimal.RequireFromString("9.98"), gstRate)
	assert.Len(t, errs, 1)
	assert.Contains(t, errs[0], "10.00")
}

func TestValidateGSTNonTaxableTreatments(t *testing.T) {
	base := decimal.RequireFromString("100.00")
	zero := decimal.Zero

	for _, treatment := range []GSTTreatment{TreatmentGSTFree, TreatmentInputTaxed, TreatmentOutOfScope} {
		assert.Empty(t, ValidateGST(treatment, base, zero, gstRate), "treatment %s", treatment)

		errs := ValidateGST(treatment, base, decimal.RequireFromString("1.00"), gstRate)
		assert.Len(t, errs, 1, "treatment %s", treatment)
		assert.Contains(t, errs[0], "must be zero")
	}
}

func TestValidateGSTUnknownTreatment(t *testing.T) {
	errs := ValidateGST("PAYROLL", decimal.Zero, decimal.Zero, gstRate)
	assert.Len(t, errs, 1)
	assert.Contains(t, errs[0], "unknown")
}
