package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banking/compliance-engine/internal/domain"
	"github.com/banking/compliance-engine/internal/service"
)

func classify(amount, gst string, category domain.TransactionCategory) service.ClassifyInput {
	return service.ClassifyInput{
		TransactionID: uuid.New(),
		Category:      category,
		BaseAmount:    decimal.RequireFromString(amount),
		GSTAmount:     decimal.RequireFromString(gst),
	}
}

func TestClassifyTaxableSupply(t *testing.T) {
	e := newEnv(t, testRiskConfig())

	det, err := e.gst.Classify(context.Background(), classify("100.00", "10.00", domain.CategoryGeneral), testActor())
	require.NoError(t, err)

	assert.Equal(t, domain.TreatmentTaxableSupply, det.Treatment)
	assert.True(t, det.Validated)
	assert.Empty(t, det.ValidationErrors)
}

func TestClassifyWithinTolerance(t *testing.T) {
	e := newEnv(t, testRiskConfig())

	det, err := e.gst.Classify(context.Background(), classify("100.00", "10.01", domain.CategoryGeneral), testActor())
	require.NoError(t, err)
	assert.True(t, det.Validated)
}

func TestClassifyGSTMismatch(t *testing.T) {
	e := newEnv(t, testRiskConfig())

	det, err := e.gst.Classify(context.Background(), classify("100.00", "9.98", domain.CategoryGeneral), testActor())
	require.NoError(t, err)

	assert.False(t, det.Validated)
	require.Len(t, det.ValidationErrors, 1)
	assert.Contains(t, det.ValidationErrors[0], "10.00")
}

func TestClassifyGSTFreeCategories(t *testing.T) {
	e := newEnv(t, testRiskConfig())

	tests := []struct {
		category domain.TransactionCategory
		want     domain.GSTTreatment
	}{
		{domain.CategoryGroceries, domain.TreatmentGSTFree},
		{domain.CategoryMedical, domain.TreatmentGSTFree},
		{domain.CategoryEducation, domain.TreatmentGSTFree},
		{domain.CategoryExport, domain.TreatmentGSTFree},
		{domain.CategoryFinancial, domain.TreatmentInputTaxed},
		{domain.CategoryResidential, domain.TreatmentInputTaxed},
		{domain.CategoryInternational, domain.TreatmentOutOfScope},
		{domain.CategoryGambling, domain.TreatmentTaxableSupply},
	}
	for _, tc := range tests {
		det, err := e.gst.Classify(context.Background(), classify("50.00", "0", tc.category), testActor())
		require.NoError(t, err)
		assert.Equal(t, tc.want, det.Treatment, "category %s", tc.category)
		assert.True(t, det.Validated || tc.want == domain.TreatmentTaxableSupply)
	}
}

func TestClassifyNonTaxableWithGSTComponent(t *testing.T) {
	e := newEnv(t, testRiskConfig())

	det, err := e.gst.Classify(context.Background(), classify("100.00", "10.00", domain.CategoryGroceries), testActor())
	require.NoError(t, err)

	assert.Equal(t, domain.TreatmentGSTFree, det.Treatment)
	assert.False(t, det.Validated)
	require.Len(t, det.ValidationErrors, 1)
	assert.Contains(t, det.ValidationErrors[0], "must be zero")
}

func TestMarkReportedInBASIdempotent(t *testing.T) {
	e := newEnv(t, testRiskConfig())

	det, err := e.gst.Classify(context.Background(), classify("100.00", "10.00", domain.CategoryGeneral), testActor())
	require.NoError(t, err)

	first, err := e.gst.MarkReportedInBAS(context.Background(), det.ID, testActor())
	require.NoError(t, err)
	assert.True(t, first.ReportedInBAS)

	second, err := e.gst.MarkReportedInBAS(context.Background(), det.ID, testActor())
	require.NoError(t, err)
	assert.True(t, second.ReportedInBAS)
}

func TestClassifyRejectsNegativeBase(t *testing.T) {
	e := newEnv(t, testRiskConfig())

	_, err := e.gst.Classify(context.Background(), classify("-5.00", "0", domain.CategoryGeneral), testActor())
	assert.True(t, domain.IsValidation(err))
}
