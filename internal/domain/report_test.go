package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReportPeriodValidate(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	assert.NoError(t, ReportPeriod{Start: start, End: end}.Validate())
	assert.True(t, IsValidation(ReportPeriod{Start: end, End: start}.Validate()))
	assert.True(t, IsValidation(ReportPeriod{Start: start, End: start}.Validate()))
	assert.True(t, IsValidation(ReportPeriod{End: end}.Validate()))
}

func TestReportPeriodKey(t *testing.T) {
	p := ReportPeriod{
		Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "2025-01-01_2025-02-01", p.Key())
}
