package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConsentCanTransition(t *testing.T) {
	rec := &ConsentRecord{Status: ConsentGranted}
	assert.True(t, rec.CanTransition(ConsentWithdrawn))
	assert.True(t, rec.CanTransition(ConsentExpired))
	assert.False(t, rec.CanTransition(ConsentGranted))

	rec.Status = ConsentWithdrawn
	assert.False(t, rec.CanTransition(ConsentGranted))
	assert.False(t, rec.CanTransition(ConsentExpired))

	rec.Status = ConsentExpired
	assert.False(t, rec.CanTransition(ConsentWithdrawn))
}

func TestConsentIsActive(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	later := now.Add(24 * time.Hour)

	rec := &ConsentRecord{Status: ConsentGranted}
	assert.True(t, rec.IsActive(now))

	rec.ExpiresAt = &later
	assert.True(t, rec.IsActive(now))
	assert.False(t, rec.IsActive(later.Add(time.Second)))

	rec.Status = ConsentWithdrawn
	rec.ExpiresAt = nil
	assert.False(t, rec.IsActive(now))
}
