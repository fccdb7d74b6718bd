package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banking/compliance-engine/internal/domain"
	"github.com/banking/compliance-engine/internal/service"
)

func grantInput(userID uuid.UUID, expiryDays int) service.RecordConsentInput {
	return service.RecordConsentInput{
		UserID:         userID,
		ConsentType:    domain.ConsentTypeMarketing,
		Purposes:       []string{"email campaigns"},
		DataCategories: []string{"contact details"},
		ExpiryDays:     expiryDays,
	}
}

func TestRecordConsent(t *testing.T) {
	e := newEnv(t, testRiskConfig())
	userID := uuid.New()

	rec, err := e.consent.RecordConsent(context.Background(), grantInput(userID, 30), testActor())
	require.NoError(t, err)

	assert.Equal(t, domain.ConsentGranted, rec.Status)
	require.NotNil(t, rec.ExpiresAt)
	assert.True(t, rec.ExpiresAt.After(rec.GrantedAt))
	assert.Equal(t, "10.0.0.1", rec.IPAddress)
}

func TestRecordConsentValidation(t *testing.T) {
	e := newEnv(t, testRiskConfig())

	_, err := e.consent.RecordConsent(context.Background(), service.RecordConsentInput{
		UserID:      uuid.New(),
		ConsentType: "NEWSLETTER",
		Purposes:    []string{"x"},
	}, testActor())
	assert.True(t, domain.IsValidation(err))

	_, err = e.consent.RecordConsent(context.Background(), service.RecordConsentInput{
		UserID:      uuid.New(),
		ConsentType: domain.ConsentTypeMarketing,
	}, testActor())
	assert.True(t, domain.IsValidation(err))
}

func TestWithdrawConsent(t *testing.T) {
	e := newEnv(t, testRiskConfig())
	userID := uuid.New()

	granted, err := e.consent.RecordConsent(context.Background(), grantInput(userID, 0), testActor())
	require.NoError(t, err)

	withdrawn, err := e.consent.WithdrawConsent(context.Background(), userID, domain.ConsentTypeMarketing, "changed my mind", testActor())
	require.NoError(t, err)

	assert.Equal(t, granted.ID, withdrawn.ID)
	assert.Equal(t, domain.ConsentWithdrawn, withdrawn.Status)
	require.NotNil(t, withdrawn.WithdrawnAt)
	require.NotNil(t, withdrawn.WithdrawReason)
	assert.Equal(t, "changed my mind", *withdrawn.WithdrawReason)

	// Terminal states never revert; a second withdraw finds nothing active.
	_, err = e.consent.WithdrawConsent(context.Background(), userID, domain.ConsentTypeMarketing, "", testActor())
	assert.True(t, domain.IsConflict(err))
}

func TestWithdrawWithoutActiveConsent(t *testing.T) {
	e := newEnv(t, testRiskConfig())

	_, err := e.consent.WithdrawConsent(context.Background(), uuid.New(), domain.ConsentTypeAnalytics, "", testActor())
	assert.True(t, domain.IsConflict(err))
}

func TestFreshGrantAfterWithdrawal(t *testing.T) {
	e := newEnv(t, testRiskConfig())
	userID := uuid.New()

	first, err := e.consent.RecordConsent(context.Background(), grantInput(userID, 0), testActor())
	require.NoError(t, err)
	_, err = e.consent.WithdrawConsent(context.Background(), userID, domain.ConsentTypeMarketing, "", testActor())
	require.NoError(t, err)

	second, err := e.consent.RecordConsent(context.Background(), grantInput(userID, 0), testActor())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	// History keeps both records.
	history, err := e.consent.ListConsents(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestExpireOldConsents(t *testing.T) {
	e := newEnv(t, testRiskConfig())
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(24 * time.Hour)

	expired := &domain.ConsentRecord{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		ConsentType: domain.ConsentTypeMarketing,
		Purposes:    []string{"email"},
		Status:      domain.ConsentGranted,
		GrantedAt:   now.Add(-48 * time.Hour),
		ExpiresAt:   &past,
		CreatedAt:   now.Add(-48 * time.Hour),
	}
	active := &domain.ConsentRecord{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		ConsentType: domain.ConsentTypeAnalytics,
		Purposes:    []string{"product analytics"},
		Status:      domain.ConsentGranted,
		GrantedAt:   now,
		ExpiresAt:   &future,
		CreatedAt:   now,
	}
	require.NoError(t, e.consents.Create(context.Background(), expired))
	require.NoError(t, e.consents.Create(context.Background(), active))

	count, err := e.consent.ExpireOldConsents(context.Background(), testActor())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := e.consents.GetByID(context.Background(), expired.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConsentExpired, got.Status)

	still, err := e.consents.GetByID(context.Background(), active.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConsentGranted, still.Status)

	// Idempotent: a second sweep finds nothing due.
	count, err = e.consent.ExpireOldConsents(context.Background(), testActor())
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestHasActiveConsent(t *testing.T) {
	e := newEnv(t, testRiskConfig())
	userID := uuid.New()

	ok, err := e.consent.HasActiveConsent(context.Background(), userID, domain.ConsentTypeMarketing)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = e.consent.RecordConsent(context.Background(), grantInput(userID, 0), testActor())
	require.NoError(t, err)

	ok, err = e.consent.HasActiveConsent(context.Background(), userID, domain.ConsentTypeMarketing)
	require.NoError(t, err)
	assert.True(t, ok)
}
