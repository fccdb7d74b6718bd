package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banking/compliance-engine/internal/domain"
	"github.com/banking/compliance-engine/internal/service"
)

func accessRequest(userID uuid.UUID) service.CreateRequestInput {
	return service.CreateRequestInput{
		UserID:             userID,
		RequestType:        domain.RequestAccess,
		VerificationMethod: "two-factor",
	}
}

func TestCreateRequestSetsDueDate(t *testing.T) {
	e := newEnv(t, testRiskConfig())

	req, err := e.privacy.CreateRequest(context.Background(), accessRequest(uuid.New()), testActor())
	require.NoError(t, err)

	assert.Equal(t, domain.RequestPending, req.Status)
	assert.Equal(t, req.RequestDate.AddDate(0, 0, 30), req.DueDate)
	assert.False(t, req.Overdue(req.RequestDate))
}

func TestCreateRequestValidation(t *testing.T) {
	e := newEnv(t, testRiskConfig())

	_, err := e.privacy.CreateRequest(context.Background(), service.CreateRequestInput{
		UserID:             uuid.New(),
		RequestType:        "PURGE",
		VerificationMethod: "two-factor",
	}, testActor())
	assert.True(t, domain.IsValidation(err))

	_, err = e.privacy.CreateRequest(context.Background(), service.CreateRequestInput{
		UserID:      uuid.New(),
		RequestType: domain.RequestAccess,
	}, testActor())
	assert.True(t, domain.IsValidation(err))

	big := make(map[string]string, 17)
	for i := 0; i < 17; i++ {
		big[string(rune('a'+i))] = "v"
	}
	_, err = e.privacy.CreateRequest(context.Background(), service.CreateRequestInput{
		UserID:             uuid.New(),
		RequestType:        domain.RequestAccess,
		VerificationMethod: "two-factor",
		Details:            domain.RequestDetails{Kind: domain.DetailScope, Extensions: big},
	}, testActor())
	assert.True(t, domain.IsValidation(err))
}

func TestProcessAccessRequestProducesExport(t *testing.T) {
	e := newEnv(t, testRiskConfig())
	userID := uuid.New()
	processor := uuid.New()

	req, err := e.privacy.CreateRequest(context.Background(), accessRequest(userID), testActor())
	require.NoError(t, err)

	done, err := e.privacy.ProcessRequest(context.Background(), req.ID, processor, service.ProcessDecision{}, testActor())
	require.NoError(t, err)

	assert.Equal(t, domain.RequestCompleted, done.Status)
	require.NotNil(t, done.ExportURL)
	assert.Contains(t, *done.ExportURL, req.ID.String())
	require.NotNil(t, done.ProcessedBy)
	assert.Equal(t, processor, *done.ProcessedBy)
	assert.Equal(t, 1, e.exports.Len())
}

func TestProcessTerminalRequestConflicts(t *testing.T) {
	e := newEnv(t, testRiskConfig())

	req, err := e.privacy.CreateRequest(context.Background(), accessRequest(uuid.New()), testActor())
	require.NoError(t, err)

	_, err = e.privacy.ProcessRequest(context.Background(), req.ID, uuid.New(), service.ProcessDecision{}, testActor())
	require.NoError(t, err)

	_, err = e.privacy.ProcessRequest(context.Background(), req.ID, uuid.New(), service.ProcessDecision{}, testActor())
	assert.True(t, domain.IsConflict(err))
}

func TestRejectRequiresReason(t *testing.T) {
	e := newEnv(t, testRiskConfig())

	req, err := e.privacy.CreateRequest(context.Background(), accessRequest(uuid.New()), testActor())
	require.NoError(t, err)

	_, err = e.privacy.ProcessRequest(context.Background(), req.ID, uuid.New(), service.ProcessDecision{Reject: true}, testActor())
	assert.True(t, domain.IsValidation(err))

	rejected, err := e.privacy.ProcessRequest(context.Background(), req.ID, uuid.New(), service.ProcessDecision{
		Reject:          true,
		RejectionReason: "identity not verified",
	}, testActor())
	require.NoError(t, err)
	assert.Equal(t, domain.RequestRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Nil(t, rejected.ExportURL)
}

func TestDeletionRequestWithdrawsConsents(t *testing.T) {
	e := newEnv(t, testRiskConfig())
	userID := uuid.New()

	_, err := e.consent.RecordConsent(context.Background(), grantInput(userID, 0), testActor())
	require.NoError(t, err)

	req, err := e.privacy.CreateRequest(context.Background(), service.CreateRequestInput{
		UserID:             userID,
		RequestType:        domain.RequestDeletion,
		VerificationMethod: "two-factor",
	}, testActor())
	require.NoError(t, err)

	done, err := e.privacy.ProcessRequest(context.Background(), req.ID, uuid.New(), service.ProcessDecision{}, testActor())
	require.NoError(t, err)
	assert.Equal(t, domain.RequestCompleted, done.Status)
	assert.Nil(t, done.ExportURL)

	active, err := e.consent.HasActiveConsent(context.Background(), userID, domain.ConsentTypeMarketing)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestCorrectionRequestNeedsFields(t *testing.T) {
	e := newEnv(t, testRiskConfig())

	req, err := e.privacy.CreateRequest(context.Background(), service.CreateRequestInput{
		UserID:             uuid.New(),
		RequestType:        domain.RequestCorrection,
		VerificationMethod: "two-factor",
	}, testActor())
	require.NoError(t, err)

	_, err = e.privacy.ProcessRequest(context.Background(), req.ID, uuid.New(), service.ProcessDecision{}, testActor())
	assert.True(t, domain.IsValidation(err))

	withFields, err := e.privacy.CreateRequest(context.Background(), service.CreateRequestInput{
		UserID:             uuid.New(),
		RequestType:        domain.RequestCorrection,
		VerificationMethod: "two-factor",
		Details: domain.RequestDetails{
			Kind:       domain.DetailCorrection,
			Extensions: map[string]string{"postal_address": "12 Example St"},
		},
	}, testActor())
	require.NoError(t, err)

	done, err := e.privacy.ProcessRequest(context.Background(), withFields.ID, uuid.New(), service.ProcessDecision{}, testActor())
	require.NoError(t, err)
	assert.Equal(t, domain.RequestCompleted, done.Status)
}
