package service_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banking/compliance-engine/internal/domain"
)

func testEntry(actor uuid.UUID) *domain.AuditLogEntry {
	entry := domain.NewAuditLogEntry(actor, domain.OperationQuery, domain.ResourceAuditLog, "test")
	entry.IPAddress = "10.0.0.1"
	return entry
}

func TestRecordAndQueryRoundtrip(t *testing.T) {
	e := newEnv(t, testRiskConfig())
	actor := uuid.New()

	require.NoError(t, e.audit.Record(context.Background(), testEntry(actor)))

	page, err := e.audit.Query(context.Background(), domain.AuditFilter{ActorUserID: &actor})
	require.NoError(t, err)
	require.Equal(t, int64(1), page.TotalCount)
	assert.NotEmpty(t, page.Entries[0].Signature)
}

func TestRecordRetriesTransientFailures(t *testing.T) {
	e := newEnv(t, testRiskConfig())
	e.auditLog.FailAppend = errors.New("connection reset")
	e.auditLog.FailAppendTimes = 2

	require.NoError(t, e.audit.Record(context.Background(), testEntry(uuid.New())))

	assert.Equal(t, 3, e.auditLog.AppendAttempts())
	assert.Equal(t, 1, e.auditLog.Len())
	assert.Empty(t, e.alerts.Alerts())
}

func TestRecordEscalatesAfterExhaustedRetries(t *testing.T) {
	e := newEnv(t, testRiskConfig())
	e.auditLog.FailAppend = errors.New("disk full")

	err := e.audit.Record(context.Background(), testEntry(uuid.New()))
	require.Error(t, err)
	assert.True(t, domain.IsPersistence(err))

	alerts := e.alerts.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "AUDIT_WRITE_FAILURE", alerts[0].Kind)
	assert.Equal(t, 0, e.auditLog.Len())
}

func TestQueryDetectsTampering(t *testing.T) {
	e := newEnv(t, testRiskConfig())

	entry := testEntry(uuid.New())
	entry.Signature = "deadbeef"
	entry.Timestamp = time.Now().UTC()
	require.NoError(t, e.auditLog.Append(context.Background(), entry))

	_, err := e.audit.Query(context.Background(), domain.AuditFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "integrity")
}

func TestSealSnapshotsRoundtrip(t *testing.T) {
	e := newEnv(t, testRiskConfig())

	entry := testEntry(uuid.New())
	require.NoError(t, e.audit.SealSnapshots(entry, map[string]string{"status": "GRANTED"}, map[string]string{"status": "WITHDRAWN"}))
	require.NotEmpty(t, entry.PreviousData)
	require.NotEmpty(t, entry.CurrentData)

	// Sealed snapshots are opaque without the key.
	assert.NotContains(t, string(entry.CurrentData), "WITHDRAWN")

	plain, err := e.signer.Open(entry.CurrentData, entry.KeyVersion)
	require.NoError(t, err)
	assert.Contains(t, string(plain), "WITHDRAWN")
}

func TestExportCSVColumns(t *testing.T) {
	e := newEnv(t, testRiskConfig())
	actor := uuid.New()

	require.NoError(t, e.audit.Record(context.Background(), testEntry(actor)))
	require.NoError(t, e.audit.Record(context.Background(), testEntry(actor)))

	var buf bytes.Buffer
	n, err := e.audit.ExportCSV(context.Background(), domain.AuditFilter{ActorUserID: &actor}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"timestamp", "actor", "operation", "resource", "success"}, rows[0])
	for _, row := range rows[1:] {
		assert.Len(t, row, 5)
		assert.Equal(t, actor.String(), row[1])
		assert.Equal(t, "true", row[4])
	}
}
