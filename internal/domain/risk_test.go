package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0.0, ClampScore(-0.3))
	assert.Equal(t, 0.0, ClampScore(0))
	assert.Equal(t, 0.42, ClampScore(0.42))
	assert.Equal(t, 1.0, ClampScore(1))
	assert.Equal(t, 1.0, ClampScore(1.7))
}

func TestValidMonitoringType(t *testing.T) {
	for _, v := range []MonitoringType{
		MonitoringThresholdExceeded,
		MonitoringVelocityCheck,
		MonitoringPatternDetection,
		MonitoringSuspiciousActivity,
	} {
		assert.True(t, ValidMonitoringType(v))
	}
	assert.False(t, ValidMonitoringType("SANCTIONS_HIT"))
	assert.False(t, ValidMonitoringType(""))
}
