package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSeverityRank(t *testing.T) {
	assert.Less(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	assert.Less(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Less(t, SeverityMedium.Rank(), SeverityLow.Rank())
	assert.Equal(t, 4, Severity("bogus").Rank())
}

func TestAlertIsOpen(t *testing.T) {
	alert := &Alert{Status: AlertActive}
	assert.True(t, alert.IsOpen())

	alert.Status = AlertAcknowledged
	assert.True(t, alert.IsOpen())

	alert.Status = AlertResolved
	assert.False(t, alert.IsOpen())
}

func TestAlertKey(t *testing.T) {
	alert := &Alert{MetricName: "cpu_usage", SourceService: "api-gateway"}
	sample := &MetricSample{MetricName: "cpu_usage", SourceService: "api-gateway"}
	assert.Equal(t, sample.Key(), alert.Key())
}

func TestSummarizeAlerts(t *testing.T) {
	now := time.Now().UTC()
	alerts := []*Alert{
		{ID: uuid.New(), Severity: SeverityCritical, Status: AlertActive, CreatedAt: now},
		{ID: uuid.New(), Severity: SeverityHigh, Status: AlertAcknowledged, CreatedAt: now},
		{ID: uuid.New(), Severity: SeverityHigh, Status: AlertResolved, CreatedAt: now},
		{ID: uuid.New(), Severity: SeverityLow, Status: AlertActive, CreatedAt: now},
	}

	stats := SummarizeAlerts(alerts)

	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 1, stats.Critical)
	assert.Equal(t, 2, stats.High)
	assert.Equal(t, 0, stats.Medium)
	assert.Equal(t, 1, stats.Low)
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 1, stats.Acknowledged)
	assert.Equal(t, 1, stats.Resolved)
}

func TestSummarizeAlertsEmpty(t *testing.T) {
	stats := SummarizeAlerts(nil)
	assert.Equal(t, AlertStats{}, stats)
}
