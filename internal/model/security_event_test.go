package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThreatCategory(t *testing.T) {
	assert.Equal(t, "Critical", ThreatCategory(10))
	assert.Equal(t, "Critical", ThreatCategory(9))
	assert.Equal(t, "High", ThreatCategory(7))
	assert.Equal(t, "Medium", ThreatCategory(5))
	assert.Equal(t, "Low", ThreatCategory(3))
	assert.Equal(t, "Minimal", ThreatCategory(0))
}

func TestEventStatusFilterValid(t *testing.T) {
	assert.True(t, EventStatusFilter("").Valid())
	assert.True(t, FilterActive.Valid())
	assert.True(t, FilterResolved.Valid())
	assert.True(t, FilterBlocked.Valid())
	assert.True(t, FilterAll.Valid())
	assert.False(t, EventStatusFilter("deleted").Valid())
}

func TestSummarizeEvents(t *testing.T) {
	events := []*SecurityEvent{
		{Status: EventActive, ThreatLevel: 9},
		{Status: EventActive, ThreatLevel: 4},
		{Status: EventResolved, ThreatLevel: 8},
		{Status: EventBlocked, ThreatLevel: 3},
	}

	summary := SummarizeEvents(events)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 2, summary.ActiveThreats)
	assert.Equal(t, 2, summary.CriticalThreats)
	assert.InDelta(t, 6.0, summary.AvgThreatLevel, 0.001)
}

func TestSummarizeEventsEmpty(t *testing.T) {
	summary := SummarizeEvents(nil)
	assert.Equal(t, 0, summary.Total)
	assert.Zero(t, summary.AvgThreatLevel)
}
