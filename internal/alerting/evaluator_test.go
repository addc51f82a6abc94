package alerting

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"monitor-engine/internal/model"
)

func sample(value, warning, critical float64) *model.MetricSample {
	return &model.MetricSample{
		MetricType:        "system",
		MetricName:        "cpu_usage",
		MetricValue:       value,
		SourceService:     "api-gateway",
		WarningThreshold:  warning,
		CriticalThreshold: critical,
	}
}

func TestEvaluateNormal(t *testing.T) {
	v := Evaluate(sample(50, 70, 90))
	assert.False(t, v.IsWarning)
	assert.False(t, v.IsCritical)
	assert.Equal(t, model.SeverityNormal, v.Severity)
	assert.False(t, v.Breaching())
}

func TestEvaluateWarning(t *testing.T) {
	v := Evaluate(sample(75, 70, 90))
	assert.True(t, v.IsWarning)
	assert.False(t, v.IsCritical)
	assert.Equal(t, model.SeverityHigh, v.Severity)
	assert.True(t, v.Breaching())
}

func TestEvaluateCriticalWinsOverWarning(t *testing.T) {
	v := Evaluate(sample(95, 70, 90))
	assert.True(t, v.IsWarning)
	assert.True(t, v.IsCritical)
	assert.Equal(t, model.SeverityCritical, v.Severity)
}

func TestEvaluateThresholdIsInclusive(t *testing.T) {
	assert.Equal(t, model.SeverityHigh, Evaluate(sample(70, 70, 90)).Severity)
	assert.Equal(t, model.SeverityCritical, Evaluate(sample(90, 70, 90)).Severity)
}
