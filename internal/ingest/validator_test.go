package ingest

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monitor-engine/internal/model"
)

func validSample() *model.MetricSample {
	return &model.MetricSample{
		MetricType:        "system",
		MetricName:        "cpu_usage",
		MetricValue:       42.5,
		SourceService:     "api-gateway",
		WarningThreshold:  70,
		CriticalThreshold: 90,
		ObservedAt:        time.Now().UTC(),
	}
}

func TestValidateAcceptsWellFormedSample(t *testing.T) {
	v := NewValidator(5 * time.Minute)
	assert.NoError(t, v.Validate(validSample()))
}

func TestValidateRequiredFields(t *testing.T) {
	v := NewValidator(5 * time.Minute)

	s := validSample()
	s.MetricType = ""
	assert.ErrorIs(t, v.Validate(s), model.ErrInvalidSample)

	s = validSample()
	s.MetricName = ""
	assert.ErrorIs(t, v.Validate(s), model.ErrInvalidSample)

	s = validSample()
	s.SourceService = ""
	assert.ErrorIs(t, v.Validate(s), model.ErrInvalidSample)
}

func TestValidateRejectsNonFiniteValues(t *testing.T) {
	v := NewValidator(5 * time.Minute)

	s := validSample()
	s.MetricValue = math.NaN()
	assert.ErrorIs(t, v.Validate(s), model.ErrInvalidSample)

	s = validSample()
	s.MetricValue = math.Inf(1)
	assert.ErrorIs(t, v.Validate(s), model.ErrInvalidSample)

	s = validSample()
	s.MetricValue = math.Inf(-1)
	assert.ErrorIs(t, v.Validate(s), model.ErrInvalidSample)
}

func TestValidateStampsZeroTimestamp(t *testing.T) {
	v := NewValidator(5 * time.Minute)

	s := validSample()
	s.ObservedAt = time.Time{}
	require.NoError(t, v.Validate(s))
	assert.False(t, s.ObservedAt.IsZero())
	assert.WithinDuration(t, time.Now().UTC(), s.ObservedAt, time.Second)
}

func TestValidateRejectsFarFutureTimestamp(t *testing.T) {
	v := NewValidator(5 * time.Minute)

	s := validSample()
	s.ObservedAt = time.Now().UTC().Add(10 * time.Minute)
	assert.ErrorIs(t, v.Validate(s), model.ErrInvalidSample)

	// Within the allowed skew is fine.
	s = validSample()
	s.ObservedAt = time.Now().UTC().Add(time.Minute)
	assert.NoError(t, v.Validate(s))
}

func TestValidateNegativeValuesAllowed(t *testing.T) {
	v := NewValidator(5 * time.Minute)
	s := validSample()
	s.MetricValue = -12.5
	assert.NoError(t, v.Validate(s))
}
