package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvDefaults(t *testing.T) {
	assert.Equal(t, "fallback", GetEnv("MONITOR_TEST_UNSET", "fallback"))
	assert.Equal(t, 42, GetEnvInt("MONITOR_TEST_UNSET", 42))
	assert.True(t, GetEnvBool("MONITOR_TEST_UNSET", true))
	assert.Equal(t, time.Minute, GetEnvDuration("MONITOR_TEST_UNSET", time.Minute))
}

func TestGetEnvParsesValues(t *testing.T) {
	t.Setenv("MONITOR_TEST_INT", "7")
	assert.Equal(t, 7, GetEnvInt("MONITOR_TEST_INT", 0))

	t.Setenv("MONITOR_TEST_BOOL", "true")
	assert.True(t, GetEnvBool("MONITOR_TEST_BOOL", false))

	t.Setenv("MONITOR_TEST_DUR", "30s")
	assert.Equal(t, 30*time.Second, GetEnvDuration("MONITOR_TEST_DUR", time.Minute))

	t.Setenv("MONITOR_TEST_SLICE", "a,b,c")
	assert.Equal(t, []string{"a", "b", "c"}, GetEnvSlice("MONITOR_TEST_SLICE", nil))
}

func TestGetEnvFallsBackOnGarbage(t *testing.T) {
	t.Setenv("MONITOR_TEST_INT", "not-a-number")
	assert.Equal(t, 9, GetEnvInt("MONITOR_TEST_INT", 9))

	t.Setenv("MONITOR_TEST_DUR", "soon")
	assert.Equal(t, time.Minute, GetEnvDuration("MONITOR_TEST_DUR", time.Minute))
}
