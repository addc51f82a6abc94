package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "admin", SanitizeInput("  admin  "))
	assert.Equal(t, "&lt;b&gt;", SanitizeInput("<b>"))
}

func TestContainsSuspicious(t *testing.T) {
	assert.False(t, ContainsSuspicious("admin@example.com"))
	assert.False(t, ContainsSuspicious("security_event_resolve"))

	assert.True(t, ContainsSuspicious("<script>"))
	assert.True(t, ContainsSuspicious("SCRIPT"))
	assert.True(t, ContainsSuspicious("${jndi:ldap}"))
	assert.True(t, ContainsSuspicious("img onerror=alert(1)"))
}
