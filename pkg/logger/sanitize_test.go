package logger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/derekakrasi/callguard/pkg/logger"
)

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"alice@example.com", "a****@*******.com"},
		{"b@example.co.uk", "b@*******.**.uk"},
		{"no-at-sign", "[invalid-email]"},
		{"@example.com", "[invalid-email]"},
		{"alice@", "[invalid-email]"},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.want, logger.MaskEmail(tt.email))
		})
	}
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, logger.SanitizeQueryString("password=hunter2"))
	assert.True(t, logger.SanitizeQueryString("next=/home&TOKEN=abc"))
	assert.True(t, logger.SanitizeQueryString("email=alice%40example.com"))
	assert.False(t, logger.SanitizeQueryString("page=2&limit=50"))
	assert.False(t, logger.SanitizeQueryString(""))
}
