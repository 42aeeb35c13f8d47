package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetOperator(t *testing.T) {
	cases := []struct {
		number   string
		operator string
	}{
		{"771234567", "Orange"},
		{"781234567", "Orange"},
		{"761234567", "Free"},
		{"701234567", "Expresso"},
		{"751234567", "ProMobile"},
	}

	for _, c := range cases {
		op, ok := GetOperator(c.number)
		assert.True(t, ok, c.number)
		assert.Equal(t, c.operator, op.Name)
	}

	t.Run("formatted input", func(t *testing.T) {
		op, ok := GetOperator("77 123 45 67")
		assert.True(t, ok)
		assert.Equal(t, "Orange", op.Name)
	})

	t.Run("unknown prefix", func(t *testing.T) {
		_, ok := GetOperator("691234567")
		assert.False(t, ok)
	})

	t.Run("wrong length", func(t *testing.T) {
		_, ok := GetOperator("7712345")
		assert.False(t, ok)
	})
}

func TestIsValidPhoneNumber(t *testing.T) {
	assert.True(t, IsValidPhoneNumber("771234567"))
	assert.True(t, IsValidPhoneNumber("70 123 45 67"))
	assert.False(t, IsValidPhoneNumber("871234567"))
	assert.False(t, IsValidPhoneNumber("77123456"))
	assert.False(t, IsValidPhoneNumber("7712345678"))
	assert.False(t, IsValidPhoneNumber(""))
}

func TestFormatPhoneNumber(t *testing.T) {
	assert.Equal(t, "77 123 45 67", FormatPhoneNumber("771234567"))
	assert.Equal(t, "77 123 45 67", FormatPhoneNumber("77-123-45-67"))
	assert.Equal(t, "7712345", FormatPhoneNumber("7712345"))
}

func TestNormalizePhoneNumber(t *testing.T) {
	assert.Equal(t, "771234567", NormalizePhoneNumber("+221 77 123 45 67"))
	assert.Equal(t, "771234567", NormalizePhoneNumber("771234567"))
	assert.Equal(t, "761234567", NormalizePhoneNumber("76 123 45 67"))
}
