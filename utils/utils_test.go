package utils

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	code1, err := GenerateCode(10)
	require.NoError(t, err)
	code2, err := GenerateCode(10)
	require.NoError(t, err)

	// Should generate different codes
	assert.NotEqual(t, code1, code2)

	// 10 bytes hex-encoded
	assert.Len(t, code1, 20)
	assert.Equal(t, strings.ToUpper(code1), code1)
}

func TestGenerateDisplayCode_Format(t *testing.T) {
	code, err := GenerateDisplayCode("test-secret")
	require.NoError(t, err)

	parts := strings.Split(code, "-")
	require.Len(t, parts, 3)
	assert.Equal(t, "BOL", parts[0])
	assert.Len(t, parts[1], 10)
	assert.Len(t, parts[2], 4)
}

func TestValidDisplayCode(t *testing.T) {
	code, err := GenerateDisplayCode("test-secret")
	require.NoError(t, err)

	assert.True(t, ValidDisplayCode(code, "test-secret"))

	// Wrong secret fails the MAC
	assert.False(t, ValidDisplayCode(code, "other-secret"))

	// A typo in the body fails the MAC
	parts := strings.Split(code, "-")
	typo := "BOL-" + flipFirstChar(parts[1]) + "-" + parts[2]
	assert.False(t, ValidDisplayCode(typo, "test-secret"))

	// Malformed inputs
	assert.False(t, ValidDisplayCode("", "test-secret"))
	assert.False(t, ValidDisplayCode("XYZ-1234567890-ABCD", "test-secret"))
	assert.False(t, ValidDisplayCode("BOL-1234567890", "test-secret"))
}

func TestValidDisplayCode_GeneratedCodesAlwaysValidate(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := GenerateDisplayCode("test-secret")
		require.NoError(t, err)
		assert.True(t, ValidDisplayCode(code, "test-secret"), "generated code should validate: %s", code)
	}
}

func flipFirstChar(s string) string {
	if s == "" {
		return s
	}
	if s[0] == '0' {
		return "1" + s[1:]
	}
	return "0" + s[1:]
}

func TestCircuitBreaker_PassesThroughWhenClosed(t *testing.T) {
	cb := NewCircuitBreaker("test")

	err := cb.Execute(context.Background(), func() error { return nil })
	assert.NoError(t, err)

	wantErr := errors.New("downstream failed")
	err = cb.Execute(context.Background(), func() error { return wantErr })
	assert.Equal(t, wantErr, err)
}

func TestCircuitBreaker_OpensAfterFailureRatio(t *testing.T) {
	cb := NewCircuitBreaker("test")
	cb.maxRequests = 5
	failure := errors.New("downstream failed")

	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func() error { return failure })
	}

	err := cb.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func BenchmarkGenerateDisplayCode(b *testing.B) {
	for i := 0; i < b.N; i++ {
		GenerateDisplayCode("bench-secret")
	}
}
