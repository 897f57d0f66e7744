package fundamentals

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptionalNumber_Sentinels(t *testing.T) {
	for _, raw := range []string{"", "None", "none", "NONE", "null", "N/A", "na", "-", "--", "  ", "not-a-number"} {
		assert.Nilf(t, ParseOptionalNumber(raw), "raw=%q", raw)
	}
}

func TestParseOptionalNumber_Values(t *testing.T) {
	v := ParseOptionalNumber("34.12")
	require.NotNil(t, v)
	assert.InDelta(t, 34.12, *v, 1e-9)

	// Zero is a real value, not an absent marker.
	z := ParseOptionalNumber("0")
	require.NotNil(t, z)
	assert.Equal(t, 0.0, *z)

	neg := ParseOptionalNumber(" -2.5 ")
	require.NotNil(t, neg)
	assert.InDelta(t, -2.5, *neg, 1e-9)

	exp := ParseOptionalNumber("3.4e12")
	require.NotNil(t, exp)
	assert.InDelta(t, 3.4e12, *exp, 1)
}

func TestNormalizeTicker(t *testing.T) {
	assert.Equal(t, "AAPL", NormalizeTicker("  aapl "))
	assert.Equal(t, "BHP.AX", NormalizeTicker("bhp.ax"))
	assert.Equal(t, "BRK.B", NormalizeTicker("brk. b"))
	assert.Equal(t, "", NormalizeTicker("   "))
}

func TestAPIError_QuotaClassification(t *testing.T) {
	tooMany := &APIError{Provider: "fmp", Endpoint: "/profile", StatusCode: 429, Message: "limit reached"}
	assert.True(t, errors.Is(tooMany, ErrQuotaExceeded))

	serverErr := &APIError{Provider: "fmp", Endpoint: "/profile", StatusCode: 500, Message: "boom"}
	assert.False(t, errors.Is(serverErr, ErrQuotaExceeded))
	assert.Contains(t, serverErr.Error(), "500")
}
