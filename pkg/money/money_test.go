package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRound(t *testing.T) {
	assert.Equal(t, "10.00", Round(decimal.RequireFromString("10.004")).StringFixed(2))
	assert.Equal(t, "10.01", Round(decimal.RequireFromString("10.005")).StringFixed(2))
}

func TestEqualAtTwoDecimals(t *testing.T) {
	a := decimal.NewFromFloat(100.0)
	b := decimal.RequireFromString("99.999")
	assert.True(t, Equal(a, b))
	assert.False(t, GreaterThan(b, a))
}

func TestShortfall(t *testing.T) {
	got := Shortfall(decimal.NewFromInt(100), decimal.RequireFromString("72.50"))
	assert.Equal(t, "27.50", got.StringFixed(2))
}
