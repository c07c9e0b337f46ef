package commission

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculate_TenPercentScenario(t *testing.T) {
	q := FlatSchedule(d("0.10")).Calculate(d("10"), d("1.0"))

	assert.True(t, q.Commission.Equal(d("1")), "commission = %s", q.Commission)
	assert.True(t, q.NetAmount.Equal(d("9.0")), "net = %s", q.NetAmount)
	assert.True(t, q.NetTokens.Equal(d("9")))
	assert.True(t, q.CommissionPercentage.Equal(d("0.10")))
}

func TestCalculate_ZeroInputs(t *testing.T) {
	s := DefaultSchedule()

	tests := []struct {
		name   string
		amount string
		price  string
	}{
		{"zero amount", "0", "2.35"},
		{"zero price", "25", "0"},
		{"both zero", "0", "0"},
		{"negative amount", "-5", "2"},
		{"negative price", "5", "-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := s.Calculate(d(tt.amount), d(tt.price))
			assert.True(t, q.NetAmount.IsZero(), "expected zero net amount, got %s", q.NetAmount)
		})
	}
}

func TestCalculate_MonotonicInAmount(t *testing.T) {
	price := d("1.73")
	for _, s := range []Schedule{FlatSchedule(d("0.10")), DefaultSchedule()} {
		prev := decimal.Zero
		for i := 0; i <= 600; i++ {
			amount := decimal.NewFromInt(int64(i)).Div(decimal.NewFromInt(2))
			q := s.Calculate(amount, price)
			assert.True(t, q.NetAmount.GreaterThanOrEqual(prev),
				"schedule %s: net amount decreased at %s (%s < %s)", s, amount, q.NetAmount, prev)
			prev = q.NetAmount
		}
	}
}

func TestSchedule_Percentage(t *testing.T) {
	s := DefaultSchedule()

	assert.True(t, s.Percentage(d("0")).Equal(d("0.10")))
	assert.True(t, s.Percentage(d("49.99")).Equal(d("0.10")))
	assert.True(t, s.Percentage(d("50")).Equal(d("0.08")))
	assert.True(t, s.Percentage(d("199.5")).Equal(d("0.08")))
	assert.True(t, s.Percentage(d("200")).Equal(d("0.06")))
	assert.True(t, s.Percentage(d("100000")).Equal(d("0.06")))
}

func TestParseSchedule(t *testing.T) {
	s, err := ParseSchedule(" 0:0.1 , 100:0.05 ")
	require.NoError(t, err)
	require.Len(t, s, 2)
	assert.Equal(t, "0:0.1,100:0.05", s.String())

	invalid := []string{
		"",
		"0-0.1",
		"10:0.1",
		"0:1",
		"0:-0.1",
		"0:0.1,0:0.05",
		"0:0.1,50:abc",
	}
	for _, spec := range invalid {
		_, err := ParseSchedule(spec)
		assert.Error(t, err, "spec %q should be rejected", spec)
	}
}

// Importing the package must not change how decimals encode elsewhere.
func TestQuote_LeavesDecimalEncodingAlone(t *testing.T) {
	assert.False(t, decimal.MarshalJSONWithoutQuotes)

	data, err := json.Marshal(FlatSchedule(d("0.10")).Calculate(d("10"), d("2")))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"amount":"10"`)
}
