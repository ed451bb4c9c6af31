package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestQuoteClampsBelowMinimum(t *testing.T) {
	c := New(dec("12.99"), 500, 50)
	q := c.Quote(30)
	assert.Equal(t, 50, q.Quantity)
	assert.True(t, q.Total.Equal(dec("649.50")), q.Total.String())
	assert.Equal(t, int64(64950), MinorUnits(q.Total))
}

func TestIncrementStopsAtAvailable(t *testing.T) {
	c := New(dec("12.99"), 500, 50)
	q := 499
	for i := 0; i < 3; i++ {
		q = c.Increment(q)
	}
	assert.Equal(t, 500, q)
	assert.Equal(t, 50, c.Decrement(50))
}

func TestParse(t *testing.T) {
	c := New(dec("3.10"), 100, 10)
	cases := map[string]int{
		"":      10,
		"abc":   10,
		"0":     10,
		"-5":    10,
		" 42 ":  42,
		"1000":  100,
		"10.5":  10,
		"100":   100,
		"60abc": 60,
		"+30":   30,
		"-":     10,

		"99999999999999999999":  100,
		"-99999999999999999999": 10,
	}
	for in, want := range cases {
		assert.Equal(t, want, c.Parse(in), "input %q", in)
	}
}

func TestQuoteInvariants(t *testing.T) {
	c := New(dec("7.35"), 120, 12)
	for _, in := range []int{-10, 0, 1, 11, 12, 60, 120, 121, 1 << 20} {
		q := c.Quote(in)
		require.GreaterOrEqual(t, q.Quantity, 12)
		require.LessOrEqual(t, q.Quantity, 120)
		require.True(t, q.Total.Equal(dec("7.35").Mul(decimal.NewFromInt(int64(q.Quantity)))))
	}
}

func TestNotBookable(t *testing.T) {
	assert.False(t, New(dec("1"), 0, 1).Bookable())
	assert.False(t, New(dec("1"), 10, 20).Bookable())
	assert.False(t, New(dec("1"), 10, 20).InRange(10))
	assert.True(t, New(dec("1"), 10, 0).Bookable())
}

func TestDefaultIsMinimum(t *testing.T) {
	assert.Equal(t, 25, New(dec("2"), 300, 25).Default())
}

func TestMinorUnitsExact(t *testing.T) {
	assert.Equal(t, int64(10), MinorUnits(dec("0.1")))
	assert.Equal(t, int64(3000000), MinorUnits(Total(dec("0.30"), 100000)))
}
