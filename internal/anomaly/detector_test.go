package anomaly

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectHiddenTax(t *testing.T) {
	// $55,250.00 at 10.5% should expose a $50,000.00 base and $5,250.00 of tax.
	result := Detect(5_525_000, 0, 0.105)

	assert.True(t, result.Flagged)
	assert.Equal(t, int64(5_000_000), result.ImpliedBase)
	assert.Equal(t, int64(525_000), result.ImpliedTax)
}

func TestDetectSmallInvoice(t *testing.T) {
	// $110.50 at 10.5% is exactly $100.00 plus tax.
	result := Detect(11_050, 0, 0.105)

	assert.True(t, result.Flagged)
	assert.Equal(t, int64(10_000), result.ImpliedBase)
	assert.Equal(t, int64(1_050), result.ImpliedTax)
}

func TestDetectNotFlagged(t *testing.T) {
	tests := []struct {
		name      string
		total     int64
		taxAmount int64
		rate      float64
	}{
		{
			name:      "tax already itemized",
			total:     5_525_000,
			taxAmount: 525_000,
			rate:      0.105,
		},
		{
			name:  "implied base has loose cents",
			total: 50_000, // $500.00 / 1.105 = $452.49
			rate:  0.105,
		},
		{
			name:  "total is rounder than the implied base",
			total: 10_000_000, // $100,000.00 even
			rate:  0.0825,
		},
		{
			name:  "zero total",
			total: 0,
			rate:  0.105,
		},
		{
			name:  "negative total",
			total: -11_050,
			rate:  0.105,
		},
		{
			name:  "zero rate",
			total: 11_050,
			rate:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Detect(tt.total, tt.taxAmount, tt.rate)
			assert.False(t, result.Flagged)
			assert.Zero(t, result.ImpliedBase)
			assert.Zero(t, result.ImpliedTax)
		})
	}
}

func TestGranularity(t *testing.T) {
	assert.Equal(t, int64(0), granularity(12_345))       // $123.45
	assert.Equal(t, int64(100), granularity(12_300))     // $123.00
	assert.Equal(t, int64(1_000), granularity(55_250_00)) // $55,250.00
	assert.Equal(t, int64(1_000_000), granularity(5_000_000))
}
