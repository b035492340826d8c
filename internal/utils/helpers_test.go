package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024年1月5日", "2024-01-05", true},
		{"2024/12/31", "2024-12-31", true},
		{"2024.3.8", "2024-03-08", true},
		{" 2024-02-29 ", "2024-02-29", true},
		{"2023-02-29", "", false},
		{"2024年13月1日", "", false},
		{"明年一月", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizeDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"500000", 500000, true},
		{"¥1,200,000.00元", 1200000, true},
		{"人民币50万元整", 500000, true},
		{"1.5亿", 150000000, true},
		{"6%", 0.06, true},
		{"USD 3,000", 3000, true},
		{"面议", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseAmount(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestNormalizeCurrency(t *testing.T) {
	for in, want := range map[string]string{"人民币": "CNY", "rmb": "CNY", "usd": "USD", "美元": "USD", "EUR": "EUR"} {
		got, ok := NormalizeCurrency(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := NormalizeCurrency("dollars")
	assert.False(t, ok)
}

func TestTruncateRunes(t *testing.T) {
	got, cut := TruncateRunes("合同编号ABC", 4)
	assert.True(t, cut)
	assert.Equal(t, "合同编号", got)

	got, cut = TruncateRunes("短", 4)
	assert.False(t, cut)
	assert.Equal(t, "短", got)
}
