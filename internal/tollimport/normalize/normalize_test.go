package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{name: "day first dashes", raw: "05-01-2026", want: "2026-01-05", ok: true},
		{name: "day first slashes", raw: "05/01/2026", want: "2026-01-05", ok: true},
		{name: "iso", raw: "2026-01-05", want: "2026-01-05", ok: true},
		{name: "two digit year maps to 20xx", raw: "05-01-26", want: "2026-01-05", ok: true},
		{name: "date with trailing clock", raw: "05-01-2026 14:30:00", want: "2026-01-05", ok: true},
		{name: "excel serial", raw: "46027", want: "2026-01-05", ok: true},
		{name: "empty", raw: "", ok: false},
		{name: "garbage", raw: "not a date", ok: false},
		{name: "serial below window", raw: "12", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got.Format("2006-01-02"))
			}
		})
	}
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{name: "comma decimal", raw: "12,50", want: "12.50", ok: true},
		{name: "dot decimal", raw: "12.50", want: "12.50", ok: true},
		{name: "currency prefix", raw: "€ 12,50", want: "12.50", ok: true},
		{name: "thousands dot comma decimal", raw: "1.234,56", want: "1234.56", ok: true},
		{name: "negative", raw: "-3,10", want: "-3.10", ok: true},
		{name: "plain integer", raw: "7", want: "7.00", ok: true},
		{name: "empty", raw: "", ok: false},
		{name: "letters only", raw: "abc", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseMoney(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got.StringFixed(2))
			}
		})
	}
}

func TestParseVAT(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
		ok   bool
	}{
		{name: "integer percent", raw: "21", want: 21, ok: true},
		{name: "fraction scales up", raw: "0,21", want: 21, ok: true},
		{name: "fraction with dot", raw: "0.19", want: 19, ok: true},
		{name: "percent sign", raw: "21%", want: 21, ok: true},
		{name: "zero", raw: "0", want: 0, ok: true},
		{name: "empty", raw: "", ok: false},
		{name: "out of range", raw: "140", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseVAT(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestMapCountry(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "Belgie", want: "BE"},
		{raw: "België", want: "BE"},
		{raw: "belgium", want: "BE"},
		{raw: "Nederland", want: "NL"},
		{raw: "deutschland", want: "DE"},
		{raw: "FR", want: "FR"},
		{raw: "be", want: "BE"},
		{raw: "Atlantis", want: "ATLANTIS"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, MapCountry(tt.raw))
		})
	}
}

func TestDefaultVATForCountry(t *testing.T) {
	assert.Equal(t, 21, DefaultVATForCountry("BE"))
	assert.Equal(t, 21, DefaultVATForCountry("NL"))
	assert.Equal(t, 19, DefaultVATForCountry("DE"))
	assert.Equal(t, 20, DefaultVATForCountry("FR"))
	assert.Equal(t, 0, DefaultVATForCountry("CH"))
	// Unknown countries fall back to the domestic rate.
	assert.Equal(t, 21, DefaultVATForCountry("XX"))
}

func TestParseUsageTime(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{name: "clock with seconds", raw: "14:30:15", want: "14:30:15", ok: true},
		{name: "clock without seconds", raw: "9:05", want: "09:05:00", ok: true},
		{name: "fraction of day", raw: "0.5", want: "12:00:00", ok: true},
		{name: "embedded in datetime", raw: "05-01-2026 14:30", want: "14:30:00", ok: true},
		{name: "empty", raw: "", ok: false},
		{name: "out of range", raw: "25:00", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseUsageTime(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestScenarioRowNormalization(t *testing.T) {
	// A raw Belgian export row normalizes field by field.
	date, ok := ParseDate("05-01-2026")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), date)

	amount, ok := ParseMoney("12,50")
	assert.True(t, ok)
	assert.Equal(t, "12.50", amount.StringFixed(2))

	country := MapCountry("Belgie")
	assert.Equal(t, "BE", country)

	_, ok = ParseVAT("")
	assert.False(t, ok)
	assert.Equal(t, 21, DefaultVATForCountry(country))
}
