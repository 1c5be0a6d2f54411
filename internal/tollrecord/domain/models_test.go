package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupKeyCoversEveryFactColumn(t *testing.T) {
	date := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	base := TollRecord{
		Country:      "BE",
		LicensePlate: "AB-12-CD",
		UsageDate:    date,
		UsageTime:    "14:30:00",
		Amount:       decimal.NewFromFloat(12.50),
		VATRate:      21,
	}

	assert.Equal(t, "AB-12-CD|2026-01-05|14:30:00|BE|12.50|21", base.DedupKey())

	variants := []func(r TollRecord) TollRecord{
		func(r TollRecord) TollRecord { r.Amount = decimal.NewFromFloat(12.51); return r },
		func(r TollRecord) TollRecord { r.VATRate = 19; return r },
		func(r TollRecord) TollRecord { r.Country = "NL"; return r },
		func(r TollRecord) TollRecord { r.UsageTime = ""; return r },
		func(r TollRecord) TollRecord { r.UsageDate = date.AddDate(0, 0, 1); return r },
		func(r TollRecord) TollRecord { r.LicensePlate = "XY-98-ZZ"; return r },
	}
	for _, mutate := range variants {
		assert.NotEqual(t, base.DedupKey(), mutate(base).DedupKey())
	}
}

func TestDedupKeyNormalizesCase(t *testing.T) {
	date := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	amount := decimal.NewFromFloat(12.5)

	assert.Equal(t,
		DedupKey("ab-12-cd", date, "", "be", amount, 21),
		DedupKey("AB-12-CD", date, "", "BE", amount, 21),
	)
}

func TestWeekID(t *testing.T) {
	// 2026-01-05 is the Monday of ISO week 2.
	assert.Equal(t, "2026-02", WeekID(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)))
	// Week 1 of 2026 starts in calendar year 2025.
	assert.Equal(t, "2026-01", WeekID(time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC)))

	year, week, ok := ParseWeekID("2026-02")
	require.True(t, ok)
	assert.Equal(t, 2026, year)
	assert.Equal(t, 2, week)

	_, _, ok = ParseWeekID("garbage")
	assert.False(t, ok)
}

func TestGroupRecords(t *testing.T) {
	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	tuesday := monday.AddDate(0, 0, 1)

	records := []TollRecord{
		{ID: 1, LicensePlate: "AB-12-CD", Country: "BE", VATRate: 21, UsageDate: monday, WeekID: WeekID(monday), Amount: decimal.NewFromFloat(12.50)},
		{ID: 2, LicensePlate: "AB-12-CD", Country: "BE", VATRate: 21, UsageDate: monday, WeekID: WeekID(monday), Amount: decimal.NewFromFloat(8.20)},
		{ID: 3, LicensePlate: "AB-12-CD", Country: "BE", VATRate: 21, UsageDate: tuesday, WeekID: WeekID(tuesday), Amount: decimal.NewFromFloat(3.30)},
		{ID: 4, LicensePlate: "XY-98-ZZ", Country: "BE", VATRate: 21, UsageDate: monday, WeekID: WeekID(monday), Amount: decimal.NewFromFloat(9.99)},
	}

	groups := GroupRecords(records)
	require.Len(t, groups, 3)

	// First-appearance order is stable.
	assert.Equal(t, "monday", groups[0].Key.Weekday)
	assert.Equal(t, "AB-12-CD", groups[0].Key.Plate)
	assert.Equal(t, "20.70", groups[0].Total().StringFixed(2))
	assert.Len(t, groups[0].RecordIDs(), 2)
	assert.Equal(t, monday, groups[0].Date())

	assert.Equal(t, "tuesday", groups[1].Key.Weekday)
	assert.Equal(t, "XY-98-ZZ", groups[2].Key.Plate)
}
