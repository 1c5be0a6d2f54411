package matcher

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/tollsync/internal/config"
	invoicingdomain "github.com/fleetops/tollsync/internal/invoicing/domain"
	reconciledomain "github.com/fleetops/tollsync/internal/reconcile/domain"
	tollrecorddomain "github.com/fleetops/tollsync/internal/tollrecord/domain"
)

func newMatcher(t *testing.T) *Matcher {
	t.Helper()
	m, err := New(config.DefaultEngineConfig().InvoiceReference)
	require.NoError(t, err)
	return m
}

func TestParseReference(t *testing.T) {
	m := newMatcher(t)

	tests := []struct {
		name string
		ref  string
		want Reference
		ok   bool
	}{
		{
			name: "canonical form",
			ref:  "Week 02 - 2026 (AB-12-CD)",
			want: Reference{Week: 2, Year: 2026, Plate: "AB12CD"},
			ok:   true,
		},
		{
			name: "lowercase and unpadded",
			ref:  "week 2-2026 (ab-12-cd)",
			want: Reference{Week: 2, Year: 2026, Plate: "AB12CD"},
			ok:   true,
		},
		{
			name: "embedded in longer reference",
			ref:  "Invoice 2026-0031 / Week 15 - 2026 (XY-98-ZZ) transport",
			want: Reference{Week: 15, Year: 2026, Plate: "XY98ZZ"},
			ok:   true,
		},
		{name: "no week marker", ref: "Invoice 2026-0031", ok: false},
		{name: "week out of range", ref: "Week 54 - 2026 (AB-12-CD)", ok: false},
		{name: "empty", ref: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.ParseReference(tt.ref)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func snowflakeID(v int64) snowflake.ID {
	return snowflake.ID(v)
}

func groupKey(weekID, weekday, plate string) tollrecorddomain.GroupKey {
	return tollrecorddomain.GroupKey{
		WeekID:  weekID,
		Weekday: weekday,
		Plate:   plate,
		Country: "BE",
		VATRate: 21,
	}
}

func TestFindTarget(t *testing.T) {
	m := newMatcher(t)
	key := groupKey("2026-02", "monday", "AB-12-CD")

	concept := func(id int64, ref string) invoicingdomain.Invoice {
		return invoicingdomain.Invoice{
			ID:        snowflakeID(id),
			Reference: ref,
			Status:    invoicingdomain.InvoiceStatusConcept,
		}
	}

	t.Run("single match", func(t *testing.T) {
		invoices := []invoicingdomain.Invoice{
			concept(1, "Week 01 - 2026 (AB-12-CD)"),
			concept(2, "Week 02 - 2026 (AB-12-CD)"),
			concept(3, "Week 02 - 2026 (XY-98-ZZ)"),
		}
		target, reason := m.FindTarget(invoices, key)
		require.NotNil(t, target)
		assert.Equal(t, snowflakeID(2), target.ID)
		assert.Empty(t, reason)
	})

	t.Run("no match", func(t *testing.T) {
		invoices := []invoicingdomain.Invoice{
			concept(1, "Week 01 - 2026 (AB-12-CD)"),
		}
		target, reason := m.FindTarget(invoices, key)
		assert.Nil(t, target)
		assert.Equal(t, reconciledomain.ReasonNoTarget, reason)
	})

	t.Run("ambiguous is surfaced not guessed", func(t *testing.T) {
		invoices := []invoicingdomain.Invoice{
			concept(1, "Week 02 - 2026 (AB-12-CD)"),
			concept(2, "Week 02 - 2026 (AB-12-CD) herzien"),
		}
		target, reason := m.FindTarget(invoices, key)
		assert.Nil(t, target)
		assert.Equal(t, reconciledomain.ReasonAmbiguousTarget, reason)
	})

	t.Run("non concept invoices are ignored", func(t *testing.T) {
		sent := concept(1, "Week 02 - 2026 (AB-12-CD)")
		sent.Status = invoicingdomain.InvoiceStatusSent
		target, reason := m.FindTarget([]invoicingdomain.Invoice{sent}, key)
		assert.Nil(t, target)
		assert.Equal(t, reconciledomain.ReasonNoTarget, reason)
	})
}

func TestLineDescriptionRoundTrips(t *testing.T) {
	m := newMatcher(t)
	key := groupKey("2026-02", "monday", "AB-12-CD")
	date := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	desc := m.LineDescription(key, date)
	assert.True(t, m.MatchesCharge(desc, key, date))
}

func TestMatchesCharge(t *testing.T) {
	m := newMatcher(t)
	key := groupKey("2026-02", "monday", "AB-12-CD")
	date := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		desc string
		want bool
	}{
		{
			name: "dutch weekday and day first date",
			desc: "Tol maandag 05-01-2026 BE (21% btw)",
			want: true,
		},
		{
			name: "week label instead of date",
			desc: "Toll charges monday week 02 BE 21%",
			want: true,
		},
		{
			name: "wrong weekday",
			desc: "Toll charges tuesday 2026-01-05 BE (21% VAT)",
			want: false,
		},
		{
			name: "wrong vat rate",
			desc: "Toll charges monday 2026-01-05 BE (19% VAT)",
			want: false,
		},
		{
			name: "country embedded in word does not count",
			desc: "Toll charges monday 2026-01-05 BEST (21% VAT)",
			want: false,
		},
		{
			name: "unrelated line",
			desc: "Transport services january",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.MatchesCharge(tt.desc, key, date))
		})
	}
}

func TestIsPlaceholder(t *testing.T) {
	m := newMatcher(t)
	date := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	zero := decimal.Zero
	charged := decimal.NewFromFloat(12.50)

	tests := []struct {
		name string
		line invoicingdomain.InvoiceLine
		want bool
	}{
		{
			name: "zero toll line with date label",
			line: invoicingdomain.InvoiceLine{Description: "Tol 05-01-2026", Quantity: zero, UnitPrice: zero},
			want: true,
		},
		{
			name: "charged line is not a placeholder",
			line: invoicingdomain.InvoiceLine{Description: "Tol 05-01-2026", Quantity: decimal.NewFromInt(1), UnitPrice: charged},
			want: false,
		},
		{
			name: "zero line without toll tag",
			line: invoicingdomain.InvoiceLine{Description: "Korting 05-01-2026", Quantity: zero, UnitPrice: zero},
			want: false,
		},
		{
			name: "zero toll line for another date",
			line: invoicingdomain.InvoiceLine{Description: "Tol 06-01-2026", Quantity: zero, UnitPrice: zero},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.IsPlaceholder(tt.line, date))
		})
	}
}
