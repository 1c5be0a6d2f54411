// Package domain contains persistence models for toll usage facts.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// TollRecord is one normalized toll-usage fact. The fact columns are
// immutable once created; only the application link fields change after
// insert, and deletion requires an explicit operator action.
type TollRecord struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	Country      string          `gorm:"type:text;not null;uniqueIndex:ux_toll_records_fact" json:"country"`
	LicensePlate string          `gorm:"type:text;not null;uniqueIndex:ux_toll_records_fact;index:ix_toll_records_week_plate" json:"license_plate"`
	UsageDate    time.Time       `gorm:"not null;uniqueIndex:ux_toll_records_fact" json:"usage_date"`
	UsageTime    string          `gorm:"type:text;not null;default:'';uniqueIndex:ux_toll_records_fact" json:"usage_time,omitempty"`
	Amount       decimal.Decimal `gorm:"type:numeric(12,2);not null;uniqueIndex:ux_toll_records_fact" json:"amount"`
	VATRate      int             `gorm:"not null;uniqueIndex:ux_toll_records_fact" json:"vat_rate"`
	WeekID       string          `gorm:"type:text;not null;index:ix_toll_records_week_plate" json:"week_id"`
	Source       string          `gorm:"type:text" json:"source"`

	Metadata datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`

	AppliedInvoiceID *snowflake.ID `gorm:"index" json:"applied_invoice_id,omitempty"`
	AppliedAt        *time.Time    `json:"applied_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (TollRecord) TableName() string { return "toll_records" }

// Applied reports whether the record carries an active application link.
func (r TollRecord) Applied() bool { return r.AppliedInvoiceID != nil }

// DedupKey is the content-derived composite key that prevents re-importing
// the same fact twice. It covers every fact column; two records differing in
// any one of them never collide.
func (r TollRecord) DedupKey() string {
	return DedupKey(r.LicensePlate, r.UsageDate, r.UsageTime, r.Country, r.Amount, r.VATRate)
}

func DedupKey(plate string, date time.Time, usageTime, country string, amount decimal.Decimal, vatRate int) string {
	return strings.Join([]string{
		strings.ToUpper(strings.TrimSpace(plate)),
		date.Format("2006-01-02"),
		usageTime,
		strings.ToUpper(strings.TrimSpace(country)),
		amount.StringFixed(2),
		fmt.Sprintf("%d", vatRate),
	}, "|")
}

// GroupKey identifies the billing granularity for toll charges: all records
// sharing a key bill as one invoice line.
type GroupKey struct {
	WeekID  string `json:"week_id"`
	Weekday string `json:"weekday"`
	Plate   string `json:"license_plate"`
	Country string `json:"country"`
	VATRate int    `json:"vat_rate"`
}

// Group aggregates the records sharing one GroupKey.
type Group struct {
	Key     GroupKey     `json:"key"`
	Records []TollRecord `json:"records"`
}

// Total is the sum of the member records' amounts.
func (g Group) Total() decimal.Decimal {
	total := decimal.Zero
	for _, r := range g.Records {
		total = total.Add(r.Amount)
	}
	return total
}

// Date returns the calendar date the group bills for. Week plus weekday pin
// a single date, so every member record carries the same one.
func (g Group) Date() time.Time {
	if len(g.Records) == 0 {
		return time.Time{}
	}
	return g.Records[0].UsageDate
}

// RecordIDs lists the member record identifiers.
func (g Group) RecordIDs() []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(g.Records))
	for _, r := range g.Records {
		ids = append(ids, r.ID)
	}
	return ids
}

// GroupKeyOf derives the group key for a record.
func GroupKeyOf(r TollRecord) GroupKey {
	return GroupKey{
		WeekID:  r.WeekID,
		Weekday: WeekdayName(r.UsageDate),
		Plate:   r.LicensePlate,
		Country: r.Country,
		VATRate: r.VATRate,
	}
}

// GroupRecords buckets records by group key. Group order follows first
// appearance so results are reproducible.
func GroupRecords(records []TollRecord) []Group {
	index := make(map[GroupKey]int, len(records))
	groups := make([]Group, 0, len(records))
	for _, r := range records {
		key := GroupKeyOf(r)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key})
		}
		groups[i].Records = append(groups[i].Records, r)
	}
	return groups
}

// WeekID derives the deterministic ISO week identifier, e.g. "2026-02".
func WeekID(date time.Time) string {
	year, week := date.ISOWeek()
	return fmt.Sprintf("%d-%02d", year, week)
}

// ParseWeekID splits a week identifier back into ISO year and week.
func ParseWeekID(weekID string) (year, week int, ok bool) {
	if _, err := fmt.Sscanf(weekID, "%d-%d", &year, &week); err != nil {
		return 0, 0, false
	}
	return year, week, week >= 1 && week <= 53
}

// WeekdayName returns the lowercase weekday name used in group keys and
// invoice line descriptions.
func WeekdayName(date time.Time) string {
	return strings.ToLower(date.Weekday().String())
}
