// Package matcher contains the free-text heuristics that tie toll groups to
// invoices and invoice lines. Description matching is substring-based and
// inherently fuzzy, so every check lives here behind a table-driven rule set
// and stays out of the apply state machine.
package matcher

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	invoicingdomain "github.com/fleetops/tollsync/internal/invoicing/domain"
	reconciledomain "github.com/fleetops/tollsync/internal/reconcile/domain"
	tollrecorddomain "github.com/fleetops/tollsync/internal/tollrecord/domain"
)

// Matcher parses invoice references and matches line descriptions against
// toll groups. It is immutable after construction and safe for concurrent
// use; the reference pattern comes from engine configuration so operators
// can adjust it without a rebuild.
type Matcher struct {
	reference *regexp.Regexp
}

// New compiles the invoice reference pattern. The pattern must expose three
// capture groups: week number, year, license plate.
func New(referencePattern string) (*Matcher, error) {
	re, err := regexp.Compile(referencePattern)
	if err != nil {
		return nil, fmt.Errorf("compile invoice reference pattern: %w", err)
	}
	if re.NumSubexp() < 3 {
		return nil, fmt.Errorf("invoice reference pattern needs 3 capture groups, has %d", re.NumSubexp())
	}
	return &Matcher{reference: re}, nil
}

// Reference is the (week, year, plate) triple an invoice reference encodes.
type Reference struct {
	Week  int
	Year  int
	Plate string
}

// ParseReference extracts the week, year and plate from a human-readable
// invoice reference such as "Week 02 - 2026 (AB-12-CD)".
func (m *Matcher) ParseReference(reference string) (Reference, bool) {
	match := m.reference.FindStringSubmatch(reference)
	if match == nil {
		return Reference{}, false
	}
	week, err := strconv.Atoi(match[1])
	if err != nil || week < 1 || week > 53 {
		return Reference{}, false
	}
	year, err := strconv.Atoi(match[2])
	if err != nil {
		return Reference{}, false
	}
	return Reference{Week: week, Year: year, Plate: canonicalPlate(match[3])}, true
}

// MatchesPlate compares a raw plate against the reference's canonical one.
func (r Reference) MatchesPlate(plate string) bool {
	return r.Plate == canonicalPlate(plate)
}

// FindTarget locates the concept invoice whose reference encodes the group's
// week and plate. Zero candidates yield no_target; more than one yields
// ambiguous_target. A guess is never made.
func (m *Matcher) FindTarget(invoices []invoicingdomain.Invoice, key tollrecorddomain.GroupKey) (*invoicingdomain.Invoice, reconciledomain.ConflictReason) {
	year, week, ok := tollrecorddomain.ParseWeekID(key.WeekID)
	if !ok {
		return nil, reconciledomain.ReasonNoTarget
	}
	plate := canonicalPlate(key.Plate)

	var candidates []int
	for i, inv := range invoices {
		if inv.Status != invoicingdomain.InvoiceStatusConcept {
			continue
		}
		ref, ok := m.ParseReference(inv.Reference)
		if !ok {
			continue
		}
		if ref.Week == week && ref.Year == year && ref.Plate == plate {
			candidates = append(candidates, i)
		}
	}

	switch len(candidates) {
	case 0:
		return nil, reconciledomain.ReasonNoTarget
	case 1:
		return &invoices[candidates[0]], ""
	default:
		return nil, reconciledomain.ReasonAmbiguousTarget
	}
}

// LineDescription builds the free-text description written onto the invoice
// line. Every label the duplicate-line rules check for is present, so a line
// written here is always recognized on the next pass.
func (m *Matcher) LineDescription(key tollrecorddomain.GroupKey, date time.Time) string {
	return fmt.Sprintf("Toll charges %s %s %s (%d%% VAT)",
		key.Weekday, date.Format("2006-01-02"), key.Country, key.VATRate)
}

// descriptionRule is one substring check against a line description. A line
// encodes a group only when every rule matches.
type descriptionRule struct {
	name  string
	match func(desc string, key tollrecorddomain.GroupKey, date time.Time) bool
}

// dayLabels lists the weekday spellings recognized in line descriptions,
// keyed by the canonical lowercase English name used in group keys.
var dayLabels = map[string][]string{
	"monday":    {"monday", "maandag"},
	"tuesday":   {"tuesday", "dinsdag"},
	"wednesday": {"wednesday", "woensdag"},
	"thursday":  {"thursday", "donderdag"},
	"friday":    {"friday", "vrijdag"},
	"saturday":  {"saturday", "zaterdag"},
	"sunday":    {"sunday", "zondag"},
}

var descriptionRules = []descriptionRule{
	{
		name: "weekday",
		match: func(desc string, key tollrecorddomain.GroupKey, _ time.Time) bool {
			for _, label := range dayLabels[key.Weekday] {
				if strings.Contains(desc, label) {
					return true
				}
			}
			return false
		},
	},
	{
		name: "country",
		match: func(desc string, key tollrecorddomain.GroupKey, _ time.Time) bool {
			return containsWord(strings.ToUpper(desc), strings.ToUpper(key.Country))
		},
	},
	{
		name: "week_or_date",
		match: func(desc string, key tollrecorddomain.GroupKey, date time.Time) bool {
			if matchesDateLabel(desc, date) {
				return true
			}
			if _, week, ok := tollrecorddomain.ParseWeekID(key.WeekID); ok {
				return strings.Contains(desc, fmt.Sprintf("week %02d", week)) ||
					strings.Contains(desc, fmt.Sprintf("week %d", week))
			}
			return false
		},
	},
	{
		name: "vat",
		match: func(desc string, key tollrecorddomain.GroupKey, _ time.Time) bool {
			return strings.Contains(desc, fmt.Sprintf("%d%%", key.VATRate))
		},
	},
}

// MatchesCharge reports whether a line description already encodes the
// group's weekday, country, week or date, and vat rate. Used by the
// duplicate-line guard against lines with a nonzero total.
func (m *Matcher) MatchesCharge(description string, key tollrecorddomain.GroupKey, date time.Time) bool {
	desc := strings.ToLower(description)
	for _, rule := range descriptionRules {
		if !rule.match(desc, key, date) {
			return false
		}
	}
	return true
}

// IsPlaceholder reports whether a line is an empty toll slot for the given
// date: zero quantity and price, toll-tagged, carrying the date label.
func (m *Matcher) IsPlaceholder(line invoicingdomain.InvoiceLine, date time.Time) bool {
	if !line.Quantity.IsZero() || !line.UnitPrice.IsZero() {
		return false
	}
	desc := strings.ToLower(line.Description)
	return isTollTagged(desc) && matchesDateLabel(desc, date)
}

// IsTollLine reports whether a line description is toll-tagged at all,
// regardless of amounts. Used when surfacing line/link inconsistencies.
func (m *Matcher) IsTollLine(line invoicingdomain.InvoiceLine) bool {
	return isTollTagged(strings.ToLower(line.Description))
}

func isTollTagged(desc string) bool {
	return strings.Contains(desc, "toll") || strings.Contains(desc, "tol ")
}

// matchesDateLabel accepts the ISO form and the day-first form commonly
// found in manually entered lines.
func matchesDateLabel(desc string, date time.Time) bool {
	return strings.Contains(desc, date.Format("2006-01-02")) ||
		strings.Contains(desc, date.Format("02-01-2006"))
}

func containsWord(s, word string) bool {
	if word == "" {
		return false
	}
	for start := 0; ; {
		i := strings.Index(s[start:], word)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(word)
		beforeOK := i == 0 || !isWordChar(s[i-1])
		afterOK := end == len(s) || !isWordChar(s[end])
		if beforeOK && afterOK {
			return true
		}
		start = i + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}

// canonicalPlate normalizes a plate for comparison. Spacing and dashes vary
// between exports and invoice references, so both are dropped.
func canonicalPlate(plate string) string {
	plate = strings.ToUpper(strings.TrimSpace(plate))
	plate = strings.ReplaceAll(plate, " ", "")
	return strings.ReplaceAll(plate, "-", "")
}
