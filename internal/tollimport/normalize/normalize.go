// Package normalize converts raw spreadsheet cell values into canonical
// typed fields. Every parser returns ok=false on unusable input instead of
// an error; callers drop the row and move on, because operator exports are
// uncontrolled and partial-batch success is the expected outcome.
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"time"
)

var dateOnlyLayouts = []string{
	"02-01-2006",
	"02/01/2006",
	"2006-01-02",
	"02-01-06",
	"02/01/06",
}

var fallbackLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
	"01-02-2006",
	"1/2/06 15:04",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// excelEpoch is day zero of the 1900 date system (accounting for the
// historical leap-year bug, serials count from 1899-12-30).
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// ParseDate accepts dd-mm-yyyy and dd/mm/yyyy (2-digit years land in 20xx),
// yyyy-mm-dd, Excel serial numbers, and a small set of fallback layouts.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	datePart := raw
	if fields := strings.Fields(raw); len(fields) > 1 {
		datePart = fields[0]
	}
	for _, layout := range dateOnlyLayouts {
		if t, err := time.Parse(layout, datePart); err == nil {
			return normalizeYear(t), true
		}
	}

	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		return dateFromExcelSerial(serial)
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return normalizeYear(t), true
		}
	}
	return time.Time{}, false
}

// normalizeYear truncates to a UTC calendar date and shifts 2-digit years
// parsed into the 1900s forward into the 2000s.
func normalizeYear(t time.Time) time.Time {
	year := t.Year()
	if year >= 1969 && year < 2000 {
		year += 100
	}
	return time.Date(year, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func dateFromExcelSerial(serial float64) (time.Time, bool) {
	// Plausible spreadsheet dates only: ~1955 through ~2064.
	if serial < 20000 || serial > 60000 {
		return time.Time{}, false
	}
	t := excelEpoch.AddDate(0, 0, int(serial))
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}

var moneyStrip = regexp.MustCompile(`[^0-9.,\-]`)

// ParseMoney strips currency symbols and whitespace, then resolves the
// separator convention: with both "." and "," present the dot is a thousands
// separator; a lone comma is the decimal separator.
func ParseMoney(raw string) (decimal.Decimal, bool) {
	cleaned := moneyStrip.ReplaceAllString(strings.TrimSpace(raw), "")
	if cleaned == "" || cleaned == "-" {
		return decimal.Zero, false
	}

	hasDot := strings.Contains(cleaned, ".")
	hasComma := strings.Contains(cleaned, ",")
	switch {
	case hasDot && hasComma:
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	case hasComma:
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return value, true
}

// ParseVAT parses numeric or percentage text into an integer percent.
// A value at most 1 is a fraction and scales by 100; anything larger rounds
// to the nearest integer percent. Out-of-range values are rejected.
func ParseVAT(raw string) (int, bool) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(raw, "%", ""))
	if cleaned == "" {
		return 0, false
	}

	value, ok := ParseMoney(cleaned)
	if !ok {
		return 0, false
	}

	f, _ := value.Float64()
	if f < 0 {
		return 0, false
	}
	if f <= 1 {
		f *= 100
	}
	rate := int(math.Round(f))
	if rate < 0 || rate > 100 {
		return 0, false
	}
	return rate, true
}

// countryKeywords maps ISO-2 codes to curated free-text spellings seen in
// operator exports. Matching is case-insensitive substring.
var countryKeywords = map[string][]string{
	"NL": {"nederland", "netherlands", "holland", "pays-bas", "niederlande"},
	"BE": {"belgie", "belgië", "belgium", "belgique", "belgien"},
	"DE": {"duitsland", "germany", "deutschland", "allemagne"},
	"FR": {"frankrijk", "france", "frankreich"},
	"LU": {"luxemburg", "luxembourg"},
	"CH": {"zwitserland", "switzerland", "schweiz", "suisse"},
	"AT": {"oostenrijk", "austria", "österreich", "autriche"},
	"IT": {"italie", "italië", "italy", "italia", "italien"},
	"ES": {"spanje", "spain", "espana", "españa", "spanien"},
	"PL": {"polen", "poland", "polska"},
}

// countryOrder keeps MapCountry deterministic across map iteration.
var countryOrder = []string{"NL", "BE", "DE", "FR", "LU", "CH", "AT", "IT", "ES", "PL"}

// MapCountry maps free text to an ISO-2 code. Two-letter input passes
// through uppercased; unmatched text is uppercased verbatim rather than
// rejected so unknown operators still import.
func MapCountry(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) == 2 && isAlpha(trimmed) {
		return strings.ToUpper(trimmed)
	}

	lowered := strings.ToLower(trimmed)
	for _, code := range countryOrder {
		for _, keyword := range countryKeywords[code] {
			if strings.Contains(lowered, keyword) {
				return code
			}
		}
	}
	return strings.ToUpper(trimmed)
}

// CountryLike reports whether a cell plausibly holds a country value; used
// by column inference.
func CountryLike(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) == 2 && isAlpha(trimmed) {
		return true
	}
	lowered := strings.ToLower(trimmed)
	for _, code := range countryOrder {
		for _, keyword := range countryKeywords[code] {
			if strings.Contains(lowered, keyword) {
				return true
			}
		}
	}
	return false
}

// DefaultVATForCountry returns the statutory default VAT percent applied
// when an export omits the rate.
func DefaultVATForCountry(code string) int {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "NL", "BE", "ES":
		return 21
	case "DE":
		return 19
	case "FR", "AT":
		return 20
	case "LU":
		return 17
	case "IT":
		return 22
	case "CH":
		return 0
	default:
		return 21
	}
}

var clockPattern = regexp.MustCompile(`(\d{1,2}):(\d{2})(?::(\d{2}))?`)

// ParseUsageTime extracts a canonical HH:MM:SS from free text containing a
// clock, from a date cell's clock component, or from an Excel fractional-day
// numeric. Out-of-range components are rejected.
func ParseUsageTime(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	if f, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64); err == nil {
		return timeFromFraction(f)
	}

	m := clockPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	second := 0
	if m[3] != "" {
		second, _ = strconv.Atoi(m[3])
	}
	if hour > 23 || minute > 59 || second > 59 {
		return "", false
	}
	return formatClock(hour, minute, second), true
}

func timeFromFraction(f float64) (string, bool) {
	frac := f - math.Floor(f)
	if f < 0 || frac == 0 {
		return "", false
	}
	total := int(math.Round(frac * 86400))
	if total >= 86400 {
		total = 86399
	}
	return formatClock(total/3600, (total%3600)/60, total%60), true
}

func formatClock(hour, minute, second int) string {
	return strings.Join([]string{pad2(hour), pad2(minute), pad2(second)}, ":")
}

func pad2(v int) string {
	if v < 10 {
		return "0" + strconv.Itoa(v)
	}
	return strconv.Itoa(v)
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return len(s) > 0
}
