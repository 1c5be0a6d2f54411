// Package columns infers the purpose of spreadsheet columns. Operator
// exports rarely share a layout: some carry labelled header rows after a few
// preamble lines, others have no header at all. Header detection runs first;
// value-shape inference fills whatever the header left unresolved.
package columns

import (
	"regexp"
	"strings"

	"github.com/fleetops/tollsync/internal/tollimport/normalize"
)

// Field names a canonical column purpose.
type Field string

const (
	FieldCountry Field = "country"
	FieldPlate   Field = "license_plate"
	FieldDate    Field = "usage_date"
	FieldTime    Field = "usage_time"
	FieldAmount  Field = "amount"
	FieldVAT     Field = "vat_rate"
)

// RequiredFields must be resolved before an import can run.
var RequiredFields = []Field{FieldDate, FieldPlate, FieldCountry, FieldAmount}

// Mapping assigns fields to zero-based column indexes.
type Mapping map[Field]int

// Complete reports whether every required field is mapped.
func (m Mapping) Complete() bool {
	for _, f := range RequiredFields {
		if _, ok := m[f]; !ok {
			return false
		}
	}
	return true
}

// labelVariants lists known header spellings per field, multilingual and
// vendor-specific. Matching is fuzzy substring over normalized cells.
var labelVariants = map[Field][]string{
	FieldDate:    {"datum", "date", "transactiedatum", "usage date", "passagedatum", "trip date", "fecha"},
	FieldTime:    {"tijd", "time", "uur", "heure", "uhrzeit"},
	FieldPlate:   {"kenteken", "license plate", "plate", "nummerplaat", "immatriculation", "kennzeichen", "registration", "voertuig"},
	FieldCountry: {"land", "country", "pays", "landcode"},
	FieldAmount:  {"bedrag", "amount", "netto", "montant", "excl", "prijs", "price", "kosten", "toll"},
	FieldVAT:     {"btw", "vat", "tva", "mwst", "tax rate", "belasting"},
}

// headerMatchOrder fixes which field claims a cell that matches several
// variant lists (e.g. "bedrag excl. btw" is an amount, not a VAT rate).
var headerMatchOrder = []Field{FieldDate, FieldTime, FieldPlate, FieldCountry, FieldAmount, FieldVAT}

// headerRequired are the fields that make a row look like a header.
var headerRequired = []Field{FieldCountry, FieldPlate, FieldDate}

// DetectHeaderRow scans up to maxRows rows for the best-looking header. It
// scores each row by how many of {country, plate, date} its cells match and
// returns the first row of maximal score along with its full mapping.
func DetectHeaderRow(rows [][]string, maxRows int) (headerIdx int, mapping Mapping, ok bool) {
	if maxRows <= 0 {
		maxRows = 50
	}
	if len(rows) < maxRows {
		maxRows = len(rows)
	}

	bestIdx, bestScore := -1, 0
	var bestMapping Mapping
	for i := 0; i < maxRows; i++ {
		m := matchHeaderRow(rows[i])
		score := 0
		for _, f := range headerRequired {
			if _, found := m[f]; found {
				score++
			}
		}
		if score > bestScore {
			bestIdx, bestScore, bestMapping = i, score, m
		}
	}

	if bestIdx < 0 {
		return -1, nil, false
	}
	return bestIdx, bestMapping, true
}

func matchHeaderRow(row []string) Mapping {
	mapping := Mapping{}
	for col, cell := range row {
		label := normalizeLabel(cell)
		if label == "" {
			continue
		}
		for _, field := range headerMatchOrder {
			if _, taken := mapping[field]; taken {
				continue
			}
			if matchesVariant(label, labelVariants[field]) {
				mapping[field] = col
				break
			}
		}
	}
	return mapping
}

var labelJunk = regexp.MustCompile(`[^a-z0-9 ]+`)

func normalizeLabel(cell string) string {
	label := strings.ToLower(strings.TrimSpace(cell))
	label = labelJunk.ReplaceAllString(label, " ")
	return strings.Join(strings.Fields(label), " ")
}

func matchesVariant(label string, variants []string) bool {
	for _, v := range variants {
		if strings.Contains(label, v) {
			return true
		}
		if len(label) >= 3 && strings.Contains(v, label) {
			return true
		}
	}
	return false
}

// inferOrder is the greedy assignment priority: each assigned column leaves
// candidacy for the remaining fields.
var inferOrder = []Field{FieldDate, FieldPlate, FieldCountry, FieldAmount, FieldVAT, FieldTime}

// inferThreshold is the minimum fraction of sample cells that must fit a
// field's shape before a column is assigned to it.
const inferThreshold = 0.6

// ScoreColumns computes the score matrix over a sample: for every column,
// the fraction of non-empty cells that parse as each field's value shape.
// It is a pure function; rows shorter than the widest row count as empty
// cells for the missing columns.
func ScoreColumns(sample [][]string) map[Field][]float64 {
	width := 0
	for _, row := range sample {
		if len(row) > width {
			width = len(row)
		}
	}

	scores := make(map[Field][]float64, len(inferOrder))
	for _, f := range inferOrder {
		scores[f] = make([]float64, width)
	}

	for col := 0; col < width; col++ {
		counts := map[Field]int{}
		nonEmpty := 0
		for _, row := range sample {
			if col >= len(row) {
				continue
			}
			cell := strings.TrimSpace(row[col])
			if cell == "" {
				continue
			}
			nonEmpty++
			for _, f := range inferOrder {
				if cellMatchesField(cell, f) {
					counts[f]++
				}
			}
		}
		if nonEmpty == 0 {
			continue
		}
		for _, f := range inferOrder {
			scores[f][col] = float64(counts[f]) / float64(nonEmpty)
		}
	}
	return scores
}

// InferColumns assigns fields to columns by value shape, in priority order
// date, plate, country, amount, vat, time. A column is never assigned to two
// fields; ties break toward the lowest column index. Optional fields may
// stay unassigned.
func InferColumns(sample [][]string) Mapping {
	scores := ScoreColumns(sample)
	mapping := Mapping{}
	taken := map[int]bool{}

	for _, field := range inferOrder {
		bestCol, bestScore := -1, inferThreshold
		for col, score := range scores[field] {
			if taken[col] {
				continue
			}
			if score > bestScore || (score == bestScore && bestCol < 0 && score >= inferThreshold) {
				bestCol, bestScore = col, score
			}
		}
		if bestCol >= 0 {
			mapping[field] = bestCol
			taken[bestCol] = true
		}
	}
	return mapping
}

// Resolve produces the final mapping for an import: detected header labels
// first, value inference over a data sample for anything still missing.
// dataStart is the first data row index (header row + 1, or 0 without one).
func Resolve(rows [][]string, headerScanRows, sampleRows int) (mapping Mapping, dataStart int) {
	mapping = Mapping{}
	dataStart = 0

	if idx, detected, ok := DetectHeaderRow(rows, headerScanRows); ok {
		mapping = detected
		dataStart = idx + 1
	}

	if mapping.Complete() {
		return mapping, dataStart
	}

	if sampleRows <= 0 {
		sampleRows = 200
	}
	end := dataStart + sampleRows
	if end > len(rows) {
		end = len(rows)
	}
	inferred := InferColumns(rows[dataStart:end])

	taken := map[int]bool{}
	for _, col := range mapping {
		taken[col] = true
	}
	for _, field := range inferOrder {
		if _, ok := mapping[field]; ok {
			continue
		}
		col, ok := inferred[field]
		if !ok || taken[col] {
			continue
		}
		mapping[field] = col
		taken[col] = true
	}
	return mapping, dataStart
}

var plateChars = regexp.MustCompile(`^[A-Z0-9]+$`)

func cellMatchesField(cell string, field Field) bool {
	switch field {
	case FieldDate:
		_, ok := normalize.ParseDate(cell)
		return ok
	case FieldTime:
		_, ok := normalize.ParseUsageTime(cell)
		return ok
	case FieldPlate:
		return PlateLike(cell)
	case FieldCountry:
		return normalize.CountryLike(cell)
	case FieldAmount:
		_, ok := normalize.ParseMoney(cell)
		return ok
	case FieldVAT:
		rate, ok := normalize.ParseVAT(cell)
		return ok && rate <= 30
	default:
		return false
	}
}

// PlateLike reports whether a cell plausibly holds a license plate: 4 to 8
// alphanumeric characters once separators are removed, mixing letters and
// digits.
func PlateLike(cell string) bool {
	cleaned := strings.ToUpper(strings.TrimSpace(cell))
	cleaned = strings.ReplaceAll(cleaned, "-", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	if len(cleaned) < 4 || len(cleaned) > 8 {
		return false
	}
	if !plateChars.MatchString(cleaned) {
		return false
	}
	hasLetter, hasDigit := false, false
	for _, r := range cleaned {
		switch {
		case r >= 'A' && r <= 'Z':
			hasLetter = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}
