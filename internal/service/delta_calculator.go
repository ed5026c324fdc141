package service

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MeasureCategory names a recognised disciplinary measure.
type MeasureCategory string

const (
	CategoryOralWarning            MeasureCategory = "oral_warning"
	CategoryWrittenWarning         MeasureCategory = "written_warning"
	CategorySuspension             MeasureCategory = "suspension"
	CategoryEducationalAction      MeasureCategory = "educational_action"
	CategoryCommendationIndividual MeasureCategory = "commendation_individual"
	CategoryCommendationCollective MeasureCategory = "commendation_collective"
	CategoryUnknown                MeasureCategory = "unknown"
)

// MeasureDelta is the outcome of matching a measure description.
type MeasureDelta struct {
	Category MeasureCategory
	Delta    float64
	Matched  bool
}

var firstInteger = regexp.MustCompile(`\d+`)

// NormalizeMeasure strips accents, upper-cases and collapses whitespace.
func NormalizeMeasure(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = text
	}
	return strings.Join(strings.Fields(strings.ToUpper(folded)), " ")
}

// ParseQuantity reads a free-form quantity. Missing, non-numeric or non-positive input counts as 1.
func ParseQuantity(raw string) float64 {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	if raw == "" {
		return 1
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 1
	}
	return normalizeQuantity(v)
}

func normalizeQuantity(q float64) float64 {
	if q <= 0 || math.IsNaN(q) || math.IsInf(q, 0) {
		return 1
	}
	return q
}

// ComputeDelta maps a measure description to a point delta. Categories are tried in
// priority order; the first match wins. Unrecognised text yields a zero, unmatched delta.
func ComputeDelta(description string, quantity float64, cfg MeasureConfig) MeasureDelta {
	m := NormalizeMeasure(description)
	if m == "" {
		return MeasureDelta{Category: CategoryUnknown}
	}
	qty := normalizeQuantity(quantity)
	has := func(parts ...string) bool {
		for _, p := range parts {
			if !strings.Contains(m, p) {
				return false
			}
		}
		return true
	}
	words := strings.FieldsFunc(m, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
	hasWord := func(word string) bool {
		for _, w := range words {
			if w == word {
				return true
			}
		}
		return false
	}

	switch {
	case has("ADVERTENCIA ORAL") || has("ADV ORAL") || (hasWord("ORAL") && has("ADVERT")) || has("ORAL WARNING"):
		return matched(CategoryOralWarning, qty*cfg.OralWarning)
	case has("ADVERTENCIA ESCRITA") || has("ADV ESCRITA") || has("ESCRITA", "ADVERT") || has("WRITTEN WARNING"):
		return matched(CategoryWrittenWarning, qty*cfg.WrittenWarning)
	case has("SUSPENS"):
		return matched(CategorySuspension, float64(days(m, qty))*cfg.SuspensionPerDay)
	case has("EDUCATIVA") || has("EDUCATIONAL"):
		return matched(CategoryEducationalAction, float64(days(m, qty))*cfg.EducationalActionDay)
	case has("ELOGIO") || has("COMMENDATION"):
		if has("COLET") || has("COLLECTIVE") {
			return matched(CategoryCommendationCollective, qty*cfg.CommendationCollective)
		}
		return matched(CategoryCommendationIndividual, qty*cfg.CommendationIndividual)
	}
	return MeasureDelta{Category: CategoryUnknown}
}

// days takes the first integer written in the text, falling back to the whole part of qty.
func days(normalized string, qty float64) int {
	if n := firstInteger.FindString(normalized); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			return v
		}
	}
	if d := int(qty); d > 0 {
		return d
	}
	return 1
}

func matched(category MeasureCategory, delta float64) MeasureDelta {
	return MeasureDelta{Category: category, Delta: math.Round(delta*1e4) / 1e4, Matched: true}
}
