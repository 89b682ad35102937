package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/Sternrassler/partd-savings/pkg/dataset"
)

// ParseAmount coerces a raw field value to a number. Currency symbols,
// thousands separators and whitespace are ignored. Anything unparsable,
// empty, NaN or infinite yields nil. It never panics.
func ParseAmount(v any) *float64 {
	switch n := v.(type) {
	case nil:
		return nil
	case float64:
		return finite(n)
	case float32:
		return finite(float64(n))
	case int:
		return finite(float64(n))
	case int64:
		return finite(float64(n))
	case int32:
		return finite(float64(n))
	case uint:
		return finite(float64(n))
	case uint64:
		return finite(float64(n))
	case json.Number:
		return parseAmountString(n.String())
	case string:
		return parseAmountString(n)
	default:
		return nil
	}
}

func parseAmountString(s string) *float64 {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '$' || r == '€' || r == '£' || r == ',':
			return -1
		case unicode.IsSpace(r):
			return -1
		default:
			return r
		}
	}, s)
	if cleaned == "" {
		return nil
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return finite(f)
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Label renders a raw label value as a trimmed string. Nil yields "".
func Label(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return strings.TrimSpace(s.String())
	default:
		return strings.TrimSpace(fmt.Sprint(s))
	}
}

// Classify returns CategoryGeneric when brand and generic name are equal
// after trimming and upper-casing, and CategoryBrand otherwise.
func Classify(brandName, genericName string) dataset.Category {
	if groupKey(brandName) == groupKey(genericName) {
		return dataset.CategoryGeneric
	}
	return dataset.CategoryBrand
}

// groupKey is the canonical pairing key. Internal whitespace is kept.
func groupKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
