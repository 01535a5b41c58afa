package dataset

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// InferType picks the narrowest column type that holds every non-null value.
// Columns with no values at all default to string.
func InferType(values []any) ColumnType {
	seen := false
	allBool, allInt, allNum := true, true, true

	for _, v := range values {
		if v == nil {
			continue
		}
		seen = true
		switch x := v.(type) {
		case bool:
			allInt, allNum = false, false
		case int, int8, int16, int32, int64, uint8, uint16, uint32:
			allBool = false
		case float32:
			allBool = false
			allInt = false
		case float64:
			allBool = false
			if x != math.Trunc(x) || math.IsInf(x, 0) {
				allInt = false
			}
		case json.Number:
			allBool = false
			if _, err := x.Int64(); err != nil {
				allInt = false
				if _, err := x.Float64(); err != nil {
					allNum = false
				}
			}
		default:
			allBool, allInt, allNum = false, false, false
		}
	}

	switch {
	case !seen:
		return TypeString
	case allBool:
		return TypeBool
	case allInt:
		return TypeInt
	case allNum:
		return TypeFloat
	}
	return TypeString
}

// inferStrings types a column of raw text cells. Empty cells are nulls and do
// not take part in the decision.
func inferStrings(cells []string) ColumnType {
	seen := false
	allBool, allInt, allNum := true, true, true

	for _, s := range cells {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		seen = true
		if allInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				allInt = false
			}
		}
		if allNum {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				allNum = false
			}
		}
		if allBool && !isBoolWord(s) {
			allBool = false
		}
		if !allInt && !allNum && !allBool {
			break
		}
	}

	switch {
	case !seen:
		return TypeString
	case allInt:
		return TypeInt
	case allNum:
		return TypeFloat
	case allBool:
		return TypeBool
	}
	return TypeString
}

func isBoolWord(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false":
		return true
	}
	return false
}

// parseCell converts raw text into a cell of the given type. Only called after
// inferStrings accepted the whole column, so conversions cannot fail except for
// the string fallback.
func parseCell(t ColumnType, raw string) any {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	switch t {
	case TypeInt:
		n, _ := strconv.ParseInt(s, 10, 64)
		return n
	case TypeFloat:
		f, _ := strconv.ParseFloat(s, 64)
		return f
	case TypeBool:
		return strings.EqualFold(s, "true")
	}
	return raw
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
