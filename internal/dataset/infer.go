package dataset

import (
	"strconv"
	"strings"
	"time"
)

// dateFormats are tried in order when parsing datetime cells.
var dateFormats = []string{
	"2006-01-02",                // ISO: 2024-01-15
	"2006-01-02T15:04:05Z07:00", // RFC3339
	"2006-01-02 15:04:05",       // SQL datetime
	"01/02/2006",                // US: 01/15/2024
	"02/01/2006",                // EU: 15/01/2024
	"2006/01/02",                // Alt ISO
	"02-Jan-2006",               // Text: 15-Jan-2024
	"January 2, 2006",           // Full text
}

// missingTokens are cell values treated as missing data.
var missingTokens = map[string]bool{
	"":     true,
	"null": true,
	"NULL": true,
	"None": true,
	"NaN":  true,
	"nan":  true,
	"NA":   true,
	"N/A":  true,
	"n/a":  true,
}

// IsMissing reports whether a raw cell value carries no usable data.
func IsMissing(s string) bool {
	return missingTokens[strings.TrimSpace(s)]
}

// ParseNumber parses a cell as a float, tolerating surrounding whitespace.
func ParseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v, err == nil
}

// ParseInt parses a cell as an integer.
func ParseInt(s string) (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return v, err == nil
}

// ParseTime parses a cell against the supported date formats.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, f := range dateFormats {
		if t, err := time.Parse(f, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// categoricalMaxDistinct and categoricalMaxRatio draw the line between
// categorical and free-text columns.
const (
	categoricalMaxDistinct = 20
	categoricalMaxRatio    = 0.5
)

// InferType inspects the non-missing values of a raw column and returns its
// semantic type. Numeric and datetime require every value to parse; a
// string column is categorical when its cardinality is low relative to its
// size, text otherwise.
func InferType(values []string) ColumnType {
	nonMissing := 0
	allNumeric := true
	allTime := true
	distinct := make(map[string]bool)

	for _, v := range values {
		if IsMissing(v) {
			continue
		}
		nonMissing++
		distinct[v] = true
		if allNumeric {
			if _, ok := ParseNumber(v); !ok {
				allNumeric = false
			}
		}
		if allTime {
			if _, ok := ParseTime(v); !ok {
				allTime = false
			}
		}
	}

	if nonMissing == 0 {
		return Text
	}
	if allTime {
		return Datetime
	}
	if allNumeric {
		return Numeric
	}
	if len(distinct) <= categoricalMaxDistinct || float64(len(distinct))/float64(nonMissing) <= categoricalMaxRatio {
		return Categorical
	}
	return Text
}

// BuildColumn converts raw cells into a typed column of the given type.
// Cells that fail to parse under the target type degrade to missing rather
// than failing the conversion.
func BuildColumn(name string, typ ColumnType, values []string) Column {
	c := Column{Name: name, Type: typ, Missing: make([]bool, len(values))}
	switch typ {
	case Numeric:
		c.Numbers = make([]float64, len(values))
		for i, v := range values {
			if n, ok := ParseNumber(v); ok && !IsMissing(v) {
				c.Numbers[i] = n
			} else {
				c.Missing[i] = true
			}
		}
	case Datetime:
		c.Times = make([]time.Time, len(values))
		for i, v := range values {
			if t, ok := ParseTime(v); ok {
				c.Times[i] = t
			} else {
				c.Missing[i] = true
			}
		}
	default:
		c.Labels = make([]string, len(values))
		for i, v := range values {
			if IsMissing(v) {
				c.Missing[i] = true
			} else {
				c.Labels[i] = strings.TrimSpace(v)
			}
		}
	}
	return c
}
