package receipt

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical receipt date format (dd/mm/yyyy)
const DateLayout = "02/01/2006"

// literalDateLayout accepts one or two digit days and months
const literalDateLayout = "2/1/2006"

// ErrDateMissing is returned when a receipt date cannot be resolved
var ErrDateMissing = errors.New("receipt date missing or invalid")

// serialEpoch is day zero of spreadsheet serial dates
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Serial day bounds that keep the result inside years 1..9999
const (
	minSerialDay = -693593
	maxSerialDay = 2958465
)

// NormalizeDate converts a loosely typed date into dd/mm/yyyy.
// Numbers and numeric strings are read as spreadsheet serial days; other
// strings must already be a valid d/m/yyyy date and are returned trimmed.
func NormalizeDate(raw any) (string, error) {
	if raw == nil {
		return "", ErrDateMissing
	}

	if n, ok := toNumber(raw); ok {
		if d, ok := serialToDate(n); ok {
			return d, nil
		}
	}

	s, ok := raw.(string)
	if !ok {
		return "", ErrDateMissing
	}
	s = strings.TrimSpace(s)
	if _, err := time.Parse(literalDateLayout, s); err != nil {
		return "", ErrDateMissing
	}
	return s, nil
}

func serialToDate(n float64) (string, bool) {
	days := math.Trunc(n)
	if days < minSerialDay || days > maxSerialDay {
		return "", false
	}
	return serialEpoch.AddDate(0, 0, int(days)).Format(DateLayout), true
}

// toNumber reads ints, floats, json.Number and numeric strings.
// Non-finite values are rejected.
func toNumber(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		p, err := strconv.ParseFloat(strings.TrimSpace(t.String()), 64)
		if err != nil {
			return 0, false
		}
		f = p
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
