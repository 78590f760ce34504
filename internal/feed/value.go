package feed

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is a field that may be absent. Valid=false is the missing-value
// marker: it encodes as JSON null and SQL NULL, and is never confused with a
// real zero, false or empty string.
type Value[T any] struct {
	V     T
	Valid bool
}

// Some wraps a present value.
func Some[T any](v T) Value[T] {
	return Value[T]{V: v, Valid: true}
}

// Get returns the value and whether it is present.
func (v Value[T]) Get() (T, bool) {
	return v.V, v.Valid
}

// Or returns the value, or fallback when missing.
func (v Value[T]) Or(fallback T) T {
	if !v.Valid {
		return fallback
	}
	return v.V
}

// Any returns the value as an interface, or nil when missing.
func (v Value[T]) Any() any {
	if !v.Valid {
		return nil
	}
	return v.V
}

// MarshalJSON implements json.Marshaler
func (v Value[T]) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.V)
}

// UnmarshalJSON implements json.Unmarshaler
func (v *Value[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		var zero T
		v.V, v.Valid = zero, false
		return nil
	}
	if err := json.Unmarshal(data, &v.V); err != nil {
		return err
	}
	v.Valid = true
	return nil
}

// Value implements driver.Valuer so records can be written with database/sql.
func (v Value[T]) Value() (driver.Value, error) {
	if !v.Valid {
		return nil, nil
	}
	return driver.DefaultParameterConverter.ConvertValue(v.V)
}

// Scan implements sql.Scanner for the column types a PitchEvent uses.
func (v *Value[T]) Scan(src any) error {
	if src == nil {
		var zero T
		v.V, v.Valid = zero, false
		return nil
	}

	switch dst := any(&v.V).(type) {
	case *string:
		switch s := src.(type) {
		case string:
			*dst = s
		case []byte:
			*dst = string(s)
		default:
			*dst = fmt.Sprint(s)
		}
	case *int64:
		switch n := src.(type) {
		case int64:
			*dst = n
		case float64:
			*dst = int64(n)
		case []byte:
			i, err := strconv.ParseInt(string(n), 10, 64)
			if err != nil {
				return fmt.Errorf("scan int64: %w", err)
			}
			*dst = i
		default:
			return fmt.Errorf("scan int64: unsupported source %T", src)
		}
	case *float64:
		switch n := src.(type) {
		case float64:
			*dst = n
		case int64:
			*dst = float64(n)
		case []byte:
			f, err := strconv.ParseFloat(string(n), 64)
			if err != nil {
				return fmt.Errorf("scan float64: %w", err)
			}
			*dst = f
		default:
			return fmt.Errorf("scan float64: unsupported source %T", src)
		}
	case *bool:
		switch b := src.(type) {
		case bool:
			*dst = b
		case []byte:
			parsed, err := strconv.ParseBool(string(b))
			if err != nil {
				return fmt.Errorf("scan bool: %w", err)
			}
			*dst = parsed
		default:
			return fmt.Errorf("scan bool: unsupported source %T", src)
		}
	default:
		return fmt.Errorf("scan: unsupported destination %T", dst)
	}

	v.Valid = true
	return nil
}
