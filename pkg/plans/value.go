package plans

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Value is a parsed limit value. Exactly one of its accessors succeeds,
// selected by Type.
type Value struct {
	typ  DataType
	num  decimal.Decimal
	flag bool
	text string
}

// Number wraps a numeric limit.
func Number(d decimal.Decimal) Value { return Value{typ: TypeNumber, num: d} }

// Int wraps an integral numeric limit.
func Int(n int64) Value { return Number(decimal.NewFromInt(n)) }

// Bool wraps a capability flag.
func Bool(b bool) Value { return Value{typ: TypeBoolean, flag: b} }

// Text wraps a free-form string limit.
func Text(s string) Value { return Value{typ: TypeString, text: s} }

// Type returns the variant held by v.
func (v Value) Type() DataType { return v.typ }

// Number returns the numeric value and whether v is a number.
func (v Value) Number() (decimal.Decimal, bool) { return v.num, v.typ == TypeNumber }

// Bool returns the flag and whether v is a boolean.
func (v Value) Bool() (bool, bool) { return v.flag, v.typ == TypeBoolean }

// Text returns the string and whether v is a string.
func (v Value) Text() (string, bool) { return v.text, v.typ == TypeString }

// IsUnlimited reports whether v is the numeric Unlimited sentinel.
func (v Value) IsUnlimited() bool {
	return v.typ == TypeNumber && v.num.Equal(decimal.NewFromInt(Unlimited))
}

func (v Value) String() string {
	switch v.typ {
	case TypeNumber:
		return v.num.String()
	case TypeBoolean:
		return strconv.FormatBool(v.flag)
	case TypeString:
		return v.text
	}
	return ""
}

// ParseValue converts a stored raw value according to its declared data type.
// Any mismatch is reported as ErrConfiguration; there is no fallback default.
func ParseValue(raw string, t DataType) (Value, error) {
	s := strings.TrimSpace(raw)
	switch t {
	case TypeNumber:
		d, err := decimal.NewFromString(s)
		if err != nil {
			return Value{}, errors.Join(ErrConfiguration, fmt.Errorf("value %q is not a number: %w", raw, err))
		}
		if d.IsNegative() && !d.Equal(decimal.NewFromInt(Unlimited)) {
			return Value{}, errors.Join(ErrConfiguration, fmt.Errorf("value %q is negative", raw))
		}
		return Number(d), nil
	case TypeBoolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Value{}, errors.Join(ErrConfiguration, fmt.Errorf("value %q is not a boolean", raw))
		}
		return Bool(b), nil
	case TypeString:
		return Text(raw), nil
	}
	return Value{}, errors.Join(ErrConfiguration, fmt.Errorf("unknown data type %q", t))
}
