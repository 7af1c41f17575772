package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
)

// ---------------------------------------------------------------------------
// Type coercions used by the executor
// ---------------------------------------------------------------------------

// objectTag is what a plain object turns into when coerced to a primitive.
const objectTag = "[object Object]"

// ToBoolean applies the language's truthiness rules.
func ToBoolean(v *Value) bool {
	switch v.kind {
	case KindUndefined, KindNull:
		return false
	case KindBoolean:
		return v.boolean
	case KindNumber:
		return v.number != 0 && !math.IsNaN(v.number)
	case KindString:
		return len(v.str) > 0
	default:
		return true
	}
}

// ToNumber converts a value to a float64. Symbols cannot be converted.
func ToNumber(v *Value) (float64, error) {
	switch v.kind {
	case KindNumber:
		return v.number, nil
	case KindUndefined:
		return math.NaN(), nil
	case KindNull:
		return 0, nil
	case KindBoolean:
		if v.boolean {
			return 1, nil
		}
		return 0, nil
	case KindString:
		return StringToNumber(v.Text()), nil
	case KindObject:
		return StringToNumber(objectTag), nil
	case KindSymbol:
		return 0, fmt.Errorf("cannot convert a Symbol to a number: %w", ErrTypeError)
	default:
		return 0, fmt.Errorf("to number on %s: %w", v.kind, ErrInvalidOperand)
	}
}

// ToString converts a primitive-or-object value into a Go string.
func ToString(v *Value) (string, error) {
	switch v.kind {
	case KindString:
		return v.Text(), nil
	case KindNumber:
		return NumberToString(v.number), nil
	case KindUndefined:
		return "undefined", nil
	case KindNull:
		return "null", nil
	case KindBoolean:
		if v.boolean {
			return "true", nil
		}
		return "false", nil
	case KindObject:
		return objectTag, nil
	case KindSymbol:
		return "", fmt.Errorf("cannot convert a Symbol to a string: %w", ErrTypeError)
	default:
		return "", fmt.Errorf("to string on %s: %w", v.kind, ErrInvalidOperand)
	}
}

// toPrimitive maps objects onto their default string form and returns every
// other value unchanged. The returned value is unowned.
func toPrimitive(v *Value) *Value {
	if v.kind == KindObject {
		return StringFromGo(objectTag)
	}
	return v
}

// StringToNumber parses numeric text the way the language's Number() does:
// surrounding whitespace is ignored, the empty string is 0, hex/octal/binary
// prefixes are honoured and anything else unparseable is NaN.
func StringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			n, err := strconv.ParseUint(s[2:], base, 64)
			if err != nil {
				return math.NaN()
			}
			return float64(n)
		}
	}
	// ParseFloat accepts spellings such as "inf", "nan" and "1_000" that the
	// language rejects.
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r == '.' || r == 'e' || r == 'E' || r == '+' || r == '-') {
			return math.NaN()
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// NumberToString formats a number the way the language prints it.
func NumberToString(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	// Go writes e+07 where the language writes e+7.
	mant, exp, _ := strings.Cut(s, "e")
	sign := exp[0]
	exp = strings.TrimLeft(exp[1:], "0")
	return mant + "e" + string(sign) + exp
}

// ToInt32 applies the modular 32-bit signed conversion used by bitwise
// operators.
func ToInt32(f float64) int32 {
	return int32(ToUint32(f))
}

// ToUint32 applies the modular 32-bit unsigned conversion.
func ToUint32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	t := math.Trunc(f)
	m := math.Mod(t, 4294967296)
	if m < 0 {
		m += 4294967296
	}
	return uint32(m)
}

// compareUnits orders two UTF-16 strings by code unit.
func compareUnits(a, b []uint16) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// unitsOf returns the UTF-16 form of a primitive's string conversion.
func unitsOf(v *Value) ([]uint16, error) {
	if v.kind == KindString {
		return v.str, nil
	}
	s, err := ToString(v)
	if err != nil {
		return nil, err
	}
	return utf16.Encode([]rune(s)), nil
}

func concatUnits(a, b []uint16) *Value {
	units := make([]uint16, 0, len(a)+len(b))
	units = append(units, a...)
	units = append(units, b...)
	return &Value{kind: KindString, str: units}
}
