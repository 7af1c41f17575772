package vm

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"unicode/utf16"
)

// Kind is the type tag of a Value. It never changes after construction.
type Kind uint8

const (
	KindNumber Kind = iota
	KindString
	KindBoolean
	KindUndefined
	KindNull
	KindObject
	KindSymbol
)

var kindNames = [...]string{
	KindNumber:    "number",
	KindString:    "string",
	KindBoolean:   "boolean",
	KindUndefined: "undefined",
	KindNull:      "null",
	KindObject:    "object",
	KindSymbol:    "symbol",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ---------------------------------------------------------------------------
// Value: reference-counted runtime datum
// ---------------------------------------------------------------------------

// Value is a tagged runtime value with a manual ownership count.
//
// Every structure that stores a *Value retains it on store and releases it on
// overwrite or teardown. A freshly constructed Value has a count of zero and
// belongs to nobody until something retains it. Values must not be copied.
type Value struct {
	kind   Kind
	pinned bool // process-wide sentinel; ownership count is never touched

	refs atomic.Int32
	dead atomic.Bool

	number  float64
	str     []uint16
	boolean bool
	symbol  *symbolData
	object  *Object
}

type symbolData struct {
	id          uint32
	description *Value
}

// Process-wide sentinels. They tolerate any number of retains and releases.
var (
	Undefined = &Value{kind: KindUndefined, pinned: true}
	Null      = &Value{kind: KindNull, pinned: true}
	True      = &Value{kind: KindBoolean, pinned: true, boolean: true}
	False     = &Value{kind: KindBoolean, pinned: true}
	Zero      = &Value{kind: KindNumber, pinned: true, number: 0}
	One       = &Value{kind: KindNumber, pinned: true, number: 1}
	Two       = &Value{kind: KindNumber, pinned: true, number: 2}
)

// NewNumber creates a Number value.
func NewNumber(f float64) *Value {
	return &Value{kind: KindNumber, number: f}
}

// NewString creates a String value from UTF-16 code units. The slice is
// copied; the byte length of the result is 2*len(units).
func NewString(units []uint16) *Value {
	buf := make([]uint16, len(units))
	copy(buf, units)
	return &Value{kind: KindString, str: buf}
}

// StringFromGo creates a String value from a Go string.
func StringFromGo(s string) *Value {
	return &Value{kind: KindString, str: utf16.Encode([]rune(s))}
}

// NewSymbol creates a unique Symbol. description may be nil; when present it
// is retained by the symbol.
func NewSymbol(description *Value) *Value {
	description.Retain()
	return &Value{
		kind: KindSymbol,
		symbol: &symbolData{
			id:          nextSymbolID(),
			description: description,
		},
	}
}

// Bool returns the True or False sentinel.
func Bool(b bool) *Value {
	if b {
		return True
	}
	return False
}

// ---------------------------------------------------------------------------
// Ownership
// ---------------------------------------------------------------------------

// Retain increments the ownership count. No-op on nil and on sentinels.
func (v *Value) Retain() {
	if v == nil || v.pinned {
		return
	}
	if v.dead.Load() {
		fatalf("value.retain", "retain of a destroyed %s", v.kind)
	}
	v.refs.Add(1)
}

// Release decrements the ownership count and destroys the value when it
// reaches zero. Releasing a value whose count is already at or below zero is
// fatal.
func (v *Value) Release() {
	if v == nil || v.pinned {
		return
	}
	for {
		n := v.refs.Load()
		if n <= 0 {
			fatalf("value.release", "release of an unowned %s (count %d)", v.kind, n)
		}
		if v.refs.CompareAndSwap(n, n-1) {
			if n == 1 {
				v.destroy()
			}
			return
		}
	}
}

// RefCount returns the current ownership count.
func (v *Value) RefCount() int32 {
	return v.refs.Load()
}

// Destroyed reports whether the value's count has reached zero after having
// been owned.
func (v *Value) Destroyed() bool {
	return v.dead.Load()
}

func (v *Value) destroy() {
	if !v.dead.CompareAndSwap(false, true) {
		return
	}
	switch v.kind {
	case KindSymbol:
		v.symbol.description.Release()
	case KindObject:
		v.object.destroy()
	}
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Kind returns the value's type tag.
func (v *Value) Kind() Kind { return v.kind }

// Number returns the payload of a Number value.
func (v *Value) Number() float64 { return v.number }

// Boolean returns the payload of a Boolean value.
func (v *Value) Boolean() bool { return v.boolean }

// Units returns the UTF-16 code units of a String value. The slice must not
// be modified.
func (v *Value) Units() []uint16 { return v.str }

// ByteLen returns the byte length of a String value's buffer.
func (v *Value) ByteLen() int { return 2 * len(v.str) }

// Text decodes a String value into a Go string.
func (v *Value) Text() string { return string(utf16.Decode(v.str)) }

// SymbolID returns the unique id of a Symbol value.
func (v *Value) SymbolID() uint32 {
	if v.symbol == nil {
		return 0
	}
	return v.symbol.id
}

// Description returns a Symbol's description, or nil.
func (v *Value) Description() *Value {
	if v.symbol == nil {
		return nil
	}
	return v.symbol.description
}

// Object returns the object payload, or nil for non-objects.
func (v *Value) Object() *Object { return v.object }

// IsNullish reports whether v is null or undefined.
func (v *Value) IsNullish() bool {
	return v.kind == KindNull || v.kind == KindUndefined
}

// ---------------------------------------------------------------------------
// Equality
// ---------------------------------------------------------------------------

// StrictEqual compares two values with identity first, then by type tag and
// payload. Identical references are always equal, NaN included.
func StrictEqual(a, b *Value) (bool, error) {
	if a == nil || b == nil {
		return false, fmt.Errorf("strict equal on nil value: %w", ErrInvalidOperand)
	}
	if a == b {
		return true, nil
	}
	if a.kind != b.kind {
		return false, nil
	}
	switch a.kind {
	case KindNull, KindUndefined:
		return true, nil
	case KindBoolean:
		return a.boolean == b.boolean, nil
	case KindNumber:
		return a.number == b.number, nil
	case KindObject:
		return a.object == b.object, nil
	case KindSymbol:
		return a.symbol.id == b.symbol.id, nil
	case KindString:
		return equalUnits(a.str, b.str), nil
	default:
		return false, fmt.Errorf("strict equal on %s: %w", a.kind, ErrInvalidOperand)
	}
}

func equalUnits(a, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Rendering
// ---------------------------------------------------------------------------

// String renders the value as a single human-readable line.
func (v *Value) String() string {
	if v == nil {
		return "<nil>"
	}
	switch v.kind {
	case KindBoolean:
		if v.boolean {
			return "true"
		}
		return "false"
	case KindNull:
		return "null"
	case KindUndefined:
		return "undefined"
	case KindNumber:
		return NumberToString(v.number)
	case KindString:
		return strconv.Quote(v.Text())
	case KindSymbol:
		var b strings.Builder
		fmt.Fprintf(&b, "Symbol(%d)", v.symbol.id)
		if d := v.symbol.description; d != nil {
			fmt.Fprintf(&b, "[%s]", d.String())
		}
		return b.String()
	case KindObject:
		if v.object != nil && v.object.call != nil {
			return fmt.Sprintf("Function {%d}", v.object.call.ID())
		}
		return "Object {...}"
	default:
		return fmt.Sprintf("<%s>", v.kind)
	}
}
