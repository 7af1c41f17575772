package vm

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Operator semantics
// ---------------------------------------------------------------------------

// binaryOp evaluates a two-operand instruction. The result may be one of the
// operands (logical operators select rather than convert).
func binaryOp(op Opcode, a, b *Value) (*Value, error) {
	switch op {
	case OpAdd:
		return add(a, b)
	case OpSub, OpMul, OpDiv, OpMod, OpPow:
		x, y, err := numbers(a, b)
		if err != nil {
			return nil, err
		}
		return NewNumber(arith(op, x, y)), nil
	case OpBitOr, OpBitXor, OpBitAnd, OpShiftLeft, OpShiftRight, OpShiftRightUnsigned:
		x, y, err := numbers(a, b)
		if err != nil {
			return nil, err
		}
		return NewNumber(bitwise(op, x, y)), nil
	case OpLT:
		return relational(a, b, false)
	case OpGT:
		return relational(b, a, false)
	case OpLTE:
		return relational(b, a, true)
	case OpGTE:
		return relational(a, b, true)
	case OpEq, OpNotEq:
		eq, err := LooseEqual(a, b)
		if err != nil {
			return nil, err
		}
		return Bool(eq == (op == OpEq)), nil
	case OpStrictEq, OpStrictNotEq:
		eq, err := StrictEqual(a, b)
		if err != nil {
			return nil, err
		}
		return Bool(eq == (op == OpStrictEq)), nil
	case OpLogicalOr:
		// Both operands are already evaluated; the operator only selects.
		if ToBoolean(a) {
			return a, nil
		}
		return b, nil
	case OpLogicalAnd:
		if !ToBoolean(a) {
			return a, nil
		}
		return b, nil
	}
	return nil, fmt.Errorf("%s is not a binary operator: %w", op.Name(), ErrInvalidOperand)
}

// unaryOp evaluates a one-operand instruction.
func unaryOp(op Opcode, a *Value) (*Value, error) {
	switch op {
	case OpNot:
		return Bool(!ToBoolean(a)), nil
	case OpPositive, OpNeg, OpBitNot:
		x, err := ToNumber(a)
		if err != nil {
			return nil, err
		}
		switch op {
		case OpPositive:
			return NewNumber(x), nil
		case OpNeg:
			return NewNumber(-x), nil
		default:
			return NewNumber(float64(^ToInt32(x))), nil
		}
	}
	return nil, fmt.Errorf("%s is not a unary operator: %w", op.Name(), ErrInvalidOperand)
}

func numbers(a, b *Value) (float64, float64, error) {
	x, err := ToNumber(a)
	if err != nil {
		return 0, 0, err
	}
	y, err := ToNumber(b)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

// add concatenates when either primitive operand is a string and adds
// numerically otherwise.
func add(a, b *Value) (*Value, error) {
	pa, pb := toPrimitive(a), toPrimitive(b)
	if pa.kind == KindString || pb.kind == KindString {
		x, err := unitsOf(pa)
		if err != nil {
			return nil, err
		}
		y, err := unitsOf(pb)
		if err != nil {
			return nil, err
		}
		return concatUnits(x, y), nil
	}
	x, y, err := numbers(pa, pb)
	if err != nil {
		return nil, err
	}
	return NewNumber(x + y), nil
}

func arith(op Opcode, x, y float64) float64 {
	switch op {
	case OpSub:
		return x - y
	case OpMul:
		return x * y
	case OpDiv:
		return x / y
	case OpMod:
		return math.Mod(x, y)
	case OpPow:
		// math.Pow answers 1 for these; the language answers NaN.
		if math.IsNaN(y) || (math.Abs(x) == 1 && math.IsInf(y, 0)) {
			return math.NaN()
		}
		return math.Pow(x, y)
	}
	return math.NaN()
}

func bitwise(op Opcode, x, y float64) float64 {
	shift := ToUint32(y) & 31
	switch op {
	case OpBitOr:
		return float64(ToInt32(x) | ToInt32(y))
	case OpBitXor:
		return float64(ToInt32(x) ^ ToInt32(y))
	case OpBitAnd:
		return float64(ToInt32(x) & ToInt32(y))
	case OpShiftLeft:
		return float64(ToInt32(x) << shift)
	case OpShiftRight:
		return float64(ToInt32(x) >> shift)
	case OpShiftRightUnsigned:
		return float64(ToUint32(x) >> shift)
	}
	return 0
}

// relational computes a < b, or !(a < b) when negate is set. An undefined
// comparison (NaN involved) is false either way.
func relational(a, b *Value, negate bool) (*Value, error) {
	pa, pb := toPrimitive(a), toPrimitive(b)
	if pa.kind == KindString && pb.kind == KindString {
		less := compareUnits(pa.str, pb.str) < 0
		return Bool(less != negate), nil
	}
	x, y, err := numbers(pa, pb)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(x) || math.IsNaN(y) {
		return False, nil
	}
	return Bool((x < y) != negate), nil
}

// LooseEqual implements the language's == comparison.
func LooseEqual(a, b *Value) (bool, error) {
	if a.kind == b.kind {
		return StrictEqual(a, b)
	}
	switch {
	case a.IsNullish() && b.IsNullish():
		return true, nil
	case a.IsNullish() || b.IsNullish():
		return false, nil
	case a.kind == KindNumber && b.kind == KindString:
		return a.number == StringToNumber(b.Text()), nil
	case a.kind == KindString && b.kind == KindNumber:
		return StringToNumber(a.Text()) == b.number, nil
	case a.kind == KindBoolean:
		return LooseEqual(numberOf(a), b)
	case b.kind == KindBoolean:
		return LooseEqual(a, numberOf(b))
	case a.kind == KindObject && b.kind != KindObject:
		return LooseEqual(toPrimitive(a), b)
	case b.kind == KindObject && a.kind != KindObject:
		return LooseEqual(a, toPrimitive(b))
	}
	return false, nil
}

func numberOf(v *Value) *Value {
	if v.boolean {
		return One
	}
	return Zero
}
