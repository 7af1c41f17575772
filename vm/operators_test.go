package vm

import (
	"errors"
	"math"
	"testing"
)

func TestBinaryOp_Arithmetic(t *testing.T) {
	tests := []struct {
		op   Opcode
		a, b *Value
		want float64
	}{
		{OpAdd, NewNumber(2), NewNumber(3), 5},
		{OpSub, NewNumber(2), NewNumber(3), -1},
		{OpMul, NewNumber(3), NewNumber(45), 135},
		{OpDiv, NewNumber(1), NewNumber(4), 0.25},
		{OpMod, NewNumber(-7), NewNumber(3), -1},
		{OpPow, NewNumber(2), NewNumber(10), 1024},
		{OpAdd, True, NewNumber(1), 2},
		{OpAdd, Null, NewNumber(1), 1},
		{OpMul, StringFromGo(" 6 "), NewNumber(7), 42},
		{OpBitOr, NewNumber(5), NewNumber(2), 7},
		{OpBitXor, NewNumber(6), NewNumber(3), 5},
		{OpBitAnd, NewNumber(6), NewNumber(3), 2},
		{OpShiftLeft, NewNumber(1), NewNumber(33), 2},
		{OpShiftRight, NewNumber(-8), NewNumber(1), -4},
		{OpShiftRightUnsigned, NewNumber(-1), NewNumber(28), 15},
	}
	for _, tt := range tests {
		r, err := binaryOp(tt.op, tt.a, tt.b)
		if err != nil {
			t.Errorf("%s(%v, %v): %v", tt.op.Name(), tt.a, tt.b, err)
			continue
		}
		if r.Kind() != KindNumber || r.Number() != tt.want {
			t.Errorf("%s(%v, %v): got %v, want %v", tt.op.Name(), tt.a, tt.b, r, tt.want)
		}
	}
}

func TestBinaryOp_NaNCases(t *testing.T) {
	tests := []struct {
		op   Opcode
		a, b *Value
	}{
		{OpAdd, Undefined, NewNumber(1)},
		{OpPow, One, NewNumber(math.Inf(1))},
		{OpPow, NewNumber(3), NewNumber(math.NaN())},
		{OpMod, NewNumber(1), Zero},
		{OpSub, StringFromGo("abc"), One},
	}
	for _, tt := range tests {
		r, err := binaryOp(tt.op, tt.a, tt.b)
		if err != nil || !math.IsNaN(r.Number()) {
			t.Errorf("%s(%v, %v): got %v, %v; want NaN", tt.op.Name(), tt.a, tt.b, r, err)
		}
	}
}

func TestBinaryOp_StringConcat(t *testing.T) {
	r, err := binaryOp(OpAdd, StringFromGo("a"), NewNumber(1))
	if err != nil || r.Text() != "a1" {
		t.Errorf(`"a"+1: got %v, %v`, r, err)
	}
	r, err = binaryOp(OpAdd, Null, StringFromGo("!"))
	if err != nil || r.Text() != "null!" {
		t.Errorf(`null+"!": got %v, %v`, r, err)
	}
	r, err = binaryOp(OpAdd, NewNumber(0.5), StringFromGo(""))
	if err != nil || r.Text() != "0.5" {
		t.Errorf(`0.5+"": got %v, %v`, r, err)
	}
}

func TestBinaryOp_Relational(t *testing.T) {
	nan := NewNumber(math.NaN())
	tests := []struct {
		op   Opcode
		a, b *Value
		want bool
	}{
		{OpLT, One, Two, true},
		{OpLT, Two, One, false},
		{OpLTE, One, One, true},
		{OpGT, Two, One, true},
		{OpGTE, One, Two, false},
		{OpGTE, Two, Two, true},
		{OpLT, nan, One, false},
		{OpLTE, nan, One, false},
		{OpGT, nan, One, false},
		{OpGTE, One, nan, false},
		{OpLT, StringFromGo("a"), StringFromGo("b"), true},
		{OpLT, StringFromGo("B"), StringFromGo("a"), true},
		{OpGT, StringFromGo("ab"), StringFromGo("a"), true},
		{OpLT, StringFromGo("10"), NewNumber(9), false},
	}
	for _, tt := range tests {
		r, err := binaryOp(tt.op, tt.a, tt.b)
		if err != nil {
			t.Errorf("%s(%v, %v): %v", tt.op.Name(), tt.a, tt.b, err)
			continue
		}
		if r.Boolean() != tt.want {
			t.Errorf("%s(%v, %v): got %v, want %v", tt.op.Name(), tt.a, tt.b, r, tt.want)
		}
	}
}

func TestLooseEqual(t *testing.T) {
	obj := NewObject(NewContext(), nil)
	tests := []struct {
		a, b *Value
		want bool
	}{
		{Null, Undefined, true},
		{Null, Zero, false},
		{NewNumber(1), StringFromGo("1"), true},
		{StringFromGo(""), Zero, true},
		{True, One, true},
		{False, StringFromGo("0"), true},
		{NewNumber(math.NaN()), NewNumber(math.NaN()), false},
		{obj, obj, true},
		{obj, StringFromGo("[object Object]"), true},
		{StringFromGo("a"), StringFromGo("a"), true},
	}
	for _, tt := range tests {
		got, err := LooseEqual(tt.a, tt.b)
		if err != nil {
			t.Errorf("%v == %v: %v", tt.a, tt.b, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%v == %v: got %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestBinaryOp_Equality(t *testing.T) {
	r, _ := binaryOp(OpNotEq, One, StringFromGo("1"))
	if r != False {
		t.Errorf(`1 != "1": got %v`, r)
	}
	r, _ = binaryOp(OpStrictEq, One, StringFromGo("1"))
	if r != False {
		t.Errorf(`1 === "1": got %v`, r)
	}
	r, _ = binaryOp(OpStrictNotEq, One, NewNumber(1))
	if r != False {
		t.Errorf("1 !== 1: got %v", r)
	}
}

func TestBinaryOp_LogicalSelects(t *testing.T) {
	s := StringFromGo("picked")
	if r, _ := binaryOp(OpLogicalOr, Zero, s); r != s {
		t.Errorf("0 || s: got %v", r)
	}
	if r, _ := binaryOp(OpLogicalOr, s, Zero); r != s {
		t.Errorf("s || 0: got %v", r)
	}
	if r, _ := binaryOp(OpLogicalAnd, Null, s); r != Null {
		t.Errorf("null && s: got %v", r)
	}
	if r, _ := binaryOp(OpLogicalAnd, s, One); r != One {
		t.Errorf("s && 1: got %v", r)
	}
}

func TestBinaryOp_SymbolOperandFails(t *testing.T) {
	sym := NewSymbol(nil)
	if _, err := binaryOp(OpMul, sym, One); !errors.Is(err, ErrTypeError) {
		t.Errorf("symbol * 1: got %v, want ErrTypeError", err)
	}
	if _, err := binaryOp(OpDup, One, One); !errors.Is(err, ErrInvalidOperand) {
		t.Errorf("non-binary opcode: got %v", err)
	}
}

func TestUnaryOp(t *testing.T) {
	tests := []struct {
		op   Opcode
		a    *Value
		want *Value
	}{
		{OpNot, Zero, True},
		{OpNot, StringFromGo("x"), False},
		{OpPositive, StringFromGo("12"), NewNumber(12)},
		{OpNeg, NewNumber(3), NewNumber(-3)},
		{OpBitNot, NewNumber(5), NewNumber(-6)},
		{OpBitNot, NewNumber(math.NaN()), NewNumber(-1)},
	}
	for _, tt := range tests {
		r, err := unaryOp(tt.op, tt.a)
		if err != nil {
			t.Errorf("%s(%v): %v", tt.op.Name(), tt.a, err)
			continue
		}
		if eq, _ := StrictEqual(r, tt.want); !eq {
			t.Errorf("%s(%v): got %v, want %v", tt.op.Name(), tt.a, r, tt.want)
		}
	}
}
