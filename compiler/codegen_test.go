package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/waterscript/vm"
)

func opcodes(u *vm.Unit) []vm.Opcode {
	var ops []vm.Opcode
	r := vm.NewBytecodeReader(u.Code())
	for r.HasMore() {
		op := r.ReadOpcode()
		if op == vm.OpEnd {
			break
		}
		ops = append(ops, op)
		r.Skip(op.OperandBytes())
	}
	return ops
}

func sameOps(got, want []vm.Opcode) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestCompile_PostOrder(t *testing.T) {
	u, err := NewCompiler().Compile(program(bin(OpAdd, num(2), bin(OpMul, num(3), num(45)))))
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	want := []vm.Opcode{
		vm.OpLdTwo, vm.OpLdValue, vm.OpLdValue, vm.OpMul, vm.OpAdd, vm.OpRet,
		vm.OpLdUndefined, vm.OpRet,
	}
	if got := opcodes(u); !sameOps(got, want) {
		t.Errorf("opcodes:\n got %v\nwant %v", got, want)
	}
	code := u.Code()
	if vm.Opcode(code[len(code)-1]) != vm.OpEnd {
		t.Error("unit must end with the terminator")
	}
}

func TestCompile_EmptyProgram(t *testing.T) {
	u, err := NewCompiler().Compile(&Program{})
	if err != nil {
		t.Fatal(err)
	}
	want := []vm.Opcode{vm.OpLdUndefined, vm.OpRet}
	if got := opcodes(u); !sameOps(got, want) {
		t.Errorf("opcodes: got %v, want %v", got, want)
	}
}

func TestCompile_Operators(t *testing.T) {
	tests := []struct {
		expr Expr
		want vm.Opcode
	}{
		{bin(OpOr, num(1), num(2)), vm.OpLogicalOr},
		{bin(OpAnd, num(1), num(2)), vm.OpLogicalAnd},
		{bin(OpBitXor, num(1), num(2)), vm.OpBitXor},
		{bin(OpUnsignedRightShift, num(1), num(2)), vm.OpShiftRightUnsigned},
		{bin(OpPow, num(1), num(2)), vm.OpPow},
		{bin(OpStrictNotEq, num(1), num(2)), vm.OpStrictNotEq},
		{bin(OpLessEq, num(1), num(2)), vm.OpLTE},
		{un(OpBitNot, num(1)), vm.OpBitNot},
		{un(OpNot, num(1)), vm.OpNot},
		{un(OpNeg, num(1)), vm.OpNeg},
	}
	for _, tt := range tests {
		u, _ := NewCompiler().Compile(program(tt.expr))
		ops := opcodes(u)
		// ... operator, RET, LD_UNDEFINED, RET
		if got := ops[len(ops)-4]; got != tt.want {
			t.Errorf("%T: got %s, want %s", tt.expr, got.Name(), tt.want.Name())
		}
	}
}

func TestCompile_Literals(t *testing.T) {
	tests := []struct {
		expr Expr
		want vm.Opcode
	}{
		{num(0), vm.OpLdZero},
		{num(1), vm.OpLdOne},
		{num(2), vm.OpLdTwo},
		{num(2.5), vm.OpLdValue},
		{&BooleanLiteral{Value: true}, vm.OpLdTrue},
		{&BooleanLiteral{}, vm.OpLdFalse},
		{&NullLiteral{}, vm.OpLdNull},
		{&This{}, vm.OpLdThis},
	}
	for _, tt := range tests {
		u, _ := NewCompiler().Compile(program(tt.expr))
		if got := opcodes(u)[0]; got != tt.want {
			t.Errorf("%T: got %s, want %s", tt.expr, got.Name(), tt.want.Name())
		}
	}
}

func TestCompile_SequenceDropsLeft(t *testing.T) {
	u, _ := NewCompiler().Compile(program(&SequenceExpr{Left: num(1), Right: num(2)}))
	want := []vm.Opcode{vm.OpLdOne, vm.OpDrop, vm.OpLdTwo, vm.OpRet, vm.OpLdUndefined, vm.OpRet}
	if got := opcodes(u); !sameOps(got, want) {
		t.Errorf("opcodes: got %v, want %v", got, want)
	}
}

func TestCompile_StatementsDropUnusedValues(t *testing.T) {
	prog := &Program{Statements: []Stmt{
		&ExprStmt{Expr: num(1)},
		&BlockStmt{Statements: []Stmt{&ExprStmt{Expr: num(2)}, &EmptyStmt{}}},
		&ExprStmt{Expr: num(0)},
	}}
	u, _ := NewCompiler().Compile(prog)
	want := []vm.Opcode{
		vm.OpLdOne, vm.OpDrop,
		vm.OpLdTwo, vm.OpDrop,
		vm.OpLdZero, vm.OpRet,
		vm.OpLdUndefined, vm.OpRet,
	}
	if got := opcodes(u); !sameOps(got, want) {
		t.Errorf("opcodes: got %v, want %v", got, want)
	}
}

func TestCompile_UnsupportedBecomesAbort(t *testing.T) {
	c := NewCompiler()
	prog := program(
		&Identifier{SpanVal: at(1, 1), Name: "x"},
		bin(OpAdd, &StringLiteral{SpanVal: at(2, 1), Value: "a"}, num(1)),
	)
	u, err := c.Compile(prog)
	if err != nil {
		t.Fatalf("unsupported syntax must not fail compilation: %v", err)
	}
	want := []vm.Opcode{
		vm.OpAbort, vm.OpDrop,
		vm.OpAbort, vm.OpLdOne, vm.OpAdd, vm.OpRet,
		vm.OpLdUndefined, vm.OpRet,
	}
	if got := opcodes(u); !sameOps(got, want) {
		t.Errorf("opcodes: got %v, want %v", got, want)
	}
	if len(c.Aborts()) != 2 || c.Aborts()[1].Start.Line != 2 {
		t.Errorf("aborts: %+v", c.Aborts())
	}
}

func TestCompile_UnsupportedOperators(t *testing.T) {
	for _, e := range []Expr{
		un(OpTypeof, num(1)),
		un(OpIncrement, num(1)),
		&PostfixExpr{Op: OpDecrement, Operand: num(1)},
		&ConditionalExpr{Test: num(1), Consequent: num(1), Alternate: num(2)},
		&ComputedMemberExpr{Object: num(1), Property: num(2)},
		&AssignmentExpr{Target: &Identifier{Name: "a"}, Value: num(1)},
		&CallExpr{Callee: &Identifier{Name: "f"}},
		&FunctionExpression{},
	} {
		c := NewCompiler()
		c.Compile(program(e))
		if len(c.Aborts()) != 1 {
			t.Errorf("%T: %d aborts, want 1", e, len(c.Aborts()))
		}
	}
}

func TestCompile_MemberUsesConstantKey(t *testing.T) {
	u, _ := NewCompiler().Compile(program(&MemberExpr{Object: &This{}, Property: "length"}))
	r := vm.NewBytecodeReader(u.Code())
	r.ReadOpcode() // LD_THIS
	if op := r.ReadOpcode(); op != vm.OpGetProperty {
		t.Fatalf("got %s, want GET_PROPERTY", op.Name())
	}
	key, err := u.Constant(r.ReadUint64())
	if err != nil || key.Text() != "length" {
		t.Errorf("property key: %v, %v", key, err)
	}
}

func TestCompile_SourceMap(t *testing.T) {
	prog := program(&BinaryExpr{
		SpanVal: at(1, 3),
		Op:      OpAdd,
		Left:    &NumericLiteral{SpanVal: at(1, 1), Value: 7},
		Right:   &NumericLiteral{SpanVal: at(1, 5), Value: 8},
	})
	u, _ := NewCompiler().Compile(prog)
	tests := []struct {
		offset int
		col    uint32
	}{
		{0, 1},  // LD_VALUE 7
		{9, 5},  // LD_VALUE 8
		{18, 3}, // ADD
	}
	for _, tt := range tests {
		line, col, ok := u.SourcePosition(tt.offset)
		if !ok || line != 1 || col != tt.col {
			t.Errorf("offset %d: got %d:%d (%v), want 1:%d", tt.offset, line, col, ok, tt.col)
		}
	}
}

func TestCompileNode(t *testing.T) {
	c := NewCompiler()
	if _, err := c.CompileNode(nil); !errors.Is(err, ErrNilNode) {
		t.Errorf("nil: %v", err)
	}
	if _, err := c.CompileNode(num(1)); err == nil || !strings.Contains(err.Error(), "NumericLiteral") {
		t.Errorf("bare expression: %v", err)
	}
	fn := &FunctionExpression{Body: []Stmt{&ExprStmt{Expr: num(40)}}}
	u, err := c.CompileNode(fn)
	if err != nil {
		t.Fatal(err)
	}
	if got := opcodes(u); got[0] != vm.OpLdValue || got[1] != vm.OpRet {
		t.Errorf("function body: %v", got)
	}
}
