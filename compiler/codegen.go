package compiler

import (
	"errors"
	"fmt"
	"math"

	"github.com/tliron/commonlog"

	"github.com/chazu/waterscript/vm"
)

// ---------------------------------------------------------------------------
// Codegen: compile AST to a vm.Unit
// ---------------------------------------------------------------------------

var log = commonlog.GetLogger("waterscript.compiler")

// ErrNilNode is returned when asked to compile nothing.
var ErrNilNode = errors.New("compiler: nil node")

// Compiler walks an AST post-order and emits a compiled unit. Node kinds it
// has no lowering for become an Abort instruction so the gap surfaces as a
// trap when that code runs, not as a compile failure.
type Compiler struct {
	unit   *vm.UnitBuilder
	aborts []Span
}

// NewCompiler creates a new compiler.
func NewCompiler() *Compiler {
	return &Compiler{}
}

// Aborts returns the spans of the nodes the last compile lowered to Abort.
func (c *Compiler) Aborts() []Span {
	return c.aborts
}

// Compile compiles a program. The value of the final expression statement is
// the unit's result; otherwise the unit returns undefined.
func (c *Compiler) Compile(prog *Program) (*vm.Unit, error) {
	if prog == nil {
		return nil, ErrNilNode
	}
	return c.compileBody(prog.Statements), nil
}

// CompileFunction compiles a function expression's body into the unit that
// a vm.Function installs.
func (c *Compiler) CompileFunction(fn *FunctionExpression) (*vm.Unit, error) {
	if fn == nil {
		return nil, ErrNilNode
	}
	if len(fn.Params) > 0 {
		log.Debugf("function %q: %d parameters are not bound", fn.Name, len(fn.Params))
	}
	return c.compileBody(fn.Body), nil
}

// CompileNode compiles a Program or FunctionExpression.
func (c *Compiler) CompileNode(n Node) (*vm.Unit, error) {
	switch n := n.(type) {
	case *Program:
		return c.Compile(n)
	case *FunctionExpression:
		return c.CompileFunction(n)
	case nil:
		return nil, ErrNilNode
	default:
		return nil, fmt.Errorf("compiler: cannot compile a %T as a unit", n)
	}
}

func (c *Compiler) compileBody(stmts []Stmt) *vm.Unit {
	c.unit = vm.NewUnitBuilder()
	c.aborts = nil

	for i, stmt := range stmts {
		last := i == len(stmts)-1
		if es, ok := stmt.(*ExprStmt); ok && last {
			c.compileExpr(es.Expr)
			c.unit.Emit(vm.OpRet)
			continue
		}
		c.compileStmt(stmt)
	}

	// Every unit ends with an explicit return of undefined and the terminator.
	c.unit.Emit(vm.OpLdUndefined)
	c.unit.Emit(vm.OpRet)
	c.unit.EmitEnd()
	return c.unit.Build()
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (c *Compiler) compileStmt(stmt Stmt) {
	switch s := stmt.(type) {
	case *ExprStmt:
		c.compileExpr(s.Expr)
		c.unit.Emit(vm.OpDrop)
	case *BlockStmt:
		for _, inner := range s.Statements {
			c.compileStmt(inner)
		}
	case *EmptyStmt:
	default:
		c.abort(stmt)
	}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

var binaryOpcodes = map[Operator]vm.Opcode{
	OpOr:                 vm.OpLogicalOr,
	OpAnd:                vm.OpLogicalAnd,
	OpBitOr:              vm.OpBitOr,
	OpBitXor:             vm.OpBitXor,
	OpBitAnd:             vm.OpBitAnd,
	OpLeftShift:          vm.OpShiftLeft,
	OpRightShift:         vm.OpShiftRight,
	OpUnsignedRightShift: vm.OpShiftRightUnsigned,
	OpAdd:                vm.OpAdd,
	OpSub:                vm.OpSub,
	OpMul:                vm.OpMul,
	OpDiv:                vm.OpDiv,
	OpMod:                vm.OpMod,
	OpPow:                vm.OpPow,
	OpEq:                 vm.OpEq,
	OpNotEq:              vm.OpNotEq,
	OpStrictEq:           vm.OpStrictEq,
	OpStrictNotEq:        vm.OpStrictNotEq,
	OpLess:               vm.OpLT,
	OpLessEq:             vm.OpLTE,
	OpGreater:            vm.OpGT,
	OpGreaterEq:          vm.OpGTE,
}

var unaryOpcodes = map[Operator]vm.Opcode{
	OpPositive: vm.OpPositive,
	OpNeg:      vm.OpNeg,
	OpBitNot:   vm.OpBitNot,
	OpNot:      vm.OpNot,
}

func (c *Compiler) compileExpr(expr Expr) {
	switch e := expr.(type) {
	case *BinaryExpr:
		op, ok := binaryOpcodes[e.Op]
		if !ok {
			c.abort(e)
			return
		}
		c.compileExpr(e.Left)
		c.compileExpr(e.Right)
		c.mark(e)
		c.unit.Emit(op)

	case *UnaryExpr:
		op, ok := unaryOpcodes[e.Op]
		if !ok {
			c.abort(e)
			return
		}
		c.compileExpr(e.Operand)
		c.mark(e)
		c.unit.Emit(op)

	case *SequenceExpr:
		c.compileExpr(e.Left)
		c.unit.Emit(vm.OpDrop)
		c.compileExpr(e.Right)

	case *GroupExpr:
		c.compileExpr(e.Expr)

	case *MemberExpr:
		c.compileExpr(e.Object)
		c.mark(e)
		c.unit.EmitOperand(vm.OpGetProperty, c.unit.AddString(e.Property))

	case *NumericLiteral:
		c.mark(e)
		c.compileNumber(e.Value)

	case *BooleanLiteral:
		c.mark(e)
		if e.Value {
			c.unit.Emit(vm.OpLdTrue)
		} else {
			c.unit.Emit(vm.OpLdFalse)
		}

	case *NullLiteral:
		c.mark(e)
		c.unit.Emit(vm.OpLdNull)

	case *This:
		c.mark(e)
		c.unit.Emit(vm.OpLdThis)

	case *FunctionCall:
		c.mark(e)
		c.unit.EmitOperand(vm.OpCall, uint64(e.FunctionID))

	default:
		c.abort(expr)
	}
}

// compileNumber uses the dedicated loads for the common small constants.
func (c *Compiler) compileNumber(f float64) {
	switch {
	case f == 0 && !math.Signbit(f):
		c.unit.Emit(vm.OpLdZero)
	case f == 1:
		c.unit.Emit(vm.OpLdOne)
	case f == 2:
		c.unit.Emit(vm.OpLdTwo)
	case math.IsInf(f, 1):
		c.unit.Emit(vm.OpLdInfinity)
	case math.IsNaN(f):
		c.unit.Emit(vm.OpLdNaN)
	default:
		c.unit.EmitOperand(vm.OpLdValue, c.unit.AddNumber(f))
	}
}

// abort emits a trap in place of a node the compiler cannot lower.
func (c *Compiler) abort(n Node) {
	var sp Span
	if n != nil {
		sp = n.Span()
	}
	log.Debugf("no lowering for %T at %d:%d, emitting abort", n, sp.Start.Line, sp.Start.Column)
	c.aborts = append(c.aborts, sp)
	c.mark(n)
	c.unit.Emit(vm.OpAbort)
}

// mark records the node's start position for the next instruction.
func (c *Compiler) mark(n Node) {
	if n == nil {
		return
	}
	if sp := n.Span(); sp.Start.Line > 0 {
		c.unit.Mark(uint32(sp.Start.Line), uint32(sp.Start.Column))
	}
}
