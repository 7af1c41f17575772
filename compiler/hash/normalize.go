package hash

import (
	"github.com/chazu/waterscript/compiler"
)

// ---------------------------------------------------------------------------
// AST Normalization: compiler AST → frozen hashing AST
//
// Walks the compiler's working AST and produces the frozen hashing AST with
// de Bruijn indices for function parameters and verbatim names for anything
// unbound. Grouping parentheses and source positions are dropped.
// ---------------------------------------------------------------------------

// scope tracks the names one function expression binds.
type scope struct {
	vars map[string]uint16 // name → slot index
}

// normalizer holds state for the normalization walk.
type normalizer struct {
	scopes []scope // innermost function last
}

// Normalize transforms a compiler node into its hashing form. Statements,
// expressions and whole programs are all accepted.
func Normalize(node compiler.Node) HNode {
	n := &normalizer{}
	switch x := node.(type) {
	case *compiler.Program:
		return &HProgram{Statements: n.normalizeStmts(x.Statements)}
	case compiler.Stmt:
		return n.normalizeStmt(x)
	case compiler.Expr:
		return n.normalizeExpr(x)
	default:
		return &HNull{}
	}
}

// ---------------------------------------------------------------------------
// Statement normalization
// ---------------------------------------------------------------------------

func (n *normalizer) normalizeStmts(stmts []compiler.Stmt) []HNode {
	out := make([]HNode, len(stmts))
	for i, s := range stmts {
		out[i] = n.normalizeStmt(s)
	}
	return out
}

func (n *normalizer) normalizeStmt(stmt compiler.Stmt) HNode {
	switch s := stmt.(type) {
	case *compiler.ExprStmt:
		return &HExprStmt{Expr: n.normalizeExpr(s.Expr)}
	case *compiler.BlockStmt:
		return &HBlock{Statements: n.normalizeStmts(s.Statements)}
	case *compiler.EmptyStmt:
		return &HEmpty{}
	default:
		return &HNull{}
	}
}

// ---------------------------------------------------------------------------
// Expression normalization
// ---------------------------------------------------------------------------

func (n *normalizer) normalizeExpr(expr compiler.Expr) HNode {
	switch e := expr.(type) {
	case *compiler.NumericLiteral:
		return &HNumber{Value: e.Value}
	case *compiler.StringLiteral:
		return &HString{Value: e.Value}
	case *compiler.BooleanLiteral:
		return &HBool{Value: e.Value}
	case *compiler.NullLiteral:
		return &HNull{}
	case *compiler.This:
		return &HThis{}

	case *compiler.Identifier:
		return n.resolve(e.Name)

	case *compiler.GroupExpr:
		return n.normalizeExpr(e.Expr)

	case *compiler.BinaryExpr:
		return &HBinary{
			Op:    e.Op.String(),
			Left:  n.normalizeExpr(e.Left),
			Right: n.normalizeExpr(e.Right),
		}

	case *compiler.UnaryExpr:
		return &HUnary{Op: e.Op.String(), Operand: n.normalizeExpr(e.Operand)}

	case *compiler.PostfixExpr:
		return &HPostfix{Op: e.Op.String(), Operand: n.normalizeExpr(e.Operand)}

	case *compiler.SequenceExpr:
		return &HSequence{
			Left:  n.normalizeExpr(e.Left),
			Right: n.normalizeExpr(e.Right),
		}

	case *compiler.AssignmentExpr:
		return &HAssignment{
			Target: n.normalizeExpr(e.Target),
			Value:  n.normalizeExpr(e.Value),
		}

	case *compiler.MemberExpr:
		return &HMember{Object: n.normalizeExpr(e.Object), Property: e.Property}

	case *compiler.ComputedMemberExpr:
		return &HComputedMember{
			Object:   n.normalizeExpr(e.Object),
			Property: n.normalizeExpr(e.Property),
		}

	case *compiler.ConditionalExpr:
		return &HConditional{
			Test:       n.normalizeExpr(e.Test),
			Consequent: n.normalizeExpr(e.Consequent),
			Alternate:  n.normalizeExpr(e.Alternate),
		}

	case *compiler.CallExpr:
		args := make([]HNode, len(e.Arguments))
		for i, a := range e.Arguments {
			args[i] = n.normalizeExpr(a)
		}
		return &HCall{Callee: n.normalizeExpr(e.Callee), Arguments: args}

	case *compiler.FunctionCall:
		return &HFunctionCall{FunctionID: e.FunctionID}

	case *compiler.FunctionExpression:
		return n.normalizeFunction(e)

	default:
		return &HNull{}
	}
}

// ---------------------------------------------------------------------------
// Name resolution → de Bruijn indices
// ---------------------------------------------------------------------------

// resolve maps a name to the innermost function slot binding it, or leaves
// it free.
func (n *normalizer) resolve(name string) HNode {
	for depth := len(n.scopes) - 1; depth >= 0; depth-- {
		if slot, ok := n.scopes[depth].vars[name]; ok {
			return &HLocalRef{
				ScopeDepth: uint16(len(n.scopes) - 1 - depth),
				SlotIndex:  slot,
			}
		}
	}
	return &HFreeRef{Name: name}
}

// ---------------------------------------------------------------------------
// Function normalization
// ---------------------------------------------------------------------------

func (n *normalizer) normalizeFunction(fn *compiler.FunctionExpression) *HFunction {
	vars := make(map[string]uint16)
	slot := uint16(0)
	for _, p := range fn.Params {
		vars[p] = slot
		slot++
	}
	named := false
	if _, shadowed := vars[fn.Name]; fn.Name != "" && !shadowed {
		vars[fn.Name] = slot
		named = true
	}
	n.scopes = append(n.scopes, scope{vars: vars})

	stmts := n.normalizeStmts(fn.Body)

	n.scopes = n.scopes[:len(n.scopes)-1]

	return &HFunction{
		Arity:      len(fn.Params),
		Named:      named,
		Statements: stmts,
	}
}
