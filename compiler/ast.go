package compiler

// ---------------------------------------------------------------------------
// AST: the tree the code generator consumes
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// Operator identifies a unary, binary or postfix operator.
type Operator int

const (
	OpInvalid Operator = iota

	// Binary
	OpOr                 // ||
	OpAnd                // &&
	OpBitOr              // |
	OpBitXor             // ^
	OpBitAnd             // &
	OpLeftShift          // <<
	OpRightShift         // >>
	OpUnsignedRightShift // >>>
	OpAdd                // +
	OpSub                // -
	OpMul                // *
	OpDiv                // /
	OpMod                // %
	OpPow                // **
	OpEq                 // ==
	OpNotEq              // !=
	OpStrictEq           // ===
	OpStrictNotEq        // !==
	OpLess               // <
	OpLessEq             // <=
	OpGreater            // >
	OpGreaterEq          // >=

	// Unary
	OpPositive  // +x
	OpNeg       // -x
	OpBitNot    // ~x
	OpNot       // !x
	OpIncrement // ++x, x++
	OpDecrement // --x, x--
	OpNew       // new x
	OpTypeof    // typeof x
)

var operatorNames = map[Operator]string{
	OpOr: "||", OpAnd: "&&",
	OpBitOr: "|", OpBitXor: "^", OpBitAnd: "&",
	OpLeftShift: "<<", OpRightShift: ">>", OpUnsignedRightShift: ">>>",
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%", OpPow: "**",
	OpEq: "==", OpNotEq: "!=", OpStrictEq: "===", OpStrictNotEq: "!==",
	OpLess: "<", OpLessEq: "<=", OpGreater: ">", OpGreaterEq: ">=",
	OpPositive: "+", OpNeg: "-", OpBitNot: "~", OpNot: "!",
	OpIncrement: "++", OpDecrement: "--", OpNew: "new", OpTypeof: "typeof",
}

func (op Operator) String() string {
	if s, ok := operatorNames[op]; ok {
		return s
	}
	return "?"
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// NumericLiteral represents a number literal.
type NumericLiteral struct {
	SpanVal Span
	Value   float64
}

func (n *NumericLiteral) Span() Span { return n.SpanVal }
func (n *NumericLiteral) node()      {}
func (n *NumericLiteral) expr()      {}

// StringLiteral represents a quoted string literal.
type StringLiteral struct {
	SpanVal Span
	Value   string
}

func (n *StringLiteral) Span() Span { return n.SpanVal }
func (n *StringLiteral) node()      {}
func (n *StringLiteral) expr()      {}

// BooleanLiteral represents true or false.
type BooleanLiteral struct {
	SpanVal Span
	Value   bool
}

func (n *BooleanLiteral) Span() Span { return n.SpanVal }
func (n *BooleanLiteral) node()      {}
func (n *BooleanLiteral) expr()      {}

// NullLiteral represents null.
type NullLiteral struct {
	SpanVal Span
}

func (n *NullLiteral) Span() Span { return n.SpanVal }
func (n *NullLiteral) node()      {}
func (n *NullLiteral) expr()      {}

// Identifier represents a name reference.
type Identifier struct {
	SpanVal Span
	Name    string
}

func (n *Identifier) Span() Span { return n.SpanVal }
func (n *Identifier) node()      {}
func (n *Identifier) expr()      {}

// This represents the this keyword.
type This struct {
	SpanVal Span
}

func (n *This) Span() Span { return n.SpanVal }
func (n *This) node()      {}
func (n *This) expr()      {}

// BinaryExpr represents lhs op rhs.
type BinaryExpr struct {
	SpanVal Span
	Op      Operator
	Left    Expr
	Right   Expr
}

func (n *BinaryExpr) Span() Span { return n.SpanVal }
func (n *BinaryExpr) node()      {}
func (n *BinaryExpr) expr()      {}

// UnaryExpr represents a prefix operator applied to an operand.
type UnaryExpr struct {
	SpanVal Span
	Op      Operator
	Operand Expr
}

func (n *UnaryExpr) Span() Span { return n.SpanVal }
func (n *UnaryExpr) node()      {}
func (n *UnaryExpr) expr()      {}

// PostfixExpr represents x++ or x--.
type PostfixExpr struct {
	SpanVal Span
	Op      Operator
	Operand Expr
}

func (n *PostfixExpr) Span() Span { return n.SpanVal }
func (n *PostfixExpr) node()      {}
func (n *PostfixExpr) expr()      {}

// SequenceExpr represents the comma operator: both sides are evaluated and
// the right one is the result.
type SequenceExpr struct {
	SpanVal Span
	Left    Expr
	Right   Expr
}

func (n *SequenceExpr) Span() Span { return n.SpanVal }
func (n *SequenceExpr) node()      {}
func (n *SequenceExpr) expr()      {}

// AssignmentExpr represents target = value.
type AssignmentExpr struct {
	SpanVal Span
	Target  Expr
	Value   Expr
}

func (n *AssignmentExpr) Span() Span { return n.SpanVal }
func (n *AssignmentExpr) node()      {}
func (n *AssignmentExpr) expr()      {}

// MemberExpr represents obj.name.
type MemberExpr struct {
	SpanVal  Span
	Object   Expr
	Property string
}

func (n *MemberExpr) Span() Span { return n.SpanVal }
func (n *MemberExpr) node()      {}
func (n *MemberExpr) expr()      {}

// ComputedMemberExpr represents obj[expr].
type ComputedMemberExpr struct {
	SpanVal  Span
	Object   Expr
	Property Expr
}

func (n *ComputedMemberExpr) Span() Span { return n.SpanVal }
func (n *ComputedMemberExpr) node()      {}
func (n *ComputedMemberExpr) expr()      {}

// GroupExpr represents a parenthesized expression.
type GroupExpr struct {
	SpanVal Span
	Expr    Expr
}

func (n *GroupExpr) Span() Span { return n.SpanVal }
func (n *GroupExpr) node()      {}
func (n *GroupExpr) expr()      {}

// ConditionalExpr represents test ? consequent : alternate.
type ConditionalExpr struct {
	SpanVal    Span
	Test       Expr
	Consequent Expr
	Alternate  Expr
}

func (n *ConditionalExpr) Span() Span { return n.SpanVal }
func (n *ConditionalExpr) node()      {}
func (n *ConditionalExpr) expr()      {}

// FunctionExpression represents function name(params) { body }.
type FunctionExpression struct {
	SpanVal Span
	Name    string // empty for anonymous functions
	Params  []string
	Body    []Stmt
}

func (n *FunctionExpression) Span() Span { return n.SpanVal }
func (n *FunctionExpression) node()      {}
func (n *FunctionExpression) expr()      {}

// CallExpr represents callee(args...).
type CallExpr struct {
	SpanVal   Span
	Callee    Expr
	Arguments []Expr
}

func (n *CallExpr) Span() Span { return n.SpanVal }
func (n *CallExpr) node()      {}
func (n *CallExpr) expr()      {}

// FunctionCall is a call to a function already registered in a context's
// function table. Embedders produce it after defining the function, so the
// callee is known by id rather than by name.
type FunctionCall struct {
	SpanVal    Span
	FunctionID uint32
}

func (n *FunctionCall) Span() Span { return n.SpanVal }
func (n *FunctionCall) node()      {}
func (n *FunctionCall) expr()      {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// ExprStmt is an expression used as a statement.
type ExprStmt struct {
	SpanVal Span
	Expr    Expr
}

func (n *ExprStmt) Span() Span { return n.SpanVal }
func (n *ExprStmt) node()      {}
func (n *ExprStmt) stmt()      {}

// BlockStmt represents { statements }.
type BlockStmt struct {
	SpanVal    Span
	Statements []Stmt
}

func (n *BlockStmt) Span() Span { return n.SpanVal }
func (n *BlockStmt) node()      {}
func (n *BlockStmt) stmt()      {}

// EmptyStmt represents a lone semicolon.
type EmptyStmt struct {
	SpanVal Span
}

func (n *EmptyStmt) Span() Span { return n.SpanVal }
func (n *EmptyStmt) node()      {}
func (n *EmptyStmt) stmt()      {}

// ---------------------------------------------------------------------------
// Top level
// ---------------------------------------------------------------------------

// Program is the root of a parsed script.
type Program struct {
	SpanVal    Span
	Statements []Stmt
}

func (n *Program) Span() Span { return n.SpanVal }
func (n *Program) node()      {}
