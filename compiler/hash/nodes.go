package hash

// ---------------------------------------------------------------------------
// Frozen hashing AST types.
//
// These are stripped-down parallels of compiler/ast.go with no Span/position
// data, no grouping parentheses and de Bruijn indices instead of parameter
// names. Two programs with the same semantics (same body, ignoring layout
// and parameter names) produce identical hashing ASTs.
// ---------------------------------------------------------------------------

// HNode is the interface implemented by all hashing AST nodes.
type HNode interface {
	hnode() // marker method
}

// ---------------------------------------------------------------------------
// Literal nodes
// ---------------------------------------------------------------------------

type HNumber struct{ Value float64 }
type HString struct{ Value string }
type HBool struct{ Value bool }
type HNull struct{}
type HThis struct{}

func (*HNumber) hnode() {}
func (*HString) hnode() {}
func (*HBool) hnode()   {}
func (*HNull) hnode()   {}
func (*HThis) hnode()   {}

// ---------------------------------------------------------------------------
// Name references
// ---------------------------------------------------------------------------

// HLocalRef references a function parameter by de Bruijn indices.
// ScopeDepth 0 = innermost function, 1 = one enclosing function up, etc.
// SlotIndex is the position within that function's parameter list; a named
// function expression binds its own name after the parameters.
type HLocalRef struct {
	ScopeDepth uint16
	SlotIndex  uint16
}

// HFreeRef references a name no enclosing function binds.
type HFreeRef struct {
	Name string
}

func (*HLocalRef) hnode() {}
func (*HFreeRef) hnode()  {}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Operators are carried by their source spelling; the node tag tells unary
// and binary apart.

type HBinary struct {
	Op          string
	Left, Right HNode
}

type HUnary struct {
	Op      string
	Operand HNode
}

type HPostfix struct {
	Op      string
	Operand HNode
}

type HSequence struct {
	Left, Right HNode
}

type HAssignment struct {
	Target HNode
	Value  HNode
}

type HMember struct {
	Object   HNode
	Property string
}

type HComputedMember struct {
	Object   HNode
	Property HNode
}

type HConditional struct {
	Test, Consequent, Alternate HNode
}

type HCall struct {
	Callee    HNode
	Arguments []HNode
}

// HFunctionCall is a call by function-table id.
type HFunctionCall struct {
	FunctionID uint32
}

// HFunction is a function expression. The name only matters through the
// slot it binds, so it is not serialized.
type HFunction struct {
	Arity      int
	Named      bool
	Statements []HNode
}

func (*HBinary) hnode()         {}
func (*HUnary) hnode()          {}
func (*HPostfix) hnode()        {}
func (*HSequence) hnode()       {}
func (*HAssignment) hnode()     {}
func (*HMember) hnode()         {}
func (*HComputedMember) hnode() {}
func (*HConditional) hnode()    {}
func (*HCall) hnode()           {}
func (*HFunctionCall) hnode()   {}
func (*HFunction) hnode()       {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

type HExprStmt struct{ Expr HNode }
type HBlock struct{ Statements []HNode }
type HEmpty struct{}
type HProgram struct{ Statements []HNode }

func (*HExprStmt) hnode() {}
func (*HBlock) hnode()    {}
func (*HEmpty) hnode()    {}
func (*HProgram) hnode()  {}
