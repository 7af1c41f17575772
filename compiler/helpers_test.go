package compiler

// AST construction shorthands for tests.

func at(line, col int) Span {
	return Span{Start: Position{Line: line, Column: col}}
}

func num(f float64) *NumericLiteral { return &NumericLiteral{Value: f} }

func str(s string) *StringLiteral { return &StringLiteral{Value: s} }

func bin(op Operator, l, r Expr) *BinaryExpr {
	return &BinaryExpr{Op: op, Left: l, Right: r}
}

func un(op Operator, x Expr) *UnaryExpr {
	return &UnaryExpr{Op: op, Operand: x}
}

func program(exprs ...Expr) *Program {
	p := &Program{}
	for _, e := range exprs {
		p.Statements = append(p.Statements, &ExprStmt{Expr: e})
	}
	return p
}
