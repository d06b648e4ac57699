package engine

// Node is one node of a parsed formula tree. The node set is closed: the
// parser can only ever produce the types below, so an Expression cannot
// carry constructs the evaluator does not know how to handle.
type Node interface {
	node()
}

// Literal is a constant value: a decimal number, bool, string, or null.
type Literal struct {
	Value any
}

// VarRef references a variable by name.
type VarRef struct {
	Name string
}

// ListLit is a list or tuple literal.
type ListLit struct {
	Elems []Node
}

// UnaryOp is a prefix operator: "-", "+", or "not".
type UnaryOp struct {
	Op      string
	Operand Node
}

// BinaryOp is an arithmetic operator: + - * / // % **.
type BinaryOp struct {
	Op    string
	Left  Node
	Right Node
}

// BoolOp is a short-circuiting "and"/"or" over two or more operands.
type BoolOp struct {
	Op     string
	Values []Node
}

// Compare is a comparison chain: Left Ops[0] Rights[0] Ops[1] Rights[1] ...
// A chain like a < b < c evaluates each link with short-circuit on the
// first false link.
type Compare struct {
	Left   Node
	Ops    []string
	Rights []Node
}

// Conditional is "Then if Cond else Else". Only the taken branch is
// evaluated.
type Conditional struct {
	Cond Node
	Then Node
	Else Node
}

// Call invokes a whitelisted function by name.
type Call struct {
	Func string
	Args []Node
}

func (*Literal) node()     {}
func (*VarRef) node()      {}
func (*ListLit) node()     {}
func (*UnaryOp) node()     {}
func (*BinaryOp) node()    {}
func (*BoolOp) node()      {}
func (*Compare) node()     {}
func (*Conditional) node() {}
func (*Call) node()        {}

// Walk calls fn for n and every node below it.
func Walk(n Node, fn func(Node)) {
	if n == nil {
		return
	}
	fn(n)
	switch v := n.(type) {
	case *ListLit:
		for _, e := range v.Elems {
			Walk(e, fn)
		}
	case *UnaryOp:
		Walk(v.Operand, fn)
	case *BinaryOp:
		Walk(v.Left, fn)
		Walk(v.Right, fn)
	case *BoolOp:
		for _, e := range v.Values {
			Walk(e, fn)
		}
	case *Compare:
		Walk(v.Left, fn)
		for _, e := range v.Rights {
			Walk(e, fn)
		}
	case *Conditional:
		Walk(v.Cond, fn)
		Walk(v.Then, fn)
		Walk(v.Else, fn)
	case *Call:
		for _, e := range v.Args {
			Walk(e, fn)
		}
	}
}
