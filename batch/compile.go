package batch

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"payplan/engine"
)

// columnOp computes a whole output column in one pass over the table.
type columnOp func(t *Table) ([]float64, error)

// compileColumn pattern-matches a restricted expression shape subset and
// translates it into a column operation:
//
//   - a single binary op between two simple operands
//   - two-argument max/min
//   - a single-level conditional over a simple boolean condition
//
// Anything else returns ok=false and the executor degrades to the
// row-by-row path; a step is never rejected for being too complex to
// vectorize.
func compileColumn(root engine.Node) (columnOp, bool) {
	op, ok := compileNode(root)
	if !ok {
		return nil, false
	}
	return guardFinite(op), true
}

func compileNode(root engine.Node) (columnOp, bool) {
	switch n := root.(type) {
	case *engine.BinaryOp:
		left, ok := simpleOperand(n.Left)
		if !ok {
			return nil, false
		}
		right, ok := simpleOperand(n.Right)
		if !ok {
			return nil, false
		}
		return compileBinary(n.Op, left, right)

	case *engine.Call:
		if (n.Func != "max" && n.Func != "min") || len(n.Args) != 2 {
			return nil, false
		}
		left, ok := simpleOperand(n.Args[0])
		if !ok {
			return nil, false
		}
		right, ok := simpleOperand(n.Args[1])
		if !ok {
			return nil, false
		}
		return compileExtreme(n.Func, left, right), true

	case *engine.Conditional:
		return compileConditional(n)
	}

	return nil, false
}

// guardFinite rejects NaN and infinity results (a fractional power of a
// negative base, an overflow). The column path must never store a
// non-finite value: failing the op sends the step down the row path,
// where the failure becomes a per-row error instead of a batch abort.
func guardFinite(op columnOp) columnOp {
	return func(t *Table) ([]float64, error) {
		out, err := op(t)
		if err != nil {
			return nil, err
		}
		for i, f := range out {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, fmt.Errorf("row %d: non-finite result", i)
			}
		}
		return out, nil
	}
}

// operand is a simple compiled operand: a numeric literal or a reference
// to a numeric column.
type operand struct {
	column   string
	constant float64
	isConst  bool
}

func simpleOperand(n engine.Node) (operand, bool) {
	switch v := n.(type) {
	case *engine.VarRef:
		return operand{column: v.Name}, true
	case *engine.Literal:
		if d, ok := v.Value.(decimal.Decimal); ok {
			return operand{constant: d.InexactFloat64(), isConst: true}, true
		}
	case *engine.UnaryOp:
		if v.Op != "-" {
			return operand{}, false
		}
		if lit, ok := v.Operand.(*engine.Literal); ok {
			if d, ok := lit.Value.(decimal.Decimal); ok {
				return operand{constant: -d.InexactFloat64(), isConst: true}, true
			}
		}
	}
	return operand{}, false
}

// vector resolves the operand against the table: a dense float view of
// its column, or nil for a constant.
func (o operand) vector(t *Table) ([]float64, error) {
	if o.isConst {
		return nil, nil
	}
	col, ok := t.Column(o.column)
	if !ok {
		return nil, fmt.Errorf("column %q not found", o.column)
	}
	floats, ok := col.Floats()
	if !ok {
		return nil, fmt.Errorf("column %q is not numeric", o.column)
	}
	return floats, nil
}

func (o operand) at(vec []float64, i int) float64 {
	if o.isConst {
		return o.constant
	}
	return vec[i]
}

func compileBinary(op string, left, right operand) (columnOp, bool) {
	var apply func(a, b float64) (float64, error)
	switch op {
	case "+":
		apply = func(a, b float64) (float64, error) { return a + b, nil }
	case "-":
		apply = func(a, b float64) (float64, error) { return a - b, nil }
	case "*":
		apply = func(a, b float64) (float64, error) { return a * b, nil }
	case "/":
		apply = func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return a / b, nil
		}
	case "//":
		apply = func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return math.Floor(a / b), nil
		}
	case "%":
		apply = func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, fmt.Errorf("modulo by zero")
			}
			return math.Mod(a, b), nil
		}
	case "**":
		apply = func(a, b float64) (float64, error) { return math.Pow(a, b), nil }
	default:
		return nil, false
	}

	return func(t *Table) ([]float64, error) {
		lv, err := left.vector(t)
		if err != nil {
			return nil, err
		}
		rv, err := right.vector(t)
		if err != nil {
			return nil, err
		}
		out := make([]float64, t.Rows())
		for i := range out {
			v, err := apply(left.at(lv, i), right.at(rv, i))
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	}, true
}

func compileExtreme(name string, left, right operand) columnOp {
	pick := math.Max
	if name == "min" {
		pick = math.Min
	}
	return func(t *Table) ([]float64, error) {
		lv, err := left.vector(t)
		if err != nil {
			return nil, err
		}
		rv, err := right.vector(t)
		if err != nil {
			return nil, err
		}
		out := make([]float64, t.Rows())
		for i := range out {
			out[i] = pick(left.at(lv, i), right.at(rv, i))
		}
		return out, nil
	}
}

// compileConditional handles "x if cond else y" where both branches are
// simple operands and cond is either a boolean column or one comparison
// between two simple operands. Nested conditionals fall back.
func compileConditional(n *engine.Conditional) (columnOp, bool) {
	then, ok := simpleOperand(n.Then)
	if !ok {
		return nil, false
	}
	els, ok := simpleOperand(n.Else)
	if !ok {
		return nil, false
	}

	switch cond := n.Cond.(type) {
	case *engine.VarRef:
		return func(t *Table) ([]float64, error) {
			col, found := t.Column(cond.Name)
			if !found {
				return nil, fmt.Errorf("column %q not found", cond.Name)
			}
			mask, boolCol := col.Bools()
			if !boolCol {
				return nil, fmt.Errorf("column %q is not boolean", cond.Name)
			}
			return selectByMask(t, mask, then, els)
		}, true

	case *engine.Compare:
		if len(cond.Ops) != 1 {
			return nil, false
		}
		left, ok := simpleOperand(cond.Left)
		if !ok {
			return nil, false
		}
		right, ok := simpleOperand(cond.Rights[0])
		if !ok {
			return nil, false
		}
		cmp, ok := comparator(cond.Ops[0])
		if !ok {
			return nil, false
		}
		return func(t *Table) ([]float64, error) {
			lv, err := left.vector(t)
			if err != nil {
				return nil, err
			}
			rv, err := right.vector(t)
			if err != nil {
				return nil, err
			}
			mask := make([]bool, t.Rows())
			for i := range mask {
				mask[i] = cmp(left.at(lv, i), right.at(rv, i))
			}
			return selectByMask(t, mask, then, els)
		}, true
	}

	return nil, false
}

func selectByMask(t *Table, mask []bool, then, els operand) ([]float64, error) {
	tv, err := then.vector(t)
	if err != nil {
		return nil, err
	}
	ev, err := els.vector(t)
	if err != nil {
		return nil, err
	}
	out := make([]float64, t.Rows())
	for i := range out {
		if mask[i] {
			out[i] = then.at(tv, i)
		} else {
			out[i] = els.at(ev, i)
		}
	}
	return out, nil
}

func comparator(op string) (func(a, b float64) bool, bool) {
	switch op {
	case "==":
		return func(a, b float64) bool { return a == b }, true
	case "!=":
		return func(a, b float64) bool { return a != b }, true
	case "<":
		return func(a, b float64) bool { return a < b }, true
	case "<=":
		return func(a, b float64) bool { return a <= b }, true
	case ">":
		return func(a, b float64) bool { return a > b }, true
	case ">=":
		return func(a, b float64) bool { return a >= b }, true
	}
	return nil, false
}
