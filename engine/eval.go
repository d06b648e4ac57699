package engine

import (
	"github.com/shopspring/decimal"
)

// Evaluate parses text and evaluates it against bindings. Use a Cache and
// EvaluateExpr when the same formula runs against many bindings.
func Evaluate(text string, bindings map[string]any) (any, error) {
	expr, err := Parse(text)
	if err != nil {
		return nil, err
	}
	return EvaluateExpr(expr, bindings)
}

// EvaluateExpr walks a parsed formula against a variable binding. All
// numeric inputs are converted to fixed-precision decimal before any
// arithmetic, so currency rounding is reproducible across runs and hosts.
// Boolean operators and comparison chains short-circuit; a conditional
// evaluates only the taken branch.
func EvaluateExpr(expr *Expression, bindings map[string]any) (any, error) {
	return eval(expr.Root, bindings)
}

func eval(n Node, bindings map[string]any) (any, error) {
	switch v := n.(type) {
	case *Literal:
		return v.Value, nil

	case *VarRef:
		val, ok := bindings[v.Name]
		if !ok {
			return nil, evalErrorf("undefined variable %q", v.Name)
		}
		return normalize(val)

	case *ListLit:
		elems := make([]any, len(v.Elems))
		for i, e := range v.Elems {
			val, err := eval(e, bindings)
			if err != nil {
				return nil, err
			}
			elems[i] = val
		}
		return elems, nil

	case *UnaryOp:
		return evalUnary(v, bindings)

	case *BinaryOp:
		return evalBinary(v, bindings)

	case *BoolOp:
		return evalBool(v, bindings)

	case *Compare:
		return evalCompare(v, bindings)

	case *Conditional:
		cond, err := eval(v.Cond, bindings)
		if err != nil {
			return nil, err
		}
		if truthy(cond) {
			return eval(v.Then, bindings)
		}
		return eval(v.Else, bindings)

	case *Call:
		args := make([]any, len(v.Args))
		for i, a := range v.Args {
			val, err := eval(a, bindings)
			if err != nil {
				return nil, err
			}
			args[i] = val
		}
		return callBuiltin(v.Func, args)
	}

	return nil, evalErrorf("unsupported node %T", n)
}

func evalUnary(v *UnaryOp, bindings map[string]any) (any, error) {
	operand, err := eval(v.Operand, bindings)
	if err != nil {
		return nil, err
	}
	switch v.Op {
	case "not":
		return !truthy(operand), nil
	case "-":
		d, err := toDecimal(operand)
		if err != nil {
			return nil, err
		}
		return d.Neg(), nil
	case "+":
		d, err := toDecimal(operand)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, evalErrorf("unsupported unary operator %q", v.Op)
}

func evalBinary(v *BinaryOp, bindings map[string]any) (any, error) {
	left, err := eval(v.Left, bindings)
	if err != nil {
		return nil, err
	}
	right, err := eval(v.Right, bindings)
	if err != nil {
		return nil, err
	}

	// String concatenation is the one non-numeric arithmetic form.
	if v.Op == "+" {
		ls, lok := left.(string)
		rs, rok := right.(string)
		if lok && rok {
			return ls + rs, nil
		}
	}

	a, err := toDecimal(left)
	if err != nil {
		return nil, err
	}
	b, err := toDecimal(right)
	if err != nil {
		return nil, err
	}

	switch v.Op {
	case "+":
		return a.Add(b), nil
	case "-":
		return a.Sub(b), nil
	case "*":
		return a.Mul(b), nil
	case "/":
		if b.IsZero() {
			return nil, evalErrorf("division by zero")
		}
		return a.Div(b), nil
	case "//":
		if b.IsZero() {
			return nil, evalErrorf("division by zero")
		}
		return a.Div(b).Floor(), nil
	case "%":
		if b.IsZero() {
			return nil, evalErrorf("modulo by zero")
		}
		return a.Mod(b), nil
	case "**":
		return powDecimal(a, b)
	}
	return nil, evalErrorf("unsupported operator %q", v.Op)
}

// powDecimal wraps decimal exponentiation with explicit edge-case
// errors. The underlying Pow returns zero for a zero base with a
// negative exponent and for a negative base with a fractional exponent;
// both are evaluation errors here, consistent with division by zero.
func powDecimal(a, b decimal.Decimal) (any, error) {
	if a.IsZero() && b.IsNegative() {
		return nil, evalErrorf("zero raised to a negative power")
	}
	if a.IsNegative() && !b.IsInteger() {
		return nil, evalErrorf("negative base with fractional exponent")
	}
	return a.Pow(b), nil
}

func evalBool(v *BoolOp, bindings map[string]any) (any, error) {
	for i, operand := range v.Values {
		val, err := eval(operand, bindings)
		if err != nil {
			return nil, err
		}
		last := i == len(v.Values)-1
		switch v.Op {
		case "and":
			if !truthy(val) || last {
				return val, nil
			}
		case "or":
			if truthy(val) || last {
				return val, nil
			}
		default:
			return nil, evalErrorf("unsupported boolean operator %q", v.Op)
		}
	}
	return nil, evalErrorf("empty boolean expression")
}

// evalCompare evaluates a comparison chain link by link, short-circuiting
// on the first false link. Each operand is evaluated at most once.
func evalCompare(v *Compare, bindings map[string]any) (any, error) {
	left, err := eval(v.Left, bindings)
	if err != nil {
		return nil, err
	}
	for i, op := range v.Ops {
		right, err := eval(v.Rights[i], bindings)
		if err != nil {
			return nil, err
		}
		ok, err := compareValues(op, left, right)
		if err != nil {
			return nil, err
		}
		if !ok {
			return false, nil
		}
		left = right
	}
	return true, nil
}

func compareValues(op string, left, right any) (bool, error) {
	// Equality across unlike types is defined (always unequal); ordering
	// across unlike types is not.
	cmp, comparable := orderValues(left, right)
	switch op {
	case "==":
		if !comparable {
			return false, nil
		}
		return cmp == 0, nil
	case "!=":
		if !comparable {
			return true, nil
		}
		return cmp != 0, nil
	}

	if !comparable {
		return false, evalErrorf("cannot order %T and %T", left, right)
	}
	switch op {
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	}
	return false, evalErrorf("unsupported comparator %q", op)
}

// orderValues returns a three-way comparison and whether the two values
// are comparable at all.
func orderValues(left, right any) (int, bool) {
	if ld, err := toDecimal(left); err == nil {
		rd, err := toDecimal(right)
		if err != nil {
			return 0, false
		}
		return ld.Cmp(rd), true
	}

	switch l := left.(type) {
	case string:
		r, ok := right.(string)
		if !ok {
			return 0, false
		}
		switch {
		case l < r:
			return -1, true
		case l > r:
			return 1, true
		}
		return 0, true
	case nil:
		if right == nil {
			return 0, true
		}
		return 0, false
	}
	return 0, false
}

// normalize converts host numeric types to decimal once, at the binding
// boundary, so every arithmetic site sees decimals only.
func normalize(v any) (any, error) {
	switch t := v.(type) {
	case decimal.Decimal, bool, string, nil, []any:
		return v, nil
	case float64:
		return decimal.NewFromFloat(t), nil
	case float32:
		return decimal.NewFromFloat32(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int32:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	}
	return nil, evalErrorf("unsupported binding value type %T", v)
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case float64:
		return decimal.NewFromFloat(t), nil
	case float32:
		return decimal.NewFromFloat32(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int32:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case bool:
		if t {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, nil
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return decimal.Zero, evalErrorf("cannot convert %q to a number", t)
		}
		return d, nil
	}
	return decimal.Zero, evalErrorf("cannot convert %T to a number", v)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case decimal.Decimal:
		return !t.IsZero()
	case []any:
		return len(t) > 0
	}
	return true
}
