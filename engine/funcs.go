package engine

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// builtin is one whitelisted function. minArgs/maxArgs bound the accepted
// argument count; maxArgs -1 means variadic.
type builtin struct {
	minArgs int
	maxArgs int
	call    func(args []any) (any, error)
}

// builtins is the fixed function whitelist. It is a security boundary:
// the set is compiled into the engine and is not caller-configurable.
var builtins = map[string]builtin{
	"abs": {1, 1, func(args []any) (any, error) {
		d, err := toDecimal(args[0])
		if err != nil {
			return nil, err
		}
		return d.Abs(), nil
	}},

	"round": {1, 2, func(args []any) (any, error) {
		d, err := toDecimal(args[0])
		if err != nil {
			return nil, err
		}
		places := int32(0)
		if len(args) == 2 {
			p, err := toDecimal(args[1])
			if err != nil {
				return nil, err
			}
			places = int32(p.IntPart())
		}
		return d.Round(places), nil
	}},

	"max": {1, -1, func(args []any) (any, error) {
		return pickExtreme(args, "max", 1)
	}},

	"min": {1, -1, func(args []any) (any, error) {
		return pickExtreme(args, "min", -1)
	}},

	"sum": {1, 1, func(args []any) (any, error) {
		elems, ok := args[0].([]any)
		if !ok {
			return nil, evalErrorf("sum() expects a list, got %T", args[0])
		}
		total := decimal.Zero
		for _, e := range elems {
			d, err := toDecimal(e)
			if err != nil {
				return nil, err
			}
			total = total.Add(d)
		}
		return total, nil
	}},

	"len": {1, 1, func(args []any) (any, error) {
		switch v := args[0].(type) {
		case string:
			return decimal.NewFromInt(int64(len(v))), nil
		case []any:
			return decimal.NewFromInt(int64(len(v))), nil
		}
		return nil, evalErrorf("len() expects a string or list, got %T", args[0])
	}},

	"int": {1, 1, func(args []any) (any, error) {
		d, err := toDecimal(args[0])
		if err != nil {
			return nil, err
		}
		return d.Truncate(0), nil
	}},

	"float": {1, 1, func(args []any) (any, error) {
		d, err := toDecimal(args[0])
		if err != nil {
			return nil, err
		}
		return d, nil
	}},

	"str": {1, 1, func(args []any) (any, error) {
		return formatValue(args[0]), nil
	}},

	"bool": {1, 1, func(args []any) (any, error) {
		return truthy(args[0]), nil
	}},

	"pow": {2, 2, func(args []any) (any, error) {
		base, err := toDecimal(args[0])
		if err != nil {
			return nil, err
		}
		exp, err := toDecimal(args[1])
		if err != nil {
			return nil, err
		}
		return powDecimal(base, exp)
	}},

	// decimal() is the explicit constructor for exact currency values,
	// accepting numeric strings as well as numbers.
	"decimal": {1, 1, func(args []any) (any, error) {
		d, err := toDecimal(args[0])
		if err != nil {
			return nil, err
		}
		return d, nil
	}},
}

// IsWhitelistedFunction reports whether name is in the fixed function set.
func IsWhitelistedFunction(name string) bool {
	_, ok := builtins[name]
	return ok
}

// WhitelistedFunctions returns the fixed function set, sorted.
func WhitelistedFunctions() []string {
	set := make(map[string]bool, len(builtins))
	for name := range builtins {
		set[name] = true
	}
	return sortedKeys(set)
}

func callBuiltin(name string, args []any) (any, error) {
	fn, ok := builtins[name]
	if !ok {
		// Parse already rejects unlisted calls; this is the defensive
		// re-check for trees not produced by Parse.
		return nil, evalErrorf("function %q is not permitted", name)
	}
	if len(args) < fn.minArgs || (fn.maxArgs >= 0 && len(args) > fn.maxArgs) {
		return nil, evalErrorf("%s() called with %d argument(s)", name, len(args))
	}
	return fn.call(args)
}

// pickExtreme implements max/min over either a single list argument or a
// variadic argument list. dir is 1 for max, -1 for min.
func pickExtreme(args []any, name string, dir int) (any, error) {
	values := args
	if len(args) == 1 {
		if elems, ok := args[0].([]any); ok {
			values = elems
		}
	}
	if len(values) == 0 {
		return nil, evalErrorf("%s() of an empty list", name)
	}

	best, err := toDecimal(values[0])
	if err != nil {
		return nil, err
	}
	for _, v := range values[1:] {
		d, err := toDecimal(v)
		if err != nil {
			return nil, err
		}
		if d.Cmp(best) == dir {
			best = d
		}
	}
	return best, nil
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "True"
		}
		return "False"
	case decimal.Decimal:
		return t.String()
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = formatValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", v)
	}
}
