package plan

import (
	"fmt"
	"sort"

	"payplan/engine"
)

// Cycle names the steps forming one circular dependency, in walk order
// with the entry step repeated at the end.
type Cycle struct {
	Steps []string `json:"cycle_names"`
}

// Result is the full outcome of validating a plan's dependency graph.
// Every problem is reported, never just the first: a plan-editing surface
// shows all of them inline at once.
type Result struct {
	Valid                    bool              `json:"valid"`
	HasCycles                bool              `json:"has_cycles"`
	Cycles                   []Cycle           `json:"cycles"`
	UndefinedVariables       []string          `json:"undefined_variables"`
	MultiplyDefinedVariables []string          `json:"multiply_defined_variables"`
	SuggestedOrdering        []string          `json:"suggested_ordering"`
	OrderingChanged          bool              `json:"ordering_changed"`
	ExpressionErrors         map[string]string `json:"expression_errors,omitempty"`
}

// Validate builds the plan's variable def/use graph and checks it: cycle
// detection, undefined references, duplicate definitions, and a suggested
// topological ordering for the executor.
//
// A variable defined by more than one step (or by a step and an input
// declaration) is a hard error, never resolved by declaration order.
// Cycle detection runs over edges from every definer so that a duplicated
// output cannot mask a cycle, while the suggested ordering only follows
// edges whose variable has exactly one definer.
func Validate(p *Plan) Result {
	res := Result{}

	n := len(p.Steps)
	refs := make([]map[string]bool, n)
	exprErrors := map[string]string{}

	for i, step := range p.Steps {
		refs[i] = map[string]bool{}
		for _, text := range []string{step.Expression, step.Condition} {
			if text == "" {
				continue
			}
			expr, err := engine.Parse(text)
			if err != nil {
				exprErrors[step.Name] = err.Error()
				continue
			}
			for _, name := range expr.Variables() {
				refs[i][name] = true
			}
		}
	}
	if len(exprErrors) > 0 {
		res.ExpressionErrors = exprErrors
	}

	inputs := map[string]bool{}
	for _, in := range p.Inputs {
		inputs[in.Name] = true
	}

	// definers maps each output variable to every step index producing it.
	definers := map[string][]int{}
	for i, step := range p.Steps {
		for _, out := range step.Outputs {
			definers[out] = append(definers[out], i)
		}
	}

	dupSet := map[string]bool{}
	for name, defs := range definers {
		if len(defs) > 1 || inputs[name] {
			dupSet[name] = true
		}
	}
	res.MultiplyDefinedVariables = sortedNames(dupSet)

	undefSet := map[string]bool{}
	for i := range p.Steps {
		for name := range refs[i] {
			if !inputs[name] && len(definers[name]) == 0 {
				undefSet[name] = true
			}
		}
	}
	res.UndefinedVariables = sortedNames(undefSet)

	permissive := buildEdges(p, refs, definers, false)
	strict := buildEdges(p, refs, definers, true)

	res.Cycles = findCycles(p, permissive)
	res.HasCycles = len(res.Cycles) > 0

	res.SuggestedOrdering = kahnOrdering(p, strict)
	for i, step := range p.Steps {
		if res.SuggestedOrdering[i] != step.Name {
			res.OrderingChanged = true
			break
		}
	}

	res.Valid = !res.HasCycles &&
		len(res.UndefinedVariables) == 0 &&
		len(res.MultiplyDefinedVariables) == 0 &&
		len(exprErrors) == 0
	return res
}

// buildEdges returns adjacency from definer step to referencing step.
// With singleDefiner set, variables produced by more than one step (or
// clashing with an input declaration) contribute no edges; those are
// already hard errors and must not steer the suggested ordering.
func buildEdges(p *Plan, refs []map[string]bool, definers map[string][]int, singleDefiner bool) [][]int {
	n := len(p.Steps)
	seen := make([]map[int]bool, n)
	edges := make([][]int, n)
	for i := range seen {
		seen[i] = map[int]bool{}
	}

	inputs := map[string]bool{}
	for _, in := range p.Inputs {
		inputs[in.Name] = true
	}

	for name, defs := range definers {
		if singleDefiner && (len(defs) > 1 || inputs[name]) {
			continue
		}
		for _, def := range defs {
			for ref := 0; ref < n; ref++ {
				if ref == def || !refs[ref][name] {
					continue
				}
				if !seen[def][ref] {
					seen[def][ref] = true
					edges[def] = append(edges[def], ref)
				}
			}
		}
	}

	for i := range edges {
		sort.Ints(edges[i])
	}
	return edges
}

// findCycles runs a three-state depth-first search (unvisited,
// in-progress, done) and reconstructs a cycle from the parent chain for
// every edge that lands on an in-progress node.
func findCycles(p *Plan, edges [][]int) []Cycle {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)

	n := len(p.Steps)
	state := make([]int, n)
	parent := make([]int, n)
	var cycles []Cycle

	var dfs func(node int)
	dfs = func(node int) {
		state[node] = inStack
		for _, next := range edges[node] {
			switch state[next] {
			case unvisited:
				parent[next] = node
				dfs(next)
			case inStack:
				cycles = append(cycles, Cycle{Steps: reconstructCycle(p, parent, node, next)})
			}
		}
		state[node] = done
	}

	for i := 0; i < n; i++ {
		if state[i] == unvisited {
			parent[i] = -1
			dfs(i)
		}
	}
	return cycles
}

func reconstructCycle(p *Plan, parent []int, from, entry int) []string {
	names := []string{p.Steps[entry].Name}
	var chain []string
	for cur := from; cur != entry; cur = parent[cur] {
		chain = append([]string{p.Steps[cur].Name}, chain...)
	}
	names = append(names, chain...)
	names = append(names, p.Steps[entry].Name)
	return names
}

// kahnOrdering runs Kahn's algorithm; ties among zero-in-degree steps
// break by the declared Order rank (stable on list position), matching
// how the executor sequences steps when no suggestion is given. Steps
// trapped in a cycle are appended in rank order at the end.
func kahnOrdering(p *Plan, edges [][]int) []string {
	n := len(p.Steps)
	inDegree := make([]int, n)
	for _, outs := range edges {
		for _, to := range outs {
			inDegree[to]++
		}
	}

	placed := make([]bool, n)
	ordering := make([]string, 0, n)

	for len(ordering) < n {
		next := -1
		for i := 0; i < n; i++ {
			if placed[i] || inDegree[i] != 0 {
				continue
			}
			if next == -1 || p.Steps[i].Order < p.Steps[next].Order {
				next = i
			}
		}
		if next == -1 {
			// Remaining steps form a cycle; keep rank order for them.
			rest := make([]int, 0, n)
			for i := 0; i < n; i++ {
				if !placed[i] {
					rest = append(rest, i)
				}
			}
			sort.SliceStable(rest, func(a, b int) bool {
				return p.Steps[rest[a]].Order < p.Steps[rest[b]].Order
			})
			for _, i := range rest {
				ordering = append(ordering, p.Steps[i].Name)
			}
			break
		}

		placed[next] = true
		ordering = append(ordering, p.Steps[next].Name)
		for _, to := range edges[next] {
			inDegree[to]--
		}
	}
	return ordering
}

func sortedNames(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AvailableVariables returns the definable-name universe of the plan: all
// declared inputs plus every step output.
func (p *Plan) AvailableVariables() []string {
	set := map[string]bool{}
	for _, in := range p.Inputs {
		set[in.Name] = true
	}
	for _, step := range p.Steps {
		for _, out := range step.Outputs {
			set[out] = true
		}
	}
	return sortedNames(set)
}

// String renders a compact single-line summary, useful in logs.
func (r Result) String() string {
	return fmt.Sprintf("valid=%t cycles=%d undefined=%d duplicates=%d ordering_changed=%t",
		r.Valid, len(r.Cycles), len(r.UndefinedVariables), len(r.MultiplyDefinedVariables), r.OrderingChanged)
}
