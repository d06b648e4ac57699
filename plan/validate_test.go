package plan

import (
	"testing"
)

func containsAll(haystack []string, needles ...string) bool {
	set := map[string]bool{}
	for _, s := range haystack {
		set[s] = true
	}
	for _, n := range needles {
		if !set[n] {
			return false
		}
	}
	return true
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func TestValidateCleanPlan(t *testing.T) {
	p := &Plan{
		Name: "annual_bonus",
		Inputs: []InputDeclaration{
			{Name: "base_salary", Required: true},
			{Name: "raf", Required: true},
		},
		Steps: []Step{
			{Name: "bonus", Expression: "base_salary * 0.15 * raf", Outputs: []string{"bonus"}},
			{Name: "capped", Expression: "min(bonus, 50000)", Outputs: []string{"capped_bonus"}},
		},
	}

	res := Validate(p)
	if !res.Valid {
		t.Fatalf("plan should be valid: %+v", res)
	}
	if res.HasCycles || len(res.UndefinedVariables) != 0 || len(res.MultiplyDefinedVariables) != 0 {
		t.Fatalf("unexpected problems: %+v", res)
	}
	if res.OrderingChanged {
		t.Error("declared order was already topological; ordering should not change")
	}
}

func TestValidateDetectsTwoStepCycle(t *testing.T) {
	p := &Plan{
		Steps: []Step{
			{Name: "a", Expression: "b_out + 1", Outputs: []string{"a_out"}},
			{Name: "b", Expression: "a_out + 1", Outputs: []string{"b_out"}},
		},
	}

	res := Validate(p)
	if res.Valid {
		t.Fatal("cyclic plan reported valid")
	}
	if !res.HasCycles {
		t.Fatal("HasCycles = false for a two-step cycle")
	}
	if len(res.Cycles) == 0 {
		t.Fatal("no cycles reported")
	}
	if !containsAll(res.Cycles[0].Steps, "a", "b") {
		t.Errorf("cycle %v should name both steps", res.Cycles[0].Steps)
	}
}

func TestValidateSuggestsTopologicalOrdering(t *testing.T) {
	// Declared in reverse dependency order on purpose.
	p := &Plan{
		Inputs: []InputDeclaration{{Name: "base", Required: true}},
		Steps: []Step{
			{Name: "total", Expression: "part_one + part_two", Outputs: []string{"total"}},
			{Name: "part_two", Expression: "base * 0.2", Outputs: []string{"part_two"}},
			{Name: "part_one", Expression: "base * 0.1", Outputs: []string{"part_one"}},
		},
	}

	res := Validate(p)
	if !res.Valid {
		t.Fatalf("plan should be valid: %+v", res)
	}
	if !res.OrderingChanged {
		t.Error("OrderingChanged = false, want true")
	}

	ord := res.SuggestedOrdering
	if indexOf(ord, "total") < indexOf(ord, "part_one") || indexOf(ord, "total") < indexOf(ord, "part_two") {
		t.Errorf("ordering %v does not place total after its dependencies", ord)
	}
	// Tie between part_two and part_one breaks by declared order.
	if indexOf(ord, "part_two") > indexOf(ord, "part_one") {
		t.Errorf("ordering %v should keep declared order for ties", ord)
	}
}

func TestValidateOrderingTieBreaksByRank(t *testing.T) {
	// Independent steps listed out of rank order: the tie-break must
	// follow the Order field, the same sequence the executor uses when
	// no suggestion is given.
	p := &Plan{
		Inputs: []InputDeclaration{{Name: "base", Required: true}},
		Steps: []Step{
			{Name: "second", Order: 2, Expression: "base * 0.2", Outputs: []string{"b"}},
			{Name: "first", Order: 1, Expression: "base * 0.1", Outputs: []string{"a"}},
		},
	}

	res := Validate(p)
	if !res.Valid {
		t.Fatalf("plan should be valid: %+v", res)
	}
	ord := res.SuggestedOrdering
	if indexOf(ord, "first") > indexOf(ord, "second") {
		t.Errorf("ordering %v should place rank 1 before rank 2", ord)
	}
}

func TestValidateUndefinedVariable(t *testing.T) {
	p := &Plan{
		Inputs: []InputDeclaration{{Name: "base", Required: true}},
		Steps: []Step{
			{Name: "bonus", Expression: "base * raf", Outputs: []string{"bonus"}},
		},
	}

	res := Validate(p)
	if res.Valid {
		t.Fatal("plan with undefined reference reported valid")
	}
	if len(res.UndefinedVariables) != 1 || res.UndefinedVariables[0] != "raf" {
		t.Errorf("UndefinedVariables = %v, want [raf]", res.UndefinedVariables)
	}
}

func TestValidateConditionReferencesCount(t *testing.T) {
	p := &Plan{
		Inputs: []InputDeclaration{{Name: "base", Required: true}},
		Steps: []Step{
			{Name: "bonus", Expression: "base * 0.1", Condition: "eligible", Outputs: []string{"bonus"}},
		},
	}

	res := Validate(p)
	if res.Valid {
		t.Fatal("condition referencing an undefined variable reported valid")
	}
	if len(res.UndefinedVariables) != 1 || res.UndefinedVariables[0] != "eligible" {
		t.Errorf("UndefinedVariables = %v, want [eligible]", res.UndefinedVariables)
	}
}

func TestValidateDuplicateDefinition(t *testing.T) {
	p := &Plan{
		Inputs: []InputDeclaration{{Name: "base", Required: true}},
		Steps: []Step{
			{Name: "first", Expression: "base * 0.1", Outputs: []string{"bonus"}},
			{Name: "second", Expression: "base * 0.2", Outputs: []string{"bonus"}},
		},
	}

	res := Validate(p)
	if res.Valid {
		t.Fatal("duplicate definition reported valid; must never resolve by order")
	}
	if len(res.MultiplyDefinedVariables) != 1 || res.MultiplyDefinedVariables[0] != "bonus" {
		t.Errorf("MultiplyDefinedVariables = %v, want [bonus]", res.MultiplyDefinedVariables)
	}
}

func TestValidateOutputShadowingInput(t *testing.T) {
	p := &Plan{
		Inputs: []InputDeclaration{{Name: "base", Required: true}},
		Steps: []Step{
			{Name: "redefine", Expression: "1 + 1", Outputs: []string{"base"}},
		},
	}

	res := Validate(p)
	if res.Valid {
		t.Fatal("output shadowing a declared input reported valid")
	}
	if len(res.MultiplyDefinedVariables) != 1 || res.MultiplyDefinedVariables[0] != "base" {
		t.Errorf("MultiplyDefinedVariables = %v, want [base]", res.MultiplyDefinedVariables)
	}
}

// Step A outputs x; B references x and outputs y; C references y and
// outputs x again. Both the duplicate definition of x and the cycle
// through B and C must surface in the same report.
func TestValidateDuplicateAndCycleTogether(t *testing.T) {
	p := &Plan{
		Steps: []Step{
			{Name: "a", Expression: "1", Outputs: []string{"x"}},
			{Name: "b", Expression: "x + 1", Outputs: []string{"y"}},
			{Name: "c", Expression: "y + 1", Outputs: []string{"x"}},
		},
	}

	res := Validate(p)
	if res.Valid {
		t.Fatal("plan reported valid")
	}
	if len(res.MultiplyDefinedVariables) != 1 || res.MultiplyDefinedVariables[0] != "x" {
		t.Errorf("MultiplyDefinedVariables = %v, want [x]", res.MultiplyDefinedVariables)
	}
	if !res.HasCycles || len(res.Cycles) == 0 {
		t.Fatal("cycle through b and c not reported")
	}
	if !containsAll(res.Cycles[0].Steps, "b", "c") {
		t.Errorf("cycle %v should include b and c", res.Cycles[0].Steps)
	}
}

func TestValidateExpressionErrorSurfaces(t *testing.T) {
	p := &Plan{
		Inputs: []InputDeclaration{{Name: "base", Required: true}},
		Steps: []Step{
			{Name: "broken", Expression: "base *", Outputs: []string{"out"}},
		},
	}

	res := Validate(p)
	if res.Valid {
		t.Fatal("plan with unparseable expression reported valid")
	}
	if _, ok := res.ExpressionErrors["broken"]; !ok {
		t.Errorf("ExpressionErrors = %v, want entry for step broken", res.ExpressionErrors)
	}
}

func TestAvailableVariables(t *testing.T) {
	p := &Plan{
		Inputs: []InputDeclaration{{Name: "base"}},
		Steps: []Step{
			{Name: "s", Expression: "base", Outputs: []string{"bonus", "bonus_copy"}},
		},
	}
	got := p.AvailableVariables()
	want := []string{"base", "bonus", "bonus_copy"}
	if len(got) != len(want) {
		t.Fatalf("AvailableVariables = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("AvailableVariables[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
