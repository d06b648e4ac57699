package engine

import (
	"fmt"
	"sort"
)

// ValidationReport is the result of checking a formula without evaluating
// it. When Valid is false, Errors lists every problem found, not just the
// first one.
type ValidationReport struct {
	Valid         bool     `json:"valid"`
	VariablesUsed []string `json:"variables_used"`
	FunctionsUsed []string `json:"functions_used"`
	Errors        []string `json:"errors,omitempty"`
}

// Validate parses text and checks that every referenced variable is in
// available. Call targets outside the whitelist surface through the parse
// step. Nothing is evaluated.
func Validate(text string, available []string) ValidationReport {
	expr, err := Parse(text)
	if err != nil {
		return ValidationReport{Valid: false, Errors: []string{err.Error()}}
	}

	known := make(map[string]bool, len(available))
	for _, name := range available {
		known[name] = true
	}

	var missing []string
	for _, name := range expr.Variables() {
		if !known[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)

	report := ValidationReport{
		Valid:         len(missing) == 0,
		VariablesUsed: expr.Variables(),
		FunctionsUsed: expr.Functions(),
	}
	for _, name := range missing {
		report.Errors = append(report.Errors, fmt.Sprintf("undefined variable %q", name))
	}
	return report
}
