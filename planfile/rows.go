package planfile

import (
	"fmt"
	"strings"

	"github.com/Jeffail/gabs/v2"
)

// Rows decodes a JSON array of employee objects into row maps. Nested
// objects are flattened into underscore-joined column names
// (comp.base_salary becomes comp_base_salary) so every field is
// addressable as a formula variable.
func Rows(data []byte) ([]map[string]any, error) {
	parsed, err := gabs.ParseJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parsing rows JSON: %w", err)
	}

	if _, ok := parsed.Data().([]any); !ok {
		return nil, fmt.Errorf("rows JSON must be an array of objects")
	}
	children := parsed.Children()

	rows := make([]map[string]any, 0, len(children))
	for i, child := range children {
		flat, err := child.Flatten()
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		row := make(map[string]any, len(flat))
		for path, val := range flat {
			row[formatColumn(path)] = val
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// formatColumn turns a gabs dotted path into a legal variable name.
func formatColumn(path string) string {
	path = strings.ReplaceAll(path, ".", "_")
	return strings.ReplaceAll(path, "-", "_")
}
