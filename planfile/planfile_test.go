package planfile

import (
	"testing"
)

const samplePlan = `
name: annual_bonus
inputs:
  - name: base_salary
    required: true
  - name: raf
    required: true
steps:
  - name: bonus
    order: 1
    expression: base_salary * 0.15 * raf
    outputs: [bonus]
  - name: capped
    order: 2
    expression: min(bonus, 50000)
    condition: bonus > 0
    outputs: [capped_bonus]
`

func TestDecodePlan(t *testing.T) {
	p, err := Decode([]byte(samplePlan))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if p.Name != "annual_bonus" {
		t.Errorf("Name = %q", p.Name)
	}
	if len(p.Inputs) != 2 || !p.Inputs[0].Required {
		t.Errorf("Inputs = %+v", p.Inputs)
	}
	if len(p.Steps) != 2 {
		t.Fatalf("Steps = %+v", p.Steps)
	}
	if p.Steps[1].Condition != "bonus > 0" {
		t.Errorf("Condition = %q", p.Steps[1].Condition)
	}
	if len(p.Steps[1].Outputs) != 1 || p.Steps[1].Outputs[0] != "capped_bonus" {
		t.Errorf("Outputs = %v", p.Steps[1].Outputs)
	}
}

func TestDecodeRejectsEmptyPlan(t *testing.T) {
	if _, err := Decode([]byte("name: empty\nsteps: []\n")); err == nil {
		t.Fatal("plan without steps should fail")
	}
}

func TestDecodeRejectsMalformedYAML(t *testing.T) {
	if _, err := Decode([]byte("steps: [unclosed")); err == nil {
		t.Fatal("malformed YAML should fail")
	}
}

func TestRowsFlattensNestedObjects(t *testing.T) {
	data := []byte(`[
		{"employee_id": "E1", "comp": {"base_salary": 100000, "raf": 1.1}},
		{"employee_id": "E2", "comp": {"base_salary": 50000, "raf": 0.9}}
	]`)

	rows, err := Rows(data)
	if err != nil {
		t.Fatalf("Rows failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows", len(rows))
	}
	if rows[0]["employee_id"] != "E1" {
		t.Errorf("employee_id = %v", rows[0]["employee_id"])
	}
	if rows[0]["comp_base_salary"] != 100000.0 {
		t.Errorf("comp_base_salary = %v, want flattened numeric", rows[0]["comp_base_salary"])
	}
	if rows[1]["comp_raf"] != 0.9 {
		t.Errorf("comp_raf = %v", rows[1]["comp_raf"])
	}
}

func TestRowsRejectsNonArray(t *testing.T) {
	if _, err := Rows([]byte(`{"not": "an array"}`)); err == nil {
		t.Fatal("object input should fail")
	}
}

func TestRowsRejectsMalformedJSON(t *testing.T) {
	if _, err := Rows([]byte(`[{"a": ]`)); err == nil {
		t.Fatal("malformed JSON should fail")
	}
}
