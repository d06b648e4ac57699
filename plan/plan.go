// Package plan holds the calculation-plan data model and the dependency
// validator that checks a plan's step graph before execution.
package plan

// Step is one named calculation in a plan. A single evaluated result may
// be broadcast to several output names.
type Step struct {
	Name       string   `yaml:"name" json:"name"`
	Order      int      `yaml:"order" json:"order"`
	Expression string   `yaml:"expression" json:"expression"`
	Condition  string   `yaml:"condition,omitempty" json:"condition,omitempty"`
	Outputs    []string `yaml:"outputs" json:"outputs"`
}

// InputDeclaration names a variable the caller must supply with each
// batch row.
type InputDeclaration struct {
	Name     string `yaml:"name" json:"name"`
	Required bool   `yaml:"required" json:"required"`
}

// Plan is an ordered list of calculation steps plus the inputs they may
// reference. Plans arrive as in-memory structures; persistence belongs to
// the surrounding application.
type Plan struct {
	Name   string             `yaml:"name" json:"name"`
	Inputs []InputDeclaration `yaml:"inputs" json:"inputs"`
	Steps  []Step             `yaml:"steps" json:"steps"`
}

// Step returns the step with the given name, or nil.
func (p *Plan) Step(name string) *Step {
	for i := range p.Steps {
		if p.Steps[i].Name == name {
			return &p.Steps[i]
		}
	}
	return nil
}

// InputNames returns the declared input names in declaration order.
func (p *Plan) InputNames() []string {
	names := make([]string, len(p.Inputs))
	for i, in := range p.Inputs {
		names[i] = in.Name
	}
	return names
}
