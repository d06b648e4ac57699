package batch

import (
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// PrecisionMode selects how step arithmetic trades speed for exactness.
type PrecisionMode string

const (
	// PrecisionFast uses native floating point throughout the compiled
	// column path for maximum throughput.
	PrecisionFast PrecisionMode = "fast"
	// PrecisionBalanced uses the same arithmetic but re-quantizes every
	// step-output column to Scale, containing float drift for display.
	PrecisionBalanced PrecisionMode = "balanced"
	// PrecisionExact evaluates every row through the decimal engine.
	PrecisionExact PrecisionMode = "exact"
)

// Options configures one batch execution. The function whitelist is fixed
// by the engine and deliberately absent here.
type Options struct {
	PrecisionMode     PrecisionMode `json:"precision_mode" default:"balanced" validate:"oneof=fast balanced exact"`
	Scale             int32         `json:"scale" default:"2" validate:"gte=0,lte=9"`
	EmployeeRefColumn string        `json:"employee_ref_column" default:"employee_id"`
	FailFast          bool          `json:"fail_fast"`
}

var validate = validator.New()

// normalize applies defaults to zero-valued fields and validates the
// result.
func (o *Options) normalize() error {
	if err := defaults.Set(o); err != nil {
		return fmt.Errorf("applying option defaults: %w", err)
	}
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}

// OptionsFromMap decodes recognized options from a weakly-typed map, the
// shape configuration arrives in from host applications. Unknown keys are
// ignored; recognized keys are coerced (e.g. "2" to 2) and validated.
func OptionsFromMap(m map[string]any) (Options, error) {
	var opts Options
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return opts, fmt.Errorf("building options decoder: %w", err)
	}
	if err := decoder.Decode(m); err != nil {
		return opts, fmt.Errorf("decoding options: %w", err)
	}
	if err := opts.normalize(); err != nil {
		return opts, err
	}
	return opts, nil
}
