package batch

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"payplan/engine"
	"payplan/plan"
)

// StepPath records which execution path produced a step's column.
type StepPath string

const (
	PathColumn StepPath = "column"
	PathRow    StepPath = "row"
)

// RowError is one row's evaluation failure. Unless FailFast is set, the
// executor marks the row failed (null outputs) and continues the batch.
type RowError struct {
	Row  int
	Step string
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("step %q row %d: %v", e.Step, e.Row, e.Err)
}

// RunResult summarizes one batch execution.
type RunResult struct {
	RunID     string
	Order     []string
	Paths     map[string]StepPath
	RowErrors []RowError
}

// Executor evaluates a plan's steps over a batch table. It holds no
// shared mutable state across calls; each execution is pure with respect
// to its inputs apart from the optional sink side effect.
type Executor struct {
	l     *slog.Logger
	opts  Options
	cache *engine.Cache
	sink  ResultSink
}

// NewExecutor builds an executor. The sink may be nil to skip step-result
// persistence entirely.
func NewExecutor(l *slog.Logger, opts Options, sink ResultSink) (*Executor, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	if l == nil {
		l = slog.Default()
	}
	return &Executor{
		l:     l,
		opts:  opts,
		cache: engine.NewCache(),
		sink:  sink,
	}, nil
}

// Execute runs every step over every row, strictly in ordering when given
// (the validator's suggestion), else in declared order. One new column is
// appended per step output. Later steps read columns earlier steps
// produced, so steps are never interleaved or reordered.
func (e *Executor) Execute(p *plan.Plan, ordering []string, t *Table) (*RunResult, error) {
	for _, in := range p.Inputs {
		if in.Required && !t.HasColumn(in.Name) {
			return nil, fmt.Errorf("required input column %q missing from batch", in.Name)
		}
	}

	steps, err := orderSteps(p, ordering)
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		RunID: uuid.New().String(),
		Paths: make(map[string]StepPath, len(steps)),
	}
	refs := e.employeeRefs(t)

	for _, step := range steps {
		result.Order = append(result.Order, step.Name)

		path, values, err := e.executeStep(step, t, result)
		if err != nil {
			return nil, fmt.Errorf("executing step %q: %w", step.Name, err)
		}
		result.Paths[step.Name] = path

		for i, out := range step.Outputs {
			vals := values
			if i > 0 {
				vals = append([]any(nil), values...)
			}
			if err := t.SetValues(out, vals); err != nil {
				return nil, fmt.Errorf("appending output %q: %w", out, err)
			}
		}

		e.emit(result.RunID, step, refs, values)
	}

	return result, nil
}

// orderSteps resolves execution order: the validator's suggestion when
// available, else declared rank (stable for equal ranks).
func orderSteps(p *plan.Plan, ordering []string) ([]*plan.Step, error) {
	if len(ordering) > 0 {
		steps := make([]*plan.Step, 0, len(ordering))
		for _, name := range ordering {
			step := p.Step(name)
			if step == nil {
				return nil, fmt.Errorf("ordering names unknown step %q", name)
			}
			steps = append(steps, step)
		}
		return steps, nil
	}

	steps := make([]*plan.Step, len(p.Steps))
	for i := range p.Steps {
		steps[i] = &p.Steps[i]
	}
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	return steps, nil
}

// executeStep produces the step's output values, trying the
// column-compiled path first in fast/balanced modes. Exact mode and
// condition-guarded steps always take the row path. A column-path runtime
// failure (say, a zero divisor somewhere in the column) also degrades to
// the row path, where the failure becomes a per-row error instead of a
// step abort.
func (e *Executor) executeStep(step *plan.Step, t *Table, result *RunResult) (StepPath, []any, error) {
	expr, err := e.cache.Get(step.Expression)
	if err != nil {
		return "", nil, err
	}

	if e.opts.PrecisionMode != PrecisionExact && step.Condition == "" {
		if op, ok := compileColumn(expr.Root); ok {
			floats, err := op(t)
			if err == nil {
				if e.opts.PrecisionMode == PrecisionBalanced {
					quantize(floats, e.opts.Scale)
				}
				values := make([]any, len(floats))
				for i, f := range floats {
					values[i] = f
				}
				return PathColumn, values, nil
			}
			e.l.Warn("column path failed, falling back to row evaluation",
				"step", step.Name, "error", err)
		}
	}

	values, err := e.rowPath(step, expr, t, result)
	if err != nil {
		return "", nil, err
	}
	return PathRow, values, nil
}

func (e *Executor) rowPath(step *plan.Step, expr *engine.Expression, t *Table, result *RunResult) ([]any, error) {
	var cond *engine.Expression
	if step.Condition != "" {
		var err error
		cond, err = e.cache.Get(step.Condition)
		if err != nil {
			return nil, fmt.Errorf("parsing condition: %w", err)
		}
	}

	values := make([]any, t.Rows())
	for i := 0; i < t.Rows(); i++ {
		binding := t.Binding(i)

		if cond != nil {
			keep, err := e.evalCondition(cond, binding)
			if err != nil {
				if ferr := e.rowFailed(step, i, err, result); ferr != nil {
					return nil, ferr
				}
				continue
			}
			if !keep {
				// Suppressed row: outputs stay null so the gap is visible
				// in audit records and later steps fail per-row, not
				// structurally.
				continue
			}
		}

		val, err := engine.EvaluateExpr(expr, binding)
		if err != nil {
			if ferr := e.rowFailed(step, i, err, result); ferr != nil {
				return nil, ferr
			}
			continue
		}
		values[i] = e.convert(val)
	}
	return values, nil
}

func (e *Executor) evalCondition(cond *engine.Expression, binding map[string]any) (bool, error) {
	val, err := engine.EvaluateExpr(cond, binding)
	if err != nil {
		return false, err
	}
	b, ok := val.(bool)
	if !ok {
		return false, fmt.Errorf("condition evaluated to %T, expected boolean", val)
	}
	return b, nil
}

func (e *Executor) rowFailed(step *plan.Step, row int, err error, result *RunResult) error {
	rowErr := RowError{Row: row, Step: step.Name, Err: err}
	if e.opts.FailFast {
		return rowErr
	}
	result.RowErrors = append(result.RowErrors, rowErr)
	e.l.Debug("row evaluation failed", "step", step.Name, "row", row, "error", err)
	return nil
}

// convert applies the precision mode to one row-path result value.
func (e *Executor) convert(val any) any {
	d, ok := val.(decimal.Decimal)
	if !ok {
		return val
	}
	switch e.opts.PrecisionMode {
	case PrecisionFast:
		return d.InexactFloat64()
	case PrecisionBalanced:
		return d.Round(e.opts.Scale).InexactFloat64()
	default:
		return d
	}
}

// quantize rounds every column value to scale, half up, containing
// floating-point drift without paying decimal cost on intermediates.
func quantize(floats []float64, scale int32) {
	for i, f := range floats {
		floats[i] = decimal.NewFromFloat(f).Round(scale).InexactFloat64()
	}
}

// emit delivers one step result record per row to the sink, when one is
// configured. Failures are logged and swallowed: persistence is
// best-effort telemetry, never a correctness dependency.
func (e *Executor) emit(runID string, step *plan.Step, refs []string, values []any) {
	if e.sink == nil {
		return
	}
	for i, val := range values {
		rec := StepResultRecord{
			RunID:       runID,
			EmployeeRef: refs[i],
			StepName:    step.Name,
			Value:       val,
			ValueKind:   kindOf(val),
		}
		if err := e.sink.Write(rec); err != nil {
			e.l.Warn("failed to persist step result",
				"step", step.Name, "row", i, "error", err)
		}
	}
}

// employeeRefs resolves the per-row employee reference from the
// configured column, falling back to the row index.
func (e *Executor) employeeRefs(t *Table) []string {
	col, ok := t.Column(e.opts.EmployeeRefColumn)
	refs := make([]string, t.Rows())
	for i := range refs {
		if ok {
			refs[i] = formatRef(col.Value(i))
		} else {
			refs[i] = strconv.Itoa(i)
		}
	}
	return refs
}

func formatRef(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case decimal.Decimal:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
