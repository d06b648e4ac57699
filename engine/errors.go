package engine

import "fmt"

// SyntaxError reports formula text that cannot be parsed. Always an
// authoring mistake; surfaced verbatim, never retried.
type SyntaxError struct {
	Pos     int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at position %d: %s", e.Pos, e.Message)
}

// SecurityError reports a formula that parses but uses a construct outside
// the whitelisted grammar: an unlisted function, attribute or subscript
// access, or an underscore-prefixed identifier. Hard rejection, never
// auto-corrected.
type SecurityError struct {
	Pos       int
	Construct string
	Message   string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("disallowed %s at position %d: %s", e.Construct, e.Pos, e.Message)
}

// EvaluationError reports a runtime failure while evaluating a parsed
// formula: an undefined variable, division by zero, a wrong argument
// count, or an unconvertible value type.
type EvaluationError struct {
	Message string
	Cause   error
}

func (e *EvaluationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("evaluation error: %s: %v", e.Message, e.Cause)
	}
	return "evaluation error: " + e.Message
}

func (e *EvaluationError) Unwrap() error {
	return e.Cause
}

func evalErrorf(format string, args ...any) *EvaluationError {
	return &EvaluationError{Message: fmt.Sprintf(format, args...)}
}
