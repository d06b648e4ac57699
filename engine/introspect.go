package engine

// ComplexityScore is an advisory cost heuristic: node count with calls
// and conditionals weighted heavier. Callers use it to flag expensive
// formulas in editing UIs; it has no effect on evaluation.
func (e *Expression) ComplexityScore() int {
	score := 0
	Walk(e.Root, func(n Node) {
		switch n.(type) {
		case *Call:
			score += 3
		case *Conditional:
			score += 3
		case *Compare, *BoolOp:
			score += 2
		default:
			score++
		}
	})
	return score
}

// HasConditionalLogic reports whether the formula branches: a conditional,
// boolean operator, or comparison anywhere in the tree.
func (e *Expression) HasConditionalLogic() bool {
	found := false
	Walk(e.Root, func(n Node) {
		switch n.(type) {
		case *Conditional, *BoolOp, *Compare:
			found = true
		}
	})
	return found
}
