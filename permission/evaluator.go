package permission

// Evaluator answers permission questions against a static table. It is
// pure and side-effect free; safe for concurrent use since the table is
// never mutated after construction.
type Evaluator struct {
	table Table
}

// NewEvaluator creates an evaluator over the given table. A nil table
// falls back to the built-in default matrix.
func NewEvaluator(table Table) *Evaluator {
	if table == nil {
		table = DefaultTable()
	}
	return &Evaluator{table: table}
}

// find returns the first qualifying grant for (role, resource, action).
func (e *Evaluator) find(role Role, resource Resource, action Action) (Permission, bool) {
	for _, p := range e.table[role] {
		if p.matches(resource, action) {
			return p, true
		}
	}
	return Permission{}, false
}

// HasPermission reports whether the role holds any grant qualifying for
// the resource and action, ignoring conditions.
func (e *Evaluator) HasPermission(role Role, resource Resource, action Action) bool {
	_, ok := e.find(role, resource, action)
	return ok
}

// Conditions returns the condition attached to the qualifying grant.
// The second return is false when no grant qualifies at all.
func (e *Evaluator) Conditions(role Role, resource Resource, action Action) (Condition, bool) {
	p, ok := e.find(role, resource, action)
	if !ok {
		return Unconditional, false
	}
	return p.Condition, true
}

// CheckWithConditions reports whether the role holds a qualifying grant
// whose condition passes against the supplied context. Unconditional
// grants pass with any context, including nil.
func (e *Evaluator) CheckWithConditions(role Role, resource Resource, action Action, cctx *ConditionContext) bool {
	p, ok := e.find(role, resource, action)
	if !ok {
		return false
	}
	return p.Condition.Evaluate(cctx)
}
