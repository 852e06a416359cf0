package fragment

// ExecutionState is the cumulative REPL state for one kernel session:
// previously committed declaration source, accumulated imports, and the last
// observed value of every declared variable. It is mutated only after a
// fragment fully succeeds; a failed submission leaves it untouched, so each
// field and import accumulates monotonically.
type ExecutionState struct {
	Codes       []string
	Imports     []string
	FieldValues map[string]any
}

// NewExecutionState returns an empty state.
func NewExecutionState() *ExecutionState {
	return &ExecutionState{FieldValues: map[string]any{}}
}

// AddImport records an import line once; resubmitting the same import is a
// no-op rather than an error.
func (s *ExecutionState) AddImport(line string) {
	if s.HasImport(line) {
		return
	}
	s.Imports = append(s.Imports, line)
}

// HasImport reports whether line was already recorded.
func (s *ExecutionState) HasImport(line string) bool {
	for _, existing := range s.Imports {
		if existing == line {
			return true
		}
	}
	return false
}

// Clone deep-copies the state. Used by callers that need a before/after
// comparison.
func (s *ExecutionState) Clone() *ExecutionState {
	c := &ExecutionState{
		Codes:       append([]string(nil), s.Codes...),
		Imports:     append([]string(nil), s.Imports...),
		FieldValues: make(map[string]any, len(s.FieldValues)),
	}
	for k, v := range s.FieldValues {
		c.FieldValues[k] = v
	}
	return c
}
