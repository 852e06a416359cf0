package compile

// Unit is one compiled top-level declaration held in memory. Units are never
// removed: values built from an old definition stay bound to it for the life
// of the compiler, which is what keeps earlier fragments' types valid.
type Unit struct {
	Name       string
	Source     string
	Generation int
}

// Scope is one link of the generation chain, the analogue of a class-loader
// chain: each successful fragment execution pushes a new scope whose parent
// is the previous one. Scopes are never destroyed, only unreferenced.
type Scope struct {
	generation int
	parent     *Scope
	names      []string
}

// Generation returns the scope's position in the chain, starting at 0 for
// the root scope the compiler is created with.
func (s *Scope) Generation() int { return s.generation }

// Parent returns the scope this one chains to, or nil at the root.
func (s *Scope) Parent() *Scope { return s.parent }

// Resolves reports whether name was declared in this scope or any ancestor.
func (s *Scope) Resolves(name string) bool {
	for sc := s; sc != nil; sc = sc.parent {
		for _, n := range sc.names {
			if n == name {
				return true
			}
		}
	}
	return false
}

func (s *Scope) add(name string) {
	s.names = append(s.names, name)
}
