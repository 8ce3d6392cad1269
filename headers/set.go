package headers

// Set is an ordered name to Value mapping. Overwriting an existing name keeps
// its original position.
type Set struct {
	names  []string
	values map[string]Value
}

func NewSet() *Set {
	return &Set{values: make(map[string]Value)}
}

// Put stores v under name, replacing any previous value.
func (s *Set) Put(name string, v Value) {
	if _, ok := s.values[name]; !ok {
		s.names = append(s.names, name)
	}
	s.values[name] = v
}

func (s *Set) Get(name string) (Value, bool) {
	if s == nil {
		return Value{}, false
	}
	v, ok := s.values[name]
	return v, ok
}

// Merge copies every entry of other into s in other's order; entries of other
// win on name collision.
func (s *Set) Merge(other *Set) {
	other.Range(func(name string, v Value) bool {
		s.Put(name, v)
		return true
	})
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

// Names returns the header names in insertion order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Range calls fn for each entry in insertion order until fn returns false.
func (s *Set) Range(fn func(name string, v Value) bool) {
	if s == nil {
		return
	}
	for _, name := range s.names {
		if !fn(name, s.values[name]) {
			return
		}
	}
}
