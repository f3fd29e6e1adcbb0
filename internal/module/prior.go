package module

// Prior carries the results already applied to a record, keyed by module ID.
type Prior map[string]Result

// Get returns the result a module produced for the current record.
func (p Prior) Get(id string) (Result, bool) {
	res, ok := p[id]
	return res, ok && res != nil
}

// Lookup returns the result for id when it has the concrete type T.
func Lookup[T Result](p Prior, id string) (T, bool) {
	var zero T
	res, ok := p.Get(id)
	if !ok {
		return zero, false
	}
	typed, ok := res.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Clone returns a shallow copy safe to hand to another module.
func (p Prior) Clone() Prior {
	out := make(Prior, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
