package validator

// Registry maps rule keys to Validator implementations and remembers the
// order they were registered in. Rules run in that order.
type Registry struct {
	validators map[string]Validator
	order      []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{validators: make(map[string]Validator)}
}

// Register adds a validator to the registry. Registering an existing key
// replaces the validator but keeps its position.
func (r *Registry) Register(v Validator) {
	key := v.RuleKey()
	if _, ok := r.validators[key]; !ok {
		r.order = append(r.order, key)
	}
	r.validators[key] = v
}

// Get returns the validator for a given rule key, or nil if not found.
func (r *Registry) Get(key string) Validator {
	return r.validators[key]
}

// All returns all registered validators in registration order.
func (r *Registry) All() []Validator {
	out := make([]Validator, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.validators[k])
	}
	return out
}

// Len returns the number of registered rules.
func (r *Registry) Len() int { return len(r.order) }
