package syndicate

// Registry maps platform names to configured Poster instances. Names are
// unique; insertion order is preserved for default dispatch enumeration.
type Registry struct {
	order   []string
	posters map[string]Poster
}

// NewRegistry builds a registry from the given posters, keeping their order.
func NewRegistry(posters ...Poster) *Registry {
	r := &Registry{posters: make(map[string]Poster, len(posters))}
	for _, p := range posters {
		r.Add(p)
	}
	return r
}

// Add registers a poster under its Name, replacing any previous entry
// with the same name without changing its position.
func (r *Registry) Add(p Poster) {
	name := p.Name()
	if _, ok := r.posters[name]; !ok {
		r.order = append(r.order, name)
	}
	r.posters[name] = p
}

// Get looks up a poster by platform name.
func (r *Registry) Get(name string) (Poster, bool) {
	p, ok := r.posters[name]
	return p, ok
}

// Names returns the registered platform names in insertion order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Len reports how many posters are registered.
func (r *Registry) Len() int { return len(r.order) }
