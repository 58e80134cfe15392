package expr

// Context resolves variable names during reduction. A context returns
// false when the name is foreign to it; that is not an error.
type Context interface {
	ResolveVariableNamed(name string) (Value, bool)
}

// RegistryProvider is implemented by contexts that carry their own operator
// registry. Contexts without one reduce with DefaultRegistry.
type RegistryProvider interface {
	Registry() *Registry
}

func registryFor(ctx Context) *Registry {
	if rp, ok := ctx.(RegistryProvider); ok {
		if r := rp.Registry(); r != nil {
			return r
		}
	}
	return DefaultRegistry()
}

// MapContext resolves variables from a fixed map.
type MapContext map[string]Value

func (m MapContext) ResolveVariableNamed(name string) (Value, bool) {
	v, ok := m[name]
	return v, ok
}

// CachingContext memoizes every lookup of the wrapped context, including
// misses. It is meant for a single evaluation pass and is not safe for
// concurrent use; build a new one per signal.
type CachingContext struct {
	inner Context
	cache map[string]cachedValue
}

type cachedValue struct {
	value Value
	found bool
}

// NewCachingContext wraps inner.
func NewCachingContext(inner Context) *CachingContext {
	return &CachingContext{inner: inner, cache: make(map[string]cachedValue)}
}

func (c *CachingContext) ResolveVariableNamed(name string) (Value, bool) {
	if hit, ok := c.cache[name]; ok {
		return hit.value, hit.found
	}
	var v Value
	var found bool
	if c.inner != nil {
		v, found = c.inner.ResolveVariableNamed(name)
	}
	c.cache[name] = cachedValue{value: v, found: found}
	return v, found
}

func (c *CachingContext) Registry() *Registry { return registryFor(c.inner) }

// MetaContext queries its contexts in order and returns the first
// resolution. A resolved Nil counts as found.
type MetaContext struct {
	contexts []Context
	registry *Registry
}

// NewMetaContext returns a union of contexts. Nil entries are skipped.
func NewMetaContext(contexts ...Context) *MetaContext {
	m := &MetaContext{}
	for _, c := range contexts {
		if c != nil {
			m.contexts = append(m.contexts, c)
		}
	}
	return m
}

// WithRegistry sets the operator registry used when reducing against m.
func (m *MetaContext) WithRegistry(r *Registry) *MetaContext {
	m.registry = r
	return m
}

func (m *MetaContext) ResolveVariableNamed(name string) (Value, bool) {
	for _, c := range m.contexts {
		if v, ok := c.ResolveVariableNamed(name); ok {
			return v, true
		}
	}
	return Value{}, false
}

func (m *MetaContext) Registry() *Registry {
	if m.registry != nil {
		return m.registry
	}
	return DefaultRegistry()
}
