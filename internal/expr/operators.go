package expr

import (
	"strings"
	"sync"
)

// Handler implements an operator. Arguments are already reduced to
// primitive values; the handler checks arity and types itself.
type Handler func(ctx Context, args []Value) Value

// Operator is a named handler.
type Operator struct {
	Name    string
	Handler Handler
}

// Registry maps operator symbols to operators. Lookups are case-insensitive.
// A Registry is safe for concurrent lookups once populated.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]*Operator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]*Operator)}
}

// Register adds or replaces an operator.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[strings.ToLower(name)] = &Operator{Name: name, Handler: h}
}

// Lookup returns the operator registered under name.
func (r *Registry) Lookup(name string) (*Operator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[strings.ToLower(name)]
	return op, ok
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the shared registry holding the built-in operators.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
		RegisterBuiltins(defaultRegistry)
	})
	return defaultRegistry
}

// RegisterBuiltins installs the built-in operators into r.
func RegisterBuiltins(r *Registry) {
	r.Register("and", opAnd)
	r.Register("or", opOr)
	r.Register("not", opNot)
	r.Register("=", opEqual)
	r.Register("!=", opNotEqual)
	r.Register(">", compareOp(">", func(a, b float64) bool { return a > b }))
	r.Register(">=", compareOp(">=", func(a, b float64) bool { return a >= b }))
	r.Register("<", compareOp("<", func(a, b float64) bool { return a < b }))
	r.Register("<=", compareOp("<=", func(a, b float64) bool { return a <= b }))
	r.Register("contains", opContains)
	r.Register("containsAny", opContainsAny)
	r.Register("containsAll", opContainsAll)
	r.Register("startsWith", stringPredicate("startsWith", strings.HasPrefix))
	r.Register("endsWith", stringPredicate("endsWith", strings.HasSuffix))
	r.Register("lower", stringTransform("lower", strings.ToLower))
	r.Register("upper", stringTransform("upper", strings.ToUpper))
	r.Register("isNil", opIsNil)
	r.Register("if", opIf)
	r.Register("length", opLength)
}

func arityError(name string, want string, got int) Value {
	return Errorf(ErrorEvaluation, "%s: expected %s argument(s), got %d", name, want, got)
}

func typeError(name string, want Kind, got Value) Value {
	return Errorf(ErrorEvaluation, "%s: expected %s, got %s", name, want, got.Kind())
}

func opAnd(_ Context, args []Value) Value {
	if len(args) == 0 {
		return arityError("and", "at least 1", 0)
	}
	for _, a := range args {
		if a.Kind() != KindBool {
			return typeError("and", KindBool, a)
		}
	}
	for _, a := range args {
		if !a.Boolean() {
			return Bool(false)
		}
	}
	return Bool(true)
}

func opOr(_ Context, args []Value) Value {
	if len(args) == 0 {
		return arityError("or", "at least 1", 0)
	}
	for _, a := range args {
		if a.Kind() != KindBool {
			return typeError("or", KindBool, a)
		}
	}
	for _, a := range args {
		if a.Boolean() {
			return Bool(true)
		}
	}
	return Bool(false)
}

func opNot(_ Context, args []Value) Value {
	if len(args) != 1 {
		return arityError("not", "1", len(args))
	}
	if args[0].Kind() != KindBool {
		return typeError("not", KindBool, args[0])
	}
	return Bool(!args[0].Boolean())
}

func opEqual(_ Context, args []Value) Value {
	if len(args) < 2 {
		return arityError("=", "at least 2", len(args))
	}
	for _, a := range args[1:] {
		if !args[0].Equal(a) {
			return Bool(false)
		}
	}
	return Bool(true)
}

func opNotEqual(_ Context, args []Value) Value {
	if len(args) != 2 {
		return arityError("!=", "2", len(args))
	}
	return Bool(!args[0].Equal(args[1]))
}

func compareOp(name string, cmp func(a, b float64) bool) Handler {
	return func(_ Context, args []Value) Value {
		if len(args) != 2 {
			return arityError(name, "2", len(args))
		}
		for _, a := range args {
			if a.Kind() != KindDouble {
				return typeError(name, KindDouble, a)
			}
		}
		return Bool(cmp(args[0].Num(), args[1].Num()))
	}
}

// opContains checks that the set in the first argument holds the string, or
// every member of the set, in the second.
func opContains(_ Context, args []Value) Value {
	if len(args) != 2 {
		return arityError("contains", "2", len(args))
	}
	switch args[0].Kind() {
	case KindStringSet:
	case KindString:
		if args[1].Kind() != KindString {
			return typeError("contains", KindString, args[1])
		}
		return Bool(strings.Contains(args[0].Str(), args[1].Str()))
	default:
		return typeError("contains", KindStringSet, args[0])
	}
	switch args[1].Kind() {
	case KindString:
		return Bool(args[0].Has(args[1].Str()))
	case KindStringSet:
		for _, m := range args[1].Set() {
			if !args[0].Has(m) {
				return Bool(false)
			}
		}
		return Bool(true)
	}
	return typeError("contains", KindString, args[1])
}

func setArgs(name string, args []Value) (Value, Value, *Value) {
	if len(args) != 2 {
		e := arityError(name, "2", len(args))
		return Value{}, Value{}, &e
	}
	for _, a := range args {
		if a.Kind() != KindStringSet {
			e := typeError(name, KindStringSet, a)
			return Value{}, Value{}, &e
		}
	}
	return args[0], args[1], nil
}

func opContainsAny(_ Context, args []Value) Value {
	set, probe, errv := setArgs("containsAny", args)
	if errv != nil {
		return *errv
	}
	for _, m := range probe.Set() {
		if set.Has(m) {
			return Bool(true)
		}
	}
	return Bool(false)
}

func opContainsAll(_ Context, args []Value) Value {
	set, probe, errv := setArgs("containsAll", args)
	if errv != nil {
		return *errv
	}
	for _, m := range probe.Set() {
		if !set.Has(m) {
			return Bool(false)
		}
	}
	return Bool(true)
}

func stringPredicate(name string, pred func(s, affix string) bool) Handler {
	return func(_ Context, args []Value) Value {
		if len(args) != 2 {
			return arityError(name, "2", len(args))
		}
		for _, a := range args {
			if a.Kind() != KindString {
				return typeError(name, KindString, a)
			}
		}
		return Bool(pred(args[0].Str(), args[1].Str()))
	}
}

func stringTransform(name string, fn func(string) string) Handler {
	return func(_ Context, args []Value) Value {
		if len(args) != 1 {
			return arityError(name, "1", len(args))
		}
		switch args[0].Kind() {
		case KindString:
			return String(fn(args[0].Str()))
		case KindStringSet:
			members := args[0].Set()
			for i, m := range members {
				members[i] = fn(m)
			}
			return StringSet(members...)
		}
		return typeError(name, KindString, args[0])
	}
}

func opIsNil(_ Context, args []Value) Value {
	if len(args) != 1 {
		return arityError("isNil", "1", len(args))
	}
	return Bool(args[0].IsNil())
}

func opIf(_ Context, args []Value) Value {
	if len(args) != 3 {
		return arityError("if", "3", len(args))
	}
	if args[0].Kind() != KindBool {
		return typeError("if", KindBool, args[0])
	}
	if args[0].Boolean() {
		return args[1]
	}
	return args[2]
}

func opLength(_ Context, args []Value) Value {
	if len(args) != 1 {
		return arityError("length", "1", len(args))
	}
	switch args[0].Kind() {
	case KindString, KindStringSet:
		return Double(float64(args[0].Len()))
	case KindNil:
		return Double(0)
	}
	return typeError("length", KindStringSet, args[0])
}
