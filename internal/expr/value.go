// Package expr implements the small S-expression language used to guard
// campaign triggers.
//
// Every node of a parsed condition and every evaluation result is a Value.
// Value is a closed tagged variant: the Kind decides which accessor is
// meaningful. Only Variable and Expression values reduce to something else;
// reducing any other kind returns the value unchanged.
//
// Failures never panic and are never returned as Go errors. They are Values of
// KindError carrying an ErrorKind so callers can tell malformed input
// (ErrorParser), bad input at evaluation time (ErrorEvaluation) and bugs in the
// engine itself (ErrorInternal) apart.
package expr

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindString
	KindDouble
	KindBool
	KindStringSet
	KindVariable
	KindOperator
	KindExpression
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindString:
		return "string"
	case KindDouble:
		return "double"
	case KindBool:
		return "bool"
	case KindStringSet:
		return "set"
	case KindVariable:
		return "variable"
	case KindOperator:
		return "operator"
	case KindExpression:
		return "expression"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// ErrorKind classifies an error Value.
type ErrorKind string

const (
	// ErrorParser marks malformed expression text.
	ErrorParser ErrorKind = "parser"
	// ErrorEvaluation marks a failure caused by the input being evaluated,
	// such as an unknown variable or an operator type mismatch.
	ErrorEvaluation ErrorKind = "error"
	// ErrorInternal marks an invariant violation inside the engine.
	ErrorInternal ErrorKind = "internal"
)

// Value is a node of an expression tree or the result of reducing one.
type Value struct {
	kind  Kind
	str   string // string value, variable name or error message
	num   float64
	flag  bool
	set   map[string]struct{}
	op    *Operator
	items []Value
	err   ErrorKind
}

// Nil returns the nil value.
func Nil() Value { return Value{kind: KindNil} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Double returns a numeric value.
func Double(d float64) Value { return Value{kind: KindDouble, num: d} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }

// StringSet returns a set holding the given strings.
func StringSet(items ...string) Value {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return Value{kind: KindStringSet, set: set}
}

// Variable returns a reference to a variable resolved at reduction time.
func Variable(name string) Value { return Value{kind: KindVariable, str: name} }

// OperatorValue wraps an operator so it can appear at the head of an expression.
func OperatorValue(op *Operator) Value { return Value{kind: KindOperator, op: op} }

// Expression returns a composite value. The first item is expected to reduce
// to an operator.
func Expression(items ...Value) Value {
	return Value{kind: KindExpression, items: items}
}

// Errorf returns an error value of the given kind.
func Errorf(kind ErrorKind, format string, args ...any) Value {
	return Value{kind: KindError, err: kind, str: fmt.Sprintf(format, args...)}
}

func (v Value) Kind() Kind { return v.kind }

// Str returns the string payload of a KindString value.
func (v Value) Str() string { return v.str }

// Num returns the payload of a KindDouble value.
func (v Value) Num() float64 { return v.num }

// Boolean returns the payload of a KindBool value.
func (v Value) Boolean() bool { return v.flag }

// Set returns a sorted copy of the members of a KindStringSet value.
func (v Value) Set() []string {
	out := make([]string, 0, len(v.set))
	for s := range v.set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Has reports whether a set value contains s.
func (v Value) Has(s string) bool {
	_, ok := v.set[s]
	return ok
}

// Len returns the number of members of a set, the number of runes of a
// string, or the number of items of an expression.
func (v Value) Len() int {
	switch v.kind {
	case KindStringSet:
		return len(v.set)
	case KindString:
		return utf8.RuneCountInString(v.str)
	case KindExpression:
		return len(v.items)
	}
	return 0
}

// Name returns the name of a variable value.
func (v Value) Name() string { return v.str }

// Operator returns the operator held by a KindOperator value.
func (v Value) Operator() *Operator { return v.op }

// Items returns the elements of an expression value.
func (v Value) Items() []Value { return v.items }

// ErrKind returns the error classification of a KindError value.
func (v Value) ErrKind() ErrorKind { return v.err }

// Message returns the message of a KindError value.
func (v Value) Message() string { return v.str }

func (v Value) IsError() bool { return v.kind == KindError }

func (v Value) IsNil() bool { return v.kind == KindNil }

// Truthy reports whether v counts as a satisfied condition.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.flag
	case KindDouble:
		return v.num != 0
	case KindString:
		return v.str != ""
	case KindStringSet:
		return len(v.set) > 0
	}
	return false
}

// Equal compares two primitive values. Values of different kinds are never
// equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindString, KindVariable:
		return v.str == o.str
	case KindDouble:
		return v.num == o.num
	case KindBool:
		return v.flag == o.flag
	case KindStringSet:
		if len(v.set) != len(o.set) {
			return false
		}
		for s := range v.set {
			if _, ok := o.set[s]; !ok {
				return false
			}
		}
		return true
	case KindOperator:
		return v.op == o.op
	case KindError:
		return v.err == o.err && v.str == o.str
	case KindExpression:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders the value back as expression text.
func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindString:
		return strconv.Quote(v.str)
	case KindDouble:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.flag)
	case KindStringSet:
		members := v.Set()
		for i, m := range members {
			members[i] = strconv.Quote(m)
		}
		return "[" + strings.Join(members, " ") + "]"
	case KindVariable:
		return v.str
	case KindOperator:
		if v.op == nil {
			return "<nil operator>"
		}
		return v.op.Name
	case KindExpression:
		parts := make([]string, len(v.items))
		for i, it := range v.items {
			parts[i] = it.String()
		}
		return "(" + strings.Join(parts, " ") + ")"
	case KindError:
		return fmt.Sprintf("<%s: %s>", v.err, v.str)
	}
	return "<unknown>"
}

// Reduce evaluates v against ctx. Variables are resolved through ctx and
// expressions are applied; every other kind is returned unchanged. The first
// error encountered is returned as is.
func (v Value) Reduce(ctx Context) Value {
	switch v.kind {
	case KindNil, KindString, KindDouble, KindBool, KindStringSet, KindOperator, KindError:
		return v
	case KindVariable:
		if ctx == nil {
			return Errorf(ErrorEvaluation, "unknown variable %q: no context", v.str)
		}
		resolved, ok := ctx.ResolveVariableNamed(v.str)
		if !ok {
			return Errorf(ErrorEvaluation, "unknown variable %q", v.str)
		}
		return resolved
	case KindExpression:
		return reduceExpression(v.items, ctx)
	}
	return Errorf(ErrorInternal, "cannot reduce value of kind %s", v.kind)
}

func reduceExpression(items []Value, ctx Context) Value {
	if len(items) == 0 {
		return Nil()
	}

	head := resolveHead(items[0], ctx)
	if head.IsError() {
		return head
	}
	if head.kind != KindOperator || head.op == nil || head.op.Handler == nil {
		return Errorf(ErrorEvaluation, "expression head %s is not an operator", items[0])
	}

	args := make([]Value, 0, len(items)-1)
	for _, it := range items[1:] {
		r := it.Reduce(ctx)
		if r.IsError() {
			return r
		}
		if r.kind == KindVariable || r.kind == KindExpression {
			return Errorf(ErrorInternal, "argument %s did not reduce to a primitive", it)
		}
		args = append(args, r)
	}

	return head.op.Handler(ctx, args)
}

// resolveHead turns the first element of an expression into an operator. A
// bare symbol is looked up in the operator registry before the context.
func resolveHead(head Value, ctx Context) Value {
	switch head.kind {
	case KindVariable:
		if op, ok := registryFor(ctx).Lookup(head.str); ok {
			return OperatorValue(op)
		}
		return head.Reduce(ctx)
	case KindExpression:
		return head.Reduce(ctx)
	}
	return head
}
