package expr

import "testing"

type countingContext struct {
	values map[string]Value
	calls  map[string]int
}

func (c *countingContext) ResolveVariableNamed(name string) (Value, bool) {
	c.calls[name]++
	v, ok := c.values[name]
	return v, ok
}

func TestCachingContext_Memoizes(t *testing.T) {
	inner := &countingContext{
		values: map[string]Value{"a": Double(1)},
		calls:  map[string]int{},
	}
	ctx := NewCachingContext(inner)

	for i := 0; i < 3; i++ {
		if v, ok := ctx.ResolveVariableNamed("a"); !ok || v.Num() != 1 {
			t.Fatalf("expected a=1, got %s (found=%v)", v, ok)
		}
		if _, ok := ctx.ResolveVariableNamed("missing"); ok {
			t.Fatal("expected missing to be unresolved")
		}
	}
	if inner.calls["a"] != 1 {
		t.Errorf("expected one lookup for a, got %d", inner.calls["a"])
	}
	if inner.calls["missing"] != 1 {
		t.Errorf("expected one lookup for missing, got %d", inner.calls["missing"])
	}
}

func TestMetaContext_FirstResolutionWins(t *testing.T) {
	first := MapContext{"x": Nil()}
	second := MapContext{"x": String("second"), "y": String("only second")}
	ctx := NewMetaContext(first, nil, second)

	v, ok := ctx.ResolveVariableNamed("x")
	if !ok || !v.IsNil() {
		t.Errorf("expected resolved nil from first context, got %s (found=%v)", v, ok)
	}
	v, ok = ctx.ResolveVariableNamed("y")
	if !ok || v.Str() != "only second" {
		t.Errorf("expected fallthrough to second context, got %s", v)
	}
	if _, ok := ctx.ResolveVariableNamed("z"); ok {
		t.Error("expected z to be unresolved")
	}
}
