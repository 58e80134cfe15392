package expr

import (
	"testing"
)

func TestParse_Valid(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		want Value
	}{
		{"empty expression", "()", Expression()},
		{"numbers", "(+ 1 -2.5 .5)", Expression(Variable("+"), Double(1), Double(-2.5), Double(0.5))},
		{"literals", "(f nil true false)", Expression(Variable("f"), Nil(), Bool(true), Bool(false))},
		{"strings", `(f "a b" 'c"d' "e\"f\\")`, Expression(Variable("f"), String("a b"), String(`c"d`), String(`e"f\`))},
		{"nested", "(and (= e.name \"PURCHASE\") (> e.attr.amount 10))",
			Expression(Variable("and"),
				Expression(Variable("="), Variable("e.name"), String("PURCHASE")),
				Expression(Variable(">"), Variable("e.attr.amount"), Double(10)))},
		{"set literal", `(contains ["a" 'b'] "a")`, Expression(Variable("contains"), StringSet("a", "b"), String("a"))},
		{"surrounding whitespace", "  (f)\n", Expression(Variable("f"))},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Compile(tc.src)
			if got.IsError() {
				t.Fatalf("unexpected error: %s", got.Message())
			}
			if !got.Equal(tc.want) {
				t.Errorf("Compile(%q) = %s, want %s", tc.src, got, tc.want)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	testCases := []string{
		"",
		"f",
		"(",
		")",
		"(f",
		"f)",
		"(f))",
		"(f) (g)",
		`(f "unterminated)`,
		`(f "bad \q escape")`,
		"(f [1 2])",
		`(f ["a")`,
		"(f ])",
		"(f 1.2.3)",
	}

	for _, src := range testCases {
		t.Run(src, func(t *testing.T) {
			got := Compile(src)
			if !got.IsError() {
				t.Fatalf("expected parser error for %q, got %s", src, got)
			}
			if got.ErrKind() != ErrorParser {
				t.Errorf("expected error kind %q, got %q", ErrorParser, got.ErrKind())
			}
		})
	}
}

func TestParser_SingleUse(t *testing.T) {
	p := NewParser("(f)")
	first := p.Parse()
	if first.IsError() {
		t.Fatalf("unexpected error: %s", first.Message())
	}
	second := p.Parse()
	if !second.IsError() || second.ErrKind() != ErrorInternal {
		t.Fatalf("expected internal error on reuse, got %s", second)
	}
}

func TestValue_StringRoundTrip(t *testing.T) {
	src := `(and (= e.label "x") (contains t.segments "vip") (> 2 1))`
	first := Compile(src)
	if first.IsError() {
		t.Fatalf("unexpected error: %s", first.Message())
	}
	second := Compile(first.String())
	if !first.Equal(second) {
		t.Errorf("re-parsed %s differs from %s", second, first)
	}
}
