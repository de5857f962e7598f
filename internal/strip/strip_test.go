package strip

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func join(lines ...string) string {
	return strings.Join(lines, "\n")
}

func TestRemove(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		removed int
	}{
		{
			name:    "empty input",
			input:   "",
			want:    "",
			removed: 0,
		},
		{
			name:    "no target calls",
			input:   join("const a = 1;", "foo(a);", "", "// console.log(a)"),
			want:    join("const a = 1;", "foo(a);", "", "// console.log(a)"),
			removed: 0,
		},
		{
			name:    "single line call",
			input:   join("foo();", "console.log(arg1, arg2);", "bar();"),
			want:    join("foo();", "bar();"),
			removed: 1,
		},
		{
			name:    "single line call without semicolon",
			input:   join("foo();", "    console.log('x')", "bar();"),
			want:    join("foo();", "bar();"),
			removed: 1,
		},
		{
			name:    "three line call",
			input:   join("a();", "console.log(", "  value", ");", "b();"),
			want:    join("a();", "b();"),
			removed: 1,
		},
		{
			name:    "nested parentheses across lines",
			input:   join("console.log('total', sum(", "  items.map((i) => i.price)", "));", "done();"),
			want:    "done();",
			removed: 1,
		},
		{
			name:    "unbalanced call to end of input",
			input:   join("a();", "console.log('x',", "  b"),
			want:    join("a();", "console.log('x',", "  b"),
			removed: 0,
		},
		{
			name:    "call after other code on the line",
			input:   join("x = 1; console.log(y);", "z();"),
			want:    join("x = 1; console.log(y);", "z();"),
			removed: 0,
		},
		{
			name:    "trailing code on the closing line goes with it",
			input:   join("console.log(a); cleanup();", "next();"),
			want:    "next();",
			removed: 1,
		},
		{
			name:    "other console methods are kept",
			input:   join("console.error(err);", "console.warn('w');", "console.log('l');"),
			want:    join("console.error(err);", "console.warn('w');"),
			removed: 1,
		},
		{
			name:    "space before parenthesis is not a candidate",
			input:   "console.log ('spaced');",
			want:    "console.log ('spaced');",
			removed: 0,
		},
		{
			name:    "several statements",
			input:   join("console.log(1);", "keep();", "  console.log(", "    2", "  );", "console.log(3)"),
			want:    "keep();",
			removed: 3,
		},
		{
			name:    "trailing newline is preserved",
			input:   "a();\nconsole.log(1);\n",
			want:    "a();\n",
			removed: 1,
		},
		{
			name:    "crlf line endings are preserved",
			input:   "a();\r\nconsole.log(1);\r\nb();\r\n",
			want:    "a();\r\nb();\r\n",
			removed: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, removed := Remove(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.removed, removed)
		})
	}
}

func TestRemoveScenario(t *testing.T) {
	input := []string{"foo();", "target(", "  1,", "  2", ");", "bar();"}

	res := New("target").Remove(join(input...))

	assert.Equal(t, []string{"foo();", "bar();"}, strings.Split(res.Text, "\n"))
	assert.Equal(t, 1, res.Removed)
	require.Len(t, res.Spans, 1)
	assert.Equal(t, Span{Start: 1, End: 4}, res.Spans[0])
	assert.Equal(t, 4, res.Spans[0].Lines())
}

func TestRemoveIsIdempotent(t *testing.T) {
	inputs := []string{
		join("console.log(1);", "a();", "console.log(", "  (x)", ");"),
		join("console.log('open',", "b();"),
		join("if (ok) {", "  console.log(`state ${s}`);", "}"),
		"",
	}

	for _, input := range inputs {
		once, _ := Remove(input)
		twice, removed := Remove(once)
		assert.Equal(t, once, twice)
		assert.Zero(t, removed)
	}
}

func TestRemoveUnbalancedResumesOnNextLine(t *testing.T) {
	// The first candidate never balances; the scan resumes at the next line
	// and still removes the complete call below it.
	input := join("console.log('a',", "console.log('b');", "end();")

	got, removed := Remove(input)

	assert.Equal(t, join("console.log('a',", "end();"), got)
	assert.Equal(t, 1, removed)
}

func TestRemoveStringParenthesesMiscount(t *testing.T) {
	// Parentheses inside string literals are counted like any other; the
	// call below looks unbalanced and is left in place.
	input := join(`console.log("(");`, "keep();")

	got, removed := Remove(input)

	assert.Equal(t, input, got)
	assert.Zero(t, removed)
}

func TestRemoveOnlyDeletesWholeLines(t *testing.T) {
	input := join("one();", "  console.log(", "    x,", "  );", "two();", "console.log(y)", "three();")

	res := New(DefaultTarget).Remove(input)

	in := strings.Split(input, "\n")
	out := strings.Split(res.Text, "\n")
	removed := map[int]bool{}
	for _, s := range res.Spans {
		for i := s.Start; i <= s.End; i++ {
			removed[i] = true
		}
	}
	var survivors []string
	for i, line := range in {
		if !removed[i] {
			survivors = append(survivors, line)
		}
	}
	assert.Equal(t, survivors, out)
}

func TestNew(t *testing.T) {
	assert.Equal(t, DefaultTarget, New("").Target())
	assert.Equal(t, "console.debug", New(" console.debug ").Target())

	res := New("console.debug").Remove(join("console.debug(x);", "console.log(y);"))
	assert.Equal(t, "console.log(y);", res.Text)
	assert.True(t, res.Changed())
}
