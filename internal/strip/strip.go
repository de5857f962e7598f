// Package strip removes call statements such as console.log(...) from script
// source text.
//
// Detection is line oriented. A statement starts on a line whose first
// non-whitespace token is "<target>(" and ends on the line where the running
// parenthesis balance returns to zero. Parentheses are counted character by
// character, so a parenthesis inside a string literal or comment counts the
// same as a syntactic one. This is a heuristic, not a parser.
package strip

import "strings"

// DefaultTarget is the call removed when no target is configured.
const DefaultTarget = "console.log"

// Span is a removed statement, as 0-based inclusive line indexes into the
// input text.
type Span struct {
	Start int
	End   int
}

// Lines returns the number of physical lines covered by the span.
func (s Span) Lines() int {
	return s.End - s.Start + 1
}

// Result is the outcome of one Remove call.
type Result struct {
	Text    string
	Removed int
	Spans   []Span
}

// Changed reports whether at least one statement was removed.
func (r Result) Changed() bool {
	return r.Removed > 0
}

// Remover strips complete calls to a single target function.
type Remover struct {
	target string
	prefix string
}

// New creates a Remover for the given call name, e.g. "console.debug".
func New(target string) *Remover {
	target = strings.TrimSpace(target)
	if target == "" {
		target = DefaultTarget
	}
	return &Remover{
		target: target,
		prefix: target + "(",
	}
}

// Target returns the call name this remover looks for.
func (r *Remover) Target() string {
	return r.target
}

// Remove returns text with every complete target statement deleted.
func Remove(text string) (string, int) {
	res := New(DefaultTarget).Remove(text)
	return res.Text, res.Removed
}

// Remove deletes every balanced target statement from text. Lines outside
// the removed spans are kept byte for byte and in their original order.
func (r *Remover) Remove(text string) Result {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	var spans []Span

	i := 0
	for i < len(lines) {
		if !r.isCandidate(lines[i]) {
			kept = append(kept, lines[i])
			i++
			continue
		}

		end, ok := statementEnd(lines, i)
		if !ok {
			// unbalanced to end of input: keep the line and rescan from the next one
			kept = append(kept, lines[i])
			i++
			continue
		}

		spans = append(spans, Span{Start: i, End: end})
		i = end + 1
	}

	if len(spans) == 0 {
		return Result{Text: text}
	}
	return Result{
		Text:    strings.Join(kept, "\n"),
		Removed: len(spans),
		Spans:   spans,
	}
}

func (r *Remover) isCandidate(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), r.prefix)
}

// statementEnd walks forward from start and returns the index of the line on
// which the parenthesis balance first drops back to zero.
func statementEnd(lines []string, start int) (int, bool) {
	balance := 0
	for j := start; j < len(lines); j++ {
		for _, c := range lines[j] {
			switch c {
			case '(':
				balance++
			case ')':
				balance--
				if balance == 0 {
					return j, true
				}
			}
		}
	}
	return 0, false
}
