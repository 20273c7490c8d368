// Package scrub implements the evidence scrubber: it produces a redacted
// variant of a context string with code, citations, paths, long quotes,
// and significant numbers masked out, for use as the "prior" context the
// epistemic verifier samples p0 against.
package scrub

import (
	"regexp"
	"strconv"
)

// Category is one class of evidence the scrubber can redact.
type Category string

const (
	CategoryCodeBlock  Category = "code_block"
	CategoryInlineCode Category = "inline_code"
	CategoryToolOutput Category = "tool_output"
	CategoryCitation   Category = "citation"
	CategoryPathOrURL  Category = "path_or_url"
	CategoryLongQuote  Category = "long_quote"
	CategoryNumber     Category = "number"
)

// defaultOrder replaces categories largest-span-first so a fenced code
// block is masked before its own inline-code-looking interior would be,
// avoiding double-masking.
var defaultOrder = []Category{
	CategoryToolOutput,
	CategoryCodeBlock,
	CategoryLongQuote,
	CategoryInlineCode,
	CategoryCitation,
	CategoryPathOrURL,
	CategoryNumber,
}

var patterns = map[Category]*regexp.Regexp{
	CategoryToolOutput: regexp.MustCompile("(?s)```(?:tool[_-]?output|output|stdout)\\n.*?```"),
	CategoryCodeBlock:  regexp.MustCompile("(?s)```.*?```"),
	CategoryLongQuote:  regexp.MustCompile(`"[^"]{40,}"`),
	CategoryInlineCode:  regexp.MustCompile("`[^`\\n]+`"),
	CategoryCitation:   regexp.MustCompile(`\[[^\]]+\]|\([A-Z][a-zA-Z]+,?\s+\d{4}\)`),
	CategoryPathOrURL:  regexp.MustCompile(`\bhttps?://\S+\b|\b[\w.-]+/[\w./-]+\b`),
	CategoryNumber:     regexp.MustCompile(`-?\d+(\.\d+)?%?`),
}

// Options configures a scrubbing pass.
type Options struct {
	// Categories restricts scrubbing to this set; nil means all categories.
	Categories []Category
	// Aggressive uses the bare "[REDACTED]" placeholder instead of the
	// more descriptive "[EVIDENCE REDACTED]".
	Aggressive bool
	// MinSignificantNumber is the smallest absolute numeric value treated
	// as "significant" and therefore redacted (small indices like 0/1
	// rarely carry specificity and are left alone).
	MinSignificantNumber float64
}

// DefaultOptions redacts every category at a conservative numeric floor.
func DefaultOptions() Options {
	return Options{MinSignificantNumber: 2}
}

// Span records where a redaction occurred in the scrubbed output, so a
// caller holding the original context can restore it if needed.
type Span struct {
	Category   Category
	Original   string
	StartInOut int
	EndInOut   int
}

// Result is a scrubbed context plus the spans that were redacted.
type Result struct {
	Scrubbed string
	Spans    []Span
}

func placeholder(aggressive bool) string {
	if aggressive {
		return "[REDACTED]"
	}
	return "[EVIDENCE REDACTED]"
}

func enabled(opts Options, c Category) bool {
	if opts.Categories == nil {
		return true
	}
	for _, cat := range opts.Categories {
		if cat == c {
			return true
		}
	}
	return false
}

// Scrub redacts context per opts, replacing matched spans largest-first
// (tool output and fenced blocks before inline code, citations and
// paths, then bare numbers) so no span is masked twice.
func Scrub(context string, opts Options) Result {
	placeholderText := placeholder(opts.Aggressive)
	out := context
	var spans []Span

	for _, cat := range defaultOrder {
		if !enabled(opts, cat) {
			continue
		}
		pattern := patterns[cat]
		out = replaceAllFunc(out, pattern, func(match string) (string, bool) {
			if match == placeholderText {
				return match, false
			}
			if cat == CategoryNumber && !isSignificantNumber(match, opts.MinSignificantNumber) {
				return match, false
			}
			return placeholderText, true
		}, cat, &spans)
	}

	return Result{Scrubbed: out, Spans: spans}
}

func isSignificantNumber(match string, floor float64) bool {
	trimmed := match
	if len(trimmed) > 0 && trimmed[len(trimmed)-1] == '%' {
		trimmed = trimmed[:len(trimmed)-1]
	}
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return false
	}
	if v < 0 {
		v = -v
	}
	return v >= floor
}

// replaceAllFunc replaces every match of pattern in s, recording a Span
// for each replacement actually made (decide returns false to skip a
// candidate match, e.g. an insignificant number).
func replaceAllFunc(s string, pattern *regexp.Regexp, decide func(string) (string, bool), cat Category, spans *[]Span) string {
	matches := pattern.FindAllStringIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	prior := len(*spans)
	var shifts [][2]int // end offset in s and length change of each replacement
	var b []byte
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		original := s[start:end]
		replacement, redacted := decide(original)
		b = append(b, s[last:start]...)
		if redacted {
			spanStart := len(b)
			b = append(b, replacement...)
			*spans = append(*spans, Span{Category: cat, Original: original, StartInOut: spanStart, EndInOut: len(b)})
			shifts = append(shifts, [2]int{end, len(replacement) - len(original)})
		} else {
			b = append(b, original...)
		}
		last = end
	}
	b = append(b, s[last:]...)
	// Spans from earlier passes hold offsets into s; move them past this
	// pass's replacements so they stay valid in the returned text.
	for k := 0; k < prior; k++ {
		shift := 0
		for _, sh := range shifts {
			if sh[0] <= (*spans)[k].StartInOut {
				shift += sh[1]
			}
		}
		(*spans)[k].StartInOut += shift
		(*spans)[k].EndInOut += shift
	}
	return string(b)
}

// PriorPrompt synthesizes the p0 elicitation prompt: given the scrubbed
// context, ask the model to estimate the probability the claim is true.
func PriorPrompt(scrubbedContext, claim string) string {
	return "Given only the following context (some evidence has been redacted):\n\n" +
		scrubbedContext +
		"\n\nEstimate the probability (0.0 to 1.0) that the following claim is true:\n" +
		claim +
		"\n\nRespond with a single JSON object: {\"probability\": <number>}."
}
