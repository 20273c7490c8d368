// Package claims extracts individually-verifiable factual claims out of a
// model response: splitting into sentences, filtering questions and
// meta-commentary, categorizing each surviving sentence, estimating how
// specific (and therefore how falsifiable) it is, and cross-linking any
// inline evidence it cites. Extracted claims use rlmtypes.Claim directly
// so they can be handed straight to the epistemic verifier.
package claims

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

// Options bounds which sentences survive extraction.
type Options struct {
	MinLength int
	MaxLength int
}

// DefaultOptions mirrors the teacher's own conservative defaults for
// filtering short fragments and runaway paragraphs.
func DefaultOptions() Options {
	return Options{MinLength: 8, MaxLength: 400}
}

var abbreviations = []string{"e.g.", "i.e.", "etc.", "vs.", "mr.", "mrs.", "dr.", "fig.", "no."}

var metaPrefixes = []string{
	"let me", "i'll", "i will", "here is", "here's", "let's", "now i", "first, i",
	"to summarize", "in summary", "as requested",
}

var sentenceSplit = regexp.MustCompile(`([.!?])\s+`)

// splitSentences breaks text on terminal punctuation followed by
// whitespace, re-joining splits that landed immediately after a known
// abbreviation (so "e.g. the foo." isn't split mid-abbreviation).
func splitSentences(text string) []string {
	raw := sentenceSplit.Split(text, -1)
	seps := sentenceSplit.FindAllString(text, -1)

	var out []string
	var buf strings.Builder
	for i, part := range raw {
		buf.WriteString(part)
		if i < len(seps) {
			buf.WriteString(seps[i])
		}
		if endsWithAbbreviation(buf.String()) {
			continue
		}
		sentence := strings.TrimSpace(buf.String())
		if sentence != "" {
			out = append(out, sentence)
		}
		buf.Reset()
	}
	if rest := strings.TrimSpace(buf.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}

func endsWithAbbreviation(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, abbr := range abbreviations {
		if strings.HasSuffix(lower, abbr) {
			return true
		}
	}
	return false
}

func isQuestion(s string) bool {
	return strings.HasSuffix(strings.TrimSpace(s), "?")
}

func isMetaCommentary(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, prefix := range metaPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

var (
	codeTokenPattern     = regexp.MustCompile("`[^`]+`|\\b[a-z][a-zA-Z0-9]*\\(\\)|\\b[a-z]+(?:_[a-z]+)+\\b|\\b[a-z]+[A-Z][a-zA-Z]*\\b")
	digitPattern         = regexp.MustCompile(`\d`)
	dependencyPattern    = regexp.MustCompile(`(?i)\b(depends?\s+on|requires?|because|due\s+to|relies?\s+on|caused\s+by)\b`)
	temporalPattern      = regexp.MustCompile(`(?i)\b(before|after|then|recently|previously|once|until|since|during)\b`)
	userIntentPattern    = regexp.MustCompile(`(?i)\byou(r)?\b|\buser\b`)
	metaReasoningPattern = regexp.MustCompile(`(?i)\b(i\s+think|i\s+believe|my\s+reasoning|in\s+my\s+analysis|it\s+seems\s+to\s+me)\b`)
)

// categorize picks a single category per sentence using a fixed lexical
// priority (code > numeric > dependency language > temporal > user-intent
// > meta-reasoning > factual fallback). The ordering resolves category
// ambiguity for sentences that could plausibly match more than one bucket.
func categorize(s string) rlmtypes.ClaimCategory {
	switch {
	case codeTokenPattern.MatchString(s):
		return rlmtypes.CategoryCodeBehavior
	case digitPattern.MatchString(s):
		return rlmtypes.CategoryNumerical
	case dependencyPattern.MatchString(s):
		return rlmtypes.CategoryRelational
	case temporalPattern.MatchString(s):
		return rlmtypes.CategoryTemporal
	case userIntentPattern.MatchString(s):
		return rlmtypes.CategoryUserIntent
	case metaReasoningPattern.MatchString(s):
		return rlmtypes.CategoryMetaReasoning
	default:
		return rlmtypes.CategoryFactual
	}
}

var (
	universalPattern = regexp.MustCompile(`(?i)\b(all|every|always|never|none|best|worst|only|most)\b`)
	hedgePattern     = regexp.MustCompile(`(?i)\b(maybe|perhaps|might|could|possibly|probably|i\s+think|likely)\b`)
	pathPattern      = regexp.MustCompile(`\b[\w./-]+\.[a-zA-Z]{1,5}\b|\b[\w-]+/[\w./-]+\b`)
	codeSpanPattern  = regexp.MustCompile("`[^`]+`")
	citationPattern  = regexp.MustCompile(`\[[^\]]+\]|\([A-Z][a-zA-Z]+,?\s+\d{4}\)`)
)

// specificity estimates, in [0.1, 0.95], how falsifiable a claim is from
// proper-noun density, numeric content, filesystem-like tokens, and
// universal/comparative markers, halved when the claim is hedged.
func specificity(s string) float64 {
	score := 0.2

	properNouns := countProperNouns(s)
	score += 0.1 * float64(min(properNouns, 3))

	numbers := len(digitPattern.FindAllString(s, -1))
	if numbers > 0 {
		score += 0.15
	}

	if pathPattern.MatchString(s) {
		score += 0.15
	}

	if universalPattern.MatchString(s) {
		score += 0.2
	}

	if score > 0.95 {
		score = 0.95
	}
	if hedgePattern.MatchString(s) {
		score *= 0.5
	}
	if score < 0.1 {
		score = 0.1
	}
	if score > 0.95 {
		score = 0.95
	}
	return score
}

func countProperNouns(s string) int {
	words := strings.Fields(s)
	count := 0
	for i, w := range words {
		w = strings.Trim(w, ".,;:!?\"'")
		if w == "" {
			continue
		}
		if i == 0 {
			continue // sentence-initial capitalization doesn't signal a proper noun
		}
		r := []rune(w)
		if unicode.IsUpper(r[0]) {
			count++
		}
	}
	return count
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// evidenceRefs cross-links inline backtick code, file paths, and citation
// markers found within the claim's own text span. Strength is fixed per
// kind: an exact code or citation match is stronger evidence than a bare
// path-like token, which can false-positive on ordinary fractions.
func evidenceRefs(s string) []rlmtypes.EvidenceRef {
	var refs []rlmtypes.EvidenceRef
	for range codeSpanPattern.FindAllString(s, -1) {
		refs = append(refs, rlmtypes.EvidenceRef{ID: uuid.NewString(), Type: rlmtypes.EvidenceCodeRef, Strength: 0.8})
	}
	for _, m := range pathPattern.FindAllString(s, -1) {
		if codeSpanPattern.MatchString(m) {
			continue
		}
		refs = append(refs, rlmtypes.EvidenceRef{ID: uuid.NewString(), Type: rlmtypes.EvidenceCodeRef, Strength: 0.5})
	}
	for range citationPattern.FindAllString(s, -1) {
		refs = append(refs, rlmtypes.EvidenceRef{ID: uuid.NewString(), Type: rlmtypes.EvidenceCitation, Strength: 0.7})
	}
	return refs
}

// Extractor splits, filters, categorizes, and scores claims out of a
// response's free text.
type Extractor struct {
	opts Options
}

// New constructs an Extractor with the given length bounds.
func New(opts Options) *Extractor {
	if opts.MinLength <= 0 {
		opts.MinLength = DefaultOptions().MinLength
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultOptions().MaxLength
	}
	return &Extractor{opts: opts}
}

// Extract returns every surviving, categorized, scored claim in text as
// rlmtypes.Claim, ready to hand to the epistemic verifier.
func (e *Extractor) Extract(text string) []rlmtypes.Claim {
	var out []rlmtypes.Claim
	offset := 0
	for _, sentence := range splitSentences(text) {
		start := strings.Index(text[offset:], sentence)
		if start >= 0 {
			start += offset
			offset = start + len(sentence)
		}

		if len(sentence) < e.opts.MinLength || len(sentence) > e.opts.MaxLength {
			continue
		}
		if isQuestion(sentence) {
			continue
		}
		if isMetaCommentary(sentence) {
			continue
		}

		var span *[2]int
		if start >= 0 {
			span = &[2]int{start, start + len(sentence)}
		}

		out = append(out, rlmtypes.Claim{
			ID:           uuid.NewString(),
			Text:         sentence,
			SourceSpan:   span,
			Category:     categorize(sentence),
			Specificity:  specificity(sentence),
			EvidenceRefs: evidenceRefs(sentence),
			ExtractedAt:  time.Now().UTC(),
		})
	}
	return out
}
