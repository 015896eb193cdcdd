package services

import (
	"strings"
	"unicode"
)

// snippetWindow bounds the excerpt length in tokens.
const snippetWindow = 40

// Highlight markers wrapped around matched tokens. Markdown emphasis is
// caller-agnostic: UIs can render it or rewrite it trivially.
const (
	HighlightOpen  = "**"
	HighlightClose = "**"
)

const ellipsis = "…"

// buildSnippet returns a bounded excerpt of content centered on the first
// query-term match, with every matched token wrapped in highlight markers.
// Mongo's $text gives no match offsets, so matching is recomputed here
// with case-insensitive prefix comparison, which lines up with stemming
// for the common suffix forms.
func buildSnippet(content, query string, window int) string {
	if window <= 0 {
		window = snippetWindow
	}

	tokens := strings.Fields(content)
	if len(tokens) == 0 {
		return ""
	}

	terms := queryTerms(query)
	first := -1
	for i, tok := range tokens {
		if matchesAny(tok, terms) {
			first = i
			break
		}
	}

	start := 0
	if first >= 0 {
		start = first - window/2
		if start < 0 {
			start = 0
		}
	}
	end := start + window
	if end > len(tokens) {
		end = len(tokens)
		if start > end-window && end-window >= 0 {
			start = end - window
		}
		if start < 0 {
			start = 0
		}
	}

	excerpt := make([]string, 0, end-start)
	for _, tok := range tokens[start:end] {
		if matchesAny(tok, terms) {
			tok = HighlightOpen + tok + HighlightClose
		}
		excerpt = append(excerpt, tok)
	}

	snippet := strings.Join(excerpt, " ")
	if start > 0 {
		snippet = ellipsis + " " + snippet
	}
	if end < len(tokens) {
		snippet = snippet + " " + ellipsis
	}
	return snippet
}

// queryTerms normalizes a raw query into lowercase alphanumeric terms.
func queryTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	terms := fields[:0]
	for _, f := range fields {
		if f != "" {
			terms = append(terms, f)
		}
	}
	return terms
}

// matchesAny reports whether a content token matches one of the query
// terms, ignoring case and surrounding punctuation.
func matchesAny(token string, terms []string) bool {
	normalized := strings.ToLower(strings.TrimFunc(token, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}))
	if normalized == "" {
		return false
	}
	for _, term := range terms {
		if strings.HasPrefix(normalized, term) {
			return true
		}
	}
	return false
}
