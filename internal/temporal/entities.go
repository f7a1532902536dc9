package temporal

import (
	"strings"

	"github.com/scrypster/recall/pkg/types"
)

// stopwords are dropped during residual entity extraction. Short tokens
// (length <= 2) are dropped regardless.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "that": {},
	"this": {}, "what": {}, "when": {}, "where": {}, "who": {}, "whom": {},
	"which": {}, "how": {}, "why": {}, "did": {}, "does": {}, "was": {},
	"were": {}, "are": {}, "have": {}, "has": {}, "had": {}, "about": {},
	"tell": {}, "show": {}, "find": {}, "get": {}, "give": {}, "know": {},
	"remember": {}, "last": {}, "ago": {}, "recently": {}, "yesterday": {},
	"today": {}, "week": {}, "month": {}, "year": {}, "day": {}, "days": {},
	"weeks": {}, "months": {}, "years": {}, "while": {}, "back": {},
	"few": {}, "all": {}, "any": {}, "you": {}, "your": {}, "our": {},
}

// ExtractEntities returns the residual entity tokens of a query after the
// matched temporal expression is stripped. Tokens are lowercased, stripped of
// punctuation, filtered against the stopword list and a minimum length of 3,
// and deduplicated preserving first occurrence. The result is finite and
// freely re-iterable.
func ExtractEntities(query string, constraint *types.TemporalConstraint) []string {
	text := query
	if constraint != nil && constraint.OriginalExpression != "" {
		text = removeFold(text, constraint.OriginalExpression)
	}
	text = strings.ToLower(text)

	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})

	seen := make(map[string]struct{}, len(fields))
	entities := make([]string, 0, len(fields))
	for _, tok := range fields {
		if len(tok) <= 2 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		entities = append(entities, tok)
	}
	return entities
}

// removeFold removes the first case-insensitive occurrence of sub from s.
func removeFold(s, sub string) string {
	idx := strings.Index(strings.ToLower(s), strings.ToLower(sub))
	if idx < 0 {
		return s
	}
	return s[:idx] + s[idx+len(sub):]
}
