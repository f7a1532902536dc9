package classify

import (
	"regexp"
	"strings"

	"github.com/scrypster/recall/pkg/types"
)

// attributeKeywords are attribute tokens the lookup patterns recognize. A
// matched attribute appearing here boosts classification confidence.
var attributeKeywords = map[string]bool{
	"phone":       true,
	"number":      true,
	"email":       true,
	"address":     true,
	"birthday":    true,
	"anniversary": true,
	"name":        true,
	"age":         true,
	"job":         true,
	"title":       true,
	"company":     true,
	"employer":    true,
	"manager":     true,
	"team":        true,
	"location":    true,
	"city":        true,
	"country":     true,
	"timezone":    true,
	"color":       true,
	"food":        true,
	"drink":       true,
	"allergy":     true,
	"allergies":   true,
	"wifi":        true,
	"password":    true,
	"username":    true,
	"website":     true,
	"size":        true,
	"nickname":    true,
}

// lookupPattern binds a compiled pattern to an extractor that maps its
// submatches onto (entity, attribute).
type lookupPattern struct {
	re      *regexp.Regexp
	extract func(m []string) (entity, attribute string)
}

// lookupPatterns are tried in order; the first match classifies the query
// as a LOOKUP.
var lookupPatterns = []lookupPattern{
	// Possessive: "John's phone number", "what is Sarah's email?"
	{
		re: regexp.MustCompile(`(?i)^(?:what(?:'s| is| are)\s+)?([a-z][a-z .-]*?)'s\s+([a-z][a-z ]*?)\s*\??$`),
		extract: func(m []string) (string, string) {
			return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		},
	},
	// Attribute-for: "the wifi password for the office"
	{
		re: regexp.MustCompile(`(?i)^(?:what(?:'s| is| are)\s+)?(?:the\s+)?([a-z][a-z ]*?)\s+for\s+(?:the\s+)?([a-z][a-z .-]*?)\s*\??$`),
		extract: func(m []string) (string, string) {
			return strings.TrimSpace(m[2]), strings.TrimSpace(m[1])
		},
	},
	// Question-word: "who is Marcus", "where is the office"
	{
		re: regexp.MustCompile(`(?i)^(who|where|when)\s+(?:is|are|was|were)\s+(?:the\s+)?([a-z][a-z .-]*?)\s*\??$`),
		extract: func(m []string) (string, string) {
			attr := "identity"
			switch strings.ToLower(m[1]) {
			case "where":
				attr = "location"
			case "when":
				attr = "time"
			}
			return strings.TrimSpace(m[2]), attr
		},
	},
}

// loosePossessive splits on the first "'s" when the strict patterns failed
// but an attribute keyword is present somewhere in the query.
var loosePossessive = regexp.MustCompile(`(?i)^(.*?)'s\s+(.*?)\s*\??$`)

const (
	lookupBaseConfidence = 0.7
	knownAttributeBoost  = 0.15
	questionMarkBoost    = 0.05
	shortQueryBoost      = 0.05
	shortQueryLimit      = 50
	loosePossessiveConf  = 0.6
	bareKeywordConf      = 0.5
	ambiguousConf        = 0.3
)

// ClassifyQueryType classifies the query shape. Lookup patterns are tried
// in order; the first match extracts entity and attribute with a base
// confidence that known attributes, a trailing question mark, and brevity
// each boost. Queries no pattern explains come back AMBIGUOUS.
func ClassifyQueryType(query string) types.QueryAnalysis {
	trimmed := strings.TrimSpace(query)

	for _, p := range lookupPatterns {
		m := p.re.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		entity, attribute := p.extract(m)
		conf := lookupBaseConfidence
		if containsAttributeKeyword(attribute) {
			conf += knownAttributeBoost
		}
		if strings.HasSuffix(trimmed, "?") {
			conf += questionMarkBoost
		}
		if len(trimmed) < shortQueryLimit {
			conf += shortQueryBoost
		}
		if conf > 1.0 {
			conf = 1.0
		}
		return types.QueryAnalysis{
			Type:       types.QueryLookup,
			Entity:     entity,
			Attribute:  attribute,
			Confidence: conf,
		}
	}

	// No strict pattern matched; an attribute keyword anywhere still makes
	// this a plausible lookup at reduced confidence.
	if kw := findAttributeKeyword(trimmed); kw != "" {
		if m := loosePossessive.FindStringSubmatch(trimmed); m != nil {
			return types.QueryAnalysis{
				Type:       types.QueryLookup,
				Entity:     strings.TrimSpace(m[1]),
				Attribute:  strings.TrimSpace(m[2]),
				Confidence: loosePossessiveConf,
			}
		}
		return types.QueryAnalysis{
			Type:       types.QueryLookup,
			Attribute:  kw,
			Confidence: bareKeywordConf,
		}
	}

	return types.QueryAnalysis{Type: types.QueryAmbiguous, Confidence: ambiguousConf}
}

// containsAttributeKeyword reports whether any token of the attribute phrase
// is a known attribute keyword.
func containsAttributeKeyword(attribute string) bool {
	for _, tok := range strings.Fields(strings.ToLower(attribute)) {
		if attributeKeywords[tok] {
			return true
		}
	}
	return false
}

// findAttributeKeyword returns the first known attribute keyword appearing
// anywhere in the query, or "".
func findAttributeKeyword(query string) string {
	for _, tok := range strings.Fields(strings.ToLower(strings.Map(dropPunct, query))) {
		if attributeKeywords[tok] {
			return tok
		}
	}
	return ""
}

func dropPunct(r rune) rune {
	switch r {
	case '?', '!', '.', ',', ';', ':':
		return ' '
	}
	return r
}
