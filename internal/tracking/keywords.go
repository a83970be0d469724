package tracking

import (
	"strings"
	"unicode"
)

// maxKeywords bounds how many routing keywords one tool call can contribute.
const maxKeywords = 8

// stopwords are tokens too generic to carry routing signal.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "into": {},
	"this": {}, "that": {}, "then": {}, "when": {}, "where": {}, "what": {},
	"are": {}, "was": {}, "were": {}, "will": {}, "can": {}, "should": {},
	"all": {}, "any": {}, "not": {}, "but": {}, "has": {}, "have": {},
	"use": {}, "using": {}, "run": {}, "file": {}, "files": {}, "new": {},
}

// ExtractKeywords tokenizes free text into lowercase routing keywords:
// alphanumeric runs of 3+ characters, stopwords removed, first occurrence
// order preserved, capped at maxKeywords.
func ExtractKeywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	var keywords []string
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		if _, ok := stopwords[f]; ok {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		keywords = append(keywords, f)
		if len(keywords) >= maxKeywords {
			break
		}
	}
	return keywords
}
