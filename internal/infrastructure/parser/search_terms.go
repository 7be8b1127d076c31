package parser

import (
	"strings"
	"unicode/utf8"

	"CatalogScanner/internal/resolver"
)

const (
	significantWords = 4
	fullNameMaxWords = 5
)

var stopWords = map[string]struct{}{
	"de": {}, "da": {}, "do": {}, "das": {}, "dos": {},
	"e": {}, "ou": {}, "com": {}, "para": {}, "em": {},
	"um": {}, "uma": {},
}

// SearchTerms lists the queries tried for a product, most specific first:
// the leading significant words of the name, the whole name when it is
// short, then the EAN.
func SearchTerms(q resolver.Query) []string {
	words := strings.Fields(q.Name)

	var significant []string
	for _, w := range words {
		if len(significant) == significantWords {
			break
		}
		if utf8.RuneCountInString(w) <= 2 {
			continue
		}
		if _, stop := stopWords[strings.ToLower(w)]; stop {
			continue
		}
		significant = append(significant, w)
	}

	var terms []string
	seen := map[string]struct{}{}
	add := func(term string) {
		term = strings.TrimSpace(term)
		if term == "" {
			return
		}
		key := strings.ToLower(term)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		terms = append(terms, term)
	}

	add(strings.Join(significant, " "))
	if len(words) <= fullNameMaxWords {
		add(strings.Join(words, " "))
	}
	add(q.EAN)
	return terms
}
