// Package processing normalizes search activity before it is indexed.
package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"html"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/DeafMist/parcel-search/internal/models"
)

var (
	whitespace  = regexp.MustCompile(`\s+`)
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	pinPattern  = regexp.MustCompile(`^\d{2}-?\d{2}-?\d{3}-?\d{3}(-?\d{4})?$`)
)

// Street suffixes and directions carry no signal as keywords.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "of": {}, "at": {}, "in": {},
	"st": {}, "ave": {}, "rd": {}, "blvd": {}, "dr": {}, "ln": {}, "ct": {}, "pl": {}, "pkwy": {},
	"street": {}, "avenue": {}, "road": {}, "drive": {},
	"n": {}, "s": {}, "e": {}, "w": {}, "north": {}, "south": {}, "east": {}, "west": {},
	"inc": {}, "llc": {}, "co": {},
}

// NormalizeQuery unescapes HTML entities and squeezes whitespace. Case and
// punctuation are kept so the query still reads as typed.
func NormalizeQuery(q string) string {
	q = html.UnescapeString(q)
	q = whitespace.ReplaceAllString(q, " ")
	return strings.TrimSpace(q)
}

// CleanText lowercases the query and strips punctuation.
func CleanText(input string) string {
	if input == "" {
		return ""
	}
	cleaned := punctuation.ReplaceAllString(NormalizeQuery(input), " ")
	cleaned = whitespace.ReplaceAllString(cleaned, " ")
	return strings.ToLower(strings.TrimSpace(cleaned))
}

// IsPIN reports whether q looks like a 10 or 14 digit parcel number, with or
// without dashes.
func IsPIN(q string) bool {
	return pinPattern.MatchString(strings.TrimSpace(q))
}

// ClassifyQuery guesses which field a query targets: a parcel number, a
// street address (leading house number) or a business name.
func ClassifyQuery(q string) models.SearchType {
	q = strings.TrimSpace(q)
	switch {
	case q == "":
		return ""
	case IsPIN(q):
		return models.SearchPIN
	case unicode.IsDigit([]rune(q)[0]):
		return models.SearchAddress
	default:
		return models.SearchBusiness
	}
}

// ExtractKeywords returns the most frequent non-numeric words of text that
// are not street suffixes or filler words. Ties sort alphabetically.
func ExtractKeywords(text string, limit, minLen int) []string {
	clean := CleanText(text)
	if clean == "" {
		return nil
	}

	freq := make(map[string]int)
	for _, token := range strings.Fields(clean) {
		if len([]rune(token)) < minLen || isNumber(token) {
			continue
		}
		if _, skip := stopwords[token]; skip {
			continue
		}
		freq[token]++
	}
	if len(freq) == 0 {
		return nil
	}

	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] == freq[words[j]] {
			return words[i] < words[j]
		}
		return freq[words[i]] > freq[words[j]]
	})

	if limit > 0 && limit < len(words) {
		words = words[:limit]
	}
	return words
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// BuildEventID hashes the identifying fields of an event so a redelivered
// message maps to the same document.
func BuildEventID(ev models.ActivityEvent) string {
	parts := []string{
		ev.SessionID,
		string(ev.Kind),
		ev.Query,
		ev.PIN,
		ev.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	s := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(s[:])
}
