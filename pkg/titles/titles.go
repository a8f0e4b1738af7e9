// Package titles normalizes and fuzzy-matches media titles.
//
// Webhook payloads and media-server listings frequently disagree on
// punctuation, articles, and accents ("Léon: The Professional" vs
// "Leon - The Professional"), so every title comparison in the codebase
// goes through Clean before matching.
package titles

import (
	"strings"
	"unicode"

	"github.com/hbollon/go-edlib"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Clean normalizes a title for matching purposes.
// Lowercases, removes accents and punctuation, strips leading articles
// from each colon-separated part, and collapses whitespace.
func Clean(title string) string {
	s := strings.ToLower(title)
	s = removeAccents(s)

	s = strings.ReplaceAll(s, "&", " and ")
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "'", "")
	s = strings.ReplaceAll(s, ".", " ")

	// Handle subtitles separately so "Léon: The Professional" matches
	// "Leon The Professional".
	parts := strings.Split(s, ":")
	for i, part := range parts {
		parts[i] = stripLeadingArticle(strings.TrimSpace(part))
	}
	s = strings.Join(parts, " ")

	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

func removeAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

func stripLeadingArticle(s string) string {
	s = strings.TrimSpace(s)
	for _, art := range []string{"the ", "a ", "an "} {
		if strings.HasPrefix(s, art) {
			return strings.TrimPrefix(s, art)
		}
	}
	return s
}

// Similarity returns the Jaro-Winkler similarity of two titles after
// normalization. Jaro-Winkler favors prefix matches, which suits media
// titles where suffixes carry edition noise.
func Similarity(a, b string) float64 {
	return float64(edlib.JaroWinklerSimilarity(Clean(a), Clean(b)))
}

// MatchThreshold is the minimum Similarity score accepted when resolving
// a title against catalog search results.
const MatchThreshold = 0.85

// Match reports whether two titles refer to the same work with enough
// confidence for automated reconciliation.
func Match(a, b string) bool {
	return Similarity(a, b) >= MatchThreshold
}

// BestMatch returns the index of the candidate most similar to title,
// or -1 if no candidate clears MatchThreshold.
func BestMatch(title string, candidates []string) int {
	best, bestScore := -1, 0.0
	for i, c := range candidates {
		if score := Similarity(title, c); score > bestScore {
			best, bestScore = i, score
		}
	}
	if bestScore < MatchThreshold {
		return -1
	}
	return best
}
