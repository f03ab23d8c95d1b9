// Package scorer provides the text-similarity score used by the aligner to
// decide whether an original segment and a returned line are the same
// utterance. The score blends a cheap character-overlap ratio with a token
// Jaccard index; it is deliberately fuzzy because the model rewrites
// punctuation, casing and individual words.
package scorer

import (
	"strings"
	"unicode"
)

const (
	charWeight  = 0.7
	tokenWeight = 0.3
)

// Similarity returns a score in [0,1] for a pair of lines. Zero when either
// input is empty.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return charWeight*charSimilarity(a, b) + tokenWeight*tokenJaccard(a, b)
}

// charSimilarity counts how many characters of the shorter string occur in
// the longer string's distinct character set, relative to the longer
// string's length. Returns 1.0 when the longer string is empty.
func charSimilarity(a, b string) float64 {
	shorter, longer := []rune(a), []rune(b)
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(longer) == 0 {
		return 1.0
	}

	longerSet := make(map[rune]struct{}, len(longer))
	for _, r := range longer {
		longerSet[r] = struct{}{}
	}

	present := 0
	for _, r := range shorter {
		if _, ok := longerSet[r]; ok {
			present++
		}
	}
	return float64(present) / float64(len(longer))
}

// tokenJaccard computes the Jaccard index over the lowercased word sets of
// both strings. Zero when the union is empty.
func tokenJaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// tokenSet extracts the distinct lowercased tokens of text. A token is a
// maximal run of letters, digits and apostrophes, so "don't" stays one
// token while punctuation splits.
func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	var sb strings.Builder
	flush := func() {
		if sb.Len() > 0 {
			set[sb.String()] = struct{}{}
			sb.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			sb.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return set
}
