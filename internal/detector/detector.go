// Package detector identifies the language a transcript is written in so
// the correction prompt can pin it down and the model does not drift into
// translating. Detection failure is not an error; the prompt simply stays
// language-neutral.
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"

	"subrefine/internal/transcript"
)

// sampleSegments caps how many leading segments feed the detector; a few
// dozen lines are plenty and the detector cost grows with input size.
const sampleSegments = 40

// Detector wraps a lingua language detector. Building one is expensive;
// reuse the instance.
type Detector struct {
	detector lingua.LanguageDetector
}

// New creates a Detector covering all languages lingua knows.
func New() *Detector {
	detector := lingua.NewLanguageDetectorBuilder().
		FromAllLanguages().
		Build()

	return &Detector{detector: detector}
}

// LanguageName returns the English name of the detected language of text,
// e.g. "English" or "Ukrainian". ok is false when the text is empty or the
// detector is unsure.
func (d *Detector) LanguageName(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return "", false
	}
	return titleWords(lang.String()), true
}

// titleWords normalizes a language identifier such as "ENGLISH" or
// "Mandarin_Chinese" into "English" / "Mandarin Chinese".
func titleWords(name string) string {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == '_' || r == ' '
	})
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// SampleText joins the leading segment texts into a detection sample.
func SampleText(segments []transcript.Segment) string {
	n := len(segments)
	if n > sampleSegments {
		n = sampleSegments
	}
	texts := make([]string, 0, n)
	for _, s := range segments[:n] {
		texts = append(texts, s.Text)
	}
	return strings.Join(texts, " ")
}
