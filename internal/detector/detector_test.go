package detector_test

import (
	"testing"

	"subrefine/internal/detector"
	"subrefine/internal/transcript"
)

func TestLanguageName_English(t *testing.T) {
	det := detector.New()
	name, ok := det.LanguageName("this is a perfectly ordinary english sentence about nothing in particular")
	if !ok {
		t.Fatal("expected detection to succeed")
	}
	if name != "English" {
		t.Errorf("expected English, got %q", name)
	}
}

func TestLanguageName_Empty(t *testing.T) {
	det := detector.New()
	if _, ok := det.LanguageName("   "); ok {
		t.Error("expected detection to fail on blank input")
	}
}

func TestSampleText(t *testing.T) {
	segments := []transcript.Segment{
		{Text: "first line"},
		{Text: "second line"},
	}
	got := detector.SampleText(segments)
	if got != "first line second line" {
		t.Errorf("unexpected sample %q", got)
	}
}

func TestSampleText_Empty(t *testing.T) {
	if got := detector.SampleText(nil); got != "" {
		t.Errorf("expected empty sample, got %q", got)
	}
}
