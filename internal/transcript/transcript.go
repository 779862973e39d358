// Package transcript corrects misheard proper nouns in speech transcripts.
//
// Raw speech-to-text output is rarely perfect for domain-specific vocabulary:
// product names, people, and technical terms get transcribed as whatever
// common words sound closest. A [Corrector] holds the configured vocabulary
// and rewrites transcript text so that phonetically matching spans are
// replaced by the canonical spelling.
//
// Each [Correction] records the substitution and its confidence, so callers
// can display or audit the changes.
package transcript

import (
	"strings"

	"github.com/mallard-ai/mallard/internal/transcript/phonetic"
)

// Matcher resolves a word (or space-separated phrase) to a known vocabulary
// entry based on pronunciation similarity. It must be fast enough for
// real-time use: no network calls.
//
// When matched is false, corrected must equal word unchanged and confidence
// must be 0. Implementations must be safe for concurrent use.
type Matcher interface {
	Match(word string, vocabulary []string) (corrected string, confidence float64, matched bool)
}

// Correction captures a single substitution made by a Corrector.
type Correction struct {
	// Original is the span as produced by the transcription.
	Original string

	// Corrected is the vocabulary entry that replaced it.
	Corrected string

	// Confidence is the matcher's similarity score (0.0 to 1.0).
	Confidence float64
}

// Corrector rewrites transcript text against a fixed vocabulary. It is
// read-only after construction and safe for concurrent use.
type Corrector struct {
	matcher    Matcher
	vocabulary []string
	maxWords   int
}

// NewCorrector builds a Corrector over the given vocabulary. A nil matcher
// or empty vocabulary yields a Corrector that passes text through unchanged.
func NewCorrector(matcher Matcher, vocabulary []string) *Corrector {
	return &Corrector{
		matcher:    matcher,
		vocabulary: vocabulary,
		maxWords:   maxWordCount(vocabulary),
	}
}

// NewPhonetic builds a Corrector over the built-in phonetic matcher. Zero
// thresholds use the matcher defaults. This is the constructor used wherever
// a corrector is assembled from configuration.
func NewPhonetic(vocabulary []string, phoneticThreshold, fuzzyThreshold float64) *Corrector {
	var opts []phonetic.Option
	if phoneticThreshold > 0 {
		opts = append(opts, phonetic.WithPhoneticThreshold(phoneticThreshold))
	}
	if fuzzyThreshold > 0 {
		opts = append(opts, phonetic.WithFuzzyThreshold(fuzzyThreshold))
	}
	return NewCorrector(phonetic.New(opts...), vocabulary)
}

// Correct rewrites text, replacing phonetically matching spans with their
// canonical vocabulary spelling. Longer spans win over shorter ones, so a
// multi-word vocabulary entry takes precedence over a partial single-word
// match at the same position.
func (c *Corrector) Correct(text string) (string, []Correction) {
	if c.matcher == nil || len(c.vocabulary) == 0 {
		return text, nil
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	var output []string
	var corrections []Correction

	i := 0
	for i < len(tokens) {
		maxN := c.maxWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			entry, conf, ok := c.matcher.Match(window, c.vocabulary)
			if !ok {
				continue
			}
			output = append(output, strings.Fields(entry)...)
			corrections = append(corrections, Correction{
				Original:   window,
				Corrected:  entry,
				Confidence: conf,
			})
			i += n
			matched = true
			break
		}
		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	return strings.Join(output, " "), corrections
}

// Func adapts the Corrector to the plain text-rewriting hook shape used by
// the realtime controller.
func (c *Corrector) Func() func(string) string {
	return func(text string) string {
		corrected, _ := c.Correct(text)
		return corrected
	}
}

func maxWordCount(vocabulary []string) int {
	max := 1
	for _, v := range vocabulary {
		if n := len(strings.Fields(v)); n > max {
			max = n
		}
	}
	return max
}
