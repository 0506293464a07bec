// Package intent implements the local intent shortcut resolver: a pure text
// classifier that can satisfy a narrow class of intents (timers) straight
// from the transcript, without waiting for the remote backend's NLU.
//
// The resolver pairs a duration expression with a timer keyword. Keyword
// matching tolerates the misspellings a speech recognizer produces by using
// edit-distance comparison rather than exact equality. Everything in this
// package is free of I/O so it can be exhaustively unit-tested against
// literal transcripts.
package intent

import (
	"encoding/json"
	"strings"

	"github.com/antzucaro/matchr"
)

// Candidate is a locally resolved timer request.
type Candidate struct {
	// Seconds is the parsed countdown duration.
	Seconds uint32

	// Valid reports whether both a timer keyword and a duration were
	// confidently detected. An invalid candidate must not start a timer.
	Valid bool
}

// defaultKeywords are the timer trigger words for the device's shipped
// locale, plus the English forms the recognizer sometimes falls back to.
var defaultKeywords = []string{"timer", "tajmer", "odbrojavanje", "alarm"}

// defaultMaxDistance is the edit-distance tolerance for keyword matching.
// One substitution/transposition covers the common STT confusions
// ("tajmer" → "tamjer") without matching unrelated words.
const defaultMaxDistance = 1

// Resolver detects timer shortcuts in transcript text.
// It is stateless and safe for concurrent use.
type Resolver struct {
	keywords    []string
	maxDistance int
}

// Option configures a Resolver during construction.
type Option func(*Resolver)

// WithKeywords replaces the default timer keyword set. Matching is
// case-insensitive.
func WithKeywords(words []string) Option {
	return func(r *Resolver) {
		if len(words) == 0 {
			return
		}
		kw := make([]string, len(words))
		for i, w := range words {
			kw[i] = strings.ToLower(w)
		}
		r.keywords = kw
	}
}

// WithMaxDistance sets the edit-distance tolerance for keyword matching.
// Zero means exact matches only.
func WithMaxDistance(d int) Option {
	return func(r *Resolver) {
		if d >= 0 {
			r.maxDistance = d
		}
	}
}

// NewResolver creates a Resolver with the default keyword set and
// tolerance, then applies opts.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		keywords:    defaultKeywords,
		maxDistance: defaultMaxDistance,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve scans text for a timer keyword paired with a duration expression.
// A confident match yields a valid Candidate; anything else yields the zero
// Candidate. Resolve never errors — unparseable text is simply not a match.
func (r *Resolver) Resolve(text string) Candidate {
	if !r.HasKeyword(text) {
		return Candidate{}
	}
	secs, ok := ParseDuration(text)
	if !ok || secs == 0 {
		return Candidate{}
	}
	return Candidate{Seconds: secs, Valid: true}
}

// HasKeyword reports whether text contains a timer keyword within the
// configured edit-distance tolerance.
func (r *Resolver) HasKeyword(text string) bool {
	for _, tok := range tokenize(strings.ToLower(text)) {
		for _, kw := range r.keywords {
			if tok == kw {
				return true
			}
			if r.maxDistance > 0 && matchr.DamerauLevenshtein(tok, kw) <= r.maxDistance {
				return true
			}
		}
	}
	return false
}

// DurationFromSlots extracts a structured timer duration from a backend
// intent-end slots payload. The backend encodes the duration either as an
// ISO-8601 string under "duration" or as a numeric "seconds" field; both
// are accepted. Returns (0, false) for absent, empty, or malformed slots.
func DurationFromSlots(slotsJSON []byte) (uint32, bool) {
	if len(slotsJSON) == 0 {
		return 0, false
	}
	var slots struct {
		Duration string  `json:"duration"`
		Seconds  float64 `json:"seconds"`
	}
	if err := json.Unmarshal(slotsJSON, &slots); err != nil {
		return 0, false
	}
	if slots.Seconds > 0 {
		return uint32(slots.Seconds), true
	}
	if slots.Duration != "" {
		return ParseDuration(slots.Duration)
	}
	return 0, false
}
