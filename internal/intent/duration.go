package intent

import (
	"strconv"
	"strings"
	"unicode"
)

// Unit multipliers in seconds.
const (
	secondsPerMinute = 60
	secondsPerHour   = 3600
)

// numberWords maps localized number words to their values. The table covers
// the Croatian forms the device's speech recognizer produces, including
// gender variants (jedan/jedna, dva/dvije) and the tens used in spoken
// timer requests.
var numberWords = map[string]uint32{
	"nula":       0,
	"jedan":      1,
	"jedna":      1,
	"jednu":      1,
	"dva":        2,
	"dvije":      2,
	"tri":        3,
	"četiri":     4,
	"cetiri":     4,
	"pet":        5,
	"šest":       6,
	"sest":       6,
	"sedam":      7,
	"osam":       8,
	"devet":      9,
	"deset":      10,
	"jedanaest":  11,
	"dvanaest":   12,
	"trinaest":   13,
	"četrnaest":  14,
	"cetrnaest":  14,
	"petnaest":   15,
	"šesnaest":   16,
	"sesnaest":   16,
	"sedamnaest": 17,
	"osamnaest":  18,
	"devetnaest": 19,
	"dvadeset":   20,
	"trideset":   30,
	"četrdeset":  40,
	"cetrdeset":  40,
	"pedeset":    50,
	"šezdeset":   60,
	"sezdeset":   60,
	"sedamdeset": 70,
	"osamdeset":  80,
	"devedeset":  90,
	"sto":        100,
}

// tens marks the number words that may combine with a following units word
// ("dvadeset pet" → 25).
var tens = map[string]bool{
	"dvadeset": true, "trideset": true,
	"četrdeset": true, "cetrdeset": true,
	"pedeset":  true,
	"šezdeset": true, "sezdeset": true,
	"sedamdeset": true, "osamdeset": true, "devedeset": true,
}

// ParseDuration extracts a duration in seconds from free transcript text.
//
// Recognised forms, tried in order:
//
//   - ISO-8601-like: "PT1H30M", "pt45s"
//   - Clock: "1:30:00" (H:M:S), "5:30" (M:S)
//   - Number + unit words: "5 minuta", "pet minuta 30 sekundi", "dva sata"
//   - A bare number, interpreted as seconds: "300"
//
// The second return value reports whether a duration was found. Unparseable
// text returns (0, false) and never an error — malformed input is silently
// ignored by design.
func ParseDuration(text string) (uint32, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return 0, false
	}

	for _, tok := range tokenize(text) {
		if secs, ok := parseISO(tok); ok {
			return secs, true
		}
		if secs, ok := parseClock(tok); ok {
			return secs, true
		}
	}

	if secs, ok := parseSpoken(tokenize(text)); ok {
		return secs, true
	}

	// Last resort: a bare number means seconds.
	for _, tok := range tokenize(text) {
		if n, err := strconv.ParseUint(tok, 10, 32); err == nil {
			return uint32(n), true
		}
	}

	return 0, false
}

// parseISO parses an ISO-8601-like time duration of the form PTxHxMxS.
// All three components are optional but at least one must be present.
func parseISO(tok string) (uint32, bool) {
	if len(tok) < 4 || !strings.HasPrefix(tok, "pt") {
		return 0, false
	}
	rest := tok[2:]

	var total uint32
	var digits strings.Builder
	seen := false
	for _, r := range rest {
		switch {
		case unicode.IsDigit(r):
			digits.WriteRune(r)
		case r == 'h' || r == 'm' || r == 's':
			if digits.Len() == 0 {
				return 0, false
			}
			n, err := strconv.ParseUint(digits.String(), 10, 32)
			if err != nil {
				return 0, false
			}
			switch r {
			case 'h':
				total += uint32(n) * secondsPerHour
			case 'm':
				total += uint32(n) * secondsPerMinute
			case 's':
				total += uint32(n)
			}
			digits.Reset()
			seen = true
		default:
			return 0, false
		}
	}
	if digits.Len() > 0 { // trailing digits without a unit letter
		return 0, false
	}
	return total, seen
}

// parseClock parses "H:M:S" and "M:S" numeric forms.
func parseClock(tok string) (uint32, bool) {
	parts := strings.Split(tok, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, false
	}
	vals := make([]uint32, 0, 3)
	for _, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return 0, false
		}
		vals = append(vals, uint32(n))
	}
	if len(vals) == 2 {
		return vals[0]*secondsPerMinute + vals[1], true
	}
	return vals[0]*secondsPerHour + vals[1]*secondsPerMinute + vals[2], true
}

// parseSpoken scans tokenized text for value/unit pairs such as
// "pet minuta", "2 sata 30 sekundi". Values may be digits, number words, or
// a tens word followed by a units word.
func parseSpoken(tokens []string) (uint32, bool) {
	var total uint32
	found := false

	i := 0
	for i < len(tokens) {
		val, consumed, ok := parseNumber(tokens[i:])
		if !ok {
			i++
			continue
		}

		// A unit word must follow the number for it to count.
		unitIdx := i + consumed
		if unitIdx >= len(tokens) {
			break
		}
		mult, ok := unitMultiplier(tokens[unitIdx])
		if !ok {
			i += consumed
			continue
		}

		total += val * mult
		found = true
		i = unitIdx + 1
	}

	return total, found
}

// parseNumber reads a numeric value from the head of tokens, consuming one
// token for digits/simple words or two for compounds like "dvadeset pet".
func parseNumber(tokens []string) (val uint32, consumed int, ok bool) {
	if len(tokens) == 0 {
		return 0, 0, false
	}

	head := tokens[0]
	if n, err := strconv.ParseUint(head, 10, 32); err == nil {
		return uint32(n), 1, true
	}

	n, ok2 := numberWords[head]
	if !ok2 {
		return 0, 0, false
	}
	if tens[head] && len(tokens) > 1 {
		if u, ok3 := numberWords[tokens[1]]; ok3 && u >= 1 && u <= 9 {
			return n + u, 2, true
		}
	}
	return n, 1, true
}

// unitMultiplier maps a unit word to its multiplier in seconds. The
// declension variants cover all Croatian plural forms the recognizer emits.
func unitMultiplier(tok string) (uint32, bool) {
	switch {
	case strings.HasPrefix(tok, "sekund"):
		return 1, true
	case strings.HasPrefix(tok, "minut"):
		return secondsPerMinute, true
	case tok == "sat" || tok == "sata" || tok == "sati":
		return secondsPerHour, true
	case strings.HasPrefix(tok, "second"):
		return 1, true
	case strings.HasPrefix(tok, "minute"):
		return secondsPerMinute, true
	case strings.HasPrefix(tok, "hour"):
		return secondsPerHour, true
	}
	return 0, false
}

// tokenize splits text on whitespace and strips surrounding punctuation
// except the ':' used by clock forms.
func tokenize(text string) []string {
	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return (unicode.IsPunct(r) || unicode.IsSymbol(r)) && r != ':'
		})
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
