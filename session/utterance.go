package session

import "strings"

// fillerUtterances are transcriptions that carry no question. They are
// acknowledged without spending a provider round trip.
var fillerUtterances = map[string]struct{}{
	"":          {},
	"um":        {},
	"uh":        {},
	"hmm":       {},
	"hm":        {},
	"okay":      {},
	"ok":        {},
	"yes":       {},
	"no":        {},
	"yeah":      {},
	"hello":     {},
	"thanks":    {},
	"thank you": {},
}

// endPhrases end the call when the utterance contains any of them.
var endPhrases = []string{
	"end call", "end the call", "no more query", "no more queries",
	"that's all", "that is all", "nothing else", "goodbye", "bye",
	"hang up", "khuda hafiz", "allah hafiz",
}

// IsMeaningful reports whether an utterance warrants a full pipeline
// turn. Bare fillers and empty transcriptions are not meaningful.
func IsMeaningful(utterance string) bool {
	normalized := strings.ToLower(strings.TrimSpace(utterance))
	normalized = strings.Trim(normalized, ".,!?")
	if normalized == "" {
		return false
	}
	_, filler := fillerUtterances[normalized]
	return !filler
}

// WantsToEndCall reports whether the caller asked to finish.
func WantsToEndCall(utterance string) bool {
	lowered := strings.ToLower(utterance)
	for _, phrase := range endPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

// LooksLikePhoneNumber reports whether the utterance is a Pakistani
// phone number: at least ten digits after stripping separators, with
// a 03, 92 or bare 3 mobile prefix.
func LooksLikePhoneNumber(utterance string) bool {
	var digits strings.Builder
	for _, r := range utterance {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) < 10 {
		return false
	}
	return strings.HasPrefix(d, "03") || strings.HasPrefix(d, "92") || strings.HasPrefix(d, "3")
}

// NormalizePhone keeps only the digits of a spoken number.
func NormalizePhone(utterance string) string {
	var digits strings.Builder
	for _, r := range utterance {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return digits.String()
}

// isEscalationReply mirrors the composer's handoff wording so the
// phone-capture rule can key off the previous reply.
func isEscalationReply(reply string) bool {
	lowered := strings.ToLower(reply)
	return strings.Contains(lowered, "we will forward") ||
		strings.Contains(lowered, "phone number")
}
