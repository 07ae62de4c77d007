package agent

import "strings"

// Decision is the routing outcome for one caller turn.
type Decision int

const (
	// Direct means the turn is answerable from the built context.
	Direct Decision = iota
	// Escalate means no grounding exists and the query must be handed
	// to a human counselor.
	Escalate
)

func (d Decision) String() string {
	if d == Escalate {
		return "escalate"
	}
	return "direct"
}

// auxVerbs are the auxiliaries that open an English yes/no question.
var auxVerbs = map[string]struct{}{
	"is": {}, "are": {}, "was": {}, "were": {},
	"do": {}, "does": {}, "did": {},
	"can": {}, "could": {}, "would": {}, "will": {},
	"shall": {}, "should": {},
	"has": {}, "have": {}, "had": {},
}

// Policy decides whether a turn is answered directly or escalated.
// The rule is deliberately narrow: escalation happens only when the
// context builder exhausted every fallback, so callers almost always
// get an answer attempt first.
type Policy struct{}

func NewPolicy() *Policy {
	return &Policy{}
}

// Decide routes a turn given its built context.
func (p *Policy) Decide(query, contextText string) Decision {
	if contextText == NoContextSentinel {
		return Escalate
	}
	return Direct
}

// IsYesNoQuestion reports whether the utterance opens with an
// auxiliary verb, the shape of a polar question. Useful for keeping
// spoken replies short on questions that only need a yes or no.
func IsYesNoQuestion(utterance string) bool {
	fields := strings.Fields(strings.ToLower(utterance))
	if len(fields) == 0 {
		return false
	}
	first := strings.Trim(fields[0], ",.?!")
	_, ok := auxVerbs[first]
	return ok
}
