package session

import (
	"time"

	"admissions-agent/agent"
)

// Turn is one completed caller/agent exchange within a call.
type Turn struct {
	Caller string    `json:"caller"`
	Agent  string    `json:"agent"`
	At     time.Time `json:"at"`
}

// CallSession is the state of one live call. All mutation goes through
// the Store so locking stays in one place.
type CallSession struct {
	ID         string
	StartedAt  time.Time
	LastActive time.Time
	Turns      []Turn
	Escalated  bool
	Phone      string
}

// LastExchange returns the most recent turn as an agent.Exchange, or
// nil on a fresh call.
func (s *CallSession) LastExchange() *agent.Exchange {
	if len(s.Turns) == 0 {
		return nil
	}
	last := s.Turns[len(s.Turns)-1]
	return &agent.Exchange{Caller: last.Caller, Agent: last.Agent}
}

// LastReplyEscalated reports whether the immediately preceding agent
// reply was an escalation. The phone capture rule keys off this.
func (s *CallSession) LastReplyEscalated() bool {
	if len(s.Turns) == 0 {
		return false
	}
	return isEscalationReply(s.Turns[len(s.Turns)-1].Agent)
}
