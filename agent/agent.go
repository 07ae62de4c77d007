package agent

import (
	"context"
	"strings"

	"admissions-agent/config"
	"admissions-agent/knowledge"

	"go.uber.org/zap"
)

// GreetingText opens every call.
const GreetingText = "Hello! Welcome to the Institute of Space Technology admissions helpline. How may I help you today?"

// GoodbyeText closes every call.
const GoodbyeText = "Thank you for calling IST. Goodbye."

// RepeatPrompt is spoken when the transcription carried no question.
const RepeatPrompt = "I did not catch that. Could you please repeat your question?"

// PhoneAckText confirms a captured callback number after an escalation.
const PhoneAckText = "Thank you, our admissions team will call you back on this number. Is there anything else I can help you with?"

// Agent runs the full answer pipeline for admissions calls: build
// grounding context, apply the escalation policy, short-circuit merit
// calculations, then compose the spoken reply.
type Agent struct {
	cfg      *config.Config
	builder  *ContextBuilder
	policy   *Policy
	composer *Composer
	logger   *zap.Logger
}

func New(cfg *config.Config, retriever *knowledge.Retriever, chat ChatService, logger *zap.Logger) *Agent {
	return &Agent{
		cfg:      cfg,
		builder:  NewContextBuilder(cfg, retriever, logger),
		policy:   NewPolicy(),
		composer: NewComposer(cfg, chat, logger),
		logger:   logger,
	}
}

// Respond handles one caller turn. prev is the immediately preceding
// exchange, or nil on the first turn. The returned error is advisory:
// Reply is always usable, degrading to escalation on provider failure.
func (a *Agent) Respond(ctx context.Context, utterance string, prev *Exchange) (Reply, error) {
	utterance = strings.TrimSpace(utterance)

	// Merit fast path: when the caller has named a program and given
	// their marks, the aggregate is deterministic and the provider
	// would only risk getting the arithmetic wrong.
	if reply, ok := a.meritFastPath(utterance, prev); ok {
		return reply, nil
	}

	contextText := a.builder.Build(ctx, utterance, prev)

	if a.policy.Decide(utterance, contextText) == Escalate {
		a.logger.Warn("No grounding available, escalating",
			zap.String("utterance", utterance))
		return a.composer.ComposeEscalation(), nil
	}

	return a.composer.Compose(ctx, utterance, contextText, prev)
}

// meritFastPath computes the aggregate locally when marks are parseable
// and the program category is known from this or the previous turn.
func (a *Agent) meritFastPath(utterance string, prev *Exchange) (Reply, bool) {
	lowered := strings.ToLower(utterance)
	meritTurn := strings.Contains(lowered, "merit") || strings.Contains(lowered, "aggregate")
	if prev != nil && !meritTurn {
		prevLowered := strings.ToLower(prev.Caller + " " + prev.Agent)
		meritTurn = strings.Contains(prevLowered, "merit") || strings.Contains(prevLowered, "aggregate")
	}
	if !meritTurn {
		return Reply{}, false
	}

	in, ok := ParseMarks(utterance)
	if !ok {
		return Reply{}, false
	}

	category := DetectCategory(utterance)
	if category == CategoryUnknown && prev != nil {
		category = DetectCategory(prev.Caller + " " + prev.Agent)
	}
	if category == CategoryUnknown {
		if in.HasEntryTest {
			category = Engineering
		} else {
			category = NonEngineering
		}
	}

	aggregate, err := ComputeAggregate(category, in)
	if err != nil {
		// Missing figures: let the model ask for what is absent.
		return Reply{}, false
	}

	a.logger.Info("Merit aggregate computed locally",
		zap.String("category", category.String()),
		zap.Float64("aggregate", aggregate))
	return Reply{Text: FormatAggregate(category, aggregate)}, true
}
