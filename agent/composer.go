package agent

import (
	"context"
	"fmt"
	"strings"

	"admissions-agent/config"
	"admissions-agent/llmclient"
	"admissions-agent/prompts"

	"go.uber.org/zap"
)

// EscalationMessage is spoken whenever a turn is handed to the human
// admissions team. The phone prompt doubles as the capture trigger for
// the next turn.
const EscalationMessage = "We will forward this query to our admissions team. Please tell me your phone number so we can call you back."

// Reply is one composed agent turn.
type Reply struct {
	Text      string
	Escalated bool
}

// Exchange is a completed caller/agent turn pair, passed back in so
// follow-ups stay coherent.
type Exchange struct {
	Caller string
	Agent  string
}

// ChatService is the slice of the LLM client the composer needs.
type ChatService interface {
	Chat(ctx context.Context, messages []llmclient.Message, temperature *float64) (string, error)
}

// Composer renders the final spoken reply from the utterance, the
// grounding context and the previous exchange.
type Composer struct {
	cfg    *config.Config
	chat   ChatService
	logger *zap.Logger
}

func NewComposer(cfg *config.Config, chat ChatService, logger *zap.Logger) *Composer {
	return &Composer{cfg: cfg, chat: chat, logger: logger}
}

// Compose produces the reply for one turn. Provider failures degrade
// to the escalation message rather than surfacing an error to the
// caller; the error is still returned for logging.
func (c *Composer) Compose(ctx context.Context, utterance, contextText string, prev *Exchange) (Reply, error) {
	messages := []llmclient.Message{
		{Role: "system", Content: prompts.CounselorSystem()},
		{Role: "user", Content: c.userPrompt(utterance, contextText, prev)},
	}

	text, err := c.chat.Chat(ctx, messages, &c.cfg.Temperature)
	if err != nil {
		c.logger.Error("Reply generation failed, escalating turn", zap.Error(err))
		return Reply{Text: EscalationMessage, Escalated: true}, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{Text: EscalationMessage, Escalated: true}, nil
	}
	return Reply{Text: text, Escalated: isEscalation(text)}, nil
}

// ComposeEscalation returns the canned escalation reply without
// touching the provider.
func (c *Composer) ComposeEscalation() Reply {
	return Reply{Text: EscalationMessage, Escalated: true}
}

// userPrompt assembles the single user message: follow-up reference
// block, the utterance, response instructions, then the grounding
// context last so figures stay adjacent to the question.
func (c *Composer) userPrompt(utterance, contextText string, prev *Exchange) string {
	var b strings.Builder
	if prev != nil && (prev.Caller != "" || prev.Agent != "") {
		b.WriteString(prompts.FollowupHeader())
		fmt.Fprintf(&b, "Previous caller question: %s\nPrevious answer: %s\n", prev.Caller, prev.Agent)
		b.WriteString(prompts.FollowupFooter())
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Caller question: %s\n\n", utterance)
	b.WriteString(prompts.UserInstructions())
	b.WriteString("\n\nReference information from IST records:\n")
	b.WriteString(contextText)
	return b.String()
}

// isEscalation detects that the model itself chose to hand off.
func isEscalation(reply string) bool {
	lowered := strings.ToLower(reply)
	return strings.Contains(lowered, "we will forward") ||
		strings.Contains(lowered, "phone number")
}
