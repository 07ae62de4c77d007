package agent

import (
	"context"
	"strings"
	"testing"

	"admissions-agent/config"
	"admissions-agent/knowledge"

	"go.uber.org/zap"
)

func testAgent(t *testing.T, docs []knowledge.Document, chat ChatService) *Agent {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	cfg := &config.Config{
		RetrievalResults:   8,
		ContextMaxChars:    3500,
		SnippetMaxChars:    800,
		RetrievalCacheSize: 16,
		Temperature:        0.1,
	}
	retriever := knowledge.NewRetriever(cfg, nil, logger)
	retriever.SetKnowledgeBase(context.Background(), knowledge.NewKnowledgeBase(docs))
	return New(cfg, retriever, chat, logger)
}

func TestRespondMeritFastPathSkipsProvider(t *testing.T) {
	chat := &fakeChat{reply: "should not be used"}
	docs := []knowledge.Document{
		{ID: "doc_001", Title: "Merit", Source: "merit.txt", Text: "merit formula details"},
	}
	ag := testAgent(t, docs, chat)

	reply, err := ag.Respond(context.Background(),
		"my merit for aerospace engineering with matric 900 fsc 950 entry test 70", nil)
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if chat.calls != 0 {
		t.Errorf("provider called %d times for a deterministic merit turn, want 0", chat.calls)
	}
	if !strings.Contains(reply.Text, "77.73") {
		t.Errorf("Respond() = %q, want the engineering aggregate 77.73", reply.Text)
	}
	if !strings.Contains(reply.Text, MeritClosingRemark) {
		t.Errorf("Respond() = %q, want the closing remark", reply.Text)
	}
}

func TestRespondMeritCategoryFromPreviousTurn(t *testing.T) {
	chat := &fakeChat{reply: "should not be used"}
	docs := []knowledge.Document{
		{ID: "doc_001", Title: "Merit", Source: "merit.txt", Text: "merit formula details"},
	}
	ag := testAgent(t, docs, chat)
	prev := &Exchange{
		Caller: "how is merit calculated for space science",
		Agent:  "The non-engineering aggregate uses matric and intermediate marks.",
	}

	reply, err := ag.Respond(context.Background(), "1000 and 1000", prev)
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if chat.calls != 0 {
		t.Errorf("provider called %d times, want 0", chat.calls)
	}
	if !strings.Contains(reply.Text, "90.91") {
		t.Errorf("Respond() = %q, want the non-engineering aggregate 90.91", reply.Text)
	}
}

func TestRespondEscalatesOnlyWhenStoreEmpty(t *testing.T) {
	chat := &fakeChat{reply: "grounded answer"}
	ag := testAgent(t, nil, chat)

	reply, err := ag.Respond(context.Background(), "what is the fee", nil)
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if !reply.Escalated {
		t.Error("Respond() with an empty store did not escalate")
	}
	if reply.Text != EscalationMessage {
		t.Errorf("Respond() = %q, want escalation message", reply.Text)
	}
	if chat.calls != 0 {
		t.Errorf("provider called %d times on an escalated turn, want 0", chat.calls)
	}
}

func TestRespondAnswersWithLoadedCorpus(t *testing.T) {
	chat := &fakeChat{reply: "As per IST records, the fee is 1.5 lakh per semester."}
	docs := []knowledge.Document{
		{ID: "doc_001", Title: "Fee Structure", Source: "fees.txt", Text: "The fee for BS Aerospace Engineering is 150000 per semester."},
	}
	ag := testAgent(t, docs, chat)

	reply, err := ag.Respond(context.Background(), "fee", nil)
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if reply.Escalated {
		t.Error("Respond() escalated a grounded fee question")
	}
	if chat.calls != 1 {
		t.Errorf("provider called %d times, want 1", chat.calls)
	}
}
