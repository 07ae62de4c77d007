package agent

import (
	"context"
	"fmt"
	"strings"

	"admissions-agent/config"
	"admissions-agent/knowledge"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"
)

// NoContextSentinel marks a context build that found nothing relevant
// even after every fallback pass. The escalation policy keys off it.
const NoContextSentinel = "No relevant IST admissions content was found for this question."

// broadFallbackQuery covers the domain's core topics; used when the
// caller's own words match nothing so we answer from the knowledge
// base instead of escalating.
const broadFallbackQuery = "IST Institute of Space Technology admission programs fee merit eligibility contact"

// referentialCues are words that tie a short follow-up to the
// previous turn ("what about that", "same for it").
var referentialCues = []string{
	"that", "it", "same", "what about", "and", "also", "for that",
	"about that", "there", "those", "this", "they",
}

const (
	shortFollowupChars  = 60
	shortFollowupTokens = 5
	prevTurnBudget      = 1800
	headSliceDocs       = 5
)

// ContextBuilder turns a caller utterance into a size-bounded grounding
// context. It layers several retrieval passes: the (possibly
// follow-up-augmented) main query, a broad fallback, the previous
// turn's topic, and one pass per matching topic rule. The cascade makes
// recall failures rare at the cost of redundant retrievals, which is
// acceptable for a corpus this small.
type ContextBuilder struct {
	cfg       *config.Config
	retriever *knowledge.Retriever
	rules     []TopicRule
	logger    *zap.Logger
}

func NewContextBuilder(cfg *config.Config, retriever *knowledge.Retriever, logger *zap.Logger) *ContextBuilder {
	return &ContextBuilder{
		cfg:       cfg,
		retriever: retriever,
		rules:     defaultTopicRules,
		logger:    logger,
	}
}

// EffectiveQuery resolves the search string for an utterance. Short or
// referential follow-ups are prefixed with the previous caller
// utterance so retrieval stays strong deeper into a call; anything
// else is used verbatim.
func (cb *ContextBuilder) EffectiveQuery(utterance string, prev *Exchange) string {
	utterance = strings.TrimSpace(utterance)
	if prev == nil || strings.TrimSpace(prev.Caller) == "" {
		return utterance
	}
	if len(utterance) >= shortFollowupChars {
		return utterance
	}
	lowered := strings.ToLower(utterance)
	if countTokens(utterance) <= shortFollowupTokens || containsAny(lowered, referentialCues) {
		return strings.TrimSpace(prev.Caller) + " " + utterance
	}
	return utterance
}

// Build produces the grounding context for one turn. It returns
// NoContextSentinel only when the document store itself is empty.
func (cb *ContextBuilder) Build(ctx context.Context, utterance string, prev *Exchange) string {
	searchQuery := cb.EffectiveQuery(utterance, prev)
	augmented := prev != nil && searchQuery != strings.TrimSpace(utterance)

	contextText := cb.retrieveBlock(ctx, searchQuery, cb.cfg.ContextMaxChars)

	// Broad fallback before giving up on the caller's own words.
	if contextText == "" {
		contextText = cb.retrieveBlock(ctx, broadFallbackQuery, cb.cfg.ContextMaxChars)
	}

	// A follow-up needs both topics: pull the previous turn's context
	// with a smaller budget and put it first.
	if augmented {
		prevCtx := cb.retrieveBlock(ctx, strings.TrimSpace(prev.Caller), prevTurnBudget)
		if prevCtx != "" && !strings.Contains(contextText, prevCtx) {
			contextText = prevCtx + "\n\n---\n\n" + contextText
		}
	}

	// Topic augmentation passes, data-driven.
	lowered := strings.ToLower(utterance)
	for _, rule := range cb.rules {
		if !rule.Matches(lowered) {
			continue
		}
		topicCtx := cb.retrieveBlock(ctx, rule.AugmentQuery(utterance), cb.cfg.ContextMaxChars)
		if topicCtx == "" || strings.Contains(contextText, topicCtx) {
			continue
		}
		cb.logger.Debug("Topic augmentation fired", zap.String("topic", rule.Tag))
		contextText = topicCtx + "\n\n" + contextText
	}

	// Keep the combined block bounded even after augmentation passes.
	maxCombined := cb.cfg.ContextMaxChars + prevTurnBudget
	if len(contextText) > maxCombined {
		contextText = contextText[:maxCombined]
	}

	if contextText != "" {
		return contextText
	}

	// Last resorts: a slice of the loaded corpus, then the embedded
	// fact sheet. The composer never proceeds with zero context while
	// any document exists.
	if kb := cb.retriever.KnowledgeBase(); kb != nil && kb.Len() > 0 {
		if block := cb.serialize(kb.Head(headSliceDocs), cb.cfg.ContextMaxChars); block != "" {
			return block
		}
		return knowledge.FallbackFactSheet
	}

	return NoContextSentinel
}

// retrieveBlock runs one retrieval pass and serializes the hits.
// Returns "" when nothing matched.
func (cb *ContextBuilder) retrieveBlock(ctx context.Context, query string, maxChars int) string {
	k := cb.cfg.RetrievalResults
	if k <= 0 {
		k = 8
	}
	docs, err := cb.retriever.Retrieve(ctx, query, k)
	if err != nil {
		cb.logger.Warn("Retrieval unavailable for this pass", zap.Error(err))
		return ""
	}
	if len(docs) == 0 {
		return ""
	}
	return cb.serialize(docs, maxChars)
}

// serialize renders documents as labeled snippet blocks joined by
// blank lines, applying the character budget greedily in rank order.
// A snippet that would overflow the budget is dropped whole, never
// truncated mid-block.
func (cb *ContextBuilder) serialize(docs []knowledge.Document, maxChars int) string {
	snippetCap := cb.cfg.SnippetMaxChars
	if snippetCap <= 0 {
		snippetCap = 800
	}
	var blocks []string
	total := 0
	for _, d := range docs {
		snippet := truncateAtSentence(d.Text, snippetCap)
		block := fmt.Sprintf("TITLE: %s\nSOURCE: %s\nCONTENT: %s", d.Title, d.Source, snippet)
		if total+len(block) > maxChars && total > 0 {
			break
		}
		if len(block) > maxChars {
			break
		}
		blocks = append(blocks, block)
		total += len(block)
	}
	return strings.Join(blocks, "\n\n")
}

// countTokens counts word tokens, preferring prose's tokenizer and
// falling back to whitespace splitting if it fails.
func countTokens(text string) int {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithSegmentation(false))
	if err != nil {
		return len(strings.Fields(text))
	}
	return len(doc.Tokens())
}

// truncateAtSentence caps text at max characters, cutting back to the
// last full sentence so the model never sees a half-finished figure.
func truncateAtSentence(text string, max int) string {
	if len(text) <= max {
		return text
	}
	clipped := text[:max]

	doc, err := prose.NewDocument(clipped,
		prose.WithTagging(false),
		prose.WithExtraction(false))
	if err == nil {
		sentences := doc.Sentences()
		if len(sentences) > 1 {
			var b strings.Builder
			for i, sent := range sentences[:len(sentences)-1] {
				if i > 0 {
					b.WriteString(" ")
				}
				b.WriteString(sent.Text)
			}
			if b.Len() > 0 {
				return b.String()
			}
		}
	}

	// Fall back to a word boundary.
	if idx := strings.LastIndexByte(clipped, ' '); idx > 0 {
		return clipped[:idx]
	}
	return clipped
}
