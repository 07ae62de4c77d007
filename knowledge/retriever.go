package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"admissions-agent/config"
	apperrors "admissions-agent/errors"

	lru "github.com/hashicorp/golang-lru"
	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

const (
	// Embedding endpoints typically cap input length; keep a margin.
	maxEmbeddingChars = 1000

	collectionName = "admissions-kb"
)

// Embedder produces an embedding vector for a document or query.
// Implemented by llmclient.Client.
type Embedder interface {
	Embed(ctx context.Context, doc string) ([]float32, error)
}

// snapshot bundles one corpus generation with its vector collection
// and result cache. A reload builds a whole new snapshot so in-flight
// queries keep a consistent view.
type snapshot struct {
	kb          *KnowledgeBase
	collection  *chromem.Collection
	vectorReady atomic.Bool
	cache       *lru.Cache
}

// Retriever answers top-K document queries against the current
// KnowledgeBase snapshot. It prefers the semantic index when one has
// been built and silently falls back to keyword scoring otherwise; a
// missing or half-built index is never an error.
type Retriever struct {
	cfg      *config.Config
	embedder Embedder
	logger   *zap.Logger
	state    atomic.Pointer[snapshot]
}

func NewRetriever(cfg *config.Config, embedder Embedder, logger *zap.Logger) *Retriever {
	return &Retriever{
		cfg:      cfg,
		embedder: embedder,
		logger:   logger,
	}
}

// SetKnowledgeBase atomically swaps in a new corpus snapshot. Keyword
// search over the new corpus is available immediately; the semantic
// index builds in the background and is used once complete.
func (r *Retriever) SetKnowledgeBase(ctx context.Context, kb *KnowledgeBase) {
	cacheSize := r.cfg.RetrievalCacheSize
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		// Only happens for a non-positive size, which is guarded above.
		r.logger.Warn("Could not create retrieval cache", zap.Error(err))
	}

	snap := &snapshot{kb: kb, cache: cache}
	r.state.Store(snap)

	if !r.cfg.VectorIndexEnabled || r.embedder == nil || kb.Len() == 0 {
		r.logger.Info("Semantic index disabled, keyword search only")
		return
	}

	go r.buildVectorIndex(ctx, snap)
}

// KnowledgeBase returns the current corpus snapshot, or nil before the
// first load.
func (r *Retriever) KnowledgeBase() *KnowledgeBase {
	snap := r.state.Load()
	if snap == nil {
		return nil
	}
	return snap.kb
}

// buildVectorIndex embeds every document into a fresh chromem
// collection. On any failure the snapshot simply stays in keyword
// mode.
func (r *Retriever) buildVectorIndex(ctx context.Context, snap *snapshot) {
	embedFn := func(ctx context.Context, text string) ([]float32, error) {
		return r.embedder.Embed(ctx, truncateForEmbedding(text))
	}

	db := chromem.NewDB()
	collection, err := db.GetOrCreateCollection(collectionName, nil, embedFn)
	if err != nil {
		r.logger.Warn("Could not create vector collection, keyword search only", zap.Error(err))
		return
	}

	docs := snap.kb.Documents()
	toEmbed := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		toEmbed = append(toEmbed, chromem.Document{
			ID:      d.ID,
			Content: d.Text,
			Metadata: map[string]string{
				"title":  d.Title,
				"source": d.Source,
			},
		})
	}
	if err := collection.AddDocuments(ctx, toEmbed, 4); err != nil {
		r.logger.Warn("Semantic index build failed, keyword search only", zap.Error(err))
		return
	}

	snap.collection = collection
	snap.vectorReady.Store(true)
	r.logger.Info("Semantic index built", zap.Int("documents", len(docs)))
}

// Retrieve returns the top k most relevant documents for the query,
// in rank order. Returns ErrRetrievalUnavailable before the first
// corpus load, and an empty list when nothing matches (keyword mode)
// or the query is blank; the caller handles broad fallbacks. Calling
// twice with the same query against an unchanged corpus returns the
// same ordered list.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]Document, error) {
	if k < 1 {
		k = 1
	}
	snap := r.state.Load()
	if snap == nil {
		return nil, apperrors.ErrRetrievalUnavailable
	}
	if snap.kb.Len() == 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	useVector := snap.vectorReady.Load()
	cacheKey := fmt.Sprintf("%d|%t|%s", k, useVector, strings.ToLower(query))
	if snap.cache != nil {
		if cached, ok := snap.cache.Get(cacheKey); ok {
			return cached.([]Document), nil
		}
	}

	var results []Document
	if useVector {
		results = r.vectorSearch(ctx, snap, query, k)
	}
	if results == nil {
		results = keywordSearch(snap.kb, query, k)
	}

	if snap.cache != nil {
		snap.cache.Add(cacheKey, results)
	}
	return results, nil
}

// vectorSearch queries the semantic index. Returns nil (not an empty
// slice) on failure so the caller falls back to keyword scoring.
func (r *Retriever) vectorSearch(ctx context.Context, snap *snapshot, query string, k int) []Document {
	count := snap.collection.Count()
	if count == 0 {
		return nil
	}
	n := k
	if n > count {
		n = count
	}
	queryResults, err := snap.collection.Query(ctx, query, n, nil, nil)
	if err != nil {
		r.logger.Warn("Semantic query failed, falling back to keyword search", zap.Error(err))
		return nil
	}
	docs := make([]Document, 0, len(queryResults))
	for _, res := range queryResults {
		if doc, ok := snap.kb.ByID(res.ID); ok {
			docs = append(docs, doc)
		}
	}
	if len(docs) == 0 {
		return nil
	}
	return docs
}

// truncateForEmbedding caps text at the embedding input limit, backing
// up to a rune boundary so the endpoint never receives invalid UTF-8.
func truncateForEmbedding(text string) string {
	if len(text) <= maxEmbeddingChars {
		return text
	}
	cut := maxEmbeddingChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// keywordSearch scores each document by the number of case-insensitive
// occurrences of the whole query string in its text. Zero-score
// documents are excluded; ties keep corpus insertion order.
func keywordSearch(kb *KnowledgeBase, query string, k int) []Document {
	loweredQuery := strings.ToLower(strings.TrimSpace(query))
	if loweredQuery == "" {
		return []Document{}
	}

	type scored struct {
		doc   Document
		score int
	}
	var hits []scored
	for _, doc := range kb.Documents() {
		score := strings.Count(strings.ToLower(doc.Text), loweredQuery)
		if score > 0 {
			hits = append(hits, scored{doc: doc, score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].score > hits[j].score
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	docs := make([]Document, len(hits))
	for i, h := range hits {
		docs[i] = h.doc
	}
	return docs
}
