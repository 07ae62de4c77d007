package knowledge

// KnowledgeBase is an immutable snapshot of the document corpus. A
// re-ingestion run builds a fresh instance which callers swap in
// atomically; an instance is never mutated after construction.
type KnowledgeBase struct {
	docs []Document
	byID map[string]int
}

// NewKnowledgeBase builds a corpus snapshot from documents in
// insertion order. Duplicate IDs and empty texts are skipped.
func NewKnowledgeBase(docs []Document) *KnowledgeBase {
	kb := &KnowledgeBase{
		docs: make([]Document, 0, len(docs)),
		byID: make(map[string]int, len(docs)),
	}
	for _, d := range docs {
		if d.Text == "" {
			continue
		}
		if _, exists := kb.byID[d.ID]; exists {
			continue
		}
		kb.byID[d.ID] = len(kb.docs)
		kb.docs = append(kb.docs, d)
	}
	return kb
}

// Documents returns the corpus in insertion order. Callers must treat
// the returned slice as read-only.
func (kb *KnowledgeBase) Documents() []Document {
	return kb.docs
}

// Len returns the number of documents in the corpus.
func (kb *KnowledgeBase) Len() int {
	return len(kb.docs)
}

// ByID looks up a document by its identifier.
func (kb *KnowledgeBase) ByID(id string) (Document, bool) {
	idx, ok := kb.byID[id]
	if !ok {
		return Document{}, false
	}
	return kb.docs[idx], true
}

// Head returns the first n documents, used as a last-resort context
// slice when retrieval finds nothing relevant but the corpus has
// content.
func (kb *KnowledgeBase) Head(n int) []Document {
	if n > len(kb.docs) {
		n = len(kb.docs)
	}
	return kb.docs[:n]
}
