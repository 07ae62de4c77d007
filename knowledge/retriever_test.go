package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"admissions-agent/config"
	apperrors "admissions-agent/errors"

	"go.uber.org/zap"
)

func testRetriever(t *testing.T, docs []Document) *Retriever {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	cfg := &config.Config{RetrievalResults: 8, RetrievalCacheSize: 16}
	r := NewRetriever(cfg, nil, logger)
	r.SetKnowledgeBase(context.Background(), NewKnowledgeBase(docs))
	return r
}

func TestKeywordSearchRanking(t *testing.T) {
	docs := []Document{
		{ID: "doc_001", Title: "Fee Structure", Text: "The fee for BS Aerospace is 150000. The fee includes tuition. Fee installments are allowed."},
		{ID: "doc_002", Title: "Programs", Text: "IST offers BS Aerospace Engineering and BS Space Science. The fee schedule is published separately."},
		{ID: "doc_003", Title: "Hostel", Text: "Hostel accommodation is available for students from other cities."},
	}
	r := testRetriever(t, docs)

	tests := []struct {
		name    string
		query   string
		k       int
		wantIDs []string
	}{
		{
			name:    "highest_occurrence_count_first",
			query:   "fee",
			k:       8,
			wantIDs: []string{"doc_001", "doc_002"},
		},
		{
			name:    "zero_score_documents_excluded",
			query:   "hostel",
			k:       8,
			wantIDs: []string{"doc_003"},
		},
		{
			name:    "case_insensitive_matching",
			query:   "FEE",
			k:       8,
			wantIDs: []string{"doc_001", "doc_002"},
		},
		{
			name:    "k_caps_result_count",
			query:   "fee",
			k:       1,
			wantIDs: []string{"doc_001"},
		},
		{
			name:    "no_match_returns_empty",
			query:   "zoology",
			k:       8,
			wantIDs: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Retrieve(context.Background(), tt.query, tt.k)
			if err != nil {
				t.Fatalf("Retrieve() error = %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("Retrieve() returned %d documents, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("Retrieve()[%d].ID = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestKeywordSearchTiesKeepInsertionOrder(t *testing.T) {
	docs := []Document{
		{ID: "doc_001", Title: "A", Text: "merit list details"},
		{ID: "doc_002", Title: "B", Text: "merit calculation formula"},
		{ID: "doc_003", Title: "C", Text: "merit aggregate policy"},
	}
	r := testRetriever(t, docs)

	got, err := r.Retrieve(context.Background(), "merit", 8)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	want := []string{"doc_001", "doc_002", "doc_003"}
	if len(got) != len(want) {
		t.Fatalf("Retrieve() returned %d documents, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("Retrieve()[%d].ID = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestRetrieveIsIdempotent(t *testing.T) {
	docs := []Document{
		{ID: "doc_001", Title: "Fees", Text: "fee fee fee"},
		{ID: "doc_002", Title: "More fees", Text: "fee schedule"},
	}
	r := testRetriever(t, docs)

	first, err := r.Retrieve(context.Background(), "fee", 8)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	second, err := r.Retrieve(context.Background(), "fee", 8)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("repeat query returned %d documents, want %d", len(second), len(first))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("repeat query rank %d = %s, want %s", i, second[i].ID, first[i].ID)
		}
	}
}

func TestRetrieveEmptyStates(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	cfg := &config.Config{RetrievalCacheSize: 16}

	t.Run("no_corpus_loaded", func(t *testing.T) {
		r := NewRetriever(cfg, nil, logger)
		got, err := r.Retrieve(context.Background(), "fee", 5)
		if !errors.Is(err, apperrors.ErrRetrievalUnavailable) {
			t.Errorf("Retrieve() before load error = %v, want ErrRetrievalUnavailable", err)
		}
		if len(got) != 0 {
			t.Errorf("Retrieve() before load returned %d documents, want 0", len(got))
		}
	})

	t.Run("blank_query", func(t *testing.T) {
		r := testRetriever(t, []Document{{ID: "doc_001", Title: "T", Text: "text"}})
		got, err := r.Retrieve(context.Background(), "   ", 5)
		if err != nil {
			t.Fatalf("Retrieve() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("Retrieve() with blank query returned %d documents, want 0", len(got))
		}
	})
}

func TestTruncateForEmbeddingKeepsValidUTF8(t *testing.T) {
	short := "fee schedule"
	if got := truncateForEmbedding(short); got != short {
		t.Errorf("truncateForEmbedding(%q) = %q, want unchanged", short, got)
	}

	// 3-byte runes guarantee the byte cap lands mid-rune.
	long := strings.Repeat("€", maxEmbeddingChars)
	got := truncateForEmbedding(long)
	if len(got) > maxEmbeddingChars {
		t.Errorf("truncated length = %d, want at most %d", len(got), maxEmbeddingChars)
	}
	if !utf8.ValidString(got) {
		t.Error("truncateForEmbedding() produced invalid UTF-8")
	}
}
