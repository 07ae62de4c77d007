package knowledge

import "testing"

func TestNewDocumentNormalization(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{
			name:   "collapses_runs_of_spaces",
			text:   "Fee   structure  details",
			want:   "Fee structure details",
			wantOK: true,
		},
		{
			name:   "windows_newlines_and_blank_runs",
			text:   "line one\r\n\r\n\r\n\r\nline two",
			want:   "line one\n\nline two",
			wantOK: true,
		},
		{
			name:   "whitespace_only_rejected",
			text:   "  \n\t \n ",
			wantOK: false,
		},
		{
			name:   "empty_rejected",
			text:   "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, ok := newDocument("doc_001", "Title", "src.txt", tt.text)
			if ok != tt.wantOK {
				t.Fatalf("newDocument() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && doc.Text != tt.want {
				t.Errorf("newDocument() text = %q, want %q", doc.Text, tt.want)
			}
		})
	}
}

func TestNewDocumentDefaultsTitle(t *testing.T) {
	doc, ok := newDocument("doc_001", "  ", "src.txt", "content")
	if !ok {
		t.Fatal("newDocument() rejected valid content")
	}
	if doc.Title != "Untitled Document" {
		t.Errorf("newDocument() title = %q, want Untitled Document", doc.Title)
	}
}

func TestNewKnowledgeBaseSkipsDuplicatesAndEmpties(t *testing.T) {
	kb := NewKnowledgeBase([]Document{
		{ID: "doc_001", Title: "A", Text: "first"},
		{ID: "doc_001", Title: "B", Text: "duplicate id"},
		{ID: "doc_002", Title: "C", Text: ""},
		{ID: "doc_003", Title: "D", Text: "third"},
	})

	if kb.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", kb.Len())
	}
	got, ok := kb.ByID("doc_001")
	if !ok || got.Title != "A" {
		t.Errorf("ByID(doc_001) = %+v, want the first entry kept", got)
	}
	if _, ok := kb.ByID("doc_002"); ok {
		t.Error("ByID(doc_002) found an empty-text document")
	}
	if head := kb.Head(5); len(head) != 2 {
		t.Errorf("Head(5) returned %d documents, want 2", len(head))
	}
}
