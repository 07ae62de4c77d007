package knowledge

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"admissions-agent/config"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// FallbackFactSheet is the minimal embedded corpus used when the data
// directory is missing on deploy, so the agent can still answer
// programs/fees/contact questions instead of escalating everything.
const FallbackFactSheet = `Institute of Space Technology (IST) - Key Information

Programs (BS): Aerospace Engineering, Avionics Engineering, Electrical Engineering,
Mechanical Engineering, Materials Science and Engineering, Computer Science,
Software Engineering, Artificial Intelligence, Data Science, Space Science,
Mathematics, Physics, Biotechnology.

Approximate BS fee per semester:
Aerospace / Avionics / Electrical / Mechanical: about 1 lakh 48 thousand PKR.
Materials Science: about 1 lakh 42 thousand PKR.
Computing programs (CS, Software Engineering, AI, Data Science): about 1 lakh 26 thousand PKR.
Space Science / Mathematics / Physics / Biotechnology: about 1 lakh 2 thousand PKR.
One-time charges for all BS programs: about 49 thousand PKR.

Admissions usually open February-March and close end of June (Fall intake only).
Merit list is published around August; classes start September.
Merit for engineering programs: 10% Matric + 40% FSC + 50% Entry Test.

Contact: 051-9075100 | admissions@ist.edu.pk | ist.edu.pk/admission`

// Known corpus files produced by the scraper, loaded in a fixed order
// so document IDs stay stable across restarts.
var corpusFiles = []struct {
	Name  string
	Title string
}{
	{"FEE_STRUCTURE.txt", "Fee Structure"},
	{"ADMISSION_DATES_AND_STATUS.txt", "Admission Dates & Cycle"},
	{"ADMISSION_FAQS_COMPLETE.txt", "Admission FAQs Complete"},
	{"CLOSING_MERIT_HISTORY.txt", "Closing Merit History"},
	{"IST_DEPARTMENTS_AND_PROGRAMS_SUMMARY.txt", "Departments & Programs Summary"},
	{"MERIT_CRITERIA_AND_AGGREGATE.txt", "Merit Criteria & Aggregate"},
	{"TRANSPORT_HOSTEL_FAQS.txt", "Transport, Hostel & FAQs"},
	{"PROGRAMS_FEES_MERIT_EXTRA.txt", "Programs, Fees & Merit Extra"},
	{"ADMISSION_INFO.txt", "Admission Key Information"},
	{"ANNOUNCEMENTS.txt", "Current Announcements"},
	{"IST_FULL_WEBSITE_MANUAL.txt", "Full Website Manual Reference"},
}

type masterEntry struct {
	SourceID   string   `json:"source_id"`
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	Text       string   `json:"text"`
	TextBlocks []string `json:"text_blocks"`
}

type masterCorpus struct {
	Documents []masterEntry `json:"documents"`
}

// Load reads the scraped corpus from cfg.DataDir and returns an
// immutable KnowledgeBase. Priority: master JSON, then the known .txt
// files, then any remaining .txt and .pdf files, then the embedded
// fact sheet if nothing at all was loaded. Load never fails outright:
// an unreadable file is logged and skipped.
func Load(cfg *config.Config, logger *zap.Logger) *KnowledgeBase {
	var docs []Document
	seq := 0
	nextID := func() string {
		seq++
		return fmt.Sprintf("doc_%03d", seq)
	}
	loaded := make(map[string]bool)

	dataDir := cfg.DataDir

	// 1. Master JSON produced by the ingestion job.
	masterPath := filepath.Join(dataDir, "corpus.json")
	if raw, err := os.ReadFile(masterPath); err == nil {
		var master masterCorpus
		if err := json.Unmarshal(raw, &master); err != nil {
			logger.Error("Failed to parse master corpus JSON", zap.String("path", masterPath), zap.Error(err))
		} else {
			for _, entry := range master.Documents {
				text := entry.Text
				if text == "" && len(entry.TextBlocks) > 0 {
					text = strings.Join(entry.TextBlocks, "\n\n")
				}
				source := entry.SourceID
				if source == "" {
					source = entry.URL
				}
				if doc, ok := newDocument(nextID(), entry.Title, source, text); ok {
					docs = append(docs, doc)
				}
			}
			logger.Info("Loaded entries from master corpus", zap.Int("count", len(docs)))
		}
		loaded["corpus.json"] = true
	}

	// 2. Known individual .txt files with canned titles.
	for _, cf := range corpusFiles {
		path := filepath.Join(dataDir, cf.Name)
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		loaded[cf.Name] = true
		if doc, ok := newDocument(nextID(), cf.Title, cf.Name, string(content)); ok {
			docs = append(docs, doc)
		}
	}

	// 3. Any remaining .txt and .pdf files, sorted for determinism.
	if entries, err := os.ReadDir(dataDir); err == nil {
		var extra []string
		for _, e := range entries {
			if e.IsDir() || loaded[e.Name()] {
				continue
			}
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if ext == ".txt" || ext == ".pdf" {
				extra = append(extra, e.Name())
			}
		}
		sort.Strings(extra)
		for _, name := range extra {
			path := filepath.Join(dataDir, name)
			title := titleFromFilename(name)
			var text string
			if strings.HasSuffix(strings.ToLower(name), ".pdf") {
				extracted, err := extractPDFText(path)
				if err != nil {
					logger.Warn("Could not extract PDF text", zap.String("path", path), zap.Error(err))
					continue
				}
				text = extracted
			} else {
				content, err := os.ReadFile(path)
				if err != nil {
					logger.Warn("Could not read corpus file", zap.String("path", path), zap.Error(err))
					continue
				}
				text = string(content)
			}
			if doc, ok := newDocument(nextID(), title, name, text); ok {
				docs = append(docs, doc)
			}
		}
	}

	// 4. Embedded fallback so the store is never empty.
	if len(docs) == 0 {
		logger.Warn("No corpus documents loaded from disk, using embedded fact sheet",
			zap.String("data_dir", dataDir))
		if doc, ok := newDocument(nextID(), "IST Admissions Fallback Information", "embedded:fallback", FallbackFactSheet); ok {
			docs = append(docs, doc)
		}
	}

	logger.Info("Knowledge base loaded", zap.Int("documents", len(docs)))
	return NewKnowledgeBase(docs)
}

// DataDirStatus reports whether the key corpus files are present, for
// the debug endpoint.
func DataDirStatus(cfg *config.Config) map[string]any {
	feePath := filepath.Join(cfg.DataDir, "FEE_STRUCTURE.txt")
	manualPath := filepath.Join(cfg.DataDir, "IST_FULL_WEBSITE_MANUAL.txt")
	feeExists := fileExists(feePath)
	manualExists := fileExists(manualPath)
	return map[string]any{
		"data_dir":             cfg.DataDir,
		"fee_structure_exists": feeExists,
		"manual_exists":        manualExists,
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func titleFromFilename(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.ReplaceAll(base, "_", " ")
	base = strings.ReplaceAll(base, "-", " ")
	return strings.TrimSpace(base)
}

// extractPDFText pulls plain text from every readable page of a PDF.
func extractPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var fullText strings.Builder
	totalPages := r.NumPage()
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := r.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		fullText.WriteString(text)
		fullText.WriteString("\n\n")
	}
	if fullText.Len() == 0 {
		return "", io.ErrUnexpectedEOF
	}
	return fullText.String(), nil
}
