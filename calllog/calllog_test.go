package calllog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"admissions-agent/config"

	"go.uber.org/zap"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	cfg := &config.Config{LogDir: t.TempDir()}
	store, err := NewStore(cfg, logger)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store
}

func TestAppendTurnMetric(t *testing.T) {
	store := testStore(t)

	for i := 0; i < 3; i++ {
		err := store.AppendTurnMetric(TurnMetric{
			SessionID:  "sess-1",
			STTLatency: 0.5,
			LLMLatency: 1.2,
			TTSLatency: 0.7,
			EndToEnd:   2.5,
			Transcript: "what is the fee",
		})
		if err != nil {
			t.Fatalf("AppendTurnMetric() error = %v", err)
		}
	}

	var metrics []TurnMetric
	data, err := os.ReadFile(filepath.Join(store.dir, turnMetricsFile))
	if err != nil {
		t.Fatalf("reading metrics file: %v", err)
	}
	if err := json.Unmarshal(data, &metrics); err != nil {
		t.Fatalf("metrics file is not a JSON array: %v", err)
	}
	if len(metrics) != 3 {
		t.Errorf("metrics file holds %d entries, want 3", len(metrics))
	}
}

func TestAppendCallRecordWritesOneRecordPerCall(t *testing.T) {
	store := testStore(t)

	record := CallRecord{
		CallID:    "call-1",
		StartTime: time.Now().Add(-time.Minute),
		EndTime:   time.Now(),
		Turns: []RecordedTurn{
			{User: "what is the fee", Agent: "The fee is 150000 per semester."},
		},
		Escalated:   true,
		PhoneNumber: "03001234567",
	}
	if err := store.AppendCallRecord(record); err != nil {
		t.Fatalf("AppendCallRecord() error = %v", err)
	}

	var records []CallRecord
	data, err := os.ReadFile(filepath.Join(store.dir, callRecordsFile))
	if err != nil {
		t.Fatalf("reading call records file: %v", err)
	}
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("call records file is not a JSON array: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("call records file holds %d records, want exactly 1", len(records))
	}
	got := records[0]
	if got.CallID != "call-1" || !got.Escalated || got.PhoneNumber != "03001234567" {
		t.Errorf("persisted record = %+v, want original fields", got)
	}
	if len(got.Turns) != 1 || got.Turns[0].User != "what is the fee" {
		t.Errorf("persisted turns = %+v, want original turns", got.Turns)
	}
}

func readEscalations(t *testing.T, store *Store) []Escalation {
	t.Helper()
	var escalations []Escalation
	data, err := os.ReadFile(filepath.Join(store.dir, escalationsFile))
	if err != nil {
		t.Fatalf("reading escalations file: %v", err)
	}
	if err := json.Unmarshal(data, &escalations); err != nil {
		t.Fatalf("escalations file is not a JSON array: %v", err)
	}
	return escalations
}

func TestAppendEscalationQueuesPendingWithoutPhone(t *testing.T) {
	store := testStore(t)

	if err := store.AppendEscalation("when is convocation"); err != nil {
		t.Fatalf("AppendEscalation() error = %v", err)
	}

	escalations := readEscalations(t, store)
	if len(escalations) != 1 {
		t.Fatalf("escalations file holds %d entries, want 1", len(escalations))
	}
	if escalations[0].Status != "pending" {
		t.Errorf("escalation status = %q, want pending", escalations[0].Status)
	}
	if escalations[0].Query != "when is convocation" {
		t.Errorf("escalation query = %q, want the original question", escalations[0].Query)
	}
	if escalations[0].Phone != "" {
		t.Errorf("escalation phone = %q, want empty until the caller leaves one", escalations[0].Phone)
	}
}

func TestAttachPhoneFillsLatestPendingEscalation(t *testing.T) {
	store := testStore(t)

	if err := store.AppendEscalation("when is convocation"); err != nil {
		t.Fatalf("AppendEscalation() error = %v", err)
	}
	if err := store.AppendEscalation("is there a shuttle service"); err != nil {
		t.Fatalf("AppendEscalation() error = %v", err)
	}
	if err := store.AttachPhone("03001234567"); err != nil {
		t.Fatalf("AttachPhone() error = %v", err)
	}

	escalations := readEscalations(t, store)
	if len(escalations) != 2 {
		t.Fatalf("escalations file holds %d entries, want 2", len(escalations))
	}
	if escalations[0].Phone != "" {
		t.Errorf("older escalation phone = %q, want empty", escalations[0].Phone)
	}
	if escalations[1].Phone != "03001234567" {
		t.Errorf("latest escalation phone = %q, want the captured number", escalations[1].Phone)
	}
}

func TestAttachPhoneWithoutPendingEscalationQueuesOne(t *testing.T) {
	store := testStore(t)

	if err := store.AttachPhone("03001234567"); err != nil {
		t.Fatalf("AttachPhone() error = %v", err)
	}

	escalations := readEscalations(t, store)
	if len(escalations) != 1 {
		t.Fatalf("escalations file holds %d entries, want 1", len(escalations))
	}
	if escalations[0].Phone != "03001234567" || escalations[0].Status != "pending" {
		t.Errorf("escalation = %+v, want a pending entry carrying the number", escalations[0])
	}
}

func TestSummarize(t *testing.T) {
	store := testStore(t)

	turns := []TurnMetric{
		{SessionID: "sess-1", STTLatency: 0.4, LLMLatency: 1.0, TTSLatency: 0.6, EndToEnd: 2.0},
		{SessionID: "sess-1", STTLatency: 0.6, LLMLatency: 2.0, TTSLatency: 0.8, EndToEnd: 3.4, Escalated: true},
		{SessionID: "sess-2", STTLatency: 0.5, LLMLatency: 1.5, TTSLatency: 1.0, EndToEnd: 3.0},
	}
	for _, m := range turns {
		if err := store.AppendTurnMetric(m); err != nil {
			t.Fatalf("AppendTurnMetric() error = %v", err)
		}
	}

	got, err := store.Summarize()
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got.TotalTurns != 3 {
		t.Errorf("TotalTurns = %d, want 3", got.TotalTurns)
	}
	if got.TotalCalls != 2 {
		t.Errorf("TotalCalls = %d, want 2", got.TotalCalls)
	}
	if got.Escalations != 1 {
		t.Errorf("Escalations = %d, want 1", got.Escalations)
	}
	if got.LastCall.Turns != 1 {
		t.Errorf("LastCall.Turns = %d, want 1", got.LastCall.Turns)
	}
	if diff := got.Overall.AvgLLM - 1.5; diff > 0.001 || diff < -0.001 {
		t.Errorf("Overall.AvgLLM = %.3f, want 1.5", got.Overall.AvgLLM)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	store := testStore(t)

	got, err := store.Summarize()
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got.TotalTurns != 0 || got.TotalCalls != 0 {
		t.Errorf("Summarize() on empty store = %+v, want zeros", got)
	}
}
