// Package calllog persists call records, per-turn latency metrics and
// escalation requests as JSON array files. Files are rewritten whole
// on every append under a per-file lock; call volume is low enough
// that the simplicity wins over an incremental format.
package calllog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"admissions-agent/config"

	"go.uber.org/zap"
)

const (
	turnMetricsFile = "turn_metrics.json"
	callRecordsFile = "call_records.json"
	escalationsFile = "escalations.json"
)

// TurnMetric is the latency breakdown of one voice turn.
type TurnMetric struct {
	SessionID  string    `json:"session_id"`
	CallStart  time.Time `json:"call_start"`
	CallEnd    time.Time `json:"call_end"`
	STTLatency float64   `json:"stt_latency_s"`
	LLMLatency float64   `json:"llm_latency_s"`
	TTSLatency float64   `json:"tts_latency_s"`
	EndToEnd   float64   `json:"e2e_s"`
	Transcript string    `json:"transcript"`
	Escalated  bool      `json:"escalated"`
}

// RecordedTurn is one exchange inside a persisted call record.
type RecordedTurn struct {
	User  string `json:"user"`
	Agent string `json:"agent"`
}

// CallRecord is the full persisted history of one call.
type CallRecord struct {
	CallID      string         `json:"call_id"`
	StartTime   time.Time      `json:"start_time"`
	EndTime     time.Time      `json:"end_time"`
	Turns       []RecordedTurn `json:"turns"`
	Escalated   bool           `json:"escalated"`
	PhoneNumber string         `json:"phone_number,omitempty"`
}

// Escalation is a query queued for the human admissions team.
type Escalation struct {
	Timestamp time.Time `json:"timestamp"`
	Query     string    `json:"query"`
	Phone     string    `json:"phone,omitempty"`
	Status    string    `json:"status"`
}

// Store appends to the three log files under the configured log
// directory. Each file has its own lock so a slow call-record write
// never blocks turn metrics.
type Store struct {
	dir    string
	logger *zap.Logger

	metricsMu     sync.Mutex
	recordsMu     sync.Mutex
	escalationsMu sync.Mutex
}

func NewStore(cfg *config.Config, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", cfg.LogDir, err)
	}
	return &Store{dir: cfg.LogDir, logger: logger}, nil
}

// AppendTurnMetric records one turn's latency breakdown.
func (s *Store) AppendTurnMetric(m TurnMetric) error {
	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()

	var metrics []TurnMetric
	path := filepath.Join(s.dir, turnMetricsFile)
	if err := readJSONArray(path, &metrics); err != nil {
		s.logger.Warn("Turn metrics file unreadable, starting fresh",
			zap.String("path", path), zap.Error(err))
		metrics = nil
	}
	metrics = append(metrics, m)
	return writeJSONArray(path, metrics)
}

// AppendCallRecord persists a finished call. Exactly one record is
// written per call, at hangup or at session expiry.
func (s *Store) AppendCallRecord(r CallRecord) error {
	s.recordsMu.Lock()
	defer s.recordsMu.Unlock()

	var records []CallRecord
	path := filepath.Join(s.dir, callRecordsFile)
	if err := readJSONArray(path, &records); err != nil {
		s.logger.Warn("Call records file unreadable, starting fresh",
			zap.String("path", path), zap.Error(err))
		records = nil
	}
	records = append(records, r)
	return writeJSONArray(path, records)
}

// AppendEscalation queues a query for human follow-up. The entry is
// written the moment a turn escalates, so the admissions team sees
// every unanswerable query even when the caller hangs up without
// leaving a number.
func (s *Store) AppendEscalation(query string) error {
	s.escalationsMu.Lock()
	defer s.escalationsMu.Unlock()

	var escalations []Escalation
	path := filepath.Join(s.dir, escalationsFile)
	if err := readJSONArray(path, &escalations); err != nil {
		s.logger.Warn("Escalations file unreadable, starting fresh",
			zap.String("path", path), zap.Error(err))
		escalations = nil
	}
	escalations = append(escalations, Escalation{
		Timestamp: time.Now(),
		Query:     query,
		Status:    "pending",
	})
	return writeJSONArray(path, escalations)
}

// AttachPhone records a callback number on the most recent pending
// escalation still missing one. A number arriving with no matching
// entry is queued on its own rather than dropped.
func (s *Store) AttachPhone(phone string) error {
	s.escalationsMu.Lock()
	defer s.escalationsMu.Unlock()

	var escalations []Escalation
	path := filepath.Join(s.dir, escalationsFile)
	if err := readJSONArray(path, &escalations); err != nil {
		s.logger.Warn("Escalations file unreadable, starting fresh",
			zap.String("path", path), zap.Error(err))
		escalations = nil
	}
	attached := false
	for i := len(escalations) - 1; i >= 0; i-- {
		if escalations[i].Status == "pending" && escalations[i].Phone == "" {
			escalations[i].Phone = phone
			attached = true
			break
		}
	}
	if !attached {
		escalations = append(escalations, Escalation{
			Timestamp: time.Now(),
			Phone:     phone,
			Status:    "pending",
		})
	}
	return writeJSONArray(path, escalations)
}

// Metrics summarizes recorded turn latencies: averages for the most
// recent call and across all calls.
type Metrics struct {
	TotalTurns  int            `json:"total_turns"`
	TotalCalls  int            `json:"total_calls"`
	LastCall    LatencySummary `json:"last_call"`
	Overall     LatencySummary `json:"overall"`
	Escalations int            `json:"escalations"`
}

// LatencySummary holds average latencies in seconds.
type LatencySummary struct {
	Turns       int     `json:"turns"`
	AvgSTT      float64 `json:"avg_stt_s"`
	AvgLLM      float64 `json:"avg_llm_s"`
	AvgTTS      float64 `json:"avg_tts_s"`
	AvgEndToEnd float64 `json:"avg_e2e_s"`
}

// Summarize aggregates the persisted metrics.
func (s *Store) Summarize() (Metrics, error) {
	s.metricsMu.Lock()
	var metrics []TurnMetric
	err := readJSONArray(filepath.Join(s.dir, turnMetricsFile), &metrics)
	s.metricsMu.Unlock()
	if err != nil {
		return Metrics{}, err
	}

	out := Metrics{TotalTurns: len(metrics)}
	if len(metrics) == 0 {
		return out, nil
	}

	sessions := make(map[string]struct{})
	for _, m := range metrics {
		sessions[m.SessionID] = struct{}{}
		if m.Escalated {
			out.Escalations++
		}
	}
	out.TotalCalls = len(sessions)
	out.Overall = summarize(metrics)

	lastSession := metrics[len(metrics)-1].SessionID
	var lastTurns []TurnMetric
	for _, m := range metrics {
		if m.SessionID == lastSession {
			lastTurns = append(lastTurns, m)
		}
	}
	out.LastCall = summarize(lastTurns)
	return out, nil
}

func summarize(turns []TurnMetric) LatencySummary {
	if len(turns) == 0 {
		return LatencySummary{}
	}
	var sum LatencySummary
	for _, t := range turns {
		sum.AvgSTT += t.STTLatency
		sum.AvgLLM += t.LLMLatency
		sum.AvgTTS += t.TTSLatency
		sum.AvgEndToEnd += t.EndToEnd
	}
	n := float64(len(turns))
	return LatencySummary{
		Turns:       len(turns),
		AvgSTT:      sum.AvgSTT / n,
		AvgLLM:      sum.AvgLLM / n,
		AvgTTS:      sum.AvgTTS / n,
		AvgEndToEnd: sum.AvgEndToEnd / n,
	}
}

func readJSONArray(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func writeJSONArray(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}
