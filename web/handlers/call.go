package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"admissions-agent/agent"
	"admissions-agent/calllog"
	"admissions-agent/config"
	apperrors "admissions-agent/errors"
	"admissions-agent/knowledge"
	"admissions-agent/llmclient"
	"admissions-agent/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CallHandler serves the voice call endpoints: call lifecycle, voice
// turns, metrics and synthesized audio playback.
type CallHandler struct {
	cfg       *config.Config
	agent     *agent.Agent
	sessions  *session.Store
	client    *llmclient.Client
	logs      *calllog.Store
	retriever *knowledge.Retriever
	logger    *zap.Logger
	audioDir  string
}

func NewCallHandler(cfg *config.Config, ag *agent.Agent, sessions *session.Store, client *llmclient.Client, logs *calllog.Store, retriever *knowledge.Retriever, logger *zap.Logger) (*CallHandler, error) {
	audioDir := filepath.Join(cfg.LogDir, "audio")
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audio directory %s: %w", audioDir, err)
	}
	return &CallHandler{
		cfg:       cfg,
		agent:     ag,
		sessions:  sessions,
		client:    client,
		logs:      logs,
		retriever: retriever,
		logger:    logger,
		audioDir:  audioDir,
	}, nil
}

// Health reports service liveness.
func (h *CallHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Debug reports the loaded corpus and session state for operators.
func (h *CallHandler) Debug(c *gin.Context) {
	kb := h.retriever.KnowledgeBase()
	docs := 0
	if kb != nil {
		docs = kb.Len()
	}
	c.JSON(http.StatusOK, gin.H{
		"documents":     docs,
		"live_sessions": h.sessions.Len(),
		"data_dir":      knowledge.DataDirStatus(h.cfg),
	})
}

// StartCall opens a new call session and returns the spoken greeting.
func (h *CallHandler) StartCall(c *gin.Context) {
	sess := h.sessions.Create()

	resp := gin.H{
		"session_id": sess.ID,
		"greeting":   agent.GreetingText,
	}
	if url, err := h.synthesizeToFile(c, agent.GreetingText); err != nil {
		h.logger.Warn("Greeting synthesis failed", zap.Error(err), zap.String("session_id", sess.ID))
	} else {
		resp["audio_url"] = url
	}
	c.JSON(http.StatusOK, resp)
}

// Query handles one voice turn: transcribe (or accept text), run the
// answer pipeline, synthesize the reply and record latencies.
func (h *CallHandler) Query(c *gin.Context) {
	turnStart := time.Now()

	sessionID := c.PostForm("session_id")
	if sessionID == "" {
		respondWithClientError(c, http.StatusBadRequest, "session_id is required")
		return
	}
	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		respondWithClientError(c, http.StatusBadRequest, "this call has expired, please start a new call")
		return
	}

	utterance, sttLatency, err := h.resolveUtterance(c)
	if err != nil {
		if apperrors.IsTranscription(err) {
			respondWithError(c, http.StatusBadGateway, err, "could not transcribe the audio", h.logger,
				zap.String("session_id", sessionID))
			return
		}
		respondWithClientError(c, http.StatusBadRequest, err.Error())
		return
	}

	if !session.IsMeaningful(utterance) {
		h.respondTurn(c, sess.ID, utterance, agent.RepeatPrompt, false, false, false, turnStart, sttLatency, 0, sess.StartedAt)
		return
	}

	if session.WantsToEndCall(utterance) {
		h.endCall(c, sess.ID, utterance, turnStart, sttLatency)
		return
	}

	// A phone number right after an escalation is the callback number,
	// not a question.
	if sess.LastReplyEscalated() && session.LooksLikePhoneNumber(utterance) {
		phone := session.NormalizePhone(utterance)
		if err := h.sessions.SetPhone(sess.ID, phone); err != nil {
			respondWithClientError(c, http.StatusBadRequest, "this call has expired, please start a new call")
			return
		}
		if err := h.logs.AttachPhone(phone); err != nil {
			h.logger.Error("Failed to attach callback number", zap.Error(err), zap.String("session_id", sess.ID))
		}
		h.respondTurn(c, sess.ID, utterance, agent.PhoneAckText, false, false, true, turnStart, sttLatency, 0, sess.StartedAt)
		return
	}

	llmStart := time.Now()
	reply, err := h.agent.Respond(c.Request.Context(), utterance, sess.LastExchange())
	llmLatency := time.Since(llmStart).Seconds()
	if err != nil {
		if apperrors.IsGeneration(err) {
			h.logger.Warn("Reply generation failed, turn escalated", zap.Error(err), zap.String("session_id", sess.ID))
		} else {
			h.logger.Error("Turn pipeline degraded", zap.Error(err), zap.String("session_id", sess.ID))
		}
	}

	if reply.Escalated {
		if err := h.logs.AppendEscalation(utterance); err != nil {
			h.logger.Error("Failed to record escalation", zap.Error(err), zap.String("session_id", sess.ID))
		}
	}

	h.respondTurn(c, sess.ID, utterance, reply.Text, reply.Escalated, false, true, turnStart, sttLatency, llmLatency, sess.StartedAt)
}

// Metrics reports latency aggregates over all recorded turns.
func (h *CallHandler) Metrics(c *gin.Context) {
	metrics, err := h.logs.Summarize()
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, err, "failed to read metrics", h.logger)
		return
	}
	c.JSON(http.StatusOK, metrics)
}

// Audio serves a synthesized reply file.
func (h *CallHandler) Audio(c *gin.Context) {
	name := filepath.Base(c.Param("file"))
	if name == "." || name == "/" || !strings.HasSuffix(name, ".wav") {
		respondWithClientError(c, http.StatusBadRequest, "invalid audio file name")
		return
	}
	c.File(filepath.Join(h.audioDir, name))
}

// resolveUtterance reads the caller's turn from an uploaded audio file
// or a plain text field, returning the transcript and STT latency.
func (h *CallHandler) resolveUtterance(c *gin.Context) (string, float64, error) {
	if text := strings.TrimSpace(c.PostForm("text")); text != "" {
		return text, 0, nil
	}

	file, header, err := c.Request.FormFile("audio")
	if err != nil {
		return "", 0, apperrors.WrapError(apperrors.ErrInvalidInput, "either an audio file or a text field is required")
	}
	defer file.Close()

	if header.Size > h.cfg.MaxAudioUploadBytes {
		return "", 0, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "audio upload exceeds %d bytes", h.cfg.MaxAudioUploadBytes)
	}
	audio, err := io.ReadAll(io.LimitReader(file, h.cfg.MaxAudioUploadBytes+1))
	if err != nil {
		return "", 0, fmt.Errorf("failed to read audio upload: %w", err)
	}
	if int64(len(audio)) > h.cfg.MaxAudioUploadBytes {
		return "", 0, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "audio upload exceeds %d bytes", h.cfg.MaxAudioUploadBytes)
	}

	sttStart := time.Now()
	transcript, err := h.client.Transcribe(c.Request.Context(), header.Filename, audio, "en")
	if err != nil {
		return "", 0, err
	}
	return transcript, time.Since(sttStart).Seconds(), nil
}

// respondTurn records the turn, synthesizes the reply and writes the
// JSON response with latency metrics. record is false for turns that
// should not enter the history, like fillers and the final goodbye.
func (h *CallHandler) respondTurn(c *gin.Context, sessionID, utterance, replyText string, escalated, endCall, record bool, turnStart time.Time, sttLatency, llmLatency float64, callStart time.Time) {
	if record {
		if err := h.sessions.AppendTurn(sessionID, utterance, replyText, escalated); err != nil {
			h.logger.Warn("Failed to append turn", zap.Error(err), zap.String("session_id", sessionID))
		}
	}

	ttsStart := time.Now()
	audioURL, synthErr := h.synthesizeToFile(c, replyText)
	ttsLatency := time.Since(ttsStart).Seconds()
	if synthErr != nil {
		h.logger.Warn("Reply synthesis failed, returning text only",
			zap.Error(synthErr), zap.String("session_id", sessionID))
		ttsLatency = 0
	}

	e2e := time.Since(turnStart).Seconds()
	if err := h.logs.AppendTurnMetric(calllog.TurnMetric{
		SessionID:  sessionID,
		CallStart:  callStart,
		CallEnd:    time.Now(),
		STTLatency: sttLatency,
		LLMLatency: llmLatency,
		TTSLatency: ttsLatency,
		EndToEnd:   e2e,
		Transcript: utterance,
		Escalated:  escalated,
	}); err != nil {
		h.logger.Error("Failed to record turn metrics", zap.Error(err), zap.String("session_id", sessionID))
	}

	h.logger.Info("Turn completed",
		zap.String("session_id", sessionID),
		zap.Float64("stt_s", sttLatency),
		zap.Float64("llm_s", llmLatency),
		zap.Float64("tts_s", ttsLatency),
		zap.Float64("e2e_s", e2e),
		zap.Bool("escalated", escalated))

	resp := gin.H{
		"transcript": utterance,
		"reply":      replyText,
		"escalated":  escalated,
		"end_call":   endCall,
		"latency": gin.H{
			"stt_s": sttLatency,
			"llm_s": llmLatency,
			"tts_s": ttsLatency,
			"e2e_s": e2e,
		},
	}
	if audioURL != "" {
		resp["reply_url"] = audioURL
	}
	c.JSON(http.StatusOK, resp)
}

// endCall finalizes a session: persists exactly one call record, then
// says goodbye.
func (h *CallHandler) endCall(c *gin.Context, sessionID, utterance string, turnStart time.Time, sttLatency float64) {
	sess, err := h.sessions.Remove(sessionID)
	if err != nil {
		respondWithClientError(c, http.StatusBadRequest, "this call has expired, please start a new call")
		return
	}

	if err := h.logs.AppendCallRecord(buildCallRecord(sess)); err != nil {
		h.logger.Error("Failed to persist call record", zap.Error(err), zap.String("session_id", sessionID))
	}

	h.respondTurn(c, sessionID, utterance, agent.GoodbyeText, false, true, false, turnStart, sttLatency, 0, sess.StartedAt)
}

// PersistExpired writes a call record for a session dropped by the
// expiry loop, so abandoned calls still reach the log.
func (h *CallHandler) PersistExpired(sess *session.CallSession) {
	if len(sess.Turns) == 0 {
		return
	}
	if err := h.logs.AppendCallRecord(buildCallRecord(sess)); err != nil {
		h.logger.Error("Failed to persist expired call record",
			zap.Error(err), zap.String("session_id", sess.ID))
	}
}

func buildCallRecord(sess *session.CallSession) calllog.CallRecord {
	turns := make([]calllog.RecordedTurn, 0, len(sess.Turns))
	for _, t := range sess.Turns {
		turns = append(turns, calllog.RecordedTurn{User: t.Caller, Agent: t.Agent})
	}
	return calllog.CallRecord{
		CallID:      sess.ID,
		StartTime:   sess.StartedAt,
		EndTime:     time.Now(),
		Turns:       turns,
		Escalated:   sess.Escalated,
		PhoneNumber: sess.Phone,
	}
}

// synthesizeToFile renders speech to a servable wav file and returns
// its URL path.
func (h *CallHandler) synthesizeToFile(c *gin.Context, text string) (string, error) {
	audio, err := h.client.Synthesize(c.Request.Context(), text)
	if err != nil {
		return "", err
	}
	name := uuid.New().String() + ".wav"
	if err := os.WriteFile(filepath.Join(h.audioDir, name), audio, 0o644); err != nil {
		return "", fmt.Errorf("failed to write audio file: %w", err)
	}
	return "/audio/" + name, nil
}
