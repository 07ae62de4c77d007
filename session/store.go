package session

import (
	"context"
	"sync"
	"time"

	"admissions-agent/config"
	apperrors "admissions-agent/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store holds all live call sessions. All access goes through its
// methods; callers receive copies, never pointers into the map.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*CallSession
	cfg      *config.Config
	logger   *zap.Logger
}

func NewStore(cfg *config.Config, logger *zap.Logger) *Store {
	return &Store{
		sessions: make(map[string]*CallSession),
		cfg:      cfg,
		logger:   logger,
	}
}

// Create starts a new call session and returns its ID.
func (s *Store) Create() *CallSession {
	now := time.Now()
	sess := &CallSession{
		ID:         uuid.New().String(),
		StartedAt:  now,
		LastActive: now,
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.logger.Info("Call session started", zap.String("session_id", sess.ID))
	return s.snapshot(sess)
}

// Get returns a copy of the session, or ErrInvalidSession.
func (s *Store) Get(id string) (*CallSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperrors.WrapError(apperrors.ErrInvalidSession, id)
	}
	return s.snapshot(sess), nil
}

// AppendTurn records a completed exchange and refreshes the activity
// clock. escalated marks the session as handed off, which is sticky
// for the rest of the call.
func (s *Store) AppendTurn(id, caller, reply string, escalated bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return apperrors.WrapError(apperrors.ErrInvalidSession, id)
	}
	sess.Turns = append(sess.Turns, Turn{Caller: caller, Agent: reply, At: time.Now()})
	sess.LastActive = time.Now()
	if escalated {
		sess.Escalated = true
	}
	return nil
}

// SetPhone records the callback number captured after an escalation.
func (s *Store) SetPhone(id, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return apperrors.WrapError(apperrors.ErrInvalidSession, id)
	}
	sess.Phone = phone
	sess.LastActive = time.Now()
	return nil
}

// Remove ends a call and returns its final state for logging, or
// ErrInvalidSession if the call is unknown.
func (s *Store) Remove(id string) (*CallSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperrors.WrapError(apperrors.ErrInvalidSession, id)
	}
	delete(s.sessions, id)
	s.logger.Info("Call session ended",
		zap.String("session_id", id),
		zap.Int("turns", len(sess.Turns)),
		zap.Bool("escalated", sess.Escalated))
	return s.snapshot(sess), nil
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Expire drops sessions idle longer than maxAge and returns the
// removed sessions so abandoned calls can still be written to the call
// log.
func (s *Store) Expire(maxAge time.Duration) []*CallSession {
	cutoff := time.Now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []*CallSession
	for id, sess := range s.sessions {
		if sess.LastActive.Before(cutoff) {
			expired = append(expired, s.snapshot(sess))
			delete(s.sessions, id)
		}
	}
	if len(expired) > 0 {
		s.logger.Info("Expired stale call sessions", zap.Int("count", len(expired)))
	}
	return expired
}

// RunExpiry periodically expires stale sessions until ctx is done.
// onExpire, if non-nil, receives each expired session.
func (s *Store) RunExpiry(ctx context.Context, onExpire func(*CallSession)) {
	interval := s.cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Session expiry loop started",
		zap.Duration("interval", interval),
		zap.Duration("max_age", s.cfg.SessionRetentionAge))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Session expiry loop stopped")
			return
		case <-ticker.C:
			for _, sess := range s.Expire(s.cfg.SessionRetentionAge) {
				if onExpire != nil {
					onExpire(sess)
				}
			}
		}
	}
}

// snapshot copies a session so callers cannot mutate store state.
// Caller must hold at least a read lock.
func (s *Store) snapshot(sess *CallSession) *CallSession {
	cp := *sess
	cp.Turns = make([]Turn, len(sess.Turns))
	copy(cp.Turns, sess.Turns)
	return &cp
}
