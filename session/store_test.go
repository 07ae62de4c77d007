package session

import (
	"testing"
	"time"

	"admissions-agent/config"
	apperrors "admissions-agent/errors"

	"go.uber.org/zap"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	cfg := &config.Config{
		SessionRetentionAge: 2 * time.Hour,
		CleanupInterval:     time.Hour,
	}
	return NewStore(cfg, logger)
}

func TestStoreLifecycle(t *testing.T) {
	store := testStore(t)

	sess := store.Create()
	if sess.ID == "" {
		t.Fatal("Create() returned a session with no ID")
	}

	got, err := store.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != sess.ID {
		t.Errorf("Get().ID = %s, want %s", got.ID, sess.ID)
	}

	if err := store.AppendTurn(sess.ID, "what is the fee", "The fee is in IST records.", false); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	got, err = store.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get() after append error = %v", err)
	}
	if len(got.Turns) != 1 {
		t.Fatalf("Get() returned %d turns, want 1", len(got.Turns))
	}
	if got.Escalated {
		t.Error("session marked escalated without an escalated turn")
	}

	final, err := store.Remove(sess.ID)
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if len(final.Turns) != 1 {
		t.Errorf("Remove() returned %d turns, want 1", len(final.Turns))
	}

	if _, err := store.Get(sess.ID); !apperrors.IsInvalidSession(err) {
		t.Errorf("Get() after Remove() error = %v, want ErrInvalidSession", err)
	}
}

func TestUnknownSessionErrors(t *testing.T) {
	store := testStore(t)

	if _, err := store.Get("nonexistent"); !apperrors.IsInvalidSession(err) {
		t.Errorf("Get() error = %v, want ErrInvalidSession", err)
	}
	if err := store.AppendTurn("nonexistent", "a", "b", false); !apperrors.IsInvalidSession(err) {
		t.Errorf("AppendTurn() error = %v, want ErrInvalidSession", err)
	}
	if err := store.SetPhone("nonexistent", "03001234567"); !apperrors.IsInvalidSession(err) {
		t.Errorf("SetPhone() error = %v, want ErrInvalidSession", err)
	}
	if _, err := store.Remove("nonexistent"); !apperrors.IsInvalidSession(err) {
		t.Errorf("Remove() error = %v, want ErrInvalidSession", err)
	}
}

func TestEscalationIsSticky(t *testing.T) {
	store := testStore(t)
	sess := store.Create()

	if err := store.AppendTurn(sess.ID, "q1", "We will forward this query to our admissions team.", true); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	if err := store.AppendTurn(sess.ID, "q2", "A direct answer.", false); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}

	got, err := store.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.Escalated {
		t.Error("escalation flag cleared by a later direct turn")
	}
}

func TestLastReplyEscalated(t *testing.T) {
	sess := &CallSession{}
	if sess.LastReplyEscalated() {
		t.Error("LastReplyEscalated() = true on a fresh call")
	}

	sess.Turns = append(sess.Turns, Turn{Caller: "q", Agent: "We will forward this query to our admissions team. Please tell me your phone number so we can call you back."})
	if !sess.LastReplyEscalated() {
		t.Error("LastReplyEscalated() = false after an escalation reply")
	}

	sess.Turns = append(sess.Turns, Turn{Caller: "q2", Agent: "The fee is 150000 per semester."})
	if sess.LastReplyEscalated() {
		t.Error("LastReplyEscalated() = true after a direct reply")
	}
}

func TestExpire(t *testing.T) {
	store := testStore(t)
	stale := store.Create()
	fresh := store.Create()

	store.mu.Lock()
	store.sessions[stale.ID].LastActive = time.Now().Add(-3 * time.Hour)
	store.mu.Unlock()

	expired := store.Expire(2 * time.Hour)
	if len(expired) != 1 || expired[0].ID != stale.ID {
		t.Fatalf("Expire() removed %d sessions, want the stale one", len(expired))
	}
	if _, err := store.Get(fresh.ID); err != nil {
		t.Errorf("fresh session expired: %v", err)
	}
}
