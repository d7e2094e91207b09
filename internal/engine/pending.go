// internal/engine/pending.go
package engine

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/axpilot/axpilot/api/schemas"
)

// PendingStore keeps the original intent of a plan that was interrupted by a
// navigating step, keyed by session id. Claim removes the entry exactly once:
// a load event racing a second load event can never resume the same intent
// twice.
type PendingStore struct {
	mu      sync.Mutex
	entries map[string]schemas.PendingIntent
	logger  *zap.Logger
}

// NewPendingStore returns an empty store.
func NewPendingStore(logger *zap.Logger) *PendingStore {
	return &PendingStore{
		entries: make(map[string]schemas.PendingIntent),
		logger:  logger.Named("pending"),
	}
}

// Save records the intent for the session, overwriting any previous entry.
func (s *PendingStore) Save(sessionID string, intent schemas.ActionPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sessionID] = schemas.PendingIntent{
		TraceID: intent.TraceID,
		Intent:  intent,
		SavedAt: time.Now(),
	}
	s.logger.Debug("Saved pending intent.",
		zap.String("session_id", sessionID),
		zap.String("trace_id", intent.TraceID))
}

// Claim removes and returns the pending intent for the session. The second
// claim for the same entry reports false.
func (s *PendingStore) Claim(sessionID string) (schemas.PendingIntent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[sessionID]
	if !ok {
		return schemas.PendingIntent{}, false
	}
	delete(s.entries, sessionID)
	s.logger.Debug("Claimed pending intent.",
		zap.String("session_id", sessionID),
		zap.String("trace_id", entry.TraceID))
	return entry, true
}

// Pending reports whether an unclaimed intent exists for the session.
func (s *PendingStore) Pending(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[sessionID]
	return ok
}

// Discard drops the pending intent for the session, if any. Called when a new
// run supersedes whatever a previous navigation left behind.
func (s *PendingStore) Discard(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[sessionID]; ok {
		delete(s.entries, sessionID)
		s.logger.Debug("Discarded pending intent.", zap.String("session_id", sessionID))
	}
}
