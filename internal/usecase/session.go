package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"helpdesk-ai/internal/domain"
	"helpdesk-ai/internal/security"
)

// Session owns one conversation's state across turns.
type Session struct {
	mu        sync.RWMutex
	ID        string                   `json:"id"`
	State     domain.ConversationState `json:"state"`
	Feedback  map[string]bool          `json:"feedback,omitempty"`
	Pending   *PendingApproval         `json:"pending,omitempty"`
	History   []domain.TurnInfo        `json:"history,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
	UpdatedAt time.Time                `json:"updated_at"`
}

// PendingApproval is a sensitive operation waiting for a human decision.
type PendingApproval struct {
	Action      string            `json:"action"`
	Args        map[string]string `json:"args,omitempty"`
	TurnID      string            `json:"turn_id"`
	RequestedAt time.Time         `json:"requested_at"`
}

// NewSession creates an empty session for userID.
func NewSession(userID string) *Session {
	now := time.Now()
	return &Session{
		ID:        generateULID(now),
		State:     domain.ConversationState{UserID: userID},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func generateULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Snapshot returns a copy of the current conversation state.
func (s *Session) Snapshot() domain.ConversationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State.Clone()
}

// AddMessage appends a user message and returns the resulting state.
func (s *Session) AddMessage(msg domain.Message) domain.ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	next := s.State.Clone()
	next.Messages = append(next.Messages, msg)
	s.State = next
	s.UpdatedAt = time.Now()
	return next.Clone()
}

// Commit replaces the state with the router's output. A turn that asks
// for approval becomes the pending approval; any other turn clears it.
func (s *Session) Commit(state domain.ConversationState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = state
	s.History = append(s.History, state.Turn)
	if state.RequiresApproval {
		s.Pending = &PendingApproval{
			Action:      state.ApprovalAction,
			Args:        state.ApprovalArgs,
			TurnID:      state.Turn.ID,
			RequestedAt: time.Now().UTC(),
		}
	} else {
		s.Pending = nil
	}
	s.UpdatedAt = time.Now()
}

// sessionMark is the part of a session a turn changes.
type sessionMark struct {
	state   domain.ConversationState
	pending *PendingApproval
	history int
	updated time.Time
}

func (s *Session) mark() sessionMark {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sessionMark{state: s.State.Clone(), pending: s.Pending, history: len(s.History), updated: s.UpdatedAt}
}

// rollback restores the session to m, discarding a turn that could not
// be persisted.
func (s *Session) rollback(m sessionMark) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = m.state
	s.Pending = m.pending
	s.History = s.History[:m.history]
	s.UpdatedAt = m.updated
}

// TakePending removes and returns the pending approval, if any.
func (s *Session) TakePending() *PendingApproval {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.Pending
	s.Pending = nil
	return p
}

// Resolve appends a reply message and audit record to the state after an
// approval decision and clears the approval fields.
func (s *Session) Resolve(reply string, rec domain.AuditRecord) domain.ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.State.Clone()
	next.Messages = append(next.Messages, domain.Message{
		Role:      domain.RoleAssistant,
		Content:   reply,
		Timestamp: time.Now().UTC(),
	})
	next.AuditLog = append(next.AuditLog, rec)
	next.RequiresApproval = false
	next.ApprovalAction = ""
	next.ApprovalArgs = nil
	s.State = next
	s.UpdatedAt = time.Now()
	return next.Clone()
}

// RecordFeedback stores a rating for turnID and appends an audit record.
func (s *Session) RecordFeedback(turnID string, positive bool, rec domain.AuditRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Feedback == nil {
		s.Feedback = make(map[string]bool)
	}
	s.Feedback[turnID] = positive
	next := s.State.Clone()
	next.AuditLog = append(next.AuditLog, rec)
	s.State = next
	s.UpdatedAt = time.Now()
}

// HasTurn reports whether turnID belongs to this session.
func (s *Session) HasTurn(turnID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.History {
		if t.ID == turnID {
			return true
		}
	}
	return false
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithCipher encrypts session files at rest.
func WithCipher(c *security.SessionCipher) SessionOption {
	return func(sm *SessionManager) { sm.cipher = c }
}

// SessionManager keeps sessions in memory and persists them as JSON
// files under dataDir.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	dataDir  string
	cipher   *security.SessionCipher
}

// NewSessionManager creates a manager rooted at dataDir. An empty dataDir
// keeps sessions in memory only.
func NewSessionManager(dataDir string, opts ...SessionOption) *SessionManager {
	sm := &SessionManager{
		sessions: make(map[string]*Session),
		dataDir:  dataDir,
	}
	for _, o := range opts {
		o(sm)
	}
	return sm
}

// validateSessionID checks if a session ID is safe for filesystem use.
func (sm *SessionManager) validateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session ID cannot be empty")
	}
	if strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("session ID contains path separators: %q", id)
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("session ID contains parent directory reference: %q", id)
	}
	if strings.Contains(id, "\x00") {
		return fmt.Errorf("session ID contains null byte: %q", id)
	}
	if clean := filepath.Clean(id); clean != id {
		return fmt.Errorf("session ID not clean path: %q vs %q", id, clean)
	}
	return nil
}

// Create registers a new session for userID.
func (sm *SessionManager) Create(userID string) *Session {
	s := NewSession(userID)
	sm.mu.Lock()
	sm.sessions[s.ID] = s
	sm.mu.Unlock()
	return s
}

// GetOrCreate returns the session with id, loading it from disk when
// needed. An empty id creates a new session.
func (sm *SessionManager) GetOrCreate(id, userID string) (*Session, error) {
	if id == "" {
		return sm.Create(userID), nil
	}
	s, err := sm.Get(id)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, err
	}
	s = NewSession(userID)
	s.ID = id
	sm.mu.Lock()
	if existing, ok := sm.sessions[id]; ok {
		s = existing
	} else {
		sm.sessions[id] = s
	}
	sm.mu.Unlock()
	return s, nil
}

// Get returns an existing session.
func (sm *SessionManager) Get(id string) (*Session, error) {
	if err := sm.validateSessionID(id); err != nil {
		return nil, domain.NewDomainError("SessionManager.Get", err, id)
	}

	sm.mu.RLock()
	s, ok := sm.sessions[id]
	sm.mu.RUnlock()
	if ok {
		return s, nil
	}

	if sm.dataDir == "" {
		return nil, domain.NewDomainError("SessionManager.Get", domain.ErrSessionNotFound, id)
	}
	s, err := sm.loadFromDisk(id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.NewDomainError("SessionManager.Get", domain.ErrSessionNotFound, id)
		}
		return nil, domain.NewDomainError("SessionManager.Get", err, id)
	}

	sm.mu.Lock()
	if existing, ok := sm.sessions[id]; ok {
		s = existing
	} else {
		sm.sessions[id] = s
	}
	sm.mu.Unlock()
	return s, nil
}

// Save writes the session to disk. It is a no-op without a data dir.
func (sm *SessionManager) Save(id string) error {
	if err := sm.validateSessionID(id); err != nil {
		return domain.NewDomainError("SessionManager.Save", err, id)
	}

	sm.mu.RLock()
	s, ok := sm.sessions[id]
	sm.mu.RUnlock()
	if !ok {
		return domain.NewDomainError("SessionManager.Save", domain.ErrSessionNotFound, id)
	}
	if sm.dataDir == "" {
		return nil
	}

	if err := os.MkdirAll(sm.dataDir, 0700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	s.mu.RLock()
	data, err := json.MarshalIndent(s, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if sm.cipher != nil {
		if data, err = sm.cipher.Seal(data); err != nil {
			return fmt.Errorf("encrypt session: %w", err)
		}
	}

	tmp := sm.path(id) + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp, sm.path(id)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Delete removes a session from memory and disk.
func (sm *SessionManager) Delete(id string) error {
	if err := sm.validateSessionID(id); err != nil {
		return domain.NewDomainError("SessionManager.Delete", err, id)
	}

	sm.mu.Lock()
	_, inMem := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()

	if sm.dataDir == "" {
		if !inMem {
			return domain.NewDomainError("SessionManager.Delete", domain.ErrSessionNotFound, id)
		}
		return nil
	}
	err := os.Remove(sm.path(id))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrNotExist):
		if inMem {
			return nil
		}
		return domain.NewDomainError("SessionManager.Delete", domain.ErrSessionNotFound, id)
	}
	return fmt.Errorf("delete session: %w", err)
}

// ListSessions returns the ids of sessions in memory and on disk, sorted.
func (sm *SessionManager) ListSessions() []string {
	seen := make(map[string]bool)
	sm.mu.RLock()
	for id := range sm.sessions {
		seen[id] = true
	}
	sm.mu.RUnlock()

	if sm.dataDir != "" {
		entries, _ := os.ReadDir(sm.dataDir)
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			seen[strings.TrimSuffix(e.Name(), ".json")] = true
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ReapStaleSessions drops sessions idle for longer than maxAge, in memory
// and on disk. It returns how many were removed.
func (sm *SessionManager) ReapStaleSessions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	// Phase 1: identify stale sessions under read lock.
	sm.mu.RLock()
	var staleIDs []string
	for id, s := range sm.sessions {
		s.mu.RLock()
		stale := s.UpdatedAt.Before(cutoff)
		s.mu.RUnlock()
		if stale {
			staleIDs = append(staleIDs, id)
		}
	}
	sm.mu.RUnlock()

	// Phase 2: delete under write lock.
	sm.mu.Lock()
	for _, id := range staleIDs {
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()

	removed := len(staleIDs)
	if sm.dataDir == "" {
		return removed
	}

	// Phase 3: files of stale sessions plus files nobody loaded since the
	// cutoff.
	for _, id := range staleIDs {
		os.Remove(sm.path(id))
	}
	entries, _ := os.ReadDir(sm.dataDir)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		sm.mu.RLock()
		_, live := sm.sessions[id]
		sm.mu.RUnlock()
		if live {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if os.Remove(filepath.Join(sm.dataDir, e.Name())) == nil {
			removed++
		}
	}
	return removed
}

func (sm *SessionManager) path(id string) string {
	return filepath.Join(sm.dataDir, id+".json")
}

func (sm *SessionManager) loadFromDisk(id string) (*Session, error) {
	data, err := os.ReadFile(sm.path(id))
	if err != nil {
		return nil, err
	}
	if sm.cipher != nil {
		if data, err = sm.cipher.Open(data); err != nil {
			return nil, fmt.Errorf("decrypt session: %w", err)
		}
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if s.ID == "" {
		s.ID = id
	}
	return &s, nil
}
