// Package conversation keeps per-user dialogue state between inbound events.
// Nothing here is persisted; a restart drops in-flight registrations.
package conversation

import (
	"sync"

	"github.com/learnstations/stationbot/internal/messaging"
)

// Step names the input a user is expected to send next.
type Step int

const (
	StepNone Step = iota
	StepPasscode
	StepName
	StepEmail
)

func (s Step) String() string {
	switch s {
	case StepPasscode:
		return "passcode"
	case StepName:
		return "name"
	case StepEmail:
		return "email"
	default:
		return "none"
	}
}

// Continuation is the pending step plus input gathered so far.
type Continuation struct {
	Step Step
	// Name is captured on StepEmail.
	Name string
}

type session struct {
	pending      *Continuation
	lastPrompt   messaging.MessageRef
	mentorAnchor messaging.MessageRef
}

func (s *session) empty() bool {
	return s.pending == nil && s.lastPrompt.IsZero() && s.mentorAnchor.IsZero()
}

// Store maps user ids to their conversation state. Every method is atomic
// for its user; different users never contend beyond the map lock.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*session
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[int64]*session)}
}

func (s *Store) get(userID int64) *session {
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &session{}
		s.sessions[userID] = sess
	}
	return sess
}

func (s *Store) gc(userID int64) {
	if sess, ok := s.sessions[userID]; ok && sess.empty() {
		delete(s.sessions, userID)
	}
}

// SetPending replaces the user's continuation. The last write wins.
func (s *Store) SetPending(userID int64, c Continuation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(userID).pending = &c
}

// Pending returns a copy of the user's continuation.
func (s *Store) Pending(userID int64) (Continuation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok || sess.pending == nil {
		return Continuation{}, false
	}
	return *sess.pending, true
}

// ClearPending drops the continuation.
func (s *Store) ClearPending(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		sess.pending = nil
		s.gc(userID)
	}
}

// SetLastPrompt records the newest prompt that should be cleaned up later.
func (s *Store) SetLastPrompt(userID int64, ref messaging.MessageRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(userID).lastPrompt = ref
}

// TakeLastPrompt returns and forgets the last prompt.
func (s *Store) TakeLastPrompt(userID int64) (messaging.MessageRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok || sess.lastPrompt.IsZero() {
		return messaging.MessageRef{}, false
	}
	ref := sess.lastPrompt
	sess.lastPrompt = messaging.MessageRef{}
	s.gc(userID)
	return ref, true
}

// ClearLastPrompt forgets the last prompt without returning it.
func (s *Store) ClearLastPrompt(userID int64) {
	_, _ = s.TakeLastPrompt(userID)
}

// SetMentorAnchor records the passcode prompt of a mentor registration.
func (s *Store) SetMentorAnchor(userID int64, ref messaging.MessageRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(userID).mentorAnchor = ref
}

// TakeMentorAnchor returns and forgets the mentor anchor. The last prompt is untouched.
func (s *Store) TakeMentorAnchor(userID int64) (messaging.MessageRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok || sess.mentorAnchor.IsZero() {
		return messaging.MessageRef{}, false
	}
	ref := sess.mentorAnchor
	sess.mentorAnchor = messaging.MessageRef{}
	s.gc(userID)
	return ref, true
}

// Reset forgets everything about the user.
func (s *Store) Reset(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// InProgress reports whether a continuation is pending for the user.
func (s *Store) InProgress(userID int64) bool {
	_, ok := s.Pending(userID)
	return ok
}

// Len is the number of users with any state.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
