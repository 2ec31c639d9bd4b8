package core

// session.go tracks what a browser session is looking at. The transitions
// mirror the page: a file is loaded, a conversion runs, then either a result
// is ready or an error is shown. Removing the file returns to Empty.

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// SessionState is the current step of a session.
type SessionState string

const (
	StateEmpty      SessionState = "empty"
	StateLoaded     SessionState = "loaded"
	StateConverting SessionState = "converting"
	StateReady      SessionState = "ready"
	StateErrored    SessionState = "errored"
)

// SessionEvent drives a transition.
type SessionEvent string

const (
	EventUpload       SessionEvent = "upload"
	EventConvertStart SessionEvent = "convert_start"
	EventConvertDone  SessionEvent = "convert_done"
	EventConvertFail  SessionEvent = "convert_fail"
	EventRemove       SessionEvent = "remove"
)

// ErrInvalidTransition is returned for an event the current state does not accept.
var ErrInvalidTransition = errors.New("invalid session transition")

// transitions lists the accepted events per state.
var transitions = map[SessionState]map[SessionEvent]SessionState{
	StateEmpty: {
		EventUpload: StateLoaded,
		EventRemove: StateEmpty,
	},
	StateLoaded: {
		EventUpload:       StateLoaded,
		EventConvertStart: StateConverting,
		EventRemove:       StateEmpty,
	},
	StateConverting: {
		EventConvertDone: StateReady,
		EventConvertFail: StateErrored,
		EventRemove:      StateEmpty,
	},
	StateReady: {
		EventUpload:       StateLoaded,
		EventConvertStart: StateConverting,
		EventRemove:       StateEmpty,
	},
	StateErrored: {
		EventUpload:       StateLoaded,
		EventConvertStart: StateConverting,
		EventRemove:       StateEmpty,
	},
}

// Session is a snapshot of one session.
type Session struct {
	ID        string       `json:"id"`
	State     SessionState `json:"state"`
	UploadID  string       `json:"uploadId,omitempty"`
	PageIndex int          `json:"pageIndex"`
	ResultID  string       `json:"resultId,omitempty"`
	Error     string       `json:"error,omitempty"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// SessionUpdate carries the data attached to an event.
type SessionUpdate struct {
	UploadID  string
	PageIndex int
	ResultID  string
	Error     string
}

// SessionTracker holds per-session state in memory.
type SessionTracker struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionTracker returns a tracker that forgets sessions idle for ttl.
func NewSessionTracker(ttl time.Duration) *SessionTracker {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionTracker{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session, or an Empty session when none is known.
func (t *SessionTracker) Get(id string) Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.sessions[id]; ok {
		return *s
	}
	return Session{ID: id, State: StateEmpty}
}

// Apply performs ev on session id.
func (t *SessionTracker) Apply(id string, ev SessionEvent, u SessionUpdate) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[id]
	if !ok {
		s = &Session{ID: id, State: StateEmpty}
	}

	next, ok := transitions[s.State][ev]
	if !ok {
		return *s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, s.State)
	}

	switch ev {
	case EventUpload:
		s.UploadID, s.PageIndex, s.ResultID, s.Error = u.UploadID, 0, "", ""
	case EventConvertStart:
		s.PageIndex, s.ResultID, s.Error = u.PageIndex, "", ""
	case EventConvertDone:
		s.ResultID = u.ResultID
	case EventConvertFail:
		s.Error = u.Error
	case EventRemove:
		s.UploadID, s.PageIndex, s.ResultID, s.Error = "", 0, "", ""
	}
	s.State = next
	s.UpdatedAt = t.now()

	if next == StateEmpty {
		delete(t.sessions, id)
	} else {
		t.sessions[id] = s
	}
	return *s, nil
}

// ForgetUpload resets every session holding uploadID to Empty. The sweeper
// calls it when an upload expires.
func (t *SessionTracker) ForgetUpload(uploadID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, s := range t.sessions {
		if s.UploadID == uploadID {
			delete(t.sessions, id)
		}
	}
}

// Prune forgets sessions idle longer than the TTL.
func (t *SessionTracker) Prune() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	cutoff := t.now().Add(-t.ttl)
	for id, s := range t.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(t.sessions, id)
			n++
		}
	}
	return n
}
