package engine

import (
	"errors"
	"sync"

	"github.com/fraendk-lang/elastic-pulse-studio/timeline"
)

// Session holds the live project. Readers take deep copies so a frame never
// observes a half applied edit.
type Session struct {
	mu      sync.RWMutex
	project *timeline.Project
	history *timeline.History
	version uint64
}

// NewSession wraps p, or an empty project if p is nil.
func NewSession(p *timeline.Project) *Session {
	if p == nil {
		p = timeline.NewProject()
	}
	p.Sanitize()
	return &Session{project: p, history: timeline.NewHistory(0)}
}

// Snapshot returns a deep copy of the project.
func (s *Session) Snapshot() *timeline.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.project.Clone()
}

// Version increments on every change.
func (s *Session) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Update applies fn without recording history. Used for continuous
// parameter changes from controllers.
func (s *Session) Update(fn func(p *timeline.Project) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.project); err != nil {
		return err
	}
	s.version++
	return nil
}

// Edit applies fn and records the prior clip state for undo. The record is
// dropped if fn fails.
func (s *Session) Edit(fn func(p *timeline.Project) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := timeline.CloneClips(s.project.Clips)
	if err := fn(s.project); err != nil {
		return err
	}
	for i := range s.project.Clips {
		s.project.Clips[i].Sanitize()
	}
	s.history.Record(before)
	s.version++
	return nil
}

// Undo restores the previous clip state.
func (s *Session) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	clips, ok := s.history.Undo(s.project.Clips)
	if ok {
		s.project.Clips = clips
		s.version++
	}
	return ok
}

// Redo reapplies the last undone edit.
func (s *Session) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	clips, ok := s.history.Redo(s.project.Clips)
	if ok {
		s.project.Clips = clips
		s.version++
	}
	return ok
}

// Save encodes the project.
func (s *Session) Save() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.project.Clone()
	return timeline.MarshalProject(p)
}

// Load replaces the project and clears the history.
func (s *Session) Load(data []byte) error {
	p, err := timeline.UnmarshalProject(data)
	if err != nil {
		return err
	}
	s.Replace(p)
	return nil
}

// Replace swaps in p and clears the history.
func (s *Session) Replace(p *timeline.Project) {
	if p == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.project = p
	s.history = timeline.NewHistory(0)
	s.version++
}

// ErrNoClip is returned for edits naming an unknown clip.
var ErrNoClip = errors.New("no such clip")
