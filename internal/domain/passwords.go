package domain

import "sync"

// PasswordSet is the ordered candidate password pool for one group.
// A confirmed password is promoted to the front so later documents in the
// same group try it first. Safe for concurrent use.
type PasswordSet struct {
	mu         sync.Mutex
	candidates []string
}

// NewPasswordSet builds a set from the given candidates, keeping order and
// dropping empty strings and duplicates.
func NewPasswordSet(candidates ...string) *PasswordSet {
	s := &PasswordSet{}
	s.Add(candidates...)
	return s
}

// Add appends candidates not already present, preserving order.
func (s *PasswordSet) Add(candidates ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range candidates {
		if c == "" || s.index(c) >= 0 {
			continue
		}
		s.candidates = append(s.candidates, c)
	}
}

// Candidates returns a snapshot of the candidates in trial order.
func (s *PasswordSet) Candidates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.candidates))
	copy(out, s.candidates)
	return out
}

// Promote moves a confirmed-working password to the front of the set.
func (s *PasswordSet) Promote(password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(password)
	if i <= 0 {
		return
	}
	s.candidates = append(s.candidates[:i], s.candidates[i+1:]...)
	s.candidates = append([]string{password}, s.candidates...)
}

// Len reports the number of candidates.
func (s *PasswordSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.candidates)
}

func (s *PasswordSet) index(password string) int {
	for i, c := range s.candidates {
		if c == password {
			return i
		}
	}
	return -1
}
