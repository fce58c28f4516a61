package domain

import "time"

// Phase is a top-level stage of the two-phase workflow.
type Phase string

const (
	PhaseIdle       Phase = "IDLE"
	PhaseStoring    Phase = "STORING"
	PhaseStored     Phase = "STORED"
	PhaseExtracting Phase = "EXTRACTING"
	PhaseDone       Phase = "DONE"
	PhaseFailed     Phase = "FAILED"
)

// ItemStatus is the terminal per-item outcome within a phase.
type ItemStatus string

const (
	ItemPending       ItemStatus = "pending"
	ItemStored        ItemStatus = "stored"
	ItemSkipped       ItemStatus = "skipped-duplicate"
	ItemNeedsPassword ItemStatus = "needs-password"
	ItemFailed        ItemStatus = "failed"
	ItemParsed        ItemStatus = "parsed"
	ItemParsedEmpty   ItemStatus = "parsed-empty"
	ItemUnreadable    ItemStatus = "unreadable"
)

// Terminal reports whether the status is a final per-item state.
func (s ItemStatus) Terminal() bool {
	return s != ItemPending && s != ""
}

// ItemResult is the recorded outcome for one selected attachment or document.
type ItemResult struct {
	Status ItemStatus `json:"status"`

	// Fatal marks a failed item whose error was a fatal collaborator
	// condition rather than exhausted retries. Only fatal failures escalate
	// to the session.
	Fatal bool `json:"fatal,omitempty"`

	Filename        string     `json:"filename"`
	GroupKey        string     `json:"group_key"`
	DestinationPath string     `json:"destination_path,omitempty"`
	Transactions    int        `json:"transactions,omitempty"`
	PasswordHint    string     `json:"password_hint,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// WorkflowSession is the explicit, externally persisted state of one run.
// It is created at phase start, saved after each item completes so an
// interrupted run can resume from the first unconfirmed item, and discarded
// on phase completion.
type WorkflowSession struct {
	ID    string `json:"id"`
	Phase Phase  `json:"phase"`

	// FailedPhase remembers which phase was running when the session failed,
	// so a resumed run re-enters the right one.
	FailedPhase Phase `json:"failed_phase,omitempty"`

	// Selected lists attachment fingerprints in selection order.
	Selected []string              `json:"selected"`
	Items    map[string]ItemResult `json:"items"`

	// Hints holds extra password candidates supplied per group for retry
	// passes.
	Hints map[string][]string `json:"hints,omitempty"`

	// Cursor is the count of leading selected items confirmed complete.
	// A resumed run starts at Selected[Cursor].
	Cursor int `json:"cursor"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SetItem records the outcome for a fingerprint and advances the cursor over
// the leading run of confirmed items.
func (s *WorkflowSession) SetItem(fingerprint string, r ItemResult) {
	if s.Items == nil {
		s.Items = make(map[string]ItemResult)
	}
	s.Items[fingerprint] = r
	s.advanceCursor()
}

func (s *WorkflowSession) advanceCursor() {
	for s.Cursor < len(s.Selected) {
		r, ok := s.Items[s.Selected[s.Cursor]]
		if !ok || !r.Confirmed() {
			return
		}
		s.Cursor++
	}
}

// Confirmed means the item finished in a state that needs no further work.
// Failed and needs-password items are terminal for the run but unconfirmed,
// so a resumed session retries them.
func (r ItemResult) Confirmed() bool {
	switch r.Status {
	case ItemStored, ItemSkipped, ItemParsed, ItemParsedEmpty, ItemUnreadable:
		return true
	}
	return false
}

// Complete reports whether every selected item reached a terminal state.
func (s *WorkflowSession) Complete() bool {
	for _, fp := range s.Selected {
		r, ok := s.Items[fp]
		if !ok || !r.Status.Terminal() {
			return false
		}
	}
	return true
}

// HintsFor returns the extra password candidates supplied for a group.
func (s *WorkflowSession) HintsFor(groupKey string) []string {
	if s.Hints == nil {
		return nil
	}
	return s.Hints[groupKey]
}

// AddHint appends an extra password candidate for a group.
func (s *WorkflowSession) AddHint(groupKey, password string) {
	if password == "" {
		return
	}
	if s.Hints == nil {
		s.Hints = make(map[string][]string)
	}
	s.Hints[groupKey] = append(s.Hints[groupKey], password)
}
