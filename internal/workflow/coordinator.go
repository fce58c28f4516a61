package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/okozlov/mailvault/internal/domain"
	"github.com/okozlov/mailvault/internal/ledger"
	"github.com/okozlov/mailvault/internal/pdfdoc"
	"github.com/okozlov/mailvault/internal/txparse"
)

// Deps are the collaborators behind the coordinator.
type Deps struct {
	Mail     MailService
	Storage  StorageService
	Reports  ReportService
	Sessions SessionStore
	Ledger   *ledger.Ledger
	Resolver DocumentResolver
	Planner  DestinationPlanner
	Parser   *txparse.Parser
	Log      zerolog.Logger
}

// Options tune a coordinator run.
type Options struct {
	Groups    []domain.Group
	Passwords map[string]*domain.PasswordSet

	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration

	// CallTimeout bounds each collaborator call. A timed-out call counts as
	// transient and is retried.
	CallTimeout time.Duration
}

// Coordinator drives both phases. It owns no business rules itself; it
// sequences collaborators, serializes per-item bookkeeping and persists the
// session after every item so a crash loses at most in-flight work.
type Coordinator struct {
	mail     MailService
	storage  StorageService
	reports  ReportService
	sessions SessionStore
	ledger   *ledger.Ledger
	resolver DocumentResolver
	planner  DestinationPlanner
	parser   *txparse.Parser
	log      zerolog.Logger

	// extract is swappable for tests.
	extract func(doc []byte) ([]string, error)

	opts Options

	// mu guards session mutation and saves during a run.
	mu sync.Mutex
}

// New wires a coordinator. Zero option fields get working defaults.
func New(deps Deps, opts Options) *Coordinator {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 2 * time.Minute
	}
	if opts.Passwords == nil {
		opts.Passwords = make(map[string]*domain.PasswordSet)
	}
	parser := deps.Parser
	if parser == nil {
		parser = txparse.NewParser()
	}
	return &Coordinator{
		mail:     deps.Mail,
		storage:  deps.Storage,
		reports:  deps.Reports,
		sessions: deps.Sessions,
		ledger:   deps.Ledger,
		resolver: deps.Resolver,
		planner:  deps.Planner,
		parser:   parser,
		log:      deps.Log,
		extract:  pdfdoc.ExtractText,
		opts:     opts,
	}
}

// Summary reports the outcome of one phase run.
type Summary struct {
	SessionID    string
	Phase        domain.Phase
	Counts       map[domain.ItemStatus]int
	Transactions int

	// Items lists per-item outcomes in selection order.
	Items []domain.ItemResult
}

func (c *Coordinator) summarize(s *domain.WorkflowSession) Summary {
	sum := Summary{
		SessionID: s.ID,
		Phase:     s.Phase,
		Counts:    make(map[domain.ItemStatus]int),
	}
	for _, fp := range s.Selected {
		r := s.Items[fp]
		sum.Counts[r.Status]++
		sum.Transactions += r.Transactions
		sum.Items = append(sum.Items, r)
	}
	return sum
}

func (c *Coordinator) newSession(phase domain.Phase, fingerprints []string) *domain.WorkflowSession {
	now := time.Now().UTC()
	s := &domain.WorkflowSession{
		ID:        uuid.NewString(),
		Phase:     phase,
		Selected:  fingerprints,
		Items:     make(map[string]domain.ItemResult),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, fp := range fingerprints {
		s.Items[fp] = domain.ItemResult{Status: domain.ItemPending}
	}
	return s
}

// confirmedSet snapshots which selected items are already confirmed. The
// dispatch loops read the snapshot instead of the live item map, which the
// workers mutate concurrently through recordItem.
func (c *Coordinator) confirmedSet(s *domain.WorkflowSession) map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	done := make(map[string]bool, len(s.Items))
	for fp, r := range s.Items {
		if r.Confirmed() {
			done[fp] = true
		}
	}
	return done
}

// recordItem stores one item outcome and persists the session. Save failures
// are logged, not fatal; the ledger remains the source of truth for dedup.
func (c *Coordinator) recordItem(ctx context.Context, s *domain.WorkflowSession, fingerprint string, r domain.ItemResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s.SetItem(fingerprint, r)
	s.UpdatedAt = time.Now().UTC()
	if err := c.sessions.Save(ctx, s); err != nil {
		c.log.Warn().Err(err).Str("session_id", s.ID).Msg("failed to persist session")
	}
}

// finishPhase sets the terminal phase from the item outcomes and persists.
// Only a fatal collaborator failure marks the whole session failed; an item
// that exhausted its retries stays failed on its own and the phase still
// completes. A session with needs-password or pending items keeps its
// running phase so a resume can retry with fresh password hints.
func (c *Coordinator) finishPhase(ctx context.Context, s *domain.WorkflowSession, success domain.Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fatal, pending := false, false
	for _, fp := range s.Selected {
		r := s.Items[fp]
		switch r.Status {
		case domain.ItemFailed:
			if r.Fatal {
				fatal = true
			}
		case domain.ItemNeedsPassword, domain.ItemPending:
			pending = true
		}
	}
	switch {
	case fatal:
		s.FailedPhase = s.Phase
		s.Phase = domain.PhaseFailed
	case pending:
		// Stay in the running phase; resume picks up the rest.
	default:
		s.Phase = success
	}
	s.UpdatedAt = time.Now().UTC()
	if err := c.sessions.Save(ctx, s); err != nil {
		c.log.Warn().Err(err).Str("session_id", s.ID).Msg("failed to persist session")
	}
}

// groupFor resolves a group key against the configured groups. Unknown keys,
// including the reserved content-match group, get a bare group so folder
// naming still works.
func (c *Coordinator) groupFor(key string) domain.Group {
	for _, g := range c.opts.Groups {
		if g.Key == key {
			return g
		}
	}
	return domain.Group{Key: key}
}

// passwordsFor returns the candidate pool for a group, folding in any extra
// hints recorded on the session.
func (c *Coordinator) passwordsFor(s *domain.WorkflowSession, groupKey string) *domain.PasswordSet {
	c.mu.Lock()
	set, ok := c.opts.Passwords[groupKey]
	if !ok {
		set = domain.NewPasswordSet()
		c.opts.Passwords[groupKey] = set
	}
	hints := s.HintsFor(groupKey)
	c.mu.Unlock()

	set.Add(hints...)
	return set
}

// AddHint records an extra password candidate on a session, to be tried when
// the session resumes.
func (c *Coordinator) AddHint(ctx context.Context, sessionID, groupKey, password string) error {
	s, err := c.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	s.AddHint(groupKey, password)
	s.UpdatedAt = time.Now().UTC()
	if err := c.sessions.Save(ctx, s); err != nil {
		return fmt.Errorf("workflow.AddHint: %w", err)
	}
	return nil
}

// Session returns a persisted session for inspection. An empty id means the
// most recent one.
func (c *Coordinator) Session(ctx context.Context, sessionID string) (*domain.WorkflowSession, error) {
	return c.loadSession(ctx, sessionID)
}

func (c *Coordinator) loadSession(ctx context.Context, sessionID string) (*domain.WorkflowSession, error) {
	if sessionID == "" {
		s, err := c.sessions.Latest(ctx)
		if err != nil {
			return nil, fmt.Errorf("workflow: loading latest session: %w", err)
		}
		if s == nil {
			return nil, fmt.Errorf("workflow: no session to resume")
		}
		return s, nil
	}
	s, err := c.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("workflow: loading session %s: %w", sessionID, err)
	}
	return s, nil
}

// Resume continues an interrupted or failed session from its first
// unconfirmed item. An empty id resumes the most recent session.
func (c *Coordinator) Resume(ctx context.Context, sessionID string) (Summary, error) {
	s, err := c.loadSession(ctx, sessionID)
	if err != nil {
		return Summary{}, err
	}

	phase := s.Phase
	if phase == domain.PhaseFailed {
		phase = s.FailedPhase
	}

	switch phase {
	case domain.PhaseStoring:
		s.Phase = domain.PhaseStoring
		s.FailedPhase = ""
		return c.runStoring(ctx, s)
	case domain.PhaseStored:
		// Failed items are unconfirmed; give them another storing pass
		// before rolling into extraction.
		if hasUnconfirmed(s) {
			s.Phase = domain.PhaseStoring
			return c.runStoring(ctx, s)
		}
		return c.Extract(ctx, nil)
	case domain.PhaseExtracting:
		s.Phase = domain.PhaseExtracting
		s.FailedPhase = ""
		return c.runExtracting(ctx, s)
	case domain.PhaseDone:
		return c.summarize(s), nil
	default:
		return Summary{}, fmt.Errorf("workflow.Resume: session %s is in phase %s", s.ID, s.Phase)
	}
}

func hasUnconfirmed(s *domain.WorkflowSession) bool {
	for _, fp := range s.Selected {
		if !s.Items[fp].Confirmed() {
			return true
		}
	}
	return false
}

// sleepCtx waits for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// withRetry runs fn up to attempts times, backing off linearly between tries.
// Only transient failures are retried; anything else returns immediately.
func withRetry[T any](ctx context.Context, attempts int, backoff time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !domain.IsTransient(err) || attempt >= attempts {
			return zero, err
		}
		if serr := sleepCtx(ctx, backoff*time.Duration(attempt)); serr != nil {
			return zero, err
		}
	}
}

// timedCall bounds one collaborator call. A per-call deadline expiring while
// the run itself is still live reads as a transient failure so the retry loop
// picks it up; a cancelled run passes through untouched.
func timedCall[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := fn(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		var zero T
		return zero, domain.Transient("collaborator call timed out", err)
	}
	return v, err
}
