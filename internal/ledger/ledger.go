// Package ledger is the persistent record of attachment fingerprints already
// processed. It is the sole authority for "already processed": every other
// component consults it before doing any decrypt/plan/upload work, which makes
// re-runs idempotent and destination writes at-most-once per fingerprint.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/okozlov/mailvault/internal/domain"
)

// Store is the durable backend behind the ledger.
type Store interface {
	// Load returns every recorded entry.
	Load(ctx context.Context) ([]domain.LedgerEntry, error)

	// Append durably records one entry. Appending an already present
	// fingerprint may happen after a crash; backends tolerate it.
	Append(ctx context.Context, entry domain.LedgerEntry) error
}

// Ledger caches the fingerprint set in memory and serializes the
// check-then-record sequence per fingerprint so two concurrent units cannot
// store the same attachment twice.
type Ledger struct {
	mu       sync.Mutex
	entries  map[string]domain.LedgerEntry
	inflight map[string]bool
	store    Store
}

// Open loads the backing store into memory.
func Open(ctx context.Context, store Store) (*Ledger, error) {
	existing, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger.Open: %w", err)
	}
	entries := make(map[string]domain.LedgerEntry, len(existing))
	for _, e := range existing {
		entries[e.Fingerprint] = e
	}
	return &Ledger{
		entries:  entries,
		inflight: make(map[string]bool),
		store:    store,
	}, nil
}

// Has reports whether the fingerprint was already processed.
func (l *Ledger) Has(fingerprint string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[fingerprint]
	return ok
}

// Reserve claims a fingerprint for processing. It returns false when the
// fingerprint is already recorded or claimed by another in-flight unit, in
// which case the caller treats the item as a duplicate skip.
func (l *Ledger) Reserve(fingerprint string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, done := l.entries[fingerprint]; done {
		return false
	}
	if l.inflight[fingerprint] {
		return false
	}
	l.inflight[fingerprint] = true
	return true
}

// Release gives up a reservation without recording, after a per-item failure.
func (l *Ledger) Release(fingerprint string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inflight, fingerprint)
}

// Record durably stores the entry and drops its reservation. Recording an
// already present fingerprint is a no-op, tolerating retried writes after a
// crash between record and acknowledge.
func (l *Ledger) Record(ctx context.Context, entry domain.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.inflight, entry.Fingerprint)
	if _, ok := l.entries[entry.Fingerprint]; ok {
		return nil
	}
	if err := l.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("ledger.Record: %w", err)
	}
	l.entries[entry.Fingerprint] = entry
	return nil
}

// Get returns the recorded entry for a fingerprint.
func (l *Ledger) Get(fingerprint string) (domain.LedgerEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[fingerprint]
	return e, ok
}

// Entries returns a snapshot of all recorded entries.
func (l *Ledger) Entries() []domain.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.LedgerEntry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	return out
}

// Len reports the number of recorded entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
