package workflow

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"

	"github.com/okozlov/mailvault/internal/domain"
	"github.com/okozlov/mailvault/internal/report"
)

// Extract runs the extraction phase over the stored documents: fetch each
// one, pull its text, parse transactions and publish one report block per
// document, grouped by sheet. A non-empty groupKeys restricts the selection
// to ledger entries stored under those groups; nil selects everything.
func (c *Coordinator) Extract(ctx context.Context, groupKeys []string) (Summary, error) {
	entries := c.ledger.Entries()
	if len(groupKeys) > 0 {
		keep := make(map[string]bool, len(groupKeys))
		for _, key := range groupKeys {
			keep[key] = true
		}
		kept := entries[:0]
		for _, e := range entries {
			if keep[e.GroupKey] {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].ProcessedTS.Equal(entries[j].ProcessedTS) {
			return entries[i].ProcessedTS.Before(entries[j].ProcessedTS)
		}
		return entries[i].Fingerprint < entries[j].Fingerprint
	})

	fingerprints := make([]string, len(entries))
	for i, e := range entries {
		fingerprints[i] = e.Fingerprint
	}
	s := c.newSession(domain.PhaseExtracting, fingerprints)
	if err := c.sessions.Save(ctx, s); err != nil {
		return Summary{}, fmt.Errorf("workflow.Extract: persisting session: %w", err)
	}

	return c.runExtracting(ctx, s)
}

// runExtracting parses every unconfirmed selected document and publishes the
// compiled report. Blocks keep selection order regardless of which worker
// finished first.
func (c *Coordinator) runExtracting(ctx context.Context, s *domain.WorkflowSession) (Summary, error) {
	type unit struct {
		index int
		entry domain.LedgerEntry
	}

	blocks := make([]*domain.SheetBlock, len(s.Selected))

	work := make(chan unit)
	var wg sync.WaitGroup
	for i := 0; i < c.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range work {
				res, block := c.extractOne(ctx, u.entry)
				c.mu.Lock()
				blocks[u.index] = block
				c.mu.Unlock()
				c.recordItem(ctx, s, u.entry.Fingerprint, res)
				c.log.Info().
					Str("session_id", s.ID).
					Str("destination", u.entry.DestinationPath).
					Str("status", string(res.Status)).
					Int("transactions", res.Transactions).
					Msg("document extracted")
			}
		}()
	}

	confirmed := c.confirmedSet(s)
	for i, fp := range s.Selected {
		if ctx.Err() != nil {
			break
		}
		if confirmed[fp] {
			continue
		}
		entry, ok := c.ledger.Get(fp)
		if !ok {
			c.recordItem(ctx, s, fp, domain.ItemResult{
				Status: domain.ItemFailed,
				Error:  "fingerprint missing from ledger",
			})
			continue
		}
		work <- unit{index: i, entry: entry}
	}
	close(work)
	wg.Wait()

	var compiled []domain.SheetBlock
	for _, b := range blocks {
		if b != nil {
			compiled = append(compiled, *b)
		}
	}
	if len(compiled) > 0 {
		layout := report.Compile(compiled)
		_, err := withRetry(ctx, c.opts.MaxRetries, c.opts.RetryBackoff, func() (struct{}, error) {
			return timedCall(ctx, c.opts.CallTimeout, func(callCtx context.Context) (struct{}, error) {
				return struct{}{}, c.reports.Publish(callCtx, layout)
			})
		})
		if err != nil {
			c.mu.Lock()
			s.FailedPhase = s.Phase
			s.Phase = domain.PhaseFailed
			saveErr := c.sessions.Save(ctx, s)
			c.mu.Unlock()
			if saveErr != nil {
				c.log.Warn().Err(saveErr).Str("session_id", s.ID).Msg("failed to persist session")
			}
			return c.summarize(s), fmt.Errorf("workflow: publishing report: %w", err)
		}
	}

	c.finishPhase(ctx, s, domain.PhaseDone)
	if s.Phase == domain.PhaseDone {
		if err := c.sessions.Delete(ctx, s.ID); err != nil {
			c.log.Warn().Err(err).Str("session_id", s.ID).Msg("failed to delete completed session")
		}
	}
	return c.summarize(s), nil
}

// extractOne parses a single stored document. A document with no extractable
// text is reported unreadable, not failed; a document that parses to zero
// transactions still contributes an empty block so the report shows it was
// seen.
func (c *Coordinator) extractOne(ctx context.Context, entry domain.LedgerEntry) (domain.ItemResult, *domain.SheetBlock) {
	filename := path.Base(entry.DestinationPath)
	base := domain.ItemResult{
		Filename:        filename,
		GroupKey:        entry.GroupKey,
		DestinationPath: entry.DestinationPath,
	}

	doc, err := withRetry(ctx, c.opts.MaxRetries, c.opts.RetryBackoff, func() ([]byte, error) {
		return timedCall(ctx, c.opts.CallTimeout, func(callCtx context.Context) ([]byte, error) {
			return c.storage.Fetch(callCtx, entry.DestinationPath)
		})
	})
	if err != nil {
		return failed(base, fmt.Errorf("fetching stored document: %w", err)), nil
	}

	lines, err := c.extract(doc)
	if errors.Is(err, domain.ErrUnreadableDocument) {
		res := base
		res.Status = domain.ItemUnreadable
		res.Error = err.Error()
		return res, nil
	}
	if err != nil {
		return failed(base, fmt.Errorf("extracting text: %w", err)), nil
	}

	txs := c.parser.Parse(lines)
	res := base
	res.Transactions = len(txs)
	if len(txs) == 0 {
		res.Status = domain.ItemParsedEmpty
	} else {
		res.Status = domain.ItemParsed
	}

	return res, &domain.SheetBlock{
		GroupKey:       entry.GroupKey,
		SourceFilename: filename,
		HeaderLabel:    filename,
		Transactions:   txs,
	}
}
