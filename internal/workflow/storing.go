package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okozlov/mailvault/internal/domain"
)

// Store runs the storing phase: list matching attachments, decrypt each one
// and upload it to its group folder, recording every success in the ledger.
func (c *Coordinator) Store(ctx context.Context) (Summary, error) {
	atts, err := c.mail.ListAttachments(ctx, c.opts.Groups)
	if err != nil {
		return Summary{}, fmt.Errorf("workflow.Store: listing attachments: %w", err)
	}

	fingerprints := make([]string, len(atts))
	for i, att := range atts {
		fingerprints[i] = att.Fingerprint()
	}
	s := c.newSession(domain.PhaseStoring, fingerprints)
	if err := c.sessions.Save(ctx, s); err != nil {
		return Summary{}, fmt.Errorf("workflow.Store: persisting session: %w", err)
	}

	return c.runStoring(ctx, s)
}

// runStoring processes every unconfirmed selected item through a bounded
// worker pool. A fatal collaborator error marks its item failed but does not
// stop the pool; remaining items are still attempted so the summary covers
// the whole selection.
func (c *Coordinator) runStoring(ctx context.Context, s *domain.WorkflowSession) (Summary, error) {
	atts, err := c.mail.ListAttachments(ctx, c.opts.Groups)
	if err != nil {
		return Summary{}, fmt.Errorf("workflow: listing attachments: %w", err)
	}
	byFingerprint := make(map[string]domain.AttachmentRecord, len(atts))
	for _, att := range atts {
		byFingerprint[att.Fingerprint()] = att
	}

	c.seedPlanner(ctx)

	work := make(chan domain.AttachmentRecord)
	var wg sync.WaitGroup
	for i := 0; i < c.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for att := range work {
				res := c.storeOne(ctx, s, att)
				c.recordItem(ctx, s, att.Fingerprint(), res)
				c.log.Info().
					Str("session_id", s.ID).
					Str("filename", att.Filename).
					Str("status", string(res.Status)).
					Msg("attachment processed")
			}
		}()
	}

	confirmed := c.confirmedSet(s)
	for _, fp := range s.Selected {
		// Cancellation is cooperative: stop issuing units, let in-flight
		// ones finish.
		if ctx.Err() != nil {
			break
		}
		if confirmed[fp] {
			continue
		}
		att, ok := byFingerprint[fp]
		if !ok {
			c.recordItem(ctx, s, fp, domain.ItemResult{
				Status: domain.ItemFailed,
				Error:  "attachment no longer present in mailbox",
			})
			continue
		}
		work <- att
	}
	close(work)
	wg.Wait()

	c.finishPhase(ctx, s, domain.PhaseStored)
	return c.summarize(s), nil
}

// seedPlanner preloads existing destination names so re-runs never plan a
// name that would overwrite a stored file. Listing failures only cost
// collision safety against pre-existing names, so they are logged and
// ignored.
func (c *Coordinator) seedPlanner(ctx context.Context) {
	groups := append([]domain.Group{}, c.opts.Groups...)
	groups = append(groups, domain.Group{Key: domain.ContentMatchGroup})
	for _, g := range groups {
		folder := c.planner.Folder(g)
		names, err := c.storage.List(ctx, folder)
		if err != nil {
			c.log.Warn().Err(err).Str("folder", folder).Msg("could not list destination folder")
			continue
		}
		c.planner.Seed(folder, names)
	}
}

// storeOne takes a single attachment through reserve, fetch, decrypt, plan,
// upload and record. Every exit path either records the fingerprint in the
// ledger or releases its reservation.
func (c *Coordinator) storeOne(ctx context.Context, s *domain.WorkflowSession, att domain.AttachmentRecord) domain.ItemResult {
	fp := att.Fingerprint()
	group := c.groupFor(att.GroupKey)
	base := domain.ItemResult{Filename: att.Filename, GroupKey: group.Key}

	if !c.ledger.Reserve(fp) {
		res := base
		res.Status = domain.ItemSkipped
		if entry, ok := c.ledger.Get(fp); ok {
			res.DestinationPath = entry.DestinationPath
		}
		return res
	}

	doc, err := withRetry(ctx, c.opts.MaxRetries, c.opts.RetryBackoff, func() ([]byte, error) {
		return timedCall(ctx, c.opts.CallTimeout, func(callCtx context.Context) ([]byte, error) {
			return c.mail.Fetch(callCtx, att)
		})
	})
	if err != nil {
		c.ledger.Release(fp)
		return failed(base, fmt.Errorf("fetching attachment: %w", err))
	}

	plain, err := c.resolver.Resolve(doc, c.passwordsFor(s, group.Key))
	var pf *domain.PasswordFailure
	if errors.As(err, &pf) {
		c.ledger.Release(fp)
		res := base
		res.Status = domain.ItemNeedsPassword
		res.PasswordHint = att.PasswordHint
		res.Error = err.Error()
		return res
	}
	if err != nil {
		c.ledger.Release(fp)
		return failed(base, fmt.Errorf("decrypting document: %w", err))
	}

	placement := c.planner.Plan(att, group)
	dest, err := withRetry(ctx, c.opts.MaxRetries, c.opts.RetryBackoff, func() (string, error) {
		return timedCall(ctx, c.opts.CallTimeout, func(callCtx context.Context) (string, error) {
			return c.storage.Store(callCtx, placement, plain)
		})
	})
	if err != nil {
		c.ledger.Release(fp)
		return failed(base, fmt.Errorf("storing document: %w", err))
	}

	entry := domain.LedgerEntry{
		Fingerprint:     fp,
		GroupKey:        group.Key,
		DestinationPath: dest,
		ProcessedTS:     time.Now().UTC(),
	}
	if err := c.ledger.Record(ctx, entry); err != nil {
		return failed(base, fmt.Errorf("recording ledger entry: %w", err))
	}

	res := base
	res.Status = domain.ItemStored
	res.DestinationPath = dest
	return res
}

func failed(base domain.ItemResult, err error) domain.ItemResult {
	base.Status = domain.ItemFailed
	base.Fatal = domain.IsFatal(err)
	base.Error = err.Error()
	return base
}
