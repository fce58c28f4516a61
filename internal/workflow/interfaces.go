// Package workflow coordinates the two-phase pipeline: a storing phase that
// pulls attachments from the mailbox, decrypts them and uploads them to
// durable storage, and an extraction phase that reads stored documents, parses
// transactions and publishes the report. Each phase runs under an explicit
// persisted session so an interrupted run can resume.
package workflow

import (
	"context"

	"github.com/okozlov/mailvault/internal/domain"
	"github.com/okozlov/mailvault/internal/report"
)

// MailService lists and fetches PDF attachments from the mailbox.
type MailService interface {
	ListAttachments(ctx context.Context, groups []domain.Group) ([]domain.AttachmentRecord, error)
	Fetch(ctx context.Context, att domain.AttachmentRecord) ([]byte, error)
}

// StorageService is the durable destination for decrypted documents.
// Store returns the full destination path of the written object. Failures are
// wrapped as domain.TransientError or domain.FatalError so the coordinator
// can tell a retryable blip from a quota or permission problem.
type StorageService interface {
	Store(ctx context.Context, placement domain.Placement, content []byte) (string, error)
	Fetch(ctx context.Context, destinationPath string) ([]byte, error)
	List(ctx context.Context, folderPath string) ([]string, error)
}

// ReportService publishes the compiled transaction report.
type ReportService interface {
	Publish(ctx context.Context, layout report.Layout) error
}

// SessionStore persists workflow sessions between runs.
type SessionStore interface {
	Save(ctx context.Context, s *domain.WorkflowSession) error
	Load(ctx context.Context, id string) (*domain.WorkflowSession, error)
	// Latest returns the most recently updated session, or nil when none exist.
	Latest(ctx context.Context) (*domain.WorkflowSession, error)
	Delete(ctx context.Context, id string) error
}

// DocumentResolver produces plaintext document bytes, trying the group's
// candidate passwords when the document is encrypted.
type DocumentResolver interface {
	Resolve(doc []byte, set *domain.PasswordSet) ([]byte, error)
}

// DestinationPlanner computes collision-free destinations for stored files.
type DestinationPlanner interface {
	Folder(group domain.Group) string
	Plan(att domain.AttachmentRecord, group domain.Group) domain.Placement
	Seed(folderPath string, names []string)
}
