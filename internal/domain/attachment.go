package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ContentMatchGroup is the reserved group for attachments whose email matched a
// search keyword in the body rather than the subject line.
const ContentMatchGroup = "Content_matches"

// AttachmentRecord describes one PDF attachment found in the mailbox.
// It is immutable once fetched; the pipeline only reads it.
type AttachmentRecord struct {
	MessageID    string    `json:"message_id"`
	AttachmentID string    `json:"attachment_id"`
	Filename     string    `json:"filename"`
	Size         int64     `json:"size"`
	GroupKey     string    `json:"group_key"`
	Received     time.Time `json:"received"`

	// Subject and Sender are carried for reporting only.
	Subject string `json:"subject,omitempty"`
	Sender  string `json:"sender,omitempty"`

	// PasswordHint is free text pulled from the email body, surfaced to the
	// user when decryption fails.
	PasswordHint string `json:"password_hint,omitempty"`
}

// Fingerprint returns the stable dedup identifier for this attachment.
// It hashes (message id, filename, size) rather than content, since content
// is only comparable before decryption.
func (a AttachmentRecord) Fingerprint() string {
	h := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d", a.MessageID, a.Filename, a.Size))
	return hex.EncodeToString(h[:])
}

// Group is a logical bucket of attachments sharing a search keyword, a
// destination folder, a password pool and one report sheet.
type Group struct {
	Key      string
	Keywords []string
	Folder   string // optional override; defaults to Key
}

// FolderName returns the destination subfolder for the group.
func (g Group) FolderName() string {
	if g.Folder != "" {
		return g.Folder
	}
	return g.Key
}

// LedgerEntry records a fully stored attachment. Entries are created on
// successful completion of storage, never mutated, and survive restarts.
type LedgerEntry struct {
	Fingerprint     string    `json:"fingerprint"`
	GroupKey        string    `json:"group_key"`
	DestinationPath string    `json:"destination_path"`
	ProcessedTS     time.Time `json:"processed_ts"`
}

// Placement is the destination computed for an attachment before upload.
type Placement struct {
	FolderPath string
	FileName   string
}
