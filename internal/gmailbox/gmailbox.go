// Package gmailbox finds and downloads PDF attachments from a Gmail mailbox.
// One search query covers every configured group; each matching message is
// classified into a group by subject keyword, falling back to the reserved
// content-match group when only the body matched.
package gmailbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/okozlov/mailvault/internal/domain"
	"github.com/okozlov/mailvault/internal/gapierr"
)

const user = "me"

// Client wraps the Gmail API for the workflow's MailService.
type Client struct {
	svc        *gmail.Service
	maxResults int64
	log        zerolog.Logger
}

// New wraps an authenticated Gmail service.
func New(svc *gmail.Service, maxResults int64, log zerolog.Logger) *Client {
	if maxResults <= 0 {
		maxResults = 100
	}
	return &Client{svc: svc, maxResults: maxResults, log: log}
}

// BuildQuery renders one search expression covering every group keyword,
// restricted to messages carrying PDF attachments.
func BuildQuery(groups []domain.Group) string {
	var terms []string
	for _, g := range groups {
		for _, kw := range g.Keywords {
			terms = append(terms, fmt.Sprintf("%q", kw))
		}
	}
	return fmt.Sprintf("(%s) has:attachment filename:pdf", strings.Join(terms, " OR "))
}

// ListAttachments implements workflow.MailService. Results keep mailbox
// order; pagination is followed to the end.
func (c *Client) ListAttachments(ctx context.Context, groups []domain.Group) ([]domain.AttachmentRecord, error) {
	query := BuildQuery(groups)
	c.log.Debug().Str("query", query).Msg("searching mailbox")

	var out []domain.AttachmentRecord
	pageToken := ""
	for {
		call := c.svc.Users.Messages.List(user).Q(query).MaxResults(c.maxResults).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, gapierr.Classify("gmailbox.ListAttachments: listing messages", err)
		}

		for _, ref := range resp.Messages {
			msg, err := c.svc.Users.Messages.Get(user, ref.Id).Format("full").Context(ctx).Do()
			if err != nil {
				return nil, gapierr.Classify("gmailbox.ListAttachments: fetching message", err)
			}
			out = append(out, attachmentsFrom(msg, groups)...)
		}

		if resp.NextPageToken == "" {
			return out, nil
		}
		pageToken = resp.NextPageToken
	}
}

// Fetch implements workflow.MailService, downloading one attachment body.
func (c *Client) Fetch(ctx context.Context, att domain.AttachmentRecord) ([]byte, error) {
	resp, err := c.svc.Users.Messages.Attachments.Get(user, att.MessageID, att.AttachmentID).Context(ctx).Do()
	if err != nil {
		return nil, gapierr.Classify("gmailbox.Fetch", err)
	}
	data, err := decodeBody(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("gmailbox.Fetch: decoding attachment %s: %w", att.AttachmentID, err)
	}
	return data, nil
}

// decodeBody handles both padded and unpadded base64url payloads.
func decodeBody(data string) ([]byte, error) {
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return decoded, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
}

// attachmentsFrom collects every PDF attachment of a message, classified into
// a group by its subject line.
func attachmentsFrom(msg *gmail.Message, groups []domain.Group) []domain.AttachmentRecord {
	if msg.Payload == nil {
		return nil
	}
	subject := header(msg.Payload, "Subject")
	sender := header(msg.Payload, "From")
	groupKey := classifyGroup(subject, groups)
	received := time.UnixMilli(msg.InternalDate).UTC()

	var out []domain.AttachmentRecord
	walkParts(msg.Payload, func(part *gmail.MessagePart) {
		if !strings.HasSuffix(strings.ToLower(part.Filename), ".pdf") {
			return
		}
		if part.Body == nil || part.Body.AttachmentId == "" {
			return
		}
		out = append(out, domain.AttachmentRecord{
			MessageID:    msg.Id,
			AttachmentID: part.Body.AttachmentId,
			Filename:     part.Filename,
			Size:         part.Body.Size,
			GroupKey:     groupKey,
			Received:     received,
			Subject:      subject,
			Sender:       sender,
			PasswordHint: msg.Snippet,
		})
	})
	return out
}

// classifyGroup matches the subject against group keywords, first match wins.
// No subject match means the search hit the message body, which lands the
// attachment in the reserved content-match group.
func classifyGroup(subject string, groups []domain.Group) string {
	lower := strings.ToLower(subject)
	for _, g := range groups {
		for _, kw := range g.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return g.Key
			}
		}
	}
	return domain.ContentMatchGroup
}

func header(payload *gmail.MessagePart, name string) string {
	for _, h := range payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	fn(part)
	for _, child := range part.Parts {
		walkParts(child, fn)
	}
}
