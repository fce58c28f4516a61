// Package pdfdoc handles the document-level PDF work: recovering encrypted
// statements by trying candidate passwords, and extracting page-ordered text
// for the transaction parser.
package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/okozlov/mailvault/internal/domain"
)

// Resolver tries candidate passwords against encrypted documents. The probe
// and decrypt funcs are swappable for tests.
type Resolver struct {
	probe   func(doc []byte) (bool, error)
	decrypt func(doc []byte, password string) ([]byte, error)
}

// NewResolver creates a resolver backed by pdfcpu.
func NewResolver() *Resolver {
	return &Resolver{
		probe:   isEncrypted,
		decrypt: decryptWith,
	}
}

// Resolve returns plaintext document bytes. Unencrypted documents pass
// through untouched. For encrypted documents the candidates are tried in
// order; the first success is promoted to the front of the set so later
// documents in the same group skip retrial. If every candidate fails the
// error is a *domain.PasswordFailure carrying the attempted count.
// The input is never mutated; decryption produces a new copy.
func (r *Resolver) Resolve(doc []byte, set *domain.PasswordSet) ([]byte, error) {
	encrypted, err := r.probe(doc)
	if err != nil {
		return nil, fmt.Errorf("pdfdoc.Resolve: probing document: %w", err)
	}
	if !encrypted {
		return doc, nil
	}

	candidates := set.Candidates()
	for _, password := range candidates {
		plain, err := r.decrypt(doc, password)
		if err != nil {
			continue
		}
		set.Promote(password)
		return plain, nil
	}
	return nil, &domain.PasswordFailure{Attempts: len(candidates)}
}

// isEncrypted opens the document without a password and reports whether the
// reader rejects it for one.
func isEncrypted(doc []byte) (bool, error) {
	_, err := pdf.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err == nil {
		return false, nil
	}
	if errors.Is(err, pdf.ErrInvalidPassword) {
		return true, nil
	}
	return false, err
}

func decryptWith(doc []byte, password string) ([]byte, error) {
	conf := model.NewDefaultConfiguration()
	conf.UserPW = password
	conf.OwnerPW = password

	var out bytes.Buffer
	if err := api.Decrypt(bytes.NewReader(doc), &out, conf); err != nil {
		return nil, fmt.Errorf("pdfdoc.decryptWith: %w", err)
	}
	return out.Bytes(), nil
}
