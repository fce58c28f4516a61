// Package organizer computes the destination folder and file name for each
// stored attachment: one subfolder per group under a fixed root, names
// prefixed with the email's received date.
package organizer

import (
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/okozlov/mailvault/internal/domain"
)

// Planner assigns collision-free destinations. It remembers every name it has
// handed out (and any pre-existing names seeded from the storage collaborator)
// so it never plans an overwrite.
type Planner struct {
	root string

	mu   sync.Mutex
	used map[string]map[string]bool // folder -> file name -> taken
}

// NewPlanner creates a planner rooted at the fixed destination folder.
func NewPlanner(root string) *Planner {
	return &Planner{
		root: root,
		used: make(map[string]map[string]bool),
	}
}

// Seed marks names that already exist in a destination folder, typically from
// a storage listing, so new plans pick suffixes past them.
func (p *Planner) Seed(folderPath string, names []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range names {
		p.claim(folderPath, n)
	}
}

// Folder returns the destination folder for a group.
func (p *Planner) Folder(group domain.Group) string {
	return path.Join(p.root, Sanitize(group.FolderName()))
}

// Plan computes the destination for an attachment within its group. Collisions
// within a folder get a numeric suffix before the extension; an existing
// stored file is never overwritten.
func (p *Planner) Plan(att domain.AttachmentRecord, group domain.Group) domain.Placement {
	folder := p.Folder(group)
	base := fmt.Sprintf("%s-%s", att.Received.Format("02 January 2006"), Sanitize(att.Filename))

	p.mu.Lock()
	defer p.mu.Unlock()

	name := base
	for n := 1; p.taken(folder, name); n++ {
		name = suffixed(base, n)
	}
	p.claim(folder, name)

	return domain.Placement{FolderPath: folder, FileName: name}
}

func (p *Planner) taken(folder, name string) bool {
	return p.used[folder][name]
}

func (p *Planner) claim(folder, name string) {
	if p.used[folder] == nil {
		p.used[folder] = make(map[string]bool)
	}
	p.used[folder][name] = true
}

// suffixed inserts a numeric suffix before the extension:
// "a.pdf" -> "a (1).pdf".
func suffixed(base string, n int) string {
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s (%d)%s", stem, n, ext)
}

// unsafe matches characters that are path separators or otherwise unsafe in
// storage object names.
var unsafe = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
	"\"", "_", "<", "_", ">", "_", "|", "_", "\x00", "_",
)

// Sanitize strips characters unsafe for storage paths and collapses runs of
// whitespace to single spaces.
func Sanitize(name string) string {
	cleaned := unsafe.Replace(name)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	return strings.TrimSpace(cleaned)
}
