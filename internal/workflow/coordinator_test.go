package workflow

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okozlov/mailvault/internal/domain"
	"github.com/okozlov/mailvault/internal/ledger"
	"github.com/okozlov/mailvault/internal/logger"
	"github.com/okozlov/mailvault/internal/organizer"
	"github.com/okozlov/mailvault/internal/report"
)

// ---- hand mocks ----

type fakeMail struct {
	mu   sync.Mutex
	atts []domain.AttachmentRecord
	docs map[string][]byte
}

func (m *fakeMail) ListAttachments(ctx context.Context, groups []domain.Group) ([]domain.AttachmentRecord, error) {
	return m.atts, nil
}

func (m *fakeMail) Fetch(ctx context.Context, att domain.AttachmentRecord) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[att.Fingerprint()]
	if !ok {
		return nil, domain.Transient("fakeMail.Fetch", errors.New("not found"))
	}
	return doc, nil
}

type fakeStorage struct {
	mu         sync.Mutex
	objects    map[string][]byte
	storeCalls int

	// failWith returns a canned error when the file name contains the key.
	failWith map[string]error

	// transientFailures fails the first N Store calls with a transient error.
	transientFailures int

	// onStore, when set, runs at the start of every Store call.
	onStore func()
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte), failWith: make(map[string]error)}
}

func (s *fakeStorage) Store(ctx context.Context, p domain.Placement, content []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onStore != nil {
		s.onStore()
	}
	s.storeCalls++
	if s.transientFailures > 0 {
		s.transientFailures--
		return "", domain.Transient("fakeStorage.Store", errors.New("connection reset"))
	}
	for key, err := range s.failWith {
		if strings.Contains(p.FileName, key) {
			return "", err
		}
	}
	dest := path.Join(p.FolderPath, p.FileName)
	s.objects[dest] = content
	return dest, nil
}

func (s *fakeStorage) Fetch(ctx context.Context, destinationPath string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.objects[destinationPath]
	if !ok {
		return nil, domain.Transient("fakeStorage.Fetch", errors.New("no such object"))
	}
	return doc, nil
}

func (s *fakeStorage) List(ctx context.Context, folderPath string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for dest := range s.objects {
		if path.Dir(dest) == folderPath {
			names = append(names, path.Base(dest))
		}
	}
	return names, nil
}

// fakeResolver accepts any document when password is empty, otherwise
// requires that exact candidate to be present in the set.
type fakeResolver struct {
	password string
}

func (r *fakeResolver) Resolve(doc []byte, set *domain.PasswordSet) ([]byte, error) {
	if r.password == "" {
		return doc, nil
	}
	for _, candidate := range set.Candidates() {
		if candidate == r.password {
			set.Promote(candidate)
			return doc, nil
		}
	}
	return nil, &domain.PasswordFailure{Attempts: set.Len()}
}

type fakeReports struct {
	mu      sync.Mutex
	layouts []report.Layout
	err     error
}

func (r *fakeReports) Publish(ctx context.Context, layout report.Layout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.layouts = append(r.layouts, layout)
	return nil
}

// ---- harness ----

type harness struct {
	mail    *fakeMail
	storage *fakeStorage
	reports *fakeReports
	ledger  *ledger.Ledger
	coord   *Coordinator
}

func newHarness(t *testing.T, resolver DocumentResolver, opts Options) *harness {
	t.Helper()
	dir := t.TempDir()

	fs, err := ledger.NewFileStore(path.Join(dir, "ledger.jsonl"))
	require.NoError(t, err)
	led, err := ledger.Open(context.Background(), fs)
	require.NoError(t, err)

	sessions, err := NewFileSessionStore(path.Join(dir, "sessions"))
	require.NoError(t, err)

	mail := &fakeMail{docs: make(map[string][]byte)}
	storage := newFakeStorage()
	reports := &fakeReports{}

	if opts.Workers == 0 {
		opts.Workers = 1
	}
	opts.RetryBackoff = time.Millisecond

	coord := New(Deps{
		Mail:     mail,
		Storage:  storage,
		Reports:  reports,
		Sessions: sessions,
		Ledger:   led,
		Resolver: resolver,
		Planner:  organizer.NewPlanner("Bank Statements"),
		Log:      logger.New(false),
	}, opts)

	return &harness{mail: mail, storage: storage, reports: reports, ledger: led, coord: coord}
}

func (h *harness) addAttachment(id, filename, group string, doc []byte) domain.AttachmentRecord {
	att := domain.AttachmentRecord{
		MessageID:    id,
		AttachmentID: id + "-att",
		Filename:     filename,
		Size:         int64(len(doc)),
		GroupKey:     group,
		Received:     time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	h.mail.atts = append(h.mail.atts, att)
	h.mail.docs[att.Fingerprint()] = doc
	return att
}

func groups(keys ...string) []domain.Group {
	out := make([]domain.Group, 0, len(keys))
	for _, k := range keys {
		out = append(out, domain.Group{Key: k, Keywords: []string{k}})
	}
	return out
}

// ---- storing phase ----

func TestStore_HappyPath(t *testing.T) {
	h := newHarness(t, &fakeResolver{}, Options{Groups: groups("HDFC")})
	h.addAttachment("m1", "a.pdf", "HDFC", []byte("doc-a"))
	h.addAttachment("m2", "b.pdf", "HDFC", []byte("doc-b"))

	sum, err := h.coord.Store(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseStored, sum.Phase)
	assert.Equal(t, 2, sum.Counts[domain.ItemStored])
	assert.Equal(t, 2, h.ledger.Len())
	assert.Contains(t, h.storage.objects, "Bank Statements/HDFC/01 March 2024-a.pdf")
	assert.Contains(t, h.storage.objects, "Bank Statements/HDFC/01 March 2024-b.pdf")
}

func TestStore_RerunSkipsEverything(t *testing.T) {
	h := newHarness(t, &fakeResolver{}, Options{Groups: groups("HDFC")})
	h.addAttachment("m1", "a.pdf", "HDFC", []byte("doc-a"))
	h.addAttachment("m2", "b.pdf", "HDFC", []byte("doc-b"))

	_, err := h.coord.Store(context.Background())
	require.NoError(t, err)
	callsAfterFirst := h.storage.storeCalls

	sum, err := h.coord.Store(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseStored, sum.Phase)
	assert.Equal(t, 2, sum.Counts[domain.ItemSkipped])
	assert.Equal(t, callsAfterFirst, h.storage.storeCalls, "a re-run must not touch storage")
	assert.Equal(t, 2, h.ledger.Len())
}

func TestStore_FatalFailureMidBatch(t *testing.T) {
	h := newHarness(t, &fakeResolver{}, Options{Groups: groups("HDFC")})
	for i := 1; i <= 5; i++ {
		h.addAttachment(fmt.Sprintf("m%d", i), fmt.Sprintf("doc%d.pdf", i), "HDFC", []byte("x"))
	}
	h.storage.failWith["doc3"] = domain.Fatal("fakeStorage.Store", errors.New("quota exceeded"))

	sum, err := h.coord.Store(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseFailed, sum.Phase)
	assert.Equal(t, 1, sum.Counts[domain.ItemFailed])
	assert.Equal(t, 4, sum.Counts[domain.ItemStored], "items after the failure are still attempted")

	s, err := h.coord.Session(context.Background(), sum.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Cursor, "cursor stops at the last confirmed leading item")
	assert.Equal(t, domain.PhaseStoring, s.FailedPhase)
}

func TestStore_TransientFailuresAreRetried(t *testing.T) {
	h := newHarness(t, &fakeResolver{}, Options{Groups: groups("HDFC"), MaxRetries: 3})
	h.addAttachment("m1", "a.pdf", "HDFC", []byte("doc-a"))
	h.storage.transientFailures = 2

	sum, err := h.coord.Store(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseStored, sum.Phase)
	assert.Equal(t, 1, sum.Counts[domain.ItemStored])
	assert.Equal(t, 3, h.storage.storeCalls)
}

func TestStore_ExhaustedRetriesFailTheItemNotThePhase(t *testing.T) {
	h := newHarness(t, &fakeResolver{}, Options{Groups: groups("HDFC"), MaxRetries: 2})
	h.addAttachment("m1", "a.pdf", "HDFC", []byte("doc-a"))
	h.addAttachment("m2", "b.pdf", "HDFC", []byte("doc-b"))
	h.storage.failWith["a.pdf"] = domain.Transient("fakeStorage.Store", errors.New("connection reset"))

	sum, err := h.coord.Store(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseStored, sum.Phase, "exhausted retries stay a per-item failure")
	assert.Equal(t, 1, sum.Counts[domain.ItemFailed])
	assert.Equal(t, 1, sum.Counts[domain.ItemStored])
	assert.Equal(t, 1, h.ledger.Len())

	s, err := h.coord.Session(context.Background(), sum.SessionID)
	require.NoError(t, err)
	assert.Empty(t, s.FailedPhase)

	// The failed item is unconfirmed; once the outage clears a resume
	// stores it without touching the rest.
	delete(h.storage.failWith, "a.pdf")
	resumed, err := h.coord.Resume(context.Background(), sum.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseStored, resumed.Phase)
	assert.Equal(t, 2, h.ledger.Len())
}

func TestStore_ManyWorkersProcessWholeBatch(t *testing.T) {
	h := newHarness(t, &fakeResolver{}, Options{Groups: groups("HDFC"), Workers: 8})
	for i := 0; i < 60; i++ {
		h.addAttachment(fmt.Sprintf("m%03d", i), fmt.Sprintf("doc%03d.pdf", i), "HDFC", []byte("x"))
	}

	sum, err := h.coord.Store(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseStored, sum.Phase)
	assert.Equal(t, 60, sum.Counts[domain.ItemStored])
	assert.Equal(t, 60, h.ledger.Len())

	s, err := h.coord.Session(context.Background(), sum.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 60, s.Cursor)

	h.coord.extract = textExtractor
	extracted, err := h.coord.Extract(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseDone, extracted.Phase)
	assert.Equal(t, 60, extracted.Counts[domain.ItemParsedEmpty])
}

func TestStore_CancelledContextStopsIssuingWork(t *testing.T) {
	h := newHarness(t, &fakeResolver{}, Options{Groups: groups("HDFC")})
	for i := 1; i <= 4; i++ {
		h.addAttachment(fmt.Sprintf("m%d", i), fmt.Sprintf("doc%d.pdf", i), "HDFC", []byte("x"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.storage.onStore = cancel

	sum, err := h.coord.Store(ctx)
	require.NoError(t, err)

	// In-flight items finish; the rest are never issued and the session
	// stays open for a resume.
	assert.Equal(t, domain.PhaseStoring, sum.Phase)
	assert.GreaterOrEqual(t, sum.Counts[domain.ItemPending], 2)
	assert.Equal(t, sum.Counts[domain.ItemStored], h.ledger.Len(), "every stored item is in the ledger")

	resumed, err := h.coord.Resume(context.Background(), sum.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseStored, resumed.Phase)
	assert.Equal(t, 4, h.ledger.Len())
}

func TestStore_EncryptedWithoutPasswordNeedsHint(t *testing.T) {
	h := newHarness(t, &fakeResolver{password: "secret"}, Options{
		Groups:    groups("HDFC"),
		Passwords: map[string]*domain.PasswordSet{"HDFC": domain.NewPasswordSet("wrong")},
	})
	h.addAttachment("m1", "a.pdf", "HDFC", []byte("doc-a"))

	sum, err := h.coord.Store(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseStoring, sum.Phase, "session stays open awaiting a hint")
	assert.Equal(t, 1, sum.Counts[domain.ItemNeedsPassword])
	assert.Equal(t, 0, h.ledger.Len())
}

func TestResume_RetriesWithSuppliedHint(t *testing.T) {
	h := newHarness(t, &fakeResolver{password: "secret"}, Options{
		Groups:    groups("HDFC"),
		Passwords: map[string]*domain.PasswordSet{"HDFC": domain.NewPasswordSet("wrong")},
	})
	h.addAttachment("m1", "a.pdf", "HDFC", []byte("doc-a"))

	sum, err := h.coord.Store(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sum.Counts[domain.ItemNeedsPassword])

	require.NoError(t, h.coord.AddHint(context.Background(), sum.SessionID, "HDFC", "secret"))

	resumed, err := h.coord.Resume(context.Background(), sum.SessionID)
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseStored, resumed.Phase)
	assert.Equal(t, 1, resumed.Counts[domain.ItemStored])
	assert.Equal(t, 1, h.ledger.Len())
}

func TestResume_FailedStoringSessionRetriesUnconfirmedOnly(t *testing.T) {
	h := newHarness(t, &fakeResolver{}, Options{Groups: groups("HDFC")})
	for i := 1; i <= 3; i++ {
		h.addAttachment(fmt.Sprintf("m%d", i), fmt.Sprintf("doc%d.pdf", i), "HDFC", []byte("x"))
	}
	h.storage.failWith["doc2"] = domain.Fatal("fakeStorage.Store", errors.New("quota exceeded"))

	sum, err := h.coord.Store(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.PhaseFailed, sum.Phase)
	callsAfterFirst := h.storage.storeCalls

	delete(h.storage.failWith, "doc2")
	resumed, err := h.coord.Resume(context.Background(), sum.SessionID)
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseStored, resumed.Phase)
	assert.Equal(t, 3, h.ledger.Len())
	assert.Equal(t, callsAfterFirst+1, h.storage.storeCalls, "only the failed item is re-stored")
}

// ---- extraction phase ----

func textExtractor(doc []byte) ([]string, error) {
	s := string(doc)
	if s == "" {
		return nil, domain.ErrUnreadableDocument
	}
	return strings.Split(s, "\n"), nil
}

func seedStored(t *testing.T, h *harness, fp, group, dest string, doc []byte) {
	t.Helper()
	h.storage.objects[dest] = doc
	require.NoError(t, h.ledger.Record(context.Background(), domain.LedgerEntry{
		Fingerprint:     fp,
		GroupKey:        group,
		DestinationPath: dest,
		ProcessedTS:     time.Now().UTC(),
	}))
}

func TestExtract_ParsesAndPublishes(t *testing.T) {
	h := newHarness(t, &fakeResolver{}, Options{Groups: groups("HDFC")})
	h.coord.extract = textExtractor
	seedStored(t, h, "fp1", "HDFC", "Bank Statements/HDFC/a.pdf",
		[]byte("04/01/2024  COFFEE SHOP  -4.50\nnoise line"))

	sum, err := h.coord.Extract(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseDone, sum.Phase)
	assert.Equal(t, 1, sum.Counts[domain.ItemParsed])
	assert.Equal(t, 1, sum.Transactions)

	require.Len(t, h.reports.layouts, 1)
	layout := h.reports.layouts[0]
	require.Len(t, layout.Sheets, 1)
	assert.Equal(t, "HDFC", layout.Sheets[0].Title)
	require.Len(t, layout.Sheets[0].Rows, 2)
	assert.Equal(t, []string{"2024-04-01", "COFFEE SHOP", "-4.50"}, layout.Sheets[0].Rows[1].Cells)
}

func TestExtract_GroupFilterRestrictsSelection(t *testing.T) {
	h := newHarness(t, &fakeResolver{}, Options{Groups: groups("HDFC", "ICICI")})
	h.coord.extract = textExtractor
	seedStored(t, h, "fp1", "HDFC", "Bank Statements/HDFC/a.pdf",
		[]byte("04/01/2024  COFFEE SHOP  -4.50"))
	seedStored(t, h, "fp2", "ICICI", "Bank Statements/ICICI/b.pdf",
		[]byte("05/01/2024  GROCERIES  -12.00"))

	sum, err := h.coord.Extract(context.Background(), []string{"ICICI"})
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseDone, sum.Phase)
	require.Len(t, sum.Items, 1)
	assert.Equal(t, "ICICI", sum.Items[0].GroupKey)

	require.Len(t, h.reports.layouts, 1)
	layout := h.reports.layouts[0]
	require.Len(t, layout.Sheets, 1)
	assert.Equal(t, "ICICI", layout.Sheets[0].Title)
}

func TestExtract_UnreadableDocumentIsReportedNotFailed(t *testing.T) {
	h := newHarness(t, &fakeResolver{}, Options{Groups: groups("HDFC")})
	h.coord.extract = textExtractor
	seedStored(t, h, "fp1", "HDFC", "Bank Statements/HDFC/scan.pdf", []byte(""))
	seedStored(t, h, "fp2", "HDFC", "Bank Statements/HDFC/ok.pdf",
		[]byte("04/01/2024  COFFEE SHOP  -4.50"))

	sum, err := h.coord.Extract(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseDone, sum.Phase)
	assert.Equal(t, 1, sum.Counts[domain.ItemUnreadable])
	assert.Equal(t, 1, sum.Counts[domain.ItemParsed])
}

func TestExtract_EmptyParseStillContributesBlock(t *testing.T) {
	h := newHarness(t, &fakeResolver{}, Options{Groups: groups("HDFC")})
	h.coord.extract = textExtractor
	seedStored(t, h, "fp1", "HDFC", "Bank Statements/HDFC/letter.pdf",
		[]byte("dear customer\nthank you"))

	sum, err := h.coord.Extract(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseDone, sum.Phase)
	assert.Equal(t, 1, sum.Counts[domain.ItemParsedEmpty])
	require.Len(t, h.reports.layouts, 1)
	rows := h.reports.layouts[0].Sheets[0].Rows
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Header)
}

func TestExtract_PublishFailureFailsTheSession(t *testing.T) {
	h := newHarness(t, &fakeResolver{}, Options{Groups: groups("HDFC")})
	h.coord.extract = textExtractor
	h.reports.err = domain.Fatal("fakeReports.Publish", errors.New("permission denied"))
	seedStored(t, h, "fp1", "HDFC", "Bank Statements/HDFC/a.pdf",
		[]byte("04/01/2024  COFFEE SHOP  -4.50"))

	sum, err := h.coord.Extract(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, domain.PhaseFailed, sum.Phase)
}

func TestExtract_NothingStoredPublishesNothing(t *testing.T) {
	h := newHarness(t, &fakeResolver{}, Options{Groups: groups("HDFC")})
	h.coord.extract = textExtractor

	sum, err := h.coord.Extract(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseDone, sum.Phase)
	assert.Empty(t, h.reports.layouts)
}
