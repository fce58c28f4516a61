package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/okozlov/mailvault/internal/domain"
)

// ledgerRow mirrors domain.LedgerEntry in the ledger table schema.
type ledgerRow struct {
	Fingerprint     string    `bigquery:"fingerprint"`
	GroupKey        string    `bigquery:"group_key"`
	DestinationPath string    `bigquery:"destination_path"`
	ProcessedTS     time.Time `bigquery:"processed_ts"`
}

// BigQueryStore persists ledger entries in a BigQuery table, for deployments
// where several machines share one ledger.
type BigQueryStore struct {
	client  *bigquery.Client
	dataset string
	table   string
}

// NewBigQueryStore wraps an existing client; the caller owns its lifecycle.
func NewBigQueryStore(client *bigquery.Client, dataset, table string) *BigQueryStore {
	return &BigQueryStore{client: client, dataset: dataset, table: table}
}

// EnsureTable creates the ledger table on first use.
func (s *BigQueryStore) EnsureTable(ctx context.Context) error {
	table := s.client.Dataset(s.dataset).Table(s.table)
	_, err := table.Metadata(ctx)
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Code != 404 {
		return fmt.Errorf("BigQueryStore.EnsureTable: %w", err)
	}

	schema := bigquery.Schema{
		{Name: "fingerprint", Type: bigquery.StringFieldType, Required: true},
		{Name: "group_key", Type: bigquery.StringFieldType},
		{Name: "destination_path", Type: bigquery.StringFieldType},
		{Name: "processed_ts", Type: bigquery.TimestampFieldType},
	}
	if err := table.Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil {
		return fmt.Errorf("BigQueryStore.EnsureTable: creating table: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *BigQueryStore) Load(ctx context.Context) ([]domain.LedgerEntry, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT fingerprint, group_key, destination_path, processed_ts
		FROM %s.%s
	`, s.dataset, s.table))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("BigQueryStore.Load: running query: %w", err)
	}

	var entries []domain.LedgerEntry
	for {
		var row ledgerRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("BigQueryStore.Load: reading row: %w", err)
		}
		entries = append(entries, domain.LedgerEntry{
			Fingerprint:     row.Fingerprint,
			GroupKey:        row.GroupKey,
			DestinationPath: row.DestinationPath,
			ProcessedTS:     row.ProcessedTS,
		})
	}
	return entries, nil
}

// Append implements Store using the streaming inserter. Duplicate fingerprints
// may land after a crash; Load callers dedupe by fingerprint, so a stray extra
// row is harmless.
func (s *BigQueryStore) Append(ctx context.Context, entry domain.LedgerEntry) error {
	inserter := s.client.Dataset(s.dataset).Table(s.table).Inserter()
	row := &ledgerRow{
		Fingerprint:     entry.Fingerprint,
		GroupKey:        entry.GroupKey,
		DestinationPath: entry.DestinationPath,
		ProcessedTS:     entry.ProcessedTS,
	}
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("BigQueryStore.Append: inserting row: %w", err)
	}
	return nil
}

var _ Store = (*BigQueryStore)(nil)
