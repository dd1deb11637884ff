package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/maltedev/catalog-crawler/internal/catalog"
)

// Transactor runs a function inside a database transaction. *DB implements it.
type Transactor interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

// RecordEventWriter writes the event that announces a newly stored record.
// It runs inside the insert transaction.
type RecordEventWriter interface {
	PublishWithTx(ctx context.Context, tx pgx.Tx, rec catalog.Record) error
}

// CatalogStore mirrors catalog records into Postgres. It implements catalog.Sink.
type CatalogStore struct {
	db     Transactor
	events RecordEventWriter
	logger *slog.Logger
}

// NewCatalogStore creates a store. events may be nil, in which case no outbox
// event is written.
func NewCatalogStore(db Transactor, events RecordEventWriter, logger *slog.Logger) *CatalogStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogStore{
		db:     db,
		events: events,
		logger: logger.With("component", "catalog_store"),
	}
}

// Append inserts rec unless a record with the same handle exists. The outbox
// event is written in the same transaction, so it exists only for rows that
// were actually inserted.
func (s *CatalogStore) Append(ctx context.Context, rec catalog.Record) (bool, error) {
	body, err := rec.MarshalJSON()
	if err != nil {
		return false, fmt.Errorf("failed to marshal record: %w", err)
	}

	var inserted bool
	err = s.db.Transaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO catalog_products (handle, title, vendor, record, created_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (handle) DO NOTHING`,
			rec.Handle(), rec.Get(catalog.KeyTitle), rec.Get(catalog.KeyVendor), body)
		if err != nil {
			return fmt.Errorf("failed to insert catalog record: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		inserted = true

		if s.events == nil {
			return nil
		}
		return s.events.PublishWithTx(ctx, tx, rec)
	})
	if err != nil {
		return false, err
	}

	if !inserted {
		s.logger.Info("handle already stored, skipping", "handle", rec.Handle())
		return false, nil
	}
	s.logger.Debug("catalog record stored", "handle", rec.Handle())
	return true, nil
}
