package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/catalog-crawler/internal/catalog"
	"github.com/maltedev/catalog-crawler/internal/database"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeCatalogRecordAppended is published when a record is stored for
	// a handle that was not known before
	EventTypeCatalogRecordAppended EventType = "CATALOG_RECORD_APPENDED"

	AggregateTypeCatalogRecord = "catalog_record"

	defaultSource = "crawler"
)

// CatalogRecordAppendedPayload is the payload of CATALOG_RECORD_APPENDED
type CatalogRecordAppendedPayload struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Handle    string         `json:"handle"`
	Title     string         `json:"title"`
	Vendor    string         `json:"vendor,omitempty"`
	Record    catalog.Record `json:"record"`
	Source    string         `json:"source"`
}

// OutboxWriter inserts outbox rows inside a caller's transaction.
// *database.OutboxRepository implements it.
type OutboxWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

// Publisher writes catalog events through the transactional outbox
type Publisher struct {
	outbox OutboxWriter
	source string
	logger *slog.Logger
	now    func() time.Time
}

func NewPublisher(outbox OutboxWriter, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		outbox: outbox,
		source: defaultSource,
		logger: logger.With("component", "event_publisher"),
		now:    time.Now,
	}
}

// NewCatalogRecordAppended builds the payload announcing rec.
func (p *Publisher) NewCatalogRecordAppended(rec catalog.Record) *CatalogRecordAppendedPayload {
	return &CatalogRecordAppendedPayload{
		EventID:   uuid.New().String(),
		EventType: string(EventTypeCatalogRecordAppended),
		Timestamp: p.now().UTC(),
		Handle:    rec.Handle(),
		Title:     rec.Get(catalog.KeyTitle),
		Vendor:    rec.Get(catalog.KeyVendor),
		Record:    rec,
		Source:    p.source,
	}
}

// PublishWithTx inserts a CATALOG_RECORD_APPENDED event for rec within tx.
// The event becomes visible to the relay only if tx commits.
func (p *Publisher) PublishWithTx(ctx context.Context, tx pgx.Tx, rec catalog.Record) error {
	payload := p.NewCatalogRecordAppended(rec)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	outboxEvent := &database.OutboxEvent{
		AggregateType: AggregateTypeCatalogRecord,
		AggregateID:   payload.Handle,
		EventType:     payload.EventType,
		Payload:       data,
		TargetStream:  database.DefaultTargetStream,
	}

	if err := p.outbox.InsertWithTx(ctx, tx, outboxEvent); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("event published to outbox",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"handle", payload.Handle,
		"outbox_id", outboxEvent.ID,
	)

	return nil
}
