package database

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/catalog-crawler/internal/catalog"
)

type recordingEvents struct {
	handles []string
	err     error
}

func (r *recordingEvents) PublishWithTx(ctx context.Context, tx pgx.Tx, rec catalog.Record) error {
	if r.err != nil {
		return r.err
	}
	r.handles = append(r.handles, rec.Handle())
	return nil
}

func testRecord(t *testing.T) catalog.Record {
	t.Helper()
	rec, err := catalog.Normalize(map[string]any{
		"Title":  "Arduino Uno R3",
		"Vendor": "Arduino",
	})
	require.NoError(t, err)
	return rec
}

func TestCatalogStore_Append(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("insert writes record and event", func(t *testing.T) {
		tx := &fakeTx{}
		db := &fakeTransactor{tx: tx}
		events := &recordingEvents{}
		store := NewCatalogStore(db, events, logger)

		inserted, err := store.Append(ctx, testRecord(t))
		require.NoError(t, err)
		assert.True(t, inserted)
		assert.True(t, db.committed)
		assert.Equal(t, []string{"arduino-uno-r3"}, events.handles)

		require.Len(t, tx.args, 1)
		args := tx.args[0]
		assert.Equal(t, "arduino-uno-r3", args[0])
		assert.Equal(t, "Arduino Uno R3", args[1])
		assert.Equal(t, "Arduino", args[2])

		var stored map[string]string
		require.NoError(t, json.Unmarshal(args[3].([]byte), &stored))
		assert.Equal(t, "TRUE", stored["Published"])
		assert.Len(t, stored, len(catalog.Schema))
	})

	t.Run("existing handle skips event", func(t *testing.T) {
		tx := &fakeTx{tags: []string{"INSERT 0 0"}}
		db := &fakeTransactor{tx: tx}
		events := &recordingEvents{}
		store := NewCatalogStore(db, events, logger)

		inserted, err := store.Append(ctx, testRecord(t))
		require.NoError(t, err)
		assert.False(t, inserted)
		assert.Empty(t, events.handles)
	})

	t.Run("event failure rolls back", func(t *testing.T) {
		db := &fakeTransactor{tx: &fakeTx{}}
		store := NewCatalogStore(db, &recordingEvents{err: errors.New("outbox down")}, logger)

		inserted, err := store.Append(ctx, testRecord(t))
		assert.EqualError(t, err, "outbox down")
		assert.False(t, inserted)
		assert.True(t, db.rolledBack)
	})

	t.Run("insert failure", func(t *testing.T) {
		db := &fakeTransactor{tx: &fakeTx{err: errors.New("connection reset")}}
		store := NewCatalogStore(db, nil, logger)

		_, err := store.Append(ctx, testRecord(t))
		assert.ErrorContains(t, err, "failed to insert catalog record")
	})

	t.Run("without event writer", func(t *testing.T) {
		db := &fakeTransactor{tx: &fakeTx{}}
		store := NewCatalogStore(db, nil, nil)

		inserted, err := store.Append(ctx, testRecord(t))
		require.NoError(t, err)
		assert.True(t, inserted)
	})
}
