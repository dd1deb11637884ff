package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeTx records Exec calls. Methods other than Exec are not implemented.
type fakeTx struct {
	pgx.Tx
	tags  []string
	err   error
	execs []string
	args  [][]any
}

func (f *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	f.args = append(f.args, args)
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	tag := "INSERT 0 1"
	if len(f.tags) > 0 {
		tag, f.tags = f.tags[0], f.tags[1:]
	}
	return pgconn.NewCommandTag(tag), nil
}

type fakeTransactor struct {
	tx         *fakeTx
	committed  bool
	rolledBack bool
}

func (f *fakeTransactor) Transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	if err := fn(f.tx); err != nil {
		f.rolledBack = true
		return err
	}
	f.committed = true
	return nil
}
