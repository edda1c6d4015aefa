package biz

import (
	"context"

	"github.com/looplj/memvault/internal/store"
)

type AbstractService struct {
	db *store.Client
}

func (a *AbstractService) storeFromContext(ctx context.Context) *store.Client {
	if client := store.FromContext(ctx); client != nil {
		return client
	}

	return a.db
}

// RunInTransaction executes fn with a tx-bound client in the context.
// Nested calls reuse the ambient transaction.
func (a *AbstractService) RunInTransaction(ctx context.Context, fn func(context.Context) error) (err error) {
	client := a.storeFromContext(ctx)
	if client.InTx() {
		return fn(ctx)
	}

	tx, err := client.Tx(ctx)
	if err != nil {
		return err
	}

	committed := false

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()

			panic(r)
		}

		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(store.NewContext(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	committed = true

	return nil
}
