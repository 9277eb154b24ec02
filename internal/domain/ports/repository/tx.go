package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside one database transaction and hands the
// transaction handle to repositories through tx.
//
// Repositories that receive a pgx.Tx lock the rows they read (SELECT ... FOR UPDATE);
// with NoTX they run on the pool without locks.
//
// USAGE
// tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
// p, err := payments.FindByLookupKey(ctx, tx, key)
// ...
// return err
// })
//
// Returning an error from fn rolls the transaction back.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
