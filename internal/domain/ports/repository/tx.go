package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside a database transaction and hands the
// transaction handle to fn as tx.
//
// Repositories accept that handle on every method. A pgx.Tx switches them to
// tx-bound queries (and SELECT ... FOR UPDATE where relevant); a nil tx means
// the pool is used directly.
//
// USAGE
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
//		prev, err := subs.FindByUserID(ctx, tx, userID)
//		...
//		return subs.Upsert(ctx, tx, next)
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
