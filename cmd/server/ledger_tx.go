package main

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"

	ledgerservice "landregistry/internal/ledger/service"
	ledgerstore "landregistry/internal/ledger/store"
	dErrors "landregistry/pkg/domain-errors"
	txcontext "landregistry/pkg/platform/tx"
)

const defaultApprovalTxTimeout = 5 * time.Second

// approvalPostgresTx runs an approval inside one sql.Tx. The transaction is
// published on the context so the audit store writes in it too.
type approvalPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newApprovalPostgresTx(db *sql.DB) *approvalPostgresTx {
	return &approvalPostgresTx{db: db}
}

func (t *approvalPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store ledgerservice.ApprovalStore) error) error {
	ctx, cancel, err := boundTx(ctx, t.timeout)
	if err != nil {
		return err
	}
	defer cancel()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx), ledgerstore.NewPostgresTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}

// approvalSQLiteTx runs an approval inside one gorm transaction.
type approvalSQLiteTx struct {
	db      *gorm.DB
	timeout time.Duration
}

func newApprovalSQLiteTx(db *gorm.DB) *approvalSQLiteTx {
	return &approvalSQLiteTx{db: db}
}

func (t *approvalSQLiteTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store ledgerservice.ApprovalStore) error) error {
	ctx, cancel, err := boundTx(ctx, t.timeout)
	if err != nil {
		return err
	}
	defer cancel()

	return t.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(ctx, ledgerstore.WithTx(gtx))
	})
}

func boundTx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return ctx, func() {}, dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if timeout == 0 {
		timeout = defaultApprovalTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, cancel, nil
}
