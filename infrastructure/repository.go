package infrastructure

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"labspace/internal/observability"
)

// TimeOperation executes an operation, records its duration and logs it
func TimeOperation(name string, operation func() error) error {
	start := time.Now()
	err := operation()
	elapsed := time.Since(start)

	result := "ok"
	if err != nil {
		result = "error"
	}
	observability.StoreOperationDuration.WithLabelValues(name, result).Observe(elapsed.Seconds())
	zap.L().Debug("operation finished",
		zap.String("operation", name),
		zap.Duration("elapsed", elapsed),
		zap.Error(err),
	)
	return err
}

// TimedTransaction runs operation in a transaction under TimeOperation.
func TimedTransaction(db *sql.DB, ctx context.Context, name string, operation func(*sql.Tx) error) error {
	return TimeOperation(name, func() error {
		return WithTransaction(db, ctx, operation)
	})
}

// WithTransaction handles a database transaction and executes the given operation
func WithTransaction(db *sql.DB, ctx context.Context, operation func(*sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p) // re-throw panic after Rollback
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				zap.L().Error("error while rolling back transaction", zap.Error(rbErr))
			}
		} else {
			err = tx.Commit()
		}
	}()

	err = operation(tx)
	return err
}
