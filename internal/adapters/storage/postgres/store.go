package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"vet-appointments/internal/domain/clinic"
)

// Códigos SQLSTATE que se traducen a kinds del core.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

const (
	constraintActiveSlot = "appointments_active_slot_key"
	constraintUserEmail  = "users_email_key"
	constraintUserRole   = "users_role_id_fkey"
)

// Store implementa clinic.Store sobre Postgres. Cada WithinTx es una
// transacción SERIALIZABLE; el índice único parcial de appointments cierra la
// carrera entre el chequeo de conflicto y la escritura.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx clinic.Tx) error) (err error) {
	ptx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return clinic.StorageFailure(err, "begin transaction")
	}
	defer func() {
		if err != nil {
			rctx, cancel := rollbackContext(ctx)
			defer cancel()
			_ = ptx.Rollback(rctx)
		}
	}()

	if err = fn(ctx, &tx{q: ptx}); err != nil {
		return mapError(err)
	}
	if err = ptx.Commit(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

// rollbackContext sobrevive a la cancelación del request pero con tope propio.
func rollbackContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}

// mapError deja pasar los *clinic.Error y clasifica los errores del driver.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var ce *clinic.Error
	if errors.As(err, &ce) {
		return ce
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return clinic.NotFound("record not found")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			switch pgErr.ConstraintName {
			case constraintActiveSlot:
				return clinic.Conflict("veterinarian already has an active appointment at this time")
			case constraintUserEmail:
				return clinic.Conflict("email already registered")
			}
			return clinic.Conflict("duplicate %s", pgErr.ConstraintName)
		case codeForeignKeyViolation:
			if pgErr.ConstraintName == constraintUserRole {
				return clinic.InvalidRole("")
			}
			return clinic.NotFound("referenced record not found (%s)", pgErr.ConstraintName)
		case codeSerializationFailure, codeDeadlockDetected:
			return clinic.StorageFailure(err, "transaction aborted, retry")
		}
	}

	return clinic.StorageFailure(err, "storage operation failed")
}

var (
	_ clinic.Store = (*Store)(nil)
	_ clinic.Tx    = (*tx)(nil)
)

// tx implementa clinic.Tx sobre una pgx.Tx abierta.
type tx struct {
	q pgx.Tx
}

func (t *tx) exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := t.q.Exec(ctx, sql, args...)
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}
