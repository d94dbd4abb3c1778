package repository

import (
	"context"
	"database/sql/driver"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/aisgo/ais-wms-core/cache/redis"
	"github.com/aisgo/ais-wms-core/errors"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassifyDriverErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code errors.ErrorCode
	}{
		{"pg serialization", &pgconn.PgError{Code: pgerrcode.SerializationFailure}, errors.ErrCodeConflict},
		{"pg deadlock", fmt.Errorf("exec: %w", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}), errors.ErrCodeConflict},
		{"pg lock not available", &pgconn.PgError{Code: pgerrcode.LockNotAvailable}, errors.ErrCodeConflict},
		{"pg unique violation", &pgconn.PgError{Code: pgerrcode.UniqueViolation}, errors.ErrCodeInternal},
		{"pg admin shutdown", &pgconn.PgError{Code: pgerrcode.AdminShutdown}, errors.ErrCodeUnavailable},
		{"mysql deadlock", &mysql.MySQLError{Number: 1213}, errors.ErrCodeConflict},
		{"mysql lock wait", &mysql.MySQLError{Number: 1205}, errors.ErrCodeConflict},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, errors.ErrCodeInternal},
		{"sqlite busy", stderrors.New("database is locked"), errors.ErrCodeConflict},
		{"redis lock", redis.ErrLockFailed, errors.ErrCodeConflict},
		{"bad conn", driver.ErrBadConn, errors.ErrCodeUnavailable},
		{"canceled", context.Canceled, errors.ErrCodeCanceled},
		{"deadline", context.DeadlineExceeded, errors.ErrCodeTimeout},
		{"other", stderrors.New("syntax error"), errors.ErrCodeInternal},
		{"already classified", errors.Configurationf("x"), errors.ErrCodeConfiguration},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := classify(c.err, "op")
			if errors.Code(got) != c.code {
				t.Fatalf("classify(%v) = %v, want code %d", c.err, got, c.code)
			}
			if !stderrors.Is(got, c.err) {
				t.Fatalf("classified error must wrap its cause")
			}
		})
	}

	if classify(nil, "op") != nil {
		t.Fatalf("nil must stay nil")
	}
}

func TestUnwrapPermanent(t *testing.T) {
	cause := errors.Configurationf("x")
	if got := unwrapPermanent(backoff.Permanent(cause)); got != cause {
		t.Fatalf("expected the permanent cause, got %v", got)
	}
	if got := unwrapPermanent(cause); got != cause {
		t.Fatalf("plain errors must pass through, got %v", got)
	}
}
