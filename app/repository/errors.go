package repository

import (
	"errors"
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PixelMart/internal/pkg/aderrors"
)

// MySQL server error numbers the services care about.
const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// mapError turns lock timeouts and deadlocks into aderrors.ErrConcurrencyConflict
// so services can retry them, and duplicate keys into gorm.ErrDuplicatedKey
// like the memory store reports them. Everything else passes through.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrLockWaitTimeout, mysqlErrDeadlock:
			return fmt.Errorf("%w: %s", aderrors.ErrConcurrencyConflict, myErr.Message)
		case mysqlErrDuplicateEntry:
			return fmt.Errorf("%w: %s", gorm.ErrDuplicatedKey, myErr.Message)
		}
	}
	return err
}
