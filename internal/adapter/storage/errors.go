package storage

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/smart-shop/internal/core/domain"
)

var (
	ErrOptimisticLock = fmt.Errorf("optimistic lock conflict: %w", domain.ErrConflict)
	ErrForeignKey     = fmt.Errorf("foreign key constraint: %w", domain.ErrConflict)
)

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrRowIsReferenced = 1451
	mysqlErrNoReferencedRow = 1452
)

// translate maps driver errors onto storage and domain errors.
func translate(err error) error {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return err
	}
	switch me.Number {
	case mysqlErrDuplicateEntry:
		return fmt.Errorf("%s: %w", me.Message, domain.ErrAlreadyExists)
	case mysqlErrRowIsReferenced, mysqlErrNoReferencedRow:
		return fmt.Errorf("%s: %w", me.Message, ErrForeignKey)
	}
	return err
}
