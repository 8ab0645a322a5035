package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Base carries the connection a repository was built with: the pool, or the
// transaction handed over by db.Client.WithTx.
type Base struct {
	conn *gorm.DB
}

func NewBase(conn *gorm.DB) Base {
	return Base{conn: conn}
}

// DB scopes the connection to ctx.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.conn
	}
	return b.conn.WithContext(ctx)
}

// ForUpdate locks the selected rows on Postgres. sqlite has no row locks and
// gets the plain query.
func (b Base) ForUpdate(ctx context.Context) *gorm.DB {
	conn := b.DB(ctx)
	if conn.Dialector == nil || conn.Dialector.Name() != "postgres" {
		return conn
	}
	return conn.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

// FirstOrNil runs First on query and maps "no rows" to (nil, nil), the lookup
// contract shared by the vault repositories.
func FirstOrNil[T any](query *gorm.DB) (*T, error) {
	var row T
	if err := query.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
