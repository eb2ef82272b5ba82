package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// lockForUpdate applies a pessimistic row lock on dialects that support it.
// SQLite has no FOR UPDATE; it serializes writers on its own, which is enough
// for the single-connection databases used in tests.
func lockForUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}
