package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tokoshop/internal/database"
	"tokoshop/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, database.MemoryDSN(uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db.WithContext(context.Background())
}

func seedProduct(t *testing.T, db *gorm.DB, name string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{Name: name, Price: decimal.NewFromInt(100), CountInStock: stock}
	require.NoError(t, NewGORMProductRepository().Create(db, p))
	return p
}

func reload(t *testing.T, db *gorm.DB, id string) *models.Product {
	t.Helper()
	p, err := NewGORMProductRepository().GetByID(db, id)
	require.NoError(t, err)
	return p
}
