package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tokoshop/internal/models"
)

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("oracle", "whatever")
	assert.Error(t, err)
}

func TestOpenAndMigrate_SQLite(t *testing.T) {
	db, err := Open(DriverSQLite, MemoryDSN(uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	assert.True(t, db.Migrator().HasTable(&models.Reservation{}))
	assert.True(t, db.Migrator().HasTable(&models.Order{}))
	assert.True(t, db.Migrator().HasTable(&models.MaterializationFailure{}))
}

func TestIsDuplicateKey_OrderPaymentID(t *testing.T) {
	db, err := Open(DriverSQLite, MemoryDSN(uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	first := models.Order{ID: uuid.NewString(), UserID: "u1", Status: models.OrderProcessed, PaymentID: "ORDER-1", TotalPrice: decimal.NewFromInt(10)}
	second := models.Order{ID: uuid.NewString(), UserID: "u1", Status: models.OrderProcessed, PaymentID: "ORDER-1", TotalPrice: decimal.NewFromInt(10)}

	require.NoError(t, db.Create(&first).Error)
	err = db.Create(&second).Error
	require.Error(t, err)
	assert.True(t, IsDuplicateKey(err))
	assert.False(t, IsConflict(err))
}

func TestIsConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, true},
		{"pg deadlock", fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"pg unique", &pgconn.PgError{Code: "23505"}, false},
		{"mysql deadlock", &mysql.MySQLError{Number: 1213}, true},
		{"mysql lock wait", &mysql.MySQLError{Number: 1205}, true},
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, true},
		{"sqlite locked", sqlite3.Error{Code: sqlite3.ErrLocked}, true},
		{"record not found", gorm.ErrRecordNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConflict(tt.err))
		})
	}
}

func TestIsDuplicateKey_DriverErrors(t *testing.T) {
	assert.True(t, IsDuplicateKey(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsDuplicateKey(&mysql.MySQLError{Number: 1062}))
	assert.True(t, IsDuplicateKey(gorm.ErrDuplicatedKey))
	assert.False(t, IsDuplicateKey(&pgconn.PgError{Code: "40001"}))
	assert.False(t, IsDuplicateKey(nil))
}
