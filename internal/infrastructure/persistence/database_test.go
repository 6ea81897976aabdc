package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestOpen_RegistersTenantGuard(t *testing.T) {
	db := newTestDatabase(t)
	assert.NotNil(t, db.DB.Callback().Query().Get("tenant:before_query"))
	assert.NotNil(t, db.DB.Callback().Create().Get("tenant:before_create"))
}

func TestDatabase_AutoMigrate(t *testing.T) {
	db := newTestDatabase(t)
	for _, table := range []string{"receivables", "payment_events", "history_entries"} {
		assert.True(t, db.DB.Migrator().HasTable(table), table)
	}
	assert.True(t, db.DB.Migrator().HasIndex("receivables", "idx_receivable_tenant_document"))
	assert.True(t, db.DB.Migrator().HasIndex("payment_events", "idx_payment_tenant_idempotency"))
}

func TestDatabase_Stats(t *testing.T) {
	db, _, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	stats, err := db.Stats()
	assert.NoError(t, err)
	assert.IsType(t, ConnectionStats{}, stats)
}

func TestDatabase_Ping(t *testing.T) {
	t.Run("successful ping", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectPing()
		assert.NoError(t, db.Ping())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ping failure", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectPing().WillReturnError(assert.AnError)
		assert.Error(t, db.Ping())
	})
}

func TestDatabase_Close(t *testing.T) {
	db, mock, _ := newMockDatabase(t)
	mock.ExpectClose()
	require.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTranslateError(t *testing.T) {
	assert.NoError(t, translateError(nil, errReceivableNotFound, nil))
	assert.Equal(t, errReceivableNotFound, translateError(gorm.ErrRecordNotFound, errReceivableNotFound, nil))
	assert.Equal(t, errDuplicateDocument, translateError(gorm.ErrDuplicatedKey, nil, errDuplicateDocument))

	wrapped := translateError(assert.AnError, errReceivableNotFound, errDuplicateDocument)
	assert.ErrorIs(t, wrapped, assert.AnError)
	assert.Contains(t, wrapped.Error(), "database:")
}

func TestValidateSortOrder(t *testing.T) {
	assert.Equal(t, "ASC", ValidateSortOrder(" asc "))
	assert.Equal(t, "DESC", ValidateSortOrder("desc"))
	assert.Equal(t, "DESC", ValidateSortOrder("; DROP TABLE receivables"))
	assert.Equal(t, "DESC", ValidateSortOrder(""))
}
