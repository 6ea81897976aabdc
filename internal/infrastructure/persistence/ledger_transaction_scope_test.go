package persistence

import (
	"context"
	"testing"

	appledger "github.com/erp/receivables/internal/application/ledger"
	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormTransactionScope(t *testing.T) {
	db := newTestDatabase(t)
	scope := NewGormTransactionScope(db.DB)
	ctx := context.Background()
	actor := shared.NewActor(uuid.New(), uuid.New())

	t.Run("commits every repository write together", func(t *testing.T) {
		r := newTestReceivable(t, actor, "NF-T1", "100", day(2024, 2, 1))
		err := scope.Execute(ctx, func(repos appledger.TransactionalRepositories) error {
			if err := repos.Receivables().Create(ctx, r); err != nil {
				return err
			}
			e := newTestPayment(t, actor, r, "100", day(2024, 1, 2), "")
			if err := repos.Payments().Create(ctx, e); err != nil {
				return err
			}
			return repos.History().Append(ctx, ledger.NewPaymentHistory(actor, r, e, day(2024, 1, 2)))
		})
		require.NoError(t, err)

		events, err := NewGormPaymentEventRepository(db.DB).FindByReceivable(ctx, actor.TenantID, r.ID)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("rolls back when a later write fails", func(t *testing.T) {
		r := newTestReceivable(t, actor, "NF-T2", "100", day(2024, 2, 1))
		err := scope.Execute(ctx, func(repos appledger.TransactionalRepositories) error {
			if err := repos.Receivables().Create(ctx, r); err != nil {
				return err
			}
			e := newTestPayment(t, actor, r, "10", day(2024, 1, 2), "")
			if err := repos.Payments().Create(ctx, e); err != nil {
				return err
			}
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)

		_, err = NewGormReceivableRepository(db.DB).FindByID(ctx, actor.TenantID, r.ID)
		assert.True(t, shared.IsNotFound(err))
		events, err := NewGormPaymentEventRepository(db.DB).FindByReceivable(ctx, actor.TenantID, r.ID)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}
