package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/punchamoorthee/walletops/internal/domain"
	"github.com/punchamoorthee/walletops/internal/wallet"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore(t *testing.T) (*Store, domain.Account, domain.Account) {
	t.Helper()
	store := New()
	asset := store.AddAsset("Gold Coins", "GOLD", "")
	treasury := store.AddAccount(domain.AccountSystem, "", "Treasury", asset.ID)
	user := store.AddAccount(domain.AccountUser, "alice", "alice", asset.ID)
	return store, treasury, user
}

func entry(debit, credit int64, amount string) *domain.LedgerEntry {
	return &domain.LedgerEntry{
		TransactionGroupID: "3f1f8a52-9c3e-4a7d-9a1e-6f2b7c9d0e11",
		DebitAccountID:     debit,
		CreditAccountID:    credit,
		Amount:             decimal.RequireFromString(amount),
		AssetID:            1,
		Type:               domain.EntryBonus,
		ExecutedAt:         time.Now().UTC(),
	}
}

func TestRollbackUndoesAllWrites(t *testing.T) {
	store, treasury, user := seededStore(t)
	ctx := context.Background()

	boom := errors.New("abort")
	err := store.WithinTx(ctx, func(sc wallet.Scope) error {
		if _, err := sc.AppendEntry(ctx, entry(treasury.ID, user.ID, "10.00")); err != nil {
			return err
		}
		if err := sc.SaveIdempotencyRecord(ctx, &domain.IdempotencyRecord{
			Key:    "key-1",
			Status: domain.StatusProcessed,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = store.View(ctx, func(sc wallet.Scope) error {
		balance, err := sc.Balance(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, balance.IsZero(), "rolled-back entry must not count")

		rec, err := sc.IdempotencyRecord(ctx, "key-1")
		require.NoError(t, err)
		assert.Nil(t, rec, "rolled-back idempotency record must be gone")
		return nil
	})
	require.NoError(t, err)
}

func TestBalanceDerivation(t *testing.T) {
	store, treasury, user := seededStore(t)
	ctx := context.Background()

	err := store.WithinTx(ctx, func(sc wallet.Scope) error {
		if _, err := sc.AppendEntry(ctx, entry(treasury.ID, user.ID, "100.00")); err != nil {
			return err
		}
		_, err := sc.AppendEntry(ctx, entry(user.ID, treasury.ID, "30.00"))
		return err
	})
	require.NoError(t, err)

	err = store.View(ctx, func(sc wallet.Scope) error {
		userBal, err := sc.Balance(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, userBal.Equal(decimal.RequireFromString("70.00")))

		treasuryBal, err := sc.Balance(ctx, treasury.ID)
		require.NoError(t, err)
		assert.True(t, treasuryBal.Equal(decimal.RequireFromString("-70.00")))
		return nil
	})
	require.NoError(t, err)
}

func TestAppendRejectsBadEntries(t *testing.T) {
	store, treasury, user := seededStore(t)
	ctx := context.Background()

	err := store.WithinTx(ctx, func(sc wallet.Scope) error {
		_, err := sc.AppendEntry(ctx, entry(treasury.ID, user.ID, "0"))
		assert.True(t, domain.IsKind(err, domain.KindInvalidAmount))

		_, err = sc.AppendEntry(ctx, entry(user.ID, user.ID, "5.00"))
		assert.True(t, domain.IsKind(err, domain.KindInvalidAmount), "self-transfer must be rejected")

		_, err = sc.AppendEntry(ctx, entry(treasury.ID, 999, "5.00"))
		assert.Error(t, err, "unknown credit account must be rejected")
		return nil
	})
	require.NoError(t, err)
}

func TestDuplicateIdempotencyKey(t *testing.T) {
	store, _, _ := seededStore(t)
	ctx := context.Background()

	save := func() error {
		return store.WithinTx(ctx, func(sc wallet.Scope) error {
			return sc.SaveIdempotencyRecord(ctx, &domain.IdempotencyRecord{
				Key:    "key-dup",
				Status: domain.StatusProcessed,
			})
		})
	}
	require.NoError(t, save())

	err := save()
	assert.True(t, domain.IsKind(err, domain.KindDuplicateKeyRace))
}

func TestViewScopeIsReadOnly(t *testing.T) {
	store, treasury, user := seededStore(t)
	ctx := context.Background()

	err := store.View(ctx, func(sc wallet.Scope) error {
		_, err := sc.AppendEntry(ctx, entry(treasury.ID, user.ID, "5.00"))
		assert.Error(t, err)

		err = sc.SaveIdempotencyRecord(ctx, &domain.IdempotencyRecord{Key: "k", Status: domain.StatusProcessed})
		assert.Error(t, err)
		return nil
	})
	require.NoError(t, err)
}

func TestEntriesByOwnerAnnotatesDirection(t *testing.T) {
	store, treasury, user := seededStore(t)
	ctx := context.Background()

	err := store.WithinTx(ctx, func(sc wallet.Scope) error {
		if _, err := sc.AppendEntry(ctx, entry(treasury.ID, user.ID, "100.00")); err != nil {
			return err
		}
		_, err := sc.AppendEntry(ctx, entry(user.ID, treasury.ID, "30.00"))
		return err
	})
	require.NoError(t, err)

	err = store.View(ctx, func(sc wallet.Scope) error {
		entries, total, err := sc.EntriesByOwner(ctx, "alice", "GOLD", 10, 0)
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		require.Len(t, entries, 2)
		// Most recent first: the spend leg, then the bonus leg.
		assert.Equal(t, domain.DirectionDebit, entries[0].Direction)
		assert.Equal(t, domain.DirectionCredit, entries[1].Direction)
		return nil
	})
	require.NoError(t, err)
}
