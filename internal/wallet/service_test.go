package wallet_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/walletops/internal/domain"
	"github.com/punchamoorthee/walletops/internal/store/memory"
	"github.com/punchamoorthee/walletops/internal/wallet"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newTestService(t *testing.T) (*wallet.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	asset := store.Bootstrap("Gold Coins", "GOLD", "Treasury")
	store.AddAccount(domain.AccountUser, "alice", "alice", asset.ID)
	store.AddAccount(domain.AccountUser, "bob", "bob", asset.ID)
	svc := wallet.NewService(store, wallet.Config{}, zerolog.Nop())
	return svc, store
}

func opReq(owner, amount, key string) domain.OperationRequest {
	return domain.OperationRequest{
		OwnerID:        owner,
		Amount:         decimal.RequireFromString(amount),
		IdempotencyKey: key,
	}
}

func balanceOf(t *testing.T, svc *wallet.Service, owner string) decimal.Decimal {
	t.Helper()
	res, err := svc.GetBalance(context.Background(), owner, "")
	require.NoError(t, err)
	return res.Balance
}

func treasuryBalance(t *testing.T, store *memory.Store) decimal.Decimal {
	t.Helper()
	var balance decimal.Decimal
	err := store.View(context.Background(), func(sc wallet.Scope) error {
		treasury, err := sc.SystemAccount(context.Background(), "Treasury", 1)
		if err != nil {
			return err
		}
		balance, err = sc.Balance(context.Background(), treasury.ID)
		return err
	})
	require.NoError(t, err)
	return balance
}

func TestIssueBonus_CreditsUser(t *testing.T) {
	svc, _ := newTestService(t)

	res, err := svc.IssueBonus(context.Background(), opReq("alice", "799.00", uuid.NewString()))
	require.NoError(t, err)

	assert.Equal(t, domain.ResultSuccess, res.Status)
	assert.Equal(t, "alice", res.OwnerID)
	assert.Equal(t, "GOLD", res.AssetCode)
	assert.True(t, res.NewBalance.Equal(decimal.RequireFromString("799.00")))

	_, err = uuid.Parse(res.TransactionGroupID)
	assert.NoError(t, err, "transaction group ID should be a UUID")
}

func TestSpend_WorkedScenario(t *testing.T) {
	// The canonical flow: 799 bonus, 700 spend, replayed spend, rejected
	// overspend. Balances and entry counts must match at every step.
	svc, _ := newTestService(t)
	ctx := context.Background()

	k1, k2, k3 := uuid.NewString(), uuid.NewString(), uuid.NewString()

	_, err := svc.IssueBonus(ctx, opReq("alice", "799.00", k1))
	require.NoError(t, err)
	assert.True(t, balanceOf(t, svc, "alice").Equal(decimal.RequireFromString("799.00")))

	spendRes, err := svc.Spend(ctx, opReq("alice", "700.00", k2))
	require.NoError(t, err)
	assert.Equal(t, domain.ResultSuccess, spendRes.Status)
	assert.True(t, balanceOf(t, svc, "alice").Equal(decimal.RequireFromString("99.00")))

	// Retrying the same spend must not move money again.
	replay, err := svc.Spend(ctx, opReq("alice", "700.00", k2))
	require.NoError(t, err)
	assert.Equal(t, domain.ResultAlreadyProcessed, replay.Status)
	assert.Equal(t, spendRes.TransactionGroupID, replay.TransactionGroupID)
	assert.True(t, balanceOf(t, svc, "alice").Equal(decimal.RequireFromString("99.00")))

	// Overspend is rejected with nothing written.
	_, err = svc.Spend(ctx, opReq("alice", "500.00", k3))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindInsufficientFunds))
	assert.True(t, balanceOf(t, svc, "alice").Equal(decimal.RequireFromString("99.00")))

	list, err := svc.ListTransactions(ctx, "alice", "", 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, list.Total, "only the bonus and the one spend should exist")
}

func TestOperations_InputValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Spend(ctx, opReq("alice", "10.00", ""))
	assert.True(t, domain.IsKind(err, domain.KindMissingIdempotencyKey))

	_, err = svc.IssueBonus(ctx, opReq("alice", "0", uuid.NewString()))
	assert.True(t, domain.IsKind(err, domain.KindInvalidAmount))

	_, err = svc.IssueBonus(ctx, opReq("alice", "-5.00", uuid.NewString()))
	assert.True(t, domain.IsKind(err, domain.KindInvalidAmount))

	_, err = svc.IssueBonus(ctx, opReq("nobody", "5.00", uuid.NewString()))
	assert.True(t, domain.IsKind(err, domain.KindAccountNotFound))
}

func TestIssueBonus_MissingTreasuryIsConfigFault(t *testing.T) {
	store := memory.New()
	asset := store.AddAsset("Gold Coins", "GOLD", "")
	store.AddAccount(domain.AccountUser, "alice", "alice", asset.ID)
	svc := wallet.NewService(store, wallet.Config{}, zerolog.Nop())

	_, err := svc.IssueBonus(context.Background(), opReq("alice", "10.00", uuid.NewString()))
	assert.True(t, domain.IsKind(err, domain.KindSystemAccountNotFound))
}

func TestTopUp_RecordsExternalReference(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req := opReq("alice", "25.00", uuid.NewString())
	req.ExternalReference = "psp-ref-8841"
	res, err := svc.TopUp(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultSuccess, res.Status)

	list, err := svc.ListTransactions(ctx, "alice", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, list.Entries, 1)
	entry := list.Entries[0]
	assert.Equal(t, domain.EntryTopUp, entry.Type)
	assert.Equal(t, "psp-ref-8841", entry.ExternalReference)
	assert.Equal(t, domain.DirectionCredit, entry.Direction)
}

func TestPriorFailedRecordBlocksKeyReuse(t *testing.T) {
	// The engine never writes status=failed itself, but a record left by
	// external tooling must still block the key.
	svc, store := newTestService(t)
	ctx := context.Background()
	key := uuid.NewString()

	err := store.WithinTx(ctx, func(sc wallet.Scope) error {
		return sc.SaveIdempotencyRecord(ctx, &domain.IdempotencyRecord{
			Key:           key,
			OperationType: domain.EntrySpend,
			Status:        domain.StatusFailed,
			CreatedAt:     time.Now().UTC(),
		})
	})
	require.NoError(t, err)

	_, err = svc.Spend(ctx, opReq("alice", "10.00", key))
	assert.True(t, domain.IsKind(err, domain.KindPriorAttemptFailed))
}

func TestConservation_AcrossOperations(t *testing.T) {
	// Value is only moved, never created: the treasury's derived balance
	// must always mirror the users' balances exactly.
	svc, store := newTestService(t)
	ctx := context.Background()

	_, err := svc.IssueBonus(ctx, opReq("alice", "100.00", uuid.NewString()))
	require.NoError(t, err)
	_, err = svc.TopUp(ctx, opReq("bob", "40.00", uuid.NewString()))
	require.NoError(t, err)
	_, err = svc.Spend(ctx, opReq("alice", "30.00", uuid.NewString()))
	require.NoError(t, err)

	total := balanceOf(t, svc, "alice").
		Add(balanceOf(t, svc, "bob")).
		Add(treasuryBalance(t, store))
	assert.True(t, total.IsZero(), "credits and debits must cancel, got %s", total)
}

func TestAtomicity_FailedAppendLeavesNothing(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	key := uuid.NewString()

	_, err := svc.IssueBonus(ctx, opReq("alice", "50.00", uuid.NewString()))
	require.NoError(t, err)

	store.AppendFault = func(*domain.LedgerEntry) error {
		return errors.New("simulated write failure")
	}
	_, err = svc.Spend(ctx, opReq("alice", "10.00", key))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindStoreUnavailable))

	// Nothing from the failed attempt may be visible: the key must read as
	// fresh, not as a stuck failed record.
	err = store.View(ctx, func(sc wallet.Scope) error {
		rec, err := sc.IdempotencyRecord(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, rec, "failed attempt must roll back its idempotency write")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, balanceOf(t, svc, "alice").Equal(decimal.RequireFromString("50.00")))

	// Same key succeeds once the fault clears.
	store.AppendFault = nil
	res, err := svc.Spend(ctx, opReq("alice", "10.00", key))
	require.NoError(t, err)
	assert.Equal(t, domain.ResultSuccess, res.Status)
}

func TestConcurrentSpends_ExactlyOneSucceeds(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.IssueBonus(ctx, opReq("alice", "799.00", uuid.NewString()))
	require.NoError(t, err)

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.Spend(ctx, opReq("alice", "700.00", uuid.NewString()))
			results <- err
		}()
	}

	var failures, successes int
	for i := 0; i < 2; i++ {
		select {
		case err := <-results:
			if err == nil {
				successes++
			} else {
				assert.True(t, domain.IsKind(err, domain.KindInsufficientFunds))
				failures++
			}
		case <-time.After(5 * time.Second):
			t.Fatal("spend did not complete, possible deadlock")
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, failures)
	assert.True(t, balanceOf(t, svc, "alice").Equal(decimal.RequireFromString("99.00")))

	list, err := svc.ListTransactions(ctx, "alice", "", 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, list.Total)
}

func TestConcurrentMixedOperations_AllComplete(t *testing.T) {
	// Deadlock freedom: many concurrent operations against the same account
	// pair, initiated from both roles, must all finish.
	svc, _ := newTestService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := svc.IssueBonus(ctx, opReq("alice", "1000.00", uuid.NewString()))
	require.NoError(t, err)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 20; i++ {
		spend := i%2 == 0
		g.Go(func() error {
			var err error
			if spend {
				_, err = svc.Spend(gctx, opReq("alice", "1.00", uuid.NewString()))
			} else {
				_, err = svc.IssueBonus(gctx, opReq("alice", "1.00", uuid.NewString()))
			}
			if err != nil && !domain.IsKind(err, domain.KindInsufficientFunds) {
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.NoError(t, ctx.Err(), "operations should finish well before the timeout")
}

func TestListTransactions_PaginationAndOrder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var groups []string
	for i := 0; i < 5; i++ {
		res, err := svc.IssueBonus(ctx, opReq("alice", "10.00", uuid.NewString()))
		require.NoError(t, err)
		groups = append(groups, res.TransactionGroupID)
	}

	page, err := svc.ListTransactions(ctx, "alice", "", 2, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 5, page.Total)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, groups[4], page.Entries[0].TransactionGroupID, "most recent first")
	assert.Equal(t, groups[3], page.Entries[1].TransactionGroupID)

	last, err := svc.ListTransactions(ctx, "alice", "", 2, 4)
	require.NoError(t, err)
	require.Len(t, last.Entries, 1)
	assert.Equal(t, groups[0], last.Entries[0].TransactionGroupID)
}

func TestGetBalance_EmptyAccountIsZero(t *testing.T) {
	svc, _ := newTestService(t)

	res, err := svc.GetBalance(context.Background(), "bob", "")
	require.NoError(t, err)
	assert.True(t, res.Balance.IsZero())
}

func TestReplayIgnoresOperationType(t *testing.T) {
	// Keys are scoped to the key itself, not the operation: reusing a bonus
	// key on a spend replays the bonus outcome rather than spending.
	svc, _ := newTestService(t)
	ctx := context.Background()
	key := uuid.NewString()

	bonus, err := svc.IssueBonus(ctx, opReq("alice", "20.00", key))
	require.NoError(t, err)

	replay, err := svc.Spend(ctx, opReq("alice", "20.00", key))
	require.NoError(t, err)
	assert.Equal(t, domain.ResultAlreadyProcessed, replay.Status)
	assert.Equal(t, bonus.TransactionGroupID, replay.TransactionGroupID)
	assert.True(t, balanceOf(t, svc, "alice").Equal(decimal.RequireFromString("20.00")))
}
