package wallet

import (
	"context"

	"github.com/punchamoorthee/walletops/internal/domain"
	"github.com/shopspring/decimal"
)

// Scope is one atomic unit of work against the backing store. All reads and
// writes made through a scope become visible together on commit or not at
// all. The interface deliberately exposes no update or delete operation on
// ledger entries.
type Scope interface {
	// UserAccount resolves an owner identity plus asset code to an account.
	// Returns a KindAccountNotFound error when no such account exists.
	UserAccount(ctx context.Context, ownerID, assetCode string) (*domain.Account, error)

	// SystemAccount resolves a provisioned system account (e.g. the
	// treasury) scoped to one asset. Returns KindSystemAccountNotFound when
	// absent; that is a configuration fault, not a user error.
	SystemAccount(ctx context.Context, name string, assetID int64) (*domain.Account, error)

	// LockAccounts acquires exclusive row locks on the given accounts. The
	// implementation must acquire them in ascending account-ID order
	// regardless of argument order, so any two contending operations are
	// deadlock-free. Blocks until the locks are held, the context is done,
	// or the store's lock timeout elapses (KindLockTimeout).
	LockAccounts(ctx context.Context, ids ...int64) error

	// Balance derives credits minus debits over all ledger entries for the
	// account, as visible to this scope. Zero for an account with no entries.
	Balance(ctx context.Context, accountID int64) (decimal.Decimal, error)

	// AppendEntry inserts one immutable ledger entry and returns its ID.
	AppendEntry(ctx context.Context, e *domain.LedgerEntry) (int64, error)

	// EntriesByOwner returns the owner's entries most-recent-first, each
	// annotated with its direction relative to the owner, plus the total
	// entry count for the account.
	EntriesByOwner(ctx context.Context, ownerID, assetCode string, limit, offset int) ([]domain.OwnerEntry, int64, error)

	// IdempotencyRecord returns the record for key, or nil when the key has
	// never been seen.
	IdempotencyRecord(ctx context.Context, key string) (*domain.IdempotencyRecord, error)

	// SaveIdempotencyRecord persists the outcome for a key. A uniqueness
	// violation surfaces as KindDuplicateKeyRace; it means a concurrent
	// caller with the same key won the race past the check.
	SaveIdempotencyRecord(ctx context.Context, rec *domain.IdempotencyRecord) error
}

// Store hands out atomic scopes. Implementations: postgres (pgx transaction
// per scope) and memory (mutex-guarded, for tests and the dev driver).
type Store interface {
	// WithinTx runs fn inside one atomic scope. Any error from fn rolls the
	// scope back entirely, including idempotency writes, and is returned
	// unchanged.
	WithinTx(ctx context.Context, fn func(Scope) error) error

	// View runs fn inside a read-only scope.
	View(ctx context.Context, fn func(Scope) error) error
}
