// Package memory is a mutex-guarded, in-process implementation of the wallet
// store. It backs unit tests and the "memory" driver for local development.
// Scopes are serialized by a single writer lock, which trivially satisfies
// the lock-ordering and isolation requirements of the postgres store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/punchamoorthee/walletops/internal/domain"
	"github.com/punchamoorthee/walletops/internal/wallet"
	"github.com/shopspring/decimal"
)

type Store struct {
	mu sync.RWMutex

	assets   []domain.Asset
	accounts []domain.Account
	entries  []domain.LedgerEntry
	idem     map[string]domain.IdempotencyRecord

	nextAssetID   int64
	nextAccountID int64
	nextEntryID   int64

	// AppendFault, when set, is invoked before every ledger append and its
	// error aborts the append. Fault-injection hook for atomicity tests.
	AppendFault func(*domain.LedgerEntry) error
}

var _ wallet.Store = (*Store)(nil)

func New() *Store {
	return &Store{idem: make(map[string]domain.IdempotencyRecord)}
}

// AddAsset registers an asset and returns it with its assigned ID.
func (s *Store) AddAsset(name, code, description string) domain.Asset {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAssetID++
	asset := domain.Asset{
		ID:          s.nextAssetID,
		Name:        name,
		Code:        code,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	s.assets = append(s.assets, asset)
	return asset
}

// AddAccount registers an account. ownerID must be empty for system accounts.
func (s *Store) AddAccount(accountType domain.AccountType, ownerID, name string, assetID int64) domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAccountID++
	account := domain.Account{
		ID:        s.nextAccountID,
		Type:      accountType,
		Name:      name,
		AssetID:   assetID,
		CreatedAt: time.Now().UTC(),
	}
	if ownerID != "" {
		owner := ownerID
		account.OwnerID = &owner
	}
	s.accounts = append(s.accounts, account)
	return account
}

// Bootstrap provisions one asset and its treasury account, mirroring what
// the seeder does for postgres.
func (s *Store) Bootstrap(assetName, assetCode, treasuryName string) domain.Asset {
	asset := s.AddAsset(assetName, assetCode, "")
	s.AddAccount(domain.AccountSystem, "", treasuryName, asset.ID)
	return asset
}

func (s *Store) WithinTx(ctx context.Context, fn func(wallet.Scope) error) error {
	if err := ctx.Err(); err != nil {
		return domain.WrapE(domain.KindStoreUnavailable, err, "scope not started")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sc := &scope{store: s, writable: true}
	if err := fn(sc); err != nil {
		sc.rollback()
		return err
	}
	return nil
}

func (s *Store) View(ctx context.Context, fn func(wallet.Scope) error) error {
	if err := ctx.Err(); err != nil {
		return domain.WrapE(domain.KindStoreUnavailable, err, "scope not started")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&scope{store: s})
}

// scope journals its writes so a failed unit of work can be undone while
// the store lock is still held.
type scope struct {
	store    *Store
	writable bool

	appended int
	keys     []string
}

func (sc *scope) rollback() {
	s := sc.store
	if sc.appended > 0 {
		s.entries = s.entries[:len(s.entries)-sc.appended]
		s.nextEntryID -= int64(sc.appended)
	}
	for _, key := range sc.keys {
		delete(s.idem, key)
	}
}

func (sc *scope) UserAccount(_ context.Context, ownerID, assetCode string) (*domain.Account, error) {
	for i := range sc.store.accounts {
		a := sc.store.accounts[i]
		if a.Type != domain.AccountUser || a.OwnerID == nil || *a.OwnerID != ownerID {
			continue
		}
		if asset, ok := sc.store.assetByID(a.AssetID); ok && asset.Code == assetCode {
			out := a
			return &out, nil
		}
	}
	return nil, domain.Ef(domain.KindAccountNotFound, "no account for owner %q and asset %q", ownerID, assetCode)
}

func (sc *scope) SystemAccount(_ context.Context, name string, assetID int64) (*domain.Account, error) {
	for i := range sc.store.accounts {
		a := sc.store.accounts[i]
		if a.Type == domain.AccountSystem && a.Name == name && a.AssetID == assetID {
			out := a
			return &out, nil
		}
	}
	return nil, domain.Ef(domain.KindSystemAccountNotFound, "system account %q not provisioned for asset %d", name, assetID)
}

func (sc *scope) LockAccounts(_ context.Context, ids ...int64) error {
	// The store lock already serializes writers; this only verifies the
	// rows exist, in the same ascending order the postgres store locks in.
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for _, id := range sorted {
		if _, ok := sc.store.accountByID(id); !ok {
			return domain.Ef(domain.KindAccountNotFound, "account %d does not exist", id)
		}
	}
	return nil
}

func (sc *scope) Balance(_ context.Context, accountID int64) (decimal.Decimal, error) {
	balance := decimal.Zero
	for i := range sc.store.entries {
		e := &sc.store.entries[i]
		if e.CreditAccountID == accountID {
			balance = balance.Add(e.Amount)
		}
		if e.DebitAccountID == accountID {
			balance = balance.Sub(e.Amount)
		}
	}
	return balance, nil
}

func (sc *scope) AppendEntry(_ context.Context, e *domain.LedgerEntry) (int64, error) {
	if !sc.writable {
		return 0, domain.E(domain.KindStoreUnavailable, "append inside read-only scope")
	}
	if !e.Amount.IsPositive() {
		return 0, domain.Ef(domain.KindInvalidAmount, "entry amount must be positive, got %s", e.Amount)
	}
	if e.DebitAccountID == e.CreditAccountID {
		return 0, domain.E(domain.KindInvalidAmount, "debit and credit accounts must differ")
	}
	if _, ok := sc.store.accountByID(e.DebitAccountID); !ok {
		return 0, domain.Ef(domain.KindStoreUnavailable, "debit account %d does not exist", e.DebitAccountID)
	}
	if _, ok := sc.store.accountByID(e.CreditAccountID); !ok {
		return 0, domain.Ef(domain.KindStoreUnavailable, "credit account %d does not exist", e.CreditAccountID)
	}
	if sc.store.AppendFault != nil {
		if err := sc.store.AppendFault(e); err != nil {
			return 0, err
		}
	}

	sc.store.nextEntryID++
	stored := *e
	stored.ID = sc.store.nextEntryID
	if stored.ExecutedAt.IsZero() {
		stored.ExecutedAt = time.Now().UTC()
	}
	sc.store.entries = append(sc.store.entries, stored)
	sc.appended++
	return stored.ID, nil
}

func (sc *scope) EntriesByOwner(ctx context.Context, ownerID, assetCode string, limit, offset int) ([]domain.OwnerEntry, int64, error) {
	account, err := sc.UserAccount(ctx, ownerID, assetCode)
	if err != nil {
		return nil, 0, err
	}

	var mine []domain.OwnerEntry
	for i := range sc.store.entries {
		e := sc.store.entries[i]
		switch account.ID {
		case e.CreditAccountID:
			mine = append(mine, domain.OwnerEntry{LedgerEntry: e, Direction: domain.DirectionCredit})
		case e.DebitAccountID:
			mine = append(mine, domain.OwnerEntry{LedgerEntry: e, Direction: domain.DirectionDebit})
		}
	}
	total := int64(len(mine))

	// Most-recent-first.
	sort.Slice(mine, func(i, j int) bool { return mine[i].ID > mine[j].ID })
	if offset >= len(mine) {
		return []domain.OwnerEntry{}, total, nil
	}
	mine = mine[offset:]
	if limit > 0 && limit < len(mine) {
		mine = mine[:limit]
	}
	return mine, total, nil
}

func (sc *scope) IdempotencyRecord(_ context.Context, key string) (*domain.IdempotencyRecord, error) {
	rec, ok := sc.store.idem[key]
	if !ok {
		return nil, nil
	}
	out := rec
	return &out, nil
}

func (sc *scope) SaveIdempotencyRecord(_ context.Context, rec *domain.IdempotencyRecord) error {
	if !sc.writable {
		return domain.E(domain.KindStoreUnavailable, "write inside read-only scope")
	}
	if _, exists := sc.store.idem[rec.Key]; exists {
		return domain.Ef(domain.KindDuplicateKeyRace, "idempotency key %q already recorded", rec.Key)
	}
	sc.store.idem[rec.Key] = *rec
	sc.keys = append(sc.keys, rec.Key)
	return nil
}

func (s *Store) assetByID(id int64) (domain.Asset, bool) {
	for _, a := range s.assets {
		if a.ID == id {
			return a, true
		}
	}
	return domain.Asset{}, false
}

func (s *Store) accountByID(id int64) (domain.Account, bool) {
	for _, a := range s.accounts {
		if a.ID == id {
			return a, true
		}
	}
	return domain.Account{}, false
}
