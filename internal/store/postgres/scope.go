package postgres

import (
	"context"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/punchamoorthee/walletops/internal/domain"
	"github.com/shopspring/decimal"
)

type txScope struct {
	tx pgx.Tx
}

func (sc *txScope) UserAccount(ctx context.Context, ownerID, assetCode string) (*domain.Account, error) {
	var account domain.Account
	err := sc.tx.QueryRow(ctx, `
		SELECT a.id, a.account_type, a.owner_id, a.name, a.asset_id, a.created_at
		FROM accounts a
		JOIN assets s ON s.id = a.asset_id
		WHERE a.account_type = 'user' AND a.owner_id = $1 AND s.code = $2`,
		ownerID, assetCode,
	).Scan(&account.ID, &account.Type, &account.OwnerID, &account.Name, &account.AssetID, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.Ef(domain.KindAccountNotFound, "no account for owner %q and asset %q", ownerID, assetCode)
		}
		return nil, translate(err, "resolving user account")
	}
	return &account, nil
}

func (sc *txScope) SystemAccount(ctx context.Context, name string, assetID int64) (*domain.Account, error) {
	var account domain.Account
	err := sc.tx.QueryRow(ctx, `
		SELECT id, account_type, owner_id, name, asset_id, created_at
		FROM accounts
		WHERE account_type = 'system' AND name = $1 AND asset_id = $2`,
		name, assetID,
	).Scan(&account.ID, &account.Type, &account.OwnerID, &account.Name, &account.AssetID, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.Ef(domain.KindSystemAccountNotFound, "system account %q not provisioned for asset %d", name, assetID)
		}
		return nil, translate(err, "resolving system account")
	}
	return &account, nil
}

func (sc *txScope) LockAccounts(ctx context.Context, ids ...int64) error {
	// Ascending-ID acquisition is the global lock order; two operations
	// contending for the same account pair can never deadlock each other.
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for _, id := range sorted {
		var locked int64
		err := sc.tx.QueryRow(ctx, "SELECT id FROM accounts WHERE id = $1 FOR UPDATE", id).Scan(&locked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.Ef(domain.KindAccountNotFound, "account %d does not exist", id)
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return domain.WrapE(domain.KindLockTimeout, err, "lock acquisition timed out")
			}
			return translate(err, "lock acquisition failed")
		}
	}
	return nil
}

func (sc *txScope) Balance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	var raw string
	err := sc.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN credit_account_id = $1 THEN amount ELSE -amount END), 0)::text
		FROM ledger_entries
		WHERE credit_account_id = $1 OR debit_account_id = $1`,
		accountID,
	).Scan(&raw)
	if err != nil {
		return decimal.Zero, translate(err, "deriving balance")
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, domain.WrapE(domain.KindStoreUnavailable, err, "parsing derived balance")
	}
	return balance, nil
}

func (sc *txScope) AppendEntry(ctx context.Context, e *domain.LedgerEntry) (int64, error) {
	if !e.Amount.IsPositive() {
		return 0, domain.Ef(domain.KindInvalidAmount, "entry amount must be positive, got %s", e.Amount)
	}
	if e.DebitAccountID == e.CreditAccountID {
		return 0, domain.E(domain.KindInvalidAmount, "debit and credit accounts must differ")
	}
	var id int64
	err := sc.tx.QueryRow(ctx, `
		INSERT INTO ledger_entries
			(transaction_group_id, debit_account_id, credit_account_id, amount,
			 asset_id, type, description, external_reference, idempotency_key, executed_at)
		VALUES ($1::uuid, $2, $3, $4::numeric, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10)
		RETURNING id`,
		e.TransactionGroupID, e.DebitAccountID, e.CreditAccountID, e.Amount.String(),
		e.AssetID, string(e.Type), e.Description, e.ExternalReference, e.IdempotencyKey, e.ExecutedAt,
	).Scan(&id)
	if err != nil {
		return 0, translate(err, "ledger append failed")
	}
	return id, nil
}

func (sc *txScope) EntriesByOwner(ctx context.Context, ownerID, assetCode string, limit, offset int) ([]domain.OwnerEntry, int64, error) {
	account, err := sc.UserAccount(ctx, ownerID, assetCode)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	err = sc.tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM ledger_entries
		WHERE credit_account_id = $1 OR debit_account_id = $1`,
		account.ID,
	).Scan(&total)
	if err != nil {
		return nil, 0, translate(err, "counting entries")
	}

	rows, err := sc.tx.Query(ctx, `
		SELECT e.id, e.transaction_group_id::text, e.debit_account_id, e.credit_account_id,
		       e.amount::text, e.asset_id, e.type, COALESCE(e.description, ''),
		       COALESCE(e.external_reference, ''), e.idempotency_key, e.executed_at,
		       CASE WHEN e.credit_account_id = $1 THEN 'credit' ELSE 'debit' END
		FROM ledger_entries e
		WHERE e.credit_account_id = $1 OR e.debit_account_id = $1
		ORDER BY e.id DESC
		LIMIT $2 OFFSET $3`,
		account.ID, limit, offset,
	)
	if err != nil {
		return nil, 0, translate(err, "querying entries")
	}
	defer rows.Close()

	entries := []domain.OwnerEntry{}
	for rows.Next() {
		var (
			entry  domain.OwnerEntry
			amount string
		)
		err := rows.Scan(&entry.ID, &entry.TransactionGroupID, &entry.DebitAccountID, &entry.CreditAccountID,
			&amount, &entry.AssetID, &entry.Type, &entry.Description,
			&entry.ExternalReference, &entry.IdempotencyKey, &entry.ExecutedAt, &entry.Direction)
		if err != nil {
			return nil, 0, translate(err, "scanning entry")
		}
		entry.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, 0, domain.WrapE(domain.KindStoreUnavailable, err, "parsing entry amount")
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, translate(err, "iterating entries")
	}
	return entries, total, nil
}

func (sc *txScope) IdempotencyRecord(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	err := sc.tx.QueryRow(ctx, `
		SELECT key, operation_type, account_id, transaction_group_id::text,
		       status, response_payload, created_at, expires_at
		FROM idempotency_keys
		WHERE key = $1`,
		key,
	).Scan(&rec.Key, &rec.OperationType, &rec.AccountID, &rec.TransactionGroupID,
		&rec.Status, &rec.ResponsePayload, &rec.CreatedAt, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, translate(err, "idempotency lookup failed")
	}
	return &rec, nil
}

func (sc *txScope) SaveIdempotencyRecord(ctx context.Context, rec *domain.IdempotencyRecord) error {
	_, err := sc.tx.Exec(ctx, `
		INSERT INTO idempotency_keys
			(key, operation_type, account_id, transaction_group_id, status, response_payload, created_at, expires_at)
		VALUES ($1, $2, $3, $4::uuid, $5, $6, $7, $8)`,
		rec.Key, string(rec.OperationType), rec.AccountID, rec.TransactionGroupID,
		string(rec.Status), rec.ResponsePayload, rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		return translate(err, "idempotency record failed")
	}
	return nil
}
