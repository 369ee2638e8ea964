package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/walletops/internal/domain"
	"github.com/rs/zerolog"
)

const (
	DefaultTreasuryName = "Treasury"
	DefaultAssetCode    = "GOLD"

	defaultBonusDescription = "Referral bonus"
	defaultSpendDescription = "In-game purchase"
	defaultTopUpDescription = "Wallet top-up"

	defaultPageSize = 20
	maxPageSize     = 100
)

// Config tunes the orchestrator. Zero values fall back to the defaults above.
type Config struct {
	TreasuryName     string
	DefaultAssetCode string
	MaxPageSize      int
}

// Service orchestrates the money-movement operations. It is stateless
// between invocations; every call opens its own atomic scope and holds no
// locks beyond it.
type Service struct {
	store Store
	cfg   Config
	log   zerolog.Logger
}

func NewService(store Store, cfg Config, log zerolog.Logger) *Service {
	if cfg.TreasuryName == "" {
		cfg.TreasuryName = DefaultTreasuryName
	}
	if cfg.DefaultAssetCode == "" {
		cfg.DefaultAssetCode = DefaultAssetCode
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = maxPageSize
	}
	return &Service{store: store, cfg: cfg, log: log}
}

// IssueBonus moves amount from the treasury to the user's account. The
// treasury is allowed unlimited issuance; no balance check is performed.
func (s *Service) IssueBonus(ctx context.Context, req domain.OperationRequest) (*domain.OperationResult, error) {
	if req.Description == "" {
		req.Description = defaultBonusDescription
	}
	return s.execute(ctx, domain.EntryBonus, req)
}

// Spend moves amount from the user's account to the treasury. Both account
// rows are locked in ascending ID order before the balance is re-derived,
// so a committed spend can never overdraw the account.
func (s *Service) Spend(ctx context.Context, req domain.OperationRequest) (*domain.OperationResult, error) {
	if req.Description == "" {
		req.Description = defaultSpendDescription
	}
	return s.execute(ctx, domain.EntrySpend, req)
}

// TopUp credits the user's account against an external payment, tagged with
// the payment reference for reconciliation. Structurally a bonus issuance.
func (s *Service) TopUp(ctx context.Context, req domain.OperationRequest) (*domain.OperationResult, error) {
	if req.Description == "" {
		req.Description = defaultTopUpDescription
	}
	return s.execute(ctx, domain.EntryTopUp, req)
}

// execute runs the shared operation skeleton: idempotency check, account
// resolution, optional lock-then-balance-check, ledger append, idempotency
// record, all inside one atomic scope. Any failure rolls back everything,
// including the idempotency write, so a retry with the same key starts fresh.
func (s *Service) execute(ctx context.Context, op domain.EntryType, req domain.OperationRequest) (*domain.OperationResult, error) {
	if req.IdempotencyKey == "" {
		return nil, domain.E(domain.KindMissingIdempotencyKey, "idempotency key is required")
	}
	if !req.Amount.IsPositive() {
		return nil, domain.Ef(domain.KindInvalidAmount, "amount must be positive, got %s", req.Amount)
	}
	assetCode := req.AssetCode
	if assetCode == "" {
		assetCode = s.cfg.DefaultAssetCode
	}

	var result *domain.OperationResult
	err := s.store.WithinTx(ctx, func(sc Scope) error {
		// 1. Idempotency check, inside the scope so check-then-act is atomic.
		rec, err := sc.IdempotencyRecord(ctx, req.IdempotencyKey)
		if err != nil {
			return err
		}
		if rec != nil {
			if rec.Status == domain.StatusProcessed {
				var groupID string
				if rec.TransactionGroupID != nil {
					groupID = *rec.TransactionGroupID
				}
				result = &domain.OperationResult{
					Status:             domain.ResultAlreadyProcessed,
					TransactionGroupID: groupID,
					Message:            fmt.Sprintf("%s already applied", op),
				}
				return nil
			}
			return domain.E(domain.KindPriorAttemptFailed, "previous attempt with this key failed, submit a new key")
		}

		// 2. Resolve user and treasury accounts for the asset.
		user, err := sc.UserAccount(ctx, req.OwnerID, assetCode)
		if err != nil {
			return err
		}
		treasury, err := sc.SystemAccount(ctx, s.cfg.TreasuryName, user.AssetID)
		if err != nil {
			return err
		}

		entry := &domain.LedgerEntry{
			TransactionGroupID: uuid.NewString(),
			Amount:             req.Amount,
			AssetID:            user.AssetID,
			Type:               op,
			Description:        req.Description,
			ExternalReference:  req.ExternalReference,
			IdempotencyKey:     &req.IdempotencyKey,
			ExecutedAt:         time.Now().UTC(),
		}

		if op == domain.EntrySpend {
			// 3. Lock both rows (ascending ID inside LockAccounts), then
			// re-derive the balance under the locks.
			if err := sc.LockAccounts(ctx, user.ID, treasury.ID); err != nil {
				return err
			}
			balance, err := sc.Balance(ctx, user.ID)
			if err != nil {
				return err
			}
			if balance.LessThan(req.Amount) {
				return domain.Ef(domain.KindInsufficientFunds,
					"balance %s is below requested %s", balance, req.Amount)
			}
			entry.DebitAccountID = user.ID
			entry.CreditAccountID = treasury.ID
		} else {
			entry.DebitAccountID = treasury.ID
			entry.CreditAccountID = user.ID
		}

		// 4. Append the immutable entry.
		if _, err := sc.AppendEntry(ctx, entry); err != nil {
			return err
		}

		newBalance, err := sc.Balance(ctx, user.ID)
		if err != nil {
			return err
		}
		result = &domain.OperationResult{
			Status:             domain.ResultSuccess,
			TransactionGroupID: entry.TransactionGroupID,
			OwnerID:            req.OwnerID,
			Amount:             req.Amount,
			NewBalance:         newBalance,
			AssetCode:          assetCode,
		}

		// 5. Record the outcome under the key. A unique violation here means
		// a concurrent caller raced past the check; the whole scope rolls
		// back and the caller retries with the same key.
		payload, err := json.Marshal(result)
		if err != nil {
			return domain.WrapE(domain.KindStoreUnavailable, err, "encoding response snapshot")
		}
		return sc.SaveIdempotencyRecord(ctx, &domain.IdempotencyRecord{
			Key:                req.IdempotencyKey,
			OperationType:      op,
			AccountID:          &user.ID,
			TransactionGroupID: &entry.TransactionGroupID,
			Status:             domain.StatusProcessed,
			ResponsePayload:    payload,
			CreatedAt:          time.Now().UTC(),
		})
	})
	if err != nil {
		s.logFailure(string(op), req.OwnerID, err)
		return nil, err
	}

	evt := s.log.Info().
		Str("operation", string(op)).
		Str("owner_id", req.OwnerID).
		Str("asset_code", assetCode).
		Str("status", result.Status)
	if result.Status == domain.ResultSuccess {
		evt = evt.Str("transaction_group_id", result.TransactionGroupID).
			Str("amount", req.Amount.String())
	}
	evt.Msg("wallet operation completed")
	return result, nil
}

// GetBalance derives the owner's current balance from the ledger.
func (s *Service) GetBalance(ctx context.Context, ownerID, assetCode string) (*domain.BalanceResult, error) {
	if assetCode == "" {
		assetCode = s.cfg.DefaultAssetCode
	}
	var result *domain.BalanceResult
	err := s.store.View(ctx, func(sc Scope) error {
		account, err := sc.UserAccount(ctx, ownerID, assetCode)
		if err != nil {
			return err
		}
		balance, err := sc.Balance(ctx, account.ID)
		if err != nil {
			return err
		}
		result = &domain.BalanceResult{OwnerID: ownerID, AssetCode: assetCode, Balance: balance}
		return nil
	})
	if err != nil {
		s.logFailure("balance", ownerID, err)
		return nil, err
	}
	return result, nil
}

// ListTransactions returns a most-recent-first page of the owner's ledger
// history, each entry annotated with its direction relative to the owner.
func (s *Service) ListTransactions(ctx context.Context, ownerID, assetCode string, limit, offset int) (*domain.TransactionList, error) {
	if assetCode == "" {
		assetCode = s.cfg.DefaultAssetCode
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	var result *domain.TransactionList
	err := s.store.View(ctx, func(sc Scope) error {
		entries, total, err := sc.EntriesByOwner(ctx, ownerID, assetCode, limit, offset)
		if err != nil {
			return err
		}
		result = &domain.TransactionList{
			OwnerID:   ownerID,
			AssetCode: assetCode,
			Entries:   entries,
			Total:     total,
			Limit:     limit,
			Offset:    offset,
		}
		return nil
	})
	if err != nil {
		s.logFailure("transactions", ownerID, err)
		return nil, err
	}
	return result, nil
}

// logFailure keeps configuration faults loud and user errors quiet. A
// missing treasury means the deployment was never provisioned.
func (s *Service) logFailure(op, ownerID string, err error) {
	kind := domain.KindOf(err)
	evt := s.log.Info()
	switch kind {
	case domain.KindSystemAccountNotFound, domain.KindStoreUnavailable:
		evt = s.log.Error()
	case domain.KindLockTimeout, domain.KindDuplicateKeyRace:
		evt = s.log.Warn()
	}
	evt.Err(err).
		Str("operation", op).
		Str("owner_id", ownerID).
		Str("kind", string(kind)).
		Msg("wallet operation failed")
}
