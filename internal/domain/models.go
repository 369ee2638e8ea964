package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType distinguishes provisioned system accounts from user wallets.
type AccountType string

const (
	AccountSystem AccountType = "system"
	AccountUser   AccountType = "user"
)

// EntryType tags a ledger entry with the operation that produced it.
type EntryType string

const (
	EntryBonus    EntryType = "bonus"
	EntrySpend    EntryType = "spend"
	EntryTopUp    EntryType = "topup"
	EntryTransfer EntryType = "transfer"
)

// Asset is a unit of value tracked by the ledger (e.g. GOLD).
type Asset struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Account is a ledger-visible holder of asset balance. OwnerID is nil for
// system accounts such as the treasury. Balances are never stored on the
// account; they are always derived from ledger entries.
type Account struct {
	ID        int64       `json:"id"`
	Type      AccountType `json:"account_type"`
	OwnerID   *string     `json:"owner_id,omitempty"`
	Name      string      `json:"name"`
	AssetID   int64       `json:"asset_id"`
	CreatedAt time.Time   `json:"created_at"`
}

// LedgerEntry is one immutable value movement. Every entry has exactly one
// debit side and one credit side, a strictly positive amount, and belongs to
// a transaction group shared by all entries of one logical operation.
type LedgerEntry struct {
	ID                 int64           `json:"id"`
	TransactionGroupID string          `json:"transaction_group_id"`
	DebitAccountID     int64           `json:"debit_account_id"`
	CreditAccountID    int64           `json:"credit_account_id"`
	Amount             decimal.Decimal `json:"amount"`
	AssetID            int64           `json:"asset_id"`
	Type               EntryType       `json:"type"`
	Description        string          `json:"description,omitempty"`
	ExternalReference  string          `json:"external_reference,omitempty"`
	IdempotencyKey     *string         `json:"idempotency_key,omitempty"`
	ExecutedAt         time.Time       `json:"executed_at"`
}

// EntryDirection annotates an entry relative to a queried owner.
type EntryDirection string

const (
	DirectionDebit  EntryDirection = "debit"
	DirectionCredit EntryDirection = "credit"
)

// OwnerEntry is a ledger entry viewed from one account's perspective.
type OwnerEntry struct {
	LedgerEntry
	Direction EntryDirection `json:"direction"`
}

// IdempotencyStatus records the outcome stored for an idempotency key.
// The engine only ever writes StatusProcessed; StatusFailed remains
// representable so records written by external tooling still block reuse.
type IdempotencyStatus string

const (
	StatusProcessed IdempotencyStatus = "processed"
	StatusFailed    IdempotencyStatus = "failed"
)

// IdempotencyRecord is the persisted outcome for one caller-supplied key.
type IdempotencyRecord struct {
	Key                string            `json:"key"`
	OperationType      EntryType         `json:"operation_type"`
	AccountID          *int64            `json:"account_id,omitempty"`
	TransactionGroupID *string           `json:"transaction_group_id,omitempty"`
	Status             IdempotencyStatus `json:"status"`
	ResponsePayload    []byte            `json:"response_payload,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	ExpiresAt          *time.Time        `json:"expires_at,omitempty"`
}

// Operation result statuses.
const (
	ResultSuccess          = "success"
	ResultAlreadyProcessed = "already_processed"
)

// OperationRequest carries the caller's intent for a money-movement
// operation. AssetCode and Description are optional; the service fills in
// defaults. ExternalReference is only meaningful for top-ups.
type OperationRequest struct {
	OwnerID           string
	Amount            decimal.Decimal
	AssetCode         string
	IdempotencyKey    string
	Description       string
	ExternalReference string
}

// OperationResult is returned by every money-movement operation. On a
// replayed idempotency key Status is "already_processed" and only the
// TransactionGroupID and Message fields are meaningful.
type OperationResult struct {
	Status             string          `json:"status"`
	TransactionGroupID string          `json:"transaction_group_id"`
	OwnerID            string          `json:"owner_id,omitempty"`
	Amount             decimal.Decimal `json:"amount,omitempty"`
	NewBalance         decimal.Decimal `json:"new_balance,omitempty"`
	AssetCode          string          `json:"asset_code,omitempty"`
	Message            string          `json:"message,omitempty"`
}

// BalanceResult is the read-path payload for a balance query.
type BalanceResult struct {
	OwnerID   string          `json:"owner_id"`
	AssetCode string          `json:"asset_code"`
	Balance   decimal.Decimal `json:"balance"`
}

// TransactionList is a page of an owner's ledger history.
type TransactionList struct {
	OwnerID   string       `json:"owner_id"`
	AssetCode string       `json:"asset_code"`
	Entries   []OwnerEntry `json:"entries"`
	Total     int64        `json:"total"`
	Limit     int          `json:"limit"`
	Offset    int          `json:"offset"`
}
