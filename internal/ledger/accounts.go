// Package ledger implements the transactional ledger core: account registry,
// transaction processor, fraud screen and period reporting over the durable
// store.
package ledger

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dkoutsos/agency/internal/database"
	"github.com/dkoutsos/agency/internal/domain"
)

// AccountRegistry is the authoritative in-memory cache of accounts with
// write-through persistence. The cache is loaded fully at bootstrap;
// mutations are persisted first and applied in memory only on success.
// Balance updates must only come from within the transaction processor's
// per-account critical section.
type AccountRegistry struct {
	db    *database.DB
	log   zerolog.Logger
	mu    sync.RWMutex
	cache map[string]domain.Account
}

// NewAccountRegistry creates the registry and loads all active accounts.
func NewAccountRegistry(db *database.DB, log zerolog.Logger) (*AccountRegistry, error) {
	r := &AccountRegistry{
		db:    db,
		log:   log.With().Str("component", "accounts").Logger(),
		cache: make(map[string]domain.Account),
	}
	if err := r.loadCache(); err != nil {
		return nil, fmt.Errorf("failed to load account cache: %w", err)
	}
	return r, nil
}

// Create persists a new account and adds it to the cache.
func (r *AccountRegistry) Create(name string, accountType domain.AccountType, initialBalance decimal.Decimal, currency string) (domain.Account, error) {
	account := domain.Account{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      accountType,
		Balance:   initialBalance,
		Currency:  currency,
		Status:    domain.AccountActive,
		CreatedAt: time.Now().UTC(),
	}

	_, err := r.db.Exec(`
		INSERT INTO accounts
		(account_id, account_name, account_type, current_balance, currency, status, creation_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.Name,
		string(account.Type),
		account.Balance.String(),
		account.Currency,
		string(account.Status),
		account.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return domain.Account{}, domain.Wrap(domain.KindStoreUnavailable, "failed to create account", err)
	}

	r.mu.Lock()
	r.cache[account.ID] = account
	r.mu.Unlock()

	r.log.Info().
		Str("account_id", account.ID).
		Str("type", string(accountType)).
		Str("balance", initialBalance.String()).
		Msg("Account created")

	return account, nil
}

// Get returns the account, preferring the cache.
func (r *AccountRegistry) Get(accountID string) (domain.Account, error) {
	r.mu.RLock()
	account, ok := r.cache[accountID]
	r.mu.RUnlock()
	if ok {
		return account, nil
	}
	return domain.Account{}, domain.Ef(domain.KindAccountNotFound, "account not found: %s", accountID)
}

// ListByType returns all active accounts of the given type.
func (r *AccountRegistry) ListByType(accountType domain.AccountType) []domain.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var accounts []domain.Account
	for _, account := range r.cache {
		if account.Type == accountType && account.Status == domain.AccountActive {
			accounts = append(accounts, account)
		}
	}
	return accounts
}

// UpdateBalance writes the new balance through to the store and then updates
// the cache. On store failure the cache is untouched and the operation fails.
// Callers must hold the processor's per-account lock.
func (r *AccountRegistry) UpdateBalance(accountID string, newBalance decimal.Decimal, asOf time.Time) error {
	r.mu.RLock()
	_, ok := r.cache[accountID]
	r.mu.RUnlock()
	if !ok {
		return domain.Ef(domain.KindAccountNotFound, "account not found: %s", accountID)
	}

	_, err := r.db.Exec(`
		UPDATE accounts
		SET current_balance = ?, last_transaction_date = ?
		WHERE account_id = ?`,
		newBalance.String(),
		asOf.UTC().Format(time.RFC3339Nano),
		accountID,
	)
	if err != nil {
		return domain.Wrap(domain.KindStoreUnavailable, "failed to persist balance", err)
	}

	r.ApplyBalance(accountID, newBalance, asOf)
	return nil
}

// PersistBalanceTx writes the balance row inside an open store transaction.
// The cache is not touched; call ApplyBalance after the commit succeeds.
func (r *AccountRegistry) PersistBalanceTx(tx *sql.Tx, accountID string, newBalance decimal.Decimal, asOf time.Time) error {
	_, err := tx.Exec(`
		UPDATE accounts
		SET current_balance = ?, last_transaction_date = ?
		WHERE account_id = ?`,
		newBalance.String(),
		asOf.UTC().Format(time.RFC3339Nano),
		accountID,
	)
	if err != nil {
		return domain.Wrap(domain.KindStoreUnavailable, "failed to persist balance", err)
	}
	return nil
}

// ApplyBalance updates only the in-memory copy. Callers must have already
// persisted the balance and must hold the processor's per-account lock.
func (r *AccountRegistry) ApplyBalance(accountID string, newBalance decimal.Decimal, asOf time.Time) {
	asOfUTC := asOf.UTC()
	r.mu.Lock()
	account, ok := r.cache[accountID]
	if ok {
		account.Balance = newBalance
		account.LastTransaction = &asOfUTC
		r.cache[accountID] = account
	}
	r.mu.Unlock()
}

// Summary returns a snapshot aggregation of all active accounts.
func (r *AccountRegistry) Summary() domain.AccountSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summary := domain.AccountSummary{
		ByType: make(map[domain.AccountType]domain.AccountTypeSummary),
	}
	for _, account := range r.cache {
		if account.Status != domain.AccountActive {
			continue
		}
		summary.TotalAccounts++
		ts := summary.ByType[account.Type]
		ts.Count++
		ts.TotalBalance = ts.TotalBalance.Add(account.Balance)
		summary.ByType[account.Type] = ts
		summary.Accounts = append(summary.Accounts, account)
	}
	return summary
}

// Bootstrap ensures the default account structure exists: exactly one
// primary-revenue account (balance 0), one operational-expense account
// (balance 1000.00, the initial operational funds) and a reserve fund.
func (r *AccountRegistry) Bootstrap(currency string) (revenueID, expenseID string, err error) {
	if existing := r.ListByType(domain.AccountPrimaryRevenue); len(existing) > 0 {
		revenueID = existing[0].ID
	} else {
		account, err := r.Create("Primary Revenue Account", domain.AccountPrimaryRevenue, decimal.Zero, currency)
		if err != nil {
			return "", "", err
		}
		revenueID = account.ID
	}

	if existing := r.ListByType(domain.AccountOperationalExpense); len(existing) > 0 {
		expenseID = existing[0].ID
	} else {
		account, err := r.Create("Operational Expense Account", domain.AccountOperationalExpense, decimal.RequireFromString("1000.00"), currency)
		if err != nil {
			return "", "", err
		}
		expenseID = account.ID
	}

	if existing := r.ListByType(domain.AccountReserve); len(existing) == 0 {
		if _, err := r.Create("Reserve Fund", domain.AccountReserve, decimal.Zero, currency); err != nil {
			return "", "", err
		}
	}

	return revenueID, expenseID, nil
}

// loadCache loads all active accounts from the store.
func (r *AccountRegistry) loadCache() error {
	rows, err := r.db.Query(`
		SELECT account_id, account_name, account_type, current_balance,
		       currency, status, creation_date, last_transaction_date
		FROM accounts WHERE status = 'active'`)
	if err != nil {
		return fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	r.mu.Lock()
	defer r.mu.Unlock()

	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return err
		}
		r.cache[account.ID] = account
	}
	return rows.Err()
}

func scanAccount(rows *sql.Rows) (domain.Account, error) {
	var (
		account                 domain.Account
		accountType, status     string
		balanceStr, createdStr  string
		lastTransactionStr      sql.NullString
	)
	if err := rows.Scan(&account.ID, &account.Name, &accountType, &balanceStr,
		&account.Currency, &status, &createdStr, &lastTransactionStr); err != nil {
		return domain.Account{}, fmt.Errorf("failed to scan account: %w", err)
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return domain.Account{}, fmt.Errorf("corrupt balance for account %s: %w", account.ID, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, createdStr)
	if err != nil {
		return domain.Account{}, fmt.Errorf("corrupt creation date for account %s: %w", account.ID, err)
	}

	account.Type = domain.AccountType(accountType)
	account.Status = domain.AccountStatus(status)
	account.Balance = balance
	account.CreatedAt = createdAt
	if lastTransactionStr.Valid {
		if t, err := time.Parse(time.RFC3339Nano, lastTransactionStr.String); err == nil {
			account.LastTransaction = &t
		}
	}
	return account, nil
}
