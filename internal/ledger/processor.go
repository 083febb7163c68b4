package ledger

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dkoutsos/agency/internal/config"
	"github.com/dkoutsos/agency/internal/database"
	"github.com/dkoutsos/agency/internal/domain"
)

// Processor runs the posting pipeline: static validation, balance
// feasibility, fraud screen, decision, atomic post. Postings on the same
// account are serialized by a per-account mutex; transfers take both locks
// in account-id order. The row insert and the balance update commit in one
// store transaction, so a failure past the decision step leaves no balance
// change observable.
type Processor struct {
	cfg      *config.Config
	db       *database.DB
	accounts *AccountRegistry
	txns     *TransactionRepository
	fraud    *FraudScreen
	log      zerolog.Logger

	lockMu       sync.Mutex
	accountLocks map[string]*sync.Mutex
}

// NewProcessor creates a new transaction processor.
func NewProcessor(cfg *config.Config, db *database.DB, accounts *AccountRegistry, txns *TransactionRepository, fraud *FraudScreen, log zerolog.Logger) *Processor {
	return &Processor{
		cfg:          cfg,
		db:           db,
		accounts:     accounts,
		txns:         txns,
		fraud:        fraud,
		log:          log.With().Str("component", "processor").Logger(),
		accountLocks: make(map[string]*sync.Mutex),
	}
}

// SubmitTransaction runs one transaction through the full pipeline.
// On success the acknowledgement carries the new balance and processed time.
// Failures return a tagged error: invalid_transaction or account_not_found
// for validation failures, insufficient_balance for infeasible debits,
// held_for_review for high-risk transactions (persisted for audit),
// constraint_violation for a duplicate transaction id.
func (p *Processor) SubmitTransaction(txn *domain.Transaction) (*domain.PostResult, error) {
	p.prepare(txn)

	if exists, err := p.txns.Exists(txn.ID); err != nil {
		return nil, err
	} else if exists {
		return nil, domain.Ef(domain.KindConstraintViolation, "transaction already recorded: %s", txn.ID)
	}

	lock := p.accountLock(txn.AccountID)
	lock.Lock()
	defer lock.Unlock()

	return p.submitLocked(txn)
}

// Transfer moves amount between two accounts as a debit on the source and a
// credit on the destination sharing one reference. Both account locks are
// held for the whole operation. A debit whose paired credit fails is
// compensated by a reversing credit when transfer auto-revert is enabled.
func (p *Processor) Transfer(fromID, toID string, amount decimal.Decimal, description string) (*domain.TransferResult, error) {
	if fromID == toID {
		return nil, domain.E(domain.KindInvalidTransaction, "transfer source and destination must differ")
	}

	reference := "TRF-" + uuid.NewString()
	now := time.Now().UTC()

	debit := &domain.Transaction{
		AccountID:     fromID,
		Direction:     domain.Debit,
		Amount:        amount,
		Category:      domain.CategoryTransfer,
		Description:   fmt.Sprintf("Transfer out: %s", description),
		Reference:     reference,
		TransactionAt: now,
	}
	credit := &domain.Transaction{
		AccountID:     toID,
		Direction:     domain.Credit,
		Amount:        amount,
		Category:      domain.CategoryTransfer,
		Description:   fmt.Sprintf("Transfer in: %s", description),
		Reference:     reference,
		TransactionAt: now,
	}
	p.prepare(debit)
	p.prepare(credit)

	first, second := p.accountLock(fromID), p.accountLock(toID)
	if toID < fromID {
		first, second = second, first
	}
	first.Lock()
	defer first.Unlock()
	second.Lock()
	defer second.Unlock()

	if _, err := p.submitLocked(debit); err != nil {
		return nil, err
	}

	if _, err := p.submitLocked(credit); err != nil {
		if p.cfg.TransferAutoRevert {
			p.compensate(debit, reference)
		}
		return nil, domain.Wrap(domain.KindInvalidTransaction, "transfer credit leg failed", err)
	}

	p.log.Info().
		Str("reference", reference).
		Str("from", fromID).
		Str("to", toID).
		Str("amount", amount.String()).
		Msg("Transfer completed")

	return &domain.TransferResult{
		DebitID:   debit.ID,
		CreditID:  credit.ID,
		Reference: reference,
		Amount:    amount,
	}, nil
}

// SubmitRevenue credits the primary revenue account.
func (p *Processor) SubmitRevenue(amount decimal.Decimal, description, subcategory, taskID, projectID, workerID string) (*domain.PostResult, error) {
	accounts := p.accounts.ListByType(domain.AccountPrimaryRevenue)
	if len(accounts) == 0 {
		return nil, domain.E(domain.KindAccountNotFound, "no primary revenue account")
	}
	return p.SubmitTransaction(&domain.Transaction{
		AccountID:   accounts[0].ID,
		Direction:   domain.Credit,
		Amount:      amount,
		Category:    domain.CategoryRevenue,
		Subcategory: subcategory,
		Description: description,
		TaskID:      taskID,
		ProjectID:   projectID,
		WorkerID:    workerID,
	})
}

// SubmitExpense debits the operational expense account.
func (p *Processor) SubmitExpense(amount decimal.Decimal, category domain.TransactionCategory, description, taskID, projectID, workerID string) (*domain.PostResult, error) {
	accounts := p.accounts.ListByType(domain.AccountOperationalExpense)
	if len(accounts) == 0 {
		return nil, domain.E(domain.KindAccountNotFound, "no operational expense account")
	}
	if !category.IsExpense() {
		category = domain.CategoryOperationalExpense
	}
	return p.SubmitTransaction(&domain.Transaction{
		AccountID:   accounts[0].ID,
		Direction:   domain.Debit,
		Amount:      amount,
		Category:    category,
		Description: description,
		TaskID:      taskID,
		ProjectID:   projectID,
		WorkerID:    workerID,
	})
}

// prepare fills identity and intent time when the submitter omits them.
func (p *Processor) prepare(txn *domain.Transaction) {
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if txn.TransactionAt.IsZero() {
		txn.TransactionAt = time.Now().UTC()
	}
	txn.Status = domain.StatusPending
}

// submitLocked runs the pipeline for one transaction. The caller must hold
// the account's lock.
func (p *Processor) submitLocked(txn *domain.Transaction) (*domain.PostResult, error) {
	account, reasons := p.validate(txn)
	if len(reasons) > 0 {
		if account != nil {
			p.persistAudit(txn, domain.StatusRejected)
		}
		return nil, domain.Ef(domain.KindInvalidTransaction, "transaction rejected: %s", strings.Join(reasons, "; "))
	}

	if txn.Direction == domain.Debit && !account.Type.AllowsNegativeBalance() &&
		account.Balance.LessThan(txn.Amount) {
		p.persistAudit(txn, domain.StatusRejected)
		return nil, domain.Ef(domain.KindInsufficientBalance,
			"insufficient balance: have %s, need %s", account.Balance.String(), txn.Amount.String())
	}

	assessment, err := p.fraud.Assess(txn)
	if err != nil {
		return nil, err
	}
	if assessment.Level == domain.RiskHigh {
		if txn.Metadata == nil {
			txn.Metadata = make(map[string]string)
		}
		txn.Metadata["risk_score"] = fmt.Sprintf("%d", assessment.Score)
		txn.Metadata["risk_factors"] = strings.Join(assessment.Factors, ",")
		p.persistAudit(txn, domain.StatusRequiresReview)
		return nil, domain.Ef(domain.KindHeldForReview,
			"held for review: %s", strings.Join(assessment.Factors, ", "))
	}

	return p.postLocked(txn, account.Balance)
}

// postLocked atomically writes the validated row and the new balance.
// The caller must hold the account's lock and have passed every gate.
func (p *Processor) postLocked(txn *domain.Transaction, currentBalance decimal.Decimal) (*domain.PostResult, error) {
	processedAt := time.Now().UTC()
	newBalance := currentBalance.Add(txn.Amount)
	if txn.Direction == domain.Debit {
		newBalance = currentBalance.Sub(txn.Amount)
	}

	txn.Status = domain.StatusValidated
	txn.ProcessedAt = &processedAt

	err := p.db.WithTransaction(func(tx *sql.Tx) error {
		if err := p.txns.InsertTx(tx, txn); err != nil {
			return err
		}
		return p.accounts.PersistBalanceTx(tx, txn.AccountID, newBalance, processedAt)
	})
	if err != nil {
		txn.Status = domain.StatusPending
		txn.ProcessedAt = nil
		return nil, err
	}
	p.accounts.ApplyBalance(txn.AccountID, newBalance, processedAt)

	p.log.Info().
		Str("transaction_id", txn.ID).
		Str("account_id", txn.AccountID).
		Str("direction", string(txn.Direction)).
		Str("amount", txn.Amount.String()).
		Str("new_balance", newBalance.String()).
		Msg("Transaction posted")

	return &domain.PostResult{
		TransactionID: txn.ID,
		NewBalance:    newBalance,
		ProcessedAt:   processedAt,
	}, nil
}

// validate runs the static checks. It returns the account (nil when the
// account gate fails) and the list of failure reasons.
func (p *Processor) validate(txn *domain.Transaction) (*domain.Account, []string) {
	var reasons []string

	if txn.Description == "" {
		reasons = append(reasons, "description is required")
	}
	if txn.Direction != domain.Credit && txn.Direction != domain.Debit {
		reasons = append(reasons, fmt.Sprintf("unknown direction %q", txn.Direction))
	}
	if !txn.Amount.IsPositive() {
		reasons = append(reasons, "amount must be positive")
	} else if txn.Amount.LessThan(p.cfg.MinTxnAmount) || txn.Amount.GreaterThan(p.cfg.MaxTxnAmount) {
		reasons = append(reasons, fmt.Sprintf("amount %s outside allowed range [%s, %s]",
			txn.Amount.String(), p.cfg.MinTxnAmount.String(), p.cfg.MaxTxnAmount.String()))
	}

	account, err := p.accounts.Get(txn.AccountID)
	if err != nil {
		reasons = append(reasons, fmt.Sprintf("account not found: %s", txn.AccountID))
		return nil, reasons
	}
	if account.Status != domain.AccountActive {
		reasons = append(reasons, fmt.Sprintf("account %s is not active", txn.AccountID))
	}

	return &account, reasons
}

// persistAudit stores a rejected or requires-review row. Audit persistence
// is best effort; a store failure here must not mask the pipeline verdict.
func (p *Processor) persistAudit(txn *domain.Transaction, status domain.ValidationStatus) {
	txn.Status = status
	if err := p.txns.Insert(txn); err != nil {
		p.log.Error().Err(err).
			Str("transaction_id", txn.ID).
			Str("status", string(status)).
			Msg("Failed to persist audit row")
	}
}

// compensate posts a reversing credit for a debit whose paired credit leg
// failed. The reversal is system-issued and skips the fraud screen; it must
// never itself be held for review. The caller must still hold the source
// account's lock.
func (p *Processor) compensate(debit *domain.Transaction, reference string) {
	reversal := &domain.Transaction{
		AccountID:     debit.AccountID,
		Direction:     domain.Credit,
		Amount:        debit.Amount,
		Category:      domain.CategoryTransfer,
		Description:   fmt.Sprintf("Reversal of failed transfer %s", reference),
		Reference:     reference,
		TransactionAt: time.Now().UTC(),
		Metadata:      map[string]string{"reverses": debit.ID},
	}
	p.prepare(reversal)

	account, err := p.accounts.Get(reversal.AccountID)
	if err != nil {
		p.log.Error().Err(err).Str("reference", reference).Msg("Transfer compensation failed, account missing")
		return
	}

	if _, err := p.postLocked(reversal, account.Balance); err != nil {
		p.log.Error().Err(err).
			Str("reference", reference).
			Str("debit_id", debit.ID).
			Msg("Transfer compensation failed, balances require manual review")
	}
}

// accountLock returns the mutex serializing postings on one account.
func (p *Processor) accountLock(accountID string) *sync.Mutex {
	p.lockMu.Lock()
	defer p.lockMu.Unlock()
	lock, ok := p.accountLocks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		p.accountLocks[accountID] = lock
	}
	return lock
}
