package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dkoutsos/agency/internal/database"
	"github.com/dkoutsos/agency/internal/domain"
)

// TransactionRepository persists transactions and answers the activity
// queries the fraud screen and the reporting system need. Rows are
// write-once: a transaction id is a primary key, so a duplicate submit
// surfaces as a constraint violation instead of a second posting.
type TransactionRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewTransactionRepository creates a new transaction repository.
func NewTransactionRepository(db *database.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:  db,
		log: log.With().Str("component", "transactions").Logger(),
	}
}

const insertTransactionSQL = `
	INSERT INTO transactions
	(transaction_id, account_id, direction, amount, category, subcategory,
	 description, reference_number, transaction_date, processed_date,
	 validation_status, related_task_id, related_project_id,
	 related_worker_id, external_reference, metadata)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Insert writes one transaction row. The validation status is whatever the
// processor decided; rejected and requires-review rows are kept for audit.
func (r *TransactionRepository) Insert(txn *domain.Transaction) error {
	args, err := insertArgs(txn)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(insertTransactionSQL, args...)
	return wrapInsertError(err)
}

// InsertTx writes one transaction row inside an open store transaction.
// The posting pipeline uses this to commit the row and the balance update
// as a unit.
func (r *TransactionRepository) InsertTx(tx *sql.Tx, txn *domain.Transaction) error {
	args, err := insertArgs(txn)
	if err != nil {
		return err
	}
	_, err = tx.Exec(insertTransactionSQL, args...)
	return wrapInsertError(err)
}

// Exists reports whether a transaction id is already recorded.
func (r *TransactionRepository) Exists(id string) (bool, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM transactions WHERE transaction_id = ?`, id).Scan(&count)
	if err != nil {
		return false, domain.Wrap(domain.KindStoreUnavailable, "failed to check transaction id", err)
	}
	return count > 0, nil
}

func insertArgs(txn *domain.Transaction) ([]interface{}, error) {
	metadataJSON := ""
	if len(txn.Metadata) > 0 {
		b, err := json.Marshal(txn.Metadata)
		if err != nil {
			return nil, domain.Wrap(domain.KindSerializationFailure, "failed to encode metadata", err)
		}
		metadataJSON = string(b)
	}

	var processed interface{}
	if txn.ProcessedAt != nil {
		processed = txn.ProcessedAt.UTC().Format(time.RFC3339Nano)
	}

	return []interface{}{
		txn.ID,
		txn.AccountID,
		string(txn.Direction),
		txn.Amount.String(),
		string(txn.Category),
		nullable(txn.Subcategory),
		txn.Description,
		nullable(txn.Reference),
		txn.TransactionAt.UTC().Format(time.RFC3339Nano),
		processed,
		string(txn.Status),
		nullable(txn.TaskID),
		nullable(txn.ProjectID),
		nullable(txn.WorkerID),
		nullable(txn.ExternalRef),
		nullable(metadataJSON),
	}, nil
}

func wrapInsertError(err error) error {
	if err == nil {
		return nil
	}
	if isConstraintError(err) {
		return domain.Wrap(domain.KindConstraintViolation, "duplicate or invalid transaction row", err)
	}
	return domain.Wrap(domain.KindStoreUnavailable, "failed to store transaction", err)
}

// DailyValidatedTotal sums validated transaction amounts for the account on
// the given calendar day (UTC). Used by the daily-cap fraud rule.
func (r *TransactionRepository) DailyValidatedTotal(accountID string, day time.Time) (decimal.Decimal, error) {
	var totalStr sql.NullString
	err := r.db.QueryRow(`
		SELECT COALESCE(SUM(CAST(amount AS REAL)), 0)
		FROM transactions
		WHERE account_id = ? AND DATE(transaction_date) = ? AND validation_status = 'validated'`,
		accountID, day.UTC().Format("2006-01-02"),
	).Scan(&totalStr)
	if err != nil {
		return decimal.Zero, domain.Wrap(domain.KindStoreUnavailable, "failed to query daily total", err)
	}
	if !totalStr.Valid || totalStr.String == "" {
		return decimal.Zero, nil
	}
	total, err := decimal.NewFromString(totalStr.String)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt daily total: %w", err)
	}
	return total, nil
}

// CountRecent counts validated transactions for the account inside the
// window ending at asOf. Used by the rapid-succession fraud rule.
func (r *TransactionRepository) CountRecent(accountID string, window time.Duration, asOf time.Time) (int, error) {
	since := asOf.Add(-window)
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*)
		FROM transactions
		WHERE account_id = ? AND validation_status = 'validated'
		  AND transaction_date >= ? AND transaction_date <= ?`,
		accountID,
		since.UTC().Format(time.RFC3339Nano),
		asOf.UTC().Format(time.RFC3339Nano),
	).Scan(&count)
	if err != nil {
		return 0, domain.Wrap(domain.KindStoreUnavailable, "failed to count recent transactions", err)
	}
	return count, nil
}

// ValidatedForPeriod returns all validated transactions inside [start, end]
// ordered by transaction date. Feeds period aggregation.
func (r *TransactionRepository) ValidatedForPeriod(start, end time.Time) ([]domain.Transaction, error) {
	rows, err := r.db.Query(`
		SELECT transaction_id, account_id, direction, amount, category,
		       subcategory, description, reference_number, transaction_date,
		       processed_date, validation_status, related_task_id,
		       related_project_id, related_worker_id, external_reference, metadata
		FROM transactions
		WHERE DATE(transaction_date) >= ? AND DATE(transaction_date) <= ?
		  AND validation_status = 'validated'
		ORDER BY transaction_date`,
		start.UTC().Format("2006-01-02"), end.UTC().Format("2006-01-02"))
	if err != nil {
		return nil, domain.Wrap(domain.KindStoreUnavailable, "failed to query period transactions", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// ByReference returns all transactions sharing a transfer reference.
func (r *TransactionRepository) ByReference(reference string) ([]domain.Transaction, error) {
	rows, err := r.db.Query(`
		SELECT transaction_id, account_id, direction, amount, category,
		       subcategory, description, reference_number, transaction_date,
		       processed_date, validation_status, related_task_id,
		       related_project_id, related_worker_id, external_reference, metadata
		FROM transactions
		WHERE reference_number = ?
		ORDER BY transaction_date`, reference)
	if err != nil {
		return nil, domain.Wrap(domain.KindStoreUnavailable, "failed to query by reference", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// Get returns one transaction by id.
func (r *TransactionRepository) Get(id string) (domain.Transaction, error) {
	rows, err := r.db.Query(`
		SELECT transaction_id, account_id, direction, amount, category,
		       subcategory, description, reference_number, transaction_date,
		       processed_date, validation_status, related_task_id,
		       related_project_id, related_worker_id, external_reference, metadata
		FROM transactions WHERE transaction_id = ?`, id)
	if err != nil {
		return domain.Transaction{}, domain.Wrap(domain.KindStoreUnavailable, "failed to query transaction", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return domain.Transaction{}, domain.Ef(domain.KindInvalidTransaction, "transaction not found: %s", id)
	}
	return scanTransaction(rows)
}

func scanTransaction(rows *sql.Rows) (domain.Transaction, error) {
	var (
		txn          domain.Transaction
		direction    string
		amountStr    string
		category     string
		status       string
		txnDateStr   string
		subcategory  sql.NullString
		reference    sql.NullString
		processedStr sql.NullString
		taskID       sql.NullString
		projectID    sql.NullString
		workerID     sql.NullString
		externalRef  sql.NullString
		metadataJSON sql.NullString
	)
	if err := rows.Scan(&txn.ID, &txn.AccountID, &direction, &amountStr,
		&category, &subcategory, &txn.Description, &reference, &txnDateStr,
		&processedStr, &status, &taskID, &projectID, &workerID,
		&externalRef, &metadataJSON); err != nil {
		return domain.Transaction{}, fmt.Errorf("failed to scan transaction: %w", err)
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("corrupt amount for transaction %s: %w", txn.ID, err)
	}
	txnDate, err := time.Parse(time.RFC3339Nano, txnDateStr)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("corrupt date for transaction %s: %w", txn.ID, err)
	}

	txn.Direction = domain.TransactionDirection(direction)
	txn.Amount = amount
	txn.Category = domain.TransactionCategory(category)
	txn.Status = domain.ValidationStatus(status)
	txn.TransactionAt = txnDate
	txn.Subcategory = subcategory.String
	txn.Reference = reference.String
	txn.TaskID = taskID.String
	txn.ProjectID = projectID.String
	txn.WorkerID = workerID.String
	txn.ExternalRef = externalRef.String

	if processedStr.Valid {
		if t, err := time.Parse(time.RFC3339Nano, processedStr.String); err == nil {
			txn.ProcessedAt = &t
		}
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		_ = json.Unmarshal([]byte(metadataJSON.String), &txn.Metadata)
	}
	return txn, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func isConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "FOREIGN KEY constraint") ||
		strings.Contains(msg, "constraint failed")
}
