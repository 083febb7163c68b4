// Package domain holds the pure data model shared by the ledger and the task
// distribution core. It has no infrastructure dependencies; components
// reference each other's entities by id strings only.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies an account. Exactly one primary-revenue and one
// operational-expense account exist after bootstrap; only operational-expense
// accounts may carry a negative balance.
type AccountType string

const (
	AccountPrimaryRevenue     AccountType = "primary_revenue"
	AccountOperationalExpense AccountType = "operational_expense"
	AccountReserve            AccountType = "reserve"
	AccountInvestment         AccountType = "investment"
)

// AllowsNegativeBalance reports whether the account type may be overdrawn.
// Investment accounts stay strict until clarified otherwise.
func (t AccountType) AllowsNegativeBalance() bool {
	return t == AccountOperationalExpense
}

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	AccountActive AccountStatus = "active"
	AccountClosed AccountStatus = "closed"
)

// Account is a ledger account. Balances are exact decimals; the Account
// Registry owns the authoritative in-memory copy and all balance mutation
// goes through the Transaction Processor.
type Account struct {
	ID              string
	Name            string
	Type            AccountType
	Balance         decimal.Decimal
	Currency        string
	Status          AccountStatus
	CreatedAt       time.Time
	LastTransaction *time.Time
}

// TransactionDirection is credit (balance increases) or debit (decreases).
type TransactionDirection string

const (
	Credit TransactionDirection = "credit"
	Debit  TransactionDirection = "debit"
)

// TransactionCategory buckets a transaction for reporting.
type TransactionCategory string

const (
	CategoryRevenue            TransactionCategory = "revenue"
	CategoryOperationalExpense TransactionCategory = "operational_expense"
	CategoryAgentCost          TransactionCategory = "agent_cost"
	CategoryInfrastructure     TransactionCategory = "infrastructure"
	CategoryMarketing          TransactionCategory = "marketing"
	CategoryDevelopment        TransactionCategory = "development"
	CategoryTransfer           TransactionCategory = "transfer"
	CategoryInvestment         TransactionCategory = "investment"
	CategoryDistribution       TransactionCategory = "distribution"
)

// ExpenseCategories are the categories counted as expenses in aggregation.
var ExpenseCategories = []TransactionCategory{
	CategoryOperationalExpense,
	CategoryAgentCost,
	CategoryInfrastructure,
	CategoryMarketing,
	CategoryDevelopment,
}

// IsExpense reports whether the category counts toward expense totals.
func (c TransactionCategory) IsExpense() bool {
	for _, ec := range ExpenseCategories {
		if c == ec {
			return true
		}
	}
	return false
}

// ValidationStatus tracks a transaction through the posting pipeline.
// Once the status leaves pending the row is write-once.
type ValidationStatus string

const (
	StatusPending        ValidationStatus = "pending"
	StatusValidated      ValidationStatus = "validated"
	StatusRejected       ValidationStatus = "rejected"
	StatusRequiresReview ValidationStatus = "requires_review"
)

// Transaction is a single ledger entry. Amount is always positive; the
// direction carries the sign. Transfers are two transactions sharing a
// Reference.
type Transaction struct {
	ID          string
	AccountID   string
	Direction   TransactionDirection
	Amount      decimal.Decimal
	Category    TransactionCategory
	Subcategory string
	Description string
	Reference   string
	// TransactionAt is the intent time; ProcessedAt is set on a
	// successful post and never mutated afterwards.
	TransactionAt time.Time
	ProcessedAt   *time.Time
	Status        ValidationStatus
	TaskID        string
	ProjectID     string
	WorkerID      string
	ExternalRef   string
	Metadata      map[string]string
}

// RiskLevel is the fraud screen verdict.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskAssessment is the fraud screen output for one transaction.
type RiskAssessment struct {
	Level   RiskLevel
	Score   int
	Factors []string
}

// Report is a period-scoped aggregation over validated transactions.
// Reports are write-once.
type Report struct {
	ID          string
	Type        string
	PeriodStart time.Time
	PeriodEnd   time.Time
	GeneratedAt time.Time
	GeneratedBy string

	TotalRevenue  decimal.Decimal
	TotalExpenses decimal.Decimal
	NetProfit     decimal.Decimal
	ProfitMargin  decimal.Decimal
	CashInflows   decimal.Decimal
	CashOutflows  decimal.Decimal
	NetCashFlow   decimal.Decimal

	DailyCashFlow        map[string]decimal.Decimal
	RevenueBySubcategory map[string]decimal.Decimal
	RevenueByWorker      map[string]decimal.Decimal
	RevenueByProject     map[string]decimal.Decimal
	ExpenseByCategory    map[string]decimal.Decimal
	ExpenseByWorker      map[string]decimal.Decimal
	ExpenseByProject     map[string]decimal.Decimal

	TransactionCount int
}

// PostResult acknowledges a successful posting.
type PostResult struct {
	TransactionID string
	NewBalance    decimal.Decimal
	ProcessedAt   time.Time
}

// TransferResult identifies the two legs of a completed transfer.
type TransferResult struct {
	DebitID   string
	CreditID  string
	Reference string
	Amount    decimal.Decimal
}

// AccountTypeSummary aggregates accounts of a single type.
type AccountTypeSummary struct {
	Count        int
	TotalBalance decimal.Decimal
}

// AccountSummary is the account registry's snapshot view.
type AccountSummary struct {
	TotalAccounts int
	ByType        map[AccountType]AccountTypeSummary
	Accounts      []Account
}
