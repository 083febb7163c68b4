package ledger

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoutsos/agency/internal/config"
	"github.com/dkoutsos/agency/internal/database"
	"github.com/dkoutsos/agency/internal/domain"
	"github.com/dkoutsos/agency/internal/events"
)

type testLedger struct {
	cfg      *config.Config
	db       *database.DB
	accounts *AccountRegistry
	txns     *TransactionRepository
	proc     *Processor
	reporter *Reporter
	events   *events.Manager
}

func newTestLedger(t *testing.T) *testLedger {
	t.Helper()

	cfg := config.Default()
	cfg.StorePath = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())

	db, err := database.New(database.Config{
		Path:    cfg.StorePath,
		Profile: database.ProfileLedger,
		Name:    "test-ledger",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	log := zerolog.Nop()
	accounts, err := NewAccountRegistry(db, log)
	require.NoError(t, err)

	txns := NewTransactionRepository(db, log)
	fraud := NewFraudScreen(cfg, txns, log)
	ev := events.NewManager(log)

	return &testLedger{
		cfg:      cfg,
		db:       db,
		accounts: accounts,
		txns:     txns,
		proc:     NewProcessor(cfg, db, accounts, txns, fraud, log),
		reporter: NewReporter(db, txns, ev, log),
		events:   ev,
	}
}

// weekdayNoon is a fixed Wednesday noon so the unusual-time rule never
// fires by accident.
var weekdayNoon = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestBootstrap_DefaultAccounts(t *testing.T) {
	l := newTestLedger(t)

	revenueID, expenseID, err := l.accounts.Bootstrap("USD")
	require.NoError(t, err)
	assert.NotEmpty(t, revenueID)
	assert.NotEmpty(t, expenseID)

	revenue, err := l.accounts.Get(revenueID)
	require.NoError(t, err)
	assert.True(t, revenue.Balance.IsZero())

	expense, err := l.accounts.Get(expenseID)
	require.NoError(t, err)
	assert.True(t, expense.Balance.Equal(dec("1000.00")))

	reserves := l.accounts.ListByType(domain.AccountReserve)
	require.Len(t, reserves, 1)
	assert.True(t, reserves[0].Balance.IsZero())

	t.Run("idempotent", func(t *testing.T) {
		revenueID2, expenseID2, err := l.accounts.Bootstrap("USD")
		require.NoError(t, err)
		assert.Equal(t, revenueID, revenueID2)
		assert.Equal(t, expenseID, expenseID2)
		assert.Equal(t, 3, l.accounts.Summary().TotalAccounts)
	})
}

func TestAccountRegistry_WriteThrough(t *testing.T) {
	l := newTestLedger(t)

	account, err := l.accounts.Create("Test Account", domain.AccountReserve, dec("50"), "USD")
	require.NoError(t, err)

	require.NoError(t, l.accounts.UpdateBalance(account.ID, dec("75.50"), weekdayNoon))

	got, err := l.accounts.Get(account.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("75.50")))
	require.NotNil(t, got.LastTransaction)

	// A fresh registry over the same store must see the persisted balance.
	reloaded, err := NewAccountRegistry(l.db, zerolog.Nop())
	require.NoError(t, err)
	got, err = reloaded.Get(account.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("75.50")))
}

func TestAccountRegistry_GetUnknown(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.accounts.Get("missing")
	assert.True(t, domain.IsKind(err, domain.KindAccountNotFound))
}

func TestProcessor_PostCredit(t *testing.T) {
	l := newTestLedger(t)
	revenueID, _, err := l.accounts.Bootstrap("USD")
	require.NoError(t, err)

	result, err := l.proc.SubmitTransaction(&domain.Transaction{
		AccountID:     revenueID,
		Direction:     domain.Credit,
		Amount:        dec("250.75"),
		Category:      domain.CategoryRevenue,
		Description:   "Client payment",
		TransactionAt: weekdayNoon,
	})
	require.NoError(t, err)
	assert.True(t, result.NewBalance.Equal(dec("250.75")))
	assert.False(t, result.ProcessedAt.IsZero())

	stored, err := l.txns.Get(result.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusValidated, stored.Status)
	require.NotNil(t, stored.ProcessedAt)
}

func TestProcessor_StaticValidation(t *testing.T) {
	l := newTestLedger(t)
	revenueID, _, err := l.accounts.Bootstrap("USD")
	require.NoError(t, err)

	t.Run("rejects non-positive amount", func(t *testing.T) {
		_, err := l.proc.SubmitTransaction(&domain.Transaction{
			AccountID:     revenueID,
			Direction:     domain.Credit,
			Amount:        decimal.Zero,
			Category:      domain.CategoryRevenue,
			Description:   "zero",
			TransactionAt: weekdayNoon,
		})
		assert.True(t, domain.IsKind(err, domain.KindInvalidTransaction))
	})

	t.Run("rejects amount above cap", func(t *testing.T) {
		_, err := l.proc.SubmitTransaction(&domain.Transaction{
			AccountID:     revenueID,
			Direction:     domain.Credit,
			Amount:        dec("100000.01"),
			Category:      domain.CategoryRevenue,
			Description:   "too large",
			TransactionAt: weekdayNoon,
		})
		assert.True(t, domain.IsKind(err, domain.KindInvalidTransaction))
	})

	t.Run("rejects unknown account", func(t *testing.T) {
		_, err := l.proc.SubmitTransaction(&domain.Transaction{
			AccountID:     "missing",
			Direction:     domain.Credit,
			Amount:        dec("10"),
			Category:      domain.CategoryRevenue,
			Description:   "orphan",
			TransactionAt: weekdayNoon,
		})
		assert.True(t, domain.IsKind(err, domain.KindInvalidTransaction))
	})

	t.Run("rejects missing description", func(t *testing.T) {
		_, err := l.proc.SubmitTransaction(&domain.Transaction{
			AccountID:     revenueID,
			Direction:     domain.Credit,
			Amount:        dec("10"),
			Category:      domain.CategoryRevenue,
			TransactionAt: weekdayNoon,
		})
		assert.True(t, domain.IsKind(err, domain.KindInvalidTransaction))
	})
}

func TestProcessor_InsufficientBalance(t *testing.T) {
	l := newTestLedger(t)
	_, expenseID, err := l.accounts.Bootstrap("USD")
	require.NoError(t, err)

	reserve := l.accounts.ListByType(domain.AccountReserve)[0]

	t.Run("strict account cannot overdraw", func(t *testing.T) {
		_, err := l.proc.SubmitTransaction(&domain.Transaction{
			AccountID:     reserve.ID,
			Direction:     domain.Debit,
			Amount:        dec("10"),
			Category:      domain.CategoryTransfer,
			Description:   "overdraw attempt",
			TransactionAt: weekdayNoon,
		})
		assert.True(t, domain.IsKind(err, domain.KindInsufficientBalance))

		got, err := l.accounts.Get(reserve.ID)
		require.NoError(t, err)
		assert.True(t, got.Balance.IsZero())
	})

	t.Run("operational expense may go negative", func(t *testing.T) {
		result, err := l.proc.SubmitTransaction(&domain.Transaction{
			AccountID:     expenseID,
			Direction:     domain.Debit,
			Amount:        dec("1200"),
			Category:      domain.CategoryInfrastructure,
			Description:   "hosting bill",
			TransactionAt: weekdayNoon,
		})
		require.NoError(t, err)
		assert.True(t, result.NewBalance.Equal(dec("-200")))
	})
}

func TestProcessor_DuplicateTransactionID(t *testing.T) {
	l := newTestLedger(t)
	revenueID, _, err := l.accounts.Bootstrap("USD")
	require.NoError(t, err)

	txn := &domain.Transaction{
		ID:            uuid.NewString(),
		AccountID:     revenueID,
		Direction:     domain.Credit,
		Amount:        dec("100"),
		Category:      domain.CategoryRevenue,
		Description:   "first submit",
		TransactionAt: weekdayNoon,
	}
	_, err = l.proc.SubmitTransaction(txn)
	require.NoError(t, err)

	resubmit := &domain.Transaction{
		ID:            txn.ID,
		AccountID:     revenueID,
		Direction:     domain.Credit,
		Amount:        dec("100"),
		Category:      domain.CategoryRevenue,
		Description:   "second submit",
		TransactionAt: weekdayNoon,
	}
	_, err = l.proc.SubmitTransaction(resubmit)
	assert.True(t, domain.IsKind(err, domain.KindConstraintViolation))

	got, err := l.accounts.Get(revenueID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("100")), "duplicate must not double-post")
}

func TestProcessor_HighRiskHeldForReview(t *testing.T) {
	l := newTestLedger(t)
	revenueID, _, err := l.accounts.Bootstrap("USD")
	require.NoError(t, err)

	// Large amount (+30) that also breaches the daily cap (+25).
	txn := &domain.Transaction{
		AccountID:     revenueID,
		Direction:     domain.Credit,
		Amount:        dec("30000"),
		Category:      domain.CategoryRevenue,
		Description:   "suspicious windfall",
		TransactionAt: weekdayNoon,
	}
	_, err = l.proc.SubmitTransaction(txn)
	assert.True(t, domain.IsKind(err, domain.KindHeldForReview))

	got, err := l.accounts.Get(revenueID)
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero(), "held transaction must not move the balance")

	stored, err := l.txns.Get(txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRequiresReview, stored.Status)
	assert.Contains(t, stored.Metadata["risk_factors"], "large_amount")
}

func TestFraudScreen_Rules(t *testing.T) {
	l := newTestLedger(t)
	revenueID, _, err := l.accounts.Bootstrap("USD")
	require.NoError(t, err)
	fraud := NewFraudScreen(l.cfg, l.txns, zerolog.Nop())

	t.Run("clean transaction is low risk", func(t *testing.T) {
		assessment, err := fraud.Assess(&domain.Transaction{
			AccountID:     revenueID,
			Amount:        dec("150.25"),
			TransactionAt: weekdayNoon,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.RiskLow, assessment.Level)
		assert.Equal(t, 0, assessment.Score)
	})

	t.Run("large amount", func(t *testing.T) {
		assessment, err := fraud.Assess(&domain.Transaction{
			AccountID:     revenueID,
			Amount:        dec("10000.01"),
			TransactionAt: weekdayNoon,
		})
		require.NoError(t, err)
		assert.Contains(t, assessment.Factors, "large_amount")
		assert.Equal(t, domain.RiskMedium, assessment.Level)
	})

	t.Run("round amount", func(t *testing.T) {
		assessment, err := fraud.Assess(&domain.Transaction{
			AccountID:     revenueID,
			Amount:        dec("2500"),
			TransactionAt: weekdayNoon,
		})
		require.NoError(t, err)
		assert.Contains(t, assessment.Factors, "round_amount")
	})

	t.Run("small round amount not flagged", func(t *testing.T) {
		assessment, err := fraud.Assess(&domain.Transaction{
			AccountID:     revenueID,
			Amount:        dec("500"),
			TransactionAt: weekdayNoon,
		})
		require.NoError(t, err)
		assert.NotContains(t, assessment.Factors, "round_amount")
	})

	t.Run("weekend is unusual time", func(t *testing.T) {
		saturday := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
		assessment, err := fraud.Assess(&domain.Transaction{
			AccountID:     revenueID,
			Amount:        dec("50"),
			TransactionAt: saturday,
		})
		require.NoError(t, err)
		assert.Contains(t, assessment.Factors, "unusual_time")
	})

	t.Run("late night is unusual time", func(t *testing.T) {
		lateNight := time.Date(2026, 3, 4, 23, 30, 0, 0, time.UTC)
		assessment, err := fraud.Assess(&domain.Transaction{
			AccountID:     revenueID,
			Amount:        dec("50"),
			TransactionAt: lateNight,
		})
		require.NoError(t, err)
		assert.Contains(t, assessment.Factors, "unusual_time")
	})

	t.Run("rapid succession", func(t *testing.T) {
		account, err := l.accounts.Create("Burst Account", domain.AccountReserve, decimal.Zero, "USD")
		require.NoError(t, err)

		for i := 0; i < 4; i++ {
			_, err := l.proc.SubmitTransaction(&domain.Transaction{
				AccountID:     account.ID,
				Direction:     domain.Credit,
				Amount:        dec("10.50"),
				Category:      domain.CategoryRevenue,
				Description:   fmt.Sprintf("burst %d", i),
				TransactionAt: weekdayNoon.Add(time.Duration(i) * time.Second),
			})
			require.NoError(t, err)
		}

		assessment, err := fraud.Assess(&domain.Transaction{
			AccountID:     account.ID,
			Amount:        dec("10.50"),
			TransactionAt: weekdayNoon.Add(5 * time.Second),
		})
		require.NoError(t, err)
		assert.Contains(t, assessment.Factors, "rapid_succession")
	})
}

func TestProcessor_Transfer(t *testing.T) {
	l := newTestLedger(t)
	_, expenseID, err := l.accounts.Bootstrap("USD")
	require.NoError(t, err)
	reserve := l.accounts.ListByType(domain.AccountReserve)[0]

	result, err := l.proc.Transfer(expenseID, reserve.ID, dec("200.50"), "reserve top-up")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Reference)
	assert.NotEqual(t, result.DebitID, result.CreditID)

	expense, err := l.accounts.Get(expenseID)
	require.NoError(t, err)
	assert.True(t, expense.Balance.Equal(dec("799.50")))

	got, err := l.accounts.Get(reserve.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("200.50")))

	legs, err := l.txns.ByReference(result.Reference)
	require.NoError(t, err)
	require.Len(t, legs, 2)
	for _, leg := range legs {
		assert.Equal(t, domain.StatusValidated, leg.Status)
		assert.Equal(t, domain.CategoryTransfer, leg.Category)
	}
}

func TestProcessor_TransferSameAccount(t *testing.T) {
	l := newTestLedger(t)
	_, expenseID, err := l.accounts.Bootstrap("USD")
	require.NoError(t, err)

	_, err = l.proc.Transfer(expenseID, expenseID, dec("10"), "loop")
	assert.True(t, domain.IsKind(err, domain.KindInvalidTransaction))
}

func TestProcessor_TransferInsufficientSource(t *testing.T) {
	l := newTestLedger(t)
	_, _, err := l.accounts.Bootstrap("USD")
	require.NoError(t, err)
	reserve := l.accounts.ListByType(domain.AccountReserve)[0]
	revenue := l.accounts.ListByType(domain.AccountPrimaryRevenue)[0]

	_, err = l.proc.Transfer(reserve.ID, revenue.ID, dec("10"), "from empty reserve")
	assert.True(t, domain.IsKind(err, domain.KindInsufficientBalance))

	got, err := l.accounts.Get(revenue.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero(), "no leg may post when the debit fails")
}

func TestProcessor_TransferCompensation(t *testing.T) {
	l := newTestLedger(t)
	_, expenseID, err := l.accounts.Bootstrap("USD")
	require.NoError(t, err)
	reserve := l.accounts.ListByType(domain.AccountReserve)[0]

	// Drive the destination's validated daily total near the cap today, so
	// the credit leg of a large transfer screens as high risk (large amount
	// plus daily-cap breach) while the debit leg stays postable.
	for i := 0; i < 3; i++ {
		_, err := l.proc.SubmitTransaction(&domain.Transaction{
			AccountID:   reserve.ID,
			Direction:   domain.Credit,
			Amount:      dec("9000.25"),
			Category:    domain.CategoryRevenue,
			Description: fmt.Sprintf("funding %d", i),
		})
		require.NoError(t, err)
	}

	before, err := l.accounts.Get(expenseID)
	require.NoError(t, err)

	_, err = l.proc.Transfer(expenseID, reserve.ID, dec("11000.50"), "doomed transfer")
	require.Error(t, err)

	// The debit must have been compensated: source balance restored.
	after, err := l.accounts.Get(expenseID)
	require.NoError(t, err)
	assert.True(t, after.Balance.Equal(before.Balance),
		"expected %s, got %s", before.Balance, after.Balance)

	dest, err := l.accounts.Get(reserve.ID)
	require.NoError(t, err)
	assert.True(t, dest.Balance.Equal(dec("27000.75")), "credit leg must not post")
}

func TestProcessor_ConcurrentPostings(t *testing.T) {
	l := newTestLedger(t)
	revenueID, _, err := l.accounts.Bootstrap("USD")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.proc.SubmitTransaction(&domain.Transaction{
				AccountID:     revenueID,
				Direction:     domain.Credit,
				Amount:        dec("10.01"),
				Category:      domain.CategoryRevenue,
				Description:   fmt.Sprintf("concurrent credit %d", i),
				TransactionAt: weekdayNoon.Add(time.Duration(i) * time.Minute),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := l.accounts.Get(revenueID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("200.20")),
		"expected 200.20, got %s", got.Balance)

	t.Run("concurrent debits never overdraw a strict account", func(t *testing.T) {
		account, err := l.accounts.Create("Strict", domain.AccountInvestment, dec("50.05"), "USD")
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, _ = l.proc.SubmitTransaction(&domain.Transaction{
					AccountID:     account.ID,
					Direction:     domain.Debit,
					Amount:        dec("10.01"),
					Category:      domain.CategoryInvestment,
					Description:   fmt.Sprintf("concurrent debit %d", i),
					TransactionAt: weekdayNoon.Add(time.Duration(i) * time.Minute),
				})
			}(i)
		}
		wg.Wait()

		got, err := l.accounts.Get(account.ID)
		require.NoError(t, err)
		assert.False(t, got.Balance.IsNegative(),
			"strict account overdrawn to %s", got.Balance)
		assert.True(t, got.Balance.Equal(decimal.Zero),
			"exactly five debits should post, leaving zero, got %s", got.Balance)
	})
}

func TestReporter_PeriodReport(t *testing.T) {
	l := newTestLedger(t)
	revenueID, expenseID, err := l.accounts.Bootstrap("USD")
	require.NoError(t, err)

	eventsCh := l.events.Subscribe()

	_, err = l.proc.SubmitTransaction(&domain.Transaction{
		AccountID:     revenueID,
		Direction:     domain.Credit,
		Amount:        dec("1500.25"),
		Category:      domain.CategoryRevenue,
		Subcategory:   "consulting",
		Description:   "Project alpha",
		WorkerID:      "worker-1",
		ProjectID:     "project-a",
		TransactionAt: weekdayNoon,
	})
	require.NoError(t, err)

	_, err = l.proc.SubmitTransaction(&domain.Transaction{
		AccountID:     revenueID,
		Direction:     domain.Credit,
		Amount:        dec("499.75"),
		Category:      domain.CategoryRevenue,
		Subcategory:   "content",
		Description:   "Project beta",
		WorkerID:      "worker-2",
		TransactionAt: weekdayNoon.Add(24 * time.Hour),
	})
	require.NoError(t, err)

	_, err = l.proc.SubmitTransaction(&domain.Transaction{
		AccountID:     expenseID,
		Direction:     domain.Debit,
		Amount:        dec("300.50"),
		Category:      domain.CategoryInfrastructure,
		Description:   "Hosting",
		TransactionAt: weekdayNoon,
	})
	require.NoError(t, err)

	report, err := l.reporter.GeneratePeriodReport(
		weekdayNoon.Add(-24*time.Hour), weekdayNoon.Add(48*time.Hour), "test")
	require.NoError(t, err)

	assert.True(t, report.TotalRevenue.Equal(dec("2000")))
	assert.True(t, report.TotalExpenses.Equal(dec("300.50")))
	assert.True(t, report.NetProfit.Equal(dec("1699.50")))
	assert.True(t, report.CashInflows.Equal(dec("2000")))
	assert.True(t, report.CashOutflows.Equal(dec("300.50")))
	assert.Equal(t, 3, report.TransactionCount)

	assert.True(t, report.RevenueBySubcategory["consulting"].Equal(dec("1500.25")))
	assert.True(t, report.RevenueByWorker["worker-2"].Equal(dec("499.75")))
	assert.True(t, report.RevenueByProject["project-a"].Equal(dec("1500.25")))
	assert.True(t, report.ExpenseByCategory["infrastructure"].Equal(dec("300.50")))

	// margin = 1699.50 / 2000 * 100 = 84.98
	assert.True(t, report.ProfitMargin.Equal(dec("84.98")),
		"expected 84.98, got %s", report.ProfitMargin)

	// Daily cash flow: day one nets 1500.25 - 300.50, day two 499.75.
	day1 := weekdayNoon.Format("2006-01-02")
	day2 := weekdayNoon.Add(24 * time.Hour).Format("2006-01-02")
	assert.True(t, report.DailyCashFlow[day1].Equal(dec("1199.75")))
	assert.True(t, report.DailyCashFlow[day2].Equal(dec("499.75")))

	select {
	case event := <-eventsCh:
		assert.Equal(t, events.ReportReady, event.Type)
		assert.Equal(t, report.ID, event.Data["report_id"])
	case <-time.After(time.Second):
		t.Fatal("expected a report-ready event")
	}

	t.Run("report row persisted", func(t *testing.T) {
		var count int
		err := l.db.QueryRow(`SELECT COUNT(*) FROM reports WHERE report_id = ?`, report.ID).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestProcessor_RevenueAndExpenseConveniences(t *testing.T) {
	l := newTestLedger(t)
	_, _, err := l.accounts.Bootstrap("USD")
	require.NoError(t, err)

	result, err := l.proc.SubmitRevenue(dec("350.10"), "Task payout", "consulting", "task-1", "", "worker-1")
	require.NoError(t, err)
	assert.True(t, result.NewBalance.Equal(dec("350.10")))

	result, err = l.proc.SubmitExpense(dec("75.25"), domain.CategoryAgentCost, "Task cost", "task-1", "", "worker-1")
	require.NoError(t, err)
	assert.True(t, result.NewBalance.Equal(dec("924.75")))

	stored, err := l.txns.Get(result.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "task-1", stored.TaskID)
	assert.Equal(t, "worker-1", stored.WorkerID)
}

func TestBalanceSumInvariant(t *testing.T) {
	l := newTestLedger(t)
	revenueID, expenseID, err := l.accounts.Bootstrap("USD")
	require.NoError(t, err)

	// Bootstrap total is 1000. Post a mix of credits and debits and check
	// that the account sum moved by exactly credits minus debits.
	_, err = l.proc.SubmitTransaction(&domain.Transaction{
		AccountID: revenueID, Direction: domain.Credit, Amount: dec("500.33"),
		Category: domain.CategoryRevenue, Description: "r1", TransactionAt: weekdayNoon,
	})
	require.NoError(t, err)
	_, err = l.proc.SubmitTransaction(&domain.Transaction{
		AccountID: expenseID, Direction: domain.Debit, Amount: dec("200.11"),
		Category: domain.CategoryAgentCost, Description: "e1", TransactionAt: weekdayNoon,
	})
	require.NoError(t, err)
	_, err = l.proc.Transfer(expenseID, revenueID, dec("100.01"), "shuffle")
	require.NoError(t, err)

	total := decimal.Zero
	for _, account := range l.accounts.Summary().Accounts {
		total = total.Add(account.Balance)
	}
	expected := dec("1000").Add(dec("500.33")).Sub(dec("200.11"))
	assert.True(t, total.Equal(expected), "expected %s, got %s", expected, total)
}
