package ledger

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dkoutsos/agency/internal/database"
	"github.com/dkoutsos/agency/internal/domain"
	"github.com/dkoutsos/agency/internal/events"
)

// Reporter aggregates validated transactions into period reports. Reports
// are write-once rows; regeneration for the same period produces a new row
// rather than mutating an old one.
type Reporter struct {
	db     *database.DB
	txns   *TransactionRepository
	events *events.Manager
	log    zerolog.Logger
}

// NewReporter creates a new reporter.
func NewReporter(db *database.DB, txns *TransactionRepository, ev *events.Manager, log zerolog.Logger) *Reporter {
	return &Reporter{
		db:     db,
		txns:   txns,
		events: ev,
		log:    log.With().Str("component", "reporting").Logger(),
	}
}

// GeneratePeriodReport aggregates all validated transactions in [start, end],
// persists the report and announces it on the events channel.
func (r *Reporter) GeneratePeriodReport(start, end time.Time, reportType string) (*domain.Report, error) {
	txns, err := r.txns.ValidatedForPeriod(start, end)
	if err != nil {
		return nil, err
	}

	report := &domain.Report{
		ID:          uuid.NewString(),
		Type:        reportType,
		PeriodStart: start.UTC(),
		PeriodEnd:   end.UTC(),
		GeneratedAt: time.Now().UTC(),
		GeneratedBy: "reporting",

		DailyCashFlow:        make(map[string]decimal.Decimal),
		RevenueBySubcategory: make(map[string]decimal.Decimal),
		RevenueByWorker:      make(map[string]decimal.Decimal),
		RevenueByProject:     make(map[string]decimal.Decimal),
		ExpenseByCategory:    make(map[string]decimal.Decimal),
		ExpenseByWorker:      make(map[string]decimal.Decimal),
		ExpenseByProject:     make(map[string]decimal.Decimal),

		TransactionCount: len(txns),
	}

	for i := range txns {
		txn := &txns[i]
		day := txn.TransactionAt.UTC().Format("2006-01-02")

		switch txn.Direction {
		case domain.Credit:
			report.CashInflows = report.CashInflows.Add(txn.Amount)
			report.DailyCashFlow[day] = report.DailyCashFlow[day].Add(txn.Amount)
		case domain.Debit:
			report.CashOutflows = report.CashOutflows.Add(txn.Amount)
			report.DailyCashFlow[day] = report.DailyCashFlow[day].Sub(txn.Amount)
		}

		if txn.Category == domain.CategoryRevenue && txn.Direction == domain.Credit {
			report.TotalRevenue = report.TotalRevenue.Add(txn.Amount)
			if txn.Subcategory != "" {
				report.RevenueBySubcategory[txn.Subcategory] = report.RevenueBySubcategory[txn.Subcategory].Add(txn.Amount)
			}
			if txn.WorkerID != "" {
				report.RevenueByWorker[txn.WorkerID] = report.RevenueByWorker[txn.WorkerID].Add(txn.Amount)
			}
			if txn.ProjectID != "" {
				report.RevenueByProject[txn.ProjectID] = report.RevenueByProject[txn.ProjectID].Add(txn.Amount)
			}
		}

		if txn.Category.IsExpense() && txn.Direction == domain.Debit {
			report.TotalExpenses = report.TotalExpenses.Add(txn.Amount)
			report.ExpenseByCategory[string(txn.Category)] = report.ExpenseByCategory[string(txn.Category)].Add(txn.Amount)
			if txn.WorkerID != "" {
				report.ExpenseByWorker[txn.WorkerID] = report.ExpenseByWorker[txn.WorkerID].Add(txn.Amount)
			}
			if txn.ProjectID != "" {
				report.ExpenseByProject[txn.ProjectID] = report.ExpenseByProject[txn.ProjectID].Add(txn.Amount)
			}
		}
	}

	report.NetProfit = report.TotalRevenue.Sub(report.TotalExpenses)
	report.NetCashFlow = report.CashInflows.Sub(report.CashOutflows)
	if report.TotalRevenue.IsPositive() {
		report.ProfitMargin = report.NetProfit.
			Div(report.TotalRevenue).
			Mul(decimal.NewFromInt(100)).
			Round(2)
	}

	if err := r.persist(report); err != nil {
		return nil, err
	}

	summary := map[string]interface{}{
		"period_start":      report.PeriodStart.Format("2006-01-02"),
		"period_end":        report.PeriodEnd.Format("2006-01-02"),
		"total_revenue":     report.TotalRevenue.String(),
		"total_expenses":    report.TotalExpenses.String(),
		"net_profit":        report.NetProfit.String(),
		"net_cash_flow":     report.NetCashFlow.String(),
		"transaction_count": report.TransactionCount,
	}
	r.events.EmitReportReady(report.ID, summary)

	r.log.Info().
		Str("report_id", report.ID).
		Str("type", reportType).
		Int("transactions", report.TransactionCount).
		Str("net_profit", report.NetProfit.String()).
		Msg("Report generated")

	return report, nil
}

// GenerateWeeklyReport covers the seven days ending now. Run by the
// scheduler.
func (r *Reporter) GenerateWeeklyReport() (*domain.Report, error) {
	end := time.Now().UTC()
	return r.GeneratePeriodReport(end.AddDate(0, 0, -7), end, "weekly")
}

// persist writes the report row. The primary key keeps rows write-once.
func (r *Reporter) persist(report *domain.Report) error {
	data, err := json.Marshal(reportData(report))
	if err != nil {
		return domain.Wrap(domain.KindSerializationFailure, "failed to encode report", err)
	}
	metrics, err := json.Marshal(map[string]string{
		"total_revenue":  report.TotalRevenue.String(),
		"total_expenses": report.TotalExpenses.String(),
		"net_profit":     report.NetProfit.String(),
		"profit_margin":  report.ProfitMargin.String(),
		"net_cash_flow":  report.NetCashFlow.String(),
	})
	if err != nil {
		return domain.Wrap(domain.KindSerializationFailure, "failed to encode report metrics", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO reports
		(report_id, report_type, report_period_start, report_period_end,
		 generated_date, report_data, summary_metrics, generated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID,
		report.Type,
		report.PeriodStart.Format(time.RFC3339Nano),
		report.PeriodEnd.Format(time.RFC3339Nano),
		report.GeneratedAt.Format(time.RFC3339Nano),
		string(data),
		string(metrics),
		report.GeneratedBy,
	)
	if err != nil {
		return domain.Wrap(domain.KindStoreUnavailable, "failed to store report", err)
	}
	return nil
}

// reportData flattens the report into JSON-safe string maps. Decimals are
// serialized as exact strings, never floats.
func reportData(report *domain.Report) map[string]interface{} {
	return map[string]interface{}{
		"total_revenue":          report.TotalRevenue.String(),
		"total_expenses":         report.TotalExpenses.String(),
		"net_profit":             report.NetProfit.String(),
		"profit_margin":          report.ProfitMargin.String(),
		"cash_inflows":           report.CashInflows.String(),
		"cash_outflows":          report.CashOutflows.String(),
		"net_cash_flow":          report.NetCashFlow.String(),
		"daily_cash_flow":        stringifyDecimalMap(report.DailyCashFlow),
		"revenue_by_subcategory": stringifyDecimalMap(report.RevenueBySubcategory),
		"revenue_by_worker":      stringifyDecimalMap(report.RevenueByWorker),
		"revenue_by_project":     stringifyDecimalMap(report.RevenueByProject),
		"expense_by_category":    stringifyDecimalMap(report.ExpenseByCategory),
		"expense_by_worker":      stringifyDecimalMap(report.ExpenseByWorker),
		"expense_by_project":     stringifyDecimalMap(report.ExpenseByProject),
		"transaction_count":      report.TransactionCount,
	}
}

func stringifyDecimalMap(m map[string]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v.String()
	}
	return out
}
