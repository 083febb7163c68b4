package database

// schema is the single source of truth for the ledger store layout.
// Amounts are stored as TEXT (exact decimal strings); timestamps as
// ISO-8601 UTC strings.
const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    account_id            TEXT PRIMARY KEY,
    account_name          TEXT NOT NULL,
    account_type          TEXT NOT NULL,
    current_balance       TEXT NOT NULL DEFAULT '0',
    currency              TEXT NOT NULL DEFAULT 'USD',
    status                TEXT NOT NULL DEFAULT 'active',
    creation_date         TEXT NOT NULL,
    last_transaction_date TEXT
);

CREATE TABLE IF NOT EXISTS transactions (
    transaction_id    TEXT PRIMARY KEY,
    account_id        TEXT NOT NULL,
    direction         TEXT NOT NULL,
    amount            TEXT NOT NULL,
    category          TEXT NOT NULL,
    subcategory       TEXT,
    description       TEXT NOT NULL,
    reference_number  TEXT,
    transaction_date  TEXT NOT NULL,
    processed_date    TEXT,
    validation_status TEXT NOT NULL DEFAULT 'pending',
    related_task_id   TEXT,
    related_project_id TEXT,
    related_worker_id TEXT,
    external_reference TEXT,
    metadata          TEXT,
    FOREIGN KEY (account_id) REFERENCES accounts (account_id)
);

CREATE TABLE IF NOT EXISTS reports (
    report_id           TEXT PRIMARY KEY,
    report_type         TEXT NOT NULL,
    report_period_start TEXT NOT NULL,
    report_period_end   TEXT NOT NULL,
    generated_date      TEXT NOT NULL,
    report_data         TEXT NOT NULL,
    summary_metrics     TEXT,
    generated_by        TEXT
);

CREATE INDEX IF NOT EXISTS idx_transactions_account  ON transactions(account_id);
CREATE INDEX IF NOT EXISTS idx_transactions_date     ON transactions(transaction_date);
CREATE INDEX IF NOT EXISTS idx_transactions_category ON transactions(category);
CREATE INDEX IF NOT EXISTS idx_reports_type          ON reports(report_type);
CREATE INDEX IF NOT EXISTS idx_reports_date          ON reports(generated_date);
`
