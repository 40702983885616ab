/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements recurring.TemplateStore, recurring.LedgerStore, and
  recurring.RunStore using SQLite. In production, the same patterns apply
  to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  recurring_templates: Schedule definitions. This engine updates exactly one
                       column of them (next_run_date); everything else is
                       owned by the template management surface.
  transactions:        Ledger entries generated per due occurrence.
  batch_runs:          Audit records of batch passes.

LEGACY DATA:
  Older template rows carry an is_active boolean instead of the status
  enum, and some next_run_date values are full timestamps rather than
  plain dates. Both are normalized on read; nothing downstream of this
  package ever sees the legacy shapes.

DUPLICATE PREVENTION:
  idx_unique_template_date enforces one transaction per (template, day)
  at the database level. Insert maps that violation onto
  recurring.ErrDuplicateOccurrence so the materializer can treat a lost
  race as a skip rather than a failure.

CLAIM SEMANTICS:
  ClaimNextRun is a conditional UPDATE on next_run_date; rows-affected
  distinguishes a successful claim from a conflict.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time.

SEE ALSO:
  - recurring/store.go: Interface definitions
  - recurring/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/recurrence-engine/recurring"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Recurring templates (schedule definitions)
	CREATE TABLE IF NOT EXISTS recurring_templates (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		category TEXT,
		payment_method TEXT,
		amount TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'expense',
		frequency TEXT,
		status TEXT,
		is_active BOOLEAN,                -- legacy flag, superseded by status
		anchor_date TEXT NOT NULL,
		next_run_date TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_templates_user
		ON recurring_templates(user_id);
	CREATE INDEX IF NOT EXISTS idx_templates_user_next_run
		ON recurring_templates(user_id, next_run_date);

	-- Ledger transactions generated from templates
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		template_id TEXT,
		date TEXT NOT NULL,
		amount TEXT NOT NULL,
		kind TEXT NOT NULL,
		category TEXT,
		note TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user_date
		ON transactions(user_id, date DESC);

	-- CRITICAL: at most one generated transaction per (template, calendar day).
	-- Backs the indexed idempotency lookup AND is the last line of defense
	-- against concurrent batch invocations.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_template_date
		ON transactions(template_id, DATE(date))
		WHERE template_id IS NOT NULL;

	-- Batch run audit records
	CREATE TABLE IF NOT EXISTS batch_runs (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		trigger_kind TEXT NOT NULL,
		created_count INTEGER NOT NULL DEFAULT 0,
		skipped_count INTEGER NOT NULL DEFAULT 0,
		error_count INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_batch_runs_started
		ON batch_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TEMPLATE STORE (recurring.TemplateStore interface)
// =============================================================================

// ListActive returns the user's active templates, legacy rows normalized.
func (s *Store) ListActive(ctx context.Context, userID recurring.UserID) ([]recurring.RecurringTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, user_id, name, category, payment_method, amount, kind,
		       frequency, status, is_active, anchor_date, next_run_date
		FROM recurring_templates
		WHERE user_id = ?
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var result []recurring.RecurringTemplate
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			// Malformed rows are a data-quality problem in one record;
			// they must not block the rest of the user's templates.
			if errors.Is(err, recurring.ErrMalformedTemplate) {
				continue
			}
			return nil, err
		}
		if tpl.Status == recurring.StatusActive {
			result = append(result, tpl)
		}
	}
	return result, rows.Err()
}

// ListUsers returns every user owning at least one template.
func (s *Store) ListUsers(ctx context.Context) ([]recurring.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM recurring_templates ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []recurring.UserID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, recurring.UserID(id))
	}
	return users, rows.Err()
}

// UpdateNextRun unconditionally sets the template's next-run date.
func (s *Store) UpdateNextRun(ctx context.Context, userID recurring.UserID, id recurring.TemplateID, next recurring.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE recurring_templates SET next_run_date = ?, updated_at = ? WHERE user_id = ? AND id = ?`,
		next.String(), time.Now().UTC().Format(time.RFC3339), userID, id)
	if err != nil {
		return fmt.Errorf("failed to update next run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return recurring.ErrTemplateNotFound
	}
	return nil
}

// ClaimNextRun advances the next-run date only if the stored value still
// matches expect. DATE() on the stored column tolerates legacy rows that
// kept a full timestamp instead of a plain date.
func (s *Store) ClaimNextRun(ctx context.Context, userID recurring.UserID, id recurring.TemplateID, expect, next recurring.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE recurring_templates
		SET next_run_date = ?, updated_at = ?
		WHERE user_id = ? AND id = ? AND next_run_date IS NOT NULL AND DATE(next_run_date) = ?`,
		next.String(), time.Now().UTC().Format(time.RFC3339), userID, id, expect.String())
	if err != nil {
		return fmt.Errorf("failed to claim next run: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM recurring_templates WHERE user_id = ? AND id = ?`, userID, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check template existence: %w", err)
	}
	if exists == 0 {
		return recurring.ErrTemplateNotFound
	}
	return recurring.ErrClaimConflict
}

// SaveTemplate inserts or replaces a template row. Seeding/ops helper; the
// engine itself only ever touches next_run_date.
func (s *Store) SaveTemplate(ctx context.Context, tpl recurring.RecurringTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	nextRun := sql.NullString{}
	if tpl.HasNextRun {
		nextRun = sql.NullString{String: tpl.NextRun.String(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recurring_templates
		(id, user_id, name, category, payment_method, amount, kind, frequency,
		 status, is_active, anchor_date, next_run_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			payment_method = excluded.payment_method,
			amount = excluded.amount,
			kind = excluded.kind,
			frequency = excluded.frequency,
			status = excluded.status,
			is_active = excluded.is_active,
			anchor_date = excluded.anchor_date,
			next_run_date = excluded.next_run_date,
			updated_at = excluded.updated_at`,
		tpl.ID, tpl.UserID, tpl.Name, tpl.Category, tpl.PaymentMethod,
		tpl.Amount.String(), tpl.Kind, string(tpl.Frequency),
		string(tpl.Status), tpl.Status == recurring.StatusActive,
		tpl.Anchor.String(), nextRun, now, now)
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

func scanTemplate(rows *sql.Rows) (recurring.RecurringTemplate, error) {
	var (
		tpl           recurring.RecurringTemplate
		id, userID    string
		category      sql.NullString
		paymentMethod sql.NullString
		amount, kind  string
		frequency     sql.NullString
		status        sql.NullString
		isActive      sql.NullBool
		anchor        string
		nextRun       sql.NullString
	)

	err := rows.Scan(&id, &userID, &tpl.Name, &category, &paymentMethod,
		&amount, &kind, &frequency, &status, &isActive, &anchor, &nextRun)
	if err != nil {
		return tpl, fmt.Errorf("failed to scan template: %w", err)
	}

	tpl.ID = recurring.TemplateID(id)
	tpl.UserID = recurring.UserID(userID)
	tpl.Category = category.String
	tpl.PaymentMethod = paymentMethod.String
	tpl.Kind = recurring.Kind(kind)
	tpl.Frequency = recurring.ParseFrequency(frequency.String)
	tpl.Status = recurring.NormalizeStatus(status.String, isActive.Valid && isActive.Bool)

	tpl.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return tpl, fmt.Errorf("template %s: bad amount %q: %w", id, amount, recurring.ErrMalformedTemplate)
	}
	tpl.Anchor, err = recurring.ParseDate(anchor)
	if err != nil {
		return tpl, fmt.Errorf("template %s: bad anchor date %q: %w", id, anchor, recurring.ErrMalformedTemplate)
	}

	// A missing or unparseable next-run date is a skip, not an error.
	if nextRun.Valid {
		if d, err := recurring.ParseDate(nextRun.String); err == nil {
			tpl.NextRun = d
			tpl.HasNextRun = true
		}
	}
	return tpl, nil
}

// =============================================================================
// LEDGER STORE (recurring.LedgerStore interface)
// =============================================================================

// HasTransactionOn is the indexed idempotency lookup.
func (s *Store) HasTransactionOn(ctx context.Context, userID recurring.UserID, templateID recurring.TemplateID, day recurring.Date) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM transactions
		WHERE user_id = ? AND template_id = ? AND DATE(date) = ?`,
		userID, templateID, day.String()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check transaction existence: %w", err)
	}
	return count > 0, nil
}

// Insert appends one transaction.
func (s *Store) Insert(ctx context.Context, tx recurring.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	templateID := sql.NullString{}
	if tx.TemplateID != "" {
		templateID = sql.NullString{String: string(tx.TemplateID), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions
		(id, user_id, template_id, date, amount, kind, category, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.UserID, templateID, tx.Date.String(), tx.Amount.String(),
		tx.Kind, tx.Category, tx.Note, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return recurring.ErrDuplicateOccurrence
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// ListByUser returns the user's transactions, newest first.
func (s *Store) ListByUser(ctx context.Context, userID recurring.UserID, limit int) ([]recurring.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, user_id, template_id, date, amount, kind, category, note
		FROM transactions
		WHERE user_id = ?
		ORDER BY date DESC, created_at DESC
	`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var result []recurring.Transaction
	for rows.Next() {
		var (
			tx         recurring.Transaction
			id, user   string
			templateID sql.NullString
			date       string
			amount     string
			kind       string
			category   sql.NullString
			note       sql.NullString
		)
		if err := rows.Scan(&id, &user, &templateID, &date, &amount, &kind, &category, &note); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.ID = recurring.TransactionID(id)
		tx.UserID = recurring.UserID(user)
		tx.TemplateID = recurring.TemplateID(templateID.String)
		tx.Kind = recurring.Kind(kind)
		tx.Category = category.String
		tx.Note = note.String
		if tx.Date, err = recurring.ParseDate(date); err != nil {
			return nil, fmt.Errorf("transaction %s: bad date %q: %w", id, date, err)
		}
		if tx.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("transaction %s: bad amount %q: %w", id, amount, err)
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

// =============================================================================
// RUN STORE (recurring.RunStore interface)
// =============================================================================

// SaveRun inserts or updates a batch-run audit record.
func (s *Store) SaveRun(ctx context.Context, run recurring.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	completedAt := sql.NullString{}
	if !run.CompletedAt.IsZero() {
		completedAt = sql.NullString{String: run.CompletedAt.UTC().Format(time.RFC3339), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batch_runs
		(id, user_id, trigger_kind, created_count, skipped_count, error_count,
		 error, started_at, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_count = excluded.created_count,
			skipped_count = excluded.skipped_count,
			error_count = excluded.error_count,
			error = excluded.error,
			completed_at = excluded.completed_at`,
		run.ID, string(run.UserID), run.Trigger,
		run.Stats.Created, run.Stats.Skipped, run.Stats.Errors,
		run.Error, run.StartedAt.UTC().Format(time.RFC3339), completedAt,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save batch run: %w", err)
	}
	return nil
}

// ListRuns returns recent batch runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]recurring.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, user_id, trigger_kind, created_count, skipped_count,
		       error_count, error, started_at, completed_at
		FROM batch_runs
		ORDER BY started_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch runs: %w", err)
	}
	defer rows.Close()

	var result []recurring.RunRecord
	for rows.Next() {
		var (
			run         recurring.RunRecord
			userID      sql.NullString
			errText     sql.NullString
			startedAt   string
			completedAt sql.NullString
		)
		if err := rows.Scan(&run.ID, &userID, &run.Trigger,
			&run.Stats.Created, &run.Stats.Skipped, &run.Stats.Errors,
			&errText, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan batch run: %w", err)
		}
		run.UserID = recurring.UserID(userID.String)
		run.Error = errText.String
		if run.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
			return nil, fmt.Errorf("batch run %s: bad started_at %q: %w", run.ID, startedAt, err)
		}
		if completedAt.Valid {
			run.CompletedAt, _ = time.Parse(time.RFC3339, completedAt.String)
		}
		result = append(result, run)
	}
	return result, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
