/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every repository contract in collections/store.go using SQLite.
  In production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

INTERFACES IMPLEMENTED:
  collections.DebtRepository
  collections.RuleRepository
  collections.TransitionGraph
  collections.AuthorizationRequestRepository
  collections.FollowUpRepository
  collections.SupervisorDirectory

KEY TABLES:
  debts:                  Debt aggregates (decimals stored as TEXT, exact)
  installments:           Per-debt payment slices
  transition_rules:       Configured policy rows, condition as JSON
  allowed_transitions:    The legality graph, keyed (origin, destination)
  authorization_requests: Pending/terminal approval gates
  follow_ups:             Immutable collector-action records
  supervisors:            The approver pool
  assignment_cursor:      Single-row round-robin cursor
  daily_update_runs:      Audit records of daily sweeps

DECIMAL STORAGE:
  Monetary values and rates are stored as TEXT and parsed with
  decimal.NewFromString. REAL columns would reintroduce the float drift the
  domain layer exists to avoid.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

USAGE:
  store, err := sqlite.New("./data/collections.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - collections/store.go: Interface definitions
  - factory/condition.go: Condition JSON parsing on rule load
  - collections/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/collections-engine/collections"
	"github.com/warp/collections-engine/factory"
)

// =============================================================================
// STORE
// =============================================================================

type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database and migrates the schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent handler calls.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS debts (
		id                          TEXT PRIMARY KEY,
		creditor_id                 TEXT NOT NULL,
		subject_id                  TEXT NOT NULL,
		state                       TEXT NOT NULL,
		assigned_collector_id       TEXT,
		days_overdue                INTEGER NOT NULL DEFAULT 0,
		days_in_management          INTEGER NOT NULL DEFAULT 0,
		outstanding_principal_total TEXT NOT NULL DEFAULT '0',
		total_debt                  TEXT NOT NULL DEFAULT '0',
		collection_costs            TEXT NOT NULL DEFAULT '0',
		moratory_interest_total     TEXT NOT NULL DEFAULT '0',
		punitive_interest_total     TEXT NOT NULL DEFAULT '0',
		moratory_annual_rate        TEXT,
		punitive_annual_rate        TEXT,
		agreement_expiration        TIMESTAMP,
		collector_assigned_at       TIMESTAMP,
		updated_at                  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS installments (
		id                        TEXT PRIMARY KEY,
		debt_id                   TEXT NOT NULL REFERENCES debts(id) ON DELETE CASCADE,
		number                    INTEGER NOT NULL,
		due_date                  TIMESTAMP NOT NULL,
		original_principal        TEXT NOT NULL,
		outstanding_principal     TEXT NOT NULL,
		accrued_moratory_interest TEXT NOT NULL DEFAULT '0',
		accrued_punitive_interest TEXT NOT NULL DEFAULT '0',
		state                     TEXT NOT NULL,
		last_payment_date         TIMESTAMP,
		scheduled_amount          TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_installments_debt ON installments(debt_id, number);

	CREATE TABLE IF NOT EXISTS transition_rules (
		id                     TEXT PRIMARY KEY,
		management_type_id     TEXT NOT NULL,
		origin_state           TEXT,
		destination_state      TEXT,
		requires_authorization INTEGER NOT NULL DEFAULT 0,
		condition_json         TEXT,
		priority               INTEGER NOT NULL DEFAULT 0,
		active                 INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_rules_type_active ON transition_rules(management_type_id, active);

	CREATE TABLE IF NOT EXISTS allowed_transitions (
		origin                 TEXT NOT NULL,
		destination            TEXT NOT NULL,
		requires_authorization INTEGER NOT NULL DEFAULT 0,
		description            TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (origin, destination)
	);

	CREATE TABLE IF NOT EXISTS authorization_requests (
		id                      TEXT PRIMARY KEY,
		follow_up_id            TEXT NOT NULL,
		debt_id                 TEXT NOT NULL,
		origin_state            TEXT NOT NULL,
		destination_state       TEXT NOT NULL,
		requesting_collector_id TEXT NOT NULL,
		assigned_supervisor_id  TEXT,
		status                  TEXT NOT NULL,
		priority                TEXT NOT NULL,
		requested_at            TIMESTAMP NOT NULL,
		resolved_at             TIMESTAMP,
		requester_comment       TEXT NOT NULL DEFAULT '',
		supervisor_comment      TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_requests_status ON authorization_requests(status, requested_at);

	CREATE TABLE IF NOT EXISTS follow_ups (
		id                 TEXT PRIMARY KEY,
		collector_id       TEXT NOT NULL,
		subject_id         TEXT NOT NULL,
		management_type_id TEXT NOT NULL,
		occurred_at        TIMESTAMP NOT NULL,
		note               TEXT NOT NULL DEFAULT '',
		needs_follow_up    INTEGER NOT NULL DEFAULT 0,
		next_follow_up_at  TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS supervisors (
		id     TEXT PRIMARY KEY,
		name   TEXT NOT NULL,
		email  TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS assignment_cursor (
		id         INTEGER PRIMARY KEY CHECK (id = 1),
		next_index INTEGER NOT NULL DEFAULT 0
	);
	INSERT OR IGNORE INTO assignment_cursor (id, next_index) VALUES (1, 0);

	CREATE TABLE IF NOT EXISTS daily_update_runs (
		id                       TEXT PRIMARY KEY,
		reference_date           TIMESTAMP NOT NULL,
		status                   TEXT NOT NULL,
		debts_processed          INTEGER NOT NULL DEFAULT 0,
		debts_with_interest      INTEGER NOT NULL DEFAULT 0,
		debts_with_state_changed INTEGER NOT NULL DEFAULT 0,
		moratory_interest_total  TEXT NOT NULL DEFAULT '0',
		punitive_interest_total  TEXT NOT NULL DEFAULT '0',
		error                    TEXT NOT NULL DEFAULT '',
		started_at               TIMESTAMP NOT NULL,
		completed_at             TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Reset clears every table. Development and demo use only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stmts := []string{
		`DELETE FROM installments`,
		`DELETE FROM debts`,
		`DELETE FROM transition_rules`,
		`DELETE FROM allowed_transitions`,
		`DELETE FROM authorization_requests`,
		`DELETE FROM follow_ups`,
		`DELETE FROM supervisors`,
		`DELETE FROM daily_update_runs`,
		`UPDATE assignment_cursor SET next_index = 0 WHERE id = 1`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// DECIMAL / NULLABLE HELPERS
// =============================================================================

func decToText(d decimal.Decimal) string { return d.String() }

func textToDec(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func nullDecToText(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func textToNullDec(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func fromNullStr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// =============================================================================
// DEBT REPOSITORY
// =============================================================================

func (s *Store) GetDebt(ctx context.Context, id string) (*collections.Debt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getDebtLocked(ctx, id)
}

func (s *Store) getDebtLocked(ctx context.Context, id string) (*collections.Debt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, creditor_id, subject_id, state, assigned_collector_id,
		       days_overdue, days_in_management,
		       outstanding_principal_total, total_debt, collection_costs,
		       moratory_interest_total, punitive_interest_total,
		       moratory_annual_rate, punitive_annual_rate,
		       agreement_expiration, collector_assigned_at
		FROM debts WHERE id = ?`, id)

	d, err := scanDebt(row)
	if err == sql.ErrNoRows {
		return nil, collections.ErrDebtNotFound
	}
	if err != nil {
		return nil, err
	}

	installments, err := s.loadInstallments(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	d.Installments = installments
	return d, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDebt(row rowScanner) (*collections.Debt, error) {
	var (
		d                          collections.Debt
		state                      string
		collector                  sql.NullString
		principal, total, costs    string
		moratoryTot, punitiveTot   string
		moratoryRate, punitiveRate sql.NullString
		agreementExp, assignedAt   sql.NullTime
	)
	err := row.Scan(&d.ID, &d.CreditorID, &d.SubjectID, &state, &collector,
		&d.DaysOverdue, &d.DaysInManagement,
		&principal, &total, &costs, &moratoryTot, &punitiveTot,
		&moratoryRate, &punitiveRate, &agreementExp, &assignedAt)
	if err != nil {
		return nil, err
	}

	d.State = collections.DebtState(state)
	d.AssignedCollectorID = fromNullStr(collector)
	d.AgreementExpiration = fromNullTime(agreementExp)
	d.CollectorAssignedAt = fromNullTime(assignedAt)

	if d.OutstandingPrincipalTotal, err = textToDec(principal); err != nil {
		return nil, err
	}
	if d.TotalDebt, err = textToDec(total); err != nil {
		return nil, err
	}
	if d.CollectionCosts, err = textToDec(costs); err != nil {
		return nil, err
	}
	if d.MoratoryInterestTotal, err = textToDec(moratoryTot); err != nil {
		return nil, err
	}
	if d.PunitiveInterestTotal, err = textToDec(punitiveTot); err != nil {
		return nil, err
	}
	if d.MoratoryAnnualRate, err = textToNullDec(moratoryRate); err != nil {
		return nil, err
	}
	if d.PunitiveAnnualRate, err = textToNullDec(punitiveRate); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) loadInstallments(ctx context.Context, debtID string) ([]collections.Installment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, number, due_date, original_principal, outstanding_principal,
		       accrued_moratory_interest, accrued_punitive_interest, state,
		       last_payment_date, scheduled_amount
		FROM installments WHERE debt_id = ? ORDER BY number`, debtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []collections.Installment
	for rows.Next() {
		var (
			inst                  collections.Installment
			original, outstanding string
			moratory, punitive    string
			state                 string
			lastPayment           sql.NullTime
			scheduled             sql.NullString
		)
		if err := rows.Scan(&inst.ID, &inst.Number, &inst.DueDate, &original, &outstanding,
			&moratory, &punitive, &state, &lastPayment, &scheduled); err != nil {
			return nil, err
		}
		inst.State = collections.InstallmentState(state)
		inst.DueDate = inst.DueDate.UTC()
		inst.LastPaymentDate = fromNullTime(lastPayment)
		if inst.OriginalPrincipal, err = textToDec(original); err != nil {
			return nil, err
		}
		if inst.OutstandingPrincipal, err = textToDec(outstanding); err != nil {
			return nil, err
		}
		if inst.AccruedMoratoryInterest, err = textToDec(moratory); err != nil {
			return nil, err
		}
		if inst.AccruedPunitiveInterest, err = textToDec(punitive); err != nil {
			return nil, err
		}
		if inst.ScheduledAmount, err = textToNullDec(scheduled); err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// ListForDailyUpdate selects active debts: everything except the final states
// Cancelled, Uncollectible and Deceased.
func (s *Store) ListForDailyUpdate(ctx context.Context) ([]*collections.Debt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.debtIDs(ctx, `
		SELECT id FROM debts
		WHERE state NOT IN (?, ?, ?)
		ORDER BY id`,
		string(collections.StateCancelled),
		string(collections.StateUncollectible),
		string(collections.StateDeceased))
	if err != nil {
		return nil, err
	}
	return s.loadDebts(ctx, ids)
}

// ListDebts returns every debt, for the listing API.
func (s *Store) ListDebts(ctx context.Context) ([]*collections.Debt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.debtIDs(ctx, `SELECT id FROM debts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return s.loadDebts(ctx, ids)
}

func (s *Store) debtIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) loadDebts(ctx context.Context, ids []string) ([]*collections.Debt, error) {
	out := make([]*collections.Debt, 0, len(ids))
	for _, id := range ids {
		d, err := s.getDebtLocked(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// SaveDebt upserts the debt and replaces its installments in one transaction.
func (s *Store) SaveDebt(ctx context.Context, d *collections.Debt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO debts (id, creditor_id, subject_id, state, assigned_collector_id,
			days_overdue, days_in_management,
			outstanding_principal_total, total_debt, collection_costs,
			moratory_interest_total, punitive_interest_total,
			moratory_annual_rate, punitive_annual_rate,
			agreement_expiration, collector_assigned_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			creditor_id = excluded.creditor_id,
			subject_id = excluded.subject_id,
			state = excluded.state,
			assigned_collector_id = excluded.assigned_collector_id,
			days_overdue = excluded.days_overdue,
			days_in_management = excluded.days_in_management,
			outstanding_principal_total = excluded.outstanding_principal_total,
			total_debt = excluded.total_debt,
			collection_costs = excluded.collection_costs,
			moratory_interest_total = excluded.moratory_interest_total,
			punitive_interest_total = excluded.punitive_interest_total,
			moratory_annual_rate = excluded.moratory_annual_rate,
			punitive_annual_rate = excluded.punitive_annual_rate,
			agreement_expiration = excluded.agreement_expiration,
			collector_assigned_at = excluded.collector_assigned_at,
			updated_at = CURRENT_TIMESTAMP`,
		d.ID, d.CreditorID, d.SubjectID, string(d.State), nullStr(d.AssignedCollectorID),
		d.DaysOverdue, d.DaysInManagement,
		decToText(d.OutstandingPrincipalTotal), decToText(d.TotalDebt), decToText(d.CollectionCosts),
		decToText(d.MoratoryInterestTotal), decToText(d.PunitiveInterestTotal),
		nullDecToText(d.MoratoryAnnualRate), nullDecToText(d.PunitiveAnnualRate),
		nullTime(d.AgreementExpiration), nullTime(d.CollectorAssignedAt))
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM installments WHERE debt_id = ?`, d.ID); err != nil {
		return err
	}
	for _, inst := range d.Installments {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO installments (id, debt_id, number, due_date,
				original_principal, outstanding_principal,
				accrued_moratory_interest, accrued_punitive_interest,
				state, last_payment_date, scheduled_amount)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inst.ID, d.ID, inst.Number, inst.DueDate.UTC(),
			decToText(inst.OriginalPrincipal), decToText(inst.OutstandingPrincipal),
			decToText(inst.AccruedMoratoryInterest), decToText(inst.AccruedPunitiveInterest),
			string(inst.State), nullTime(inst.LastPaymentDate), nullDecToText(inst.ScheduledAmount))
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// =============================================================================
// RULE REPOSITORY
// =============================================================================

// RuleRecord is the persisted form of a transition rule; the condition stays
// as raw JSON until load.
type RuleRecord struct {
	ID                    string
	ManagementTypeID      string
	OriginState           *string
	DestinationState      *string
	RequiresAuthorization bool
	ConditionJSON         string
	Priority              int
	Active                bool
}

func (s *Store) SaveRule(ctx context.Context, r RuleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transition_rules (id, management_type_id, origin_state, destination_state,
			requires_authorization, condition_json, priority, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			management_type_id = excluded.management_type_id,
			origin_state = excluded.origin_state,
			destination_state = excluded.destination_state,
			requires_authorization = excluded.requires_authorization,
			condition_json = excluded.condition_json,
			priority = excluded.priority,
			active = excluded.active`,
		r.ID, r.ManagementTypeID, nullStr(r.OriginState), nullStr(r.DestinationState),
		r.RequiresAuthorization, r.ConditionJSON, r.Priority, r.Active)
	return err
}

// ActiveRulesByManagementType loads and parses the active rules. A malformed
// condition tree fails the load; legacy free-form conditions normalize to
// "no constraint".
func (s *Store) ActiveRulesByManagementType(ctx context.Context, managementTypeID string) ([]collections.TransitionRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, management_type_id, origin_state, destination_state,
		       requires_authorization, condition_json, priority, active
		FROM transition_rules
		WHERE active = 1 AND management_type_id = ?
		ORDER BY priority DESC, id`, managementTypeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []collections.TransitionRule
	for rows.Next() {
		var (
			rule          collections.TransitionRule
			origin, dest  sql.NullString
			conditionJSON sql.NullString
		)
		if err := rows.Scan(&rule.ID, &rule.ManagementTypeID, &origin, &dest,
			&rule.RequiresAuthorization, &conditionJSON, &rule.Priority, &rule.Active); err != nil {
			return nil, err
		}
		if origin.Valid {
			st := collections.DebtState(origin.String)
			rule.OriginState = &st
		}
		if dest.Valid {
			st := collections.DebtState(dest.String)
			rule.DestinationState = &st
		}
		if conditionJSON.Valid {
			cond, err := factory.NormalizeCondition(json.RawMessage(conditionJSON.String))
			if err != nil {
				return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
			}
			rule.Condition = cond
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSITION GRAPH
// =============================================================================

func (s *Store) SaveEdge(ctx context.Context, e collections.TransitionEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO allowed_transitions (origin, destination, requires_authorization, description)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(origin, destination) DO UPDATE SET
			requires_authorization = excluded.requires_authorization,
			description = excluded.description`,
		string(e.Origin), string(e.Destination), e.RequiresAuthorization, e.Description)
	return err
}

func (s *Store) Edge(ctx context.Context, origin, destination collections.DebtState) (*collections.TransitionEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT origin, destination, requires_authorization, description
		FROM allowed_transitions WHERE origin = ? AND destination = ?`,
		string(origin), string(destination))

	var e collections.TransitionEdge
	var o, d string
	err := row.Scan(&o, &d, &e.RequiresAuthorization, &e.Description)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Origin = collections.DebtState(o)
	e.Destination = collections.DebtState(d)
	return &e, nil
}

func (s *Store) EdgesFrom(ctx context.Context, origin collections.DebtState) ([]collections.TransitionEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT origin, destination, requires_authorization, description
		FROM allowed_transitions WHERE origin = ? ORDER BY destination`, string(origin))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []collections.TransitionEdge
	for rows.Next() {
		var e collections.TransitionEdge
		var o, d string
		if err := rows.Scan(&o, &d, &e.RequiresAuthorization, &e.Description); err != nil {
			return nil, err
		}
		e.Origin = collections.DebtState(o)
		e.Destination = collections.DebtState(d)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// AUTHORIZATION REQUEST REPOSITORY
// =============================================================================

func (s *Store) CreateRequest(ctx context.Context, r *collections.AuthorizationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO authorization_requests (id, follow_up_id, debt_id,
			origin_state, destination_state, requesting_collector_id,
			assigned_supervisor_id, status, priority, requested_at, resolved_at,
			requester_comment, supervisor_comment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.FollowUpID, r.DebtID,
		string(r.OriginState), string(r.DestinationState), r.RequestingCollectorID,
		nullStr(r.AssignedSupervisorID), string(r.Status), string(r.Priority),
		r.RequestedAt.UTC(), nullTime(r.ResolvedAt),
		r.RequesterComment, r.SupervisorComment)
	return err
}

func (s *Store) GetRequest(ctx context.Context, id string) (*collections.AuthorizationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, follow_up_id, debt_id, origin_state, destination_state,
		       requesting_collector_id, assigned_supervisor_id, status, priority,
		       requested_at, resolved_at, requester_comment, supervisor_comment
		FROM authorization_requests WHERE id = ?`, id)

	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, collections.ErrRequestNotFound
	}
	return r, err
}

func scanRequest(row rowScanner) (*collections.AuthorizationRequest, error) {
	var (
		r                          collections.AuthorizationRequest
		origin, dest, status, prio string
		supervisor                 sql.NullString
		resolvedAt                 sql.NullTime
	)
	err := row.Scan(&r.ID, &r.FollowUpID, &r.DebtID, &origin, &dest,
		&r.RequestingCollectorID, &supervisor, &status, &prio,
		&r.RequestedAt, &resolvedAt, &r.RequesterComment, &r.SupervisorComment)
	if err != nil {
		return nil, err
	}
	r.OriginState = collections.DebtState(origin)
	r.DestinationState = collections.DebtState(dest)
	r.Status = collections.RequestStatus(status)
	r.Priority = collections.RequestPriority(prio)
	r.AssignedSupervisorID = fromNullStr(supervisor)
	r.RequestedAt = r.RequestedAt.UTC()
	r.ResolvedAt = fromNullTime(resolvedAt)
	return &r, nil
}

func (s *Store) UpdateRequest(ctx context.Context, r *collections.AuthorizationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE authorization_requests
		SET assigned_supervisor_id = ?, status = ?, resolved_at = ?, supervisor_comment = ?
		WHERE id = ?`,
		nullStr(r.AssignedSupervisorID), string(r.Status), nullTime(r.ResolvedAt),
		r.SupervisorComment, r.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return collections.ErrRequestNotFound
	}
	return nil
}

func (s *Store) ListPendingRequests(ctx context.Context) ([]*collections.AuthorizationRequest, error) {
	return s.listRequests(ctx, `WHERE status = 'pending' ORDER BY requested_at, id`)
}

// ListRequests returns every request, newest first, for the listing API.
func (s *Store) ListRequests(ctx context.Context) ([]*collections.AuthorizationRequest, error) {
	return s.listRequests(ctx, `ORDER BY requested_at DESC, id`)
}

func (s *Store) listRequests(ctx context.Context, tail string) ([]*collections.AuthorizationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, follow_up_id, debt_id, origin_state, destination_state,
		       requesting_collector_id, assigned_supervisor_id, status, priority,
		       requested_at, resolved_at, requester_comment, supervisor_comment
		FROM authorization_requests `+tail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*collections.AuthorizationRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// FOLLOW-UP REPOSITORY
// =============================================================================

func (s *Store) CreateFollowUp(ctx context.Context, f *collections.FollowUp) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO follow_ups (id, collector_id, subject_id, management_type_id,
			occurred_at, note, needs_follow_up, next_follow_up_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.CollectorID, f.SubjectID, f.ManagementTypeID,
		f.OccurredAt.UTC(), f.Note, f.NeedsFollowUp, nullTime(f.NextFollowUpAt))
	return err
}

// =============================================================================
// SUPERVISOR DIRECTORY
// =============================================================================

func (s *Store) SaveSupervisor(ctx context.Context, sup collections.Supervisor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO supervisors (id, name, email, active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, email = excluded.email, active = excluded.active`,
		sup.ID, sup.Name, sup.Email, sup.Active)
	return err
}

func (s *Store) ActiveSupervisors(ctx context.Context) ([]collections.Supervisor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, active FROM supervisors WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []collections.Supervisor
	for rows.Next() {
		var sup collections.Supervisor
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.Email, &sup.Active); err != nil {
			return nil, err
		}
		out = append(out, sup)
	}
	return out, rows.Err()
}

// NextAssignmentIndex advances the single-row round-robin cursor atomically.
func (s *Store) NextAssignmentIndex(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var idx int
	if err := tx.QueryRowContext(ctx, `SELECT next_index FROM assignment_cursor WHERE id = 1`).Scan(&idx); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE assignment_cursor SET next_index = next_index + 1 WHERE id = 1`); err != nil {
		return 0, err
	}
	return idx, tx.Commit()
}

// =============================================================================
// DAILY UPDATE RUN AUDIT
// =============================================================================

// DailyRunRecord is the audit row for one daily sweep.
type DailyRunRecord struct {
	ID                    string
	ReferenceDate         time.Time
	Status                string // running | completed | failed
	DebtsProcessed        int
	DebtsWithInterest     int
	DebtsWithStateChanged int
	MoratoryInterestTotal decimal.Decimal
	PunitiveInterestTotal decimal.Decimal
	Error                 string
	StartedAt             time.Time
	CompletedAt           *time.Time
}

func (s *Store) SaveDailyRun(ctx context.Context, run DailyRunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_update_runs (id, reference_date, status,
			debts_processed, debts_with_interest, debts_with_state_changed,
			moratory_interest_total, punitive_interest_total, error,
			started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			debts_processed = excluded.debts_processed,
			debts_with_interest = excluded.debts_with_interest,
			debts_with_state_changed = excluded.debts_with_state_changed,
			moratory_interest_total = excluded.moratory_interest_total,
			punitive_interest_total = excluded.punitive_interest_total,
			error = excluded.error,
			completed_at = excluded.completed_at`,
		run.ID, run.ReferenceDate.UTC(), run.Status,
		run.DebtsProcessed, run.DebtsWithInterest, run.DebtsWithStateChanged,
		decToText(run.MoratoryInterestTotal), decToText(run.PunitiveInterestTotal),
		run.Error, run.StartedAt.UTC(), nullTime(run.CompletedAt))
	return err
}

func (s *Store) ListDailyRuns(ctx context.Context, limit int) ([]DailyRunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reference_date, status, debts_processed, debts_with_interest,
		       debts_with_state_changed, moratory_interest_total,
		       punitive_interest_total, error, started_at, completed_at
		FROM daily_update_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyRunRecord
	for rows.Next() {
		var (
			rec                DailyRunRecord
			moratory, punitive string
			completedAt        sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &rec.ReferenceDate, &rec.Status,
			&rec.DebtsProcessed, &rec.DebtsWithInterest, &rec.DebtsWithStateChanged,
			&moratory, &punitive, &rec.Error, &rec.StartedAt, &completedAt); err != nil {
			return nil, err
		}
		if rec.MoratoryInterestTotal, err = textToDec(moratory); err != nil {
			return nil, err
		}
		if rec.PunitiveInterestTotal, err = textToDec(punitive); err != nil {
			return nil, err
		}
		rec.ReferenceDate = rec.ReferenceDate.UTC()
		rec.StartedAt = rec.StartedAt.UTC()
		rec.CompletedAt = fromNullTime(completedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}
