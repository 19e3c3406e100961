/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence interface of the ponto system using SQLite.
  store/postgres implements the same interfaces for PostgreSQL; only the
  SQL dialect differs.

INTERFACES IMPLEMENTED:
  attendance.Store:        Records, balances, work hours policy
  attendance.TxStore:      Atomic record + balance commit on clock-out
  attendance.RecordAdmin:  Listing, deletion, policy updates
  attendance.Journal:      Balance movement history
  directory.Store:         Employees, companies, users

KEY TABLES:
  attendance_records: One row per (employee_id, date)
  balances:           Committed hour balance per employee
  balance_entries:    Append-only history of balance movements
  settings:           Key/value blobs (work_hours policy)
  employees, companies, users: Directory

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, SQLite
  allows one writer at a time anyway. The attendance.Clock additionally
  serializes punches per employee.

USAGE:
  store, err := sqlite.New("./ponto.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  clock := attendance.NewClock(store)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - attendance/store.go: Interface definitions
  - attendance/store/memory.go: In-memory implementation for testing
  - store/postgres/postgres.go: PostgreSQL implementation
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

	"github.com/tempreco/ponto/attendance"
	"github.com/tempreco/ponto/directory"
	"github.com/tempreco/ponto/factory"
)

const workHoursKey = "work_hours"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)

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

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- One record per employee per day
	CREATE TABLE IF NOT EXISTS attendance_records (
		employee_id TEXT NOT NULL,
		date TEXT NOT NULL,
		clock_in TEXT,
		lunch_out TEXT,
		lunch_in TEXT,
		clock_out TEXT,
		total_hours TEXT NOT NULL DEFAULT '0',
		overtime_hours TEXT NOT NULL DEFAULT '0',
		accumulated_balance TEXT NOT NULL DEFAULT '0',
		daily_balance TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_records_date
		ON attendance_records(date);
	CREATE INDEX IF NOT EXISTS idx_records_status
		ON attendance_records(status);

	-- Committed balance per employee
	CREATE TABLE IF NOT EXISTS balances (
		employee_id TEXT PRIMARY KEY,
		balance TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Balance movements (append-only)
	CREATE TABLE IF NOT EXISTS balance_entries (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		date TEXT NOT NULL,
		delta TEXT NOT NULL,
		balance TEXT NOT NULL,
		reason TEXT NOT NULL,
		note TEXT,
		actor TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_balance_entries_employee
		ON balance_entries(employee_id, created_at);

	-- Settings blobs
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Companies
	CREATE TABLE IF NOT EXISTS companies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		cnpj TEXT NOT NULL,
		address TEXT,
		phone TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	-- Employees
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		role TEXT,
		department TEXT,
		age INTEGER,
		gender TEXT,
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		company_id TEXT,
		created_at TEXT NOT NULL
	);

	-- System users
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		type TEXT NOT NULL,
		employee_id TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_type
		ON users(type);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RECORD STORE (attendance.Store interface)
// =============================================================================

const recordColumns = `employee_id, date, clock_in, lunch_out, lunch_in, clock_out,
	total_hours, overtime_hours, accumulated_balance, daily_balance, status, updated_at`

func (s *Store) LoadRecord(ctx context.Context, key attendance.RecordKey) (*attendance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadRecord(ctx, s.db, key)
}

func loadRecord(ctx context.Context, db dbtx, key attendance.RecordKey) (*attendance.Record, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM attendance_records WHERE employee_id = ? AND date = ?",
		string(key.EmployeeID), key.Date.String(),
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) SaveRecord(ctx context.Context, rec attendance.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRecord(ctx, s.db, rec)
}

func saveRecord(ctx context.Context, db dbtx, rec attendance.Record) error {
	query := `
		INSERT INTO attendance_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, date) DO UPDATE SET
			clock_in = excluded.clock_in,
			lunch_out = excluded.lunch_out,
			lunch_in = excluded.lunch_in,
			clock_out = excluded.clock_out,
			total_hours = excluded.total_hours,
			overtime_hours = excluded.overtime_hours,
			accumulated_balance = excluded.accumulated_balance,
			daily_balance = excluded.daily_balance,
			status = excluded.status,
			updated_at = excluded.updated_at
	`
	_, err := db.ExecContext(ctx, query,
		string(rec.EmployeeID), rec.Date.String(),
		nullTime(rec.ClockIn), nullTime(rec.LunchOut), nullTime(rec.LunchIn), nullTime(rec.ClockOut),
		rec.TotalHours.String(), rec.OvertimeHours.String(), rec.AccumulatedBalance.String(), rec.DailyBalance.String(),
		string(rec.Status), rec.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

func (s *Store) LoadBalance(ctx context.Context, id attendance.EmployeeID) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadBalance(ctx, s.db, id)
}

func loadBalance(ctx context.Context, db dbtx, id attendance.EmployeeID) (decimal.Decimal, error) {
	var raw string
	err := db.QueryRowContext(ctx, "SELECT balance FROM balances WHERE employee_id = ?", string(id)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

func (s *Store) SaveBalance(ctx context.Context, id attendance.EmployeeID, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveBalance(ctx, s.db, id, balance)
}

func saveBalance(ctx context.Context, db dbtx, id attendance.EmployeeID, balance decimal.Decimal) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO balances (employee_id, balance, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(employee_id) DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at
	`, string(id), balance.String(), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save balance: %w", err)
	}
	return nil
}

// LoadPolicy reads the work_hours settings blob merged over the defaults.
func (s *Store) LoadPolicy(ctx context.Context) (attendance.WorkHoursPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadPolicy(ctx, s.db)
}

func loadPolicy(ctx context.Context, db dbtx) (attendance.WorkHoursPolicy, error) {
	var blob string
	err := db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", workHoursKey).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return attendance.DefaultPolicy(), nil
	}
	if err != nil {
		return attendance.WorkHoursPolicy{}, err
	}
	return factory.ParseWorkHours(blob)
}

func (s *Store) SavePolicy(ctx context.Context, p attendance.WorkHoursPolicy) error {
	blob, err := factory.WorkHoursJSON(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, workHoursKey, blob, time.Now().UTC().Format(time.RFC3339))
	return err
}

// =============================================================================
// QUERIES AND ADMINISTRATION (attendance.RecordAdmin interface)
// =============================================================================

// ListRecords returns matching records, newest date first.
func (s *Store) ListRecords(ctx context.Context, q attendance.RecordQuery) ([]attendance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if q.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, string(q.EmployeeID))
	}
	if !q.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, q.From.String())
	}
	if !q.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, q.To.String())
	}
	if q.OpenOnly {
		where = append(where, "status IN (?, ?, ?)")
		args = append(args, string(attendance.StatusClockedIn), string(attendance.StatusLunchBreak), string(attendance.StatusLunchReturn))
	}

	query := "SELECT " + recordColumns + " FROM attendance_records"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, employee_id ASC"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []attendance.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) DeleteRecord(ctx context.Context, key attendance.RecordKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM attendance_records WHERE employee_id = ? AND date = ?",
		string(key.EmployeeID), key.Date.String(),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", attendance.ErrRecordNotFound, key)
	}
	return nil
}

// =============================================================================
// BALANCE JOURNAL (attendance.Journal interface)
// =============================================================================

func (s *Store) AppendBalanceEntry(ctx context.Context, e attendance.BalanceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendBalanceEntry(ctx, s.db, e)
}

func appendBalanceEntry(ctx context.Context, db dbtx, e attendance.BalanceEntry) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO balance_entries (id, employee_id, date, delta, balance, reason, note, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, string(e.EmployeeID), e.Date.String(), e.Delta.String(), e.Balance.String(),
		string(e.Reason), nullString(e.Note), nullString(e.Actor), e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append balance entry: %w", err)
	}
	return nil
}

// ListBalanceEntries returns entries oldest first.
func (s *Store) ListBalanceEntries(ctx context.Context, id attendance.EmployeeID) ([]attendance.BalanceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listBalanceEntries(ctx, s.db, id)
}

func listBalanceEntries(ctx context.Context, db dbtx, id attendance.EmployeeID) ([]attendance.BalanceEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, employee_id, date, delta, balance, reason, note, actor, created_at
		FROM balance_entries
		WHERE employee_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []attendance.BalanceEntry
	for rows.Next() {
		var (
			e                           attendance.BalanceEntry
			employeeID, date, createdAt string
			delta, balance, reason      string
			note, actor                 sql.NullString
		)
		if err := rows.Scan(&e.ID, &employeeID, &date, &delta, &balance, &reason, &note, &actor, &createdAt); err != nil {
			return nil, err
		}
		e.EmployeeID = attendance.EmployeeID(employeeID)
		e.Date, _ = attendance.ParseDay(date)
		e.Delta = decimal.RequireFromString(delta)
		e.Balance = decimal.RequireFromString(balance)
		e.Reason = attendance.BalanceReason(reason)
		e.Note, e.Actor = note.String, actor.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (attendance.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store attendance.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) LoadRecord(ctx context.Context, key attendance.RecordKey) (*attendance.Record, error) {
	return loadRecord(ctx, ts.tx, key)
}

func (ts *txStore) SaveRecord(ctx context.Context, rec attendance.Record) error {
	return saveRecord(ctx, ts.tx, rec)
}

func (ts *txStore) LoadBalance(ctx context.Context, id attendance.EmployeeID) (decimal.Decimal, error) {
	return loadBalance(ctx, ts.tx, id)
}

func (ts *txStore) SaveBalance(ctx context.Context, id attendance.EmployeeID, balance decimal.Decimal) error {
	return saveBalance(ctx, ts.tx, id, balance)
}

func (ts *txStore) LoadPolicy(ctx context.Context) (attendance.WorkHoursPolicy, error) {
	return loadPolicy(ctx, ts.tx)
}

func (ts *txStore) AppendBalanceEntry(ctx context.Context, e attendance.BalanceEntry) error {
	return appendBalanceEntry(ctx, ts.tx, e)
}

func (ts *txStore) ListBalanceEntries(ctx context.Context, id attendance.EmployeeID) ([]attendance.BalanceEntry, error) {
	return listBalanceEntries(ctx, ts.tx, id)
}

// =============================================================================
// EMPLOYEE STORE (directory.Store interface)
// =============================================================================

// SaveEmployee inserts or updates an employee.
func (s *Store) SaveEmployee(ctx context.Context, e directory.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO employees (id, name, email, role, department, age, gender, is_admin, company_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			role = excluded.role,
			department = excluded.department,
			age = excluded.age,
			gender = excluded.gender,
			is_admin = excluded.is_admin,
			company_id = excluded.company_id
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.Name, nullString(e.Email), nullString(e.Role), nullString(e.Department),
		e.Age, nullString(string(e.Gender)), e.IsAdmin, nullString(e.CompanyID),
		createdAt(e.CreatedAt),
	)
	return err
}

const employeeColumns = "id, name, email, role, department, age, gender, is_admin, company_id, created_at"

// GetEmployee retrieves an employee by ID.
func (s *Store) GetEmployee(ctx context.Context, id string) (*directory.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = ?", id)
	e, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEmployees returns all employees.
func (s *Store) ListEmployees(ctx context.Context) ([]directory.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+employeeColumns+" FROM employees ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []directory.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

// DeleteEmployee removes an employee and the login linked to it.
func (s *Store) DeleteEmployee(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE employee_id = ?", id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM employees WHERE id = ?", id)
	return err
}

func scanEmployee(row scanner) (directory.Employee, error) {
	var (
		e                                      directory.Employee
		email, role, department, gender, company sql.NullString
		age                                    sql.NullInt64
		created                                string
	)
	if err := row.Scan(&e.ID, &e.Name, &email, &role, &department, &age, &gender, &e.IsAdmin, &company, &created); err != nil {
		return e, err
	}
	e.Email, e.Role, e.Department = email.String, role.String, department.String
	e.Age = int(age.Int64)
	e.Gender = directory.Gender(gender.String)
	e.CompanyID = company.String
	e.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return e, nil
}

// =============================================================================
// COMPANY STORE
// =============================================================================

func (s *Store) SaveCompany(ctx context.Context, c directory.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO companies (id, name, cnpj, address, phone, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			cnpj = excluded.cnpj,
			address = excluded.address,
			phone = excluded.phone
	`
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.Name, c.CNPJ, nullString(c.Address), nullString(c.Phone), nullString(c.CreatedBy),
		createdAt(c.CreatedAt),
	)
	return err
}

const companyColumns = "id, name, cnpj, address, phone, created_by, created_at"

func (s *Store) GetCompany(ctx context.Context, id string) (*directory.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := scanCompany(s.db.QueryRowContext(ctx, "SELECT "+companyColumns+" FROM companies WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCompanies(ctx context.Context) ([]directory.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+companyColumns+" FROM companies ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var companies []directory.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

func (s *Store) DeleteCompany(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM companies WHERE id = ?", id)
	return err
}

func scanCompany(row scanner) (directory.Company, error) {
	var (
		c                         directory.Company
		address, phone, createdBy sql.NullString
		created                   string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.CNPJ, &address, &phone, &createdBy, &created); err != nil {
		return c, err
	}
	c.Address, c.Phone, c.CreatedBy = address.String, phone.String, createdBy.String
	c.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return c, nil
}

// =============================================================================
// USER STORE
// =============================================================================

func (s *Store) SaveUser(ctx context.Context, u directory.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO users (id, name, email, password_hash, type, employee_id, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			password_hash = excluded.password_hash,
			type = excluded.type,
			employee_id = excluded.employee_id
	`
	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.Name, u.Email, u.PasswordHash, string(u.Type),
		nullString(u.EmployeeID), nullString(u.CreatedBy), createdAt(u.CreatedAt),
	)
	if isUniqueConstraintError(err) {
		return directory.ErrEmailTaken
	}
	return err
}

const userColumns = "id, name, email, password_hash, type, employee_id, created_by, created_at"

func (s *Store) GetUser(ctx context.Context, id string) (*directory.User, error) {
	return s.getUserWhere(ctx, "id = ?", id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*directory.User, error) {
	return s.getUserWhere(ctx, "email = ?", email)
}

func (s *Store) getUserWhere(ctx context.Context, cond string, arg any) (*directory.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+cond, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]directory.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []directory.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	return err
}

func (s *Store) CountAdmins(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE type = ?", string(directory.UserAdmin)).Scan(&n)
	return n, err
}

func scanUser(row scanner) (directory.User, error) {
	var (
		u                     directory.User
		typ, created          string
		employeeID, createdBy sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &typ, &employeeID, &createdBy, &created); err != nil {
		return u, err
	}
	u.Type = directory.UserType(typ)
	u.EmployeeID, u.CreatedBy = employeeID.String, createdBy.String
	u.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return u, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"attendance_records", "balances", "balance_entries", "settings", "users", "employees", "companies"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (attendance.Record, error) {
	var (
		rec                                  attendance.Record
		employeeID, date, status, updatedAt  string
		clockIn, lunchOut, lunchIn, clockOut sql.NullString
		total, overtime, balance, daily      string
	)
	err := row.Scan(&employeeID, &date, &clockIn, &lunchOut, &lunchIn, &clockOut,
		&total, &overtime, &balance, &daily, &status, &updatedAt)
	if err != nil {
		return rec, err
	}

	day, err := attendance.ParseDay(date)
	if err != nil {
		return rec, fmt.Errorf("failed to scan record: %w", err)
	}
	rec.EmployeeID = attendance.EmployeeID(employeeID)
	rec.Date = day
	rec.ClockIn = parseTime(clockIn)
	rec.LunchOut = parseTime(lunchOut)
	rec.LunchIn = parseTime(lunchIn)
	rec.ClockOut = parseTime(clockOut)
	rec.TotalHours = decimal.RequireFromString(total)
	rec.OvertimeHours = decimal.RequireFromString(overtime)
	rec.AccumulatedBalance = decimal.RequireFromString(balance)
	rec.DailyBalance = decimal.RequireFromString(daily)
	rec.Status = attendance.Status(status)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return rec, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func createdAt(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
