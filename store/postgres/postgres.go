/*
Package postgres provides a PostgreSQL-backed implementation of the storage
interfaces, using pgx and a connection pool.

It implements the same interfaces as store/sqlite (attendance.Store,
attendance.TxStore, attendance.RecordAdmin, attendance.Journal and
directory.Store). Concurrency control is left to the database: no
process-level mutex, transactions run on a pooled connection.

USAGE:
  store, err := postgres.New(ctx, os.Getenv("DATABASE_URL"))
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tempreco/ponto/attendance"
	"github.com/tempreco/ponto/directory"
	"github.com/tempreco/ponto/factory"
)

const workHoursKey = "work_hours"

// Querier is satisfied by both the pool and a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
	q    Querier
}

// New connects to dsn, pings and migrates the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	config.MaxConns = 25
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &Store{pool: pool, q: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS attendance_records (
		employee_id TEXT NOT NULL,
		date DATE NOT NULL,
		clock_in TIMESTAMPTZ,
		lunch_out TIMESTAMPTZ,
		lunch_in TIMESTAMPTZ,
		clock_out TIMESTAMPTZ,
		total_hours TEXT NOT NULL DEFAULT '0',
		overtime_hours TEXT NOT NULL DEFAULT '0',
		accumulated_balance TEXT NOT NULL DEFAULT '0',
		daily_balance TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (employee_id, date)
	);
	CREATE INDEX IF NOT EXISTS idx_records_date ON attendance_records(date);
	CREATE INDEX IF NOT EXISTS idx_records_status ON attendance_records(status);

	CREATE TABLE IF NOT EXISTS balances (
		employee_id TEXT PRIMARY KEY,
		balance TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS balance_entries (
		seq BIGSERIAL,
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		date DATE NOT NULL,
		delta TEXT NOT NULL,
		balance TEXT NOT NULL,
		reason TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		actor TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_balance_entries_employee ON balance_entries(employee_id, created_at);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS companies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		cnpj TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT '',
		department TEXT NOT NULL DEFAULT '',
		age INTEGER NOT NULL DEFAULT 0,
		gender TEXT NOT NULL DEFAULT '',
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		company_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		type TEXT NOT NULL,
		employee_id TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// RECORD STORE
// =============================================================================

const recordColumns = `employee_id, date, clock_in, lunch_out, lunch_in, clock_out,
	total_hours, overtime_hours, accumulated_balance, daily_balance, status, updated_at`

func (s *Store) LoadRecord(ctx context.Context, key attendance.RecordKey) (*attendance.Record, error) {
	rec, err := scanRecord(s.q.QueryRow(ctx,
		"SELECT "+recordColumns+" FROM attendance_records WHERE employee_id = $1 AND date = $2",
		string(key.EmployeeID), key.Date.Time,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) SaveRecord(ctx context.Context, rec attendance.Record) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO attendance_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (employee_id, date) DO UPDATE SET
			clock_in = EXCLUDED.clock_in,
			lunch_out = EXCLUDED.lunch_out,
			lunch_in = EXCLUDED.lunch_in,
			clock_out = EXCLUDED.clock_out,
			total_hours = EXCLUDED.total_hours,
			overtime_hours = EXCLUDED.overtime_hours,
			accumulated_balance = EXCLUDED.accumulated_balance,
			daily_balance = EXCLUDED.daily_balance,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`,
		string(rec.EmployeeID), rec.Date.Time,
		rec.ClockIn, rec.LunchOut, rec.LunchIn, rec.ClockOut,
		rec.TotalHours.String(), rec.OvertimeHours.String(), rec.AccumulatedBalance.String(), rec.DailyBalance.String(),
		string(rec.Status), rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

func (s *Store) LoadBalance(ctx context.Context, id attendance.EmployeeID) (decimal.Decimal, error) {
	var raw string
	err := s.q.QueryRow(ctx, "SELECT balance FROM balances WHERE employee_id = $1", string(id)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

func (s *Store) SaveBalance(ctx context.Context, id attendance.EmployeeID, balance decimal.Decimal) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO balances (employee_id, balance, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (employee_id) DO UPDATE SET balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at
	`, string(id), balance.String())
	if err != nil {
		return fmt.Errorf("save balance: %w", err)
	}
	return nil
}

func (s *Store) LoadPolicy(ctx context.Context) (attendance.WorkHoursPolicy, error) {
	var blob string
	err := s.q.QueryRow(ctx, "SELECT value FROM settings WHERE key = $1", workHoursKey).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
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
	_, err = s.q.Exec(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, workHoursKey, blob)
	return err
}

// =============================================================================
// QUERIES AND ADMINISTRATION
// =============================================================================

func (s *Store) ListRecords(ctx context.Context, q attendance.RecordQuery) ([]attendance.Record, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.EmployeeID != "" {
		where = append(where, "employee_id = "+arg(string(q.EmployeeID)))
	}
	if !q.From.IsZero() {
		where = append(where, "date >= "+arg(q.From.Time))
	}
	if !q.To.IsZero() {
		where = append(where, "date <= "+arg(q.To.Time))
	}
	if q.OpenOnly {
		where = append(where, "status IN ("+
			arg(string(attendance.StatusClockedIn))+", "+
			arg(string(attendance.StatusLunchBreak))+", "+
			arg(string(attendance.StatusLunchReturn))+")")
	}

	query := "SELECT " + recordColumns + " FROM attendance_records"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, employee_id ASC"
	if q.Limit > 0 {
		query += " LIMIT " + arg(q.Limit)
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
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
	tag, err := s.q.Exec(ctx,
		"DELETE FROM attendance_records WHERE employee_id = $1 AND date = $2",
		string(key.EmployeeID), key.Date.Time,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", attendance.ErrRecordNotFound, key)
	}
	return nil
}

// =============================================================================
// BALANCE JOURNAL
// =============================================================================

func (s *Store) AppendBalanceEntry(ctx context.Context, e attendance.BalanceEntry) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO balance_entries (id, employee_id, date, delta, balance, reason, note, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, string(e.EmployeeID), e.Date.Time, e.Delta.String(), e.Balance.String(),
		string(e.Reason), e.Note, e.Actor, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append balance entry: %w", err)
	}
	return nil
}

func (s *Store) ListBalanceEntries(ctx context.Context, id attendance.EmployeeID) ([]attendance.BalanceEntry, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, employee_id, date, delta, balance, reason, note, actor, created_at
		FROM balance_entries
		WHERE employee_id = $1
		ORDER BY created_at ASC, seq ASC
	`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []attendance.BalanceEntry
	for rows.Next() {
		var (
			e                      attendance.BalanceEntry
			employeeID             string
			date                   time.Time
			delta, balance, reason string
		)
		if err := rows.Scan(&e.ID, &employeeID, &date, &delta, &balance, &reason, &e.Note, &e.Actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.EmployeeID = attendance.EmployeeID(employeeID)
		e.Date = attendance.NewDay(date.Year(), date.Month(), date.Day())
		e.Delta = decimal.RequireFromString(delta)
		e.Balance = decimal.RequireFromString(balance)
		e.Reason = attendance.BalanceReason(reason)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx runs fn on a view of the store bound to one transaction.
func (s *Store) WithTx(ctx context.Context, fn func(attendance.Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(&Store{pool: s.pool, q: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback error: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, e directory.Employee) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO employees (id, name, email, role, department, age, gender, is_admin, company_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			role = EXCLUDED.role,
			department = EXCLUDED.department,
			age = EXCLUDED.age,
			gender = EXCLUDED.gender,
			is_admin = EXCLUDED.is_admin,
			company_id = EXCLUDED.company_id
	`, e.ID, e.Name, e.Email, e.Role, e.Department, e.Age, string(e.Gender), e.IsAdmin, e.CompanyID, createdAt(e.CreatedAt))
	return err
}

const employeeColumns = "id, name, email, role, department, age, gender, is_admin, company_id, created_at"

func (s *Store) GetEmployee(ctx context.Context, id string) (*directory.Employee, error) {
	e, err := scanEmployee(s.q.QueryRow(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]directory.Employee, error) {
	rows, err := s.q.Query(ctx, "SELECT "+employeeColumns+" FROM employees ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []directory.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func (s *Store) DeleteEmployee(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(st attendance.Store) error {
		q := st.(*Store).q
		if _, err := q.Exec(ctx, "DELETE FROM users WHERE employee_id = $1", id); err != nil {
			return err
		}
		_, err := q.Exec(ctx, "DELETE FROM employees WHERE id = $1", id)
		return err
	})
}

func scanEmployee(row pgx.Row) (directory.Employee, error) {
	var e directory.Employee
	var gender string
	err := row.Scan(&e.ID, &e.Name, &e.Email, &e.Role, &e.Department, &e.Age, &gender, &e.IsAdmin, &e.CompanyID, &e.CreatedAt)
	e.Gender = directory.Gender(gender)
	return e, err
}

func (s *Store) SaveCompany(ctx context.Context, c directory.Company) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO companies (id, name, cnpj, address, phone, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			cnpj = EXCLUDED.cnpj,
			address = EXCLUDED.address,
			phone = EXCLUDED.phone
	`, c.ID, c.Name, c.CNPJ, c.Address, c.Phone, c.CreatedBy, createdAt(c.CreatedAt))
	return err
}

const companyColumns = "id, name, cnpj, address, phone, created_by, created_at"

func (s *Store) GetCompany(ctx context.Context, id string) (*directory.Company, error) {
	var c directory.Company
	err := s.q.QueryRow(ctx, "SELECT "+companyColumns+" FROM companies WHERE id = $1", id).
		Scan(&c.ID, &c.Name, &c.CNPJ, &c.Address, &c.Phone, &c.CreatedBy, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCompanies(ctx context.Context) ([]directory.Company, error) {
	rows, err := s.q.Query(ctx, "SELECT "+companyColumns+" FROM companies ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []directory.Company
	for rows.Next() {
		var c directory.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.CNPJ, &c.Address, &c.Phone, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (s *Store) DeleteCompany(ctx context.Context, id string) error {
	_, err := s.q.Exec(ctx, "DELETE FROM companies WHERE id = $1", id)
	return err
}

func (s *Store) SaveUser(ctx context.Context, u directory.User) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, type, employee_id, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			password_hash = EXCLUDED.password_hash,
			type = EXCLUDED.type,
			employee_id = EXCLUDED.employee_id
	`, u.ID, u.Name, u.Email, u.PasswordHash, string(u.Type), u.EmployeeID, u.CreatedBy, createdAt(u.CreatedAt))

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return directory.ErrEmailTaken
	}
	return err
}

const userColumns = "id, name, email, password_hash, type, employee_id, created_by, created_at"

func (s *Store) GetUser(ctx context.Context, id string) (*directory.User, error) {
	return s.getUserWhere(ctx, "id = $1", id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*directory.User, error) {
	return s.getUserWhere(ctx, "email = $1", email)
}

func (s *Store) getUserWhere(ctx context.Context, cond string, arg any) (*directory.User, error) {
	u, err := scanUser(s.q.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE "+cond, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]directory.User, error) {
	rows, err := s.q.Query(ctx, "SELECT "+userColumns+" FROM users ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []directory.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	_, err := s.q.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	return err
}

func (s *Store) CountAdmins(ctx context.Context) (int, error) {
	var n int
	err := s.q.QueryRow(ctx, "SELECT COUNT(*) FROM users WHERE type = $1", string(directory.UserAdmin)).Scan(&n)
	return n, err
}

func scanUser(row pgx.Row) (directory.User, error) {
	var u directory.User
	var typ string
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &typ, &u.EmployeeID, &u.CreatedBy, &u.CreatedAt)
	u.Type = directory.UserType(typ)
	return u, err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.q.Exec(ctx, `TRUNCATE attendance_records, balances, balance_entries, settings, users, employees, companies`)
	return err
}

func scanRecord(row pgx.Row) (attendance.Record, error) {
	var (
		rec                             attendance.Record
		employeeID, status              string
		date                            time.Time
		total, overtime, balance, daily string
	)
	err := row.Scan(&employeeID, &date, &rec.ClockIn, &rec.LunchOut, &rec.LunchIn, &rec.ClockOut,
		&total, &overtime, &balance, &daily, &status, &rec.UpdatedAt)
	if err != nil {
		return rec, err
	}
	rec.EmployeeID = attendance.EmployeeID(employeeID)
	rec.Date = attendance.NewDay(date.Year(), date.Month(), date.Day())
	rec.TotalHours = decimal.RequireFromString(total)
	rec.OvertimeHours = decimal.RequireFromString(overtime)
	rec.AccumulatedBalance = decimal.RequireFromString(balance)
	rec.DailyBalance = decimal.RequireFromString(daily)
	rec.Status = attendance.Status(status)
	return rec, nil
}

func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
