package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/eugenenazirov/basic-auth/internal/credentials"
)

const createTableSQL = `CREATE TABLE IF NOT EXISTS api_credentials (
	username VARCHAR(255)%s NOT NULL PRIMARY KEY,
	password_hash VARCHAR(255) NOT NULL,
	description VARCHAR(1024) NOT NULL DEFAULT '',
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
)`

// createTableStatement returns the DDL for driver. MySQL's default
// collations are case and accent insensitive, so usernames get a binary one.
func createTableStatement(driver string) string {
	if driver == DriverMySQL {
		return fmt.Sprintf(createTableSQL, " CHARACTER SET utf8mb4 COLLATE utf8mb4_bin")
	}
	return fmt.Sprintf(createTableSQL, "")
}

const selectColumns = "username, password_hash, description, created_at, updated_at"

// SQLStorage keeps credential records in a relational database.
type SQLStorage struct {
	db     *sql.DB
	driver string
}

// NewSQLStorage wraps an open database handle. driver is one of the Driver* constants.
func NewSQLStorage(db *sql.DB, driver string) *SQLStorage {
	return &SQLStorage{db: db, driver: driver}
}

// DB exposes the underlying handle.
func (s *SQLStorage) DB() *sql.DB {
	return s.db
}

// Migrate creates the credentials table when it does not exist.
func (s *SQLStorage) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableStatement(s.driver)); err != nil {
		return fmt.Errorf("create api_credentials table: %w", err)
	}
	return nil
}

// Add inserts rec, reporting credentials.ErrAlreadyExists on a key conflict.
func (s *SQLStorage) Add(ctx context.Context, rec credentials.Record) error {
	query := s.rebind(`INSERT INTO api_credentials (` + selectColumns + `) VALUES (?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		rec.Username,
		rec.PasswordHash,
		rec.Description,
		rec.CreatedAt.UnixMicro(),
		rec.UpdatedAt.UnixMicro(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return credentials.ErrAlreadyExists
		}
		return fmt.Errorf("insert credentials: %w", err)
	}
	return nil
}

// Get loads the record stored for username.
func (s *SQLStorage) Get(ctx context.Context, username string) (credentials.Record, error) {
	query := s.rebind(`SELECT ` + selectColumns + ` FROM api_credentials WHERE username = ?`)
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, username))
	if errors.Is(err, sql.ErrNoRows) {
		return credentials.Record{}, credentials.ErrNotFound
	}
	if err != nil {
		return credentials.Record{}, fmt.Errorf("select credentials: %w", err)
	}
	return rec, nil
}

// List returns records created inside the window, ordered by username.
func (s *SQLStorage) List(ctx context.Context, opts credentials.ListOptions) ([]credentials.Record, error) {
	var (
		conditions []string
		args       []any
	)
	if opts.Start != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, opts.Start.UnixMicro())
	}
	if opts.End != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, opts.End.UnixMicro())
	}

	query := `SELECT ` + selectColumns + ` FROM api_credentials`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY username"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	out := []credentials.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credentials: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return out, nil
}

// Update replaces the mutable columns of an existing record.
func (s *SQLStorage) Update(ctx context.Context, rec credentials.Record) error {
	query := s.rebind(`UPDATE api_credentials SET password_hash = ?, description = ?, updated_at = ? WHERE username = ?`)
	res, err := s.db.ExecContext(ctx, query,
		rec.PasswordHash,
		rec.Description,
		rec.UpdatedAt.UnixMicro(),
		rec.Username,
	)
	if err != nil {
		return fmt.Errorf("update credentials: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update credentials: %w", err)
	}
	if affected == 0 {
		// MySQL reports changed rows, not matched rows.
		if _, err := s.Get(ctx, rec.Username); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes the record for username and reports whether one existed.
func (s *SQLStorage) Remove(ctx context.Context, username string) (bool, error) {
	query := s.rebind(`DELETE FROM api_credentials WHERE username = ?`)
	res, err := s.db.ExecContext(ctx, query, username)
	if err != nil {
		return false, fmt.Errorf("delete credentials: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete credentials: %w", err)
	}
	return affected > 0, nil
}

// Close closes the database handle.
func (s *SQLStorage) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to the $n form PostgreSQL expects.
func (s *SQLStorage) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (credentials.Record, error) {
	var (
		rec       credentials.Record
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&rec.Username, &rec.PasswordHash, &rec.Description, &createdAt, &updatedAt); err != nil {
		return credentials.Record{}, err
	}
	rec.CreatedAt = time.UnixMicro(createdAt).UTC()
	rec.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	return rec, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
