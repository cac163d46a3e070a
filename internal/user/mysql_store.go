package user

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

const mysqlErrDuplicateEntry = 1062

// MySQLStore implements Store over MySQL. Addresses are stored
// lowercase; the users.address unique key is the single-writer lock
// that resolves concurrent first logins for the same address.
//
// Schema:
//
//	CREATE TABLE users (
//	    address            VARCHAR(42)  NOT NULL,
//	    display_name       VARCHAR(250) NOT NULL DEFAULT '',
//	    role               VARCHAR(64)  NOT NULL,
//	    email              VARCHAR(254) NOT NULL DEFAULT '',
//	    url                VARCHAR(500) NOT NULL DEFAULT '',
//	    wallet_provisioned TINYINT(1)   NOT NULL DEFAULT 0,
//	    created_at         DATETIME     NOT NULL,
//	    updated_at         DATETIME     NOT NULL,
//	    PRIMARY KEY (address)
//	);
//
//	CREATE TABLE user_meta (
//	    address    VARCHAR(42)  NOT NULL,
//	    meta_key   VARCHAR(255) NOT NULL,
//	    meta_value TEXT         NOT NULL,
//	    PRIMARY KEY (address, meta_key)
//	);
type MySQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// Compile-time interface compliance check
var _ Store = (*MySQLStore)(nil)

// NewMySQLStore creates a MySQL-backed user store.
func NewMySQLStore(db *sql.DB, logger *zap.Logger) *MySQLStore {
	return &MySQLStore{db: db, logger: logger}
}

// FindByAddress returns the user for an address, or ErrNotFound.
func (s *MySQLStore) FindByAddress(ctx context.Context, address string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT address, display_name, role, email, url, wallet_provisioned, created_at, updated_at
		 FROM users WHERE address = ?`,
		strings.ToLower(address),
	)

	var u User
	err := row.Scan(&u.Address, &u.DisplayName, &u.Role, &u.Email, &u.URL,
		&u.WalletProvisioned, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

// Create inserts a new user. A duplicate address returns
// ErrAlreadyExists so the caller can retry as a lookup.
func (s *MySQLStore) Create(ctx context.Context, u *User) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (address, display_name, role, email, url, wallet_provisioned, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		strings.ToLower(u.Address), u.DisplayName, u.Role, u.Email, u.URL,
		u.WalletProvisioned, now, now,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		s.logger.Error("failed to create user", zap.Error(err))
		return fmt.Errorf("create user: %w", err)
	}

	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

// UpdateDisplayName updates a user's display name.
func (s *MySQLStore) UpdateDisplayName(ctx context.Context, address, displayName string) error {
	return s.update(ctx, address, "display_name", displayName)
}

// UpdateRole updates a user's role.
func (s *MySQLStore) UpdateRole(ctx context.Context, address, role string) error {
	return s.update(ctx, address, "role", role)
}

// UpdateProfileField sets a dedicated profile column.
func (s *MySQLStore) UpdateProfileField(ctx context.Context, address, field, value string) error {
	switch field {
	case MetaKeyEmail:
		return s.update(ctx, address, "email", value)
	case MetaKeyURL:
		return s.update(ctx, address, "url", value)
	default:
		return fmt.Errorf("unknown profile field %q", field)
	}
}

// SetMeta upserts a generic user meta value.
func (s *MySQLStore) SetMeta(ctx context.Context, address, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_meta (address, meta_key, meta_value) VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE meta_value = VALUES(meta_value)`,
		strings.ToLower(address), key, value,
	)
	if err != nil {
		s.logger.Error("failed to set user meta", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("set user meta: %w", err)
	}
	return nil
}

// GetMeta returns a meta value, or ErrNotFound when unset.
func (s *MySQLStore) GetMeta(ctx context.Context, address, key string) (string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT meta_value FROM user_meta WHERE address = ? AND meta_key = ?`,
		strings.ToLower(address), key,
	)

	var value string
	if err := row.Scan(&value); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get user meta: %w", err)
	}
	return value, nil
}

// update sets a single users column. The column name is always one of
// the fixed strings above, never caller input.
func (s *MySQLStore) update(ctx context.Context, address, column, value string) error {
	query := fmt.Sprintf("UPDATE users SET %s = ?, updated_at = ? WHERE address = ?", column)
	result, err := s.db.ExecContext(ctx, query, value, time.Now().UTC(), strings.ToLower(address))
	if err != nil {
		s.logger.Error("failed to update user", zap.String("column", column), zap.Error(err))
		return fmt.Errorf("update user %s: %w", column, err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		// The row may exist with the value already set; only a
		// missing row is an error.
		if _, err := s.FindByAddress(ctx, address); err != nil {
			return err
		}
	}
	return nil
}

// isDuplicateKeyError checks if the error is a MySQL duplicate key error
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	var mysqlErr *mysql.MySQLError
	if stderrors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlErrDuplicateEntry
	}
	return strings.Contains(err.Error(), "Duplicate entry")
}
