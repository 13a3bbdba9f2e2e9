// Package directory maps wallet ids to owner and smart-contract wallet addresses.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/AlexZinkM/relay-wallet/internal/model"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

var (
	// ErrWalletExists is returned when the id or wallet address is already registered
	ErrWalletExists = errors.New("wallet already registered")

	// ErrNotFound is returned when no wallet has the requested id
	ErrNotFound = errors.New("wallet not found")
)

const schema = `
CREATE TABLE IF NOT EXISTS wallets (
	id             TEXT PRIMARY KEY,
	owner_address  TEXT NOT NULL,
	wallet_address TEXT NOT NULL UNIQUE,
	mnemonic_hash  TEXT NOT NULL,
	created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS wallets_owner_idx ON wallets (owner_address);
`

// Store persists wallet records in SQLite
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the directory database and creates the schema
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Register inserts a wallet record
func (s *Store) Register(ctx context.Context, record model.WalletRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := strings.TrimSpace(record.ID)
	if id == "" {
		return fmt.Errorf("wallet id is required")
	}
	if record.OwnerAddress == "" || record.WalletAddress == "" {
		return fmt.Errorf("owner and wallet addresses are required")
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO wallets (id, owner_address, wallet_address, mnemonic_hash, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id,
		strings.ToLower(record.OwnerAddress),
		strings.ToLower(record.WalletAddress),
		record.MnemonicHash,
		toMillis(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrWalletExists
		}
		return fmt.Errorf("register wallet: %w", err)
	}
	return nil
}

// Lookup returns the wallet with id
func (s *Store) Lookup(ctx context.Context, id string) (*model.WalletRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, owner_address, wallet_address, mnemonic_hash, created_at
		 FROM wallets WHERE id = ?`,
		strings.TrimSpace(id),
	)

	var (
		record    model.WalletRecord
		createdAt int64
	)
	if err := row.Scan(&record.ID, &record.OwnerAddress, &record.WalletAddress, &record.MnemonicHash, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup wallet: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	return &record, nil
}

// AddressExists reports whether a smart-contract wallet address is registered
func (s *Store) AddressExists(ctx context.Context, walletAddress string) (bool, error) {
	var count int
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM wallets WHERE wallet_address = ?`,
		strings.ToLower(walletAddress),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check wallet address: %w", err)
	}
	return count > 0, nil
}

// Delete removes the wallet with id. Deleting an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM wallets WHERE id = ?`, strings.TrimSpace(id)); err != nil {
		return fmt.Errorf("delete wallet: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
