package storage

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"printbridge/pkg/errors"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store interface using SQLite backend
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-backed store
func NewSQLiteStore(dbPath string) (Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrDatabaseConnection, err)
	}

	store := &SQLiteStore{db: db}

	if err := store.initDB(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initDB initializes the database schema
func (s *SQLiteStore) initDB() error {
	schema := `
	CREATE TABLE IF NOT EXISTS printers (
		name TEXT PRIMARY KEY,
		host TEXT NOT NULL,
		port INTEGER NOT NULL,
		is_default INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_printers_default ON printers(is_default);

	CREATE TABLE IF NOT EXISTS bridge_settings (
		key TEXT PRIMARY KEY,
		value TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SavePrinter inserts or updates a printer registration
func (s *SQLiteStore) SavePrinter(p *Printer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO printers (name, host, port, is_default, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			host = excluded.host,
			port = excluded.port,
			is_default = excluded.is_default,
			updated_at = excluded.updated_at
	`, p.Name, p.Host, p.Port, boolToInt(p.IsDefault), now, now)
	return err
}

// GetPrinter retrieves a printer by name
func (s *SQLiteStore) GetPrinter(name string) (*Printer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT name, host, port, is_default, created_at, updated_at
		FROM printers WHERE name = ?
	`, name)
	return scanPrinter(row)
}

// GetDefaultPrinter retrieves the printer marked as default
func (s *SQLiteStore) GetDefaultPrinter() (*Printer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT name, host, port, is_default, created_at, updated_at
		FROM printers WHERE is_default = 1 LIMIT 1
	`)
	p, err := scanPrinter(row)
	if err == errors.ErrPrinterNotFound {
		return nil, errors.ErrNoDefaultPrinter
	}
	return p, err
}

// GetAllPrinters lists all registered printers
func (s *SQLiteStore) GetAllPrinters() ([]*Printer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT name, host, port, is_default, created_at, updated_at
		FROM printers ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var printers []*Printer
	for rows.Next() {
		p, err := scanPrinter(rows)
		if err != nil {
			return nil, err
		}
		printers = append(printers, p)
	}
	return printers, rows.Err()
}

// DeletePrinter removes a printer registration
func (s *SQLiteStore) DeletePrinter(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM printers WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.ErrPrinterNotFound
	}
	return nil
}

// SetDefaultPrinter marks one printer as the default, clearing any
// previous default.
func (s *SQLiteStore) SetDefaultPrinter(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE printers SET is_default = 0 WHERE is_default = 1`); err != nil {
		return err
	}

	res, err := tx.Exec(`UPDATE printers SET is_default = 1, updated_at = ? WHERE name = ?`, time.Now(), name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.ErrPrinterNotFound
	}

	return tx.Commit()
}

// GetSetting retrieves a bridge setting value
func (s *SQLiteStore) GetSetting(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow(`SELECT value FROM bridge_settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetSetting inserts or updates a bridge setting
func (s *SQLiteStore) SetSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO bridge_settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now())
	return err
}

// GetAllSettings retrieves all bridge settings
func (s *SQLiteStore) GetAllSettings() (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT key, value FROM bridge_settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPrinter(row scanner) (*Printer, error) {
	var p Printer
	var isDefault int
	err := row.Scan(&p.Name, &p.Host, &p.Port, &isDefault, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.ErrPrinterNotFound
	}
	if err != nil {
		return nil, err
	}
	p.IsDefault = isDefault != 0
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
