package storage

import (
	"database/sql"
	"fmt"
	"time"

	"printbridge/pkg/errors"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore implements Store interface using a MySQL backend. The
// database config path is used as the DSN.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore creates a new MySQL-backed store
func NewMySQLStore(dsn string) (Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrDatabaseConnection, err)
	}

	s := &MySQLStore{db: db}
	if err := s.initDB(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) initDB() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS printers (
			name VARCHAR(128) PRIMARY KEY,
			host VARCHAR(255) NOT NULL,
			port INT NOT NULL,
			is_default TINYINT DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS bridge_settings (
			` + "`key`" + ` VARCHAR(128) PRIMARY KEY,
			value TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *MySQLStore) SavePrinter(p *Printer) error {
	now := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO printers (name, host, port, is_default, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			host=VALUES(host), port=VALUES(port), is_default=VALUES(is_default), updated_at=VALUES(updated_at)
	`, p.Name, p.Host, p.Port, boolToInt(p.IsDefault), now, now)
	return err
}

func (s *MySQLStore) GetPrinter(name string) (*Printer, error) {
	row := s.db.QueryRow(`
		SELECT name, host, port, is_default, created_at, updated_at
		FROM printers WHERE name = ? LIMIT 1`, name)
	return scanPrinter(row)
}

func (s *MySQLStore) GetDefaultPrinter() (*Printer, error) {
	row := s.db.QueryRow(`
		SELECT name, host, port, is_default, created_at, updated_at
		FROM printers WHERE is_default = 1 LIMIT 1`)
	p, err := scanPrinter(row)
	if err == errors.ErrPrinterNotFound {
		return nil, errors.ErrNoDefaultPrinter
	}
	return p, err
}

func (s *MySQLStore) GetAllPrinters() ([]*Printer, error) {
	rows, err := s.db.Query(`
		SELECT name, host, port, is_default, created_at, updated_at
		FROM printers ORDER BY name`)
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

func (s *MySQLStore) DeletePrinter(name string) error {
	res, err := s.db.Exec(`DELETE FROM printers WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.ErrPrinterNotFound
	}
	return nil
}

func (s *MySQLStore) SetDefaultPrinter(name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE printers SET is_default = 0 WHERE is_default = 1`); err != nil {
		return err
	}
	res, err := tx.Exec(`UPDATE printers SET is_default = 1, updated_at = NOW() WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.ErrPrinterNotFound
	}
	return tx.Commit()
}

func (s *MySQLStore) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM bridge_settings WHERE `key` = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *MySQLStore) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO bridge_settings (`+"`key`"+`, value, updated_at)
		VALUES (?, ?, NOW())
		ON DUPLICATE KEY UPDATE value=VALUES(value), updated_at=VALUES(updated_at)
	`, key, value)
	return err
}

func (s *MySQLStore) GetAllSettings() (map[string]string, error) {
	rows, err := s.db.Query("SELECT `key`, value FROM bridge_settings")
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

func (s *MySQLStore) Close() error {
	return s.db.Close()
}
