package storage

import "time"

// Printer is one registered device endpoint. Jobs that name no printer
// resolve to the registered default.
type Printer struct {
	Name      string    `json:"name"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store defines the interface for persistent storage operations
type Store interface {
	// Printer registry operations
	SavePrinter(p *Printer) error
	GetPrinter(name string) (*Printer, error)
	GetDefaultPrinter() (*Printer, error)
	GetAllPrinters() ([]*Printer, error)
	DeletePrinter(name string) error
	SetDefaultPrinter(name string) error

	// Bridge settings operations
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
	GetAllSettings() (map[string]string, error)

	// Lifecycle
	Close() error
}
