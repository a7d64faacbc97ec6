// Package registry persists the set of printers the backend polls.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/nantokaworks/printer-fleet/internal/protocol"
	"github.com/nantokaworks/printer-fleet/internal/shared/logger"
	"github.com/tidwall/jsonc"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a named printer is not registered.
var ErrNotFound = errors.New("registry: printer not found")

// Printer is one registered printer. Name is unique.
type Printer struct {
	Name      string    `json:"name"`
	IP        string    `json:"ip"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Registry stores printers in sqlite.
type Registry struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (or creates) the database at dbPath.
func Open(dbPath string) (*Registry, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dbPath, err)
	}
	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)
	r, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// New wraps an open database and creates the schema if needed.
func New(db *sql.DB) (*Registry, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS printers (
		name TEXT PRIMARY KEY,
		ip TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return nil, fmt.Errorf("creating printers table: %w", err)
	}
	return &Registry{db: db, log: logger.Named("registry")}, nil
}

func (r *Registry) Close() error {
	return r.db.Close()
}

// List returns every printer ordered by name.
func (r *Registry) List(ctx context.Context) ([]Printer, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, ip, updated_at FROM printers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing printers: %w", err)
	}
	defer rows.Close()

	printers := []Printer{}
	for rows.Next() {
		var p Printer
		if err := rows.Scan(&p.Name, &p.IP, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning printer: %w", err)
		}
		printers = append(printers, p)
	}
	return printers, rows.Err()
}

// Get returns the printer called name.
func (r *Registry) Get(ctx context.Context, name string) (Printer, error) {
	var p Printer
	err := r.db.QueryRowContext(ctx,
		`SELECT name, ip, updated_at FROM printers WHERE name = ?`, name,
	).Scan(&p.Name, &p.IP, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Printer{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return Printer{}, fmt.Errorf("getting printer %s: %w", name, err)
	}
	return p, nil
}

// Add registers a printer, replacing the address of an existing one with
// the same name.
func (r *Registry) Add(ctx context.Context, name, ip string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", protocol.ErrInvalidCommand)
	}
	if !protocol.ValidIPv4(ip) {
		return fmt.Errorf("%w: %q is not a dotted-quad IPv4 address", protocol.ErrInvalidCommand, ip)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO printers (name, ip) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET
			ip = excluded.ip,
			updated_at = CURRENT_TIMESTAMP`,
		name, ip,
	)
	if err != nil {
		return fmt.Errorf("adding printer %s: %w", name, err)
	}
	r.log.Info("Printer registered", zap.String("name", name), zap.String("ip", ip))
	return nil
}

// Remove unregisters the printer called name.
func (r *Registry) Remove(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM printers WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("removing printer %s: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	r.log.Info("Printer removed", zap.String("name", name))
	return nil
}

// seedEntry is one value of the legacy config file:
//
//	{"Prusa": {"ip": "192.168.1.20"}, ...}
type seedEntry struct {
	IP string `json:"ip"`
}

// ImportSeed adds every printer listed in the legacy config file at
// path. The file may contain comments and trailing commas. Entries with
// an invalid address are skipped with a warning.
func (r *Registry) ImportSeed(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading seed file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return 0, nil
	}

	var seed map[string]seedEntry
	if err := json.Unmarshal(jsonc.ToJSON(data), &seed); err != nil {
		return 0, fmt.Errorf("parsing seed file %s: %w", path, err)
	}

	imported := 0
	for name, entry := range seed {
		if err := r.Add(ctx, name, entry.IP); err != nil {
			if errors.Is(err, protocol.ErrInvalidCommand) {
				r.log.Warn("Skipping seed entry", zap.String("name", name), zap.Error(err))
				continue
			}
			return imported, err
		}
		imported++
	}
	r.log.Info("Imported seed file", zap.String("path", path), zap.Int("printers", imported))
	return imported, nil
}
