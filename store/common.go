package store

import (
	"bytes"
	"database/sql"
	"encoding/gob"
	"log/slog"
	"math"
	"math/big"
	"os"
	"path/filepath"

	"ecash/coin"
	"ecash/core"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// GetDataDir returns the directory holding local databases, creating it if needed.
func GetDataDir() (string, error) {
	// Get user's home directory.
	home, err := os.UserHomeDir()
	if err != nil {
		slog.Error("failed to get home directory", "err", err)
		return "", err
	}

	// Set data directory.
	dir := filepath.Join(home, ".ecash")

	// Create if don't exist.
	err = os.MkdirAll(dir, 0o755) // rwx r-x r-x
	if err != nil {
		slog.Error("failed to create data directory", "dir", dir, "err", err)
		return "", err
	}

	return dir, nil
}

// openDatabase.
func openDatabase(dbPath string) (*sql.DB, error) {
	// Open database connection.
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("failed to open database", "path", dbPath, "err", err)
		return nil, err
	}

	// A single connection serializes every transaction, which makes each
	// check-then-write below atomic.
	db.SetMaxOpenConns(1)

	// Configure SQLite.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",        // Enable WAL mode
		"PRAGMA busy_timeout=5000",       // Wait up to 5 seconds when database is locked
		"PRAGMA synchronous=NORMAL",      // Balance between safety and speed
		"PRAGMA cache_size=64000",        // 64MB cache size
		"PRAGMA foreign_keys=ON",         // Enable foreign key constraints
		"PRAGMA temp_store=MEMORY",       // Store temp tables and indices in memory
		"PRAGMA wal_autocheckpoint=1000", // Checkpoint WAL file every 1000 pages
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			slog.Error("failed to set pragma", "pragma", pragma, "err", err)
			return nil, err
		}
	}

	return db, nil
}

// add returns balance+delta. A result below zero is ErrInsufficientFunds, one
// beyond math.MaxInt64 is ErrInvalidAmount.
func add(balance, delta int64) (int64, error) {
	if delta > 0 && balance > math.MaxInt64-delta {
		return 0, core.ErrInvalidAmount
	}
	if balance+delta < 0 {
		return 0, core.ErrInsufficientFunds
	}
	return balance + delta, nil
}

// toString is used to translate big.Int types to string when writing to the database.
func toString(z *big.Int) string {
	if z == nil {
		return ""
	}
	return z.String()
}

// fromString is used to translate text scanned from the database into a big.Int type.
func fromString(s string) *big.Int {
	if s == "" {
		return nil
	}
	if z, ok := new(big.Int).SetString(s, 10); ok {
		return z
	}
	return nil
}

// encodeRIS serializes revealed shares for a BLOB column.
func encodeRIS(ris coin.RIS) ([]byte, error) {
	var buffer bytes.Buffer
	if err := gob.NewEncoder(&buffer).Encode(ris); err != nil {
		return nil, errors.Wrap(err, "encode shares")
	}
	return buffer.Bytes(), nil
}

// decodeRIS reverses encodeRIS.
func decodeRIS(data []byte) (coin.RIS, error) {
	var ris coin.RIS
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&ris); err != nil {
		return nil, errors.Wrap(err, "decode shares")
	}
	return ris, nil
}

// rowScanner is a helper type for scanning rows from the database.
type rowScanner struct {
	dest []interface{}
}

// New allocates and returns a new rowScannner.
func (scanner *rowScanner) New(size int) *rowScanner {
	// Allocate an slice of empty interfaces.
	row := &rowScanner{
		dest: make([]interface{}, size),
	}

	// Make each element of the slice be a pointer to a string.
	for i := range row.dest {
		var s string
		row.dest[i] = &s
	}

	return row
}

// Strings returns the underlying string slice containing the column's values scanned from the database.
func (scanner *rowScanner) Strings() []string {
	// Allocate an slice of strings.
	res := make([]string, len(scanner.dest))

	// Grab the underlying value of each string pointer from rowScanner.
	for i, v := range scanner.dest {
		res[i] = *v.(*string)
	}

	return res
}
