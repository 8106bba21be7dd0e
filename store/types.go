package store

import (
	"database/sql"
	"sync"

	"ecash/coin"
)

// BankStore keeps a bank's state in a local SQLite database. Allows for Writing/Reading the bank's signing key,
// keeping the account ledger and the coin fraud database.
type BankStore struct {
	// db represents an active database connection. Used for creating transactions on each operation.
	db *sql.DB

	// identity serves as the unique identifier of a bank's key.
	identity string
}

// MemoryStore keeps a bank's state in process memory.
type MemoryStore struct {
	mu sync.Mutex

	// ledger maps account names to balances.
	ledger map[string]int64

	// coins maps coin guids to the shares revealed at their first redemption.
	coins map[string]coin.RIS
}
