package store

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"ecash/coin"
	"ecash/core"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// New allocates and returns a new BankStore for a certain identity.
func (store *BankStore) New(dbPath, identity string) (*BankStore, error) {
	// Get database connection.
	db, err := openDatabase(dbPath)
	if err != nil {
		slog.Error("failed to open database", "err", err)
		return nil, err
	}

	// Keep values.
	store.db = db
	store.identity = identity

	// Init schema.
	err = store.createTables()
	if err != nil {
		slog.Error("failed to create Bank's database schema", "err", err)
		db.Close()
		return nil, err
	}

	// Create store.
	return store, nil
}

// Close releases the database connection.
func (store *BankStore) Close() error {
	return store.db.Close()
}

// begin starts a transaction.
func (store *BankStore) begin() (*sql.Tx, error) {
	tx, err := store.db.Begin()
	if err != nil {
		slog.Error("failed to initiate transaction", "err", err)
		return nil, errors.Wrap(err, "begin transaction")
	}
	return tx, nil
}

// CreateTables creates the database schema for a bank's local database.
// Only creates the tables if they don't previously exist.
func (store *BankStore) createTables() error {
	// Begin a transaction.
	tx, err := store.begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	table := `CREATE TABLE IF NOT EXISTS Bank (
	-- keys
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	identity TEXT UNIQUE ON CONFLICT IGNORE NOT NULL,

	---- RsaKey
	key_P TEXT NOT NULL,
	key_Q TEXT NOT NULL,
	key_D TEXT NOT NULL,
	key_N TEXT NOT NULL,
	key_E TEXT NOT NULL
	);`
	_, err = tx.Exec(table)
	if err != nil {
		return err
	}

	table = `CREATE TABLE IF NOT EXISTS Account (
	-- keys
	name TEXT PRIMARY KEY,

	balance INTEGER NOT NULL CHECK (balance >= 0),
	created TEXT NOT NULL
	);`
	_, err = tx.Exec(table)
	if err != nil {
		return err
	}

	table = `CREATE TABLE IF NOT EXISTS Coin (
	-- keys
	guid TEXT PRIMARY KEY,

	-- first-seen revealed identity shares (gob)
	ris BLOB NOT NULL,

	amount  INTEGER NOT NULL,
	account TEXT NOT NULL REFERENCES Account(name),
	date    TEXT NOT NULL
	);`
	_, err = tx.Exec(table)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// WriteKey attempts to write key into the local database.
// If an entry exists for this BankStore's identity nothing is written into the database.
func (store *BankStore) WriteKey(key *core.RsaKey) error {
	// Begin a transaction.
	tx, err := store.begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Check if an identity already exists.
	var id int64
	err = tx.QueryRow(`SELECT id FROM Bank WHERE identity = ?`, store.identity).Scan(&id)
	if err != sql.ErrNoRows {
		slog.Warn("a bank key already exists for identity", "id", id, "identity", store.identity)
		return nil
	}

	stmt := `INSERT INTO
	Bank   (identity, key_P, key_Q, key_D, key_N, key_E)
	VALUES (?, ?, ?, ?, ?, ?);`
	_, err = tx.Exec(stmt,
		store.identity,
		toString(key.P),
		toString(key.Q),
		toString(key.D),
		toString(key.N),
		toString(key.E),
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// ReadKey attempts to read the key for this BankStore's identity.
// Returns ErrNoKey if no entry exists.
func (store *BankStore) ReadKey() (*core.RsaKey, error) {
	// Begin a transaction.
	tx, err := store.begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt := `SELECT key_P, key_Q, key_D, key_N, key_E FROM Bank WHERE identity = ?`
	scanner := new(rowScanner).New(5)
	err = tx.QueryRow(stmt, store.identity).Scan(scanner.dest...)
	if err == sql.ErrNoRows {
		return nil, ErrNoKey
	} else if err != nil {
		return nil, err
	}
	vals := scanner.Strings()
	key := &core.RsaKey{
		P: fromString(vals[0]),
		Q: fromString(vals[1]),
		D: fromString(vals[2]),
		N: fromString(vals[3]),
		E: fromString(vals[4]),
	}

	return key, tx.Commit()
}

// Register attempts to write a zero-balance account for name.
// If an entry exists for name, core.ErrAccountExists is returned.
func (store *BankStore) Register(name string) error {
	// Begin a transaction.
	tx, err := store.begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Check if this account already exists.
	if _, err := balanceTx(tx, name); err == nil {
		return core.ErrAccountExists
	} else if err != core.ErrUnknownAccount {
		return err
	}

	_, err = tx.Exec(`INSERT INTO Account (name, balance, created) VALUES (?, 0, ?)`, name, now())
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Balance.
func (store *BankStore) Balance(name string) (int64, error) {
	// Begin a transaction.
	tx, err := store.begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	balance, err := balanceTx(tx, name)
	if err != nil {
		return 0, err
	}

	return balance, tx.Commit()
}

// Deposit.
func (store *BankStore) Deposit(name string, amount int64) error {
	if amount < 0 {
		return core.ErrInvalidAmount
	}

	// Begin a transaction.
	tx, err := store.begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := addTx(tx, name, amount); err != nil {
		return err
	}

	return tx.Commit()
}

// Withdraw.
func (store *BankStore) Withdraw(name string, amount int64) error {
	if amount < 0 {
		return core.ErrInvalidAmount
	}

	// Begin a transaction.
	tx, err := store.begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := addTx(tx, name, -amount); err != nil {
		return err
	}

	return tx.Commit()
}

// Transfer.
func (store *BankStore) Transfer(from, to string, amount int64) error {
	if amount < 0 {
		return core.ErrInvalidAmount
	}

	// Begin a transaction.
	tx, err := store.begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Both accounts must exist before anything moves.
	if _, err := balanceTx(tx, to); err != nil {
		return err
	}
	if err := addTx(tx, from, -amount); err != nil {
		return err
	}
	if err := addTx(tx, to, amount); err != nil {
		return err
	}

	return tx.Commit()
}

// Redeem.
func (store *BankStore) Redeem(guid uuid.UUID, ris coin.RIS, account string, amount int64) (coin.RIS, error) {
	if amount < 0 {
		return nil, core.ErrInvalidAmount
	}
	if len(ris) == 0 {
		return nil, core.ErrInvalidInput
	}

	// Begin a transaction.
	tx, err := store.begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Check that the account exists.
	if _, err := balanceTx(tx, account); err != nil {
		return nil, err
	}

	// Check if this coin was redeemed before.
	prior, ok, err := evidenceTx(tx, guid)
	if err != nil {
		return nil, err
	}
	if ok {
		return prior, nil
	}

	// Write evidence.
	data, err := encodeRIS(ris)
	if err != nil {
		return nil, err
	}
	stmt := `INSERT INTO
	Coin   (guid, ris, amount, account, date)
	VALUES (?, ?, ?, ?, ?);`
	_, err = tx.Exec(stmt, guid.String(), data, amount, account, now())
	if err != nil {
		return nil, err
	}

	// Credit.
	if err := addTx(tx, account, amount); err != nil {
		return nil, err
	}

	return nil, tx.Commit()
}

// Evidence.
func (store *BankStore) Evidence(guid uuid.UUID) (coin.RIS, bool, error) {
	// Begin a transaction.
	tx, err := store.begin()
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	ris, ok, err := evidenceTx(tx, guid)
	if err != nil {
		return nil, false, err
	}

	return ris, ok, tx.Commit()
}

// Inspect writes the ledger and the coin fraud database to w.
func (store *BankStore) Inspect(w io.Writer) error {
	// Begin a transaction.
	tx, err := store.begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Account.
	fmt.Fprintf(w, "\nACCOUNTS\n")
	rows, err := tx.Query(`SELECT name, balance, created FROM Account ORDER BY name`)
	if err != nil {
		slog.Error("failed to query Account table", "err", err)
		return err
	}
	fmt.Fprintf(w, "%-16s %-10s %-25s\n", "Name", "Balance", "Created")
	for rows.Next() {
		// Scanner variables.
		var (
			name    string
			balance int64
			created string
		)

		if err := rows.Scan(&name, &balance, &created); err != nil {
			rows.Close()
			slog.Error("failed to scan", "err", err)
			return err
		}

		fmt.Fprintf(w, "%-16s %-10d %-25s\n", name, balance, created)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	// Coin.
	fmt.Fprintf(w, "\nREDEEMED COINS\n")
	rows, err = tx.Query(`SELECT guid, amount, account, date FROM Coin ORDER BY date`)
	if err != nil {
		slog.Error("failed to query Coin table", "err", err)
		return err
	}
	fmt.Fprintf(w, "%-36s %-10s %-16s %-25s\n", "GUID", "Amount", "Account", "Date")
	for rows.Next() {
		// Scanner variables.
		var (
			guid    string
			amount  int64
			account string
			date    string
		)

		if err := rows.Scan(&guid, &amount, &account, &date); err != nil {
			rows.Close()
			slog.Error("failed to scan", "err", err)
			return err
		}

		fmt.Fprintf(w, "%-36s %-10d %-16s %-25s\n", guid, amount, account, date)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	// Commit transaction.
	return tx.Commit()
}

// balanceTx reads the balance of name inside tx.
func balanceTx(tx *sql.Tx, name string) (int64, error) {
	var balance int64
	err := tx.QueryRow(`SELECT balance FROM Account WHERE name = ?`, name).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, core.ErrUnknownAccount
	} else if err != nil {
		return 0, err
	}
	return balance, nil
}

// addTx adds delta to the balance of name inside tx, refusing to go negative or overflow.
func addTx(tx *sql.Tx, name string, delta int64) error {
	balance, err := balanceTx(tx, name)
	if err != nil {
		return err
	}
	balance, err = add(balance, delta)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`UPDATE Account SET balance = ? WHERE name = ?`, balance, name)
	return err
}

// evidenceTx reads the shares stored for guid inside tx.
func evidenceTx(tx *sql.Tx, guid uuid.UUID) (coin.RIS, bool, error) {
	var data []byte
	err := tx.QueryRow(`SELECT ris FROM Coin WHERE guid = ?`, guid.String()).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}

	ris, err := decodeRIS(data)
	if err != nil {
		return nil, false, err
	}
	return ris, true, nil
}

// now formats the current time for TEXT columns.
func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
