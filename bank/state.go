package bank

import (
	"ecash/coin"

	"github.com/google/uuid"
)

// State is the Bank's durable state: the account ledger and the coin fraud
// database. Implementations must make every method atomic.
type State interface {
	// Register creates a zero-balance account. Returns core.ErrAccountExists
	// if name is already registered.
	Register(name string) error

	// Balance returns the balance of name or core.ErrUnknownAccount.
	Balance(name string) (int64, error)

	// Deposit credits amount to name.
	Deposit(name string, amount int64) error

	// Withdraw debits amount from name. Returns core.ErrInsufficientFunds
	// without changing anything if the balance is below amount.
	Withdraw(name string, amount int64) error

	// Transfer moves amount from one account to another, or does nothing.
	Transfer(from, to string, amount int64) error

	// Redeem looks guid up in the fraud database. If it is absent, ris is
	// stored as the evidence for guid and amount is credited to account, and
	// the returned prior is nil. Otherwise nothing changes and the stored
	// evidence is returned. The lookup and the insert are one atomic step.
	Redeem(guid uuid.UUID, ris coin.RIS, account string, amount int64) (prior coin.RIS, err error)

	// Evidence returns the stored shares for guid, if any.
	Evidence(guid uuid.UUID) (coin.RIS, bool, error)
}
