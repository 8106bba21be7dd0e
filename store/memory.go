package store

import (
	"ecash/coin"
	"ecash/core"

	"github.com/google/uuid"
)

// NewMemoryStore allocates and returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ledger: make(map[string]int64),
		coins:  make(map[string]coin.RIS),
	}
}

// Register.
func (store *MemoryStore) Register(name string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if _, ok := store.ledger[name]; ok {
		return core.ErrAccountExists
	}
	store.ledger[name] = 0
	return nil
}

// Balance.
func (store *MemoryStore) Balance(name string) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	balance, ok := store.ledger[name]
	if !ok {
		return 0, core.ErrUnknownAccount
	}
	return balance, nil
}

// Deposit.
func (store *MemoryStore) Deposit(name string, amount int64) error {
	if amount < 0 {
		return core.ErrInvalidAmount
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	balance, ok := store.ledger[name]
	if !ok {
		return core.ErrUnknownAccount
	}
	balance, err := add(balance, amount)
	if err != nil {
		return err
	}
	store.ledger[name] = balance
	return nil
}

// Withdraw.
func (store *MemoryStore) Withdraw(name string, amount int64) error {
	if amount < 0 {
		return core.ErrInvalidAmount
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	balance, ok := store.ledger[name]
	if !ok {
		return core.ErrUnknownAccount
	}
	if balance < amount {
		return core.ErrInsufficientFunds
	}
	store.ledger[name] = balance - amount
	return nil
}

// Transfer.
func (store *MemoryStore) Transfer(from, to string, amount int64) error {
	if amount < 0 {
		return core.ErrInvalidAmount
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	source, ok := store.ledger[from]
	if !ok {
		return core.ErrUnknownAccount
	}
	target, ok := store.ledger[to]
	if !ok {
		return core.ErrUnknownAccount
	}
	if source < amount {
		return core.ErrInsufficientFunds
	}
	if from == to {
		return nil
	}
	target, err := add(target, amount)
	if err != nil {
		return err
	}
	store.ledger[from] = source - amount
	store.ledger[to] = target
	return nil
}

// Redeem.
func (store *MemoryStore) Redeem(guid uuid.UUID, ris coin.RIS, account string, amount int64) (coin.RIS, error) {
	if amount < 0 {
		return nil, core.ErrInvalidAmount
	}
	if len(ris) == 0 {
		return nil, core.ErrInvalidInput
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	balance, ok := store.ledger[account]
	if !ok {
		return nil, core.ErrUnknownAccount
	}

	// Seen before: hand back the evidence untouched.
	if prior, ok := store.coins[guid.String()]; ok {
		return prior.Clone(), nil
	}

	balance, err := add(balance, amount)
	if err != nil {
		return nil, err
	}
	store.coins[guid.String()] = ris.Clone()
	store.ledger[account] = balance
	return nil, nil
}

// Evidence.
func (store *MemoryStore) Evidence(guid uuid.UUID) (coin.RIS, bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	ris, ok := store.coins[guid.String()]
	if !ok {
		return nil, false, nil
	}
	return ris.Clone(), true, nil
}
