package bank

import (
	"log/slog"
	"math/big"

	"ecash/coin"
	"ecash/config"
	"ecash/core"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Profile is the public information a Client needs to deal with a Bank.
type Profile struct {
	Public core.PublicKey

	// Fanout is the number of candidates expected per issuance.
	Fanout int

	// Slots is the number of identity slots per coin.
	Slots int
}

// Bank signs coins, keeps the ledger and detects double spending.
type Bank struct {
	key    *core.RsaKey
	params config.Params
	state  State
	log    *slog.Logger

	// choose picks the candidate left unopened during issuance.
	choose func(fanout int) (int, error)
}

// Option configures a Bank.
type Option func(*Bank)

// WithKey makes the Bank sign with key instead of generating one.
func WithKey(key *core.RsaKey) Option {
	return func(bank *Bank) {
		bank.key = key
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(bank *Bank) {
		bank.log = log
	}
}

// WithIndexChooser replaces the uniform choice of the unopened candidate.
func WithIndexChooser(choose func(fanout int) (int, error)) Option {
	return func(bank *Bank) {
		bank.choose = choose
	}
}

// New allocates and returns a new Bank over state.
func New(params config.Params, state State, opts ...Option) (*Bank, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if state == nil {
		return nil, errors.Wrap(core.ErrInvalidInput, "missing bank state")
	}

	bank := &Bank{
		params: params,
		state:  state,
		log:    slog.Default(),
		choose: core.RandomInt,
	}
	for _, opt := range opts {
		opt(bank)
	}

	// Generate RSA key.
	if bank.key == nil {
		key, err := new(core.RsaKey).New(params.KeyBits)
		if err != nil {
			bank.log.Error("failed to generate bank key", "err", err)
			return nil, err
		}
		bank.key = key
	}

	return bank, nil
}

// Profile returns the Bank's public profile.
func (bank *Bank) Profile() Profile {
	return Profile{
		Public: bank.key.Public(),
		Fanout: bank.params.Fanout,
		Slots:  bank.params.Slots,
	}
}

// Modulus returns the public modulus N.
func (bank *Bank) Modulus() *big.Int {
	return new(big.Int).Set(bank.key.N)
}

// Exponent returns the public exponent E.
func (bank *Bank) Exponent() *big.Int {
	return new(big.Int).Set(bank.key.E)
}

//
// ACCOUNTS
//

// RegisterClient opens a zero-balance account for name.
func (bank *Bank) RegisterClient(name string) error {
	if name == "" {
		return errors.Wrap(core.ErrInvalidInput, "empty account name")
	}
	if err := bank.state.Register(name); err != nil {
		return errors.Wrapf(err, "register %q", name)
	}
	bank.log.Info("registered client", "account", name)
	return nil
}

// Deposit credits amount to account.
func (bank *Bank) Deposit(account string, amount int64) error {
	if amount <= 0 {
		return errors.Wrapf(core.ErrInvalidAmount, "deposit %d", amount)
	}
	if err := bank.state.Deposit(account, amount); err != nil {
		return errors.Wrapf(err, "deposit %d to %q", amount, account)
	}
	return nil
}

// Withdraw debits amount from account.
func (bank *Bank) Withdraw(account string, amount int64) error {
	if amount <= 0 {
		return errors.Wrapf(core.ErrInvalidAmount, "withdraw %d", amount)
	}
	if err := bank.state.Withdraw(account, amount); err != nil {
		return errors.Wrapf(err, "withdraw %d from %q", amount, account)
	}
	return nil
}

// Transfer moves amount between two accounts atomically.
func (bank *Bank) Transfer(from, to string, amount int64) error {
	if amount <= 0 {
		return errors.Wrapf(core.ErrInvalidAmount, "transfer %d", amount)
	}
	if err := bank.state.Transfer(from, to, amount); err != nil {
		return errors.Wrapf(err, "transfer %d from %q to %q", amount, from, to)
	}
	return nil
}

// Balance returns the balance of account.
func (bank *Bank) Balance(account string) (int64, error) {
	balance, err := bank.state.Balance(account)
	if err != nil {
		return 0, errors.Wrapf(err, "balance of %q", account)
	}
	return balance, nil
}

// VerifyFunds reports whether account holds at least amount.
func (bank *Bank) VerifyFunds(account string, amount int64) (bool, error) {
	balance, err := bank.Balance(account)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}

// Evidence returns a copy of the shares stored at the first redemption of guid.
func (bank *Bank) Evidence(guid uuid.UUID) (coin.RIS, bool, error) {
	ris, ok, err := bank.state.Evidence(guid)
	if err != nil {
		return nil, false, errors.Wrapf(err, "evidence for %s", guid)
	}
	return ris.Clone(), ok, nil
}
