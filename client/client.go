package client

import (
	"context"
	"log/slog"
	"math/big"

	"ecash/bank"
	"ecash/coin"
	"ecash/core"
)

// Bank is the part of the Bank a Client talks to.
type Bank interface {
	Profile() bank.Profile
	SellCoin(ctx context.Context, buyer string, amount int64, blinded []*big.Int, opener bank.Opener) (*big.Int, error)
	RedeemCoin(account string, c *coin.Coin, ris coin.RIS) error
}

// SideChooser picks which half of identity slot i to reveal.
type SideChooser func(slot int) (coin.Side, error)

// RandomSide reveals either half with equal probability.
func RandomSide(int) (coin.Side, error) {
	n, err := core.RandomInt(2)
	if err != nil {
		return coin.Left, err
	}
	return coin.Side(n), nil
}

// Client holds at most one coin at a time.
type Client struct {
	// Name is the ledger account and the identity embedded in bought coins.
	Name string

	profile bank.Profile
	choose  SideChooser
	log     *slog.Logger

	coin *coin.Coin
	ris  coin.RIS
}

// Option configures a Client.
type Option func(*Client)

// WithSideChooser replaces the uniform choice of revealed halves.
func WithSideChooser(choose SideChooser) Option {
	return func(client *Client) {
		client.choose = choose
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(client *Client) {
		client.log = log
	}
}

// New allocates and returns a new Client named name dealing with the Bank
// described by profile.
func New(name string, profile bank.Profile, opts ...Option) *Client {
	client := &Client{
		Name:    name,
		profile: profile,
		choose:  RandomSide,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(client)
	}
	client.log = client.log.With("client", name)
	return client
}

// Coin returns the held coin, or nil.
func (client *Client) Coin() *coin.Coin {
	return client.coin
}

// RIS returns the shares revealed for the held coin.
func (client *Client) RIS() coin.RIS {
	return client.ris.Clone()
}

// HasCoin reports whether the client holds a coin.
func (client *Client) HasCoin() bool {
	return client.coin != nil
}

// drop forgets the held coin and its shares.
func (client *Client) drop() {
	client.coin = nil
	client.ris = nil
}
