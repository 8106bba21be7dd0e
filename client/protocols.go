package client

import (
	"context"
	"errors"
	"math/big"

	"ecash/bank"
	"ecash/coin"
	"ecash/core"

	pkgerrors "github.com/pkg/errors"
)

//
// PURCHASE
//

// BuyCoin buys a coin of amount from b and holds it.
func (client *Client) BuyCoin(ctx context.Context, b Bank, amount int64) error {
	if client.coin != nil {
		return pkgerrors.Wrap(core.ErrStateViolation, "already holding a coin")
	}

	profile := b.Profile()

	// Build and blind K independent candidates.
	candidates := make([]*coin.Coin, profile.Fanout)
	factors := make([]*big.Int, profile.Fanout)
	blinded := make([]*big.Int, profile.Fanout)
	for i := range candidates {
		c, err := coin.New(client.Name, amount, profile.Public, profile.Slots)
		if err != nil {
			client.log.Error("failed to create candidate", "err", err)
			return err
		}
		factor, err := c.Blind()
		if err != nil {
			client.log.Error("failed to blind candidate", "err", err)
			return err
		}
		candidates[i] = c
		factors[i] = factor
		blinded[i] = c.Blinded()
	}

	// Keep the candidate the Bank leaves unopened, reveal the rest.
	chosen := -1
	opener := func(ctx context.Context, req bank.AuditRequest) (bank.AuditResponse, error) {
		if req.ChosenIndex < 0 || req.ChosenIndex >= len(candidates) {
			return bank.AuditResponse{}, pkgerrors.Wrapf(core.ErrProtocolViolation, "chosen index %d out of range", req.ChosenIndex)
		}
		chosen = req.ChosenIndex

		var resp bank.AuditResponse
		for i, c := range candidates {
			if i == chosen {
				continue
			}
			resp.Revealed = append(resp.Revealed, bank.Candidate{
				Index:          i,
				BlindingFactor: factors[i],
				Coin:           c,
			})
		}
		return resp, nil
	}

	blindSig, err := b.SellCoin(ctx, client.Name, amount, blinded, opener)
	if err != nil {
		client.log.Warn("coin purchase refused", "amount", amount, "err", err)
		return err
	}
	if chosen < 0 {
		return pkgerrors.Wrap(core.ErrProtocolViolation, "bank signed without an audit")
	}

	// Unblind and check the Bank's signature.
	retained := candidates[chosen]
	if err := retained.Unblind(blindSig, factors[chosen]); err != nil {
		client.log.Error("failed to unblind coin", "err", err)
		return err
	}
	if !retained.VerifySignature(profile.Public) {
		client.log.Error("bank returned an invalid signature")
		return pkgerrors.Wrap(core.ErrSignatureInvalid, "purchased coin")
	}

	// The buyer answers its own reveal challenge.
	ris, err := client.reveal(retained)
	if err != nil {
		client.log.Error("failed to reveal shares", "err", err)
		return err
	}

	client.coin = retained
	client.ris = ris

	client.log.Info("coin bought", "amount", amount)

	return nil
}

//
// TRANSFER
//

// GiveCoin hands the held coin over to receiver.
func (client *Client) GiveCoin(receiver *Client) error {
	if client.coin == nil {
		return pkgerrors.Wrapf(core.ErrStateViolation, "%s holds no coin", client.Name)
	}
	if receiver.coin != nil {
		return pkgerrors.Wrapf(core.ErrStateViolation, "%s already holds a coin", receiver.Name)
	}

	if err := receiver.AcceptCoin(client.coin); err != nil {
		client.log.Warn("coin refused", "receiver", receiver.Name, "err", err)
		return err
	}
	client.drop()

	client.log.Info("coin given", "receiver", receiver.Name)

	return nil
}

// AcceptCoin checks c, reveals one random half of every identity slot and
// adopts the coin.
func (client *Client) AcceptCoin(c *coin.Coin) error {
	if client.coin != nil {
		return pkgerrors.Wrapf(core.ErrStateViolation, "%s already holds a coin", client.Name)
	}

	// Verify signature.
	if c == nil || !c.VerifySignature(client.profile.Public) {
		return pkgerrors.Wrap(core.ErrSignatureInvalid, "accept coin")
	}

	ris, err := client.reveal(c)
	if err != nil {
		return err
	}

	client.coin = c
	client.ris = ris

	return nil
}

// reveal draws one half of every identity slot of c and checks the halves
// against the commitments the Bank signed.
func (client *Client) reveal(c *coin.Coin) (coin.RIS, error) {
	ris := make(coin.RIS, c.Slots())
	for i := range ris {
		side, err := client.choose(i)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "choose side")
		}
		share, err := c.Share(side, i)
		if err != nil {
			return nil, err
		}
		ris[i] = share
	}

	if err := c.VerifyShares(ris); err != nil {
		return nil, err
	}
	return ris, nil
}

//
// REDEMPTION
//

// RedeemCoin deposits the held coin into the client's account at b.
//
// The coin is dropped once the Bank has judged it: after a successful
// redemption and after a refusal for double spending, duplication or a bad
// signature. Any other failure keeps the coin so the call can be retried.
func (client *Client) RedeemCoin(b Bank) error {
	if client.coin == nil {
		return pkgerrors.Wrapf(core.ErrStateViolation, "%s holds no coin", client.Name)
	}

	err := b.RedeemCoin(client.Name, client.coin, client.ris)
	switch {
	case err == nil:
		client.log.Info("coin redeemed", "amount", client.coin.Amount)
		client.drop()
	case errors.Is(err, core.ErrFraudDetected),
		errors.Is(err, core.ErrDuplicateRedemption),
		errors.Is(err, core.ErrSignatureInvalid):
		client.log.Warn("coin rejected by bank", "err", err)
		client.drop()
	default:
		client.log.Error("failed to redeem coin", "err", err)
	}

	return err
}
