package bank

import (
	"ecash/coin"
	"ecash/core"

	"github.com/pkg/errors"
)

//
// REDEMPTION
//

// 1. The holder presents the coin with the shares it revealed when accepting it.
// 2. The Bank verifies its own signature on the coin.
// 3. A coin seen for the first time is credited and its shares kept as evidence.
// 4. A coin seen before is refused. Its new shares are combined with the evidence
//		slot by slot: two opposite halves reveal the identity of the double spender.

// RedeemCoin credits account with the value of c. ris must hold the shares
// revealed for c, one per identity slot.
func (bank *Bank) RedeemCoin(account string, c *coin.Coin, ris coin.RIS) error {
	pub := bank.key.Public()

	// Verify signature.
	if c == nil || !c.VerifySignature(pub) {
		bank.log.Warn("redemption with invalid signature", "account", account)
		return errors.Wrap(core.ErrSignatureInvalid, "redeem coin")
	}

	// Verify shares against the signed commitments.
	if err := c.VerifyShares(ris); err != nil {
		bank.log.Warn("redemption with invalid shares", "account", account, "guid", c.GUID, "err", err)
		return err
	}

	// Look the coin up and record it if unseen.
	prior, err := bank.state.Redeem(c.GUID, ris, account, c.Amount)
	if err != nil {
		bank.log.Error("failed to record redemption", "account", account, "guid", c.GUID, "err", err)
		return errors.Wrapf(err, "redeem coin %s", c.GUID)
	}
	if prior == nil {
		bank.log.Info("coin redeemed", "account", account, "guid", c.GUID, "amount", c.Amount)
		return nil
	}

	// Seen before: try to unmask the spender.
	if cheater, ok := findCheater(prior, ris); ok {
		bank.log.Warn("== ALERT: double spend detected", "guid", c.GUID, "cheater", cheater, "account", account)
		return &core.DoubleSpendError{GUID: c.GUID.String(), Cheater: cheater}
	}

	bank.log.Warn("== ALERT: duplicate redemption attempt", "guid", c.GUID, "account", account)
	return errors.Wrapf(core.ErrDuplicateRedemption, "coin %s", c.GUID)
}

// findCheater combines two reveals of the same coin slot by slot.
func findCheater(prior, current coin.RIS) (string, bool) {
	for i := range prior {
		if i >= len(current) {
			break
		}
		if owner, ok := coin.Combine(prior[i], current[i]); ok {
			return owner, true
		}
	}
	return "", false
}
