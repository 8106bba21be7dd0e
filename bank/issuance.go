package bank

import (
	"context"
	"math/big"
	"sync"

	"ecash/coin"
	"ecash/core"

	"github.com/pkg/errors"
)

//
// ISSUANCE
//

// 1. The buyer submits K blinded candidates of the same coin.
// 2. The Bank picks one index s and asks the buyer to open every other candidate.
// 3. The Bank checks the opened candidates: blinding factors and embedded identities.
// 4. If all of them are honest the Bank signs the unopened candidate s blindly and
//		debits the buyer.

// IssuanceState is the phase of a cut-and-choose exchange.
type IssuanceState int

const (
	Proposed IssuanceState = iota
	Audited
	Signed
	Aborted
)

// String satisfies the fmt.Stringer interface for IssuanceState.
func (state IssuanceState) String() string {
	switch state {
	case Proposed:
		return "proposed"
	case Audited:
		return "audited"
	case Signed:
		return "signed"
	case Aborted:
		return "aborted"
	}
	return "unknown"
}

// AuditRequest asks the buyer to open every candidate except ChosenIndex.
type AuditRequest struct {
	ChosenIndex int
}

// Candidate is an opened candidate coin.
type Candidate struct {
	Index          int
	BlindingFactor *big.Int
	Coin           *coin.Coin
}

// AuditResponse carries the opened candidates.
type AuditResponse struct {
	Revealed []Candidate
}

// Opener answers an AuditRequest. It is called synchronously while the
// issuance is in flight.
type Opener func(ctx context.Context, req AuditRequest) (AuditResponse, error)

// Issuance is one cut-and-choose exchange between the Bank and a buyer.
type Issuance struct {
	mu sync.Mutex

	buyer   string
	amount  int64
	blinded []*big.Int
	chosen  int
	state   IssuanceState
}

// Buyer returns the account paying for the coin.
func (iss *Issuance) Buyer() string {
	return iss.buyer
}

// Amount returns the denomination being issued.
func (iss *Issuance) Amount() int64 {
	return iss.amount
}

// State returns the current phase.
func (iss *Issuance) State() IssuanceState {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	return iss.state
}

// Request returns the audit request of this exchange.
func (iss *Issuance) Request() AuditRequest {
	return AuditRequest{ChosenIndex: iss.chosen}
}

// abort moves a proposed exchange to Aborted.
func (iss *Issuance) abort() {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	if iss.state == Proposed || iss.state == Audited {
		iss.state = Aborted
	}
}

// ProposeIssuance starts an exchange for amount paid by buyer over the blinded
// candidates and returns the audit request the buyer must answer.
func (bank *Bank) ProposeIssuance(buyer string, amount int64, blinded []*big.Int) (*Issuance, AuditRequest, error) {
	// Check request.
	if amount <= 0 {
		return nil, AuditRequest{}, errors.Wrapf(core.ErrInvalidAmount, "coin amount %d", amount)
	}
	if _, err := bank.state.Balance(buyer); err != nil {
		return nil, AuditRequest{}, errors.Wrapf(err, "buyer %q", buyer)
	}
	if len(blinded) != bank.params.Fanout {
		return nil, AuditRequest{}, errors.Wrapf(core.ErrProtocolViolation, "expected %d candidates, got %d", bank.params.Fanout, len(blinded))
	}
	for i, value := range blinded {
		if value == nil || value.Sign() <= 0 || value.Cmp(bank.key.N) >= 0 {
			return nil, AuditRequest{}, errors.Wrapf(core.ErrProtocolViolation, "candidate %d out of range", i)
		}
	}

	// Pick the candidate left unopened.
	chosen, err := bank.choose(bank.params.Fanout)
	if err != nil {
		bank.log.Error("failed to choose candidate", "err", err)
		return nil, AuditRequest{}, err
	}
	if chosen < 0 || chosen >= bank.params.Fanout {
		return nil, AuditRequest{}, errors.Wrapf(core.ErrInvalidInput, "chosen index %d out of range", chosen)
	}

	iss := &Issuance{
		buyer:   buyer,
		amount:  amount,
		blinded: make([]*big.Int, len(blinded)),
		chosen:  chosen,
		state:   Proposed,
	}
	for i, value := range blinded {
		iss.blinded[i] = new(big.Int).Set(value)
	}

	bank.log.Debug("issuance proposed", "buyer", buyer, "amount", amount, "chosen", chosen)

	return iss, iss.Request(), nil
}

// CompleteIssuance audits the opened candidates and, if all are honest, signs
// the unopened one and debits the buyer. Any failure aborts the exchange
// without touching the ledger.
func (bank *Bank) CompleteIssuance(iss *Issuance, resp AuditResponse) (*big.Int, error) {
	iss.mu.Lock()
	defer iss.mu.Unlock()

	if iss.state != Proposed {
		return nil, errors.Wrapf(core.ErrStateViolation, "issuance is %s", iss.state)
	}

	// Audit.
	if err := bank.audit(iss, resp); err != nil {
		iss.state = Aborted
		bank.log.Warn("issuance audit failed", "buyer", iss.buyer, "err", err)
		return nil, err
	}
	iss.state = Audited

	// Sign the unopened candidate.
	blindSig, err := bank.key.Sign(iss.blinded[iss.chosen])
	if err != nil {
		iss.state = Aborted
		bank.log.Error("failed to sign candidate", "buyer", iss.buyer, "err", err)
		return nil, err
	}

	// Debit the buyer.
	if err := bank.state.Withdraw(iss.buyer, iss.amount); err != nil {
		iss.state = Aborted
		bank.log.Warn("issuance payment failed", "buyer", iss.buyer, "amount", iss.amount, "err", err)
		return nil, errors.Wrapf(err, "withdraw %d from %q", iss.amount, iss.buyer)
	}
	iss.state = Signed

	bank.log.Info("coin issued", "buyer", iss.buyer, "amount", iss.amount)

	return blindSig, nil
}

// SellCoin runs a whole cut-and-choose exchange. opener is called once with
// the Bank's choice. The returned value is the blind signature over the
// unopened candidate.
func (bank *Bank) SellCoin(ctx context.Context, buyer string, amount int64, blinded []*big.Int, opener Opener) (*big.Int, error) {
	iss, req, err := bank.ProposeIssuance(buyer, amount, blinded)
	if err != nil {
		return nil, err
	}

	// Round trip to the buyer.
	resp, err := opener(ctx, req)
	if err != nil {
		iss.abort()
		return nil, errors.Wrap(err, "open candidates")
	}
	if err := ctx.Err(); err != nil {
		iss.abort()
		return nil, errors.Wrap(err, "issuance cancelled")
	}

	return bank.CompleteIssuance(iss, resp)
}

// audit checks the opened candidates of iss.
func (bank *Bank) audit(iss *Issuance, resp AuditResponse) error {
	pub := bank.key.Public()

	// Exactly every index but the chosen one must be opened.
	if len(resp.Revealed) != len(iss.blinded)-1 {
		return errors.Wrapf(core.ErrProtocolViolation, "expected %d opened candidates, got %d", len(iss.blinded)-1, len(resp.Revealed))
	}
	seen := make(map[int]bool, len(resp.Revealed))
	for _, candidate := range resp.Revealed {
		switch {
		case candidate.Index < 0 || candidate.Index >= len(iss.blinded):
			return errors.Wrapf(core.ErrProtocolViolation, "candidate index %d out of range", candidate.Index)
		case candidate.Index == iss.chosen:
			return errors.Wrapf(core.ErrProtocolViolation, "chosen candidate %d was opened", candidate.Index)
		case seen[candidate.Index]:
			return errors.Wrapf(core.ErrProtocolViolation, "candidate %d opened twice", candidate.Index)
		case candidate.Coin == nil:
			return errors.Wrapf(core.ErrProtocolViolation, "candidate %d has no coin", candidate.Index)
		}
		seen[candidate.Index] = true
	}

	// Blinding factors and public fields.
	for _, candidate := range resp.Revealed {
		c := candidate.Coin
		if !c.VerifyBlinded(iss.blinded[candidate.Index], candidate.BlindingFactor) {
			return errors.Wrapf(core.ErrProtocolViolation, "candidate %d: blind factors don't match", candidate.Index)
		}
		if c.Amount != iss.amount {
			return errors.Wrapf(core.ErrProtocolViolation, "candidate %d: amount %d, expected %d", candidate.Index, c.Amount, iss.amount)
		}
		if !pub.Equal(c.PublicKey()) {
			return errors.Wrapf(core.ErrProtocolViolation, "candidate %d: foreign issuer parameters", candidate.Index)
		}
		if c.Slots() != bank.params.Slots {
			return errors.Wrapf(core.ErrProtocolViolation, "candidate %d: %d slots, expected %d", candidate.Index, c.Slots(), bank.params.Slots)
		}
	}

	// Embedded identities.
	for _, candidate := range resp.Revealed {
		if err := verifyIdentity(candidate.Coin, iss.buyer); err != nil {
			return errors.Wrapf(err, "candidate %d", candidate.Index)
		}
	}

	return nil
}

// verifyIdentity opens every slot of c and checks it names owner.
func verifyIdentity(c *coin.Coin, owner string) error {
	left, right, err := coin.ParseCoin(c.String())
	if err != nil {
		return errors.Wrap(core.ErrProtocolViolation, err.Error())
	}

	expected := string(coin.Identity(owner))
	for i := range left {
		key, err := c.Share(coin.Left, i)
		if err != nil {
			return err
		}
		ciphertext, err := c.Share(coin.Right, i)
		if err != nil {
			return err
		}

		// The opened halves must be the committed ones.
		if !core.EqualHash(core.Hash(key.Value), left[i]) || !core.EqualHash(core.Hash(ciphertext.Value), right[i]) {
			return errors.Wrapf(core.ErrFraudDetected, "slot %d: identity commitment invalid", i)
		}

		plaintext, err := core.DecryptOneTimePad(key.Value, ciphertext.Value)
		if err != nil || string(plaintext) != expected {
			return errors.Wrapf(core.ErrFraudDetected, "slot %d: identity invalid", i)
		}
	}

	return nil
}
