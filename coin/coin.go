package coin

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"ecash/core"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// header opens the canonical serialization of a coin.
const header = "coin:v1"

// slot holds both halves of one identity slot.
type slot struct {
	key        []byte
	ciphertext []byte
}

// Coin is a fixed-denomination token signed blindly by the Bank.
//
// The public part (GUID, Amount, N, E and the slot commitments) is what the
// Bank signs through String. The identity slots themselves travel with the coin
// so that every holder can answer the reveal challenge of the next acceptor.
type Coin struct {
	GUID   uuid.UUID
	Amount int64

	// N and E are the issuer's public parameters.
	N *big.Int
	E *big.Int

	// Signature is nil until issuance completes.
	Signature *big.Int

	left  [][]byte
	right [][]byte
	slots []slot

	blinded *big.Int
}

// New builds an unsigned coin of amount owned by owner with the given number of
// identity slots.
func New(owner string, amount int64, pub core.PublicKey, slots int) (*Coin, error) {
	if slots < 1 {
		return nil, errors.Wrapf(core.ErrInvalidInput, "coin needs at least one slot, got %d", slots)
	}
	if amount <= 0 {
		return nil, errors.Wrapf(core.ErrInvalidAmount, "coin amount %d", amount)
	}
	if pub.N == nil || pub.E == nil {
		return nil, errors.Wrap(core.ErrInvalidInput, "missing issuer parameters")
	}

	coin := &Coin{
		GUID:   uuid.New(),
		Amount: amount,
		N:      new(big.Int).Set(pub.N),
		E:      new(big.Int).Set(pub.E),
		left:   make([][]byte, slots),
		right:  make([][]byte, slots),
		slots:  make([]slot, slots),
	}

	// Split the owner identity once per slot with an independent pad.
	identity := Identity(owner)
	for i := range coin.slots {
		key, ciphertext, err := core.EncryptOneTimePad(identity)
		if err != nil {
			return nil, err
		}
		coin.slots[i] = slot{key: key, ciphertext: ciphertext}
		coin.left[i] = core.Hash(key)
		coin.right[i] = core.Hash(ciphertext)
	}

	return coin, nil
}

// Slots returns the number of identity slots.
func (coin *Coin) Slots() int {
	return len(coin.slots)
}

// PublicKey returns the issuer parameters embedded in coin.
func (coin *Coin) PublicKey() core.PublicKey {
	return core.PublicKey{N: coin.N, E: coin.E}
}

// String returns the canonical representation signed by the Bank.
func (coin *Coin) String() string {
	var b strings.Builder
	b.WriteString(header + "\n")
	b.WriteString(fmt.Sprintf("guid:%s\n", coin.GUID))
	b.WriteString(fmt.Sprintf("amount:%d\n", coin.Amount))
	b.WriteString(fmt.Sprintf("n:%s\n", coin.N.Text(16)))
	b.WriteString(fmt.Sprintf("e:%s\n", coin.E.Text(16)))
	b.WriteString(fmt.Sprintf("slots:%d\n", len(coin.left)))
	for i := range coin.left {
		b.WriteString(fmt.Sprintf("slot:%d:%x:%x\n", i, coin.left[i], coin.right[i]))
	}
	return b.String()
}

// Message returns the digest of the canonical representation as signed by the Bank.
func (coin *Coin) Message() *big.Int {
	return core.HashToInt([]byte(coin.String()), coin.N)
}

// Blind blinds the coin's message with a fresh factor, keeps the blinded value
// and returns the factor.
func (coin *Coin) Blind() (*big.Int, error) {
	blinded, factor, err := core.Blind(coin.PublicKey(), coin.Message())
	if err != nil {
		return nil, err
	}
	coin.blinded = blinded
	return factor, nil
}

// Blinded returns the value computed by the last call to Blind.
func (coin *Coin) Blinded() *big.Int {
	return coin.blinded
}

// VerifyBlinded reports whether factor turns this coin's message into blinded.
func (coin *Coin) VerifyBlinded(blinded, factor *big.Int) bool {
	if blinded == nil || factor == nil {
		return false
	}
	return core.BlindWith(coin.PublicKey(), coin.Message(), factor).Cmp(blinded) == 0
}

// Unblind removes factor from the Bank's blind signature and attaches the result.
func (coin *Coin) Unblind(blindSig, factor *big.Int) error {
	if coin.Signature != nil {
		return errors.Wrap(core.ErrStateViolation, "coin already signed")
	}
	sig, err := core.Unblind(coin.PublicKey(), blindSig, factor)
	if err != nil {
		return err
	}
	coin.Signature = sig
	return nil
}

// VerifySignature checks the coin signature against the issuer pub.
func (coin *Coin) VerifySignature(pub core.PublicKey) bool {
	if coin == nil || coin.Signature == nil {
		return false
	}
	if !pub.Equal(coin.PublicKey()) {
		return false
	}
	return core.Verify(pub, coin.Signature, coin.Message())
}

// Share reveals one half of slot i.
func (coin *Coin) Share(side Side, i int) (Share, error) {
	if i < 0 || i >= len(coin.slots) {
		return Share{}, errors.Wrapf(core.ErrInvalidInput, "slot %d out of range", i)
	}
	switch side {
	case Left:
		return Share{Side: Left, Value: bytes.Clone(coin.slots[i].key)}, nil
	case Right:
		return Share{Side: Right, Value: bytes.Clone(coin.slots[i].ciphertext)}, nil
	}
	return Share{}, errors.Wrapf(core.ErrInvalidInput, "unknown side %d", side)
}

// VerifyShares checks every share of ris against the commitments of coin's
// canonical representation.
func (coin *Coin) VerifyShares(ris RIS) error {
	left, right, err := ParseCoin(coin.String())
	if err != nil {
		return err
	}
	if len(ris) != len(left) {
		return errors.Wrapf(core.ErrProtocolViolation, "%d shares for %d slots", len(ris), len(left))
	}
	for i, share := range ris {
		commitments := left
		if share.Side == Right {
			commitments = right
		} else if share.Side != Left {
			return errors.Wrapf(core.ErrProtocolViolation, "slot %d: unknown side %d", i, share.Side)
		}
		if !core.EqualHash(core.Hash(share.Value), commitments[i]) {
			return errors.Wrapf(core.ErrProtocolViolation, "slot %d: %s share does not match commitment", i, share.Side)
		}
	}
	return nil
}

// Clone returns a deep copy of coin.
func (coin *Coin) Clone() *Coin {
	res := &Coin{
		GUID:   coin.GUID,
		Amount: coin.Amount,
		N:      cloneInt(coin.N),
		E:      cloneInt(coin.E),
		left:   make([][]byte, len(coin.left)),
		right:  make([][]byte, len(coin.right)),
		slots:  make([]slot, len(coin.slots)),
	}
	res.Signature = cloneInt(coin.Signature)
	res.blinded = cloneInt(coin.blinded)
	for i := range coin.slots {
		res.left[i] = bytes.Clone(coin.left[i])
		res.right[i] = bytes.Clone(coin.right[i])
		res.slots[i] = slot{
			key:        bytes.Clone(coin.slots[i].key),
			ciphertext: bytes.Clone(coin.slots[i].ciphertext),
		}
	}
	return res
}

// ParseCoin extracts the left and right commitment hashes from a canonical
// coin representation.
func ParseCoin(serialized string) (left, right [][]byte, err error) {
	scanner := bufio.NewScanner(strings.NewReader(serialized))
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	// Fixed header lines.
	expected := []string{header, "guid:", "amount:", "n:", "e:"}
	for _, prefix := range expected {
		if !scanner.Scan() || !strings.HasPrefix(scanner.Text(), prefix) {
			return nil, nil, errors.Wrapf(core.ErrInvalidInput, "malformed coin: expected %q", prefix)
		}
	}

	// Slot count.
	if !scanner.Scan() || !strings.HasPrefix(scanner.Text(), "slots:") {
		return nil, nil, errors.Wrap(core.ErrInvalidInput, "malformed coin: expected slots")
	}
	count, err := strconv.Atoi(strings.TrimPrefix(scanner.Text(), "slots:"))
	if err != nil || count < 1 {
		return nil, nil, errors.Wrap(core.ErrInvalidInput, "malformed coin: bad slot count")
	}

	left = make([][]byte, count)
	right = make([][]byte, count)
	for i := 0; i < count; i++ {
		if !scanner.Scan() {
			return nil, nil, errors.Wrapf(core.ErrInvalidInput, "malformed coin: missing slot %d", i)
		}
		fields := strings.Split(scanner.Text(), ":")
		if len(fields) != 4 || fields[0] != "slot" || fields[1] != strconv.Itoa(i) {
			return nil, nil, errors.Wrapf(core.ErrInvalidInput, "malformed coin: bad slot line %d", i)
		}
		if left[i], err = hex.DecodeString(fields[2]); err != nil {
			return nil, nil, errors.Wrapf(core.ErrInvalidInput, "malformed coin: slot %d left hash", i)
		}
		if right[i], err = hex.DecodeString(fields[3]); err != nil {
			return nil, nil, errors.Wrapf(core.ErrInvalidInput, "malformed coin: slot %d right hash", i)
		}
	}
	if scanner.Scan() {
		return nil, nil, errors.Wrap(core.ErrInvalidInput, "malformed coin: trailing data")
	}

	return left, right, nil
}

func cloneInt(n *big.Int) *big.Int {
	if n == nil {
		return nil
	}
	return new(big.Int).Set(n)
}
