package coin

import (
	"bytes"

	"ecash/core"
)

// IdentityPrefix marks a decrypted identity slot.
const IdentityPrefix = "IDENT:"

// Side selects one half of an identity slot.
type Side uint8

const (
	// Left is the key-bearing half (the one-time pad).
	Left Side = iota
	// Right is the ciphertext-bearing half.
	Right
)

// String satisfies the fmt.Stringer interface for Side.
func (side Side) String() string {
	switch side {
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return "unknown"
}

// Share is one revealed half of an identity slot.
type Share struct {
	Side  Side
	Value []byte
}

// RIS is the set of revealed identity shares for a coin, one per slot.
type RIS []Share

// Clone returns a deep copy of ris.
func (ris RIS) Clone() RIS {
	if ris == nil {
		return nil
	}
	res := make(RIS, len(ris))
	for i, share := range ris {
		res[i] = Share{Side: share.Side, Value: bytes.Clone(share.Value)}
	}
	return res
}

// Equal reports whether ris and other reveal the same halves.
func (ris RIS) Equal(other RIS) bool {
	if len(ris) != len(other) {
		return false
	}
	for i := range ris {
		if ris[i].Side != other[i].Side || !bytes.Equal(ris[i].Value, other[i].Value) {
			return false
		}
	}
	return true
}

// Identity returns the plaintext stored in every identity slot of owner's coins.
func Identity(owner string) []byte {
	return []byte(IdentityPrefix + owner)
}

// Combine recovers the owner identity from two shares of the same slot. It only
// succeeds when one share is the pad and the other the ciphertext.
func Combine(a, b Share) (string, bool) {
	if a.Side == b.Side {
		return "", false
	}

	key, ciphertext := a.Value, b.Value
	if a.Side == Right {
		key, ciphertext = b.Value, a.Value
	}

	plaintext, err := core.DecryptOneTimePad(key, ciphertext)
	if err != nil {
		return "", false
	}
	if !bytes.HasPrefix(plaintext, []byte(IdentityPrefix)) {
		return "", false
	}

	return string(plaintext[len(IdentityPrefix):]), true
}
