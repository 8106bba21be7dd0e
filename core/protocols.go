package core

import (
	"crypto/rand"
	"crypto/rsa"
	"io"
	"log/slog"
	"math/big"

	"github.com/pkg/errors"
)

//
// BLIND SIGNATURE
//

// 1. The Bank generates an RSA key and publishes (N, E).
// 2. A requester blinds a message m with a random factor r as m * r^E mod N.
// 3. The Bank signs the blinded value without learning m: (m * r^E)^D = m^D * r mod N.
// 4. The requester removes r and obtains the ordinary RSA signature m^D mod N.

// RsaKey holds the Bank's signing key.
type RsaKey struct {
	P *big.Int
	Q *big.Int
	D *big.Int
	N *big.Int
	E *big.Int
}

// PublicKey is the public half of an RsaKey.
type PublicKey struct {
	N *big.Int
	E *big.Int
}

// New generates an RSA key of the given length and stores it into key.
func (key *RsaKey) New(bits int) (*RsaKey, error) {
	// Generate RSA key.
	rsaKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		slog.Error("failed to generate RSA key", "bits", bits, "err", err)
		return nil, errors.Wrap(err, "generate rsa key")
	}

	key.P = rsaKey.Primes[0]
	key.Q = rsaKey.Primes[1]
	key.N = rsaKey.PublicKey.N
	key.D = rsaKey.D
	key.E = big.NewInt(int64(rsaKey.PublicKey.E))

	return key, nil
}

// Public returns the public half of key.
func (key *RsaKey) Public() PublicKey {
	return PublicKey{
		N: new(big.Int).Set(key.N),
		E: new(big.Int).Set(key.E),
	}
}

// Sign computes the (blind) signature blinded^D mod N.
func (key *RsaKey) Sign(blinded *big.Int) (*big.Int, error) {
	if blinded == nil || blinded.Sign() <= 0 || blinded.Cmp(key.N) >= 0 {
		return nil, errors.Wrap(ErrInvalidInput, "blinded value out of range")
	}
	return new(big.Int).Exp(blinded, key.D, key.N), nil
}

// Equal reports whether pub and other describe the same key.
func (pub PublicKey) Equal(other PublicKey) bool {
	if pub.N == nil || pub.E == nil || other.N == nil || other.E == nil {
		return false
	}
	return pub.N.Cmp(other.N) == 0 && pub.E.Cmp(other.E) == 0
}

// BlindingFactor draws a random r in [1, N) that is invertible modulo N.
func BlindingFactor(random io.Reader, pub PublicKey) (*big.Int, error) {
	for {
		r, err := rand.Int(random, pub.N)
		if err != nil {
			slog.Error("failed to generate blinding factor", "err", err)
			return nil, errors.Wrap(err, "generate blinding factor")
		}
		if r.Sign() == 0 {
			continue
		}

		// Keep r only if its inverse exists.
		if new(big.Int).ModInverse(r, pub.N) != nil {
			return r, nil
		}
	}
}

// Blind draws a fresh blinding factor and returns (m * r^E mod N, r).
func Blind(pub PublicKey, m *big.Int) (blinded, factor *big.Int, err error) {
	factor, err = BlindingFactor(rand.Reader, pub)
	if err != nil {
		return nil, nil, err
	}
	return BlindWith(pub, m, factor), factor, nil
}

// BlindWith computes m * r^E mod N for a known blinding factor r.
func BlindWith(pub PublicKey, m, r *big.Int) *big.Int {
	return new(big.Int).Mod(
		new(big.Int).Mul(
			m,
			new(big.Int).Exp(r, pub.E, pub.N),
		),
		pub.N,
	)
}

// Unblind removes the blinding factor r from a blind signature.
func Unblind(pub PublicKey, blindSig, r *big.Int) (*big.Int, error) {
	rInv := new(big.Int).ModInverse(r, pub.N)
	if rInv == nil {
		return nil, errors.Wrap(ErrInvalidInput, "blinding factor is not invertible")
	}
	return new(big.Int).Mod(new(big.Int).Mul(blindSig, rInv), pub.N), nil
}

// Verify checks that sig^E mod N equals m mod N.
func Verify(pub PublicKey, sig, m *big.Int) bool {
	if sig == nil || m == nil || pub.N == nil || pub.E == nil {
		return false
	}
	if sig.Sign() <= 0 || sig.Cmp(pub.N) >= 0 {
		return false
	}

	left := new(big.Int).Exp(sig, pub.E, pub.N)
	right := new(big.Int).Mod(m, pub.N)

	return left.Cmp(right) == 0
}
