package core

import (
	"crypto/rand"
	"crypto/subtle"
	"math/big"

	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

// Hash computes the SHA3-256 digest of data.
func Hash(data []byte) []byte {
	digest := sha3.Sum256(data)
	return digest[:]
}

// HashToInt computes the digest of data as a number reduced modulo n.
func HashToInt(data []byte, n *big.Int) *big.Int {
	hash := new(big.Int).SetBytes(Hash(data))
	return hash.Mod(hash, n)
}

// EqualHash compares two digests in constant time.
func EqualHash(a, b []byte) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare(a, b) == 1
}

// RandomInt returns a uniform random integer in [0, bound).
func RandomInt(bound int) (int, error) {
	if bound <= 0 {
		return 0, errors.Wrapf(ErrInvalidInput, "random bound %d", bound)
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(bound)))
	if err != nil {
		return 0, errors.Wrap(err, "generate random integer")
	}
	return int(n.Int64()), nil
}

// EncryptOneTimePad draws a fresh pad as long as plaintext and returns it with
// the ciphertext.
func EncryptOneTimePad(plaintext []byte) (key, ciphertext []byte, err error) {
	key = make([]byte, len(plaintext))
	if _, err := rand.Read(key); err != nil {
		return nil, nil, errors.Wrap(err, "generate one-time pad")
	}

	ciphertext = make([]byte, len(plaintext))
	for i := range plaintext {
		ciphertext[i] = plaintext[i] ^ key[i]
	}

	return key, ciphertext, nil
}

// DecryptOneTimePad recovers the plaintext from a pad and its ciphertext.
func DecryptOneTimePad(key, ciphertext []byte) ([]byte, error) {
	if len(key) != len(ciphertext) {
		return nil, errors.Wrapf(ErrInvalidInput, "pad length %d, ciphertext length %d", len(key), len(ciphertext))
	}

	plaintext := make([]byte, len(ciphertext))
	for i := range ciphertext {
		plaintext[i] = ciphertext[i] ^ key[i]
	}

	return plaintext, nil
}
