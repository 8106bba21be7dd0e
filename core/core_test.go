package core_test

import (
	"errors"
	"math/big"
	"os"
	"strings"
	"testing"

	"ecash/core"

	"github.com/stretchr/testify/require"
)

var key *core.RsaKey

func TestMain(m *testing.M) {
	// One key for the whole package; generation dominates test time.
	var err error
	key, err = new(core.RsaKey).New(1024)
	if err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestBlindSignatureRoundTrip(t *testing.T) {
	pub := key.Public()
	m := core.HashToInt([]byte("coin contents"), pub.N)

	// Requester blinds.
	blinded, factor, err := core.Blind(pub, m)
	require.NoError(t, err)
	require.NotEqual(t, 0, blinded.Cmp(m))

	// Signer signs without seeing m.
	blindSig, err := key.Sign(blinded)
	require.NoError(t, err)

	// Requester unblinds and anyone verifies.
	sig, err := core.Unblind(pub, blindSig, factor)
	require.NoError(t, err)
	require.True(t, core.Verify(pub, sig, m))

	// The signature does not cover other messages.
	other := core.HashToInt([]byte("other contents"), pub.N)
	require.False(t, core.Verify(pub, sig, other))
}

func TestBlindWithReproducesBlind(t *testing.T) {
	pub := key.Public()
	m := core.HashToInt([]byte("candidate"), pub.N)

	blinded, factor, err := core.Blind(pub, m)
	require.NoError(t, err)
	require.Equal(t, 0, core.BlindWith(pub, m, factor).Cmp(blinded))

	wrong := new(big.Int).Add(factor, big.NewInt(1))
	require.NotEqual(t, 0, core.BlindWith(pub, m, wrong).Cmp(blinded))
}

func TestSignRejectsOutOfRange(t *testing.T) {
	_, err := key.Sign(big.NewInt(0))
	require.True(t, errors.Is(err, core.ErrInvalidInput))

	_, err = key.Sign(new(big.Int).Set(key.N))
	require.True(t, errors.Is(err, core.ErrInvalidInput))
}

func TestVerifyRejectsNil(t *testing.T) {
	pub := key.Public()
	require.False(t, core.Verify(pub, nil, big.NewInt(1)))
	require.False(t, core.Verify(core.PublicKey{}, big.NewInt(1), big.NewInt(1)))
}

func TestPublicKeyEqual(t *testing.T) {
	require.True(t, key.Public().Equal(key.Public()))
	require.False(t, key.Public().Equal(core.PublicKey{N: key.N, E: big.NewInt(3)}))
	require.False(t, key.Public().Equal(core.PublicKey{}))
}

func TestOneTimePad(t *testing.T) {
	plaintext := []byte("IDENT:alice")

	pad, ciphertext, err := core.EncryptOneTimePad(plaintext)
	require.NoError(t, err)
	require.Len(t, pad, len(plaintext))
	require.NotEqual(t, plaintext, ciphertext)

	recovered, err := core.DecryptOneTimePad(pad, ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, recovered)

	_, err = core.DecryptOneTimePad(pad[:3], ciphertext)
	require.True(t, errors.Is(err, core.ErrInvalidInput))
}

func TestRandomInt(t *testing.T) {
	seen := make(map[int]bool)
	for i := 0; i < 200; i++ {
		n, err := core.RandomInt(5)
		require.NoError(t, err)
		require.True(t, n >= 0 && n < 5)
		seen[n] = true
	}
	require.Len(t, seen, 5)

	_, err := core.RandomInt(0)
	require.True(t, errors.Is(err, core.ErrInvalidInput))
}

func TestHash(t *testing.T) {
	a := core.Hash([]byte("a"))
	require.Len(t, a, 32)
	require.True(t, core.EqualHash(a, core.Hash([]byte("a"))))
	require.False(t, core.EqualHash(a, core.Hash([]byte("b"))))
	require.False(t, core.EqualHash(a, a[:16]))
}

func TestDoubleSpendErrorMatchesFraud(t *testing.T) {
	var err error = &core.DoubleSpendError{GUID: "g", Cheater: "alice"}
	require.True(t, errors.Is(err, core.ErrFraudDetected))

	var target *core.DoubleSpendError
	require.True(t, errors.As(err, &target))
	require.Equal(t, "alice", target.Cheater)
}

func TestFormat(t *testing.T) {
	require.Equal(t, "12345...", core.FormatBigInt(big.NewInt(1234567), 5))
	require.Equal(t, "42", core.FormatBigInt(big.NewInt(42), 5))
	require.Equal(t, "<nil>", core.FormatBigInt(nil, 5))

	// Private material never leaks.
	out := key.String()
	require.Contains(t, out, "# Bits: 1024")
	require.False(t, strings.Contains(out, key.D.String()[:32]))
	require.False(t, strings.Contains(out, key.P.String()[:32]))

	pub := key.Public().String()
	require.True(t, strings.HasPrefix(pub, "PublicKey{N: "+key.N.String()[:32]+"..."))
	require.Contains(t, pub, "E: 65537}")
}
