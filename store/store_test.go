package store_test

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"ecash/bank"
	"ecash/coin"
	"ecash/core"
	"ecash/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var (
	_ bank.State = (*store.MemoryStore)(nil)
	_ bank.State = (*store.BankStore)(nil)
)

// backends lists the State implementations every test runs against.
var backends = map[string]func(t *testing.T) bank.State{
	"memory": func(t *testing.T) bank.State {
		return store.NewMemoryStore()
	},
	"sqlite": func(t *testing.T) bank.State {
		dbPath := filepath.Join(t.TempDir(), "bank.db")
		s, err := new(store.BankStore).New(dbPath, "main")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	},
}

func forEachBackend(t *testing.T, test func(t *testing.T, state bank.State)) {
	for name, newState := range backends {
		t.Run(name, func(t *testing.T) {
			test(t, newState(t))
		})
	}
}

func ris(sides ...coin.Side) coin.RIS {
	res := make(coin.RIS, len(sides))
	for i, side := range sides {
		res[i] = coin.Share{Side: side, Value: []byte{byte(i), byte(side), 0x42}}
	}
	return res
}

func TestRegister(t *testing.T) {
	forEachBackend(t, func(t *testing.T, state bank.State) {
		require.NoError(t, state.Register("alice"))

		balance, err := state.Balance("alice")
		require.NoError(t, err)
		require.Equal(t, int64(0), balance)

		// Registering twice keeps the balance.
		require.NoError(t, state.Deposit("alice", 50))
		require.True(t, errors.Is(state.Register("alice"), core.ErrAccountExists))
		balance, err = state.Balance("alice")
		require.NoError(t, err)
		require.Equal(t, int64(50), balance)
	})
}

func TestUnknownAccount(t *testing.T) {
	forEachBackend(t, func(t *testing.T, state bank.State) {
		require.NoError(t, state.Register("alice"))

		_, err := state.Balance("bob")
		require.True(t, errors.Is(err, core.ErrUnknownAccount))
		require.True(t, errors.Is(state.Deposit("bob", 1), core.ErrUnknownAccount))
		require.True(t, errors.Is(state.Withdraw("bob", 1), core.ErrUnknownAccount))
		require.True(t, errors.Is(state.Transfer("alice", "bob", 0), core.ErrUnknownAccount))
		require.True(t, errors.Is(state.Transfer("bob", "alice", 0), core.ErrUnknownAccount))

		_, err = state.Redeem(uuid.New(), ris(coin.Left), "bob", 10)
		require.True(t, errors.Is(err, core.ErrUnknownAccount))
	})
}

func TestWithdrawNeverGoesNegative(t *testing.T) {
	forEachBackend(t, func(t *testing.T, state bank.State) {
		require.NoError(t, state.Register("alice"))
		require.NoError(t, state.Deposit("alice", 30))

		require.True(t, errors.Is(state.Withdraw("alice", 31), core.ErrInsufficientFunds))
		require.NoError(t, state.Withdraw("alice", 30))
		require.True(t, errors.Is(state.Withdraw("alice", 1), core.ErrInsufficientFunds))

		balance, err := state.Balance("alice")
		require.NoError(t, err)
		require.Equal(t, int64(0), balance)

		require.True(t, errors.Is(state.Withdraw("alice", -1), core.ErrInvalidAmount))
		require.True(t, errors.Is(state.Deposit("alice", -1), core.ErrInvalidAmount))
	})
}

func TestBalanceNeverOverflows(t *testing.T) {
	forEachBackend(t, func(t *testing.T, state bank.State) {
		require.NoError(t, state.Register("alice"))
		require.NoError(t, state.Register("bob"))
		require.NoError(t, state.Deposit("alice", math.MaxInt64))
		require.NoError(t, state.Deposit("bob", 1))

		require.True(t, errors.Is(state.Deposit("alice", 1), core.ErrInvalidAmount))
		require.True(t, errors.Is(state.Transfer("bob", "alice", 1), core.ErrInvalidAmount))
		guid := uuid.New()
		_, err := state.Redeem(guid, ris(coin.Left), "alice", 1)
		require.True(t, errors.Is(err, core.ErrInvalidAmount))
		_, ok, err := state.Evidence(guid)
		require.NoError(t, err)
		require.False(t, ok)

		// Nothing moved and no evidence was kept.
		alice, err := state.Balance("alice")
		require.NoError(t, err)
		bob, err := state.Balance("bob")
		require.NoError(t, err)
		require.Equal(t, int64(math.MaxInt64), alice)
		require.Equal(t, int64(1), bob)
	})
}

func TestTransferIsAtomic(t *testing.T) {
	forEachBackend(t, func(t *testing.T, state bank.State) {
		require.NoError(t, state.Register("alice"))
		require.NoError(t, state.Register("bob"))
		require.NoError(t, state.Deposit("alice", 100))

		require.NoError(t, state.Transfer("alice", "bob", 40))
		require.True(t, errors.Is(state.Transfer("alice", "bob", 61), core.ErrInsufficientFunds))

		alice, err := state.Balance("alice")
		require.NoError(t, err)
		bob, err := state.Balance("bob")
		require.NoError(t, err)
		require.Equal(t, int64(60), alice)
		require.Equal(t, int64(40), bob)
	})
}

func TestRedeemIsWriteOnce(t *testing.T) {
	forEachBackend(t, func(t *testing.T, state bank.State) {
		require.NoError(t, state.Register("bob"))
		require.NoError(t, state.Register("carol"))
		guid := uuid.New()

		first := ris(coin.Left, coin.Right, coin.Left)
		prior, err := state.Redeem(guid, first, "bob", 10)
		require.NoError(t, err)
		require.Nil(t, prior)

		// Second redemption returns the first evidence and credits nobody.
		second := ris(coin.Right, coin.Right, coin.Left)
		prior, err = state.Redeem(guid, second, "carol", 10)
		require.NoError(t, err)
		require.True(t, first.Equal(prior))

		stored, ok, err := state.Evidence(guid)
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, first.Equal(stored))

		bob, err := state.Balance("bob")
		require.NoError(t, err)
		carol, err := state.Balance("carol")
		require.NoError(t, err)
		require.Equal(t, int64(10), bob)
		require.Equal(t, int64(0), carol)

		_, ok, err = state.Evidence(uuid.New())
		require.NoError(t, err)
		require.False(t, ok)

		_, err = state.Redeem(uuid.New(), nil, "bob", 10)
		require.True(t, errors.Is(err, core.ErrInvalidInput))
	})
}

func TestEvidenceIsACopy(t *testing.T) {
	forEachBackend(t, func(t *testing.T, state bank.State) {
		require.NoError(t, state.Register("bob"))
		guid := uuid.New()
		submitted := ris(coin.Left)

		_, err := state.Redeem(guid, submitted, "bob", 1)
		require.NoError(t, err)
		submitted[0].Value[0] = 0xff

		stored, _, err := state.Evidence(guid)
		require.NoError(t, err)
		require.False(t, bytes.Equal(submitted[0].Value, stored[0].Value))
	})
}

func TestConcurrentRedeemCreditsOnce(t *testing.T) {
	forEachBackend(t, func(t *testing.T, state bank.State) {
		require.NoError(t, state.Register("bob"))
		guid := uuid.New()

		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			firsts int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				prior, err := state.Redeem(guid, ris(coin.Left, coin.Right), "bob", 10)
				if err == nil && prior == nil {
					mu.Lock()
					firsts++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		require.Equal(t, 1, firsts)
		balance, err := state.Balance("bob")
		require.NoError(t, err)
		require.Equal(t, int64(10), balance)
	})
}

func TestBankStoreKey(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bank.db")
	s, err := new(store.BankStore).New(dbPath, "main")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.ReadKey()
	require.True(t, errors.Is(err, store.ErrNoKey))

	key, err := new(core.RsaKey).New(1024)
	require.NoError(t, err)
	require.NoError(t, s.WriteKey(key))

	read, err := s.ReadKey()
	require.NoError(t, err)
	require.True(t, key.Public().Equal(read.Public()))
	require.Equal(t, 0, key.D.Cmp(read.D))

	// A second key for the same identity is ignored.
	other, err := new(core.RsaKey).New(1024)
	require.NoError(t, err)
	require.NoError(t, s.WriteKey(other))
	read, err = s.ReadKey()
	require.NoError(t, err)
	require.True(t, key.Public().Equal(read.Public()))
}

func TestBankStoreSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bank.db")
	s, err := new(store.BankStore).New(dbPath, "main")
	require.NoError(t, err)
	require.NoError(t, s.Register("alice"))
	require.NoError(t, s.Deposit("alice", 7))
	guid := uuid.New()
	_, err = s.Redeem(guid, ris(coin.Right), "alice", 3)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = new(store.BankStore).New(dbPath, "main")
	require.NoError(t, err)
	defer s.Close()

	balance, err := s.Balance("alice")
	require.NoError(t, err)
	require.Equal(t, int64(10), balance)

	_, ok, err := s.Evidence(guid)
	require.NoError(t, err)
	require.True(t, ok)

	var out bytes.Buffer
	require.NoError(t, s.Inspect(&out))
	require.Contains(t, out.String(), "alice")
	require.Contains(t, out.String(), guid.String())
}
