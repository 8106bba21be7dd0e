package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"ecash/bank"
	"ecash/client"
	"ecash/coin"
	"ecash/config"
	"ecash/core"
	"ecash/store"

	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// flags
var (
	flags struct {
		config   string
		db       string
		identity string
		logLevel string
		deposit  int64
		amount   int64
	}
)

// params are the scheme parameters resolved before every command.
var params config.Params

// ecash
var ecash = &cobra.Command{
	Use:          "ecash command",
	Short:        "An anonymous e-cash simulation with double-spend detection.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load parameters.
		var err error
		if len(flags.config) > 0 {
			params, err = config.LoadFile(flags.config)
			if err != nil {
				return err
			}
		} else {
			params = config.Default()
		}
		if len(flags.logLevel) > 0 {
			params.LogLevel = flags.logLevel
		}
		if err := params.Validate(); err != nil {
			return err
		}

		// Configure logging.
		level, err := config.ParseLevel(params.LogLevel)
		if err != nil {
			return err
		}
		handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
		slog.SetDefault(slog.New(handler))

		return nil
	},
}

// simulate
var simulate = &cobra.Command{
	Use:   "simulate [--db PATH] [--deposit N] [--amount N]",
	Short: "Alice buys a coin, gives it to Bob, Bob redeems it twice.",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if flags.amount <= 0 || flags.deposit < flags.amount {
			return fmt.Errorf("need 0 < amount <= deposit, got amount %d and deposit %d", flags.amount, flags.deposit)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		b, closer, err := openBank()
		if err != nil {
			return err
		}
		defer closer()

		return runSimulation(cmd.Context(), cmd.OutOrStdout(), b, flags.deposit, flags.amount)
	},
}

// double-spend
var doubleSpend = &cobra.Command{
	Use:   "double-spend [--db PATH] [--deposit N] [--amount N]",
	Short: "Alice spends the same coin with Bob and Carol; the Bank names her.",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if flags.amount <= 0 || flags.deposit < flags.amount {
			return fmt.Errorf("need 0 < amount <= deposit, got amount %d and deposit %d", flags.amount, flags.deposit)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		b, closer, err := openBank()
		if err != nil {
			return err
		}
		defer closer()

		return runDoubleSpend(cmd.Context(), cmd.OutOrStdout(), b, flags.deposit, flags.amount)
	},
}

// inspect
var inspect = &cobra.Command{
	Use:   "inspect [--db PATH]",
	Short: "View the Bank's ledger and redeemed coins.",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		// Check that database file exists.
		dbPath, err := databasePath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("a database file does not exist: %s", dbPath)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, err := databasePath()
		if err != nil {
			return err
		}

		// Create store.
		s, err := new(store.BankStore).New(dbPath, flags.identity)
		if err != nil {
			return pkgerrors.Wrap(err, "open bank database")
		}
		defer s.Close()

		// Key summary.
		key, err := s.ReadKey()
		if err != nil && !errors.Is(err, store.ErrNoKey) {
			return err
		}
		if key != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "\nBANK KEY (%s)\n%s", flags.identity, key)
		}

		// Inspect.
		return s.Inspect(cmd.OutOrStdout())
	},
}

// databasePath returns --db or the default bank database.
func databasePath() (string, error) {
	if len(flags.db) > 0 {
		return flags.db, nil
	}
	directory, err := store.GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(directory, "bank.db"), nil
}

// openBank builds a Bank over SQLite when --db is set and over memory otherwise.
// The returned func releases the store.
func openBank() (*bank.Bank, func(), error) {
	if len(flags.db) == 0 {
		b, err := bank.New(params, store.NewMemoryStore())
		if err != nil {
			return nil, nil, err
		}
		return b, func() {}, nil
	}

	// Create store.
	s, err := new(store.BankStore).New(flags.db, flags.identity)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(err, "open bank database")
	}

	// Reuse the persisted key, or create and persist one.
	key, err := s.ReadKey()
	if errors.Is(err, store.ErrNoKey) {
		key, err = new(core.RsaKey).New(params.KeyBits)
		if err == nil {
			err = s.WriteKey(key)
		}
	}
	if err != nil {
		s.Close()
		return nil, nil, err
	}

	b, err := bank.New(params, s, bank.WithKey(key))
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	slog.Info("bank key loaded", "identity", flags.identity, "public", b.Profile().Public.String())
	return b, func() { s.Close() }, nil
}

// register opens name's account unless it already exists.
func register(b *bank.Bank, name string) error {
	if err := b.RegisterClient(name); err != nil && !errors.Is(err, core.ErrAccountExists) {
		return err
	}
	return nil
}

// runSimulation plays the honest scenario followed by a replay of the same coin.
func runSimulation(ctx context.Context, w io.Writer, b *bank.Bank, deposit, amount int64) error {
	// Open accounts.
	for _, name := range []string{"alice", "bob"} {
		if err := register(b, name); err != nil {
			return err
		}
	}
	if err := b.Deposit("alice", deposit); err != nil {
		return err
	}
	alice := client.New("alice", b.Profile())
	bob := client.New("bob", b.Profile())
	printBalances(w, b, "alice", "bob")

	// Purchase.
	if err := alice.BuyCoin(ctx, b, amount); err != nil {
		return err
	}
	fmt.Fprintf(w, "alice bought coin %s worth %d\n", alice.Coin().GUID, amount)

	// Transfer.
	if err := alice.GiveCoin(bob); err != nil {
		return err
	}
	fmt.Fprintf(w, "alice gave the coin to bob\n")

	// Redemption.
	c, ris := bob.Coin().Clone(), bob.RIS()
	if err := bob.RedeemCoin(b); err != nil {
		return err
	}
	fmt.Fprintf(w, "bob redeemed the coin\n")
	printBalances(w, b, "alice", "bob")

	// Replay.
	err := b.RedeemCoin("bob", c, ris)
	if !errors.Is(err, core.ErrDuplicateRedemption) {
		return fmt.Errorf("replayed coin was not refused as a duplicate: %v", err)
	}
	fmt.Fprintf(w, "replay refused: %v\n", err)
	printBalances(w, b, "bob")

	return nil
}

// runDoubleSpend has alice spend one coin twice with opposite reveals at every slot.
func runDoubleSpend(ctx context.Context, w io.Writer, b *bank.Bank, deposit, amount int64) error {
	// Open accounts.
	for _, name := range []string{"alice", "bob", "carol"} {
		if err := register(b, name); err != nil {
			return err
		}
	}
	if err := b.Deposit("alice", deposit); err != nil {
		return err
	}
	alice := client.New("alice", b.Profile())
	bob := client.New("bob", b.Profile(), client.WithSideChooser(fixedSide(coin.Left)))
	carol := client.New("carol", b.Profile(), client.WithSideChooser(fixedSide(coin.Right)))

	// Purchase.
	if err := alice.BuyCoin(ctx, b, amount); err != nil {
		return err
	}
	copied := alice.Coin().Clone()
	fmt.Fprintf(w, "alice bought coin %s worth %d and kept a copy\n", copied.GUID, amount)

	// Spend twice.
	if err := alice.GiveCoin(bob); err != nil {
		return err
	}
	if err := carol.AcceptCoin(copied); err != nil {
		return err
	}
	fmt.Fprintf(w, "alice gave the coin to bob and its copy to carol\n")

	// Redeem both.
	if err := bob.RedeemCoin(b); err != nil {
		return err
	}
	fmt.Fprintf(w, "bob redeemed the coin\n")

	err := carol.RedeemCoin(b)
	var fraud *core.DoubleSpendError
	if !errors.As(err, &fraud) {
		return fmt.Errorf("second redemption did not reveal the spender: %v", err)
	}
	fmt.Fprintf(w, "carol refused: coin %s was double spent by %s\n", fraud.GUID, fraud.Cheater)
	printBalances(w, b, "alice", "bob", "carol")

	return nil
}

func fixedSide(side coin.Side) client.SideChooser {
	return func(int) (coin.Side, error) {
		return side, nil
	}
}

func printBalances(w io.Writer, b *bank.Bank, names ...string) {
	for _, name := range names {
		balance, err := b.Balance(name)
		if err != nil {
			fmt.Fprintf(w, "  %-8s ?  (%v)\n", name, err)
			continue
		}
		fmt.Fprintf(w, "  %-8s %d\n", name, balance)
	}
}

func init() {
	// Global.
	cobra.EnableCommandSorting = false

	// ecash
	ecash.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "YAML file overriding the default parameters.")
	ecash.PersistentFlags().StringVar(&flags.db, "db", "", "SQLite database of the Bank (memory when empty).")
	ecash.PersistentFlags().StringVarP(&flags.identity, "identity", "i", "main", "Bank identity inside the database.")
	ecash.PersistentFlags().StringVarP(&flags.logLevel, "log-level", "l", "", "One of debug, info, warn, error.")

	// ecash simulate
	ecash.AddCommand(simulate)
	simulate.Flags().Int64Var(&flags.deposit, "deposit", 100, "Initial deposit of alice.")
	simulate.Flags().Int64Var(&flags.amount, "amount", 10, "Coin denomination.")
	// ecash double-spend
	ecash.AddCommand(doubleSpend)
	doubleSpend.Flags().Int64Var(&flags.deposit, "deposit", 100, "Initial deposit of alice.")
	doubleSpend.Flags().Int64Var(&flags.amount, "amount", 10, "Coin denomination.")
	// ecash inspect
	ecash.AddCommand(inspect)
}

// Execute runs the command tree.
func Execute() error {
	return ecash.Execute()
}
