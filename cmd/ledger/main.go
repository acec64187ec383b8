// Command ledger is the CLI driver around the core: it has no say over
// chain or mempool semantics, only over wiring wallets, running a
// single-process demonstration chain, and reporting balances. The core
// itself defines no CLI, no environment variables, and no persisted chain
// state — only a wallet's signing key survives between invocations.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gochain/utxoledger/pkg/block"
	"github.com/gochain/utxoledger/pkg/chain"
	"github.com/gochain/utxoledger/pkg/cryptoid"
	"github.com/gochain/utxoledger/pkg/logger"
	"github.com/gochain/utxoledger/pkg/mempool"
	"github.com/gochain/utxoledger/pkg/miner"
	"github.com/gochain/utxoledger/pkg/utxo"
	"github.com/gochain/utxoledger/pkg/wallet"
	"github.com/gochain/utxoledger/pkg/walletstore"
)

var (
	configFile string
	walletDir  string
	passphrase string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ledger",
		Short: "ledger drives a UTXO ledger core: wallets, mining, and a demonstration chain",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./ledger.yaml)")
	rootCmd.PersistentFlags().StringVar(&walletDir, "wallet-dir", "./wallet_data", "directory for the encrypted wallet keystore")
	rootCmd.PersistentFlags().StringVar(&passphrase, "passphrase", "", "passphrase protecting the wallet keystore")

	rootCmd.AddCommand(createWalletCmd())
	rootCmd.AddCommand(walletAddressCmd())
	rootCmd.AddCommand(demoCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("ledger")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return nil
}

func setupLogger() (*logger.Logger, error) {
	level := logger.INFO
	switch viper.GetString("logging.level") {
	case "debug":
		level = logger.DEBUG
	case "warn":
		level = logger.WARN
	case "error":
		level = logger.ERROR
	}
	return logger.New(&logger.Config{
		Level:   level,
		Prefix:  "ledger",
		UseJSON: viper.GetString("logging.format") == "json",
	})
}

func openStore() (*walletstore.Store, error) {
	if err := os.MkdirAll(walletDir, 0755); err != nil {
		return nil, fmt.Errorf("create wallet dir: %w", err)
	}
	return walletstore.Open(walletDir)
}

func createWalletCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-wallet",
		Short: "generate a new wallet and persist it to the encrypted keystore",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			w, err := wallet.New()
			if err != nil {
				return fmt.Errorf("generate wallet: %w", err)
			}
			if err := store.Save(w, passphrase); err != nil {
				return fmt.Errorf("persist wallet: %w", err)
			}

			fmt.Printf("Created wallet with address: %s\n", w.Address())
			return nil
		},
	}
}

func walletAddressCmd() *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "wallet-address",
		Short: "load a wallet from the keystore and print its address",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			addr, err := cryptoid.ParseAddress(address)
			if err != nil {
				return fmt.Errorf("invalid address: %w", err)
			}
			w, err := store.Load(addr, passphrase)
			if err != nil {
				return err
			}
			fmt.Println(w.Address())
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "base58 address of the wallet to load")
	cmd.MarkFlagRequired("address")
	return cmd
}

// demoCmd runs a short single-process chain that exercises genesis, a
// reward-only block, a two-party transfer, and a rescan — since the core
// carries no chain persistence, a demonstration run lives entirely within
// one process invocation.
func demoCmd() *cobra.Command {
	var blocks int
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "mine a short demonstration chain and report wallet balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(); err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			log, err := setupLogger()
			if err != nil {
				return err
			}
			defer log.Sync()

			return runDemo(cmd.Context(), log, blocks)
		},
	}
	cmd.Flags().IntVar(&blocks, "blocks", 2, "number of blocks to mine")
	return cmd
}

func runDemo(ctx context.Context, log *logger.Logger, blocks int) error {
	minerWallet, err := wallet.New()
	if err != nil {
		return err
	}
	recipient, err := wallet.New()
	if err != nil {
		return err
	}

	genesis := &block.Block{Index: 0, PreviousHash: cryptoid.ZeroDigest}
	genesis.Hash = cryptoid.ZeroDigest
	bc := chain.New(genesis)

	pool := mempool.New()
	index := utxo.New()
	m := miner.New(minerWallet.Address())

	log.Info("genesis block at height 0, tip %s", bc.TipHash())

	for i := 0; i < blocks; i++ {
		if i == 1 {
			index.Rescan(bc)
			utxos := index.UTXOs(minerWallet.Address())
			tx, err := minerWallet.SendAmount(1_000_000, 10, recipient.Address(), utxos)
			if err != nil {
				return fmt.Errorf("build transfer: %w", err)
			}
			if err := pool.Add(tx, bc, index); err != nil {
				return fmt.Errorf("admit transfer: %w", err)
			}
		}

		candidate, err := m.MineCandidate(ctx, bc.Tip().Index+1, bc.TipHash(), ^uint64(0), pool)
		if err != nil {
			return fmt.Errorf("mine block %d: %w", i+1, err)
		}
		if err := bc.AddBlock(candidate); err != nil {
			return fmt.Errorf("add block %d: %w", i+1, err)
		}
		blockLog := log.WithFields(map[string]interface{}{
			"index": candidate.Index,
			"hash":  candidate.Hash.String(),
			"txs":   len(candidate.Transactions),
		})
		blockLog.Info("mined block")
	}

	index.Rescan(bc)
	fmt.Printf("miner (%s) balance: %d\n", minerWallet.Address(), index.Balance(minerWallet.Address()))
	fmt.Printf("recipient (%s) balance: %d\n", recipient.Address(), index.Balance(recipient.Address()))
	return nil
}
