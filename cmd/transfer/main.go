package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ipohosov/avail"
)

const defaultEndpoint = "ws://127.0.0.1:9944"

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	var (
		endpoint string
		seed     string
		to       string
		amount   string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Submit a balance transfer and wait for finalization",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			conn, err := avail.Dial(endpoint)
			if err != nil {
				return err
			}
			defer conn.Close()

			info := conn.Info()
			log.Info().
				Str("chain", info.ChainName).
				Str("node", info.NodeVersion).
				Str("token", info.TokenSymbol).
				Uint32("decimals", info.Decimals).
				Msg("connected")

			executor := avail.NewTransferExecutor(conn,
				avail.WithLogger(log),
				avail.WithTimeout(timeout),
			)
			res := executor.Send(cmd.Context(), seed, to, amount)
			if !res.Success {
				log.Error().Str("error", res.ErrorMessage).Msg("transfer failed")
				os.Exit(1)
			}

			log.Info().
				Str("tx", res.TxHash).
				Str("block", res.BlockHash).
				Str("amount", res.Amount).
				Str("fee", res.Fee).
				Msg("transfer finalized")
			return nil
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", endpointFromEnv(), "node websocket endpoint (env AVAIL_RPC_URL)")
	cmd.Flags().StringVar(&seed, "seed", "", "sender mnemonic seed phrase")
	cmd.Flags().StringVar(&to, "to", "", "recipient SS58 address")
	cmd.Flags().StringVar(&amount, "amount", "", "amount in the chain's display unit, e.g. 1.5")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "how long to wait for finalization")
	for _, flag := range []string{"seed", "to", "amount"} {
		if err := cmd.MarkFlagRequired(flag); err != nil {
			log.Fatal().Err(err).Msg("flag registration")
		}
	}

	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("transfer command failed")
		os.Exit(1)
	}
}

func endpointFromEnv() string {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
	if v := os.Getenv("AVAIL_RPC_URL"); v != "" {
		return v
	}
	return defaultEndpoint
}
