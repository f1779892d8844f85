package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/ardanlabs/faucet/foundation/pow"
	"github.com/spf13/cobra"
)

var (
	challenge  string
	difficulty int
)

// solveCmd represents the solve command
var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve a challenge without contacting the faucet",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		nonce, err := solver().Solve(ctx, challenge, difficulty)
		if err != nil {
			log.Fatal(err)
		}

		fmt.Printf("nonce: %d\nhash : %s\n", nonce, pow.Hash(challenge, nonce))
	},
}

func init() {
	rootCmd.AddCommand(solveCmd)
	solveCmd.Flags().StringVarP(&challenge, "challenge", "c", "", "Challenge to solve.")
	solveCmd.MarkFlagRequired("challenge")
	solveCmd.Flags().IntVarP(&difficulty, "difficulty", "d", 4, "Number of leading zeros required.")
}

// solver returns a solver that prints its progress to stderr.
func solver() pow.Solver {
	return pow.Solver{
		OnProgress: func(p pow.Progress) {
			fmt.Fprintf(os.Stderr, "\rsolving: %d attempts (%.0f%%)", p.Attempts, p.Percent)
		},
	}
}
