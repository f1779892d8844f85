package cmd

import (
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the status of the faucet",
	Run: func(cmd *cobra.Command, args []string) {
		var info struct {
			Configured    bool    `json:"configured"`
			Address       string  `json:"address"`
			Balance       string  `json:"balance"`
			DripAmount    string  `json:"dripAmount"`
			CooldownHours float64 `json:"cooldownHours"`
			Difficulty    int     `json:"difficulty"`
		}
		if err := call(http.MethodGet, "/api/faucet/info", nil, &info); err != nil {
			log.Fatal(err)
		}

		fmt.Printf("configured : %v\n", info.Configured)
		if info.Address != "" {
			fmt.Printf("treasury   : %s\n", info.Address)
		}
		if info.Balance != "" {
			fmt.Printf("balance    : %s ETH\n", info.Balance)
		}
		fmt.Printf("drip       : %s ETH\n", info.DripAmount)
		fmt.Printf("cooldown   : %gh\n", info.CooldownHours)
		fmt.Printf("difficulty : %d\n", info.Difficulty)
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
