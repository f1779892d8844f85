package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/ardanlabs/faucet/foundation/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

// generateCmd represents the generate command
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new key pair for a treasury or a recipient",
	Run: func(cmd *cobra.Command, args []string) {
		path := getPrivateKeyPath()
		if _, err := os.Stat(path); err == nil {
			log.Fatalf("key file %s already exists", path)
		}

		if err := os.MkdirAll(keyPath, 0700); err != nil {
			log.Fatal(err)
		}

		privateKey, err := crypto.GenerateKey()
		if err != nil {
			log.Fatal(err)
		}
		if err := crypto.SaveECDSA(path, privateKey); err != nil {
			log.Fatal(err)
		}

		fmt.Printf("%s: %s\n", path, keystore.Address(privateKey))
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
}
