// Package cmd contains the faucet client app.
package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ardanlabs/faucet/foundation/keystore"
	"github.com/spf13/cobra"
)

var (
	url         string
	keyName     string
	keyPath     string
	httpTimeout time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "faucet",
	Short: "Client for the proof of work faucet",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&url, "url", "u", "http://localhost:5500", "Url of the faucet service.")
	rootCmd.PersistentFlags().StringVarP(&keyName, "key", "k", "private", "Name of the private key file.")
	rootCmd.PersistentFlags().StringVarP(&keyPath, "key-path", "p", "zblock/accounts/", "Path to the directory with private keys.")
	rootCmd.PersistentFlags().DurationVar(&httpTimeout, "timeout", 90*time.Second, "Timeout for calls to the faucet service.")
}

func getPrivateKeyPath() string {
	name := keyName
	if !strings.HasSuffix(name, keystore.Extension) {
		name += keystore.Extension
	}
	return filepath.Join(keyPath, name)
}
