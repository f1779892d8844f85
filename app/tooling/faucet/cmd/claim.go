package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"

	"github.com/ardanlabs/faucet/foundation/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var address string

// claimCmd represents the claim command
var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Request a challenge, solve it and claim the drip",
	Run: func(cmd *cobra.Command, args []string) {
		to := address
		if to == "" {
			privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
			if err != nil {
				log.Fatal(err)
			}
			to = keystore.Address(privateKey)
		}

		var ch struct {
			SessionID  string `json:"sessionId"`
			Challenge  string `json:"challenge"`
			Difficulty int    `json:"difficulty"`
		}
		if err := call(http.MethodPost, "/api/faucet/challenge", nil, &ch); err != nil {
			log.Fatal(err)
		}

		fmt.Fprintf(os.Stderr, "challenge %s difficulty %d\n", ch.Challenge, ch.Difficulty)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		nonce, err := solver().Solve(ctx, ch.Challenge, ch.Difficulty)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			log.Fatal(err)
		}

		req := struct {
			Address   string `json:"address"`
			SessionID string `json:"sessionId"`
			Nonce     uint64 `json:"nonce"`
		}{
			Address:   to,
			SessionID: ch.SessionID,
			Nonce:     nonce,
		}

		var rcpt struct {
			TxHash        string  `json:"txHash"`
			Amount        string  `json:"amount"`
			Confirmations *uint64 `json:"confirmations"`
		}
		if err := call(http.MethodPost, "/api/faucet/claim", req, &rcpt); err != nil {
			log.Fatal(err)
		}

		fmt.Printf("sent %s ETH to %s\ntx: %s\n", rcpt.Amount, to, rcpt.TxHash)
		if rcpt.Confirmations != nil {
			fmt.Printf("confirmations: %d\n", *rcpt.Confirmations)
		}
	},
}

func init() {
	rootCmd.AddCommand(claimCmd)
	claimCmd.Flags().StringVarP(&address, "address", "a", "", "Address to fund, defaults to the address of the key.")
}

// call sends the request to the faucet and decodes the response. Failures
// reported by the faucet are returned as errors.
func call(method string, path string, body any, v any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := http.Client{Timeout: httpTimeout}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var fail map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&fail); err != nil {
			return fmt.Errorf("faucet returned %s", resp.Status)
		}
		return fmt.Errorf("faucet returned %s: %v", resp.Status, fail)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}
