package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ardanlabs/faucet/foundation/ledger"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func TestParseEther(t *testing.T) {
	type table struct {
		amount string
		wei    string
		valid  bool
	}

	tt := []table{
		{amount: "0.05", wei: "50000000000000000", valid: true},
		{amount: "1", wei: "1000000000000000000", valid: true},
		{amount: ".5", wei: "500000000000000000", valid: true},
		{amount: "2.000000000000000001", wei: "2000000000000000001", valid: true},
		{amount: "0.0000000000000000001", valid: false},
		{amount: "-1", valid: false},
		{amount: "abc", valid: false},
		{amount: "", valid: false},
	}

	t.Log("Given the need to convert ether amounts into wei.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen parsing %q.", testID, tst.amount)
			{
				wei, err := ledger.ParseEther(tst.amount)
				if !tst.valid {
					if err == nil {
						t.Fatalf("\t%s\tTest %d:\tShould reject the amount, got %s.", failed, testID, wei)
					}
					t.Logf("\t%s\tTest %d:\tShould reject the amount.", success, testID)
					continue
				}

				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould parse the amount: %v", failed, testID, err)
				}
				if wei.String() != tst.wei {
					t.Fatalf("\t%s\tTest %d:\tShould get %s wei, got %s.", failed, testID, tst.wei, wei)
				}
				t.Logf("\t%s\tTest %d:\tShould get %s wei.", success, testID, tst.wei)

				if back := ledger.FormatEther(wei); back != tst.amount && "0"+tst.amount != back {
					t.Fatalf("\t%s\tTest %d:\tShould format back to %s, got %s.", failed, testID, tst.amount, back)
				}
				t.Logf("\t%s\tTest %d:\tShould format back to the amount.", success, testID)
			}
		}
	}
}

func TestFormatEther(t *testing.T) {
	type table struct {
		wei   *big.Int
		ether string
	}

	tt := []table{
		{wei: nil, ether: "0"},
		{wei: big.NewInt(0), ether: "0"},
		{wei: big.NewInt(1), ether: "0.000000000000000001"},
		{wei: big.NewInt(1_500_000_000_000_000_000), ether: "1.5"},
		{wei: big.NewInt(-50_000_000_000_000_000), ether: "-0.05"},
	}

	t.Log("Given the need to display wei amounts as ether.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen formatting %v.", testID, tst.wei)
			{
				if got := ledger.FormatEther(tst.wei); got != tst.ether {
					t.Fatalf("\t%s\tTest %d:\tShould get %s, got %s.", failed, testID, tst.ether, got)
				}
				t.Logf("\t%s\tTest %d:\tShould get %s.", success, testID, tst.ether)
			}
		}
	}
}

func TestClassify(t *testing.T) {
	type table struct {
		err    error
		reason ledger.Reason
	}

	tt := []table{
		{err: errors.New("insufficient funds for gas * price + value"), reason: ledger.ReasonInsufficientFunds},
		{err: errors.New("nonce too low: next nonce 12, tx nonce 11"), reason: ledger.ReasonNonceConflict},
		{err: errors.New("replacement transaction underpriced"), reason: ledger.ReasonUnderpriced},
		{err: errors.New("intrinsic gas too low"), reason: ledger.ReasonGas},
		{err: fmt.Errorf("send: %w", context.DeadlineExceeded), reason: ledger.ReasonNetwork},
		{err: errors.New("dial tcp 127.0.0.1:8545: connect: connection refused"), reason: ledger.ReasonNetwork},
		{err: &ledger.TransferError{Reason: ledger.ReasonReverted, Err: errors.New("reverted")}, reason: ledger.ReasonReverted},
		{err: errors.New("something else"), reason: ledger.ReasonRejected},
	}

	t.Log("Given the need to classify transfer failures.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen classifying %q.", testID, tst.err)
			{
				if got := ledger.Classify(tst.err); got != tst.reason {
					t.Fatalf("\t%s\tTest %d:\tShould get %s, got %s.", failed, testID, tst.reason, got)
				}
				t.Logf("\t%s\tTest %d:\tShould get %s.", success, testID, tst.reason)
			}
		}
	}
}
