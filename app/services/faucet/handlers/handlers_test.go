package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ardanlabs/faucet/app/services/faucet/handlers"
	"github.com/ardanlabs/faucet/business/core/faucet"
	"github.com/ardanlabs/faucet/business/core/faucet/stores/memstore"
	"github.com/ardanlabs/faucet/foundation/events"
	"github.com/ardanlabs/faucet/foundation/pow"
	"go.uber.org/zap"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	address  = "0xAbC0000000000000000000000000000000000123"
	address2 = "0x6Fe6CF3c8fF57c58d24BfC869668F48BCbDb3BD9"
)

var drip = big.NewInt(50_000_000_000_000_000)

type treasury struct {
	balance *big.Int
}

func (t *treasury) Address() string {
	return "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"
}

func (t *treasury) Balance(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(t.balance), nil
}

func (t *treasury) Transfer(ctx context.Context, to string, amount *big.Int) (string, error) {
	t.balance.Sub(t.balance, amount)
	return "0xabc123", nil
}

func (t *treasury) WaitConfirmed(ctx context.Context, txHash string) (uint64, error) {
	return 1, nil
}

// offlineClaims is a claim store that can't be reached.
type offlineClaims struct{}

func (offlineClaims) LastClaim(ctx context.Context, key string) (time.Time, error) {
	return time.Time{}, errors.New("claim store offline")
}

func (offlineClaims) Reserve(ctx context.Context, key string, at time.Time, cooldown time.Duration) (faucet.Reservation, error) {
	return faucet.Reservation{}, errors.New("claim store offline")
}

func (offlineClaims) Release(ctx context.Context, r faucet.Reservation) error {
	return nil
}

func (offlineClaims) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	return 0, nil
}

func newMux(t *testing.T, l faucet.Ledger, policy faucet.KeyPolicy, trustProxy bool) http.Handler {
	t.Helper()

	return newMuxWithClaims(t, l, policy, trustProxy, memstore.NewClaims())
}

func newMuxWithClaims(t *testing.T, l faucet.Ledger, policy faucet.KeyPolicy, trustProxy bool, claims faucet.ClaimStore) http.Handler {
	t.Helper()

	log := zap.NewNop().Sugar()

	core, err := faucet.NewCore(faucet.Config{
		Log:         log,
		Ledger:      l,
		Challenges:  memstore.NewChallenges(nil),
		Claims:      claims,
		DripAmount:  drip,
		Difficulty:  1,
		CooldownKey: policy,
	})
	if err != nil {
		t.Fatalf("constructing core: %v", err)
	}

	return handlers.PublicMux(handlers.MuxConfig{
		Shutdown:   make(chan os.Signal, 1),
		Log:        log,
		Core:       core,
		Evts:       events.New(),
		CorsOrigin: "*",
		TrustProxy: trustProxy,
	})
}

func do(mux http.Handler, method string, path string, body string, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	r := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	for k, v := range header {
		r.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)

	return w, resp
}

func claimBody(t *testing.T, mux http.Handler, path string, addr string) string {
	t.Helper()

	w, ch := do(mux, http.MethodPost, path+"/challenge", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("issuing challenge: status %d: %s", w.Code, w.Body.String())
	}

	nonce, err := pow.Solver{}.Solve(context.Background(), ch["challenge"].(string), int(ch["difficulty"].(float64)))
	if err != nil {
		t.Fatalf("solving challenge: %v", err)
	}

	return fmt.Sprintf(`{"address":%q,"sessionId":%q,"nonce":%d}`, addr, ch["sessionId"], nonce)
}

// =============================================================================

func TestClaimAPI(t *testing.T) {
	t.Log("Given the need to claim from the faucet over http.")
	{
		for testID, path := range []string{"", "/api/faucet"} {
			t.Logf("\tTest %d:\tWhen claiming through %q.", testID, path+"/claim")
			{
				mux := newMux(t, &treasury{balance: big.NewInt(1e18)}, faucet.KeyAddress, false)
				body := claimBody(t, mux, path, address)

				w, resp := do(mux, http.MethodPost, path+"/claim", body, nil)
				if w.Code != http.StatusOK {
					t.Fatalf("\t%s\tTest %d:\tShould get a 200: got %d: %s", failed, testID, w.Code, w.Body.String())
				}
				t.Logf("\t%s\tTest %d:\tShould get a 200.", success, testID)

				if resp["success"] != true || resp["amount"] != "0.05" || resp["txHash"] != "0xabc123" || resp["txReference"] != "0xabc123" {
					t.Fatalf("\t%s\tTest %d:\tShould get the receipt: %s", failed, testID, w.Body.String())
				}
				t.Logf("\t%s\tTest %d:\tShould get the receipt.", success, testID)

				replay := strings.Replace(body, address, address2, 1)
				w, resp = do(mux, http.MethodPost, path+"/claim", replay, nil)
				if w.Code != http.StatusBadRequest || resp["code"] != "InvalidSession" {
					t.Fatalf("\t%s\tTest %d:\tShould reject a replay with a 400: got %d: %s", failed, testID, w.Code, w.Body.String())
				}
				t.Logf("\t%s\tTest %d:\tShould reject a replay with a 400.", success, testID)

				w, resp = do(mux, http.MethodPost, path+"/claim", body, nil)
				if w.Code != http.StatusTooManyRequests || resp["code"] != "RateLimited" {
					t.Fatalf("\t%s\tTest %d:\tShould rate limit the same body before the session check: got %d: %s", failed, testID, w.Code, w.Body.String())
				}
				t.Logf("\t%s\tTest %d:\tShould rate limit the same body before the session check.", success, testID)

				w, resp = do(mux, http.MethodPost, path+"/claim", claimBody(t, mux, path, address), nil)
				if w.Code != http.StatusTooManyRequests || resp["code"] != "RateLimited" {
					t.Fatalf("\t%s\tTest %d:\tShould be rate limited with a 429: got %d: %s", failed, testID, w.Code, w.Body.String())
				}
				t.Logf("\t%s\tTest %d:\tShould be rate limited with a 429.", success, testID)

				if w.Header().Get("Retry-After") == "" || resp["retryAfterSeconds"] == nil {
					t.Fatalf("\t%s\tTest %d:\tShould say when to retry: %v: %s", failed, testID, w.Header(), w.Body.String())
				}
				t.Logf("\t%s\tTest %d:\tShould say when to retry.", success, testID)
			}
		}
	}
}

func TestClaimAPIErrors(t *testing.T) {
	type table struct {
		name   string
		body   string
		status int
		code   string
	}

	tt := []table{
		{name: "malformed json", body: `{"address":`, status: http.StatusBadRequest, code: "InvalidRequest"},
		{name: "unknown field", body: `{"address":"x","sessionId":"s","nonce":1,"extra":1}`, status: http.StatusBadRequest, code: "InvalidRequest"},
		{name: "missing nonce", body: `{"address":"` + address + `","sessionId":"s"}`, status: http.StatusBadRequest, code: "InvalidRequest"},
		{name: "bad address", body: `{"address":"0x123","sessionId":"s","nonce":1}`, status: http.StatusBadRequest, code: "InvalidAddress"},
		{name: "unknown session", body: `{"address":"` + address + `","sessionId":"s","nonce":1}`, status: http.StatusBadRequest, code: "InvalidSession"},
	}

	mux := newMux(t, &treasury{balance: big.NewInt(1e18)}, faucet.KeyBoth, false)

	t.Log("Given the need to reject bad claims over http.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen the claim has a %s.", testID, tst.name)
			{
				w, resp := do(mux, http.MethodPost, "/claim", tst.body, nil)
				if w.Code != tst.status || resp["code"] != tst.code {
					t.Fatalf("\t%s\tTest %d:\tShould get %d %s: got %d: %s", failed, testID, tst.status, tst.code, w.Code, w.Body.String())
				}
				t.Logf("\t%s\tTest %d:\tShould get %d %s.", success, testID, tst.status, tst.code)
			}
		}
	}
}

func TestUnknownError(t *testing.T) {
	mux := newMuxWithClaims(t, &treasury{balance: big.NewInt(1e18)}, faucet.KeyBoth, false, offlineClaims{})

	t.Log("Given the need to diagnose unexpected claim failures.")
	{
		t.Logf("\tTest 0:\tWhen the claim store can't be reached.")
		{
			w, resp := do(mux, http.MethodPost, "/claim", claimBody(t, mux, "", address), nil)
			if w.Code != http.StatusInternalServerError || resp["code"] != "UnknownError" {
				t.Fatalf("\t%s\tTest 0:\tShould get a 500: got %d: %s", failed, w.Code, w.Body.String())
			}
			t.Logf("\t%s\tTest 0:\tShould get a 500.", success)

			msg, _ := resp["error"].(string)
			if !strings.Contains(msg, "claim store offline") {
				t.Fatalf("\t%s\tTest 0:\tShould include the underlying message: %s", failed, w.Body.String())
			}
			t.Logf("\t%s\tTest 0:\tShould include the underlying message.", success)
		}
	}
}

func TestUnconfigured(t *testing.T) {
	mux := newMux(t, nil, faucet.KeyBoth, false)

	t.Log("Given the need to report a faucet without a treasury.")
	{
		t.Logf("\tTest 0:\tWhen claiming.")
		{
			w, resp := do(mux, http.MethodPost, "/claim", `{"address":"bad","sessionId":"s","nonce":1}`, nil)
			if w.Code != http.StatusServiceUnavailable || resp["code"] != "ServiceUnavailable" {
				t.Fatalf("\t%s\tTest 0:\tShould get a 503: got %d: %s", failed, w.Code, w.Body.String())
			}
			t.Logf("\t%s\tTest 0:\tShould get a 503.", success)
		}

		t.Logf("\tTest 1:\tWhen asking for info.")
		{
			w, resp := do(mux, http.MethodGet, "/api/faucet/info", "", nil)
			if w.Code != http.StatusOK || resp["configured"] != false || resp["dripAmount"] != "0.05" || resp["cooldownHours"] != float64(24) {
				t.Fatalf("\t%s\tTest 1:\tShould report not configured: got %d: %s", failed, w.Code, w.Body.String())
			}
			t.Logf("\t%s\tTest 1:\tShould report not configured.", success)

			if _, exists := resp["balance"]; exists {
				t.Fatalf("\t%s\tTest 1:\tShould not report a balance: %s", failed, w.Body.String())
			}
			t.Logf("\t%s\tTest 1:\tShould not report a balance.", success)
		}
	}
}

func TestFaucetEmpty(t *testing.T) {
	mux := newMux(t, &treasury{balance: big.NewInt(1000)}, faucet.KeyBoth, false)

	t.Log("Given the need to report an empty treasury.")
	{
		t.Logf("\tTest 0:\tWhen claiming.")
		{
			w, resp := do(mux, http.MethodPost, "/claim", claimBody(t, mux, "", address), nil)
			if w.Code != http.StatusServiceUnavailable || resp["code"] != "FaucetEmpty" || resp["balance"] != "0.000000000000001" {
				t.Fatalf("\t%s\tTest 0:\tShould get a 503 with the balance: got %d: %s", failed, w.Code, w.Body.String())
			}
			t.Logf("\t%s\tTest 0:\tShould get a 503 with the balance.", success)
		}
	}
}

func TestTrustProxy(t *testing.T) {
	mux := newMux(t, &treasury{balance: big.NewInt(1e18)}, faucet.KeyIP, true)
	header := map[string]string{"X-Forwarded-For": "8.8.8.8"}

	t.Log("Given the need to rate limit clients behind a proxy.")
	{
		t.Logf("\tTest 0:\tWhen two addresses claim from the same forwarded ip.")
		{
			w, _ := do(mux, http.MethodPost, "/claim", claimBody(t, mux, "", address), header)
			if w.Code != http.StatusOK {
				t.Fatalf("\t%s\tTest 0:\tShould be able to claim once: got %d: %s", failed, w.Code, w.Body.String())
			}
			t.Logf("\t%s\tTest 0:\tShould be able to claim once.", success)

			w, resp := do(mux, http.MethodPost, "/claim", claimBody(t, mux, "", address2), header)
			if w.Code != http.StatusTooManyRequests || resp["code"] != "RateLimited" {
				t.Fatalf("\t%s\tTest 0:\tShould rate limit the ip: got %d: %s", failed, w.Code, w.Body.String())
			}
			t.Logf("\t%s\tTest 0:\tShould rate limit the ip.", success)
		}
	}
}

func TestPreflight(t *testing.T) {
	mux := newMux(t, nil, faucet.KeyBoth, false)

	t.Log("Given the need to support browser clients.")
	{
		t.Logf("\tTest 0:\tWhen sending a preflight request.")
		{
			w, _ := do(mux, http.MethodOptions, "/api/faucet/claim", "", nil)
			if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "*" {
				t.Fatalf("\t%s\tTest 0:\tShould get a 204 with cors headers: got %d: %v", failed, w.Code, w.Header())
			}
			t.Logf("\t%s\tTest 0:\tShould get a 204 with cors headers.", success)
		}
	}
}
