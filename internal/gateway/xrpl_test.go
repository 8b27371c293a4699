package gateway

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

// fakeRippled serves canned JSON-RPC results keyed by method.
func fakeRippled(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad rpc body: %v", err)
		}
		result, ok := results[req.Method]
		if !ok {
			t.Errorf("unexpected rpc method %q", req.Method)
			result = `{"error":"unknownCmd"}`
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":` + result + `}`))
	}))
}

func TestAccountBalance(t *testing.T) {
	srv := fakeRippled(t, map[string]string{
		"account_info":  `{"status":"success","account_data":{"Balance":"25000000"}}`,
		"account_lines": `{"status":"success","lines":[{"account":"rIssuer","currency":"USD","balance":"150.5","limit":"1000"}]}`,
	})
	defer srv.Close()

	c := NewXRPLClient(srv.URL)
	b, err := c.AccountBalance(context.Background(), "rPayer")
	if err != nil {
		t.Fatalf("AccountBalance: %v", err)
	}
	if !b.Native.Equal(decimal.NewFromInt(25)) {
		t.Errorf("native: got %s, want 25", b.Native)
	}
	if got := b.IssuedBalance("USD", "rIssuer"); !got.Equal(decimal.RequireFromString("150.5")) {
		t.Errorf("issued: got %s, want 150.5", got)
	}
	if got := b.IssuedBalance("EUR", "rIssuer"); !got.IsZero() {
		t.Errorf("unknown line: got %s, want 0", got)
	}
}

func TestValidateDestinationSyntax(t *testing.T) {
	c := NewXRPLClient("http://unused.invalid")
	for _, addr := range []string{"", "xNotAnAddress", "r0000", "r!!!"} {
		if err := c.ValidateDestination(context.Background(), addr); !errors.Is(err, ErrInvalidDestination) {
			t.Errorf("ValidateDestination(%q): want ErrInvalidDestination, got %v", addr, err)
		}
	}
}

func TestValidateDestinationNotFound(t *testing.T) {
	srv := fakeRippled(t, map[string]string{
		"account_info": `{"status":"error","error":"actNotFound","error_message":"Account not found."}`,
	})
	defer srv.Close()
	c := NewXRPLClient(srv.URL)
	err := c.ValidateDestination(context.Background(), "rN7n7otQDd6FczFgLdSqtcsAUxDkw6fzRH")
	if !errors.Is(err, ErrInvalidDestination) {
		t.Errorf("want ErrInvalidDestination, got %v", err)
	}
}

func TestValidateTrustline(t *testing.T) {
	srv := fakeRippled(t, map[string]string{
		"account_lines": `{"status":"success","lines":[{"account":"rIssuer","currency":"USD","balance":"900","limit":"1000"}]}`,
	})
	defer srv.Close()
	c := NewXRPLClient(srv.URL)
	ctx := context.Background()

	// 900 held + 50 incoming fits under the 1000 limit.
	if err := c.ValidateTrustline(ctx, "rDest", "rIssuer", "USD", decimal.NewFromInt(50)); err != nil {
		t.Errorf("within limit: %v", err)
	}
	// 900 + 200 exceeds the limit.
	if err := c.ValidateTrustline(ctx, "rDest", "rIssuer", "USD", decimal.NewFromInt(200)); !errors.Is(err, ErrTrustlineMissing) {
		t.Errorf("over limit: want ErrTrustlineMissing, got %v", err)
	}
	// No line for this currency at all.
	if err := c.ValidateTrustline(ctx, "rDest", "rIssuer", "EUR", decimal.NewFromInt(1)); !errors.Is(err, ErrTrustlineMissing) {
		t.Errorf("missing line: want ErrTrustlineMissing, got %v", err)
	}
}

func TestSendPaymentSuccess(t *testing.T) {
	srv := fakeRippled(t, map[string]string{
		"submit": `{"status":"success","engine_result":"tesSUCCESS","tx_json":{"hash":"ABC123DEF"}}`,
	})
	defer srv.Close()
	c := NewXRPLClient(srv.URL)
	hash, err := c.SendPayment(context.Background(), Payment{
		FromSecret:  "sSecret",
		FromAddress: "rPayer",
		ToAddress:   "rDest",
		Amount:      decimal.NewFromInt(200),
		Memos:       []string{"deadbeef"},
	})
	if err != nil {
		t.Fatalf("SendPayment: %v", err)
	}
	if hash != "ABC123DEF" {
		t.Errorf("hash: got %q", hash)
	}
}

func TestSendPaymentEngineFailure(t *testing.T) {
	srv := fakeRippled(t, map[string]string{
		"submit": `{"status":"success","engine_result":"tecUNFUNDED_PAYMENT","engine_result_message":"Insufficient funds."}`,
	})
	defer srv.Close()
	c := NewXRPLClient(srv.URL)
	_, err := c.SendPayment(context.Background(), Payment{FromAddress: "rPayer", ToAddress: "rDest", Amount: decimal.NewFromInt(1)})
	var pe *PaymentError
	if !errors.As(err, &pe) {
		t.Fatalf("want PaymentError, got %v", err)
	}
	if pe.Code != "tecUNFUNDED_PAYMENT" {
		t.Errorf("code: got %q", pe.Code)
	}
}

func TestFindTransactionByMemo(t *testing.T) {
	memo := "a1b2c3"
	hexMemo := strings.ToUpper(hex.EncodeToString([]byte(memo)))
	srv := fakeRippled(t, map[string]string{
		"account_tx": `{"status":"success","transactions":[
			{"tx":{"hash":"TX1","Memos":[{"Memo":{"MemoData":"41414141"}}]}},
			{"tx":{"hash":"TX2","Memos":[{"Memo":{"MemoData":"` + hexMemo + `"}}]}}
		]}`,
	})
	defer srv.Close()
	c := NewXRPLClient(srv.URL)

	hash, found, err := c.FindTransactionByMemo(context.Background(), "rPayer", memo)
	if err != nil || !found {
		t.Fatalf("FindTransactionByMemo: found=%v err=%v", found, err)
	}
	if hash != "TX2" {
		t.Errorf("hash: got %q, want TX2", hash)
	}

	_, found, err = c.FindTransactionByMemo(context.Background(), "rPayer", "nope")
	if err != nil || found {
		t.Errorf("absent memo: found=%v err=%v", found, err)
	}
}
