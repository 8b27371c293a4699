package gateway

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// dropsPerXRP converts between the JSON-RPC drops representation and whole
// native units.
var dropsPerXRP = decimal.NewFromInt(1_000_000)

var addressPattern = regexp.MustCompile(`^r[1-9A-HJ-NP-Za-km-z]{24,34}$`)

// XRPLClient talks to a rippled JSON-RPC endpoint. Signing uses the server's
// sign-and-submit mode, so the signing secret never leaves this process in
// any other form.
type XRPLClient struct {
	endpoint   string
	httpClient *http.Client
}

func NewXRPLClient(endpoint string) *XRPLClient {
	return &XRPLClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

var _ Ledger = (*XRPLClient)(nil)

type rpcRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type rpcResult struct {
	Status       string          `json:"status"`
	Error        string          `json:"error"`
	ErrorMessage string          `json:"error_message"`
	AccountData  *accountData    `json:"account_data"`
	Lines        []trustLine     `json:"lines"`
	EngineResult string          `json:"engine_result"`
	EngineMsg    string          `json:"engine_result_message"`
	TxJSON       json.RawMessage `json:"tx_json"`
	Transactions []accountTx     `json:"transactions"`
}

type accountData struct {
	Balance string `json:"Balance"` // drops
}

type trustLine struct {
	Account  string `json:"account"` // issuer
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
	Limit    string `json:"limit"`
}

type accountTx struct {
	Tx struct {
		Hash  string `json:"hash"`
		Memos []struct {
			Memo struct {
				MemoData string `json:"MemoData"`
			} `json:"Memo"`
		} `json:"Memos"`
	} `json:"tx"`
}

func (c *XRPLClient) call(ctx context.Context, method string, params any) (*rpcResult, error) {
	body, err := json.Marshal(rpcRequest{Method: method, Params: []any{params}})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc %s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rpc %s: unexpected status %d", method, resp.StatusCode)
	}

	var envelope struct {
		Result rpcResult `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("rpc %s: decode: %w", method, err)
	}
	return &envelope.Result, nil
}

// AccountBalance returns native and issued balances via account_info and
// account_lines.
func (c *XRPLClient) AccountBalance(ctx context.Context, address string) (*Balances, error) {
	info, err := c.call(ctx, "account_info", map[string]any{
		"account":      address,
		"ledger_index": "validated",
	})
	if err != nil {
		return nil, err
	}
	if info.Error != "" || info.AccountData == nil {
		return nil, fmt.Errorf("account_info %s: %s", address, rpcErrString(info))
	}
	drops, err := decimal.NewFromString(info.AccountData.Balance)
	if err != nil {
		return nil, fmt.Errorf("account_info %s: bad balance %q", address, info.AccountData.Balance)
	}

	balances := &Balances{
		Native: drops.Div(dropsPerXRP),
		Issued: map[string]decimal.Decimal{},
	}

	lines, err := c.call(ctx, "account_lines", map[string]any{
		"account":      address,
		"ledger_index": "validated",
	})
	if err != nil {
		return nil, err
	}
	for _, l := range lines.Lines {
		bal, err := decimal.NewFromString(l.Balance)
		if err != nil {
			continue
		}
		balances.Issued[l.Currency+"/"+l.Account] = bal
	}
	return balances, nil
}

// IsValidAddress reports whether s is syntactically a classic ledger address.
// It does not touch the network.
func IsValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// ValidateDestination checks address syntax, then confirms the account exists
// on the validated ledger.
func (c *XRPLClient) ValidateDestination(ctx context.Context, address string) error {
	if !addressPattern.MatchString(address) {
		return ErrInvalidDestination
	}
	res, err := c.call(ctx, "account_info", map[string]any{
		"account":      address,
		"ledger_index": "validated",
	})
	if err != nil {
		return err
	}
	if res.Error == "actNotFound" {
		return ErrInvalidDestination
	}
	if res.Error != "" {
		return fmt.Errorf("account_info %s: %s", address, rpcErrString(res))
	}
	return nil
}

// ValidateTrustline confirms the destination holds a line to the issuer for
// the currency, with limit headroom covering the required amount.
func (c *XRPLClient) ValidateTrustline(ctx context.Context, destination, issuer, currencyCode string, required decimal.Decimal) error {
	res, err := c.call(ctx, "account_lines", map[string]any{
		"account":      destination,
		"peer":         issuer,
		"ledger_index": "validated",
	})
	if err != nil {
		return err
	}
	if res.Error != "" {
		return fmt.Errorf("account_lines %s: %s", destination, rpcErrString(res))
	}
	for _, l := range res.Lines {
		if l.Currency != currencyCode || l.Account != issuer {
			continue
		}
		limit, err := decimal.NewFromString(l.Limit)
		if err != nil {
			continue
		}
		balance, err := decimal.NewFromString(l.Balance)
		if err != nil {
			continue
		}
		if balance.Add(required).LessThanOrEqual(limit) {
			return nil
		}
	}
	return ErrTrustlineMissing
}

// SendPayment submits a Payment transaction in sign-and-submit mode and
// returns the transaction hash on a tesSUCCESS engine result.
func (c *XRPLClient) SendPayment(ctx context.Context, p Payment) (string, error) {
	txJSON := map[string]any{
		"TransactionType": "Payment",
		"Account":         p.FromAddress,
		"Destination":     p.ToAddress,
	}
	if p.CurrencyCode == "" {
		txJSON["Amount"] = p.Amount.Mul(dropsPerXRP).Round(0).String()
	} else {
		txJSON["Amount"] = map[string]string{
			"currency": p.CurrencyCode,
			"issuer":   p.IssuerAddress,
			"value":    p.Amount.String(),
		}
	}
	if len(p.Memos) > 0 {
		memos := make([]map[string]any, 0, len(p.Memos))
		for _, m := range p.Memos {
			memos = append(memos, map[string]any{
				"Memo": map[string]string{
					"MemoData": strings.ToUpper(hex.EncodeToString([]byte(m))),
				},
			})
		}
		txJSON["Memos"] = memos
	}

	res, err := c.call(ctx, "submit", map[string]any{
		"secret":  p.FromSecret,
		"tx_json": txJSON,
	})
	if err != nil {
		return "", err
	}
	if res.Error != "" {
		return "", &PaymentError{Code: res.Error, Message: rpcErrString(res)}
	}
	if res.EngineResult != "tesSUCCESS" {
		return "", &PaymentError{Code: res.EngineResult, Message: res.EngineMsg}
	}
	var tx struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(res.TxJSON, &tx); err != nil || tx.Hash == "" {
		return "", &PaymentError{Message: "submit succeeded but no transaction hash returned"}
	}
	return tx.Hash, nil
}

// FindTransactionByMemo scans account_tx for a transaction whose memo decodes
// to the given string.
func (c *XRPLClient) FindTransactionByMemo(ctx context.Context, account, memo string) (string, bool, error) {
	res, err := c.call(ctx, "account_tx", map[string]any{
		"account":          account,
		"ledger_index_min": -1,
		"ledger_index_max": -1,
		"limit":            200,
	})
	if err != nil {
		return "", false, err
	}
	if res.Error != "" {
		return "", false, fmt.Errorf("account_tx %s: %s", account, rpcErrString(res))
	}
	want := strings.ToUpper(hex.EncodeToString([]byte(memo)))
	for _, t := range res.Transactions {
		for _, m := range t.Tx.Memos {
			if strings.EqualFold(m.Memo.MemoData, want) {
				return t.Tx.Hash, true, nil
			}
		}
	}
	return "", false, nil
}

func rpcErrString(r *rpcResult) string {
	if r.ErrorMessage != "" {
		return r.ErrorMessage
	}
	if r.Error != "" {
		return r.Error
	}
	return "unknown rpc error"
}
