package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// ErrBadRate is returned when the upstream quotes a zero or negative rate.
var ErrBadRate = errors.New("exchange rate must be positive")

// NativeSymbol is the ticker quoted for native transfers.
const NativeSymbol = "XRP"

// Source quotes the current USD rate for a ticker symbol. Callers pass
// NativeSymbol or the issued token's currency code.
type Source interface {
	Rate(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// HTTPSource fetches quotes from a JSON price endpoint of the form
// GET {base}/price?symbol=XRP returning {"symbol":"XRP","price_usd":"0.60"}.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

var _ Source = (*HTTPSource)(nil)

func (s *HTTPSource) Rate(ctx context.Context, symbol string) (decimal.Decimal, error) {
	u := s.baseURL + "/price?symbol=" + url.QueryEscape(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rate fetch %s: %w", symbol, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rate fetch %s: unexpected status %d", symbol, resp.StatusCode)
	}
	var body struct {
		PriceUSD decimal.Decimal `json:"price_usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("rate fetch %s: decode: %w", symbol, err)
	}
	if !body.PriceUSD.IsPositive() {
		return decimal.Zero, ErrBadRate
	}
	return body.PriceUSD, nil
}
