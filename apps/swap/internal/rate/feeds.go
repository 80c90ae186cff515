package rate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	feedRequestTimeout = 5 * time.Second
	feedRequestsPerSec = 2
	feedRequestBurst   = 5
)

// PriceFeed returns the dollar price of an asset symbol.
type PriceFeed interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// BinanceFeed quotes assets against USDT pairs on a Binance-compatible ticker
// endpoint. USDT itself is the quote currency, priced at 1.
type BinanceFeed struct {
	baseURL     string
	client      *http.Client
	rateLimiter *rate.Limiter
}

func NewBinanceFeed(baseURL string) *BinanceFeed {
	return &BinanceFeed{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: feedRequestTimeout},
		rateLimiter: rate.NewLimiter(rate.Limit(feedRequestsPerSec), feedRequestBurst),
	}
}

func (f *BinanceFeed) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if strings.EqualFold(symbol, "USDT") {
		return decimal.NewFromInt(1), nil
	}

	if err := f.rateLimiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	reqURL := fmt.Sprintf("%s?symbol=%sUSDT", f.baseURL, url.QueryEscape(strings.ToUpper(symbol)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to build ticker request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch ticker price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("ticker endpoint returned status %d", resp.StatusCode)
	}

	var payload struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode ticker response: %w", err)
	}

	price, err := decimal.NewFromString(payload.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed ticker price %q: %w", payload.Price, err)
	}

	if price.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("ticker returned non-positive price %s for %s", price, symbol)
	}

	return price, nil
}

// CoingeckoFeed quotes assets in USD on a CoinGecko-compatible simple price
// endpoint. Used as the fallback source.
type CoingeckoFeed struct {
	baseURL     string
	client      *http.Client
	rateLimiter *rate.Limiter
}

// Symbol to CoinGecko asset id for the assets the platform trades.
var coingeckoIDs = map[string]string{
	"USDT": "tether",
	"USDC": "usd-coin",
	"TRX":  "tron",
	"ETH":  "ethereum",
	"BTC":  "bitcoin",
}

func NewCoingeckoFeed(baseURL string) *CoingeckoFeed {
	return &CoingeckoFeed{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: feedRequestTimeout},
		rateLimiter: rate.NewLimiter(rate.Limit(feedRequestsPerSec), feedRequestBurst),
	}
}

func (f *CoingeckoFeed) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	assetID, ok := coingeckoIDs[strings.ToUpper(symbol)]
	if !ok {
		return decimal.Zero, fmt.Errorf("no asset id mapping for symbol %s", symbol)
	}

	if err := f.rateLimiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	reqURL := fmt.Sprintf("%s?ids=%s&vs_currencies=usd", f.baseURL, url.QueryEscape(assetID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to build price request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch asset price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price endpoint returned status %d", resp.StatusCode)
	}

	var payload map[string]struct {
		USD decimal.Decimal `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode price response: %w", err)
	}

	entry, ok := payload[assetID]
	if !ok {
		return decimal.Zero, fmt.Errorf("price response missing asset %s", assetID)
	}

	if entry.USD.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("price endpoint returned non-positive price %s for %s", entry.USD, symbol)
	}

	return entry.USD, nil
}
