package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	coingeckoAPI = "https://api.coingecko.com/api/v3"
)

// CoinGeckoClient client for CoinGecko API
type CoinGeckoClient struct {
	baseURL    string
	coinID     string
	vsCurrency string
	client     *http.Client
}

// NewCoinGeckoClient creates a new CoinGecko client quoting coinID in vsCurrency
func NewCoinGeckoClient(baseURL, coinID, vsCurrency string) *CoinGeckoClient {
	if baseURL == "" {
		baseURL = coingeckoAPI
	}
	return &CoinGeckoClient{
		baseURL:    baseURL,
		coinID:     coinID,
		vsCurrency: vsCurrency,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Currency returns the fiat currency code rates are quoted in
func (c *CoinGeckoClient) Currency() string {
	return c.vsCurrency
}

// PriceResponse response from CoinGecko API: coin id -> currency -> price
type PriceResponse map[string]map[string]float64

// GetRate gets the native coin to fiat exchange rate
func (c *CoinGeckoClient) GetRate(ctx context.Context) (string, error) {
	query := url.Values{}
	query.Set("ids", c.coinID)
	query.Set("vs_currencies", c.vsCurrency)
	endpoint := fmt.Sprintf("%s/simple/price?%s", c.baseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build rate request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get rate: status %d", resp.StatusCode)
	}

	var priceResp PriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&priceResp); err != nil {
		return "", fmt.Errorf("failed to decode rate: %w", err)
	}

	price, ok := priceResp[c.coinID][c.vsCurrency]
	if !ok {
		return "", fmt.Errorf("no %s rate for %s", c.vsCurrency, c.coinID)
	}

	rate := strconv.FormatFloat(price, 'f', 2, 64)
	return rate, nil
}
