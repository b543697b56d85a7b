package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"
)

// GasPriceClient queries a scan-style gas tracker API (Etherscan, BSCScan,
// Polygonscan all share the response shape). It is advisory: any failure
// returns an error and the caller falls back to the node's suggestion.
type GasPriceClient struct {
	httpClient *http.Client
}

// NewGasPriceClient creates a new GasPriceClient instance
func NewGasPriceClient() *GasPriceClient {
	return &GasPriceClient{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// scanGasResponse is the shared gas oracle response of the *scan family.
type scanGasResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  struct {
		SafeGasPrice    string `json:"SafeGasPrice"`
		ProposeGasPrice string `json:"ProposeGasPrice"`
		FastGasPrice    string `json:"FastGasPrice"`
	} `json:"result"`
}

// GetGasPrice returns the tracker's proposed gas price in wei. trackerURL
// is the scan API root, e.g. https://api.bscscan.com/api.
func (c *GasPriceClient) GetGasPrice(ctx context.Context, trackerURL string) (*big.Int, error) {
	url := trackerURL + "?module=gastracker&action=gasoracle"

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gas tracker returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var gasResp scanGasResponse
	if err := json.Unmarshal(body, &gasResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if gasResp.Status != "1" {
		return nil, fmt.Errorf("gas tracker error: %s", gasResp.Message)
	}

	return gweiToWei(gasResp.Result.ProposeGasPrice)
}

// gweiToWei converts a decimal gwei string like "5" or "0.1" to wei.
func gweiToWei(gwei string) (*big.Int, error) {
	price, ok := new(big.Float).SetString(gwei)
	if !ok {
		return nil, fmt.Errorf("invalid gas price %q", gwei)
	}
	price.Mul(price, big.NewFloat(1e9))
	wei, _ := price.Int(nil)
	if wei.Sign() <= 0 {
		return nil, fmt.Errorf("non-positive gas price %q", gwei)
	}
	return wei, nil
}
