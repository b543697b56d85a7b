package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"zap-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
)

// OneInchClient 1inch swap API client, proxied through the zap API
// (providers/oneinch/{chainId}/quote and /swap).
type OneInchClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOneInchClient creates a new 1inch client. baseURL is the zap API root,
// e.g. https://api.beefy.finance/zap.
func NewOneInchClient(baseURL string, timeout time.Duration) *OneInchClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OneInchClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// OneInchQuoteRequest represents a 1inch quote request. Amount is in base
// units of the source token.
type OneInchQuoteRequest struct {
	ChainID string
	Src     common.Address
	Dst     common.Address
	Amount  string
}

// OneInchQuoteResponse represents a 1inch quote response
type OneInchQuoteResponse struct {
	DstAmount string `json:"dstAmount"`
}

// OneInchSwapRequest represents a 1inch swap request. From is the address
// that will execute the swap (the zap router). Slippage is a percentage on
// the wire (1 = 1%).
type OneInchSwapRequest struct {
	ChainID  string
	From     common.Address
	Src      common.Address
	Dst      common.Address
	Amount   string
	Slippage float64
}

// OneInchSwapResponse represents a 1inch swap response
type OneInchSwapResponse struct {
	DstAmount string `json:"dstAmount"`
	Tx        struct {
		From  string `json:"from"`
		To    string `json:"to"`
		Data  string `json:"data"`
		Value string `json:"value"`
	} `json:"tx"`
}

// GetQuote gets a price estimate from 1inch. Native addresses are remapped
// to the 1inch native sentinel on the wire.
func (c *OneInchClient) GetQuote(ctx context.Context, req *OneInchQuoteRequest) (*OneInchQuoteResponse, error) {
	params := url.Values{}
	params.Add("src", utils.ToOneInchAddress(req.Src).Hex())
	params.Add("dst", utils.ToOneInchAddress(req.Dst).Hex())
	params.Add("amount", req.Amount)

	reqURL := fmt.Sprintf("%s/providers/oneinch/%s/quote?%s", c.baseURL, req.ChainID, params.Encode())

	var quoteResp OneInchQuoteResponse
	if err := c.get(ctx, reqURL, &quoteResp); err != nil {
		return nil, err
	}
	return &quoteResp, nil
}

// GetSwap gets a firm execution quote plus the transaction that performs it.
func (c *OneInchClient) GetSwap(ctx context.Context, req *OneInchSwapRequest) (*OneInchSwapResponse, error) {
	params := url.Values{}
	params.Add("from", req.From.Hex())
	params.Add("src", utils.ToOneInchAddress(req.Src).Hex())
	params.Add("dst", utils.ToOneInchAddress(req.Dst).Hex())
	params.Add("amount", req.Amount)
	params.Add("slippage", fmt.Sprintf("%g", req.Slippage*100))
	params.Add("disableEstimate", "true")

	reqURL := fmt.Sprintf("%s/providers/oneinch/%s/swap?%s", c.baseURL, req.ChainID, params.Encode())

	var swapResp OneInchSwapResponse
	if err := c.get(ctx, reqURL, &swapResp); err != nil {
		return nil, err
	}
	return &swapResp, nil
}

func (c *OneInchClient) get(ctx context.Context, reqURL string, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("1inch API error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
