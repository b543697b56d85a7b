package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"zap-backend/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

// RegistryClient vault registry API client
type RegistryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRegistryClient creates a new vault registry client
func NewRegistryClient(baseURL string, timeout time.Duration) *RegistryClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RegistryClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ApiVault represents a vault as returned by the registry API. A
// tokenAddress of "native" (or empty) means the vault accepts the chain's
// native asset.
type ApiVault struct {
	ID                  string `json:"id"`
	Network             string `json:"network"`
	EarnContractAddress string `json:"earnContractAddress"`
	TokenAddress        string `json:"tokenAddress"`
	Type                string `json:"type"`
}

// FetchAllVaults fetches the full vault list and maps it into the internal
// representation: "native" deposit tokens become the zero address.
func (c *RegistryClient) FetchAllVaults(ctx context.Context) ([]models.Vault, error) {
	reqURL := fmt.Sprintf("%s/vaults", c.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("registry API error (status %d): %s", resp.StatusCode, string(body))
	}

	var apiVaults []ApiVault
	if err := json.NewDecoder(resp.Body).Decode(&apiVaults); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	vaults := make([]models.Vault, 0, len(apiVaults))
	for _, v := range apiVaults {
		depositToken := common.Address{}
		if v.TokenAddress != "" && v.TokenAddress != "native" {
			depositToken = common.HexToAddress(v.TokenAddress)
		}
		vaults = append(vaults, models.Vault{
			ID:                  v.ID,
			ChainID:             v.Network,
			ContractAddress:     common.HexToAddress(v.EarnContractAddress),
			DepositTokenAddress: depositToken,
			Type:                models.VaultType(v.Type),
		})
	}
	return vaults, nil
}

// FetchZapSupport fetches the zap-supported token map: chain id -> lowercase
// token address -> supported.
func (c *RegistryClient) FetchZapSupport(ctx context.Context) (map[string]map[string]bool, error) {
	reqURL := fmt.Sprintf("%s/zap/swaps", c.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("registry API error (status %d): %s", resp.StatusCode, string(body))
	}

	var raw map[string]map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	support := make(map[string]map[string]bool, len(raw))
	for chainID, tokens := range raw {
		chainSupport := make(map[string]bool, len(tokens))
		for addr := range tokens {
			chainSupport[toLowerHex(addr)] = true
		}
		support[chainID] = chainSupport
	}
	return support, nil
}

func toLowerHex(s string) string {
	return strings.ToLower(common.HexToAddress(s).Hex())
}
