package services

import (
	"context"
	"fmt"
	"strings"

	"zap-backend/internal/clients"
	"zap-backend/internal/models"
	"zap-backend/internal/utils"

	"github.com/sirupsen/logrus"
)

// nativeDecimals is the decimal count of every supported chain's native
// asset.
const nativeDecimals = 18

// VaultService resolves vaults from the registry and their deposit tokens
// from the chain.
type VaultService struct {
	registry *clients.RegistryClient
	reader   clients.ChainReader
}

// NewVaultService creates a new VaultService instance
func NewVaultService(registry *clients.RegistryClient, reader clients.ChainReader) *VaultService {
	return &VaultService{registry: registry, reader: reader}
}

// LoadVault finds a vault by id in the registry, validates its type, and
// resolves its deposit token (native pseudo-token for the zero address,
// otherwise an on-chain metadata read). A miss includes up to five similar
// vault ids in the error to direct the user.
func (s *VaultService) LoadVault(ctx context.Context, vaultID string) (*models.Vault, *models.Token, error) {
	all, err := s.registry.FetchAllVaults(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch vaults: %w", err)
	}
	logrus.WithField("count", len(all)).Debug("fetched vault registry")

	var vault *models.Vault
	for i := range all {
		if all[i].ID == vaultID {
			vault = &all[i]
			break
		}
	}
	if vault == nil {
		suggestions := similarVaultIDs(all, vaultID, 5)
		if len(suggestions) > 0 {
			return nil, nil, models.Validationf("vault '%s' not found. Similar vaults: %s",
				vaultID, strings.Join(suggestions, ", "))
		}
		return nil, nil, models.Validationf("vault '%s' not found", vaultID)
	}

	if vault.Type != models.VaultTypeStandard && vault.Type != models.VaultTypeERC4626 {
		return nil, nil, models.Validationf("only standard/erc4626 vaults are supported; vault '%s' is type '%s'",
			vault.ID, vault.Type)
	}

	token, err := s.resolveDepositToken(ctx, vault)
	if err != nil {
		return nil, nil, err
	}

	logrus.WithFields(logrus.Fields{
		"vault": vault.ID,
		"chain": vault.ChainID,
		"token": token.Symbol,
	}).Info("vault loaded")
	return vault, token, nil
}

func (s *VaultService) resolveDepositToken(ctx context.Context, vault *models.Vault) (*models.Token, error) {
	if utils.IsNative(vault.DepositTokenAddress) {
		return &models.Token{
			ChainID:  vault.ChainID,
			Decimals: nativeDecimals,
			Symbol:   "NATIVE",
		}, nil
	}

	decimals, symbol, err := s.reader.ERC20Meta(ctx, vault.ChainID, vault.DepositTokenAddress)
	if err != nil {
		return nil, &models.ChainReadError{Op: "erc20 metadata", Err: err}
	}
	return &models.Token{
		ChainID:  vault.ChainID,
		Address:  vault.DepositTokenAddress,
		Decimals: decimals,
		Symbol:   symbol,
	}, nil
}

// ZapSupportedTokens returns the lowercase token-address support map for a
// chain, from the registry's zap swaps listing.
func (s *VaultService) ZapSupportedTokens(ctx context.Context, chainID string) (map[string]bool, error) {
	support, err := s.registry.FetchZapSupport(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch zap support: %w", err)
	}
	return support[chainID], nil
}

func similarVaultIDs(all []models.Vault, input string, limit int) []string {
	needle := strings.ToLower(input)
	var similar []string
	for _, v := range all {
		if strings.Contains(strings.ToLower(v.ID), needle) {
			similar = append(similar, v.ID)
			if len(similar) == limit {
				break
			}
		}
	}
	return similar
}
