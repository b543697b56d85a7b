package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"zap-backend/internal/clients"
	"zap-backend/internal/models"
	"zap-backend/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vaultRegistry(t *testing.T, vaults []clients.ApiVault) *clients.RegistryClient {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/vaults", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(vaults)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return clients.NewRegistryClient(server.URL, 0)
}

func TestLoadVault(t *testing.T) {
	ctx := context.Background()

	t.Run("ResolvesERC20DepositToken", func(t *testing.T) {
		registry := vaultRegistry(t, []clients.ApiVault{{
			ID:                  "cake-cakev2",
			Network:             "bsc",
			EarnContractAddress: testVaultAddr.Hex(),
			TokenAddress:        testDepositAddr.Hex(),
			Type:                "standard",
		}})
		svc := NewVaultService(registry, newFakeChain())

		vault, token, err := svc.LoadVault(ctx, "cake-cakev2")
		require.NoError(t, err)
		assert.Equal(t, models.VaultTypeStandard, vault.Type)
		assert.Equal(t, testDepositAddr, token.Address)
		assert.Equal(t, 18, token.Decimals)
		assert.Equal(t, "FAKE", token.Symbol)
	})

	t.Run("NativeTokenAddressMapsToZero", func(t *testing.T) {
		registry := vaultRegistry(t, []clients.ApiVault{{
			ID:                  "venus-bnb",
			Network:             "bsc",
			EarnContractAddress: testVaultAddr.Hex(),
			TokenAddress:        "native",
			Type:                "standard",
		}})
		svc := NewVaultService(registry, newFakeChain())

		vault, token, err := svc.LoadVault(ctx, "venus-bnb")
		require.NoError(t, err)
		assert.True(t, utils.IsNative(vault.DepositTokenAddress))
		assert.Equal(t, 18, token.Decimals)
		assert.Equal(t, utils.ZeroAddress, token.Address)
	})

	t.Run("RejectsUnsupportedVaultType", func(t *testing.T) {
		registry := vaultRegistry(t, []clients.ApiVault{{
			ID:                  "some-gov-vault",
			Network:             "bsc",
			EarnContractAddress: testVaultAddr.Hex(),
			TokenAddress:        testDepositAddr.Hex(),
			Type:                "gov",
		}})
		svc := NewVaultService(registry, newFakeChain())

		_, _, err := svc.LoadVault(ctx, "some-gov-vault")
		var validation *models.ValidationError
		require.ErrorAs(t, err, &validation)
		assert.Contains(t, validation.Error(), "gov")
	})

	t.Run("MissSuggestsSimilarIDs", func(t *testing.T) {
		registry := vaultRegistry(t, []clients.ApiVault{
			{ID: "cake-bnb", Network: "bsc", EarnContractAddress: testVaultAddr.Hex(), TokenAddress: testDepositAddr.Hex(), Type: "standard"},
			{ID: "cake-busd", Network: "bsc", EarnContractAddress: testVaultAddr.Hex(), TokenAddress: testDepositAddr.Hex(), Type: "standard"},
		})
		svc := NewVaultService(registry, newFakeChain())

		_, _, err := svc.LoadVault(ctx, "CAKE")
		var validation *models.ValidationError
		require.ErrorAs(t, err, &validation)
		assert.Contains(t, validation.Error(), "cake-bnb")
		assert.Contains(t, validation.Error(), "cake-busd")
	})
}
