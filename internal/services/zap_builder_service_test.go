package services

import (
	"context"
	"math/big"
	"testing"

	"zap-backend/internal/config"
	"zap-backend/internal/models"
	"zap-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testVaultAddr   = common.HexToAddress("0x00000000000000000000000000000000000000B1")
	testRouterAddr  = "0x00000000000000000000000000000000000000D1"
	testFromAddr    = common.HexToAddress("0x00000000000000000000000000000000000000F1")
	testDepositAddr = common.HexToAddress("0x00000000000000000000000000000000000000E1")
)

func big2e18() *big.Int {
	return new(big.Int).Mul(big.NewInt(2), big.NewInt(1e18))
}

// swapStub is a provider whose Swap returns a canned transaction.
type swapStub struct {
	stubProvider
	swapToAmount string
}

func (p *swapStub) Swap(ctx context.Context, quote *models.Quote, from common.Address, slippage float64) (*models.SwapResult, error) {
	toAmount := decimal.RequireFromString(p.swapToAmount)
	return &models.SwapResult{
		Quote: models.Quote{
			ProviderID: p.id,
			FromToken:  quote.FromToken,
			FromAmount: quote.FromAmount,
			ToToken:    quote.ToToken,
			ToAmount:   toAmount,
		},
		ToAmountMin: utils.ApplySlippage(toAmount, slippage, quote.ToToken.Decimals),
		Tx: models.SwapTx{
			ToAddress:     common.HexToAddress("0x00000000000000000000000000000000000000A1"),
			Data:          "0xdeadbeef",
			Value:         "0",
			InputPosition: utils.NoInsertIndex,
		},
	}, nil
}

func builderTestConfig() *config.Config {
	return &config.Config{
		Networks: map[string]config.NetworkConfig{
			"bsc": {
				ChainID:   56,
				ZapRouter: testRouterAddr,
				Enabled:   true,
			},
		},
	}
}

func builderTestVault() models.Vault {
	return models.Vault{
		ID:                  "venus-bnb",
		ChainID:             "bsc",
		ContractAddress:     testVaultAddr,
		DepositTokenAddress: testDepositAddr,
		Type:                models.VaultTypeStandard,
	}
}

func testDepositToken() models.Token {
	return models.Token{ChainID: "bsc", Address: testDepositAddr, Decimals: 18, Symbol: "WANT"}
}

func TestBuildDeposit(t *testing.T) {
	ctx := context.Background()

	t.Run("SwapThenVaultStepOrder", func(t *testing.T) {
		provider := &swapStub{stubProvider: stubProvider{id: "one-inch"}, swapToAmount: "10"}
		quotes := NewQuoteService([]SwapProvider{provider})
		chain := newFakeChain()
		planner := NewVaultPlannerService(chain)
		builder := NewZapBuilderService(builderTestConfig(), quotes, planner)

		quote := &models.Quote{
			ProviderID: "one-inch",
			FromToken:  models.Token{ChainID: "bsc", Address: testFromAddr, Decimals: 18, Symbol: "FROM"},
			FromAmount: decimal.RequireFromString("5"),
			ToToken:    testDepositToken(),
			ToAmount:   decimal.RequireFromString("10"),
		}

		built, err := builder.BuildDeposit(ctx, builderTestVault(), quote, testDepositToken(), 0.01)
		require.NoError(t, err)

		require.Len(t, built.Request.Steps, 2)
		assert.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000A1"), built.Request.Steps[0].Target, "swap step first")
		assert.Equal(t, testVaultAddr, built.Request.Steps[1].Target, "vault deposit step second")

		require.Len(t, built.Request.Order.Inputs, 1)
		assert.Equal(t, testFromAddr, built.Request.Order.Inputs[0].Token)
		assert.Equal(t, "5000000000000000000", built.Request.Order.Inputs[0].Amount)
	})

	t.Run("OutputsRequiredSharesFirstThenDust", func(t *testing.T) {
		provider := &swapStub{stubProvider: stubProvider{id: "one-inch"}, swapToAmount: "10"}
		quotes := NewQuoteService([]SwapProvider{provider})
		chain := newFakeChain()
		chain.ppfs = big2e18()
		planner := NewVaultPlannerService(chain)
		builder := NewZapBuilderService(builderTestConfig(), quotes, planner)

		quote := &models.Quote{
			ProviderID: "one-inch",
			FromToken:  models.Token{ChainID: "bsc", Address: testFromAddr, Decimals: 18, Symbol: "FROM"},
			FromAmount: decimal.RequireFromString("5"),
			ToToken:    testDepositToken(),
			ToAmount:   decimal.RequireFromString("10"),
		}

		built, err := builder.BuildDeposit(ctx, builderTestVault(), quote, testDepositToken(), 0.01)
		require.NoError(t, err)

		// shares entry, then dust entries for the swap source and output
		require.Len(t, built.Request.Order.Outputs, 3)
		assert.Equal(t, testVaultAddr, built.Request.Order.Outputs[0].Token)
		assert.NotEqual(t, "0", built.Request.Order.Outputs[0].MinOutputAmount)
		assert.Equal(t, testFromAddr, built.Request.Order.Outputs[1].Token)
		assert.Equal(t, "0", built.Request.Order.Outputs[1].MinOutputAmount)
		assert.Equal(t, testDepositAddr, built.Request.Order.Outputs[2].Token)
		assert.Equal(t, "0", built.Request.Order.Outputs[2].MinOutputAmount)
	})

	t.Run("NoSwapQuoteSkipsSwapStep", func(t *testing.T) {
		quotes := NewQuoteService(nil)
		chain := newFakeChain()
		planner := NewVaultPlannerService(chain)
		builder := NewZapBuilderService(builderTestConfig(), quotes, planner)

		quote := &models.Quote{
			ProviderID: models.NoSwapProviderID,
			FromToken:  testDepositToken(),
			FromAmount: decimal.RequireFromString("5"),
			ToToken:    testDepositToken(),
			ToAmount:   decimal.RequireFromString("5"),
		}

		built, err := builder.BuildDeposit(ctx, builderTestVault(), quote, testDepositToken(), 0.01)
		require.NoError(t, err)

		require.Len(t, built.Request.Steps, 1, "no swap step for same-token deposits")
		assert.Equal(t, testVaultAddr, built.Request.Steps[0].Target)

		// from and to dust entries collapse into one
		require.Len(t, built.Request.Order.Outputs, 2)
		assert.Equal(t, testVaultAddr, built.Request.Order.Outputs[0].Token)
		assert.Equal(t, testDepositAddr, built.Request.Order.Outputs[1].Token)
	})

	t.Run("UnsupportedChainRejected", func(t *testing.T) {
		quotes := NewQuoteService(nil)
		chain := newFakeChain()
		planner := NewVaultPlannerService(chain)
		builder := NewZapBuilderService(builderTestConfig(), quotes, planner)

		vault := builderTestVault()
		vault.ChainID = "fantom"

		quote := &models.Quote{
			ProviderID: models.NoSwapProviderID,
			FromToken:  testDepositToken(),
			FromAmount: decimal.RequireFromString("5"),
			ToToken:    testDepositToken(),
			ToAmount:   decimal.RequireFromString("5"),
		}

		_, err := builder.BuildDeposit(ctx, vault, quote, testDepositToken(), 0.01)
		var unsupported *models.UnsupportedChainError
		assert.ErrorAs(t, err, &unsupported)
	})

	t.Run("UnknownProviderRejected", func(t *testing.T) {
		quotes := NewQuoteService(nil)
		chain := newFakeChain()
		planner := NewVaultPlannerService(chain)
		builder := NewZapBuilderService(builderTestConfig(), quotes, planner)

		quote := &models.Quote{
			ProviderID: "vanished",
			FromToken:  models.Token{ChainID: "bsc", Address: testFromAddr, Decimals: 18},
			FromAmount: decimal.RequireFromString("5"),
			ToToken:    testDepositToken(),
			ToAmount:   decimal.RequireFromString("10"),
		}

		_, err := builder.BuildDeposit(ctx, builderTestVault(), quote, testDepositToken(), 0.01)
		var validation *models.ValidationError
		assert.ErrorAs(t, err, &validation)
	})
}

func TestDedupOutputs(t *testing.T) {
	a := common.HexToAddress("0x00000000000000000000000000000000000000AA")
	outputs := []models.OrderOutput{
		{Token: a, MinOutputAmount: "100"},
		{Token: common.HexToAddress("0x00000000000000000000000000000000000000aa"), MinOutputAmount: "0"},
		{Token: common.HexToAddress("0x00000000000000000000000000000000000000BB"), MinOutputAmount: "0"},
	}

	deduped := dedupOutputs(outputs)
	require.Len(t, deduped, 2)
	assert.Equal(t, "100", deduped[0].MinOutputAmount, "first (required) entry wins")
}
