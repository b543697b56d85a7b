package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"zap-backend/internal/clients"
	"zap-backend/internal/config"
	"zap-backend/internal/events"
	"zap-backend/internal/models"
	"zap-backend/internal/repository"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipelineProvider quotes 1:1 and optionally fails for one vault.
type pipelineProvider struct {
	failVault  string
	gotAmounts []decimal.Decimal
}

func (p *pipelineProvider) ID() string { return "one-inch" }

func (p *pipelineProvider) Quote(ctx context.Context, req QuoteRequest) (*models.Quote, error) {
	if req.Vault.ID == p.failVault {
		return nil, errors.New("provider rejected vault")
	}
	p.gotAmounts = append(p.gotAmounts, req.FromAmount)
	return &models.Quote{
		ProviderID: p.ID(),
		FromToken:  req.FromToken,
		FromAmount: req.FromAmount,
		ToToken:    req.ToToken,
		ToAmount:   req.FromAmount,
	}, nil
}

func (p *pipelineProvider) Swap(ctx context.Context, quote *models.Quote, from common.Address, slippage float64) (*models.SwapResult, error) {
	return &models.SwapResult{
		Quote:       *quote,
		ToAmountMin: quote.ToAmount,
		Tx: models.SwapTx{
			ToAddress: common.HexToAddress("0x00000000000000000000000000000000000000A1"),
			Data:      "0xdeadbeef",
			Value:     "0",
		},
	}, nil
}

// fakeRegistry serves a registry with n standard vaults on bsc, all taking
// the same ERC20 deposit token.
func fakeRegistry(t *testing.T, n int) *httptest.Server {
	t.Helper()
	vaults := make([]clients.ApiVault, 0, n)
	for i := 1; i <= n; i++ {
		vaults = append(vaults, clients.ApiVault{
			ID:                  fmt.Sprintf("vault-%d", i),
			Network:             "bsc",
			EarnContractAddress: fmt.Sprintf("0x%040d", i),
			TokenAddress:        testDepositAddr.Hex(),
			Type:                "standard",
		})
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/vaults", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(vaults)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newPipelineFixture(t *testing.T, vaultCount int, provider SwapProvider) (*DepositPipelineService, *fakeChain) {
	t.Helper()
	registry := fakeRegistry(t, vaultCount)
	chain := newFakeChain()

	cfg := builderTestConfig()
	cfg.Allowance = config.AllowanceConfig{PollIntervalMs: 1, PollAttempts: 5}

	var providers []SwapProvider
	if provider != nil {
		providers = []SwapProvider{provider}
	}
	quotes := NewQuoteService(providers)
	vaultSvc := NewVaultService(clients.NewRegistryClient(registry.URL, 0), chain)
	planner := NewVaultPlannerService(chain)
	builder := NewZapBuilderService(cfg, quotes, planner)
	allowance := NewAllowanceService(cfg, chain, chain)

	pipeline := NewDepositPipelineService(
		cfg, vaultSvc, quotes, builder, allowance, chain,
		repository.NewDepositRepository(nil), events.NewPublisher(nil),
	)
	return pipeline, chain
}

func addVaults(t *testing.T, pipeline *DepositPipelineService, sessionID string, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		require.NoError(t, pipeline.AddVault(context.Background(), sessionID, fmt.Sprintf("vault-%d", i)))
	}
}

func allocations(t *testing.T, pipeline *DepositPipelineService, sessionID string) []int {
	t.Helper()
	view, err := pipeline.Snapshot(sessionID)
	require.NoError(t, err)
	out := make([]int, 0, len(view.Vaults))
	for _, v := range view.Vaults {
		out = append(out, v.Allocation)
	}
	return out
}

func TestSessionVaultManagement(t *testing.T) {
	ctx := context.Background()

	t.Run("AllocationSplitsWithRemainderToLast", func(t *testing.T) {
		pipeline, _ := newPipelineFixture(t, 3, nil)
		session := pipeline.NewSession()

		addVaults(t, pipeline, session.ID, 1)
		assert.Equal(t, []int{100}, allocations(t, pipeline, session.ID))

		require.NoError(t, pipeline.AddVault(ctx, session.ID, "vault-2"))
		assert.Equal(t, []int{50, 50}, allocations(t, pipeline, session.ID))

		require.NoError(t, pipeline.AddVault(ctx, session.ID, "vault-3"))
		assert.Equal(t, []int{33, 33, 34}, allocations(t, pipeline, session.ID))

		require.NoError(t, pipeline.RemoveVault(session.ID, "vault-2"))
		assert.Equal(t, []int{50, 50}, allocations(t, pipeline, session.ID))
	})

	t.Run("RejectsDuplicateVault", func(t *testing.T) {
		pipeline, _ := newPipelineFixture(t, 2, nil)
		session := pipeline.NewSession()

		require.NoError(t, pipeline.AddVault(ctx, session.ID, "vault-1"))
		err := pipeline.AddVault(ctx, session.ID, "vault-1")
		var validation *models.ValidationError
		assert.ErrorAs(t, err, &validation)
	})

	t.Run("RejectsFourthVault", func(t *testing.T) {
		pipeline, _ := newPipelineFixture(t, 4, nil)
		session := pipeline.NewSession()

		addVaults(t, pipeline, session.ID, 3)
		err := pipeline.AddVault(ctx, session.ID, "vault-4")
		var validation *models.ValidationError
		assert.ErrorAs(t, err, &validation)
	})

	t.Run("UnknownVaultSuggestsSimilar", func(t *testing.T) {
		pipeline, _ := newPipelineFixture(t, 2, nil)
		session := pipeline.NewSession()

		err := pipeline.AddVault(ctx, session.ID, "vault")
		var validation *models.ValidationError
		require.ErrorAs(t, err, &validation)
		assert.Contains(t, validation.Error(), "vault-1")
	})
}

func TestQuoteAll(t *testing.T) {
	ctx := context.Background()
	fromToken := models.Token{ChainID: "bsc", Address: testFromAddr, Decimals: 18, Symbol: "FROM"}

	t.Run("ScalesAmountsByAllocation", func(t *testing.T) {
		provider := &pipelineProvider{}
		pipeline, _ := newPipelineFixture(t, 3, provider)
		session := pipeline.NewSession()
		addVaults(t, pipeline, session.ID, 3)

		require.NoError(t, pipeline.SetToken(session.ID, fromToken))
		require.NoError(t, pipeline.SetAmount(session.ID, decimal.RequireFromString("100")))
		require.NoError(t, pipeline.QuoteAll(ctx, session.ID))

		require.Len(t, provider.gotAmounts, 3)
		assert.Equal(t, "33", provider.gotAmounts[0].String())
		assert.Equal(t, "33", provider.gotAmounts[1].String())
		assert.Equal(t, "34", provider.gotAmounts[2].String())

		view, err := pipeline.Snapshot(session.ID)
		require.NoError(t, err)
		for _, v := range view.Vaults {
			assert.Equal(t, models.StageQuoted, v.Stage)
		}
	})

	t.Run("HaltsOnFirstFailureKeepingEarlierQuotes", func(t *testing.T) {
		provider := &pipelineProvider{failVault: "vault-2"}
		pipeline, _ := newPipelineFixture(t, 3, provider)
		session := pipeline.NewSession()
		addVaults(t, pipeline, session.ID, 3)

		require.NoError(t, pipeline.SetToken(session.ID, fromToken))
		require.NoError(t, pipeline.SetAmount(session.ID, decimal.RequireFromString("100")))

		err := pipeline.QuoteAll(ctx, session.ID)
		var batch *models.BatchError
		require.ErrorAs(t, err, &batch)
		assert.Equal(t, "vault-2", batch.VaultID)

		view, snapErr := pipeline.Snapshot(session.ID)
		require.NoError(t, snapErr)
		assert.Equal(t, models.StageQuoted, view.Vaults[0].Stage, "vault-1 quote survives")
		assert.NotNil(t, view.Vaults[0].Quote)
		assert.Equal(t, models.StageFailed, view.Vaults[1].Stage)
		assert.Equal(t, models.StageLoaded, view.Vaults[2].Stage, "vault-3 never attempted")
	})

	t.Run("EditsClearDerivedState", func(t *testing.T) {
		provider := &pipelineProvider{}
		pipeline, _ := newPipelineFixture(t, 1, provider)
		session := pipeline.NewSession()
		addVaults(t, pipeline, session.ID, 1)

		require.NoError(t, pipeline.SetToken(session.ID, fromToken))
		require.NoError(t, pipeline.SetAmount(session.ID, decimal.RequireFromString("100")))
		require.NoError(t, pipeline.QuoteAll(ctx, session.ID))

		require.NoError(t, pipeline.SetAmount(session.ID, decimal.RequireFromString("50")))

		view, err := pipeline.Snapshot(session.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StageLoaded, view.Vaults[0].Stage)
		assert.Nil(t, view.Vaults[0].Quote)
	})

	t.Run("RequiresTokenAndAmount", func(t *testing.T) {
		pipeline, _ := newPipelineFixture(t, 1, &pipelineProvider{})
		session := pipeline.NewSession()
		addVaults(t, pipeline, session.ID, 1)

		var validation *models.ValidationError
		assert.ErrorAs(t, pipeline.QuoteAll(ctx, session.ID), &validation)
	})
}

func TestSetSlippage(t *testing.T) {
	ctx := context.Background()
	fromToken := models.Token{ChainID: "bsc", Address: testFromAddr, Decimals: 18, Symbol: "FROM"}

	t.Run("PerVaultToleranceFlowsIntoBuild", func(t *testing.T) {
		provider := &pipelineProvider{}
		pipeline, _ := newPipelineFixture(t, 2, provider)
		session := pipeline.NewSession()
		addVaults(t, pipeline, session.ID, 2)

		require.NoError(t, pipeline.SetToken(session.ID, fromToken))
		require.NoError(t, pipeline.SetAmount(session.ID, decimal.RequireFromString("10")))
		require.NoError(t, pipeline.SetSlippage(session.ID, "vault-2", 0.1))

		require.NoError(t, pipeline.QuoteAll(ctx, session.ID))
		require.NoError(t, pipeline.BuildAll(ctx, session.ID))

		view, err := pipeline.Snapshot(session.ID)
		require.NoError(t, err)
		assert.Equal(t, 0.01, view.Vaults[0].Slippage, "default tolerance untouched")
		assert.Equal(t, 0.1, view.Vaults[1].Slippage)

		// 5 tokens each at 1:1, shares discounted twice: swap leg then vault leg
		assert.Equal(t, "4900500000000000000", view.Vaults[0].Built.Request.Order.Outputs[0].MinOutputAmount)
		assert.Equal(t, "4050000000000000000", view.Vaults[1].Built.Request.Order.Outputs[0].MinOutputAmount)
	})

	t.Run("SessionWideAppliesToEveryVault", func(t *testing.T) {
		pipeline, _ := newPipelineFixture(t, 2, nil)
		session := pipeline.NewSession()
		addVaults(t, pipeline, session.ID, 2)

		require.NoError(t, pipeline.SetSlippage(session.ID, "", 0.05))

		view, err := pipeline.Snapshot(session.ID)
		require.NoError(t, err)
		assert.Equal(t, 0.05, view.Vaults[0].Slippage)
		assert.Equal(t, 0.05, view.Vaults[1].Slippage)
	})

	t.Run("RejectsOutOfRangeTolerance", func(t *testing.T) {
		pipeline, _ := newPipelineFixture(t, 1, nil)
		session := pipeline.NewSession()
		addVaults(t, pipeline, session.ID, 1)

		var validation *models.ValidationError
		assert.ErrorAs(t, pipeline.SetSlippage(session.ID, "", 0), &validation)
		assert.ErrorAs(t, pipeline.SetSlippage(session.ID, "", 0.5), &validation)
		assert.NoError(t, pipeline.SetSlippage(session.ID, "", 0.49))
	})

	t.Run("UnknownVaultRejected", func(t *testing.T) {
		pipeline, _ := newPipelineFixture(t, 1, nil)
		session := pipeline.NewSession()
		addVaults(t, pipeline, session.ID, 1)

		var validation *models.ValidationError
		assert.ErrorAs(t, pipeline.SetSlippage(session.ID, "vault-9", 0.01), &validation)
	})
}

func TestExecuteAll(t *testing.T) {
	ctx := context.Background()

	t.Run("SameTokenERC20DepositsDirectly", func(t *testing.T) {
		pipeline, chain := newPipelineFixture(t, 1, nil)
		session := pipeline.NewSession()
		addVaults(t, pipeline, session.ID, 1)

		depositToken := models.Token{ChainID: "bsc", Address: testDepositAddr, Decimals: 18, Symbol: "WANT"}
		require.NoError(t, pipeline.SetToken(session.ID, depositToken))
		require.NoError(t, pipeline.SetAmount(session.ID, decimal.RequireFromString("10")))

		require.NoError(t, pipeline.QuoteAll(ctx, session.ID))
		require.NoError(t, pipeline.BuildAll(ctx, session.ID))
		require.NoError(t, pipeline.ExecuteAll(ctx, session.ID))

		assert.Len(t, chain.deposits, 1, "direct vault deposit")
		assert.Empty(t, chain.executed, "router not involved")
		assert.Equal(t, 1, chain.approveCalls, "vault approved as spender")

		view, err := pipeline.Snapshot(session.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StageExecuted, view.Vaults[0].Stage)
		assert.NotEmpty(t, view.Vaults[0].TxHash)
	})

	t.Run("SwapDepositGoesThroughRouter", func(t *testing.T) {
		provider := &pipelineProvider{}
		pipeline, chain := newPipelineFixture(t, 1, provider)
		session := pipeline.NewSession()
		addVaults(t, pipeline, session.ID, 1)

		fromToken := models.Token{ChainID: "bsc", Address: testFromAddr, Decimals: 18, Symbol: "FROM"}
		require.NoError(t, pipeline.SetToken(session.ID, fromToken))
		require.NoError(t, pipeline.SetAmount(session.ID, decimal.RequireFromString("10")))

		require.NoError(t, pipeline.QuoteAll(ctx, session.ID))
		require.NoError(t, pipeline.BuildAll(ctx, session.ID))
		require.NoError(t, pipeline.ExecuteAll(ctx, session.ID))

		require.Len(t, chain.executed, 1)
		assert.Empty(t, chain.deposits)
		assert.Equal(t, 1, chain.approveCalls, "router spender approved")
		assert.Zero(t, chain.executedValues[0].Sign(), "no native value for ERC20 input")
		require.Len(t, chain.executed[0].Steps, 2)
	})

	t.Run("NativeInputForwardsValueWithoutApproval", func(t *testing.T) {
		provider := &pipelineProvider{}
		pipeline, chain := newPipelineFixture(t, 1, provider)
		session := pipeline.NewSession()
		addVaults(t, pipeline, session.ID, 1)

		native := models.Token{ChainID: "bsc", Decimals: 18, Symbol: "BNB"}
		require.NoError(t, pipeline.SetToken(session.ID, native))
		require.NoError(t, pipeline.SetAmount(session.ID, decimal.RequireFromString("1")))

		require.NoError(t, pipeline.QuoteAll(ctx, session.ID))
		require.NoError(t, pipeline.BuildAll(ctx, session.ID))
		require.NoError(t, pipeline.ExecuteAll(ctx, session.ID))

		require.Len(t, chain.executed, 1)
		assert.Zero(t, chain.approveCalls, "native input needs no allowance")
		assert.Equal(t, "1000000000000000000", chain.executedValues[0].String())
	})

	t.Run("RetryDoesNotReExecuteCompletedVaults", func(t *testing.T) {
		pipeline, chain := newPipelineFixture(t, 2, nil)
		session := pipeline.NewSession()
		addVaults(t, pipeline, session.ID, 2)

		depositToken := models.Token{ChainID: "bsc", Address: testDepositAddr, Decimals: 18, Symbol: "WANT"}
		require.NoError(t, pipeline.SetToken(session.ID, depositToken))
		require.NoError(t, pipeline.SetAmount(session.ID, decimal.RequireFromString("10")))
		require.NoError(t, pipeline.QuoteAll(ctx, session.ID))
		require.NoError(t, pipeline.BuildAll(ctx, session.ID))

		chain.failDepositFor = common.HexToAddress(fmt.Sprintf("0x%040d", 2))
		err := pipeline.ExecuteAll(ctx, session.ID)
		var batch *models.BatchError
		require.ErrorAs(t, err, &batch)
		assert.Equal(t, "vault-2", batch.VaultID)
		require.Len(t, chain.deposits, 1, "vault-1 deposited before the halt")

		chain.failDepositFor = common.Address{}
		require.NoError(t, pipeline.ExecuteAll(ctx, session.ID))

		require.Len(t, chain.deposits, 2, "retry submits only the failed vault")

		view, snapErr := pipeline.Snapshot(session.ID)
		require.NoError(t, snapErr)
		assert.Equal(t, models.StageExecuted, view.Vaults[0].Stage)
		assert.Equal(t, models.StageExecuted, view.Vaults[1].Stage)
	})

	t.Run("ExecuteWithoutBuildRejected", func(t *testing.T) {
		pipeline, _ := newPipelineFixture(t, 1, nil)
		session := pipeline.NewSession()
		addVaults(t, pipeline, session.ID, 1)

		var validation *models.ValidationError
		assert.ErrorAs(t, pipeline.ExecuteAll(ctx, session.ID), &validation)
	})
}
