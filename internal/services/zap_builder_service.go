package services

import (
	"context"
	"strings"

	"zap-backend/internal/config"
	"zap-backend/internal/metrics"
	"zap-backend/internal/models"
	"zap-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// ZapBuilderService assembles the swap step and the vault-deposit step into
// a single atomic order for the zap router.
type ZapBuilderService struct {
	cfg     *config.Config
	quotes  *QuoteService
	planner *VaultPlannerService
}

// NewZapBuilderService creates a new ZapBuilderService instance
func NewZapBuilderService(cfg *config.Config, quotes *QuoteService, planner *VaultPlannerService) *ZapBuilderService {
	return &ZapBuilderService{cfg: cfg, quotes: quotes, planner: planner}
}

// BuildDeposit turns a selected quote into a complete, executable deposit
// plan. Any step failure aborts the whole build; partial plans are never
// returned.
//
// Slippage is applied once on the swap output and again on the expected
// vault shares. The compounding is deliberate: the plan must survive both
// legs each landing at their individual worst case.
func (s *ZapBuilderService) BuildDeposit(ctx context.Context, vault models.Vault, quote *models.Quote, depositToken models.Token, slippage float64) (*models.BuiltDeposit, error) {
	network := s.cfg.GetNetworkConfig(vault.ChainID)
	if network == nil || network.ZapRouter == "" {
		metrics.DepositsBuilt.WithLabelValues("error").Inc()
		return nil, &models.UnsupportedChainError{ChainID: vault.ChainID}
	}
	router := common.HexToAddress(network.ZapRouter)

	built, err := s.build(ctx, vault, quote, depositToken, slippage, router)
	if err != nil {
		metrics.DepositsBuilt.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.DepositsBuilt.WithLabelValues("ok").Inc()

	logrus.WithFields(logrus.Fields{
		"vault":    vault.ID,
		"provider": built.Swap.ProviderID,
		"steps":    len(built.Request.Steps),
		"outputs":  len(built.Request.Order.Outputs),
	}).Info("deposit plan built")
	return built, nil
}

func (s *ZapBuilderService) build(ctx context.Context, vault models.Vault, quote *models.Quote, depositToken models.Token, slippage float64, router common.Address) (*models.BuiltDeposit, error) {
	var (
		swap  *models.SwapResult
		steps []models.ZapStep
	)

	if quote.IsNoSwap() {
		// Same-token zap: no exchange happens, so the plan is the vault
		// deposit alone and there is no swap leg to discount.
		swap = &models.SwapResult{
			Quote:       *quote,
			ToAmountMin: quote.ToAmount,
		}
	} else {
		provider := s.quotes.Provider(quote.ProviderID)
		if provider == nil {
			return nil, models.Validationf("quote references unknown provider '%s'", quote.ProviderID)
		}
		var err error
		swap, err = provider.Swap(ctx, quote, router, slippage)
		if err != nil {
			return nil, &models.ProviderError{Provider: quote.ProviderID, Err: err}
		}
	}

	// Plan the vault leg against the worst-case swap output, not the
	// expected one.
	minOutForVault := swap.ToAmount
	if !quote.IsNoSwap() {
		minOutForVault = utils.ApplySlippage(swap.ToAmount, slippage, depositToken.Decimals)
	}
	vaultDeposit, err := s.planner.PlanVaultDeposit(ctx, vault, depositToken, minOutForVault)
	if err != nil {
		return nil, err
	}

	if !quote.IsNoSwap() {
		steps = append(steps, models.ZapStep{
			Target: swap.Tx.ToAddress,
			Value:  swap.Tx.Value,
			Data:   swap.Tx.Data,
			Tokens: []models.StepToken{{Token: quote.FromToken.Address, Index: utils.NoInsertIndex}},
		})
	}
	steps = append(steps, vaultDeposit.Zap)

	inputs := []models.OrderInput{{
		Token:  quote.FromToken.Address,
		Amount: utils.ToBaseUnits(quote.FromAmount, quote.FromToken.Decimals),
	}}

	// Required share outputs first, then zero-minimum dust entries covering
	// unconsumed swap remainders; dedup keeps the first (required) entry.
	outputs := make([]models.OrderOutput, 0, len(vaultDeposit.Outputs)+2)
	for _, out := range vaultDeposit.Outputs {
		minShares := utils.ApplySlippage(out.Amount, slippage, sharesDecimals)
		outputs = append(outputs, models.OrderOutput{
			Token:           vault.ContractAddress,
			MinOutputAmount: utils.ToBaseUnits(minShares, sharesDecimals),
		})
	}
	outputs = append(outputs,
		models.OrderOutput{Token: quote.FromToken.Address, MinOutputAmount: "0"},
		models.OrderOutput{Token: quote.ToToken.Address, MinOutputAmount: "0"},
	)
	outputs = dedupOutputs(outputs)

	shareToken := depositToken
	shareToken.Address = vault.ContractAddress

	return &models.BuiltDeposit{
		VaultID:      vault.ID,
		Swap:         swap,
		VaultDeposit: vaultDeposit,
		Request: models.ZapRequest{
			Order: models.ZapOrder{
				Inputs:  inputs,
				Outputs: outputs,
				Relay:   models.Relay{Target: utils.ZeroAddress, Value: "0", Data: "0x"},
			},
			Steps: steps,
		},
		ExpectedTokens: []models.Token{shareToken},
	}, nil
}

// dedupOutputs removes later entries whose token address (case-insensitive)
// already appeared, keeping the first occurrence.
func dedupOutputs(outputs []models.OrderOutput) []models.OrderOutput {
	seen := make(map[string]bool, len(outputs))
	deduped := outputs[:0]
	for _, out := range outputs {
		key := strings.ToLower(out.Token.Hex())
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, out)
	}
	return deduped
}
