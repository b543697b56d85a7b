package services

import (
	"context"
	"strconv"
	"sync"
	"time"

	"zap-backend/internal/clients"
	"zap-backend/internal/config"
	"zap-backend/internal/metrics"
	"zap-backend/internal/models"
	"zap-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// QuoteRequest asks for the best way to exchange FromAmount of FromToken
// into the vault's deposit token.
type QuoteRequest struct {
	Vault      models.Vault
	FromToken  models.Token
	FromAmount decimal.Decimal
	ToToken    models.Token
}

// SwapProvider is one configured swap-price source. Quote returns a price
// estimate; Swap returns a firm execution quote with the transaction that
// performs it, priced for the given slippage fraction.
type SwapProvider interface {
	ID() string
	Quote(ctx context.Context, req QuoteRequest) (*models.Quote, error)
	Swap(ctx context.Context, quote *models.Quote, from common.Address, slippage float64) (*models.SwapResult, error)
}

// QuoteService aggregates quotes across all configured providers and selects
// the best result.
type QuoteService struct {
	providers []SwapProvider
}

// NewQuoteService creates a QuoteService over an ordered provider list. The
// order is the deterministic tie-break order for equal best quotes.
func NewQuoteService(providers []SwapProvider) *QuoteService {
	return &QuoteService{providers: providers}
}

// Provider returns the configured provider with the given id, or nil.
func (s *QuoteService) Provider(id string) SwapProvider {
	for _, p := range s.providers {
		if p.ID() == id {
			return p
		}
	}
	return nil
}

// GetBestQuote queries every configured provider concurrently and returns
// the quote with the strictly highest toAmount; ties resolve to the first
// provider in configured order. When source and destination tokens are the
// same address the synthetic no-swap quote is returned without any network
// calls. Fails with ErrNoQuoteAvailable when the amount is not positive, no
// providers are configured, or every provider failed.
func (s *QuoteService) GetBestQuote(ctx context.Context, req QuoteRequest) (*models.Quote, error) {
	if req.FromAmount.Sign() <= 0 {
		return nil, models.ErrNoQuoteAvailable
	}

	if utils.SameAddress(req.FromToken.Address.Hex(), req.ToToken.Address.Hex()) {
		metrics.NoSwapQuotes.Inc()
		return &models.Quote{
			ProviderID: models.NoSwapProviderID,
			FromToken:  req.FromToken,
			FromAmount: req.FromAmount,
			ToToken:    req.ToToken,
			ToAmount:   req.FromAmount,
		}, nil
	}

	if len(s.providers) == 0 {
		return nil, models.ErrNoQuoteAvailable
	}

	// Fan out to every provider; one provider failing must not abort the
	// others. Results land in provider-order slots so selection stays
	// deterministic.
	quotes := make([]*models.Quote, len(s.providers))
	var wg sync.WaitGroup
	for i, provider := range s.providers {
		wg.Add(1)
		go func(i int, provider SwapProvider) {
			defer wg.Done()
			start := time.Now()
			quote, err := provider.Quote(ctx, req)
			metrics.QuoteDuration.WithLabelValues(provider.ID()).Observe(time.Since(start).Seconds())
			if err != nil {
				metrics.QuoteRequests.WithLabelValues(provider.ID(), "error").Inc()
				perr := &models.ProviderError{Provider: provider.ID(), Err: err}
				logrus.WithError(perr).WithFields(logrus.Fields{
					"vault": req.Vault.ID,
					"chain": req.Vault.ChainID,
				}).Warn("provider quote failed")
				return
			}
			metrics.QuoteRequests.WithLabelValues(provider.ID(), "ok").Inc()
			quotes[i] = quote
		}(i, provider)
	}
	wg.Wait()

	// Strictly-greater comparison keeps the first provider on ties.
	var best *models.Quote
	for _, q := range quotes {
		if q == nil {
			continue
		}
		if best == nil || q.ToAmount.GreaterThan(best.ToAmount) {
			best = q
		}
	}
	if best == nil {
		return nil, models.ErrNoQuoteAvailable
	}

	logrus.WithFields(logrus.Fields{
		"vault":    req.Vault.ID,
		"provider": best.ProviderID,
		"toAmount": best.ToAmount.String(),
	}).Info("best quote selected")
	return best, nil
}

// OneInchProvider adapts the 1inch client to the SwapProvider interface.
type OneInchProvider struct {
	client *clients.OneInchClient
}

// NewOneInchProvider creates the 1inch swap provider.
func NewOneInchProvider(client *clients.OneInchClient) *OneInchProvider {
	return &OneInchProvider{client: client}
}

// ID implements SwapProvider.
func (p *OneInchProvider) ID() string { return "one-inch" }

// numericChainID maps a chain key like "bsc" to the numeric id the zap API
// expects in its path. Unconfigured chains pass through unchanged.
func numericChainID(chainKey string) string {
	if network := config.AppConfig.GetNetworkConfig(chainKey); network != nil && network.ChainID > 0 {
		return strconv.Itoa(network.ChainID)
	}
	return chainKey
}

// Quote implements SwapProvider.
func (p *OneInchProvider) Quote(ctx context.Context, req QuoteRequest) (*models.Quote, error) {
	resp, err := p.client.GetQuote(ctx, &clients.OneInchQuoteRequest{
		ChainID: numericChainID(req.Vault.ChainID),
		Src:     req.FromToken.Address,
		Dst:     req.ToToken.Address,
		Amount:  utils.ToBaseUnits(req.FromAmount, req.FromToken.Decimals),
	})
	if err != nil {
		return nil, err
	}
	toAmount, err := utils.FromBaseUnits(resp.DstAmount, req.ToToken.Decimals)
	if err != nil {
		return nil, err
	}
	return &models.Quote{
		ProviderID: p.ID(),
		FromToken:  req.FromToken,
		FromAmount: req.FromAmount,
		ToToken:    req.ToToken,
		ToAmount:   toAmount,
	}, nil
}

// Swap implements SwapProvider. from is the address executing the swap step
// (the zap router), not the end user.
func (p *OneInchProvider) Swap(ctx context.Context, quote *models.Quote, from common.Address, slippage float64) (*models.SwapResult, error) {
	resp, err := p.client.GetSwap(ctx, &clients.OneInchSwapRequest{
		ChainID:  numericChainID(quote.FromToken.ChainID),
		From:     from,
		Src:      quote.FromToken.Address,
		Dst:      quote.ToToken.Address,
		Amount:   utils.ToBaseUnits(quote.FromAmount, quote.FromToken.Decimals),
		Slippage: slippage,
	})
	if err != nil {
		return nil, err
	}
	toAmount, err := utils.FromBaseUnits(resp.DstAmount, quote.ToToken.Decimals)
	if err != nil {
		return nil, err
	}
	return &models.SwapResult{
		Quote: models.Quote{
			ProviderID: p.ID(),
			FromToken:  quote.FromToken,
			FromAmount: quote.FromAmount,
			ToToken:    quote.ToToken,
			ToAmount:   toAmount,
		},
		ToAmountMin: utils.ApplySlippage(toAmount, slippage, quote.ToToken.Decimals),
		Tx: models.SwapTx{
			FromAddress:   common.HexToAddress(resp.Tx.From),
			ToAddress:     common.HexToAddress(resp.Tx.To),
			Data:          resp.Tx.Data,
			Value:         resp.Tx.Value,
			InputPosition: utils.NoInsertIndex,
		},
	}, nil
}
