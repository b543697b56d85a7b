package services

import (
	"context"
	"math/big"
	"sync"

	"zap-backend/internal/clients"
	"zap-backend/internal/config"
	"zap-backend/internal/metrics"
	"zap-backend/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// BalanceScannerService reads wallet balances for a set of candidate deposit
// tokens. Reads run in fixed-size concurrent batches so a long token list
// does not hammer the RPC endpoint all at once.
type BalanceScannerService struct {
	cfg    *config.Config
	reader clients.ChainReader
}

// NewBalanceScannerService creates a new BalanceScannerService instance
func NewBalanceScannerService(cfg *config.Config, reader clients.ChainReader) *BalanceScannerService {
	return &BalanceScannerService{cfg: cfg, reader: reader}
}

// ScanBalances returns the given tokens with their Balance field populated
// for owner. A failed read drops that token from the result rather than
// failing the scan; the caller still gets every balance that could be
// fetched.
func (s *BalanceScannerService) ScanBalances(ctx context.Context, chainID string, owner common.Address, tokens []models.Token) []models.Token {
	batchSize := s.cfg.Scanner.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	results := make([]*models.Token, len(tokens))
	for start := 0; start < len(tokens); start += batchSize {
		end := start + batchSize
		if end > len(tokens) {
			end = len(tokens)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tok := tokens[i]
				balance, err := s.readBalance(ctx, chainID, owner, tok)
				if err != nil {
					metrics.BalanceReads.WithLabelValues("error").Inc()
					logrus.WithError(err).WithFields(logrus.Fields{
						"chain": chainID,
						"token": tok.Address.Hex(),
					}).Warn("balance read failed")
					return
				}
				metrics.BalanceReads.WithLabelValues("ok").Inc()
				tok.Balance = balance
				results[i] = &tok
			}(i)
		}
		wg.Wait()
	}

	scanned := make([]models.Token, 0, len(tokens))
	for _, tok := range results {
		if tok != nil {
			scanned = append(scanned, *tok)
		}
	}
	return scanned
}

func (s *BalanceScannerService) readBalance(ctx context.Context, chainID string, owner common.Address, token models.Token) (*big.Int, error) {
	if token.IsNative() {
		return s.reader.NativeBalance(ctx, chainID, owner)
	}
	return s.reader.ERC20BalanceOf(ctx, chainID, token.Address, owner)
}
