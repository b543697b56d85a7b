package services

import (
	"context"
	"math/big"
	"time"

	"zap-backend/internal/clients"
	"zap-backend/internal/config"
	"zap-backend/internal/metrics"
	"zap-backend/internal/models"
	"zap-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// AllowanceService reconciles ERC20 allowances before a spend. Native tokens
// never need approval; ERC20 approvals grant the maximum uint256 so a spender
// is approved at most once per token.
type AllowanceService struct {
	cfg    *config.Config
	reader clients.ChainReader
	writer clients.ChainWriter
}

// NewAllowanceService creates a new AllowanceService instance
func NewAllowanceService(cfg *config.Config, reader clients.ChainReader, writer clients.ChainWriter) *AllowanceService {
	return &AllowanceService{cfg: cfg, reader: reader, writer: writer}
}

// EnsureAllowance guarantees that spender may move at least requiredWei of
// token on behalf of the signer. If the current allowance already covers the
// amount nothing is written. Otherwise it approves MaxUint256, waits for the
// transaction to mine, then polls until the node reflects the new allowance.
// Some RPC nodes lag behind their own mined state, hence the re-read loop.
func (s *AllowanceService) EnsureAllowance(ctx context.Context, chainID string, token, spender common.Address, requiredWei *big.Int) error {
	if utils.IsNative(token) {
		return nil
	}

	owner, err := s.writer.SignerAddress(chainID)
	if err != nil {
		return &models.ChainWriteError{Op: "signer", Err: err}
	}

	current, err := s.reader.Allowance(ctx, chainID, token, owner, spender)
	if err != nil {
		return &models.ChainReadError{Op: "allowance", Err: err}
	}
	if current.Cmp(requiredWei) >= 0 {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"chain":   chainID,
		"token":   token.Hex(),
		"spender": spender.Hex(),
		"current": current.String(),
		"needed":  requiredWei.String(),
	}).Info("approving spender")

	txHash, err := s.writer.Approve(ctx, chainID, token, spender, utils.MaxUint256)
	if err != nil {
		return &models.ChainWriteError{Op: "approve", Err: err}
	}
	metrics.AllowanceApprovals.Inc()

	interval := time.Duration(s.cfg.Allowance.PollIntervalMs) * time.Millisecond
	attempts := s.cfg.Allowance.PollAttempts
	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		updated, err := s.reader.Allowance(ctx, chainID, token, owner, spender)
		if err != nil {
			logrus.WithError(err).Warn("allowance re-read failed, retrying")
			continue
		}
		if updated.Cmp(requiredWei) >= 0 {
			metrics.AllowancePollAttempts.Observe(float64(i + 1))
			logrus.WithFields(logrus.Fields{
				"token": token.Hex(),
				"tx":    txHash.Hex(),
				"polls": i + 1,
			}).Info("allowance reflected")
			return nil
		}
	}

	metrics.AllowanceNotReflected.Inc()
	return models.ErrAllowanceNotReflected
}
